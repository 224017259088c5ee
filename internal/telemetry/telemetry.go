package telemetry

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// MetricType represents the type of metric
type MetricType string

const (
	Counter   MetricType = "counter"
	Gauge     MetricType = "gauge"
	Histogram MetricType = "histogram"
	Timer     MetricType = "timer"
)

// maxBuffered bounds the in-memory buffer between flushes.
const maxBuffered = 1000

// Metric represents a telemetry metric
type Metric struct {
	Name      string            `json:"name"`
	Type      MetricType        `json:"type"`
	Value     float64           `json:"value"`
	Labels    map[string]string `json:"labels"`
	Timestamp time.Time         `json:"timestamp"`
	Unit      string            `json:"unit,omitempty"`
}

// Summary aggregates every sample of one metric name seen by a collector.
type Summary struct {
	Name  string     `json:"name"`
	Type  MetricType `json:"type"`
	Count int64      `json:"count"`
	Sum   float64    `json:"sum"`
	Last  float64    `json:"last"`
	Unit  string     `json:"unit,omitempty"`
}

// Collector buffers samples from the agent and sessions, flushes them to the
// log periodically and keeps running summaries for the JSON API.
type Collector struct {
	mu        sync.RWMutex
	metrics   []Metric
	summaries map[string]*Summary
	enabled   bool
	interval  time.Duration
	flushCh   chan struct{}
	ctx       context.Context
	cancel    context.CancelFunc
}

// NewCollector creates a collector. A zero interval disables periodic
// flushing; samples are then flushed only on Shutdown or when the buffer
// fills.
func NewCollector(enabled bool, interval time.Duration) *Collector {
	ctx, cancel := context.WithCancel(context.Background())

	c := &Collector{
		summaries: make(map[string]*Summary),
		enabled:   enabled,
		interval:  interval,
		flushCh:   make(chan struct{}, 1),
		ctx:       ctx,
		cancel:    cancel,
	}

	if enabled {
		go c.flushLoop()
	}

	return c
}

func (c *Collector) Counter(name string, value float64, labels map[string]string) {
	c.add(Metric{Name: name, Type: Counter, Value: value, Labels: labels})
}

func (c *Collector) Gauge(name string, value float64, labels map[string]string) {
	c.add(Metric{Name: name, Type: Gauge, Value: value, Labels: labels})
}

func (c *Collector) Histogram(name string, value float64, labels map[string]string) {
	c.add(Metric{Name: name, Type: Histogram, Value: value, Labels: labels})
}

// Timer records a duration in milliseconds
func (c *Collector) Timer(name string, duration time.Duration, labels map[string]string) {
	c.add(Metric{Name: name, Type: Timer, Value: float64(duration.Milliseconds()), Labels: labels, Unit: "ms"})
}

func (c *Collector) add(metric Metric) {
	if !c.enabled {
		return
	}
	metric.Timestamp = time.Now()

	c.mu.Lock()
	defer c.mu.Unlock()

	s, ok := c.summaries[metric.Name]
	if !ok {
		s = &Summary{Name: metric.Name, Type: metric.Type, Unit: metric.Unit}
		c.summaries[metric.Name] = s
	}
	s.Count++
	s.Sum += metric.Value
	s.Last = metric.Value

	c.metrics = append(c.metrics, metric)
	if len(c.metrics) >= maxBuffered {
		select {
		case c.flushCh <- struct{}{}:
		default:
		}
	}
}

// GetMetrics returns a copy of the samples buffered since the last flush
func (c *Collector) GetMetrics() []Metric {
	c.mu.RLock()
	defer c.mu.RUnlock()

	result := make([]Metric, len(c.metrics))
	copy(result, c.metrics)
	return result
}

// Summaries returns one entry per metric name, sorted by name.
func (c *Collector) Summaries() []Summary {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]Summary, 0, len(c.summaries))
	for _, s := range c.summaries {
		out = append(out, *s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// FlushMetrics writes buffered samples to the log and clears the buffer
func (c *Collector) FlushMetrics() error {
	c.mu.Lock()
	metrics := c.metrics
	c.metrics = nil
	c.mu.Unlock()

	if len(metrics) == 0 {
		return nil
	}

	log.Debug().Int("count", len(metrics)).Msg("Flushing telemetry metrics")
	for _, metric := range metrics {
		log.Info().
			Str("name", metric.Name).
			Str("type", string(metric.Type)).
			Float64("value", metric.Value).
			Interface("labels", metric.Labels).
			Time("timestamp", metric.Timestamp).
			Msg("telemetry_metric")
	}
	return nil
}

func (c *Collector) flushLoop() {
	var tick <-chan time.Time
	if c.interval > 0 {
		ticker := time.NewTicker(c.interval)
		defer ticker.Stop()
		tick = ticker.C
	}

	for {
		select {
		case <-c.ctx.Done():
			return
		case <-tick:
			_ = c.FlushMetrics()
		case <-c.flushCh:
			_ = c.FlushMetrics()
		}
	}
}

// Shutdown stops the collector
func (c *Collector) Shutdown() error {
	if c.cancel != nil {
		c.cancel()
	}
	return c.FlushMetrics()
}

var (
	globalMu        sync.Mutex
	globalCollector *Collector
)

// InitGlobal replaces the process-wide collector
func InitGlobal(enabled bool, interval time.Duration) {
	globalMu.Lock()
	defer globalMu.Unlock()
	if globalCollector != nil {
		_ = globalCollector.Shutdown()
	}
	globalCollector = NewCollector(enabled, interval)
}

// GetGlobal returns the global collector, a disabled one if none was set up
func GetGlobal() *Collector {
	globalMu.Lock()
	defer globalMu.Unlock()
	if globalCollector == nil {
		globalCollector = NewCollector(false, 0)
	}
	return globalCollector
}

func CounterGlobal(name string, value float64, labels map[string]string) {
	GetGlobal().Counter(name, value, labels)
}

func TimerGlobal(name string, duration time.Duration, labels map[string]string) {
	GetGlobal().Timer(name, duration, labels)
}

// Shutdown shuts down the global collector
func Shutdown() error {
	globalMu.Lock()
	c := globalCollector
	globalMu.Unlock()
	if c != nil {
		return c.Shutdown()
	}
	return nil
}
