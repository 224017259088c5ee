package telemetry

import (
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// SessionMetrics exports capture-session outcomes to Prometheus. It satisfies
// core.Observer and mirrors every sample into a Collector for the JSON API.
type SessionMetrics struct {
	gatherer  prometheus.Gatherer
	collector *Collector

	Operations *prometheus.CounterVec
	Durations  *prometheus.HistogramVec
	Segments   *prometheus.CounterVec
}

// NewSessionMetrics registers session metrics against reg, defaulting to the
// global Prometheus registry when nil. collector may be nil.
func NewSessionMetrics(reg prometheus.Registerer, collector *Collector) (*SessionMetrics, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	gatherer := prometheus.DefaultGatherer
	if g, ok := reg.(prometheus.Gatherer); ok {
		gatherer = g
	}

	ops, err := registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "capsession_operations_total",
		Help: "Session operations run, labeled by operation and result.",
	}, []string{"operation", "result"}), "capsession_operations_total")
	if err != nil {
		return nil, err
	}
	durations, err := registerHistogramVec(reg, prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "capsession_operation_duration_seconds",
		Help:    "Wall time of session operations in seconds, including slews and holds.",
		Buckets: []float64{1, 5, 10, 30, 60, 120, 300, 600, 1800, 3600},
	}, []string{"operation"}), "capsession_operation_duration_seconds")
	if err != nil {
		return nil, err
	}
	segments, err := registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "capsession_segments_total",
		Help: "Labelled scan segments opened on the backend.",
	}, []string{"operation", "label"}), "capsession_segments_total")
	if err != nil {
		return nil, err
	}

	return &SessionMetrics{
		gatherer:   gatherer,
		collector:  collector,
		Operations: ops,
		Durations:  durations,
		Segments:   segments,
	}, nil
}

func (m *SessionMetrics) OperationDone(op string, d time.Duration, err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.Operations.WithLabelValues(op, result).Inc()
	m.Durations.WithLabelValues(op).Observe(d.Seconds())
	if m.collector != nil {
		m.collector.Timer("capsession_operation_duration", d, map[string]string{"operation": op, "result": result})
	}
}

func (m *SessionMetrics) SegmentDone(op, label string) {
	if m == nil {
		return
	}
	m.Segments.WithLabelValues(op, label).Inc()
	if m.collector != nil {
		m.collector.Counter("capsession_segments", 1, map[string]string{"operation": op, "label": label})
	}
}

// Handler exposes a ready-to-use /metrics handler.
func (m *SessionMetrics) Handler() http.Handler {
	gatherer := prometheus.DefaultGatherer
	if m != nil && m.gatherer != nil {
		gatherer = m.gatherer
	}
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

func registerCounterVec(reg prometheus.Registerer, vec *prometheus.CounterVec, name string) (*prometheus.CounterVec, error) {
	if err := reg.Register(vec); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(*prometheus.CounterVec); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return vec, nil
}

func registerHistogramVec(reg prometheus.Registerer, vec *prometheus.HistogramVec, name string) (*prometheus.HistogramVec, error) {
	if err := reg.Register(vec); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(*prometheus.HistogramVec); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return vec, nil
}
