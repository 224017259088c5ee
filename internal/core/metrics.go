package core

import (
	"sync"
	"time"
)

// Observer receives operation and segment outcomes from a session.
type Observer interface {
	OperationDone(op string, d time.Duration, err error)
	SegmentDone(op, label string)
}

type nopObserver struct{}

func (nopObserver) OperationDone(string, time.Duration, error) {}
func (nopObserver) SegmentDone(string, string)                 {}

// Metrics tracks per-session operation counts
type Metrics struct {
	operations int64
	errors     int64
	segments   int64
	duration   time.Duration
	mu         sync.RWMutex
}

// NewMetrics creates a new metrics tracker
func NewMetrics() *Metrics {
	return &Metrics{}
}

// RecordOperation records a finished operation
func (m *Metrics) RecordOperation(d time.Duration, err error) {
	m.mu.Lock()
	m.operations++
	m.duration += d
	if err != nil {
		m.errors++
	}
	m.mu.Unlock()
}

// RecordSegment records an opened scan segment
func (m *Metrics) RecordSegment() {
	m.mu.Lock()
	m.segments++
	m.mu.Unlock()
}

// MetricsSnapshot is a point-in-time copy of Metrics.
type MetricsSnapshot struct {
	Operations int64
	Errors     int64
	Segments   int64
	Duration   time.Duration
}

// Snapshot returns current metrics
func (m *Metrics) Snapshot() MetricsSnapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return MetricsSnapshot{
		Operations: m.operations,
		Errors:     m.errors,
		Segments:   m.segments,
		Duration:   m.duration,
	}
}
