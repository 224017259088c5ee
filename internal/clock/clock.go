// Package clock abstracts time so that long device waits can run against a
// simulated timeline in tests.
package clock

import (
	"context"
	"sync"
	"time"
)

// Clock provides the time operations used by sessions and simulated devices.
type Clock interface {
	// Now returns the current time.
	Now() time.Time
	// Since returns the time elapsed since t.
	Since(t time.Time) time.Duration
	// Sleep blocks for d or until ctx is done.
	Sleep(ctx context.Context, d time.Duration) error
}

// Real implements Clock with the time package.
type Real struct{}

func (Real) Now() time.Time                  { return time.Now() }
func (Real) Since(t time.Time) time.Duration { return time.Since(t) }

func (Real) Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Sim is a simulated clock. Sleep returns immediately after advancing the
// simulated time by d, so a 300 s wait completes instantly.
type Sim struct {
	mu    sync.Mutex
	now   time.Time
	slept time.Duration
}

// NewSim returns a simulated clock starting at start.
func NewSim(start time.Time) *Sim {
	return &Sim{now: start}
}

func (s *Sim) Now() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.now
}

func (s *Sim) Since(t time.Time) time.Duration {
	return s.Now().Sub(t)
}

func (s *Sim) Sleep(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if d > 0 {
		s.Advance(d)
	}
	return nil
}

// Advance moves simulated time forward by d.
func (s *Sim) Advance(d time.Duration) {
	s.mu.Lock()
	s.now = s.now.Add(d)
	s.slept += d
	s.mu.Unlock()
}

// Elapsed reports the total simulated time advanced so far.
func (s *Sim) Elapsed() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.slept
}
