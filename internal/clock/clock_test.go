package clock

import (
	"context"
	"testing"
	"time"
)

func TestRealSleepHonoursContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := (Real{}).Sleep(ctx, time.Hour); err != context.Canceled {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestRealSleepShort(t *testing.T) {
	start := time.Now()
	if err := (Real{}).Sleep(context.Background(), 5*time.Millisecond); err != nil {
		t.Fatalf("sleep: %v", err)
	}
	if time.Since(start) < 5*time.Millisecond {
		t.Errorf("slept less than requested")
	}
}

func TestSimSleepAdvances(t *testing.T) {
	start := time.Date(2026, 1, 15, 10, 30, 0, 0, time.UTC)
	c := NewSim(start)

	if err := c.Sleep(context.Background(), 300*time.Second); err != nil {
		t.Fatalf("sleep: %v", err)
	}
	if got := c.Since(start); got != 300*time.Second {
		t.Errorf("expected 300s elapsed, got %v", got)
	}
	c.Advance(time.Minute)
	if got := c.Elapsed(); got != 6*time.Minute {
		t.Errorf("expected 6m total, got %v", got)
	}
	if !c.Now().Equal(start.Add(6 * time.Minute)) {
		t.Errorf("unexpected now %v", c.Now())
	}
}

func TestSimSleepCancelled(t *testing.T) {
	c := NewSim(time.Time{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := c.Sleep(ctx, time.Second); err == nil {
		t.Fatalf("expected error from cancelled context")
	}
	if c.Elapsed() != 0 {
		t.Errorf("cancelled sleep must not advance time")
	}
}
