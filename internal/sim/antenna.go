// Package sim provides in-process simulated antennas, feeds and capture
// backends driven by a clock.Clock.
package sim

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/radioscope/capsession/internal/clock"
	"github.com/radioscope/capsession/internal/devices"
)

// DefaultPollInterval is how often Wait re-reads a sensor.
const DefaultPollInterval = 250 * time.Millisecond

// Antenna is a simulated antenna. It reaches pointing lock SlewTime after
// being put in POINT mode and finishes a loaded scan after its duration.
type Antenna struct {
	name  string
	clock clock.Clock

	mu           sync.Mutex
	slewTime     time.Duration
	pollInterval time.Duration
	stuck        bool
	stalled      bool
	mode         devices.Mode
	target       string
	strategy     devices.DriveStrategy
	scans        []ScanLoad
	scanDuration time.Duration
	pointedAt    time.Time
	scanningAt   time.Time
	calls        []string
}

func NewAntenna(name string, c clock.Clock, slewTime time.Duration) *Antenna {
	return &Antenna{
		name:         name,
		clock:        c,
		slewTime:     slewTime,
		pollInterval: DefaultPollInterval,
		mode:         devices.ModeStop,
	}
}

func (a *Antenna) Name() string { return a.name }

// SetStuck makes the antenna never reach pointing lock.
func (a *Antenna) SetStuck(stuck bool) {
	a.mu.Lock()
	a.stuck = stuck
	a.mu.Unlock()
}

// SetScanStalled makes loaded scans start but never finish.
func (a *Antenna) SetScanStalled(stalled bool) {
	a.mu.Lock()
	a.stalled = stalled
	a.mu.Unlock()
}

func (a *Antenna) record(format string, args ...any) {
	a.calls = append(a.calls, fmt.Sprintf(format, args...))
}

// Calls returns the commands received so far, oldest first.
func (a *Antenna) Calls() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]string(nil), a.calls...)
}

func (a *Antenna) Mode() devices.Mode {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.mode
}

func (a *Antenna) Target() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.target
}

func (a *Antenna) DriveStrategy() devices.DriveStrategy {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.strategy
}

// ScanLoad is one scan geometry loaded with ScanAsym.
type ScanLoad struct {
	StartX, StartY float64
	EndX, EndY     float64
	Duration       time.Duration
}

// LoadedScans returns every scan loaded so far, oldest first.
func (a *Antenna) LoadedScans() []ScanLoad {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]ScanLoad(nil), a.scans...)
}

func (a *Antenna) SetMode(ctx context.Context, mode devices.Mode) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	switch mode {
	case devices.ModeStop, devices.ModePoint, devices.ModeScan:
	default:
		return fmt.Errorf("unknown mode %q", mode)
	}
	a.record("mode %s", mode)
	now := a.clock.Now()
	if mode == devices.ModePoint && a.mode != devices.ModePoint {
		a.pointedAt = now
	}
	if mode == devices.ModeScan {
		a.scanningAt = now
	}
	a.mode = mode
	return nil
}

func (a *Antenna) SetTarget(ctx context.Context, description string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.record("target %s", description)
	a.target = description
	// A new target means a new slew.
	a.pointedAt = a.clock.Now()
	return nil
}

func (a *Antenna) SetDriveStrategy(ctx context.Context, strategy devices.DriveStrategy) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.record("drive_strategy %s", strategy)
	a.strategy = strategy
	return nil
}

func (a *Antenna) ScanAsym(ctx context.Context, startX, startY, endX, endY float64, duration time.Duration) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.record("scan_asym %g,%g %g,%g %s", startX, startY, endX, endY, duration)
	a.scans = append(a.scans, ScanLoad{StartX: startX, StartY: startY, EndX: endX, EndY: endY, Duration: duration})
	a.scanDuration = duration
	a.scanningAt = time.Time{}
	// Moving to the start of a new scan is another slew.
	a.pointedAt = a.clock.Now()
	return nil
}

func (a *Antenna) PointingLock(ctx context.Context) (bool, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.onTargetLocked(), nil
}

func (a *Antenna) onTargetLocked() bool {
	if a.stuck || a.mode != devices.ModePoint {
		return false
	}
	return a.clock.Since(a.pointedAt) >= a.slewTime
}

func (a *Antenna) ScanStatus(ctx context.Context) (devices.ScanStatus, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.scanStatusLocked(), nil
}

func (a *Antenna) scanStatusLocked() devices.ScanStatus {
	if a.mode != devices.ModeScan || a.scanningAt.IsZero() {
		return devices.ScanBefore
	}
	if a.stalled || a.clock.Since(a.scanningAt) < a.scanDuration {
		return devices.ScanDuring
	}
	return devices.ScanAfter
}

func (a *Antenna) sensor(s devices.Sensor) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	switch s {
	case devices.SensorLock:
		return fmt.Sprint(a.onTargetLocked()), nil
	case devices.SensorScanStatus:
		return string(a.scanStatusLocked()), nil
	}
	return "", fmt.Errorf("unknown sensor %q", s)
}

// Wait polls sensor on the antenna's clock until it reads want or timeout
// elapses.
func (a *Antenna) Wait(ctx context.Context, s devices.Sensor, want string, timeout time.Duration) (bool, error) {
	deadline := a.clock.Now().Add(timeout)
	for {
		v, err := a.sensor(s)
		if err != nil {
			return false, err
		}
		if v == want {
			return true, nil
		}
		remaining := deadline.Sub(a.clock.Now())
		if remaining <= 0 {
			return false, nil
		}
		if err := a.clock.Sleep(ctx, min(a.pollInterval, remaining)); err != nil {
			return false, err
		}
	}
}

// Feed is a simulated feed that records noise diode switching.
type Feed struct {
	clock clock.Clock

	mu     sync.Mutex
	events []NoiseEvent
}

// NoiseEvent is one noise source switch.
type NoiseEvent struct {
	Source devices.NoiseSource
	On     bool
	At     time.Time
}

func NewFeed(c clock.Clock) *Feed { return &Feed{clock: c} }

func (f *Feed) SetNoiseSource(ctx context.Context, source devices.NoiseSource, on bool, timing string, duration time.Duration) error {
	if source != devices.NoisePin && source != devices.NoiseCoupler {
		return fmt.Errorf("unknown noise source %q", source)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, NoiseEvent{Source: source, On: on, At: f.clock.Now()})
	return nil
}

func (f *Feed) Events() []NoiseEvent {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]NoiseEvent(nil), f.events...)
}

// Downconverter remembers the last LO1 frequency it was given.
type Downconverter struct {
	mu  sync.Mutex
	lo1 float64
}

func (d *Downconverter) SetLO1Frequency(ctx context.Context, mhz float64) error {
	if mhz <= 0 {
		return fmt.Errorf("invalid LO1 frequency %g MHz", mhz)
	}
	d.mu.Lock()
	d.lo1 = mhz
	d.mu.Unlock()
	return nil
}

func (d *Downconverter) LO1() float64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.lo1
}
