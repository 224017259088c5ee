package devices

import (
	"context"
	"strings"
	"time"
)

// Mode is an antenna pointing mode.
type Mode string

const (
	ModeStop  Mode = "STOP"
	ModePoint Mode = "POINT"
	ModeScan  Mode = "SCAN"
)

// DriveStrategy resolves azimuth-wrap ambiguity when slewing to a target.
type DriveStrategy string

const (
	LongestTrack DriveStrategy = "longest-track"
	ShortestSlew DriveStrategy = "shortest-slew"
)

// ScanStatus reports progress of a commanded scan.
type ScanStatus string

const (
	ScanBefore ScanStatus = "before"
	ScanDuring ScanStatus = "during"
	ScanAfter  ScanStatus = "after"
)

// Sensor names accepted by Antenna.Wait.
type Sensor string

const (
	SensorLock       Sensor = "lock"
	SensorScanStatus Sensor = "scan_status"
)

// Expected sensor values used with Wait.
const (
	LockTrue = "true"
)

// NoiseSource selects a noise diode in the feed electronics.
type NoiseSource string

const (
	// NoisePin sits in the feed horn and injects a high-level signal.
	NoisePin NoiseSource = "pin"
	// NoiseCoupler couples in after the feed at a much lower level.
	NoiseCoupler NoiseSource = "coupler"
)

// Antenna is one steerable antenna device.
type Antenna interface {
	Name() string
	SetMode(ctx context.Context, mode Mode) error
	SetTarget(ctx context.Context, description string) error
	SetDriveStrategy(ctx context.Context, strategy DriveStrategy) error
	// ScanAsym loads a scan from (startX, startY) to (endX, endY) in projected
	// offsets (degrees) lasting duration. The antenna moves to the start on
	// POINT and performs the scan on SCAN.
	ScanAsym(ctx context.Context, startX, startY, endX, endY float64, duration time.Duration) error
	PointingLock(ctx context.Context) (bool, error)
	ScanStatus(ctx context.Context) (ScanStatus, error)
	// Wait blocks until sensor reports want or timeout elapses. It returns
	// false on timeout.
	Wait(ctx context.Context, sensor Sensor, want string, timeout time.Duration) (bool, error)
}

// SetupParams configures a backend before the first capture.
type SetupParams struct {
	OutputDir     string
	ExperimentID  string
	Observer      string
	Description   string
	DumpPeriod    time.Duration
	EffectiveLOHz float64
}

// Backend is the correlator/recording backend control surface.
type Backend interface {
	CaptureStart(ctx context.Context) error
	CaptureStop(ctx context.Context) error
	Capturing(ctx context.Context) (bool, error)
	WriteOutput(ctx context.Context, enabled bool) error
	NewCompoundScan(ctx context.Context, target, label, firstScanLabel string) error
	NewScan(ctx context.Context, label string) error
	SetTarget(ctx context.Context, description string) error
	Setup(ctx context.Context, params SetupParams) error
	CurrentFiles(ctx context.Context) ([]string, error)
}

// Feed is the feed electronics associated with one antenna.
type Feed interface {
	SetNoiseSource(ctx context.Context, source NoiseSource, on bool, timing string, duration time.Duration) error
}

// Downconverter sets the first local oscillator of the RF chain.
type Downconverter interface {
	SetLO1Frequency(ctx context.Context, mhz float64) error
}

// Unaugmented maps a file name reported while capture is running to the name
// it has once capture stops.
func Unaugmented(name string) string {
	return strings.ReplaceAll(name, "writing", "unaugmented")
}
