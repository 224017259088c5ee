package core

import (
	"context"

	"github.com/rs/zerolog/log"

	"github.com/radioscope/capsession/internal/devices"
)

// Scan labels understood downstream when segmenting the recorded stream.
const (
	LabelSlew = "slew"
	LabelScan = "scan"
	LabelCal  = "cal"
)

// CaptureBackend is the control surface the session uses to drive one
// correlator/recording backend. Capture state is always read from the device.
type CaptureBackend struct {
	dev devices.Backend
}

func NewCaptureBackend(dev devices.Backend) *CaptureBackend {
	return &CaptureBackend{dev: dev}
}

func unavailable(op string, err error) error {
	if err == nil {
		return nil
	}
	return &BackendUnavailableError{Op: op, Err: err}
}

// IsCapturing queries the device for its current capture state.
func (b *CaptureBackend) IsCapturing(ctx context.Context) (bool, error) {
	capturing, err := b.dev.Capturing(ctx)
	if err != nil {
		return false, unavailable("query capturing", err)
	}
	return capturing, nil
}

// Start begins capturing unless the device already reports it is capturing.
func (b *CaptureBackend) Start(ctx context.Context) error {
	capturing, err := b.IsCapturing(ctx)
	if err != nil {
		return err
	}
	if capturing {
		return nil
	}
	log.Debug().Msg("Starting capture")
	return unavailable("capture start", b.dev.CaptureStart(ctx))
}

func (b *CaptureBackend) Stop(ctx context.Context) error {
	return unavailable("capture stop", b.dev.CaptureStop(ctx))
}

// PauseOutput stops samples being written to file while data keeps flowing.
func (b *CaptureBackend) PauseOutput(ctx context.Context) error {
	return unavailable("pause output", b.dev.WriteOutput(ctx, false))
}

func (b *CaptureBackend) ResumeOutput(ctx context.Context) error {
	return unavailable("resume output", b.dev.WriteOutput(ctx, true))
}

// NewCompoundScan opens a compound scan on target whose first scan segment
// is labelled firstScanLabel.
func (b *CaptureBackend) NewCompoundScan(ctx context.Context, target Target, label, firstScanLabel string) error {
	return unavailable("new compound scan", b.dev.NewCompoundScan(ctx, target.Description, label, firstScanLabel))
}

func (b *CaptureBackend) NewScan(ctx context.Context, label string) error {
	return unavailable("new scan", b.dev.NewScan(ctx, label))
}

// SetTarget sets the delay-tracking centre.
func (b *CaptureBackend) SetTarget(ctx context.Context, target Target) error {
	return unavailable("set target", b.dev.SetTarget(ctx, target.Description))
}

func (b *CaptureBackend) Setup(ctx context.Context, params devices.SetupParams) error {
	return unavailable("setup", b.dev.Setup(ctx, params))
}

func (b *CaptureBackend) CurrentFiles(ctx context.Context) ([]string, error) {
	files, err := b.dev.CurrentFiles(ctx)
	if err != nil {
		return nil, unavailable("current files", err)
	}
	return files, nil
}
