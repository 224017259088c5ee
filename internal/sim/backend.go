package sim

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/radioscope/capsession/internal/clock"
	"github.com/radioscope/capsession/internal/devices"
)

// Backend operation names, as recorded in Call.Op.
const (
	OpCaptureStart = "capture-start"
	OpCaptureStop  = "capture-stop"
	OpWriteOutput  = "write-output"
	OpCompoundScan = "compound-scan"
	OpScan         = "scan"
	OpTarget       = "target"
	OpSetup        = "setup"
	OpStatus       = "status"
	OpFiles        = "files"
)

// Call is one control call received by a simulated backend.
type Call struct {
	Op  string
	Arg string
}

// CompoundScan is a compound scan as the backend recorded it.
type CompoundScan struct {
	Target string
	Label  string
	Scans  []string
}

// Backend is a simulated correlator/recording backend. It writes nothing to
// disk except through an optional Store.
type Backend struct {
	clock clock.Clock
	store *Store

	mu          sync.Mutex
	calls       []Call
	failures    map[string]error
	params      devices.SetupParams
	capturing   bool
	writeOutput bool
	files       []string
	captureID   int64
	compounds   []CompoundScan
	compoundIDs []int64
}

// NewBackend returns a backend driven by c. store may be nil.
func NewBackend(c clock.Clock, store *Store) *Backend {
	return &Backend{clock: c, store: store, failures: map[string]error{}}
}

// Fail makes every later call of op return err. A nil err clears it.
func (b *Backend) Fail(op string, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err == nil {
		delete(b.failures, op)
		return
	}
	b.failures[op] = err
}

func (b *Backend) enter(op, arg string) error {
	b.calls = append(b.calls, Call{Op: op, Arg: arg})
	return b.failures[op]
}

func (b *Backend) Calls() []Call {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]Call(nil), b.calls...)
}

// Count returns how many times op was called, optionally with argument arg.
func (b *Backend) Count(op string, arg ...string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	n := 0
	for _, c := range b.calls {
		if c.Op == op && (len(arg) == 0 || c.Arg == arg[0]) {
			n++
		}
	}
	return n
}

func (b *Backend) IsWritingOutput() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.writeOutput
}

func (b *Backend) Params() devices.SetupParams {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.params
}

// CompoundScans returns every compound scan opened so far.
func (b *Backend) CompoundScans() []CompoundScan {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]CompoundScan, len(b.compounds))
	for i, c := range b.compounds {
		c.Scans = append([]string(nil), c.Scans...)
		out[i] = c
	}
	return out
}

func (b *Backend) CaptureStart(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.enter(OpCaptureStart, ""); err != nil {
		return err
	}
	if b.capturing {
		return nil
	}
	now := b.clock.Now()
	name := fmt.Sprintf("%d_%02d.writing.h5", now.Unix(), len(b.files)+1)
	if b.params.OutputDir != "" {
		name = filepath.Join(b.params.OutputDir, name)
	}
	if b.store != nil {
		id, err := b.store.StartCapture(ctx, b.params.ExperimentID, name, now)
		if err != nil {
			return err
		}
		b.captureID = id
	}
	b.files = append(b.files, name)
	b.capturing = true
	log.Debug().Str("file", name).Msg("Simulated capture started")
	return nil
}

func (b *Backend) CaptureStop(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.enter(OpCaptureStop, ""); err != nil {
		return err
	}
	if b.capturing && b.store != nil {
		if err := b.store.StopCapture(ctx, b.captureID, b.clock.Now()); err != nil {
			return err
		}
	}
	b.capturing = false
	b.captureID = 0
	return nil
}

func (b *Backend) Capturing(ctx context.Context) (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.enter(OpStatus, ""); err != nil {
		return false, err
	}
	return b.capturing, nil
}

func (b *Backend) WriteOutput(ctx context.Context, enabled bool) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.enter(OpWriteOutput, fmt.Sprint(enabled)); err != nil {
		return err
	}
	b.writeOutput = enabled
	return nil
}

func (b *Backend) NewCompoundScan(ctx context.Context, target, label, firstScanLabel string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.enter(OpCompoundScan, label); err != nil {
		return err
	}
	return b.openCompoundLocked(ctx, target, label, firstScanLabel)
}

func (b *Backend) openCompoundLocked(ctx context.Context, target, label, first string) error {
	var id int64
	if b.store != nil {
		var err error
		id, err = b.store.OpenCompoundScan(ctx, b.captureID, target, label, first, b.clock.Now())
		if err != nil {
			return err
		}
	}
	b.compounds = append(b.compounds, CompoundScan{Target: target, Label: label, Scans: []string{first}})
	b.compoundIDs = append(b.compoundIDs, id)
	return nil
}

// NewScan appends a scan to the open compound scan. Without one, an
// unlabelled compound scan is opened to hold it.
func (b *Backend) NewScan(ctx context.Context, label string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.enter(OpScan, label); err != nil {
		return err
	}
	if len(b.compounds) == 0 {
		log.Warn().Str("label", label).Msg("Scan started outside a compound scan")
		return b.openCompoundLocked(ctx, "", "", label)
	}
	last := len(b.compounds) - 1
	b.compounds[last].Scans = append(b.compounds[last].Scans, label)
	if b.store != nil {
		return b.store.AddScan(ctx, b.compoundIDs[last], label, b.clock.Now())
	}
	return nil
}

func (b *Backend) SetTarget(ctx context.Context, description string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.enter(OpTarget, description)
}

func (b *Backend) Setup(ctx context.Context, params devices.SetupParams) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.enter(OpSetup, params.ExperimentID); err != nil {
		return err
	}
	if params.DumpPeriod <= 0 {
		return fmt.Errorf("dump period must be positive, got %s", params.DumpPeriod)
	}
	b.params = params
	return nil
}

func (b *Backend) CurrentFiles(ctx context.Context) ([]string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.enter(OpFiles, ""); err != nil {
		return nil, err
	}
	return append([]string(nil), b.files...), nil
}
