package api

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// v0 contains the observation plan format read by capctl.

// Plan is an observation script: one session and the steps run inside it.
type Plan struct {
	Session SessionSpec `json:"session" yaml:"session"`
	Steps   []Step      `json:"steps" yaml:"steps"`
}

// SessionSpec overrides the configured session. Empty fields keep the
// configured value.
type SessionSpec struct {
	ExperimentID  string  `json:"experiment_id,omitempty" yaml:"experiment_id"`
	Observer      string  `json:"observer,omitempty" yaml:"observer"`
	Description   string  `json:"description,omitempty" yaml:"description"`
	Antennas      string  `json:"antennas,omitempty" yaml:"antennas"`
	CentreFreqMHz float64 `json:"centre_freq_mhz,omitempty" yaml:"centre_freq_mhz"`
	DumpRateHz    float64 `json:"dump_rate_hz,omitempty" yaml:"dump_rate_hz"`
	RecordSlews   *bool   `json:"record_slews,omitempty" yaml:"record_slews"`
	OutputDir     string  `json:"output_dir,omitempty" yaml:"output_dir"`
}

type StepKind string

const (
	StepTrack      StepKind = "track"
	StepScan       StepKind = "scan"
	StepRaster     StepKind = "raster"
	StepHolography StepKind = "holography"
	StepNoiseDiode StepKind = "noise_diode"
)

// Step is one session operation. Zero numeric fields take the operation's
// defaults; durations are in seconds. ScanAntennas lists the holography
// scanning subset, comma separated.
type Step struct {
	Kind          StepKind `json:"kind" yaml:"kind"`
	Target        string   `json:"target,omitempty" yaml:"target"`
	DurationS     float64  `json:"duration_s,omitempty" yaml:"duration_s"`
	Start         float64  `json:"start,omitempty" yaml:"start"`
	End           float64  `json:"end,omitempty" yaml:"end"`
	Axis          string   `json:"axis,omitempty" yaml:"axis"`
	NumScans      int      `json:"num_scans,omitempty" yaml:"num_scans"`
	ScanDurationS float64  `json:"scan_duration_s,omitempty" yaml:"scan_duration_s"`
	Extent        float64  `json:"extent,omitempty" yaml:"extent"`
	Spacing       float64  `json:"spacing,omitempty" yaml:"spacing"`
	DriveStrategy string   `json:"drive_strategy,omitempty" yaml:"drive_strategy"`
	Label         string   `json:"label,omitempty" yaml:"label"`
	ScanAntennas  string   `json:"scan_antennas,omitempty" yaml:"scan_antennas"`
	Source        string   `json:"source,omitempty" yaml:"source"`
	OnS           float64  `json:"on_s,omitempty" yaml:"on_s"`
	OffS          float64  `json:"off_s,omitempty" yaml:"off_s"`
}

// Seconds converts a plan duration field.
func Seconds(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}

// Validate reports every problem with the step, prefixed by its position.
func (s Step) Validate(i int) error {
	var errs []error
	bad := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf("step %d (%s): "+format, append([]any{i + 1, s.Kind}, args...)...))
	}
	switch s.Kind {
	case StepTrack, StepScan, StepRaster, StepHolography:
		if s.Target == "" {
			bad("target is required")
		}
	case StepNoiseDiode:
		switch s.Source {
		case "", "pin", "coupler":
		default:
			bad("unknown noise source %q", s.Source)
		}
	case "":
		bad("kind is required")
	default:
		bad("unknown kind")
	}
	if s.Kind == StepHolography && s.ScanAntennas == "" {
		bad("scan_antennas is required")
	}
	switch s.Axis {
	case "", "azimuth", "elevation":
	default:
		bad("axis must be azimuth or elevation, got %q", s.Axis)
	}
	switch s.DriveStrategy {
	case "", "longest-track", "shortest-slew":
	default:
		bad("unknown drive strategy %q", s.DriveStrategy)
	}
	for _, f := range []struct {
		name string
		v    float64
	}{
		{"duration_s", s.DurationS}, {"scan_duration_s", s.ScanDurationS},
		{"extent", s.Extent}, {"spacing", s.Spacing}, {"on_s", s.OnS}, {"off_s", s.OffS},
	} {
		if f.v < 0 {
			bad("%s must not be negative", f.name)
		}
	}
	if s.NumScans < 0 {
		bad("num_scans must not be negative")
	}
	return errors.Join(errs...)
}

func (p Plan) Validate() error {
	if len(p.Steps) == 0 {
		return errors.New("plan has no steps")
	}
	var errs []error
	for i, s := range p.Steps {
		errs = append(errs, s.Validate(i))
	}
	return errors.Join(errs...)
}

// ParsePlan decodes and validates a YAML plan.
func ParsePlan(data []byte) (Plan, error) {
	var p Plan
	if err := yaml.Unmarshal(data, &p); err != nil {
		return p, fmt.Errorf("parse plan: %w", err)
	}
	if err := p.Validate(); err != nil {
		return p, fmt.Errorf("invalid plan: %w", err)
	}
	return p, nil
}

// LoadPlan reads a YAML plan from path.
func LoadPlan(path string) (Plan, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Plan{}, fmt.Errorf("read plan: %w", err)
	}
	return ParsePlan(data)
}

type RunStatus string

const (
	RunPending   RunStatus = "pending"
	RunRunning   RunStatus = "running"
	RunSucceeded RunStatus = "succeeded"
	RunFailed    RunStatus = "failed"
)

// StepResult records how one step of a plan ended.
type StepResult struct {
	Index   int           `json:"index" yaml:"index"`
	Kind    StepKind      `json:"kind" yaml:"kind"`
	Target  string        `json:"target,omitempty" yaml:"target"`
	Status  RunStatus     `json:"status" yaml:"status"`
	Elapsed time.Duration `json:"elapsed" yaml:"elapsed"`
	Error   string        `json:"error,omitempty" yaml:"error"`
}
