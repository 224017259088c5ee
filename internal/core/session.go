package core

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/radioscope/capsession/internal/clock"
	"github.com/radioscope/capsession/internal/devices"
)

// Axis selects which antenna axis sweeps during a scan.
type Axis int

const (
	Azimuth Axis = iota
	Elevation
)

func (a Axis) String() string {
	if a == Elevation {
		return "elevation"
	}
	return "azimuth"
}

// TrackOptions configures Session.Track. Zero values take the defaults.
type TrackOptions struct {
	Duration      time.Duration
	DriveStrategy devices.DriveStrategy
	Label         string
}

func (o TrackOptions) withDefaults() TrackOptions {
	if o.Duration == 0 {
		o.Duration = 20 * time.Second
	}
	if o.DriveStrategy == "" {
		o.DriveStrategy = devices.LongestTrack
	}
	if o.Label == "" {
		o.Label = "track"
	}
	return o
}

// ScanOptions configures Session.Scan. Start and End are offsets in degrees
// from the target along Axis; leaving both at zero scans from -2 to +2.
type ScanOptions struct {
	Duration      time.Duration
	Start         float64
	End           float64
	Axis          Axis
	DriveStrategy devices.DriveStrategy
	Label         string
}

func (o ScanOptions) withDefaults() ScanOptions {
	if o.Duration == 0 {
		o.Duration = 20 * time.Second
	}
	if o.Start == 0 && o.End == 0 {
		o.Start, o.End = -2.0, 2.0
	}
	if o.DriveStrategy == "" {
		o.DriveStrategy = devices.ShortestSlew
	}
	if o.Label == "" {
		o.Label = "scan"
	}
	return o
}

// RasterOptions configures Session.RasterScan and Session.HolographyScan.
type RasterOptions struct {
	NumScans      int
	ScanDuration  time.Duration
	Extent        float64
	Spacing       float64
	Axis          Axis
	DriveStrategy devices.DriveStrategy
	Label         string
}

func (o RasterOptions) withDefaults(label string) RasterOptions {
	if o.NumScans == 0 {
		o.NumScans = 3
	}
	if o.ScanDuration == 0 {
		o.ScanDuration = 20 * time.Second
	}
	if o.Extent == 0 {
		o.Extent = 4.0
	}
	if o.Spacing == 0 {
		o.Spacing = 0.5
	}
	if o.DriveStrategy == "" {
		o.DriveStrategy = devices.ShortestSlew
	}
	if o.Label == "" {
		o.Label = label
	}
	return o
}

// NoiseDiodeOptions configures Session.FireNoiseDiode.
type NoiseDiodeOptions struct {
	Source devices.NoiseSource
	On     time.Duration
	Off    time.Duration
}

func (o NoiseDiodeOptions) withDefaults() NoiseDiodeOptions {
	if o.Source == "" {
		o.Source = devices.NoisePin
	}
	if o.On == 0 {
		o.On = 5 * time.Second
	}
	if o.Off == 0 {
		o.Off = 5 * time.Second
	}
	return o
}

// Option customises a Session at construction.
type Option func(*Session)

// WithClock replaces the wall clock used for holds and timing.
func WithClock(c clock.Clock) Option {
	return func(s *Session) { s.clock = c }
}

func WithLogger(l zerolog.Logger) Option {
	return func(s *Session) { s.logger = l }
}

// WithObserver reports operation and segment outcomes to o.
func WithObserver(o Observer) Option {
	return func(s *Session) { s.observer = o }
}

// Session owns one recording session: a resolved antenna group and a capture
// backend. Operations run one at a time; after Shutdown every operation
// returns ErrSessionClosed.
type Session struct {
	mu       sync.Mutex
	id       string
	cfg      SessionConfig
	reg      *devices.Registry
	ants     *Group
	backend  *CaptureBackend
	clock    clock.Clock
	observer Observer
	metrics  *Metrics
	logger   zerolog.Logger

	closed       bool
	shutdownOnce sync.Once
	shutdownErr  error
}

// New resolves ants against reg, brings the backend to a clean idle state and
// configures it for cfg. No device is commanded if the antennas cannot be
// resolved.
func New(ctx context.Context, reg *devices.Registry, backend devices.Backend, ants AntennaSpec, cfg SessionConfig, opts ...Option) (*Session, error) {
	group, err := Resolve(reg, ants, "ants")
	if err != nil {
		return nil, err
	}
	if cfg.ExperimentID == "" {
		cfg.ExperimentID = uuid.NewString()
	}
	if cfg.DumpRateHz <= 0 {
		cfg.DumpRateHz = DefaultSessionConfig().DumpRateHz
	}
	if cfg.CentreFreqMHz <= 0 {
		cfg.CentreFreqMHz = DefaultSessionConfig().CentreFreqMHz
	}

	s := &Session{
		id:       cfg.ExperimentID,
		cfg:      cfg,
		reg:      reg,
		ants:     group,
		backend:  NewCaptureBackend(backend),
		clock:    clock.Real{},
		observer: nopObserver{},
		metrics:  NewMetrics(),
		logger:   log.With().Str("session", cfg.ExperimentID).Logger(),
	}
	for _, opt := range opts {
		opt(s)
	}

	capturing, err := s.backend.IsCapturing(ctx)
	if err != nil {
		return nil, err
	}
	if capturing {
		s.logger.Warn().Msg("Backend was left capturing; stopping it before setup")
		if err := s.backend.Stop(ctx); err != nil {
			return nil, err
		}
	}

	if dc := reg.Downconverter(); dc != nil {
		lo1 := 4200.0 + cfg.CentreFreqMHz
		if err := dc.SetLO1Frequency(ctx, lo1); err != nil {
			return nil, fmt.Errorf("set LO1 frequency to %g MHz: %w", lo1, err)
		}
	}
	params := devices.SetupParams{
		OutputDir:     cfg.OutputDir,
		ExperimentID:  cfg.ExperimentID,
		Observer:      cfg.Observer,
		Description:   cfg.Description,
		DumpPeriod:    cfg.DumpPeriod(),
		EffectiveLOHz: (cfg.CentreFreqMHz - 200.0) * 1e6,
	}
	if err := s.backend.Setup(ctx, params); err != nil {
		return nil, err
	}
	if err := s.backend.ResumeOutput(ctx); err != nil {
		return nil, err
	}

	s.logger.Info().
		Str("observer", cfg.Observer).
		Str("description", cfg.Description).
		Strs("antennas", group.Names()).
		Float64("centre_freq_mhz", cfg.CentreFreqMHz).
		Dur("dump_period", cfg.DumpPeriod()).
		Bool("record_slews", cfg.RecordSlews).
		Msg("New capture session")
	return s, nil
}

// Run creates a session, passes it to fn and always shuts it down afterwards,
// including when fn fails or panics.
func Run(ctx context.Context, reg *devices.Registry, backend devices.Backend, ants AntennaSpec, cfg SessionConfig, fn func(ctx context.Context, s *Session) error, opts ...Option) (err error) {
	s, err := New(ctx, reg, backend, ants, cfg, opts...)
	if err != nil {
		return err
	}
	defer func() {
		err = errors.Join(err, s.Shutdown(context.WithoutCancel(ctx)))
	}()
	return fn(ctx, s)
}

func (s *Session) ID() string { return s.id }

// Antennas returns the session's antenna group.
func (s *Session) Antennas() *Group { return s.ants }

func (s *Session) RecordSlews() bool { return s.cfg.RecordSlews }

func (s *Session) Metrics() MetricsSnapshot { return s.metrics.Snapshot() }

// Track points all antennas at target and records it for opts.Duration.
func (s *Session) Track(ctx context.Context, target Target, opts TrackOptions) error {
	opts = opts.withDefaults()
	if err := checkDuration("track", opts.Duration); err != nil {
		return err
	}
	return s.run(ctx, "track", func(ctx context.Context) error {
		if err := s.prepare(ctx, "track", target, opts.DriveStrategy, opts.Label); err != nil {
			return err
		}
		s.logger.Info().Str("target", target.Name).Msg("Slewing to target")
		if s.cfg.RecordSlews {
			if err := s.backend.Start(ctx); err != nil {
				return err
			}
		}
		if err := s.ants.SetMode(ctx, devices.ModePoint); err != nil {
			return err
		}
		if err := s.ants.WaitLock(ctx, DefaultWaitTimeout); err != nil {
			return fmt.Errorf("slew to %s: %w", target.Name, err)
		}

		s.logger.Info().Str("target", target.Name).Dur("duration", opts.Duration).Msg("Tracking target")
		if s.cfg.RecordSlews {
			if err := s.newScan(ctx, "track", LabelScan); err != nil {
				return err
			}
		} else {
			if err := s.backend.ResumeOutput(ctx); err != nil {
				return err
			}
			if err := s.backend.Start(ctx); err != nil {
				return err
			}
		}
		if err := s.clock.Sleep(ctx, opts.Duration); err != nil {
			return fmt.Errorf("track %s: %w", target.Name, err)
		}
		if !s.cfg.RecordSlews {
			return s.backend.PauseOutput(ctx)
		}
		return nil
	})
}

// Scan sweeps all antennas once through target along opts.Axis.
func (s *Session) Scan(ctx context.Context, target Target, opts ScanOptions) error {
	opts = opts.withDefaults()
	if err := checkDuration("scan", opts.Duration); err != nil {
		return err
	}
	seg := ScanSegment{
		Start:   Offset{X: opts.Start},
		End:     Offset{X: opts.End},
		Forward: opts.End >= opts.Start,
	}
	if opts.Axis == Elevation {
		seg.Start = Offset{Y: opts.Start}
		seg.End = Offset{Y: opts.End}
	}
	return s.run(ctx, "scan", func(ctx context.Context) error {
		if err := s.prepare(ctx, "scan", target, opts.DriveStrategy, opts.Label); err != nil {
			return err
		}
		return s.segment(ctx, "scan", target, 0, 1, seg, opts.Duration, s.ants)
	})
}

// RasterScan sweeps all antennas through a boustrophedon raster centred on
// target.
func (s *Session) RasterScan(ctx context.Context, target Target, opts RasterOptions) error {
	opts = opts.withDefaults("raster")
	segs, err := s.plan(opts)
	if err != nil {
		return err
	}
	return s.run(ctx, "raster_scan", func(ctx context.Context) error {
		if err := s.prepare(ctx, "raster_scan", target, opts.DriveStrategy, opts.Label); err != nil {
			return err
		}
		for i, seg := range segs {
			if err := s.segment(ctx, "raster_scan", target, i, len(segs), seg, opts.ScanDuration, s.ants); err != nil {
				return err
			}
		}
		return nil
	})
}

// HolographyScan rasters the scanAnts subset through target while the rest
// of the session's antennas keep tracking it.
func (s *Session) HolographyScan(ctx context.Context, scanAnts AntennaSpec, target Target, opts RasterOptions) error {
	opts = opts.withDefaults("holo")
	scanners, err := s.scanSubset(scanAnts)
	if err != nil {
		return err
	}
	segs, err := s.plan(opts)
	if err != nil {
		return err
	}
	return s.run(ctx, "holography_scan", func(ctx context.Context) error {
		if err := s.prepare(ctx, "holography_scan", target, opts.DriveStrategy, opts.Label); err != nil {
			return err
		}
		s.logger.Info().Strs("scanning", scanners.Names()).Strs("tracking", s.ants.Without(scanners)).
			Msg("Holography scan")
		for i, seg := range segs {
			if err := s.segment(ctx, "holography_scan", target, i, len(segs), seg, opts.ScanDuration, scanners); err != nil {
				return err
			}
		}
		return nil
	})
}

// FireNoiseDiode switches a calibration noise source on for opts.On and off
// for opts.Off on every antenna, inside a "cal" segment.
func (s *Session) FireNoiseDiode(ctx context.Context, opts NoiseDiodeOptions) error {
	opts = opts.withDefaults()
	if err := checkDuration("noise diode on", opts.On); err != nil {
		return err
	}
	if err := checkDuration("noise diode off", opts.Off); err != nil {
		return err
	}
	return s.run(ctx, "fire_noise_diode", func(ctx context.Context) error {
		feeds := make([]devices.Feed, 0, s.ants.Len())
		for _, name := range s.ants.Names() {
			f, err := s.reg.Feed(name)
			if err != nil {
				return err
			}
			feeds = append(feeds, f)
		}

		s.logger.Info().Str("source", string(opts.Source)).Dur("on", opts.On).Dur("off", opts.Off).
			Msg("Firing noise diode")
		if err := s.newScan(ctx, "fire_noise_diode", LabelCal); err != nil {
			return err
		}
		if err := switchNoise(ctx, feeds, opts.Source, true); err != nil {
			return err
		}
		if err := s.backend.ResumeOutput(ctx); err != nil {
			return err
		}
		if err := s.backend.Start(ctx); err != nil {
			return err
		}
		if err := s.clock.Sleep(ctx, opts.On); err != nil {
			return fmt.Errorf("noise diode on: %w", err)
		}
		if err := switchNoise(ctx, feeds, opts.Source, false); err != nil {
			return err
		}
		if err := s.clock.Sleep(ctx, opts.Off); err != nil {
			return fmt.Errorf("noise diode off: %w", err)
		}
		if !s.cfg.RecordSlews {
			return s.backend.PauseOutput(ctx)
		}
		return nil
	})
}

// Shutdown stops capture and logs the files written. It runs once; later
// calls return the first result.
func (s *Session) Shutdown(ctx context.Context) error {
	s.shutdownOnce.Do(func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		s.closed = true

		files, err := s.backend.CurrentFiles(ctx)
		if err != nil {
			s.logger.Warn().Err(err).Msg("Could not list capture files")
		}
		for _, f := range files {
			s.logger.Info().Str("file", devices.Unaugmented(f)).Msg("Scans complete, data captured")
		}
		s.shutdownErr = s.backend.Stop(ctx)
		if s.shutdownErr != nil {
			s.logger.Error().Err(s.shutdownErr).Msg("Capture stop failed")
		}
		m := s.metrics.Snapshot()
		s.logger.Info().Int64("operations", m.Operations).Int64("errors", m.Errors).
			Int64("segments", m.Segments).Msg("Ended capture session")
	})
	return s.shutdownErr
}

// Close shuts the session down with a background context.
func (s *Session) Close() error {
	return s.Shutdown(context.Background())
}

func (s *Session) run(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrSessionClosed
	}
	start := s.clock.Now()
	err := fn(ctx)
	d := s.clock.Since(start)
	s.metrics.RecordOperation(d, err)
	s.observer.OperationDone(op, d, err)
	if err != nil {
		s.logger.Error().Err(err).Str("operation", op).Msg("Operation failed")
	}
	return err
}

func (s *Session) firstLabel() string {
	if s.cfg.RecordSlews {
		return LabelSlew
	}
	return LabelScan
}

// prepare aims the whole group and opens a compound scan on target.
func (s *Session) prepare(ctx context.Context, op string, target Target, strategy devices.DriveStrategy, label string) error {
	if err := s.ants.SetDriveStrategy(ctx, strategy); err != nil {
		return err
	}
	if err := s.ants.SetTarget(ctx, target.Description); err != nil {
		return err
	}
	if err := s.backend.SetTarget(ctx, target); err != nil {
		return err
	}
	first := s.firstLabel()
	if err := s.backend.NewCompoundScan(ctx, target, label, first); err != nil {
		return err
	}
	s.segmentOpened(op, first)
	return nil
}

func (s *Session) newScan(ctx context.Context, op, label string) error {
	if err := s.backend.NewScan(ctx, label); err != nil {
		return err
	}
	s.segmentOpened(op, label)
	return nil
}

func (s *Session) segmentOpened(op, label string) {
	s.metrics.RecordSegment()
	s.observer.SegmentDone(op, label)
}

// segment records scan n of total: slew to the segment start with every
// antenna, then sweep scanners through it.
func (s *Session) segment(ctx context.Context, op string, target Target, n, total int, seg ScanSegment, duration time.Duration, scanners *Group) error {
	s.logger.Info().Str("target", target.Name).Int("scan", n+1).Int("of", total).
		Msg("Slewing to start of scan")
	if s.cfg.RecordSlews {
		if n > 0 {
			if err := s.newScan(ctx, op, LabelSlew); err != nil {
				return err
			}
		}
		if err := s.backend.Start(ctx); err != nil {
			return err
		}
	}
	if err := scanners.ScanAsym(ctx, seg.Start, seg.End, duration); err != nil {
		return err
	}
	if err := s.ants.SetMode(ctx, devices.ModePoint); err != nil {
		return err
	}
	if err := s.ants.WaitLock(ctx, DefaultWaitTimeout); err != nil {
		return fmt.Errorf("slew to start of scan %d: %w", n+1, err)
	}

	s.logger.Info().Str("target", target.Name).Int("scan", n+1).Int("of", total).
		Float64("stepping", seg.Stepping).Msg("Starting scan")
	if s.cfg.RecordSlews || n > 0 {
		if err := s.newScan(ctx, op, LabelScan); err != nil {
			return err
		}
	}
	if err := s.backend.ResumeOutput(ctx); err != nil {
		return err
	}
	if !s.cfg.RecordSlews {
		if err := s.backend.Start(ctx); err != nil {
			return err
		}
	}
	if err := scanners.SetMode(ctx, devices.ModeScan); err != nil {
		return err
	}
	if err := scanners.WaitScanComplete(ctx, DefaultWaitTimeout); err != nil {
		return fmt.Errorf("scan %d: %w", n+1, err)
	}
	if !s.cfg.RecordSlews {
		return s.backend.PauseOutput(ctx)
	}
	return nil
}

func checkDuration(what string, d time.Duration) error {
	if d <= 0 {
		return fmt.Errorf("%w: %s duration must be positive, got %s", ErrInvalidPlan, what, d)
	}
	return nil
}

func (s *Session) plan(opts RasterOptions) ([]ScanSegment, error) {
	if err := checkDuration("scan", opts.ScanDuration); err != nil {
		return nil, err
	}
	if opts.NumScans%2 == 0 {
		s.logger.Warn().Int("requested", opts.NumScans).Int("planned", opts.NumScans+1).
			Msg("Even scan count; raster gets an extra scan to stay symmetric about the target")
	}
	return Plan(opts.NumScans, opts.Extent, opts.Spacing, opts.Axis == Azimuth)
}

// scanSubset resolves the scanning antennas of a holography scan. They must
// be a non-empty proper subset of the session group.
func (s *Session) scanSubset(spec AntennaSpec) (*Group, error) {
	g, err := Resolve(s.reg, spec, "scan_ants")
	if errors.Is(err, ErrEmptyGroup) {
		return nil, &InvalidSubsetError{Reason: "no scanning antennas given"}
	}
	if err != nil {
		return nil, err
	}
	if !g.IsSubsetOf(s.ants) {
		return nil, &InvalidSubsetError{Reason: fmt.Sprintf("antennas %s are not in the session", strings.Join(g.Without(s.ants), ","))}
	}
	if g.Equal(s.ants) {
		return nil, &InvalidSubsetError{Reason: "at least one antenna must keep tracking the target"}
	}
	return g, nil
}

func switchNoise(ctx context.Context, feeds []devices.Feed, source devices.NoiseSource, on bool) error {
	var eg errgroup.Group
	for _, f := range feeds {
		eg.Go(func() error {
			return f.SetNoiseSource(ctx, source, on, "now", 0)
		})
	}
	if err := eg.Wait(); err != nil {
		return fmt.Errorf("switch noise source %s: %w", source, err)
	}
	return nil
}
