package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"text/tabwriter"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/radioscope/capsession/internal/agent"
	"github.com/radioscope/capsession/internal/clock"
	"github.com/radioscope/capsession/internal/core"
	"github.com/radioscope/capsession/internal/devices"
	"github.com/radioscope/capsession/internal/sim"
	"github.com/radioscope/capsession/internal/telemetry"
	"github.com/radioscope/capsession/pkg/api"
)

// runOptions selects the backend and monitoring for a plan run. Fast runs the
// simulated antennas on a virtual clock, so holds and slews complete at once.
type runOptions struct {
	AgentURL string
	Monitor  string
	Fast     bool
}

// Run an observation plan
func newRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run an observation plan in one capture session",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			planPath, _ := cmd.Flags().GetString("plan")
			plan, err := api.LoadPlan(planPath)
			if err != nil {
				return err
			}
			opts := runOptions{AgentURL: cfg.Agent.URL, Monitor: cfg.Monitoring.Addr}
			if v, _ := cmd.Flags().GetString("agent"); v != "" {
				opts.AgentURL = v
			}
			if v, _ := cmd.Flags().GetString("monitor"); v != "" {
				opts.Monitor = v
			}
			opts.Fast, _ = cmd.Flags().GetBool("fast")

			results, err := runPlan(cmd.Context(), cfg, plan, opts)
			printResults(cmd.OutOrStdout(), results)
			return err
		},
	}
	cmd.Flags().String("plan", "", "observation plan (YAML)")
	cmd.Flags().String("agent", "", "capture agent URL (defaults to agent.url, else an in-process simulated backend)")
	cmd.Flags().String("monitor", "", "serve /health and /metrics on this address while the plan runs")
	cmd.Flags().Bool("fast", false, "run simulated antennas on a virtual clock")
	_ = cmd.MarkFlagRequired("plan")
	return cmd
}

// sessionConfig overlays the plan's session block on the configured session.
func sessionConfig(base core.SessionConfig, p api.SessionSpec) core.SessionConfig {
	if p.ExperimentID != "" {
		base.ExperimentID = p.ExperimentID
	}
	if p.Observer != "" {
		base.Observer = p.Observer
	}
	if p.Description != "" {
		base.Description = p.Description
	}
	if p.Antennas != "" {
		base.Antennas = p.Antennas
	}
	if p.CentreFreqMHz != 0 {
		base.CentreFreqMHz = p.CentreFreqMHz
	}
	if p.DumpRateHz != 0 {
		base.DumpRateHz = p.DumpRateHz
	}
	if p.RecordSlews != nil {
		base.RecordSlews = *p.RecordSlews
	}
	if p.OutputDir != "" {
		base.OutputDir = p.OutputDir
	}
	return base
}

func newAgentClient(cfg core.Config, url string) (*agent.Client, error) {
	httpClient := &http.Client{Timeout: 30 * time.Second}
	if cfg.Agent.CACert != "" || cfg.Agent.ClientCert != "" {
		tlsCfg, err := agent.ClientTLSConfig(cfg.Agent.CACert, cfg.Agent.ClientCert, cfg.Agent.ClientKey)
		if err != nil {
			return nil, err
		}
		httpClient.Transport = &http.Transport{TLSClientConfig: tlsCfg}
	}
	return agent.NewClient(url, cfg.Agent.Token, httpClient), nil
}

func runPlan(ctx context.Context, cfg core.Config, plan api.Plan, opts runOptions) ([]api.StepResult, error) {
	scfg := sessionConfig(cfg.Session, plan.Session)
	if err := scfg.Validate(); err != nil {
		return nil, fmt.Errorf("session config: %w", err)
	}

	var clk clock.Clock = clock.Real{}
	if opts.Fast {
		clk = clock.NewSim(time.Now())
	}

	var store *sim.Store
	if cfg.Sim.StorePath != "" && opts.AgentURL == "" {
		var err error
		if store, err = sim.NewStore(cfg.Sim.StorePath); err != nil {
			return nil, err
		}
		defer store.Close()
	}
	arr := sim.NewArray(clk, api.Seconds(cfg.Sim.SlewSeconds), store, cfg.Sim.Antennas...)

	var backend devices.Backend = arr.Backend
	if opts.AgentURL != "" {
		client, err := newAgentClient(cfg, opts.AgentURL)
		if err != nil {
			return nil, err
		}
		hb, err := client.Heartbeat(ctx)
		if err != nil {
			return nil, fmt.Errorf("capture agent unreachable: %w", err)
		}
		log.Info().Str("agent", opts.AgentURL).Str("host", hb.Host).Str("version", hb.Version).Msg("Using remote capture agent")
		backend = client
	}

	metrics, err := telemetry.NewSessionMetrics(prometheus.NewRegistry(), telemetry.GetGlobal())
	if err != nil {
		return nil, err
	}
	if opts.Monitor != "" {
		ms := telemetry.NewMonitoringServer(opts.Monitor, telemetry.GetGlobal(), metrics)
		for name, check := range telemetry.DefaultHealthChecks() {
			ms.RegisterHealthCheck(name, check)
		}
		ms.RegisterHealthCheck("backend", telemetry.CheckFunc(5*time.Second, func(ctx context.Context) error {
			_, err := backend.Capturing(ctx)
			return err
		}))
		go func() {
			if err := ms.Start(); err != nil {
				log.Error().Err(err).Msg("Monitoring server failed")
			}
		}()
		defer func() {
			sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = ms.Shutdown(sctx)
		}()
	}

	results := make([]api.StepResult, len(plan.Steps))
	for i, st := range plan.Steps {
		results[i] = api.StepResult{Index: i + 1, Kind: st.Kind, Target: st.Target, Status: api.RunPending}
	}
	err = core.Run(ctx, arr.Registry, backend, core.ParseAntennaSpec(scfg.Antennas), scfg,
		func(ctx context.Context, s *core.Session) error {
			for i, st := range plan.Steps {
				results[i].Status = api.RunRunning
				start := clk.Now()
				err := runStep(ctx, s, st)
				results[i].Elapsed = clk.Since(start)
				if err != nil {
					results[i].Status = api.RunFailed
					results[i].Error = err.Error()
					return fmt.Errorf("step %d (%s): %w", i+1, st.Kind, err)
				}
				results[i].Status = api.RunSucceeded
			}
			return nil
		},
		core.WithClock(clk), core.WithObserver(metrics))
	return results, err
}

func axis(s string) core.Axis {
	if s == "elevation" {
		return core.Elevation
	}
	return core.Azimuth
}

func rasterOptions(st api.Step) core.RasterOptions {
	return core.RasterOptions{
		NumScans:      st.NumScans,
		ScanDuration:  api.Seconds(st.ScanDurationS),
		Extent:        st.Extent,
		Spacing:       st.Spacing,
		Axis:          axis(st.Axis),
		DriveStrategy: devices.DriveStrategy(st.DriveStrategy),
		Label:         st.Label,
	}
}

// runStep maps one plan step onto the matching session operation.
func runStep(ctx context.Context, s *core.Session, st api.Step) error {
	target := core.NewTarget(st.Target)
	switch st.Kind {
	case api.StepTrack:
		return s.Track(ctx, target, core.TrackOptions{
			Duration:      api.Seconds(st.DurationS),
			DriveStrategy: devices.DriveStrategy(st.DriveStrategy),
			Label:         st.Label,
		})
	case api.StepScan:
		return s.Scan(ctx, target, core.ScanOptions{
			Duration:      api.Seconds(st.DurationS),
			Start:         st.Start,
			End:           st.End,
			Axis:          axis(st.Axis),
			DriveStrategy: devices.DriveStrategy(st.DriveStrategy),
			Label:         st.Label,
		})
	case api.StepRaster:
		return s.RasterScan(ctx, target, rasterOptions(st))
	case api.StepHolography:
		return s.HolographyScan(ctx, core.NamedCSV(st.ScanAntennas), target, rasterOptions(st))
	case api.StepNoiseDiode:
		return s.FireNoiseDiode(ctx, core.NoiseDiodeOptions{
			Source: devices.NoiseSource(st.Source),
			On:     api.Seconds(st.OnS),
			Off:    api.Seconds(st.OffS),
		})
	default:
		return fmt.Errorf("unknown step kind %q", st.Kind)
	}
}

func printResults(w io.Writer, results []api.StepResult) {
	if len(results) == 0 {
		return
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "STEP\tKIND\tTARGET\tSTATUS\tELAPSED\tERROR")
	for _, r := range results {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\t%s\n", r.Index, r.Kind, r.Target, r.Status, r.Elapsed.Round(time.Millisecond), r.Error)
	}
	_ = tw.Flush()
}
