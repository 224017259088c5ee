package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/radioscope/capsession/internal/agent"
	"github.com/radioscope/capsession/internal/clock"
	"github.com/radioscope/capsession/internal/core"
	"github.com/radioscope/capsession/internal/sim"
	"github.com/radioscope/capsession/internal/telemetry"
)

var version = "0.3.0"

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "capture-agent",
		Short:         "Serve a simulated correlator backend over HTTP",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			levelStr, _ := cmd.Flags().GetString("log")
			if level, err := zerolog.ParseLevel(levelStr); err == nil && levelStr != "" {
				zerolog.SetGlobalLevel(level)
			}
			cfgPath, _ := cmd.Flags().GetString("config")
			cfg, err := core.LoadConfig(cfgPath)
			if err != nil {
				return err
			}
			if addr, _ := cmd.Flags().GetString("listen"); addr != "" {
				cfg.Agent.Listen = addr
			}
			return serve(cmd.Context(), cfg)
		},
	}
	cmd.Flags().StringP("log", "l", "info", "Set log level. Available: trace, debug, info, warn, error, fatal")
	cmd.Flags().String("config", "", "config file")
	cmd.Flags().String("listen", "", "listen address (defaults to agent.listen)")
	return cmd
}

func serve(ctx context.Context, cfg core.Config) error {
	telemetry.InitGlobal(true, time.Minute)
	defer telemetry.Shutdown()

	var store *sim.Store
	if cfg.Sim.StorePath != "" {
		var err error
		if store, err = sim.NewStore(cfg.Sim.StorePath); err != nil {
			return err
		}
		defer store.Close()
		log.Info().Str("path", cfg.Sim.StorePath).Msg("Recording capture structure")
	}
	srv := &agent.Server{Version: version, Backend: sim.NewBackend(clock.Real{}, store), Token: cfg.Agent.Token}

	if cfg.Monitoring.Addr != "" {
		ms := telemetry.NewMonitoringServer(cfg.Monitoring.Addr, telemetry.GetGlobal(), nil)
		for name, check := range telemetry.DefaultHealthChecks() {
			ms.RegisterHealthCheck(name, check)
		}
		if store != nil {
			ms.RegisterHealthCheck("store", telemetry.CheckFunc(2*time.Second, store.Ping))
		}
		go func() {
			if err := ms.Start(); err != nil {
				log.Error().Err(err).Msg("Monitoring server failed")
			}
		}()
		defer ms.Shutdown(context.Background())
	}

	errc := make(chan error, 1)
	go func() {
		tlsCfg := agent.LoadMTLSConfig()
		if tlsCfg.Enabled() {
			errc <- srv.ListenAndServeTLS(cfg.Agent.Listen, tlsCfg)
			return
		}
		errc <- srv.ListenAndServe(cfg.Agent.Listen)
	}()

	select {
	case err := <-errc:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}
	log.Info().Msg("capture-agent shutting down")
	sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(sctx)
}

func main() {
	zerolog.TimeFieldFormat = time.RFC3339Nano
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	root := newRootCmd()
	root.SetContext(ctx)
	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
