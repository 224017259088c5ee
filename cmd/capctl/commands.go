package main

import (
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/radioscope/capsession/internal/archive"
	"github.com/radioscope/capsession/internal/core"
)

// Print a raster plan
func newPlanCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "plan",
		Short: "Print the scan segments of a raster",
		RunE: func(cmd *cobra.Command, args []string) error {
			n, _ := cmd.Flags().GetInt("segments")
			extent, _ := cmd.Flags().GetFloat64("extent")
			spacing, _ := cmd.Flags().GetFloat64("spacing")
			elevation, _ := cmd.Flags().GetBool("elevation")
			segs, err := core.Plan(n, extent, spacing, !elevation)
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "SCAN\tSCANNING\tSTEPPING\tSTART\tEND\tDIRECTION")
			for _, s := range segs {
				dir := "forward"
				if !s.Forward {
					dir = "reverse"
				}
				fmt.Fprintf(tw, "%d\t%+.3f\t%+.3f\t(%+.3f, %+.3f)\t(%+.3f, %+.3f)\t%s\n",
					s.Index+1, s.Scanning, s.Stepping, s.Start.X, s.Start.Y, s.End.X, s.End.Y, dir)
			}
			return tw.Flush()
		},
	}
	cmd.Flags().Int("segments", 3, "number of scans (odd counts stay symmetric about the target)")
	cmd.Flags().Float64("extent", 4.0, "scan length in degrees")
	cmd.Flags().Float64("spacing", 0.5, "spacing between scans in degrees")
	cmd.Flags().Bool("elevation", false, "scan in elevation and step in azimuth")
	return cmd
}

// Retrieve capture files from the backend host
func newFetchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "fetch",
		Short: "Copy capture files off the backend host and verify them",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			files, _ := cmd.Flags().GetStringSlice("files")
			dest, _ := cmd.Flags().GetString("dest")
			if dest == "" {
				dest = cfg.Archive.DestDir
			}
			if cfg.Archive.Host == "" {
				return errors.New("archive.host is not configured")
			}
			signer, err := archive.LoadPrivateKeySigner(cfg.Archive.KeyPath)
			if err != nil {
				return err
			}
			hostKeys, err := archive.LoadKnownHostsCallback(cfg.Archive.KnownHosts)
			if err != nil {
				return err
			}
			f := &archive.Fetcher{
				Addr:     net.JoinHostPort(cfg.Archive.Host, strconv.Itoa(cfg.Archive.Port)),
				User:     cfg.Archive.User,
				Signer:   signer,
				HostKeys: hostKeys,
				Timeout:  15 * time.Second,
			}
			results, err := f.Fetch(cmd.Context(), files, dest)
			for _, r := range results {
				state := "unverified"
				if r.Verified {
					state = "verified"
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s  %s  %d bytes  %s\n", r.SHA256, r.Local, r.Size, state)
			}
			return err
		},
	}
	cmd.Flags().StringSlice("files", nil, "remote file paths to fetch")
	cmd.Flags().String("dest", "", "local directory (defaults to archive.dest_dir)")
	_ = cmd.MarkFlagRequired("files")
	return cmd
}

// Initialize configuration and archive credentials
func newInitCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "init",
		Short: "capctl initialization command. Run this the first time.",
		RunE: func(cmd *cobra.Command, args []string) error {
			path, _ := cmd.Flags().GetString("config")
			if path == "" {
				path = filepath.Join(core.ConfigDir(), "config.yaml")
			}
			cfg := core.DefaultConfig()
			if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
				if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
					return err
				}
				data, err := yaml.Marshal(cfg)
				if err != nil {
					return err
				}
				if err := os.WriteFile(path, data, 0600); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "wrote default config to %s\n", path)
			} else if cfg, err = core.LoadConfig(path); err != nil {
				return err
			}

			if _, err := os.Stat(cfg.Archive.KeyPath); errors.Is(err, os.ErrNotExist) {
				if err := os.MkdirAll(filepath.Dir(cfg.Archive.KeyPath), 0700); err != nil {
					return err
				}
				pub, err := archive.GenerateEd25519Keypair(cfg.Archive.KeyPath)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "generated archive key %s\nadd to the capture host's authorized_keys:\n%s\n", cfg.Archive.KeyPath, pub)
			}
			if err := archive.EnsureKnownHostsFile(cfg.Archive.KnownHosts); err != nil {
				return err
			}
			host, _ := cmd.Flags().GetString("host")
			hostKey, _ := cmd.Flags().GetString("host-key")
			if host != "" && hostKey != "" {
				if err := archive.AppendKnownHost(cfg.Archive.KnownHosts, host, hostKey); err != nil {
					return err
				}
				log.Info().Str("host", host).Str("known_hosts", cfg.Archive.KnownHosts).Msg("Pinned capture host key")
			}
			return nil
		},
	}
	cmd.Flags().String("host", "", "capture host to trust, host or host:port")
	cmd.Flags().String("host-key", "", "the capture host's public key in authorized_keys format")
	return cmd
}
