package core

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// SessionConfig describes one capture session.
type SessionConfig struct {
	ExperimentID  string  `yaml:"experiment_id" json:"experiment_id"`
	Observer      string  `yaml:"observer" json:"observer"`
	Description   string  `yaml:"description" json:"description"`
	Antennas      string  `yaml:"antennas" json:"antennas"`
	CentreFreqMHz float64 `yaml:"centre_freq_mhz" json:"centre_freq_mhz"`
	DumpRateHz    float64 `yaml:"dump_rate_hz" json:"dump_rate_hz"`
	RecordSlews   bool    `yaml:"record_slews" json:"record_slews"`
	OutputDir     string  `yaml:"output_dir" json:"output_dir"`
}

// Config is the on-disk configuration for capctl and capture-agent.
type Config struct {
	Session SessionConfig `yaml:"session"`
	Agent   struct {
		URL        string `yaml:"url"`
		Token      string `yaml:"token"`
		CACert     string `yaml:"ca_cert"`
		ClientCert string `yaml:"client_cert"`
		ClientKey  string `yaml:"client_key"`
		Listen     string `yaml:"listen"`
	} `yaml:"agent"`
	Monitoring struct {
		Addr string `yaml:"addr"`
	} `yaml:"monitoring"`
	Archive struct {
		Host       string `yaml:"host"`
		Port       int    `yaml:"port"`
		User       string `yaml:"user"`
		KeyPath    string `yaml:"key_path"`
		KnownHosts string `yaml:"known_hosts"`
		DestDir    string `yaml:"dest_dir"`
	} `yaml:"archive"`
	Sim struct {
		Antennas    []string `yaml:"antennas"`
		SlewSeconds float64  `yaml:"slew_seconds"`
		StorePath   string   `yaml:"store_path"`
	} `yaml:"sim"`
}

// DefaultSessionConfig returns the defaults applied before user values.
func DefaultSessionConfig() SessionConfig {
	return SessionConfig{
		CentreFreqMHz: 1800.0,
		DumpRateHz:    1.0,
		RecordSlews:   true,
		OutputDir:     "/var/kat/data",
	}
}

func DefaultConfig() Config {
	var cfg Config
	cfg.Session = DefaultSessionConfig()
	cfg.Agent.Listen = ":8088"
	cfg.Archive.Port = 22
	cfg.Archive.KeyPath = filepath.Join(ConfigDir(), "id_ed25519")
	cfg.Archive.KnownHosts = filepath.Join(ConfigDir(), "known_hosts")
	cfg.Archive.DestDir = "."
	cfg.Sim.Antennas = []string{"ant1", "ant2"}
	cfg.Sim.SlewSeconds = 2
	return cfg
}

// DumpPeriod is the correlator integration time implied by the dump rate.
func (c SessionConfig) DumpPeriod() time.Duration {
	return time.Duration(float64(time.Second) / c.DumpRateHz)
}

// Validate rejects sessions that do not say who is observing, why, and with
// which antennas.
func (c SessionConfig) Validate() error {
	var errs []error
	if c.Observer == "" {
		errs = append(errs, errors.New("observer is required"))
	}
	if c.Description == "" {
		errs = append(errs, errors.New("description is required"))
	}
	if c.Antennas == "" {
		errs = append(errs, errors.New("antennas are required (comma-separated names or 'all')"))
	}
	if c.CentreFreqMHz <= 0 {
		errs = append(errs, fmt.Errorf("centre frequency must be positive, got %g MHz", c.CentreFreqMHz))
	}
	if c.DumpRateHz <= 0 {
		errs = append(errs, fmt.Errorf("dump rate must be positive, got %g Hz", c.DumpRateHz))
	}
	return errors.Join(errs...)
}

// ConfigDir is $XDG_CONFIG_HOME/capsession, or ~/.config/capsession.
func ConfigDir() string {
	base := os.Getenv("XDG_CONFIG_HOME")
	if base == "" {
		home, _ := os.UserHomeDir()
		base = filepath.Join(home, ".config")
	}
	return filepath.Join(base, "capsession")
}

// LoadConfig reads YAML configuration from a path. If path is empty, it resolves
// $XDG_CONFIG_HOME/capsession/config.yaml or ~/.config/capsession/config.yaml and
// falls back to defaults when that file does not exist.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	explicit := path != ""
	if !explicit {
		path = filepath.Join(ConfigDir(), "config.yaml")
	}
	f, err := os.Open(path)
	if err != nil {
		if !explicit && errors.Is(err, os.ErrNotExist) {
			return mergeSecrets(cfg, ""), nil
		}
		return cfg, fmt.Errorf("open config: %w", err)
	}
	defer f.Close()
	content, err := io.ReadAll(f)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(content, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config: %w", err)
	}
	return mergeSecrets(cfg, filepath.Join(filepath.Dir(path), "secrets.env")), nil
}

// mergeSecrets keeps the agent token out of YAML: secrets.env first, then the
// environment.
func mergeSecrets(cfg Config, secretsPath string) Config {
	secrets := map[string]string{}
	if secretsPath != "" {
		secrets, _ = LoadSecretsEnv(secretsPath)
	}
	if v := os.Getenv("CAPSESSION_AGENT_TOKEN"); v != "" {
		secrets["CAPSESSION_AGENT_TOKEN"] = v
	}
	if t, ok := secrets["CAPSESSION_AGENT_TOKEN"]; ok && t != "" {
		cfg.Agent.Token = t
	}
	return cfg
}
