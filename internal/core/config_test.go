package core

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoadConfigAppliesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `session:
  observer: jane
  description: raster test
  antennas: ant1,ant2
  record_slews: false
agent:
  url: http://127.0.0.1:8089
sim:
  antennas: [ant1, ant2, ant3]
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("CAPSESSION_AGENT_TOKEN", "")

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Session.CentreFreqMHz != 1800 {
		t.Errorf("expected default centre frequency, got %g", cfg.Session.CentreFreqMHz)
	}
	if cfg.Session.RecordSlews {
		t.Errorf("expected record_slews false from file")
	}
	if cfg.Session.DumpPeriod() != time.Second {
		t.Errorf("expected 1s dump period, got %v", cfg.Session.DumpPeriod())
	}
	if len(cfg.Sim.Antennas) != 3 {
		t.Errorf("expected 3 simulated antennas, got %v", cfg.Sim.Antennas)
	}
	if err := cfg.Session.Validate(); err != nil {
		t.Errorf("expected valid session config: %v", err)
	}
}

func TestLoadConfigMergesSecrets(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte("agent:\n  url: http://x\n"), 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	secrets := "# agent credentials\nCAPSESSION_AGENT_TOKEN=\"s3cret\"\n"
	if err := os.WriteFile(filepath.Join(dir, "secrets.env"), []byte(secrets), 0600); err != nil {
		t.Fatalf("write secrets: %v", err)
	}
	t.Setenv("CAPSESSION_AGENT_TOKEN", "")

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Agent.Token != "s3cret" {
		t.Errorf("expected token from secrets.env, got %q", cfg.Agent.Token)
	}

	t.Setenv("CAPSESSION_AGENT_TOKEN", "from-env")
	cfg, err = LoadConfig(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Agent.Token != "from-env" {
		t.Errorf("expected environment to win, got %q", cfg.Agent.Token)
	}
}

func TestLoadConfigMissingExplicitPath(t *testing.T) {
	if _, err := LoadConfig(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatalf("expected error for missing explicit config")
	}
}

func TestLoadConfigDefaultPathMissing(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	cfg, err := LoadConfig("")
	if err != nil {
		t.Fatalf("expected defaults when no config exists: %v", err)
	}
	if !cfg.Session.RecordSlews {
		t.Errorf("expected record_slews default true")
	}
}

func TestSessionConfigValidate(t *testing.T) {
	err := DefaultSessionConfig().Validate()
	if err == nil {
		t.Fatalf("expected validation errors")
	}
	for _, want := range []string{"observer", "description", "antennas"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("expected %q in %v", want, err)
		}
	}
}
