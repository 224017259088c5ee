package main

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/radioscope/capsession/internal/core"
	"github.com/radioscope/capsession/internal/sim"
	"github.com/radioscope/capsession/pkg/api"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	t.Setenv("CAPSESSION_AGENT_TOKEN", "")
	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	root.SetContext(context.Background())
	err := root.Execute()
	return out.String(), err
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(p, []byte(content), 0644))
	return p
}

func TestVersion(t *testing.T) {
	out, err := execute(t, "version")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "capctl "+version))
}

func TestPlanCommand(t *testing.T) {
	out, err := execute(t, "plan", "--segments", "3", "--extent", "4", "--spacing", "0.5")
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 4)
	assert.Contains(t, lines[1], "(+2.000, +0.500)")
	assert.Contains(t, lines[2], "reverse")

	_, err = execute(t, "plan", "--segments", "0")
	assert.ErrorIs(t, err, core.ErrInvalidPlan)
}

const cliConfig = `session:
  experiment_id: exp-cli
  observer: tester
  description: capctl run test
  antennas: all
  output_dir: /data
sim:
  antennas: [ant1, ant2, ant3]
  slew_seconds: 4
  store_path: %STORE%
`

const cliPlan = `steps:
  - kind: track
    target: "azel, 20, 30"
    duration_s: 10
  - kind: raster
    target: "azel, 20, 30"
    num_scans: 3
    scan_duration_s: 5
  - kind: holography
    target: "azel, 20, 30"
    scan_antennas: ant2
    num_scans: 1
  - kind: noise_diode
    on_s: 1
    off_s: 1
`

func TestRunPlanAgainstSimulatedArray(t *testing.T) {
	dir := t.TempDir()
	store := filepath.Join(dir, "sim.db")
	cfgPath := writeFile(t, dir, "config.yaml", strings.ReplaceAll(cliConfig, "%STORE%", store))
	planPath := writeFile(t, dir, "plan.yaml", cliPlan)

	out, err := execute(t, "--config", cfgPath, "run", "--plan", planPath, "--fast")
	require.NoError(t, err)
	assert.Equal(t, 4, strings.Count(out, string(api.RunSucceeded)), out)

	s, err := sim.NewStore(store)
	require.NoError(t, err)
	defer s.Close()
	files, err := s.CaptureFiles(context.Background(), "exp-cli")
	require.NoError(t, err)
	assert.NotEmpty(t, files)
}

func TestRunPlanUnknownAntenna(t *testing.T) {
	cfg := core.DefaultConfig()
	cfg.Session.Observer = "tester"
	cfg.Session.Description = "unknown antenna"
	plan, err := api.ParsePlan([]byte("session:\n  antennas: ant9\nsteps:\n  - kind: track\n    target: azel, 0, 45\n"))
	require.NoError(t, err)

	results, err := runPlan(context.Background(), cfg, plan, runOptions{Fast: true})
	var unknown *core.UnknownAntennaError
	require.True(t, errors.As(err, &unknown), "got %v", err)
	assert.Equal(t, "ant9", unknown.Name)
	assert.Nil(t, results)
}

func TestRunPlanStopsAtFailedStep(t *testing.T) {
	cfg := core.DefaultConfig()
	cfg.Session.Observer = "tester"
	cfg.Session.Description = "bad subset"
	cfg.Session.Antennas = "ant1,ant2"
	plan, err := api.ParsePlan([]byte(`steps:
  - kind: holography
    target: azel, 0, 45
    scan_antennas: ant1,ant2
  - kind: track
    target: azel, 0, 45
`))
	require.NoError(t, err)

	results, err := runPlan(context.Background(), cfg, plan, runOptions{Fast: true})
	require.ErrorIs(t, err, core.ErrInvalidSubset)
	require.Len(t, results, 2)
	assert.Equal(t, api.RunFailed, results[0].Status)
	assert.Equal(t, api.RunPending, results[1].Status)
}

func TestSessionConfigOverlay(t *testing.T) {
	off := false
	got := sessionConfig(core.DefaultSessionConfig(), api.SessionSpec{Observer: "x", RecordSlews: &off, DumpRateHz: 2})
	assert.Equal(t, "x", got.Observer)
	assert.False(t, got.RecordSlews)
	assert.Equal(t, 2.0, got.DumpRateHz)
	assert.Equal(t, 1800.0, got.CentreFreqMHz)
}

func TestInitWritesConfigAndKey(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "capsession", "config.yaml")

	out, err := execute(t, "--config", cfgPath, "init")
	require.NoError(t, err)
	assert.Contains(t, out, "wrote default config")
	assert.Contains(t, out, "ssh-ed25519")

	cfg, err := core.LoadConfig(cfgPath)
	require.NoError(t, err)
	assert.FileExists(t, cfg.Archive.KeyPath)
	assert.FileExists(t, cfg.Archive.KnownHosts)

	out, err = execute(t, "--config", cfgPath, "init")
	require.NoError(t, err)
	assert.Empty(t, out)
}
