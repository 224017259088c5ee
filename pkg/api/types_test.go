package api

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const samplePlan = `
session:
  observer: jdoe
  description: beam map of Hydra A
  antennas: ant1,ant2,ant3
  record_slews: false
steps:
  - kind: track
    target: "Hydra A, radec, 9:18:05.28, -12:05:48.9"
    duration_s: 30
  - kind: holography
    target: "Hydra A, radec, 9:18:05.28, -12:05:48.9"
    scan_antennas: ant2
    num_scans: 5
    extent: 3
    spacing: 0.25
    axis: elevation
  - kind: noise_diode
    source: coupler
    on_s: 2.5
`

func TestParsePlan(t *testing.T) {
	p, err := ParsePlan([]byte(samplePlan))
	require.NoError(t, err)

	assert.Equal(t, "jdoe", p.Session.Observer)
	require.NotNil(t, p.Session.RecordSlews)
	assert.False(t, *p.Session.RecordSlews)
	require.Len(t, p.Steps, 3)
	assert.Equal(t, StepHolography, p.Steps[1].Kind)
	assert.Equal(t, "ant2", p.Steps[1].ScanAntennas)
	assert.Equal(t, "elevation", p.Steps[1].Axis)
	assert.Equal(t, 2500*time.Millisecond, Seconds(p.Steps[2].OnS))
}

func TestPlanRecordSlewsUnset(t *testing.T) {
	p, err := ParsePlan([]byte("steps:\n  - kind: track\n    target: azel, 20, 30\n"))
	require.NoError(t, err)
	assert.Nil(t, p.Session.RecordSlews)
}

func TestPlanValidation(t *testing.T) {
	cases := map[string]string{
		"no steps":        "session:\n  observer: x\n",
		"unknown kind":    "steps:\n  - kind: dance\n",
		"missing target":  "steps:\n  - kind: scan\n",
		"holo subset":     "steps:\n  - kind: holography\n    target: azel, 0, 45\n",
		"bad axis":        "steps:\n  - kind: scan\n    target: azel, 0, 45\n    axis: diagonal\n",
		"negative extent": "steps:\n  - kind: raster\n    target: azel, 0, 45\n    extent: -1\n",
		"bad source":      "steps:\n  - kind: noise_diode\n    source: laser\n",
	}
	for name, doc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := ParsePlan([]byte(doc))
			assert.Error(t, err)
		})
	}
}

func TestPlanValidationReportsEveryStep(t *testing.T) {
	_, err := ParsePlan([]byte("steps:\n  - kind: scan\n  - kind: raster\n    target: x\n    num_scans: -1\n"))
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "step 1"))
	assert.True(t, strings.Contains(err.Error(), "step 2"))
}

func TestLoadPlan(t *testing.T) {
	path := filepath.Join(t.TempDir(), "plan.yaml")
	require.NoError(t, os.WriteFile(path, []byte(samplePlan), 0644))
	p, err := LoadPlan(path)
	require.NoError(t, err)
	assert.Len(t, p.Steps, 3)

	_, err = LoadPlan(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
