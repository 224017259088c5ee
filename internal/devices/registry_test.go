package devices

import (
	"context"
	"testing"
	"time"
)

type stubAntenna struct{ name string }

func (s stubAntenna) Name() string                                        { return s.name }
func (stubAntenna) SetMode(context.Context, Mode) error                   { return nil }
func (stubAntenna) SetTarget(context.Context, string) error               { return nil }
func (stubAntenna) SetDriveStrategy(context.Context, DriveStrategy) error { return nil }
func (stubAntenna) ScanAsym(context.Context, float64, float64, float64, float64, time.Duration) error {
	return nil
}
func (stubAntenna) PointingLock(context.Context) (bool, error)     { return true, nil }
func (stubAntenna) ScanStatus(context.Context) (ScanStatus, error) { return ScanAfter, nil }
func (stubAntenna) Wait(context.Context, Sensor, string, time.Duration) (bool, error) {
	return true, nil
}

func TestRegistryKeepsRegistrationOrder(t *testing.T) {
	reg := NewRegistry()
	for _, n := range []string{"ant3", "ant1", "ant2"} {
		reg.RegisterAntenna(stubAntenna{name: n})
	}
	reg.RegisterAntenna(stubAntenna{name: "ant1"})

	ants := reg.Antennas()
	if len(ants) != 3 {
		t.Fatalf("expected 3 antennas, got %d", len(ants))
	}
	want := []string{"ant3", "ant1", "ant2"}
	for i, a := range ants {
		if a.Name() != want[i] {
			t.Errorf("position %d: expected %s, got %s", i, want[i], a.Name())
		}
	}
}

func TestRegistryLookupErrors(t *testing.T) {
	reg := NewRegistry()
	if _, err := reg.Antenna("ant9"); err == nil {
		t.Fatalf("expected error for unknown antenna")
	}
	if _, err := reg.Feed("ant9"); err == nil {
		t.Fatalf("expected error for missing feed")
	}
	if reg.Downconverter() != nil {
		t.Fatalf("expected no downconverter")
	}
}

func TestUnaugmented(t *testing.T) {
	if got := Unaugmented("/data/1700000000_01.writing.h5"); got != "/data/1700000000_01.unaugmented.h5" {
		t.Fatalf("got %s", got)
	}
}
