package sim

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/radioscope/capsession/internal/clock"
	"github.com/radioscope/capsession/internal/devices"
)

var start = time.Date(2026, 3, 1, 18, 0, 0, 0, time.UTC)

func TestAntennaLocksAfterSlew(t *testing.T) {
	clk := clock.NewSim(start)
	a := NewAntenna("ant1", clk, 3*time.Second)
	ctx := context.Background()

	if err := a.SetMode(ctx, devices.ModePoint); err != nil {
		t.Fatalf("set mode: %v", err)
	}
	if locked, _ := a.PointingLock(ctx); locked {
		t.Fatalf("locked before slewing")
	}
	ok, err := a.Wait(ctx, devices.SensorLock, devices.LockTrue, time.Minute)
	if err != nil || !ok {
		t.Fatalf("expected lock, got %v %v", ok, err)
	}
	if clk.Elapsed() < 3*time.Second {
		t.Fatalf("locked after only %s", clk.Elapsed())
	}
}

func TestStuckAntennaTimesOut(t *testing.T) {
	clk := clock.NewSim(start)
	a := NewAntenna("ant1", clk, time.Second)
	a.SetStuck(true)
	ctx := context.Background()
	_ = a.SetMode(ctx, devices.ModePoint)

	ok, err := a.Wait(ctx, devices.SensorLock, devices.LockTrue, 5*time.Second)
	if err != nil {
		t.Fatalf("wait: %v", err)
	}
	if ok {
		t.Fatalf("stuck antenna reported lock")
	}
	if clk.Elapsed() != 5*time.Second {
		t.Fatalf("expected wait to last exactly the timeout, got %s", clk.Elapsed())
	}
}

func TestAntennaWaitHonoursContext(t *testing.T) {
	a := NewAntenna("ant1", clock.NewSim(start), time.Second)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_ = a.SetMode(context.Background(), devices.ModePoint)

	if _, err := a.Wait(ctx, devices.SensorLock, devices.LockTrue, time.Minute); err == nil {
		t.Fatalf("expected context error")
	}
}

func TestAntennaScanStatus(t *testing.T) {
	clk := clock.NewSim(start)
	a := NewAntenna("ant1", clk, 0)
	ctx := context.Background()

	_ = a.ScanAsym(ctx, 1, 0, -1, 0, 10*time.Second)
	if s, _ := a.ScanStatus(ctx); s != devices.ScanBefore {
		t.Fatalf("expected before, got %s", s)
	}
	_ = a.SetMode(ctx, devices.ModeScan)
	clk.Advance(4 * time.Second)
	if s, _ := a.ScanStatus(ctx); s != devices.ScanDuring {
		t.Fatalf("expected during, got %s", s)
	}
	clk.Advance(6 * time.Second)
	if s, _ := a.ScanStatus(ctx); s != devices.ScanAfter {
		t.Fatalf("expected after, got %s", s)
	}
	if _, err := a.Wait(ctx, devices.Sensor("wind_speed"), "0", time.Second); err == nil {
		t.Fatalf("expected unknown sensor error")
	}
}

func TestStalledScanNeverFinishes(t *testing.T) {
	clk := clock.NewSim(start)
	a := NewAntenna("ant1", clk, 0)
	a.SetScanStalled(true)
	ctx := context.Background()

	_ = a.ScanAsym(ctx, 1, 0, -1, 0, 10*time.Second)
	_ = a.SetMode(ctx, devices.ModeScan)
	ok, err := a.Wait(ctx, devices.SensorScanStatus, string(devices.ScanAfter), time.Minute)
	if err != nil || ok {
		t.Fatalf("expected timeout, got %v %v", ok, err)
	}
	if s, _ := a.ScanStatus(ctx); s != devices.ScanDuring {
		t.Fatalf("expected during, got %s", s)
	}
}

func TestFeedRejectsUnknownSource(t *testing.T) {
	f := NewFeed(clock.NewSim(start))
	if err := f.SetNoiseSource(context.Background(), devices.NoiseSource("laser"), true, "now", 0); err == nil {
		t.Fatalf("expected error")
	}
	if len(f.Events()) != 0 {
		t.Fatalf("rejected switch was recorded")
	}
}

func TestBackendPersistsToStore(t *testing.T) {
	store, err := NewStore(filepath.Join(t.TempDir(), "capture.db"))
	if err != nil {
		t.Fatalf("store: %v", err)
	}
	defer store.Close()
	ctx := context.Background()
	if err := store.Ping(ctx); err != nil {
		t.Fatalf("ping: %v", err)
	}

	b := NewBackend(clock.NewSim(start), store)
	if err := b.Setup(ctx, devices.SetupParams{ExperimentID: "exp-7", OutputDir: "/data", DumpPeriod: time.Second}); err != nil {
		t.Fatalf("setup: %v", err)
	}
	if err := b.NewCompoundScan(ctx, "azel, 10, 20", "raster", "slew"); err != nil {
		t.Fatalf("compound: %v", err)
	}
	if err := b.CaptureStart(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}
	for _, l := range []string{"scan", "slew", "scan"} {
		if err := b.NewScan(ctx, l); err != nil {
			t.Fatalf("scan: %v", err)
		}
	}
	if err := b.CaptureStop(ctx); err != nil {
		t.Fatalf("stop: %v", err)
	}

	labels, err := store.ScanLabels(ctx, 1)
	if err != nil {
		t.Fatalf("labels: %v", err)
	}
	want := []string{"slew", "scan", "slew", "scan"}
	if len(labels) != len(want) {
		t.Fatalf("expected %v, got %v", want, labels)
	}
	for i := range want {
		if labels[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, labels)
		}
	}
	files, err := store.CaptureFiles(ctx, "exp-7")
	if err != nil {
		t.Fatalf("files: %v", err)
	}
	current, _ := b.CurrentFiles(ctx)
	if len(files) != 1 || files[0] != current[0] {
		t.Fatalf("store files %v do not match backend files %v", files, current)
	}
}

func TestBackendScanWithoutCompound(t *testing.T) {
	b := NewBackend(clock.NewSim(start), nil)
	if err := b.NewScan(context.Background(), "cal"); err != nil {
		t.Fatalf("scan: %v", err)
	}
	cs := b.CompoundScans()
	if len(cs) != 1 || cs[0].Label != "" || cs[0].Scans[0] != "cal" {
		t.Fatalf("unexpected compound scans %+v", cs)
	}
}
