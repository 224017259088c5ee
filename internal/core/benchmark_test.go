package core

import (
	"context"
	"errors"
	"testing"
	"time"
)

func BenchmarkMetricsRecording(b *testing.B) {
	metrics := NewMetrics()
	failed := errors.New("failed")

	b.ResetTimer()

	for i := 0; i < b.N; i++ {
		var err error
		if i%10 == 0 {
			err = failed
		}
		metrics.RecordOperation(time.Millisecond, err)
		metrics.RecordSegment()
	}
}

func BenchmarkConcurrentMetrics(b *testing.B) {
	metrics := NewMetrics()

	b.ResetTimer()

	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			metrics.RecordOperation(time.Millisecond, nil)
			_ = metrics.Snapshot()
		}
	})
}

func BenchmarkPlanRaster(b *testing.B) {
	b.ReportAllocs()

	for i := 0; i < b.N; i++ {
		if _, err := Plan(41, 8.0, 0.2, i%2 == 0); err != nil {
			b.Fatalf("plan: %v", err)
		}
	}
}

func BenchmarkPreferredName(b *testing.B) {
	descs := []string{
		"Hydra A | *3C218, radec, 9:18:05.28, -12:05:48.9",
		"azel, 20, 30",
		"xephem, ISS (ZARYA)~E~10/19/2026~51.64~...",
	}
	b.ReportAllocs()

	for i := 0; i < b.N; i++ {
		_ = PreferredName(descs[i%len(descs)])
	}
}

func BenchmarkGroupFanOut(b *testing.B) {
	arr, _ := newTestArray("ant1", "ant2", "ant3", "ant4", "ant5", "ant6", "ant7")
	g, err := Resolve(arr.Registry, All(), "ants")
	if err != nil {
		b.Fatalf("resolve: %v", err)
	}
	ctx := context.Background()

	b.ResetTimer()

	for i := 0; i < b.N; i++ {
		if err := g.SetTarget(ctx, "azel, 20, 30"); err != nil {
			b.Fatalf("set target: %v", err)
		}
	}
}
