package testutil

import (
	"context"
	"testing"
	"time"

	"github.com/roach88/ceiling/internal/progression"
	"github.com/roach88/ceiling/internal/store"
)

// RunIntervalSequence is the run/walk progression of the run_interval
// dimension.
var RunIntervalSequence = []string{
	"4:1", "5:1", "6:1", "8:1", "10:1", "continuous_20", "continuous_30", "continuous_45",
}

// CanonicalDimensions returns run_interval, long_run and z2_ride at their
// seed values.
func CanonicalDimensions(t testing.TB) []progression.Dimension {
	t.Helper()
	runInterval, err := progression.NewDimension("run_interval",
		progression.SequenceStep(RunIntervalSequence...), "4:1", "continuous_45", 7)
	if err != nil {
		t.Fatalf("NewDimension(run_interval) failed: %v", err)
	}
	longRun, err := progression.NewDimension("long_run",
		progression.IncrementStep(5, 30, "min"), "30", "90", 14)
	if err != nil {
		t.Fatalf("NewDimension(long_run) failed: %v", err)
	}
	z2Ride, err := progression.NewDimension("z2_ride",
		progression.RegulatedStep("min", 45, 60), "45", "60", 10)
	if err != nil {
		t.Fatalf("NewDimension(z2_ride) failed: %v", err)
	}
	return []progression.Dimension{runInterval, longRun, z2Ride}
}

// OpenStore opens a store in a temp dir and closes it when the test ends.
func OpenStore(t testing.TB, opts ...store.Option) *store.Store {
	t.Helper()
	s, err := store.Open(t.TempDir()+"/ceiling.db", opts...)
	if err != nil {
		t.Fatalf("store.Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// SeedStore opens a store seeded with the canonical dimensions, plus any
// extra dimensions given.
func SeedStore(t testing.TB, at time.Time, extra ...progression.Dimension) *store.Store {
	t.Helper()
	s := OpenStore(t)
	dims := append(CanonicalDimensions(t), extra...)
	if _, err := s.SeedDimensions(context.Background(), dims, at); err != nil {
		t.Fatalf("SeedDimensions() failed: %v", err)
	}
	return s
}
