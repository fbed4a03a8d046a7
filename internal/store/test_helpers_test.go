package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/roach88/ceiling/internal/progression"
)

var testNow = time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)

// setupTestStore creates a new file-backed store for testing.
func setupTestStore(t *testing.T, opts ...Option) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path, opts...)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// testDimensions returns the three canonical dimensions.
func testDimensions(t *testing.T) []progression.Dimension {
	t.Helper()
	runInterval, err := progression.NewDimension("run_interval",
		progression.SequenceStep("4:1", "5:1", "6:1", "8:1", "10:1", "continuous_20", "continuous_30", "continuous_45"),
		"4:1", "continuous_45", 7)
	if err != nil {
		t.Fatalf("NewDimension(run_interval) failed: %v", err)
	}
	longRun, err := progression.NewDimension("long_run", progression.IncrementStep(5, 30, "min"), "30", "90", 14)
	if err != nil {
		t.Fatalf("NewDimension(long_run) failed: %v", err)
	}
	z2Ride, err := progression.NewDimension("z2_ride", progression.RegulatedStep("min", 45, 60), "45", "60", 10)
	if err != nil {
		t.Fatalf("NewDimension(z2_ride) failed: %v", err)
	}
	return []progression.Dimension{runInterval, longRun, z2Ride}
}

// seedTestStore seeds the canonical dimensions.
func seedTestStore(t *testing.T, s *Store) {
	t.Helper()
	if _, err := s.SeedDimensions(context.Background(), testDimensions(t), testNow); err != nil {
		t.Fatalf("SeedDimensions() failed: %v", err)
	}
}

// advanceMutator moves a sequence or increment dimension one step by
// parsing the given next value.
func advanceMutator(id, next string, at time.Time) Mutator {
	return func(d *progression.Dimension) (*progression.HistoryEntry, error) {
		v, err := d.Step.ParseValue(next)
		if err != nil {
			return nil, err
		}
		entry := &progression.HistoryEntry{
			ID:            id,
			DimensionName: d.Name,
			PreviousValue: d.Current.String(),
			NewValue:      v.String(),
			ChangeType:    progression.ChangeProgress,
			CreatedAt:     at,
		}
		d.Current = v
		d.LastChangeAt = &at
		return entry, nil
	}
}

// insertRawDimension bypasses validation to simulate a corrupted row.
func insertRawDimension(t *testing.T, s *Store, name, current, ceiling, stepJSON string) {
	t.Helper()
	_, err := s.DB().Exec(`
		INSERT INTO progression_dimensions
		(name, current_value, ceiling_value, step_config, status,
		 maintenance_cadence_days, version, created_at, updated_at)
		VALUES (?, ?, ?, ?, 'building', 7, 1, ?, ?)
	`, name, current, ceiling, stepJSON, formatTime(testNow), formatTime(testNow))
	if err != nil {
		t.Fatalf("insert raw dimension failed: %v", err)
	}
}
