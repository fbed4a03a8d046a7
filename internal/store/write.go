package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/roach88/ceiling/internal/progression"
)

// SeedDimensions inserts dimensions that do not exist yet.
// Uses ON CONFLICT(name) DO NOTHING so re-seeding never overwrites a
// dimension that has already progressed. Returns the number inserted.
//
// Each dimension is validated first; the whole batch is written in one
// transaction.
func (s *Store) SeedDimensions(ctx context.Context, dims []progression.Dimension, at time.Time) (int, error) {
	for _, d := range dims {
		if err := d.Validate(); err != nil {
			return 0, err
		}
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("seed dimensions: begin transaction: %w", err)
	}
	defer tx.Rollback() // Rollback is no-op after Commit

	inserted := 0
	for _, d := range dims {
		stepJSON, err := marshalStepConfig(d.Step)
		if err != nil {
			return 0, fmt.Errorf("seed dimension %s: %w", d.Name, err)
		}
		res, err := tx.ExecContext(ctx, `
			INSERT INTO progression_dimensions
			(name, current_value, ceiling_value, step_config, status,
			 last_change_at, last_ceiling_touch_at, maintenance_cadence_days,
			 version, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, 1, ?, ?)
			ON CONFLICT(name) DO NOTHING
		`,
			d.Name,
			d.Current.String(),
			d.Ceiling.String(),
			stepJSON,
			string(d.Status),
			formatNullTime(d.LastChangeAt),
			formatNullTime(d.LastCeilingTouchAt),
			d.MaintenanceCadenceDays,
			formatTime(at),
			formatTime(at),
		)
		if err != nil {
			return 0, fmt.Errorf("seed dimension %s: %w", d.Name, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return 0, fmt.Errorf("seed dimension %s: %w", d.Name, err)
		}
		inserted += int(n)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("seed dimensions: commit: %w", err)
	}
	return inserted, nil
}

// Mutator computes the next state of a dimension in place and returns the
// history entry describing the change. Returning a nil entry means "no
// change": nothing is written. Mutators may run more than once when a
// write conflicts, so they must not have side effects.
type Mutator func(d *progression.Dimension) (*progression.HistoryEntry, error)

// UpdateResult is the outcome of CompareAndUpdate.
type UpdateResult struct {
	// Dimension is the persisted state after the call.
	Dimension progression.Dimension

	// Entry is the appended history entry, or nil when nothing changed.
	Entry *progression.HistoryEntry

	// Attempts counts read-mutate-write cycles; Attempts-1 conflicts were
	// retried.
	Attempts int
}

// errVersionMismatch signals that another writer updated the row first.
var errVersionMismatch = errors.New("version mismatch")

// CompareAndUpdate atomically applies mutate to the named dimension.
//
// The dimension is read with its version, mutated on a copy, validated,
// then written with `WHERE version = ?` together with its history entry in
// one transaction. If another writer got there first the cycle restarts
// from a fresh read. After the configured number of attempts a CONFLICT
// error is returned.
//
// Errors from mutate are returned unchanged and nothing is written.
func (s *Store) CompareAndUpdate(ctx context.Context, name string, mutate Mutator) (UpdateResult, error) {
	for attempt := 1; attempt <= s.maxAttempts; attempt++ {
		current, err := s.GetDimension(ctx, name)
		if err != nil {
			return UpdateResult{Attempts: attempt}, err
		}

		next := current.Clone()
		entry, err := mutate(&next)
		if err != nil {
			return UpdateResult{Dimension: current, Attempts: attempt}, err
		}
		if entry == nil {
			return UpdateResult{Dimension: current, Attempts: attempt}, nil
		}

		if next.Name != current.Name {
			return UpdateResult{Dimension: current, Attempts: attempt},
				fmt.Errorf("update dimension %s: name is immutable", name)
		}
		if err := next.Validate(); err != nil {
			return UpdateResult{Dimension: current, Attempts: attempt}, err
		}
		if err := validateEntry(name, entry); err != nil {
			return UpdateResult{Dimension: current, Attempts: attempt}, err
		}

		seq, err := s.writeUpdate(ctx, current.Version, next, *entry)
		if errors.Is(err, errVersionMismatch) {
			continue
		}
		if err != nil {
			return UpdateResult{Dimension: current, Attempts: attempt}, err
		}

		next.Version = current.Version + 1
		next.UpdatedAt = entry.CreatedAt.UTC()
		written := *entry
		written.Seq = seq
		written.CreatedAt = entry.CreatedAt.UTC()
		return UpdateResult{Dimension: next, Entry: &written, Attempts: attempt}, nil
	}

	return UpdateResult{Attempts: s.maxAttempts}, progression.ConflictError(name, s.maxAttempts)
}

// SetCeiling replaces the ceiling of the named dimension and logs a
// ceiling_update entry. The template supplies the entry's ID, timestamp and
// snapshot; previous and new values are the old and new ceilings.
// current_value and status are left untouched.
func (s *Store) SetCeiling(ctx context.Context, name, ceiling string, template progression.HistoryEntry) (UpdateResult, error) {
	return s.CompareAndUpdate(ctx, name, func(d *progression.Dimension) (*progression.HistoryEntry, error) {
		updated, err := d.WithCeiling(ceiling)
		if err != nil {
			return nil, err
		}
		entry := template
		entry.DimensionName = d.Name
		entry.PreviousValue = d.Ceiling.String()
		entry.NewValue = updated.Ceiling.String()
		entry.ChangeType = progression.ChangeCeilingUpdate
		*d = updated
		return &entry, nil
	})
}

// writeUpdate performs the versioned UPDATE and history INSERT in one
// transaction. Returns the history seq, or errVersionMismatch if the row's
// version moved.
func (s *Store) writeUpdate(ctx context.Context, version int64, d progression.Dimension, e progression.HistoryEntry) (int64, error) {
	stepJSON, err := marshalStepConfig(d.Step)
	if err != nil {
		return 0, fmt.Errorf("update dimension %s: %w", d.Name, err)
	}
	snapshot, err := marshalSnapshot(e.ContextSnapshot)
	if err != nil {
		return 0, fmt.Errorf("update dimension %s: %w", d.Name, err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("update dimension %s: begin transaction: %w", d.Name, err)
	}
	defer tx.Rollback() // Rollback is no-op after Commit

	res, err := tx.ExecContext(ctx, `
		UPDATE progression_dimensions
		SET current_value = ?,
		    ceiling_value = ?,
		    step_config = ?,
		    status = ?,
		    last_change_at = ?,
		    last_ceiling_touch_at = ?,
		    maintenance_cadence_days = ?,
		    version = version + 1,
		    updated_at = ?
		WHERE name = ? AND version = ?
	`,
		d.Current.String(),
		d.Ceiling.String(),
		stepJSON,
		string(d.Status),
		formatNullTime(d.LastChangeAt),
		formatNullTime(d.LastCeilingTouchAt),
		d.MaintenanceCadenceDays,
		formatTime(e.CreatedAt),
		d.Name,
		version,
	)
	if err != nil {
		return 0, fmt.Errorf("update dimension %s: %w", d.Name, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("update dimension %s: %w", d.Name, err)
	}
	if n == 0 {
		return 0, errVersionMismatch
	}

	seq, err := insertHistory(ctx, tx, e, snapshot)
	if err != nil {
		return 0, err
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("update dimension %s: commit: %w", d.Name, err)
	}
	return seq, nil
}

func insertHistory(ctx context.Context, tx *sql.Tx, e progression.HistoryEntry, snapshot string) (int64, error) {
	res, err := tx.ExecContext(ctx, `
		INSERT INTO progression_history
		(id, dimension_name, previous_value, new_value, change_type,
		 trigger_workout_id, context_snapshot, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`,
		e.ID,
		e.DimensionName,
		e.PreviousValue,
		e.NewValue,
		string(e.ChangeType),
		nullString(e.TriggerWorkoutID),
		snapshot,
		formatTime(e.CreatedAt),
	)
	if err != nil {
		return 0, fmt.Errorf("write history entry: %w", err)
	}
	seq, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("write history entry: %w", err)
	}
	return seq, nil
}

func validateEntry(name string, e *progression.HistoryEntry) error {
	switch {
	case e.ID == "":
		return fmt.Errorf("history entry for %s: id is required", name)
	case e.DimensionName != name:
		return fmt.Errorf("history entry for %s: dimension_name is %q", name, e.DimensionName)
	case !e.ChangeType.Valid():
		return fmt.Errorf("history entry for %s: unknown change type %q", name, e.ChangeType)
	case e.CreatedAt.IsZero():
		return fmt.Errorf("history entry for %s: created_at is required", name)
	}
	return nil
}
