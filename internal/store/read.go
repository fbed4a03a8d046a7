package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/roach88/ceiling/internal/progression"
)

const dimensionColumns = `name, current_value, ceiling_value, step_config, status,
	last_change_at, last_ceiling_touch_at, maintenance_cadence_days,
	version, created_at, updated_at`

// rowScanner is satisfied by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

// GetDimension returns the named dimension.
// Returns a NOT_FOUND error for unknown names and a CONFIG_ERROR if the
// stored row does not decode into a valid dimension.
func (s *Store) GetDimension(ctx context.Context, name string) (progression.Dimension, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+dimensionColumns+`
		FROM progression_dimensions
		WHERE name = ?
	`, name)

	d, err := scanDimension(row)
	if errors.Is(err, sql.ErrNoRows) {
		return progression.Dimension{}, progression.NotFoundError(name)
	}
	if err != nil {
		return progression.Dimension{}, err
	}
	return d, nil
}

// ListDimensions returns all dimensions ordered by name.
// Fails with the CONFIG_ERROR of the first malformed row; callers that must
// tolerate malformed rows iterate DimensionNames instead.
//
// Returns an empty slice (not nil) if no dimensions exist.
func (s *Store) ListDimensions(ctx context.Context) ([]progression.Dimension, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+dimensionColumns+`
		FROM progression_dimensions
		ORDER BY name COLLATE BINARY ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query dimensions: %w", err)
	}
	defer rows.Close()

	dims := []progression.Dimension{}
	for rows.Next() {
		d, err := scanDimension(rows)
		if err != nil {
			return nil, err
		}
		dims = append(dims, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate dimensions: %w", err)
	}
	return dims, nil
}

// DimensionNames returns every stored dimension name in order without
// decoding the rows.
func (s *Store) DimensionNames(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT name FROM progression_dimensions
		ORDER BY name COLLATE BINARY ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query dimension names: %w", err)
	}
	defer rows.Close()

	names := []string{}
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scan dimension name: %w", err)
		}
		names = append(names, name)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate dimension names: %w", err)
	}
	return names, nil
}

// scanDimension decodes and validates one dimension row.
func scanDimension(row rowScanner) (progression.Dimension, error) {
	var (
		d                     progression.Dimension
		current, ceiling      string
		stepJSON, status      string
		lastChange, lastTouch sql.NullString
		createdAt, updatedAt  string
	)
	err := row.Scan(
		&d.Name, &current, &ceiling, &stepJSON, &status,
		&lastChange, &lastTouch, &d.MaintenanceCadenceDays,
		&d.Version, &createdAt, &updatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return progression.Dimension{}, err
		}
		return progression.Dimension{}, fmt.Errorf("scan dimension: %w", err)
	}

	step, err := progression.ParseStepConfig([]byte(stepJSON))
	if err != nil {
		return progression.Dimension{}, progression.ConfigError(d.Name, err)
	}
	d.Step = step

	if d.Current, err = step.ParseValue(current); err != nil {
		return progression.Dimension{}, progression.ConfigError(d.Name, fmt.Errorf("current value: %w", err))
	}
	if d.Ceiling, err = step.ParseValue(ceiling); err != nil {
		return progression.Dimension{}, progression.ConfigError(d.Name, fmt.Errorf("ceiling value: %w", err))
	}
	if d.Status, err = progression.ParseStatus(status); err != nil {
		return progression.Dimension{}, progression.ConfigError(d.Name, err)
	}

	if d.LastChangeAt, err = parseNullTime(lastChange); err != nil {
		return progression.Dimension{}, progression.ConfigError(d.Name, err)
	}
	if d.LastCeilingTouchAt, err = parseNullTime(lastTouch); err != nil {
		return progression.Dimension{}, progression.ConfigError(d.Name, err)
	}
	if d.CreatedAt, err = parseTime(createdAt); err != nil {
		return progression.Dimension{}, progression.ConfigError(d.Name, err)
	}
	if d.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return progression.Dimension{}, progression.ConfigError(d.Name, err)
	}

	if err := d.Validate(); err != nil {
		return progression.Dimension{}, err
	}
	return d, nil
}

// HistoryFilter narrows ListHistory. Zero values match everything.
type HistoryFilter struct {
	Dimension  string
	ChangeType progression.ChangeType

	// Limit keeps only the most recent entries. Zero means no limit.
	Limit int
}

// ListHistory returns history entries in chronological order.
// Results are ordered deterministically: ORDER BY seq ASC.
//
// Returns an empty slice (not nil) if no entries match.
func (s *Store) ListHistory(ctx context.Context, filter HistoryFilter) ([]progression.HistoryEntry, error) {
	var (
		where []string
		args  []any
	)
	if filter.Dimension != "" {
		where = append(where, "dimension_name = ?")
		args = append(args, filter.Dimension)
	}
	if filter.ChangeType != "" {
		where = append(where, "change_type = ?")
		args = append(args, string(filter.ChangeType))
	}

	query := `
		SELECT seq, id, dimension_name, previous_value, new_value, change_type,
		       trigger_workout_id, context_snapshot, created_at
		FROM progression_history`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	if filter.Limit > 0 {
		// Newest N, then back to chronological order.
		query = "SELECT * FROM (" + query + " ORDER BY seq DESC LIMIT ?) ORDER BY seq ASC"
		args = append(args, filter.Limit)
	} else {
		query += " ORDER BY seq ASC"
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query history: %w", err)
	}
	defer rows.Close()

	entries := []progression.HistoryEntry{}
	for rows.Next() {
		e, err := scanHistoryEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate history: %w", err)
	}
	return entries, nil
}

func scanHistoryEntry(row rowScanner) (progression.HistoryEntry, error) {
	var (
		e          progression.HistoryEntry
		changeType string
		trigger    sql.NullString
		snapshot   string
		createdAt  string
	)
	err := row.Scan(
		&e.Seq, &e.ID, &e.DimensionName, &e.PreviousValue, &e.NewValue, &changeType,
		&trigger, &snapshot, &createdAt,
	)
	if err != nil {
		return progression.HistoryEntry{}, fmt.Errorf("scan history entry: %w", err)
	}

	if e.ChangeType, err = progression.ParseChangeType(changeType); err != nil {
		return progression.HistoryEntry{}, fmt.Errorf("scan history entry %s: %w", e.ID, err)
	}
	e.TriggerWorkoutID = trigger.String
	e.ContextSnapshot = []byte(snapshot)
	if e.CreatedAt, err = parseTime(createdAt); err != nil {
		return progression.HistoryEntry{}, fmt.Errorf("scan history entry %s: %w", e.ID, err)
	}
	return e, nil
}
