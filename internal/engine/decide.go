package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/roach88/ceiling/internal/policy"
	"github.com/roach88/ceiling/internal/progression"
)

// ApplyWorkoutOutcome evaluates one analyzed workout against every
// dimension the context classifies as relevant, in name order.
//
// Each relevant dimension yields exactly one Outcome. A dimension that does
// not exist yields not_found; a dimension whose stored record is malformed,
// or whose write kept conflicting, yields skipped. Neither stops the batch.
// Any other error aborts the call and returns the outcomes so far.
func (e *Engine) ApplyWorkoutOutcome(ctx context.Context, workoutID string, tc progression.TrainingContext) ([]Outcome, error) {
	workoutID = progression.NormalizeLabel(workoutID)
	if workoutID == "" {
		return nil, errors.New("apply workout outcome: workout id is required")
	}

	tc = tc.Normalized()
	snapshot, err := tc.Snapshot()
	if err != nil {
		return nil, fmt.Errorf("apply workout %s: snapshot context: %w", workoutID, err)
	}
	band := tc.EffectiveBand()

	names := tc.RelevantDimensions()
	outcomes := make([]Outcome, 0, len(names))
	for _, name := range names {
		verdict := tc.Dimensions[name]
		out, err := e.commit(ctx, name, workoutID, snapshot, func(d *progression.Dimension, now time.Time) (step, error) {
			if d.IsRegulated() {
				return e.selectStep(d, band, now)
			}
			return workoutStep(d, verdict, now)
		})
		if err != nil {
			if !failSoft(err) {
				return outcomes, fmt.Errorf("apply workout %s: dimension %s: %w", workoutID, name, err)
			}
			out = failedOutcome(name, err)
			e.record(out)
		}
		outcomes = append(outcomes, out)
	}

	e.logger.Info("workout applied",
		"workout_id", workoutID,
		"band", band,
		"dimensions", len(outcomes),
	)
	return outcomes, nil
}

// failSoft reports whether err affects only one dimension of a batch.
func failSoft(err error) bool {
	return progression.IsNotFound(err) || progression.IsConfigError(err) || progression.IsConflict(err)
}

// workoutStep applies a verdict to a progressive dimension.
func workoutStep(d *progression.Dimension, verdict progression.Classification, now time.Time) (step, error) {
	// A raised ceiling reopens an at_ceiling dimension for building.
	if d.Status == progression.StatusAtCeiling && d.AtCeilingValue() {
		if !executedAtCeiling(d, verdict) {
			return held(d, "workout did not execute at ceiling"), nil
		}
		return touch(d, now), nil
	}

	// Current already sits on the ceiling, either seeded there or after a
	// lowered ceiling. Executing it reaches the ceiling.
	if d.AtCeilingValue() && !verdict.Failed && executedAtCeiling(d, verdict) {
		d.Status = progression.StatusAtCeiling
		return touch(d, now), nil
	}

	switch {
	case verdict.Failed:
		return retreat(d, now, progression.ChangeRegress)
	case verdict.CriteriaMet:
		return advance(d, now, progression.ChangeProgress)
	default:
		return held(d, "criteria not met"), nil
	}
}

// executedAtCeiling reports whether the workout was performed at the
// dimension's ceiling. Without an executed value, meeting the criteria
// while at the ceiling counts.
func executedAtCeiling(d *progression.Dimension, verdict progression.Classification) bool {
	if verdict.ExecutedValue == "" {
		return verdict.CriteriaMet && !verdict.Failed
	}
	v, err := d.Step.ParseValue(verdict.ExecutedValue)
	if err != nil {
		return false
	}
	return v.Equal(d.Ceiling)
}

func advance(d *progression.Dimension, now time.Time, change progression.ChangeType) (step, error) {
	res, err := policy.Advance(d.Step, d.Current, d.Ceiling)
	if err != nil {
		return step{}, progression.ConfigError(d.Name, err)
	}
	prev := d.Current.String()
	if !res.Moved() {
		return step{kind: OutcomeNoOp, previous: prev, next: prev, reason: res.Bound.String()}, nil
	}

	d.Current = res.Value
	d.LastChangeAt = &now
	d.Status = progression.StatusBuilding
	if d.AtCeilingValue() {
		d.Status = progression.StatusAtCeiling
		d.LastCeilingTouchAt = &now
	}
	return step{kind: OutcomeProgressed, change: change, previous: prev, next: d.Current.String()}, nil
}

func retreat(d *progression.Dimension, now time.Time, change progression.ChangeType) (step, error) {
	res, err := policy.Retreat(d.Step, d.Current)
	if err != nil {
		return step{}, progression.ConfigError(d.Name, err)
	}
	prev := d.Current.String()
	if !res.Moved() {
		return step{kind: OutcomeNoOp, previous: prev, next: prev, reason: res.Bound.String()}, nil
	}

	d.Current = res.Value
	d.LastChangeAt = &now
	d.Status = progression.StatusRegressing
	return step{kind: OutcomeRegressed, change: change, previous: prev, next: d.Current.String()}, nil
}

func touch(d *progression.Dimension, now time.Time) step {
	d.LastCeilingTouchAt = &now
	v := d.Current.String()
	return step{kind: OutcomeCeilingTouched, change: progression.ChangeCeilingTouch, previous: v, next: v}
}

func held(d *progression.Dimension, reason string) step {
	v := d.Current.String()
	return step{kind: OutcomeHeld, previous: v, next: v, reason: reason}
}

// selectStep picks the regulated option for band. The stored baseline is
// never changed; with regulated touches enabled an upper-bound selection
// is logged as a ceiling touch.
func (e *Engine) selectStep(d *progression.Dimension, band progression.FatigueBand, now time.Time) (step, error) {
	selected, err := policy.Select(d.Step, d.Ceiling, band)
	if err != nil {
		return step{}, progression.ConfigError(d.Name, err)
	}
	st := step{
		kind:     OutcomeSelected,
		previous: d.Current.String(),
		next:     selected.String(),
		reason:   string(band),
	}
	if e.regulatedTouches && selected.Equal(d.Ceiling) {
		d.LastCeilingTouchAt = &now
		st.change = progression.ChangeCeilingTouch
		st.previous = selected.String()
	}
	return st, nil
}

// ProgressDimension advances a progressive dimension one step on operator
// request. At the ceiling, or on a regulated dimension, the outcome is
// no_op with an INVALID_TRANSITION error attached.
func (e *Engine) ProgressDimension(ctx context.Context, name string) (Outcome, error) {
	return e.manual(ctx, name, "progress", advance)
}

// RegressDimension retreats a progressive dimension one step on operator
// request.
func (e *Engine) RegressDimension(ctx context.Context, name string) (Outcome, error) {
	return e.manual(ctx, name, "regress", retreat)
}

func (e *Engine) manual(ctx context.Context, name, operation string,
	move func(*progression.Dimension, time.Time, progression.ChangeType) (step, error),
) (Outcome, error) {
	name = progression.NormalizeLabel(name)
	return e.commit(ctx, name, "", manualSnapshot(operation, nil), func(d *progression.Dimension, now time.Time) (step, error) {
		if d.IsRegulated() {
			v := d.Current.String()
			return step{
				kind:     OutcomeNoOp,
				previous: v,
				next:     v,
				err:      progression.InvalidTransitionError(d.Name, "regulated dimensions cannot %s", operation),
			}, nil
		}
		st, err := move(d, now, progression.ChangeManual)
		if err != nil {
			return st, err
		}
		if st.kind == OutcomeNoOp {
			st.err = progression.InvalidTransitionError(d.Name, "%s", st.reason)
		}
		return st, nil
	})
}

// TouchCeiling records that workoutID executed the dimension at its
// ceiling. Progressive dimensions must have their current value equal to
// the ceiling and move to at_ceiling; regulated dimensions always accept.
func (e *Engine) TouchCeiling(ctx context.Context, name, workoutID string) (Outcome, error) {
	name = progression.NormalizeLabel(name)
	workoutID = progression.NormalizeLabel(workoutID)
	snapshot := manualSnapshot("touch_ceiling", nil)

	return e.commit(ctx, name, workoutID, snapshot, func(d *progression.Dimension, now time.Time) (step, error) {
		if d.IsRegulated() {
			d.LastCeilingTouchAt = &now
			v := d.Ceiling.String()
			return step{kind: OutcomeCeilingTouched, change: progression.ChangeCeilingTouch, previous: v, next: v}, nil
		}
		if !d.AtCeilingValue() {
			v := d.Current.String()
			return step{
				kind:     OutcomeNoOp,
				previous: v,
				next:     v,
				err: progression.InvalidTransitionError(d.Name,
					"dimension is %s at %s, ceiling is %s", d.Status, d.Current, d.Ceiling),
			}, nil
		}
		d.Status = progression.StatusAtCeiling
		return touch(d, now), nil
	})
}

// SetDimensionCeiling replaces a dimension's ceiling. An invalid ceiling is
// a CONFIG_ERROR and nothing is written.
func (e *Engine) SetDimensionCeiling(ctx context.Context, name, ceiling string) (Outcome, error) {
	name = progression.NormalizeLabel(name)
	ceiling = progression.NormalizeLabel(ceiling)
	now := e.Now()

	res, err := e.store.SetCeiling(ctx, name, ceiling, progression.HistoryEntry{
		ID:              e.ids.Generate(),
		ContextSnapshot: manualSnapshot("set_ceiling", map[string]string{"ceiling": ceiling}),
		CreatedAt:       now,
	})
	e.metrics.RecordConflicts(res.Attempts - 1)
	if err != nil {
		return Outcome{}, err
	}

	state := res.Dimension
	out := Outcome{
		Dimension: name,
		Kind:      OutcomeCeilingUpdated,
		Previous:  res.Entry.PreviousValue,
		Value:     res.Entry.NewValue,
		Status:    state.Status,
		Entry:     res.Entry,
		State:     &state,
	}
	e.record(out)
	return out, nil
}

// SelectRegulated previews the option a regulated dimension would take for
// band. Nothing is written.
func (e *Engine) SelectRegulated(ctx context.Context, name string, band progression.FatigueBand) (Outcome, error) {
	d, err := e.GetDimension(ctx, name)
	if err != nil {
		return Outcome{}, err
	}
	if !d.IsRegulated() {
		return Outcome{}, progression.InvalidTransitionError(d.Name, "dimension uses %s steps, not regulated", d.Step.Kind)
	}
	if parsed, ok := progression.ParseFatigueBand(string(band)); ok {
		band = parsed
	} else {
		band = progression.BandModerate
	}

	selected, err := policy.Select(d.Step, d.Ceiling, band)
	if err != nil {
		return Outcome{}, progression.ConfigError(d.Name, err)
	}
	out := Outcome{
		Dimension: d.Name,
		Kind:      OutcomeSelected,
		Previous:  d.Current.String(),
		Value:     selected.String(),
		Status:    d.Status,
		Reason:    string(band),
		State:     &d,
	}
	e.record(out)
	return out, nil
}

// StaleCheck parameterizes a staleness-driven regression.
type StaleCheck struct {
	// GraceDays is added to the dimension's maintenance cadence.
	GraceDays int

	// SweepID identifies the detector run in the history snapshot.
	SweepID string
}

// RegressStale retreats a dimension that sat at its ceiling without a touch
// for its cadence plus the grace period. Staleness is re-evaluated against
// the freshly read record, so a concurrent touch or an earlier sweep makes
// this a no_op.
func (e *Engine) RegressStale(ctx context.Context, name string, check StaleCheck) (Outcome, error) {
	name = progression.NormalizeLabel(name)

	out, err := e.commit(ctx, name, "", nil, func(d *progression.Dimension, now time.Time) (step, error) {
		if !d.IsStale(now, check.GraceDays) {
			v := d.Current.String()
			return step{kind: OutcomeNoOp, previous: v, next: v, reason: "not stale"}, nil
		}
		days, _ := d.DaysSinceTouch(now)
		snapshot, err := json.Marshal(staleSnapshot{
			Reason:                 "stale_ceiling",
			DaysSinceTouch:         days,
			MaintenanceCadenceDays: d.MaintenanceCadenceDays,
			GraceDays:              check.GraceDays,
			SweepID:                check.SweepID,
		})
		if err != nil {
			return step{}, fmt.Errorf("marshal stale snapshot: %w", err)
		}
		st, err := retreat(d, now, progression.ChangeRegress)
		if err != nil {
			return step{}, err
		}
		st.snapshot = snapshot
		return st, nil
	})
	if err != nil {
		return Outcome{}, err
	}
	if out.Kind == OutcomeRegressed {
		e.metrics.RecordStaleRegression(name)
	}
	return out, nil
}

// staleSnapshot is the context snapshot of a staleness-driven regression.
type staleSnapshot struct {
	Reason                 string `json:"reason"`
	DaysSinceTouch         int    `json:"days_since_touch"`
	MaintenanceCadenceDays int    `json:"maintenance_cadence_days"`
	GraceDays              int    `json:"grace_days"`
	SweepID                string `json:"sweep_id,omitempty"`
}
