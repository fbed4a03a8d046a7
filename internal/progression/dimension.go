package progression

import (
	"errors"
	"fmt"
	"strconv"
	"time"
)

// Status is the position of a progressive dimension in its state machine:
// building -> at_ceiling -> regressing -> building.
type Status string

const (
	StatusBuilding   Status = "building"
	StatusAtCeiling  Status = "at_ceiling"
	StatusRegressing Status = "regressing"
)

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusBuilding, StatusAtCeiling, StatusRegressing:
		return true
	}
	return false
}

// ParseStatus converts stored text to a Status.
func ParseStatus(s string) (Status, error) {
	status := Status(s)
	if !status.Valid() {
		return "", fmt.Errorf("unknown status %q", s)
	}
	return status, nil
}

// DefaultDaysSinceChange is reported for a dimension that has never moved.
const DefaultDaysSinceChange = 30

// Dimension is one tracked training axis.
type Dimension struct {
	Name                   string     `json:"name"`
	Current                Value      `json:"current_value"`
	Ceiling                Value      `json:"ceiling_value"`
	Step                   StepConfig `json:"step_config"`
	Status                 Status     `json:"status"`
	LastChangeAt           *time.Time `json:"last_change_at,omitempty"`
	LastCeilingTouchAt     *time.Time `json:"last_ceiling_touch_at,omitempty"`
	MaintenanceCadenceDays int        `json:"maintenance_cadence_days"`
	CreatedAt              time.Time  `json:"created_at"`
	UpdatedAt              time.Time  `json:"updated_at"`

	// Version increments on every write and backs optimistic concurrency.
	Version int64 `json:"version"`
}

// NewDimension parses current and ceiling against step and returns a
// building dimension. The step configuration is normalized first.
func NewDimension(name string, step StepConfig, current, ceiling string, cadenceDays int) (Dimension, error) {
	step = step.Normalize()
	if err := step.Validate(); err != nil {
		return Dimension{}, ConfigError(name, err)
	}
	cur, err := step.ParseValue(current)
	if err != nil {
		return Dimension{}, ConfigError(name, fmt.Errorf("current value: %w", err))
	}
	ceil, err := step.ParseValue(ceiling)
	if err != nil {
		return Dimension{}, ConfigError(name, fmt.Errorf("ceiling value: %w", err))
	}
	d := Dimension{
		Name:                   name,
		Current:                cur,
		Ceiling:                ceil,
		Step:                   step,
		Status:                 StatusBuilding,
		MaintenanceCadenceDays: cadenceDays,
	}
	if err := d.Validate(); err != nil {
		return Dimension{}, err
	}
	return d, nil
}

// IsRegulated reports whether the dimension uses the regulated kind.
func (d Dimension) IsRegulated() bool {
	return d.Step.Kind == KindRegulated
}

// Validate checks every invariant of the record. It re-parses the stored
// values against the step configuration so a stale or hand-edited record
// cannot slip through.
func (d Dimension) Validate() error {
	if err := ValidateName(d.Name); err != nil {
		return ConfigError(d.Name, err)
	}
	if err := d.Step.Validate(); err != nil {
		return ConfigError(d.Name, err)
	}
	cur, err := d.Step.ParseValue(d.Current.String())
	if err != nil {
		return ConfigError(d.Name, fmt.Errorf("current value: %w", err))
	}
	ceil, err := d.Step.ParseValue(d.Ceiling.String())
	if err != nil {
		return ConfigError(d.Name, fmt.Errorf("ceiling value: %w", err))
	}
	if d.Step.IsProgressive() && cur.Compare(ceil) > 0 {
		return ConfigError(d.Name, fmt.Errorf("current value %s exceeds ceiling %s", cur, ceil))
	}
	if d.Step.Kind == KindIncrement {
		if cur.Amount() < d.Step.Floor {
			return ConfigError(d.Name, fmt.Errorf("current value %s is below floor %d", cur, d.Step.Floor))
		}
		if ceil.Amount() < d.Step.Floor {
			return ConfigError(d.Name, fmt.Errorf("ceiling %s is below floor %d", ceil, d.Step.Floor))
		}
	}
	if !d.Status.Valid() {
		return ConfigError(d.Name, fmt.Errorf("unknown status %q", d.Status))
	}
	if d.MaintenanceCadenceDays <= 0 {
		return ConfigError(d.Name, errors.New("maintenance cadence must be positive"))
	}
	return nil
}

// Clone returns a deep copy.
func (d Dimension) Clone() Dimension {
	out := d
	out.Step = d.Step.Clone()
	out.LastChangeAt = cloneTime(d.LastChangeAt)
	out.LastCeilingTouchAt = cloneTime(d.LastCeilingTouchAt)
	return out
}

// AtCeilingValue reports whether the current value has reached the ceiling.
func (d Dimension) AtCeilingValue() bool {
	return d.Current.Compare(d.Ceiling) >= 0
}

// WithCeiling returns a copy with a new ceiling. For sequences, a label not
// yet in the sequence is appended as the new last element. The new ceiling
// must not fall below the current value.
func (d Dimension) WithCeiling(text string) (Dimension, error) {
	out := d.Clone()
	switch d.Step.Kind {
	case KindSequence:
		label := NormalizeLabel(text)
		if label == "" {
			return Dimension{}, ConfigError(d.Name, errors.New("ceiling label is empty"))
		}
		v, err := out.Step.ParseValue(label)
		if err != nil {
			out.Step.Sequence = append(out.Step.Sequence, label)
			v, _ = out.Step.SequenceValue(len(out.Step.Sequence) - 1)
		}
		if v.Index() < d.Current.Index() {
			return Dimension{}, ConfigError(d.Name, fmt.Errorf("ceiling %q precedes current value %q", label, d.Current))
		}
		out.Ceiling = v
	case KindIncrement:
		n, err := strconv.Atoi(text)
		if err != nil {
			return Dimension{}, ConfigError(d.Name, fmt.Errorf("ceiling %q is not an integer", text))
		}
		if n < d.Current.Amount() {
			return Dimension{}, ConfigError(d.Name, fmt.Errorf("ceiling %d is below current value %s", n, d.Current))
		}
		v, _ := out.Step.MagnitudeValue(n)
		out.Ceiling = v
	case KindRegulated:
		v, err := out.Step.ParseValue(text)
		if err != nil {
			return Dimension{}, ConfigError(d.Name, fmt.Errorf("ceiling: %w", err))
		}
		out.Ceiling = v
	default:
		return Dimension{}, ConfigError(d.Name, fmt.Errorf("unknown step type %q", d.Step.Kind))
	}
	if err := out.Validate(); err != nil {
		return Dimension{}, err
	}
	return out, nil
}

// WholeDays returns the number of complete days between from and to, or 0
// if to is not after from.
func WholeDays(from, to time.Time) int {
	if !to.After(from) {
		return 0
	}
	return int(to.Sub(from) / (24 * time.Hour))
}

// DaysSinceChange returns whole days since the last value change, or
// DefaultDaysSinceChange if the dimension has never moved.
func (d Dimension) DaysSinceChange(now time.Time) int {
	if d.LastChangeAt == nil {
		return DefaultDaysSinceChange
	}
	return WholeDays(*d.LastChangeAt, now)
}

// DaysSinceTouch returns whole days since the last ceiling touch. ok is
// false if the ceiling has never been touched.
func (d Dimension) DaysSinceTouch(now time.Time) (days int, ok bool) {
	if d.LastCeilingTouchAt == nil {
		return 0, false
	}
	return WholeDays(*d.LastCeilingTouchAt, now), true
}

// MaintenanceDue reports whether a touched ceiling has gone at least one
// cadence without another touch.
func (d Dimension) MaintenanceDue(now time.Time) bool {
	days, ok := d.DaysSinceTouch(now)
	return ok && days >= d.MaintenanceCadenceDays
}

// StaleThreshold returns the whole-day age of the last ceiling touch at
// which the dimension is regressed.
func (d Dimension) StaleThreshold(graceDays int) int {
	return d.MaintenanceCadenceDays + graceDays
}

// IsStale reports whether a progressive dimension sitting at its ceiling
// has gone the cadence plus graceDays without a ceiling touch. Building,
// regressing, never-touched and regulated dimensions are never stale.
func (d Dimension) IsStale(now time.Time, graceDays int) bool {
	if !d.Step.IsProgressive() || d.Status != StatusAtCeiling {
		return false
	}
	days, ok := d.DaysSinceTouch(now)
	return ok && days >= d.StaleThreshold(graceDays)
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	c := *t
	return &c
}
