// Package policy implements the three step strategies: sequence, increment
// and regulated. Every function is pure.
//
// Reaching a bound is a defined outcome, reported through Result.Bound,
// not an error.
package policy

import (
	"errors"
	"fmt"

	"github.com/roach88/ceiling/internal/progression"
)

// Bound reports why a step could not move.
type Bound int

const (
	// BoundNone means the step moved.
	BoundNone Bound = iota

	// BoundCeiling means the value is already at the ceiling.
	BoundCeiling

	// BoundFloor means the value cannot regress further.
	BoundFloor
)

func (b Bound) String() string {
	switch b {
	case BoundCeiling:
		return "already at ceiling"
	case BoundFloor:
		return "cannot regress further"
	default:
		return "moved"
	}
}

// Result is the outcome of Advance or Retreat.
type Result struct {
	// Value is the next value, or the unchanged current value at a bound.
	Value progression.Value
	Bound Bound
}

// Moved reports whether the step produced a new value.
func (r Result) Moved() bool {
	return r.Bound == BoundNone
}

// ErrNotProgressive is returned when Advance or Retreat is asked to move a
// regulated dimension.
var ErrNotProgressive = errors.New("regulated dimensions do not advance or retreat")

// Advance computes the next value toward the ceiling.
func Advance(step progression.StepConfig, current, ceiling progression.Value) (Result, error) {
	if err := checkKinds(step, current, ceiling); err != nil {
		return Result{}, err
	}

	switch step.Kind {
	case progression.KindSequence:
		if current.Index() >= ceiling.Index() {
			return Result{Value: current, Bound: BoundCeiling}, nil
		}
		next, ok := step.SequenceValue(current.Index() + 1)
		if !ok {
			return Result{}, fmt.Errorf("sequence has no label after %q", current)
		}
		return Result{Value: next}, nil

	case progression.KindIncrement:
		if current.Amount() >= ceiling.Amount() {
			return Result{Value: current, Bound: BoundCeiling}, nil
		}
		next, _ := step.MagnitudeValue(min(current.Amount()+step.Increment, ceiling.Amount()))
		return Result{Value: next}, nil

	default:
		return Result{}, ErrNotProgressive
	}
}

// Retreat computes the previous value, never going below the first label
// or the increment floor.
func Retreat(step progression.StepConfig, current progression.Value) (Result, error) {
	if err := checkKinds(step, current); err != nil {
		return Result{}, err
	}

	switch step.Kind {
	case progression.KindSequence:
		if current.Index() <= 0 {
			return Result{Value: current, Bound: BoundFloor}, nil
		}
		prev, ok := step.SequenceValue(current.Index() - 1)
		if !ok {
			return Result{}, fmt.Errorf("sequence has no label before %q", current)
		}
		return Result{Value: prev}, nil

	case progression.KindIncrement:
		if current.Amount() <= step.Floor {
			return Result{Value: current, Bound: BoundFloor}, nil
		}
		prev, _ := step.MagnitudeValue(max(current.Amount()-step.Increment, step.Floor))
		return Result{Value: prev}, nil

	default:
		return Result{}, ErrNotProgressive
	}
}

// Select picks a regulated option for a fatigue band. Only options at or
// below the ceiling are eligible. With n eligible options, high fatigue
// picks the lowest, fresh the highest and moderate the lower middle.
func Select(step progression.StepConfig, ceiling progression.Value, band progression.FatigueBand) (progression.Value, error) {
	if step.Kind != progression.KindRegulated {
		return progression.Value{}, fmt.Errorf("select requires a regulated step, got %q", step.Kind)
	}
	if err := checkKinds(step, ceiling); err != nil {
		return progression.Value{}, err
	}

	eligible := make([]int, 0, len(step.Options))
	for _, opt := range step.Options {
		if opt <= ceiling.Amount() {
			eligible = append(eligible, opt)
		}
	}
	if len(eligible) == 0 {
		return progression.Value{}, fmt.Errorf("no option at or below ceiling %s", ceiling)
	}

	idx := band.Rank() * (len(eligible) - 1) / 2
	v, _ := step.OptionValue(eligible[idx])
	return v, nil
}

// checkKinds rejects values that were not parsed against step.
func checkKinds(step progression.StepConfig, values ...progression.Value) error {
	for _, v := range values {
		if v.Kind() != step.Kind {
			return fmt.Errorf("value %q has kind %q, step is %q", v, v.Kind(), step.Kind)
		}
	}
	return nil
}
