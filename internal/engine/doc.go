// Package engine implements the progression decision engine.
//
// The engine is the state machine that decides, per dimension, whether a
// workout advances it, holds it, regresses it or registers a ceiling touch:
//
//	building -> at_ceiling -> regressing -> building
//
// Every decision runs inside Store.CompareAndUpdate: the dimension is read,
// the step policy is applied to a copy, and the new state is written together
// with exactly one history entry. A write collision re-runs the decision
// from a fresh read.
//
// Outcomes, not errors, describe the normal results of a decision. Reaching
// a bound is a no_op outcome. A malformed dimension is a skipped outcome in
// batch processing, so one bad record never blocks the rest of a workout.
// Only unknown names on single-dimension calls, storage failures and context
// cancellation are returned as errors.
//
// Regulated dimensions never move. Each workout yields a selected option
// for the current fatigue band. With WithRegulatedCeilingTouches, a
// selection at the upper bound is also logged as a ceiling touch.
package engine
