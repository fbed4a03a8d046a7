package engine

import "github.com/roach88/ceiling/internal/progression"

// OutcomeKind classifies the result of one decision.
type OutcomeKind string

const (
	OutcomeProgressed     OutcomeKind = "progressed"
	OutcomeRegressed      OutcomeKind = "regressed"
	OutcomeCeilingTouched OutcomeKind = "ceiling_touched"
	OutcomeCeilingUpdated OutcomeKind = "ceiling_updated"

	// OutcomeHeld means the workout was relevant but the verdict did not
	// call for movement.
	OutcomeHeld OutcomeKind = "held"

	// OutcomeNoOp means movement was requested but the dimension is already
	// at a bound, or the transition is not allowed from its state.
	OutcomeNoOp OutcomeKind = "no_op"

	// OutcomeSelected is the per-workout choice for a regulated dimension.
	OutcomeSelected OutcomeKind = "selected"

	// OutcomeSkipped means the decision was abandoned for this dimension,
	// typically because of a CONFIG_ERROR. Err holds the cause.
	OutcomeSkipped OutcomeKind = "skipped"

	// OutcomeNotFound reports a classified dimension that does not exist.
	OutcomeNotFound OutcomeKind = "not_found"
)

// Changed reports whether the outcome wrote a history entry.
func (k OutcomeKind) Changed() bool {
	switch k {
	case OutcomeProgressed, OutcomeRegressed, OutcomeCeilingTouched, OutcomeCeilingUpdated:
		return true
	}
	return false
}

// Outcome is the result of one decision for one dimension.
type Outcome struct {
	Dimension string      `json:"dimension"`
	Kind      OutcomeKind `json:"kind"`

	// Previous and Value are the dimension's value before and after the
	// decision. For selected outcomes Value is the selected option.
	Previous string             `json:"previous_value,omitempty"`
	Value    string             `json:"value,omitempty"`
	Status   progression.Status `json:"status,omitempty"`

	// Reason explains held, no_op and skipped outcomes.
	Reason string `json:"reason,omitempty"`

	// ErrorCode mirrors Err for serialized output.
	ErrorCode progression.ErrorCode `json:"error_code,omitempty"`

	// Entry is the appended history entry, if any.
	Entry *progression.HistoryEntry `json:"entry,omitempty"`

	// State is the committed dimension after the decision.
	State *progression.Dimension `json:"state,omitempty"`

	// Err is the INVALID_TRANSITION, CONFIG_ERROR, NOT_FOUND or CONFLICT
	// attached to a non-change outcome.
	Err error `json:"-"`
}

// failedOutcome builds a skipped or not_found outcome from err.
func failedOutcome(name string, err error) Outcome {
	kind := OutcomeSkipped
	if progression.IsNotFound(err) {
		kind = OutcomeNotFound
	}
	return Outcome{
		Dimension: name,
		Kind:      kind,
		Reason:    err.Error(),
		ErrorCode: progression.CodeOf(err),
		Err:       err,
	}
}
