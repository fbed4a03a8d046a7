package progression

import (
	"encoding/json"
	"fmt"
	"time"
)

// ChangeType classifies a history entry.
type ChangeType string

const (
	ChangeProgress      ChangeType = "progress"
	ChangeRegress       ChangeType = "regress"
	ChangeCeilingTouch  ChangeType = "ceiling_touch"
	ChangeManual        ChangeType = "manual"
	ChangeCeilingUpdate ChangeType = "ceiling_update"
)

// Valid reports whether c is a known change type.
func (c ChangeType) Valid() bool {
	switch c {
	case ChangeProgress, ChangeRegress, ChangeCeilingTouch, ChangeManual, ChangeCeilingUpdate:
		return true
	}
	return false
}

// ParseChangeType converts stored text to a ChangeType.
func ParseChangeType(s string) (ChangeType, error) {
	c := ChangeType(s)
	if !c.Valid() {
		return "", fmt.Errorf("unknown change type %q", s)
	}
	return c, nil
}

// HistoryEntry is one immutable audit record. Exactly one entry is written
// per accepted transition, in the same transaction as the dimension update.
type HistoryEntry struct {
	ID            string     `json:"id"`
	Seq           int64      `json:"seq"`
	DimensionName string     `json:"dimension_name"`
	PreviousValue string     `json:"previous_value"`
	NewValue      string     `json:"new_value"`
	ChangeType    ChangeType `json:"change_type"`

	// TriggerWorkoutID references the workout that caused the change. Empty
	// for manual and administrative changes.
	TriggerWorkoutID string `json:"trigger_workout_id,omitempty"`

	// ContextSnapshot is the training context considered at decision time.
	// It is stored for auditing and never interpreted again.
	ContextSnapshot json.RawMessage `json:"context_snapshot"`

	CreatedAt time.Time `json:"created_at"`
}
