package progression

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
)

// StepKind selects the progression strategy of a dimension.
type StepKind string

const (
	// KindSequence steps through an ordered list of discrete labels.
	KindSequence StepKind = "sequence"

	// KindIncrement adds or removes a fixed integer amount.
	KindIncrement StepKind = "increment"

	// KindRegulated selects one option per workout from a fixed set.
	KindRegulated StepKind = "regulated"
)

// StepConfig is the tagged step configuration of a dimension. Kind is the
// discriminator; only the fields belonging to that kind are meaningful.
//
// The JSON form carries the discriminator in a "type" field:
//
//	{"type":"sequence","sequence":["4:1","5:1"]}
//	{"type":"increment","increment":5,"floor":30,"unit":"min"}
//	{"type":"regulated","options":[45,60],"unit":"min"}
type StepConfig struct {
	Kind StepKind

	// Sequence holds the ordered labels (sequence kind).
	Sequence []string

	// Increment is the step size and Floor the lowest reachable magnitude
	// (increment kind).
	Increment int
	Floor     int

	// Options holds the allowed magnitudes in ascending order (regulated kind).
	Options []int

	// Unit labels magnitudes, e.g. "min" (increment and regulated kinds).
	Unit string
}

// SequenceStep builds a sequence configuration.
func SequenceStep(labels ...string) StepConfig {
	return StepConfig{Kind: KindSequence, Sequence: labels}
}

// IncrementStep builds an increment configuration.
func IncrementStep(increment, floor int, unit string) StepConfig {
	return StepConfig{Kind: KindIncrement, Increment: increment, Floor: floor, Unit: unit}
}

// RegulatedStep builds a regulated configuration.
func RegulatedStep(unit string, options ...int) StepConfig {
	return StepConfig{Kind: KindRegulated, Options: options, Unit: unit}
}

// IsProgressive reports whether the kind supports advance and retreat.
func (c StepConfig) IsProgressive() bool {
	return c.Kind == KindSequence || c.Kind == KindIncrement
}

// Clone returns a deep copy.
func (c StepConfig) Clone() StepConfig {
	out := c
	if c.Sequence != nil {
		out.Sequence = append([]string(nil), c.Sequence...)
	}
	if c.Options != nil {
		out.Options = append([]int(nil), c.Options...)
	}
	return out
}

// Normalize returns a copy with NFC-normalized labels and ascending options.
func (c StepConfig) Normalize() StepConfig {
	out := c.Clone()
	for i, label := range out.Sequence {
		out.Sequence[i] = NormalizeLabel(label)
	}
	sort.Ints(out.Options)
	return out
}

// Validate checks the configuration for the selected kind.
func (c StepConfig) Validate() error {
	switch c.Kind {
	case KindSequence:
		if len(c.Sequence) == 0 {
			return errors.New("sequence step requires at least one label")
		}
		seen := make(map[string]bool, len(c.Sequence))
		for i, label := range c.Sequence {
			label = NormalizeLabel(label)
			if label == "" {
				return fmt.Errorf("sequence label %d is empty", i)
			}
			if seen[label] {
				return fmt.Errorf("sequence label %q appears more than once", label)
			}
			seen[label] = true
		}
		if c.Increment != 0 || len(c.Options) != 0 {
			return errors.New("sequence step must not set increment or options")
		}
	case KindIncrement:
		if c.Increment <= 0 {
			return fmt.Errorf("increment must be positive, got %d", c.Increment)
		}
		if c.Floor < 0 {
			return fmt.Errorf("floor must not be negative, got %d", c.Floor)
		}
		if len(c.Sequence) != 0 || len(c.Options) != 0 {
			return errors.New("increment step must not set sequence or options")
		}
	case KindRegulated:
		if len(c.Options) == 0 {
			return errors.New("regulated step requires at least one option")
		}
		seen := make(map[int]bool, len(c.Options))
		for _, opt := range c.Options {
			if opt <= 0 {
				return fmt.Errorf("regulated option must be positive, got %d", opt)
			}
			if seen[opt] {
				return fmt.Errorf("regulated option %d appears more than once", opt)
			}
			seen[opt] = true
		}
		if len(c.Sequence) != 0 || c.Increment != 0 {
			return errors.New("regulated step must not set sequence or increment")
		}
	case "":
		return errors.New("step type is missing")
	default:
		return fmt.Errorf("unknown step type %q", c.Kind)
	}
	return nil
}

// stepConfigJSON is the wire shape of StepConfig.
type stepConfigJSON struct {
	Type      StepKind `json:"type"`
	Sequence  []string `json:"sequence,omitempty"`
	Increment int      `json:"increment,omitempty"`
	Floor     *int     `json:"floor,omitempty"`
	Options   []int    `json:"options,omitempty"`
	Unit      string   `json:"unit,omitempty"`
}

// MarshalJSON emits only the fields of the selected kind.
func (c StepConfig) MarshalJSON() ([]byte, error) {
	out := stepConfigJSON{Type: c.Kind, Unit: c.Unit}
	switch c.Kind {
	case KindSequence:
		out.Sequence = c.Sequence
	case KindIncrement:
		floor := c.Floor
		out.Increment = c.Increment
		out.Floor = &floor
	case KindRegulated:
		out.Options = c.Options
	}
	return json.Marshal(out)
}

// UnmarshalJSON decodes and validates a step configuration. Unknown fields
// and unknown discriminators are rejected.
func (c *StepConfig) UnmarshalJSON(data []byte) error {
	parsed, err := ParseStepConfig(data)
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}

// ParseStepConfig decodes, normalizes and validates a JSON step
// configuration.
func ParseStepConfig(data []byte) (StepConfig, error) {
	var raw stepConfigJSON
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&raw); err != nil {
		return StepConfig{}, fmt.Errorf("decode step config: %w", err)
	}

	cfg := StepConfig{
		Kind:      raw.Type,
		Sequence:  raw.Sequence,
		Increment: raw.Increment,
		Options:   raw.Options,
		Unit:      raw.Unit,
	}
	if raw.Floor != nil {
		cfg.Floor = *raw.Floor
	}
	cfg = cfg.Normalize()
	if err := cfg.Validate(); err != nil {
		return StepConfig{}, err
	}
	return cfg, nil
}
