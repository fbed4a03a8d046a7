package progression

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Value is a typed dimension value. Its shape follows the StepKind it was
// parsed against: a sequence label with its position, or an integer
// magnitude for increment and regulated kinds. The zero Value is invalid.
type Value struct {
	kind   StepKind
	label  string
	index  int
	amount int
}

// Kind returns the step kind the value belongs to.
func (v Value) Kind() StepKind { return v.kind }

// IsZero reports whether v is the invalid zero Value.
func (v Value) IsZero() bool { return v.kind == "" }

// Index returns the position of a sequence label.
func (v Value) Index() int { return v.index }

// Amount returns the magnitude of an increment or regulated value.
func (v Value) Amount() int { return v.amount }

// String returns the stored text form.
func (v Value) String() string {
	switch v.kind {
	case KindSequence:
		return v.label
	case KindIncrement, KindRegulated:
		return strconv.Itoa(v.amount)
	default:
		return ""
	}
}

// Equal reports whether two values have the same kind and position.
func (v Value) Equal(o Value) bool {
	return v.kind == o.kind && v.Compare(o) == 0
}

// Compare orders values of the same kind: by index for sequences and by
// magnitude otherwise. Values of different kinds compare by kind name.
func (v Value) Compare(o Value) int {
	if v.kind != o.kind {
		return strings.Compare(string(v.kind), string(o.kind))
	}
	a, b := v.amount, o.amount
	if v.kind == KindSequence {
		a, b = v.index, o.index
	}
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

// MarshalJSON encodes the text form.
func (v Value) MarshalJSON() ([]byte, error) {
	return json.Marshal(v.String())
}

// ParseValue interprets text against the configuration's value space.
func (c StepConfig) ParseValue(text string) (Value, error) {
	switch c.Kind {
	case KindSequence:
		label := NormalizeLabel(text)
		for i, candidate := range c.Sequence {
			if NormalizeLabel(candidate) == label {
				return Value{kind: KindSequence, label: label, index: i}, nil
			}
		}
		return Value{}, fmt.Errorf("value %q is not in sequence %v", text, c.Sequence)
	case KindIncrement:
		n, err := strconv.Atoi(strings.TrimSpace(text))
		if err != nil {
			return Value{}, fmt.Errorf("value %q is not an integer", text)
		}
		if n < 0 {
			return Value{}, fmt.Errorf("value %d must not be negative", n)
		}
		return Value{kind: KindIncrement, amount: n}, nil
	case KindRegulated:
		n, err := strconv.Atoi(strings.TrimSpace(text))
		if err != nil {
			return Value{}, fmt.Errorf("value %q is not an integer", text)
		}
		v, ok := c.OptionValue(n)
		if !ok {
			return Value{}, fmt.Errorf("value %d is not one of options %v", n, c.Options)
		}
		return v, nil
	default:
		return Value{}, fmt.Errorf("unknown step type %q", c.Kind)
	}
}

// SequenceValue returns the label at index.
func (c StepConfig) SequenceValue(index int) (Value, bool) {
	if c.Kind != KindSequence || index < 0 || index >= len(c.Sequence) {
		return Value{}, false
	}
	return Value{kind: KindSequence, label: NormalizeLabel(c.Sequence[index]), index: index}, true
}

// MagnitudeValue returns an increment value of amount.
func (c StepConfig) MagnitudeValue(amount int) (Value, bool) {
	if c.Kind != KindIncrement || amount < 0 {
		return Value{}, false
	}
	return Value{kind: KindIncrement, amount: amount}, true
}

// OptionValue returns the regulated option equal to amount.
func (c StepConfig) OptionValue(amount int) (Value, bool) {
	if c.Kind != KindRegulated {
		return Value{}, false
	}
	for _, opt := range c.Options {
		if opt == amount {
			return Value{kind: KindRegulated, amount: amount}, true
		}
	}
	return Value{}, false
}
