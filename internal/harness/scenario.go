package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/roach88/ceiling/internal/progression"
)

// DefaultStart is the fake clock's start when a scenario gives none.
var DefaultStart = time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)

// Scenario defines a progression test scenario.
// Scenarios execute a flow of operations against a freshly seeded database
// and assert on the resulting trace and final state.
type Scenario struct {
	// Name uniquely identifies this scenario. It also names the golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Catalog is a directory of .cue files to seed from. Relative paths are
	// resolved against the scenario file. Empty means the built-in catalog.
	Catalog string `yaml:"catalog,omitempty"`

	// Start is the fake clock's initial time. Default: DefaultStart.
	Start *time.Time `yaml:"start,omitempty"`

	// GraceDays is passed to every sweep. Default: detector.DefaultGraceDays.
	GraceDays *int `yaml:"grace_days,omitempty"`

	// RegulatedTouches enables ceiling touches on regulated selections.
	RegulatedTouches bool `yaml:"regulated_touches,omitempty"`

	// Flow contains the operations to execute, in order.
	Flow []FlowStep `yaml:"flow"`

	// Assertions validate the final trace and state.
	Assertions []Assertion `yaml:"assertions"`
}

// FlowStep is one operation. Exactly one operation field must be set.
type FlowStep struct {
	Workout     *WorkoutStep    `yaml:"workout,omitempty"`
	Progress    string          `yaml:"progress,omitempty"`
	Regress     string          `yaml:"regress,omitempty"`
	Touch       *TouchStep      `yaml:"touch,omitempty"`
	SetCeiling  *SetCeilingStep `yaml:"set_ceiling,omitempty"`
	Select      *SelectStep     `yaml:"select,omitempty"`
	AdvanceDays int             `yaml:"advance_days,omitempty"`
	Sweep       *SweepStep      `yaml:"sweep,omitempty"`

	// Repeat runs the operation this many times. Default: 1.
	Repeat int `yaml:"repeat,omitempty"`

	// Expect is matched against the outcomes of the last repetition.
	Expect []ExpectClause `yaml:"expect,omitempty"`
}

// WorkoutStep applies one analyzed workout.
type WorkoutStep struct {
	ID      string                      `yaml:"id"`
	Context progression.TrainingContext `yaml:"context"`
}

// TouchStep records a ceiling touch.
type TouchStep struct {
	Dimension string `yaml:"dimension"`
	Workout   string `yaml:"workout"`
}

// SetCeilingStep replaces a ceiling.
type SetCeilingStep struct {
	Dimension string `yaml:"dimension"`
	Value     string `yaml:"value"`
}

// SelectStep previews a regulated selection.
type SelectStep struct {
	Dimension string `yaml:"dimension"`
	Fatigue   string `yaml:"fatigue"`
}

// SweepStep runs the regression detector once.
type SweepStep struct{}

// Operation names, as they appear in traces.
const (
	OpWorkout     = "workout"
	OpProgress    = "progress"
	OpRegress     = "regress"
	OpTouch       = "touch"
	OpSetCeiling  = "set_ceiling"
	OpSelect      = "select"
	OpAdvanceDays = "advance_days"
	OpSweep       = "sweep"
)

// ops returns the operations set on the step.
func (s FlowStep) ops() []string {
	var ops []string
	if s.Workout != nil {
		ops = append(ops, OpWorkout)
	}
	if s.Progress != "" {
		ops = append(ops, OpProgress)
	}
	if s.Regress != "" {
		ops = append(ops, OpRegress)
	}
	if s.Touch != nil {
		ops = append(ops, OpTouch)
	}
	if s.SetCeiling != nil {
		ops = append(ops, OpSetCeiling)
	}
	if s.Select != nil {
		ops = append(ops, OpSelect)
	}
	if s.AdvanceDays != 0 {
		ops = append(ops, OpAdvanceDays)
	}
	if s.Sweep != nil {
		ops = append(ops, OpSweep)
	}
	return ops
}

// Op returns the step's operation name.
func (s FlowStep) Op() string {
	if ops := s.ops(); len(ops) == 1 {
		return ops[0]
	}
	return ""
}

// ExpectClause matches one outcome of a step. Empty fields match anything.
type ExpectClause struct {
	Dimension string `yaml:"dimension"`
	Kind      string `yaml:"kind,omitempty"`
	Value     string `yaml:"value,omitempty"`
	Status    string `yaml:"status,omitempty"`
	ErrorCode string `yaml:"error_code,omitempty"`
}

// Assertion validates trace or final state.
type Assertion struct {
	// Type specifies the assertion type:
	// - "dimension_state": compare a dimension's committed fields
	// - "history_count": count history entries
	// - "trace_contains": an outcome with dimension, kind and optional value
	// - "trace_order": events appear in order
	// - "trace_count": a dimension produced kind exactly Count times
	Type string `yaml:"type"`

	// Dimension is used by every type except trace_order. Optional for
	// history_count.
	Dimension string `yaml:"dimension,omitempty"`

	// Kind is the outcome kind (trace_contains, trace_count).
	Kind string `yaml:"kind,omitempty"`

	// Value is the expected outcome value (trace_contains).
	Value string `yaml:"value,omitempty"`

	// ChangeType filters history_count.
	ChangeType string `yaml:"change_type,omitempty"`

	// Expect holds current, ceiling and status (dimension_state).
	Expect map[string]string `yaml:"expect,omitempty"`

	// Count is the expected number of occurrences.
	Count int `yaml:"count,omitempty"`

	// Events are "dimension:kind" pairs (trace_order).
	Events []string `yaml:"events,omitempty"`
}

// Assertion type constants.
const (
	AssertDimensionState = "dimension_state"
	AssertHistoryCount   = "history_count"
	AssertTraceContains  = "trace_contains"
	AssertTraceOrder     = "trace_order"
	AssertTraceCount     = "trace_count"
)

// LoadScenario reads and parses a scenario YAML file.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or is missing required fields.
// A relative catalog path is resolved against the file's directory.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}

	scenario, err := ParseScenario(data)
	if err != nil {
		return nil, err
	}
	if scenario.Catalog != "" && !filepath.IsAbs(scenario.Catalog) {
		scenario.Catalog = filepath.Join(filepath.Dir(path), scenario.Catalog)
	}
	if scenario.Catalog != "" {
		if _, err := os.Stat(scenario.Catalog); err != nil {
			return nil, fmt.Errorf("invalid scenario: catalog: %w", err)
		}
	}
	return scenario, nil
}

// ParseScenario parses and validates scenario YAML.
func ParseScenario(data []byte) (*Scenario, error) {
	// Parse YAML with strict field validation (catches typos like "assertion:" vs "assertions:")
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}

	if s.Description == "" {
		return fmt.Errorf("description is required")
	}

	if len(s.Flow) == 0 {
		return fmt.Errorf("flow list is required and must be non-empty")
	}

	if s.GraceDays != nil && *s.GraceDays < 0 {
		return fmt.Errorf("grace_days must be non-negative")
	}

	for i, step := range s.Flow {
		if err := validateStep(i, step); err != nil {
			return err
		}
	}

	for i, assertion := range s.Assertions {
		if err := validateAssertion(i, &assertion); err != nil {
			return err
		}
	}

	return nil
}

func validateStep(index int, s FlowStep) error {
	ops := s.ops()
	switch {
	case len(ops) == 0:
		return fmt.Errorf("flow[%d]: no operation", index)
	case len(ops) > 1:
		return fmt.Errorf("flow[%d]: one operation per step, got %v", index, ops)
	}

	switch {
	case s.Repeat < 0:
		return fmt.Errorf("flow[%d]: repeat must be non-negative", index)
	case s.AdvanceDays < 0:
		return fmt.Errorf("flow[%d]: advance_days must be positive", index)
	case s.Workout != nil && s.Workout.ID == "":
		return fmt.Errorf("flow[%d].workout: id is required", index)
	case s.Touch != nil && (s.Touch.Dimension == "" || s.Touch.Workout == ""):
		return fmt.Errorf("flow[%d].touch: dimension and workout are required", index)
	case s.SetCeiling != nil && (s.SetCeiling.Dimension == "" || s.SetCeiling.Value == ""):
		return fmt.Errorf("flow[%d].set_ceiling: dimension and value are required", index)
	case s.Select != nil && s.Select.Dimension == "":
		return fmt.Errorf("flow[%d].select: dimension is required", index)
	}

	for j, e := range s.Expect {
		if e.Dimension == "" {
			return fmt.Errorf("flow[%d].expect[%d]: dimension is required", index, j)
		}
	}
	return nil
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(index int, a *Assertion) error {
	if a.Type == "" {
		return fmt.Errorf("assertions[%d]: type is required", index)
	}

	switch a.Type {
	case AssertDimensionState:
		if a.Dimension == "" {
			return fmt.Errorf("assertions[%d]: dimension is required for dimension_state", index)
		}
		if len(a.Expect) == 0 {
			return fmt.Errorf("assertions[%d]: expect is required for dimension_state", index)
		}
		for field := range a.Expect {
			switch field {
			case "current", "ceiling", "status":
			default:
				return fmt.Errorf("assertions[%d]: unknown dimension_state field %q", index, field)
			}
		}
	case AssertHistoryCount:
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for history_count", index)
		}
		if a.ChangeType != "" {
			if _, err := progression.ParseChangeType(a.ChangeType); err != nil {
				return fmt.Errorf("assertions[%d]: %w", index, err)
			}
		}
	case AssertTraceContains:
		if a.Dimension == "" || a.Kind == "" {
			return fmt.Errorf("assertions[%d]: dimension and kind are required for trace_contains", index)
		}
	case AssertTraceOrder:
		if len(a.Events) == 0 {
			return fmt.Errorf("assertions[%d]: events list is required for trace_order", index)
		}
	case AssertTraceCount:
		if a.Dimension == "" || a.Kind == "" {
			return fmt.Errorf("assertions[%d]: dimension and kind are required for trace_count", index)
		}
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for trace_count", index)
		}
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}

	return nil
}
