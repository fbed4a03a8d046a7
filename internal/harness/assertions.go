package harness

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/roach88/ceiling/internal/progression"
	"github.com/roach88/ceiling/internal/store"
)

// AssertionError is returned when an assertion fails.
// It includes detailed context to help debug the failure.
type AssertionError struct {
	Type     string       // Assertion type for categorization
	Expected string       // Human-readable expected outcome
	Actual   string       // Human-readable actual outcome
	Trace    []TraceEvent // Full trace for debugging context
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder

	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	if len(e.Trace) > 0 {
		fmt.Fprintf(&buf, "\nFull trace:\n")
		for _, event := range e.Trace {
			if event.Dimension == "" {
				fmt.Fprintf(&buf, "  [%d] day %d %s\n", event.Step, event.Day, event.Op)
				continue
			}
			fmt.Fprintf(&buf, "  [%d] day %d %s %s %s %s\n",
				event.Step, event.Day, event.Op, event.Dimension, event.Kind, event.Value)
		}
	}

	return buf.String()
}

// assertTraceContains checks for an outcome with the assertion's dimension
// and kind, and value when given.
func assertTraceContains(trace []TraceEvent, assertion Assertion) error {
	want := ExpectClause{Dimension: assertion.Dimension, Kind: assertion.Kind, Value: assertion.Value}
	if matchesAny(trace, want) {
		return nil
	}

	expected := fmt.Sprintf("%s %s", assertion.Dimension, assertion.Kind)
	if assertion.Value != "" {
		expected += " at " + assertion.Value
	}
	return &AssertionError{
		Type:     AssertTraceContains,
		Expected: expected,
		Actual:   "not found in trace",
		Trace:    trace,
	}
}

// assertTraceOrder checks that events appear in the specified order.
// Events don't need to be consecutive (intervening events are allowed).
func assertTraceOrder(trace []TraceEvent, assertion Assertion) error {
	next := 0
	for _, event := range trace {
		if next < len(assertion.Events) && event.key() == assertion.Events[next] {
			next++
		}
	}
	if next == len(assertion.Events) {
		return nil
	}

	actual := fmt.Sprintf("missing %s after %v", assertion.Events[next], assertion.Events[:next])
	return &AssertionError{
		Type:     AssertTraceOrder,
		Expected: fmt.Sprintf("events in order: %v", assertion.Events),
		Actual:   actual,
		Trace:    trace,
	}
}

// assertTraceCount checks that a dimension produced a kind exactly Count times.
func assertTraceCount(trace []TraceEvent, assertion Assertion) error {
	count := 0
	for _, event := range trace {
		if event.Dimension == assertion.Dimension && event.Kind == assertion.Kind {
			count++
		}
	}

	if count != assertion.Count {
		return &AssertionError{
			Type:     AssertTraceCount,
			Expected: fmt.Sprintf("%d %s outcomes for %s", assertion.Count, assertion.Kind, assertion.Dimension),
			Actual:   fmt.Sprintf("%d outcomes", count),
			Trace:    trace,
		}
	}

	return nil
}

// assertDimensionState compares the committed dimension with the expected
// fields.
func assertDimensionState(ctx context.Context, st *store.Store, assertion Assertion) error {
	d, err := st.GetDimension(ctx, assertion.Dimension)
	if err != nil {
		return fmt.Errorf("dimension_state %s: %w", assertion.Dimension, err)
	}

	actual := map[string]string{
		"current": d.Current.String(),
		"ceiling": d.Ceiling.String(),
		"status":  string(d.Status),
	}

	fields := make([]string, 0, len(assertion.Expect))
	for field := range assertion.Expect {
		fields = append(fields, field)
	}
	slices.Sort(fields)

	var mismatches []string
	for _, field := range fields {
		if want := assertion.Expect[field]; actual[field] != want {
			mismatches = append(mismatches, fmt.Sprintf("%s=%q (want %q)", field, actual[field], want))
		}
	}
	if len(mismatches) == 0 {
		return nil
	}

	return &AssertionError{
		Type:     AssertDimensionState,
		Expected: fmt.Sprintf("%s %v", assertion.Dimension, assertion.Expect),
		Actual:   strings.Join(mismatches, ", "),
	}
}

// assertHistoryCount counts history entries matching the assertion's
// dimension and change type.
func assertHistoryCount(ctx context.Context, st *store.Store, assertion Assertion) error {
	entries, err := st.ListHistory(ctx, store.HistoryFilter{
		Dimension:  progression.NormalizeLabel(assertion.Dimension),
		ChangeType: progression.ChangeType(assertion.ChangeType),
	})
	if err != nil {
		return fmt.Errorf("history_count: %w", err)
	}

	if len(entries) != assertion.Count {
		var got []string
		for _, e := range entries {
			got = append(got, fmt.Sprintf("%s %s %s->%s", e.DimensionName, e.ChangeType, e.PreviousValue, e.NewValue))
		}
		return &AssertionError{
			Type: AssertHistoryCount,
			Expected: fmt.Sprintf("%d entries (dimension=%q, change_type=%q)",
				assertion.Count, assertion.Dimension, assertion.ChangeType),
			Actual: fmt.Sprintf("%d entries %v", len(entries), got),
		}
	}
	return nil
}

// AssertionContext provides database access for state assertions.
type AssertionContext struct {
	Store *store.Store
	Ctx   context.Context
}

// EvaluateAssertions evaluates all assertions against the result.
// Returns a slice of error messages for failed assertions.
// The actx parameter provides database access for dimension_state and
// history_count assertions.
func EvaluateAssertions(result *Result, assertions []Assertion, actx *AssertionContext) []string {
	var errors []string

	for i, assertion := range assertions {
		var err error

		switch assertion.Type {
		case AssertTraceContains:
			err = assertTraceContains(result.Trace, assertion)
		case AssertTraceOrder:
			err = assertTraceOrder(result.Trace, assertion)
		case AssertTraceCount:
			err = assertTraceCount(result.Trace, assertion)
		case AssertDimensionState, AssertHistoryCount:
			if actx == nil || actx.Store == nil {
				err = fmt.Errorf("assertion[%d]: %s requires database context", i, assertion.Type)
			} else if assertion.Type == AssertDimensionState {
				err = assertDimensionState(actx.Ctx, actx.Store, assertion)
			} else {
				err = assertHistoryCount(actx.Ctx, actx.Store, assertion)
			}
		default:
			err = fmt.Errorf("assertion[%d]: unknown assertion type %q", i, assertion.Type)
		}

		if err != nil {
			errors = append(errors, err.Error())
		}
	}

	return errors
}
