package harness

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/ceiling/internal/testutil"
)

var sampleTrace = []TraceEvent{
	{Step: 1, Op: OpWorkout, Dimension: "long_run", Kind: "progressed", Previous: "30", Value: "35", Status: "building"},
	{Step: 1, Op: OpWorkout, Dimension: "z2_ride", Kind: "selected", Previous: "45", Value: "60"},
	{Step: 2, Day: 21, Op: OpAdvanceDays},
	{Step: 3, Day: 21, Op: OpSweep, Dimension: "long_run", Kind: "regressed", Previous: "35", Value: "30", Status: "regressing"},
}

func TestAssertTraceContains(t *testing.T) {
	assert.NoError(t, assertTraceContains(sampleTrace, Assertion{Dimension: "long_run", Kind: "progressed"}))
	assert.NoError(t, assertTraceContains(sampleTrace, Assertion{Dimension: "z2_ride", Kind: "selected", Value: "60"}))

	err := assertTraceContains(sampleTrace, Assertion{Dimension: "z2_ride", Kind: "selected", Value: "45"})
	require.Error(t, err)
	var aerr *AssertionError
	require.ErrorAs(t, err, &aerr)
	assert.Equal(t, AssertTraceContains, aerr.Type)
	assert.Contains(t, err.Error(), "z2_ride selected at 45")
	assert.Contains(t, err.Error(), "Full trace:")
}

func TestAssertTraceOrder(t *testing.T) {
	tests := []struct {
		name    string
		events  []string
		wantErr string
	}{
		{"in order", []string{"long_run:progressed", "long_run:regressed"}, ""},
		{"gaps allowed", []string{"long_run:progressed", "z2_ride:selected", "long_run:regressed"}, ""},
		{"reversed", []string{"long_run:regressed", "long_run:progressed"}, "missing long_run:progressed"},
		{"absent", []string{"run_interval:progressed"}, "missing run_interval:progressed"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := assertTraceOrder(sampleTrace, Assertion{Events: tt.events})
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestAssertTraceCount(t *testing.T) {
	assert.NoError(t, assertTraceCount(sampleTrace, Assertion{Dimension: "long_run", Kind: "progressed", Count: 1}))
	assert.NoError(t, assertTraceCount(sampleTrace, Assertion{Dimension: "run_interval", Kind: "progressed", Count: 0}))

	err := assertTraceCount(sampleTrace, Assertion{Dimension: "long_run", Kind: "progressed", Count: 2})
	assert.ErrorContains(t, err, "1 outcomes")
}

func TestStateAssertions(t *testing.T) {
	st := testutil.SeedStore(t, time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC))
	actx := &AssertionContext{Store: st, Ctx: context.Background()}
	result := &Result{Trace: sampleTrace}

	errs := EvaluateAssertions(result, []Assertion{
		{Type: AssertDimensionState, Dimension: "long_run", Expect: map[string]string{"current": "30", "ceiling": "90", "status": "building"}},
		{Type: AssertHistoryCount, Count: 0},
		{Type: AssertTraceCount, Dimension: "long_run", Kind: "regressed", Count: 1},
	}, actx)
	assert.Empty(t, errs)

	errs = EvaluateAssertions(result, []Assertion{
		{Type: AssertDimensionState, Dimension: "long_run", Expect: map[string]string{"current": "35"}},
		{Type: AssertDimensionState, Dimension: "squat", Expect: map[string]string{"current": "35"}},
		{Type: AssertHistoryCount, Dimension: "long_run", Count: 2},
	}, actx)
	require.Len(t, errs, 3)
	assert.Contains(t, errs[0], `current="30" (want "35")`)
	assert.Contains(t, errs[1], "NOT_FOUND")
	assert.Contains(t, errs[2], "2 entries")
}

func TestEvaluateAssertions_RequiresStore(t *testing.T) {
	errs := EvaluateAssertions(&Result{}, []Assertion{
		{Type: AssertHistoryCount, Count: 1},
		{Type: "bogus"},
	}, nil)
	require.Len(t, errs, 2)
	assert.Contains(t, errs[0], "requires database context")
	assert.Contains(t, errs[1], "unknown assertion type")
}
