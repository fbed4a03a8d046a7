package harness

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/roach88/ceiling/internal/catalog"
	"github.com/roach88/ceiling/internal/detector"
	"github.com/roach88/ceiling/internal/engine"
	"github.com/roach88/ceiling/internal/progression"
	"github.com/roach88/ceiling/internal/store"
	"github.com/roach88/ceiling/internal/testutil"
)

// Harness is the test execution engine.
// It runs scenarios with a fake clock and sequential IDs.
type Harness struct {
	engine   *engine.Engine
	detector *detector.Detector
	clock    *testutil.FakeClock
	start    time.Time
	logger   *slog.Logger
}

// Run executes a test scenario and returns the result.
//
// Each scenario runs in a fresh in-memory database for isolation.
//
// Execution flow:
// 1. Create fresh in-memory database
// 2. Seed it from the scenario's catalog
// 3. Execute flow steps with expect validation
// 4. Evaluate assertions
//
// Expectation and assertion mismatches fail the Result. Errors that make
// the run meaningless, such as an unreadable catalog, are returned.
func Run(scenario *Scenario) (*Result, error) {
	ctx := context.Background()

	// SQLite in-memory databases are per connection; the store keeps one.
	st, err := store.Open(":memory:")
	if err != nil {
		return nil, fmt.Errorf("failed to create in-memory store: %w", err)
	}
	defer st.Close()

	start := DefaultStart
	if scenario.Start != nil {
		start = scenario.Start.UTC()
	}
	clock := testutil.NewFakeClock(start)
	logger := slog.New(slog.DiscardHandler)

	cat, err := loadCatalog(scenario.Catalog)
	if err != nil {
		return nil, fmt.Errorf("failed to load catalog: %w", err)
	}
	if _, err := st.SeedDimensions(ctx, cat.Dimensions, start); err != nil {
		return nil, fmt.Errorf("failed to seed dimensions: %w", err)
	}

	eng := engine.New(st,
		engine.WithClock(clock),
		engine.WithIDGenerator(testutil.NewSequentialIDs("entry")),
		engine.WithLogger(logger),
		engine.WithRegulatedCeilingTouches(scenario.RegulatedTouches),
	)
	graceDays := detector.DefaultGraceDays
	if scenario.GraceDays != nil {
		graceDays = *scenario.GraceDays
	}

	det := detector.New(eng,
		detector.WithGraceDays(graceDays),
		detector.WithIDGenerator(testutil.NewSequentialIDs("sweep")),
		detector.WithLogger(logger),
	)

	h := &Harness{
		engine:   eng,
		detector: det,
		clock:    clock,
		start:    start,
		logger:   logger,
	}

	result := NewResult()
	if err := h.executeFlow(ctx, scenario.Flow, result); err != nil {
		return nil, fmt.Errorf("failed to execute flow: %w", err)
	}

	actx := &AssertionContext{
		Store: st,
		Ctx:   ctx,
	}
	for _, errMsg := range EvaluateAssertions(result, scenario.Assertions, actx) {
		result.AddError(errMsg)
	}

	return result, nil
}

func loadCatalog(dir string) (*catalog.Catalog, error) {
	if dir == "" {
		return catalog.LoadDefault()
	}
	return catalog.LoadDir(dir)
}

// executeFlow runs all flow steps and validates expect clauses.
//
// Each step:
// 1. Runs its operation Repeat times against the engine or detector
// 2. Appends one trace event per outcome
// 3. Matches the last repetition's outcomes against the expect clauses
func (h *Harness) executeFlow(ctx context.Context, flow []FlowStep, result *Result) error {
	for i, step := range flow {
		repeat := max(step.Repeat, 1)

		var events []TraceEvent
		for range repeat {
			var err error
			events, err = h.execute(ctx, step)
			if err != nil {
				return fmt.Errorf("flow step %d (%s): %w", i, step.Op(), err)
			}
			for _, e := range events {
				e.Step = i + 1
				e.Day = progression.WholeDays(h.start, h.clock.Now())
				result.AddEvent(e)
			}
		}

		for j, want := range step.Expect {
			if !matchesAny(events, want) {
				result.AddError(fmt.Sprintf("flow[%d].expect[%d]: no %s outcome matching %+v; got %+v",
					i, j, step.Op(), want, events))
			}
		}

		h.logger.Debug("flow step completed", "step", i, "op", step.Op(), "events", len(events))
	}
	return nil
}

// execute runs one operation and returns its events.
func (h *Harness) execute(ctx context.Context, step FlowStep) ([]TraceEvent, error) {
	switch step.Op() {
	case OpWorkout:
		outcomes, err := h.engine.ApplyWorkoutOutcome(ctx, step.Workout.ID, step.Workout.Context)
		if err != nil {
			return nil, err
		}
		events := make([]TraceEvent, 0, len(outcomes))
		for _, o := range outcomes {
			events = append(events, outcomeEvent(OpWorkout, o))
		}
		return events, nil

	case OpProgress:
		return single(OpProgress, step.Progress)(h.engine.ProgressDimension(ctx, step.Progress))
	case OpRegress:
		return single(OpRegress, step.Regress)(h.engine.RegressDimension(ctx, step.Regress))
	case OpTouch:
		return single(OpTouch, step.Touch.Dimension)(h.engine.TouchCeiling(ctx, step.Touch.Dimension, step.Touch.Workout))
	case OpSetCeiling:
		return single(OpSetCeiling, step.SetCeiling.Dimension)(h.engine.SetDimensionCeiling(ctx, step.SetCeiling.Dimension, step.SetCeiling.Value))
	case OpSelect:
		band := progression.FatigueBand(step.Select.Fatigue)
		return single(OpSelect, step.Select.Dimension)(h.engine.SelectRegulated(ctx, step.Select.Dimension, band))

	case OpAdvanceDays:
		h.clock.AdvanceDays(step.AdvanceDays)
		return []TraceEvent{{Op: OpAdvanceDays}}, nil

	case OpSweep:
		report, err := h.detector.Sweep(ctx)
		if err != nil {
			return nil, err
		}
		var events []TraceEvent
		for _, f := range report.Findings {
			switch {
			case f.Err != nil:
				events = append(events, TraceEvent{
					Op:        OpSweep,
					Dimension: f.Dimension,
					Kind:      string(engine.OutcomeSkipped),
					ErrorCode: string(progression.CodeOf(f.Err)),
				})
			case f.Outcome != nil:
				events = append(events, outcomeEvent(OpSweep, *f.Outcome))
			case f.MaintenanceDue:
				events = append(events, TraceEvent{
					Op:        OpSweep,
					Dimension: f.Dimension,
					Kind:      "maintenance_due",
					Status:    string(f.Status),
				})
			}
		}
		return events, nil
	}
	return nil, fmt.Errorf("unknown operation")
}

// single adapts a one-dimension engine call. Taxonomy errors become error
// events; anything else stops the run.
func single(op, dimension string) func(engine.Outcome, error) ([]TraceEvent, error) {
	return func(o engine.Outcome, err error) ([]TraceEvent, error) {
		if err != nil {
			code := progression.CodeOf(err)
			if code == "" {
				return nil, err
			}
			return []TraceEvent{{
				Op:        op,
				Dimension: progression.NormalizeLabel(dimension),
				Kind:      "error",
				ErrorCode: string(code),
			}}, nil
		}
		return []TraceEvent{outcomeEvent(op, o)}, nil
	}
}

func outcomeEvent(op string, o engine.Outcome) TraceEvent {
	e := TraceEvent{
		Op:        op,
		Dimension: o.Dimension,
		Kind:      string(o.Kind),
		Previous:  o.Previous,
		Value:     o.Value,
		Status:    string(o.Status),
		ErrorCode: string(o.ErrorCode),
	}
	if o.Entry != nil {
		e.Change = string(o.Entry.ChangeType)
	}
	return e
}

func matchesAny(events []TraceEvent, want ExpectClause) bool {
	for _, e := range events {
		if e.Dimension != progression.NormalizeLabel(want.Dimension) {
			continue
		}
		if (want.Kind == "" || want.Kind == e.Kind) &&
			(want.Value == "" || want.Value == e.Value) &&
			(want.Status == "" || want.Status == e.Status) &&
			(want.ErrorCode == "" || want.ErrorCode == e.ErrorCode) {
			return true
		}
	}
	return false
}
