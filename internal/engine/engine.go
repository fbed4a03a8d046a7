package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/roach88/ceiling/internal/metrics"
	"github.com/roach88/ceiling/internal/progression"
	"github.com/roach88/ceiling/internal/store"
)

// Store is the persistence the engine needs. *store.Store implements it.
type Store interface {
	GetDimension(ctx context.Context, name string) (progression.Dimension, error)
	ListDimensions(ctx context.Context) ([]progression.Dimension, error)
	DimensionNames(ctx context.Context) ([]string, error)
	CompareAndUpdate(ctx context.Context, name string, mutate store.Mutator) (store.UpdateResult, error)
	SetCeiling(ctx context.Context, name, ceiling string, template progression.HistoryEntry) (store.UpdateResult, error)
	ListHistory(ctx context.Context, filter store.HistoryFilter) ([]progression.HistoryEntry, error)
}

// Engine is the progression decision engine.
//
// Thread-safety: Engine holds no mutable state of its own. Decisions on
// different dimensions may run concurrently; decisions on the same
// dimension are serialized by the store's compare-and-update.
type Engine struct {
	store            Store
	clock            Clock
	ids              IDGenerator
	logger           *slog.Logger
	metrics          *metrics.Metrics
	regulatedTouches bool
}

// EngineOption allows configuration of engine parameters.
type EngineOption func(*Engine)

// WithClock sets the time source. Default: SystemClock.
func WithClock(c Clock) EngineOption {
	return func(e *Engine) {
		e.clock = c
	}
}

// WithIDGenerator sets the history entry ID source. Default: UUIDv7Generator.
func WithIDGenerator(g IDGenerator) EngineOption {
	return func(e *Engine) {
		e.ids = g
	}
}

// WithLogger sets the structured logger. Default: slog.Default().
func WithLogger(l *slog.Logger) EngineOption {
	return func(e *Engine) {
		e.logger = l
	}
}

// WithMetrics enables Prometheus instrumentation.
func WithMetrics(m *metrics.Metrics) EngineOption {
	return func(e *Engine) {
		e.metrics = m
	}
}

// WithRegulatedCeilingTouches makes a regulated selection equal to the upper
// bound record an informational ceiling_touch and refresh
// last_ceiling_touch_at. The stored baseline value never changes.
//
// Default: false (selections are never persisted).
func WithRegulatedCeilingTouches(enabled bool) EngineOption {
	return func(e *Engine) {
		e.regulatedTouches = enabled
	}
}

// New creates an Engine over s.
func New(s Store, opts ...EngineOption) *Engine {
	e := &Engine{
		store:  s,
		clock:  SystemClock{},
		ids:    UUIDv7Generator{},
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Now returns the engine's current time.
func (e *Engine) Now() time.Time {
	return e.clock.Now().UTC()
}

// RegulatedCeilingTouches reports whether regulated upper-bound selections
// are recorded as ceiling touches.
func (e *Engine) RegulatedCeilingTouches() bool {
	return e.regulatedTouches
}

// NewID returns a fresh identifier from the engine's generator.
func (e *Engine) NewID() string {
	return e.ids.Generate()
}

// ListDimensions returns every dimension ordered by name.
func (e *Engine) ListDimensions(ctx context.Context) ([]progression.Dimension, error) {
	return e.store.ListDimensions(ctx)
}

// DimensionNames returns every dimension name ordered by name.
func (e *Engine) DimensionNames(ctx context.Context) ([]string, error) {
	return e.store.DimensionNames(ctx)
}

// GetDimension returns one dimension.
func (e *Engine) GetDimension(ctx context.Context, name string) (progression.Dimension, error) {
	return e.store.GetDimension(ctx, progression.NormalizeLabel(name))
}

// History returns audit entries in chronological order.
func (e *Engine) History(ctx context.Context, filter store.HistoryFilter) ([]progression.HistoryEntry, error) {
	filter.Dimension = progression.NormalizeLabel(filter.Dimension)
	return e.store.ListHistory(ctx, filter)
}

// step is what a transition function decided for one dimension. An empty
// change means nothing is written.
type step struct {
	kind     OutcomeKind
	change   progression.ChangeType
	previous string
	next     string
	reason   string
	err      error

	// snapshot overrides the context snapshot passed to commit.
	snapshot json.RawMessage
}

// transition mutates d in place and describes the result.
type transition func(d *progression.Dimension, now time.Time) (step, error)

// commit runs fn inside a compare-and-update and turns the result into an
// Outcome. The entry ID is generated once and reused across retries.
func (e *Engine) commit(ctx context.Context, name, trigger string, snapshot json.RawMessage, fn transition) (Outcome, error) {
	now := e.Now()

	var (
		decided step
		entryID string
	)
	res, err := e.store.CompareAndUpdate(ctx, name, func(d *progression.Dimension) (*progression.HistoryEntry, error) {
		st, err := fn(d, now)
		if err != nil {
			return nil, err
		}
		decided = st
		if st.change == "" {
			return nil, nil
		}
		if entryID == "" {
			entryID = e.ids.Generate()
		}
		entrySnapshot := snapshot
		if st.snapshot != nil {
			entrySnapshot = st.snapshot
		}
		return &progression.HistoryEntry{
			ID:               entryID,
			DimensionName:    d.Name,
			PreviousValue:    st.previous,
			NewValue:         st.next,
			ChangeType:       st.change,
			TriggerWorkoutID: trigger,
			ContextSnapshot:  entrySnapshot,
			CreatedAt:        now,
		}, nil
	})
	e.metrics.RecordConflicts(res.Attempts - 1)
	if err != nil {
		return Outcome{}, err
	}

	state := res.Dimension
	out := Outcome{
		Dimension: name,
		Kind:      decided.kind,
		Previous:  decided.previous,
		Value:     decided.next,
		Status:    state.Status,
		Reason:    decided.reason,
		Entry:     res.Entry,
		State:     &state,
		Err:       decided.err,
	}
	if decided.err != nil {
		out.ErrorCode = progression.CodeOf(decided.err)
		if out.Reason == "" {
			out.Reason = decided.err.Error()
		}
	}
	e.record(out)
	return out, nil
}

// record logs and counts an outcome.
func (e *Engine) record(out Outcome) {
	e.metrics.RecordDecision(out.Dimension, string(out.Kind))

	switch {
	case out.Kind == OutcomeSkipped || out.Kind == OutcomeNotFound:
		e.logger.Warn("decision skipped",
			"dimension", out.Dimension,
			"kind", out.Kind,
			"error", out.Reason,
		)
	case out.Kind.Changed():
		e.logger.Info("dimension changed",
			"dimension", out.Dimension,
			"kind", out.Kind,
			"from", out.Previous,
			"to", out.Value,
			"status", out.Status,
		)
	default:
		e.logger.Debug("dimension unchanged",
			"dimension", out.Dimension,
			"kind", out.Kind,
			"value", out.Value,
			"reason", out.Reason,
		)
	}
}

// manualSnapshot describes an operator-invoked change.
func manualSnapshot(operation string, extra map[string]string) json.RawMessage {
	m := map[string]string{"source": "manual", "operation": operation}
	for k, v := range extra {
		m[k] = v
	}
	data, err := json.Marshal(m)
	if err != nil {
		// map[string]string always marshals
		panic(fmt.Sprintf("marshal manual snapshot: %v", err))
	}
	return data
}
