// Package detector finds dimensions that sat at their ceiling without a
// maintenance touch for longer than their cadence plus a grace period, and
// regresses them through the engine.
//
// A sweep inspects every dimension independently and concurrently. The
// staleness condition is evaluated twice: once on a snapshot to build the
// report, and again inside the engine's compare-and-update so a touch that
// lands mid-sweep wins. Sweeping twice in a row regresses a stale dimension
// once, because the first regression leaves it regressing.
package detector

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/roach88/ceiling/internal/engine"
	"github.com/roach88/ceiling/internal/metrics"
	"github.com/roach88/ceiling/internal/progression"
)

// DefaultGraceDays is added to each dimension's maintenance cadence. With
// the default 14-day cadence a ceiling goes stale on day 21.
const DefaultGraceDays = 7

// DefaultConcurrency bounds how many dimensions a sweep inspects at once.
const DefaultConcurrency = 4

// Engine is the subset of *engine.Engine the detector drives.
type Engine interface {
	Now() time.Time
	DimensionNames(ctx context.Context) ([]string, error)
	GetDimension(ctx context.Context, name string) (progression.Dimension, error)
	RegressStale(ctx context.Context, name string, check engine.StaleCheck) (engine.Outcome, error)
	RegulatedCeilingTouches() bool
}

// Detector runs staleness sweeps.
type Detector struct {
	engine      Engine
	graceDays   int
	concurrency int
	ids         engine.IDGenerator
	logger      *slog.Logger
	metrics     *metrics.Metrics
}

// Option configures a Detector.
type Option func(*Detector)

// WithGraceDays sets the allowance beyond the maintenance cadence.
func WithGraceDays(days int) Option {
	return func(d *Detector) {
		d.graceDays = days
	}
}

// WithConcurrency sets how many dimensions are inspected in parallel.
// Values below 1 are treated as 1.
func WithConcurrency(n int) Option {
	return func(d *Detector) {
		d.concurrency = max(n, 1)
	}
}

// WithIDGenerator sets the sweep ID source. Default: UUIDv7.
func WithIDGenerator(g engine.IDGenerator) Option {
	return func(d *Detector) {
		d.ids = g
	}
}

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(d *Detector) {
		d.logger = l
	}
}

// WithMetrics enables sweep instrumentation.
func WithMetrics(m *metrics.Metrics) Option {
	return func(d *Detector) {
		d.metrics = m
	}
}

// New creates a detector over e.
func New(e Engine, opts ...Option) *Detector {
	d := &Detector{
		engine:      e,
		graceDays:   DefaultGraceDays,
		concurrency: DefaultConcurrency,
		ids:         engine.UUIDv7Generator{},
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Finding is the sweep result for one dimension.
type Finding struct {
	Dimension string               `json:"dimension"`
	Kind      progression.StepKind `json:"kind,omitempty"`
	Status    progression.Status   `json:"status,omitempty"`

	// DaysSinceTouch is nil if the ceiling was never touched.
	DaysSinceTouch *int `json:"days_since_touch,omitempty"`

	// Threshold is the whole-day age at which a touch goes stale.
	Threshold int `json:"threshold_days"`

	Stale          bool `json:"stale"`
	MaintenanceDue bool `json:"maintenance_due"`

	// Outcome is set when a regression was attempted.
	Outcome *engine.Outcome `json:"outcome,omitempty"`

	// Error describes why the dimension could not be inspected.
	Error string `json:"error,omitempty"`
	Err   error  `json:"-"`
}

// Regressed reports whether this finding produced a regression.
func (f Finding) Regressed() bool {
	return f.Outcome != nil && f.Outcome.Kind == engine.OutcomeRegressed
}

// Report summarizes one sweep.
type Report struct {
	SweepID   string    `json:"sweep_id"`
	At        time.Time `json:"at"`
	Findings  []Finding `json:"findings"`
	Regressed int       `json:"regressed"`
	Skipped   int       `json:"skipped"`
}

// Sweep inspects every dimension once and regresses the stale ones.
//
// A dimension whose record is malformed, or whose regression kept
// conflicting, is reported with Err set and does not stop the sweep.
// Storage failures and context cancellation abort it.
func (d *Detector) Sweep(ctx context.Context) (Report, error) {
	started := time.Now()
	report, err := d.sweep(ctx)
	d.metrics.RecordSweep(time.Since(started), err)
	if err != nil {
		return Report{}, err
	}

	d.logger.Info("sweep complete",
		"sweep_id", report.SweepID,
		"dimensions", len(report.Findings),
		"regressed", report.Regressed,
		"skipped", report.Skipped,
	)
	return report, nil
}

func (d *Detector) sweep(ctx context.Context) (Report, error) {
	report := Report{
		SweepID: d.ids.Generate(),
		At:      d.engine.Now(),
	}

	names, err := d.engine.DimensionNames(ctx)
	if err != nil {
		return Report{}, fmt.Errorf("sweep %s: %w", report.SweepID, err)
	}

	findings := make([]Finding, len(names))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(d.concurrency)
	for i, name := range names {
		g.Go(func() error {
			f, err := d.inspect(gctx, report.SweepID, report.At, name)
			if err != nil {
				return err
			}
			findings[i] = f
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return Report{}, fmt.Errorf("sweep %s: %w", report.SweepID, err)
	}

	report.Findings = findings
	for _, f := range findings {
		switch {
		case f.Err != nil:
			report.Skipped++
		case f.Regressed():
			report.Regressed++
		}
	}
	return report, nil
}

// inspect evaluates one dimension. Only errors that should abort the whole
// sweep are returned; per-dimension failures land in the Finding.
func (d *Detector) inspect(ctx context.Context, sweepID string, now time.Time, name string) (Finding, error) {
	f := Finding{Dimension: name}

	dim, err := d.engine.GetDimension(ctx, name)
	if err != nil {
		return d.skip(f, err)
	}

	f.Kind = dim.Step.Kind
	f.Status = dim.Status
	f.Threshold = dim.StaleThreshold(d.graceDays)
	if days, ok := dim.DaysSinceTouch(now); ok {
		f.DaysSinceTouch = &days
	}
	if dim.Step.IsProgressive() || d.engine.RegulatedCeilingTouches() {
		f.MaintenanceDue = dim.MaintenanceDue(now)
	}
	f.Stale = dim.IsStale(now, d.graceDays)
	if !f.Stale {
		return f, nil
	}

	out, err := d.engine.RegressStale(ctx, name, engine.StaleCheck{
		GraceDays: d.graceDays,
		SweepID:   sweepID,
	})
	if err != nil {
		return d.skip(f, err)
	}
	f.Outcome = &out
	f.Status = out.Status
	return f, nil
}

func (d *Detector) skip(f Finding, err error) (Finding, error) {
	switch {
	case progression.IsConfigError(err), progression.IsConflict(err), progression.IsNotFound(err):
		d.logger.Warn("dimension skipped by sweep", "dimension", f.Dimension, "error", err)
		f.Err = err
		f.Error = err.Error()
		return f, nil
	default:
		return f, fmt.Errorf("dimension %s: %w", f.Dimension, err)
	}
}

// Run sweeps immediately and then every interval until ctx is done.
// onReport, if non-nil, receives each successful report. A failed sweep is
// logged and retried on the next tick. Run returns ctx.Err().
func (d *Detector) Run(ctx context.Context, interval time.Duration, onReport func(Report)) error {
	if interval <= 0 {
		return fmt.Errorf("detector: interval must be positive, got %s", interval)
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		report, err := d.Sweep(ctx)
		switch {
		case ctx.Err() != nil:
			return ctx.Err()
		case err != nil:
			d.logger.Error("sweep failed", "error", err)
		case onReport != nil:
			onReport(report)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}
