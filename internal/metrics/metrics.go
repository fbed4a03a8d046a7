// Package metrics exposes Prometheus instruments for the progression engine
// and the regression detector.
//
// A nil *Metrics is valid and records nothing, so callers never need to
// guard instrumentation.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "ceiling"

// Metrics holds the engine's collectors.
type Metrics struct {
	// DecisionsTotal counts decision outcomes by dimension and outcome kind.
	DecisionsTotal *prometheus.CounterVec

	// ConflictsTotal counts optimistic write collisions that were retried.
	ConflictsTotal prometheus.Counter

	// SweepsTotal counts detector sweeps by result ("ok" or "error").
	SweepsTotal *prometheus.CounterVec

	// StaleRegressionsTotal counts staleness-driven regressions by dimension.
	StaleRegressionsTotal *prometheus.CounterVec

	// SweepDurationSeconds observes detector sweep latency.
	SweepDurationSeconds prometheus.Histogram
}

// New creates the collectors and registers them with reg.
// Tests pass a fresh prometheus.NewRegistry() to stay isolated from the
// global registry.
func New(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		DecisionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "decisions_total",
				Help:      "Decision outcomes by dimension and outcome kind",
			},
			[]string{"dimension", "outcome"},
		),
		ConflictsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "store",
				Name:      "conflicts_total",
				Help:      "Optimistic write collisions retried by compare-and-update",
			},
		),
		SweepsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "sweeps_total",
				Help:      "Regression detector sweeps by result",
			},
			[]string{"result"},
		),
		StaleRegressionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "stale_regressions_total",
				Help:      "Staleness-driven regressions by dimension",
			},
			[]string{"dimension"},
		),
		SweepDurationSeconds: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "sweep_duration_seconds",
				Help:      "Regression detector sweep duration in seconds",
				Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
			},
		),
	}

	collectors := []prometheus.Collector{
		m.DecisionsTotal,
		m.ConflictsTotal,
		m.SweepsTotal,
		m.StaleRegressionsTotal,
		m.SweepDurationSeconds,
	}
	for _, c := range collectors {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// RecordDecision counts one decision outcome.
func (m *Metrics) RecordDecision(dimension, outcome string) {
	if m == nil {
		return
	}
	m.DecisionsTotal.WithLabelValues(dimension, outcome).Inc()
}

// RecordConflicts adds n retried collisions.
func (m *Metrics) RecordConflicts(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.ConflictsTotal.Add(float64(n))
}

// RecordStaleRegression counts one staleness-driven regression.
func (m *Metrics) RecordStaleRegression(dimension string) {
	if m == nil {
		return
	}
	m.StaleRegressionsTotal.WithLabelValues(dimension).Inc()
}

// RecordSweep counts a sweep and observes its duration.
func (m *Metrics) RecordSweep(d time.Duration, err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.SweepsTotal.WithLabelValues(result).Inc()
	m.SweepDurationSeconds.Observe(d.Seconds())
}
