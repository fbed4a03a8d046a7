package engine

import (
	"context"
	"time"

	"github.com/roach88/ceiling/internal/policy"
	"github.com/roach88/ceiling/internal/progression"
)

// DimensionSummary is a read-only view of one committed dimension, suitable
// for display or for a narrator that runs after decisions are made.
type DimensionSummary struct {
	Name    string               `json:"name"`
	Kind    progression.StepKind `json:"kind"`
	Unit    string               `json:"unit,omitempty"`
	Current string               `json:"current_value"`
	Ceiling string               `json:"ceiling_value"`
	Status  progression.Status   `json:"status"`

	// Next is the value a progress would move to; empty at the ceiling and
	// for regulated dimensions.
	Next string `json:"next_value,omitempty"`

	DaysSinceChange int  `json:"days_since_change"`
	DaysSinceTouch  *int `json:"days_since_touch,omitempty"`
	MaintenanceDue  bool `json:"maintenance_due"`

	// ProgressPercent is how far current sits between the start of the
	// value space and the ceiling.
	ProgressPercent int `json:"progress_percent"`

	// Selected is the regulated option for the requested band.
	Selected string `json:"selected,omitempty"`
}

// Summarize returns a summary of every dimension, ordered by name. band
// drives the regulated selection preview.
func (e *Engine) Summarize(ctx context.Context, band progression.FatigueBand) ([]DimensionSummary, error) {
	dims, err := e.store.ListDimensions(ctx)
	if err != nil {
		return nil, err
	}
	if parsed, ok := progression.ParseFatigueBand(string(band)); ok {
		band = parsed
	} else {
		band = progression.BandModerate
	}

	now := e.Now()
	out := make([]DimensionSummary, 0, len(dims))
	for _, d := range dims {
		out = append(out, summarize(d, band, now, e.regulatedTouches))
	}
	return out, nil
}

func summarize(d progression.Dimension, band progression.FatigueBand, now time.Time, regulatedTouches bool) DimensionSummary {
	s := DimensionSummary{
		Name:            d.Name,
		Kind:            d.Step.Kind,
		Unit:            d.Step.Unit,
		Current:         d.Current.String(),
		Ceiling:         d.Ceiling.String(),
		Status:          d.Status,
		DaysSinceChange: d.DaysSinceChange(now),
		MaintenanceDue:  d.MaintenanceDue(now),
		ProgressPercent: progressPercent(d),
	}
	if days, ok := d.DaysSinceTouch(now); ok {
		s.DaysSinceTouch = &days
	}

	if d.IsRegulated() {
		// Regulated touches only count toward maintenance under the
		// regulated-touch policy.
		s.MaintenanceDue = s.MaintenanceDue && regulatedTouches
		if v, err := policy.Select(d.Step, d.Ceiling, band); err == nil {
			s.Selected = v.String()
		}
		return s
	}
	if res, err := policy.Advance(d.Step, d.Current, d.Ceiling); err == nil && res.Moved() {
		s.Next = res.Value.String()
	}
	return s
}

func progressPercent(d progression.Dimension) int {
	var pos, span int
	switch d.Step.Kind {
	case progression.KindSequence:
		pos, span = d.Current.Index(), d.Ceiling.Index()
	case progression.KindIncrement:
		pos, span = d.Current.Amount()-d.Step.Floor, d.Ceiling.Amount()-d.Step.Floor
	default:
		return 100
	}
	if span <= 0 {
		return 100
	}
	return pos * 100 / span
}
