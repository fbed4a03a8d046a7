package cli

import (
	"fmt"
	"io"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/roach88/ceiling/internal/detector"
	"github.com/roach88/ceiling/internal/engine"
	"github.com/roach88/ceiling/internal/progression"
)

func writeOutcome(w io.Writer, o engine.Outcome) {
	switch o.Kind {
	case engine.OutcomeProgressed, engine.OutcomeRegressed:
		fmt.Fprintf(w, "%s: %s %s -> %s (%s)\n", o.Dimension, o.Kind, o.Previous, o.Value, o.Status)
	case engine.OutcomeCeilingUpdated:
		fmt.Fprintf(w, "%s: ceiling %s -> %s\n", o.Dimension, o.Previous, o.Value)
	case engine.OutcomeCeilingTouched:
		fmt.Fprintf(w, "%s: ceiling touched at %s\n", o.Dimension, o.Value)
	case engine.OutcomeSelected:
		line := fmt.Sprintf("%s: selected %s", o.Dimension, o.Value)
		if o.Reason != "" {
			line += " (" + o.Reason + ")"
		}
		if o.Entry != nil {
			line += ", ceiling touch recorded"
		}
		fmt.Fprintln(w, line)
	case engine.OutcomeSkipped, engine.OutcomeNotFound:
		fmt.Fprintf(w, "%s: %s: %s\n", o.Dimension, o.Kind, o.Reason)
	default:
		fmt.Fprintf(w, "%s: %s at %s", o.Dimension, o.Kind, o.Value)
		if o.Reason != "" {
			fmt.Fprintf(w, " (%s)", o.Reason)
		}
		fmt.Fprintln(w)
	}
}

func writeSummaries(w io.Writer, summaries []engine.DimensionSummary) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "NAME\tKIND\tCURRENT\tCEILING\tSTATUS\tNEXT\tPROGRESS\tCHANGED\tTOUCHED\tDUE")
	for _, s := range summaries {
		next := s.Next
		if s.Kind == progression.KindRegulated {
			next = "select " + s.Selected
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t%d%%\t%dd\t%s\t%s\n",
			s.Name, s.Kind,
			withUnit(s.Current, s.Unit), withUnit(s.Ceiling, s.Unit),
			s.Status, dash(next), s.ProgressPercent, s.DaysSinceChange,
			daysAgo(s.DaysSinceTouch), yesNo(s.MaintenanceDue))
	}
	tw.Flush()
}

func writeDimension(w io.Writer, d progression.Dimension) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "name:\t%s\n", d.Name)
	fmt.Fprintf(tw, "kind:\t%s\n", d.Step.Kind)
	switch d.Step.Kind {
	case progression.KindSequence:
		fmt.Fprintf(tw, "sequence:\t%v\n", d.Step.Sequence)
	case progression.KindIncrement:
		fmt.Fprintf(tw, "increment:\t%d %s (floor %d)\n", d.Step.Increment, d.Step.Unit, d.Step.Floor)
	case progression.KindRegulated:
		fmt.Fprintf(tw, "options:\t%v %s\n", d.Step.Options, d.Step.Unit)
	}
	fmt.Fprintf(tw, "current:\t%s\n", withUnit(d.Current.String(), d.Step.Unit))
	fmt.Fprintf(tw, "ceiling:\t%s\n", withUnit(d.Ceiling.String(), d.Step.Unit))
	fmt.Fprintf(tw, "status:\t%s\n", d.Status)
	fmt.Fprintf(tw, "cadence:\t%dd\n", d.MaintenanceCadenceDays)
	fmt.Fprintf(tw, "last change:\t%s\n", timestamp(d.LastChangeAt))
	fmt.Fprintf(tw, "last touch:\t%s\n", timestamp(d.LastCeilingTouchAt))
	fmt.Fprintf(tw, "version:\t%d\n", d.Version)
	tw.Flush()
}

func writeHistory(w io.Writer, entries []progression.HistoryEntry) {
	if len(entries) == 0 {
		fmt.Fprintln(w, "no history")
		return
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "SEQ\tAT\tDIMENSION\tTYPE\tCHANGE\tWORKOUT")
	for _, e := range entries {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s -> %s\t%s\n",
			e.Seq, e.CreatedAt.Format(time.RFC3339), e.DimensionName, e.ChangeType,
			e.PreviousValue, e.NewValue, dash(e.TriggerWorkoutID))
	}
	tw.Flush()
}

func writeReport(w io.Writer, r detector.Report) {
	fmt.Fprintf(w, "sweep %s at %s: %d regressed, %d skipped\n",
		r.SweepID, r.At.Format(time.RFC3339), r.Regressed, r.Skipped)
	for _, f := range r.Findings {
		switch {
		case f.Err != nil:
			fmt.Fprintf(w, "  %s: skipped: %s\n", f.Dimension, f.Error)
		case f.Regressed():
			fmt.Fprintf(w, "  %s: stale after %s (threshold %dd), regressed %s -> %s\n",
				f.Dimension, daysAgo(f.DaysSinceTouch), f.Threshold, f.Outcome.Previous, f.Outcome.Value)
		case f.MaintenanceDue:
			fmt.Fprintf(w, "  %s: maintenance due, last touch %s\n", f.Dimension, daysAgo(f.DaysSinceTouch))
		}
	}
}

func withUnit(v, unit string) string {
	if unit == "" {
		return v
	}
	return v + " " + unit
}

func timestamp(t *time.Time) string {
	if t == nil {
		return "never"
	}
	return t.Format(time.RFC3339)
}

func daysAgo(days *int) string {
	if days == nil {
		return "never"
	}
	return strconv.Itoa(*days) + "d ago"
}

func dash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}
