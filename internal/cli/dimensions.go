package cli

import (
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/roach88/ceiling/internal/engine"
	"github.com/roach88/ceiling/internal/progression"
)

// NewListCommand creates the list command.
func NewListCommand(rootOpts *RootOptions) *cobra.Command {
	var fatigue string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "Summarize every dimension",
		Long: `Summarize every dimension: value, ceiling, status, the next step
and how long since the last change and ceiling touch.

Regulated dimensions show the option that would be selected for
--fatigue (default moderate).`,
		Args: exactArgs(0),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runList(rootOpts, fatigue, cmd)
		},
	}

	cmd.Flags().StringVar(&fatigue, "fatigue", string(progression.BandModerate), "fatigue band for regulated previews (fresh|moderate|high_fatigue)")

	return cmd
}

func runList(opts *RootOptions, fatigue string, cmd *cobra.Command) error {
	out := opts.formatter(cmd)

	band, err := parseBand(fatigue)
	if err != nil {
		return out.Fail(err)
	}

	return withSession(opts, out, func(s *session) error {
		summaries, err := s.engine.Summarize(cmd.Context(), band)
		if err != nil {
			return err
		}
		return out.Emit(summaries, func(w io.Writer) {
			if len(summaries) == 0 {
				fmt.Fprintln(w, "no dimensions; run 'ceiling init'")
				return
			}
			writeSummaries(w, summaries)
		})
	})
}

// NewShowCommand creates the show command.
func NewShowCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "show <dimension>",
		Short: "Show one dimension in full",
		Args:  exactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := rootOpts.formatter(cmd)
			return withSession(rootOpts, out, func(s *session) error {
				d, err := s.engine.GetDimension(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				return out.Emit(d, func(w io.Writer) {
					writeDimension(w, d)
				})
			})
		},
	}
}

// NewProgressCommand creates the progress command.
func NewProgressCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "progress <dimension>",
		Short: "Advance a dimension one step",
		Long: `Advance a progressive dimension one step toward its ceiling.
The change is recorded in history as manual.

A dimension already at its ceiling is left unchanged and the command
exits 1.`,
		Args: exactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runOutcome(rootOpts, cmd, func(s *session) (engine.Outcome, error) {
				return s.engine.ProgressDimension(cmd.Context(), args[0])
			})
		},
	}
}

// NewRegressCommand creates the regress command.
func NewRegressCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "regress <dimension>",
		Short: "Retreat a dimension one step",
		Long: `Retreat a progressive dimension one step toward its floor.
The change is recorded in history as manual.

A dimension already at its floor is left unchanged and the command
exits 1.`,
		Args: exactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runOutcome(rootOpts, cmd, func(s *session) (engine.Outcome, error) {
				return s.engine.RegressDimension(cmd.Context(), args[0])
			})
		},
	}
}

// NewTouchCommand creates the touch command.
func NewTouchCommand(rootOpts *RootOptions) *cobra.Command {
	var workoutID string

	cmd := &cobra.Command{
		Use:   "touch <dimension>",
		Short: "Record a maintenance touch at the ceiling",
		Long: `Record that a workout executed a dimension at its ceiling. This
resets the staleness clock without changing the value.

Progressive dimensions must be at_ceiling.`,
		Args: exactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if workoutID == "" {
				return rootOpts.formatter(cmd).Fail(usageError(errors.New("--workout is required")))
			}
			return runOutcome(rootOpts, cmd, func(s *session) (engine.Outcome, error) {
				return s.engine.TouchCeiling(cmd.Context(), args[0], workoutID)
			})
		},
	}

	cmd.Flags().StringVar(&workoutID, "workout", "", "ID of the workout that touched the ceiling (required)")

	return cmd
}

// NewSetCeilingCommand creates the set-ceiling command.
func NewSetCeilingCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "set-ceiling <dimension> <value>",
		Short: "Replace a dimension's ceiling",
		Long: `Replace a dimension's ceiling. The value must parse against the
dimension's step configuration and may not sit below the current value.

A dimension at its ceiling resumes building when the ceiling is raised.

Example:
  ceiling set-ceiling long_run 100
  ceiling set-ceiling run_interval continuous_45`,
		Args: exactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runOutcome(rootOpts, cmd, func(s *session) (engine.Outcome, error) {
				return s.engine.SetDimensionCeiling(cmd.Context(), args[0], args[1])
			})
		},
	}
}

// NewSelectCommand creates the select command.
func NewSelectCommand(rootOpts *RootOptions) *cobra.Command {
	var fatigue string

	cmd := &cobra.Command{
		Use:   "select <dimension>",
		Short: "Preview the option a regulated dimension would take",
		Long: `Preview the option a regulated dimension would take for a fatigue
band. Nothing is written.`,
		Args: exactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := rootOpts.formatter(cmd)
			band, err := parseBand(fatigue)
			if err != nil {
				return out.Fail(err)
			}
			return runOutcome(rootOpts, cmd, func(s *session) (engine.Outcome, error) {
				return s.engine.SelectRegulated(cmd.Context(), args[0], band)
			})
		},
	}

	cmd.Flags().StringVar(&fatigue, "fatigue", "", "fatigue band (fresh|moderate|high_fatigue, required)")

	return cmd
}

// runOutcome runs a single-dimension operation and reports its outcome.
// An outcome carrying an error, such as a rejected manual transition, is
// reported with its data and exits 1.
func runOutcome(opts *RootOptions, cmd *cobra.Command, op func(s *session) (engine.Outcome, error)) error {
	out := opts.formatter(cmd)
	return withSession(opts, out, func(s *session) error {
		o, err := op(s)
		if err != nil {
			return err
		}
		if o.Err != nil {
			return out.FailWith(o, o.Err, func(w io.Writer) {
				writeOutcome(w, o)
			})
		}
		return out.Emit(o, func(w io.Writer) {
			writeOutcome(w, o)
		})
	})
}

// parseBand parses a --fatigue flag value.
func parseBand(s string) (progression.FatigueBand, error) {
	band, ok := progression.ParseFatigueBand(s)
	if !ok {
		return "", usageError(fmt.Errorf("invalid fatigue band %q: must be fresh, moderate or high_fatigue", s))
	}
	return band, nil
}
