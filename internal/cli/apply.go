package cli

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/roach88/ceiling/internal/engine"
	"github.com/roach88/ceiling/internal/progression"
)

// ApplyOptions holds flags for the apply command.
type ApplyOptions struct {
	WorkoutID        string
	ContextFile      string
	CriteriaMet      []string
	Failed           []string
	Executed         map[string]string
	Fatigue          string
	RegulatedTouches bool
}

// ApplyResult is the output of the apply command.
type ApplyResult struct {
	WorkoutID string                  `json:"workout_id"`
	Band      progression.FatigueBand `json:"fatigue_band"`
	Outcomes  []engine.Outcome        `json:"outcomes"`
}

// NewApplyCommand creates the apply command.
func NewApplyCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ApplyOptions{}

	cmd := &cobra.Command{
		Use:   "apply",
		Short: "Apply an analyzed workout to its dimensions",
		Long: `Apply one analyzed workout. Every dimension the training context
classifies is evaluated and gets exactly one outcome.

The context is read from a YAML or JSON file (--context, "-" for stdin):

  fatigue_band: moderate
  dimensions:
    long_run:
      is_criteria_met: true
    run_interval:
      failed: true

or built from flags:

  ceiling apply --workout w-42 --criteria-met long_run --failed run_interval

Unknown dimensions and malformed records do not stop the batch; they are
reported and the command exits 1.`,
		Args: exactArgs(0),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runApply(rootOpts, opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.WorkoutID, "workout", "", "ID of the analyzed workout (required)")
	cmd.Flags().StringVar(&opts.ContextFile, "context", "", `training context file (YAML or JSON, "-" for stdin)`)
	cmd.Flags().StringSliceVar(&opts.CriteriaMet, "criteria-met", nil, "dimensions whose advance criteria were met")
	cmd.Flags().StringSliceVar(&opts.Failed, "failed", nil, "dimensions whose execution fell short")
	cmd.Flags().StringToStringVar(&opts.Executed, "executed", nil, "executed value per dimension (name=value)")
	cmd.Flags().StringVar(&opts.Fatigue, "fatigue", "", "fatigue band (fresh|moderate|high_fatigue)")
	cmd.Flags().BoolVar(&opts.RegulatedTouches, "regulated-touches", false, "record ceiling touches when a regulated selection equals the ceiling")

	return cmd
}

func runApply(rootOpts *RootOptions, opts *ApplyOptions, cmd *cobra.Command) error {
	out := rootOpts.formatter(cmd)

	if opts.WorkoutID == "" {
		return out.Fail(usageError(errors.New("--workout is required")))
	}
	tc, err := buildContext(opts, cmd.InOrStdin())
	if err != nil {
		return out.Fail(err)
	}
	out.VerboseLog("Applying workout %s to %d dimension(s)", opts.WorkoutID, len(tc.Dimensions))

	return withSession(rootOpts, out, func(s *session) error {
		outcomes, err := s.engine.ApplyWorkoutOutcome(cmd.Context(), opts.WorkoutID, tc)
		if err != nil {
			return err
		}

		result := ApplyResult{
			WorkoutID: progression.NormalizeLabel(opts.WorkoutID),
			Band:      tc.EffectiveBand(),
			Outcomes:  outcomes,
		}
		text := func(w io.Writer) {
			fmt.Fprintf(w, "workout %s (%s)\n", result.WorkoutID, result.Band)
			for _, o := range outcomes {
				fmt.Fprint(w, "  ")
				writeOutcome(w, o)
			}
		}

		var errs []error
		for _, o := range outcomes {
			if o.Err != nil {
				errs = append(errs, o.Err)
			}
		}
		if len(errs) > 0 {
			return out.FailWith(result, fmt.Errorf("%d dimension(s) not applied: %w", len(errs), errors.Join(errs...)), text)
		}
		return out.Emit(result, text)
	}, engine.WithRegulatedCeilingTouches(opts.RegulatedTouches))
}

// buildContext reads the training context from --context or assembles it
// from the verdict flags. Mixing the two is a usage error.
func buildContext(opts *ApplyOptions, stdin io.Reader) (progression.TrainingContext, error) {
	fromFlags := len(opts.CriteriaMet) > 0 || len(opts.Failed) > 0 || len(opts.Executed) > 0 || opts.Fatigue != ""

	if opts.ContextFile != "" {
		if fromFlags {
			return progression.TrainingContext{}, usageError(errors.New("--context cannot be combined with --criteria-met, --failed, --executed or --fatigue"))
		}
		return readContext(opts.ContextFile, stdin)
	}
	if !fromFlags {
		return progression.TrainingContext{}, usageError(errors.New("nothing to apply: pass --context or verdict flags"))
	}

	tc := progression.TrainingContext{Dimensions: map[string]progression.Classification{}}
	if opts.Fatigue != "" {
		band, err := parseBand(opts.Fatigue)
		if err != nil {
			return progression.TrainingContext{}, err
		}
		tc.FatigueBand = band
	}
	for _, name := range opts.CriteriaMet {
		c := tc.Dimensions[name]
		c.CriteriaMet = true
		tc.Dimensions[name] = c
	}
	for _, name := range opts.Failed {
		c := tc.Dimensions[name]
		c.Failed = true
		tc.Dimensions[name] = c
	}
	for name, value := range opts.Executed {
		c := tc.Dimensions[name]
		c.ExecutedValue = value
		tc.Dimensions[name] = c
	}
	return tc, nil
}

// readContext decodes a training context file. JSON is accepted as YAML.
func readContext(path string, stdin io.Reader) (progression.TrainingContext, error) {
	var r io.Reader = stdin
	if path != "-" {
		f, err := os.Open(path)
		if err != nil {
			return progression.TrainingContext{}, ioError("failed to read context", err)
		}
		defer f.Close()
		r = f
	}

	var tc progression.TrainingContext
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&tc); err != nil {
		if errors.Is(err, io.EOF) {
			return tc, usageError(fmt.Errorf("context %s is empty", path))
		}
		return tc, usageError(fmt.Errorf("invalid context %s: %w", path, err))
	}
	return tc, nil
}
