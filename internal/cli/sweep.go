package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/ceiling/internal/detector"
	"github.com/roach88/ceiling/internal/engine"
)

// SweepOptions holds flags for the sweep command.
type SweepOptions struct {
	GraceDays        int
	Concurrency      int
	Watch            bool
	Interval         time.Duration
	RegulatedTouches bool
}

// NewSweepCommand creates the sweep command.
func NewSweepCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &SweepOptions{}

	cmd := &cobra.Command{
		Use:   "sweep",
		Short: "Regress dimensions whose ceiling went stale",
		Long: `Inspect every dimension and regress those that sat at their ceiling
without a maintenance touch for their cadence plus the grace period.
Dimensions whose cadence has elapsed are reported as maintenance due.

Sweeping is idempotent: a regressed dimension is no longer at_ceiling, so
running again writes nothing.

With --watch the sweep repeats every --interval until interrupted.`,
		Args: exactArgs(0),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSweep(rootOpts, opts, cmd)
		},
	}

	cmd.Flags().IntVar(&opts.GraceDays, "grace-days", detector.DefaultGraceDays, "days past the maintenance cadence before a ceiling is stale")
	cmd.Flags().IntVar(&opts.Concurrency, "concurrency", detector.DefaultConcurrency, "dimensions inspected in parallel")
	cmd.Flags().BoolVar(&opts.Watch, "watch", false, "keep sweeping every --interval")
	cmd.Flags().DurationVar(&opts.Interval, "interval", time.Hour, "time between sweeps with --watch")
	cmd.Flags().BoolVar(&opts.RegulatedTouches, "regulated-touches", false, "report maintenance for regulated dimensions")

	return cmd
}

func runSweep(rootOpts *RootOptions, opts *SweepOptions, cmd *cobra.Command) error {
	out := rootOpts.formatter(cmd)

	if opts.GraceDays < 0 {
		return out.Fail(usageError(fmt.Errorf("--grace-days must not be negative, got %d", opts.GraceDays)))
	}
	if opts.Watch && opts.Interval <= 0 {
		return out.Fail(usageError(fmt.Errorf("--interval must be positive, got %s", opts.Interval)))
	}

	return withSession(rootOpts, out, func(s *session) error {
		detOpts := []detector.Option{
			detector.WithGraceDays(opts.GraceDays),
			detector.WithConcurrency(opts.Concurrency),
			detector.WithLogger(rootOpts.log()),
			detector.WithMetrics(s.metrics),
		}
		if rootOpts.IDs != nil {
			detOpts = append(detOpts, detector.WithIDGenerator(rootOpts.IDs))
		}
		det := detector.New(s.engine, detOpts...)

		if opts.Watch {
			return watch(cmd, out, det, opts.Interval)
		}

		report, err := det.Sweep(cmd.Context())
		if err != nil {
			return err
		}
		text := func(w io.Writer) {
			writeReport(w, report)
		}
		if report.Skipped > 0 {
			return out.FailWith(report, sweepError(report), text)
		}
		return out.Emit(report, text)
	}, engine.WithRegulatedCeilingTouches(opts.RegulatedTouches))
}

// watch runs the detector until interrupted, printing each report.
func watch(cmd *cobra.Command, out *OutputFormatter, det *detector.Detector, interval time.Duration) error {
	parentCtx := cmd.Context()
	if parentCtx == nil {
		parentCtx = context.Background()
	}
	ctx, cancel := context.WithCancel(parentCtx)
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	go func() {
		select {
		case sig := <-sigChan:
			out.VerboseLog("received %s, stopping", sig)
			cancel()
		case <-ctx.Done():
		}
	}()

	out.VerboseLog("Sweeping every %s. Press Ctrl-C to stop.", interval)
	err := det.Run(ctx, interval, func(r detector.Report) {
		if emitErr := out.Emit(r, func(w io.Writer) { writeReport(w, r) }); emitErr != nil {
			out.VerboseLog("failed to write report: %v", emitErr)
		}
	})
	if err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return nil
}

// sweepError summarizes the dimensions a sweep could not inspect.
func sweepError(r detector.Report) error {
	var errs []error
	for _, f := range r.Findings {
		if f.Err != nil {
			errs = append(errs, f.Err)
		}
	}
	return fmt.Errorf("%d dimension(s) skipped: %w", r.Skipped, errors.Join(errs...))
}
