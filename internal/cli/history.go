package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/roach88/ceiling/internal/progression"
	"github.com/roach88/ceiling/internal/store"
)

// NewHistoryCommand creates the history command.
func NewHistoryCommand(rootOpts *RootOptions) *cobra.Command {
	var (
		changeType string
		limit      int
	)

	cmd := &cobra.Command{
		Use:   "history [dimension]",
		Short: "Show the change history",
		Long: `Show history entries in the order they were written, optionally for
one dimension and one change type.

Example:
  ceiling history long_run --limit 10
  ceiling history --type regress`,
		Args: maxArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := rootOpts.formatter(cmd)

			filter := store.HistoryFilter{Limit: limit}
			if len(args) == 1 {
				filter.Dimension = args[0]
			}
			if changeType != "" {
				ct, err := progression.ParseChangeType(changeType)
				if err != nil {
					return out.Fail(usageError(err))
				}
				filter.ChangeType = ct
			}
			if limit < 0 {
				return out.Fail(usageError(fmt.Errorf("--limit must not be negative, got %d", limit)))
			}

			return withSession(rootOpts, out, func(s *session) error {
				entries, err := s.engine.History(cmd.Context(), filter)
				if err != nil {
					return err
				}
				return out.Emit(entries, func(w io.Writer) {
					writeHistory(w, entries)
				})
			})
		},
	}

	cmd.Flags().StringVar(&changeType, "type", "", "only entries of this change type (progress|regress|ceiling_touch|manual|ceiling_update)")
	cmd.Flags().IntVar(&limit, "limit", 0, "only the most recent N entries (0 for all)")

	return cmd
}
