package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/roach88/ceiling/internal/catalog"
)

// InitResult is the output of the init command.
type InitResult struct {
	Database   string   `json:"database"`
	Catalog    string   `json:"catalog"`
	Dimensions []string `json:"dimensions"`
	Seeded     int      `json:"seeded"`
}

// NewInitCommand creates the init command.
func NewInitCommand(rootOpts *RootOptions) *cobra.Command {
	var catalogDir string

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Create the database and seed dimensions",
		Long: `Create the database schema and seed dimensions from a catalog.

Seeding only inserts dimensions that do not exist yet; running init again
never resets a dimension that has progressed.

Example:
  ceiling init
  ceiling init --catalog ./dimensions`,
		Args: exactArgs(0),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInit(rootOpts, catalogDir, cmd)
		},
	}

	cmd.Flags().StringVar(&catalogDir, "catalog", "", "directory of .cue catalog files (default: built-in catalog)")

	return cmd
}

func runInit(opts *RootOptions, catalogDir string, cmd *cobra.Command) error {
	out := opts.formatter(cmd)

	cat, err := loadCatalog(catalogDir)
	if err != nil {
		return out.Fail(err)
	}
	out.VerboseLog("Loaded %d dimension(s) from %s", len(cat.Dimensions), cat.Source)

	return withSession(opts, out, func(s *session) error {
		n, err := s.store.SeedDimensions(cmd.Context(), cat.Dimensions, s.engine.Now())
		if err != nil {
			return err
		}
		opts.log().Info("dimensions seeded", "catalog", cat.Source, "seeded", n)

		result := InitResult{
			Database: s.path,
			Catalog:  cat.Source,
			Seeded:   n,
		}
		for _, d := range cat.Dimensions {
			result.Dimensions = append(result.Dimensions, d.Name)
		}
		return out.Emit(result, func(w io.Writer) {
			fmt.Fprintf(w, "Initialized %s\n", result.Database)
			fmt.Fprintf(w, "Seeded %d of %d dimension(s) from %s\n", n, len(result.Dimensions), result.Catalog)
		})
	})
}

// loadCatalog loads dir, or the built-in catalog when dir is empty.
func loadCatalog(dir string) (*catalog.Catalog, error) {
	if dir == "" {
		cat, err := catalog.LoadDefault()
		if err != nil {
			return nil, &ExitError{Code: ExitFailure, Message: "invalid built-in catalog", Err: err, ErrCode: ErrCodeCatalog}
		}
		return cat, nil
	}
	cat, err := catalog.LoadDir(dir)
	if err != nil {
		return nil, catalogError(err)
	}
	return cat, nil
}

// catalogError separates invalid catalog content (exit 1) from an
// unreadable catalog directory (exit 2).
func catalogError(err error) error {
	if len(compileErrors(err)) > 0 {
		return &ExitError{Code: ExitFailure, Message: "invalid catalog", Err: err, ErrCode: ErrCodeCatalog}
	}
	return ioError("failed to read catalog", err)
}
