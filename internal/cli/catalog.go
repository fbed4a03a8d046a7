package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/roach88/ceiling/internal/catalog"
)

// CatalogIssue is one catalog compile error.
type CatalogIssue struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	File    string `json:"file,omitempty"`
	Line    int    `json:"line,omitempty"`
	Column  int    `json:"column,omitempty"`
}

// CatalogValidation is the output of catalog validate.
type CatalogValidation struct {
	Valid      bool           `json:"valid"`
	Source     string         `json:"source"`
	Dimensions []string       `json:"dimensions,omitempty"`
	Issues     []CatalogIssue `json:"issues,omitempty"`
}

// NewCatalogCommand creates the catalog command group.
func NewCatalogCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "catalog",
		Short: "Work with dimension catalogs",
	}
	cmd.AddCommand(newCatalogValidateCommand(rootOpts))
	return cmd
}

func newCatalogValidateCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "validate [dir]",
		Short: "Validate a catalog without touching the database",
		Long: `Validate a directory of .cue catalog files against the catalog schema.
Without a directory, the built-in catalog is validated.

Example:
  ceiling catalog validate ./dimensions`,
		Args: maxArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := ""
			if len(args) == 1 {
				dir = args[0]
			}
			return runCatalogValidate(rootOpts, dir, cmd)
		},
	}
}

func runCatalogValidate(opts *RootOptions, dir string, cmd *cobra.Command) error {
	out := opts.formatter(cmd)

	source := dir
	if source == "" {
		source = "builtin"
	}

	cat, err := loadCatalog(dir)
	if err != nil {
		issues := compileErrors(err)
		if len(issues) == 0 {
			return out.Fail(err)
		}
		result := CatalogValidation{Source: source}
		for _, ce := range issues {
			issue := CatalogIssue{Field: ce.Field, Message: ce.Message}
			if ce.Pos.IsValid() {
				issue.File = ce.Pos.Filename()
				issue.Line = ce.Pos.Line()
				issue.Column = ce.Pos.Column()
			}
			result.Issues = append(result.Issues, issue)
		}
		failure := fmt.Errorf("catalog has %d error(s)", len(result.Issues))
		return out.FailWith(result, &ExitError{Code: ExitFailure, Message: "invalid catalog", Err: failure, ErrCode: ErrCodeCatalog},
			func(w io.Writer) {
				fmt.Fprintln(w, "✗ Catalog invalid")
				for _, issue := range result.Issues {
					if issue.Line > 0 {
						fmt.Fprintf(w, "  %s:%d:%d: %s: %s\n", issue.File, issue.Line, issue.Column, issue.Field, issue.Message)
					} else {
						fmt.Fprintf(w, "  %s: %s\n", issue.Field, issue.Message)
					}
				}
			})
	}

	result := CatalogValidation{Valid: true, Source: cat.Source}
	for _, d := range cat.Dimensions {
		result.Dimensions = append(result.Dimensions, d.Name)
	}
	return out.Emit(result, func(w io.Writer) {
		fmt.Fprintf(w, "✓ Catalog valid: %d dimension(s) %v\n", len(result.Dimensions), result.Dimensions)
	})
}

// compileErrors flattens the *catalog.CompileError values inside err.
func compileErrors(err error) []*catalog.CompileError {
	switch e := err.(type) {
	case nil:
		return nil
	case *catalog.CompileError:
		return []*catalog.CompileError{e}
	case interface{ Unwrap() []error }:
		var out []*catalog.CompileError
		for _, inner := range e.Unwrap() {
			out = append(out, compileErrors(inner)...)
		}
		return out
	case interface{ Unwrap() error }:
		return compileErrors(e.Unwrap())
	}
	return nil
}
