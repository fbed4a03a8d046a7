// Package catalog loads dimension seed definitions written in CUE.
//
// A catalog declares dimensions under the top-level "dimension" struct:
//
//	dimension: long_run: {
//		step: {type: "increment", increment: 5, unit: "min"}
//		current:      30
//		ceiling:      90
//		cadence_days: 14
//	}
//
// Every catalog is unified with an embedded schema before it is compiled,
// so shape errors are reported by CUE with file positions. The built-in
// catalog seeds run_interval, long_run and z2_ride.
package catalog

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/load"
	"cuelang.org/go/cue/token"

	"github.com/roach88/ceiling/internal/progression"
)

//go:embed schema.cue
var schemaSource string

//go:embed defaults.cue
var defaultsSource string

// Catalog is a compiled set of seed dimensions.
type Catalog struct {
	// Dimensions are ordered by name.
	Dimensions []progression.Dimension

	// Source names where the catalog came from.
	Source string

	// FileCount is the number of .cue files read (0 for the built-in catalog).
	FileCount int
}

// CompileError is a catalog problem with the CUE position it came from.
type CompileError struct {
	Field   string
	Message string
	Pos     token.Pos
}

func (e *CompileError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s",
			e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(),
			e.Field, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// LoadDefault compiles the built-in catalog.
func LoadDefault() (*Catalog, error) {
	ctx := cuecontext.New()
	v := ctx.CompileString(defaultsSource, cue.Filename("defaults.cue"))
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}
	dims, err := compile(ctx, v)
	if err != nil {
		return nil, err
	}
	return &Catalog{Dimensions: dims, Source: "builtin"}, nil
}

// LoadDir compiles every .cue file directly inside dir as one catalog.
// All files must belong to the same CUE package, or declare none.
//
// Compile errors for individual dimensions are collected and returned
// together via errors.Join; use errors.As to reach a *CompileError.
func LoadDir(dir string) (*Catalog, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("catalog directory: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("catalog directory: %s is not a directory", dir)
	}

	files, err := findCUEFiles(dir)
	if err != nil {
		return nil, fmt.Errorf("scan catalog directory: %w", err)
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("no .cue files in %s", dir)
	}

	instances := load.Instances(files, &load.Config{Dir: dir})
	if len(instances) == 0 {
		return nil, errors.New("no CUE instances loaded")
	}
	inst := instances[0]
	if inst.Err != nil {
		return nil, formatCUEError(inst.Err)
	}

	ctx := cuecontext.New()
	v := ctx.BuildInstance(inst)
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}

	dims, err := compile(ctx, v)
	if err != nil {
		return nil, err
	}
	return &Catalog{Dimensions: dims, Source: dir, FileCount: len(files)}, nil
}

// findCUEFiles returns the .cue file names in dir, sorted.
func findCUEFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var files []string
	for _, e := range entries {
		if !e.IsDir() && filepath.Ext(e.Name()) == ".cue" {
			files = append(files, e.Name())
		}
	}
	sort.Strings(files)
	return files, nil
}

// compile unifies v with the schema and converts every dimension.
func compile(ctx *cue.Context, v cue.Value) ([]progression.Dimension, error) {
	schema := ctx.CompileString(schemaSource, cue.Filename("schema.cue"))
	if err := schema.Err(); err != nil {
		return nil, fmt.Errorf("compile catalog schema: %w", err)
	}

	unified := schema.Unify(v)
	if err := unified.Validate(cue.Concrete(true)); err != nil {
		return nil, formatCUEError(err)
	}

	dimsVal := unified.LookupPath(cue.ParsePath("dimension"))
	if !dimsVal.Exists() {
		return nil, &CompileError{Field: "dimension", Message: "catalog declares no dimensions", Pos: v.Pos()}
	}
	iter, err := dimsVal.Fields()
	if err != nil {
		return nil, formatCUEError(err)
	}

	var (
		dims []progression.Dimension
		errs []error
	)
	for iter.Next() {
		d, err := CompileDimension(iter.Label(), iter.Value())
		if err != nil {
			errs = append(errs, err)
			continue
		}
		dims = append(dims, d)
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	if len(dims) == 0 {
		return nil, &CompileError{Field: "dimension", Message: "catalog declares no dimensions", Pos: dimsVal.Pos()}
	}

	sort.Slice(dims, func(i, j int) bool { return dims[i].Name < dims[j].Name })
	return dims, nil
}

// CompileDimension converts one schema-checked dimension value.
func CompileDimension(name string, v cue.Value) (progression.Dimension, error) {
	field := "dimension." + name
	fail := func(msg string, pos token.Pos) (progression.Dimension, error) {
		return progression.Dimension{}, &CompileError{Field: field, Message: msg, Pos: pos}
	}

	name = progression.NormalizeLabel(name)
	if err := progression.ValidateName(name); err != nil {
		return fail(err.Error(), v.Pos())
	}

	stepVal := v.LookupPath(cue.ParsePath("step"))
	data, err := stepVal.MarshalJSON()
	if err != nil {
		return progression.Dimension{}, formatCUEError(err)
	}
	step, err := progression.ParseStepConfig(data)
	if err != nil {
		return fail(err.Error(), stepVal.Pos())
	}

	current, err := scalarText(v.LookupPath(cue.ParsePath("current")))
	if err != nil {
		return progression.Dimension{}, err
	}
	ceiling, err := scalarText(v.LookupPath(cue.ParsePath("ceiling")))
	if err != nil {
		return progression.Dimension{}, err
	}

	if step.Kind == progression.KindIncrement && !isSet(stepVal.LookupPath(cue.ParsePath("floor"))) {
		floor, err := strconv.Atoi(current)
		if err != nil {
			return fail(fmt.Sprintf("current value %q is not an integer", current), v.Pos())
		}
		step.Floor = floor
	}

	cadence, err := v.LookupPath(cue.ParsePath("cadence_days")).Int64()
	if err != nil {
		return progression.Dimension{}, formatCUEError(err)
	}

	d, err := progression.NewDimension(name, step, current, ceiling, int(cadence))
	if err != nil {
		return fail(errorMessage(err), v.Pos())
	}

	if statusVal := v.LookupPath(cue.ParsePath("status")); isSet(statusVal) {
		s, err := statusVal.String()
		if err != nil {
			return progression.Dimension{}, formatCUEError(err)
		}
		d.Status = progression.Status(s)
		if d.Status == progression.StatusAtCeiling && !d.AtCeilingValue() {
			return fail("status at_ceiling requires current to equal ceiling", statusVal.Pos())
		}
	}
	return d, nil
}

// isSet reports whether an optional field was given a concrete value.
func isSet(v cue.Value) bool {
	return v.Exists() && v.IsConcrete()
}

// scalarText returns a string or integer field as text.
func scalarText(v cue.Value) (string, error) {
	if s, err := v.String(); err == nil {
		return progression.NormalizeLabel(s), nil
	}
	n, err := v.Int64()
	if err != nil {
		return "", formatCUEError(err)
	}
	return strconv.FormatInt(n, 10), nil
}

// errorMessage strips the CONFIG_ERROR prefix; the field already names the
// dimension.
func errorMessage(err error) string {
	var perr *progression.Error
	if errors.As(err, &perr) {
		if perr.Err != nil {
			return perr.Err.Error()
		}
		return perr.Message
	}
	return err.Error()
}

// formatCUEError extracts position info from CUE errors.
func formatCUEError(err error) error {
	if err == nil {
		return nil
	}

	errs := cueerrors.Errors(err)
	if len(errs) == 0 {
		return err
	}

	first := errs[0]
	cerr := &CompileError{Field: "cue", Message: first.Error()}
	if positions := cueerrors.Positions(first); len(positions) > 0 {
		cerr.Pos = positions[0]
	}
	return cerr
}
