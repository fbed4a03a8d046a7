package catalog

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/ceiling/internal/progression"
)

func writeCatalog(t *testing.T, files map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	for name, content := range files {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
	}
	return dir
}

func names(dims []progression.Dimension) []string {
	out := make([]string, len(dims))
	for i, d := range dims {
		out[i] = d.Name
	}
	return out
}

func TestLoadDefault(t *testing.T) {
	cat, err := LoadDefault()
	require.NoError(t, err)

	assert.Equal(t, "builtin", cat.Source)
	require.Equal(t, []string{"long_run", "run_interval", "z2_ride"}, names(cat.Dimensions))

	longRun := cat.Dimensions[0]
	assert.Equal(t, progression.KindIncrement, longRun.Step.Kind)
	assert.Equal(t, 5, longRun.Step.Increment)
	assert.Equal(t, 30, longRun.Step.Floor, "floor defaults to the seeded current value")
	assert.Equal(t, "min", longRun.Step.Unit)
	assert.Equal(t, "30", longRun.Current.String())
	assert.Equal(t, "90", longRun.Ceiling.String())
	assert.Equal(t, 14, longRun.MaintenanceCadenceDays)

	runInterval := cat.Dimensions[1]
	assert.Equal(t, progression.KindSequence, runInterval.Step.Kind)
	assert.Len(t, runInterval.Step.Sequence, 8)
	assert.Equal(t, "4:1", runInterval.Current.String())
	assert.Equal(t, "continuous_45", runInterval.Ceiling.String())
	assert.Equal(t, 7, runInterval.MaintenanceCadenceDays)

	z2 := cat.Dimensions[2]
	assert.Equal(t, progression.KindRegulated, z2.Step.Kind)
	assert.Equal(t, []int{45, 60}, z2.Step.Options)
	assert.Equal(t, "60", z2.Ceiling.String())
	assert.Equal(t, 10, z2.MaintenanceCadenceDays)

	for _, d := range cat.Dimensions {
		assert.Equal(t, progression.StatusBuilding, d.Status, d.Name)
		assert.NoError(t, d.Validate(), d.Name)
	}
}

func TestLoadDir(t *testing.T) {
	dir := writeCatalog(t, map[string]string{
		"runs.cue": `
dimension: tempo_run: {
	step: {type: "increment", increment: 2, floor: 10, unit: "min"}
	current: 20
	ceiling: 40
}
`,
		"rides.cue": `
dimension: spin: {
	step: {type: "regulated", options: [60, 30, 45], unit: "min"}
	current: "60"
	ceiling: 60
	cadence_days: 5
	status: "at_ceiling"
}
`,
	})

	cat, err := LoadDir(dir)
	require.NoError(t, err)

	assert.Equal(t, 2, cat.FileCount)
	require.Equal(t, []string{"spin", "tempo_run"}, names(cat.Dimensions))

	spin := cat.Dimensions[0]
	assert.Equal(t, []int{30, 45, 60}, spin.Step.Options, "options are sorted")
	assert.Equal(t, 5, spin.MaintenanceCadenceDays)

	tempo := cat.Dimensions[1]
	assert.Equal(t, 10, tempo.Step.Floor)
	assert.Equal(t, 14, tempo.MaintenanceCadenceDays, "cadence defaults to 14")
}

func TestLoadDir_SchemaViolation(t *testing.T) {
	dir := writeCatalog(t, map[string]string{
		"bad.cue": `
dimension: tempo_run: {
	step: {type: "ladder", rungs: 3}
	current: 1
	ceiling: 3
}
`,
	})

	_, err := LoadDir(dir)
	require.Error(t, err)

	var cerr *CompileError
	require.True(t, errors.As(err, &cerr), "got %T: %v", err, err)
	assert.Equal(t, "cue", cerr.Field)
}

func TestLoadDir_SemanticErrors(t *testing.T) {
	tests := []struct {
		name      string
		source    string
		wantField string
		wantMsg   string
	}{
		{
			name: "current above ceiling",
			source: `
dimension: long_run: {
	step: {type: "increment", increment: 5}
	current: 95
	ceiling: 90
}`,
			wantField: "dimension.long_run",
			wantMsg:   "exceeds ceiling",
		},
		{
			name: "label not in sequence",
			source: `
dimension: run_interval: {
	step: {type: "sequence", sequence: ["4:1", "5:1"]}
	current: "3:1"
	ceiling: "5:1"
}`,
			wantField: "dimension.run_interval",
			wantMsg:   "not in sequence",
		},
		{
			name: "invalid name",
			source: `
dimension: LongRun: {
	step: {type: "increment", increment: 5}
	current: 30
	ceiling: 90
	cadence_days: 14
}`,
			wantField: "dimension.LongRun",
			wantMsg:   "must match",
		},
		{
			name: "at_ceiling below ceiling",
			source: `
dimension: long_run: {
	step: {type: "increment", increment: 5}
	current: 30
	ceiling: 90
	status: "at_ceiling"
}`,
			wantField: "dimension.long_run",
			wantMsg:   "at_ceiling",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := writeCatalog(t, map[string]string{"catalog.cue": tt.source})

			_, err := LoadDir(dir)
			require.Error(t, err)

			var cerr *CompileError
			require.True(t, errors.As(err, &cerr), "got %T: %v", err, err)
			assert.Equal(t, tt.wantField, cerr.Field)
			assert.Contains(t, cerr.Message, tt.wantMsg)
		})
	}
}

func TestLoadDir_CollectsAllErrors(t *testing.T) {
	dir := writeCatalog(t, map[string]string{"catalog.cue": `
dimension: a_run: {
	step: {type: "increment", increment: 5}
	current: 95
	ceiling: 90
}
dimension: b_run: {
	step: {type: "increment", increment: 5}
	current: 100
	ceiling: 90
}
`})

	_, err := LoadDir(dir)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "dimension.a_run")
	assert.Contains(t, err.Error(), "dimension.b_run")
}

func TestLoadDir_Missing(t *testing.T) {
	_, err := LoadDir(filepath.Join(t.TempDir(), "nope"))
	assert.Error(t, err)

	_, err = LoadDir(t.TempDir())
	assert.ErrorContains(t, err, "no .cue files")
}

func TestCompileError_Error(t *testing.T) {
	err := &CompileError{Field: "dimension.x", Message: "boom"}
	assert.Equal(t, "dimension.x: boom", err.Error())
}
