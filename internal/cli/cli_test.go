package cli

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/ceiling/internal/detector"
	"github.com/roach88/ceiling/internal/engine"
	"github.com/roach88/ceiling/internal/progression"
	"github.com/roach88/ceiling/internal/testutil"
)

var epoch = time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)

// harness runs commands against one database with a shared fake clock.
type harness struct {
	t     *testing.T
	db    string
	clock *testutil.FakeClock
	ids   *testutil.SequentialIDs
	stdin string
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	return &harness{
		t:     t,
		db:    filepath.Join(t.TempDir(), "ceiling.db"),
		clock: testutil.NewFakeClock(epoch),
		ids:   testutil.NewSequentialIDs("id"),
	}
}

// exec runs one command on a fresh root and returns stdout.
func (h *harness) exec(args ...string) (string, error) {
	h.t.Helper()
	cmd := NewRootCommandWithOptions(&RootOptions{Clock: h.clock, IDs: h.ids})
	stdout, stderr := &bytes.Buffer{}, &bytes.Buffer{}
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)
	cmd.SetIn(strings.NewReader(h.stdin))
	cmd.SetArgs(append([]string{"--db", h.db}, args...))
	err := cmd.Execute()
	return stdout.String(), err
}

// response is a CLIResponse with its data left raw.
type response struct {
	Status string          `json:"status"`
	Data   json.RawMessage `json:"data"`
	Error  *CLIError       `json:"error"`
}

// json runs a command with --format json, decodes the response and, when
// v is non-nil, its data into v.
func (h *harness) json(v any, args ...string) (response, error) {
	h.t.Helper()
	out, err := h.exec(append([]string{"--format", "json"}, args...)...)
	var resp response
	require.NoError(h.t, json.Unmarshal([]byte(out), &resp), "output: %s", out)
	if v != nil && len(resp.Data) > 0 {
		require.NoError(h.t, json.Unmarshal(resp.Data, v))
	}
	return resp, err
}

func (h *harness) init() {
	h.t.Helper()
	_, err := h.json(nil, "init")
	require.NoError(h.t, err)
}

// shown is the part of a shown dimension the tests inspect.
type shown struct {
	Current string             `json:"current_value"`
	Ceiling string             `json:"ceiling_value"`
	Status  progression.Status `json:"status"`
}

func (h *harness) dimension(name string) shown {
	h.t.Helper()
	var d shown
	_, err := h.json(&d, "show", name)
	require.NoError(h.t, err)
	return d
}

func TestInit_Idempotent(t *testing.T) {
	h := newHarness(t)

	var first InitResult
	_, err := h.json(&first, "init")
	require.NoError(t, err)
	assert.Equal(t, 3, first.Seeded)
	assert.Equal(t, "builtin", first.Catalog)
	assert.Equal(t, []string{"long_run", "run_interval", "z2_ride"}, first.Dimensions)

	_, err = h.json(nil, "progress", "long_run")
	require.NoError(t, err)

	var second InitResult
	_, err = h.json(&second, "init")
	require.NoError(t, err)
	assert.Equal(t, 0, second.Seeded)
	assert.Equal(t, "35", h.dimension("long_run").Current, "re-init must not reset progress")
}

func TestProgress_RecordsManualChange(t *testing.T) {
	h := newHarness(t)
	h.init()

	var out engine.Outcome
	resp, err := h.json(&out, "progress", "long_run")
	require.NoError(t, err)
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, engine.OutcomeProgressed, out.Kind)
	assert.Equal(t, "30", out.Previous)
	assert.Equal(t, "35", out.Value)
	assert.Equal(t, progression.StatusBuilding, out.Status)

	var entries []progression.HistoryEntry
	_, err = h.json(&entries, "history", "long_run")
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, progression.ChangeManual, entries[0].ChangeType)
	assert.Equal(t, "id-0001", entries[0].ID)
	assert.True(t, epoch.Equal(entries[0].CreatedAt), "created_at %s", entries[0].CreatedAt)
	assert.JSONEq(t, `{"source":"manual","operation":"progress"}`, string(entries[0].ContextSnapshot))
}

func TestProgress_AtCeilingIsRejected(t *testing.T) {
	h := newHarness(t)
	h.init()

	_, err := h.json(nil, "set-ceiling", "long_run", "35")
	require.NoError(t, err)

	var out engine.Outcome
	_, err = h.json(&out, "progress", "long_run")
	require.NoError(t, err)
	assert.Equal(t, progression.StatusAtCeiling, out.Status)

	resp, err := h.json(&out, "progress", "long_run")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.True(t, IsReported(err))
	assert.Equal(t, "error", resp.Status)
	assert.Equal(t, "INVALID_TRANSITION", resp.Error.Code)
	assert.Equal(t, engine.OutcomeNoOp, out.Kind)
	assert.Equal(t, "35", out.Value)
}

func TestRegress_AtFloorIsRejected(t *testing.T) {
	h := newHarness(t)
	h.init()

	_, err := h.exec("regress", "run_interval")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))

	var entries []progression.HistoryEntry
	_, err = h.json(&entries, "history")
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestUnknownDimension(t *testing.T) {
	h := newHarness(t)
	h.init()

	for _, args := range [][]string{
		{"show", "squat"},
		{"progress", "squat"},
		{"touch", "squat", "--workout", "w-1"},
		{"set-ceiling", "squat", "100"},
	} {
		t.Run(args[0], func(t *testing.T) {
			resp, err := h.json(nil, args...)
			require.Error(t, err)
			assert.Equal(t, ExitFailure, GetExitCode(err))
			require.NotNil(t, resp.Error)
			assert.Equal(t, "NOT_FOUND", resp.Error.Code)
		})
	}
}

func TestSetCeiling_InvalidValue(t *testing.T) {
	h := newHarness(t)
	h.init()

	resp, err := h.json(nil, "set-ceiling", "run_interval", "continuous_60")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Equal(t, "CONFIG_ERROR", resp.Error.Code)
	assert.Equal(t, "continuous_45", h.dimension("run_interval").Ceiling)
}

func TestSelect(t *testing.T) {
	h := newHarness(t)
	h.init()

	var out engine.Outcome
	_, err := h.json(&out, "select", "z2_ride", "--fatigue", "fresh")
	require.NoError(t, err)
	assert.Equal(t, engine.OutcomeSelected, out.Kind)
	assert.Equal(t, "60", out.Value)

	_, err = h.json(&out, "select", "z2_ride", "--fatigue", "high")
	require.NoError(t, err)
	assert.Equal(t, "45", out.Value)

	_, err = h.exec("select", "z2_ride", "--fatigue", "sleepy")
	assert.Equal(t, ExitCommandError, GetExitCode(err))

	_, err = h.exec("select", "z2_ride")
	assert.Equal(t, ExitCommandError, GetExitCode(err), "--fatigue is required")

	resp, err := h.json(nil, "select", "long_run", "--fatigue", "fresh")
	require.Error(t, err)
	assert.Equal(t, "INVALID_TRANSITION", resp.Error.Code)
}

func TestApply_ContextFile(t *testing.T) {
	h := newHarness(t)
	h.init()

	ctxFile := filepath.Join(t.TempDir(), "workout.yaml")
	require.NoError(t, os.WriteFile(ctxFile, []byte(`
fatigue_band: fresh
flags:
  volume_spike: true
dimensions:
  long_run:
    is_criteria_met: true
  run_interval:
    failed: true
  z2_ride:
    is_criteria_met: false
`), 0o644))

	var result ApplyResult
	_, err := h.json(&result, "apply", "--workout", "w-42", "--context", ctxFile)
	require.NoError(t, err)

	assert.Equal(t, "w-42", result.WorkoutID)
	assert.Equal(t, progression.BandFresh, result.Band)
	require.Len(t, result.Outcomes, 3)

	assert.Equal(t, "long_run", result.Outcomes[0].Dimension)
	assert.Equal(t, engine.OutcomeProgressed, result.Outcomes[0].Kind)
	assert.Equal(t, "35", result.Outcomes[0].Value)

	assert.Equal(t, "run_interval", result.Outcomes[1].Dimension)
	assert.Equal(t, engine.OutcomeNoOp, result.Outcomes[1].Kind, "failure at the floor")

	assert.Equal(t, "z2_ride", result.Outcomes[2].Dimension)
	assert.Equal(t, engine.OutcomeSelected, result.Outcomes[2].Kind)
	assert.Equal(t, "60", result.Outcomes[2].Value)

	var entries []progression.HistoryEntry
	_, err = h.json(&entries, "history")
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "w-42", entries[0].TriggerWorkoutID)
	assert.Equal(t, progression.ChangeProgress, entries[0].ChangeType)
	assert.Contains(t, string(entries[0].ContextSnapshot), `"volume_spike":true`)
}

func TestApply_Stdin(t *testing.T) {
	h := newHarness(t)
	h.init()
	h.stdin = `{"dimensions": {"long_run": {"is_criteria_met": true}}}`

	var result ApplyResult
	_, err := h.json(&result, "apply", "--workout", "w-1", "--context", "-")
	require.NoError(t, err)
	require.Len(t, result.Outcomes, 1)
	assert.Equal(t, engine.OutcomeProgressed, result.Outcomes[0].Kind)
	assert.Equal(t, progression.BandModerate, result.Band)
}

func TestApply_Flags(t *testing.T) {
	h := newHarness(t)
	h.init()

	var result ApplyResult
	_, err := h.json(&result, "apply", "--workout", "w-1",
		"--criteria-met", "long_run,run_interval", "--fatigue", "moderate")
	require.NoError(t, err)
	require.Len(t, result.Outcomes, 2)
	assert.Equal(t, "35", result.Outcomes[0].Value)
	assert.Equal(t, "5:1", result.Outcomes[1].Value)
}

func TestApply_UnknownDimensionDoesNotStopBatch(t *testing.T) {
	h := newHarness(t)
	h.init()

	var result ApplyResult
	resp, err := h.json(&result, "apply", "--workout", "w-1", "--criteria-met", "long_run,squat")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Equal(t, "NOT_FOUND", resp.Error.Code)

	require.Len(t, result.Outcomes, 2)
	assert.Equal(t, engine.OutcomeProgressed, result.Outcomes[0].Kind)
	assert.Equal(t, engine.OutcomeNotFound, result.Outcomes[1].Kind)
	assert.Equal(t, "35", h.dimension("long_run").Current)
}

func TestApply_UsageErrors(t *testing.T) {
	h := newHarness(t)
	h.init()

	badFile := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(badFile, []byte("dimensions: {}\nmood: great\n"), 0o644))

	tests := []struct {
		name string
		args []string
		want int
	}{
		{"missing workout", []string{"apply", "--criteria-met", "long_run"}, ExitCommandError},
		{"nothing to apply", []string{"apply", "--workout", "w-1"}, ExitCommandError},
		{"context and flags", []string{"apply", "--workout", "w-1", "--context", badFile, "--failed", "long_run"}, ExitCommandError},
		{"unknown field", []string{"apply", "--workout", "w-1", "--context", badFile}, ExitCommandError},
		{"missing file", []string{"apply", "--workout", "w-1", "--context", filepath.Join(t.TempDir(), "nope.yaml")}, ExitCommandError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := h.exec(tt.args...)
			require.Error(t, err)
			assert.Equal(t, tt.want, GetExitCode(err))
		})
	}
}

func TestSweep_RegressesStaleCeiling(t *testing.T) {
	h := newHarness(t)
	h.init()

	_, err := h.json(nil, "set-ceiling", "long_run", "35")
	require.NoError(t, err)
	_, err = h.json(nil, "progress", "long_run")
	require.NoError(t, err)

	h.clock.AdvanceDays(20)
	var report detector.Report
	_, err = h.json(&report, "sweep")
	require.NoError(t, err)
	assert.Equal(t, 0, report.Regressed)

	h.clock.AdvanceDays(1)
	_, err = h.json(&report, "sweep")
	require.NoError(t, err)
	assert.Equal(t, 1, report.Regressed)
	assert.Equal(t, 0, report.Skipped)

	d := h.dimension("long_run")
	assert.Equal(t, "30", d.Current)
	assert.Equal(t, progression.StatusRegressing, d.Status)

	_, err = h.json(&report, "sweep")
	require.NoError(t, err)
	assert.Equal(t, 0, report.Regressed, "sweeping is idempotent")

	var entries []progression.HistoryEntry
	_, err = h.json(&entries, "history", "--type", "regress")
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Contains(t, string(entries[0].ContextSnapshot), `"reason":"stale_ceiling"`)
}

func TestSweep_GraceDays(t *testing.T) {
	h := newHarness(t)
	h.init()

	_, err := h.json(nil, "set-ceiling", "long_run", "35")
	require.NoError(t, err)
	_, err = h.json(nil, "progress", "long_run")
	require.NoError(t, err)

	h.clock.AdvanceDays(14)
	var report detector.Report
	_, err = h.json(&report, "sweep", "--grace-days", "0")
	require.NoError(t, err)
	assert.Equal(t, 1, report.Regressed)

	_, err = h.exec("sweep", "--grace-days", "-1")
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestHistory_Filters(t *testing.T) {
	h := newHarness(t)
	h.init()

	for range 3 {
		_, err := h.json(nil, "progress", "long_run")
		require.NoError(t, err)
	}
	_, err := h.json(nil, "regress", "long_run")
	require.NoError(t, err)
	_, err = h.json(nil, "progress", "run_interval")
	require.NoError(t, err)

	var entries []progression.HistoryEntry
	_, err = h.json(&entries, "history")
	require.NoError(t, err)
	assert.Len(t, entries, 5)

	_, err = h.json(&entries, "history", "long_run", "--limit", "2")
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "45", entries[0].NewValue)
	assert.Equal(t, "40", entries[1].NewValue)

	_, err = h.exec("history", "--type", "bogus")
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestList_Text(t *testing.T) {
	h := newHarness(t)
	h.init()

	out, err := h.exec("list")
	require.NoError(t, err)
	assert.Contains(t, out, "NAME")
	assert.Contains(t, out, "long_run")
	assert.Contains(t, out, "select 45")

	var summaries []engine.DimensionSummary
	_, err = h.json(&summaries, "list", "--fatigue", "fresh")
	require.NoError(t, err)
	require.Len(t, summaries, 3)
	assert.Equal(t, "60", summaries[2].Selected)
	assert.Equal(t, "35", summaries[0].Next)
}

func TestMetricsFile(t *testing.T) {
	h := newHarness(t)
	h.init()

	metricsFile := filepath.Join(t.TempDir(), "ceiling.prom")
	_, err := h.json(nil, "--metrics-file", metricsFile, "progress", "long_run")
	require.NoError(t, err)

	data, err := os.ReadFile(metricsFile)
	require.NoError(t, err)
	assert.Contains(t, string(data), `ceiling_decisions_total{dimension="long_run",outcome="progressed"} 1`)
}

func TestCatalogValidate(t *testing.T) {
	h := newHarness(t)

	t.Run("builtin", func(t *testing.T) {
		var result CatalogValidation
		_, err := h.json(&result, "catalog", "validate")
		require.NoError(t, err)
		assert.True(t, result.Valid)
		assert.Equal(t, []string{"long_run", "run_interval", "z2_ride"}, result.Dimensions)
	})

	t.Run("invalid", func(t *testing.T) {
		dir := t.TempDir()
		require.NoError(t, os.WriteFile(filepath.Join(dir, "catalog.cue"), []byte(`
dimension: long_run: {
	step: {type: "increment", increment: 5}
	current: 95
	ceiling: 90
}
`), 0o644))

		var result CatalogValidation
		resp, err := h.json(&result, "catalog", "validate", dir)
		require.Error(t, err)
		assert.Equal(t, ExitFailure, GetExitCode(err))
		assert.Equal(t, ErrCodeCatalog, resp.Error.Code)
		assert.False(t, result.Valid)
		require.Len(t, result.Issues, 1)
		assert.Equal(t, "dimension.long_run", result.Issues[0].Field)
		assert.Contains(t, result.Issues[0].Message, "exceeds ceiling")
	})

	t.Run("missing dir", func(t *testing.T) {
		_, err := h.exec("catalog", "validate", filepath.Join(t.TempDir(), "nope"))
		require.Error(t, err)
		assert.Equal(t, ExitCommandError, GetExitCode(err))
	})

	_, statErr := os.Stat(h.db)
	assert.True(t, os.IsNotExist(statErr), "catalog validate must not create the database")
}
