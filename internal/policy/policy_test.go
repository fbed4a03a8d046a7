package policy

import (
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/ceiling/internal/progression"
)

var runIntervalStep = progression.SequenceStep(
	"4:1", "5:1", "6:1", "8:1", "10:1", "continuous_20", "continuous_30", "continuous_45",
)

func mustParse(t *testing.T, step progression.StepConfig, s string) progression.Value {
	t.Helper()
	v, err := step.ParseValue(s)
	require.NoError(t, err)
	return v
}

func TestAdvance_Sequence(t *testing.T) {
	ceiling := mustParse(t, runIntervalStep, "continuous_45")

	res, err := Advance(runIntervalStep, mustParse(t, runIntervalStep, "4:1"), ceiling)
	require.NoError(t, err)
	assert.True(t, res.Moved())
	assert.Equal(t, "5:1", res.Value.String())

	res, err = Advance(runIntervalStep, ceiling, ceiling)
	require.NoError(t, err)
	assert.False(t, res.Moved())
	assert.Equal(t, BoundCeiling, res.Bound)
	assert.Equal(t, "continuous_45", res.Value.String())
}

func TestAdvance_SequenceStopsAtLoweredCeiling(t *testing.T) {
	ceiling := mustParse(t, runIntervalStep, "6:1")
	cur := mustParse(t, runIntervalStep, "4:1")

	var path []string
	for i := 0; i < 5; i++ {
		res, err := Advance(runIntervalStep, cur, ceiling)
		require.NoError(t, err)
		if !res.Moved() {
			break
		}
		cur = res.Value
		path = append(path, cur.String())
	}
	assert.Equal(t, []string{"5:1", "6:1"}, path)
}

func TestRetreat_Sequence(t *testing.T) {
	res, err := Retreat(runIntervalStep, mustParse(t, runIntervalStep, "6:1"))
	require.NoError(t, err)
	assert.Equal(t, "5:1", res.Value.String())

	res, err = Retreat(runIntervalStep, mustParse(t, runIntervalStep, "4:1"))
	require.NoError(t, err)
	assert.Equal(t, BoundFloor, res.Bound)
	assert.Equal(t, "4:1", res.Value.String())
}

func TestAdvance_IncrementWalksToCeiling(t *testing.T) {
	step := progression.IncrementStep(5, 30, "min")
	ceiling := mustParse(t, step, "90")
	cur := mustParse(t, step, "30")

	for i := 0; i < 7; i++ {
		res, err := Advance(step, cur, ceiling)
		require.NoError(t, err)
		require.True(t, res.Moved())
		cur = res.Value
	}
	assert.Equal(t, "65", cur.String())

	for i := 0; i < 5; i++ {
		res, err := Advance(step, cur, ceiling)
		require.NoError(t, err)
		cur = res.Value
	}
	assert.Equal(t, "90", cur.String())

	res, err := Advance(step, cur, ceiling)
	require.NoError(t, err)
	assert.Equal(t, BoundCeiling, res.Bound)
	assert.Equal(t, "90", res.Value.String())
}

func TestAdvance_IncrementClampsToCeiling(t *testing.T) {
	step := progression.IncrementStep(10, 0, "min")
	res, err := Advance(step, mustParse(t, step, "85"), mustParse(t, step, "90"))
	require.NoError(t, err)
	assert.Equal(t, "90", res.Value.String())
}

func TestRetreat_IncrementFloors(t *testing.T) {
	step := progression.IncrementStep(5, 30, "min")

	res, err := Retreat(step, mustParse(t, step, "45"))
	require.NoError(t, err)
	assert.Equal(t, "40", res.Value.String())

	res, err = Retreat(step, mustParse(t, step, "32"))
	require.NoError(t, err)
	assert.Equal(t, "30", res.Value.String())

	res, err = Retreat(step, mustParse(t, step, "30"))
	require.NoError(t, err)
	assert.Equal(t, BoundFloor, res.Bound)
}

func TestAdvance_RegulatedIsRejected(t *testing.T) {
	step := progression.RegulatedStep("min", 45, 60)
	v := mustParse(t, step, "45")

	_, err := Advance(step, v, v)
	assert.ErrorIs(t, err, ErrNotProgressive)
	_, err = Retreat(step, v)
	assert.ErrorIs(t, err, ErrNotProgressive)
}

func TestAdvance_RejectsForeignValues(t *testing.T) {
	inc := progression.IncrementStep(5, 0, "min")
	_, err := Advance(runIntervalStep, mustParse(t, inc, "30"), mustParse(t, runIntervalStep, "5:1"))
	assert.ErrorContains(t, err, `has kind "increment"`)
}

func TestSelect(t *testing.T) {
	step := progression.RegulatedStep("min", 45, 60)
	ceiling := mustParse(t, step, "60")

	tests := []struct {
		band progression.FatigueBand
		want string
	}{
		{progression.BandFresh, "60"},
		{progression.BandModerate, "45"},
		{progression.BandHighFatigue, "45"},
	}
	for _, tt := range tests {
		t.Run(string(tt.band), func(t *testing.T) {
			got, err := Select(step, ceiling, tt.band)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got.String())
		})
	}
}

func TestSelect_ThreeOptions(t *testing.T) {
	step := progression.RegulatedStep("min", 30, 45, 60)
	ceiling := mustParse(t, step, "60")

	got, err := Select(step, ceiling, progression.BandHighFatigue)
	require.NoError(t, err)
	assert.Equal(t, "30", got.String())

	got, err = Select(step, ceiling, progression.BandModerate)
	require.NoError(t, err)
	assert.Equal(t, "45", got.String())

	got, err = Select(step, ceiling, progression.BandFresh)
	require.NoError(t, err)
	assert.Equal(t, "60", got.String())
}

func TestSelect_BoundedByCeiling(t *testing.T) {
	step := progression.RegulatedStep("min", 30, 45, 60)
	got, err := Select(step, mustParse(t, step, "45"), progression.BandFresh)
	require.NoError(t, err)
	assert.Equal(t, "45", got.String())
}

func TestSelect_AlwaysAnOption(t *testing.T) {
	step := progression.RegulatedStep("min", 20, 30, 45, 60, 75)
	bands := []progression.FatigueBand{progression.BandHighFatigue, progression.BandModerate, progression.BandFresh}
	for _, opt := range step.Options {
		ceiling := mustParse(t, step, strconv.Itoa(opt))
		for _, band := range bands {
			got, err := Select(step, ceiling, band)
			require.NoError(t, err)
			assert.Contains(t, step.Options, got.Amount())
			assert.LessOrEqual(t, got.Amount(), opt)
		}
	}
}

func TestSelect_RequiresRegulated(t *testing.T) {
	_, err := Select(runIntervalStep, mustParse(t, runIntervalStep, "4:1"), progression.BandFresh)
	assert.ErrorContains(t, err, "requires a regulated step")
}
