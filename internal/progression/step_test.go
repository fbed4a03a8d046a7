package progression

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseStepConfig_Kinds(t *testing.T) {
	tests := []struct {
		name string
		json string
		want StepConfig
	}{
		{
			name: "sequence",
			json: `{"type":"sequence","sequence":["4:1","5:1","6:1"]}`,
			want: StepConfig{Kind: KindSequence, Sequence: []string{"4:1", "5:1", "6:1"}},
		},
		{
			name: "increment",
			json: `{"type":"increment","increment":5,"floor":30,"unit":"min"}`,
			want: StepConfig{Kind: KindIncrement, Increment: 5, Floor: 30, Unit: "min"},
		},
		{
			name: "increment without floor",
			json: `{"type":"increment","increment":5,"unit":"min"}`,
			want: StepConfig{Kind: KindIncrement, Increment: 5, Unit: "min"},
		},
		{
			name: "regulated options are sorted",
			json: `{"type":"regulated","options":[60,45],"unit":"min"}`,
			want: StepConfig{Kind: KindRegulated, Options: []int{45, 60}, Unit: "min"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseStepConfig([]byte(tt.json))
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseStepConfig_Rejects(t *testing.T) {
	tests := []struct {
		name    string
		json    string
		wantErr string
	}{
		{"unknown type", `{"type":"ladder","sequence":["a"]}`, `unknown step type "ladder"`},
		{"missing type", `{"sequence":["a"]}`, "step type is missing"},
		{"unknown field", `{"type":"sequence","sequence":["a"],"steps":2}`, "unknown field"},
		{"empty sequence", `{"type":"sequence","sequence":[]}`, "at least one label"},
		{"duplicate label", `{"type":"sequence","sequence":["a","a"]}`, "more than once"},
		{"zero increment", `{"type":"increment","increment":0}`, "increment must be positive"},
		{"negative floor", `{"type":"increment","increment":5,"floor":-5}`, "floor must not be negative"},
		{"no options", `{"type":"regulated","options":[]}`, "at least one option"},
		{"mixed fields", `{"type":"increment","increment":5,"options":[1]}`, "must not set sequence or options"},
		{"not json", `type: sequence`, "decode step config"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseStepConfig([]byte(tt.json))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestStepConfig_MarshalJSON(t *testing.T) {
	data, err := json.Marshal(IncrementStep(5, 30, "min"))
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"increment","increment":5,"floor":30,"unit":"min"}`, string(data))

	data, err = json.Marshal(SequenceStep("a", "b"))
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"sequence","sequence":["a","b"]}`, string(data))

	data, err = json.Marshal(RegulatedStep("min", 45, 60))
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"regulated","options":[45,60],"unit":"min"}`, string(data))
}

func TestStepConfig_UnmarshalJSONValidates(t *testing.T) {
	var cfg StepConfig
	err := json.Unmarshal([]byte(`{"type":"regulated","options":[0]}`), &cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "must be positive")

	require.NoError(t, json.Unmarshal([]byte(`{"type":"increment","increment":10,"floor":0}`), &cfg))
	assert.Equal(t, KindIncrement, cfg.Kind)
	assert.Equal(t, 10, cfg.Increment)
}

func TestStepConfig_CloneIsIndependent(t *testing.T) {
	orig := SequenceStep("a", "b")
	c := orig.Clone()
	c.Sequence[0] = "z"
	assert.Equal(t, "a", orig.Sequence[0])
}

func TestParseValue(t *testing.T) {
	seq := SequenceStep("4:1", "5:1", "continuous_20")
	v, err := seq.ParseValue("5:1")
	require.NoError(t, err)
	assert.Equal(t, KindSequence, v.Kind())
	assert.Equal(t, 1, v.Index())
	assert.Equal(t, "5:1", v.String())

	_, err = seq.ParseValue("7:1")
	assert.ErrorContains(t, err, "not in sequence")

	inc := IncrementStep(5, 30, "min")
	v, err = inc.ParseValue(" 45 ")
	require.NoError(t, err)
	assert.Equal(t, 45, v.Amount())
	assert.Equal(t, "45", v.String())

	_, err = inc.ParseValue("forty")
	assert.ErrorContains(t, err, "not an integer")
	_, err = inc.ParseValue("-5")
	assert.ErrorContains(t, err, "must not be negative")

	reg := RegulatedStep("min", 45, 60)
	v, err = reg.ParseValue("60")
	require.NoError(t, err)
	assert.Equal(t, KindRegulated, v.Kind())

	_, err = reg.ParseValue("50")
	assert.ErrorContains(t, err, "not one of options")
}

func TestParseValue_NormalizesLabels(t *testing.T) {
	// "é" precomposed in the sequence, decomposed in the query.
	seq := SequenceStep("caf\u00e9", "tempo")
	v, err := seq.ParseValue("cafe\u0301")
	require.NoError(t, err)
	assert.Equal(t, 0, v.Index())
	assert.Equal(t, "caf\u00e9", v.String())
}

func TestValue_Compare(t *testing.T) {
	seq := SequenceStep("a", "b", "c")
	a, _ := seq.SequenceValue(0)
	c, _ := seq.SequenceValue(2)
	assert.Equal(t, -1, a.Compare(c))
	assert.Equal(t, 1, c.Compare(a))
	assert.True(t, a.Equal(a))
	assert.False(t, a.Equal(c))

	inc := IncrementStep(5, 0, "min")
	x, _ := inc.MagnitudeValue(30)
	y, _ := inc.MagnitudeValue(30)
	assert.True(t, x.Equal(y))
	assert.False(t, x.Equal(a))

	assert.True(t, Value{}.IsZero())
	assert.Equal(t, "", Value{}.String())
}

func TestValue_MarshalJSON(t *testing.T) {
	v, err := IncrementStep(5, 0, "min").ParseValue("30")
	require.NoError(t, err)
	data, err := json.Marshal(v)
	require.NoError(t, err)
	assert.Equal(t, `"30"`, string(data))
}
