package progression

import (
	"encoding/json"
	"sort"
	"strings"
)

// FatigueBand is the readiness signal computed by the analysis layer.
type FatigueBand string

const (
	BandHighFatigue FatigueBand = "high_fatigue"
	BandModerate    FatigueBand = "moderate"
	BandFresh       FatigueBand = "fresh"
)

// ParseFatigueBand accepts the canonical band names and their common
// spellings ("moderate_fatigue", "high", "high-fatigue").
func ParseFatigueBand(s string) (FatigueBand, bool) {
	switch strings.ReplaceAll(strings.ToLower(strings.TrimSpace(s)), "-", "_") {
	case "fresh":
		return BandFresh, true
	case "moderate", "moderate_fatigue":
		return BandModerate, true
	case "high_fatigue", "high":
		return BandHighFatigue, true
	}
	return "", false
}

// Rank orders bands from least (0) to most (2) ready.
func (b FatigueBand) Rank() int {
	switch b {
	case BandHighFatigue:
		return 0
	case BandFresh:
		return 2
	default:
		return 1
	}
}

// BandFromTSB maps a training-stress-balance reading to a band:
// >= 0 fresh, [-10, 0) moderate, < -10 high fatigue.
func BandFromTSB(tsb float64) FatigueBand {
	switch {
	case tsb >= 0:
		return BandFresh
	case tsb >= -10:
		return BandModerate
	default:
		return BandHighFatigue
	}
}

// TrainingFlags are analysis-layer warnings. They are recorded in history
// snapshots but not interpreted by the engine.
type TrainingFlags struct {
	HighFatigue    bool `json:"high_fatigue" yaml:"high_fatigue"`
	VolumeSpike    bool `json:"volume_spike" yaml:"volume_spike"`
	VolumeDrop     bool `json:"volume_drop" yaml:"volume_drop"`
	IntensityHeavy bool `json:"intensity_heavy" yaml:"intensity_heavy"`
}

// Classification is the analysis layer's verdict for one dimension.
type Classification struct {
	// CriteriaMet is true when the workout satisfied the advance criteria.
	CriteriaMet bool `json:"is_criteria_met" yaml:"is_criteria_met"`

	// Failed is true when execution fell short of the current value.
	Failed bool `json:"failed,omitempty" yaml:"failed,omitempty"`

	// ExecutedValue is the value the workout was performed at, if known.
	ExecutedValue string `json:"executed_value,omitempty" yaml:"executed_value,omitempty"`
}

// TrainingContext is the per-workout bundle consumed by the engine. A key in
// Dimensions marks the workout as relevant to that dimension.
type TrainingContext struct {
	FatigueBand FatigueBand               `json:"fatigue_band,omitempty" yaml:"fatigue_band,omitempty"`
	TSB         *float64                  `json:"tsb,omitempty" yaml:"tsb,omitempty"`
	Flags       TrainingFlags             `json:"flags" yaml:"flags"`
	Dimensions  map[string]Classification `json:"dimensions" yaml:"dimensions"`
}

// EffectiveBand returns the declared band, the band implied by TSB when
// none is declared, or moderate.
func (tc TrainingContext) EffectiveBand() FatigueBand {
	if band, ok := ParseFatigueBand(string(tc.FatigueBand)); ok {
		return band
	}
	if tc.TSB != nil {
		return BandFromTSB(*tc.TSB)
	}
	return BandModerate
}

// Normalized returns a copy whose dimension keys are NFC-normalized.
func (tc TrainingContext) Normalized() TrainingContext {
	out := tc
	out.Dimensions = make(map[string]Classification, len(tc.Dimensions))
	for name, c := range tc.Dimensions {
		c.ExecutedValue = NormalizeLabel(c.ExecutedValue)
		out.Dimensions[NormalizeLabel(name)] = c
	}
	return out
}

// RelevantDimensions returns the classified dimension names in sorted order.
func (tc TrainingContext) RelevantDimensions() []string {
	names := make([]string, 0, len(tc.Dimensions))
	for name := range tc.Dimensions {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Snapshot serializes the context for a history entry. encoding/json sorts
// map keys, so equal contexts produce equal bytes.
func (tc TrainingContext) Snapshot() (json.RawMessage, error) {
	if tc.Dimensions == nil {
		tc.Dimensions = map[string]Classification{}
	}
	data, err := json.Marshal(tc)
	if err != nil {
		return nil, err
	}
	return data, nil
}
