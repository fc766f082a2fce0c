// Package strategy defines the versioned strategy document: how historical
// weeks are weighted (decay), how volatile observations are trusted, and the
// constraints a curve computation must respect.
package strategy

import (
	"encoding/json"

	"github.com/rotisserie/eris"
)

// Type tags the strategy family.
type Type string

const (
	TypeDecay Type = "decay"
)

// DecayMode selects how trailing-week weights are produced.
type DecayMode string

const (
	DecayAlpha    DecayMode = "alpha"    // exponential decay by alpha
	DecayOverride DecayMode = "override" // explicit weight per week
)

// Bounds shared by validation and the CLI help text.
const (
	MinLookbackWeeks = 2
	MaxLookbackWeeks = 25
	OverrideSumTol   = 0.001
)

// Document is a stored strategy.
type Document struct {
	StrategyID  string       `json:"strategy_id"`
	Version     int          `json:"version"`
	Name        string       `json:"name"`
	Description string       `json:"description"`
	Type        Type         `json:"type"`
	Parameters  Parameters   `json:"parameters"`
	Volatility  Volatility   `json:"volatility"`
	Constraints Constraints  `json:"constraints"`
	Metadata    Metadata     `json:"metadata"`
	PreviewMeta *PreviewMeta `json:"preview_meta,omitempty"`
}

// Parameters holds the decay settings.
type Parameters struct {
	LookbackWeeks int         `json:"lookback_weeks"`
	Decay         DecayConfig `json:"decay"`
}

// DecayConfig is either {mode:"alpha", alpha} or {mode:"override",
// override_weights}. Only the field of the active mode is serialized.
type DecayConfig struct {
	Mode            DecayMode
	Alpha           float64
	OverrideWeights []float64
}

type decayJSON struct {
	Mode            DecayMode `json:"mode"`
	Alpha           *float64  `json:"alpha,omitempty"`
	OverrideWeights []float64 `json:"override_weights,omitempty"`
}

func (d DecayConfig) MarshalJSON() ([]byte, error) {
	out := decayJSON{Mode: d.Mode}
	switch d.Mode {
	case DecayAlpha:
		a := d.Alpha
		out.Alpha = &a
	case DecayOverride:
		out.OverrideWeights = d.OverrideWeights
		if out.OverrideWeights == nil {
			out.OverrideWeights = []float64{}
		}
	}
	return json.Marshal(out)
}

func (d *DecayConfig) UnmarshalJSON(b []byte) error {
	var in decayJSON
	if err := json.Unmarshal(b, &in); err != nil {
		return eris.Wrap(err, "strategy: decode decay")
	}
	*d = DecayConfig{Mode: in.Mode, OverrideWeights: in.OverrideWeights}
	if in.Alpha != nil {
		d.Alpha = *in.Alpha
	}
	return nil
}

// Volatility holds the two independently configured trust rules.
type Volatility struct {
	SlotOfDay VolatilityRule `json:"slot_of_day"`
	WeekOfDay VolatilityRule `json:"week_of_day"`
}

// VolatilityRule parameterises the trust computation. A disabled rule
// serializes as {"enabled": false}.
type VolatilityRule struct {
	Enabled      bool
	Lambda       float64
	TrustFloor   float64
	TrustCeiling float64
	BlendGlobal  float64
}

type ruleJSON struct {
	Enabled      bool     `json:"enabled"`
	Lambda       *float64 `json:"lambda,omitempty"`
	TrustFloor   *float64 `json:"trust_floor,omitempty"`
	TrustCeiling *float64 `json:"trust_ceiling,omitempty"`
	BlendGlobal  *float64 `json:"blend_global,omitempty"`
}

func (v VolatilityRule) MarshalJSON() ([]byte, error) {
	if !v.Enabled {
		return json.Marshal(ruleJSON{})
	}
	l, f, c, g := v.Lambda, v.TrustFloor, v.TrustCeiling, v.BlendGlobal
	return json.Marshal(ruleJSON{Enabled: true, Lambda: &l, TrustFloor: &f, TrustCeiling: &c, BlendGlobal: &g})
}

func (v *VolatilityRule) UnmarshalJSON(b []byte) error {
	var in ruleJSON
	if err := json.Unmarshal(b, &in); err != nil {
		return eris.Wrap(err, "strategy: decode volatility")
	}
	*v = VolatilityRule{Enabled: in.Enabled}
	if !in.Enabled {
		return nil
	}
	v.Lambda = deref(in.Lambda)
	v.TrustFloor = deref(in.TrustFloor)
	v.TrustCeiling = deref(in.TrustCeiling)
	v.BlendGlobal = deref(in.BlendGlobal)
	return nil
}

// Constraints bound when and how a curve may be computed.
type Constraints struct {
	MinWeeksRequired int     `json:"min_weeks_required"`
	LowVolumePadding Padding `json:"low_volume_padding"`
}

// Padding lifts slots with fewer than ThresholdOrdersLT orders to
// FloorOrdersSetTo orders.
type Padding struct {
	Enabled           bool     `json:"enabled"`
	ThresholdOrdersLT *float64 `json:"threshold_orders_lt,omitempty"`
	FloorOrdersSetTo  *float64 `json:"floor_orders_set_to,omitempty"`
}

// Apply returns a copy of orders with low-volume slots lifted to the floor.
func (p Padding) Apply(orders []float64) []float64 {
	out := make([]float64, len(orders))
	copy(out, orders)
	if !p.Enabled || p.ThresholdOrdersLT == nil || p.FloorOrdersSetTo == nil {
		return out
	}
	for i, v := range out {
		if v < *p.ThresholdOrdersLT {
			out[i] = *p.FloorOrdersSetTo
		}
	}
	return out
}

// Metadata records authorship. CreatedBy and CreatedAt never change after
// the first version.
type Metadata struct {
	CreatedBy string `json:"created_by"`
	CreatedAt string `json:"created_at"`
	EditedBy  string `json:"edited_by,omitempty"`
	EditedAt  string `json:"edited_at,omitempty"`
	Version   int    `json:"version"`
}

// PreviewMeta is advisory edit lineage. Nothing reads it for correctness.
type PreviewMeta struct {
	UIOnly             bool   `json:"ui_only"`
	Notes              string `json:"notes"`
	Source             string `json:"source"`
	PreviousVersion    *int   `json:"previous_version,omitempty"`
	PreviousStrategyID string `json:"previous_strategy_id,omitempty"`
	OriginalCreatedAt  string `json:"original_created_at,omitempty"`
	OriginalCreatedBy  string `json:"original_created_by,omitempty"`
	PreviousS3Bucket   string `json:"previous_s3_bucket,omitempty"`
	PreviousS3Key      string `json:"previous_s3_key,omitempty"`
	PreviousS3ETag     string `json:"previous_s3_etag,omitempty"`
}

// Parse decodes a strategy document.
func Parse(b []byte) (*Document, error) {
	var d Document
	if err := json.Unmarshal(b, &d); err != nil {
		return nil, eris.Wrap(err, "strategy: parse")
	}
	return &d, nil
}

func deref(p *float64) float64 {
	if p == nil {
		return 0
	}
	return *p
}

// Float returns a pointer to v, for the optional padding fields.
func Float(v float64) *float64 { return &v }
