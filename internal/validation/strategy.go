package validation

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/sells-group/ultradar/internal/strategy"
)

// StrategyForm is the editable state of a strategy before it becomes a
// document. Optional numbers are pointers so "unset" and 0 differ.
type StrategyForm struct {
	StrategyID       string         `json:"strategy_id" yaml:"strategy_id"`
	Name             string         `json:"name" yaml:"name"`
	Description      string         `json:"description" yaml:"description"`
	CreatedBy        string         `json:"created_by" yaml:"created_by"`
	LookbackWeeks    int            `json:"lookback_weeks" yaml:"lookback_weeks"`
	DecayMode        string         `json:"decay_mode" yaml:"decay_mode"`
	Alpha            *float64       `json:"alpha,omitempty" yaml:"alpha,omitempty"`
	OverrideWeights  []float64      `json:"override_weights,omitempty" yaml:"override_weights,omitempty"`
	SlotVolatility   VolatilityForm `json:"slot_volatility" yaml:"slot_volatility"`
	WeekVolatility   VolatilityForm `json:"week_volatility" yaml:"week_volatility"`
	MinWeeksRequired int            `json:"min_weeks_required,omitempty" yaml:"min_weeks_required,omitempty"`
	Padding          PaddingForm    `json:"low_volume_padding" yaml:"low_volume_padding"`
	Notes            string         `json:"notes,omitempty" yaml:"notes,omitempty"`
}

// VolatilityForm is one volatility editor. Its values are only checked when
// Enabled is set.
type VolatilityForm struct {
	Enabled      bool     `json:"enabled" yaml:"enabled"`
	Lambda       *float64 `json:"lambda,omitempty" yaml:"lambda,omitempty"`
	TrustFloor   *float64 `json:"trust_floor,omitempty" yaml:"trust_floor,omitempty"`
	TrustCeiling *float64 `json:"trust_ceiling,omitempty" yaml:"trust_ceiling,omitempty"`
	BlendGlobal  *float64 `json:"blend_global,omitempty" yaml:"blend_global,omitempty"`
}

// PaddingForm mirrors strategy.Padding.
type PaddingForm struct {
	Enabled           bool     `json:"enabled" yaml:"enabled"`
	ThresholdOrdersLT *float64 `json:"threshold_orders_lt,omitempty" yaml:"threshold_orders_lt,omitempty"`
	FloorOrdersSetTo  *float64 `json:"floor_orders_set_to,omitempty" yaml:"floor_orders_set_to,omitempty"`
}

type strategyCheck func(f StrategyForm) *FieldError

// strategyChecks run in the order the form presents its fields. The id step
// is not here: a blank id is filled in by BuildStrategy, never rejected.
var strategyChecks = []strategyCheck{
	checkName,
	checkCreatedBy,
	checkLookback,
	checkDecay,
	func(f StrategyForm) *FieldError {
		return checkVolatility("slot_volatility", "Slot-of-day", f.SlotVolatility)
	},
	func(f StrategyForm) *FieldError {
		return checkVolatility("week_volatility", "Week-of-day", f.WeekVolatility)
	},
	checkMinWeeks,
	checkPadding,
}

// ValidateStrategy returns the first violation in form order, or nil.
func ValidateStrategy(f StrategyForm) *FieldError {
	for _, check := range strategyChecks {
		if fe := check(f); fe != nil {
			return fe
		}
	}
	return nil
}

// ValidateStrategyAll returns the first violation of every field group.
func ValidateStrategyAll(f StrategyForm) []FieldError {
	var errs []FieldError
	for _, check := range strategyChecks {
		if fe := check(f); fe != nil {
			errs = append(errs, *fe)
		}
	}
	return errs
}

// BuildStrategy validates f and turns it into a version 1 document. now and
// newID default to time.Now and a random UUID.
func BuildStrategy(f StrategyForm, now func() time.Time, newID func() string) (strategy.Document, error) {
	if now == nil {
		now = time.Now
	}
	if newID == nil {
		newID = uuid.NewString
	}
	f = trimForm(f)
	if f.StrategyID == "" {
		f.StrategyID = newID()
	}
	if fe := ValidateStrategy(f); fe != nil {
		return strategy.Document{}, fe
	}

	minWeeks := f.MinWeeksRequired
	if minWeeks == 0 {
		minWeeks = f.LookbackWeeks
	}
	notes := f.Notes
	if notes == "" {
		notes = "Created from the strategy form."
	}

	return strategy.Document{
		StrategyID:  f.StrategyID,
		Version:     1,
		Name:        f.Name,
		Description: f.Description,
		Type:        strategy.TypeDecay,
		Parameters: strategy.Parameters{
			LookbackWeeks: f.LookbackWeeks,
			Decay:         decayConfig(f),
		},
		Volatility: strategy.Volatility{
			SlotOfDay: volatilityRule(f.SlotVolatility),
			WeekOfDay: volatilityRule(f.WeekVolatility),
		},
		Constraints: strategy.Constraints{
			MinWeeksRequired: minWeeks,
			LowVolumePadding: strategy.Padding{
				Enabled:           f.Padding.Enabled,
				ThresholdOrdersLT: f.Padding.ThresholdOrdersLT,
				FloorOrdersSetTo:  f.Padding.FloorOrdersSetTo,
			},
		},
		Metadata: strategy.Metadata{
			CreatedBy: f.CreatedBy,
			CreatedAt: now().UTC().Format(time.RFC3339),
			Version:   1,
		},
		PreviewMeta: &strategy.PreviewMeta{UIOnly: true, Source: strategy.SourceCreate, Notes: notes},
	}, nil
}

// MsgStrategyIDChanged rejects an edit form carrying another strategy's id.
const MsgStrategyIDChanged = "Strategy id cannot change when editing"

// BuildEdit validates f and turns it into the successor of prev, written by
// editor. A blank form id takes prev's id; any other id is rejected. Default
// creation notes are not carried into the edit.
func BuildEdit(prev strategy.Previous, f StrategyForm, editor string, now func() time.Time) (strategy.Document, error) {
	if now == nil {
		now = time.Now
	}
	if strings.TrimSpace(editor) == "" {
		editor = f.CreatedBy
	}
	prevID := prev.StrategyID()
	f.StrategyID = strings.TrimSpace(f.StrategyID)
	switch {
	case f.StrategyID == "":
		f.StrategyID = prevID
	case prevID != "" && f.StrategyID != prevID:
		return strategy.Document{}, fieldErr("strategy_id", MsgStrategyIDChanged)
	}
	next, err := BuildStrategy(f, now, nil)
	if err != nil {
		return strategy.Document{}, err
	}
	if strings.TrimSpace(f.Notes) == "" {
		next.PreviewMeta.Notes = ""
	}
	return strategy.Edit(prev, next, strings.TrimSpace(editor), now())
}

// FormFromDocument loads a stored document back into an editable form.
func FormFromDocument(d strategy.Document) StrategyForm {
	f := StrategyForm{
		StrategyID:       d.StrategyID,
		Name:             d.Name,
		Description:      d.Description,
		CreatedBy:        d.Metadata.CreatedBy,
		LookbackWeeks:    d.Parameters.LookbackWeeks,
		DecayMode:        string(d.Parameters.Decay.Mode),
		SlotVolatility:   volatilityForm(d.Volatility.SlotOfDay),
		WeekVolatility:   volatilityForm(d.Volatility.WeekOfDay),
		MinWeeksRequired: d.Constraints.MinWeeksRequired,
		Padding: PaddingForm{
			Enabled:           d.Constraints.LowVolumePadding.Enabled,
			ThresholdOrdersLT: d.Constraints.LowVolumePadding.ThresholdOrdersLT,
			FloorOrdersSetTo:  d.Constraints.LowVolumePadding.FloorOrdersSetTo,
		},
	}
	switch d.Parameters.Decay.Mode {
	case strategy.DecayAlpha:
		f.Alpha = strategy.Float(d.Parameters.Decay.Alpha)
	case strategy.DecayOverride:
		f.OverrideWeights = d.Parameters.Decay.OverrideWeights
	}
	if d.PreviewMeta != nil {
		f.Notes = d.PreviewMeta.Notes
	}
	return f
}

func checkName(f StrategyForm) *FieldError {
	if strings.TrimSpace(f.Name) == "" {
		return fieldErr("name", "Name is required")
	}
	return nil
}

func checkCreatedBy(f StrategyForm) *FieldError {
	if strings.TrimSpace(f.CreatedBy) == "" {
		return fieldErr("created_by", "Created by is required")
	}
	return nil
}

func checkLookback(f StrategyForm) *FieldError {
	if !weeksInRange(f.LookbackWeeks) {
		return fieldErr("lookback_weeks", fmt.Sprintf("Lookback weeks must be between %d and %d", strategy.MinLookbackWeeks, strategy.MaxLookbackWeeks))
	}
	return nil
}

func checkDecay(f StrategyForm) *FieldError {
	switch strategy.DecayMode(f.DecayMode) {
	case strategy.DecayAlpha:
		if f.Alpha == nil {
			return fieldErr("alpha", "Alpha is required")
		}
		if !unit(*f.Alpha) {
			return fieldErr("alpha", "Alpha must be between 0 and 1")
		}
	case strategy.DecayOverride:
		if len(f.OverrideWeights) != f.LookbackWeeks {
			return fieldErr("override_weights", fmt.Sprintf("Provide %d override weights, one per lookback week", f.LookbackWeeks))
		}
		var total float64
		for i, w := range f.OverrideWeights {
			if !unit(w) {
				return fieldErr("override_weights", fmt.Sprintf("Week %d weight must be between 0 and 1", i+1))
			}
			total += w
		}
		if math.Abs(total-1) > strategy.OverrideSumTol {
			return fieldErr("override_weights", fmt.Sprintf("Override weights must sum to 1 (currently %.3f)", total))
		}
	default:
		return fieldErr("decay_mode", "Decay mode must be alpha or override")
	}
	return nil
}

func checkVolatility(field, label string, v VolatilityForm) *FieldError {
	if !v.Enabled {
		return nil
	}
	values := []struct {
		name string
		text string
		v    *float64
	}{
		{"lambda", "lambda", v.Lambda},
		{"trust_floor", "trust floor", v.TrustFloor},
		{"trust_ceiling", "trust ceiling", v.TrustCeiling},
		{"blend_global", "global blend", v.BlendGlobal},
	}
	for _, x := range values {
		if x.v == nil || !unit(*x.v) {
			return fieldErr(field+"."+x.name, fmt.Sprintf("%s %s must be between 0 and 1", label, x.text))
		}
	}
	if *v.TrustCeiling < *v.TrustFloor {
		return fieldErr(field+".trust_ceiling", fmt.Sprintf("%s trust ceiling must be at least the trust floor", label))
	}
	return nil
}

func checkMinWeeks(f StrategyForm) *FieldError {
	if f.MinWeeksRequired != 0 && !weeksInRange(f.MinWeeksRequired) {
		return fieldErr("min_weeks_required", fmt.Sprintf("Min weeks required must be between %d and %d", strategy.MinLookbackWeeks, strategy.MaxLookbackWeeks))
	}
	return nil
}

func checkPadding(f StrategyForm) *FieldError {
	p := f.Padding
	if !p.Enabled && p.ThresholdOrdersLT == nil && p.FloorOrdersSetTo == nil {
		return nil
	}
	if (p.ThresholdOrdersLT == nil) != (p.FloorOrdersSetTo == nil) || (p.Enabled && p.ThresholdOrdersLT == nil) {
		return fieldErr("low_volume_padding", "Padding threshold and floor must be provided together")
	}
	if !finite(*p.ThresholdOrdersLT) || *p.ThresholdOrdersLT < 0 {
		return fieldErr("low_volume_padding.threshold_orders_lt", "Padding threshold must be 0 or more")
	}
	if !finite(*p.FloorOrdersSetTo) || *p.FloorOrdersSetTo < *p.ThresholdOrdersLT {
		return fieldErr("low_volume_padding.floor_orders_set_to", "Padding floor must be at least the threshold")
	}
	return nil
}

func decayConfig(f StrategyForm) strategy.DecayConfig {
	mode := strategy.DecayMode(f.DecayMode)
	if mode == strategy.DecayOverride {
		w := append([]float64(nil), f.OverrideWeights...)
		return strategy.DecayConfig{Mode: mode, OverrideWeights: w}
	}
	return strategy.DecayConfig{Mode: mode, Alpha: *f.Alpha}
}

func volatilityRule(v VolatilityForm) strategy.VolatilityRule {
	if !v.Enabled {
		return strategy.VolatilityRule{}
	}
	return strategy.VolatilityRule{
		Enabled:      true,
		Lambda:       *v.Lambda,
		TrustFloor:   *v.TrustFloor,
		TrustCeiling: *v.TrustCeiling,
		BlendGlobal:  *v.BlendGlobal,
	}
}

func volatilityForm(r strategy.VolatilityRule) VolatilityForm {
	if !r.Enabled {
		return VolatilityForm{}
	}
	return VolatilityForm{
		Enabled:      true,
		Lambda:       strategy.Float(r.Lambda),
		TrustFloor:   strategy.Float(r.TrustFloor),
		TrustCeiling: strategy.Float(r.TrustCeiling),
		BlendGlobal:  strategy.Float(r.BlendGlobal),
	}
}

func trimForm(f StrategyForm) StrategyForm {
	f.StrategyID = strings.TrimSpace(f.StrategyID)
	f.Name = strings.TrimSpace(f.Name)
	f.Description = strings.TrimSpace(f.Description)
	f.CreatedBy = strings.TrimSpace(f.CreatedBy)
	f.DecayMode = strings.TrimSpace(f.DecayMode)
	return f
}

func weeksInRange(n int) bool {
	return n >= strategy.MinLookbackWeeks && n <= strategy.MaxLookbackWeeks
}

func unit(v float64) bool { return v >= 0 && v <= 1 }

func finite(v float64) bool { return !math.IsNaN(v) && !math.IsInf(v, 0) }
