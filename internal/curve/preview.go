package curve

import (
	"fmt"

	"github.com/rotisserie/eris"

	"github.com/sells-group/ultradar/internal/strategy"
)

// Series is optional sample data a preview is computed against. Each slice
// is ordered oldest week first.
type Series struct {
	SlotOfDay []float64 `json:"slot_of_day,omitempty"`
	WeekOfDay []float64 `json:"week_of_day,omitempty"`
	Orders    []float64 `json:"orders,omitempty"`
}

// Preview is what a strategy would do to the given series.
type Preview struct {
	Weights           []float64    `json:"weights"`
	SlotTrust         *TrustResult `json:"slot_trust,omitempty"`
	WeekTrust         *TrustResult `json:"week_trust,omitempty"`
	EffectiveWeights  []float64    `json:"effective_weights,omitempty"`
	PaddedOrders      []float64    `json:"padded_orders,omitempty"`
	SufficientHistory bool         `json:"sufficient_history"`
	Notes             []string     `json:"notes,omitempty"`
}

// BuildPreview computes decay weights for doc and, when series data is
// given, trust scores, trust-adjusted weights and padded orders.
func BuildPreview(doc strategy.Document, s Series) (*Preview, error) {
	lookback := doc.Parameters.LookbackWeeks
	w, err := DecayWeights(lookback, doc.Parameters.Decay)
	if err != nil {
		return nil, eris.Wrap(err, "curve: preview")
	}
	p := &Preview{Weights: w}

	minWeeks := doc.Constraints.MinWeeksRequired
	if minWeeks == 0 {
		minWeeks = lookback
	}
	weeks := len(s.WeekOfDay)
	if weeks == 0 {
		weeks = len(s.SlotOfDay)
	}
	p.SufficientHistory = weeks >= minWeeks
	if weeks > 0 && !p.SufficientHistory {
		p.Notes = append(p.Notes, fmt.Sprintf("%d weeks of history, %d required", weeks, minWeeks))
	}

	if r := doc.Volatility.SlotOfDay; r.Enabled && len(s.SlotOfDay) > 0 {
		t := Trust(s.SlotOfDay, params(r))
		p.SlotTrust = &t
	}
	if r := doc.Volatility.WeekOfDay; r.Enabled && len(s.WeekOfDay) > 0 {
		t := Trust(s.WeekOfDay, params(r))
		p.WeekTrust = &t
		p.EffectiveWeights = p.adjust(t.Trust, doc.Parameters.Decay.Mode == strategy.DecayOverride)
	}

	if len(s.Orders) > 0 {
		p.PaddedOrders = doc.Constraints.LowVolumePadding.Apply(s.Orders)
	}
	return p, nil
}

// adjust multiplies decay weights by week trust and renormalizes. Series run
// oldest first. Alpha weights run most recent first, so trust is read in
// reverse for them; override weights already start at the oldest week.
func (p *Preview) adjust(trust []float64, oldestFirst bool) []float64 {
	if len(trust) != len(p.Weights) {
		p.Notes = append(p.Notes, fmt.Sprintf("week series has %d points, lookback is %d: effective weights skipped", len(trust), len(p.Weights)))
		return nil
	}
	n := len(trust)
	out := make([]float64, n)
	for i, w := range p.Weights {
		j := n - 1 - i
		if oldestFirst {
			j = i
		}
		out[i] = w * trust[j]
	}
	return normalize(out)
}

func params(r strategy.VolatilityRule) TrustParams {
	return TrustParams{Lambda: r.Lambda, Floor: r.TrustFloor, Ceiling: r.TrustCeiling, BlendGlobal: r.BlendGlobal}
}
