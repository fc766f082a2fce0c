// Package curve computes the numeric side of a strategy: trailing-week decay
// weights, trend-relative trust scores and the combined preview a strategy
// author sees before saving.
package curve

import (
	"math"

	"github.com/rotisserie/eris"

	"github.com/sells-group/ultradar/internal/strategy"
)

// DecayWeights returns lookback weights summing to 1.
//
// Alpha mode: weight[i] = (1-alpha) * alpha^i, i=0 being the most recent
// week, divided by the raw sum. alpha=0 puts everything on week 0. alpha=1
// has a zero raw sum and falls back to uniform weights.
//
// Override mode: the supplied weights are renormalized in their given order;
// index 0 is week 1 as shown in the override rows.
func DecayWeights(lookback int, cfg strategy.DecayConfig) ([]float64, error) {
	if lookback < 1 {
		return nil, eris.Errorf("curve: lookback must be positive, got %d", lookback)
	}

	switch cfg.Mode {
	case strategy.DecayAlpha:
		a := cfg.Alpha
		if math.IsNaN(a) || a < 0 || a > 1 {
			return nil, eris.Errorf("curve: alpha must be in [0,1], got %v", a)
		}
		raw := make([]float64, lookback)
		for i := range raw {
			raw[i] = (1 - a) * math.Pow(a, float64(i))
		}
		return normalize(raw), nil

	case strategy.DecayOverride:
		if len(cfg.OverrideWeights) != lookback {
			return nil, eris.Errorf("curve: expected %d override weights, got %d", lookback, len(cfg.OverrideWeights))
		}
		raw := make([]float64, lookback)
		for i, w := range cfg.OverrideWeights {
			if math.IsNaN(w) || math.IsInf(w, 0) || w < 0 {
				return nil, eris.Errorf("curve: override weight %d is invalid: %v", i+1, w)
			}
			raw[i] = w
		}
		if sum(raw) == 0 {
			return nil, eris.New("curve: override weights sum to zero")
		}
		return normalize(raw), nil
	}

	return nil, eris.Errorf("curve: unknown decay mode %q", cfg.Mode)
}

// normalize divides by the sum in place. A zero sum yields uniform weights.
func normalize(w []float64) []float64 {
	s := sum(w)
	if s == 0 {
		for i := range w {
			w[i] = 1 / float64(len(w))
		}
		return w
	}
	for i := range w {
		w[i] /= s
	}
	return w
}

func sum(v []float64) float64 {
	var s float64
	for _, x := range v {
		s += x
	}
	return s
}
