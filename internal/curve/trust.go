package curve

import (
	"math"
	"sort"
)

const (
	madScale  = 1.4826
	madEps    = 1e-9
	zSaturate = 3.0
)

// TrustParams parameterises Trust. All values are expected in [0,1].
type TrustParams struct {
	Lambda      float64 `json:"lambda"`
	Floor       float64 `json:"trust_floor"`
	Ceiling     float64 `json:"trust_ceiling"`
	BlendGlobal float64 `json:"blend_global"`
}

// TrustResult holds one trust score and one trend value per input point.
type TrustResult struct {
	Trust []float64 `json:"trust"`
	Trend []float64 `json:"trend"`
}

// Trust scores each point of series by how far it sits from a least-squares
// trend, using a median/MAD z-score so a single odd week cannot dominate.
// Every score lies in [Floor, max(Ceiling, Floor)].
func Trust(series []float64, p TrustParams) TrustResult {
	n := len(series)
	out := TrustResult{Trust: make([]float64, n), Trend: make([]float64, n)}
	if n == 0 {
		return out
	}

	ceiling := p.Ceiling
	if ceiling < p.Floor {
		ceiling = p.Floor
	}

	slope, intercept := fitLine(series)
	res := make([]float64, n)
	for i, y := range series {
		out.Trend[i] = intercept + slope*float64(i+1)
		blended := (1-p.BlendGlobal)*y + p.BlendGlobal*out.Trend[i]
		res[i] = y - blended
	}

	med := median(res)
	dev := make([]float64, n)
	for i, r := range res {
		dev[i] = math.Abs(r - med)
	}
	scale := madScale*median(dev) + madEps

	for i := range res {
		z := clamp(dev[i]/scale/zSaturate, 0, 1)
		out.Trust[i] = clamp(1-p.Lambda*z, p.Floor, ceiling)
	}
	return out
}

// fitLine returns the ordinary least squares fit of series over x = 1..N.
func fitLine(series []float64) (slope, intercept float64) {
	n := float64(len(series))
	var sx, sy float64
	for i, y := range series {
		sx += float64(i + 1)
		sy += y
	}
	mx, my := sx/n, sy/n

	var sxy, sxx float64
	for i, y := range series {
		dx := float64(i+1) - mx
		sxy += dx * (y - my)
		sxx += dx * dx
	}
	if sxx == 0 {
		return 0, my
	}
	slope = sxy / sxx
	return slope, my - slope*mx
}

func median(v []float64) float64 {
	if len(v) == 0 {
		return 0
	}
	s := append([]float64(nil), v...)
	sort.Float64s(s)
	m := len(s) / 2
	if len(s)%2 == 1 {
		return s[m]
	}
	return (s[m-1] + s[m]) / 2
}

// clamp bounds v to [lo, hi]. NaN maps to lo.
func clamp(v, lo, hi float64) float64 {
	if math.IsNaN(v) || v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
