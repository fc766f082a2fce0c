package shape

import (
	"fmt"
	"math"
	"slices"
	"sort"
	"strconv"
	"strings"
	"time"

	"golang.org/x/text/collate"
	"golang.org/x/text/language"
)

// UnnamedStore labels records without a store name.
const UnnamedStore = "Unnamed Store"

// DayOrder is the canonical weekday sequence.
var DayOrder = []string{"Sunday", "Monday", "Tuesday", "Wednesday", "Thursday", "Friday", "Saturday"}

// Heatmap is by-week data grouped per store, with one column per weekday and
// one row per time interval.
type Heatmap struct {
	Days      []string    `json:"days"`
	Intervals []string    `json:"intervals"`
	Stores    []StoreGrid `json:"stores"`
}

// StoreGrid holds one store's cells, indexed [interval][day].
type StoreGrid struct {
	StoreName     string   `json:"store_name"`
	MarketplaceID string   `json:"marketplace_id,omitempty"`
	Cells         [][]Cell `json:"cells"`
}

// Cell is one slot/weekday value. Pct is a percentage in [0,100]; Scaled
// places it between the weekday column's min and max.
type Cell struct {
	Pct    Number `json:"pct"`
	Scaled Number `json:"scaled"`
}

type cellKey struct{ day, interval string }

type storeAcc struct {
	name        string
	marketplace string
	values      map[cellKey]Number
}

// GroupByWeek groups flat records by store then weekday. Weekdays follow
// DayOrder with unrecognised labels appended in lexicographic order.
// Intervals sort by start minute; with none present the 48 canonical
// half-hour intervals are used. Stores sort case-insensitively.
func GroupByWeek(records []WeekRecord) Heatmap {
	if len(records) == 0 {
		return Heatmap{Days: []string{}, Intervals: []string{}, Stores: []StoreGrid{}}
	}

	stores := make(map[string]*storeAcc)
	var order []string
	intervalSet := make(map[string]bool)
	daySet := make(map[string]bool)

	for _, rec := range records {
		name := rec.StoreName
		if name == "" {
			name = UnnamedStore
		}
		acc, ok := stores[name]
		if !ok {
			acc = &storeAcc{name: name, values: make(map[cellKey]Number)}
			stores[name] = acc
			order = append(order, name)
		}
		if acc.marketplace == "" {
			acc.marketplace = rec.MarketplaceID
		}
		acc.values[cellKey{rec.DayOfWeek, rec.TimeInterval}] = NormalizePct(rec.PctOfDay)

		if rec.TimeInterval != "" {
			intervalSet[rec.TimeInterval] = true
		}
		if rec.DayOfWeek != "" {
			daySet[rec.DayOfWeek] = true
		}
	}

	hm := Heatmap{Days: orderDays(daySet), Intervals: orderIntervals(intervalSet)}

	coll := collate.New(language.Und, collate.IgnoreCase, collate.IgnoreDiacritics)
	sort.SliceStable(order, func(i, j int) bool {
		return coll.CompareString(order[i], order[j]) < 0
	})

	hm.Stores = make([]StoreGrid, 0, len(order))
	for _, name := range order {
		hm.Stores = append(hm.Stores, buildGrid(stores[name], hm.Days, hm.Intervals))
	}
	return hm
}

func buildGrid(acc *storeAcc, days, intervals []string) StoreGrid {
	lo := make([]float64, len(days))
	hi := make([]float64, len(days))
	for c, day := range days {
		lo[c], hi[c] = math.Inf(1), math.Inf(-1)
		for _, iv := range intervals {
			v := acc.values[cellKey{day, iv}]
			if !v.Valid {
				continue
			}
			lo[c] = math.Min(lo[c], v.Value)
			hi[c] = math.Max(hi[c], v.Value)
		}
		if math.IsInf(lo[c], 0) {
			lo[c] = 0
		}
		if math.IsInf(hi[c], 0) {
			hi[c] = 0
		}
		if hi[c] == lo[c] {
			hi[c] = lo[c] + 0.0001
		}
	}

	g := StoreGrid{StoreName: acc.name, MarketplaceID: acc.marketplace, Cells: make([][]Cell, len(intervals))}
	for r, iv := range intervals {
		row := make([]Cell, len(days))
		for c, day := range days {
			v := acc.values[cellKey{day, iv}]
			if !v.Valid {
				continue
			}
			t := (v.Value - lo[c]) / (hi[c] - lo[c])
			row[c] = Cell{Pct: v, Scaled: Num(round(clamp(t, 0, 1), 2))}
		}
		g.Cells[r] = row
	}
	return g
}

func orderDays(set map[string]bool) []string {
	days := make([]string, 0, len(set))
	for _, d := range DayOrder {
		if set[d] {
			days = append(days, d)
		}
	}
	var extra []string
	for d := range set {
		if !slices.Contains(DayOrder, d) {
			extra = append(extra, d)
		}
	}
	sort.Strings(extra)
	return append(days, extra...)
}

func orderIntervals(set map[string]bool) []string {
	if len(set) == 0 {
		return CanonicalIntervals()
	}
	out := make([]string, 0, len(set))
	for iv := range set {
		out = append(out, iv)
	}
	// Ties (same start minute, different text) fall back to the text so the
	// order is deterministic.
	sort.Slice(out, func(i, j int) bool {
		a, b := IntervalStartMinute(out[i]), IntervalStartMinute(out[j])
		if a != b {
			return a < b
		}
		return out[i] < out[j]
	})
	return out
}

// IntervalStartMinute parses the start of "HH:MM - HH:MM" into minutes since
// midnight. Unparseable input yields 0.
func IntervalStartMinute(interval string) int {
	start, _, _ := strings.Cut(interval, " - ")
	hs, ms, ok := strings.Cut(strings.TrimSpace(start), ":")
	if !ok {
		return 0
	}
	h, err1 := strconv.Atoi(strings.TrimSpace(hs))
	m, err2 := strconv.Atoi(strings.TrimSpace(ms))
	if err1 != nil || err2 != nil {
		return 0
	}
	return h*60 + m
}

// CanonicalIntervals returns the 48 half-hour slots of a day, the last one
// wrapping to "00:00".
func CanonicalIntervals() []string {
	out := make([]string, 0, 48)
	for m := 0; m < 24*60; m += 30 {
		n := (m + 30) % (24 * 60)
		out = append(out, fmt.Sprintf("%02d:%02d - %02d:%02d", m/60, m%60, n/60, n%60))
	}
	return out
}

// NormalizePct accepts a share in [0,1] or a percentage in (1,100] and
// returns a percentage clamped to [0,100] with two decimals.
func NormalizePct(v Number) Number {
	if !v.Valid {
		return v
	}
	pct := v.Value
	if pct <= 1 {
		pct *= 100
	}
	return Num(round(clamp(pct, 0, 100), 2))
}

// SanitizeWeek clamps a week number into 1..53. ok is false for NaN/Inf.
func SanitizeWeek(v float64) (week int, ok bool) {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, false
	}
	return int(math.Round(clamp(v, 1, 53))), true
}

// ISOWeek returns the ISO-8601 week number of t.
func ISOWeek(t time.Time) int {
	_, w := t.ISOWeek()
	return w
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}
