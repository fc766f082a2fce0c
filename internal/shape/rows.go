// Package shape turns raw engine rows into the records each analytics
// endpoint returns. Every function is pure and accepts any input.
package shape

import (
	"github.com/sells-group/ultradar/internal/query"
)

// Stores projects column 0, dropping NULL and empty names. Distinctness and
// order come from the SQL.
func Stores(rows []query.Row) []string {
	out := make([]string, 0, len(rows))
	for _, r := range rows {
		if name := text(col(r, 0)); name != "" {
			out = append(out, name)
		}
	}
	return out
}

// SlotRecord is one time slot of one store on one day.
type SlotRecord struct {
	TimeInterval string `json:"time_interval"`
	StartMinute  Number `json:"start_minute"`
	Orders       Number `json:"orders"`
	DailyOrders  Number `json:"daily_orders"`
	PctOfDay     Number `json:"pct_of_day"`
	CumPct       Number `json:"cum_pct"`
	StoreName    string `json:"store_name"`
	OrderDay     string `json:"order_day"`
	Weeknum      Number `json:"weeknum"`
	Month        Number `json:"month"`
	DayOfWeek    string `json:"day_of_week"`
}

// SlotOfDay maps the 11 slot-of-day columns positionally.
func SlotOfDay(rows []query.Row) []SlotRecord {
	out := make([]SlotRecord, 0, len(rows))
	for _, r := range rows {
		out = append(out, SlotRecord{
			TimeInterval: text(col(r, 0)),
			StartMinute:  ParseNumber(col(r, 1)),
			Orders:       ParseNumber(col(r, 2)),
			DailyOrders:  ParseNumber(col(r, 3)),
			PctOfDay:     ParseNumber(col(r, 4)),
			CumPct:       ParseNumber(col(r, 5)),
			StoreName:    text(col(r, 6)),
			OrderDay:     text(col(r, 7)),
			Weeknum:      ParseNumber(col(r, 8)),
			Month:        ParseNumber(col(r, 9)),
			DayOfWeek:    text(col(r, 10)),
		})
	}
	return out
}

// Dataset is one store's series on the curves-by-day chart.
type Dataset struct {
	Label string   `json:"label"`
	Data  []Number `json:"data"`
}

// Curves is the curves-by-day chart payload.
type Curves struct {
	Labels   []string  `json:"labels"`
	Datasets []Dataset `json:"datasets"`
}

// CurvesByDay expects rows of (store_name, time_interval, start_minute,
// pct_of_day) ordered by start_minute then store. A label is emitted each time
// start_minute changes; each store's percentages (×100) are appended in row
// order. Stores missing a slot get a shorter series, not a zero.
func CurvesByDay(rows []query.Row) Curves {
	c := Curves{Labels: []string{}, Datasets: []Dataset{}}

	var last Number
	for i, r := range rows {
		sm := ParseNumber(col(r, 2))
		if i == 0 || !sm.Valid || !last.Valid || sm.Value != last.Value {
			c.Labels = append(c.Labels, text(col(r, 1)))
		}
		last = sm
	}

	index := make(map[string]int)
	for _, r := range rows {
		store := text(col(r, 0))
		i, ok := index[store]
		if !ok {
			i = len(c.Datasets)
			index[store] = i
			c.Datasets = append(c.Datasets, Dataset{Label: store, Data: []Number{}})
		}
		pct := ParseNumber(col(r, 3))
		if pct.Valid {
			pct.Value = round(pct.Value*100, 9)
		}
		c.Datasets[i].Data = append(c.Datasets[i].Data, pct)
	}
	return c
}

// WeekRecord is one flat by-week row.
type WeekRecord struct {
	StoreName     string `json:"store_name"`
	MarketplaceID string `json:"marketplace_id"`
	DayOfWeek     string `json:"day_of_week"`
	TimeInterval  string `json:"time_interval"`
	PctOfDay      Number `json:"pct_of_day"`
}

// ByWeek maps (store_name, marketplace_id, day_of_week, time_interval,
// pct_of_day) rows.
func ByWeek(rows []query.Row) []WeekRecord {
	out := make([]WeekRecord, 0, len(rows))
	for _, r := range rows {
		out = append(out, WeekRecord{
			StoreName:     text(col(r, 0)),
			MarketplaceID: text(col(r, 1)),
			DayOfWeek:     text(col(r, 2)),
			TimeInterval:  text(col(r, 3)),
			PctOfDay:      ParseNumber(col(r, 4)),
		})
	}
	return out
}
