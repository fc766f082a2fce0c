// Package export writes analytics results to spreadsheet workbooks.
package export

import (
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"

	"github.com/sells-group/ultradar/internal/shape"
)

// maxSheetName is the Excel limit on sheet name length.
const maxSheetName = 31

// Curves builds a one-sheet workbook with an interval column followed by one
// column per store. Stores with a shorter series leave trailing cells blank.
func Curves(day string, c shape.Curves) (*xlsx.File, error) {
	f := xlsx.NewFile()
	sheet, err := f.AddSheet(sheetName("curves "+day, nil))
	if err != nil {
		return nil, eris.Wrap(err, "export: add curves sheet")
	}

	header := []string{"interval"}
	for _, ds := range c.Datasets {
		header = append(header, ds.Label)
	}
	addStrings(sheet, header)

	for i, label := range c.Labels {
		row := sheet.AddRow()
		row.AddCell().SetString(label)
		for _, ds := range c.Datasets {
			cell := row.AddCell()
			if i < len(ds.Data) {
				setNumber(cell, ds.Data[i])
			}
		}
	}
	return f, nil
}

// Slots builds a workbook from slot-of-day records.
func Slots(recs []shape.SlotRecord) (*xlsx.File, error) {
	f := xlsx.NewFile()
	sheet, err := f.AddSheet("slots")
	if err != nil {
		return nil, eris.Wrap(err, "export: add slots sheet")
	}
	addStrings(sheet, []string{
		"time_interval", "start_minute", "orders", "daily_orders", "pct_of_day",
		"cum_pct", "store_name", "order_day", "weeknum", "month", "day_of_week",
	})
	for _, r := range recs {
		row := sheet.AddRow()
		row.AddCell().SetString(r.TimeInterval)
		for _, n := range []shape.Number{r.StartMinute, r.Orders, r.DailyOrders, r.PctOfDay, r.CumPct} {
			setNumber(row.AddCell(), n)
		}
		row.AddCell().SetString(r.StoreName)
		row.AddCell().SetString(r.OrderDay)
		setNumber(row.AddCell(), r.Weeknum)
		setNumber(row.AddCell(), r.Month)
		row.AddCell().SetString(r.DayOfWeek)
	}
	return f, nil
}

// Heatmap builds one sheet per store, intervals down and weekdays across,
// holding the percentage of each cell.
func Heatmap(hm shape.Heatmap) (*xlsx.File, error) {
	f := xlsx.NewFile()
	used := map[string]bool{}
	for _, st := range hm.Stores {
		sheet, err := f.AddSheet(sheetName(st.StoreName, used))
		if err != nil {
			return nil, eris.Wrapf(err, "export: add sheet for %s", st.StoreName)
		}
		addStrings(sheet, append([]string{"interval"}, hm.Days...))
		for i, interval := range hm.Intervals {
			row := sheet.AddRow()
			row.AddCell().SetString(interval)
			if i >= len(st.Cells) {
				continue
			}
			for _, c := range st.Cells[i] {
				setNumber(row.AddCell(), c.Pct)
			}
		}
	}
	if len(f.Sheets) == 0 {
		if _, err := f.AddSheet("empty"); err != nil {
			return nil, eris.Wrap(err, "export: add empty sheet")
		}
	}
	return f, nil
}

// Save writes f to path.
func Save(f *xlsx.File, path string) error {
	if err := f.Save(path); err != nil {
		return eris.Wrapf(err, "export: save %s", path)
	}
	return nil
}

func addStrings(sheet *xlsx.Sheet, vals []string) {
	row := sheet.AddRow()
	for _, v := range vals {
		row.AddCell().SetString(v)
	}
}

func setNumber(cell *xlsx.Cell, n shape.Number) {
	if n.Valid {
		cell.SetFloat(n.Value)
	}
}

// sheetName makes name legal for a sheet and unique within used.
func sheetName(name string, used map[string]bool) string {
	name = strings.Map(func(r rune) rune {
		switch r {
		case ':', '\\', '/', '?', '*', '[', ']':
			return '_'
		}
		return r
	}, strings.TrimSpace(name))
	if name == "" {
		name = "sheet"
	}
	name = truncate(name, maxSheetName)
	if used == nil {
		return name
	}
	base := name
	for i := 2; used[name]; i++ {
		suffix := fmt.Sprintf(" (%d)", i)
		name = truncate(base, maxSheetName-len(suffix)) + suffix
	}
	used[name] = true
	return name
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
