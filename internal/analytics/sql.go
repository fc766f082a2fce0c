// Package analytics builds the SQL for each slot-curve endpoint, runs it
// through the query bridge and shapes the rows.
package analytics

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/sells-group/ultradar/internal/validation"
)

var isoDate = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)

// CheckDay rejects anything that is not a real calendar date written as
// YYYY-MM-DD. The value is interpolated into SQL, so nothing else may pass.
func CheckDay(day string) error {
	if !isoDate.MatchString(day) {
		return validation.Required("day", "day must be YYYY-MM-DD")
	}
	if _, err := time.Parse(time.DateOnly, day); err != nil {
		return validation.Required("day", "day must be YYYY-MM-DD")
	}
	return nil
}

// CheckWeek rejects week numbers outside 1..53.
func CheckWeek(week int) error {
	if week < 1 || week > 53 {
		return validation.Required("weeknum", "weeknum must be 1-53")
	}
	return nil
}

// EscapeLiteral doubles single quotes for use inside a SQL string literal.
func EscapeLiteral(s string) string {
	return strings.ReplaceAll(s, "'", "''")
}

// StoresSQL lists distinct store names.
func StoresSQL(db, view string) string {
	return fmt.Sprintf(`SELECT DISTINCT store_name
FROM %s.%s
ORDER BY store_name`, db, view)
}

// SlotOfDaySQL selects one store's slots for one day.
func SlotOfDaySQL(db, view, store, day string) (string, error) {
	if store == "" || day == "" {
		return "", validation.Required("store", "store and day required")
	}
	if err := CheckDay(day); err != nil {
		return "", err
	}
	return fmt.Sprintf(`SELECT
  time_interval,
  start_minute,
  orders,
  daily_orders,
  pct_of_day,
  cum_pct,
  store_name,
  CAST(order_day AS VARCHAR) AS order_day,
  weeknum,
  month,
  day_of_week
FROM %s.%s
WHERE order_day = DATE '%s'
  AND store_name = '%s'
ORDER BY start_minute`, db, view, day, EscapeLiteral(store)), nil
}

// CurvesByDaySQL selects every store's slot shares for one day.
func CurvesByDaySQL(db, view, day string) (string, error) {
	if day == "" {
		return "", validation.Required("day", "day required")
	}
	if err := CheckDay(day); err != nil {
		return "", err
	}
	return fmt.Sprintf(`SELECT store_name, time_interval, start_minute, pct_of_day
FROM %s.%s
WHERE order_day = DATE '%s'
ORDER BY start_minute, store_name`, db, view, day), nil
}

// ByWeekSQL selects the weekly slot curves of every store for one week.
func ByWeekSQL(db, view string, week int) (string, error) {
	if err := CheckWeek(week); err != nil {
		return "", err
	}
	return fmt.Sprintf(`SELECT store_name, marketplace_id, day_of_week, time_interval, pct_of_day
FROM %s.%s
WHERE weeknum = %d
ORDER BY store_name, day_of_week, time_interval`, db, view, week), nil
}
