package analytics

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/ultradar/internal/validation"
)

func TestCheckDay(t *testing.T) {
	assert.NoError(t, CheckDay("2024-03-04"))
	for _, bad := range []string{"", "2024-13-40", "2023-02-29", "2024-3-4", "2024-03-04'; DROP TABLE x; --", "04/03/2024", "2024-03-04 "} {
		err := CheckDay(bad)
		var fe *validation.FieldError
		require.True(t, errors.As(err, &fe), bad)
		assert.Equal(t, "day must be YYYY-MM-DD", fe.Message)
	}
	assert.NoError(t, CheckDay("2024-02-29"))
}

func TestEscapeLiteral(t *testing.T) {
	assert.Equal(t, "O''Brien''s", EscapeLiteral("O'Brien's"))
	assert.Equal(t, "plain", EscapeLiteral("plain"))
}

func TestStoresSQL(t *testing.T) {
	sql := StoresSQL("store_shapes_mvp3", "v_gold_daily_shape_by_day")
	assert.Contains(t, sql, "SELECT DISTINCT store_name")
	assert.Contains(t, sql, "FROM store_shapes_mvp3.v_gold_daily_shape_by_day")
	assert.Contains(t, sql, "ORDER BY store_name")
}

func TestSlotOfDaySQL(t *testing.T) {
	sql, err := SlotOfDaySQL("db", "v", "Joe's Market", "2024-03-04")
	require.NoError(t, err)
	assert.Contains(t, sql, "WHERE order_day = DATE '2024-03-04'")
	assert.Contains(t, sql, "AND store_name = 'Joe''s Market'")
	assert.Contains(t, sql, "CAST(order_day AS VARCHAR) AS order_day")
	assert.Contains(t, sql, "ORDER BY start_minute")
}

func TestSlotOfDaySQL_Errors(t *testing.T) {
	_, err := SlotOfDaySQL("db", "v", "", "2024-03-04")
	assert.EqualError(t, err, "store and day required")

	_, err = SlotOfDaySQL("db", "v", "A", "")
	assert.EqualError(t, err, "store and day required")

	_, err = SlotOfDaySQL("db", "v", "A", "2024-13-4O")
	assert.EqualError(t, err, "day must be YYYY-MM-DD")
}

func TestCurvesByDaySQL(t *testing.T) {
	sql, err := CurvesByDaySQL("db", "v", "2024-03-04")
	require.NoError(t, err)
	assert.Contains(t, sql, "SELECT store_name, time_interval, start_minute, pct_of_day")
	assert.Contains(t, sql, "ORDER BY start_minute, store_name")

	_, err = CurvesByDaySQL("db", "v", "")
	assert.EqualError(t, err, "day required")
}

func TestByWeekSQL(t *testing.T) {
	sql, err := ByWeekSQL("db", "weekly", 15)
	require.NoError(t, err)
	assert.Contains(t, sql, "FROM db.weekly")
	assert.Contains(t, sql, "WHERE weeknum = 15")

	for _, w := range []int{0, 54, -1} {
		_, err := ByWeekSQL("db", "weekly", w)
		assert.EqualError(t, err, "weeknum must be 1-53")
	}
}
