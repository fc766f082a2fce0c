package shape

import (
	"bytes"
	"encoding/json"
	"math"
	"strconv"
	"strings"
)

// Number is a numeric cell that may be missing. NULL and unparseable cells
// stay missing and marshal as JSON null rather than zero.
type Number struct {
	Value float64
	Valid bool
}

// Num returns a valid Number.
func Num(v float64) Number { return Number{Value: v, Valid: true} }

// ParseNumber coerces a nullable cell.
func ParseNumber(cell *string) Number {
	if cell == nil {
		return Number{}
	}
	v, err := strconv.ParseFloat(strings.TrimSpace(*cell), 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return Number{}
	}
	return Num(v)
}

// Float returns the value, or NaN when missing.
func (n Number) Float() float64 {
	if !n.Valid {
		return math.NaN()
	}
	return n.Value
}

func (n Number) MarshalJSON() ([]byte, error) {
	if !n.Valid {
		return []byte("null"), nil
	}
	return json.Marshal(n.Value)
}

func (n *Number) UnmarshalJSON(b []byte) error {
	if bytes.Equal(bytes.TrimSpace(b), []byte("null")) {
		*n = Number{}
		return nil
	}
	// Some producers quote numbers.
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*n = ParseNumber(&s)
		return nil
	}
	var v float64
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	*n = Num(v)
	return nil
}

func (n Number) String() string {
	if !n.Valid {
		return ""
	}
	return strconv.FormatFloat(n.Value, 'f', -1, 64)
}

func text(cell *string) string {
	if cell == nil {
		return ""
	}
	return *cell
}

func col(r []*string, i int) *string {
	if i < len(r) {
		return r[i]
	}
	return nil
}

func round(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}
