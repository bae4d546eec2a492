package datasource

import (
	"strconv"
	"strings"
	"time"
)

// Column type labels produced by InferTypes.
const (
	TypeInteger   = "integer"
	TypeFloat     = "float"
	TypeBoolean   = "boolean"
	TypeDate      = "date"
	TypeTimestamp = "timestamp"
	TypeText      = "text"
)

// InferTypes infers a coarse type per column from string cells. Empty cells
// are ignored; a column without any value is text.
func InferTypes(columns []string, rows [][]string) []string {
	out := make([]string, len(columns))
	for col := range columns {
		out[col] = inferColumn(rows, col)
	}
	return out
}

func inferColumn(rows [][]string, col int) string {
	var seen bool
	allInt := true
	allFloat := true
	allBool := true
	allDate := true
	allTS := true

	for _, r := range rows {
		if col >= len(r) {
			continue
		}
		v := strings.TrimSpace(r[col])
		if v == "" {
			continue
		}
		seen = true

		if allInt {
			if _, err := strconv.ParseInt(v, 10, 64); err != nil {
				allInt = false
			}
		}
		if allFloat {
			if _, err := strconv.ParseFloat(v, 64); err != nil {
				allFloat = false
			}
		}
		if allBool {
			if _, ok := parseBoolLoose(v); !ok {
				allBool = false
			}
		}
		if allDate {
			if !parsesWithAny(dateLayouts, v) {
				allDate = false
			}
		}
		if allTS {
			if !parsesWithAny(tsLayouts, v) {
				allTS = false
			}
		}
	}

	if !seen {
		return TypeText
	}
	switch {
	case allInt:
		return TypeInteger
	case allBool:
		return TypeBoolean
	case allDate:
		return TypeDate
	case allTS:
		return TypeTimestamp
	case allFloat:
		return TypeFloat
	default:
		return TypeText
	}
}

// Coerce converts string cells into typed values following the inferred
// column types: int64, float64, bool, or string. Empty cells become nil.
// Dates and timestamps stay strings so format metrics see the raw text.
func Coerce(types []string, rows [][]string) [][]any {
	out := make([][]any, len(rows))
	for i, r := range rows {
		row := make([]any, len(types))
		for col := range types {
			if col >= len(r) {
				continue
			}
			row[col] = coerceCell(types[col], strings.TrimSpace(r[col]))
		}
		out[i] = row
	}
	return out
}

func coerceCell(typ, v string) any {
	if v == "" {
		return nil
	}
	switch typ {
	case TypeInteger:
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			return n
		}
	case TypeFloat:
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	case TypeBoolean:
		if b, ok := parseBoolLoose(v); ok {
			return b
		}
	}
	return v
}

func parseBoolLoose(s string) (bool, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "true", "t":
		return true, true
	case "false", "f":
		return false, true
	default:
		return false, false
	}
}

var dateLayouts = []string{
	"2006-01-02",
	"02.01.2006",
	"02/01/2006",
	"01/02/2006",
}

var tsLayouts = []string{
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02T15:04:05Z07:00",
	"2006-01-02T15:04:05.000Z07:00",
	"02.01.2006 15:04:05",
}

func parsesWithAny(layouts []string, s string) bool {
	for _, lay := range layouts {
		if _, err := time.Parse(lay, s); err == nil {
			return true
		}
	}
	return false
}
