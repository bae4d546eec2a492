package memory

import (
	"errors"
	"fmt"
	"math"
	"reflect"
	"regexp"
	"sort"
	"strings"

	"github.com/ncruces/go-strftime"

	"profiler/internal/datasource"
	"profiler/internal/execution"
	"profiler/internal/parameter"
)

var errNoNumericValues = errors.New("no numeric values")

func builtinMetrics() map[string]MetricFunc {
	return map[string]MetricFunc{
		"table.row_count": func(b *datasource.Batch, _ execution.Configuration) (any, error) {
			return int64(len(b.Rows)), nil
		},
		"table.columns": func(b *datasource.Batch, _ execution.Configuration) (any, error) {
			return append([]string(nil), b.Columns...), nil
		},
		"column.distinct_values":       columnMetric(distinctValues),
		"column.distinct_values.count": columnMetric(distinctCount),
		"column.unique_proportion":     columnMetric(uniqueProportion),
		"column_values.nonnull.count":  columnMetric(nonNullCount),
		"column_values.null.count":     columnMetric(nullCount),

		"column.min":                numericMetric(minOf),
		"column.max":                numericMetric(maxOf),
		"column.mean":               numericMetric(meanOf),
		"column.median":             numericMetric(medianOf),
		"column.standard_deviation": numericMetric(stddevOf),

		"column_values.match_strftime_format.unexpected_count": matchStrftime,
		"column_values.match_regex.unexpected_count":           matchRegex,
	}
}

// columnMetric adapts a reducer over the column named by the "column"
// domain kwarg.
func columnMetric(fn func(values []any) any) MetricFunc {
	return func(b *datasource.Batch, cfg execution.Configuration) (any, error) {
		vals, err := columnValues(b, cfg)
		if err != nil {
			return nil, err
		}
		return fn(vals), nil
	}
}

func columnValues(b *datasource.Batch, cfg execution.Configuration) ([]any, error) {
	col, ok := cfg.DomainKwargs["column"].(string)
	if !ok || col == "" {
		return nil, fmt.Errorf("%s requires a \"column\" domain kwarg", cfg.MetricName)
	}
	return b.ColumnValues(col)
}

func isNull(v any) bool {
	if v == nil {
		return true
	}
	f, ok := v.(float64)
	return ok && math.IsNaN(f)
}

func nonNull(values []any) []any {
	out := make([]any, 0, len(values))
	for _, v := range values {
		if !isNull(v) {
			out = append(out, v)
		}
	}
	return out
}

// distinctValues returns the distinct non-null values in first-seen order.
func distinctValues(values []any) any {
	seen := make(map[any]struct{})
	out := make([]any, 0)
	for _, v := range nonNull(values) {
		k := hashKey(v)
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, v)
	}
	return out
}

// hashKey makes unhashable values (nested JSON arrays) usable as map keys.
func hashKey(v any) any {
	switch reflect.ValueOf(v).Kind() {
	case reflect.Slice, reflect.Map, reflect.Func:
		return fmt.Sprintf("%T:%v", v, v)
	}
	return v
}

func distinctCount(values []any) any {
	return int64(len(distinctValues(values).([]any)))
}

// uniqueProportion is distinct / non-null; 0 for an all-null column.
func uniqueProportion(values []any) any {
	nn := len(nonNull(values))
	if nn == 0 {
		return 0.0
	}
	return float64(len(distinctValues(values).([]any))) / float64(nn)
}

func nonNullCount(values []any) any { return int64(len(nonNull(values))) }

func nullCount(values []any) any { return int64(len(values) - len(nonNull(values))) }

// numericMetric adapts a reducer over the non-null values of a numeric
// column. allInt reports whether every value was a Go integer.
func numericMetric(fn func(xs []float64, allInt bool) any) MetricFunc {
	return func(b *datasource.Batch, cfg execution.Configuration) (any, error) {
		vals, err := columnValues(b, cfg)
		if err != nil {
			return nil, err
		}
		xs := make([]float64, 0, len(vals))
		allInt := true
		for _, v := range nonNull(vals) {
			f, ok := parameter.ToFloat(v)
			if !ok {
				return nil, fmt.Errorf("%w: %v (%T)", parameter.ErrTypeMismatch, v, v)
			}
			if _, isFloat := v.(float64); isFloat {
				allInt = false
			}
			if _, isFloat := v.(float32); isFloat {
				allInt = false
			}
			xs = append(xs, f)
		}
		if len(xs) == 0 {
			return nil, errNoNumericValues
		}
		return fn(xs, allInt), nil
	}
}

func minOf(xs []float64, allInt bool) any {
	m := xs[0]
	for _, x := range xs[1:] {
		m = math.Min(m, x)
	}
	if allInt {
		return int64(m)
	}
	return m
}

func maxOf(xs []float64, allInt bool) any {
	m := xs[0]
	for _, x := range xs[1:] {
		m = math.Max(m, x)
	}
	if allInt {
		return int64(m)
	}
	return m
}

func meanOf(xs []float64, _ bool) any {
	var sum float64
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs))
}

func medianOf(xs []float64, _ bool) any {
	s := append([]float64(nil), xs...)
	sort.Float64s(s)
	n := len(s)
	if n%2 == 1 {
		return s[n/2]
	}
	return (s[n/2-1] + s[n/2]) / 2
}

// stddevOf is the sample standard deviation; 0 for a single value.
func stddevOf(xs []float64, _ bool) any {
	if len(xs) < 2 {
		return 0.0
	}
	mean := meanOf(xs, false).(float64)
	var ss float64
	for _, x := range xs {
		d := x - mean
		ss += d * d
	}
	return math.Sqrt(ss / float64(len(xs)-1))
}

// matchStrftime counts non-null values that do not parse with the
// strftime_format value kwarg. A format the parser cannot use is an error.
func matchStrftime(b *datasource.Batch, cfg execution.Configuration) (any, error) {
	format, ok := cfg.ValueKwargs["strftime_format"].(string)
	if !ok {
		return nil, fmt.Errorf("%s requires a strftime_format value kwarg", cfg.MetricName)
	}
	match, err := strftimeMatcher(format)
	if err != nil {
		return nil, err
	}
	vals, err := columnValues(b, cfg)
	if err != nil {
		return nil, err
	}
	var unexpected int64
	for _, v := range nonNull(vals) {
		if !match(stringify(v)) {
			unexpected++
		}
	}
	return unexpected, nil
}

// strftimeMatcher compiles format into a predicate. strftime only accepts
// %f after '.' or ','; a trailing %f after any other separator (as in
// "%H:%M:%S:%f") is matched by rewriting the last separator of the value.
func strftimeMatcher(format string) (func(string) bool, error) {
	orig := format
	var sep byte
	if n := len(format); n >= 4 && strings.HasSuffix(format, "%f") && format[n-4] != '%' {
		if c := format[n-3]; c != '.' && c != ',' {
			sep = c
			format = format[:n-3] + ".%f"
		}
	}
	if _, err := strftime.Layout(format); err != nil {
		return nil, fmt.Errorf("strftime_format %q: %w", orig, err)
	}
	return func(v string) bool {
		if sep != 0 {
			i := strings.LastIndexByte(v, sep)
			if i < 0 {
				return false
			}
			v = v[:i] + "." + v[i+1:]
		}
		_, err := strftime.Parse(format, v)
		return err == nil
	}, nil
}

// matchRegex counts non-null values in which the regex value kwarg finds no
// match.
func matchRegex(b *datasource.Batch, cfg execution.Configuration) (any, error) {
	expr, ok := cfg.ValueKwargs["regex"].(string)
	if !ok {
		return nil, fmt.Errorf("%s requires a regex value kwarg", cfg.MetricName)
	}
	re, err := regexp.Compile(expr)
	if err != nil {
		return nil, fmt.Errorf("compile regex %q: %w", expr, err)
	}
	vals, err := columnValues(b, cfg)
	if err != nil {
		return nil, err
	}
	var unexpected int64
	for _, v := range nonNull(vals) {
		if !re.MatchString(stringify(v)) {
			unexpected++
		}
	}
	return unexpected, nil
}

func stringify(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}
