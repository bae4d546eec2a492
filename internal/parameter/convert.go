package parameter

import (
	"fmt"
	"math"
	"reflect"
)

// As converts a resolved value to T.
//
// Accepted conversions beyond a direct type match:
//   - numeric widening between Go number types (float to int only when the
//     value is integral),
//   - any slice to []any, []string (string elements only) or []float64,
//   - Value and string-keyed maps to map[string]any.
//
// Everything else is ErrTypeMismatch.
func As[T any](v any) (T, error) {
	var zero T
	if t, ok := v.(T); ok {
		return t, nil
	}
	if v == nil {
		if reflect.TypeFor[T]().Kind() == reflect.Interface {
			return zero, nil
		}
		return zero, fmt.Errorf("%w: got nil, want %T", ErrTypeMismatch, zero)
	}

	var out any
	var ok bool
	switch any(zero).(type) {
	case float64:
		out, ok = ToFloat(v)
	case int:
		var i int64
		i, ok = toInt(v)
		out = int(i)
	case int64:
		out, ok = toInt(v)
	case []any:
		out, ok = toAnySlice(v)
	case []string:
		out, ok = toStringSlice(v)
	case []float64:
		out, ok = toFloatSlice(v)
	case map[string]any:
		out, ok = toMap(v)
	}
	if !ok {
		return zero, fmt.Errorf("%w: got %T, want %T", ErrTypeMismatch, v, zero)
	}
	return out.(T), nil
}

// ToFloat converts any Go number to float64.
func ToFloat(v any) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, true
	case float32:
		return float64(t), true
	case int:
		return float64(t), true
	case int8:
		return float64(t), true
	case int16:
		return float64(t), true
	case int32:
		return float64(t), true
	case int64:
		return float64(t), true
	case uint:
		return float64(t), true
	case uint8:
		return float64(t), true
	case uint16:
		return float64(t), true
	case uint32:
		return float64(t), true
	case uint64:
		return float64(t), true
	}
	return 0, false
}

func toInt(v any) (int64, bool) {
	switch t := v.(type) {
	case int:
		return int64(t), true
	case int32:
		return int64(t), true
	case int64:
		return t, true
	case uint32:
		return int64(t), true
	}
	f, ok := ToFloat(v)
	if !ok || f != math.Trunc(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return int64(f), true
}

func toAnySlice(v any) ([]any, bool) {
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return nil, false
	}
	out := make([]any, rv.Len())
	for i := range out {
		out[i] = rv.Index(i).Interface()
	}
	return out, true
}

func toStringSlice(v any) ([]string, bool) {
	items, ok := toAnySlice(v)
	if !ok {
		return nil, false
	}
	out := make([]string, len(items))
	for i, it := range items {
		s, ok := it.(string)
		if !ok {
			return nil, false
		}
		out[i] = s
	}
	return out, true
}

func toFloatSlice(v any) ([]float64, bool) {
	items, ok := toAnySlice(v)
	if !ok {
		return nil, false
	}
	out := make([]float64, len(items))
	for i, it := range items {
		f, ok := ToFloat(it)
		if !ok {
			return nil, false
		}
		out[i] = f
	}
	return out, true
}

func toMap(v any) (map[string]any, bool) {
	switch t := v.(type) {
	case Value:
		return t.asMap(), true
	case *Value:
		return t.asMap(), true
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Map || rv.Type().Key().Kind() != reflect.String {
		return nil, false
	}
	out := make(map[string]any, rv.Len())
	it := rv.MapRange()
	for it.Next() {
		out[it.Key().String()] = it.Value().Interface()
	}
	return out, true
}
