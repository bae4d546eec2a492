package parameter

import (
	"fmt"
	"reflect"
)

// descend walks the remaining path segments into a plain Go value.
func descend(v any, path []segment, full name) (any, error) {
	for _, s := range path {
		next, err := mapKey(v, s.key)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", full, err)
		}
		if len(s.index) > 0 {
			next, err = indexValue(next, s.index)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", full, err)
			}
		}
		v = next
	}
	return v, nil
}

func mapKey(v any, key string) (any, error) {
	switch t := v.(type) {
	case map[string]any:
		got, ok := t[key]
		if !ok {
			return nil, fmt.Errorf("%w: no key %q", ErrParameterNotFound, key)
		}
		return got, nil
	case Value:
		return mapKey(t.asMap(), key)
	case *Value:
		return mapKey(t.asMap(), key)
	}

	rv := reflect.ValueOf(v)
	if rv.Kind() == reflect.Map && rv.Type().Key().Kind() == reflect.String {
		got := rv.MapIndex(reflect.ValueOf(key).Convert(rv.Type().Key()))
		if !got.IsValid() {
			return nil, fmt.Errorf("%w: no key %q", ErrParameterNotFound, key)
		}
		return got.Interface(), nil
	}
	return nil, fmt.Errorf("%w: cannot look up %q in %T", ErrParameterNotFound, key, v)
}

func indexValue(v any, idx []int) (any, error) {
	for _, i := range idx {
		rv := reflect.ValueOf(v)
		switch rv.Kind() {
		case reflect.Slice, reflect.Array:
			if i >= rv.Len() {
				return nil, fmt.Errorf("%w: index %d out of range (len %d)", ErrParameterNotFound, i, rv.Len())
			}
			v = rv.Index(i).Interface()
		default:
			return nil, fmt.Errorf("%w: cannot index %T", ErrTypeMismatch, v)
		}
	}
	return v, nil
}
