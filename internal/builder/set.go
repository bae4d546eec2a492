package builder

import (
	"encoding/json"
	"fmt"
	"reflect"
	"sort"

	"profiler/internal/parameter"
)

// Set is an unordered collection of distinct values of any type. Numbers of
// different Go types stay distinct (int64(1) and float64(1) are two
// elements). The zero Set is empty and ready to use.
type Set struct {
	items map[any]any // key -> original value
}

// NewSet returns a set holding values.
func NewSet(values ...any) Set {
	var s Set
	s.Add(values...)
	return s
}

func setKey(v any) any {
	if v == nil {
		return nil
	}
	switch reflect.ValueOf(v).Kind() {
	case reflect.Slice, reflect.Map, reflect.Func:
		return fmt.Sprintf("%T:%v", v, v)
	}
	return v
}

// Add inserts values.
func (s *Set) Add(values ...any) {
	if s.items == nil {
		s.items = make(map[any]any, len(values))
	}
	for _, v := range values {
		s.items[setKey(v)] = v
	}
}

// Contains reports membership.
func (s Set) Contains(v any) bool {
	_, ok := s.items[setKey(v)]
	return ok
}

// Len returns the number of elements.
func (s Set) Len() int { return len(s.items) }

// Equal reports whether both sets hold the same elements.
func (s Set) Equal(o Set) bool {
	if s.Len() != o.Len() {
		return false
	}
	for k := range s.items {
		if _, ok := o.items[k]; !ok {
			return false
		}
	}
	return true
}

// Values returns the elements in a deterministic order: nil, booleans,
// numbers (by value), strings, then everything else by its printed form.
func (s Set) Values() []any {
	out := make([]any, 0, len(s.items))
	for _, v := range s.items {
		out = append(out, v)
	}
	sort.SliceStable(out, func(i, j int) bool { return lessValue(out[i], out[j]) })
	return out
}

// MarshalJSON encodes the set as a sorted array.
func (s Set) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.Values())
}

// UnmarshalJSON decodes an array into a set.
func (s *Set) UnmarshalJSON(data []byte) error {
	var vals []any
	if err := json.Unmarshal(data, &vals); err != nil {
		return err
	}
	*s = NewSet(vals...)
	return nil
}

// MarshalYAML encodes the set as a sorted sequence.
func (s Set) MarshalYAML() (any, error) { return s.Values(), nil }

func (s Set) String() string { return fmt.Sprint(s.Values()) }

func rank(v any) int {
	if v == nil {
		return 0
	}
	if _, ok := v.(bool); ok {
		return 1
	}
	if _, ok := parameter.ToFloat(v); ok {
		return 2
	}
	if _, ok := v.(string); ok {
		return 3
	}
	return 4
}

func lessValue(a, b any) bool {
	ra, rb := rank(a), rank(b)
	if ra != rb {
		return ra < rb
	}
	switch ra {
	case 1:
		return !a.(bool) && b.(bool)
	case 2:
		fa, _ := parameter.ToFloat(a)
		fb, _ := parameter.ToFloat(b)
		if fa != fb {
			return fa < fb
		}
		return fmt.Sprintf("%T", a) < fmt.Sprintf("%T", b)
	case 3:
		return a.(string) < b.(string)
	case 4:
		return fmt.Sprintf("%T:%v", a, a) < fmt.Sprintf("%T:%v", b, b)
	}
	return false
}

// UniqueValues unions any number of collections into one Set. The result
// does not depend on argument order, and applying it to its own output is a
// no-op.
func UniqueValues(collections ...[]any) Set {
	var s Set
	for _, c := range collections {
		s.Add(c...)
	}
	if s.items == nil {
		s.items = map[any]any{}
	}
	return s
}

// Union merges sets.
func Union(sets ...Set) Set {
	out := UniqueValues()
	for _, s := range sets {
		for k, v := range s.items {
			out.items[k] = v
		}
	}
	return out
}
