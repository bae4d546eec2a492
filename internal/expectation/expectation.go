// Package expectation turns a rule's populated parameters into expectation
// configurations.
package expectation

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"gopkg.in/yaml.v3"

	"profiler/internal/parameter"
)

// ErrMissingType is returned for a builder without an expectation type.
var ErrMissingType = errors.New("expectation_type is required")

// Configuration is one resolved expectation.
type Configuration struct {
	ExpectationType string         `json:"expectation_type" yaml:"expectation_type"`
	Kwargs          map[string]any `json:"kwargs" yaml:"kwargs"`
	Meta            map[string]any `json:"meta,omitempty" yaml:"meta,omitempty"`
}

// Builder produces one expectation configuration for a domain.
type Builder interface {
	Build(r parameter.Resolver) (Configuration, error)
}

// reserved keys are not expectation kwargs.
var reserved = map[string]bool{"expectation_type": true, "meta": true, "class_name": true, "module_name": true}

// Default resolves each kwarg (literal or "$..." reference, also inside
// lists and mappings) against the rule state.
//
// In configuration files every key besides expectation_type, meta and
// class_name is a kwarg:
//
//	expectation_type: expect_column_values_to_be_between
//	column: $domain.domain_kwargs.column
//	min_value: $parameter.min_range.value.value_range[0]
type Default struct {
	ExpectationType string
	Kwargs          map[string]parameter.Field[any]
	Meta            map[string]any
}

// Build implements Builder. The domain's column (or columns) is added to
// the kwargs unless configured explicitly.
func (b *Default) Build(r parameter.Resolver) (Configuration, error) {
	if b.ExpectationType == "" {
		return Configuration{}, ErrMissingType
	}
	out := Configuration{ExpectationType: b.ExpectationType, Kwargs: make(map[string]any, len(b.Kwargs)+1)}

	keys := make([]string, 0, len(b.Kwargs))
	for k := range b.Kwargs {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		v, err := b.Kwargs[k].Resolve(r)
		if err != nil {
			return Configuration{}, fmt.Errorf("%s: kwarg %s: %w", b.ExpectationType, k, err)
		}
		if v, err = parameter.Resolve(v, r); err != nil {
			return Configuration{}, fmt.Errorf("%s: kwarg %s: %w", b.ExpectationType, k, err)
		}
		out.Kwargs[k] = v
	}

	for _, k := range []string{"column", "column_A", "column_B", "column_list"} {
		if _, set := out.Kwargs[k]; set {
			continue
		}
		if v, ok := r.Domain.Kwarg(k); ok {
			out.Kwargs[k] = v
		}
	}

	if len(b.Meta) > 0 {
		meta, err := parameter.Resolve(b.Meta, r)
		if err != nil {
			return Configuration{}, fmt.Errorf("%s: meta: %w", b.ExpectationType, err)
		}
		out.Meta = meta.(map[string]any)
	}
	return out, nil
}

func (b *Default) fromMap(m map[string]any) error {
	t, _ := m["expectation_type"].(string)
	if t == "" {
		return ErrMissingType
	}
	b.ExpectationType = t
	if meta, ok := m["meta"]; ok && meta != nil {
		mm, err := parameter.As[map[string]any](meta)
		if err != nil {
			return fmt.Errorf("%s: meta: %w", t, err)
		}
		b.Meta = mm
	}
	b.Kwargs = make(map[string]parameter.Field[any], len(m))
	for k, v := range m {
		if reserved[k] {
			continue
		}
		if s, ok := v.(string); ok && parameter.IsReference(s) {
			b.Kwargs[k] = parameter.Ref[any](s)
			continue
		}
		b.Kwargs[k] = parameter.Lit(v)
	}
	return nil
}

func (b Default) toMap() map[string]any {
	m := make(map[string]any, len(b.Kwargs)+2)
	for k, f := range b.Kwargs {
		m[k] = f.Raw()
	}
	m["expectation_type"] = b.ExpectationType
	if len(b.Meta) > 0 {
		m["meta"] = b.Meta
	}
	return m
}

// UnmarshalJSON decodes the flat configuration form.
func (b *Default) UnmarshalJSON(data []byte) error {
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return err
	}
	return b.fromMap(m)
}

// MarshalJSON encodes the flat configuration form.
func (b Default) MarshalJSON() ([]byte, error) { return json.Marshal(b.toMap()) }

// UnmarshalYAML decodes the flat configuration form.
func (b *Default) UnmarshalYAML(node *yaml.Node) error {
	var m map[string]any
	if err := node.Decode(&m); err != nil {
		return err
	}
	return b.fromMap(m)
}

// MarshalYAML encodes the flat configuration form.
func (b Default) MarshalYAML() (any, error) { return b.toMap(), nil }
