package parameter

import (
	"bytes"
	"encoding/json"
	"fmt"

	"gopkg.in/yaml.v3"
)

// Field is a configuration value that is either a literal T or a "$..."
// reference resolved at build time.
//
// The zero Field is unset; Resolve on an unset field returns the zero T and
// ResolveOr returns the supplied default.
type Field[T any] struct {
	lit T
	ref string
	set bool
}

// Lit returns a literal field.
func Lit[T any](v T) Field[T] { return Field[T]{lit: v, set: true} }

// Ref returns a reference field. ref must start with "$".
func Ref[T any](ref string) Field[T] { return Field[T]{ref: ref, set: true} }

// IsSet reports whether the field was configured.
func (f Field[T]) IsSet() bool { return f.set }

// IsRef reports whether the field holds a reference.
func (f Field[T]) IsRef() bool { return f.ref != "" }

// Reference returns the reference string, or "" for literals.
func (f Field[T]) Reference() string { return f.ref }

// Resolve returns the literal, or looks up and converts the reference.
func (f Field[T]) Resolve(r Resolver) (T, error) {
	if f.ref == "" {
		return f.lit, nil
	}
	v, err := r.Lookup(f.ref)
	if err != nil {
		var zero T
		return zero, fmt.Errorf("resolve %s: %w", f.ref, err)
	}
	out, err := As[T](v)
	if err != nil {
		return out, fmt.Errorf("resolve %s: %w", f.ref, err)
	}
	return out, nil
}

// ResolveOr is Resolve with a default for unset fields.
func (f Field[T]) ResolveOr(r Resolver, def T) (T, error) {
	if !f.set {
		return def, nil
	}
	return f.Resolve(r)
}

// Raw returns the configured literal or reference string, for echoing back
// configuration (e.g. in details).
func (f Field[T]) Raw() any {
	if f.ref != "" {
		return f.ref
	}
	if !f.set {
		return nil
	}
	return f.lit
}

func (f Field[T]) MarshalJSON() ([]byte, error) {
	return json.Marshal(f.Raw())
}

func (f *Field[T]) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if bytes.Equal(trimmed, []byte("null")) {
		*f = Field[T]{}
		return nil
	}
	if len(trimmed) > 0 && trimmed[0] == '"' {
		var s string
		if err := json.Unmarshal(trimmed, &s); err != nil {
			return err
		}
		if IsReference(s) {
			*f = Ref[T](s)
			return nil
		}
	}
	var v T
	if err := json.Unmarshal(trimmed, &v); err != nil {
		return err
	}
	*f = Lit(v)
	return nil
}

func (f Field[T]) MarshalYAML() (any, error) {
	return f.Raw(), nil
}

func (f *Field[T]) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind == yaml.ScalarNode && node.Tag == "!!null" {
		*f = Field[T]{}
		return nil
	}
	if node.Kind == yaml.ScalarNode && node.Tag == "!!str" && IsReference(node.Value) {
		*f = Ref[T](node.Value)
		return nil
	}
	var v T
	if err := node.Decode(&v); err != nil {
		return err
	}
	*f = Lit(v)
	return nil
}
