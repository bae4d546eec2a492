// Package domain identifies the subject a parameter is computed for: a whole
// table, one column, a column pair, or a set of columns.
//
// A Domain is immutable once constructed. Its ID is a stable fingerprint over
// the domain type and kwargs and is used as the key selecting the per-domain
// parameter container.
package domain

import (
	"fmt"
	"strings"
)

// Type is the kind of subject a Domain describes.
type Type string

const (
	TypeTable       Type = "table"
	TypeColumn      Type = "column"
	TypeColumnPair  Type = "column_pair"
	TypeMulticolumn Type = "multicolumn"
)

// ParseType converts a user-supplied domain type label into a Type.
// Matching is case-insensitive.
func ParseType(s string) (Type, error) {
	switch Type(strings.ToLower(strings.TrimSpace(s))) {
	case TypeTable:
		return TypeTable, nil
	case TypeColumn:
		return TypeColumn, nil
	case TypeColumnPair:
		return TypeColumnPair, nil
	case TypeMulticolumn:
		return TypeMulticolumn, nil
	default:
		return "", fmt.Errorf("domain: unknown domain type %q", s)
	}
}

// Domain is the subject of profiling plus its subject-specific identifiers
// (e.g. {"column": "passenger_count"}).
type Domain struct {
	typ    Type
	kwargs map[string]any
	id     string
}

// New constructs a Domain. kwargs is copied; later changes by the caller do
// not affect the Domain.
func New(typ Type, kwargs map[string]any) Domain {
	cp := copyKwargs(kwargs)
	return Domain{
		typ:    typ,
		kwargs: cp,
		id:     Hash(string(typ), cp),
	}
}

// Table returns the table-level domain.
func Table() Domain { return New(TypeTable, nil) }

// Column returns the domain for a single named column.
func Column(name string) Domain {
	return New(TypeColumn, map[string]any{"column": name})
}

// Type returns the domain type.
func (d Domain) Type() Type { return d.typ }

// ID returns the stable identity key of the domain.
func (d Domain) ID() string { return d.id }

// Kwargs returns a copy of the domain kwargs. The result is never nil.
func (d Domain) Kwargs() map[string]any { return copyKwargs(d.kwargs) }

// Kwarg returns one domain kwarg.
func (d Domain) Kwarg(key string) (any, bool) {
	v, ok := d.kwargs[key]
	return v, ok
}

// Equal reports whether d and o describe the same subject.
func (d Domain) Equal(o Domain) bool { return d.id == o.id }

func (d Domain) String() string {
	if len(d.kwargs) == 0 {
		return string(d.typ)
	}
	return fmt.Sprintf("%s%v", d.typ, d.kwargs)
}

func copyKwargs(in map[string]any) map[string]any {
	out := make(map[string]any, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
