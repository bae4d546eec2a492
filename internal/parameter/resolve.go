package parameter

import (
	"fmt"

	"profiler/internal/domain"
)

// Resolver carries the state "$..." names are resolved against: the domain
// being profiled, the rule variables, and the parameter containers keyed by
// domain ID.
type Resolver struct {
	Domain     domain.Domain
	Variables  *Container
	Parameters map[string]*Container
}

// Lookup resolves one fully-qualified name.
func (r Resolver) Lookup(fqName string) (any, error) {
	n, err := parseName(fqName)
	if err != nil {
		return nil, err
	}
	switch n.root {
	case RootVariables:
		return r.Variables.lookup(n)
	case RootParameter:
		return r.Parameters[r.Domain.ID()].lookup(n)
	default:
		return descend(domainView(r.Domain), n.path, n)
	}
}

func domainView(d domain.Domain) map[string]any {
	return map[string]any{
		"domain_type":   string(d.Type()),
		"domain_kwargs": d.Kwargs(),
		"id":            d.ID(),
	}
}

// ValueByName is the read accessor for fully-qualified names.
//
// A name ending at a parameter record returns the whole Value; deeper names
// return the addressed sub-value. Variables resolve to their plain values.
func ValueByName(fqName string, d domain.Domain, variables *Container, parameters map[string]*Container) (any, error) {
	return Resolver{Domain: d, Variables: variables, Parameters: parameters}.Lookup(fqName)
}

// Resolve returns ref unchanged when it is a literal and looks it up when it
// is a "$..." string. Maps and slices are resolved element-wise so nested
// configuration (value kwargs, expectation kwargs) can mix literals and
// references.
func Resolve(ref any, r Resolver) (any, error) {
	switch t := ref.(type) {
	case string:
		if !IsReference(t) {
			return t, nil
		}
		v, err := r.Lookup(t)
		if err != nil {
			return nil, fmt.Errorf("resolve %s: %w", t, err)
		}
		return v, nil
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, v := range t {
			rv, err := Resolve(v, r)
			if err != nil {
				return nil, err
			}
			out[k] = rv
		}
		return out, nil
	case []any:
		out := make([]any, len(t))
		for i, v := range t {
			rv, err := Resolve(v, r)
			if err != nil {
				return nil, err
			}
			out[i] = rv
		}
		return out, nil
	default:
		return ref, nil
	}
}
