// Package domainbuilder decides what a rule profiles: the whole table, a set
// of columns, or the columns whose cardinality stays under a limit in every
// batch.
package domainbuilder

import (
	"context"
	"errors"
	"fmt"

	"profiler/internal/builder"
	"profiler/internal/domain"
	"profiler/internal/parameter"
)

// ErrProfilerConfiguration is returned for domain builder settings that
// cannot be satisfied.
var ErrProfilerConfiguration = errors.New("profiler configuration error")

// Builder yields the domains of one rule.
type Builder interface {
	Type() domain.Type
	GetDomains(ctx context.Context, variables *parameter.Container, deps builder.Deps) ([]domain.Domain, error)
}

// Table yields the single table domain.
type Table struct{}

// Type implements Builder.
func (Table) Type() domain.Type { return domain.TypeTable }

// GetDomains implements Builder.
func (Table) GetDomains(context.Context, *parameter.Container, builder.Deps) ([]domain.Domain, error) {
	return []domain.Domain{domain.Table()}, nil
}

// Column yields one column domain per table column, in table order.
type Column struct {
	BatchRequest parameter.Field[map[string]any] `json:"batch_request,omitempty" yaml:"batch_request,omitempty"`

	// IncludeColumnNames restricts the columns; every name must exist.
	IncludeColumnNames parameter.Field[[]string] `json:"include_column_names,omitempty" yaml:"include_column_names,omitempty"`
	ExcludeColumnNames parameter.Field[[]string] `json:"exclude_column_names,omitempty" yaml:"exclude_column_names,omitempty"`
}

// Type implements Builder.
func (*Column) Type() domain.Type { return domain.TypeColumn }

// GetDomains implements Builder.
func (b *Column) GetDomains(ctx context.Context, variables *parameter.Container, deps builder.Deps) ([]domain.Domain, error) {
	inv, err := b.invocation(ctx, variables, deps)
	if err != nil {
		return nil, err
	}
	names, err := b.columnNames(ctx, inv, deps)
	if err != nil {
		return nil, err
	}
	out := make([]domain.Domain, len(names))
	for i, n := range names {
		out[i] = domain.Column(n)
	}
	return out, nil
}

func (b *Column) invocation(ctx context.Context, variables *parameter.Container, deps builder.Deps) (*builder.Invocation, error) {
	r := parameter.Resolver{Domain: domain.Table(), Variables: variables}
	batches, err := builder.ResolveBatches(ctx, nil, b.BatchRequest, r, deps)
	if err != nil {
		return nil, fmt.Errorf("column domains: %w", err)
	}
	if len(batches) == 0 {
		return nil, fmt.Errorf("column domains: %w", builder.ErrNoBatches)
	}
	return builder.NewInvocation(r, batches, deps.Engine), nil
}

// columnNames lists the candidate columns from table.columns of the first
// batch, filtered by the include and exclude lists.
func (b *Column) columnNames(ctx context.Context, inv *builder.Invocation, deps builder.Deps) ([]string, error) {
	first := builder.NewInvocation(inv.Resolver, inv.Batches[:1], deps.Engine)
	res, err := first.GetMetrics(ctx, "table.columns", map[string]any{}, nil)
	if err != nil {
		return nil, err
	}
	vals, err := res.Values()
	if err != nil {
		return nil, err
	}
	all := make([]string, 0, len(vals[0]))
	for _, v := range vals[0] {
		s, ok := v.(string)
		if !ok {
			return nil, fmt.Errorf("%w: table.columns returned %T", parameter.ErrTypeMismatch, v)
		}
		all = append(all, s)
	}

	include, err := b.IncludeColumnNames.ResolveOr(inv.Resolver, nil)
	if err != nil {
		return nil, fmt.Errorf("include_column_names: %w", err)
	}
	exclude, err := b.ExcludeColumnNames.ResolveOr(inv.Resolver, nil)
	if err != nil {
		return nil, fmt.Errorf("exclude_column_names: %w", err)
	}

	known := make(map[string]bool, len(all))
	for _, c := range all {
		known[c] = true
	}
	var keep map[string]bool
	if b.IncludeColumnNames.IsSet() {
		keep = make(map[string]bool, len(include))
		for _, c := range include {
			if !known[c] {
				return nil, fmt.Errorf("%w: included column %q is not in the table", ErrProfilerConfiguration, c)
			}
			keep[c] = true
		}
	}
	drop := make(map[string]bool, len(exclude))
	for _, c := range exclude {
		drop[c] = true
	}

	out := make([]string, 0, len(all))
	for _, c := range all {
		if keep != nil && !keep[c] {
			continue
		}
		if drop[c] {
			continue
		}
		out = append(out, c)
	}
	return out, nil
}
