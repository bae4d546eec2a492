package domainbuilder

import (
	"context"
	"fmt"
	"strings"

	"profiler/internal/builder"
	"profiler/internal/domain"
	"profiler/internal/parameter"
)

// CardinalityLimit bounds either the number of distinct values (absolute)
// or the share of distinct values among non-null values (relative).
type CardinalityLimit struct {
	Name     string
	Absolute bool
	Max      float64
}

func (l CardinalityLimit) metric() string {
	if l.Absolute {
		return "column.distinct_values.count"
	}
	return "column.unique_proportion"
}

// cardinalityModes in declaration order; names are matched case-insensitively.
var cardinalityModes = []CardinalityLimit{
	{Name: "ZERO", Absolute: true, Max: 0},
	{Name: "ONE", Absolute: true, Max: 1},
	{Name: "TWO", Absolute: true, Max: 2},
	{Name: "VERY_FEW", Absolute: true, Max: 10},
	{Name: "FEW", Absolute: true, Max: 100},
	{Name: "SOME", Absolute: true, Max: 1000},
	{Name: "MANY", Absolute: true, Max: 10000},
	{Name: "VERY_MANY", Absolute: true, Max: 100000},
	{Name: "UNIQUE", Max: 1.0},
	{Name: "REL_0", Max: 0},
	{Name: "REL_001", Max: 1e-5},
	{Name: "REL_01", Max: 1e-4},
	{Name: "REL_0_1", Max: 1e-3},
	{Name: "REL_1", Max: 1e-2},
	{Name: "REL_10", Max: 0.10},
	{Name: "REL_25", Max: 0.25},
	{Name: "REL_50", Max: 0.50},
	{Name: "REL_75", Max: 0.75},
	{Name: "REL_100", Max: 1.0},
	{Name: "ONE_PCT", Max: 0.01},
	{Name: "TEN_PCT", Max: 0.10},
}

// CardinalityModes returns the names of the supported limit modes.
func CardinalityModes() []string {
	out := make([]string, len(cardinalityModes))
	for i, m := range cardinalityModes {
		out[i] = m.Name
	}
	return out
}

// LookupCardinalityMode finds a limit mode by name, ignoring case.
func LookupCardinalityMode(name string) (CardinalityLimit, error) {
	for _, m := range cardinalityModes {
		if strings.EqualFold(m.Name, name) {
			return m, nil
		}
	}
	return CardinalityLimit{}, fmt.Errorf("%w: specify a supported cardinality mode; %q is not one of %s",
		ErrProfilerConfiguration, name, strings.Join(CardinalityModes(), ", "))
}

// CategoricalColumn yields the columns whose cardinality stays within a
// limit in every batch. Exactly one of LimitMode, MaxUniqueValues and
// MaxProportionUnique must be set.
type CategoricalColumn struct {
	Column `yaml:",inline"`

	LimitMode           parameter.Field[string]  `json:"limit_mode,omitempty" yaml:"limit_mode,omitempty"`
	MaxUniqueValues     parameter.Field[int]     `json:"max_unique_values,omitempty" yaml:"max_unique_values,omitempty"`
	MaxProportionUnique parameter.Field[float64] `json:"max_proportion_unique,omitempty" yaml:"max_proportion_unique,omitempty"`
}

// Type implements Builder.
func (*CategoricalColumn) Type() domain.Type { return domain.TypeColumn }

// Validate checks the limit settings that do not need resolving.
func (b *CategoricalColumn) Validate() error {
	n := 0
	for _, set := range []bool{b.LimitMode.IsSet(), b.MaxUniqueValues.IsSet(), b.MaxProportionUnique.IsSet()} {
		if set {
			n++
		}
	}
	if n != 1 {
		return fmt.Errorf("%w: Please pass ONE of the following parameters: limit_mode, max_unique_values, max_proportion_unique, you passed %d parameters",
			ErrProfilerConfiguration, n)
	}
	if b.LimitMode.IsSet() && !b.LimitMode.IsRef() {
		mode, _ := b.LimitMode.Resolve(parameter.Resolver{})
		if _, err := LookupCardinalityMode(mode); err != nil {
			return err
		}
	}
	return nil
}

func (b *CategoricalColumn) limit(r parameter.Resolver) (CardinalityLimit, error) {
	if err := b.Validate(); err != nil {
		return CardinalityLimit{}, err
	}
	switch {
	case b.LimitMode.IsSet():
		mode, err := b.LimitMode.Resolve(r)
		if err != nil {
			return CardinalityLimit{}, fmt.Errorf("limit_mode: %w", err)
		}
		return LookupCardinalityMode(mode)
	case b.MaxUniqueValues.IsSet():
		n, err := b.MaxUniqueValues.Resolve(r)
		if err != nil {
			return CardinalityLimit{}, fmt.Errorf("max_unique_values: %w", err)
		}
		if n < 0 {
			return CardinalityLimit{}, fmt.Errorf("%w: max_unique_values %d must not be negative", ErrProfilerConfiguration, n)
		}
		return CardinalityLimit{Name: "max_unique_values", Absolute: true, Max: float64(n)}, nil
	default:
		p, err := b.MaxProportionUnique.Resolve(r)
		if err != nil {
			return CardinalityLimit{}, fmt.Errorf("max_proportion_unique: %w", err)
		}
		if p < 0 || p > 1 {
			return CardinalityLimit{}, fmt.Errorf("%w: max_proportion_unique %v must be in [0, 1]", ErrProfilerConfiguration, p)
		}
		return CardinalityLimit{Name: "max_proportion_unique", Max: p}, nil
	}
}

// GetDomains implements Builder.
func (b *CategoricalColumn) GetDomains(ctx context.Context, variables *parameter.Container, deps builder.Deps) ([]domain.Domain, error) {
	inv, err := b.invocation(ctx, variables, deps)
	if err != nil {
		return nil, err
	}
	lim, err := b.limit(inv.Resolver)
	if err != nil {
		return nil, err
	}
	names, err := b.columnNames(ctx, inv, deps)
	if err != nil {
		return nil, err
	}

	var out []domain.Domain
	for _, name := range names {
		res, err := inv.GetMetrics(ctx, lim.metric(), map[string]any{"column": name}, nil)
		if err != nil {
			return nil, err
		}
		vals, err := res.Values()
		if err != nil {
			return nil, err
		}
		obs, err := vals.Floats()
		if err != nil {
			return nil, fmt.Errorf("column %s: %w", name, err)
		}
		ok := true
		for _, x := range obs {
			if x > lim.Max {
				ok = false
				break
			}
		}
		if ok {
			out = append(out, domain.Column(name))
		}
	}
	return out, nil
}
