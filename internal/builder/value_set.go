package builder

import (
	"context"

	"profiler/internal/parameter"
)

const metricDistinctValues = "column.distinct_values"

// ValueSet collects the distinct values a column takes across all batches.
//
// Value: Set (JSON: sorted array).
type ValueSet struct {
	Common `yaml:",inline"`

	MetricDomainKwargs parameter.Field[any] `json:"metric_domain_kwargs,omitempty" yaml:"metric_domain_kwargs,omitempty"`
	MetricValueKwargs  parameter.Field[any] `json:"metric_value_kwargs,omitempty" yaml:"metric_value_kwargs,omitempty"`
}

// Name implements ParameterBuilder.
func (b *ValueSet) Name() string { return b.Common.Name }

// Build implements ParameterBuilder.
func (b *ValueSet) Build(ctx context.Context, inv *Invocation) (any, map[string]any, error) {
	res, err := inv.GetMetrics(ctx, metricDistinctValues, b.MetricDomainKwargs.Raw(), b.MetricValueKwargs.Raw())
	if err != nil {
		return nil, nil, err
	}
	vals, err := res.Values()
	if err != nil {
		return nil, nil, err
	}
	return UniqueValues(vals...), nil, nil
}
