package builder

import (
	"context"
	"fmt"
	"math"

	"profiler/internal/parameter"
)

// MetricMultiBatch stores the raw per-batch observations of one metric.
//
// Value: []any with one element per batch for scalar metrics, or one row
// ([]any) per batch for collection metrics.
type MetricMultiBatch struct {
	Common `yaml:",inline"`

	MetricName         parameter.Field[string] `json:"metric_name" yaml:"metric_name"`
	MetricDomainKwargs parameter.Field[any]    `json:"metric_domain_kwargs,omitempty" yaml:"metric_domain_kwargs,omitempty"`
	MetricValueKwargs  parameter.Field[any]    `json:"metric_value_kwargs,omitempty" yaml:"metric_value_kwargs,omitempty"`

	// EnforceNumericMetric fails the build on non-numeric observations and
	// stores float64 values.
	EnforceNumericMetric parameter.Field[bool] `json:"enforce_numeric_metric,omitempty" yaml:"enforce_numeric_metric,omitempty"`
	// ReplaceNaNWithZero applies with EnforceNumericMetric.
	ReplaceNaNWithZero parameter.Field[bool] `json:"replace_nan_with_zero,omitempty" yaml:"replace_nan_with_zero,omitempty"`
}

// Name implements ParameterBuilder.
func (b *MetricMultiBatch) Name() string { return b.Common.Name }

// Validate checks the settings that need no resolving.
func (b *MetricMultiBatch) Validate() error {
	if !b.MetricName.IsSet() {
		return fmt.Errorf("%w: %s: metric_name is required", ErrInvalidConfig, b.Common.Name)
	}
	return nil
}

// Build implements ParameterBuilder.
func (b *MetricMultiBatch) Build(ctx context.Context, inv *Invocation) (any, map[string]any, error) {
	metric, err := b.MetricName.Resolve(inv.Resolver)
	if err != nil {
		return nil, nil, fmt.Errorf("metric_name: %w", err)
	}
	if metric == "" {
		return nil, nil, fmt.Errorf("%w: metric_name is required", ErrInvalidConfig)
	}
	numeric, err := b.EnforceNumericMetric.ResolveOr(inv.Resolver, false)
	if err != nil {
		return nil, nil, fmt.Errorf("enforce_numeric_metric: %w", err)
	}
	nanToZero, err := b.ReplaceNaNWithZero.ResolveOr(inv.Resolver, false)
	if err != nil {
		return nil, nil, fmt.Errorf("replace_nan_with_zero: %w", err)
	}

	res, err := inv.GetMetrics(ctx, metric, b.MetricDomainKwargs.Raw(), b.MetricValueKwargs.Raw())
	if err != nil {
		return nil, nil, err
	}
	vals, err := res.Values()
	if err != nil {
		return nil, nil, err
	}

	out := make([]any, len(vals))
	for i, row := range vals {
		if len(row) == 1 {
			out[i] = row[0]
		} else {
			out[i] = row
		}
	}
	if !numeric {
		return out, nil, nil
	}

	xs, err := vals.Floats()
	if err != nil {
		return nil, nil, fmt.Errorf("metric %s: %w", metric, err)
	}
	if len(xs) != len(vals) {
		return nil, nil, fmt.Errorf("%w: metric %s is not scalar", parameter.ErrTypeMismatch, metric)
	}
	nums := make([]float64, len(xs))
	for i, x := range xs {
		if math.IsNaN(x) && nanToZero {
			x = 0
		}
		nums[i] = x
	}
	return nums, nil, nil
}
