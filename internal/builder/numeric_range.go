package builder

import (
	"context"
	"fmt"
	"strings"

	"profiler/internal/parameter"
)

// Sampling methods for NumericMetricRange.
const (
	SamplingBootstrap  = "bootstrap"
	SamplingParametric = "parametric"
)

const (
	defaultFalsePositiveRate   = 0.05
	defaultNumBootstrapSamples = 9999
	defaultBootstrapSeed       = 20210311
)

// NumericMetricRange estimates a [low, high] range for a numeric metric
// observed once per batch, such that a new observation falls outside it with
// probability about FalsePositiveRate.
//
// Value: {"value_range": [low, high]}.
type NumericMetricRange struct {
	Common `yaml:",inline"`

	MetricName         parameter.Field[string] `json:"metric_name" yaml:"metric_name"`
	MetricDomainKwargs parameter.Field[any]    `json:"metric_domain_kwargs,omitempty" yaml:"metric_domain_kwargs,omitempty"`
	MetricValueKwargs  parameter.Field[any]    `json:"metric_value_kwargs,omitempty" yaml:"metric_value_kwargs,omitempty"`

	// SamplingMethod is "bootstrap" (default) or "parametric".
	SamplingMethod parameter.Field[string] `json:"sampling_method,omitempty" yaml:"sampling_method,omitempty"`
	// FalsePositiveRate must lie in (0, 1); default 0.05.
	FalsePositiveRate parameter.Field[float64] `json:"false_positive_rate,omitempty" yaml:"false_positive_rate,omitempty"`
	// NumBootstrapSamples defaults to 9999.
	NumBootstrapSamples parameter.Field[int] `json:"num_bootstrap_samples,omitempty" yaml:"num_bootstrap_samples,omitempty"`
	// BootstrapRandomSeed makes the bootstrap reproducible; a fixed default
	// is used when unset.
	BootstrapRandomSeed parameter.Field[int64] `json:"bootstrap_random_seed,omitempty" yaml:"bootstrap_random_seed,omitempty"`
	// RoundDecimals rounds both bounds. Integral metrics round to 0 decimals
	// when unset.
	RoundDecimals parameter.Field[int] `json:"round_decimals,omitempty" yaml:"round_decimals,omitempty"`
	// TruncateValues clamps the bounds: {"lower_bound": x, "upper_bound": y},
	// either key optional.
	TruncateValues parameter.Field[map[string]any] `json:"truncate_values,omitempty" yaml:"truncate_values,omitempty"`
}

// Name implements ParameterBuilder.
func (b *NumericMetricRange) Name() string { return b.Common.Name }

// Validate checks the settings that need no resolving.
func (b *NumericMetricRange) Validate() error {
	if !b.MetricName.IsSet() {
		return fmt.Errorf("%w: %s: metric_name is required", ErrInvalidConfig, b.Common.Name)
	}
	return nil
}

type rangeSettings struct {
	method     string
	fpr        float64
	numSamples int
	seed       int64
	round      int // -1: none requested
	lower      *float64
	upper      *float64
}

func (b *NumericMetricRange) settings(r parameter.Resolver) (rangeSettings, error) {
	var s rangeSettings
	var err error

	if s.method, err = b.SamplingMethod.ResolveOr(r, SamplingBootstrap); err != nil {
		return s, fmt.Errorf("sampling_method: %w", err)
	}
	s.method = strings.ToLower(s.method)
	if s.method != SamplingBootstrap && s.method != SamplingParametric {
		return s, fmt.Errorf("%w: sampling_method %q (want %s or %s)", ErrInvalidConfig, s.method, SamplingBootstrap, SamplingParametric)
	}

	if s.fpr, err = b.FalsePositiveRate.ResolveOr(r, defaultFalsePositiveRate); err != nil {
		return s, fmt.Errorf("false_positive_rate: %w", err)
	}
	if s.fpr <= 0 || s.fpr >= 1 {
		return s, fmt.Errorf("%w: false_positive_rate %v must be in (0, 1)", ErrInvalidConfig, s.fpr)
	}

	if s.numSamples, err = b.NumBootstrapSamples.ResolveOr(r, defaultNumBootstrapSamples); err != nil {
		return s, fmt.Errorf("num_bootstrap_samples: %w", err)
	}
	if s.numSamples <= 0 {
		return s, fmt.Errorf("%w: num_bootstrap_samples %d must be positive", ErrInvalidConfig, s.numSamples)
	}

	if s.seed, err = b.BootstrapRandomSeed.ResolveOr(r, defaultBootstrapSeed); err != nil {
		return s, fmt.Errorf("bootstrap_random_seed: %w", err)
	}

	if s.round, err = b.RoundDecimals.ResolveOr(r, -1); err != nil {
		return s, fmt.Errorf("round_decimals: %w", err)
	}
	if b.RoundDecimals.IsSet() && s.round < 0 {
		return s, fmt.Errorf("%w: round_decimals %d must not be negative", ErrInvalidConfig, s.round)
	}

	trunc, err := b.TruncateValues.ResolveOr(r, nil)
	if err != nil {
		return s, fmt.Errorf("truncate_values: %w", err)
	}
	for key, dst := range map[string]**float64{"lower_bound": &s.lower, "upper_bound": &s.upper} {
		v, ok := trunc[key]
		if !ok || v == nil {
			continue
		}
		v, err = parameter.Resolve(v, r)
		if err != nil {
			return s, fmt.Errorf("truncate_values.%s: %w", key, err)
		}
		f, err := parameter.As[float64](v)
		if err != nil {
			return s, fmt.Errorf("truncate_values.%s: %w", key, err)
		}
		*dst = &f
	}
	if s.lower != nil && s.upper != nil && *s.lower > *s.upper {
		return s, fmt.Errorf("%w: truncate_values lower_bound %v > upper_bound %v", ErrInvalidConfig, *s.lower, *s.upper)
	}
	return s, nil
}

// Build implements ParameterBuilder.
func (b *NumericMetricRange) Build(ctx context.Context, inv *Invocation) (any, map[string]any, error) {
	s, err := b.settings(inv.Resolver)
	if err != nil {
		return nil, nil, err
	}
	metric, err := b.MetricName.Resolve(inv.Resolver)
	if err != nil {
		return nil, nil, fmt.Errorf("metric_name: %w", err)
	}
	if metric == "" {
		return nil, nil, fmt.Errorf("%w: metric_name is required", ErrInvalidConfig)
	}

	res, err := inv.GetMetrics(ctx, metric, b.MetricDomainKwargs.Raw(), b.MetricValueKwargs.Raw())
	if err != nil {
		return nil, nil, err
	}
	vals, err := res.Values()
	if err != nil {
		return nil, nil, err
	}
	xs, err := vals.Floats()
	if err != nil {
		return nil, nil, fmt.Errorf("metric %s: %w", metric, err)
	}

	var lo, hi float64
	switch {
	case len(xs) == 0:
		return nil, nil, fmt.Errorf("metric %s returned no observations", metric)
	case len(xs) < 2:
		lo, hi = xs[0], xs[0]
	case s.method == SamplingParametric:
		lo, hi = parametricRange(xs, s.fpr)
	default:
		lo, hi = bootstrapRange(xs, s.fpr, s.numSamples, uint64(s.seed))
	}

	if s.lower != nil && lo < *s.lower {
		lo = *s.lower
	}
	if s.upper != nil && hi > *s.upper {
		hi = *s.upper
	}

	decimals := s.round
	if decimals < 0 && allIntegral(xs) {
		decimals = 0
	}
	lo, hi = roundTo(lo, decimals), roundTo(hi, decimals)

	return map[string]any{"value_range": []float64{lo, hi}}, nil, nil
}
