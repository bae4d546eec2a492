package builder

import (
	"context"
	"fmt"

	"profiler/internal/parameter"
)

const metricStrftimeUnexpected = "column_values.match_strftime_format.unexpected_count"

var dateFormatCandidates = [...]string{
	"%Y-%m-%d",
	"%m-%d-%Y",
	"%y-%m-%d",
	"%Y-%m-%dT%z",
	"%Y-%m-%d %H:%M:%S",
	"%Y %b %d %H:%M:%S.%f %Z",
	"%b %d %H:%M:%S %z %Y",
	"%d/%b/%Y:%H:%M:%S %z",
	"%b %d, %Y %H:%M:%S %p",
	"%b %d %Y %H:%M:%S",
	"%b %d %H:%M:%S %Y",
	"%b %d %H:%M:%S %z",
	"%b %d %H:%M:%S",
	"%Y-%m-%d'T'%H:%M:%S%z",
	"%Y-%m-%d'T'%H:%M:%S.%f'%z'",
	"%Y-%m-%d %H:%M:%S %z",
	"%Y-%m-%d %H:%M:%S%z",
	"%Y-%m-%d %H:%M:%S,%f",
	"%Y/%m/%d*%H:%M:%S",
	"%Y %b %d %H:%M:%S.%f*%Z",
	"%Y %b %d %H:%M:%S.%f",
	"%Y-%m-%d %H:%M:%S,%f%z",
	"%Y-%m-%d %H:%M:%S.%f",
	"%Y-%m-%d %H:%M:%S.%f%z",
	"%Y-%m-%d'T'%H:%M:%S.%f",
	"%Y-%m-%d'T'%H:%M:%S",
	"%Y-%m-%d'T'%H:%M:%S'%z'",
	"%Y-%m-%d*%H:%M:%S:%f",
	"%Y-%m-%d*%H:%M:%S",
	"%y-%m-%d %H:%M:%S,%f %z",
	"%y-%m-%d %H:%M:%S,%f",
	"%y-%m-%d %H:%M:%S",
	"%y/%m/%d %H:%M:%S",
	"%y%m%d %H:%M:%S",
	"%Y%m%d %H:%M:%S.%f",
	"%m/%d/%y*%H:%M:%S",
	"%m/%d/%Y*%H:%M:%S",
	"%m/%d/%Y*%H:%M:%S*%f",
	"%m/%d/%y %H:%M:%S %z",
	"%m/%d/%Y %H:%M:%S %z",
	"%H:%M:%S",
	"%H:%M:%S.%f",
	"%H:%M:%S,%f",
	"%d/%b %H:%M:%S,%f",
	"%d/%b/%Y:%H:%M:%S",
	"%d/%b/%Y %H:%M:%S",
	"%d-%b-%Y %H:%M:%S",
	"%d-%b-%Y %H:%M:%S.%f",
	"%d %b %Y %H:%M:%S",
	"%d %b %Y %H:%M:%S*%f",
	"%m%d_%H:%M:%S",
	"%m%d_%H:%M:%S.%f",
	"%m/%d/%Y %H:%M:%S %p:%f",
	"%m/%d/%Y %H:%M:%S %p",
}

// DateFormatCandidates returns the built-in strftime candidates in their
// evaluation order. The result is a fresh copy.
func DateFormatCandidates() []string {
	out := make([]string, len(dateFormatCandidates))
	copy(out, dateFormatCandidates[:])
	return out
}

// SimpleDateFormatString detects the strftime format that best describes a
// column's non-null values.
//
// Every candidate is scored by the share of non-null values it parses. The
// highest score wins provided it reaches Threshold; on equal scores the
// earlier candidate wins. When no candidate qualifies (including a column
// with no non-null values) the value is nil and success_ratio is 0.
//
// Value: string or nil. Details: {"success_ratio": float64}.
type SimpleDateFormatString struct {
	Common `yaml:",inline"`

	MetricDomainKwargs parameter.Field[any] `json:"metric_domain_kwargs,omitempty" yaml:"metric_domain_kwargs,omitempty"`
	MetricValueKwargs  parameter.Field[any] `json:"metric_value_kwargs,omitempty" yaml:"metric_value_kwargs,omitempty"`

	// Threshold is the minimum success ratio, in [0, 1]; default 1.0.
	Threshold parameter.Field[float64] `json:"threshold,omitempty" yaml:"threshold,omitempty"`
	// CandidateStrings replaces the built-in catalog. Duplicates are dropped,
	// first occurrence kept.
	CandidateStrings parameter.Field[[]string] `json:"candidate_strings,omitempty" yaml:"candidate_strings,omitempty"`
}

// Name implements ParameterBuilder.
func (b *SimpleDateFormatString) Name() string { return b.Common.Name }

// Build implements ParameterBuilder.
func (b *SimpleDateFormatString) Build(ctx context.Context, inv *Invocation) (any, map[string]any, error) {
	threshold, err := resolveThreshold(b.Threshold, inv.Resolver)
	if err != nil {
		return nil, nil, err
	}
	candidates, err := resolveCandidates(b.CandidateStrings, inv.Resolver, DateFormatCandidates)
	if err != nil {
		return nil, nil, fmt.Errorf("candidate_strings: %w", err)
	}

	res, err := bestFit(ctx, inv, bestFitSpec{
		metric:       metricStrftimeUnexpected,
		kwarg:        "strftime_format",
		candidates:   candidates,
		domainKwargs: b.MetricDomainKwargs.Raw(),
		valueKwargs:  b.MetricValueKwargs.Raw(),
		threshold:    threshold,
	})
	if err != nil {
		return nil, nil, err
	}
	if !res.found {
		return nil, map[string]any{DetailSuccessRatio: 0.0}, nil
	}
	return res.best, map[string]any{DetailSuccessRatio: res.ratio}, nil
}
