package builder

import (
	"context"
	"fmt"

	"profiler/internal/parameter"
)

const (
	metricRegexUnexpected = "column_values.match_regex.unexpected_count"

	// DetailEvaluatedRegexes maps every evaluated regex to its success ratio.
	DetailEvaluatedRegexes = "evaluated_regexes"
)

var regexCandidates = [...]string{
	// numbers
	`^\d+$`,
	`^-?\d+$`,
	`^-?\d+(?:\.\d*)?$`,
	// dates and timestamps
	`^\d{4}-\d{2}-\d{2}$`,
	`^\d{4}-\d{2}-\d{2}[T ]\d{2}:\d{2}:\d{2}(?:\.\d+)?(?:Z|[+-]\d{2}:?\d{2})?$`,
	// e-mail
	`^[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}$`,
	// URL
	`^https?://[^\s/$.?#].[^\s]*$`,
	// UUID
	`^[0-9a-fA-F]{8}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{12}$`,
	// IPv4
	`^(?:(?:25[0-5]|2[0-4]\d|1?\d?\d)\.){3}(?:25[0-5]|2[0-4]\d|1?\d?\d)$`,
	// phone
	`^\+?\d{1,3}?[-. ]?\(?\d{3}\)?[-. ]?\d{3}[-. ]?\d{4}$`,
}

// RegexCandidates returns the built-in regex candidates in their evaluation
// order. The result is a fresh copy.
func RegexCandidates() []string {
	out := make([]string, len(regexCandidates))
	copy(out, regexCandidates[:])
	return out
}

// RegexPatternString picks the regular expression that best matches a
// column's non-null values, with the same selection rule as
// SimpleDateFormatString.
//
// Value: string or nil. Details: {"success_ratio": float64,
// "evaluated_regexes": {regex: ratio}}.
type RegexPatternString struct {
	Common `yaml:",inline"`

	MetricDomainKwargs parameter.Field[any] `json:"metric_domain_kwargs,omitempty" yaml:"metric_domain_kwargs,omitempty"`
	MetricValueKwargs  parameter.Field[any] `json:"metric_value_kwargs,omitempty" yaml:"metric_value_kwargs,omitempty"`

	Threshold        parameter.Field[float64]  `json:"threshold,omitempty" yaml:"threshold,omitempty"`
	CandidateRegexes parameter.Field[[]string] `json:"candidate_regexes,omitempty" yaml:"candidate_regexes,omitempty"`
}

// Name implements ParameterBuilder.
func (b *RegexPatternString) Name() string { return b.Common.Name }

// Build implements ParameterBuilder.
func (b *RegexPatternString) Build(ctx context.Context, inv *Invocation) (any, map[string]any, error) {
	threshold, err := resolveThreshold(b.Threshold, inv.Resolver)
	if err != nil {
		return nil, nil, err
	}
	candidates, err := resolveCandidates(b.CandidateRegexes, inv.Resolver, RegexCandidates)
	if err != nil {
		return nil, nil, fmt.Errorf("candidate_regexes: %w", err)
	}

	res, err := bestFit(ctx, inv, bestFitSpec{
		metric:       metricRegexUnexpected,
		kwarg:        "regex",
		candidates:   candidates,
		domainKwargs: b.MetricDomainKwargs.Raw(),
		valueKwargs:  b.MetricValueKwargs.Raw(),
		threshold:    threshold,
	})
	if err != nil {
		return nil, nil, err
	}

	evaluated := make(map[string]any, len(res.ratios))
	for _, cr := range res.ratios {
		evaluated[cr.Candidate] = cr.Ratio
	}
	details := map[string]any{DetailSuccessRatio: 0.0, DetailEvaluatedRegexes: evaluated}
	if !res.found {
		return nil, details, nil
	}
	details[DetailSuccessRatio] = res.ratio
	return res.best, details, nil
}
