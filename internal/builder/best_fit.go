package builder

import (
	"context"
	"fmt"

	"profiler/internal/execution"
	"profiler/internal/parameter"
)

const (
	metricNonNullCount = "column_values.nonnull.count"

	// DetailSuccessRatio is the share of non-null values matching the chosen
	// candidate.
	DetailSuccessRatio = "success_ratio"

	defaultThreshold = 1.0
)

// candidateRatio is one evaluated candidate, kept in evaluation order.
type candidateRatio struct {
	Candidate string
	Ratio     float64
}

// bestFitSpec describes one best-fit search: which unexpected-count metric
// to run and under which value kwarg each candidate is passed.
type bestFitSpec struct {
	metric       string
	kwarg        string
	candidates   []string
	domainKwargs any
	valueKwargs  any
	threshold    float64
}

type bestFitResult struct {
	best   string
	found  bool
	ratio  float64
	ratios []candidateRatio
}

// bestFit picks the candidate with the highest success ratio that also
// reaches the threshold. Ratios are compared strictly, so among equal ratios
// the earliest candidate wins. With zero non-null values nothing qualifies.
func bestFit(ctx context.Context, inv *Invocation, spec bestFitSpec) (bestFitResult, error) {
	var out bestFitResult

	nonNull, err := inv.GetMetrics(ctx, metricNonNullCount, spec.domainKwargs, spec.valueKwargs)
	if err != nil {
		return out, err
	}
	nonNullCount, err := sumScalar(nonNull)
	if err != nil {
		return out, fmt.Errorf("%s: %w", metricNonNullCount, err)
	}

	base, err := inv.Resolve(spec.valueKwargs)
	if err != nil {
		return out, fmt.Errorf("metric_value_kwargs: %w", err)
	}
	var baseKwargs map[string]any
	if base != nil {
		if baseKwargs, err = parameter.As[map[string]any](base); err != nil {
			return out, fmt.Errorf("metric_value_kwargs: %w", err)
		}
	}

	variants := make([]any, len(spec.candidates))
	for i, c := range spec.candidates {
		vk := make(map[string]any, len(baseKwargs)+1)
		for k, v := range baseKwargs {
			vk[k] = v
		}
		vk[spec.kwarg] = c
		variants[i] = vk
	}

	res, err := inv.GetMetrics(ctx, spec.metric, spec.domainKwargs, variants)
	if err != nil {
		return out, err
	}

	out.ratios = make([]candidateRatio, 0, len(res.Attributed))
	for _, a := range res.Attributed {
		cand, _ := a.Attributes[spec.kwarg].(string)
		unexpected, err := sumScalar(execution.ComputationResult{Attributed: []execution.Attributed{a}})
		if err != nil {
			return out, fmt.Errorf("%s: %w", spec.metric, err)
		}

		var ratio float64
		if nonNullCount > 0 {
			ratio = (nonNullCount - unexpected) / nonNullCount
		}
		out.ratios = append(out.ratios, candidateRatio{Candidate: cand, Ratio: ratio})

		if nonNullCount > 0 && ratio > out.ratio && ratio >= spec.threshold {
			out.best = cand
			out.found = true
			out.ratio = ratio
		}
	}
	return out, nil
}

func sumScalar(res execution.ComputationResult) (float64, error) {
	vals, err := res.Values()
	if err != nil {
		return 0, err
	}
	xs, err := vals.Floats()
	if err != nil {
		return 0, err
	}
	var sum float64
	for _, x := range xs {
		sum += x
	}
	return sum, nil
}

// dedupe removes repeated candidates, keeping first occurrences in order.
func dedupe(in []string) []string {
	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}

// resolveCandidates returns the configured candidates, de-duplicated, or the
// built-in catalog when the field is unset or resolves to nil.
func resolveCandidates(f parameter.Field[[]string], r parameter.Resolver, catalog func() []string) ([]string, error) {
	if !f.IsSet() {
		return catalog(), nil
	}
	var cands []string
	if f.IsRef() {
		v, err := r.Lookup(f.Reference())
		if err != nil {
			return nil, fmt.Errorf("resolve %s: %w", f.Reference(), err)
		}
		if v == nil {
			return catalog(), nil
		}
		if cands, err = parameter.As[[]string](v); err != nil {
			return nil, fmt.Errorf("resolve %s: %w", f.Reference(), err)
		}
	} else {
		cands, _ = f.Resolve(r)
	}
	if cands == nil {
		return catalog(), nil
	}
	return dedupe(cands), nil
}

func resolveThreshold(f parameter.Field[float64], r parameter.Resolver) (float64, error) {
	t, err := f.ResolveOr(r, defaultThreshold)
	if err != nil {
		return 0, fmt.Errorf("threshold: %w", err)
	}
	if t < 0 || t > 1 {
		return 0, fmt.Errorf("%w: threshold %v must be in [0, 1]", ErrInvalidConfig, t)
	}
	return t, nil
}
