package builder

import (
	"context"
	"fmt"
	"reflect"

	"profiler/internal/datasource"
	"profiler/internal/domain"
	"profiler/internal/execution"
	"profiler/internal/parameter"
)

// Invocation is the per-build context handed to ParameterBuilder.Build: the
// resolution state, the resolved batches and the only path to metric values.
type Invocation struct {
	Resolver parameter.Resolver
	Batches  []*datasource.Batch

	engine   execution.Engine
	requests int
	lastCfg  map[string]any
	fanOut   bool
}

// NewInvocation returns an invocation over batches. Domain builders use it
// to fetch metrics outside BuildParameters.
func NewInvocation(r parameter.Resolver, batches []*datasource.Batch, engine execution.Engine) *Invocation {
	return &Invocation{Resolver: r, Batches: batches, engine: engine}
}

// Domain returns the domain being profiled.
func (inv *Invocation) Domain() domain.Domain { return inv.Resolver.Domain }

// NumBatches returns the number of resolved batches.
func (inv *Invocation) NumBatches() int { return len(inv.Batches) }

// Resolve resolves a literal-or-reference value, element-wise for maps and
// slices.
func (inv *Invocation) Resolve(ref any) (any, error) {
	return parameter.Resolve(ref, inv.Resolver)
}

func (inv *Invocation) singleConfiguration() (map[string]any, bool) {
	if inv.requests != 1 || inv.fanOut {
		return nil, false
	}
	return inv.lastCfg, true
}

// GetMetrics fetches metricName for every resolved batch.
//
// domainKwargs is nil (the domain's own kwargs), a mapping, or a reference
// to one. valueKwargs is nil, a mapping, or a list of mappings; a list fans
// the request out into one attributed vector per mapping, in list order.
// References are resolved before the request is built.
//
// All (batch x variant) configurations go to the engine in one call. The
// result has one row per batch, in batch order.
func (inv *Invocation) GetMetrics(ctx context.Context, metricName string, domainKwargs, valueKwargs any) (execution.ComputationResult, error) {
	var res execution.ComputationResult
	if inv.engine == nil {
		return res, fmt.Errorf("get metrics %s: no engine configured", metricName)
	}

	baseDomain, err := inv.resolveDomainKwargs(domainKwargs)
	if err != nil {
		return res, fmt.Errorf("get metrics %s: metric_domain_kwargs: %w", metricName, err)
	}
	variants, fanOut, err := inv.resolveValueKwargs(valueKwargs)
	if err != nil {
		return res, fmt.Errorf("get metrics %s: metric_value_kwargs: %w", metricName, err)
	}

	configs := make([]execution.Configuration, 0, len(inv.Batches)*len(variants))
	for _, vk := range variants {
		for _, b := range inv.Batches {
			dk := make(map[string]any, len(baseDomain)+1)
			for k, v := range baseDomain {
				dk[k] = v
			}
			dk["batch_id"] = b.ID
			configs = append(configs, execution.Configuration{
				MetricName:   metricName,
				DomainKwargs: dk,
				ValueKwargs:  vk,
			})
		}
	}

	resolved, err := inv.engine.ResolveMetrics(ctx, configs)
	if err != nil {
		return res, fmt.Errorf("get metrics %s: %w", metricName, err)
	}

	res.FanOut = fanOut
	res.NumBatches = len(inv.Batches)
	res.Attributed = make([]execution.Attributed, len(variants))
	i := 0
	for vi, vk := range variants {
		vals := make(execution.Values, len(inv.Batches))
		for bi := range inv.Batches {
			cfg := configs[i]
			i++
			v, ok := resolved[cfg.ID()]
			if !ok {
				return res, fmt.Errorf("get metrics %s: engine returned no value for batch %s", metricName, cfg.BatchID())
			}
			vals[bi] = metricRow(v)
		}
		a := execution.Attributed{Values: vals}
		if fanOut {
			a.Attributes = vk
		}
		res.Attributed[vi] = a
	}

	res.Configuration = map[string]any{
		"metric_name":   metricName,
		"domain_kwargs": baseDomain,
	}
	if !fanOut && len(variants) == 1 && len(variants[0]) > 0 {
		res.Configuration["value_kwargs"] = variants[0]
	}

	inv.requests++
	inv.fanOut = inv.fanOut || fanOut
	inv.lastCfg = res.Configuration
	return res, nil
}

func (inv *Invocation) resolveDomainKwargs(ref any) (map[string]any, error) {
	if ref == nil {
		return inv.Domain().Kwargs(), nil
	}
	v, err := inv.Resolve(ref)
	if err != nil {
		return nil, err
	}
	if v == nil {
		return inv.Domain().Kwargs(), nil
	}
	m, err := parameter.As[map[string]any](v)
	if err != nil {
		return nil, err
	}
	out := make(map[string]any, len(m))
	for k, x := range m {
		if k == "batch_id" {
			continue
		}
		out[k] = x
	}
	return out, nil
}

// resolveValueKwargs returns the value-kwargs variants: one (possibly nil)
// mapping when not fanning out, one per list element otherwise.
func (inv *Invocation) resolveValueKwargs(ref any) ([]map[string]any, bool, error) {
	if ref == nil {
		return []map[string]any{nil}, false, nil
	}
	if typed, ok := ref.([]map[string]any); ok {
		items := make([]any, len(typed))
		for i, m := range typed {
			items[i] = m
		}
		ref = items
	}
	v, err := inv.Resolve(ref)
	if err != nil {
		return nil, false, err
	}
	switch t := v.(type) {
	case nil:
		return []map[string]any{nil}, false, nil
	case []any:
		out := make([]map[string]any, len(t))
		for i, it := range t {
			m, err := parameter.As[map[string]any](it)
			if err != nil {
				return nil, false, fmt.Errorf("element %d: %w", i, err)
			}
			out[i] = m
		}
		return out, true, nil
	default:
		m, err := parameter.As[map[string]any](v)
		if err != nil {
			return nil, false, err
		}
		return []map[string]any{m}, false, nil
	}
}

// metricRow shapes one engine value as a row: collections spread into
// columns, scalars become a single column.
func metricRow(v any) []any {
	switch t := v.(type) {
	case nil:
		return []any{nil}
	case string, []byte:
		return []any{v}
	case []any:
		return t
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() == reflect.Slice || rv.Kind() == reflect.Array {
		out := make([]any, rv.Len())
		for i := range out {
			out[i] = rv.Index(i).Interface()
		}
		return out
	}
	return []any{v}
}
