// Package execution describes metric computations: what to compute
// (Configuration), who computes it (Engine), and how builders receive the
// answers (ComputationResult).
package execution

import (
	"context"
	"errors"
	"fmt"

	"profiler/internal/domain"
	"profiler/internal/parameter"
)

// ErrUnknownMetric is returned by engines for metric names they do not serve.
var ErrUnknownMetric = errors.New("unknown metric")

// Configuration identifies one metric request against one batch.
type Configuration struct {
	MetricName   string         `json:"metric_name"`
	DomainKwargs map[string]any `json:"metric_domain_kwargs"`
	ValueKwargs  map[string]any `json:"metric_value_kwargs,omitempty"`
}

// ID is a stable identity over the metric name and both kwargs mappings.
func (c Configuration) ID() string {
	return domain.Hash(c.MetricName, map[string]any{
		"domain_kwargs": c.DomainKwargs,
		"value_kwargs":  c.ValueKwargs,
	})
}

// BatchID returns the batch_id domain kwarg, or "".
func (c Configuration) BatchID() string {
	s, _ := c.DomainKwargs["batch_id"].(string)
	return s
}

// Engine computes metrics. One call resolves the whole list; the returned map
// is keyed by Configuration.ID and holds an entry for every configuration.
type Engine interface {
	ResolveMetrics(ctx context.Context, configs []Configuration) (map[string]any, error)
}

// EngineFunc adapts a function to Engine.
type EngineFunc func(ctx context.Context, configs []Configuration) (map[string]any, error)

func (f EngineFunc) ResolveMetrics(ctx context.Context, configs []Configuration) (map[string]any, error) {
	return f(ctx, configs)
}

// Values holds metric observations: one row per batch, one column per
// scalar (a single column for scalar metrics).
type Values [][]any

// Column returns the i-th column over all rows.
func (v Values) Column(i int) []any {
	out := make([]any, 0, len(v))
	for _, row := range v {
		if i < len(row) {
			out = append(out, row[i])
		}
	}
	return out
}

// Flatten returns all observations row by row.
func (v Values) Flatten() []any {
	var out []any
	for _, row := range v {
		out = append(out, row...)
	}
	return out
}

// Floats returns all observations as float64. Any non-numeric observation is
// a parameter.ErrTypeMismatch.
func (v Values) Floats() ([]float64, error) {
	flat := v.Flatten()
	out := make([]float64, len(flat))
	for i, x := range flat {
		f, ok := parameter.ToFloat(x)
		if !ok {
			return nil, fmt.Errorf("%w: metric observation %v (%T) is not numeric", parameter.ErrTypeMismatch, x, x)
		}
		out[i] = f
	}
	return out, nil
}

// Attributed is one metric vector together with the value kwargs variant it
// was computed for. Attributes is empty when the request did not fan out.
type Attributed struct {
	Attributes map[string]any `json:"attributes,omitempty"`
	Values     Values         `json:"values"`
}

// ComputationResult is what a builder gets back from one metric request.
type ComputationResult struct {
	FanOut     bool
	Attributed []Attributed
	NumBatches int

	// Configuration echoes the request shape:
	// {metric_name, domain_kwargs[, value_kwargs]}, batch_id excluded.
	Configuration map[string]any
}

// Values returns the single vector of a non-fan-out result.
func (r ComputationResult) Values() (Values, error) {
	if r.FanOut || len(r.Attributed) != 1 {
		return nil, fmt.Errorf("execution: result has %d attributed vectors (fan_out=%t); want exactly one", len(r.Attributed), r.FanOut)
	}
	return r.Attributed[0].Values, nil
}
