// Package builder implements parameter builders: estimators that turn metric
// observations over one or more batches into a single derived parameter
// (a value range, a value set, a format string) plus provenance details.
//
// Every builder is driven through BuildParameters, which resolves the batches
// to look at, hands the builder an Invocation for fetching metrics, merges
// the standard details and publishes the record into the domain's parameter
// container.
package builder

import (
	"context"
	"errors"
	"fmt"
	"time"

	"profiler/internal/datasource"
	"profiler/internal/domain"
	"profiler/internal/execution"
	"profiler/internal/logging"
	"profiler/internal/metrics"
	"profiler/internal/parameter"
)

var (
	// ErrNoBatches is returned when the batch list or batch request resolves
	// to zero batches.
	ErrNoBatches = errors.New("no batches to build parameters from")

	// ErrInvalidConfig is returned for configuration values outside their
	// domain (a false positive rate of 1.5, an unknown sampling method).
	ErrInvalidConfig = errors.New("invalid parameter builder configuration")
)

// Detail keys merged by BuildParameters.
const (
	DetailNumBatches          = "num_batches"
	DetailMetricConfiguration = "metric_configuration"
)

// ParameterBuilder computes one parameter.
type ParameterBuilder interface {
	// Name is the short parameter name, e.g. "row_count_range".
	Name() string
	// FullyQualifiedName is "$parameter.<name>".
	FullyQualifiedName() string
	// Build computes the parameter value and builder-specific details.
	// Build must not write to any container.
	Build(ctx context.Context, inv *Invocation) (any, map[string]any, error)
}

// BatchSource is implemented by builders that choose their own batches.
// Builders embedding Common implement it.
type BatchSource interface {
	BatchSelection() ([]*datasource.Batch, parameter.Field[map[string]any])
}

// Common carries the configuration shared by all builders.
type Common struct {
	Name string `json:"name" yaml:"name" validate:"required"`

	// BatchList pins the builder to already loaded batches. It wins over
	// BatchRequest.
	BatchList []*datasource.Batch `json:"-" yaml:"-"`

	// BatchRequest is a literal request mapping or a reference to one:
	// {datasource_name, data_asset_name, indices, limit}.
	BatchRequest parameter.Field[map[string]any] `json:"batch_request,omitempty" yaml:"batch_request,omitempty"`
}

// FullyQualifiedName implements ParameterBuilder.
func (c Common) FullyQualifiedName() string {
	return parameter.RootParameter + "." + c.Name
}

// BatchSelection implements BatchSource.
func (c Common) BatchSelection() ([]*datasource.Batch, parameter.Field[map[string]any]) {
	return c.BatchList, c.BatchRequest
}

// Deps are the collaborators a build needs.
type Deps struct {
	Engine  execution.Engine
	Batches datasource.Provider

	// BatchRequest is the fallback when the builder names no batches,
	// typically the rule's or profiler's request.
	BatchRequest *datasource.Request
}

// BuildParameters runs b for domain d and stores the result under
// b.FullyQualifiedName() in container.
//
// When to use:
//   - Rules call it once per builder per domain, in declared order, so later
//     builders can reference earlier results through "$parameter.".
//
// Edge cases:
//   - An explicit batch list wins over any batch request.
//   - "num_batches" is always merged into details; "metric_configuration"
//     only when the builder issued exactly one non-fan-out metric request.
//     Keys set by the builder are never overwritten.
//   - variables and parameters are read, never written.
//
// Errors:
//   - ErrNoBatches when the batches resolve to an empty list.
//   - Any builder, resolution or engine error, wrapped with the builder name.
//     On error the container is left untouched.
func BuildParameters(
	ctx context.Context,
	b ParameterBuilder,
	container *parameter.Container,
	d domain.Domain,
	variables *parameter.Container,
	parameters map[string]*parameter.Container,
	deps Deps,
) (err error) {
	start := time.Now()
	log := logging.New("builder").With("builder", b.Name(), "domain_id", d.ID())
	defer func() {
		status := "ok"
		if err != nil {
			status = "error"
		}
		labels := metrics.Labels{"builder": b.Name(), "status": status}
		metrics.IncCounter("profiler_builder_total", labels)
		metrics.ObserveDuration("profiler_builder_duration_seconds", start, labels)
	}()

	if container == nil {
		return fmt.Errorf("parameter builder %q: nil parameter container", b.Name())
	}

	inv := &Invocation{
		Resolver: parameter.Resolver{Domain: d, Variables: variables, Parameters: parameters},
		engine:   deps.Engine,
	}

	batches, err := resolveBatches(ctx, b, inv.Resolver, deps)
	if err != nil {
		return fmt.Errorf("parameter builder %q: %w", b.Name(), err)
	}
	if len(batches) == 0 {
		return fmt.Errorf("parameter builder %q: %w", b.Name(), ErrNoBatches)
	}
	inv.Batches = batches
	metrics.AddCounter("profiler_batches_total", float64(len(batches)), nil)

	value, details, err := b.Build(ctx, inv)
	if err != nil {
		log.Debug("build failed", "err", err)
		return fmt.Errorf("parameter builder %q: %w", b.Name(), err)
	}

	merged := make(map[string]any, len(details)+2)
	for k, v := range details {
		merged[k] = v
	}
	if _, ok := merged[DetailNumBatches]; !ok {
		merged[DetailNumBatches] = len(batches)
	}
	if cfg, ok := inv.singleConfiguration(); ok {
		if _, set := merged[DetailMetricConfiguration]; !set {
			merged[DetailMetricConfiguration] = cfg
		}
	}

	if err := container.Set(b.FullyQualifiedName(), parameter.Value{Value: value, Details: merged}); err != nil {
		return fmt.Errorf("parameter builder %q: %w", b.Name(), err)
	}
	log.Debug("parameter built", "num_batches", len(batches), "requests", inv.requests)
	return nil
}

func resolveBatches(ctx context.Context, b ParameterBuilder, r parameter.Resolver, deps Deps) ([]*datasource.Batch, error) {
	var list []*datasource.Batch
	var req parameter.Field[map[string]any]
	if src, ok := b.(BatchSource); ok {
		list, req = src.BatchSelection()
	}
	return ResolveBatches(ctx, list, req, r, deps)
}

// ResolveBatches picks the batches a builder works on: list when non-nil,
// else the batches of reqField, else those of deps.BatchRequest. It returns
// nil when none of them is given.
func ResolveBatches(ctx context.Context, list []*datasource.Batch, reqField parameter.Field[map[string]any], r parameter.Resolver, deps Deps) ([]*datasource.Batch, error) {
	if list != nil {
		return list, nil
	}

	var req datasource.Request
	switch {
	case reqField.IsSet():
		raw, err := reqField.Resolve(r)
		if err != nil {
			return nil, fmt.Errorf("batch_request: %w", err)
		}
		resolved, err := parameter.Resolve(raw, r)
		if err != nil {
			return nil, fmt.Errorf("batch_request: %w", err)
		}
		m, err := parameter.As[map[string]any](resolved)
		if err != nil {
			return nil, fmt.Errorf("batch_request: %w", err)
		}
		req, err = DecodeBatchRequest(m)
		if err != nil {
			return nil, err
		}
	case deps.BatchRequest != nil:
		req = *deps.BatchRequest
	default:
		return nil, nil
	}

	if deps.Batches == nil {
		return nil, fmt.Errorf("batch_request given but no batch provider configured")
	}
	return deps.Batches.GetBatchList(ctx, req)
}

// DecodeBatchRequest converts a request mapping into a datasource.Request.
func DecodeBatchRequest(m map[string]any) (datasource.Request, error) {
	var req datasource.Request
	var err error
	if v, ok := m["datasource_name"]; ok {
		if req.Datasource, err = parameter.As[string](v); err != nil {
			return req, fmt.Errorf("batch_request.datasource_name: %w", err)
		}
	}
	if v, ok := m["data_asset_name"]; ok {
		if req.Asset, err = parameter.As[string](v); err != nil {
			return req, fmt.Errorf("batch_request.data_asset_name: %w", err)
		}
	}
	if v, ok := m["indices"]; ok && v != nil {
		items, err := parameter.As[[]any](v)
		if err != nil {
			return req, fmt.Errorf("batch_request.indices: %w", err)
		}
		for _, it := range items {
			i, err := parameter.As[int](it)
			if err != nil {
				return req, fmt.Errorf("batch_request.indices: %w", err)
			}
			req.Indices = append(req.Indices, i)
		}
	}
	if v, ok := m["limit"]; ok && v != nil {
		if req.Limit, err = parameter.As[int](v); err != nil {
			return req, fmt.Errorf("batch_request.limit: %w", err)
		}
	}
	if req.Datasource == "" || req.Asset == "" {
		return req, fmt.Errorf("%w: batch_request needs datasource_name and data_asset_name", ErrInvalidConfig)
	}
	return req, nil
}
