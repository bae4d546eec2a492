// Package memory is an execution.Engine over batches already loaded in
// memory. Configurations are grouped by batch and evaluated concurrently.
package memory

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"
	"sync"

	"golang.org/x/sync/errgroup"

	"profiler/internal/datasource"
	"profiler/internal/execution"
	"profiler/internal/logging"
	"profiler/internal/metrics"
)

// BatchLookup finds a loaded batch by ID. *datasource.Catalog implements it.
type BatchLookup interface {
	Batch(id string) (*datasource.Batch, error)
}

// MetricFunc computes one metric over one batch.
type MetricFunc func(b *datasource.Batch, cfg execution.Configuration) (any, error)

// Engine evaluates registered metrics over in-memory batches.
type Engine struct {
	batches     BatchLookup
	metrics     map[string]MetricFunc
	concurrency int
	log         *slog.Logger
}

// Option configures an Engine.
type Option func(*Engine)

// WithConcurrency bounds the number of batches evaluated at once.
func WithConcurrency(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.concurrency = n
		}
	}
}

// WithMetric registers or replaces a metric implementation.
func WithMetric(name string, fn MetricFunc) Option {
	return func(e *Engine) { e.metrics[name] = fn }
}

// New returns an engine serving the built-in metrics.
func New(batches BatchLookup, opts ...Option) *Engine {
	e := &Engine{
		batches:     batches,
		metrics:     builtinMetrics(),
		concurrency: runtime.GOMAXPROCS(0),
		log:         logging.New("engine"),
	}
	for _, o := range opts {
		o(e)
	}
	return e
}

// Metrics lists the names the engine serves.
func (e *Engine) Metrics() []string {
	out := make([]string, 0, len(e.metrics))
	for k := range e.metrics {
		out = append(out, k)
	}
	return out
}

// ResolveMetrics implements execution.Engine.
//
// Errors:
//   - execution.ErrUnknownMetric for an unregistered metric name.
//   - datasource.ErrBatchNotFound / ErrColumnNotFound from the batch lookup.
//   - The first metric error cancels the remaining work.
func (e *Engine) ResolveMetrics(ctx context.Context, configs []execution.Configuration) (map[string]any, error) {
	byBatch := make(map[string][]execution.Configuration)
	var order []string
	for _, c := range configs {
		if _, ok := e.metrics[c.MetricName]; !ok {
			return nil, fmt.Errorf("%w: %s", execution.ErrUnknownMetric, c.MetricName)
		}
		id := c.BatchID()
		if _, ok := byBatch[id]; !ok {
			order = append(order, id)
		}
		byBatch[id] = append(byBatch[id], c)
	}

	var (
		mu  sync.Mutex
		out = make(map[string]any, len(configs))
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.concurrency)
	for _, id := range order {
		batchCfgs := byBatch[id]
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			b, err := e.batches.Batch(id)
			if err != nil {
				return err
			}
			for _, c := range batchCfgs {
				v, err := e.metrics[c.MetricName](b, c)
				if err != nil {
					return fmt.Errorf("metric %s on batch %s: %w", c.MetricName, id, err)
				}
				mu.Lock()
				out[c.ID()] = v
				mu.Unlock()
				metrics.IncCounter("profiler_metric_configurations_total", metrics.Labels{"metric": c.MetricName})
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	e.log.Debug("metrics resolved", "configurations", len(configs), "batches", len(order))
	return out, nil
}
