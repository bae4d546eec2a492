// Package prompush implements a metrics.Backend that keeps Prometheus
// collectors in a private registry and pushes them to a Pushgateway on
// Flush. A profiler run is a batch job, so there is nothing to scrape.
package prompush

import (
	"fmt"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/push"

	"profiler/internal/metrics"
)

// counterLabels and histogramLabels fix the label set of every known
// metric; Prometheus rejects a vector observed with varying label names.
var counterLabels = map[string][]string{
	"profiler_builder_total":               {"builder", "status"},
	"profiler_rule_total":                  {"rule", "status"},
	"profiler_domains_total":               {"rule"},
	"profiler_batches_total":               nil,
	"profiler_metric_configurations_total": {"metric"},
}

var histogramLabels = map[string][]string{
	"profiler_builder_duration_seconds": {"builder", "status"},
	"profiler_rule_duration_seconds":    {"rule", "status"},
}

var help = map[string]string{
	"profiler_builder_total":               "Parameter builder invocations by outcome.",
	"profiler_rule_total":                  "Rule runs by outcome.",
	"profiler_domains_total":               "Domains produced per rule.",
	"profiler_batches_total":               "Batches resolved by parameter builders.",
	"profiler_metric_configurations_total": "Metric configurations computed by the engine.",
	"profiler_builder_duration_seconds":    "Parameter builder latency.",
	"profiler_rule_duration_seconds":       "Rule latency.",
}

// Backend implements metrics.Backend and metrics.Flusher.
type Backend struct {
	reg    *prometheus.Registry
	pusher *push.Pusher

	mu         sync.Mutex
	counters   map[string]*prometheus.CounterVec
	histograms map[string]*prometheus.HistogramVec
}

// NewBackend creates a backend pushing to the Pushgateway at url under job.
func NewBackend(job, url string) (*Backend, error) {
	if url == "" {
		return nil, fmt.Errorf("prompush: pushgateway url is required")
	}
	if job == "" {
		job = "profiler"
	}
	reg := prometheus.NewRegistry()
	b := &Backend{
		reg:        reg,
		pusher:     push.New(url, job).Gatherer(reg),
		counters:   make(map[string]*prometheus.CounterVec),
		histograms: make(map[string]*prometheus.HistogramVec),
	}
	return b, nil
}

func values(names []string, labels metrics.Labels) []string {
	out := make([]string, len(names))
	for i, n := range names {
		out[i] = labels[n]
		if out[i] == "" {
			out[i] = "unknown"
		}
	}
	return out
}

func (b *Backend) counter(name string) *prometheus.CounterVec {
	labels, ok := counterLabels[name]
	if !ok {
		return nil
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if c, ok := b.counters[name]; ok {
		return c
	}
	c := prometheus.NewCounterVec(prometheus.CounterOpts{Name: name, Help: help[name]}, labels)
	b.reg.MustRegister(c)
	b.counters[name] = c
	return c
}

func (b *Backend) histogram(name string) *prometheus.HistogramVec {
	labels, ok := histogramLabels[name]
	if !ok {
		return nil
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if h, ok := b.histograms[name]; ok {
		return h
	}
	h := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    name,
		Help:    help[name],
		Buckets: prometheus.ExponentialBuckets(0.001, 4, 10),
	}, labels)
	b.reg.MustRegister(h)
	b.histograms[name] = h
	return h
}

// IncCounter implements metrics.Backend. Unknown names and non-positive
// deltas are dropped.
func (b *Backend) IncCounter(name string, delta float64, labels metrics.Labels) {
	if delta <= 0 {
		return
	}
	if c := b.counter(name); c != nil {
		c.WithLabelValues(values(counterLabels[name], labels)...).Add(delta)
	}
}

// ObserveHistogram implements metrics.Backend.
func (b *Backend) ObserveHistogram(name string, value float64, labels metrics.Labels) {
	if h := b.histogram(name); h != nil {
		h.WithLabelValues(values(histogramLabels[name], labels)...).Observe(value)
	}
}

// Flush pushes every collected metric, replacing the job's previous group.
func (b *Backend) Flush() error {
	if err := b.pusher.Push(); err != nil {
		return fmt.Errorf("prompush: %w", err)
	}
	return nil
}

// Gatherer exposes the registry, mainly for tests.
func (b *Backend) Gatherer() prometheus.Gatherer { return b.reg }

var (
	_ metrics.Backend = (*Backend)(nil)
	_ metrics.Flusher = (*Backend)(nil)
)
