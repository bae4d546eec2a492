// Package metrics is the process-wide operational metrics facade.
//
// Core packages call IncCounter / ObserveHistogram with Prometheus-style
// names ("profiler_builder_total") and labels. Which system receives them is
// decided once at startup with SetBackend; the default backend drops
// everything.
//
// Names emitted by the profiler:
//
//	profiler_builder_total{builder,status}
//	profiler_builder_duration_seconds{builder,status}
//	profiler_rule_total{rule,status}
//	profiler_rule_duration_seconds{rule,status}
//	profiler_domains_total{rule}
//	profiler_batches_total
//	profiler_metric_configurations_total{metric}
package metrics

import (
	"sync"
	"time"
)

// Labels are metric dimensions.
type Labels map[string]string

// Backend receives metric events. Implementations must be safe for
// concurrent use.
type Backend interface {
	IncCounter(name string, delta float64, labels Labels)
	ObserveHistogram(name string, value float64, labels Labels)
}

// Flusher is implemented by backends that buffer.
type Flusher interface {
	Flush() error
}

type nopBackend struct{}

func (nopBackend) IncCounter(string, float64, Labels)       {}
func (nopBackend) ObserveHistogram(string, float64, Labels) {}

var (
	mu      sync.RWMutex
	backend Backend = nopBackend{}
)

// SetBackend installs b as the process-wide backend. A nil b restores the
// nop backend.
func SetBackend(b Backend) {
	mu.Lock()
	defer mu.Unlock()
	if b == nil {
		b = nopBackend{}
	}
	backend = b
}

func current() Backend {
	mu.RLock()
	defer mu.RUnlock()
	return backend
}

// IncCounter adds delta to a counter.
func IncCounter(name string, labels Labels) {
	current().IncCounter(name, 1, labels)
}

// AddCounter adds an arbitrary delta to a counter.
func AddCounter(name string, delta float64, labels Labels) {
	current().IncCounter(name, delta, labels)
}

// ObserveHistogram records one sample.
func ObserveHistogram(name string, value float64, labels Labels) {
	current().ObserveHistogram(name, value, labels)
}

// ObserveDuration records the seconds elapsed since start.
func ObserveDuration(name string, start time.Time, labels Labels) {
	current().ObserveHistogram(name, time.Since(start).Seconds(), labels)
}

// Flush flushes the backend when it buffers; otherwise it is a no-op.
func Flush() error {
	if f, ok := current().(Flusher); ok {
		return f.Flush()
	}
	return nil
}
