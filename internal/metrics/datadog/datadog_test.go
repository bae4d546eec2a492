package datadog

import (
	"context"
	"errors"
	"net/http"
	"os"
	"reflect"
	"runtime"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"profiler/internal/metrics"

	"github.com/DataDog/datadog-api-client-go/v2/api/datadogV2"
)

// fakeSubmitter captures payloads submitted by Backend.Flush().
type fakeSubmitter struct {
	mu       sync.Mutex
	payloads []datadogV2.MetricPayload
	err      error
}

func (f *fakeSubmitter) SubmitMetrics(ctx context.Context, body datadogV2.MetricPayload, params ...datadogV2.SubmitMetricsOptionalParameters) (datadogV2.IntakePayloadAccepted, *http.Response, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.payloads = append(f.payloads, body)
	return datadogV2.IntakePayloadAccepted{}, nil, f.err
}

func (f *fakeSubmitter) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.payloads)
}

func (f *fakeSubmitter) last() (datadogV2.MetricPayload, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.payloads) == 0 {
		return datadogV2.MetricPayload{}, false
	}
	return f.payloads[len(f.payloads)-1], true
}

// quietOptions returns options whose ticker never fires during a test.
func quietOptions(fs *fakeSubmitter) Options {
	return Options{
		JobName:    "job1",
		FlushEvery: 24 * time.Hour,
		submitter:  fs,
		now:        func() time.Time { return time.Unix(1000, 0) },
		newTicker:  func(d time.Duration) *time.Ticker { return time.NewTicker(24 * time.Hour) },
	}
}

func TestResolveEnvTag(t *testing.T) {
	oldENV := os.Getenv("ENV")
	oldDDENV := os.Getenv("DD_ENV")
	t.Cleanup(func() {
		_ = os.Setenv("ENV", oldENV)
		_ = os.Setenv("DD_ENV", oldDDENV)
	})

	tests := []struct {
		name string
		env  string
		dd   string
		want string
	}{
		{name: "ENV_wins", env: "prod", dd: "stage", want: "env:prod"},
		{name: "DD_ENV_used_when_ENV_empty", env: "", dd: "stage", want: "env:stage"},
		{name: "whitespace_ignored", env: "   ", dd: "\n\t", want: "env:unknown"},
		{name: "default_unknown", env: "", dd: "", want: "env:unknown"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_ = os.Setenv("ENV", tc.env)
			_ = os.Setenv("DD_ENV", tc.dd)
			if got := resolveEnvTag(); got != tc.want {
				t.Fatalf("resolveEnvTag()=%q, want %q", got, tc.want)
			}
		})
	}
}

func TestWrapInitErr(t *testing.T) {
	if got := wrapInitErr(nil); got != nil {
		t.Fatalf("wrapInitErr(nil)=%v, want nil", got)
	}
	in := errors.New("boom")
	got := wrapInitErr(in)
	if !strings.Contains(got.Error(), "datadog metrics init:") || !errors.Is(got, in) {
		t.Fatalf("wrapInitErr(err)=%v", got)
	}
}

func TestSeriesKeyRoundTrip(t *testing.T) {
	tests := []struct {
		name   string
		metric string
		tags   []string
	}{
		{name: "tagged", metric: "profiler.rule.total", tags: []string{"rule:row_count", "status:ok"}},
		{name: "untagged", metric: "profiler.batches.total"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			metric, tags := splitSeriesKey(seriesKey(tc.metric, tc.tags))
			if metric != tc.metric || !reflect.DeepEqual(tags, tc.tags) {
				t.Fatalf("roundtrip got=(%q,%v), want=(%q,%v)", metric, tags, tc.metric, tc.tags)
			}
		})
	}
}

func TestLabelTags_DefaultsUnknown(t *testing.T) {
	got := labelTags([]string{"builder", "status"}, metrics.Labels{"builder": "row_count", "extra": "x"})
	want := []string{"builder:row_count", "status:unknown"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("labelTags()=%v, want %v", got, want)
	}
}

func TestWithTags(t *testing.T) {
	base := []string{"env:test", "job:profiler"}
	got := withTags(base, "rule:r", "status:ok")
	want := []string{"env:test", "job:profiler", "rule:r", "status:ok"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("withTags()=%v, want %v", got, want)
	}
	got[0] = "env:mutated"
	if base[0] == "env:mutated" {
		t.Fatalf("withTags output aliases base slice")
	}
}

func TestPercentileNearestRank(t *testing.T) {
	tests := []struct {
		name string
		s    []float64
		p    float64
		want float64
	}{
		{name: "empty", s: nil, p: 0.50, want: 0},
		{name: "single", s: []float64{7}, p: 0.95, want: 7},
		{name: "p_le_0", s: []float64{1, 2, 3}, p: -1, want: 1},
		{name: "p_ge_1", s: []float64{1, 2, 3}, p: 2, want: 3},
		{name: "median", s: []float64{1, 2, 3, 4, 5}, p: 0.50, want: 3},
		{name: "p90_small_n", s: []float64{1, 2, 3, 4, 5}, p: 0.90, want: 5},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := percentileNearestRank(tc.s, tc.p); got != tc.want {
				t.Fatalf("percentileNearestRank(%v,%v)=%v, want %v", tc.s, tc.p, got, tc.want)
			}
		})
	}
}

func TestAddPercentiles_DoesNotMutateSamples(t *testing.T) {
	orig := []float64{5, 1, 3, 2, 4}
	in := append([]float64(nil), orig...)

	var series []datadogV2.MetricSeries
	addPercentiles(&series, []string{"env:test"}, "profiler.builder.duration_seconds", in, 999)

	if len(series) != 6 {
		t.Fatalf("series.len=%d, want 6", len(series))
	}
	if !reflect.DeepEqual(in, orig) {
		t.Fatalf("samples mutated: got %v, want %v", in, orig)
	}
	last := series[5]
	if last.Metric != "profiler.builder.duration_seconds.samples" || *last.Points[0].Value != 5 {
		t.Fatalf("samples gauge=%s %v", last.Metric, *last.Points[0].Value)
	}
	if *series[0].Type != datadogV2.METRICINTAKETYPE_GAUGE || *series[0].Points[0].Timestamp != 999 {
		t.Fatalf("unexpected gauge %+v", series[0])
	}
}

func TestNewBackend_Defaults(t *testing.T) {
	opts := quietOptions(&fakeSubmitter{})
	opts.JobName = ""
	opts.FlushEvery = 0
	opts.Tags = []string{"team:data"}

	b, err := NewBackend(context.Background(), opts)
	if err != nil {
		t.Fatalf("NewBackend() err=%v, want nil", err)
	}
	defer func() { _ = b.Close() }()

	if !contains(b.baseTags, "job:profiler") || !contains(b.baseTags, "team:data") {
		t.Fatalf("baseTags=%v", b.baseTags)
	}
	if b.flushEvery != 60*time.Second {
		t.Fatalf("flushEvery=%s, want 60s", b.flushEvery)
	}
}

func TestFlush_SubmitsAndResets(t *testing.T) {
	fs := &fakeSubmitter{}
	b, err := NewBackend(context.Background(), quietOptions(fs))
	if err != nil {
		t.Fatalf("NewBackend() err=%v", err)
	}
	defer func() { _ = b.Close() }()

	b.IncCounter("profiler_rule_total", 1, metrics.Labels{"rule": "row_count", "status": "ok"})
	b.IncCounter("profiler_rule_total", 1, metrics.Labels{"rule": "row_count", "status": "ok"})
	b.IncCounter("profiler_batches_total", 3, nil)
	b.IncCounter("profiler_metric_configurations_total", 2, metrics.Labels{"metric": "table.row_count"})
	b.ObserveHistogram("profiler_builder_duration_seconds", 0.5, metrics.Labels{"builder": "row_count_range", "status": "ok"})

	if err := b.Flush(); err != nil {
		t.Fatalf("Flush() err=%v, want nil", err)
	}
	if fs.count() != 1 {
		t.Fatalf("submit calls=%d, want 1", fs.count())
	}
	if len(b.counts) != 0 || len(b.samples) != 0 {
		t.Fatalf("buffers not reset after Flush")
	}

	payload, _ := fs.last()
	byName := map[string]datadogV2.MetricSeries{}
	var names []string
	for _, s := range payload.Series {
		byName[s.Metric] = s
		names = append(names, s.Metric)
	}
	sort.Strings(names)

	for _, w := range []string{
		"profiler.batches.total",
		"profiler.metric_configurations.total",
		"profiler.rule.total",
		"profiler.builder.duration_seconds.p50",
		"profiler.builder.duration_seconds.samples",
	} {
		if _, ok := byName[w]; !ok {
			t.Fatalf("payload missing metric %q; got=%v", w, names)
		}
	}

	rule := byName["profiler.rule.total"]
	if *rule.Points[0].Value != 2 {
		t.Fatalf("profiler.rule.total=%v, want 2", *rule.Points[0].Value)
	}
	if !contains(rule.Tags, "rule:row_count") || !contains(rule.Tags, "status:ok") || !contains(rule.Tags, "job:job1") {
		t.Fatalf("profiler.rule.total tags=%v", rule.Tags)
	}
}

func TestFlush_NoDataDoesNotSubmit(t *testing.T) {
	fs := &fakeSubmitter{}
	b, err := NewBackend(context.Background(), quietOptions(fs))
	if err != nil {
		t.Fatalf("NewBackend() err=%v", err)
	}
	defer func() { _ = b.Close() }()

	// unknown names and non-positive values are dropped
	b.IncCounter("unknown_total", 1, metrics.Labels{"x": "y"})
	b.IncCounter("profiler_batches_total", 0, nil)
	b.ObserveHistogram("profiler_builder_duration_seconds", -1, nil)

	if err := b.Flush(); err != nil {
		t.Fatalf("Flush() err=%v, want nil", err)
	}
	if fs.count() != 0 {
		t.Fatalf("unexpected submission count=%d, want 0", fs.count())
	}
}

func TestFlush_ReturnsSubmitError(t *testing.T) {
	fs := &fakeSubmitter{err: errors.New("intake down")}
	b, err := NewBackend(context.Background(), quietOptions(fs))
	if err != nil {
		t.Fatalf("NewBackend() err=%v", err)
	}
	defer func() { fs.err = nil; _ = b.Close() }()

	b.IncCounter("profiler_domains_total", 4, metrics.Labels{"rule": "columns"})
	if err := b.Flush(); err == nil || err.Error() != "intake down" {
		t.Fatalf("Flush() err=%v", err)
	}
	if len(b.counts) != 0 {
		t.Fatalf("buffers must be reset even when submission fails")
	}
}

func TestLoopAndClose(t *testing.T) {
	fs := &fakeSubmitter{}
	b, err := NewBackend(context.Background(), Options{
		JobName:    "job1",
		FlushEvery: 5 * time.Millisecond,
		submitter:  fs,
		now:        func() time.Time { return time.Unix(2000, 0) },
	})
	if err != nil {
		t.Fatalf("NewBackend() err=%v", err)
	}

	b.IncCounter("profiler_batches_total", 1, nil)

	deadline := time.Now().Add(250 * time.Millisecond)
	for time.Now().Before(deadline) && fs.count() < 1 {
		time.Sleep(2 * time.Millisecond)
	}
	if fs.count() < 1 {
		_ = b.Close()
		t.Fatalf("expected at least one background Flush submission; got %d", fs.count())
	}

	b.IncCounter("profiler_batches_total", 1, nil)
	if err := b.Close(); err != nil {
		t.Fatalf("Close() err=%v, want nil", err)
	}
	if fs.count() < 2 {
		t.Fatalf("expected at least 2 submissions after Close; got %d", fs.count())
	}
}

func TestBackend_ConcurrentAccess(t *testing.T) {
	fs := &fakeSubmitter{}
	b, err := NewBackend(context.Background(), quietOptions(fs))
	if err != nil {
		t.Fatalf("NewBackend() err=%v", err)
	}
	defer func() { _ = b.Close() }()

	workers := runtime.GOMAXPROCS(0) * 4
	iters := 2000

	var wg sync.WaitGroup
	wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer wg.Done()
			for j := 0; j < iters; j++ {
				b.IncCounter("profiler_batches_total", 1, nil)
				b.IncCounter("profiler_builder_total", 1, metrics.Labels{"builder": "b", "status": "ok"})
				b.ObserveHistogram("profiler_builder_duration_seconds", 0.01, metrics.Labels{"builder": "b", "status": "ok"})
			}
		}()
	}
	wg.Wait()

	if got := b.counts[seriesKey("profiler.batches.total", nil)]; got != float64(workers*iters) {
		t.Fatalf("batches=%v, want %d", got, workers*iters)
	}
	if err := b.Flush(); err != nil {
		t.Fatalf("Flush() err=%v, want nil", err)
	}
	if fs.count() != 1 {
		t.Fatalf("submit calls=%d, want 1", fs.count())
	}
}

func contains[T comparable](xs []T, v T) bool {
	for _, x := range xs {
		if x == v {
			return true
		}
	}
	return false
}

func TestParseTagsCSV(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		in   string
		want []string
	}{
		{name: "empty_returns_nil", in: "", want: nil},
		{name: "trims_and_skips_empty_segments", in: " env:prod , ,team:data,  ", want: []string{"env:prod", "team:data"}},
		{name: "single_tag", in: "team:data", want: []string{"team:data"}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := ParseTagsCSV(tc.in); !reflect.DeepEqual(got, tc.want) {
				t.Fatalf("ParseTagsCSV(%q)=%v, want %v", tc.in, got, tc.want)
			}
		})
	}
}
