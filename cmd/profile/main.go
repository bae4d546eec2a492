// Command profile runs a rule-based profiler over local data files and
// prints the built parameters and expectation suite as JSON.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"profiler/internal/config"
	"profiler/internal/logging"
	"profiler/internal/metrics"
	"profiler/internal/metrics/datadog"
	"profiler/internal/metrics/prompush"
	"profiler/internal/profiler"
	"profiler/internal/storage"

	// register all backends with the storage factory.
	_ "profiler/internal/storage/all"
)

const defaultPushgatewayURL = "http://localhost:9091"

// runner executes one profiler run.
type runner interface {
	Run(ctx context.Context) (profiler.Result, error)
}

// appDeps are the side-effecting seams of runMain.
type appDeps struct {
	loadConfig  func(path string) (config.Profiler, error)
	openStore   func(ctx context.Context, cfg storage.Config) (storage.ResultStore, error)
	newRunner   func(ctx context.Context, cfg config.Profiler, store storage.ResultStore) (runner, error)
	initMetrics func(ctx context.Context, jobName, backendName, gatewayURL string) (func(), error)
}

func defaultDeps() appDeps {
	return appDeps{
		loadConfig:  config.Load,
		openStore:   storage.New,
		newRunner:   newProfilerRunner,
		initMetrics: initMetrics,
	}
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := runMain(ctx, os.Args[1:], os.Stdout, os.Stderr, defaultDeps())
	stop()
	os.Exit(code)
}

// runMain is main without the process exit. Usage errors return 2, every
// other failure 1.
func runMain(ctx context.Context, args []string, stdout, stderr io.Writer, deps appDeps) int {
	fs := flag.NewFlagSet("profile", flag.ContinueOnError)
	fs.SetOutput(stderr)

	var (
		cfgPath    string
		storeKind  string
		dsn        string
		backend    string
		gatewayURL string
		logLevel   string
		logFormat  string
		showRun    string
		validate   bool
		pretty     bool
	)
	fs.StringVar(&cfgPath, "config", "", "profiler config path (.yaml or .json)")
	fs.StringVar(&storeKind, "store-kind", "", "result store backend: "+strings.Join(storage.Kinds(), "|")+" (overrides env PROFILER_STORE_KIND)")
	fs.StringVar(&dsn, "dsn", "", "result store DSN (overrides env PROFILER_STORE_DSN)")
	fs.StringVar(&backend, "metrics-backend", "", "metrics backend: none|datadog|pushgateway (overrides env METRICS_BACKEND)")
	fs.StringVar(&gatewayURL, "pushgateway-url", "", "Pushgateway base URL (overrides env PUSHGATEWAY_URL)")
	fs.StringVar(&logLevel, "log-level", "info", "log level: debug|info|warn|error")
	fs.StringVar(&logFormat, "log-format", "text", "log format: text|json")
	fs.StringVar(&showRun, "show-run", "", "print the stored parameters of a run ID and exit (needs a store)")
	fs.BoolVar(&validate, "validate", false, "validate the configuration and exit")
	fs.BoolVar(&pretty, "pretty", false, "indent the JSON output")

	if err := fs.Parse(args); err != nil {
		return 2
	}
	if strings.TrimSpace(cfgPath) == "" && showRun == "" {
		fmt.Fprintln(stderr, "usage: profile -config path/to/profiler.yaml [-store-kind sqlite -dsn file.db]")
		fmt.Fprintln(stderr, "       profile -show-run RUN_ID -store-kind sqlite -dsn file.db")
		return 2
	}
	if err := logging.Init(logLevel, logFormat, stderr); err != nil {
		fmt.Fprintf(stderr, "usage: %v\n", err)
		return 2
	}
	// Decide each setting: flag → env → default.
	storeKind = firstNonEmpty(storeKind, os.Getenv("PROFILER_STORE_KIND"))
	dsn = firstNonEmpty(dsn, os.Getenv("PROFILER_STORE_DSN"))

	if showRun != "" {
		return showStoredRun(ctx, showRun, storage.Config{Kind: storeKind, DSN: dsn}, stdout, stderr, deps, pretty)
	}

	cfg, err := deps.loadConfig(cfgPath)
	if err != nil {
		fmt.Fprintf(stderr, "load config: %v\n", err)
		return 1
	}

	issues := config.ValidateProfiler(cfg)
	for _, iss := range issues {
		fmt.Fprintln(stderr, iss.String())
	}
	if config.HasErrors(issues) {
		fmt.Fprintf(stderr, "configuration is invalid: %s\n", cfgPath)
		return 1
	}
	if validate {
		fmt.Fprintf(stdout, "configuration is valid: %s\n", cfgPath)
		return 0
	}

	backend = firstNonEmpty(backend, os.Getenv("METRICS_BACKEND"), "none")
	gatewayURL = firstNonEmpty(gatewayURL, os.Getenv("PUSHGATEWAY_URL"), defaultPushgatewayURL)

	cleanup, err := deps.initMetrics(ctx, cfg.Name, backend, gatewayURL)
	if err != nil {
		fmt.Fprintf(stderr, "init metrics: %v\n", err)
		return 1
	}
	defer cleanup()

	var store storage.ResultStore
	if storeKind != "" {
		store, err = deps.openStore(ctx, storage.Config{Kind: storeKind, DSN: dsn})
		if err != nil {
			fmt.Fprintf(stderr, "open store: %v\n", err)
			return 1
		}
		defer store.Close()
		if err := store.EnsureSchema(ctx); err != nil {
			fmt.Fprintf(stderr, "ensure schema: %v\n", err)
			return 1
		}
	}

	r, err := deps.newRunner(ctx, cfg, store)
	if err != nil {
		fmt.Fprintf(stderr, "build profiler: %v\n", err)
		return 1
	}

	start := time.Now()
	res, err := r.Run(ctx)
	if err != nil {
		fmt.Fprintf(stderr, "run: %v\n", err)
		return 1
	}
	logging.New("cmd").Info("profiler completed",
		"profiler", cfg.Name, "run_id", res.RunID, "elapsed", time.Since(start).Truncate(time.Millisecond))

	if err := writeJSON(stdout, res, pretty); err != nil {
		fmt.Fprintf(stderr, "write result: %v\n", err)
		return 1
	}
	return 0
}

// showStoredRun prints the parameter records of one stored run.
func showStoredRun(ctx context.Context, runID string, cfg storage.Config, stdout, stderr io.Writer, deps appDeps, pretty bool) int {
	if cfg.Kind == "" {
		fmt.Fprintln(stderr, "usage: -show-run needs -store-kind (or PROFILER_STORE_KIND)")
		return 2
	}
	store, err := deps.openStore(ctx, cfg)
	if err != nil {
		fmt.Fprintf(stderr, "open store: %v\n", err)
		return 1
	}
	defer store.Close()

	recs, err := store.LoadParameters(ctx, runID)
	if err != nil {
		fmt.Fprintf(stderr, "load run %s: %v\n", runID, err)
		return 1
	}
	if err := writeJSON(stdout, recs, pretty); err != nil {
		fmt.Fprintf(stderr, "write result: %v\n", err)
		return 1
	}
	return 0
}

func writeJSON(w io.Writer, v any, pretty bool) error {
	enc := json.NewEncoder(w)
	if pretty {
		enc.SetIndent("", "  ")
	}
	return enc.Encode(v)
}

// newProfilerRunner loads the configured datasources and builds a profiler
// over them with the in-memory engine.
func newProfilerRunner(ctx context.Context, cfg config.Profiler, store storage.ResultStore) (runner, error) {
	cat, err := profiler.LoadDatasources(ctx, cfg)
	if err != nil {
		return nil, err
	}
	var opts []profiler.Option
	if store != nil {
		opts = append(opts, profiler.WithStore(store))
	}
	return profiler.New(cfg, cat, opts...)
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

// ---- metrics ----

type metricsBackend interface {
	Close() error
}

// pushBackend pushes everything collected once, at shutdown.
type pushBackend interface {
	Flush() error
}

// Seams for tests.
var newDatadogBackend = func(ctx context.Context, opts datadog.Options) (metricsBackend, error) {
	return datadog.NewBackend(ctx, opts)
}

var newPushBackend = func(job, url string) (pushBackend, error) {
	return prompush.NewBackend(job, url)
}

var setMetricsBackend = func(b any) {
	if mb, ok := b.(metrics.Backend); ok {
		metrics.SetBackend(mb)
	}
}

var logPrintf = log.Printf

// initMetrics wires the named metrics backend into the metrics package. The
// returned cleanup is never nil and flushes what was collected.
func initMetrics(ctx context.Context, jobName, backendName, gatewayURL string) (func(), error) {
	if jobName == "" {
		jobName = "profiler"
	}
	switch backendName {
	case "", "none", "noop":
		return func() {}, nil

	case "datadog", "dd":
		// Datadog flushes on a ticker and once more on Close.
		b, err := newDatadogBackend(ctx, datadog.Options{
			JobName:    jobName,
			Tags:       datadog.ParseTagsCSV(os.Getenv("METRICS_TAGS")),
			FlushEvery: 60 * time.Second,
		})
		if err != nil {
			return func() {}, err
		}
		setMetricsBackend(b)
		return func() {
			if err := b.Close(); err != nil {
				logPrintf("metrics: datadog close error: %v", err)
			}
		}, nil

	case "pushgateway", "prometheus":
		if gatewayURL == "" {
			gatewayURL = defaultPushgatewayURL
		}
		b, err := newPushBackend(jobName, gatewayURL)
		if err != nil {
			return func() {}, err
		}
		setMetricsBackend(b)
		return func() {
			if err := b.Flush(); err != nil {
				logPrintf("metrics: pushgateway flush error: %v", err)
			}
		}, nil

	default:
		return func() {}, fmt.Errorf("unknown metrics backend %q (want none|datadog|pushgateway)", backendName)
	}
}
