package profiler

import (
	"context"
	"fmt"
	"sort"

	"profiler/internal/config"
	"profiler/internal/datasource"
	"profiler/internal/execution"
	"profiler/internal/execution/memory"
	"profiler/internal/logging"
	"profiler/internal/registry"
	"profiler/internal/storage"
)

// Option configures a Profiler built by New.
type Option func(*Profiler)

// WithStore saves every run to s.
func WithStore(s storage.ResultStore) Option {
	return func(p *Profiler) { p.Store = s }
}

// WithEngine replaces the in-memory engine.
func WithEngine(e execution.Engine) Option {
	return func(p *Profiler) { p.Engine = e }
}

// LoadDatasources loads every configured asset into a new catalog, one
// batch per path, in path order.
func LoadDatasources(ctx context.Context, cfg config.Profiler) (*datasource.Catalog, error) {
	log := logging.New("datasource")
	cat := datasource.NewCatalog()
	for _, ds := range cfg.Datasources {
		for _, a := range ds.Assets {
			batches, err := cat.LoadAsset(ctx, ds.Name, a.Name, a.Paths, a.LoadOptions())
			if err != nil {
				return nil, fmt.Errorf("datasource %s/%s: %w", ds.Name, a.Name, err)
			}
			log.Debug("asset loaded", "datasource", ds.Name, "asset", a.Name, "batches", len(batches))
		}
	}
	return cat, nil
}

// New builds a profiler from configuration over the batches of cat. Unless
// WithEngine is given, metrics are computed by the in-memory engine.
func New(cfg config.Profiler, cat *datasource.Catalog, opts ...Option) (*Profiler, error) {
	p := &Profiler{
		Name:         cfg.Name,
		Variables:    cfg.Variables,
		Batches:      cat,
		BatchRequest: cfg.BatchRequest,
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.Engine == nil {
		if cat == nil {
			return nil, fmt.Errorf("profiler %q: no engine and no catalog", cfg.Name)
		}
		p.Engine = memory.New(cat)
	}

	names := make([]string, 0, len(cfg.Rules))
	for n := range cfg.Rules {
		names = append(names, n)
	}
	sort.Strings(names)

	for _, name := range names {
		r, err := buildRule(name, cfg.Rules[name])
		if err != nil {
			return nil, fmt.Errorf("rule %q: %w", name, err)
		}
		p.Rules = append(p.Rules, r)
	}
	return p, nil
}

func buildRule(name string, rc config.Rule) (Rule, error) {
	r := Rule{Name: name, Variables: rc.Variables, BatchRequest: rc.BatchRequest}

	db, err := registry.NewDomainBuilder(rc.DomainBuilder)
	if err != nil {
		return Rule{}, err
	}
	r.DomainBuilder = db

	for i, m := range rc.ParameterBuilders {
		pb, err := registry.NewParameterBuilder(m)
		if err != nil {
			return Rule{}, fmt.Errorf("parameter_builders[%d]: %w", i, err)
		}
		r.ParameterBuilders = append(r.ParameterBuilders, pb)
	}
	for i, m := range rc.ExpectationBuilders {
		eb, err := registry.NewExpectationBuilder(m)
		if err != nil {
			return Rule{}, fmt.Errorf("expectation_configuration_builders[%d]: %w", i, err)
		}
		r.ExpectationBuilders = append(r.ExpectationBuilders, eb)
	}
	return r, nil
}
