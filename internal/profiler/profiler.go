// Package profiler runs rules: each rule asks its domain builder for
// domains, builds its parameters for every domain and resolves its
// expectation configurations against them.
package profiler

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"profiler/internal/builder"
	"profiler/internal/datasource"
	"profiler/internal/domain"
	"profiler/internal/domainbuilder"
	"profiler/internal/execution"
	"profiler/internal/expectation"
	"profiler/internal/logging"
	"profiler/internal/metrics"
	"profiler/internal/parameter"
	"profiler/internal/storage"
)

// Rule is one named profiling rule.
type Rule struct {
	Name string
	// Variables override the profiler's variables key by key.
	Variables map[string]any
	// BatchRequest overrides the profiler's default request for this rule.
	BatchRequest *datasource.Request

	DomainBuilder       domainbuilder.Builder
	ParameterBuilders   []builder.ParameterBuilder
	ExpectationBuilders []expectation.Builder
}

// Profiler evaluates its rules against one engine and batch provider.
type Profiler struct {
	Name      string
	Variables map[string]any
	Rules     []Rule

	Engine       execution.Engine
	Batches      datasource.Provider
	BatchRequest *datasource.Request

	// Store, when set, receives every run.
	Store storage.ResultStore

	// test seams
	now   func() time.Time
	newID func() string
}

// DomainResult is what one rule produced for one domain.
type DomainResult struct {
	Domain       domain.Domain               `json:"-"`
	DomainID     string                      `json:"domain_id"`
	DomainType   domain.Type                 `json:"domain_type"`
	DomainKwargs map[string]any              `json:"domain_kwargs"`
	Parameters   map[string]parameter.Value  `json:"parameters"`
	Expectations []expectation.Configuration `json:"expectations,omitempty"`
}

// RuleResult groups the domain results of one rule.
type RuleResult struct {
	Rule    string         `json:"rule"`
	Domains []DomainResult `json:"domains"`
}

// Result is one profiler run.
type Result struct {
	RunID     string       `json:"run_id"`
	Profiler  string       `json:"profiler"`
	StartedAt time.Time    `json:"started_at"`
	Rules     []RuleResult `json:"rules"`
	// Suite holds every expectation configuration, in rule then domain order.
	Suite []expectation.Configuration `json:"suite"`
}

// Run evaluates every rule in name order.
//
// Edge cases:
//   - A rule whose domain builder yields no domains contributes an empty
//     RuleResult.
//   - Each domain gets a fresh parameter container; builders of one rule see
//     the parameters of earlier builders for the same domain only.
//
// Errors:
//   - The first failing rule stops the run; the error names the rule. Nothing
//     is stored for a failed run.
func (p *Profiler) Run(ctx context.Context) (Result, error) {
	now, newID := time.Now, uuid.NewString
	if p.now != nil {
		now = p.now
	}
	if p.newID != nil {
		newID = p.newID
	}

	res := Result{RunID: newID(), Profiler: p.Name, StartedAt: now().UTC()}
	log := logging.New("profiler").With("profiler", p.Name, "run_id", res.RunID)

	rules := append([]Rule(nil), p.Rules...)
	sort.SliceStable(rules, func(i, j int) bool { return rules[i].Name < rules[j].Name })

	for _, r := range rules {
		rr, err := p.runRule(ctx, r)
		if err != nil {
			return Result{}, fmt.Errorf("rule %q: %w", r.Name, err)
		}
		res.Rules = append(res.Rules, rr)
		for _, d := range rr.Domains {
			res.Suite = append(res.Suite, d.Expectations...)
		}
	}
	log.Info("profiler run finished", "rules", len(res.Rules), "expectations", len(res.Suite))

	if p.Store != nil {
		if err := p.Store.SaveRun(ctx, res.StorageRun()); err != nil {
			return Result{}, fmt.Errorf("save run %s: %w", res.RunID, err)
		}
	}
	return res, nil
}

func (p *Profiler) runRule(ctx context.Context, r Rule) (_ RuleResult, err error) {
	start := time.Now()
	defer func() {
		status := "ok"
		if err != nil {
			status = "error"
		}
		labels := metrics.Labels{"rule": r.Name, "status": status}
		metrics.IncCounter("profiler_rule_total", labels)
		metrics.ObserveDuration("profiler_rule_duration_seconds", start, labels)
	}()

	if r.DomainBuilder == nil {
		return RuleResult{}, fmt.Errorf("%w: no domain builder", domainbuilder.ErrProfilerConfiguration)
	}

	variables := parameter.NewVariables(mergeVariables(p.Variables, r.Variables))
	deps := builder.Deps{Engine: p.Engine, Batches: p.Batches, BatchRequest: p.BatchRequest}
	if r.BatchRequest != nil {
		deps.BatchRequest = r.BatchRequest
	}

	domains, err := r.DomainBuilder.GetDomains(ctx, variables, deps)
	if err != nil {
		return RuleResult{}, fmt.Errorf("domain builder: %w", err)
	}
	domains = uniqueDomains(domains)
	metrics.AddCounter("profiler_domains_total", float64(len(domains)), metrics.Labels{"rule": r.Name})
	logging.New("profiler").Debug("domains built", "rule", r.Name, "domains", len(domains))

	// one container per domain, keyed by domain ID
	parameters := make(map[string]*parameter.Container, len(domains))
	out := RuleResult{Rule: r.Name, Domains: make([]DomainResult, 0, len(domains))}
	for _, d := range domains {
		c := parameter.NewContainer()
		parameters[d.ID()] = c

		for _, pb := range r.ParameterBuilders {
			if err := builder.BuildParameters(ctx, pb, c, d, variables, parameters, deps); err != nil {
				return RuleResult{}, fmt.Errorf("domain %s: %w", d, err)
			}
		}

		dr := DomainResult{
			Domain:       d,
			DomainID:     d.ID(),
			DomainType:   d.Type(),
			DomainKwargs: d.Kwargs(),
			Parameters:   c.Records(),
		}
		resolver := parameter.Resolver{Domain: d, Variables: variables, Parameters: parameters}
		for _, eb := range r.ExpectationBuilders {
			cfg, err := eb.Build(resolver)
			if err != nil {
				return RuleResult{}, fmt.Errorf("domain %s: %w", d, err)
			}
			dr.Expectations = append(dr.Expectations, cfg)
		}
		out.Domains = append(out.Domains, dr)
	}
	return out, nil
}

// mergeVariables overlays rule variables on profiler variables.
func mergeVariables(base, override map[string]any) map[string]any {
	out := make(map[string]any, len(base)+len(override))
	for k, v := range base {
		out[k] = v
	}
	for k, v := range override {
		out[k] = v
	}
	return out
}

// StorageRun flattens the result into a storage.Run, records ordered by
// rule, domain and parameter name.
func (r Result) StorageRun() storage.Run {
	run := storage.Run{ID: r.RunID, Profiler: r.Profiler, StartedAt: r.StartedAt}
	for _, rr := range r.Rules {
		for _, d := range rr.Domains {
			names := make([]string, 0, len(d.Parameters))
			for n := range d.Parameters {
				names = append(names, n)
			}
			sort.Strings(names)
			for _, n := range names {
				v := d.Parameters[n]
				run.Records = append(run.Records, storage.Record{
					Rule:         rr.Rule,
					DomainID:     d.DomainID,
					DomainType:   string(d.DomainType),
					DomainKwargs: d.DomainKwargs,
					Name:         n,
					Value:        v.Value,
					Details:      v.Details,
				})
			}
		}
	}
	return run
}

// uniqueDomains drops repeated domains, keeping the first of each ID.
func uniqueDomains(domains []domain.Domain) []domain.Domain {
	seen := make(map[string]bool, len(domains))
	out := make([]domain.Domain, 0, len(domains))
	for _, d := range domains {
		if seen[d.ID()] {
			continue
		}
		seen[d.ID()] = true
		out = append(out, d)
	}
	return out
}
