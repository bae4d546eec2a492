package config

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/go-playground/validator/v10"

	"profiler/internal/registry"
)

// Severity classifies a validation issue.
type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
)

// Issue is one validation finding. Path points into the configuration,
// e.g. "rules.row_count.parameter_builders[0].name".
type Issue struct {
	Severity Severity
	Path     string
	Message  string
}

func (i Issue) String() string {
	return fmt.Sprintf("%s: %s: %s", i.Severity, i.Path, i.Message)
}

// HasErrors reports whether any issue is an error.
func HasErrors(issues []Issue) bool {
	for _, iss := range issues {
		if iss.Severity == SeverityError {
			return true
		}
	}
	return false
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// ValidateProfiler checks struct constraints, then the semantic rules:
// known class names, unique datasource/asset names, unique parameter builder
// names per rule, and batch requests that name a configured asset.
//
// Builder-specific settings are checked when the builders are constructed.
func ValidateProfiler(p Profiler) []Issue {
	var issues []Issue
	add := func(sev Severity, path, format string, a ...any) {
		issues = append(issues, Issue{Severity: sev, Path: path, Message: fmt.Sprintf(format, a...)})
	}

	if err := validate.Struct(p); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			for _, fe := range verrs {
				add(SeverityError, fieldPath(fe.Namespace()), "failed %q validation", fe.Tag())
			}
		} else {
			add(SeverityError, "", "%v", err)
		}
	}

	assets := map[string]bool{}
	seenDS := map[string]bool{}
	for i, ds := range p.Datasources {
		path := fmt.Sprintf("datasources[%d]", i)
		if seenDS[ds.Name] {
			add(SeverityError, path+".name", "duplicate datasource %q", ds.Name)
		}
		seenDS[ds.Name] = true
		for j, a := range ds.Assets {
			key := ds.Name + "/" + a.Name
			if assets[key] {
				add(SeverityError, fmt.Sprintf("%s.assets[%d].name", path, j), "duplicate asset %q", a.Name)
			}
			assets[key] = true
		}
	}
	checkRequest := func(path string, ds, asset string) {
		if len(p.Datasources) > 0 && !assets[ds+"/"+asset] {
			add(SeverityError, path, "batch request names unknown asset %s/%s", ds, asset)
		}
	}
	if p.BatchRequest != nil {
		checkRequest("batch_request", p.BatchRequest.Datasource, p.BatchRequest.Asset)
	}

	for _, name := range sortedRuleNames(p.Rules) {
		r := p.Rules[name]
		base := "rules." + name
		if r.BatchRequest != nil {
			checkRequest(base+".batch_request", r.BatchRequest.Datasource, r.BatchRequest.Asset)
		}

		if r.DomainBuilder != nil {
			checkClass(add, base+".domain_builder", registry.KindDomain, r.DomainBuilder, false)
		}

		names := map[string]bool{}
		for i, pb := range r.ParameterBuilders {
			path := fmt.Sprintf("%s.parameter_builders[%d]", base, i)
			checkClass(add, path, registry.KindParameter, pb, false)
			n, _ := pb["name"].(string)
			switch {
			case n == "":
				add(SeverityError, path+".name", "parameter builder name is required")
			case names[n]:
				add(SeverityError, path+".name", "duplicate parameter builder name %q", n)
			}
			names[n] = true
		}

		for i, eb := range r.ExpectationBuilders {
			path := fmt.Sprintf("%s.expectation_configuration_builders[%d]", base, i)
			checkClass(add, path, registry.KindExpectation, eb, true)
			if t, _ := eb["expectation_type"].(string); t == "" {
				add(SeverityError, path+".expectation_type", "expectation_type is required")
			}
		}

		if len(r.ParameterBuilders) == 0 && len(r.ExpectationBuilders) == 0 {
			add(SeverityWarning, base, "rule has no parameter or expectation configuration builders")
		}
	}
	return issues
}

func checkClass(add func(Severity, string, string, ...any), path string, kind registry.Kind, cfg map[string]any, optional bool) {
	class, ok := registry.ClassName(cfg)
	if !ok {
		if !optional {
			add(SeverityError, path+".class_name", "class_name is required")
		}
		return
	}
	if !registry.Known(kind, class) {
		add(SeverityError, path+".class_name", "unknown %s class %q; known: %s",
			kind, class, strings.Join(registry.Classes(kind), ", "))
	}
}

func sortedRuleNames(rules map[string]Rule) []string {
	out := make([]string, 0, len(rules))
	for k := range rules {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// fieldPath turns a validator namespace ("Profiler.Datasources[0].Name")
// into a configuration path ("datasources[0].name").
func fieldPath(ns string) string {
	parts := strings.Split(ns, ".")
	if len(parts) > 1 {
		parts = parts[1:]
	}
	for i, p := range parts {
		parts[i] = snake(p)
	}
	return strings.Join(parts, ".")
}

func snake(s string) string {
	var b strings.Builder
	inIndex := false
	for i, r := range s {
		switch {
		case r == '[':
			inIndex = true
		case r == ']':
			inIndex = false
		case !inIndex && r >= 'A' && r <= 'Z':
			if i > 0 {
				b.WriteByte('_')
			}
			r += 'a' - 'A'
		}
		b.WriteRune(r)
	}
	return b.String()
}
