// Package registry maps configuration class names to builder types and
// decodes builder configuration mappings into them.
package registry

import (
	"bytes"
	"errors"
	"fmt"
	"sort"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"profiler/internal/builder"
	"profiler/internal/domainbuilder"
	"profiler/internal/expectation"
)

// Kind is a builder family.
type Kind string

const (
	KindDomain      Kind = "domain_builder"
	KindParameter   Kind = "parameter_builder"
	KindExpectation Kind = "expectation_configuration_builder"
)

// DefaultExpectationClass is used when an expectation configuration
// builder names no class.
const DefaultExpectationClass = "DefaultExpectationConfigurationBuilder"

// ErrUnknownClass is returned for a class name not registered for a kind.
var ErrUnknownClass = errors.New("unknown builder class")

var domainBuilders = map[string]func() domainbuilder.Builder{
	"TableDomainBuilder":             func() domainbuilder.Builder { return &domainbuilder.Table{} },
	"ColumnDomainBuilder":            func() domainbuilder.Builder { return &domainbuilder.Column{} },
	"CategoricalColumnDomainBuilder": func() domainbuilder.Builder { return &domainbuilder.CategoricalColumn{} },
}

var parameterBuilders = map[string]func() builder.ParameterBuilder{
	"NumericMetricRangeMultiBatchParameterBuilder": func() builder.ParameterBuilder { return &builder.NumericMetricRange{} },
	"ValueSetMultiBatchParameterBuilder":           func() builder.ParameterBuilder { return &builder.ValueSet{} },
	"SimpleDateFormatStringParameterBuilder":       func() builder.ParameterBuilder { return &builder.SimpleDateFormatString{} },
	"RegexPatternStringParameterBuilder":           func() builder.ParameterBuilder { return &builder.RegexPatternString{} },
	"MetricMultiBatchParameterBuilder":             func() builder.ParameterBuilder { return &builder.MetricMultiBatch{} },
}

var expectationBuilders = map[string]func() expectation.Builder{
	DefaultExpectationClass: func() expectation.Builder { return &expectation.Default{} },
}

// Classes lists the registered class names of a kind, sorted.
func Classes(kind Kind) []string {
	var out []string
	switch kind {
	case KindDomain:
		out = keys(domainBuilders)
	case KindParameter:
		out = keys(parameterBuilders)
	case KindExpectation:
		out = keys(expectationBuilders)
	}
	sort.Strings(out)
	return out
}

// Known reports whether class is registered for kind.
func Known(kind Kind, class string) bool {
	switch kind {
	case KindDomain:
		_, ok := domainBuilders[class]
		return ok
	case KindParameter:
		_, ok := parameterBuilders[class]
		return ok
	case KindExpectation:
		_, ok := expectationBuilders[class]
		return ok
	}
	return false
}

func keys[V any](m map[string]V) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	return out
}

// ClassName returns the class_name entry of cfg.
func ClassName(cfg map[string]any) (string, bool) {
	s, ok := cfg["class_name"].(string)
	return s, ok && s != ""
}

// NewDomainBuilder builds a domain builder from its configuration mapping.
func NewDomainBuilder(cfg map[string]any) (domainbuilder.Builder, error) {
	class, ok := ClassName(cfg)
	if !ok {
		return nil, fmt.Errorf("%s: class_name is required", KindDomain)
	}
	f, ok := domainBuilders[class]
	if !ok {
		return nil, unknown(KindDomain, class)
	}
	b := f()
	if err := decode(cfg, b); err != nil {
		return nil, fmt.Errorf("%s %s: %w", KindDomain, class, err)
	}
	return b, nil
}

// NewParameterBuilder builds a parameter builder from its configuration
// mapping.
func NewParameterBuilder(cfg map[string]any) (builder.ParameterBuilder, error) {
	class, ok := ClassName(cfg)
	if !ok {
		return nil, fmt.Errorf("%s: class_name is required", KindParameter)
	}
	f, ok := parameterBuilders[class]
	if !ok {
		return nil, unknown(KindParameter, class)
	}
	b := f()
	if err := decode(cfg, b); err != nil {
		return nil, fmt.Errorf("%s %s: %w", KindParameter, class, err)
	}
	return b, nil
}

// NewExpectationBuilder builds an expectation configuration builder. A
// missing class_name selects DefaultExpectationClass.
func NewExpectationBuilder(cfg map[string]any) (expectation.Builder, error) {
	class, ok := ClassName(cfg)
	if !ok {
		class = DefaultExpectationClass
	}
	f, ok := expectationBuilders[class]
	if !ok {
		return nil, unknown(KindExpectation, class)
	}
	b := f()
	if err := decode(cfg, b); err != nil {
		return nil, fmt.Errorf("%s %s: %w", KindExpectation, class, err)
	}
	return b, nil
}

func unknown(kind Kind, class string) error {
	return fmt.Errorf("%w: %s %q (known: %v)", ErrUnknownClass, kind, class, Classes(kind))
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// decode round-trips cfg through YAML into out, rejecting unknown keys, then
// runs struct validation and the builder's own Validate when it has one.
func decode(cfg map[string]any, out any) error {
	m := make(map[string]any, len(cfg))
	for k, v := range cfg {
		if k == "class_name" || k == "module_name" {
			continue
		}
		m[k] = v
	}
	raw, err := yaml.Marshal(m)
	if err != nil {
		return err
	}
	dec := yaml.NewDecoder(bytes.NewReader(raw))
	dec.KnownFields(true)
	if err := dec.Decode(out); err != nil {
		return err
	}
	if err := validate.Struct(out); err != nil {
		var invalid *validator.InvalidValidationError
		if !errors.As(err, &invalid) {
			return err
		}
	}
	if v, ok := out.(interface{ Validate() error }); ok {
		return v.Validate()
	}
	return nil
}
