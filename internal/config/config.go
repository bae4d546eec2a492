// Package config loads and validates profiler configuration files.
//
// A configuration names the datasources to load, the variables shared by all
// rules, and the rules themselves. Builder entries stay raw mappings here;
// internal/registry turns them into builders.
package config

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"profiler/internal/datasource"
)

// Profiler is the top-level configuration.
type Profiler struct {
	Name          string         `json:"name" yaml:"name" validate:"required"`
	ConfigVersion float64        `json:"config_version,omitempty" yaml:"config_version,omitempty" validate:"omitempty,gte=1"`
	Variables     map[string]any `json:"variables,omitempty" yaml:"variables,omitempty"`

	// BatchRequest is the default for rules and builders that name none.
	BatchRequest *datasource.Request `json:"batch_request,omitempty" yaml:"batch_request,omitempty"`

	Datasources []Datasource    `json:"datasources,omitempty" yaml:"datasources,omitempty" validate:"dive"`
	Rules       map[string]Rule `json:"rules" yaml:"rules" validate:"required,min=1,dive"`
}

// Datasource groups assets loaded from files.
type Datasource struct {
	Name   string  `json:"name" yaml:"name" validate:"required"`
	Assets []Asset `json:"assets" yaml:"assets" validate:"required,min=1,dive"`
}

// Asset is one table; every path becomes one batch, in order.
type Asset struct {
	Name             string   `json:"name" yaml:"name" validate:"required"`
	Format           string   `json:"format,omitempty" yaml:"format,omitempty" validate:"omitempty,oneof=csv json html"`
	Paths            []string `json:"paths" yaml:"paths" validate:"required,min=1,dive,required"`
	Delimiter        string   `json:"delimiter,omitempty" yaml:"delimiter,omitempty"`
	Selector         string   `json:"selector,omitempty" yaml:"selector,omitempty"`
	NormalizeHeaders bool     `json:"normalize_headers,omitempty" yaml:"normalize_headers,omitempty"`
}

// LoadOptions converts the asset settings for datasource.LoadFile.
func (a Asset) LoadOptions() datasource.LoadOptions {
	return datasource.LoadOptions{
		Format:           a.Format,
		Delimiter:        a.Delimiter,
		Selector:         a.Selector,
		NormalizeHeaders: a.NormalizeHeaders,
	}
}

// Rule is one named rule. Builder entries are mappings with a class_name
// plus the builder's own keys.
type Rule struct {
	Variables     map[string]any      `json:"variables,omitempty" yaml:"variables,omitempty"`
	BatchRequest  *datasource.Request `json:"batch_request,omitempty" yaml:"batch_request,omitempty"`
	DomainBuilder map[string]any      `json:"domain_builder" yaml:"domain_builder" validate:"required"`

	ParameterBuilders   []map[string]any `json:"parameter_builders,omitempty" yaml:"parameter_builders,omitempty"`
	ExpectationBuilders []map[string]any `json:"expectation_configuration_builders,omitempty" yaml:"expectation_configuration_builders,omitempty"`
}

// Load reads a configuration file. ".json" files are decoded as JSON,
// everything else as YAML. Relative asset paths are resolved against the
// file's directory.
func Load(path string) (Profiler, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Profiler{}, fmt.Errorf("read config: %w", err)
	}
	format := "yaml"
	if strings.EqualFold(filepath.Ext(path), ".json") {
		format = "json"
	}
	p, err := Decode(raw, format)
	if err != nil {
		return Profiler{}, fmt.Errorf("decode config %s: %w", path, err)
	}
	p.resolvePaths(filepath.Dir(path))
	return p, nil
}

// Decode parses raw as "json" or "yaml". Unknown keys are rejected.
func Decode(raw []byte, format string) (Profiler, error) {
	var p Profiler
	switch format {
	case "json":
		dec := json.NewDecoder(bytes.NewReader(raw))
		dec.DisallowUnknownFields()
		if err := dec.Decode(&p); err != nil {
			return Profiler{}, err
		}
	case "yaml", "yml":
		dec := yaml.NewDecoder(bytes.NewReader(raw))
		dec.KnownFields(true)
		if err := dec.Decode(&p); err != nil {
			return Profiler{}, err
		}
	default:
		return Profiler{}, fmt.Errorf("unsupported config format %q", format)
	}
	return p, nil
}

func (p *Profiler) resolvePaths(dir string) {
	for i := range p.Datasources {
		for j := range p.Datasources[i].Assets {
			paths := p.Datasources[i].Assets[j].Paths
			for k, path := range paths {
				if path != "" && !filepath.IsAbs(path) {
					paths[k] = filepath.Join(dir, path)
				}
			}
		}
	}
}
