// Package routing holds the model->provider routing table. The table
// replaces the old practice of patching provider selection directly into
// application source: rerouting a model is now an edit to a YAML file and a
// restart, inspectable at runtime through the debug API.
package routing

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Table maps model names to providers. Models without an override resolve to
// the default provider.
type Table struct {
	DefaultProvider string            `yaml:"default_provider" json:"default_provider"`
	Overrides       map[string]string `yaml:"overrides" json:"overrides"`
}

// Default returns the built-in table used when no routing file is configured.
func Default() *Table {
	return &Table{
		DefaultProvider: "openai",
		Overrides:       map[string]string{},
	}
}

// Load reads a routing table from a YAML file. An empty path returns the
// built-in defaults. A file that exists but does not parse, or that names no
// default provider, is a configuration error — misrouting every model is
// worse than refusing to start.
func Load(path string) (*Table, error) {
	if path == "" {
		return Default(), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("routing: read %s: %w", path, err)
	}

	var t Table
	if err := yaml.Unmarshal(data, &t); err != nil {
		return nil, fmt.Errorf("routing: parse %s: %w", path, err)
	}
	if t.DefaultProvider == "" {
		return nil, fmt.Errorf("routing: %s: default_provider is required", path)
	}
	if t.Overrides == nil {
		t.Overrides = map[string]string{}
	}
	return &t, nil
}

// Resolve returns the provider for a model name.
func (t *Table) Resolve(model string) string {
	if p, ok := t.Overrides[model]; ok {
		return p
	}
	return t.DefaultProvider
}
