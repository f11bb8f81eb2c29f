package points

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// AppScope addresses the flat key table in scoped lookups.
const AppScope = "app"

// Definition is one configured point. Everything except Key and ID is
// opaque metadata passed through to clients.
type Definition struct {
	Key     string   `yaml:"key" json:"key"`
	ID      string   `yaml:"id" json:"id"`
	Name    string   `yaml:"name,omitempty" json:"name,omitempty"`
	Type    string   `yaml:"type,omitempty" json:"type,omitempty"`
	Role    string   `yaml:"role,omitempty" json:"role,omitempty"`
	Unit    string   `yaml:"unit,omitempty" json:"unit,omitempty"`
	Min     *float64 `yaml:"min,omitempty" json:"min,omitempty"`
	Max     *float64 `yaml:"max,omitempty" json:"max,omitempty"`
	Default any      `yaml:"default,omitempty" json:"default,omitempty"`

	// Filled in by the resolver.
	Scope      string `yaml:"-" json:"scope,omitempty"`
	LogicalKey string `yaml:"-" json:"logicalKey"`
}

// HasDefault reports whether a default value is configured.
func (d Definition) HasDefault() bool {
	return d.Default != nil
}

// Scope is a named group of points. Writes into a privileged scope need
// an installer session.
type Scope struct {
	Name       string       `yaml:"name"`
	Privileged bool         `yaml:"privileged"`
	Points     []Definition `yaml:"points"`
}

// Table is the raw mapping as read from configuration.
type Table struct {
	Points []Definition `yaml:"points"`
	Scopes []Scope      `yaml:"scopes"`
}

// LoadFile reads a Table from a YAML file.
func LoadFile(path string) (*Table, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading points file: %w", err)
	}
	return Parse(data)
}

// Parse decodes a Table from YAML.
func Parse(data []byte) (*Table, error) {
	var t Table
	if err := yaml.Unmarshal(data, &t); err != nil {
		return nil, fmt.Errorf("parsing points file: %w", err)
	}
	return &t, nil
}
