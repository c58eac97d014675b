// Package unify implements the Unifier (spec.md §4.8): a one-shot tool
// that merges N per-domain event logs into one canonical log, or copies
// an already-unified store wholesale in --copy mode.
package unify

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Connection is one alias block of the config file: where to read the
// per-domain sources from, where to write the merged result, and which
// domain database maps to which event namespace.
type Connection struct {
	SourceDBURI string            `yaml:"source_db_uri"`
	DestDBURI   string            `yaml:"dest_db_uri"`
	Domains     map[string]string `yaml:"domains"`
}

// Config is the top-level document: alias -> Connection.
type Config map[string]Connection

// LoadConfig reads and parses the YAML config file at path.
func LoadConfig(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("unify: reading config %s: %w", path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("unify: parsing config %s: %w", path, err)
	}
	return cfg, nil
}

// Get returns the Connection for alias, or an error if it's undefined.
func (c Config) Get(alias string) (Connection, error) {
	conn, ok := c[alias]
	if !ok {
		return Connection{}, fmt.Errorf("unify: unknown connection alias %q", alias)
	}
	return conn, nil
}
