// Package models defines the console configuration.
package models

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

const DefaultConfigPath = "/etc/hsn2/console.yaml"

// CouchDBConfig locates the HSN2 object store.
type CouchDBConfig struct {
	Server string `yaml:"server"`
	Port   int    `yaml:"port"`
	DB     string `yaml:"db"`
}

// Config holds runtime configuration. Values come from the YAML file and
// may be overridden by CLI flags.
type Config struct {
	CouchDB   CouchDBConfig     `yaml:"couchdb"`
	Snapshot  string            `yaml:"snapshot,omitempty"`  // empty: next to the binary
	Workers   int               `yaml:"workers,omitempty"`
	BatchSize int               `yaml:"batch_size,omitempty"`
	Colors    map[string]string `yaml:"colors,omitempty"` // classification -> red, yellow, green
}

// DefaultConfig returns the settings used when no file is found.
func DefaultConfig() *Config {
	return &Config{
		CouchDB: CouchDBConfig{
			Server: "localhost",
			Port:   5984,
			DB:     "hsn",
		},
		Workers:   4,
		BatchSize: 64,
		Colors:    map[string]string{"malicious": "red"},
	}
}

// LoadConfig reads path on top of DefaultConfig.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	config := DefaultConfig()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return config, nil
}

var validColors = map[string]bool{"red": true, "yellow": true, "green": true, "normal": true}

// Validate checks values a YAML file can get wrong.
func (c *Config) Validate() error {
	if c.CouchDB.Server == "" {
		return fmt.Errorf("couchdb.server is empty")
	}
	if c.CouchDB.Port <= 0 || c.CouchDB.Port > 65535 {
		return fmt.Errorf("couchdb.port %d out of range", c.CouchDB.Port)
	}
	if c.CouchDB.DB == "" {
		return fmt.Errorf("couchdb.db is empty")
	}
	if c.Workers < 0 || c.BatchSize < 0 {
		return fmt.Errorf("workers and batch_size must not be negative")
	}
	for class, color := range c.Colors {
		if !validColors[color] {
			return fmt.Errorf("unknown color %q for %q", color, class)
		}
	}
	return nil
}
