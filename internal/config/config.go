// Package config holds the read-only configuration used to wire an
// Engine together: where the schema and rule declarations live, where
// the fact store persists, and how logging behaves. It is not read by
// the core algorithms, which only ever see a *kbase.Schema and []kbase.Rule
// value - this package exists purely to assemble those from disk.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"veritas/internal/logging"
)

// DefaultDerivedFactLimit is the default value of Config.DerivedFactLimit.
// Saturation does not read it: nothing caps the number of derived facts
// one transaction produces, so a non-terminating rule set is not stopped.
const DefaultDerivedFactLimit = 500000

// Config is the top-level configuration for a veritas engine instance.
type Config struct {
	// SchemaPath points at a YAML file declaring the attribute schema.
	// Empty means the caller constructs the schema programmatically.
	SchemaPath string `yaml:"schema_path"`

	// RulesPath points at a YAML file declaring rule bodies/heads. Empty
	// means the caller constructs the rule set programmatically.
	RulesPath string `yaml:"rules_path"`

	// StorePath is the path to the SQLite database file backing the
	// reference FactStore adapter.
	StorePath string `yaml:"store_path"`

	// FactLimit is the intended cap on the number of base facts a single
	// bulk_add may introduce. Not yet enforced by Engine.BulkAdd; carried
	// here so a future enforcement point has somewhere to read it from.
	FactLimit int `yaml:"fact_limit"`

	// DerivedFactLimit is the intended cap on the number of derived facts
	// one saturation pass may produce. Not yet enforced by Engine.saturate;
	// carried here so a future enforcement point has somewhere to read it
	// from.
	DerivedFactLimit int `yaml:"derived_fact_limit"`

	// QueryTimeout bounds how long a single solve/explain_solutions call
	// may run before the caller is expected to cancel it.
	QueryTimeout string `yaml:"query_timeout"`

	// Logging configures the categorized logger (internal/logging).
	Logging logging.Config `yaml:"logging"`
}

// DefaultConfig returns sane defaults for a fresh engine instance.
func DefaultConfig() *Config {
	return &Config{
		StorePath:        "veritas.db",
		FactLimit:        1000000,
		DerivedFactLimit: DefaultDerivedFactLimit,
		QueryTimeout:     "30s",
		Logging: logging.Config{
			DebugMode: false,
			Level:     "info",
		},
	}
}

// QueryTimeoutDuration parses QueryTimeout, defaulting to 30s on an empty
// or malformed value rather than failing the whole config load.
func (c *Config) QueryTimeoutDuration() time.Duration {
	if c.QueryTimeout == "" {
		return 30 * time.Second
	}
	d, err := time.ParseDuration(c.QueryTimeout)
	if err != nil {
		return 30 * time.Second
	}
	return d
}

// Load reads a Config from a YAML file, starting from DefaultConfig so
// missing fields keep their defaults.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	return cfg, nil
}

// Save writes cfg to path as YAML.
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("config: marshal: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("config: write %s: %w", path, err)
	}
	return nil
}
