package config

import (
	"path/filepath"
	"testing"
	"time"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	if cfg.DerivedFactLimit != DefaultDerivedFactLimit {
		t.Errorf("expected DerivedFactLimit=%d, got %d", DefaultDerivedFactLimit, cfg.DerivedFactLimit)
	}
	if cfg.QueryTimeoutDuration() != 30*time.Second {
		t.Errorf("expected default query timeout of 30s, got %v", cfg.QueryTimeoutDuration())
	}
	if cfg.Logging.DebugMode {
		t.Errorf("expected logging disabled by default")
	}
}

func TestConfigSaveLoad(t *testing.T) {
	tmpDir := t.TempDir()
	path := filepath.Join(tmpDir, "config.yaml")

	cfg := DefaultConfig()
	cfg.SchemaPath = "schema.yaml"
	cfg.RulesPath = "rules.yaml"
	cfg.FactLimit = 42

	if err := cfg.Save(path); err != nil {
		t.Fatalf("Save: %v", err)
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if loaded.SchemaPath != "schema.yaml" || loaded.RulesPath != "rules.yaml" || loaded.FactLimit != 42 {
		t.Errorf("loaded config mismatch: %+v", loaded)
	}
}

func TestQueryTimeoutDurationFallsBackOnMalformedValue(t *testing.T) {
	cfg := DefaultConfig()
	cfg.QueryTimeout = "not-a-duration"
	if cfg.QueryTimeoutDuration() != 30*time.Second {
		t.Errorf("expected fallback to 30s on malformed duration")
	}
}
