package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestInitConfigToPath_WritesLoadableConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")

	if err := InitConfigToPath(path, false); err != nil {
		t.Fatalf("InitConfigToPath failed: %v", err)
	}

	// The generated sample must load and validate as-is.
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Generated sample config failed to load: %v", err)
	}
	if cfg.API.Port != 8080 {
		t.Errorf("Expected API port 8080, got %d", cfg.API.Port)
	}
	if cfg.Orchestrator.Endpoint == "" {
		t.Error("Expected orchestrator endpoint in sample config")
	}
}

func TestInitConfigToPath_RefusesOverwrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")

	if err := os.WriteFile(path, []byte("logging: {}"), 0600); err != nil {
		t.Fatalf("Failed to seed config: %v", err)
	}

	if err := InitConfigToPath(path, false); err == nil {
		t.Fatal("Expected error when overwriting without --force")
	}

	if err := InitConfigToPath(path, true); err != nil {
		t.Fatalf("Expected overwrite with force to succeed, got: %v", err)
	}
}
