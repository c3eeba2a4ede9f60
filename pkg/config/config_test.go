package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/worldgate/worldgate/pkg/world/store"
)

func TestLoad_DefaultsApplied(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	configContent := `
logging:
  level: "INFO"

database:
  type: sqlite
  sqlite:
    path: "` + filepath.ToSlash(tmpDir) + `/worldgate.db"

api:
  port: 8080

orchestrator:
  endpoint: "https://orchestrator.example.test"
  shared_secret: "test-secret"
`
	if err := os.WriteFile(configPath, []byte(configContent), 0644); err != nil {
		t.Fatalf("Failed to write config file: %v", err)
	}

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	if cfg.Logging.Format != "text" {
		t.Errorf("Expected default format 'text', got %q", cfg.Logging.Format)
	}
	if cfg.Logging.Output != "stdout" {
		t.Errorf("Expected default output 'stdout', got %q", cfg.Logging.Output)
	}
	if cfg.ShutdownTimeout != 30*time.Second {
		t.Errorf("Expected default shutdown_timeout 30s, got %v", cfg.ShutdownTimeout)
	}
	if cfg.API.Port != 8080 {
		t.Errorf("Expected API port 8080, got %d", cfg.API.Port)
	}
	if cfg.Lifecycle.CASRetries == 0 {
		t.Error("Expected lifecycle cas_retries default to be applied")
	}
	if cfg.Orchestrator.MaxAttempts == 0 {
		t.Error("Expected orchestrator max_attempts default to be applied")
	}
	if !cfg.Metrics.IsEnabled() {
		t.Error("Expected metrics to be enabled by default")
	}
}

func TestLoad_NoConfigFile(t *testing.T) {
	// Loading with no config file returns a valid default config.
	// This allows running the server without a config file for quick testing.
	tmpDir := t.TempDir()
	nonExistentPath := filepath.Join(tmpDir, "nonexistent.yaml")

	cfg, err := Load(nonExistentPath)
	if err != nil {
		t.Fatalf("Expected no error when loading default config, got: %v", err)
	}
	if cfg == nil {
		t.Fatal("Expected default config to be returned")
	}
	if cfg.API.Port != 8080 {
		t.Errorf("Expected default API port 8080, got %d", cfg.API.Port)
	}
	if cfg.Database.Type != store.DatabaseTypeSQLite {
		t.Errorf("Expected default database type sqlite, got %q", cfg.Database.Type)
	}
}

func TestLoad_DurationStrings(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	configContent := `
database:
  type: sqlite
  sqlite:
    path: "` + filepath.ToSlash(tmpDir) + `/worldgate.db"

orchestrator:
  endpoint: "https://orchestrator.example.test"
  initial_backoff: "500ms"
  max_backoff: "10s"

lifecycle:
  transition_ttl: "5m"
  heartbeat_timeout: "2m"
`
	if err := os.WriteFile(configPath, []byte(configContent), 0644); err != nil {
		t.Fatalf("Failed to write config file: %v", err)
	}

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	if cfg.Orchestrator.InitialBackoff != 500*time.Millisecond {
		t.Errorf("Expected initial_backoff 500ms, got %v", cfg.Orchestrator.InitialBackoff)
	}
	if cfg.Orchestrator.MaxBackoff != 10*time.Second {
		t.Errorf("Expected max_backoff 10s, got %v", cfg.Orchestrator.MaxBackoff)
	}
	if cfg.Lifecycle.TransitionTTL != 5*time.Minute {
		t.Errorf("Expected transition_ttl 5m, got %v", cfg.Lifecycle.TransitionTTL)
	}
	if cfg.Lifecycle.HeartbeatTimeout != 2*time.Minute {
		t.Errorf("Expected heartbeat_timeout 2m, got %v", cfg.Lifecycle.HeartbeatTimeout)
	}
}

func TestLoad_LogLevelNormalized(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	configContent := `
logging:
  level: "debug"
database:
  type: sqlite
  sqlite:
    path: "` + filepath.ToSlash(tmpDir) + `/worldgate.db"
orchestrator:
  endpoint: "https://orchestrator.example.test"
`
	if err := os.WriteFile(configPath, []byte(configContent), 0644); err != nil {
		t.Fatalf("Failed to write config file: %v", err)
	}

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}
	if cfg.Logging.Level != "DEBUG" {
		t.Errorf("Expected normalized level DEBUG, got %q", cfg.Logging.Level)
	}
}

func TestSaveConfig_RoundTrip(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "nested", "config.yaml")

	cfg := GetDefaultConfig()
	cfg.Orchestrator.Endpoint = "https://orchestrator.example.test"
	cfg.Orchestrator.SharedSecret = "round-trip-secret"

	if err := SaveConfig(cfg, configPath); err != nil {
		t.Fatalf("Failed to save config: %v", err)
	}

	info, err := os.Stat(configPath)
	if err != nil {
		t.Fatalf("Failed to stat saved config: %v", err)
	}
	if info.Mode().Perm() != 0600 {
		t.Errorf("Expected config file mode 0600, got %v", info.Mode().Perm())
	}

	loaded, err := Load(configPath)
	if err != nil {
		t.Fatalf("Failed to reload saved config: %v", err)
	}
	if loaded.Orchestrator.Endpoint != cfg.Orchestrator.Endpoint {
		t.Errorf("Expected endpoint %q, got %q", cfg.Orchestrator.Endpoint, loaded.Orchestrator.Endpoint)
	}
	if loaded.Orchestrator.SharedSecret != "round-trip-secret" {
		t.Errorf("Expected shared secret to survive round trip, got %q", loaded.Orchestrator.SharedSecret)
	}
}
