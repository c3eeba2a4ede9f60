package config

import (
	"strings"
	"testing"
	"time"
)

func TestValidate_ValidConfig(t *testing.T) {
	cfg := GetDefaultConfig()

	if err := Validate(cfg); err != nil {
		t.Errorf("Expected valid config to pass validation, got error: %v", err)
	}
}

func TestValidate_InvalidLogLevel(t *testing.T) {
	cfg := GetDefaultConfig()
	cfg.Logging.Level = "INVALID"

	err := Validate(cfg)
	if err == nil {
		t.Fatal("Expected validation error for invalid log level")
	}
	if !strings.Contains(err.Error(), "oneof") {
		t.Errorf("Expected 'oneof' validation error, got: %v", err)
	}
}

func TestValidate_InvalidLogFormat(t *testing.T) {
	cfg := GetDefaultConfig()
	cfg.Logging.Format = "xml"

	if err := Validate(cfg); err == nil {
		t.Fatal("Expected validation error for invalid log format")
	}
}

func TestValidate_InvalidAPIPort(t *testing.T) {
	cfg := GetDefaultConfig()
	cfg.API.Port = 70000 // Out of range

	err := Validate(cfg)
	if err == nil {
		t.Fatal("Expected validation error for port out of range")
	}
	if !strings.Contains(err.Error(), "max") {
		t.Errorf("Expected 'max' validation error, got: %v", err)
	}
}

func TestValidate_InvalidOrchestratorEndpoint(t *testing.T) {
	cfg := GetDefaultConfig()
	cfg.Orchestrator.Endpoint = "not a url"

	if err := Validate(cfg); err == nil {
		t.Fatal("Expected validation error for malformed orchestrator endpoint")
	}
}

func TestValidate_MissingDatabasePath(t *testing.T) {
	cfg := GetDefaultConfig()
	cfg.Database.SQLite.Path = ""

	err := Validate(cfg)
	if err == nil {
		t.Fatal("Expected validation error for missing sqlite path")
	}
	if !strings.Contains(strings.ToLower(err.Error()), "sqlite") {
		t.Errorf("Expected error about sqlite path, got: %v", err)
	}
}

func TestValidate_RequestTimeoutExceedsWriteTimeout(t *testing.T) {
	cfg := GetDefaultConfig()
	cfg.API.WriteTimeout = 10 * time.Second
	cfg.API.RequestTimeout = 30 * time.Second

	err := Validate(cfg)
	if err == nil {
		t.Fatal("Expected validation error when request_timeout exceeds write_timeout")
	}
	if !strings.Contains(err.Error(), "request_timeout") {
		t.Errorf("Expected error about request_timeout, got: %v", err)
	}
}

func TestValidate_LogLevelCaseInsensitive(t *testing.T) {
	for _, level := range []string{"info", "INFO", "debug", "DEBUG", "warn", "WARN", "error", "ERROR"} {
		cfg := GetDefaultConfig()
		cfg.Logging.Level = level

		if err := Validate(cfg); err != nil {
			t.Errorf("Validation failed for level %q: %v", level, err)
		}
		if cfg.Logging.Level != level {
			t.Errorf("Expected level to remain %q after validation, got %q", level, cfg.Logging.Level)
		}
	}
}

func TestValidate_NegativeLifecycleRetries(t *testing.T) {
	cfg := GetDefaultConfig()
	cfg.Lifecycle.CASRetries = -1

	if err := Validate(cfg); err == nil {
		t.Fatal("Expected validation error for negative cas_retries")
	}
}
