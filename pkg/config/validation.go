package config

import (
	"fmt"

	"github.com/go-playground/validator/v10"
)

// Validate checks the configuration against the struct-level validate tags
// plus a few cross-field rules the tags cannot express.
func Validate(cfg *Config) error {
	validate := validator.New()

	if err := validate.Struct(cfg); err != nil {
		return err
	}

	if err := cfg.Database.Validate(); err != nil {
		return fmt.Errorf("database: %w", err)
	}

	if cfg.Orchestrator.MaxAttempts < 0 {
		return fmt.Errorf("orchestrator: max_attempts must not be negative")
	}

	if cfg.Lifecycle.CASRetries < 0 {
		return fmt.Errorf("lifecycle: cas_retries must not be negative")
	}

	// The request timeout middleware would cut lifecycle calls short if it
	// did not outlast a full orchestrator retry cycle.
	if cfg.API.RequestTimeout > 0 && cfg.API.WriteTimeout > 0 &&
		cfg.API.RequestTimeout > cfg.API.WriteTimeout {
		return fmt.Errorf("api: request_timeout (%s) must not exceed write_timeout (%s)",
			cfg.API.RequestTimeout, cfg.API.WriteTimeout)
	}

	return nil
}
