package config

import (
	"fmt"
	"os"
	"path/filepath"
)

// sampleConfig is the commented configuration template written by
// 'worldgate init'. It mirrors GetDefaultConfig; editing is optional for
// local development but the orchestrator section must be filled in for any
// real deployment.
const sampleConfig = `# worldgate configuration
#
# Every option can be overridden with environment variables using the
# WORLDGATE_ prefix, e.g. WORLDGATE_LOGGING_LEVEL=DEBUG.

logging:
  # Minimum log level: DEBUG, INFO, WARN, ERROR
  level: INFO
  # Output format: text or json
  format: text
  # Where logs go: stdout, stderr, or a file path
  output: stdout

# Maximum time to wait for graceful shutdown
shutdown_timeout: 30s

database:
  # sqlite (single node) or postgres (HA)
  type: sqlite
  sqlite:
    # Defaults to $XDG_CONFIG_HOME/worldgate/worldgate.db when omitted
    path: ""
  # postgres:
  #   host: localhost
  #   port: 5432
  #   database: worldgate
  #   user: worldgate
  #   password: ""
  #   ssl_mode: disable

api:
  port: 8080
  read_timeout: 10s
  # Must outlast a full orchestrator retry cycle; lifecycle calls block on
  # remote provisioning.
  write_timeout: 60s
  idle_timeout: 60s
  request_timeout: 55s

metrics:
  enabled: true
  port: 9090

orchestrator:
  # Base URL of the instance-provisioning API
  endpoint: http://localhost:7070
  # Bearer token for service-to-service calls. Prefer setting this via
  # WORLDGATE_ORCHESTRATOR_SHARED_SECRET in production.
  shared_secret: ""
  max_attempts: 3
  initial_backoff: 250ms
  max_backoff: 5s
  request_timeout: 15s

lifecycle:
  # Optimistic-concurrency retries before a caller is told to back off
  cas_retries: 3
  # How long a transition request may sit unfinished before the sweeper
  # forces the world into error
  transition_ttl: 2m
  # Background sweep cadence
  sweep_interval: 30s
  # Instances silent for longer than this are treated as dead
  heartbeat_timeout: 90s
  # Consecutive reconcile failures before a saving world escalates to
  # error (negative disables escalation)
  reconcile_escalation_threshold: 3
`

// InitConfig writes the sample configuration to the default location.
// Returns the path written.
func InitConfig(force bool) (string, error) {
	path := GetDefaultConfigPath()
	if err := InitConfigToPath(path, force); err != nil {
		return "", err
	}
	return path, nil
}

// InitConfigToPath writes the sample configuration to the given path.
// Refuses to overwrite an existing file unless force is set.
func InitConfigToPath(path string, force bool) error {
	if _, err := os.Stat(path); err == nil && !force {
		return fmt.Errorf("configuration file already exists: %s (use --force to overwrite)", path)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	// 0600: the file may carry the orchestrator shared secret.
	if err := os.WriteFile(path, []byte(sampleConfig), 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}
