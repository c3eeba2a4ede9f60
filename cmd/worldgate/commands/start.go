package commands

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"

	"github.com/worldgate/worldgate/internal/logger"
	"github.com/worldgate/worldgate/pkg/api"
	"github.com/worldgate/worldgate/pkg/config"
	"github.com/worldgate/worldgate/pkg/lifecycle"
	"github.com/worldgate/worldgate/pkg/orchestrator"
	"github.com/worldgate/worldgate/pkg/reconciler"
	"github.com/worldgate/worldgate/pkg/world/store"
)

var (
	foreground bool
	pidFile    string
	logFile    string
)

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the worldgate server",
	Long: `Start the worldgate server with the specified configuration.

By default, the server runs in the background (daemon mode). Use --foreground
to run in the foreground for debugging or when managed by a process supervisor.

Use --config to specify a custom configuration file, or it will use the
default location at $XDG_CONFIG_HOME/worldgate/config.yaml.

Examples:
  # Start in background (default)
  worldgate start

  # Start in foreground
  worldgate start --foreground

  # Start with custom config file
  worldgate start --config /etc/worldgate/config.yaml

  # Start with environment variable overrides
  WORLDGATE_LOGGING_LEVEL=DEBUG worldgate start --foreground`,
	RunE: runStart,
}

func init() {
	startCmd.Flags().BoolVarP(&foreground, "foreground", "f", false, "Run in foreground (default: background/daemon mode)")
	startCmd.Flags().StringVar(&pidFile, "pid-file", "", "Path to PID file (default: $XDG_STATE_HOME/worldgate/worldgate.pid)")
	startCmd.Flags().StringVar(&logFile, "log-file", "", "Path to log file for daemon mode (default: $XDG_STATE_HOME/worldgate/worldgate.log)")
}

func runStart(cmd *cobra.Command, args []string) error {
	if !foreground {
		return startDaemon()
	}

	cfg, err := config.MustLoad(GetConfigFile())
	if err != nil {
		return err
	}

	if err := InitLogger(cfg); err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	logger.Info("Configuration loaded", "source", getConfigSource(GetConfigFile()))
	logger.Info("Log level", "level", cfg.Logging.Level, "format", cfg.Logging.Format)

	// World state store (the linearization point for all lifecycle writes)
	worldStore, err := store.New(&cfg.Database)
	if err != nil {
		return fmt.Errorf("failed to initialize world store: %w", err)
	}
	defer func() { _ = worldStore.Close() }()
	logger.Info("World store initialized", "type", cfg.Database.Type)

	// Remote orchestration client
	orch := orchestrator.New(cfg.Orchestrator)
	logger.Info("Orchestrator client configured", "endpoint", cfg.Orchestrator.Endpoint)

	// Snapshot reconciler pulls state exports straight from instances,
	// reusing the orchestrator client's authenticated HTTP plumbing
	rec, err := reconciler.New(worldStore, orch)
	if err != nil {
		return fmt.Errorf("failed to initialize reconciler: %w", err)
	}

	// Metrics registry shared by the coordinator and the metrics server
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metrics := lifecycle.NewMetrics(registry)

	coordinator := lifecycle.NewCoordinator(worldStore, orch, rec, metrics, cfg.Lifecycle)
	editLock := lifecycle.NewEditLock(worldStore)

	// Background sweeper: stale heartbeats, expired transition requests,
	// status gauges
	sweeper := lifecycle.NewSweeper(worldStore, orch, metrics, cfg.Lifecycle)
	go sweeper.Run(ctx)

	apiServer := api.NewServer(cfg.API, coordinator, editLock, worldStore)
	logger.Info("API server configured", "port", cfg.API.Port)

	if pidFile != "" {
		if err := os.WriteFile(pidFile, []byte(fmt.Sprintf("%d", os.Getpid())), 0644); err != nil {
			return fmt.Errorf("failed to write PID file: %w", err)
		}
		defer func() { _ = os.Remove(pidFile) }()
	}

	serverDone := make(chan error, 1)
	go func() {
		serverDone <- apiServer.Start(ctx)
	}()

	if cfg.Metrics.IsEnabled() {
		metricsServer := api.NewMetricsServer(cfg.Metrics, registry)
		go func() {
			if err := metricsServer.Start(ctx); err != nil {
				logger.Error("Metrics server error", "error", err)
			}
		}()
	} else {
		logger.Info("Metrics collection disabled")
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	logger.Info("Server is running. Press Ctrl+C to stop.")

	select {
	case <-sigChan:
		signal.Stop(sigChan)
		logger.Info("Shutdown signal received, initiating graceful shutdown")
		cancel()

		if err := <-serverDone; err != nil {
			logger.Error("Server shutdown error", "error", err)
			return err
		}
		logger.Info("Server stopped gracefully")

	case err := <-serverDone:
		signal.Stop(sigChan)
		if err != nil {
			logger.Error("Server error", "error", err)
			return err
		}
		logger.Info("Server stopped")
	}

	return nil
}

// getConfigSource returns a description of where the config was loaded from.
func getConfigSource(configFile string) string {
	if configFile != "" {
		return configFile
	}
	if config.DefaultConfigExists() {
		return config.GetDefaultConfigPath()
	}
	return "defaults"
}

// startDaemon starts the server as a background daemon process.
func startDaemon() error {
	stateDir := GetDefaultStateDir()
	if err := os.MkdirAll(stateDir, 0755); err != nil {
		return fmt.Errorf("failed to create state directory: %w", err)
	}

	pidPath := pidFile
	if pidPath == "" {
		pidPath = GetDefaultPidFile()
	}

	// Check if already running
	if _, err := os.Stat(pidPath); err == nil {
		pidData, err := os.ReadFile(pidPath)
		if err == nil {
			var pid int
			if _, err := fmt.Sscanf(string(pidData), "%d", &pid); err == nil {
				if process, err := os.FindProcess(pid); err == nil {
					if err := process.Signal(syscall.Signal(0)); err == nil {
						return fmt.Errorf("worldgate is already running (PID %d)\nUse 'worldgate stop' to stop the running instance", pid)
					}
				}
			}
		}
		// Stale PID file, remove it
		_ = os.Remove(pidPath)
	}

	logPath := logFile
	if logPath == "" {
		logPath = GetDefaultLogFile()
	}

	executable, err := os.Executable()
	if err != nil {
		return fmt.Errorf("failed to get executable path: %w", err)
	}

	// Re-exec ourselves in the foreground, detached from the terminal
	daemonArgs := []string{"start", "--foreground", "--pid-file", pidPath}
	if cfgFile != "" {
		daemonArgs = append(daemonArgs, "--config", cfgFile)
	}

	logFileHandle, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}
	defer func() { _ = logFileHandle.Close() }()

	daemon := exec.Command(executable, daemonArgs...)
	daemon.Stdout = logFileHandle
	daemon.Stderr = logFileHandle
	daemon.SysProcAttr = &syscall.SysProcAttr{Setsid: true}

	if err := daemon.Start(); err != nil {
		return fmt.Errorf("failed to start daemon: %w", err)
	}

	fmt.Printf("worldgate started in background (PID %d)\n", daemon.Process.Pid)
	fmt.Printf("  Logs: %s\n", logPath)
	fmt.Printf("  PID file: %s\n", pidPath)
	fmt.Println("\nUse 'worldgate status' to check server health")
	fmt.Println("Use 'worldgate stop' to stop the server")

	// The child writes its own PID file once it is up; release it here
	return daemon.Process.Release()
}
