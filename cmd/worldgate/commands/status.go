package commands

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
)

var (
	statusJSON    bool
	statusPidFile string
	statusAPIPort int
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show server status",
	Long: `Display the current status of the worldgate server.

This command checks the server health by calling the health endpoints and
reports process, liveness, and store readiness information.

Examples:
  # Check status (uses default settings)
  worldgate status

  # Check status with custom API port
  worldgate status --api-port 9080

  # Output as JSON
  worldgate status --json`,
	RunE: runStatus,
}

func init() {
	statusCmd.Flags().StringVar(&statusPidFile, "pid-file", "", "Path to PID file (default: $XDG_STATE_HOME/worldgate/worldgate.pid)")
	statusCmd.Flags().IntVar(&statusAPIPort, "api-port", 8080, "API server port")
	statusCmd.Flags().BoolVar(&statusJSON, "json", false, "Output as JSON")
}

// ServerStatus represents the server status information.
type ServerStatus struct {
	Running bool   `json:"running"`
	PID     int    `json:"pid,omitempty"`
	Healthy bool   `json:"healthy"`
	Ready   bool   `json:"ready"`
	Message string `json:"message"`
}

type healthResponse struct {
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

func runStatus(cmd *cobra.Command, args []string) error {
	status := ServerStatus{Message: "Server is not running"}

	pidPath := statusPidFile
	if pidPath == "" {
		pidPath = GetDefaultPidFile()
	}

	// Check PID file first
	if pidData, err := os.ReadFile(pidPath); err == nil {
		if pid, err := strconv.Atoi(strings.TrimSpace(string(pidData))); err == nil {
			if process, err := os.FindProcess(pid); err == nil {
				// On Unix, FindProcess always succeeds; signal 0 probes liveness
				if process.Signal(syscall.Signal(0)) == nil {
					status.Running = true
					status.PID = pid
				}
			}
		}
	}

	client := &http.Client{Timeout: 2 * time.Second}

	// Liveness (works for both daemon and foreground mode)
	if resp, err := client.Get(fmt.Sprintf("http://localhost:%d/health", statusAPIPort)); err == nil {
		var health healthResponse
		if json.NewDecoder(resp.Body).Decode(&health) == nil {
			status.Running = true
			status.Healthy = health.Status == "healthy"
		}
		_ = resp.Body.Close()
	}

	// Readiness (store connectivity)
	if resp, err := client.Get(fmt.Sprintf("http://localhost:%d/health/ready", statusAPIPort)); err == nil {
		var health healthResponse
		if json.NewDecoder(resp.Body).Decode(&health) == nil {
			status.Ready = resp.StatusCode == http.StatusOK
			if !status.Ready && health.Error != "" {
				status.Message = fmt.Sprintf("Server is running but not ready: %s", health.Error)
			}
		}
		_ = resp.Body.Close()
	}

	if status.Healthy && status.Ready {
		status.Message = "Server is running and healthy"
	} else if status.Running && status.Message == "Server is not running" {
		status.Message = "Server process is running but the API is unreachable"
	}

	if statusJSON {
		data, err := json.MarshalIndent(status, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(data))
		return nil
	}

	fmt.Printf("Running:  %v\n", status.Running)
	if status.PID != 0 {
		fmt.Printf("PID:      %d\n", status.PID)
	}
	fmt.Printf("Healthy:  %v\n", status.Healthy)
	fmt.Printf("Ready:    %v\n", status.Ready)
	fmt.Printf("Message:  %s\n", status.Message)

	if !status.Running {
		os.Exit(1)
	}
	return nil
}
