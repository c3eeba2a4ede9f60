package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/worldgate/worldgate/pkg/config"
)

var initForce bool

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize a sample configuration file",
	Long: `Initialize a sample worldgate configuration file.

By default, the configuration file is created at $XDG_CONFIG_HOME/worldgate/config.yaml.
Use --config to specify a custom path.

Examples:
  # Initialize with default location
  worldgate init

  # Initialize with custom path
  worldgate init --config /etc/worldgate/config.yaml

  # Force overwrite existing config
  worldgate init --force`,
	RunE: runInit,
}

func init() {
	initCmd.Flags().BoolVar(&initForce, "force", false, "Force overwrite existing config file")
}

func runInit(cmd *cobra.Command, args []string) error {
	configFile := GetConfigFile()

	var configPath string
	var err error

	if configFile != "" {
		err = config.InitConfigToPath(configFile, initForce)
		configPath = configFile
	} else {
		configPath, err = config.InitConfig(initForce)
	}

	if err != nil {
		return fmt.Errorf("failed to initialize config: %w", err)
	}

	fmt.Printf("Configuration file created at: %s\n", configPath)
	fmt.Println("\nNext steps:")
	fmt.Println("  1. Set the orchestrator endpoint and shared secret")
	fmt.Println("  2. Start the server with: worldgate start")
	fmt.Printf("  3. Or specify custom config: worldgate start --config %s\n", configPath)
	fmt.Println("\nSecurity note:")
	fmt.Println("  Prefer passing the orchestrator secret via an environment variable:")
	fmt.Println("    export WORLDGATE_ORCHESTRATOR_SHARED_SECRET=$(openssl rand -hex 32)")

	return nil
}
