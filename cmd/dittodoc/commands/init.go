package commands

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/marmos91/dittodoc/internal/cli/prompt"
	"github.com/marmos91/dittodoc/pkg/config"
)

var (
	initForce       bool
	initStore       string
	initInteractive bool
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize a sample configuration file",
	Long: `Initialize a sample DittoDoc configuration file.

By default, the configuration file is created at $XDG_CONFIG_HOME/dittodoc/config.yaml.
Use --config to specify a custom path.

Examples:
  # Initialize with default location
  dittodoc init

  # Initialize with a specific blob store backend
  dittodoc init --store badger

  # Pick the backend interactively
  dittodoc init --interactive

  # Force overwrite existing config
  dittodoc init --force`,
	RunE: runInit,
}

func init() {
	initCmd.Flags().BoolVar(&initForce, "force", false, "Force overwrite existing config file")
	initCmd.Flags().StringVar(&initStore, "store", "", "Blob store backend (memory|fs|badger|s3)")
	initCmd.Flags().BoolVar(&initInteractive, "interactive", false, "Pick the blob store backend interactively")
}

func runInit(cmd *cobra.Command, args []string) error {
	configPath := GetConfigFile()
	if configPath == "" {
		configPath = config.GetDefaultConfigPath()
	}

	if _, err := os.Stat(configPath); err == nil && !initForce {
		return fmt.Errorf("config file already exists at %s (use --force to overwrite)", configPath)
	}

	cfg := config.GetDefaultConfig()

	storeType := initStore
	if initInteractive {
		selected, err := prompt.Select("Select blob store backend", []prompt.SelectOption{
			{Label: "Filesystem", Value: "fs", Description: "Blobs as files under a local directory"},
			{Label: "BadgerDB", Value: "badger", Description: "Embedded key-value store, single node"},
			{Label: "S3", Value: "s3", Description: "S3-compatible object storage"},
			{Label: "Memory", Value: "memory", Description: "In-memory, for testing only"},
		})
		if err != nil {
			if errors.Is(err, prompt.ErrAborted) {
				return nil
			}
			return err
		}
		storeType = selected
	}
	if storeType != "" {
		cfg.Store.Type = storeType
		config.ApplyDefaults(cfg)
	}

	if err := config.SaveConfig(cfg, configPath); err != nil {
		return fmt.Errorf("failed to initialize config: %w", err)
	}

	fmt.Printf("Configuration file created at: %s\n", configPath)
	fmt.Println("\nNext steps:")
	fmt.Println("  1. Edit the configuration file to customize your setup")
	fmt.Println("  2. Inspect a container with: dittodoc status --container <id>")
	fmt.Printf("  3. Or specify custom config: dittodoc status --config %s --container <id>\n", configPath)

	return nil
}
