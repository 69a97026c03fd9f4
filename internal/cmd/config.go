package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/Iron-Ham/trialrun/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "View or create trialrun configuration",
	Long: `View or create trialrun configuration.

Without arguments, displays the current configuration.`,
	RunE: runConfigShow,
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	RunE:  runConfigShow,
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Create a default config file",
	Long:  `Create a default config file at $XDG_CONFIG_HOME/trialrun/config.yaml with all available options.`,
	RunE:  runConfigInit,
}

var configPathCmd = &cobra.Command{
	Use:   "path",
	Short: "Show the config file path",
	RunE:  runConfigPath,
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configPathCmd)
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()

	if viper.ConfigFileUsed() != "" {
		fmt.Fprintf(out, "# Config file: %s\n", viper.ConfigFileUsed())
	} else {
		fmt.Fprintln(out, "# Config file: (none - using defaults)")
	}

	if _, err := config.Load(); err != nil {
		fmt.Fprintf(out, "# WARNING: %v\n", err)
	}

	settings := viper.AllSettings()
	// Flags bound to viper are not configuration.
	delete(settings, "config")
	delete(settings, "workspace")

	data, err := yaml.Marshal(settings)
	if err != nil {
		return fmt.Errorf("failed to render configuration: %w", err)
	}
	_, err = out.Write(data)
	return err
}

// defaultConfigFile is written by config init.
const defaultConfigFile = `# trialrun configuration

# When runs start on their own
trial:
  # Run a query as soon as it is loaded if it already has a result or takes parameters
  auto_trigger: true
  # Reuse a cached result younger than this (e.g. 10m). 0 always executes
  max_age: 0s

# Simulated dry-run executor
runner:
  # How long a run stays in the processing state
  latency_ms: 750
  # LIMIT appended to queries with apply_auto_limit
  auto_limit: 1000
  # Byte estimate for tables missing from a data source's catalog
  unknown_table_bytes: 1048576
  # Number of results kept for max_age reuse
  cache_size: 128

# Notifications when a run finishes after the first load
notifications:
  enabled: true
  title: trialrun
  # Play a sound as well as the terminal bell (macOS only)
  use_sound: false
  # Custom sound file for use_sound (macOS only)
  sound_path: ""

# Debug logging to <dir>/debug.log
logging:
  enabled: true
  # debug, info, warn, error
  level: info
  max_size_mb: 10
  max_backups: 3
  # Empty means <config dir>/logs
  dir: ""

tui:
  show_help: true
`

func runConfigInit(cmd *cobra.Command, args []string) error {
	configDir := config.ConfigDir()
	configFile := config.ConfigFile()

	// Check if config file already exists
	if _, err := os.Stat(configFile); err == nil {
		return fmt.Errorf("config file already exists at %s", configFile)
	}

	if err := os.MkdirAll(configDir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	if err := os.WriteFile(configFile, []byte(defaultConfigFile), 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Created config file at %s\n", configFile)
	fmt.Fprintln(out, "Edit this file to customize trialrun's behavior.")
	return nil
}

func runConfigPath(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()

	if viper.ConfigFileUsed() != "" {
		fmt.Fprintf(out, "Active config: %s\n", viper.ConfigFileUsed())
	} else {
		fmt.Fprintf(out, "Default path: %s (not created)\n", config.ConfigFile())
	}

	fmt.Fprintln(out, "\nSearch paths:")
	fmt.Fprintf(out, "  1. %s\n", filepath.Join(config.ConfigDir(), "config.yaml"))
	fmt.Fprintln(out, "  2. ./config.yaml (current directory)")
	fmt.Fprintln(out, "\nEnvironment variables: TRIALRUN_* (e.g., TRIALRUN_RUNNER_LATENCY_MS)")
	return nil
}
