package commands

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/gonzalop/telnet/internal/config"
)

var initForce bool

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Configuration management",
	Long: `Manage telnetd configuration files.

Subcommands:
  init      Write a configuration file with the defaults
  validate  Validate a configuration file
  show      Display the effective configuration`,
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a configuration file with the defaults",
	Long: `Write a configuration file with the defaults.

By default, the file is created at $XDG_CONFIG_HOME/telnetd/config.yaml.
Use --config to specify a custom path.`,
	RunE: runConfigInit,
}

var configValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate a configuration file",
	RunE:  runConfigValidate,
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Display the effective configuration",
	Long: `Display the effective configuration as YAML: the file, environment
overrides and defaults merged together.`,
	RunE: runConfigShow,
}

func init() {
	configInitCmd.Flags().BoolVar(&initForce, "force", false, "Force overwrite existing config file")

	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configValidateCmd)
	configCmd.AddCommand(configShowCmd)
}

// configPath returns the --config path or the default location.
func configPath() string {
	if p := GetConfigFile(); p != "" {
		return p
	}
	return config.GetDefaultConfigPath()
}

func runConfigInit(cmd *cobra.Command, _ []string) error {
	path := configPath()
	if _, err := os.Stat(path); err == nil && !initForce {
		return fmt.Errorf("config file already exists at %s (use --force to overwrite)", path)
	}

	if err := config.SaveConfig(config.GetDefaultConfig(), path); err != nil {
		return fmt.Errorf("failed to initialize config: %w", err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Configuration file created at: %s\n", path)
	return nil
}

func runConfigValidate(cmd *cobra.Command, _ []string) error {
	path := configPath()
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("configuration file not found: %s", path)
	}

	if _, err := config.Load(path); err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Configuration is valid: %s\n", path)
	return nil
}

func runConfigShow(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(GetConfigFile())
	if err != nil {
		return err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	_, err = cmd.OutOrStdout().Write(data)
	return err
}
