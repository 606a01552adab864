package main

import (
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/nao1215/cyberbuddy/internal/config"
)

//go:embed templates/cyberbuddy.yaml
var configTemplate embed.FS

// NewInitCmd creates the init command.
func NewInitCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Initialize a new CyberBuddy configuration file",
		Long: `Initialize creates a new .cyberbuddy configuration file in the current directory.

The generated file documents every option with its default value.

Examples:
  # Create .cyberbuddy in current directory
  cyberbuddy init

  # Create the per-user file ($XDG_CONFIG_HOME/cyberbuddy/config.yaml)
  cyberbuddy init --global

  # Create config file at a specific path
  cyberbuddy init -o team.yaml

  # Force overwrite existing file
  cyberbuddy init -f`,
		RunE: runInitCmd,
	}

	cmd.Flags().StringP("output", "o", config.DefaultConfigFile,
		"Output file path for the configuration")
	cmd.Flags().BoolP("force", "f", false,
		"Overwrite existing configuration file")
	cmd.Flags().BoolP("global", "g", false,
		"Write the per-user file in the XDG config directory instead")

	return cmd
}

func runInitCmd(cmd *cobra.Command, _ []string) error {
	dest, err := initDestination(cmd)
	if err != nil {
		return err
	}
	force, err := cmd.Flags().GetBool("force")
	if err != nil {
		return err
	}
	if _, err := os.Stat(dest); err == nil && !force {
		return fmt.Errorf("configuration file already exists: %s (use -f to overwrite)", dest)
	}

	content, err := configTemplate.ReadFile("templates/cyberbuddy.yaml")
	if err != nil {
		return fmt.Errorf("failed to read config template: %w", err)
	}
	if dir := filepath.Dir(dest); dir != "." {
		if err := os.MkdirAll(dir, 0750); err != nil {
			return fmt.Errorf("failed to create directory: %w", err)
		}
	}
	if err := os.WriteFile(dest, content, 0600); err != nil {
		return fmt.Errorf("failed to write configuration file: %w", err)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Created configuration file: %s\n", dest)
	fmt.Fprintln(out, "\nSet backend.url to your classification service, then run:")
	fmt.Fprintln(out, "  cyberbuddy login --email <address>")
	fmt.Fprintln(out, "  cyberbuddy scan <url>")
	return nil
}

// initDestination resolves --output and --global into the file to write.
func initDestination(cmd *cobra.Command) (string, error) {
	global, err := cmd.Flags().GetBool("global")
	if err != nil {
		return "", err
	}
	if global {
		if cmd.Flags().Changed("output") {
			return "", errors.New("--global and --output cannot be combined")
		}
		return filepath.Join(config.XDGConfigDir(), "config.yaml"), nil
	}
	return cmd.Flags().GetString("output")
}
