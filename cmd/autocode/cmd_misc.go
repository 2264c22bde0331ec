package main

import (
	"fmt"
	"os"
	"path/filepath"

	"autocode/internal/config"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

var configForce bool

// newIDCmd prints a fresh id for WithID
var newIDCmd = &cobra.Command{
	Use:   "new-id",
	Short: "Print a new random id to pin a function with WithID",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		fmt.Fprintln(cmd.OutOrStdout(), uuid.NewString())
		return nil
	},
}

// configCmd manages .autocode.yaml
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage the workspace configuration",
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a default .autocode.yaml to the workspace",
	Args:  cobra.NoArgs,
	RunE:  runConfigInit,
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective configuration (API keys redacted)",
	Args:  cobra.NoArgs,
	RunE:  runConfigShow,
}

func init() {
	configInitCmd.Flags().BoolVarP(&configForce, "force", "f", false, "Overwrite an existing file")
}

func runConfigInit(cmd *cobra.Command, args []string) error {
	path := configPath
	if path == "" {
		path = filepath.Join(workspaceRoot(), config.FileName)
	}
	if _, err := os.Stat(path); err == nil && !configForce {
		return fmt.Errorf("%s already exists (use --force to overwrite)", path)
	}
	if err := config.DefaultConfig().Save(path); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "wrote %s\n", path)
	return nil
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if cfg.LLM.APIKey != "" {
		cfg.LLM.APIKey = "<redacted>"
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	fmt.Fprint(cmd.OutOrStdout(), string(data))
	return nil
}
