package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"autocode/internal/config"
	"autocode/internal/logging"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	// Global flags
	verbose      bool
	workspaceDir string
	configPath   string
	timeout      time.Duration

	// Logger
	logger *zap.Logger
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "autocode",
	Short: "autocode - generate, cache and inspect LLM-written Go functions",
	Long: `autocode asks a language model for a Go function matching a description,
validates and interprets it, and caches the source in the workspace so later
runs reuse it without another model call.

The cache lives in _cache/autocode under the workspace root unless
.autocode.yaml or AUTOCODE_CACHE_DIR says otherwise.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// Initialize logger from the workspace config; the CLI is quiet
		// below warn unless -v is given.
		lc := config.DefaultConfig().Logging
		if cfg, err := loadConfig(); err == nil {
			lc = cfg.Logging
		}
		lc.Level = "warn"
		if lvl := os.Getenv("AUTOCODE_LOG_LEVEL"); lvl != "" {
			lc.Level = lvl
		}
		if verbose {
			lc.Level = "debug"
		}
		if err := logging.Initialize(lc.ToLogging()); err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		logger = logging.Zap().Named(string(logging.CategoryCLI))
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose logging")
	rootCmd.PersistentFlags().StringVarP(&workspaceDir, "workspace", "w", "", "Workspace directory (default: current)")
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Config file (default: <workspace>/.autocode.yaml)")
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", 10*time.Minute, "Operation timeout")

	cacheCmd.AddCommand(cacheListCmd, cacheShowCmd, cacheRmCmd, cacheClearCmd, cacheVerifyCmd)
	historyCmd.AddCommand(historyPruneCmd)
	configCmd.AddCommand(configInitCmd, configShowCmd)

	rootCmd.AddCommand(genCmd)
	rootCmd.AddCommand(cacheCmd)
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(newIDCmd)
	rootCmd.AddCommand(configCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// workspaceRoot returns the --workspace flag or the current directory.
func workspaceRoot() string {
	if workspaceDir != "" {
		return workspaceDir
	}
	return "."
}

// loadConfig reads the config file named by --config, or the workspace's
// .autocode.yaml.
func loadConfig() (*config.Config, error) {
	if configPath == "" {
		return config.LoadWorkspace(workspaceRoot())
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	if cfg.Workspace.Root == "" || cfg.Workspace.Root == "." {
		cfg.Workspace.Root = filepath.Dir(configPath)
	}
	if workspaceDir != "" {
		cfg.Workspace.Root = workspaceDir
	}
	return cfg, nil
}

// commandContext bounds a command by --timeout and cancels on SIGINT/SIGTERM.
func commandContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	parent := cmd.Context()
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	ctx, cancel := context.WithTimeout(ctx, timeout)
	return ctx, func() {
		cancel()
		stop()
	}
}
