package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// FileName is the config file looked up at the workspace root.
const FileName = ".autocode.yaml"

// Config holds all autocode configuration.
type Config struct {
	// Workspace layout
	Workspace WorkspaceConfig `yaml:"workspace"`

	// Generation loop defaults (call-site options override these)
	Generation GenerationConfig `yaml:"generation"`

	// LLM configuration for the built-in agents
	LLM LLMConfig `yaml:"llm"`

	// Interactive review
	Review ReviewConfig `yaml:"review"`

	// Generation history ledger
	History HistoryConfig `yaml:"history"`

	// Logging
	Logging LoggingConfig `yaml:"logging"`

	// DotenvPath is loaded into the process environment by autocode.Setup.
	DotenvPath string `yaml:"dotenv_path,omitempty"`
}

// WorkspaceConfig locates the cache.
type WorkspaceConfig struct {
	Root     string `yaml:"root"`      // Project root; caller locations are relative to it
	CacheDir string `yaml:"cache_dir"` // Relative to Root unless absolute
}

// GenerationConfig holds the process-wide defaults for every per-call flag.
type GenerationConfig struct {
	MaxAttempts int  `yaml:"max_attempts"`
	Verbose     bool `yaml:"verbose"`
	Interactive bool `yaml:"interactive"`
	Regenerate  bool `yaml:"regenerate"`
	DryRun      bool `yaml:"dry_run"`
}

// ReviewConfig configures interactive review.
type ReviewConfig struct {
	Editor string `yaml:"editor"` // Defaults to $EDITOR
}

// HistoryConfig configures the sqlite generation ledger.
type HistoryConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"` // Relative to the cache dir unless absolute
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Workspace: WorkspaceConfig{
			Root:     ".",
			CacheDir: filepath.Join("_cache", "autocode"),
		},
		Generation: GenerationConfig{
			MaxAttempts: 3,
		},
		LLM: LLMConfig{
			Provider:    ProviderOpenAI,
			Temperature: 0,
			Timeout:     "120s",
		},
		History: HistoryConfig{
			Path: "history.db",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
		},
	}
}

// Load loads configuration from a YAML file. A missing file yields defaults;
// environment overrides are applied in both cases.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}
	if err == nil {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	}

	cfg.applyEnvOverrides()
	return cfg, nil
}

// LoadWorkspace loads FileName from the given root directory.
func LoadWorkspace(root string) (*Config, error) {
	cfg, err := Load(filepath.Join(root, FileName))
	if err != nil {
		return nil, err
	}
	if cfg.Workspace.Root == "" || cfg.Workspace.Root == "." {
		cfg.Workspace.Root = root
	}
	return cfg, nil
}

// Save saves configuration to a YAML file.
func (c *Config) Save(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	return nil
}

// applyEnvOverrides applies environment variable overrides.
func (c *Config) applyEnvOverrides() {
	if p := os.Getenv("AUTOCODE_PROVIDER"); p != "" {
		c.LLM.Provider = p
	}
	if m := os.Getenv("AUTOCODE_MODEL"); m != "" {
		c.LLM.Model = m
	}
	if key := os.Getenv(APIKeyEnv(c.LLM.Provider)); key != "" {
		c.LLM.APIKey = key
	}

	if dir := os.Getenv("AUTOCODE_CACHE_DIR"); dir != "" {
		c.Workspace.CacheDir = dir
	}
	if v := os.Getenv("AUTOCODE_DRY_RUN"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			c.Generation.DryRun = b
		}
	}
	if lvl := os.Getenv("AUTOCODE_LOG_LEVEL"); lvl != "" {
		c.Logging.Level = lvl
	}
	if c.Review.Editor == "" {
		c.Review.Editor = os.Getenv("EDITOR")
	}
}

// CachePath returns the absolute-or-root-relative cache directory.
func (c *Config) CachePath() string {
	if filepath.IsAbs(c.Workspace.CacheDir) {
		return c.Workspace.CacheDir
	}
	return filepath.Join(c.Workspace.Root, c.Workspace.CacheDir)
}

// HistoryPath returns the ledger database path.
func (c *Config) HistoryPath() string {
	if filepath.IsAbs(c.History.Path) {
		return c.History.Path
	}
	return filepath.Join(c.CachePath(), c.History.Path)
}

// GetLLMTimeout returns the LLM timeout as a duration.
func (c *Config) GetLLMTimeout() time.Duration {
	return c.LLM.GetTimeout()
}

// Validate validates the configuration. API keys are not checked here; the
// agent asks for them only when a generation actually happens.
func (c *Config) Validate() error {
	if c.Generation.MaxAttempts < 1 {
		return fmt.Errorf("generation.max_attempts must be >= 1, got %d", c.Generation.MaxAttempts)
	}
	if c.Workspace.CacheDir == "" {
		return fmt.Errorf("workspace.cache_dir must not be empty")
	}
	if c.LLM.Provider == "" {
		return fmt.Errorf("llm.provider must not be empty")
	}
	if _, err := time.ParseDuration(c.LLM.Timeout); c.LLM.Timeout != "" && err != nil {
		return fmt.Errorf("invalid llm.timeout %q: %w", c.LLM.Timeout, err)
	}
	return nil
}

// FromEnv returns the defaults with environment overrides applied.
func FromEnv() *Config {
	cfg := DefaultConfig()
	cfg.applyEnvOverrides()
	return cfg
}
