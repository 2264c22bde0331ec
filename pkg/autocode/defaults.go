package autocode

import (
	"context"
	"runtime"
	"sync"
	"sync/atomic"

	"autocode/internal/config"
	"autocode/internal/identity"
	"autocode/internal/logging"

	"github.com/joho/godotenv"
)

var (
	defaultAssistant atomic.Pointer[Assistant]
	defaultMu        sync.Mutex
)

// Setup replaces the process-wide assistant used by the package-level
// Autocode and Decorate, and initializes logging from cfg.Logging. When
// cfg.DotenvPath is set the file is loaded into the environment first;
// variables already set are kept.
func Setup(cfg *Config, opts ...AssistantOption) error {
	if cfg != nil {
		if err := logging.Initialize(cfg.Logging.ToLogging()); err != nil {
			return configErr("logging", err)
		}
	}
	if cfg != nil && cfg.DotenvPath != "" {
		if err := godotenv.Load(cfg.DotenvPath); err != nil {
			return configErr("dotenv", err)
		}
		logging.BootDebug("loaded %s", cfg.DotenvPath)
	}

	a, err := New(cfg, opts...)
	if err != nil {
		return err
	}

	logging.Boot("default assistant ready: cache=%s agent=%s", a.ws.Root(), agentName(a.agent))

	defaultMu.Lock()
	defer defaultMu.Unlock()
	if old := defaultAssistant.Swap(a); old != nil {
		if err := old.Close(); err != nil {
			logging.AssistantWarn("closing previous assistant: %v", err)
		}
	}
	return nil
}

// Default returns the process-wide assistant, creating it from
// ./.autocode.yaml and the environment on first use.
func Default() (*Assistant, error) {
	if a := defaultAssistant.Load(); a != nil {
		return a, nil
	}

	defaultMu.Lock()
	defer defaultMu.Unlock()
	if a := defaultAssistant.Load(); a != nil {
		return a, nil
	}
	cfg, err := config.LoadWorkspace(".")
	if err != nil {
		return nil, configErr("config", err)
	}
	a, err := New(cfg)
	if err != nil {
		return nil, err
	}
	defaultAssistant.Store(a)
	return a, nil
}

// Autocode calls Autocode on the default assistant.
func Autocode(ctx context.Context, description string, opts ...Option) (Artifact, error) {
	a, err := Default()
	if err != nil {
		return nil, err
	}
	_, file, _, _ := runtime.Caller(1)
	return a.autocode(ctx, description, identity.Location(a.root, file), opts)
}
