package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEnvOverrides_LLM(t *testing.T) {
	t.Run("OPENAI_API_KEY fills default provider key", func(t *testing.T) {
		clearEnv(t)
		t.Setenv("OPENAI_API_KEY", "oa-key")

		cfg := DefaultConfig()
		cfg.applyEnvOverrides()

		assert.Equal(t, "oa-key", cfg.LLM.APIKey)
		assert.Equal(t, ProviderOpenAI, cfg.LLM.Provider)
	})

	t.Run("key follows provider override", func(t *testing.T) {
		clearEnv(t)
		t.Setenv("OPENAI_API_KEY", "oa-key")
		t.Setenv("GEMINI_API_KEY", "gm-key")
		t.Setenv("AUTOCODE_PROVIDER", "gemini")

		cfg := DefaultConfig()
		cfg.applyEnvOverrides()

		assert.Equal(t, "gemini", cfg.LLM.Provider)
		assert.Equal(t, "gm-key", cfg.LLM.APIKey)
	})

	t.Run("gollm providers use their own variable", func(t *testing.T) {
		clearEnv(t)
		t.Setenv("ANTHROPIC_API_KEY", "ant-key")

		cfg := DefaultConfig()
		cfg.LLM.Provider = "anthropic"
		cfg.applyEnvOverrides()

		assert.Equal(t, "ant-key", cfg.LLM.APIKey)
	})

	t.Run("empty env keeps file value", func(t *testing.T) {
		clearEnv(t)
		cfg := DefaultConfig()
		cfg.LLM.APIKey = "from-file"
		cfg.applyEnvOverrides()

		assert.Equal(t, "from-file", cfg.LLM.APIKey)
	})

	t.Run("model override", func(t *testing.T) {
		clearEnv(t)
		t.Setenv("AUTOCODE_MODEL", "gpt-4o-mini")
		cfg := DefaultConfig()
		cfg.applyEnvOverrides()
		assert.Equal(t, "gpt-4o-mini", cfg.LLM.Model)
	})
}

func TestEnvOverrides_Workspace(t *testing.T) {
	clearEnv(t)
	t.Setenv("AUTOCODE_CACHE_DIR", "/tmp/ac-cache")
	t.Setenv("AUTOCODE_DRY_RUN", "true")
	t.Setenv("AUTOCODE_LOG_LEVEL", "debug")
	t.Setenv("EDITOR", "vim")

	cfg := DefaultConfig()
	cfg.applyEnvOverrides()

	assert.Equal(t, "/tmp/ac-cache", cfg.Workspace.CacheDir)
	assert.Equal(t, "/tmp/ac-cache", cfg.CachePath())
	assert.True(t, cfg.Generation.DryRun)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, "vim", cfg.Review.Editor)
}

func TestEnvOverrides_InvalidBoolIgnored(t *testing.T) {
	clearEnv(t)
	t.Setenv("AUTOCODE_DRY_RUN", "sometimes")
	cfg := DefaultConfig()
	cfg.applyEnvOverrides()
	assert.False(t, cfg.Generation.DryRun)
}

func TestAPIKeyEnv(t *testing.T) {
	assert.Equal(t, "OPENAI_API_KEY", APIKeyEnv(""))
	assert.Equal(t, "GEMINI_API_KEY", APIKeyEnv("gemini"))
	assert.Equal(t, "OPEN_ROUTER_API_KEY", APIKeyEnv("open-router"))
}
