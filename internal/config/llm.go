package config

import (
	"strings"
	"time"
)

// Providers with a dedicated SDK; anything else is routed through gollm.
const (
	ProviderOpenAI = "openai"
	ProviderGemini = "gemini"
	ProviderOllama = "ollama"
)

// DefaultTimeout applies when llm.timeout is empty or invalid.
const DefaultTimeout = 120 * time.Second

var defaultModels = map[string]string{
	ProviderOpenAI: "gpt-4.1",
	ProviderGemini: "gemini-2.5-flash",
	"anthropic":    "claude-sonnet-4-5",
	"groq":         "llama-3.3-70b-versatile",
	"mistral":      "mistral-large-latest",
	ProviderOllama: "llama3.2",
}

// LLMConfig configures the built-in agents.
type LLMConfig struct {
	Provider    string  `yaml:"provider"` // openai, gemini, or any gollm provider (anthropic, groq, ollama...)
	APIKey      string  `yaml:"api_key,omitempty"`
	Model       string  `yaml:"model,omitempty"` // Empty picks the provider default
	BaseURL     string  `yaml:"base_url,omitempty"`
	Temperature float64 `yaml:"temperature"`
	Timeout     string  `yaml:"timeout"`
}

// APIKeyEnv returns the environment variable holding the key for a provider,
// e.g. "openai" -> OPENAI_API_KEY.
func APIKeyEnv(provider string) string {
	if provider == "" {
		provider = ProviderOpenAI
	}
	return strings.ToUpper(strings.ReplaceAll(provider, "-", "_")) + "_API_KEY"
}

// ResolvedModel returns Model, or the provider default when it is empty.
func (c LLMConfig) ResolvedModel() string {
	if c.Model != "" {
		return c.Model
	}
	return defaultModels[strings.ToLower(c.Provider)]
}

// NeedsAPIKey reports whether the provider authenticates with a key.
func (c LLMConfig) NeedsAPIKey() bool {
	return strings.ToLower(c.Provider) != ProviderOllama
}

// GetTimeout returns Timeout as a duration.
func (c LLMConfig) GetTimeout() time.Duration {
	d, err := time.ParseDuration(c.Timeout)
	if err != nil || d <= 0 {
		return DefaultTimeout
	}
	return d
}
