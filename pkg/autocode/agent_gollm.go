package autocode

import (
	"context"
	"strings"

	"autocode/internal/config"
	"autocode/internal/logging"

	"github.com/teilomillet/gollm"
)

// GollmAgent generates code through gollm, which covers anthropic, groq,
// mistral, ollama and the other providers without a dedicated agent.
type GollmAgent struct {
	llm      gollm.LLM
	provider string
	model    string
}

// NewGollmAgent creates an agent from cfg.
func NewGollmAgent(cfg config.LLMConfig) (*GollmAgent, error) {
	provider := strings.ToLower(cfg.Provider)
	model := cfg.ResolvedModel()

	opts := []gollm.ConfigOption{
		gollm.SetProvider(provider),
		gollm.SetModel(model),
		gollm.SetTemperature(cfg.Temperature),
		gollm.SetTimeout(cfg.GetTimeout()),
		gollm.SetMaxRetries(0),
		gollm.SetLogLevel(gollm.LogLevelWarn),
	}
	if cfg.APIKey != "" {
		opts = append(opts, gollm.SetAPIKey(cfg.APIKey))
	}
	if provider == config.ProviderOllama && cfg.BaseURL != "" {
		opts = append(opts, gollm.SetOllamaEndpoint(cfg.BaseURL))
	}

	llm, err := gollm.NewLLM(opts...)
	if err != nil {
		return nil, configErr("agent", err)
	}
	return &GollmAgent{llm: llm, provider: provider, model: model}, nil
}

func (a *GollmAgent) Name() string { return a.provider + "/" + a.model }

func (a *GollmAgent) Generate(ctx context.Context, gc GenerationContext) (string, error) {
	return a.complete(ctx, BuildPrompt(gc))
}

func (a *GollmAgent) Repair(ctx context.Context, gc GenerationContext, previous string, fb Feedback) (string, error) {
	return a.complete(ctx, BuildPrompt(repairContext(gc, previous, fb)))
}

func (a *GollmAgent) complete(ctx context.Context, text string) (string, error) {
	timer := logging.StartTimer(logging.CategoryAgent, "Gollm.complete")
	defer timer.Stop()

	logging.AgentDebug("%s request: prompt_len=%d", a.Name(), len(text))
	prompt := gollm.NewPrompt(text, gollm.WithSystemPrompt(strings.TrimSpace(SystemPrompt), gollm.CacheTypeEphemeral))
	reply, err := a.llm.Generate(ctx, prompt)
	if err != nil {
		logging.AgentError("%s request failed: %v", a.Name(), err)
		return "", &AgentError{Agent: a.Name(), Err: err}
	}
	return ExtractCode(reply), nil
}
