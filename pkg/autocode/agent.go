package autocode

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"

	"autocode/internal/config"
	"autocode/internal/logging"
)

// Agent produces Go source for a GenerationContext.
//
// Generate is used for the first attempt. Repair is used after a failed
// attempt; gc.Feedbacks already ends with fb, and previous is the source
// that failed. Agents must not retry internally: the assistant owns the
// attempt budget.
type Agent interface {
	Generate(ctx context.Context, gc GenerationContext) (string, error)
	Repair(ctx context.Context, gc GenerationContext, previous string, fb Feedback) (string, error)
}

// AgentFuncs adapts plain functions to Agent. A nil RepairFunc falls back
// to GenerateFunc, which sees the feedback history on gc.
type AgentFuncs struct {
	AgentName    string
	GenerateFunc func(ctx context.Context, gc GenerationContext) (string, error)
	RepairFunc   func(ctx context.Context, gc GenerationContext, previous string, fb Feedback) (string, error)
}

func (f AgentFuncs) Generate(ctx context.Context, gc GenerationContext) (string, error) {
	if f.GenerateFunc == nil {
		return "", fmt.Errorf("no GenerateFunc")
	}
	return f.GenerateFunc(ctx, gc)
}

func (f AgentFuncs) Repair(ctx context.Context, gc GenerationContext, previous string, fb Feedback) (string, error) {
	if f.RepairFunc != nil {
		return f.RepairFunc(ctx, gc, previous, fb)
	}
	return f.Generate(ctx, gc)
}

func (f AgentFuncs) Name() string {
	if f.AgentName == "" {
		return "func"
	}
	return f.AgentName
}

// agentName reports a printable name for metadata and logs.
func agentName(a Agent) string {
	if n, ok := a.(interface{ Name() string }); ok {
		return n.Name()
	}
	return fmt.Sprintf("%T", a)
}

// NewAgent builds the built-in agent for cfg.Provider: OpenAI and Gemini use
// their own SDKs, every other provider goes through gollm. A missing API key
// is a *ConfigurationError.
func NewAgent(ctx context.Context, cfg config.LLMConfig) (Agent, error) {
	provider := strings.ToLower(cfg.Provider)
	if provider == "" {
		provider = config.ProviderOpenAI
		cfg.Provider = provider
	}
	if cfg.APIKey == "" {
		cfg.APIKey = os.Getenv(config.APIKeyEnv(provider))
	}
	if cfg.APIKey == "" && cfg.NeedsAPIKey() {
		return nil, configErr("agent", fmt.Errorf("%s is not set", config.APIKeyEnv(provider)))
	}
	if cfg.ResolvedModel() == "" {
		return nil, configErr("agent", fmt.Errorf("no model configured for provider %q", provider))
	}

	logging.Agent("creating %s agent (model=%s)", provider, cfg.ResolvedModel())
	switch provider {
	case config.ProviderOpenAI:
		return NewOpenAIAgent(cfg), nil
	case config.ProviderGemini:
		return NewGeminiAgent(ctx, cfg)
	default:
		return NewGollmAgent(cfg)
	}
}

// lazyAgent defers NewAgent to the first generation so that cache hits and
// dry runs never need credentials.
type lazyAgent struct {
	cfg   config.LLMConfig
	once  sync.Once
	mu    sync.Mutex // guards agent for Name
	agent Agent
	err   error
}

func newLazyAgent(cfg config.LLMConfig) *lazyAgent {
	return &lazyAgent{cfg: cfg}
}

func (l *lazyAgent) resolve(ctx context.Context) (Agent, error) {
	l.once.Do(func() {
		a, err := NewAgent(ctx, l.cfg)
		l.mu.Lock()
		l.agent, l.err = a, err
		l.mu.Unlock()
	})
	return l.agent, l.err
}

func (l *lazyAgent) Generate(ctx context.Context, gc GenerationContext) (string, error) {
	a, err := l.resolve(ctx)
	if err != nil {
		return "", err
	}
	return a.Generate(ctx, gc)
}

func (l *lazyAgent) Repair(ctx context.Context, gc GenerationContext, previous string, fb Feedback) (string, error) {
	a, err := l.resolve(ctx)
	if err != nil {
		return "", err
	}
	return a.Repair(ctx, gc, previous, fb)
}

func (l *lazyAgent) Name() string {
	l.mu.Lock()
	a := l.agent
	l.mu.Unlock()
	if a != nil {
		return agentName(a)
	}
	return l.cfg.Provider + "/" + l.cfg.ResolvedModel()
}

// repairContext makes sure the prompt for a repair carries fb even when a
// custom caller passes a context without it.
func repairContext(gc GenerationContext, previous string, fb Feedback) GenerationContext {
	if n := len(gc.Feedbacks); n > 0 && gc.Feedbacks[n-1] == fb {
		return gc
	}
	if fb.PreviousSource == "" {
		fb.PreviousSource = previous
	}
	return gc.withFeedback(fb)
}
