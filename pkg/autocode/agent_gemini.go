package autocode

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"autocode/internal/config"
	"autocode/internal/logging"

	"google.golang.org/genai"
)

// GeminiAgent generates code with the Gemini API.
type GeminiAgent struct {
	client      *genai.Client
	model       string
	temperature float32
}

// NewGeminiAgent creates an agent from cfg.
func NewGeminiAgent(ctx context.Context, cfg config.LLMConfig) (*GeminiAgent, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:     cfg.APIKey,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: &http.Client{Timeout: cfg.GetTimeout()},
	})
	if err != nil {
		return nil, configErr("agent", fmt.Errorf("failed to create GenAI client: %w", err))
	}
	return &GeminiAgent{
		client:      client,
		model:       cfg.ResolvedModel(),
		temperature: float32(cfg.Temperature),
	}, nil
}

func (a *GeminiAgent) Name() string { return "gemini/" + a.model }

func (a *GeminiAgent) Generate(ctx context.Context, gc GenerationContext) (string, error) {
	return a.complete(ctx, BuildPrompt(gc))
}

func (a *GeminiAgent) Repair(ctx context.Context, gc GenerationContext, previous string, fb Feedback) (string, error) {
	return a.complete(ctx, BuildPrompt(repairContext(gc, previous, fb)))
}

func (a *GeminiAgent) complete(ctx context.Context, prompt string) (string, error) {
	timer := logging.StartTimer(logging.CategoryAgent, "Gemini.complete")
	defer timer.Stop()

	logging.AgentDebug("gemini request: model=%s prompt_len=%d", a.model, len(prompt))
	resp, err := a.client.Models.GenerateContent(ctx, a.model,
		[]*genai.Content{genai.NewContentFromText(prompt, genai.RoleUser)},
		&genai.GenerateContentConfig{
			SystemInstruction: genai.NewContentFromText(SystemPrompt, genai.RoleUser),
			Temperature:       genai.Ptr(a.temperature),
		},
	)
	if err != nil {
		logging.AgentError("%s request failed: %v", a.Name(), err)
		return "", &AgentError{Agent: a.Name(), Err: err}
	}
	text := resp.Text()
	if strings.TrimSpace(text) == "" {
		return "", &AgentError{Agent: a.Name(), Err: fmt.Errorf("empty response")}
	}
	return ExtractCode(text), nil
}
