package autocode

import (
	"context"
	"fmt"
	"net/http"

	"autocode/internal/config"
	"autocode/internal/logging"

	openai "github.com/sashabaranov/go-openai"
)

// OpenAIAgent generates code with the OpenAI chat completions API.
type OpenAIAgent struct {
	client      *openai.Client
	model       string
	temperature float32
}

// NewOpenAIAgent creates an agent from cfg. cfg.BaseURL points it at any
// OpenAI-compatible endpoint.
func NewOpenAIAgent(cfg config.LLMConfig) *OpenAIAgent {
	oc := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		oc.BaseURL = cfg.BaseURL
	}
	oc.HTTPClient = &http.Client{Timeout: cfg.GetTimeout()}

	return &OpenAIAgent{
		client:      openai.NewClientWithConfig(oc),
		model:       cfg.ResolvedModel(),
		temperature: float32(cfg.Temperature),
	}
}

func (a *OpenAIAgent) Name() string { return "openai/" + a.model }

func (a *OpenAIAgent) Generate(ctx context.Context, gc GenerationContext) (string, error) {
	return a.complete(ctx, BuildPrompt(gc))
}

func (a *OpenAIAgent) Repair(ctx context.Context, gc GenerationContext, previous string, fb Feedback) (string, error) {
	return a.complete(ctx, BuildPrompt(repairContext(gc, previous, fb)))
}

func (a *OpenAIAgent) complete(ctx context.Context, prompt string) (string, error) {
	timer := logging.StartTimer(logging.CategoryAgent, "OpenAI.complete")
	defer timer.Stop()

	logging.AgentDebug("openai request: model=%s prompt_len=%d", a.model, len(prompt))
	resp, err := a.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: a.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: SystemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
		Temperature: a.temperature,
	})
	if err != nil {
		logging.AgentError("%s request failed: %v", a.Name(), err)
		return "", &AgentError{Agent: a.Name(), Err: err}
	}
	if len(resp.Choices) == 0 {
		return "", &AgentError{Agent: a.Name(), Err: fmt.Errorf("no choices in response")}
	}
	return ExtractCode(resp.Choices[0].Message.Content), nil
}
