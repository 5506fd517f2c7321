// Package agents provides the generative-text backend that turns an option
// chain payload into a structured analysis.
package agents

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/sashabaranov/go-openai"

	apperrors "option-analyzer/internal/errors"
)

// LLMClient is the subset of *openai.Client used here.
type LLMClient interface {
	CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

// Provider describes an OpenAI-compatible endpoint.
type Provider struct {
	Name    string
	BaseURL string
	Model   string
	// ForceTool pins tool_choice to the analysis function. Google's
	// compatible endpoint rejects forced choices so Gemini leaves it unset.
	ForceTool bool
	MaxTokens int
}

const (
	openAIBaseURL    = "https://api.openai.com/v1"
	geminiBaseURL    = "https://generativelanguage.googleapis.com/v1beta/openai"
	dashScopeBaseURL = "https://dashscope.aliyuncs.com/compatible-mode/v1"
	moonshotBaseURL  = "https://api.moonshot.cn/v1"
	anthropicBaseURL = "https://api.anthropic.com/v1"
)

var providers = map[string]Provider{
	"chatgpt":    {Name: "chatgpt", BaseURL: openAIBaseURL, Model: "gpt-4o", ForceTool: true},
	"gemini":     {Name: "gemini", BaseURL: geminiBaseURL, Model: "gemini-1.5-flash"},
	"gemini-2.5": {Name: "gemini-2.5", BaseURL: geminiBaseURL, Model: "gemini-1.5-pro"},
	"gemini-3":   {Name: "gemini-3", BaseURL: geminiBaseURL, Model: "gemini-1.5-pro"},
	"qwen":       {Name: "qwen", BaseURL: dashScopeBaseURL, Model: "qwen-plus", ForceTool: true},
	"kimi":       {Name: "kimi", BaseURL: moonshotBaseURL, Model: "moonshot-v1-8k", ForceTool: true},
	"claude":     {Name: "claude", BaseURL: anthropicBaseURL, Model: "claude-3-5-sonnet-20240620", ForceTool: true, MaxTokens: 1024},
}

// ResolveProvider looks up a provider by name.
func ResolveProvider(name string) (Provider, error) {
	p, ok := providers[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return Provider{}, fmt.Errorf("unknown ai provider %q: %w", name, apperrors.ErrConfigInvalid)
	}
	return p, nil
}

// OpenAIClient sends chat completions to one provider.
type OpenAIClient struct {
	client   LLMClient
	provider Provider
	model    string
}

// NewOpenAIClient creates a client for the named provider. An empty model
// uses the provider default.
func NewOpenAIClient(providerName, apiKey, model string) (*OpenAIClient, error) {
	p, err := ResolveProvider(providerName)
	if err != nil {
		return nil, err
	}
	if apiKey == "" {
		return nil, apperrors.NewAgentError(p.Name, "init", apperrors.ErrNotConfigured)
	}

	cfg := openai.DefaultConfig(apiKey)
	cfg.BaseURL = p.BaseURL
	return NewClientWithLLM(openai.NewClientWithConfig(cfg), p, model), nil
}

// NewClientWithLLM wraps an existing LLMClient.
func NewClientWithLLM(client LLMClient, p Provider, model string) *OpenAIClient {
	if model == "" {
		model = p.Model
	}
	return &OpenAIClient{client: client, provider: p, model: model}
}

// Provider returns the provider this client talks to.
func (c *OpenAIClient) Provider() Provider {
	return c.provider
}

// GetModel returns the model name.
func (c *OpenAIClient) GetModel() string {
	return c.model
}

// CompleteWithTool sends a system and user message offering a single tool and
// returns the tool call arguments. When the model answers in plain content
// instead, that content is returned.
func (c *OpenAIClient) CompleteWithTool(ctx context.Context, systemPrompt, userPrompt string, tool openai.Tool) (string, error) {
	req := openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: userPrompt},
		},
		Tools:     []openai.Tool{tool},
		MaxTokens: c.provider.MaxTokens,
	}
	if c.provider.ForceTool && tool.Function != nil {
		req.ToolChoice = openai.ToolChoice{
			Type:     openai.ToolTypeFunction,
			Function: openai.ToolFunction{Name: tool.Function.Name},
		}
	}

	resp, err := c.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return "", &apperrors.AgentError{Provider: c.provider.Name, Operation: "completion", Err: classify(err)}
	}
	if len(resp.Choices) == 0 {
		return "", &apperrors.AgentError{Provider: c.provider.Name, Operation: "completion", Err: apperrors.ErrEmptyResponse}
	}

	msg := resp.Choices[0].Message
	for _, call := range msg.ToolCalls {
		if call.Function.Arguments != "" {
			return call.Function.Arguments, nil
		}
	}
	if strings.TrimSpace(msg.Content) == "" {
		return "", &apperrors.AgentError{Provider: c.provider.Name, Operation: "completion", Err: apperrors.ErrEmptyResponse}
	}
	return msg.Content, nil
}

// classify maps transport failures onto the sentinel errors callers retry on.
func classify(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.HTTPStatusCode == http.StatusTooManyRequests:
			return fmt.Errorf("%w: %v", apperrors.ErrRateLimited, err)
		case apiErr.HTTPStatusCode >= 500:
			return fmt.Errorf("%w: %v", apperrors.ErrTimeout, err)
		}
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", apperrors.ErrTimeout, err)
	}
	return err
}
