package agents

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/sashabaranov/go-openai"

	"option-analyzer/internal/analysis/chain"
	apperrors "option-analyzer/internal/errors"
	"option-analyzer/internal/models"
	"option-analyzer/internal/resilience"
	"option-analyzer/pkg/utils"
)

const validAnalysis = `{"sentiment":"bullish","summary":"Call volume dominates.",
"keyObservations":["OI wall at 230"],"tradingSuggestions":["Sell 220 puts"],
"supportResistance":{"support":220,"resistance":230,"reason":"OI walls"}}`

type stubResult struct {
	resp openai.ChatCompletionResponse
	err  error
}

// stubLLM replays canned results and records each request.
type stubLLM struct {
	results  []stubResult
	requests []openai.ChatCompletionRequest
}

func (s *stubLLM) CreateChatCompletion(_ context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error) {
	s.requests = append(s.requests, req)
	if len(s.results) == 0 {
		return openai.ChatCompletionResponse{}, errors.New("no more stub results")
	}
	r := s.results[0]
	s.results = s.results[1:]
	return r.resp, r.err
}

func toolResponse(args string) stubResult {
	return stubResult{resp: openai.ChatCompletionResponse{
		Choices: []openai.ChatCompletionChoice{{
			Message: openai.ChatCompletionMessage{
				Role: openai.ChatMessageRoleAssistant,
				ToolCalls: []openai.ToolCall{{
					ID:       "call_1",
					Type:     openai.ToolTypeFunction,
					Function: openai.FunctionCall{Name: AnalysisToolName, Arguments: args},
				}},
			},
		}},
	}}
}

func contentResponse(content string) stubResult {
	return stubResult{resp: openai.ChatCompletionResponse{
		Choices: []openai.ChatCompletionChoice{{
			Message: openai.ChatCompletionMessage{Role: openai.ChatMessageRoleAssistant, Content: content},
		}},
	}}
}

func testChain() *models.OptionChain {
	return &models.OptionChain{
		Symbol:         "AAPL",
		Price:          228.5,
		ExpirationDate: "Dec 20, 2024",
		Strikes: []models.OptionContract{
			{Strike: 225, Type: models.Call, LastPrice: 7.1, Volume: 1500, OpenInterest: 8800, ImpliedVolatility: 24.5, InTheMoney: true},
			{Strike: 225, Type: models.Put, LastPrice: 2.9, Volume: 900, OpenInterest: 6100, ImpliedVolatility: 25.1},
		},
	}
}

func fastRetry() utils.RetryConfig {
	return utils.RetryConfig{
		MaxAttempts:   3,
		InitialDelay:  time.Millisecond,
		MaxDelay:      time.Millisecond,
		BackoffFactor: 1,
		Retryable:     []error{apperrors.ErrRateLimited, apperrors.ErrTimeout, apperrors.ErrEmptyResponse},
	}
}

func TestResolveProvider(t *testing.T) {
	tests := []struct {
		name      string
		baseURL   string
		model     string
		forceTool bool
	}{
		{"chatgpt", openAIBaseURL, "gpt-4o", true},
		{"gemini", geminiBaseURL, "gemini-1.5-flash", false},
		{"gemini-2.5", geminiBaseURL, "gemini-1.5-pro", false},
		{"gemini-3", geminiBaseURL, "gemini-1.5-pro", false},
		{"qwen", dashScopeBaseURL, "qwen-plus", true},
		{"kimi", moonshotBaseURL, "moonshot-v1-8k", true},
		{"claude", anthropicBaseURL, "claude-3-5-sonnet-20240620", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := ResolveProvider(tt.name)
			if err != nil {
				t.Fatalf("ResolveProvider() error = %v", err)
			}
			if p.BaseURL != tt.baseURL || p.Model != tt.model || p.ForceTool != tt.forceTool {
				t.Errorf("got %+v", p)
			}
		})
	}

	if _, err := ResolveProvider("bard"); !apperrors.Is(err, apperrors.ErrConfigInvalid) {
		t.Errorf("unknown provider error = %v", err)
	}
}

func TestNewOpenAIClientRequiresKey(t *testing.T) {
	_, err := NewOpenAIClient("chatgpt", "", "")
	if !apperrors.Is(err, apperrors.ErrNotConfigured) {
		t.Errorf("error = %v, want ErrNotConfigured", err)
	}
}

func TestCompleteWithToolForcesChoice(t *testing.T) {
	p, _ := ResolveProvider("chatgpt")
	stub := &stubLLM{results: []stubResult{toolResponse(validAnalysis)}}
	client := NewClientWithLLM(stub, p, "")

	got, err := client.CompleteWithTool(context.Background(), "sys", "user", AnalysisTool())
	if err != nil {
		t.Fatalf("CompleteWithTool() error = %v", err)
	}
	if got != validAnalysis {
		t.Errorf("got %q", got)
	}

	req := stub.requests[0]
	if req.Model != "gpt-4o" {
		t.Errorf("Model = %q", req.Model)
	}
	choice, ok := req.ToolChoice.(openai.ToolChoice)
	if !ok || choice.Function.Name != AnalysisToolName {
		t.Errorf("ToolChoice = %#v, want forced %s", req.ToolChoice, AnalysisToolName)
	}
	if len(req.Messages) != 2 || req.Messages[0].Role != openai.ChatMessageRoleSystem {
		t.Errorf("messages = %+v", req.Messages)
	}
}

func TestCompleteWithToolGeminiLeavesChoiceUnset(t *testing.T) {
	p, _ := ResolveProvider("gemini")
	stub := &stubLLM{results: []stubResult{contentResponse(validAnalysis)}}
	client := NewClientWithLLM(stub, p, "gemini-custom")

	got, err := client.CompleteWithTool(context.Background(), "sys", "user", AnalysisTool())
	if err != nil {
		t.Fatalf("CompleteWithTool() error = %v", err)
	}
	if got != validAnalysis {
		t.Errorf("content fallback = %q", got)
	}
	if stub.requests[0].ToolChoice != nil {
		t.Errorf("ToolChoice = %#v, want nil", stub.requests[0].ToolChoice)
	}
	if stub.requests[0].Model != "gemini-custom" {
		t.Errorf("model override ignored: %q", stub.requests[0].Model)
	}
}

func TestCompleteWithToolErrors(t *testing.T) {
	p, _ := ResolveProvider("qwen")

	tests := []struct {
		name   string
		result stubResult
		want   error
	}{
		{"no choices", stubResult{}, apperrors.ErrEmptyResponse},
		{"blank content", contentResponse("  "), apperrors.ErrEmptyResponse},
		{"rate limited", stubResult{err: &openai.APIError{HTTPStatusCode: 429, Message: "slow down"}}, apperrors.ErrRateLimited},
		{"server error", stubResult{err: &openai.APIError{HTTPStatusCode: 503, Message: "busy"}}, apperrors.ErrTimeout},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := NewClientWithLLM(&stubLLM{results: []stubResult{tt.result}}, p, "")
			_, err := client.CompleteWithTool(context.Background(), "sys", "user", AnalysisTool())
			if !apperrors.Is(err, tt.want) {
				t.Errorf("error = %v, want %v", err, tt.want)
			}
			var agentErr *apperrors.AgentError
			if !apperrors.As(err, &agentErr) || agentErr.Provider != "qwen" {
				t.Errorf("error %v is not an AgentError for qwen", err)
			}
		})
	}
}

func TestParseAnalysis(t *testing.T) {
	tests := []struct {
		name      string
		raw       string
		sentiment models.Sentiment
		wantErr   bool
	}{
		{"plain", validAnalysis, models.Bullish, false},
		{"fenced", "```json\n" + validAnalysis + "\n```", models.Bullish, false},
		{"surrounding text", "Here is the analysis: " + validAnalysis + " Hope it helps.", models.Bullish, false},
		{"upper case sentiment", `{"sentiment":"BEARISH","summary":"x"}`, models.Bearish, false},
		{"unknown sentiment", `{"sentiment":"sideways","summary":"x"}`, models.Neutral, false},
		{"empty", "", "", true},
		{"not json", "I cannot help with that.", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseAnalysis(tt.raw)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseAnalysis() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil {
				return
			}
			if got.Sentiment != tt.sentiment {
				t.Errorf("Sentiment = %q, want %q", got.Sentiment, tt.sentiment)
			}
			if got.KeyObservations == nil || got.TradingSuggestions == nil {
				t.Error("list fields should never be nil")
			}
		})
	}
}

// Property: whatever the backend puts in the sentiment field, the decoded
// analysis carries one of the three known sentiments.
func TestProperty_ParseAnalysisSentimentIsKnown(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	parameters.Rng.Seed(time.Now().UnixNano())

	properties := gopter.NewProperties(parameters)

	properties.Property("sentiment normalised", prop.ForAll(
		func(sentiment string) bool {
			raw, err := json.Marshal(map[string]interface{}{
				"sentiment": sentiment,
				"summary":   "s",
			})
			if err != nil {
				return false
			}
			got, err := ParseAnalysis(string(raw))
			if err != nil {
				return false
			}
			switch got.Sentiment {
			case models.Bullish, models.Bearish, models.Neutral:
				return true
			}
			return false
		},
		gen.OneGenOf(gen.AnyString(), gen.OneConstOf("bullish", "Bearish", " neutral ", "")),
	))

	properties.TestingRun(t)
}

func TestAnalystSendsPayloadAndRetries(t *testing.T) {
	p, _ := ResolveProvider("chatgpt")
	stub := &stubLLM{results: []stubResult{
		{err: &openai.APIError{HTTPStatusCode: 429, Message: "slow down"}},
		toolResponse(validAnalysis),
	}}
	engine := chain.NewEngineWithClock(chain.FixedClock(time.Date(2024, 12, 1, 12, 0, 0, 0, time.UTC)))
	analyst := NewOptionAnalyst(NewClientWithLLM(stub, p, ""), p.Name, WithRetry(fastRetry()), WithEngine(engine))

	got, err := analyst.Analyze(context.Background(), testChain())
	if err != nil {
		t.Fatalf("Analyze() error = %v", err)
	}
	if got.Sentiment != models.Bullish || got.SupportResistance.Resistance != 230 {
		t.Errorf("analysis = %+v", got)
	}
	if len(stub.requests) != 2 {
		t.Fatalf("requests = %d, want 2", len(stub.requests))
	}

	user := stub.requests[1].Messages[1].Content
	if !strings.HasPrefix(user, DefaultPrompt+"\n\n") {
		t.Errorf("user message does not start with prompt: %q", user)
	}
	if !strings.Contains(user, `"dte": 19`) || !strings.Contains(user, `"putCallRatio": "0.60"`) {
		t.Errorf("user message missing payload fields: %s", user)
	}
}

func TestAnalystDoesNotRetryDecodeFailures(t *testing.T) {
	p, _ := ResolveProvider("kimi")
	stub := &stubLLM{results: []stubResult{contentResponse("{not json}"), toolResponse(validAnalysis)}}
	analyst := NewOptionAnalyst(NewClientWithLLM(stub, p, ""), p.Name, WithRetry(fastRetry()))

	if _, err := analyst.Analyze(context.Background(), testChain()); err == nil {
		t.Fatal("expected decode error")
	}
	if len(stub.requests) != 1 {
		t.Errorf("requests = %d, want 1", len(stub.requests))
	}
}

func TestAnalystNilChain(t *testing.T) {
	analyst := NewOptionAnalyst(&OpenAIClient{}, "chatgpt")
	if _, err := analyst.Analyze(context.Background(), nil); !apperrors.Is(err, apperrors.ErrMalformedChain) {
		t.Errorf("error = %v, want ErrMalformedChain", err)
	}
}

func TestAnalystBreakerRejectsWhileOpen(t *testing.T) {
	p, _ := ResolveProvider("qwen")
	stub := &stubLLM{results: []stubResult{contentResponse("{not json}"), toolResponse(validAnalysis)}}
	cb := resilience.NewCircuitBreaker(p.Name, resilience.CircuitBreakerConfig{FailureThreshold: 1, Cooldown: time.Hour})
	analyst := NewOptionAnalyst(NewClientWithLLM(stub, p, ""), p.Name, WithRetry(fastRetry()), WithBreaker(cb))

	if _, err := analyst.Analyze(context.Background(), testChain()); err == nil {
		t.Fatal("expected decode error")
	}
	_, err := analyst.Analyze(context.Background(), testChain())
	var agentErr *apperrors.AgentError
	if !errors.As(err, &agentErr) || !errors.Is(err, resilience.ErrCircuitOpen) {
		t.Fatalf("err = %v, want open circuit agent error", err)
	}
	if len(stub.requests) != 1 {
		t.Errorf("requests = %d, want 1", len(stub.requests))
	}
	if analyst.Breaker().Stats().TotalRejected != 1 {
		t.Errorf("stats = %+v", analyst.Breaker().Stats())
	}
}
