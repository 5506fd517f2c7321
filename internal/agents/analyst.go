package agents

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai"
	"github.com/sashabaranov/go-openai/jsonschema"

	"option-analyzer/internal/analysis/chain"
	apperrors "option-analyzer/internal/errors"
	"option-analyzer/internal/logging"
	"option-analyzer/internal/models"
	"option-analyzer/internal/resilience"
	"option-analyzer/internal/security"
	"option-analyzer/pkg/utils"
)

// AnalysisToolName is the function the model is asked to call.
const AnalysisToolName = "generate_option_analysis"

// DefaultPrompt is prepended to the chain payload in the user message.
const DefaultPrompt = "Perform a deep technical analysis of this option chain. Look for unusual levels or high OI walls."

const systemPrompt = `You are an expert Options Trader and Quantitative Analyst.
Your goal is to analyze the provided Option Chain data (Strikes, Volume, Open Interest, IV) and provide actionable investment insights.

Analyze the following:
1. **Put/Call Ratio**: Sentiment indicator.
2. **Open Interest Walls**: Identify potential Support and Resistance levels.
3. **Volume Anomalies**: Identify unusual activity.
4. **Implied Volatility**: Assess if options are expensive or cheap.

Output must be in JSON format matching the schema.`

// AnalysisSchema is the JSON schema of models.OptionAnalysis.
var AnalysisSchema = jsonschema.Definition{
	Type: jsonschema.Object,
	Properties: map[string]jsonschema.Definition{
		"sentiment": {
			Type:        jsonschema.String,
			Enum:        []string{string(models.Bullish), string(models.Bearish), string(models.Neutral)},
			Description: "Overall market sentiment based on option data",
		},
		"summary": {
			Type:        jsonschema.String,
			Description: "Comprehensive summary of the option chain analysis",
		},
		"keyObservations": {
			Type:        jsonschema.Array,
			Items:       &jsonschema.Definition{Type: jsonschema.String},
			Description: "Key data points like unusual volume, OI walls, etc.",
		},
		"tradingSuggestions": {
			Type:        jsonschema.Array,
			Items:       &jsonschema.Definition{Type: jsonschema.String},
			Description: "Potential trading strategies based on analysis",
		},
		"supportResistance": {
			Type: jsonschema.Object,
			Properties: map[string]jsonschema.Definition{
				"support":    {Type: jsonschema.Number},
				"resistance": {Type: jsonschema.Number},
				"reason":     {Type: jsonschema.String},
			},
			Required:             []string{"support", "resistance", "reason"},
			AdditionalProperties: false,
		},
	},
	Required:             []string{"sentiment", "summary", "keyObservations", "tradingSuggestions", "supportResistance"},
	AdditionalProperties: false,
}

// AnalysisTool offers AnalysisSchema as a callable function.
func AnalysisTool() openai.Tool {
	return openai.Tool{
		Type: openai.ToolTypeFunction,
		Function: &openai.FunctionDefinition{
			Name:        AnalysisToolName,
			Description: "Generate option chain analysis",
			Parameters:  AnalysisSchema,
		},
	}
}

// Completer sends one tool-offering request. *OpenAIClient implements it.
type Completer interface {
	CompleteWithTool(ctx context.Context, systemPrompt, userPrompt string, tool openai.Tool) (string, error)
}

// OptionAnalyst asks the backend for a structured read of an option chain.
type OptionAnalyst struct {
	client   Completer
	provider string
	engine   *chain.Engine
	retry    utils.RetryConfig
	timeout  time.Duration
	breaker  *resilience.CircuitBreaker
}

// AnalystOption configures an OptionAnalyst.
type AnalystOption func(*OptionAnalyst)

// WithRetry overrides the retry policy.
func WithRetry(cfg utils.RetryConfig) AnalystOption {
	return func(a *OptionAnalyst) { a.retry = cfg }
}

// WithTimeout bounds each backend attempt.
func WithTimeout(d time.Duration) AnalystOption {
	return func(a *OptionAnalyst) { a.timeout = d }
}

// WithBreaker guards backend calls with cb. Each retried analysis counts
// as one call.
func WithBreaker(cb *resilience.CircuitBreaker) AnalystOption {
	return func(a *OptionAnalyst) { a.breaker = cb }
}

// WithEngine sets the engine used to build the payload.
func WithEngine(e *chain.Engine) AnalystOption {
	return func(a *OptionAnalyst) { a.engine = e }
}

// DefaultAnalystRetry retries rate limits, timeouts and empty responses.
func DefaultAnalystRetry() utils.RetryConfig {
	retry := utils.DefaultRetryConfig()
	retry.Retryable = []error{apperrors.ErrRateLimited, apperrors.ErrTimeout, apperrors.ErrEmptyResponse}
	return retry
}

// NewOptionAnalyst creates an analyst. provider is only used for logging and errors.
func NewOptionAnalyst(client Completer, provider string, opts ...AnalystOption) *OptionAnalyst {
	a := &OptionAnalyst{
		client:   client,
		provider: provider,
		engine:   chain.NewEngine(),
		retry:    DefaultAnalystRetry(),
		timeout:  60 * time.Second,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Breaker returns the circuit breaker guarding the backend, or nil.
func (a *OptionAnalyst) Breaker() *resilience.CircuitBreaker {
	return a.breaker
}

// Analyze sends the chain payload with DefaultPrompt.
func (a *OptionAnalyst) Analyze(ctx context.Context, c *models.OptionChain) (*models.OptionAnalysis, error) {
	return a.AnalyzeWithPrompt(ctx, c, DefaultPrompt)
}

// AnalyzeWithPrompt sends prompt followed by the chain payload and decodes
// the structured result.
func (a *OptionAnalyst) AnalyzeWithPrompt(ctx context.Context, c *models.OptionChain, prompt string) (*models.OptionAnalysis, error) {
	if c == nil {
		return nil, apperrors.ErrMalformedChain
	}
	logger := logging.WithProvider(logging.WithSymbol(logging.FromContext(ctx), c.Symbol), a.provider)

	payload, err := a.engine.FormatForAnalysis(c)
	if err != nil {
		return nil, apperrors.NewDataError("payload", c.Symbol, "formatting chain", err)
	}
	userPrompt := strings.TrimSpace(prompt) + "\n\n" + payload

	start := time.Now()
	analysis, err := resilience.ExecuteWithResult(a.breaker, ctx, func(ctx context.Context) (*models.OptionAnalysis, error) {
		return utils.RetryWithResult(ctx, a.retry, func() (*models.OptionAnalysis, error) {
			callCtx, cancel := context.WithTimeout(ctx, a.timeout)
			defer cancel()

			raw, err := a.client.CompleteWithTool(callCtx, systemPrompt, userPrompt, AnalysisTool())
			if err != nil {
				logger.Warn().Err(security.RedactedError(err)).Msg("analysis request failed")
				return nil, err
			}
			return ParseAnalysis(raw)
		})
	})
	logging.LogAPICall(logger, a.provider, "analyze", time.Since(start), err)
	if apperrors.Is(err, resilience.ErrCircuitOpen) {
		return nil, apperrors.NewAgentError(a.provider, "analyze", err)
	}
	if err != nil {
		return nil, err
	}

	logging.LogAnalysis(logger, c.Symbol, a.provider, string(analysis.Sentiment), time.Since(start))
	return analysis, nil
}

// ParseAnalysis decodes a backend response. Markdown code fences and text
// around the JSON object are ignored, and an unknown sentiment becomes neutral.
func ParseAnalysis(raw string) (*models.OptionAnalysis, error) {
	body := extractJSON(raw)
	if body == "" {
		return nil, apperrors.ErrEmptyResponse
	}

	var out models.OptionAnalysis
	if err := json.Unmarshal([]byte(body), &out); err != nil {
		return nil, fmt.Errorf("decoding analysis: %w", err)
	}

	switch s := models.Sentiment(strings.ToLower(strings.TrimSpace(string(out.Sentiment)))); s {
	case models.Bullish, models.Bearish, models.Neutral:
		out.Sentiment = s
	default:
		out.Sentiment = models.Neutral
	}
	if out.KeyObservations == nil {
		out.KeyObservations = []string{}
	}
	if out.TradingSuggestions == nil {
		out.TradingSuggestions = []string{}
	}
	return &out, nil
}

func extractJSON(raw string) string {
	s := strings.TrimSpace(raw)
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")

	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start < 0 || end <= start {
		return ""
	}
	return s[start : end+1]
}
