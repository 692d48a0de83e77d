package provider

import (
	"context"
	"errors"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/PedramNavid/styleval/internal/cost"
)

// OpenAIClient adapts the openai-go Chat Completions API to the Client
// interface. Works with OpenAI and any OpenAI-compatible endpoint.
type OpenAIClient struct {
	client openai.Client
	calc   *cost.Calculator
}

// NewOpenAI creates an OpenAI adapter. baseURL may be empty for the default
// endpoint.
func NewOpenAI(apiKey, baseURL string, calc *cost.Calculator) *OpenAIClient {
	opts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	return &OpenAIClient{
		client: openai.NewClient(opts...),
		calc:   calc,
	}
}

// Name returns "openai".
func (c *OpenAIClient) Name() string { return "openai" }

// Generate sends a single-turn chat completion and normalizes the response.
func (c *OpenAIClient) Generate(ctx context.Context, req GenerateRequest) (*GenerateResult, error) {
	start := time.Now()

	resp, err := c.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: req.Model,
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.UserMessage(req.Prompt),
		},
		MaxCompletionTokens: openai.Int(req.MaxTokens),
		Temperature:         openai.Float(req.Temperature),
	})
	if err != nil {
		var apierr *openai.Error
		if errors.As(err, &apierr) {
			return nil, classify(c.Name(), apierr.StatusCode, err)
		}
		return nil, classify(c.Name(), 0, err)
	}

	if len(resp.Choices) == 0 {
		return nil, NewError(c.Name(), KindProviderUnavailable, errors.New("empty response"))
	}

	in := int(resp.Usage.PromptTokens)
	out := int(resp.Usage.CompletionTokens)

	return &GenerateResult{
		Text:         resp.Choices[0].Message.Content,
		InputTokens:  in,
		OutputTokens: out,
		CostUSD:      c.calc.Tokens(c.Name(), req.Model, in, out),
		Latency:      time.Since(start),
	}, nil
}
