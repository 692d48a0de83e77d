package provider

import (
	"context"
	"errors"
	"time"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/PedramNavid/styleval/internal/cost"
)

// AnthropicClient adapts the official anthropic-sdk-go to the Client interface.
type AnthropicClient struct {
	client sdk.Client
	calc   *cost.Calculator
}

// NewAnthropic creates an Anthropic adapter backed by the SDK.
func NewAnthropic(apiKey string, calc *cost.Calculator) *AnthropicClient {
	return &AnthropicClient{
		client: sdk.NewClient(option.WithAPIKey(apiKey)),
		calc:   calc,
	}
}

// Name returns "anthropic".
func (c *AnthropicClient) Name() string { return "anthropic" }

// Generate sends a single-turn message request and normalizes the response.
func (c *AnthropicClient) Generate(ctx context.Context, req GenerateRequest) (*GenerateResult, error) {
	start := time.Now()

	msg, err := c.client.Messages.New(ctx, sdk.MessageNewParams{
		Model:       sdk.Model(req.Model),
		MaxTokens:   req.MaxTokens,
		Temperature: sdk.Float(req.Temperature),
		Messages: []sdk.MessageParam{
			sdk.NewUserMessage(sdk.NewTextBlock(req.Prompt)),
		},
	})
	if err != nil {
		var apierr *sdk.Error
		if errors.As(err, &apierr) {
			return nil, classify(c.Name(), apierr.StatusCode, err)
		}
		return nil, classify(c.Name(), 0, err)
	}

	var text string
	for _, block := range msg.Content {
		if block.Type == "text" {
			text += block.Text
		}
	}

	in := int(msg.Usage.InputTokens)
	out := int(msg.Usage.OutputTokens)

	return &GenerateResult{
		Text:         text,
		InputTokens:  in,
		OutputTokens: out,
		CostUSD:      c.calc.Tokens(c.Name(), req.Model, in, out),
		Latency:      time.Since(start),
	}, nil
}
