package provider

import (
	"context"
	"errors"
	"time"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"github.com/PedramNavid/styleval/internal/cost"
)

// GoogleClient adapts the Gemini API (generative-ai-go) to the Client
// interface.
type GoogleClient struct {
	client *genai.Client
	calc   *cost.Calculator
}

// NewGoogle creates a Gemini adapter.
func NewGoogle(ctx context.Context, apiKey string, calc *cost.Calculator) (*GoogleClient, error) {
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, NewError("google", KindAuthFailed, err)
	}
	return &GoogleClient{client: client, calc: calc}, nil
}

// Name returns "google".
func (c *GoogleClient) Name() string { return "google" }

// Close releases the underlying gRPC connection.
func (c *GoogleClient) Close() error {
	return c.client.Close()
}

// Generate sends a single-turn content request and normalizes the response.
func (c *GoogleClient) Generate(ctx context.Context, req GenerateRequest) (*GenerateResult, error) {
	start := time.Now()

	m := c.client.GenerativeModel(req.Model)
	m.SetTemperature(float32(req.Temperature))
	m.SetMaxOutputTokens(int32(req.MaxTokens))

	resp, err := m.GenerateContent(ctx, genai.Text(req.Prompt))
	if err != nil {
		var gerr *googleapi.Error
		if errors.As(err, &gerr) {
			return nil, classify(c.Name(), gerr.Code, err)
		}
		return nil, classify(c.Name(), 0, err)
	}

	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return nil, NewError(c.Name(), KindProviderUnavailable, errors.New("no candidates"))
	}

	var text string
	for _, part := range resp.Candidates[0].Content.Parts {
		if t, ok := part.(genai.Text); ok {
			text += string(t)
		}
	}

	// Gemini reports usage in response metadata; fall back to a 4-chars-per-
	// token estimate when it is absent.
	var in, out int
	if resp.UsageMetadata != nil {
		in = int(resp.UsageMetadata.PromptTokenCount)
		out = int(resp.UsageMetadata.CandidatesTokenCount)
	} else {
		in = len(req.Prompt) / 4
		out = len(text) / 4
	}

	return &GenerateResult{
		Text:         text,
		InputTokens:  in,
		OutputTokens: out,
		CostUSD:      c.calc.Tokens(c.Name(), req.Model, in, out),
		Latency:      time.Since(start),
	}, nil
}
