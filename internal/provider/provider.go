// Package provider adapts heterogeneous LLM provider APIs to one uniform
// generate capability. Provider responses and failures are normalized into a
// single shape before any other component consumes them.
package provider

import (
	"context"
	"time"
)

// GenerateRequest is the normalized input to a provider call.
type GenerateRequest struct {
	Model       string
	Prompt      string
	MaxTokens   int64
	Temperature float64
}

// GenerateResult is the normalized output of a successful provider call.
type GenerateResult struct {
	Text         string
	InputTokens  int
	OutputTokens int
	CostUSD      float64
	Latency      time.Duration
}

// Client is the uniform capability every provider adapter implements.
// Failures are returned as *Error with a normalized Kind.
type Client interface {
	// Generate produces content for the prompt with the given model.
	Generate(ctx context.Context, req GenerateRequest) (*GenerateResult, error)

	// Name returns the provider name ("anthropic", "openai", "google").
	Name() string
}
