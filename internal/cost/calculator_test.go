package cost

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTokens_KnownModel(t *testing.T) {
	c := NewCalculator(Rates{})

	// 1M input + 1M output at gpt-4o-mini rates.
	got := c.Tokens("openai", "gpt-4o-mini", 1_000_000, 1_000_000)
	assert.InDelta(t, 0.15+0.60, got, 1e-9)
}

func TestTokens_FractionalUsage(t *testing.T) {
	c := NewCalculator(Rates{})

	got := c.Tokens("anthropic", "claude-sonnet-4-5-20250929", 500, 1200)
	want := (500.0/1e6)*3.00 + (1200.0/1e6)*15.00
	assert.InDelta(t, want, got, 1e-9)
}

func TestTokens_UnknownModel(t *testing.T) {
	c := NewCalculator(Rates{})
	assert.Zero(t, c.Tokens("openai", "gpt-99", 1000, 1000))
}

func TestTokens_UnknownProvider(t *testing.T) {
	c := NewCalculator(Rates{})
	assert.Zero(t, c.Tokens("cohere", "command", 1000, 1000))
}

func TestNewCalculator_CustomRatesOverride(t *testing.T) {
	c := NewCalculator(Rates{
		Google: map[string]ModelRate{"gemini-x": {Input: 1.0, Output: 2.0}},
	})

	assert.InDelta(t, 3.0, c.Tokens("google", "gemini-x", 1_000_000, 1_000_000), 1e-9)
	// Custom google table replaces the defaults entirely.
	assert.Zero(t, c.Tokens("google", "gemini-1.5-pro", 1_000_000, 0))
	// Other providers keep defaults.
	assert.NotZero(t, c.Tokens("openai", "gpt-4o", 1_000_000, 0))
}
