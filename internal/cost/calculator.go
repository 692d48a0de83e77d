package cost

// Rates holds per-provider pricing configuration, keyed by model id.
type Rates struct {
	Anthropic map[string]ModelRate `yaml:"anthropic" mapstructure:"anthropic"`
	OpenAI    map[string]ModelRate `yaml:"openai" mapstructure:"openai"`
	Google    map[string]ModelRate `yaml:"google" mapstructure:"google"`
}

// ModelRate holds per-model token pricing (USD per million tokens).
type ModelRate struct {
	Input  float64 `yaml:"input" mapstructure:"input"`
	Output float64 `yaml:"output" mapstructure:"output"`
}

// Calculator computes USD costs for provider API usage.
type Calculator struct {
	rates Rates
}

// NewCalculator creates a Calculator with the given rates. Zero-value maps
// fall back to defaults.
func NewCalculator(rates Rates) *Calculator {
	def := DefaultRates()
	if rates.Anthropic == nil {
		rates.Anthropic = def.Anthropic
	}
	if rates.OpenAI == nil {
		rates.OpenAI = def.OpenAI
	}
	if rates.Google == nil {
		rates.Google = def.Google
	}
	return &Calculator{rates: rates}
}

// Tokens computes the cost of a call given provider, model, and token counts.
// Unknown provider/model combinations cost 0.
func (c *Calculator) Tokens(provider, model string, input, output int) float64 {
	var table map[string]ModelRate
	switch provider {
	case "anthropic":
		table = c.rates.Anthropic
	case "openai":
		table = c.rates.OpenAI
	case "google":
		table = c.rates.Google
	default:
		return 0
	}

	rate, ok := table[model]
	if !ok {
		return 0
	}

	inCost := (float64(input) / 1e6) * rate.Input
	outCost := (float64(output) / 1e6) * rate.Output
	return inCost + outCost
}

// DefaultRates returns the default pricing rates.
func DefaultRates() Rates {
	return Rates{
		Anthropic: map[string]ModelRate{
			"claude-haiku-4-5-20251001":  {Input: 0.80, Output: 4.00},
			"claude-sonnet-4-5-20250929": {Input: 3.00, Output: 15.00},
			"claude-opus-4-1-20250805":   {Input: 15.00, Output: 75.00},
		},
		OpenAI: map[string]ModelRate{
			"gpt-4o":      {Input: 2.50, Output: 10.00},
			"gpt-4o-mini": {Input: 0.15, Output: 0.60},
			"gpt-4.1":     {Input: 2.00, Output: 8.00},
		},
		Google: map[string]ModelRate{
			"gemini-2.0-flash": {Input: 0.10, Output: 0.40},
			"gemini-1.5-pro":   {Input: 1.25, Output: 5.00},
			"gemini-1.5-flash": {Input: 0.075, Output: 0.30},
		},
	}
}
