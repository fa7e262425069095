package ledger

import "math"

// Pricing converts token counts into dollar cost. Per-model rates are
// expressed in dollars per token; unknown models fall back to a flat
// per-million rate. A fixed per-task surcharge covers orchestration
// overhead.
type Pricing struct {
	// PerTokenByModel maps a model name to its dollar cost per token.
	PerTokenByModel map[string]float64
	// TokenCostPerMillion is the fallback rate for unlisted models.
	TokenCostPerMillion float64
	// FixedCostPerTask is added once per costed task.
	FixedCostPerTask float64
}

// DefaultPricing returns the built-in rate table.
func DefaultPricing() Pricing {
	return Pricing{
		PerTokenByModel: map[string]float64{
			"claude-sonnet-4-20250514": 0.00003,
			"claude-opus-4-20250514":   0.00015,
			"claude-haiku-4-20250514":  0.00001,
			"gpt4":                     0.00006,
			"gpt3_5":                   0.000016,
			"gemini":                   0.00004,
		},
		TokenCostPerMillion: 0.50,
		FixedCostPerTask:    0.01,
	}
}

// Cost returns the dollar cost of a task that used the given number of
// tokens on the given model, rounded to microdollars. Zero or negative token
// counts cost nothing.
func (p Pricing) Cost(tokens int, model string) float64 {
	if tokens <= 0 {
		return 0
	}

	perToken, ok := p.PerTokenByModel[model]
	if !ok {
		perToken = p.TokenCostPerMillion / 1e6
	}

	cost := float64(tokens)*perToken + p.FixedCostPerTask
	return math.Round(cost*1e6) / 1e6
}
