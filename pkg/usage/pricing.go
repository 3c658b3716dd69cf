package usage

// Pricing estimates run cost from token counts when the engine never
// reported an authoritative figure.
type Pricing interface {
	// Estimate returns the estimated cost in USD for the given model and
	// cumulative token counts.
	Estimate(model string, inputTokens, outputTokens int64) float64
}

// Rate holds per-model dollar rates per million tokens.
type Rate struct {
	InputPerMTok  float64
	OutputPerMTok float64
}

// RateTable is a Pricing backed by a static model -> rate map.
type RateTable struct {
	rates    map[string]Rate
	fallback Rate
}

// NewRateTable creates a pricing table with the given per-model rates.
// Models missing from the table use the fallback rate.
func NewRateTable(rates map[string]Rate, fallback Rate) *RateTable {
	return &RateTable{rates: rates, fallback: fallback}
}

// DefaultPricing returns the built-in rate table.
func DefaultPricing() *RateTable {
	return NewRateTable(map[string]Rate{
		"sonnet": {InputPerMTok: 3, OutputPerMTok: 15},
		"opus":   {InputPerMTok: 15, OutputPerMTok: 75},
		"haiku":  {InputPerMTok: 0.8, OutputPerMTok: 4},
	}, Rate{InputPerMTok: 3, OutputPerMTok: 15})
}

// Estimate implements Pricing.
func (t *RateTable) Estimate(model string, inputTokens, outputTokens int64) float64 {
	rate, ok := t.rates[model]
	if !ok {
		rate = t.fallback
	}
	inputCost := float64(inputTokens) / 1_000_000 * rate.InputPerMTok
	outputCost := float64(outputTokens) / 1_000_000 * rate.OutputPerMTok
	return inputCost + outputCost
}
