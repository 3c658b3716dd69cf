package usage

import (
	"sync"
	"time"
)

// Stats is a point-in-time snapshot of a run's resource consumption.
type Stats struct {
	InputTokens  int64   `json:"inputTokens"`
	OutputTokens int64   `json:"outputTokens"`
	TotalCostUSD float64 `json:"totalCostUsd"`
	DurationMS   int64   `json:"durationMs"`
}

// Tracker accumulates token counts and cost for one session run.
type Tracker struct {
	mu           sync.Mutex
	model        string
	pricing      Pricing
	inputTokens  int64
	outputTokens int64
	totalCostUSD float64
	costReported bool
	startedAt    time.Time
}

// NewTracker creates a tracker for the given model. A nil pricing falls
// back to the default rate table.
func NewTracker(model string, pricing Pricing) *Tracker {
	if pricing == nil {
		pricing = DefaultPricing()
	}
	return &Tracker{model: model, pricing: pricing}
}

// Start zeroes all counters and records the run start time.
func (t *Tracker) Start() {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.inputTokens = 0
	t.outputTokens = 0
	t.totalCostUSD = 0
	t.costReported = false
	t.startedAt = time.Now()
}

// Update overwrites the latest known totals. The engine reports cumulative
// usage per update, so values replace rather than accumulate. A negative
// cost means the engine did not report one.
func (t *Tracker) Update(inputTokens, outputTokens int64, costUSD float64) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.inputTokens = inputTokens
	t.outputTokens = outputTokens
	if costUSD >= 0 {
		t.totalCostUSD = costUSD
		t.costReported = true
	}
}

// Stats returns the current totals. When no authoritative cost was ever
// reported the cost is estimated from the pricing table.
func (t *Tracker) Stats() Stats {
	t.mu.Lock()
	defer t.mu.Unlock()

	cost := t.totalCostUSD
	if !t.costReported || cost == 0 {
		cost = t.pricing.Estimate(t.model, t.inputTokens, t.outputTokens)
	}

	var duration int64
	if !t.startedAt.IsZero() {
		duration = time.Since(t.startedAt).Milliseconds()
	}

	return Stats{
		InputTokens:  t.inputTokens,
		OutputTokens: t.outputTokens,
		TotalCostUSD: cost,
		DurationMS:   duration,
	}
}
