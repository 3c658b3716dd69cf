package toolcall

import (
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// DefaultOrphanAge is how long an open call may wait for its end
// notification before the sweep reclaims it.
const DefaultOrphanAge = 5 * time.Minute

// UnknownTool is the sentinel name returned when no matching start was
// recorded for a resolved call id.
const UnknownTool = "unknown"

type openCall struct {
	name      string
	input     interface{}
	startedAt time.Time
}

// Resolution is the outcome of matching an end notification against its
// recorded start.
type Resolution struct {
	Name     string
	Input    interface{}
	Duration time.Duration
}

// Correlator maps opaque tool-use ids to their in-flight call state. It is
// shared between the runner goroutine and the janitor sweep.
type Correlator struct {
	mu     sync.Mutex
	open   map[string]openCall
	logger zerolog.Logger
}

// New creates an empty correlator.
func New(logger zerolog.Logger) *Correlator {
	return &Correlator{
		open:   make(map[string]openCall),
		logger: logger,
	}
}

// TrackStart records a new open call. Overwriting a live id is tolerated
// but indicates the upstream stream double-started a call.
func (c *Correlator) TrackStart(toolUseID, name string, input interface{}) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if prev, exists := c.open[toolUseID]; exists {
		c.logger.Warn().
			Str("tool_use_id", toolUseID).
			Str("previous_tool", prev.name).
			Str("tool", name).
			Msg("Tool call id restarted before resolution")
	}

	c.open[toolUseID] = openCall{
		name:      name,
		input:     input,
		startedAt: time.Now(),
	}
}

// Resolve looks up and removes the open call for the id. An id with no
// recorded start resolves to the unknown sentinel with a zero-based
// duration rather than an error; correlation loss must never abort a run.
func (c *Correlator) Resolve(toolUseID string) Resolution {
	c.mu.Lock()
	defer c.mu.Unlock()

	call, exists := c.open[toolUseID]
	if !exists {
		c.logger.Debug().
			Str("tool_use_id", toolUseID).
			Msg("Tool end without a matching start")
		return Resolution{Name: UnknownTool}
	}

	delete(c.open, toolUseID)

	return Resolution{
		Name:     call.name,
		Input:    call.input,
		Duration: time.Since(call.startedAt),
	}
}

// SweepOrphans removes open calls older than maxAge and returns how many
// were dropped. These are calls whose completion notification never
// arrived, e.g. because the engine died mid-call.
func (c *Correlator) SweepOrphans(maxAge time.Duration) int {
	if maxAge <= 0 {
		maxAge = DefaultOrphanAge
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	swept := 0
	for id, call := range c.open {
		if now.Sub(call.startedAt) > maxAge {
			delete(c.open, id)
			swept++
			c.logger.Warn().
				Str("tool_use_id", id).
				Str("tool", call.name).
				Msg("Orphaned tool call swept")
		}
	}

	return swept
}

// Open returns the number of calls still awaiting an end notification.
func (c *Correlator) Open() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.open)
}
