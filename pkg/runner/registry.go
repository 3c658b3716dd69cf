package runner

import (
	"sync"

	"github.com/rs/zerolog"

	"github.com/averin/conduit/pkg/bus"
	"github.com/averin/conduit/pkg/engine"
	"github.com/averin/conduit/pkg/session"
)

// Registry keeps the live runner for each session.
type Registry struct {
	mu      sync.RWMutex
	runners map[string]*Runner
	logger  zerolog.Logger
}

// NewRegistry creates an empty registry.
func NewRegistry(logger zerolog.Logger) *Registry {
	return &Registry{
		runners: map[string]*Runner{},
		logger:  logger,
	}
}

// Create builds and stores the runner for a session, replacing any
// previous entry.
func (g *Registry) Create(sess *session.Session, eng engine.Engine, events *bus.Bus) *Runner {
	r := New(sess, eng, events, g.logger)
	g.mu.Lock()
	g.runners[sess.ID()] = r
	g.mu.Unlock()
	return r
}

// Get returns the runner for a session, if present.
func (g *Registry) Get(sessionID string) (*Runner, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	r, ok := g.runners[sessionID]
	return r, ok
}

// Delete stops a session's runner and removes it. Unknown ids are a
// no-op.
func (g *Registry) Delete(sessionID string) {
	g.mu.Lock()
	r, ok := g.runners[sessionID]
	delete(g.runners, sessionID)
	g.mu.Unlock()

	if ok {
		r.Stop()
	}
}

// Len returns the number of live runners.
func (g *Registry) Len() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.runners)
}

// ForEach calls fn for every live runner. The snapshot is taken under
// the lock, fn runs outside it.
func (g *Registry) ForEach(fn func(sessionID string, r *Runner)) {
	g.mu.RLock()
	snapshot := make(map[string]*Runner, len(g.runners))
	for id, r := range g.runners {
		snapshot[id] = r
	}
	g.mu.RUnlock()

	for id, r := range snapshot {
		fn(id, r)
	}
}
