package session

import (
	"errors"
	"sync"

	"github.com/averin/conduit/internal/observability"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// DefaultCapacity bounds how many sessions the table holds at once.
const DefaultCapacity = 100

// ErrAtCapacity is returned when the table is full and no terminal session
// can be evicted. Callers should surface this as a distinct condition that
// is not retryable without waiting for a run to finish.
var ErrAtCapacity = errors.New("session table at capacity")

// Table is the authoritative, capacity-bounded set of session records.
// Safe for concurrent use.
type Table struct {
	mu       sync.RWMutex
	capacity int
	sessions map[string]*Session
	order    []string
	logger   zerolog.Logger
}

// NewTable creates an empty table. A non-positive capacity falls back to
// DefaultCapacity.
func NewTable(capacity int, logger zerolog.Logger) *Table {
	observability.EnsureRegistered()

	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Table{
		capacity: capacity,
		sessions: make(map[string]*Session),
		logger:   logger,
	}
}

// Capacity returns the configured maximum number of sessions.
func (t *Table) Capacity() int { return t.capacity }

// Create allocates a fresh session for the config. At capacity it first
// tries to evict the oldest terminal session; the evicted id (if any) is
// returned so the caller can release that session's runner and
// subscriptions. Live state is never overwritten.
func (t *Table) Create(cfg AgentConfig) (*Session, string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	evicted := ""
	if len(t.sessions) >= t.capacity {
		id, ok := t.evictLocked()
		if !ok {
			return nil, "", ErrAtCapacity
		}
		evicted = id
	}

	sess := newSession(uuid.NewString(), cfg)
	t.sessions[sess.id] = sess
	t.order = append(t.order, sess.id)

	observability.RecordSessionCreated()
	t.logger.Info().
		Str("session_id", sess.id).
		Str("name", cfg.Name).
		Int("table_size", len(t.sessions)).
		Msg("Session created")

	return sess, evicted, nil
}

// Get returns the session for the id.
func (t *Table) Get(id string) (*Session, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	sess, ok := t.sessions[id]
	return sess, ok
}

// Delete removes the session. Returns true iff it existed.
func (t *Table) Delete(id string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, ok := t.sessions[id]; !ok {
		return false
	}
	t.removeLocked(id)
	t.logger.Info().Str("session_id", id).Msg("Session deleted")
	return true
}

// List returns the sessions in insertion order.
func (t *Table) List() []*Session {
	t.mu.RLock()
	defer t.mu.RUnlock()

	out := make([]*Session, 0, len(t.sessions))
	for _, id := range t.order {
		out = append(out, t.sessions[id])
	}
	return out
}

// Len returns the current number of sessions.
func (t *Table) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.sessions)
}

// Evict reclaims the evictable session with the oldest creation time.
// Returns false when no completed or error session exists.
func (t *Table) Evict() (string, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.evictLocked()
}

// CountByStatus returns how many sessions are in each status.
func (t *Table) CountByStatus() map[Status]int {
	t.mu.RLock()
	defer t.mu.RUnlock()

	counts := map[Status]int{
		StatusCreated:     0,
		StatusRunning:     0,
		StatusInterrupted: 0,
		StatusCompleted:   0,
		StatusError:       0,
	}
	for _, sess := range t.sessions {
		counts[sess.Status()]++
	}
	return counts
}

func (t *Table) evictLocked() (string, bool) {
	var oldest *Session
	for _, id := range t.order {
		sess := t.sessions[id]
		if !sess.Status().Evictable() {
			continue
		}
		if oldest == nil ||
			sess.createdAt.Before(oldest.createdAt) ||
			(sess.createdAt.Equal(oldest.createdAt) && sess.id < oldest.id) {
			oldest = sess
		}
	}
	if oldest == nil {
		return "", false
	}

	t.removeLocked(oldest.id)
	observability.RecordSessionEvicted()
	t.logger.Info().
		Str("session_id", oldest.id).
		Str("status", string(oldest.Status())).
		Msg("Session evicted")

	return oldest.id, true
}

func (t *Table) removeLocked(id string) {
	delete(t.sessions, id)
	for i, existing := range t.order {
		if existing == id {
			t.order = append(t.order[:i], t.order[i+1:]...)
			break
		}
	}
}
