package session

import (
	"sync"
	"time"

	"github.com/averin/conduit/pkg/usage"
)

// Session is one logical conversation: configuration, lifecycle status and
// accumulated usage. The table owns the record; the runner holds a
// reference for the duration of one run and writes status and usage back
// through it.
type Session struct {
	mu sync.RWMutex

	id        string
	config    AgentConfig
	createdAt time.Time

	status          Status
	engineSessionID string
	canResume       bool

	inputTokens  int64
	outputTokens int64
	totalCostUSD float64
}

// Snapshot is an immutable copy of a session's observable state.
type Snapshot struct {
	ID              string      `json:"id"`
	Config          AgentConfig `json:"config"`
	Status          Status      `json:"status"`
	CreatedAt       time.Time   `json:"createdAt"`
	EngineSessionID string      `json:"engineSessionId,omitempty"`
	CanResume       bool        `json:"canResume"`
	InputTokens     int64       `json:"inputTokens"`
	OutputTokens    int64       `json:"outputTokens"`
	TotalCostUSD    float64     `json:"totalCostUsd"`
}

func newSession(id string, cfg AgentConfig) *Session {
	cfg.ID = id
	return &Session{
		id:        id,
		config:    cfg,
		createdAt: time.Now(),
		status:    StatusCreated,
	}
}

// ID returns the session's unique id.
func (s *Session) ID() string { return s.id }

// Config returns the immutable configuration.
func (s *Session) Config() AgentConfig {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.config
}

// CreatedAt returns the creation timestamp.
func (s *Session) CreatedAt() time.Time { return s.createdAt }

// Status returns the current lifecycle status.
func (s *Session) Status() Status {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.status
}

// SetStatus records a lifecycle transition.
func (s *Session) SetStatus(status Status) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.status = status
}

// CaptureEngineSession records the opaque resumable handle issued by the
// engine. The handle is captured at most once; later captures are ignored
// and reported as false.
func (s *Session) CaptureEngineSession(handle string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.engineSessionID != "" || handle == "" {
		return false
	}
	s.engineSessionID = handle
	s.canResume = true
	return true
}

// EngineSessionID returns the captured resumable handle, if any.
func (s *Session) EngineSessionID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.engineSessionID
}

// CanResume reports whether a later run may continue prior conversation
// state.
func (s *Session) CanResume() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.canResume
}

// SyncUsage assigns the tracker's authoritative totals onto the record.
// Usage fields are never incremented from anywhere else.
func (s *Session) SyncUsage(stats usage.Stats) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.inputTokens = stats.InputTokens
	s.outputTokens = stats.OutputTokens
	s.totalCostUSD = stats.TotalCostUSD
}

// Snapshot returns a consistent copy of the session's state.
func (s *Session) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return Snapshot{
		ID:              s.id,
		Config:          s.config,
		Status:          s.status,
		CreatedAt:       s.createdAt,
		EngineSessionID: s.engineSessionID,
		CanResume:       s.canResume,
		InputTokens:     s.inputTokens,
		OutputTokens:    s.outputTokens,
		TotalCostUSD:    s.totalCostUSD,
	}
}
