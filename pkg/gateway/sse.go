package gateway

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync"

	"github.com/averin/conduit/pkg/event"
)

// SSESink writes events as server-sent event frames.
type SSESink struct {
	mu      sync.Mutex
	w       http.ResponseWriter
	flusher http.Flusher
	done    chan struct{}
	once    sync.Once
}

// NewSSESink wraps a response writer that supports flushing.
func NewSSESink(w http.ResponseWriter, flusher http.Flusher) *SSESink {
	return &SSESink{w: w, flusher: flusher, done: make(chan struct{})}
}

// Deliver writes one event frame.
func (s *SSESink) Deliver(ev event.Event) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := fmt.Fprintf(s.w, "data: %s\n\n", payload); err != nil {
		return err
	}
	s.flusher.Flush()
	return nil
}

// Close releases the handler goroutine.
func (s *SSESink) Close() {
	s.once.Do(func() { close(s.done) })
}

// Done is closed when the subscription has been detached.
func (s *SSESink) Done() <-chan struct{} {
	return s.done
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}
	if _, err := s.orch.Inspect(id); err != nil {
		writeError(w, http.StatusNotFound, "agent not found")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	sink := NewSSESink(w, flusher)
	subID, err := s.orch.Subscribe(id, sink)
	if err != nil {
		// Headers are already out; the frame below is all we can do.
		_ = sink.Deliver(event.Error("agent not found"))
		return
	}

	s.logger.Debug().Str("session_id", id).Str("subscription", subID).Msg("SSE client connected")

	select {
	case <-r.Context().Done():
		// Client went away; the session itself is untouched.
		s.orch.Unsubscribe(id, subID)
	case <-sink.Done():
	}

	s.logger.Debug().Str("session_id", id).Str("subscription", subID).Msg("SSE client disconnected")
}
