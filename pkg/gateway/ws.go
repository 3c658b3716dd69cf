package gateway

import (
	"net/http"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/averin/conduit/pkg/event"
)

// WSSink writes events as JSON text messages on a websocket.
type WSSink struct {
	mu   sync.Mutex
	conn *websocket.Conn
	done chan struct{}
	once sync.Once
}

// NewWSSink wraps an upgraded connection.
func NewWSSink(conn *websocket.Conn) *WSSink {
	return &WSSink{conn: conn, done: make(chan struct{})}
}

// Deliver writes one event message.
func (s *WSSink) Deliver(ev event.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn.WriteJSON(ev)
}

// Close ends the connection.
func (s *WSSink) Close() {
	s.once.Do(func() {
		close(s.done)
		_ = s.conn.Close()
	})
}

// Done is closed when the subscription has been detached.
func (s *WSSink) Done() <-chan struct{} {
	return s.done
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	if _, err := s.orch.Inspect(id); err != nil {
		writeError(w, http.StatusNotFound, "agent not found")
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error().Err(err).Msg("Failed to upgrade connection")
		return
	}

	sink := NewWSSink(conn)
	subID, err := s.orch.Subscribe(id, sink)
	if err != nil {
		sink.Close()
		return
	}

	s.logger.Debug().Str("session_id", id).Str("subscription", subID).Msg("WebSocket client connected")

	// The read loop only detects disconnects; clients send nothing.
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				s.orch.Unsubscribe(id, subID)
				sink.Close()
				return
			}
		}
	}()

	<-sink.Done()
	s.logger.Debug().Str("session_id", id).Str("subscription", subID).Msg("WebSocket client disconnected")
}
