package engine

import (
	"context"
	"io"
	"sync"

	"github.com/averin/conduit/pkg/session"
)

// Request describes one run against an engine.
type Request struct {
	Prompt string
	Config session.AgentConfig
	// Resume, when non-empty, asks the engine to continue the
	// conversation identified by this handle instead of starting fresh.
	Resume string
}

// Stream yields the messages of a single run. Next blocks until the
// next message is available and returns io.EOF when the run is over.
type Stream interface {
	Next(ctx context.Context) (Message, error)
	// Interrupt asks the run to stop early. Messages already produced
	// may still be yielded; the stream ends with io.EOF.
	Interrupt()
	Close() error
}

// Engine starts runs. Implementations must be safe for concurrent use.
type Engine interface {
	Name() string
	Run(ctx context.Context, req Request) (Stream, error)
}

// queuedStream serves a pre-built message sequence. Both API-backed
// engines produce their full turn up front, so a drained queue is all
// a stream needs.
type queuedStream struct {
	mu          sync.Mutex
	queue       []Message
	interrupted chan struct{}
	once        sync.Once
}

func newQueuedStream(msgs []Message) *queuedStream {
	return &queuedStream{
		queue:       msgs,
		interrupted: make(chan struct{}),
	}
}

func (s *queuedStream) Next(ctx context.Context) (Message, error) {
	select {
	case <-ctx.Done():
		return Message{}, ctx.Err()
	case <-s.interrupted:
		return Message{}, io.EOF
	default:
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.queue) == 0 {
		return Message{}, io.EOF
	}
	msg := s.queue[0]
	s.queue = s.queue[1:]
	return msg, nil
}

func (s *queuedStream) Interrupt() {
	s.once.Do(func() { close(s.interrupted) })
}

func (s *queuedStream) Close() error {
	s.Interrupt()
	return nil
}
