package bus

import (
	"sync"

	"github.com/averin/conduit/internal/observability"
	"github.com/averin/conduit/pkg/event"
	"github.com/averin/conduit/pkg/usage"
	gonanoid "github.com/matoous/go-nanoid/v2"
	"github.com/rs/zerolog"
)

// DefaultBufferSize is the per-subscription event queue depth.
const DefaultBufferSize = 256

// Bus is the process-wide, per-session event fan-out. It is keyed by
// session id rather than living inside the Session record, so a transport
// can keep draining events for a session whose table entry is already gone.
type Bus struct {
	mu       sync.RWMutex
	sessions map[string]map[string]*subscription
	buffer   int
	logger   zerolog.Logger
}

type subscription struct {
	id        string
	sessionID string
	sink      event.Sink
	ch        chan event.Event
	quit      chan struct{}
	quitOnce  sync.Once
}

// New creates an empty bus. A non-positive bufferSize falls back to
// DefaultBufferSize.
func New(bufferSize int, logger zerolog.Logger) *Bus {
	observability.EnsureRegistered()

	if bufferSize <= 0 {
		bufferSize = DefaultBufferSize
	}
	return &Bus{
		sessions: make(map[string]map[string]*subscription),
		buffer:   bufferSize,
		logger:   logger,
	}
}

// Subscribe attaches a sink to the session's event stream and returns the
// subscription id. Safe to call concurrently with Publish.
func (b *Bus) Subscribe(sessionID string, sink event.Sink) string {
	sub := &subscription{
		id:        mustNanoid(),
		sessionID: sessionID,
		sink:      sink,
		ch:        make(chan event.Event, b.buffer),
		quit:      make(chan struct{}),
	}

	b.mu.Lock()
	subs, ok := b.sessions[sessionID]
	if !ok {
		subs = make(map[string]*subscription)
		b.sessions[sessionID] = subs
	}
	subs[sub.id] = sub
	b.mu.Unlock()

	observability.AddSubscribers(1)
	b.logger.Debug().
		Str("session_id", sessionID).
		Str("subscription_id", sub.id).
		Msg("Listener subscribed")

	go b.drain(sub)
	return sub.id
}

// Unsubscribe detaches one subscription. The session itself is unaffected.
func (b *Bus) Unsubscribe(sessionID, subID string) {
	b.mu.Lock()
	sub := b.removeLocked(sessionID, subID)
	b.mu.Unlock()

	if sub != nil {
		sub.stop()
		b.logger.Debug().
			Str("session_id", sessionID).
			Str("subscription_id", subID).
			Msg("Listener unsubscribed")
	}
}

// Publish delivers the event to every live subscription for the session.
// Enqueueing is synchronous and never blocks; a full subscriber queue
// drops its oldest event to make room.
func (b *Bus) Publish(sessionID string, ev event.Event) {
	observability.RecordEventPublished(string(ev.Type))

	b.mu.RLock()
	subs := make([]*subscription, 0, len(b.sessions[sessionID]))
	for _, sub := range b.sessions[sessionID] {
		subs = append(subs, sub)
	}
	b.mu.RUnlock()

	b.logger.Debug().
		Str("session_id", sessionID).
		Str("event", string(ev.Type)).
		Int("listeners", len(subs)).
		Msg("Event published")

	for _, sub := range subs {
		if sub.enqueue(ev) {
			observability.RecordEventDropped()
			b.logger.Warn().
				Str("session_id", sessionID).
				Str("subscription_id", sub.id).
				Msg("Subscriber queue overflow, oldest event dropped")
		}
	}
}

// Close emits the terminal deleted event, then detaches every
// subscription for the session. Queued events, including the terminal
// one, are still drained to each sink before its Close.
func (b *Bus) Close(sessionID string) {
	b.Publish(sessionID, event.SessionEnd(event.ReasonDeleted, usage.Stats{}))
	b.removeAll(sessionID)
}

// RemoveAllSilently detaches every subscription for the session without a
// terminal event. Used on eviction, where the table entry vanished for a
// reason unrelated to the listeners.
func (b *Bus) RemoveAllSilently(sessionID string) {
	b.removeAll(sessionID)
}

// Subscribers returns the number of live subscriptions for the session.
func (b *Bus) Subscribers(sessionID string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.sessions[sessionID])
}

func (b *Bus) removeAll(sessionID string) {
	b.mu.Lock()
	subs := b.sessions[sessionID]
	delete(b.sessions, sessionID)
	b.mu.Unlock()

	for _, sub := range subs {
		observability.AddSubscribers(-1)
		sub.stop()
	}
}

// removeLocked detaches one subscription; caller holds the write lock.
func (b *Bus) removeLocked(sessionID, subID string) *subscription {
	subs, ok := b.sessions[sessionID]
	if !ok {
		return nil
	}
	sub, ok := subs[subID]
	if !ok {
		return nil
	}
	delete(subs, subID)
	if len(subs) == 0 {
		delete(b.sessions, sessionID)
	}
	observability.AddSubscribers(-1)
	return sub
}

// drain pumps queued events into the sink on a dedicated goroutine,
// decoupling the producer from transport latency. A Deliver error
// detaches the subscription without touching its siblings.
func (b *Bus) drain(sub *subscription) {
	defer sub.sink.Close()

	deliver := func(ev event.Event) bool {
		if err := sub.sink.Deliver(ev); err != nil {
			b.logger.Warn().
				Err(err).
				Str("session_id", sub.sessionID).
				Str("subscription_id", sub.id).
				Msg("Sink delivery failed, detaching listener")
			b.mu.Lock()
			b.removeLocked(sub.sessionID, sub.id)
			b.mu.Unlock()
			return false
		}
		return true
	}

	for {
		select {
		case ev := <-sub.ch:
			if !deliver(ev) {
				return
			}
		case <-sub.quit:
			// Flush whatever is already queued, then stop.
			for {
				select {
				case ev := <-sub.ch:
					if !deliver(ev) {
						return
					}
				default:
					return
				}
			}
		}
	}
}

// enqueue adds the event to the subscription queue, evicting the oldest
// entry when full. Reports whether anything was dropped.
func (sub *subscription) enqueue(ev event.Event) bool {
	dropped := false
	for {
		select {
		case sub.ch <- ev:
			return dropped
		default:
			select {
			case <-sub.ch:
				dropped = true
			default:
			}
		}
	}
}

func (sub *subscription) stop() {
	sub.quitOnce.Do(func() { close(sub.quit) })
}

func mustNanoid() string {
	id, err := gonanoid.New()
	if err != nil {
		// nanoid only fails when the OS entropy source does.
		panic(err)
	}
	return id
}
