// Package orchestrator composes the session table, the event bus and
// the runner registry behind one facade. Every external surface talks
// to this package only.
package orchestrator

import (
	"context"
	"errors"

	"github.com/rs/zerolog"

	"github.com/averin/conduit/internal/observability"
	"github.com/averin/conduit/pkg/bus"
	"github.com/averin/conduit/pkg/engine"
	"github.com/averin/conduit/pkg/event"
	"github.com/averin/conduit/pkg/runner"
	"github.com/averin/conduit/pkg/session"
)

// ErrNotFound is returned for operations on unknown session ids.
var ErrNotFound = errors.New("session not found")

// Orchestrator owns the process-wide session state.
type Orchestrator struct {
	table   *session.Table
	events  *bus.Bus
	runners *runner.Registry
	eng     engine.Engine
	logger  zerolog.Logger
}

// Config carries the orchestrator's composition knobs.
type Config struct {
	Capacity  int
	BusBuffer int
}

// New wires an orchestrator around the given engine.
func New(cfg Config, eng engine.Engine, logger zerolog.Logger) *Orchestrator {
	return &Orchestrator{
		table:   session.NewTable(cfg.Capacity, logger),
		events:  bus.New(cfg.BusBuffer, logger),
		runners: runner.NewRegistry(logger),
		eng:     eng,
		logger:  logger,
	}
}

// Create registers a new session. When the table is full and an evictable
// session exists, that session is torn down first: its runner stops and
// its subscribers are dropped without a terminal event.
func (o *Orchestrator) Create(cfg session.AgentConfig) (session.Snapshot, error) {
	sess, evicted, err := o.table.Create(cfg)
	if err != nil {
		return session.Snapshot{}, err
	}
	if evicted != "" {
		o.runners.Delete(evicted)
		o.events.RemoveAllSilently(evicted)
		o.logger.Info().Str("evicted", evicted).Str("session_id", sess.ID()).Msg("evicted session to admit new one")
	}
	o.runners.Create(sess, o.eng, o.events)
	o.refreshGauges()
	return sess.Snapshot(), nil
}

// Query starts a run for the session. The run is accepted immediately
// and proceeds on its own goroutine; progress arrives through the bus.
func (o *Orchestrator) Query(id, prompt string, resume bool) error {
	sess, ok := o.table.Get(id)
	if !ok {
		return ErrNotFound
	}
	r, ok := o.runners.Get(id)
	if !ok {
		// A teardown raced with this query. The session record is
		// still authoritative, so rebuild the runner.
		r = o.runners.Create(sess, o.eng, o.events)
	}
	return r.Run(context.Background(), prompt, resume)
}

// Interrupt asks the session's in-flight run to stop.
func (o *Orchestrator) Interrupt(id string) error {
	if _, ok := o.table.Get(id); !ok {
		return ErrNotFound
	}
	if r, ok := o.runners.Get(id); ok {
		r.Interrupt()
	}
	return nil
}

// Delete tears a session down: runner stopped, subscribers notified with
// session_end{deleted}, record removed. Unknown ids are a no-op.
func (o *Orchestrator) Delete(id string) {
	o.runners.Delete(id)
	o.events.Close(id)
	if o.table.Delete(id) {
		o.logger.Info().Str("session_id", id).Msg("session deleted")
	}
	o.refreshGauges()
}

// List returns snapshots of all sessions in creation order.
func (o *Orchestrator) List() []session.Snapshot {
	sessions := o.table.List()
	out := make([]session.Snapshot, 0, len(sessions))
	for _, s := range sessions {
		out = append(out, s.Snapshot())
	}
	return out
}

// Inspect returns the session's current snapshot.
func (o *Orchestrator) Inspect(id string) (session.Snapshot, error) {
	sess, ok := o.table.Get(id)
	if !ok {
		return session.Snapshot{}, ErrNotFound
	}
	return sess.Snapshot(), nil
}

// Subscribe attaches a sink to the session's event stream. The sink
// first receives a connected event directly, then live events.
func (o *Orchestrator) Subscribe(id string, sink event.Sink) (string, error) {
	if _, ok := o.table.Get(id); !ok {
		return "", ErrNotFound
	}
	if err := sink.Deliver(event.Connected(id)); err != nil {
		return "", err
	}
	return o.events.Subscribe(id, sink), nil
}

// Unsubscribe detaches a previously attached sink.
func (o *Orchestrator) Unsubscribe(id, subID string) {
	o.events.Unsubscribe(id, subID)
}

// Runners exposes the registry for housekeeping sweeps.
func (o *Orchestrator) Runners() *runner.Registry {
	return o.runners
}

// RefreshGauges re-counts sessions per status for the metrics surface.
func (o *Orchestrator) RefreshGauges() {
	o.refreshGauges()
}

// Shutdown stops every runner and drops all subscriptions.
func (o *Orchestrator) Shutdown() {
	for _, s := range o.table.List() {
		o.runners.Delete(s.ID())
		o.events.RemoveAllSilently(s.ID())
	}
}

func (o *Orchestrator) refreshGauges() {
	for status, count := range o.table.CountByStatus() {
		observability.SetSessions(string(status), count)
	}
}
