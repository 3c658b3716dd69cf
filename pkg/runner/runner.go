package runner

import (
	"context"
	"errors"
	"io"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"

	"github.com/averin/conduit/internal/observability"
	"github.com/averin/conduit/internal/tracing"
	"github.com/averin/conduit/pkg/bus"
	"github.com/averin/conduit/pkg/engine"
	"github.com/averin/conduit/pkg/event"
	"github.com/averin/conduit/pkg/session"
	"github.com/averin/conduit/pkg/toolcall"
	"github.com/averin/conduit/pkg/usage"
)

// ErrAlreadyRunning is returned when a run is requested for a session
// that already has one in flight.
var ErrAlreadyRunning = errors.New("session already has a run in flight")

// Runner owns the run lifecycle of a single session: the tool call
// correlator, the usage tracker and the current engine stream.
type Runner struct {
	sess       *session.Session
	eng        engine.Engine
	events     *bus.Bus
	correlator *toolcall.Correlator
	tracker    *usage.Tracker
	classify   Classifier
	logger     zerolog.Logger

	mu          sync.Mutex
	running     bool
	interrupted bool
	stream      engine.Stream
	cancel      context.CancelFunc
	done        chan struct{}
}

// New builds a runner bound to one session.
func New(sess *session.Session, eng engine.Engine, events *bus.Bus, logger zerolog.Logger) *Runner {
	log := logger.With().Str("session_id", sess.ID()).Logger()
	return &Runner{
		sess:       sess,
		eng:        eng,
		events:     events,
		correlator: toolcall.New(log),
		tracker:    usage.NewTracker(sess.Config().Model, usage.DefaultPricing()),
		classify:   DefaultClassifier,
		logger:     log,
	}
}

// SetClassifier swaps the thinking heuristic. Must be called before Run.
func (r *Runner) SetClassifier(c Classifier) {
	if c != nil {
		r.classify = c
	}
}

// Run starts a run for prompt. It reserves the session synchronously and
// drives the engine on a background goroutine, so a nil return means the
// run was accepted, not that it finished. When resume is true and the
// session holds a resumable handle, the engine continues the prior
// conversation.
func (r *Runner) Run(ctx context.Context, prompt string, resume bool) error {
	r.mu.Lock()
	if r.running {
		r.mu.Unlock()
		return ErrAlreadyRunning
	}
	runCtx, cancel := context.WithCancel(ctx)
	r.running = true
	r.interrupted = false
	r.cancel = cancel
	r.done = make(chan struct{})
	done := r.done
	r.mu.Unlock()

	go func() {
		defer close(done)
		r.run(runCtx, prompt, resume)
	}()
	return nil
}

func (r *Runner) run(ctx context.Context, prompt string, resume bool) {
	id := r.sess.ID()
	started := time.Now()

	ctx = tracing.NewRunContext(ctx, id)
	ctx, span := tracing.StartSpan(ctx, "session.run",
		attribute.String("session.id", id),
		attribute.Bool("session.resume", resume),
	)
	defer span.End()

	r.sess.SetStatus(session.StatusRunning)
	r.tracker.Start()

	r.events.Publish(id, event.SessionStart(id, r.sess.Config()))
	r.events.Publish(id, event.UserMessage(prompt, uuid.NewString()))

	req := engine.Request{Prompt: prompt, Config: r.sess.Config()}
	if resume && r.sess.CanResume() {
		req.Resume = r.sess.EngineSessionID()
		r.logger.Info().Str("handle", req.Resume).Msg("resuming engine session")
	}

	stream, err := r.eng.Run(ctx, req)
	if err != nil {
		r.terminate(started, err)
		return
	}
	r.mu.Lock()
	r.stream = stream
	r.mu.Unlock()
	defer stream.Close()

	for {
		msg, err := stream.Next(ctx)
		if err != nil {
			if errors.Is(err, io.EOF) {
				r.terminate(started, nil)
			} else {
				r.terminate(started, err)
			}
			return
		}
		r.translate(msg)
	}
}

// translate maps one engine message onto bus events and runner state.
func (r *Runner) translate(msg engine.Message) {
	id := r.sess.ID()

	switch msg.Kind {
	case engine.KindInit:
		r.logger.Debug().Str("model", msg.Model).Msg("engine initialized")

	case engine.KindSessionHandle:
		if r.sess.CaptureEngineSession(msg.Handle) {
			r.events.Publish(id, event.SessionInfo(msg.Handle))
		}

	case engine.KindAssistant:
		for _, block := range msg.Blocks {
			switch block.Type {
			case engine.BlockThinking:
				r.events.Publish(id, event.Thinking(block.Text))
			case engine.BlockText:
				if r.classify(block.Text) {
					r.events.Publish(id, event.Thinking(block.Text))
				} else {
					r.events.Publish(id, event.AssistantMessage(block.Text, uuid.NewString()))
				}
			case engine.BlockToolUse:
				r.correlator.TrackStart(block.ToolUseID, block.Name, block.Input)
				observability.SetOpenToolCalls(r.correlator.Open())
				r.events.Publish(id, event.ToolStart(block.Name, block.Input, block.ToolUseID))
			}
		}

	case engine.KindToolResult:
		for _, tr := range msg.Tools {
			res := r.correlator.Resolve(tr.ToolUseID)
			observability.SetOpenToolCalls(r.correlator.Open())
			observability.RecordToolCallEnded(tr.IsError)
			// Failed calls still close as tool_end, with the error as
			// their output, so every tool_start has a matching end.
			var output interface{} = tr.Content
			if tr.IsError {
				output = map[string]interface{}{"error": tr.Content}
			}
			r.events.Publish(id, event.ToolEnd(res.Name, res.Input, output, tr.ToolUseID, res.Duration))
		}

	case engine.KindResult:
		if msg.Usage != nil {
			cost := msg.Usage.CostUSD
			if !msg.Usage.CostReported {
				cost = -1
			}
			r.tracker.Update(msg.Usage.InputTokens, msg.Usage.OutputTokens, cost)
		}

	default:
		r.logger.Debug().Str("kind", string(msg.Kind)).Str("raw", msg.Raw).Msg("unhandled engine message")
	}
}

// terminate runs the terminal transition: usage sync, session_end, orphan
// sweep. Exactly one of these happens per run.
func (r *Runner) terminate(started time.Time, runErr error) {
	r.mu.Lock()
	interrupted := r.interrupted
	r.running = false
	r.stream = nil
	if r.cancel != nil {
		r.cancel()
		r.cancel = nil
	}
	r.mu.Unlock()

	status := session.StatusCompleted
	reason := event.ReasonCompleted
	switch {
	case runErr == nil && !interrupted:
	case interrupted || errors.Is(runErr, context.Canceled) || errors.Is(runErr, context.DeadlineExceeded):
		status = session.StatusInterrupted
		reason = event.ReasonInterrupted
	default:
		status = session.StatusError
		reason = event.ReasonError
		r.logger.Error().Err(runErr).Msg("run failed")
		r.events.Publish(r.sess.ID(), event.Error(runErr.Error()))
	}

	stats := r.tracker.Stats()
	r.sess.SyncUsage(stats)
	r.sess.SetStatus(status)
	r.events.Publish(r.sess.ID(), event.SessionEnd(reason, stats))

	// Reclaim calls that stayed open past the orphan timeout. Younger
	// open calls survive the run; the engine may still resolve them
	// when the session resumes.
	if swept := r.correlator.SweepOrphans(toolcall.DefaultOrphanAge); swept > 0 {
		observability.RecordOrphansSwept(swept)
	}
	observability.SetOpenToolCalls(r.correlator.Open())
	observability.RecordRun(string(status), time.Since(started))

	r.logger.Info().
		Str("status", string(status)).
		Int64("input_tokens", stats.InputTokens).
		Int64("output_tokens", stats.OutputTokens).
		Float64("cost_usd", stats.TotalCostUSD).
		Msg("run finished")
}

// Interrupt asks the in-flight run to stop. No-op when idle.
func (r *Runner) Interrupt() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.running {
		return
	}
	r.interrupted = true
	if r.cancel != nil {
		r.cancel()
	}
	if r.stream != nil {
		r.stream.Interrupt()
	}
}

// Stop interrupts the run and waits for it to wind down.
func (r *Runner) Stop() {
	r.mu.Lock()
	done := r.done
	r.mu.Unlock()

	r.Interrupt()
	if done != nil {
		select {
		case <-done:
		case <-time.After(5 * time.Second):
			r.logger.Warn().Msg("run did not stop in time")
		}
	}
}

// Running reports whether a run is in flight.
func (r *Runner) Running() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.running
}

// Wait blocks until the current run finishes. Returns immediately when
// no run was started.
func (r *Runner) Wait() {
	r.mu.Lock()
	done := r.done
	r.mu.Unlock()
	if done != nil {
		<-done
	}
}

// SweepOrphans removes stale open tool calls, for periodic housekeeping.
func (r *Runner) SweepOrphans(maxAge time.Duration) int {
	swept := r.correlator.SweepOrphans(maxAge)
	if swept > 0 {
		observability.RecordOrphansSwept(swept)
		observability.SetOpenToolCalls(r.correlator.Open())
	}
	return swept
}
