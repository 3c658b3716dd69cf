package runner

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/averin/conduit/pkg/bus"
	"github.com/averin/conduit/pkg/engine"
	"github.com/averin/conduit/pkg/event"
	"github.com/averin/conduit/pkg/session"
)

type recordSink struct {
	mu     sync.Mutex
	events []event.Event
}

func (s *recordSink) Deliver(ev event.Event) error {
	s.mu.Lock()
	s.events = append(s.events, ev)
	s.mu.Unlock()
	return nil
}

func (s *recordSink) Close() {}

func (s *recordSink) snapshot() []event.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]event.Event, len(s.events))
	copy(out, s.events)
	return out
}

func (s *recordSink) types() []event.Type {
	var out []event.Type
	for _, ev := range s.snapshot() {
		out = append(out, ev.Type)
	}
	return out
}

func (s *recordSink) waitTerminal(t *testing.T) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		for _, ev := range s.snapshot() {
			if ev.Type == event.TypeSessionEnd {
				return
			}
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatal("no session_end observed")
}

// fakeStream yields a fixed sequence, then either ends, fails, or
// blocks until interrupted.
type fakeStream struct {
	mu          sync.Mutex
	msgs        []engine.Message
	finalErr    error
	gate        chan struct{}
	interrupted chan struct{}
	once        sync.Once
}

func (s *fakeStream) Next(ctx context.Context) (engine.Message, error) {
	s.mu.Lock()
	if len(s.msgs) > 0 {
		msg := s.msgs[0]
		s.msgs = s.msgs[1:]
		s.mu.Unlock()
		return msg, nil
	}
	s.mu.Unlock()

	if s.gate != nil {
		select {
		case <-ctx.Done():
			return engine.Message{}, ctx.Err()
		case <-s.interrupted:
			return engine.Message{}, io.EOF
		case <-s.gate:
		}
	}
	if s.finalErr != nil {
		return engine.Message{}, s.finalErr
	}
	return engine.Message{}, io.EOF
}

func (s *fakeStream) Interrupt() {
	s.once.Do(func() { close(s.interrupted) })
}

func (s *fakeStream) Close() error { return nil }

type fakeEngine struct {
	stream *fakeStream
	runErr error
}

func (e *fakeEngine) Name() string { return "fake" }

func (e *fakeEngine) Run(ctx context.Context, req engine.Request) (engine.Stream, error) {
	if e.runErr != nil {
		return nil, e.runErr
	}
	return e.stream, nil
}

func newFakeStream(msgs []engine.Message) *fakeStream {
	return &fakeStream{msgs: msgs, interrupted: make(chan struct{})}
}

func newTestSession(t *testing.T) *session.Session {
	t.Helper()
	table := session.NewTable(10, zerolog.Nop())
	sess, _, err := table.Create(session.AgentConfig{Name: "t", Model: "sonnet", MaxTurns: 3})
	require.NoError(t, err)
	return sess
}

func TestRunEmitsFullEventOrder(t *testing.T) {
	sess := newTestSession(t)
	b := bus.New(64, zerolog.Nop())
	sink := &recordSink{}
	b.Subscribe(sess.ID(), sink)

	eng := &fakeEngine{stream: newFakeStream([]engine.Message{
		{Kind: engine.KindInit, Model: "sonnet"},
		{Kind: engine.KindSessionHandle, Handle: "h-1"},
		{Kind: engine.KindAssistant, Blocks: []engine.Block{
			{Type: engine.BlockThinking, Text: "thinking about it"},
			{Type: engine.BlockToolUse, ToolUseID: "tu-1", Name: "Read", Input: map[string]interface{}{"file_path": "a.go"}},
		}},
		{Kind: engine.KindToolResult, Tools: []engine.ToolResult{
			{ToolUseID: "tu-1", Content: "package a"},
		}},
		{Kind: engine.KindAssistant, Blocks: []engine.Block{
			{Type: engine.BlockText, Text: "Here is the summary."},
		}},
		{Kind: engine.KindResult, Usage: &engine.UsageUpdate{InputTokens: 100, OutputTokens: 50}},
	})}

	r := New(sess, eng, b, zerolog.Nop())
	require.NoError(t, r.Run(context.Background(), "hello", false))
	r.Wait()
	sink.waitTerminal(t)

	assert.Equal(t, []event.Type{
		event.TypeSessionStart,
		event.TypeUserMessage,
		event.TypeSessionInfo,
		event.TypeThinking,
		event.TypeToolStart,
		event.TypeToolEnd,
		event.TypeAssistantMessage,
		event.TypeSessionEnd,
	}, sink.types())

	events := sink.snapshot()
	last := events[len(events)-1]
	assert.Equal(t, event.ReasonCompleted, last.Reason)
	require.NotNil(t, last.Usage)
	assert.Equal(t, int64(100), last.Usage.InputTokens)

	assert.Equal(t, session.StatusCompleted, sess.Status())
	snap := sess.Snapshot()
	assert.Equal(t, "h-1", snap.EngineSessionID)
	assert.True(t, snap.CanResume)
	assert.Equal(t, int64(100), snap.InputTokens)
	assert.Equal(t, int64(50), snap.OutputTokens)
	// No reported cost, so the estimate applies.
	assert.InDelta(t, 100.0/1_000_000*3.0+50.0/1_000_000*15.0, snap.TotalCostUSD, 1e-9)
}

func TestRunRejectsConcurrentRun(t *testing.T) {
	sess := newTestSession(t)
	b := bus.New(64, zerolog.Nop())

	stream := newFakeStream(nil)
	stream.gate = make(chan struct{})
	r := New(sess, &fakeEngine{stream: stream}, b, zerolog.Nop())

	require.NoError(t, r.Run(context.Background(), "one", false))
	assert.ErrorIs(t, r.Run(context.Background(), "two", false), ErrAlreadyRunning)

	close(stream.gate)
	r.Wait()

	// A finished session accepts the next run again.
	second := newFakeStream(nil)
	r2 := New(sess, &fakeEngine{stream: second}, b, zerolog.Nop())
	require.NoError(t, r2.Run(context.Background(), "three", false))
	r2.Wait()
}

func TestInterruptTerminatesAsInterrupted(t *testing.T) {
	sess := newTestSession(t)
	b := bus.New(64, zerolog.Nop())
	sink := &recordSink{}
	b.Subscribe(sess.ID(), sink)

	stream := newFakeStream([]engine.Message{
		{Kind: engine.KindSessionHandle, Handle: "h-1"},
	})
	stream.gate = make(chan struct{})
	r := New(sess, &fakeEngine{stream: stream}, b, zerolog.Nop())

	require.NoError(t, r.Run(context.Background(), "hang", false))
	deadline := time.Now().Add(2 * time.Second)
	for !r.Running() && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	r.Interrupt()
	r.Wait()
	sink.waitTerminal(t)

	assert.Equal(t, session.StatusInterrupted, sess.Status())
	events := sink.snapshot()
	last := events[len(events)-1]
	assert.Equal(t, event.TypeSessionEnd, last.Type)
	assert.Equal(t, event.ReasonInterrupted, last.Reason)
}

func TestEngineFailureEmitsErrorThenSessionEnd(t *testing.T) {
	sess := newTestSession(t)
	b := bus.New(64, zerolog.Nop())
	sink := &recordSink{}
	b.Subscribe(sess.ID(), sink)

	stream := newFakeStream([]engine.Message{
		{Kind: engine.KindAssistant, Blocks: []engine.Block{{Type: engine.BlockText, Text: "partial"}}},
	})
	stream.finalErr = errors.New("engine exploded")
	r := New(sess, &fakeEngine{stream: stream}, b, zerolog.Nop())

	require.NoError(t, r.Run(context.Background(), "boom", false))
	r.Wait()
	sink.waitTerminal(t)

	assert.Equal(t, session.StatusError, sess.Status())
	types := sink.types()
	require.GreaterOrEqual(t, len(types), 2)
	assert.Equal(t, event.TypeError, types[len(types)-2])
	assert.Equal(t, event.TypeSessionEnd, types[len(types)-1])
	assert.Equal(t, event.ReasonError, sink.snapshot()[len(types)-1].Reason)
}

func TestRunStartFailureTerminatesAsError(t *testing.T) {
	sess := newTestSession(t)
	b := bus.New(64, zerolog.Nop())
	sink := &recordSink{}
	b.Subscribe(sess.ID(), sink)

	r := New(sess, &fakeEngine{runErr: errors.New("no credentials")}, b, zerolog.Nop())
	require.NoError(t, r.Run(context.Background(), "x", false))
	r.Wait()
	sink.waitTerminal(t)

	assert.Equal(t, session.StatusError, sess.Status())
}

func TestClassifierRoutesTextBlocks(t *testing.T) {
	sess := newTestSession(t)
	b := bus.New(64, zerolog.Nop())
	sink := &recordSink{}
	b.Subscribe(sess.ID(), sink)

	eng := &fakeEngine{stream: newFakeStream([]engine.Message{
		{Kind: engine.KindAssistant, Blocks: []engine.Block{
			{Type: engine.BlockText, Text: "Let me check the config first."},
			{Type: engine.BlockText, Text: "The config is valid."},
		}},
	})}
	r := New(sess, eng, b, zerolog.Nop())
	require.NoError(t, r.Run(context.Background(), "check", false))
	r.Wait()
	sink.waitTerminal(t)

	var thinking, answers []string
	for _, ev := range sink.snapshot() {
		switch ev.Type {
		case event.TypeThinking:
			thinking = append(thinking, ev.Content)
		case event.TypeAssistantMessage:
			answers = append(answers, ev.Content)
		}
	}
	assert.Equal(t, []string{"Let me check the config first."}, thinking)
	assert.Equal(t, []string{"The config is valid."}, answers)
}

func TestErrorToolResultClosesAsToolEnd(t *testing.T) {
	sess := newTestSession(t)
	b := bus.New(64, zerolog.Nop())
	sink := &recordSink{}
	b.Subscribe(sess.ID(), sink)

	input := map[string]interface{}{"command": "make"}
	eng := &fakeEngine{stream: newFakeStream([]engine.Message{
		{Kind: engine.KindAssistant, Blocks: []engine.Block{
			{Type: engine.BlockToolUse, ToolUseID: "tu-err", Name: "Bash", Input: input},
		}},
		{Kind: engine.KindToolResult, Tools: []engine.ToolResult{
			{ToolUseID: "tu-err", Content: "exit status 1", IsError: true},
		}},
	})}
	r := New(sess, eng, b, zerolog.Nop())
	require.NoError(t, r.Run(context.Background(), "build it", false))
	r.Wait()
	sink.waitTerminal(t)

	var end *event.Event
	for _, ev := range sink.snapshot() {
		if ev.Type == event.TypeToolEnd {
			end = &ev
		}
	}
	require.NotNil(t, end, "failed call must still emit tool_end")
	assert.Equal(t, "Bash", end.Tool)
	assert.Equal(t, input, end.Input)
	assert.Equal(t, map[string]interface{}{"error": "exit status 1"}, end.Output)
	assert.Equal(t, "tu-err", end.ToolUseID)
	assert.GreaterOrEqual(t, end.DurationMS, int64(0))
	assert.Zero(t, r.correlator.Open())
}

func TestOpenToolCallSurvivesIntoResumedRun(t *testing.T) {
	sess := newTestSession(t)
	b := bus.New(64, zerolog.Nop())

	eng := &fakeEngine{stream: newFakeStream([]engine.Message{
		{Kind: engine.KindSessionHandle, Handle: "h-1"},
		{Kind: engine.KindAssistant, Blocks: []engine.Block{
			{Type: engine.BlockToolUse, ToolUseID: "tu-young", Name: "Bash", Input: nil},
		}},
	})}
	r := New(sess, eng, b, zerolog.Nop())
	require.NoError(t, r.Run(context.Background(), "start", false))
	r.Wait()

	// Far below the orphan timeout, so the call outlives the run.
	assert.Equal(t, 1, r.correlator.Open())

	sink := &recordSink{}
	b.Subscribe(sess.ID(), sink)
	eng.stream = newFakeStream([]engine.Message{
		{Kind: engine.KindToolResult, Tools: []engine.ToolResult{
			{ToolUseID: "tu-young", Content: "done"},
		}},
	})
	require.NoError(t, r.Run(context.Background(), "continue", true))
	r.Wait()
	sink.waitTerminal(t)

	var end *event.Event
	for _, ev := range sink.snapshot() {
		if ev.Type == event.TypeToolEnd {
			end = &ev
		}
	}
	require.NotNil(t, end)
	assert.Equal(t, "Bash", end.Tool)
	assert.Zero(t, r.correlator.Open())
}

func TestDefaultClassifier(t *testing.T) {
	tests := []struct {
		text string
		want bool
	}{
		{"Let me look at that.", true},
		{"I'll start with the tests.", true},
		{"first, the schema", true},
		{"Hmm, that is odd.", true},
		{"So, the plan:", true},
		{"  Now checking imports", true},
		{"The answer is 42.", false},
		{"Sounds good.", false},
		{"", false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, DefaultClassifier(tt.text), tt.text)
	}
}
