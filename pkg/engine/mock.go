package engine

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/google/uuid"
)

// DefaultMockInterval paces the scripted stream so consumers observe a
// live-looking run rather than an instant burst.
const DefaultMockInterval = 50 * time.Millisecond

// MockEngine replays a fixed run without touching any API. It is the
// engine used by tests and by local development without credentials.
type MockEngine struct {
	interval time.Duration

	mu      sync.Mutex
	handles map[string]int // handle -> completed run count
}

// NewMockEngine returns a mock engine pacing messages at interval.
// A non-positive interval falls back to DefaultMockInterval.
func NewMockEngine(interval time.Duration) *MockEngine {
	if interval <= 0 {
		interval = DefaultMockInterval
	}
	return &MockEngine{
		interval: interval,
		handles:  map[string]int{},
	}
}

func (e *MockEngine) Name() string { return "mock" }

// Run produces the scripted sequence. Resuming an existing handle keeps
// the handle stable and counts the extra turn.
func (e *MockEngine) Run(ctx context.Context, req Request) (Stream, error) {
	handle := req.Resume
	e.mu.Lock()
	if handle == "" {
		handle = uuid.NewString()
	}
	e.handles[handle]++
	turn := e.handles[handle]
	e.mu.Unlock()

	return &mockStream{
		queue:       script(req, handle, turn),
		interval:    e.interval,
		interrupted: make(chan struct{}),
	}, nil
}

func script(req Request, handle string, turn int) []Message {
	globID := uuid.NewString()
	readID := uuid.NewString()
	grepID := uuid.NewString()

	return []Message{
		{Kind: KindInit, Model: req.Config.Model},
		{Kind: KindSessionHandle, Handle: handle},
		{Kind: KindAssistant, Blocks: []Block{
			{Type: BlockThinking, Text: "Let me analyze the codebase structure first."},
			{Type: BlockToolUse, ToolUseID: globID, Name: "Glob", Input: map[string]interface{}{"pattern": "**/*.go"}},
		}},
		{Kind: KindToolResult, Tools: []ToolResult{
			{ToolUseID: globID, Content: "main.go\npkg/server/server.go"},
		}},
		{Kind: KindAssistant, Blocks: []Block{
			{Type: BlockText, Text: "Now I'll read the entry point."},
			{Type: BlockToolUse, ToolUseID: readID, Name: "Read", Input: map[string]interface{}{"file_path": "main.go"}},
		}},
		{Kind: KindToolResult, Tools: []ToolResult{
			{ToolUseID: readID, Content: "package main\n\nfunc main() {}\n"},
		}},
		{Kind: KindAssistant, Blocks: []Block{
			{Type: BlockToolUse, ToolUseID: grepID, Name: "Grep", Input: map[string]interface{}{"pattern": "func main"}},
		}},
		{Kind: KindToolResult, Tools: []ToolResult{
			{ToolUseID: grepID, Content: "main.go:3:func main() {"},
		}},
		{Kind: KindAssistant, Blocks: []Block{
			{Type: BlockText, Text: fmt.Sprintf("The project is a small Go program with a single entry point. (turn %d, prompt: %s)", turn, req.Prompt)},
		}},
		{Kind: KindResult, Usage: &UsageUpdate{
			InputTokens:  1200,
			OutputTokens: 340,
			CostReported: false,
			DurationMS:   900,
		}},
	}
}

type mockStream struct {
	mu          sync.Mutex
	queue       []Message
	interval    time.Duration
	interrupted chan struct{}
	once        sync.Once
}

func (s *mockStream) Next(ctx context.Context) (Message, error) {
	timer := time.NewTimer(s.interval)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return Message{}, ctx.Err()
	case <-s.interrupted:
		return Message{}, io.EOF
	case <-timer.C:
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

func (s *mockStream) Interrupt() {
	s.once.Do(func() { close(s.interrupted) })
}

func (s *mockStream) Close() error {
	s.Interrupt()
	return nil
}
