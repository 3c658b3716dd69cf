package engine

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/averin/conduit/pkg/session"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func collect(t *testing.T, s Stream) []Message {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var out []Message
	for {
		msg, err := s.Next(ctx)
		if errors.Is(err, io.EOF) {
			return out
		}
		require.NoError(t, err)
		out = append(out, msg)
	}
}

func TestMockEngineScriptShape(t *testing.T) {
	e := NewMockEngine(time.Millisecond)
	stream, err := e.Run(context.Background(), Request{
		Prompt: "describe the repo",
		Config: session.AgentConfig{Model: "sonnet"},
	})
	require.NoError(t, err)
	msgs := collect(t, stream)

	require.GreaterOrEqual(t, len(msgs), 4)
	assert.Equal(t, KindInit, msgs[0].Kind)
	assert.Equal(t, "sonnet", msgs[0].Model)
	assert.Equal(t, KindSessionHandle, msgs[1].Kind)
	assert.NotEmpty(t, msgs[1].Handle)

	last := msgs[len(msgs)-1]
	require.Equal(t, KindResult, last.Kind)
	require.NotNil(t, last.Usage)
	assert.False(t, last.Usage.CostReported)
	assert.Positive(t, last.Usage.InputTokens)

	// Every tool_use block is answered by a tool_result with the same id.
	open := map[string]bool{}
	for _, msg := range msgs {
		for _, b := range msg.Blocks {
			if b.Type == BlockToolUse {
				open[b.ToolUseID] = true
			}
		}
		for _, tr := range msg.Tools {
			assert.True(t, open[tr.ToolUseID], "result for unknown tool call")
			delete(open, tr.ToolUseID)
		}
	}
	assert.Empty(t, open)
}

func TestMockEngineResumeKeepsHandle(t *testing.T) {
	e := NewMockEngine(time.Millisecond)
	ctx := context.Background()
	req := Request{Prompt: "hi", Config: session.AgentConfig{Model: "haiku"}}

	first, err := e.Run(ctx, req)
	require.NoError(t, err)
	handle := collect(t, first)[1].Handle
	require.NotEmpty(t, handle)

	req.Resume = handle
	second, err := e.Run(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, handle, collect(t, second)[1].Handle)
}

func TestMockEngineInterruptEndsStream(t *testing.T) {
	e := NewMockEngine(time.Millisecond)
	stream, err := e.Run(context.Background(), Request{Config: session.AgentConfig{Model: "sonnet"}})
	require.NoError(t, err)

	_, err = stream.Next(context.Background())
	require.NoError(t, err)

	stream.Interrupt()
	_, err = stream.Next(context.Background())
	assert.ErrorIs(t, err, io.EOF)
}

func TestMockEngineRespectsContext(t *testing.T) {
	e := NewMockEngine(time.Minute)
	stream, err := e.Run(context.Background(), Request{Config: session.AgentConfig{Model: "sonnet"}})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err = stream.Next(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestFactoryModes(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		want    string
		wantErr bool
	}{
		{name: "default is mock", cfg: Config{}, want: "mock"},
		{name: "explicit mock", cfg: Config{Mode: "mock"}, want: "mock"},
		{name: "anthropic", cfg: Config{Mode: "anthropic", APIKey: "k"}, want: "anthropic"},
		{name: "anthropic without key", cfg: Config{Mode: "anthropic"}, wantErr: true},
		{name: "openai", cfg: Config{Mode: "openai", APIKey: "k"}, want: "openai"},
		{name: "openai without key", cfg: Config{Mode: "openai"}, wantErr: true},
		{name: "unknown", cfg: Config{Mode: "llama"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			eng, err := New(tt.cfg)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, eng.Name())
		})
	}
}
