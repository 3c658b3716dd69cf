package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/google/uuid"
)

// DefaultMaxTokens bounds a single assistant turn.
const DefaultMaxTokens = 8192

// anthropicModels maps the short model names accepted on the wire to
// concrete API model identifiers.
var anthropicModels = map[string]string{
	"sonnet": "claude-sonnet-4-20250514",
	"opus":   "claude-opus-4-20250514",
	"haiku":  "claude-3-5-haiku-20241022",
}

// AnthropicEngine runs turns against the Anthropic Messages API.
// Conversation history is kept in memory per handle so a later request
// can resume where the previous turn left off.
type AnthropicEngine struct {
	client    anthropic.Client
	maxTokens int64

	mu       sync.Mutex
	histories map[string][]anthropic.MessageParam
}

// NewAnthropicEngine creates an engine authenticated with apiKey.
func NewAnthropicEngine(apiKey string, maxTokens int64) *AnthropicEngine {
	if maxTokens <= 0 {
		maxTokens = DefaultMaxTokens
	}
	return &AnthropicEngine{
		client:    anthropic.NewClient(option.WithAPIKey(apiKey)),
		maxTokens: maxTokens,
		histories: map[string][]anthropic.MessageParam{},
	}
}

func (e *AnthropicEngine) Name() string { return "anthropic" }

// Run executes one turn and returns its messages as a stream.
func (e *AnthropicEngine) Run(ctx context.Context, req Request) (Stream, error) {
	handle := req.Resume
	if handle == "" {
		handle = uuid.NewString()
	}

	e.mu.Lock()
	history := append([]anthropic.MessageParam{}, e.histories[handle]...)
	e.mu.Unlock()

	messages := append(history, anthropic.NewUserMessage(
		anthropic.NewTextBlock(req.Prompt),
	))

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(resolveModel(anthropicModels, req.Config.Model)),
		Messages:  messages,
		MaxTokens: e.maxTokens,
	}
	if req.Config.SystemPrompt != "" {
		params.System = []anthropic.TextBlockParam{
			{Text: req.Config.SystemPrompt},
		}
	}

	started := time.Now()
	response, err := e.client.Messages.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("anthropic messages: %w", err)
	}

	blocks := []Block{}
	assistantText := ""
	for _, block := range response.Content {
		switch b := block.AsAny().(type) {
		case anthropic.ThinkingBlock:
			blocks = append(blocks, Block{Type: BlockThinking, Text: b.Thinking})
		case anthropic.TextBlock:
			blocks = append(blocks, Block{Type: BlockText, Text: b.Text})
			assistantText += b.Text
		case anthropic.ToolUseBlock:
			var input map[string]interface{}
			if err := json.Unmarshal([]byte(b.JSON.Input.Raw()), &input); err != nil {
				return nil, fmt.Errorf("parse tool input: %w", err)
			}
			blocks = append(blocks, Block{
				Type:      BlockToolUse,
				ToolUseID: b.ID,
				Name:      b.Name,
				Input:     input,
			})
		}
	}

	e.mu.Lock()
	e.histories[handle] = append(e.histories[handle],
		anthropic.NewUserMessage(anthropic.NewTextBlock(req.Prompt)),
		anthropic.MessageParam{
			Role: anthropic.MessageParamRoleAssistant,
			Content: []anthropic.ContentBlockParamUnion{
				anthropic.NewTextBlock(assistantText),
			},
		},
	)
	e.mu.Unlock()

	return newQueuedStream([]Message{
		{Kind: KindInit, Model: string(response.Model)},
		{Kind: KindSessionHandle, Handle: handle},
		{Kind: KindAssistant, Blocks: blocks},
		{Kind: KindResult, Usage: &UsageUpdate{
			InputTokens:  response.Usage.InputTokens,
			OutputTokens: response.Usage.OutputTokens,
			CostReported: false,
			DurationMS:   time.Since(started).Milliseconds(),
		}},
	}), nil
}

// Forget drops the stored history for a handle.
func (e *AnthropicEngine) Forget(handle string) {
	e.mu.Lock()
	delete(e.histories, handle)
	e.mu.Unlock()
}

func resolveModel(aliases map[string]string, name string) string {
	if full, ok := aliases[name]; ok {
		return full
	}
	return name
}
