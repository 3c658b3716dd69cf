package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// openaiModels maps the short model names accepted on the wire to
// concrete API model identifiers.
var openaiModels = map[string]string{
	"sonnet": "gpt-4o",
	"opus":   "gpt-4.1",
	"haiku":  "gpt-4o-mini",
}

// OpenAIEngine runs turns against the OpenAI chat completions API with
// the same in-memory history scheme as the Anthropic engine.
type OpenAIEngine struct {
	client    openai.Client
	maxTokens int64

	mu        sync.Mutex
	histories map[string][]openai.ChatCompletionMessageParamUnion
}

// NewOpenAIEngine creates an engine authenticated with apiKey.
func NewOpenAIEngine(apiKey string, maxTokens int64) *OpenAIEngine {
	if maxTokens <= 0 {
		maxTokens = DefaultMaxTokens
	}
	return &OpenAIEngine{
		client:    openai.NewClient(option.WithAPIKey(apiKey)),
		maxTokens: maxTokens,
		histories: map[string][]openai.ChatCompletionMessageParamUnion{},
	}
}

func (e *OpenAIEngine) Name() string { return "openai" }

// Run executes one turn and returns its messages as a stream.
func (e *OpenAIEngine) Run(ctx context.Context, req Request) (Stream, error) {
	handle := req.Resume
	if handle == "" {
		handle = uuid.NewString()
	}

	e.mu.Lock()
	history := append([]openai.ChatCompletionMessageParamUnion{}, e.histories[handle]...)
	e.mu.Unlock()

	messages := []openai.ChatCompletionMessageParamUnion{}
	if req.Config.SystemPrompt != "" {
		messages = append(messages, openai.SystemMessage(req.Config.SystemPrompt))
	}
	messages = append(messages, history...)
	messages = append(messages, openai.UserMessage(req.Prompt))

	params := openai.ChatCompletionNewParams{
		Model:     openai.ChatModel(resolveModel(openaiModels, req.Config.Model)),
		Messages:  messages,
		MaxTokens: openai.Int(e.maxTokens),
	}

	started := time.Now()
	response, err := e.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("openai chat completion: %w", err)
	}
	if len(response.Choices) == 0 {
		return nil, fmt.Errorf("no response choices returned")
	}
	content := response.Choices[0].Message.Content

	e.mu.Lock()
	e.histories[handle] = append(e.histories[handle],
		openai.UserMessage(req.Prompt),
		openai.AssistantMessage(content),
	)
	e.mu.Unlock()

	return newQueuedStream([]Message{
		{Kind: KindInit, Model: response.Model},
		{Kind: KindSessionHandle, Handle: handle},
		{Kind: KindAssistant, Blocks: []Block{
			{Type: BlockText, Text: content},
		}},
		{Kind: KindResult, Usage: &UsageUpdate{
			InputTokens:  response.Usage.PromptTokens,
			OutputTokens: response.Usage.CompletionTokens,
			CostReported: false,
			DurationMS:   time.Since(started).Milliseconds(),
		}},
	}), nil
}

// Forget drops the stored history for a handle.
func (e *OpenAIEngine) Forget(handle string) {
	e.mu.Lock()
	delete(e.histories, handle)
	e.mu.Unlock()
}
