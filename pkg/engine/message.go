package engine

// Kind discriminates the message union produced by a Stream.
type Kind string

const (
	// KindInit announces the run has started and which model serves it.
	KindInit Kind = "init"
	// KindSessionHandle carries the engine-side session identifier used
	// to resume a conversation later.
	KindSessionHandle Kind = "session_handle"
	// KindAssistant carries one assistant turn as an ordered block list.
	KindAssistant Kind = "assistant"
	// KindToolResult carries the outcomes of previously issued tool calls.
	KindToolResult Kind = "tool_result"
	// KindResult is the final accounting message of a run.
	KindResult Kind = "result"
	// KindUnknown is anything the engine emitted that has no mapping.
	KindUnknown Kind = "unknown"
)

// BlockType discriminates the content blocks inside an assistant turn.
type BlockType string

const (
	BlockThinking BlockType = "thinking"
	BlockText     BlockType = "text"
	BlockToolUse  BlockType = "tool_use"
)

// Block is a single content block of an assistant turn.
type Block struct {
	Type      BlockType
	Text      string
	ToolUseID string
	Name      string
	Input     interface{}
}

// ToolResult is the outcome of one tool invocation.
type ToolResult struct {
	ToolUseID string
	Content   string
	IsError   bool
}

// UsageUpdate is the cumulative accounting attached to a result message.
// CostReported distinguishes a genuine zero cost from an engine that
// never priced the run.
type UsageUpdate struct {
	InputTokens  int64
	OutputTokens int64
	CostUSD      float64
	CostReported bool
	DurationMS   int64
}

// Message is the tagged union a Stream yields. Only the fields relevant
// to Kind are populated.
type Message struct {
	Kind   Kind
	Model  string       // KindInit
	Handle string       // KindSessionHandle
	Blocks []Block      // KindAssistant
	Tools  []ToolResult // KindToolResult
	Usage  *UsageUpdate // KindResult
	Raw    string       // KindUnknown
}
