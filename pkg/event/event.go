// Package event defines the closed vocabulary of session events and the
// Sink capability transports implement to receive them. Events are
// immutable value objects; they carry no identity beyond their content.
package event

import (
	"time"

	"github.com/averin/conduit/pkg/session"
	"github.com/averin/conduit/pkg/usage"
)

// Type discriminates the event union. The set is closed; transports must
// treat unknown values as a protocol error.
type Type string

const (
	TypeConnected         Type = "connected"
	TypeSessionStart      Type = "session_start"
	TypeSessionInfo       Type = "session_info"
	TypeThinking          Type = "thinking"
	TypeToolStart         Type = "tool_start"
	TypeToolEnd           Type = "tool_end"
	TypeToolError         Type = "tool_error"
	TypeAssistantMessage  Type = "assistant_message"
	TypeUserMessage       Type = "user_message"
	TypePermissionRequest Type = "permission_request"
	TypeSessionEnd        Type = "session_end"
	TypeError             Type = "error"
)

// Reason explains why a session_end event was emitted.
type Reason string

const (
	ReasonCompleted   Reason = "completed"
	ReasonError       Reason = "error"
	ReasonInterrupted Reason = "interrupted"
	ReasonDeleted     Reason = "deleted"
)

// Event is one entry in a session's event stream. Only the fields relevant
// to the Type are populated; the wire shape per variant is stable.
type Event struct {
	Type Type `json:"type"`

	// connected
	AgentID string `json:"agentId,omitempty"`

	// session_start
	SessionID string               `json:"sessionId,omitempty"`
	Config    *session.AgentConfig `json:"config,omitempty"`

	// session_info
	ResumableHandleID string `json:"resumableHandleId,omitempty"`
	CanResume         bool   `json:"canResume,omitempty"`

	// thinking / assistant_message / user_message
	Content string `json:"content,omitempty"`
	UUID    string `json:"uuid,omitempty"`

	// tool_start / tool_end / tool_error / permission_request
	Tool       string      `json:"tool,omitempty"`
	Input      interface{} `json:"input,omitempty"`
	Output     interface{} `json:"output,omitempty"`
	ToolUseID  string      `json:"toolUseId,omitempty"`
	DurationMS int64       `json:"durationMs,omitempty"`
	RequestID  string      `json:"requestId,omitempty"`

	// session_end
	Reason Reason       `json:"reason,omitempty"`
	Usage  *usage.Stats `json:"usage,omitempty"`

	// error / tool_error
	Message string `json:"message,omitempty"`
	Err     string `json:"error,omitempty"`
}

// Sink receives a session's events in emission order. Deliver returning an
// error detaches the subscription; Close signals that no further events
// will arrive.
type Sink interface {
	Deliver(Event) error
	Close()
}

// Connected greets a freshly attached listener.
func Connected(agentID string) Event {
	return Event{Type: TypeConnected, AgentID: agentID}
}

// SessionStart opens a run's event stream.
func SessionStart(sessionID string, cfg session.AgentConfig) Event {
	return Event{Type: TypeSessionStart, SessionID: sessionID, Config: &cfg}
}

// SessionInfo announces that the engine issued a resumable handle.
func SessionInfo(handleID string) Event {
	return Event{Type: TypeSessionInfo, ResumableHandleID: handleID, CanResume: true}
}

// Thinking carries a fragment of the model's reasoning.
func Thinking(content string) Event {
	return Event{Type: TypeThinking, Content: content}
}

// ToolStart records the beginning of one tool invocation.
func ToolStart(tool string, input interface{}, toolUseID string) Event {
	return Event{Type: TypeToolStart, Tool: tool, Input: input, ToolUseID: toolUseID}
}

// ToolEnd records a completed tool invocation with its measured duration.
func ToolEnd(tool string, input, output interface{}, toolUseID string, duration time.Duration) Event {
	return Event{
		Type:       TypeToolEnd,
		Tool:       tool,
		Input:      input,
		Output:     output,
		ToolUseID:  toolUseID,
		DurationMS: duration.Milliseconds(),
	}
}

// ToolError records a tool invocation that failed outright.
func ToolError(tool, errMsg, toolUseID string) Event {
	return Event{Type: TypeToolError, Tool: tool, Err: errMsg, ToolUseID: toolUseID}
}

// AssistantMessage carries user-facing assistant text.
func AssistantMessage(content, uuid string) Event {
	return Event{Type: TypeAssistantMessage, Content: content, UUID: uuid}
}

// UserMessage echoes the prompt that started a run.
func UserMessage(content, uuid string) Event {
	return Event{Type: TypeUserMessage, Content: content, UUID: uuid}
}

// PermissionRequest asks the listener to approve a tool invocation.
func PermissionRequest(tool string, input interface{}, requestID string) Event {
	return Event{Type: TypePermissionRequest, Tool: tool, Input: input, RequestID: requestID}
}

// SessionEnd terminates a run's event stream.
func SessionEnd(reason Reason, stats usage.Stats) Event {
	return Event{Type: TypeSessionEnd, Reason: reason, Usage: &stats}
}

// Error surfaces a run-time failure before the terminal session_end.
func Error(message string) Event {
	return Event{Type: TypeError, Message: message}
}
