package session

// Status is the lifecycle state of a session's current run.
type Status string

const (
	StatusCreated     Status = "created"
	StatusRunning     Status = "running"
	StatusInterrupted Status = "interrupted"
	StatusCompleted   Status = "completed"
	StatusError       Status = "error"
)

// Terminal reports whether the current run has ended. The session record
// itself persists until deleted or evicted.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusError || s == StatusInterrupted
}

// Evictable reports whether the session may be reclaimed to honor the
// capacity bound. Interrupted sessions may still be resumed and are
// excluded.
func (s Status) Evictable() bool {
	return s == StatusCompleted || s == StatusError
}

// PermissionMode controls how the engine handles tool permissions.
type PermissionMode string

const (
	PermissionDefault PermissionMode = "default"
	PermissionPlan    PermissionMode = "plan"
	PermissionBypass  PermissionMode = "bypassPermissions"
)

// MCPServerConfig describes one sub-server available to the engine.
type MCPServerConfig struct {
	URL     string                 `json:"url"`
	Options map[string]interface{} `json:"options,omitempty"`
}

// AgentConfig is the immutable configuration a session is created with.
type AgentConfig struct {
	ID              string                     `json:"id"`
	Name            string                     `json:"name"`
	SystemPrompt    string                     `json:"systemPrompt,omitempty"`
	Model           string                     `json:"model,omitempty"`
	AllowedTools    []string                   `json:"allowedTools,omitempty"`
	DisallowedTools []string                   `json:"disallowedTools,omitempty"`
	MaxTurns        int                        `json:"maxTurns,omitempty"`
	MaxBudgetUSD    float64                    `json:"maxBudgetUsd,omitempty"`
	PermissionMode  PermissionMode             `json:"permissionMode,omitempty"`
	MCPServers      map[string]MCPServerConfig `json:"mcpServers,omitempty"`
	CWD             string                     `json:"cwd,omitempty"`
}
