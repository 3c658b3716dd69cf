package gateway

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/averin/conduit/pkg/session"
)

// CreateRequest is the body of POST /agent/create.
type CreateRequest struct {
	Name            string                             `json:"name"`
	SystemPrompt    string                             `json:"systemPrompt,omitempty"`
	Model           string                             `json:"model,omitempty"`
	AllowedTools    []string                           `json:"allowedTools,omitempty"`
	DisallowedTools []string                           `json:"disallowedTools,omitempty"`
	MaxTurns        int                                `json:"maxTurns,omitempty"`
	MaxBudgetUSD    float64                            `json:"maxBudgetUsd,omitempty"`
	PermissionMode  string                             `json:"permissionMode,omitempty"`
	MCPServers      map[string]session.MCPServerConfig `json:"mcpServers,omitempty"`
	CWD             string                             `json:"cwd,omitempty"`
}

// AgentConfig converts the wire shape into the domain config.
func (r CreateRequest) AgentConfig() session.AgentConfig {
	return session.AgentConfig{
		Name:            r.Name,
		SystemPrompt:    r.SystemPrompt,
		Model:           r.Model,
		AllowedTools:    r.AllowedTools,
		DisallowedTools: r.DisallowedTools,
		MaxTurns:        r.MaxTurns,
		MaxBudgetUSD:    r.MaxBudgetUSD,
		PermissionMode:  session.PermissionMode(r.PermissionMode),
		MCPServers:      r.MCPServers,
		CWD:             r.CWD,
	}
}

// QueryRequest is the body of POST /agent/{id}/query.
type QueryRequest struct {
	Prompt string `json:"prompt"`
	Resume bool   `json:"resume,omitempty"`
}

// CreateResponse is the 201 body of POST /agent/create.
type CreateResponse struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

// StatusResponse is the body of GET /agent/{id}/status.
type StatusResponse struct {
	ID     string              `json:"id"`
	Status string              `json:"status"`
	Config session.AgentConfig `json:"config"`
}

// SessionResponse is the body of GET /agent/{id}/session.
type SessionResponse struct {
	ID              string  `json:"id"`
	EngineSessionID string  `json:"engineSessionId,omitempty"`
	CanResume       bool    `json:"canResume"`
	InputTokens     int64   `json:"inputTokens"`
	OutputTokens    int64   `json:"outputTokens"`
	TotalCostUSD    float64 `json:"totalCostUsd"`
}

// AgentSummary is one element of GET /agents.
type AgentSummary struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"createdAt"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorResponse{Error: message})
}
