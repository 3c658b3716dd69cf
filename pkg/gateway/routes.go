package gateway

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/averin/conduit/pkg/orchestrator"
	"github.com/averin/conduit/pkg/runner"
	"github.com/averin/conduit/pkg/session"
)

func (s *Server) handleCreate(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeError(w, http.StatusBadRequest, "failed to read request body")
		return
	}
	if err := validateBody(createSchemaLoader, body); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	var req CreateRequest
	if err := json.Unmarshal(body, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.Model == "" {
		req.Model = "sonnet"
	}

	snap, err := s.orch.Create(req.AgentConfig())
	if err != nil {
		if errors.Is(err, session.ErrAtCapacity) {
			writeError(w, http.StatusServiceUnavailable, "session table at capacity")
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	s.logger.Info().Str("session_id", snap.ID).Str("name", req.Name).Msg("Agent created")
	writeJSON(w, http.StatusCreated, CreateResponse{ID: snap.ID, Status: string(snap.Status)})
}

func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeError(w, http.StatusBadRequest, "failed to read request body")
		return
	}
	if err := validateBody(querySchemaLoader, body); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	var req QueryRequest
	if err := json.Unmarshal(body, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	switch err := s.orch.Query(id, req.Prompt, req.Resume); {
	case errors.Is(err, orchestrator.ErrNotFound):
		writeError(w, http.StatusNotFound, "agent not found")
	case errors.Is(err, runner.ErrAlreadyRunning):
		writeError(w, http.StatusConflict, "agent is already processing a query")
	case err != nil:
		writeError(w, http.StatusInternalServerError, err.Error())
	default:
		writeJSON(w, http.StatusAccepted, map[string]string{"status": "processing"})
	}
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	snap, err := s.orch.Inspect(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusNotFound, "agent not found")
		return
	}
	writeJSON(w, http.StatusOK, StatusResponse{
		ID:     snap.ID,
		Status: string(snap.Status),
		Config: snap.Config,
	})
}

func (s *Server) handleSession(w http.ResponseWriter, r *http.Request) {
	snap, err := s.orch.Inspect(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusNotFound, "agent not found")
		return
	}
	writeJSON(w, http.StatusOK, SessionResponse{
		ID:              snap.ID,
		EngineSessionID: snap.EngineSessionID,
		CanResume:       snap.CanResume,
		InputTokens:     snap.InputTokens,
		OutputTokens:    snap.OutputTokens,
		TotalCostUSD:    snap.TotalCostUSD,
	})
}

func (s *Server) handleInterrupt(w http.ResponseWriter, r *http.Request) {
	if err := s.orch.Interrupt(r.PathValue("id")); err != nil {
		writeError(w, http.StatusNotFound, "agent not found")
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "interrupting"})
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	s.orch.Delete(r.PathValue("id"))
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

func (s *Server) handleList(w http.ResponseWriter, _ *http.Request) {
	snapshots := s.orch.List()
	out := make([]AgentSummary, 0, len(snapshots))
	for _, snap := range snapshots {
		out = append(out, AgentSummary{
			ID:        snap.ID,
			Name:      snap.Config.Name,
			Status:    string(snap.Status),
			CreatedAt: snap.CreatedAt,
		})
	}
	writeJSON(w, http.StatusOK, out)
}
