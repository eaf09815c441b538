package server

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/runlace/core/pkg/types"
)

// CreateAgentSessionRequest is the request body for starting a session
// driven by the turn engine.
type CreateAgentSessionRequest struct {
	ProjectID string `json:"projectID,omitempty"`
	Title     string `json:"title,omitempty"`
	Agent     string `json:"agent,omitempty"`
}

// createAgentSession handles POST /agent-session
func (s *Server) createAgentSession(w http.ResponseWriter, r *http.Request) {
	if s.agentMgr == nil {
		writeError(w, http.StatusServiceUnavailable, ErrCodeInternalError, "agent runtime not configured")
		return
	}

	var req CreateAgentSessionRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, ErrCodeInvalidRequest, "Invalid JSON body")
			return
		}
	}

	root, err := s.agentMgr.CreateSession(r.Context(), req.ProjectID, req.Title, req.Agent)
	if err != nil {
		writeError(w, http.StatusBadRequest, ErrCodeInvalidRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, root)
}

// AgentSessionMessageRequest is the request body for POST
// /agent-session/{sessionID}/message.
type AgentSessionMessageRequest struct {
	Text string `json:"text"`
}

// sendAgentSessionMessage handles POST /agent-session/{sessionID}/message.
// It drives the session's root turn.Agent through one turn and returns once
// the turn completes or aborts; callers watch progress via
// GET /thread/{threadID}/event.
func (s *Server) sendAgentSessionMessage(w http.ResponseWriter, r *http.Request) {
	if s.agentMgr == nil {
		writeError(w, http.StatusServiceUnavailable, ErrCodeInternalError, "agent runtime not configured")
		return
	}

	sessionID := types.SessionID(chi.URLParam(r, "sessionID"))

	var req AgentSessionMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, ErrCodeInvalidRequest, "Invalid JSON body")
		return
	}
	if req.Text == "" {
		writeError(w, http.StatusBadRequest, ErrCodeInvalidRequest, "text is required")
		return
	}

	if err := s.agentMgr.SendMessage(r.Context(), sessionID, req.Text); err != nil {
		writeError(w, http.StatusInternalServerError, ErrCodeInternalError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "complete"})
}

// getAgentSession handles GET /agent-session/{sessionID}
func (s *Server) getAgentSession(w http.ResponseWriter, r *http.Request) {
	if s.agentMgr == nil {
		writeError(w, http.StatusServiceUnavailable, ErrCodeInternalError, "agent runtime not configured")
		return
	}

	sessionID := types.SessionID(chi.URLParam(r, "sessionID"))
	root, ok := s.agentMgr.Session(sessionID)
	if !ok {
		writeError(w, http.StatusNotFound, ErrCodeNotFound, "session not found")
		return
	}
	writeJSON(w, http.StatusOK, root)
}
