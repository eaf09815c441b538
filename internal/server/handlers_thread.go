package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/runlace/core/internal/thread"
	"github.com/runlace/core/pkg/types"
)

// CreateThreadRequest represents the request body for creating a thread.
type CreateThreadRequest struct {
	ParentID  string               `json:"parentID,omitempty"`
	ProjectID string               `json:"projectID"`
	Metadata  types.ThreadMetadata `json:"metadata,omitempty"`
}

// createThread handles POST /thread
func (s *Server) createThread(w http.ResponseWriter, r *http.Request) {
	var req CreateThreadRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, ErrCodeInvalidRequest, "Invalid JSON body")
		return
	}

	var parentID *types.ThreadID
	if req.ParentID != "" {
		p := types.ThreadID(req.ParentID)
		parentID = &p
	}

	id := types.NewThreadID()
	th, err := s.threadStore.CreateThread(r.Context(), id, parentID, req.ProjectID, req.Metadata)
	if err != nil {
		writeError(w, http.StatusInternalServerError, ErrCodeInternalError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, th)
}

// getThread handles GET /thread/{threadID}
func (s *Server) getThread(w http.ResponseWriter, r *http.Request) {
	id := types.ThreadID(chi.URLParam(r, "threadID"))
	th, err := s.threadStore.GetThread(r.Context(), id)
	if err != nil {
		if errors.Is(err, thread.ErrNotFound) {
			writeError(w, http.StatusNotFound, ErrCodeNotFound, "thread not found")
			return
		}
		writeError(w, http.StatusInternalServerError, ErrCodeInternalError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, th)
}

// getThreadChildren handles GET /thread/{threadID}/children
func (s *Server) getThreadChildren(w http.ResponseWriter, r *http.Request) {
	id := types.ThreadID(chi.URLParam(r, "threadID"))
	children, err := s.threadStore.Children(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, ErrCodeInternalError, err.Error())
		return
	}
	if children == nil {
		children = []types.ThreadID{}
	}
	writeJSON(w, http.StatusOK, children)
}

// getThreadEvents handles GET /thread/{threadID}/event?after=<eventID>
func (s *Server) getThreadEvents(w http.ResponseWriter, r *http.Request) {
	id := types.ThreadID(chi.URLParam(r, "threadID"))

	var after types.EventID
	if raw := r.URL.Query().Get("after"); raw != "" {
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			writeError(w, http.StatusBadRequest, ErrCodeInvalidRequest, "invalid after parameter")
			return
		}
		after = types.EventID(n)
	}

	events, err := s.threadStore.Events(r.Context(), id, after)
	if err != nil {
		writeError(w, http.StatusInternalServerError, ErrCodeInternalError, err.Error())
		return
	}
	if events == nil {
		events = []types.ThreadEvent{}
	}
	writeJSON(w, http.StatusOK, events)
}
