package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/runlace/core/internal/task"
	"github.com/runlace/core/pkg/types"
)

// CreateTaskRequest represents the request body for creating a task.
type CreateTaskRequest struct {
	SessionID string `json:"sessionID"`
	Title     string `json:"title"`
	Assignee  string `json:"assignee,omitempty"`
}

// listTasks handles GET /task?sessionID=<id>
func (s *Server) listTasks(w http.ResponseWriter, r *http.Request) {
	sessionID := types.SessionID(r.URL.Query().Get("sessionID"))
	if sessionID == "" {
		writeError(w, http.StatusBadRequest, ErrCodeInvalidRequest, "sessionID is required")
		return
	}

	tasks, err := s.taskStore.List(r.Context(), sessionID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, ErrCodeInternalError, err.Error())
		return
	}
	if tasks == nil {
		tasks = []types.Task{}
	}
	writeJSON(w, http.StatusOK, tasks)
}

// createTask handles POST /task
func (s *Server) createTask(w http.ResponseWriter, r *http.Request) {
	var req CreateTaskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, ErrCodeInvalidRequest, "Invalid JSON body")
		return
	}
	if req.SessionID == "" || req.Title == "" {
		writeError(w, http.StatusBadRequest, ErrCodeInvalidRequest, "sessionID and title are required")
		return
	}

	t, err := s.taskStore.Add(r.Context(), types.SessionID(req.SessionID), req.Title, req.Assignee)
	if err != nil {
		writeError(w, http.StatusInternalServerError, ErrCodeInternalError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, t)
}

// getTask handles GET /task/{taskID}
func (s *Server) getTask(w http.ResponseWriter, r *http.Request) {
	id := types.TaskID(chi.URLParam(r, "taskID"))
	t, err := s.taskStore.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, task.ErrNotFound) {
			writeError(w, http.StatusNotFound, ErrCodeNotFound, "task not found")
			return
		}
		writeError(w, http.StatusInternalServerError, ErrCodeInternalError, err.Error())
		return
	}

	notes, err := s.taskStore.Notes(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, ErrCodeInternalError, err.Error())
		return
	}
	if notes == nil {
		notes = []types.TaskNote{}
	}

	writeJSON(w, http.StatusOK, struct {
		types.Task
		Notes []types.TaskNote `json:"notes"`
	}{Task: *t, Notes: notes})
}

// AddTaskNoteRequest represents the request body for adding a task note.
type AddTaskNoteRequest struct {
	Author string `json:"author,omitempty"`
	Body   string `json:"body"`
}

// addTaskNote handles POST /task/{taskID}/note
func (s *Server) addTaskNote(w http.ResponseWriter, r *http.Request) {
	id := types.TaskID(chi.URLParam(r, "taskID"))

	var req AddTaskNoteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, ErrCodeInvalidRequest, "Invalid JSON body")
		return
	}
	if req.Body == "" {
		writeError(w, http.StatusBadRequest, ErrCodeInvalidRequest, "body is required")
		return
	}

	note, err := s.taskStore.AddNote(r.Context(), id, req.Author, req.Body)
	if err != nil {
		writeError(w, http.StatusInternalServerError, ErrCodeInternalError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, note)
}
