package server

import (
	"github.com/go-chi/chi/v5"
)

// setupRoutes configures all API routes.
func (s *Server) setupRoutes() {
	r := s.router

	// Event streaming (SSE)
	r.Get("/event", s.globalEvents)

	// Thread event log and task list
	if s.threadStore != nil {
		r.Route("/thread", func(r chi.Router) {
			r.Post("/", s.createThread)
			r.Get("/{threadID}", s.getThread)
			r.Get("/{threadID}/children", s.getThreadChildren)
			r.Get("/{threadID}/event", s.getThreadEvents)
			r.Get("/{threadID}/event/stream", s.threadEvents)
		})
	}
	if s.taskStore != nil {
		r.Route("/task", func(r chi.Router) {
			r.Get("/", s.listTasks)
			r.Post("/", s.createTask)
			r.Get("/{taskID}", s.getTask)
			r.Post("/{taskID}/note", s.addTaskNote)
		})
	}

	// Turn-engine-backed sessions (internal/turn.Agent via internal/session.Manager)
	if s.agentMgr != nil {
		r.Route("/agent-session", func(r chi.Router) {
			r.Post("/", s.createAgentSession)
			r.Get("/{sessionID}", s.getAgentSession)
			r.Post("/{sessionID}/message", s.sendAgentSessionMessage)
		})
	}
}
