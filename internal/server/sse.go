// Package server provides HTTP handlers for the thread/task/agent-session API.
//
// SSE Implementation Note:
// This file contains a custom Server-Sent Events implementation rather than
// pulling in a third-party SSE package. The stream is a thin adapter over
// internal/event's pub/sub bus: each connection subscribes to the bus and
// re-emits events as they're published, filtering by thread ID when asked.
package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/runlace/core/internal/event"
	"github.com/runlace/core/internal/logging"
	"github.com/runlace/core/pkg/types"
)

// SDKEvent is the wire envelope for a published event.
type SDKEvent struct {
	Type       event.EventType `json:"type"`
	Properties any             `json:"properties"`
}

const (
	// SSEHeartbeatInterval is the interval for SSE heartbeats.
	SSEHeartbeatInterval = 30 * time.Second
)

// sseWriter wraps http.ResponseWriter for SSE.
type sseWriter struct {
	w       http.ResponseWriter
	flusher http.Flusher
	rc      *http.ResponseController
}

// newSSEWriter creates a new SSE writer.
func newSSEWriter(w http.ResponseWriter) (*sseWriter, error) {
	rc := http.NewResponseController(w)

	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, fmt.Errorf("streaming not supported")
	}

	return &sseWriter{w: w, flusher: flusher, rc: rc}, nil
}

// writeEvent writes an SSE event.
func (s *sseWriter) writeEvent(eventType string, data any) error {
	jsonData, err := json.Marshal(data)
	if err != nil {
		return err
	}

	if _, err := fmt.Fprintf(s.w, "event: %s\ndata: %s\n\n", eventType, jsonData); err != nil {
		return err
	}

	if flushErr := s.rc.Flush(); flushErr != nil {
		s.flusher.Flush()
	}

	return nil
}

// writeHeartbeat writes an SSE heartbeat comment.
func (s *sseWriter) writeHeartbeat() {
	fmt.Fprintf(s.w, ": heartbeat\n\n")
	s.flusher.Flush()
}

// stream subscribes to the event bus and relays matching events as SSE
// until the client disconnects. filter may be nil to match every event.
func (srv *Server) stream(w http.ResponseWriter, r *http.Request, filter func(event.Event) bool) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	sse, err := newSSEWriter(w)
	if err != nil {
		writeError(w, http.StatusInternalServerError, ErrCodeInternalError, err.Error())
		return
	}

	w.WriteHeader(http.StatusOK)
	sse.flusher.Flush()

	events := make(chan event.Event, 10)
	unsub := event.SubscribeAll(func(e event.Event) {
		if filter != nil && !filter(e) {
			return
		}
		select {
		case events <- e:
		default:
			logging.Warn().Str("eventType", string(e.Type)).Msg("SSE event dropped: channel full")
		}
	})
	defer unsub()

	ticker := time.NewTicker(SSEHeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case e := <-events:
			data := SDKEvent{Type: e.Type, Properties: e.Data}
			if err := sse.writeEvent("message", data); err != nil {
				return
			}
		case <-ticker.C:
			sse.writeHeartbeat()
		}
	}
}

// globalEvents handles GET /event, streaming every published event.
func (srv *Server) globalEvents(w http.ResponseWriter, r *http.Request) {
	srv.stream(w, r, nil)
}

// threadEvents handles GET /thread/{threadID}/event/stream. It streams the
// thread's own appended events and the permission requests that name it,
// plus every permission reply and file edit; task events are not included.
func (srv *Server) threadEvents(w http.ResponseWriter, r *http.Request) {
	threadID := types.ThreadID(chi.URLParam(r, "threadID"))
	if threadID == "" {
		writeError(w, http.StatusBadRequest, ErrCodeInvalidRequest, "threadID required")
		return
	}

	srv.stream(w, r, func(e event.Event) bool {
		return eventBelongsToThread(e, threadID)
	})
}

// eventBelongsToThread reports whether an event is scoped to threadID.
func eventBelongsToThread(e event.Event, threadID types.ThreadID) bool {
	switch data := e.Data.(type) {
	case event.ThreadEventAppendedData:
		return data.ThreadID == threadID
	case event.PermissionUpdatedData:
		return data.ThreadID == string(threadID)
	case event.PermissionRepliedData:
		return true
	case event.FileEditedData:
		return true
	}
	return false
}
