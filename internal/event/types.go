package event

import "github.com/runlace/core/pkg/types"

// FileEditedData is the data for file.edited events.
type FileEditedData struct {
	File string `json:"file"`
}

// PermissionUpdatedData is the data for permission.required events.
type PermissionUpdatedData struct {
	ID             string   `json:"id"`
	ThreadID       string   `json:"threadID"`
	PermissionType string   `json:"permissionType"` // "bash" | "edit" | "external_directory"
	Pattern        []string `json:"pattern"`
	Title          string   `json:"title"`
}

// PermissionRepliedData is the data for permission.replied events.
type PermissionRepliedData struct {
	PermissionID string `json:"permissionID"`
	Response     string `json:"response"` // "allow_once" | "allow_session" | "deny"
}

// ThreadEventAppendedData is the data for thread.event events, published
// whenever internal/thread.Store.Append commits a new event to a thread.
// Subscribers (SSE streams, the turn scheduler) key off ThreadID and Type
// without needing to unmarshal the event's Data payload.
type ThreadEventAppendedData struct {
	ThreadID types.ThreadID        `json:"threadID"`
	Event    types.ThreadEvent     `json:"event"`
	Type     types.ThreadEventType `json:"type"`
}

// TaskUpdatedData is the data for task.created/task.updated events.
type TaskUpdatedData struct {
	Task types.Task `json:"task"`
}
