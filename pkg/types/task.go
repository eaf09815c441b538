package types

// TaskStatus is the lifecycle state of a task in the shared task store.
type TaskStatus string

const (
	TaskPending    TaskStatus = "pending"
	TaskInProgress TaskStatus = "in_progress"
	TaskCompleted  TaskStatus = "completed"
	TaskCancelled  TaskStatus = "cancelled"
)

// Task is a unit of work tracked in the session-wide task list, optionally
// assigned to a specific agent thread (the assignee grammar: "self",
// "coordinator", or a thread id).
type Task struct {
	ID        TaskID     `json:"id"`
	SessionID SessionID  `json:"sessionID"`
	Title     string     `json:"title"`
	Status    TaskStatus `json:"status"`
	Assignee  string     `json:"assignee,omitempty"`
	CreatedAt int64      `json:"createdAt"`
	UpdatedAt int64      `json:"updatedAt"`
}

// TaskNote is a timestamped annotation attached to a task, appended by
// task_add_note and never mutated afterward.
type TaskNote struct {
	ID        int64  `json:"id"`
	TaskID    TaskID `json:"taskID"`
	Author    string `json:"author,omitempty"`
	Body      string `json:"body"`
	CreatedAt int64  `json:"createdAt"`
}
