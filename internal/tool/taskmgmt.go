package tool

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	einotool "github.com/cloudwego/eino/components/tool"

	"github.com/runlace/core/internal/task"
	"github.com/runlace/core/pkg/types"
)

// taskStore is the subset of *task.Store the task-management tools need,
// kept narrow so tests can fake it without a real database.
type taskStore interface {
	Add(ctx context.Context, sessionID types.SessionID, title, assignee string) (*types.Task, error)
	List(ctx context.Context, sessionID types.SessionID) ([]types.Task, error)
	Get(ctx context.Context, id types.TaskID) (*types.Task, error)
	SetStatus(ctx context.Context, id types.TaskID, status types.TaskStatus) error
	Reassign(ctx context.Context, id types.TaskID, assignee string) error
	AddNote(ctx context.Context, taskID types.TaskID, author, body string) (*types.TaskNote, error)
	Notes(ctx context.Context, taskID types.TaskID) ([]types.TaskNote, error)
}

var _ taskStore = (*task.Store)(nil)

// TaskAddTool implements task_add.
type TaskAddTool struct{ store taskStore }

// NewTaskAddTool builds the task_add tool bound to a task store.
func NewTaskAddTool(store taskStore) *TaskAddTool { return &TaskAddTool{store: store} }

func (t *TaskAddTool) ID() string          { return "task_add" }
func (t *TaskAddTool) Description() string { return "Add a new task to the session's task list." }
func (t *TaskAddTool) Parameters() json.RawMessage {
	return json.RawMessage(`{"type":"object","properties":{
		"title":{"type":"string","description":"Short task title"},
		"assignee":{"type":"string","description":"\"self\", \"coordinator\", or a thread id"}
	},"required":["title"]}`)
}
func (t *TaskAddTool) Execute(ctx context.Context, input json.RawMessage, toolCtx *Context) (*Result, error) {
	var params struct {
		Title    string `json:"title"`
		Assignee string `json:"assignee"`
	}
	if err := json.Unmarshal(input, &params); err != nil {
		return nil, fmt.Errorf("invalid input: %w", err)
	}
	if params.Title == "" {
		return nil, fmt.Errorf("title is required")
	}
	created, err := t.store.Add(ctx, types.SessionID(toolCtx.SessionID), params.Title, params.Assignee)
	if err != nil {
		return nil, err
	}
	return &Result{Title: "Task added", Output: string(created.ID), Metadata: map[string]any{"taskID": created.ID}}, nil
}
func (t *TaskAddTool) EinoTool() einotool.InvokableTool { return &einoToolWrapper{tool: t} }

// TaskListTool implements task_list.
type TaskListTool struct{ store taskStore }

func NewTaskListTool(store taskStore) *TaskListTool { return &TaskListTool{store: store} }

func (t *TaskListTool) ID() string          { return "task_list" }
func (t *TaskListTool) Description() string { return "List all tasks in the current session." }
func (t *TaskListTool) Parameters() json.RawMessage {
	return json.RawMessage(`{"type":"object","properties":{}}`)
}
func (t *TaskListTool) Execute(ctx context.Context, input json.RawMessage, toolCtx *Context) (*Result, error) {
	tasks, err := t.store.List(ctx, types.SessionID(toolCtx.SessionID))
	if err != nil {
		return nil, err
	}
	var sb strings.Builder
	for _, task := range tasks {
		fmt.Fprintf(&sb, "%s [%s] %s (assignee=%s)\n", task.ID, task.Status, task.Title, task.Assignee)
	}
	return &Result{Title: "Tasks", Output: sb.String()}, nil
}
func (t *TaskListTool) EinoTool() einotool.InvokableTool { return &einoToolWrapper{tool: t} }

// TaskCompleteTool implements task_complete.
type TaskCompleteTool struct{ store taskStore }

func NewTaskCompleteTool(store taskStore) *TaskCompleteTool { return &TaskCompleteTool{store: store} }

func (t *TaskCompleteTool) ID() string          { return "task_complete" }
func (t *TaskCompleteTool) Description() string { return "Mark a task as completed." }
func (t *TaskCompleteTool) Parameters() json.RawMessage {
	return json.RawMessage(`{"type":"object","properties":{"taskID":{"type":"string"}},"required":["taskID"]}`)
}
func (t *TaskCompleteTool) Execute(ctx context.Context, input json.RawMessage, toolCtx *Context) (*Result, error) {
	var params struct{ TaskID string `json:"taskID"` }
	if err := json.Unmarshal(input, &params); err != nil {
		return nil, fmt.Errorf("invalid input: %w", err)
	}
	if err := t.store.SetStatus(ctx, types.TaskID(params.TaskID), types.TaskCompleted); err != nil {
		return nil, err
	}
	return &Result{Title: "Task completed", Output: params.TaskID}, nil
}
func (t *TaskCompleteTool) EinoTool() einotool.InvokableTool { return &einoToolWrapper{tool: t} }

// TaskUpdateTool implements task_update (status and/or reassignment).
type TaskUpdateTool struct{ store taskStore }

func NewTaskUpdateTool(store taskStore) *TaskUpdateTool { return &TaskUpdateTool{store: store} }

func (t *TaskUpdateTool) ID() string          { return "task_update" }
func (t *TaskUpdateTool) Description() string { return "Update a task's status and/or assignee." }
func (t *TaskUpdateTool) Parameters() json.RawMessage {
	return json.RawMessage(`{"type":"object","properties":{
		"taskID":{"type":"string"},
		"status":{"type":"string","enum":["pending","in_progress","completed","cancelled"]},
		"assignee":{"type":"string"}
	},"required":["taskID"]}`)
}
func (t *TaskUpdateTool) Execute(ctx context.Context, input json.RawMessage, toolCtx *Context) (*Result, error) {
	var params struct {
		TaskID   string `json:"taskID"`
		Status   string `json:"status"`
		Assignee string `json:"assignee"`
	}
	if err := json.Unmarshal(input, &params); err != nil {
		return nil, fmt.Errorf("invalid input: %w", err)
	}
	if params.TaskID == "" {
		return nil, fmt.Errorf("taskID is required")
	}
	if params.Status != "" {
		if err := t.store.SetStatus(ctx, types.TaskID(params.TaskID), types.TaskStatus(params.Status)); err != nil {
			return nil, err
		}
	}
	if params.Assignee != "" {
		if err := t.store.Reassign(ctx, types.TaskID(params.TaskID), params.Assignee); err != nil {
			return nil, err
		}
	}
	return &Result{Title: "Task updated", Output: params.TaskID}, nil
}
func (t *TaskUpdateTool) EinoTool() einotool.InvokableTool { return &einoToolWrapper{tool: t} }

// TaskAddNoteTool implements task_add_note.
type TaskAddNoteTool struct{ store taskStore }

func NewTaskAddNoteTool(store taskStore) *TaskAddNoteTool { return &TaskAddNoteTool{store: store} }

func (t *TaskAddNoteTool) ID() string          { return "task_add_note" }
func (t *TaskAddNoteTool) Description() string { return "Append an immutable note to a task." }
func (t *TaskAddNoteTool) Parameters() json.RawMessage {
	return json.RawMessage(`{"type":"object","properties":{
		"taskID":{"type":"string"},"body":{"type":"string"}
	},"required":["taskID","body"]}`)
}
func (t *TaskAddNoteTool) Execute(ctx context.Context, input json.RawMessage, toolCtx *Context) (*Result, error) {
	var params struct {
		TaskID string `json:"taskID"`
		Body   string `json:"body"`
	}
	if err := json.Unmarshal(input, &params); err != nil {
		return nil, fmt.Errorf("invalid input: %w", err)
	}
	note, err := t.store.AddNote(ctx, types.TaskID(params.TaskID), toolCtx.Agent, params.Body)
	if err != nil {
		return nil, err
	}
	return &Result{Title: "Note added", Output: fmt.Sprintf("note %d", note.ID)}, nil
}
func (t *TaskAddNoteTool) EinoTool() einotool.InvokableTool { return &einoToolWrapper{tool: t} }

// TaskViewTool implements task_view: a single task plus its notes.
type TaskViewTool struct{ store taskStore }

func NewTaskViewTool(store taskStore) *TaskViewTool { return &TaskViewTool{store: store} }

func (t *TaskViewTool) ID() string          { return "task_view" }
func (t *TaskViewTool) Description() string { return "View a task's details and its notes." }
func (t *TaskViewTool) Parameters() json.RawMessage {
	return json.RawMessage(`{"type":"object","properties":{"taskID":{"type":"string"}},"required":["taskID"]}`)
}
func (t *TaskViewTool) Execute(ctx context.Context, input json.RawMessage, toolCtx *Context) (*Result, error) {
	var params struct{ TaskID string `json:"taskID"` }
	if err := json.Unmarshal(input, &params); err != nil {
		return nil, fmt.Errorf("invalid input: %w", err)
	}
	tk, err := t.store.Get(ctx, types.TaskID(params.TaskID))
	if err != nil {
		return nil, err
	}
	notes, err := t.store.Notes(ctx, tk.ID)
	if err != nil {
		return nil, err
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "%s [%s] %s (assignee=%s)\n", tk.ID, tk.Status, tk.Title, tk.Assignee)
	for _, n := range notes {
		fmt.Fprintf(&sb, "  - %s\n", n.Body)
	}
	return &Result{Title: "Task detail", Output: sb.String()}, nil
}
func (t *TaskViewTool) EinoTool() einotool.InvokableTool { return &einoToolWrapper{tool: t} }
