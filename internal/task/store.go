// Package task implements the Task Store: session-scoped units of work
// that agents create, claim, and annotate, backed by SQLite.
package task

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/runlace/core/internal/event"
	"github.com/runlace/core/pkg/types"
)

// ErrNotFound is returned when a task id has no matching row.
var ErrNotFound = errors.New("task: not found")

// Store is the durable task list, backed by the same SQLite handle as the
// thread event store.
type Store struct {
	db *sql.DB
}

// New wraps an already-open database handle.
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// Add creates a pending task for sessionID, optionally pre-assigned.
func (s *Store) Add(ctx context.Context, sessionID types.SessionID, title, assignee string) (*types.Task, error) {
	now := time.Now()
	t := &types.Task{
		ID:        types.NewTaskID(now),
		SessionID: sessionID,
		Title:     title,
		Status:    types.TaskPending,
		Assignee:  assignee,
		CreatedAt: now.UnixMilli(),
		UpdatedAt: now.UnixMilli(),
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO tasks (id, session_id, title, status, assignee, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		string(t.ID), string(t.SessionID), t.Title, string(t.Status), t.Assignee, t.CreatedAt, t.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("task: insert: %w", err)
	}
	event.Publish(event.Event{Type: event.TaskCreated, Data: event.TaskUpdatedData{Task: *t}})
	return t, nil
}

// List returns every task for sessionID ordered by creation.
func (s *Store) List(ctx context.Context, sessionID types.SessionID) ([]types.Task, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, session_id, title, status, assignee, created_at, updated_at FROM tasks WHERE session_id = ? ORDER BY created_at`,
		string(sessionID))
	if err != nil {
		return nil, fmt.Errorf("task: list query: %w", err)
	}
	defer rows.Close()
	var out []types.Task
	for rows.Next() {
		var t types.Task
		var assignee sql.NullString
		if err := rows.Scan(&t.ID, &t.SessionID, &t.Title, &t.Status, &assignee, &t.CreatedAt, &t.UpdatedAt); err != nil {
			return nil, err
		}
		t.Assignee = assignee.String
		out = append(out, t)
	}
	return out, rows.Err()
}

// Get loads a single task by id.
func (s *Store) Get(ctx context.Context, id types.TaskID) (*types.Task, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, session_id, title, status, assignee, created_at, updated_at FROM tasks WHERE id = ?`, string(id))
	var t types.Task
	var assignee sql.NullString
	if err := row.Scan(&t.ID, &t.SessionID, &t.Title, &t.Status, &assignee, &t.CreatedAt, &t.UpdatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("task: get: %w", err)
	}
	t.Assignee = assignee.String
	return &t, nil
}

// SetStatus transitions a task's status (used by task_complete and the
// in_progress/cancelled transitions of task_update).
func (s *Store) SetStatus(ctx context.Context, id types.TaskID, status types.TaskStatus) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE tasks SET status = ?, updated_at = ? WHERE id = ?`,
		string(status), time.Now().UnixMilli(), string(id))
	if err != nil {
		return fmt.Errorf("task: set status: %w", err)
	}
	if err := checkAffected(res); err != nil {
		return err
	}
	t, err := s.Get(ctx, id)
	if err == nil {
		event.Publish(event.Event{Type: event.TaskUpdated, Data: event.TaskUpdatedData{Task: *t}})
	}
	return nil
}

// Reassign updates a task's assignee (task_update).
func (s *Store) Reassign(ctx context.Context, id types.TaskID, assignee string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE tasks SET assignee = ?, updated_at = ? WHERE id = ?`,
		assignee, time.Now().UnixMilli(), string(id))
	if err != nil {
		return fmt.Errorf("task: reassign: %w", err)
	}
	if err := checkAffected(res); err != nil {
		return err
	}
	t, err := s.Get(ctx, id)
	if err == nil {
		event.Publish(event.Event{Type: event.TaskUpdated, Data: event.TaskUpdatedData{Task: *t}})
	}
	return nil
}

// AddNote appends an immutable note to a task (task_add_note).
func (s *Store) AddNote(ctx context.Context, taskID types.TaskID, author, body string) (*types.TaskNote, error) {
	now := time.Now().UnixMilli()
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO task_notes (task_id, author, body, created_at) VALUES (?, ?, ?, ?)`,
		string(taskID), author, body, now)
	if err != nil {
		return nil, fmt.Errorf("task: add note: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("task: note id: %w", err)
	}
	return &types.TaskNote{ID: id, TaskID: taskID, Author: author, Body: body, CreatedAt: now}, nil
}

// Notes returns every note on a task, in chronological order (task_view).
func (s *Store) Notes(ctx context.Context, taskID types.TaskID) ([]types.TaskNote, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, task_id, author, body, created_at FROM task_notes WHERE task_id = ? ORDER BY id`, string(taskID))
	if err != nil {
		return nil, fmt.Errorf("task: notes query: %w", err)
	}
	defer rows.Close()
	var out []types.TaskNote
	for rows.Next() {
		var n types.TaskNote
		var author sql.NullString
		if err := rows.Scan(&n.ID, &n.TaskID, &author, &n.Body, &n.CreatedAt); err != nil {
			return nil, err
		}
		n.Author = author.String
		out = append(out, n)
	}
	return out, rows.Err()
}

func checkAffected(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
