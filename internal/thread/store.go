// Package thread implements the Thread Event Store: a durable, append-only
// log of events per agent thread, backed by SQLite.
package thread

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/runlace/core/internal/event"
	"github.com/runlace/core/pkg/types"
)

// ErrNotFound is returned when a thread id has no matching row.
var ErrNotFound = errors.New("thread: not found")

// Store is the durable event log for threads, backed by a single shared
// SQLite connection (see internal/db).
type Store struct {
	db *sql.DB
}

// New wraps an already-open database handle.
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// CreateThread inserts a new thread row. parentID is nil for a root thread
// (a session).
func (s *Store) CreateThread(ctx context.Context, id types.ThreadID, parentID *types.ThreadID, projectID string, meta types.ThreadMetadata) (*types.Thread, error) {
	data, err := json.Marshal(meta)
	if err != nil {
		return nil, fmt.Errorf("thread: marshal metadata: %w", err)
	}
	th := &types.Thread{
		ID:        id,
		ParentID:  parentID,
		ProjectID: projectID,
		Metadata:  meta,
		CreatedAt: time.Now().UnixMilli(),
	}
	var parent any
	if parentID != nil {
		parent = string(*parentID)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO threads (id, parent_id, project_id, metadata, created_at) VALUES (?, ?, ?, ?, ?)`,
		string(id), parent, projectID, string(data), th.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("thread: insert: %w", err)
	}
	return th, nil
}

// GetThread loads a thread by id.
func (s *Store) GetThread(ctx context.Context, id types.ThreadID) (*types.Thread, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, parent_id, project_id, metadata, created_at FROM threads WHERE id = ?`, string(id))
	var th types.Thread
	var parent sql.NullString
	var metaRaw string
	if err := row.Scan(&th.ID, &parent, &th.ProjectID, &metaRaw, &th.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("thread: scan: %w", err)
	}
	if parent.Valid {
		p := types.ThreadID(parent.String)
		th.ParentID = &p
	}
	if err := json.Unmarshal([]byte(metaRaw), &th.Metadata); err != nil {
		return nil, fmt.Errorf("thread: unmarshal metadata: %w", err)
	}
	return &th, nil
}

// Children lists the direct delegate threads spawned under parentID.
func (s *Store) Children(ctx context.Context, parentID types.ThreadID) ([]types.ThreadID, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id FROM threads WHERE parent_id = ? ORDER BY created_at`, string(parentID))
	if err != nil {
		return nil, fmt.Errorf("thread: children query: %w", err)
	}
	defer rows.Close()
	var out []types.ThreadID
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, types.ThreadID(id))
	}
	return out, rows.Err()
}

// Append inserts the next monotonic event for threadID inside a
// transaction, so concurrent appenders never collide on the sequence
// number. SQLITE_BUSY is retried with a short bounded backoff.
func (s *Store) Append(ctx context.Context, threadID types.ThreadID, evType types.ThreadEventType, data any) (*types.ThreadEvent, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("thread: marshal event data: %w", err)
	}

	var ev *types.ThreadEvent
	op := func() error {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return backoffIfBusy(err)
		}
		defer tx.Rollback()

		var maxID sql.NullInt64
		if err := tx.QueryRowContext(ctx,
			`SELECT MAX(id) FROM thread_events WHERE thread_id = ?`, string(threadID)).Scan(&maxID); err != nil {
			return backoffIfBusy(err)
		}
		nextID := types.EventID(1)
		if maxID.Valid {
			nextID = types.EventID(maxID.Int64 + 1)
		}
		ts := time.Now().UnixMilli()
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO thread_events (thread_id, id, type, data, timestamp) VALUES (?, ?, ?, ?, ?)`,
			string(threadID), int64(nextID), string(evType), string(raw), ts); err != nil {
			return backoffIfBusy(err)
		}
		if err := tx.Commit(); err != nil {
			return backoffIfBusy(err)
		}
		ev = &types.ThreadEvent{ThreadID: threadID, ID: nextID, Type: evType, Data: raw, Timestamp: ts}
		return nil
	}

	policy := backoff.WithMaxRetries(backoff.NewExponentialBackOff(
		backoff.WithInitialInterval(100*time.Millisecond),
		backoff.WithMaxInterval(1*time.Second),
	), 3)
	if err := backoff.Retry(op, backoff.WithContext(policy, ctx)); err != nil {
		return nil, fmt.Errorf("thread: append: %w", err)
	}
	event.Publish(event.Event{
		Type: event.ThreadEventAppended,
		Data: event.ThreadEventAppendedData{ThreadID: threadID, Event: *ev, Type: evType},
	})
	return ev, nil
}

// Events returns the events for threadID with id > afterID, in order.
func (s *Store) Events(ctx context.Context, threadID types.ThreadID, afterID types.EventID) ([]types.ThreadEvent, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT thread_id, id, type, data, timestamp FROM thread_events WHERE thread_id = ? AND id > ? ORDER BY id`,
		string(threadID), int64(afterID))
	if err != nil {
		return nil, fmt.Errorf("thread: events query: %w", err)
	}
	defer rows.Close()
	var out []types.ThreadEvent
	for rows.Next() {
		var ev types.ThreadEvent
		var tid string
		var raw string
		if err := rows.Scan(&tid, &ev.ID, &ev.Type, &raw, &ev.Timestamp); err != nil {
			return nil, err
		}
		ev.ThreadID = types.ThreadID(tid)
		ev.Data = json.RawMessage(raw)
		out = append(out, ev)
	}
	return out, rows.Err()
}

func backoffIfBusy(err error) error {
	if err == nil {
		return nil
	}
	if strings.Contains(err.Error(), "SQLITE_BUSY") || strings.Contains(err.Error(), "database is locked") {
		return err
	}
	return backoff.Permanent(err)
}
