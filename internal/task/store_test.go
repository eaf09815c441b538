package task

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/runlace/core/internal/db"
	"github.com/runlace/core/internal/event"
	"github.com/runlace/core/pkg/types"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	sqlDB, err := db.Open(t.TempDir())
	if err != nil {
		t.Fatalf("db.Open: %v", err)
	}
	t.Cleanup(func() { sqlDB.Close() })
	return New(sqlDB)
}

func TestStore_AddAndGet(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	sessionID := types.SessionID("s1")

	tk, err := s.Add(ctx, sessionID, "write the docs", "self")
	if err != nil {
		t.Fatalf("Add: %v", err)
	}
	if tk.Status != types.TaskPending || tk.Assignee != "self" {
		t.Fatalf("unexpected task: %+v", tk)
	}

	got, err := s.Get(ctx, tk.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Title != "write the docs" || got.SessionID != sessionID {
		t.Errorf("mismatch: %+v", got)
	}
}

func TestStore_Get_NotFound(t *testing.T) {
	s := newTestStore(t)
	_, err := s.Get(context.Background(), types.TaskID("missing"))
	if err != ErrNotFound {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestStore_List_OrderedBySession(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	sessionID := types.SessionID("s1")

	first, err := s.Add(ctx, sessionID, "first", "")
	if err != nil {
		t.Fatalf("Add first: %v", err)
	}
	second, err := s.Add(ctx, sessionID, "second", "")
	if err != nil {
		t.Fatalf("Add second: %v", err)
	}
	if _, err := s.Add(ctx, types.SessionID("other"), "unrelated", ""); err != nil {
		t.Fatalf("Add unrelated: %v", err)
	}

	tasks, err := s.List(ctx, sessionID)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(tasks) != 2 {
		t.Fatalf("expected 2 tasks for session, got %d", len(tasks))
	}
	if tasks[0].ID != first.ID || tasks[1].ID != second.ID {
		t.Fatalf("expected creation order, got %+v", tasks)
	}
}

func TestStore_SetStatus(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	tk, err := s.Add(ctx, types.SessionID("s1"), "do it", "")
	if err != nil {
		t.Fatalf("Add: %v", err)
	}

	if err := s.SetStatus(ctx, tk.ID, types.TaskInProgress); err != nil {
		t.Fatalf("SetStatus: %v", err)
	}

	got, err := s.Get(ctx, tk.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Status != types.TaskInProgress {
		t.Fatalf("expected in_progress, got %s", got.Status)
	}
	if got.UpdatedAt < tk.UpdatedAt {
		t.Errorf("expected UpdatedAt to advance")
	}
}

func TestStore_SetStatus_NotFound(t *testing.T) {
	s := newTestStore(t)
	err := s.SetStatus(context.Background(), types.TaskID("missing"), types.TaskCompleted)
	if err != ErrNotFound {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestStore_Reassign(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	tk, err := s.Add(ctx, types.SessionID("s1"), "do it", "self")
	if err != nil {
		t.Fatalf("Add: %v", err)
	}

	if err := s.Reassign(ctx, tk.ID, "coordinator"); err != nil {
		t.Fatalf("Reassign: %v", err)
	}
	got, err := s.Get(ctx, tk.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Assignee != "coordinator" {
		t.Fatalf("expected assignee coordinator, got %s", got.Assignee)
	}
}

func TestStore_AddNote_AndNotes_ChronologicalOrder(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	tk, err := s.Add(ctx, types.SessionID("s1"), "do it", "")
	if err != nil {
		t.Fatalf("Add: %v", err)
	}

	first, err := s.AddNote(ctx, tk.ID, "agent-a", "started working")
	if err != nil {
		t.Fatalf("AddNote first: %v", err)
	}
	second, err := s.AddNote(ctx, tk.ID, "agent-a", "finished")
	if err != nil {
		t.Fatalf("AddNote second: %v", err)
	}
	if first.ID >= second.ID {
		t.Fatalf("expected increasing note ids, got %d then %d", first.ID, second.ID)
	}

	notes, err := s.Notes(ctx, tk.ID)
	if err != nil {
		t.Fatalf("Notes: %v", err)
	}
	if len(notes) != 2 || notes[0].Body != "started working" || notes[1].Body != "finished" {
		t.Fatalf("unexpected notes: %+v", notes)
	}
}

func TestStore_Add_PublishesTaskCreated(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	wg.Add(1)
	var got event.Event
	unsub := event.Subscribe(event.TaskCreated, func(e event.Event) {
		got = e
		wg.Done()
	})
	defer unsub()

	tk, err := s.Add(ctx, types.SessionID("s1"), "notify me", "")
	if err != nil {
		t.Fatalf("Add: %v", err)
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		data, ok := got.Data.(event.TaskUpdatedData)
		if !ok {
			t.Fatalf("unexpected data type %T", got.Data)
		}
		if data.Task.ID != tk.ID {
			t.Errorf("expected task %q, got %q", tk.ID, data.Task.ID)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for task.created publication")
	}
}

func TestStore_SetStatus_PublishesTaskUpdated(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	tk, err := s.Add(ctx, types.SessionID("s1"), "notify me", "")
	if err != nil {
		t.Fatalf("Add: %v", err)
	}

	var wg sync.WaitGroup
	wg.Add(1)
	var got event.Event
	unsub := event.Subscribe(event.TaskUpdated, func(e event.Event) {
		got = e
		wg.Done()
	})
	defer unsub()

	if err := s.SetStatus(ctx, tk.ID, types.TaskCompleted); err != nil {
		t.Fatalf("SetStatus: %v", err)
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		data, ok := got.Data.(event.TaskUpdatedData)
		if !ok {
			t.Fatalf("unexpected data type %T", got.Data)
		}
		if data.Task.Status != types.TaskCompleted {
			t.Errorf("expected status completed, got %s", data.Task.Status)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for task.updated publication")
	}
}
