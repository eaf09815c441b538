package types

import (
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
)

// ThreadID identifies a thread (a conversation line owned by one agent).
type ThreadID string

// EventID identifies a single thread event, unique within its thread.
type EventID int64

// TaskID identifies a task in the shared task store.
type TaskID string

// SessionID identifies a session (the root thread of a conversation tree).
type SessionID string

// ProviderInstanceID identifies a configured, credentialed provider instance.
type ProviderInstanceID string

// NewULID returns a new lexicographically sortable identifier, used for
// thread and session ids.
func NewULID() string {
	return ulid.Make().String()
}

// NewThreadID mints a root thread id.
func NewThreadID() ThreadID {
	return ThreadID(NewULID())
}

// ChildThreadID derives a delegate's thread id from its parent, following
// the dot-separated hierarchy grammar (parent.N).
func ChildThreadID(parent ThreadID, ordinal int) ThreadID {
	return ThreadID(string(parent) + "." + itoa(ordinal))
}

// ParentOf returns the parent thread id and true if id names a delegate
// thread; it returns ("", false) for a root thread.
func ParentOf(id ThreadID) (ThreadID, bool) {
	s := string(id)
	idx := strings.LastIndex(s, ".")
	if idx < 0 {
		return "", false
	}
	return ThreadID(s[:idx]), true
}

// NewTaskID mints a task id in the task_YYYYMMDD_xxxxxx format.
func NewTaskID(now time.Time) TaskID {
	suffix := strings.ToLower(ulid.Make().String())
	if len(suffix) > 6 {
		suffix = suffix[len(suffix)-6:]
	}
	return TaskID("task_" + now.Format("20060102") + "_" + suffix)
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	neg := n < 0
	if neg {
		n = -n
	}
	var buf [20]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	if neg {
		i--
		buf[i] = '-'
	}
	return string(buf[i:])
}
