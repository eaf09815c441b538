package types

import "encoding/json"

// Thread is a single append-only conversation line, owned by exactly one
// agent. A session is the root thread of a conversation tree; a delegate
// agent's thread is a child whose id extends its parent's (parent.N).
type Thread struct {
	ID        ThreadID       `json:"id"`
	ParentID  *ThreadID      `json:"parentID,omitempty"`
	ProjectID string         `json:"projectID,omitempty"`
	Metadata  ThreadMetadata `json:"metadata"`
	CreatedAt int64          `json:"createdAt"`
}

// ThreadMetadata carries the session-shaped fields a root thread needs;
// delegate threads leave most of it zero.
type ThreadMetadata struct {
	IsSession bool   `json:"isSession,omitempty"`
	Title     string `json:"title,omitempty"`
	AgentName string `json:"agentName,omitempty"`
}

// ThreadEventType enumerates the events an agent turn engine emits onto its
// own thread, per the external event surface.
type ThreadEventType string

const (
	EventTurnStart       ThreadEventType = "turn_start"
	EventTurnComplete    ThreadEventType = "turn_complete"
	EventTurnAborted     ThreadEventType = "turn_aborted"
	EventTextDelta       ThreadEventType = "text_delta"
	EventReasoningDelta  ThreadEventType = "reasoning_delta"
	EventToolCallStart   ThreadEventType = "tool_call_start"
	EventToolCallDelta   ThreadEventType = "tool_call_delta"
	EventToolCallComplete ThreadEventType = "tool_call_complete"
	EventApprovalRequest ThreadEventType = "approval_request"
	EventApprovalResolved ThreadEventType = "approval_resolved"
	EventErrorRaised     ThreadEventType = "error_raised"
	EventUserMessage     ThreadEventType = "user_message"
	EventCompacted       ThreadEventType = "compacted"
)

// ThreadEvent is one monotonically-numbered entry in a thread's event log.
type ThreadEvent struct {
	ThreadID  ThreadID        `json:"threadID"`
	ID        EventID         `json:"id"`
	Type      ThreadEventType `json:"type"`
	Data      json.RawMessage `json:"data"`
	Timestamp int64           `json:"timestamp"`
}

// ToolCallStartData is the payload of a tool_call_start event. The
// delegate lifecycle is synchronized exclusively off tool_call_start/
// tool_call_complete events whose ToolName is "delegate".
type ToolCallStartData struct {
	CallID   string         `json:"callID"`
	ToolName string         `json:"toolName"`
	Input    map[string]any `json:"input"`
}

// ToolCallCompleteData is the payload of a tool_call_complete event.
type ToolCallCompleteData struct {
	CallID  string `json:"callID"`
	Output  string `json:"output,omitempty"`
	Error   string `json:"error,omitempty"`
	Success bool   `json:"success"`
}

// TextDeltaData is the payload of a text_delta / reasoning_delta event.
type TextDeltaData struct {
	Delta string `json:"delta"`
}

// TurnCompleteData is the payload of a turn_complete event, carrying the
// cumulative token accounting for the turn.
type TurnCompleteData struct {
	FinishReason string     `json:"finishReason"`
	Tokens       TokenUsage `json:"tokens"`
	Cost         float64    `json:"cost,omitempty"`
}

// TokenUsage accounts for the tokens consumed by a turn.
type TokenUsage struct {
	Input  int        `json:"input"`
	Output int        `json:"output"`
	Cache  CacheUsage `json:"cache"`
}

// CacheUsage breaks down prompt-cache token accounting within a TokenUsage.
type CacheUsage struct {
	Read  int `json:"read"`
	Write int `json:"write"`
}

// CompactedData is the payload of a compacted event. ThroughEventID is the
// highest event id folded into Summary; buildRequest replays only events
// after it instead of the full history.
type CompactedData struct {
	Summary        string  `json:"summary"`
	ThroughEventID EventID `json:"throughEventID"`
	TokensBefore   int     `json:"tokensBefore"`
}
