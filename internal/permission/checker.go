package permission

import (
	"context"
	"sync"

	"github.com/oklog/ulid/v2"
	"github.com/runlace/core/internal/event"
)

// Checker handles permission checks and approvals. A session may have at
// most one outstanding approval request at a time: Ask blocks on the
// session's own lock, so a second tool call needing approval queues behind
// the first rather than racing it.
type Checker struct {
	mu         sync.RWMutex
	approved   map[string]map[PermissionType]bool // threadID -> type -> approved
	patterns   map[string]map[string]bool         // threadID -> pattern -> approved (for bash patterns)
	pending    map[string]chan Response           // requestID -> response channel
	sessionMus map[string]*sync.Mutex             // threadID -> in-flight-approval lock
}

// NewChecker creates a new permission checker.
func NewChecker() *Checker {
	return &Checker{
		approved:   make(map[string]map[PermissionType]bool),
		patterns:   make(map[string]map[string]bool),
		pending:    make(map[string]chan Response),
		sessionMus: make(map[string]*sync.Mutex),
	}
}

// sessionLock returns the single-in-flight-approval lock for a thread.
func (c *Checker) sessionLock(threadID string) *sync.Mutex {
	c.mu.Lock()
	defer c.mu.Unlock()
	m, ok := c.sessionMus[threadID]
	if !ok {
		m = &sync.Mutex{}
		c.sessionMus[threadID] = m
	}
	return m
}

// Check performs a permission check based on action configuration.
func (c *Checker) Check(ctx context.Context, req Request, action PermissionAction) error {
	switch action {
	case ActionAllow:
		return nil
	case ActionDeny:
		return &RejectedError{
			ThreadID: req.ThreadID,
			Type:     req.Type,
			CallID:   req.CallID,
			Metadata: req.Metadata,
			Message:  "Permission denied by configuration",
		}
	case ActionAsk:
		return c.Ask(ctx, req)
	}
	return nil
}

// Ask prompts the user for permission. Only one Ask per thread is ever
// in flight: a second call for the same thread blocks until the first
// resolves, so the agent turn driving it sees requests serialized.
func (c *Checker) Ask(ctx context.Context, req Request) error {
	lock := c.sessionLock(req.ThreadID)
	lock.Lock()
	defer lock.Unlock()

	// Check if already approved for this thread and type
	c.mu.RLock()
	if threadApprovals, ok := c.approved[req.ThreadID]; ok {
		if threadApprovals[req.Type] {
			c.mu.RUnlock()
			return nil
		}
	}

	// Check if any pattern is approved
	if len(req.Pattern) > 0 {
		if threadPatterns, ok := c.patterns[req.ThreadID]; ok {
			allApproved := true
			for _, p := range req.Pattern {
				if !threadPatterns[p] {
					allApproved = false
					break
				}
			}
			if allApproved {
				c.mu.RUnlock()
				return nil
			}
		}
	}
	c.mu.RUnlock()

	// Generate request ID if not set
	if req.ID == "" {
		req.ID = ulid.Make().String()
	}

	// Create response channel
	respChan := make(chan Response, 1)
	c.mu.Lock()
	c.pending[req.ID] = respChan
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		delete(c.pending, req.ID)
		c.mu.Unlock()
	}()

	// Publish permission request event
	event.Publish(event.Event{
		Type: event.PermissionRequired,
		Data: event.PermissionUpdatedData{
			ID:             req.ID,
			ThreadID:       req.ThreadID,
			PermissionType: string(req.Type),
			Pattern:        req.Pattern,
			Title:          req.Title,
		},
	})

	// Wait for response
	select {
	case <-ctx.Done():
		return ctx.Err()
	case resp := <-respChan:
		switch resp.Decision {
		case DecisionAllowOnce:
			return nil
		case DecisionAllowSession:
			c.approve(req.ThreadID, req.Type, req.Pattern)
			return nil
		case DecisionDeny:
			return &RejectedError{
				ThreadID: req.ThreadID,
				Type:     req.Type,
				CallID:   req.CallID,
				Metadata: req.Metadata,
				Message:  "Permission rejected by user",
			}
		}
	}
	return nil
}

// Respond handles a user's response to a permission request.
func (c *Checker) Respond(requestID string, decision Decision) {
	c.mu.RLock()
	ch, ok := c.pending[requestID]
	c.mu.RUnlock()

	if ok {
		ch <- Response{
			RequestID: requestID,
			Decision:  decision,
		}
	}

	// Publish resolved event
	event.Publish(event.Event{
		Type: event.PermissionReplied,
		Data: event.PermissionRepliedData{
			PermissionID: requestID,
			Response:     string(decision),
		},
	})
}

// approve marks a permission type and patterns as approved for a thread.
func (c *Checker) approve(threadID string, permType PermissionType, patterns []string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	// Approve the permission type
	if c.approved[threadID] == nil {
		c.approved[threadID] = make(map[PermissionType]bool)
	}
	c.approved[threadID][permType] = true

	// Approve individual patterns
	if len(patterns) > 0 {
		if c.patterns[threadID] == nil {
			c.patterns[threadID] = make(map[string]bool)
		}
		for _, p := range patterns {
			c.patterns[threadID][p] = true
		}
	}
}

// IsApproved checks if a permission type is already approved.
func (c *Checker) IsApproved(threadID string, permType PermissionType) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if threadApprovals, ok := c.approved[threadID]; ok {
		return threadApprovals[permType]
	}
	return false
}

// IsPatternApproved checks if a specific pattern is approved.
func (c *Checker) IsPatternApproved(threadID string, pattern string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if threadPatterns, ok := c.patterns[threadID]; ok {
		return threadPatterns[pattern]
	}
	return false
}

// ClearThread clears all approvals for a thread.
func (c *Checker) ClearThread(threadID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.approved, threadID)
	delete(c.patterns, threadID)
}

// ApprovePattern explicitly approves a pattern for a thread.
func (c *Checker) ApprovePattern(threadID string, pattern string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.patterns[threadID] == nil {
		c.patterns[threadID] = make(map[string]bool)
	}
	c.patterns[threadID][pattern] = true
}
