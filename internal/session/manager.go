package session

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/runlace/core/internal/agent"
	"github.com/runlace/core/internal/permission"
	"github.com/runlace/core/internal/provider"
	"github.com/runlace/core/internal/task"
	"github.com/runlace/core/internal/thread"
	"github.com/runlace/core/internal/tool"
	"github.com/runlace/core/internal/turn"
	"github.com/runlace/core/pkg/types"
)

// Root is a session: the root thread of a conversation tree, owned by a
// primary agent. Delegate agents spawned under it get child threads
// (parent.N) but no Root of their own.
type Root struct {
	ID         types.SessionID
	ThreadID   types.ThreadID
	ProjectID  string
	Title      string
	AgentName  string
	CreatedAt  int64
}

// Manager is the runtime scheduler: it owns the in-memory map of live
// turn.Agents (one per thread with a turn in flight or idle) and the
// session registry, generalizing the teacher's Processor.sessions map to
// the full coordinator/delegate hierarchy.
type Manager struct {
	mu       sync.Mutex
	sessions map[types.SessionID]*Root
	agents   map[types.ThreadID]*turn.Agent

	threads   *thread.Store
	tasks     *task.Store
	providers *provider.Registry
	tools     *tool.Registry
	perms     *permission.Checker
	personas  *agent.Registry
	workDir   string
}

// NewManager builds a Manager wired to the shared stores and registries a
// server or CLI command constructs once at startup.
func NewManager(threads *thread.Store, tasks *task.Store, providers *provider.Registry, tools *tool.Registry, perms *permission.Checker, personas *agent.Registry, workDir string) *Manager {
	return &Manager{
		sessions:  make(map[types.SessionID]*Root),
		agents:    make(map[types.ThreadID]*turn.Agent),
		threads:   threads,
		tasks:     tasks,
		providers: providers,
		tools:     tools,
		perms:     perms,
		personas:  personas,
		workDir:   workDir,
	}
}

// CreateSession starts a new session rooted at a fresh thread, owned by the
// named primary persona (falling back to the registry's default agent).
func (m *Manager) CreateSession(ctx context.Context, projectID, title, personaName string) (*Root, error) {
	persona, err := m.persona(personaName)
	if err != nil {
		return nil, err
	}

	threadID := types.NewThreadID()
	th, err := m.threads.CreateThread(ctx, threadID, nil, projectID, types.ThreadMetadata{
		IsSession: true, Title: title, AgentName: persona.Name,
	})
	if err != nil {
		return nil, types.NewError(types.ErrStorage, "create session thread", err)
	}

	root := &Root{
		ID:        types.SessionID(types.NewULID()),
		ThreadID:  threadID,
		ProjectID: projectID,
		Title:     title,
		AgentName: persona.Name,
		CreatedAt: th.CreatedAt,
	}

	m.mu.Lock()
	m.sessions[root.ID] = root
	m.mu.Unlock()

	if _, err := m.spawnAgent(threadID, string(root.ID), persona); err != nil {
		return nil, err
	}
	return root, nil
}

// Session looks up a session by id.
func (m *Manager) Session(id types.SessionID) (*Root, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.sessions[id]
	return r, ok
}

// SendMessage drives the session's root agent through one turn with the
// given user input.
func (m *Manager) SendMessage(ctx context.Context, sessionID types.SessionID, text string) error {
	root, ok := m.Session(sessionID)
	if !ok {
		return types.NewError(types.ErrValidation, fmt.Sprintf("session %s not found", sessionID), nil)
	}
	a, ok := m.agent(root.ThreadID)
	if !ok {
		return types.NewError(types.ErrValidation, fmt.Sprintf("no agent for thread %s", root.ThreadID), nil)
	}
	return a.Run(ctx, text)
}

// Delegate implements tool.DelegateExecutor: it resolves the assignee to a
// persona, spawns (or reuses) the matching child thread under
// parentThreadID, drives one turn with prompt, and returns the agent's
// final assistant text.
func (m *Manager) Delegate(ctx context.Context, parentThreadID, assignee, prompt string) (string, error) {
	parent := types.ThreadID(parentThreadID)
	if assignee == "" || assignee == "self" {
		a, ok := m.agent(parent)
		if !ok {
			return "", types.NewError(types.ErrValidation, "no agent for self-delegation", nil)
		}
		if err := a.Run(ctx, prompt); err != nil {
			return "", err
		}
		return m.lastAssistantText(ctx, parent)
	}
	if assignee == "coordinator" {
		coordinatorID, hasParent := types.ParentOf(parent)
		if !hasParent {
			return "", types.NewError(types.ErrValidation, "thread has no coordinator to hand back to", nil)
		}
		a, ok := m.agent(coordinatorID)
		if !ok {
			return "", types.NewError(types.ErrValidation, "coordinator agent not running", nil)
		}
		if err := a.Run(ctx, prompt); err != nil {
			return "", err
		}
		return m.lastAssistantText(ctx, coordinatorID)
	}

	// Otherwise assignee names a persona; spawn (or resume) the delegate
	// thread matching that persona under parent.
	persona, err := m.persona(assignee)
	if err != nil {
		return "", err
	}

	childID, err := m.childThreadFor(ctx, parent, persona.Name)
	if err != nil {
		return "", err
	}

	a, ok := m.agent(childID)
	if !ok {
		a, err = m.spawnAgent(childID, "", persona)
		if err != nil {
			return "", err
		}
	}
	if err := a.Run(ctx, prompt); err != nil {
		return "", err
	}
	return m.lastAssistantText(ctx, childID)
}

// childThreadFor finds an existing delegate thread of parent whose agent
// name matches personaName, or creates a new one with the next ordinal.
func (m *Manager) childThreadFor(ctx context.Context, parent types.ThreadID, personaName string) (types.ThreadID, error) {
	children, err := m.threads.Children(ctx, parent)
	if err != nil {
		return "", types.NewError(types.ErrStorage, "list child threads", err)
	}
	for _, childID := range children {
		th, err := m.threads.GetThread(ctx, childID)
		if err == nil && th.Metadata.AgentName == personaName {
			return childID, nil
		}
	}

	childID := types.ChildThreadID(parent, len(children)+1)
	if _, err := m.threads.CreateThread(ctx, childID, &parent, "", types.ThreadMetadata{AgentName: personaName}); err != nil {
		return "", types.NewError(types.ErrStorage, "create delegate thread", err)
	}
	return childID, nil
}

// lastAssistantText concatenates the text_delta events emitted since the
// most recent turn_start on threadID, giving the caller the assistant's
// final reply for that turn.
func (m *Manager) lastAssistantText(ctx context.Context, threadID types.ThreadID) (string, error) {
	events, err := m.threads.Events(ctx, threadID, 0)
	if err != nil {
		return "", types.NewError(types.ErrStorage, "load thread events", err)
	}
	var sinceLastStart int
	for i, ev := range events {
		if ev.Type == types.EventTurnStart {
			sinceLastStart = i
		}
	}
	var out strings.Builder
	for _, ev := range events[sinceLastStart:] {
		if ev.Type != types.EventTextDelta {
			continue
		}
		var d types.TextDeltaData
		if err := json.Unmarshal(ev.Data, &d); err == nil {
			out.WriteString(d.Delta)
		}
	}
	return out.String(), nil
}

// spawnAgent builds and registers a turn.Agent for threadID driven by
// persona, wiring a private tool registry so its bound delegate tool
// targets this thread as the parent.
func (m *Manager) spawnAgent(threadID types.ThreadID, sessionID string, persona *agent.Agent) (*turn.Agent, error) {
	model, err := m.providers.DefaultModel()
	if err != nil {
		return nil, types.NewError(types.ErrConfigurationMissing, "resolve default model", err)
	}
	if persona.Model != nil {
		if resolved, err := m.providers.GetModel(persona.Model.ProviderID, persona.Model.ModelID); err == nil {
			model = resolved
		}
	}
	p, err := m.providers.Get(model.ProviderID)
	if err != nil {
		return nil, types.NewError(types.ErrConfigurationMissing, fmt.Sprintf("resolve provider %s", model.ProviderID), err)
	}

	a := &turn.Agent{
		ThreadID:    threadID,
		SessionID:   sessionID,
		Name:        persona.Name,
		Prompt:      persona.Prompt,
		Temperature: persona.Temperature,
		TopP:        persona.TopP,
		ToolEnabled: persona.ToolEnabled,
		Threads:     m.threads,
		Provider:    p,
		Model:       model,
		Tools:       m.toolsFor(threadID),
		Permission:  m.perms,
	}

	m.mu.Lock()
	m.agents[threadID] = a
	m.mu.Unlock()
	return a, nil
}

// toolsFor clones the base tool registry and binds a delegate tool scoped
// to threadID as the parent, so each agent's delegate calls carry the
// right coordinator/delegate lineage.
func (m *Manager) toolsFor(threadID types.ThreadID) *tool.Registry {
	clone := tool.NewRegistry(m.workDir, m.tools.Storage())
	for _, t := range m.tools.List() {
		clone.Register(t)
	}
	clone.RegisterDelegateTool(string(threadID), m)
	return clone
}

func (m *Manager) agent(threadID types.ThreadID) (*turn.Agent, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.agents[threadID]
	return a, ok
}

func (m *Manager) persona(name string) (*agent.Agent, error) {
	if name == "" {
		if all := m.personas.ListPrimary(); len(all) > 0 {
			return all[0], nil
		}
		return nil, types.NewError(types.ErrValidation, "no primary agent configured", nil)
	}
	p, err := m.personas.Get(name)
	if err != nil {
		return nil, types.NewError(types.ErrValidation, fmt.Sprintf("agent %q not found", name), err)
	}
	return p, nil
}
