// Package turn implements the Agent Turn Engine: the per-thread state
// machine that drives one agent through a single turn — resolving a
// provider, streaming a completion, executing any requested tools, and
// looping until the model stops asking for tools or a limit is hit.
package turn

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/cloudwego/eino/schema"

	"github.com/runlace/core/internal/logging"
	"github.com/runlace/core/internal/permission"
	"github.com/runlace/core/internal/provider"
	"github.com/runlace/core/internal/thread"
	"github.com/runlace/core/internal/tool"
	"github.com/runlace/core/pkg/types"
)

// State is the turn engine's externally-visible lifecycle state.
type State string

const (
	StateIdle      State = "idle"
	StateThinking  State = "thinking"
	StateStreaming State = "streaming"
	StateToolExec  State = "tool_execution"
)

const (
	// MaxSteps bounds the number of model-call/tool-call round trips a
	// single turn may take before it is forced to stop.
	MaxSteps = 50
	// MaxContextTokens triggers compaction of the thread's event history.
	MaxContextTokens = 150000
)

// ToolResolver looks up the tools enabled for the agent driving a turn.
type ToolResolver interface {
	List() []tool.Tool
}

// Agent drives a single thread's turns. One Agent exists per thread
// (coordinator or delegate); it serializes its own turns by construction —
// callers must not invoke Run concurrently for the same Agent.
type Agent struct {
	ThreadID    types.ThreadID
	SessionID   string
	Name        string
	Prompt      string
	Temperature float64
	TopP        float64
	MaxSteps    int
	ToolEnabled func(id string) bool

	Threads    *thread.Store
	Provider   provider.Provider
	Model      *types.Model
	Tools      ToolResolver
	Permission *permission.Checker

	mu      sync.Mutex
	state   State
	pending []pendingToolCall
}

// State reports the engine's current lifecycle state.
func (a *Agent) State() State {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state
}

func (a *Agent) setState(s State) {
	a.mu.Lock()
	a.state = s
	a.mu.Unlock()
}

// Run drives the turn to completion: it emits turn_start, streams
// completions and executes tool calls until the model finishes or aborts,
// and always emits a matching turn_complete or turn_aborted.
func (a *Agent) Run(ctx context.Context, userInput string) error {
	a.setState(StateThinking)
	defer a.setState(StateIdle)

	log := logging.With().Str("thread", string(a.ThreadID)).Logger()

	if _, err := a.Threads.Append(ctx, a.ThreadID, types.EventTurnStart, map[string]any{"input": userInput}); err != nil {
		return types.NewError(types.ErrStorage, "append turn_start", err)
	}
	if userInput != "" {
		if _, err := a.Threads.Append(ctx, a.ThreadID, types.EventUserMessage, map[string]string{"text": userInput}); err != nil {
			return types.NewError(types.ErrStorage, "append user_message", err)
		}
	}

	maxSteps := a.MaxSteps
	if maxSteps <= 0 {
		maxSteps = MaxSteps
	}

	var cumulative types.TokenUsage
	step := 0
	for {
		select {
		case <-ctx.Done():
			a.Threads.Append(ctx, a.ThreadID, types.EventTurnAborted, map[string]string{"reason": "cancelled"})
			return types.NewError(types.ErrCancellation, "turn aborted", ctx.Err())
		default:
		}

		if step >= maxSteps {
			a.Threads.Append(ctx, a.ThreadID, types.EventTurnAborted, map[string]string{"reason": "max_steps"})
			return types.NewError(types.ErrToolExecution, "max steps exceeded", nil)
		}

		if cumulative.Input+cumulative.Output > MaxContextTokens {
			if err := a.maybeCompact(ctx, cumulative.Input+cumulative.Output); err != nil {
				log.Warn().Err(err).Msg("compaction failed, continuing with full history")
			} else {
				log.Info().Msg("compacted thread history")
			}
		}

		req, err := a.buildRequest(ctx)
		if err != nil {
			a.Threads.Append(ctx, a.ThreadID, types.EventTurnAborted, map[string]string{"reason": "storage_error"})
			return err
		}

		a.setState(StateStreaming)
		var stream *provider.CompletionStream
		canRetry := func() bool { return stream == nil }
		err = provider.WithRetry(ctx, canRetry, func() error {
			s, callErr := a.Provider.CreateCompletion(ctx, req)
			if callErr != nil {
				return callErr
			}
			stream = s
			return nil
		})
		if err != nil {
			a.Threads.Append(ctx, a.ThreadID, types.EventErrorRaised, map[string]string{"message": err.Error()})
			a.Threads.Append(ctx, a.ThreadID, types.EventTurnAborted, map[string]string{"reason": "provider_error"})
			return types.NewError(types.ErrTransient, "provider call failed", err)
		}

		finishReason, tokens, err := a.consumeStream(ctx, stream)
		stream.Close()
		if err != nil {
			a.Threads.Append(ctx, a.ThreadID, types.EventErrorRaised, map[string]string{"message": err.Error()})
			a.Threads.Append(ctx, a.ThreadID, types.EventTurnAborted, map[string]string{"reason": "stream_error"})
			return types.NewError(types.ErrTransient, "stream failed", err)
		}
		cumulative.Input += tokens.Input
		cumulative.Output += tokens.Output

		switch finishReason {
		case "stop", "end_turn", "":
			a.Threads.Append(ctx, a.ThreadID, types.EventTurnComplete, types.TurnCompleteData{
				FinishReason: "stop", Tokens: cumulative,
			})
			return nil
		case "tool_use", "tool_calls", "tool-calls":
			a.setState(StateToolExec)
			if err := a.executeQueuedToolCalls(ctx); err != nil {
				log.Warn().Err(err).Msg("tool execution error, continuing turn")
			}
			step++
			continue
		case "max_tokens", "length":
			a.Threads.Append(ctx, a.ThreadID, types.EventTurnComplete, types.TurnCompleteData{
				FinishReason: "max_tokens", Tokens: cumulative,
			})
			return nil
		default:
			a.Threads.Append(ctx, a.ThreadID, types.EventTurnComplete, types.TurnCompleteData{
				FinishReason: finishReason, Tokens: cumulative,
			})
			return nil
		}
	}
}

// buildRequest assembles a provider completion request from the thread's
// event history plus the agent's system prompt.
func (a *Agent) buildRequest(ctx context.Context) (*provider.CompletionRequest, error) {
	events, err := a.Threads.Events(ctx, a.ThreadID, 0)
	if err != nil {
		return nil, types.NewError(types.ErrStorage, "load thread events", err)
	}

	messages := []*schema.Message{{Role: schema.System, Content: a.Prompt}}
	if summary, through, ok := latestCompaction(events); ok {
		messages = append(messages, &schema.Message{Role: schema.System, Content: "Summary of earlier conversation:\n" + summary})
		events = eventsAfter(events, through)
	}
	for _, ev := range events {
		switch ev.Type {
		case types.EventUserMessage:
			var d struct{ Text string }
			json.Unmarshal(ev.Data, &d)
			messages = append(messages, &schema.Message{Role: schema.User, Content: d.Text})
		case types.EventTextDelta:
			var d types.TextDeltaData
			json.Unmarshal(ev.Data, &d)
			messages = appendAssistantText(messages, d.Delta)
		case types.EventToolCallComplete:
			var d types.ToolCallCompleteData
			json.Unmarshal(ev.Data, &d)
			content := d.Output
			if d.Error != "" {
				content = "Error: " + d.Error
			}
			messages = append(messages, &schema.Message{Role: schema.Tool, Content: content, ToolCallID: d.CallID})
		}
	}

	var tools []*schema.ToolInfo
	if a.Model.SupportsTools && a.Tools != nil {
		for _, t := range a.Tools.List() {
			if a.ToolEnabled != nil && !a.ToolEnabled(t.ID()) {
				continue
			}
			tools = append(tools, &schema.ToolInfo{Name: t.ID(), Desc: t.Description()})
		}
	}

	maxTokens := a.Model.MaxOutputTokens
	if maxTokens <= 0 {
		maxTokens = 8192
	}

	return &provider.CompletionRequest{
		Model:       a.Model.ID,
		Messages:    messages,
		Tools:       tools,
		MaxTokens:   maxTokens,
		Temperature: a.Temperature,
		TopP:        a.TopP,
	}, nil
}

// appendAssistantText folds a text_delta onto the trailing assistant
// message, starting a new one if the last message isn't an in-progress
// assistant turn.
func appendAssistantText(messages []*schema.Message, delta string) []*schema.Message {
	if len(messages) > 0 && messages[len(messages)-1].Role == schema.Assistant {
		messages[len(messages)-1].Content += delta
		return messages
	}
	return append(messages, &schema.Message{Role: schema.Assistant, Content: delta})
}

// pendingToolCall accumulates one tool call's streamed arguments.
type pendingToolCall struct {
	callID string
	name   string
	args   strings.Builder
}

// consumeStream drains a provider stream, emitting text_delta/
// reasoning_delta/tool_call_start/tool_call_delta events as chunks arrive,
// and returns the finish reason plus the token usage reported for the turn.
func (a *Agent) consumeStream(ctx context.Context, stream *provider.CompletionStream) (string, types.TokenUsage, error) {
	var finishReason string
	var tokens types.TokenUsage
	var pending []pendingToolCall
	seen := map[string]int{}

	for {
		select {
		case <-ctx.Done():
			return "", tokens, ctx.Err()
		default:
		}

		msg, err := stream.Recv()
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", tokens, err
		}

		if msg.Content != "" {
			a.Threads.Append(ctx, a.ThreadID, types.EventTextDelta, types.TextDeltaData{Delta: msg.Content})
		}
		if msg.ReasoningContent != "" {
			a.Threads.Append(ctx, a.ThreadID, types.EventReasoningDelta, types.TextDeltaData{Delta: msg.ReasoningContent})
		}

		for _, tc := range msg.ToolCalls {
			idx, ok := seen[tc.ID]
			if !ok && tc.ID != "" {
				idx = len(pending)
				pending = append(pending, pendingToolCall{callID: tc.ID, name: tc.Function.Name})
				seen[tc.ID] = idx
				a.Threads.Append(ctx, a.ThreadID, types.EventToolCallStart, types.ToolCallStartData{
					CallID: tc.ID, ToolName: tc.Function.Name,
				})
			}
			if tc.Function.Arguments != "" && idx < len(pending) {
				pending[idx].args.WriteString(tc.Function.Arguments)
				a.Threads.Append(ctx, a.ThreadID, types.EventToolCallDelta, map[string]string{
					"callID": pending[idx].callID, "delta": tc.Function.Arguments,
				})
			}
		}

		if msg.ResponseMeta != nil {
			if msg.ResponseMeta.Usage != nil {
				tokens.Input = msg.ResponseMeta.Usage.PromptTokens
				tokens.Output = msg.ResponseMeta.Usage.CompletionTokens
			}
			if msg.ResponseMeta.FinishReason != "" {
				finishReason = msg.ResponseMeta.FinishReason
			}
		}
	}

	if finishReason == "" && len(pending) > 0 {
		finishReason = "tool_calls"
	}
	a.mu.Lock()
	a.pending = pending
	a.mu.Unlock()
	return finishReason, tokens, nil
}

// executeQueuedToolCalls looks up every tool call accumulated by the last
// consumeStream pass in the tool registry, executes it, then appends each
// result as tool_call_complete. It does not consult a.Permission: no call is
// held for approval here, and a permission rejection returned by the tool
// itself is recorded as a failed call. Run never calls this concurrently
// with itself for the same Agent, so no lock is needed here.
func (a *Agent) executeQueuedToolCalls(ctx context.Context) error {
	calls := a.pending
	a.pending = nil

	var firstErr error
	for _, pc := range calls {
		var t tool.Tool
		for _, candidate := range a.Tools.List() {
			if candidate.ID() == pc.name {
				t = candidate
				break
			}
		}
		if t == nil {
			a.Threads.Append(ctx, a.ThreadID, types.EventToolCallComplete, types.ToolCallCompleteData{
				CallID: pc.callID, Error: fmt.Sprintf("unknown tool %q", pc.name), Success: false,
			})
			continue
		}

		toolCtx := &tool.Context{SessionID: a.SessionID, CallID: pc.callID, Agent: a.Name}
		result, err := t.Execute(ctx, json.RawMessage(pc.args.String()), toolCtx)
		if err != nil {
			if permission.IsRejectedError(err) {
				a.Threads.Append(ctx, a.ThreadID, types.EventToolCallComplete, types.ToolCallCompleteData{
					CallID: pc.callID, Error: err.Error(), Success: false,
				})
				continue
			}
			firstErr = err
			a.Threads.Append(ctx, a.ThreadID, types.EventToolCallComplete, types.ToolCallCompleteData{
				CallID: pc.callID, Error: err.Error(), Success: false,
			})
			continue
		}
		a.Threads.Append(ctx, a.ThreadID, types.EventToolCallComplete, types.ToolCallCompleteData{
			CallID: pc.callID, Output: result.Output, Success: true,
		})
	}
	return firstErr
}
