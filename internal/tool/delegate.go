package tool

import (
	"context"
	"encoding/json"
	"fmt"

	einotool "github.com/cloudwego/eino/components/tool"
)

const delegateDescription = `Delegate a task to a named sub-agent and wait for its result.

Delegation lifecycle is tracked purely through this tool's own call/result
boundary: starting a delegate call marks the assignee active, and the
matching result marks it idle again. Use "assignee" to target either a
specific existing thread id or "coordinator" to hand work back up.`

// DelegateExecutor spawns (or resumes) a delegate agent thread and runs it
// to completion, returning its final textual output.
type DelegateExecutor interface {
	Delegate(ctx context.Context, parentThreadID, assignee, prompt string) (output string, err error)
}

// DelegateInput is the argument shape for the delegate tool call.
type DelegateInput struct {
	Assignee string `json:"assignee"`
	Prompt   string `json:"prompt"`
}

// DelegateTool is the single tool whose tool_call_start/tool_call_complete
// pair the scheduler watches to synchronize the delegation lifecycle; it
// intentionally has no other side channel for that signal.
type DelegateTool struct {
	parentThreadID string
	executor       DelegateExecutor
}

// NewDelegateTool builds a delegate tool bound to the thread it is called
// from; executor may be nil, in which case calls return a placeholder
// result.
func NewDelegateTool(parentThreadID string, executor DelegateExecutor) *DelegateTool {
	return &DelegateTool{parentThreadID: parentThreadID, executor: executor}
}

func (t *DelegateTool) ID() string          { return "delegate" }
func (t *DelegateTool) Description() string { return delegateDescription }

func (t *DelegateTool) Parameters() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"assignee": {
				"type": "string",
				"description": "\"coordinator\", \"self\", or the thread id of the agent to delegate to"
			},
			"prompt": {
				"type": "string",
				"description": "The instructions to hand to the assignee"
			}
		},
		"required": ["assignee", "prompt"]
	}`)
}

func (t *DelegateTool) Execute(ctx context.Context, input json.RawMessage, toolCtx *Context) (*Result, error) {
	var params DelegateInput
	if err := json.Unmarshal(input, &params); err != nil {
		return nil, fmt.Errorf("invalid input: %w", err)
	}
	if params.Assignee == "" {
		return nil, fmt.Errorf("assignee is required")
	}
	if params.Prompt == "" {
		return nil, fmt.Errorf("prompt is required")
	}

	toolCtx.SetMetadata(fmt.Sprintf("delegate: %s", params.Assignee), map[string]any{
		"assignee": params.Assignee,
		"status":   "starting",
	})

	if t.executor == nil {
		return &Result{
			Title:  fmt.Sprintf("Delegate: %s", params.Assignee),
			Output: fmt.Sprintf("[delegation not configured]\n\nassignee: %s\nprompt: %s", params.Assignee, params.Prompt),
		}, nil
	}

	output, err := t.executor.Delegate(ctx, t.parentThreadID, params.Assignee, params.Prompt)
	if err != nil {
		return &Result{
			Title:  fmt.Sprintf("Delegate failed: %s", params.Assignee),
			Output: fmt.Sprintf("Error: %s", err.Error()),
		}, nil
	}
	return &Result{
		Title:  fmt.Sprintf("Delegate complete: %s", params.Assignee),
		Output: output,
	}, nil
}

func (t *DelegateTool) EinoTool() einotool.InvokableTool {
	return &einoToolWrapper{tool: t}
}
