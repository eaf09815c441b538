package turn

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/cloudwego/eino/schema"

	"github.com/runlace/core/internal/provider"
	"github.com/runlace/core/pkg/types"
)

// CompactionMinEventsToKeep is the minimum number of trailing thread events
// left untouched by compaction, so the most recent exchange always survives
// verbatim.
const CompactionMinEventsToKeep = 8

// CompactionSummaryMaxTokens bounds the summary the provider is asked to
// produce.
const CompactionSummaryMaxTokens = 2000

const compactionSystemPrompt = `You are a conversation summarizer. Create a concise summary of the conversation that preserves key context for continuing the discussion.

Focus on:
1. What was accomplished
2. Current work in progress
3. Files involved
4. Next steps
5. Any key user requests or constraints

Be concise but detailed enough that work can continue seamlessly.`

// maybeCompact summarizes everything before the trailing
// CompactionMinEventsToKeep events into a single compacted event, once
// MaxContextTokens has been exceeded. The underlying thread log is never
// truncated — buildRequest honors the most recent compacted event as a
// window boundary instead.
func (a *Agent) maybeCompact(ctx context.Context, tokensSoFar int) error {
	events, err := a.Threads.Events(ctx, a.ThreadID, 0)
	if err != nil {
		return types.NewError(types.ErrStorage, "load thread events for compaction", err)
	}
	if len(events) <= CompactionMinEventsToKeep {
		return nil
	}

	boundary := events[len(events)-CompactionMinEventsToKeep]
	toSummarize := events[:len(events)-CompactionMinEventsToKeep]

	summary, err := a.summarizeEvents(ctx, toSummarize)
	if err != nil {
		return types.NewError(types.ErrTransient, "summarize thread history", err)
	}

	_, err = a.Threads.Append(ctx, a.ThreadID, types.EventCompacted, types.CompactedData{
		Summary:        summary,
		ThroughEventID: boundary.ID - 1,
		TokensBefore:   tokensSoFar,
	})
	if err != nil {
		return types.NewError(types.ErrStorage, "append compacted event", err)
	}
	return nil
}

// summarizeEvents asks the agent's own provider/model to condense a run of
// thread events into a short summary used to seed future requests.
func (a *Agent) summarizeEvents(ctx context.Context, events []types.ThreadEvent) (string, error) {
	prompt := buildSummaryPrompt(events)

	stream, err := a.Provider.CreateCompletion(ctx, &provider.CompletionRequest{
		Model: a.Model.ID,
		Messages: []*schema.Message{
			{Role: schema.System, Content: compactionSystemPrompt},
			{Role: schema.User, Content: prompt},
		},
		MaxTokens: CompactionSummaryMaxTokens,
	})
	if err != nil {
		return "", err
	}
	defer stream.Close()

	var summary strings.Builder
	for {
		msg, err := stream.Recv()
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", err
		}
		summary.WriteString(msg.Content)
	}
	return summary.String(), nil
}

// latestCompaction finds the most recent compacted event, if any, and
// returns its summary and the event id it summarized through.
func latestCompaction(events []types.ThreadEvent) (summary string, through types.EventID, ok bool) {
	for i := len(events) - 1; i >= 0; i-- {
		if events[i].Type != types.EventCompacted {
			continue
		}
		var d types.CompactedData
		if err := json.Unmarshal(events[i].Data, &d); err != nil {
			return "", 0, false
		}
		return d.Summary, d.ThroughEventID, true
	}
	return "", 0, false
}

// eventsAfter drops every event at or before the given id.
func eventsAfter(events []types.ThreadEvent, through types.EventID) []types.ThreadEvent {
	for i, ev := range events {
		if ev.ID > through {
			return events[i:]
		}
	}
	return nil
}

// buildSummaryPrompt renders a run of thread events as plain text for the
// summarizer model.
func buildSummaryPrompt(events []types.ThreadEvent) string {
	var prompt strings.Builder
	prompt.WriteString("Please summarize the following conversation, focusing on:\n")
	prompt.WriteString("1. Key decisions and outcomes\n")
	prompt.WriteString("2. Files that were modified\n")
	prompt.WriteString("3. Important context for continuing the work\n\n")
	prompt.WriteString("---\n\n")

	for _, ev := range events {
		switch ev.Type {
		case types.EventUserMessage:
			var d struct{ Text string }
			json.Unmarshal(ev.Data, &d)
			prompt.WriteString("USER:\n" + d.Text + "\n\n")
		case types.EventTextDelta:
			var d types.TextDeltaData
			json.Unmarshal(ev.Data, &d)
			prompt.WriteString("ASSISTANT:\n" + d.Delta + "\n\n")
		case types.EventToolCallComplete:
			var d types.ToolCallCompleteData
			json.Unmarshal(ev.Data, &d)
			output := d.Output
			if len(output) > 500 {
				output = output[:500] + "..."
			}
			prompt.WriteString(fmt.Sprintf("[Tool call %s]\n%s\n\n", d.CallID, output))
		}
	}
	return prompt.String()
}
