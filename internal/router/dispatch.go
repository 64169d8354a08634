package router

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/relaygrid/orchestrator/internal/agent"
	"github.com/relaygrid/orchestrator/internal/eventlog"
	"github.com/relaygrid/orchestrator/internal/streambuf"
	"github.com/relaygrid/orchestrator/internal/toolregistry"
	"github.com/relaygrid/orchestrator/pkg/models"
)

// defaultMaxToolResultChars bounds how much of a tool's result text is fed
// back into the conversation point 4 ("truncate each tool
// result to max_tool_result_chars").
const defaultMaxToolResultChars = 4000

// defaultMaxIterations bounds the agent/task tool loop.
const defaultMaxIterations = 12

// doneMarker is the message-tool-call phase value that suppresses the
// router's own final reply: a tool call that itself posts to
// the channel and marks phase="done" means the loop's text return is
// redundant.
const doneMarker = "done"

// completionMessages converts a request's recent history plus its current
// message into the provider's message shape, newest last.
func completionMessages(req *Request) []agent.CompletionMessage {
	out := make([]agent.CompletionMessage, 0, len(req.History)+1)
	for _, m := range req.History {
		out = append(out, agent.CompletionMessage{
			Role:    string(m.Role),
			Content: m.Content,
		})
	}
	out = append(out, agent.CompletionMessage{
		Role:    string(models.RoleUser),
		Content: req.Message.Content,
	})
	return out
}

// drainCompletion consumes a provider's chunk stream, accumulating text and
// surfacing the first tool call encountered. A stream may legitimately
// produce multiple tool calls per turn; only the first is returned and any
// later tool calls in the same stream are dropped, so approval gating and
// tool-call limits apply per call rather than per batch.
func drainCompletion(chunks <-chan *agent.CompletionChunk, onText func(string)) (text string, toolCall *models.ToolCall, err error) {
	var b strings.Builder
	for chunk := range chunks {
		if chunk.Error != nil {
			return b.String(), nil, chunk.Error
		}
		if chunk.Text != "" {
			b.WriteString(chunk.Text)
			if onText != nil {
				onText(chunk.Text)
			}
		}
		if chunk.ToolCall != nil && toolCall == nil {
			toolCall = chunk.ToolCall
		}
		if chunk.Done {
			break
		}
	}
	return b.String(), toolCall, nil
}

// runOnce issues a single completion with no tool access: the cheapest
// mode, for requests that need one answer and nothing else.
func (r *Router) runOnce(ctx context.Context, req *Request) (Result, error) {
	creq := &agent.CompletionRequest{
		Model:     r.Model,
		System:    r.System,
		Messages:  completionMessages(req),
		MaxTokens: r.MaxTokens,
	}
	chunks, err := r.complete(ctx, creq)
	if err != nil {
		return Result{Mode: ModeOnce}, err
	}
	text, _, err := drainCompletion(chunks, req.Stream)
	if err != nil {
		return Result{Mode: ModeOnce}, err
	}

	if tok := findEscalationToken(text); tok != "" {
		return Result{Mode: ModeOnce, Reply: text}, escalationSignal{token: tok}
	}
	return Result{Mode: ModeOnce, Reply: text, Streamed: req.Stream != nil}, nil
}

// escalationSignal is returned (not as a user-facing error) when a model's
// reply asks the router to re-dispatch under a stronger mode.
type escalationSignal struct{ token string }

func (e escalationSignal) Error() string { return "escalate: " + e.token }

// runAgent runs the bounded tool-use loop: the provider sees the full tool
// registry and may request up to r.maxIterations() tool calls; after that
// the router stops and returns a fixed reply saying no final answer was
// reached, without another provider call.
func (r *Router) runAgent(ctx context.Context, req *Request) (Result, error) {
	tools := asLLMTools(selectTools(r.Tools))
	messages := completionMessages(req)
	var state toolCallState

	for iter := 0; iter < r.maxIterations(); iter++ {
		creq := &agent.CompletionRequest{
			Model:     r.Model,
			System:    r.System,
			Messages:  messages,
			Tools:     tools,
			MaxTokens: r.MaxTokens,
		}
		chunks, err := r.complete(ctx, creq)
		if err != nil {
			return Result{Mode: ModeAgent, ToolCallsCount: state.count}, err
		}

		var onText func(string)
		if iter == 0 {
			onText = req.Stream
		}
		text, toolCall, err := drainCompletion(chunks, onText)
		if err != nil {
			return Result{Mode: ModeAgent, ToolCallsCount: state.count}, err
		}

		if toolCall == nil {
			if tok := findEscalationToken(text); tok != "" {
				return Result{Mode: ModeAgent, Reply: text, ToolCallsCount: state.count}, escalationSignal{token: tok}
			}
			return Result{
				Mode:           ModeAgent,
				Reply:          text,
				ToolCallsCount: state.count,
				SuppressReply:  state.doneSent,
				FileRequested:  state.fileRequested,
			}, nil
		}

		messages = append(messages, agent.CompletionMessage{Role: "assistant", ToolCalls: []models.ToolCall{*toolCall}})

		result, execErr := r.Tools.Execute(runExecContext(ctx, req), toolCall.Name, toolCall.Input)
		state.count++
		if execErr != nil {
			result = toolregistry.ErrorResult(execErr.Error())
		}
		if toolCall.Name == "request_file" || toolCall.Name == "file_request" {
			state.fileRequested = true
		}
		if toolCall.Name == "message" && strings.Contains(string(toolCall.Input), `"phase"`) &&
			strings.Contains(string(toolCall.Input), `"`+doneMarker+`"`) {
			state.doneSent = true
		}

		messages = append(messages, agent.CompletionMessage{
			Role: "tool",
			ToolResults: []models.ToolResult{{
				ToolCallID: toolCall.ID,
				Content:    streambuf.Truncate(result.Content, r.maxToolResultChars()),
				IsError:    result.IsError,
			}},
		})
	}

	return Result{
		Mode:           ModeAgent,
		Reply:          "reached the maximum number of tool calls for this turn without a final answer",
		ToolCallsCount: state.count,
	}, nil
}

// runTask records an assign event in eventlog, runs the agent loop once, and
// records a done event, so a watchdog can find and resume the task after a
// process restart; there are no separate plan or finalize steps. See phase 4
// and §4.B's task-id convention "task:<provider>:<chat_id>:<alias>".
func (r *Router) runTask(ctx context.Context, req *Request) (Result, error) {
	taskID := taskIDFor(req)
	runID := taskID + ":run:" + timestampKey()

	if r.EventLog != nil {
		if _, err := r.EventLog.Append(ctx, eventlog.Event{
			EventID:   taskID + ":assign:" + timestampKey(),
			TaskID:    taskID,
			RunID:     runID,
			AgentID:   req.PreferredAlias,
			Phase:     eventlog.PhaseAssign,
			Summary:   summarize(req.Message.Content),
			Note:      req.Message.Content,
			Provider:  req.Provider,
			ChatID:    req.ChatID,
			ThreadID:  req.ThreadID,
			Source:    eventlog.SourceInbound,
			MaxTurns:  r.maxIterations(),
			CreatedAt: clock(),
		}); err != nil {
			return Result{Mode: ModeTask}, fmt.Errorf("router: record task assignment: %w", err)
		}
	}

	result, err := r.runAgent(ctx, req)
	result.Mode = ModeTask

	if r.EventLog == nil {
		return result, err
	}

	phase := eventlog.PhaseDone
	note := ""
	if err != nil {
		if _, ok := err.(escalationSignal); !ok {
			note = eventlog.FailureNote
		}
	}
	if _, logErr := r.EventLog.Append(ctx, eventlog.Event{
		EventID:   taskID + ":done:" + timestampKey(),
		TaskID:    taskID,
		RunID:     runID,
		AgentID:   req.PreferredAlias,
		Phase:     phase,
		Summary:   summarize(result.Reply),
		Note:      note,
		Provider:  req.Provider,
		ChatID:    req.ChatID,
		ThreadID:  req.ThreadID,
		Source:    eventlog.SourceOutbound,
		CreatedAt: clock(),
	}); logErr != nil && err == nil {
		err = fmt.Errorf("router: record task completion: %w", logErr)
	}

	return result, err
}

// summarize trims s to a short one-line description suitable for
// eventlog.Event.Summary.
func summarize(s string) string {
	s = strings.TrimSpace(strings.ReplaceAll(s, "\n", " "))
	const max = 120
	r := []rune(s)
	if len(r) > max {
		return string(r[:max])
	}
	return s
}

// taskIDFor builds the task id a watchdog uses to find and resume this
// request's work.
func taskIDFor(req *Request) string {
	alias := req.PreferredAlias
	if alias == "" {
		alias = "default"
	}
	return fmt.Sprintf("task:%s:%s:%s", req.Provider, req.ChatID, alias)
}

// timestampKey gives each event appended within one dispatch a distinct,
// deterministic-enough idempotency suffix without calling time.Now twice
// for the same logical moment.
func timestampKey() string {
	return clock().Format(time.RFC3339Nano)
}
