// Package router implements the orchestration router: the mode classifier
// and per-mode executor-loop dispatcher that decides what runs, where, and
// how failures are recovered for one inbound message.
package router

import (
	"context"
	"time"

	"github.com/relaygrid/orchestrator/internal/toolregistry"
	"github.com/relaygrid/orchestrator/pkg/models"
)

// Mode is the orchestration strategy the router selects for one inbound
// message.
type Mode string

const (
	ModeOnce  Mode = "once"
	ModeAgent Mode = "agent"
	ModeTask  Mode = "task"
)

// Media is one attachment reference carried alongside an inbound message.
type Media struct {
	Type     string
	URL      string
	MimeType string
	Size     int64
}

// Request is everything the router needs to process one inbound message.
type Request struct {
	// Provider is the originating transport tag ("slack", "discord", "telegram", ...).
	Provider string

	// Message is the inbound message being processed.
	Message *models.Message

	// History is the session's recent history (last 8 messages).
	History []*models.Message

	// PreferredAlias names the agent persona/alias to use, if any.
	PreferredAlias string

	// Media lists any attachments on the inbound message.
	Media []Media

	// SessionID groups this request's tool calls/approvals/events together.
	SessionID string

	// ChatID is the originating chat/channel id, used for approval binding.
	ChatID string

	// ThreadID is the originating thread id, if the transport supports
	// threaded replies.
	ThreadID string

	// Stream, if set, receives incremental text as it is produced.
	Stream func(chunk string)
}

// Result is the router's outcome for one Request.
type Result struct {
	Reply             string
	Mode              Mode
	ToolCallsCount    int
	Streamed          bool
	StreamFullContent string
	// SuppressReply indicates the agent already emitted channel output via
	// a tool (e.g. a message tool call) and the transport should not also
	// send Reply.
	SuppressReply bool
	// FileRequested indicates the loop called a file-request tool, so the
	// transport should prompt the user for an upload rather than treat the
	// turn as finished.
	FileRequested bool
	Error         string
}

// toolCallState tracks per-run bookkeeping across an agent/task loop's tool
// calls: how many ran, whether a file was requested, and whether a
// phase=done message tool call was observed (which suppresses the final
// reply).
type toolCallState struct {
	count         int
	fileRequested bool
	doneSent      bool
}

// runExecContext builds a toolregistry.ExecContext for one tool call within
// req, carrying cancellation and provenance through to approvals/events.
func runExecContext(ctx context.Context, req *Request) toolregistry.ExecContext {
	return toolregistry.ExecContext{
		Context:   ctx,
		SessionID: req.SessionID,
		ChannelID: req.ChatID,
		UserID:    metadataString(req.Message, "user_id"),
	}
}

// metadataString reads a string value out of a message's free-form
// metadata bag, returning "" if absent or of the wrong type.
func metadataString(m *models.Message, key string) string {
	if m == nil || m.Metadata == nil {
		return ""
	}
	if v, ok := m.Metadata[key].(string); ok {
		return v
	}
	return ""
}

// clock is overridable for tests.
var clock = func() time.Time { return time.Now() }
