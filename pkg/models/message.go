// Package models holds the transport-neutral message types every channel
// adapter converts to and from. An inbound Message is immutable once
// accepted; adapters fill the provenance fields (channel, chat, sender,
// thread) so approvals, events, and replies retain where a request came
// from.
package models

import (
	"encoding/json"
	"time"
)

// ChannelType represents a messaging platform.
type ChannelType string

const (
	ChannelTelegram ChannelType = "telegram"
	ChannelDiscord  ChannelType = "discord"
	ChannelSlack    ChannelType = "slack"
)

// Direction indicates if a message is inbound or outbound.
type Direction string

const (
	DirectionInbound  Direction = "inbound"
	DirectionOutbound Direction = "outbound"
)

// Role indicates the message author type.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
	RoleTool      Role = "tool"
)

// Message is the unified message format across all channels.
type Message struct {
	ID        string      `json:"id"`
	SessionID string      `json:"session_id"`
	Channel   ChannelType `json:"channel"`

	// ChannelID is the chat/conversation the message belongs to;
	// SenderID is the platform user who authored it; ThreadID is set when
	// the transport supports threaded replies.
	ChannelID string `json:"channel_id"`
	SenderID  string `json:"sender_id,omitempty"`
	ThreadID  string `json:"thread_id,omitempty"`

	Direction Direction `json:"direction"`
	Role      Role      `json:"role"`
	Content   string    `json:"content"`

	// ReplyTo and ParseMode only apply to outbound messages.
	ReplyTo   string `json:"reply_to,omitempty"`
	ParseMode string `json:"parse_mode,omitempty"`

	Attachments []Attachment   `json:"attachments,omitempty"`
	ToolCalls   []ToolCall     `json:"tool_calls,omitempty"`
	ToolResults []ToolResult   `json:"tool_results,omitempty"`
	Metadata    map[string]any `json:"metadata,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
}

// Attachment represents a file or media attachment.
type Attachment struct {
	ID       string `json:"id"`
	Type     string `json:"type"` // image, audio, video, document
	URL      string `json:"url"`
	Filename string `json:"filename,omitempty"`
	MimeType string `json:"mime_type,omitempty"`
	Size     int64  `json:"size,omitempty"`
}

// ToolCall represents an LLM's request to execute a tool.
type ToolCall struct {
	ID    string          `json:"id"`
	Name  string          `json:"name"`
	Input json.RawMessage `json:"input"`
}

// ToolResult represents the output of a tool execution.
type ToolResult struct {
	ToolCallID string `json:"tool_call_id"`
	Content    string `json:"content"`
	IsError    bool   `json:"is_error,omitempty"`
}
