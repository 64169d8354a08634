// Package agent defines the provider abstraction shared by every LLM
// backend: a streaming completion interface, the request/chunk wire types,
// and a failover orchestrator that retries a request across a provider
// chain with circuit breaking.
package agent

import (
	"context"
	"encoding/json"

	"github.com/relaygrid/orchestrator/pkg/models"
)

// LLMProvider is a streaming completion backend. Implementations must be
// safe for concurrent use; multiple requests may be in flight at once.
type LLMProvider interface {
	// Complete sends a prompt and returns a streaming response.
	Complete(ctx context.Context, req *CompletionRequest) (<-chan *CompletionChunk, error)

	// Name returns the provider name.
	Name() string

	// Models returns available models.
	Models() []Model

	// SupportsTools returns whether the provider supports tool use.
	SupportsTools() bool
}

// CompletionRequest is one completion call: conversation history, system
// prompt, available tools, and generation parameters.
type CompletionRequest struct {
	// Model selects the backend model; empty uses the provider default.
	Model string `json:"model"`

	// System is the system prompt, handled separately from messages.
	System string `json:"system,omitempty"`

	// Messages is the conversation history in chronological order.
	Messages []CompletionMessage `json:"messages"`

	// Tools the model may request to execute. Empty disables tool calling.
	Tools []Tool `json:"tools,omitempty"`

	// MaxTokens bounds the response length; 0 uses the provider default.
	MaxTokens int `json:"max_tokens,omitempty"`

	// EnableThinking turns on extended reasoning for models that support it.
	EnableThinking bool `json:"enable_thinking,omitempty"`

	// ThinkingBudgetTokens bounds extended reasoning when enabled.
	ThinkingBudgetTokens int `json:"thinking_budget_tokens,omitempty"`
}

// CompletionMessage is a single conversation turn. Role is one of "user",
// "assistant", or "tool"; tool-only turns may carry no text content.
type CompletionMessage struct {
	Role        string              `json:"role"`
	Content     string              `json:"content,omitempty"`
	ToolCalls   []models.ToolCall   `json:"tool_calls,omitempty"`
	ToolResults []models.ToolResult `json:"tool_results,omitempty"`
	Attachments []models.Attachment `json:"attachments,omitempty"`
}

// CompletionChunk is one element of a streaming response: partial text, a
// complete tool call, a thinking segment, a terminal Done marker, or an
// error that ends the stream.
type CompletionChunk struct {
	Text     string           `json:"text,omitempty"`
	ToolCall *models.ToolCall `json:"tool_call,omitempty"`
	Done     bool             `json:"done,omitempty"`
	Error    error            `json:"-"`

	// Thinking carries reasoning text, streamed separately from Text and
	// bracketed by ThinkingStart/ThinkingEnd.
	Thinking      string `json:"thinking,omitempty"`
	ThinkingStart bool   `json:"thinking_start,omitempty"`
	ThinkingEnd   bool   `json:"thinking_end,omitempty"`

	// Token usage, populated only on the final chunk.
	InputTokens  int `json:"input_tokens,omitempty"`
	OutputTokens int `json:"output_tokens,omitempty"`
}

// Model describes an available backend model and its capabilities.
type Model struct {
	ID             string `json:"id"`
	Name           string `json:"name"`
	ContextSize    int    `json:"context_size"`
	SupportsVision bool   `json:"supports_vision"`
}

// Tool is the provider-facing tool surface: what the model sees
// (name, description, parameter schema) and how a call runs.
type Tool interface {
	Name() string
	Description() string

	// Schema returns the JSON Schema for the tool's parameters.
	Schema() json.RawMessage

	// Execute runs the tool with params matching Schema.
	Execute(ctx context.Context, params json.RawMessage) (*ToolResult, error)
}

// ToolResult is a tool execution's output. Errors travel in-band with
// IsError set so the model can react to a failed call.
type ToolResult struct {
	Content   string     `json:"content"`
	IsError   bool       `json:"is_error,omitempty"`
	Artifacts []Artifact `json:"artifacts,omitempty"`
}

// Artifact is a file or media blob produced by a tool execution.
type Artifact struct {
	ID       string `json:"id"`
	Type     string `json:"type"`
	MimeType string `json:"mime_type"`
	Filename string `json:"filename,omitempty"`
	Data     []byte `json:"data,omitempty"`
	URL      string `json:"url,omitempty"`
}
