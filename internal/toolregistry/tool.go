// Package toolregistry implements the tool contract every built-in and
// MCP-bridged tool honors: Name/Description/Schema/Validate/Execute, JSON
// Schema validation of parameters, an approval gate that tools trip by
// returning the literal "Error: approval_required" sentinel, and a
// background task store for tools that run longer than a single request.
package toolregistry

import (
	"context"
	"encoding/json"
)

// ExecContext carries the ambient information a tool needs beyond its
// parameters: who's asking, from where, and a cancellable context.
type ExecContext struct {
	Context   context.Context
	SessionID string
	ChannelID string
	UserID    string
	// Approved is set when this execution is a re-run of a previously
	// approval-gated call, per the __approved=true re-execution pattern.
	Approved bool
}

// Tool is the contract every registered tool implements.
type Tool interface {
	Name() string
	Description() string
	// Schema returns the tool's parameter JSON Schema as a map, matching
	// the shape LLM providers expect for function-calling tool defs.
	Schema() map[string]any
	// Validate checks params against Schema() before Execute is called.
	Validate(params json.RawMessage) error
	// Execute runs the tool. A result whose Content begins with
	// "Error: approval_required" makes Registry.Execute open an approval
	// request and append its id and reply instructions to the result.
	Execute(ec ExecContext, params json.RawMessage) (Result, error)
}

// Result is a tool's output.
type Result struct {
	Content string
	IsError bool
}

// ApprovalRequiredPrefix is the sentinel a tool's Result.Content is checked
// for to detect that execution was gated rather than failed outright.
const ApprovalRequiredPrefix = "Error: approval_required"

// ApprovalRequired builds a Result signaling the approval gate, carrying a
// human-readable reason after the sentinel.
func ApprovalRequired(reason string) Result {
	content := ApprovalRequiredPrefix
	if reason != "" {
		content += ": " + reason
	}
	return Result{Content: content, IsError: true}
}

// IsApprovalRequired reports whether r is an approval-gate result.
func IsApprovalRequired(r Result) bool {
	return r.IsError && len(r.Content) >= len(ApprovalRequiredPrefix) && r.Content[:len(ApprovalRequiredPrefix)] == ApprovalRequiredPrefix
}

// ErrorResult builds a plain "Error: <message>" result, the boundary
// convention every other tool failure uses.
func ErrorResult(message string) Result {
	return Result{Content: "Error: " + message, IsError: true}
}
