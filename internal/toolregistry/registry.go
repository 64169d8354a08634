package toolregistry

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"
)

// Tool name/parameter limits. Oversized names or params are rejected
// before the tool ever runs.
const (
	MaxToolNameLength = 256
	MaxParamsSize     = 10 << 20
)

// Registry holds the set of tools available to the orchestration router,
// keyed by name, with thread-safe registration and lookup.
type Registry struct {
	mu    sync.RWMutex
	tools map[string]Tool

	approval  ApprovalGate
	approvals *approvalStore
}

// ApprovalGate decides whether a tool call must be gated behind an approval
// request before it runs. AllowAllGate is the only implementation in this
// module.
type ApprovalGate interface {
	// RequiresApproval reports whether toolName (with the given params)
	// needs approval before executing for this session.
	RequiresApproval(sessionID, toolName string, params json.RawMessage) bool
}

// AllowAllGate never requires approval; used when no policy is configured.
type AllowAllGate struct{}

// RequiresApproval implements ApprovalGate.
func (AllowAllGate) RequiresApproval(string, string, json.RawMessage) bool { return false }

// NewRegistry returns an empty Registry that gates nothing until
// SetApprovalGate is called.
func NewRegistry() *Registry {
	return &Registry{
		tools:     make(map[string]Tool),
		approval:  AllowAllGate{},
		approvals: newApprovalStore(),
	}
}

// SetApprovalGate installs the policy evaluator used by Execute.
func (r *Registry) SetApprovalGate(gate ApprovalGate) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if gate != nil {
		r.approval = gate
	}
}

// Register adds or replaces a tool by name.
func (r *Registry) Register(tool Tool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tools[tool.Name()] = tool
}

// Unregister removes a tool by name.
func (r *Registry) Unregister(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.tools, name)
}

// Get returns a tool by name.
func (r *Registry) Get(name string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tools[name]
	return t, ok
}

// All returns every registered tool, for presenting to an LLM provider as
// its available function-calling surface.
func (r *Registry) All() []Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Tool, 0, len(r.tools))
	for _, t := range r.tools {
		out = append(out, t)
	}
	return out
}

// Execute validates and runs name with params on behalf of ec:
//  1. look up the tool, returning a discoverable error if missing;
//  2. validate params, returning a remediation-hinted error if invalid;
//  3. invoke it — if the result is "Error: approval_required", open an
//     approval request, fire the on-approval-request callback, and return
//     the error body augmented with the request id and reply instructions;
//  4. any other "Error:" result is returned with a remediation hint;
//  5. otherwise the result is returned verbatim.
//
// If a policy-level ApprovalGate requires approval before the tool even
// runs (and this isn't a resumed, pre-approved execution), Execute
// short-circuits at step 3 the same way a tool-originated refusal would.
func (r *Registry) Execute(ec ExecContext, name string, params json.RawMessage) (Result, error) {
	if len(name) > MaxToolNameLength {
		return ErrorResult(fmt.Sprintf("tool name exceeds maximum length of %d characters", MaxToolNameLength)), nil
	}
	if len(params) > MaxParamsSize {
		return ErrorResult(fmt.Sprintf("tool parameters exceed maximum size of %d bytes", MaxParamsSize)), nil
	}

	tool, ok := r.Get(name)
	if !ok {
		return ErrorResult("tool not found: " + name + ". Available tools: " + strings.Join(r.names(), ", ")), nil
	}

	if err := tool.Validate(params); err != nil {
		return ErrorResult("invalid parameters: " + err.Error() + ". Check the tool's schema and retry."), nil
	}

	r.mu.RLock()
	gate := r.approval
	r.mu.RUnlock()

	var result Result
	if !ec.Approved && gate.RequiresApproval(ec.SessionID, name, params) {
		result = ApprovalRequired(fmt.Sprintf("tool %q requires approval", name))
	} else {
		var err error
		result, err = tool.Execute(ec, params)
		if err != nil {
			return result, err
		}
	}

	if !ec.Approved && IsApprovalRequired(result) {
		detail := strings.TrimPrefix(result.Content, ApprovalRequiredPrefix)
		detail = strings.TrimPrefix(detail, ":")
		detail = strings.TrimSpace(detail)
		req := r.createApprovalRequest(ec, name, params, detail)
		result.Content += approvalReplyHint(req.ID)
		return result, nil
	}

	if result.IsError && !IsApprovalRequired(result) && strings.HasPrefix(result.Content, "Error:") {
		result.Content += " (remediation: check parameters and tool availability, then retry)"
	}

	return result, nil
}

// names returns every registered tool's name, for discoverable not-found
// errors.
func (r *Registry) names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.tools))
	for name := range r.tools {
		out = append(out, name)
	}
	return out
}

// NormalizeToolName canonicalizes a tool name for pattern matching: trims
// whitespace and lowercases, matching the policy matcher's expectations.
func NormalizeToolName(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// MatchPattern reports whether name matches pattern. Two wildcard shapes
// are supported: "mcp:*" for any MCP-bridged tool, and a "prefix.*"
// suffix for a tool family.
func MatchPattern(pattern, name string) bool {
	pattern = NormalizeToolName(pattern)
	name = NormalizeToolName(name)
	if pattern == "" || name == "" {
		return false
	}
	if pattern == "mcp:*" {
		return strings.HasPrefix(name, "mcp:")
	}
	if strings.HasSuffix(pattern, ".*") {
		return strings.HasPrefix(name, strings.TrimSuffix(pattern, "*"))
	}
	if pattern == "*" {
		return true
	}
	return pattern == name
}
