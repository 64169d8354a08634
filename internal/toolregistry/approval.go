package toolregistry

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ApprovalStatus is an approval request's lifecycle state.
type ApprovalStatus string

const (
	ApprovalPending   ApprovalStatus = "pending"
	ApprovalApproved  ApprovalStatus = "approved"
	ApprovalDenied    ApprovalStatus = "denied"
	ApprovalDeferred  ApprovalStatus = "deferred"
	ApprovalCancelled ApprovalStatus = "cancelled"
	ApprovalClarify   ApprovalStatus = "clarify"
)

func (s ApprovalStatus) terminal() bool {
	switch s {
	case ApprovalApproved, ApprovalDenied, ApprovalCancelled:
		return true
	default:
		return false
	}
}

// ApprovalRequest is a paused tool execution awaiting a human decision.
type ApprovalRequest struct {
	ID         string          `json:"id"`
	ToolName   string          `json:"tool_name"`
	Params     json.RawMessage `json:"params"`
	SessionID  string          `json:"session_id"`
	ChannelID  string          `json:"channel_id"`
	UserID     string          `json:"user_id"`
	Detail     string          `json:"detail"`
	Status     ApprovalStatus  `json:"status"`
	Response   string          `json:"response,omitempty"`
	Decision   string          `json:"decision,omitempty"`
	CreatedAt  time.Time       `json:"created_at"`
	UpdatedAt  time.Time       `json:"updated_at"`
	ExecutedAt time.Time       `json:"executed_at,omitempty"`
}

// ApprovalParser turns free text (or a reaction label) into a decision the
// registry can act on. internal/approval.Parser implements this.
type ApprovalParser interface {
	// Parse returns one of "approve", "deny", "defer", "cancel", "clarify",
	// or "unknown", plus a confidence in [0,1].
	Parse(text string) (decision string, confidence float64)
}

// approvalStore is an in-memory index of approval requests, mirroring the
// registry's BackgroundTask index.
type approvalStore struct {
	mu       sync.Mutex
	requests map[string]*ApprovalRequest

	parser  ApprovalParser
	onEvent func(ApprovalRequest)
}

func newApprovalStore() *approvalStore {
	return &approvalStore{requests: make(map[string]*ApprovalRequest)}
}

// SetApprovalParser installs the text/reaction decision parser used by
// ResolveApprovalRequest.
func (r *Registry) SetApprovalParser(p ApprovalParser) {
	r.approvals.mu.Lock()
	defer r.approvals.mu.Unlock()
	r.approvals.parser = p
}

// SetOnApprovalRequest installs the callback fired whenever a tool call is
// gated behind a new approval request. A panicking callback
// must never break tool execution, so it's invoked under recover.
func (r *Registry) SetOnApprovalRequest(fn func(ApprovalRequest)) {
	r.approvals.mu.Lock()
	defer r.approvals.mu.Unlock()
	r.approvals.onEvent = fn
}

func (s *approvalStore) fire(req ApprovalRequest) {
	s.mu.Lock()
	cb := s.onEvent
	s.mu.Unlock()
	if cb == nil {
		return
	}
	defer func() { _ = recover() }()
	cb(req)
}

// createApprovalRequest records a new pending request for a gated tool
// call and fires the on-approval-request callback.
func (r *Registry) createApprovalRequest(ec ExecContext, name string, params json.RawMessage, detail string) ApprovalRequest {
	now := time.Now()
	req := &ApprovalRequest{
		ID:        uuid.NewString(),
		ToolName:  name,
		Params:    params,
		SessionID: ec.SessionID,
		ChannelID: ec.ChannelID,
		UserID:    ec.UserID,
		Detail:    detail,
		Status:    ApprovalPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
	r.approvals.mu.Lock()
	r.approvals.requests[req.ID] = req
	r.approvals.mu.Unlock()

	snapshot := *req
	r.approvals.fire(snapshot)
	return snapshot
}

// GetApprovalRequest returns a snapshot of one request.
func (r *Registry) GetApprovalRequest(id string) (ApprovalRequest, bool) {
	r.approvals.mu.Lock()
	defer r.approvals.mu.Unlock()
	req, ok := r.approvals.requests[id]
	if !ok {
		return ApprovalRequest{}, false
	}
	return *req, true
}

// ListApprovalRequests returns every request whose status matches one of
// statuses (all requests if statuses is empty), newest first.
func (r *Registry) ListApprovalRequests(statuses ...ApprovalStatus) []ApprovalRequest {
	want := make(map[ApprovalStatus]bool, len(statuses))
	for _, s := range statuses {
		want[s] = true
	}
	r.approvals.mu.Lock()
	defer r.approvals.mu.Unlock()
	out := make([]ApprovalRequest, 0, len(r.approvals.requests))
	for _, req := range r.approvals.requests {
		if len(want) > 0 && !want[req.Status] {
			continue
		}
		out = append(out, *req)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out
}

// decisionStatus maps a parser decision to the resulting terminal (or
// clarify) approval status.
func decisionStatus(decision string) (ApprovalStatus, bool) {
	switch decision {
	case "approve":
		return ApprovalApproved, true
	case "deny":
		return ApprovalDenied, true
	case "defer":
		return ApprovalDeferred, true
	case "cancel":
		return ApprovalCancelled, true
	case "clarify":
		return ApprovalClarify, true
	default:
		return ApprovalPending, false
	}
}

// ResolveApprovalRequest runs responseText through the configured parser
// and transitions the named request to the resulting status. A request
// already in a terminal status is returned unchanged.
func (r *Registry) ResolveApprovalRequest(id, responseText string) (ApprovalRequest, error) {
	r.approvals.mu.Lock()
	req, ok := r.approvals.requests[id]
	parser := r.approvals.parser
	r.approvals.mu.Unlock()
	if !ok {
		return ApprovalRequest{}, fmt.Errorf("toolregistry: approval request not found: %s", id)
	}
	if req.Status.terminal() {
		return *req, nil
	}
	if parser == nil {
		return ApprovalRequest{}, fmt.Errorf("toolregistry: no approval parser configured")
	}

	decision, _ := parser.Parse(responseText)
	status, recognized := decisionStatus(decision)
	if !recognized {
		status = ApprovalPending
	}

	r.approvals.mu.Lock()
	req.Response = responseText
	req.Decision = decision
	req.Status = status
	req.UpdatedAt = time.Now()
	out := *req
	r.approvals.mu.Unlock()
	return out, nil
}

// ExecuteApprovedRequest re-runs an approved request's tool call with
// __approved=true spliced into its params. If the tool still refuses (a
// second, distinct approval gate inside the tool), the result's content is
// prefixed with "still_requires_approval".
func (r *Registry) ExecuteApprovedRequest(id string) (Result, error) {
	r.approvals.mu.Lock()
	req, ok := r.approvals.requests[id]
	r.approvals.mu.Unlock()
	if !ok {
		return Result{}, fmt.Errorf("toolregistry: approval request not found: %s", id)
	}
	if req.Status != ApprovalApproved {
		return ErrorResult(fmt.Sprintf("request %s is not approved (status=%s)", id, req.Status)), nil
	}

	approvedParams, err := spliceApproved(req.Params)
	if err != nil {
		return ErrorResult(fmt.Sprintf("splice approved params: %v", err)), nil
	}

	ec := ExecContext{
		SessionID: req.SessionID,
		ChannelID: req.ChannelID,
		UserID:    req.UserID,
		Approved:  true,
	}
	result, err := r.Execute(ec, req.ToolName, approvedParams)
	if err != nil {
		return result, err
	}

	r.approvals.mu.Lock()
	req.ExecutedAt = time.Now()
	r.approvals.mu.Unlock()

	if IsApprovalRequired(result) {
		result.Content = "still_requires_approval: " + result.Content
	}
	return result, nil
}

// spliceApproved injects "__approved": true into a JSON object's params.
func spliceApproved(params json.RawMessage) (json.RawMessage, error) {
	var obj map[string]any
	if len(params) == 0 {
		obj = map[string]any{}
	} else if err := json.Unmarshal(params, &obj); err != nil {
		return nil, err
	}
	obj["__approved"] = true
	return json.Marshal(obj)
}

// approvalReplyHint is appended to an approval_required tool result so the
// model can relay clear instructions to the user.
func approvalReplyHint(requestID string) string {
	var sb strings.Builder
	sb.WriteString("\napproval_request_id: ")
	sb.WriteString(requestID)
	sb.WriteString("\nReply approve/deny/defer/cancel (or react) to resolve this request.")
	return sb.String()
}
