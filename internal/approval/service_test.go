package approval

import (
	"context"
	"testing"
	"time"

	"github.com/relaygrid/orchestrator/internal/toolregistry"
)

type fakeRegistry struct {
	requests map[string]toolregistry.ApprovalRequest
	parser   *Parser
	executed []string
}

func newFakeRegistry() *fakeRegistry {
	return &fakeRegistry{requests: make(map[string]toolregistry.ApprovalRequest), parser: NewParser()}
}

func (f *fakeRegistry) add(req toolregistry.ApprovalRequest) {
	f.requests[req.ID] = req
}

func (f *fakeRegistry) ListApprovalRequests(statuses ...toolregistry.ApprovalStatus) []toolregistry.ApprovalRequest {
	want := make(map[toolregistry.ApprovalStatus]bool, len(statuses))
	for _, s := range statuses {
		want[s] = true
	}
	var out []toolregistry.ApprovalRequest
	for _, r := range f.requests {
		if len(want) > 0 && !want[r.Status] {
			continue
		}
		out = append(out, r)
	}
	return out
}

func (f *fakeRegistry) GetApprovalRequest(id string) (toolregistry.ApprovalRequest, bool) {
	r, ok := f.requests[id]
	return r, ok
}

func (f *fakeRegistry) ResolveApprovalRequest(id, responseText string) (toolregistry.ApprovalRequest, error) {
	r := f.requests[id]
	decision, _ := f.parser.Parse(responseText)
	switch Decision(decision) {
	case DecisionApprove:
		r.Status = toolregistry.ApprovalApproved
	case DecisionDeny:
		r.Status = toolregistry.ApprovalDenied
	case DecisionDefer:
		r.Status = toolregistry.ApprovalDeferred
	case DecisionCancel:
		r.Status = toolregistry.ApprovalCancelled
	default:
		r.Status = toolregistry.ApprovalClarify
	}
	f.requests[id] = r
	return r, nil
}

func (f *fakeRegistry) ExecuteApprovedRequest(id string) (toolregistry.Result, error) {
	f.executed = append(f.executed, id)
	return toolregistry.Result{Content: "done: " + id}, nil
}

func TestHandleMessageBindsByExplicitRequestID(t *testing.T) {
	reg := newFakeRegistry()
	reg.add(toolregistry.ApprovalRequest{ID: "req-1", ToolName: "shell", Status: toolregistry.ApprovalPending, ChannelID: "slack:C1", CreatedAt: time.Now()})
	svc := NewService(reg)

	reply, handled, err := svc.HandleMessage(context.Background(), InboundMessage{
		ChannelID: "slack:C2", // deliberately different channel — explicit id should still win
		Text:      "approval_request_id: req-1\napprove",
	})
	if err != nil {
		t.Fatalf("HandleMessage() error = %v", err)
	}
	if !handled {
		t.Fatal("expected message to be handled")
	}
	if len(reg.executed) != 1 || reg.executed[0] != "req-1" {
		t.Fatalf("expected req-1 to execute, got %+v", reg.executed)
	}
	if reply == "" {
		t.Fatal("expected a non-empty reply")
	}
}

func TestHandleMessageBindsByChannelWhenNoExplicitID(t *testing.T) {
	reg := newFakeRegistry()
	older := toolregistry.ApprovalRequest{ID: "req-old", Status: toolregistry.ApprovalPending, ChannelID: "slack:C1", CreatedAt: time.Now().Add(-time.Minute)}
	newer := toolregistry.ApprovalRequest{ID: "req-new", Status: toolregistry.ApprovalPending, ChannelID: "slack:C1", CreatedAt: time.Now()}
	reg.add(older)
	reg.add(newer)
	svc := NewService(reg)

	_, handled, err := svc.HandleMessage(context.Background(), InboundMessage{ChannelID: "slack:C1", Text: "deny"})
	if err != nil {
		t.Fatalf("HandleMessage() error = %v", err)
	}
	if !handled {
		t.Fatal("expected message to be handled")
	}
	if reg.requests["req-new"].Status != toolregistry.ApprovalDenied {
		t.Fatalf("expected the most recent pending request to be resolved, got %+v", reg.requests["req-new"])
	}
	if reg.requests["req-old"].Status != toolregistry.ApprovalPending {
		t.Fatalf("expected the older request to remain pending, got %+v", reg.requests["req-old"])
	}
}

func TestHandleMessageUnhandledWhenNoPending(t *testing.T) {
	reg := newFakeRegistry()
	svc := NewService(reg)
	_, handled, err := svc.HandleMessage(context.Background(), InboundMessage{ChannelID: "slack:C1", Text: "approve"})
	if err != nil {
		t.Fatalf("HandleMessage() error = %v", err)
	}
	if handled {
		t.Fatal("expected unhandled with no pending requests")
	}
}

func TestHandleReactionDedupes(t *testing.T) {
	reg := newFakeRegistry()
	reg.add(toolregistry.ApprovalRequest{ID: "req-1", Status: toolregistry.ApprovalPending, ChannelID: "slack:C1"})
	svc := NewService(reg)

	_, handled, err := svc.HandleReaction(context.Background(), "slack:C1", "req-1", []string{"white_check_mark"})
	if err != nil || !handled {
		t.Fatalf("first HandleReaction() = handled=%v err=%v", handled, err)
	}
	if reg.requests["req-1"].Status != toolregistry.ApprovalApproved {
		t.Fatalf("expected req-1 approved, got %+v", reg.requests["req-1"])
	}

	// Second identical reaction on the same (already-resolved) request must
	// not re-fire execution.
	_, handled, err = svc.HandleReaction(context.Background(), "slack:C1", "req-1", []string{"white_check_mark"})
	if err != nil {
		t.Fatalf("second HandleReaction() error = %v", err)
	}
	if handled {
		t.Fatal("expected the repeated reaction to be deduplicated")
	}
	if len(reg.executed) != 1 {
		t.Fatalf("expected exactly one execution, got %d", len(reg.executed))
	}
}

func TestHandleReactionUnmappedName(t *testing.T) {
	reg := newFakeRegistry()
	reg.add(toolregistry.ApprovalRequest{ID: "req-1", Status: toolregistry.ApprovalPending, ChannelID: "slack:C1"})
	svc := NewService(reg)
	_, handled, err := svc.HandleReaction(context.Background(), "slack:C1", "req-1", []string{"party_parrot"})
	if err != nil {
		t.Fatalf("HandleReaction() error = %v", err)
	}
	if handled {
		t.Fatal("expected unmapped reaction to be unhandled")
	}
}
