package approval

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/relaygrid/orchestrator/internal/toolregistry"
)

// Registry is the slice of toolregistry.Registry the service drives.
// Defined locally (rather than importing a concrete *toolregistry.Registry)
// so a test double can stand in without constructing a real one.
type Registry interface {
	ListApprovalRequests(statuses ...toolregistry.ApprovalStatus) []toolregistry.ApprovalRequest
	GetApprovalRequest(id string) (toolregistry.ApprovalRequest, bool)
	ResolveApprovalRequest(id, responseText string) (toolregistry.ApprovalRequest, error)
	ExecuteApprovedRequest(id string) (toolregistry.Result, error)
}

// ResultPreviewLimit bounds how much of a tool's output is echoed back into
// a channel after an approved execution.
const ResultPreviewLimit = 800

// seenTTL bounds how long a (provider,chat,request,decision,names) tuple is
// remembered before a repeat reaction is allowed to fire again.
const seenTTL = 10 * time.Minute

// InboundMessage is one chat message the service considers as a possible
// approval reply. ChannelID is expected to encode "<provider>:<chat_id>",
// matching how ExecContext.ChannelID is populated when a tool call is
// gated.
type InboundMessage struct {
	ChannelID string
	UserID    string
	Text      string
}

// Service binds chat messages and Slack reactions to a tool registry's
// approval request store, implementing the inbound-message
// resolution flow. The actual text→decision classification happens inside
// the registry via its configured toolregistry.ApprovalParser (wire
// approval.NewParser() there with Registry.SetApprovalParser); this service
// only binds a message to the right request and reports the outcome.
type Service struct {
	registry Registry

	mu   sync.Mutex
	seen map[string]time.Time
}

// NewService returns a service driving registry.
func NewService(registry Registry) *Service {
	return &Service{registry: registry, seen: make(map[string]time.Time)}
}

var requestIDPattern = regexp.MustCompile(`(?i)approval_request_id:\s*([a-zA-Z0-9-]+)|\b([0-9a-fA-F]{8}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{12})\b`)

// RequestIDFromText recovers an approval request id embedded in a message
// body — either an explicit "approval_request_id: <id>" line or a bare
// UUID. Reaction handling uses it to bind an emoji on an approval prompt
// back to its request.
func RequestIDFromText(text string) (string, bool) {
	return extractRequestID(text)
}

func extractRequestID(text string) (string, bool) {
	m := requestIDPattern.FindStringSubmatch(text)
	if m == nil {
		return "", false
	}
	if m[1] != "" {
		return m[1], true
	}
	return m[2], true
}

// HandleMessage runs one inbound chat message through the approval flow:
//  1. enumerate pending requests,
//  2. bind to an explicit request_id in the text, else the most recent
//     pending request on the same channel,
//  3. parse the decision and resolve the request,
//  4. on approve, execute and report success/failure; otherwise acknowledge.
//
// handled is false when no pending request could be bound to the message
// (the caller should treat the message as ordinary input, not a reply).
func (s *Service) HandleMessage(ctx context.Context, msg InboundMessage) (reply string, handled bool, err error) {
	pending := s.registry.ListApprovalRequests(toolregistry.ApprovalPending)
	if len(pending) == 0 {
		return "", false, nil
	}

	var target *toolregistry.ApprovalRequest
	if id, ok := extractRequestID(msg.Text); ok {
		for i := range pending {
			if pending[i].ID == id {
				target = &pending[i]
				break
			}
		}
		if target == nil {
			if req, ok := s.registry.GetApprovalRequest(id); ok {
				target = &req
			}
		}
	}
	if target == nil {
		sort.Slice(pending, func(i, j int) bool { return pending[i].CreatedAt.After(pending[j].CreatedAt) })
		for i := range pending {
			if pending[i].ChannelID == msg.ChannelID {
				target = &pending[i]
				break
			}
		}
	}
	if target == nil {
		return "", false, nil
	}

	resolved, err := s.registry.ResolveApprovalRequest(target.ID, msg.Text)
	if err != nil {
		return "", true, err
	}

	return s.reportDecision(resolved), true, nil
}

func (s *Service) reportDecision(req toolregistry.ApprovalRequest) string {
	switch req.Status {
	case toolregistry.ApprovalApproved:
		result, err := s.registry.ExecuteApprovedRequest(req.ID)
		if err != nil {
			return fmt.Sprintf("Approved %s, but execution failed: %v", req.ToolName, err)
		}
		if result.IsError {
			return fmt.Sprintf("Approved %s, but it reported an error: %s", req.ToolName, preview(result.Content, ResultPreviewLimit))
		}
		return fmt.Sprintf("Approved and ran %s:\n%s", req.ToolName, preview(result.Content, ResultPreviewLimit))
	case toolregistry.ApprovalDenied:
		return fmt.Sprintf("Denied %s.", req.ToolName)
	case toolregistry.ApprovalDeferred:
		return fmt.Sprintf("Deferred %s for later.", req.ToolName)
	case toolregistry.ApprovalCancelled:
		return fmt.Sprintf("Cancelled %s.", req.ToolName)
	case toolregistry.ApprovalClarify:
		return fmt.Sprintf("Request %s needs clarification: reply approve/deny/defer/cancel.", req.ID)
	default:
		return fmt.Sprintf("Couldn't understand a decision for request %s; reply approve/deny/defer/cancel.", req.ID)
	}
}

func preview(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	return s[:limit] + "…"
}

// HandleReaction applies a Slack reaction name to the pending request it was
// placed on, deduplicating repeats of the same (channel, request, decision,
// reaction set) tuple within seenTTL.
func (s *Service) HandleReaction(ctx context.Context, channelID, requestID string, reactionNames []string) (reply string, handled bool, err error) {
	decision, ok := firstMappedReaction(reactionNames)
	if !ok {
		return "", false, nil
	}

	names := append([]string(nil), reactionNames...)
	sort.Strings(names)
	key := strings.Join([]string{channelID, requestID, string(decision), strings.Join(names, ",")}, "|")
	if s.markSeen(key) {
		return "", false, nil
	}

	req, ok := s.registry.GetApprovalRequest(requestID)
	if !ok || req.Status != toolregistry.ApprovalPending {
		return "", false, nil
	}

	resolved, err := s.registry.ResolveApprovalRequest(requestID, string(decision))
	if err != nil {
		return "", true, err
	}
	return s.reportDecision(resolved), true, nil
}

func firstMappedReaction(names []string) (Decision, bool) {
	for _, n := range names {
		if d, ok := MapReaction(n); ok {
			return d, true
		}
	}
	return DecisionUnknown, false
}

// markSeen reports whether key was already seen within the TTL window,
// recording it (and pruning expired entries) as a side effect.
func (s *Service) markSeen(key string) bool {
	now := time.Now()
	s.mu.Lock()
	defer s.mu.Unlock()
	for k, at := range s.seen {
		if now.Sub(at) > seenTTL {
			delete(s.seen, k)
		}
	}
	if at, ok := s.seen[key]; ok && now.Sub(at) <= seenTTL {
		return true
	}
	s.seen[key] = now
	return false
}
