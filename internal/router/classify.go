package router

import (
	"context"
	"strings"
)

// taskKeywords are phrasings that hint the caller wants durable, resumable
// multi-step work rather than a single reply. Matched case-insensitively
// against the inbound message content before falling back to the
// orchestrator LLM classification call phase 1.
var taskKeywords = []string{
	"create a task", "start a task", "schedule a task",
	"remind me", "every day", "every hour", "every week",
	"keep working on", "long-running", "background job",
	"recurring", "cron",
}

// agentKeywords hint at multi-step tool-using work that should still
// complete within one turn rather than becoming a durable task.
var agentKeywords = []string{
	"search for", "look up", "find out", "check the", "run a",
	"investigate", "research", "look into", "browse",
}

// NeedTaskLoop and NeedAgentLoop are the escalation tokens an orchestrator
// reply may emit to request the router re-dispatch the same request under a
// stronger mode. The
// token must appear as an exact match at the start of a trimmed line, not
// merely as a substring anywhere in the reply (avoids a model's prose
// mentioning the phrase in passing from triggering escalation).
const (
	NeedTaskLoop  = "NEED_TASK_LOOP"
	NeedAgentLoop = "NEED_AGENT_LOOP"
)

// findEscalationToken scans reply line by line and returns the first
// escalation token found at the start of a trimmed line, or "" if none.
func findEscalationToken(reply string) string {
	for _, line := range strings.Split(reply, "\n") {
		trimmed := strings.TrimSpace(line)
		switch {
		case strings.HasPrefix(trimmed, NeedTaskLoop):
			return NeedTaskLoop
		case strings.HasPrefix(trimmed, NeedAgentLoop):
			return NeedAgentLoop
		}
	}
	return ""
}

// escalate returns the mode that a found escalation token upgrades current
// to, or current unchanged if tok is empty or already at/above that mode.
func escalate(current Mode, tok string) Mode {
	switch tok {
	case NeedTaskLoop:
		return ModeTask
	case NeedAgentLoop:
		if current == ModeOnce {
			return ModeAgent
		}
		return current
	default:
		return current
	}
}

// Classifier decides which Mode a request should run under. OrchestratorFunc
// lets the router fall back to an LLM-driven classification for requests the
// keyword heuristics don't confidently resolve phase 1's
// "ask a small/cheap model to classify" fallback.
type Classifier struct {
	// Orchestrate, if set, is called for requests the keyword heuristics
	// leave ambiguous. It should return one of ModeOnce/ModeAgent/ModeTask.
	Orchestrate OrchestrateFunc
}

// OrchestrateFunc classifies a request's content into a Mode using an LLM
// call, distinct from the per-mode execution providers.
type OrchestrateFunc func(ctx context.Context, content string) (Mode, error)

// Classify picks a Mode for content using keyword heuristics first, falling
// back to c.Orchestrate when neither heuristic matches and one is
// configured. Defaults to ModeOnce when nothing resolves it — the cheapest
// path wins when the request doesn't ask for more.
func (c Classifier) Classify(ctx context.Context, content string) Mode {
	lower := strings.ToLower(content)

	for _, kw := range taskKeywords {
		if strings.Contains(lower, kw) {
			return ModeTask
		}
	}
	for _, kw := range agentKeywords {
		if strings.Contains(lower, kw) {
			return ModeAgent
		}
	}

	if c.Orchestrate != nil {
		if mode, err := c.Orchestrate(ctx, content); err == nil {
			switch mode {
			case ModeOnce, ModeAgent, ModeTask:
				return mode
			}
		}
	}

	return ModeOnce
}
