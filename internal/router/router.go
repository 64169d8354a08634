package router

import (
	"context"
	"fmt"

	"github.com/relaygrid/orchestrator/internal/agent"
	"github.com/relaygrid/orchestrator/internal/eventlog"
	"github.com/relaygrid/orchestrator/internal/toolregistry"
)

// maxEscalations bounds how many times one request may be re-dispatched
// under a stronger mode before the router gives up and returns whatever it
// has, guarding against a misbehaving model that repeats the escalation
// token forever.
const maxEscalations = 2

// Router is the orchestration router: it classifies one inbound message
// into a mode, gates it against unresolved secret references, and drives
// that mode's dispatch loop to a reply.
type Router struct {
	// Classifier picks a request's Mode.
	Classifier Classifier

	// Provider is the LLM completion backend. Pass an
	// *agent.FailoverOrchestrator (primary + AddProvider fallbacks) to get
	// retry-once-against-a-fallback-executor behavior for
	// free — that orchestration already lives in internal/agent/failover.go.
	Provider agent.LLMProvider

	// Tools is the registry tool calls are dispatched through. May be nil
	// for deployments that never grant tool access.
	Tools *toolregistry.Registry

	// Skills recommends skills relevant to a request's content. Optional.
	Skills SkillLister

	// Secrets inspects a request's content for unresolved secret
	// references before any provider call. Optional; nil disables the
	// gate.
	Secrets SecretChecker

	// EventLog records task-mode progress so a watchdog can resume
	// interrupted work. Optional; nil disables task persistence (task mode
	// still runs, it just isn't resumable).
	EventLog *eventlog.Log

	Model         string
	System        string
	MaxTokens     int
	MaxIterations int

	// MaxToolResultChars bounds tool-result text fed back into the
	// conversation; 0 uses defaultMaxToolResultChars.
	MaxToolResultChars int
}

func (r *Router) maxToolResultChars() int {
	if r.MaxToolResultChars > 0 {
		return r.MaxToolResultChars
	}
	return defaultMaxToolResultChars
}

func (r *Router) maxIterations() int {
	if r.MaxIterations > 0 {
		return r.MaxIterations
	}
	return defaultMaxIterations
}

func (r *Router) complete(ctx context.Context, req *agent.CompletionRequest) (<-chan *agent.CompletionChunk, error) {
	if r.Provider == nil {
		return nil, fmt.Errorf("router: no provider configured")
	}
	return r.Provider.Complete(ctx, req)
}

// Execute classifies req and dispatches it, following escalation tokens up
// to maxEscalations times.
func (r *Router) Execute(ctx context.Context, req *Request) (Result, error) {
	if err := checkSecretGate(r.Secrets, req.Message.Content); err != nil {
		return Result{Error: err.Error()}, err
	}

	recommended := recommendSkills(r.Skills, req.Message.Content)
	if missing := missingRequiredTools(r.Tools, recommended); len(missing) > 0 {
		return Result{Error: fmt.Sprintf("router: recommended skill requires unavailable tool(s): %v", missing)}, fmt.Errorf("router: missing required tools: %v", missing)
	}

	mode := r.Classifier.Classify(ctx, req.Message.Content)

	var (
		result Result
		err    error
	)
	for attempt := 0; attempt <= maxEscalations; attempt++ {
		switch mode {
		case ModeTask:
			result, err = r.runTask(ctx, req)
		case ModeAgent:
			result, err = r.runAgent(ctx, req)
		default:
			result, err = r.runOnce(ctx, req)
		}

		esc, ok := err.(escalationSignal)
		if !ok {
			break
		}
		next := escalate(mode, esc.token)
		if next == mode {
			err = nil
			break
		}
		mode = next
		err = nil
	}

	if err != nil {
		result.Error = err.Error()
	}
	return result, err
}
