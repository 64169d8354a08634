// Package subagent adapts internal/subagents.Registry to the
// toolregistry.Tool contract: a single action-dispatched tool exposing
// spawn/status/list/cancel/wait_for_completion, the same multi-action
// shape the admin tools use.
package subagent

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/relaygrid/orchestrator/internal/subagents"
	"github.com/relaygrid/orchestrator/internal/toolregistry"
)

// Tool wraps a subagents.Registry as a single action-dispatched tool.
type Tool struct {
	registry *subagents.Registry
	// pollInterval controls how often wait_for_completion polls the
	// registry while a run is still in progress.
	pollInterval time.Duration
}

// New returns a subagent tool backed by registry.
func New(registry *subagents.Registry) *Tool {
	return &Tool{registry: registry, pollInterval: 50 * time.Millisecond}
}

func (t *Tool) Name() string { return "subagent" }

func (t *Tool) Description() string {
	return "Spawn a short-lived sub-agent to work a single task, and track or cancel it " +
		"(actions: spawn, status, list, cancel, wait_for_completion)."
}

func (t *Tool) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"action": map[string]any{
				"type": "string",
				"enum": []any{"spawn", "status", "list", "cancel", "wait_for_completion"},
			},
			"id":   map[string]any{"type": "string", "description": "Sub-agent id (status/cancel/wait_for_completion)"},
			"name": map[string]any{"type": "string", "description": "A short name for the sub-agent, e.g. 'researcher'"},
			"task": map[string]any{"type": "string", "description": "The task for the sub-agent to complete"},
			"allowed_tools": map[string]any{
				"type":        "array",
				"items":       map[string]any{"type": "string"},
				"description": "Tools the sub-agent is allowed to use (optional, defaults to all)",
			},
			"denied_tools": map[string]any{
				"type":        "array",
				"items":       map[string]any{"type": "string"},
				"description": "Tools the sub-agent is NOT allowed to use (optional)",
			},
			"parent_id": map[string]any{"type": "string", "description": "Parent subagent id, for nested spawns"},
			"cascade":   map[string]any{"type": "boolean", "description": "cancel: also cancel children (default true)"},
			"timeout_ms": map[string]any{
				"type":        "integer",
				"description": "wait_for_completion: give up and return the current status after this many ms (default 30000)",
			},
		},
		"required":             []any{"action"},
		"additionalProperties": false,
	}
}

type params struct {
	Action       string   `json:"action"`
	ID           string   `json:"id"`
	Name         string   `json:"name"`
	Task         string   `json:"task"`
	AllowedTools []string `json:"allowed_tools"`
	DeniedTools  []string `json:"denied_tools"`
	ParentID     string   `json:"parent_id"`
	Cascade      *bool    `json:"cascade"`
	TimeoutMs    int      `json:"timeout_ms"`
}

func (t *Tool) Validate(raw json.RawMessage) error {
	var in params
	if err := json.Unmarshal(raw, &in); err != nil {
		return err
	}
	if strings.TrimSpace(in.Action) == "" {
		return fmt.Errorf("action is required")
	}
	switch in.Action {
	case "spawn":
		if strings.TrimSpace(in.Name) == "" || strings.TrimSpace(in.Task) == "" {
			return fmt.Errorf("name and task are required for spawn")
		}
	case "status", "cancel", "wait_for_completion":
		if strings.TrimSpace(in.ID) == "" {
			return fmt.Errorf("id is required for %s", in.Action)
		}
	case "list":
	default:
		return fmt.Errorf("unsupported action: %s", in.Action)
	}
	return nil
}

func (t *Tool) Execute(ec toolregistry.ExecContext, raw json.RawMessage) (toolregistry.Result, error) {
	if t.registry == nil {
		return toolregistry.ErrorResult("subagent registry unavailable"), nil
	}
	var in params
	if err := json.Unmarshal(raw, &in); err != nil {
		return toolregistry.ErrorResult(err.Error()), nil
	}

	ctx := ec.Context
	if ctx == nil {
		ctx = context.Background()
	}

	switch in.Action {
	case "spawn":
		return t.spawn(ctx, in)
	case "status":
		return t.status(in.ID)
	case "list":
		return t.list()
	case "cancel":
		return t.cancel(ctx, in)
	case "wait_for_completion":
		return t.waitForCompletion(ctx, in)
	default:
		return toolregistry.ErrorResult("unsupported action: " + in.Action), nil
	}
}

func (t *Tool) spawn(ctx context.Context, in params) (toolregistry.Result, error) {
	ref, err := t.registry.Spawn(ctx, subagents.SpawnParams{
		ParentID:     in.ParentID,
		Name:         in.Name,
		Task:         in.Task,
		AllowedTools: in.AllowedTools,
		DeniedTools:  in.DeniedTools,
	})
	if err != nil {
		return toolregistry.ErrorResult(fmt.Sprintf("spawn sub-agent: %v", err)), nil
	}
	return jsonResult(map[string]any{
		"id":     ref.ID,
		"name":   ref.Name,
		"status": ref.Status,
		"task":   ref.Task,
	})
}

func (t *Tool) status(id string) (toolregistry.Result, error) {
	ref, ok := t.registry.Get(id)
	if !ok {
		return toolregistry.ErrorResult("sub-agent not found: " + id), nil
	}
	return refResult(ref)
}

func (t *Tool) list() (toolregistry.Result, error) {
	refs := t.registry.List("")
	out := make([]map[string]any, 0, len(refs))
	for _, ref := range refs {
		out = append(out, map[string]any{
			"id": ref.ID, "name": ref.Name, "status": ref.Status, "task": truncate(ref.Task, 80),
		})
	}
	return jsonResult(map[string]any{"subagents": out})
}

func (t *Tool) cancel(ctx context.Context, in params) (toolregistry.Result, error) {
	cascade := true
	if in.Cascade != nil {
		cascade = *in.Cascade
	}
	if err := t.registry.Cancel(ctx, in.ID, cascade); err != nil {
		return toolregistry.ErrorResult(fmt.Sprintf("cancel sub-agent: %v", err)), nil
	}
	return jsonResult(map[string]any{"id": in.ID, "status": "cancelled"})
}

// waitForCompletion polls the registry until the run reaches a terminal
// status or timeout_ms elapses, per the wait contract.
func (t *Tool) waitForCompletion(ctx context.Context, in params) (toolregistry.Result, error) {
	timeout := time.Duration(in.TimeoutMs) * time.Millisecond
	if in.TimeoutMs <= 0 {
		timeout = 30 * time.Second
	}
	interval := t.pollInterval
	if interval <= 0 {
		interval = time.Millisecond
	}
	deadline := time.Now().Add(timeout)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		ref, ok := t.registry.Get(in.ID)
		if !ok {
			return toolregistry.ErrorResult("sub-agent not found: " + in.ID), nil
		}
		if isTerminal(ref.Status) || time.Now().After(deadline) {
			return refResult(ref)
		}
		select {
		case <-ctx.Done():
			return refResult(ref)
		case <-ticker.C:
		}
	}
}

func isTerminal(s subagents.Status) bool {
	switch s {
	case subagents.StatusCompleted, subagents.StatusFailed, subagents.StatusCancelled:
		return true
	default:
		return false
	}
}

func refResult(ref subagents.Ref) (toolregistry.Result, error) {
	content := ref.Result
	if ref.Status == subagents.StatusFailed {
		content = ref.Error
	}
	return jsonResult(map[string]any{
		"id":      ref.ID,
		"status":  ref.Status,
		"content": content,
	})
}

func jsonResult(payload any) (toolregistry.Result, error) {
	b, err := json.Marshal(payload)
	if err != nil {
		return toolregistry.ErrorResult(err.Error()), nil
	}
	return toolregistry.Result{Content: string(b)}, nil
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-3] + "..."
}
