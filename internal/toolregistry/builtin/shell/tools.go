package shell

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/relaygrid/orchestrator/internal/toolregistry"
)

// ExecTool runs shell commands scoped to a workspace. A command containing
// unquoted shell metacharacters (chaining, piping, redirection, subshells,
// backgrounding) trips the approval gate unless the caller is already
// re-executing an approved call.
type ExecTool struct {
	manager *Manager
}

// NewExecTool returns a shell_exec tool backed by manager.
func NewExecTool(manager *Manager) *ExecTool {
	return &ExecTool{manager: manager}
}

func (t *ExecTool) Name() string        { return "shell_exec" }
func (t *ExecTool) Description() string { return "Run a shell command in the workspace." }
func (t *ExecTool) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"command":         map[string]any{"type": "string"},
			"cwd":             map[string]any{"type": "string"},
			"env":             map[string]any{"type": "object"},
			"input":           map[string]any{"type": "string"},
			"timeout_seconds": map[string]any{"type": "integer", "minimum": 0},
			"background":      map[string]any{"type": "boolean"},
		},
		"required":             []any{"command"},
		"additionalProperties": false,
	}
}

type execParams struct {
	Command        string            `json:"command"`
	Cwd            string            `json:"cwd"`
	Env            map[string]string `json:"env"`
	Input          string            `json:"input"`
	TimeoutSeconds int               `json:"timeout_seconds"`
	Background     bool              `json:"background"`
}

func (t *ExecTool) Validate(params json.RawMessage) error {
	var in execParams
	if err := json.Unmarshal(params, &in); err != nil {
		return err
	}
	if strings.TrimSpace(in.Command) == "" {
		return fmt.Errorf("command is required")
	}
	return nil
}

func (t *ExecTool) Execute(ec toolregistry.ExecContext, params json.RawMessage) (toolregistry.Result, error) {
	if t.manager == nil {
		return toolregistry.ErrorResult("exec manager unavailable"), nil
	}
	var in execParams
	if err := json.Unmarshal(params, &in); err != nil {
		return toolregistry.ErrorResult(err.Error()), nil
	}
	command := strings.TrimSpace(in.Command)
	if command == "" {
		return toolregistry.ErrorResult("command is required"), nil
	}

	if !ec.Approved && !IsSafeCommand(command) {
		return toolregistry.ApprovalRequired(UnsafeReason(command)), nil
	}

	ctx := ec.Context
	if ctx == nil {
		ctx = context.Background()
	}
	timeout := time.Duration(in.TimeoutSeconds) * time.Second

	if in.Background {
		proc, err := t.manager.startBackground(ctx, command, in.Cwd, in.Env, in.Input, timeout)
		if err != nil {
			return toolregistry.ErrorResult(err.Error()), nil
		}
		payload, _ := json.MarshalIndent(map[string]any{"status": "running", "process_id": proc.id}, "", "  ")
		return toolregistry.Result{Content: string(payload)}, nil
	}

	result, err := t.manager.runSync(ctx, command, in.Cwd, in.Env, in.Input, timeout)
	if err != nil {
		return toolregistry.ErrorResult(err.Error()), nil
	}
	payload, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return toolregistry.ErrorResult(fmt.Sprintf("encode result: %v", err)), nil
	}
	return toolregistry.Result{Content: string(payload)}, nil
}

// ProcessTool inspects and manages background shell processes.
type ProcessTool struct {
	manager *Manager
}

// NewProcessTool returns a process tool backed by manager.
func NewProcessTool(manager *Manager) *ProcessTool {
	return &ProcessTool{manager: manager}
}

func (t *ProcessTool) Name() string { return "process" }
func (t *ProcessTool) Description() string {
	return "Manage background shell processes (list, status, log, write, kill, remove)."
}
func (t *ProcessTool) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"action":     map[string]any{"type": "string"},
			"process_id": map[string]any{"type": "string"},
			"input":      map[string]any{"type": "string"},
		},
		"required":             []any{"action"},
		"additionalProperties": false,
	}
}

type processParams struct {
	Action    string `json:"action"`
	ProcessID string `json:"process_id"`
	Input     string `json:"input"`
}

func (t *ProcessTool) Validate(params json.RawMessage) error {
	var in processParams
	if err := json.Unmarshal(params, &in); err != nil {
		return err
	}
	if strings.TrimSpace(in.Action) == "" {
		return fmt.Errorf("action is required")
	}
	return nil
}

func (t *ProcessTool) Execute(ec toolregistry.ExecContext, params json.RawMessage) (toolregistry.Result, error) {
	if t.manager == nil {
		return toolregistry.ErrorResult("process manager unavailable"), nil
	}
	var in processParams
	if err := json.Unmarshal(params, &in); err != nil {
		return toolregistry.ErrorResult(err.Error()), nil
	}
	action := strings.ToLower(strings.TrimSpace(in.Action))

	if action == "list" {
		payload, _ := json.MarshalIndent(map[string]any{"processes": t.manager.list()}, "", "  ")
		return toolregistry.Result{Content: string(payload)}, nil
	}

	if strings.TrimSpace(in.ProcessID) == "" {
		return toolregistry.ErrorResult("process_id is required"), nil
	}
	proc, ok := t.manager.get(strings.TrimSpace(in.ProcessID))
	if !ok {
		return toolregistry.ErrorResult("process not found"), nil
	}

	switch action {
	case "status":
		payload, _ := json.MarshalIndent(proc.info(), "", "  ")
		return toolregistry.Result{Content: string(payload)}, nil
	case "log":
		payload, _ := json.MarshalIndent(map[string]any{
			"stdout": proc.stdout.String(),
			"stderr": proc.stderr.String(),
			"status": proc.status(),
		}, "", "  ")
		return toolregistry.Result{Content: string(payload)}, nil
	case "write":
		if proc.stdin == nil {
			return toolregistry.ErrorResult("process stdin unavailable"), nil
		}
		if in.Input == "" {
			return toolregistry.ErrorResult("input is required"), nil
		}
		if _, err := proc.stdin.Write([]byte(in.Input)); err != nil {
			return toolregistry.ErrorResult(fmt.Sprintf("write stdin: %v", err)), nil
		}
		return toolregistry.Result{Content: `{"status":"written"}`}, nil
	case "kill":
		if proc.cmd.Process == nil {
			return toolregistry.ErrorResult("process not running"), nil
		}
		if err := proc.cmd.Process.Kill(); err != nil {
			return toolregistry.ErrorResult(fmt.Sprintf("kill process: %v", err)), nil
		}
		return toolregistry.Result{Content: `{"status":"killed"}`}, nil
	case "remove":
		if proc.status() == "running" {
			return toolregistry.ErrorResult("process still running"), nil
		}
		if !t.manager.remove(proc.id) {
			return toolregistry.ErrorResult("remove failed"), nil
		}
		return toolregistry.Result{Content: `{"status":"removed"}`}, nil
	default:
		return toolregistry.ErrorResult("unsupported action"), nil
	}
}
