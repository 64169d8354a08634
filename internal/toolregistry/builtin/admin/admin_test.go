package admin

import (
	"context"
	"encoding/json"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/relaygrid/orchestrator/internal/cronsched"
	"github.com/relaygrid/orchestrator/internal/secretvault"
	"github.com/relaygrid/orchestrator/internal/toolregistry"
)

func mustExecute(t *testing.T, tool toolregistry.Tool, ec toolregistry.ExecContext, args map[string]any) toolregistry.Result {
	t.Helper()
	params, err := json.Marshal(args)
	if err != nil {
		t.Fatalf("marshal args: %v", err)
	}
	res, err := tool.Execute(ec, params)
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	return res
}

func TestMemoryRememberRecallSearchForget(t *testing.T) {
	tool := NewMemoryTool(NewMemoryStore())
	ec := toolregistry.ExecContext{Context: context.Background()}

	res := mustExecute(t, tool, ec, map[string]any{"action": "remember", "key": "nickname", "value": "the user prefers terse replies"})
	if res.IsError {
		t.Fatalf("remember: %+v", res)
	}

	res = mustExecute(t, tool, ec, map[string]any{"action": "recall", "key": "nickname"})
	if res.IsError || !strings.Contains(res.Content, "terse replies") {
		t.Fatalf("recall: %+v", res)
	}

	res = mustExecute(t, tool, ec, map[string]any{"action": "search", "query": "terse"})
	if res.IsError || !strings.Contains(res.Content, "nickname") {
		t.Fatalf("search: %+v", res)
	}

	res = mustExecute(t, tool, ec, map[string]any{"action": "forget", "key": "nickname"})
	if res.IsError {
		t.Fatalf("forget: %+v", res)
	}
	res = mustExecute(t, tool, ec, map[string]any{"action": "recall", "key": "nickname"})
	if !res.IsError {
		t.Error("expected error recalling a forgotten key")
	}
}

func TestDecisionRecordAndList(t *testing.T) {
	tool := NewDecisionTool(NewDecisionLog())
	ec := toolregistry.ExecContext{Context: context.Background()}

	res := mustExecute(t, tool, ec, map[string]any{"action": "record", "task_id": "t1", "summary": "use sqlite by default", "rationale": "no external DB dependency for local dev"})
	if res.IsError {
		t.Fatalf("record: %+v", res)
	}

	res = mustExecute(t, tool, ec, map[string]any{"action": "list", "task_id": "t1"})
	if res.IsError || !strings.Contains(res.Content, "use sqlite by default") {
		t.Fatalf("list: %+v", res)
	}
}

func TestDecisionRecordRequiresSummary(t *testing.T) {
	tool := NewDecisionTool(NewDecisionLog())
	res := mustExecute(t, tool, toolregistry.ExecContext{Context: context.Background()}, map[string]any{"action": "record"})
	if !res.IsError {
		t.Error("expected error for missing summary")
	}
}

func TestPromiseSetListCancel(t *testing.T) {
	dir := t.TempDir()
	scheduler, err := cronsched.NewScheduler(filepath.Join(dir, "leases"))
	if err != nil {
		t.Fatalf("NewScheduler() error = %v", err)
	}
	store := NewPromiseStore()
	tool := NewPromiseTool(scheduler, store, func(ec toolregistry.ExecContext, p *Promise) error { return nil })
	ec := toolregistry.ExecContext{Context: context.Background()}

	when := time.Now().Add(time.Hour).UTC().Format(time.RFC3339)
	res := mustExecute(t, tool, ec, map[string]any{"action": "set", "message": "follow up with the user", "when": when})
	if res.IsError {
		t.Fatalf("set: %+v", res)
	}
	var setResp struct {
		Promise Promise `json:"promise"`
	}
	if err := json.Unmarshal([]byte(res.Content), &setResp); err != nil {
		t.Fatalf("unmarshal set response: %v", err)
	}
	if setResp.Promise.ID == "" {
		t.Fatal("expected a promise id")
	}

	res = mustExecute(t, tool, ec, map[string]any{"action": "list"})
	if res.IsError || !strings.Contains(res.Content, "follow up with the user") {
		t.Fatalf("list: %+v", res)
	}

	res = mustExecute(t, tool, ec, map[string]any{"action": "cancel", "id": setResp.Promise.ID})
	if res.IsError {
		t.Fatalf("cancel: %+v", res)
	}

	res = mustExecute(t, tool, ec, map[string]any{"action": "list"})
	if res.IsError || strings.Contains(res.Content, "follow up with the user") {
		t.Fatalf("expected cancelled promise excluded from active list: %+v", res)
	}
}

func TestPromiseRejectsPastTime(t *testing.T) {
	dir := t.TempDir()
	scheduler, _ := cronsched.NewScheduler(filepath.Join(dir, "leases"))
	tool := NewPromiseTool(scheduler, NewPromiseStore(), nil)
	res := mustExecute(t, tool, toolregistry.ExecContext{Context: context.Background()}, map[string]any{
		"action": "set", "message": "too late", "when": "2000-01-01T00:00:00Z",
	})
	if !res.IsError {
		t.Error("expected error for a promise set in the past")
	}
}

func TestSecretSetListGateGet(t *testing.T) {
	dir := t.TempDir()
	vault, err := secretvault.Open(dir)
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	tool := NewSecretTool(vault)
	ec := toolregistry.ExecContext{Context: context.Background()}

	res := mustExecute(t, tool, ec, map[string]any{"action": "set", "name": "api_key", "value": "sk-test"})
	if res.IsError {
		t.Fatalf("set: %+v", res)
	}

	res = mustExecute(t, tool, ec, map[string]any{"action": "list"})
	if res.IsError || !strings.Contains(res.Content, "api_key") {
		t.Fatalf("list: %+v", res)
	}

	res = mustExecute(t, tool, ec, map[string]any{"action": "get", "name": "api_key"})
	if !toolregistry.IsApprovalRequired(res) {
		t.Fatalf("expected get to require approval, got %+v", res)
	}

	approved := ec
	approved.Approved = true
	res = mustExecute(t, tool, approved, map[string]any{"action": "get", "name": "api_key"})
	if res.IsError || !strings.Contains(res.Content, "sk-test") {
		t.Fatalf("approved get: %+v", res)
	}
}

func TestRuntimeAdminSkillsToolsAndMCP(t *testing.T) {
	dir := t.TempDir()
	store, err := NewRuntimeStore(filepath.Join(dir, "custom-tools"), filepath.Join(dir, ".mcp.json"))
	if err != nil {
		t.Fatalf("NewRuntimeStore() error = %v", err)
	}
	tool := NewRuntimeAdminTool(store)
	ec := toolregistry.ExecContext{Context: context.Background(), Approved: true}

	res := mustExecute(t, tool, ec, map[string]any{"action": "upsert_skill", "name": "reviewer", "content": "Review code for bugs."})
	if res.IsError {
		t.Fatalf("upsert_skill: %+v", res)
	}
	res = mustExecute(t, tool, ec, map[string]any{"action": "list_skills"})
	if res.IsError || !strings.Contains(res.Content, "reviewer") {
		t.Fatalf("list_skills: %+v", res)
	}

	res = mustExecute(t, tool, ec, map[string]any{
		"action": "install_tool", "name": "disk_usage", "command_template": "du -sh {{path}}",
	})
	if res.IsError {
		t.Fatalf("install_tool: %+v", res)
	}
	res = mustExecute(t, tool, ec, map[string]any{"action": "list_tools"})
	if res.IsError || !strings.Contains(res.Content, "disk_usage") {
		t.Fatalf("list_tools: %+v", res)
	}
	res = mustExecute(t, tool, ec, map[string]any{"action": "uninstall_tool", "name": "disk_usage"})
	if res.IsError {
		t.Fatalf("uninstall_tool: %+v", res)
	}

	res = mustExecute(t, tool, ec, map[string]any{
		"action": "set_mcp_server", "server_id": "filesystem", "command": "mcp-server-filesystem",
	})
	if res.IsError {
		t.Fatalf("set_mcp_server: %+v", res)
	}
	res = mustExecute(t, tool, ec, map[string]any{"action": "list_mcp_servers"})
	if res.IsError || !strings.Contains(res.Content, "filesystem") {
		t.Fatalf("list_mcp_servers: %+v", res)
	}
	res = mustExecute(t, tool, ec, map[string]any{"action": "remove_mcp_server", "server_id": "filesystem"})
	if res.IsError {
		t.Fatalf("remove_mcp_server: %+v", res)
	}
}

func TestRuntimeAdminInstallToolGatesWithoutApproval(t *testing.T) {
	store, err := NewRuntimeStore("", "")
	if err != nil {
		t.Fatalf("NewRuntimeStore() error = %v", err)
	}
	tool := NewRuntimeAdminTool(store)
	res := mustExecute(t, tool, toolregistry.ExecContext{Context: context.Background()}, map[string]any{
		"action": "install_tool", "name": "disk_usage", "command_template": "du -sh {{path}}",
	})
	if !toolregistry.IsApprovalRequired(res) {
		t.Fatalf("expected install_tool to require approval, got %+v", res)
	}
}
