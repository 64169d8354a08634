package subagent

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/relaygrid/orchestrator/internal/subagents"
	"github.com/relaygrid/orchestrator/internal/toolregistry"
)

func newTestTool() *Tool {
	controller := subagents.ControllerFunc(func(ctx context.Context, req subagents.ControllerRequest) (subagents.ControllerResponse, error) {
		return subagents.ControllerResponse{Done: true, FinalAnswer: "42"}, nil
	})
	r := subagents.NewRegistry(subagents.Deps{Controller: controller}, subagents.Options{})
	tool := New(r)
	tool.pollInterval = 0
	return tool
}

func TestSpawnThenWaitForCompletion(t *testing.T) {
	tool := newTestTool()
	ec := toolregistry.ExecContext{Context: context.Background()}

	spawnRes, err := tool.Execute(ec, json.RawMessage(`{"action":"spawn","name":"researcher","task":"find the answer"}`))
	if err != nil || spawnRes.IsError {
		t.Fatalf("spawn failed: %+v err=%v", spawnRes, err)
	}
	var spawned struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal([]byte(spawnRes.Content), &spawned); err != nil {
		t.Fatalf("unmarshal spawn result: %v", err)
	}
	if spawned.ID == "" {
		t.Fatal("expected a non-empty id")
	}

	waitRes, err := tool.Execute(ec, json.RawMessage(`{"action":"wait_for_completion","id":"`+spawned.ID+`"}`))
	if err != nil {
		t.Fatalf("wait_for_completion error = %v", err)
	}
	var out struct {
		Status  string `json:"status"`
		Content string `json:"content"`
	}
	if err := json.Unmarshal([]byte(waitRes.Content), &out); err != nil {
		t.Fatalf("unmarshal wait result: %v", err)
	}
	if out.Status != "completed" || out.Content != "42" {
		t.Fatalf("unexpected wait_for_completion result: %+v", out)
	}
}

func TestValidateRejectsMissingFields(t *testing.T) {
	tool := newTestTool()
	if err := tool.Validate(json.RawMessage(`{"action":"spawn"}`)); err == nil {
		t.Fatal("expected validation error for spawn without name/task")
	}
	if err := tool.Validate(json.RawMessage(`{"action":"status"}`)); err == nil {
		t.Fatal("expected validation error for status without id")
	}
	if err := tool.Validate(json.RawMessage(`{"action":"list"}`)); err != nil {
		t.Fatalf("list should validate with no extra fields, got %v", err)
	}
}

func TestStatusUnknownID(t *testing.T) {
	tool := newTestTool()
	res, err := tool.Execute(toolregistry.ExecContext{Context: context.Background()}, json.RawMessage(`{"action":"status","id":"missing"}`))
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if !res.IsError {
		t.Fatalf("expected error result for unknown id, got %+v", res)
	}
}

func TestListReturnsSpawnedRuns(t *testing.T) {
	tool := newTestTool()
	ec := toolregistry.ExecContext{Context: context.Background()}
	if _, err := tool.Execute(ec, json.RawMessage(`{"action":"spawn","name":"a","task":"t"}`)); err != nil {
		t.Fatalf("spawn error = %v", err)
	}
	res, err := tool.Execute(ec, json.RawMessage(`{"action":"list"}`))
	if err != nil || res.IsError {
		t.Fatalf("list failed: %+v err=%v", res, err)
	}
	var out struct {
		Subagents []map[string]any `json:"subagents"`
	}
	if err := json.Unmarshal([]byte(res.Content), &out); err != nil {
		t.Fatalf("unmarshal list result: %v", err)
	}
	if len(out.Subagents) != 1 {
		t.Fatalf("expected 1 subagent, got %d", len(out.Subagents))
	}
}
