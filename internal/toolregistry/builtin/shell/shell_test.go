package shell

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/relaygrid/orchestrator/internal/toolregistry"
)

func TestIsSafeCommandRespectsQuotes(t *testing.T) {
	cases := []struct {
		cmd  string
		safe bool
	}{
		{"echo hello", true},
		{"echo 'a; b'", true},
		{"echo a; rm -rf /", false},
		{"echo $(whoami)", false},
		{"grep foo bar.txt | sort", false},
		{`echo "pipe | inside quotes"`, true},
	}
	for _, tc := range cases {
		if got := IsSafeCommand(tc.cmd); got != tc.safe {
			t.Errorf("IsSafeCommand(%q) = %v, want %v", tc.cmd, got, tc.safe)
		}
	}
}

func TestExecToolRunsSafeCommand(t *testing.T) {
	dir := t.TempDir()
	tool := NewExecTool(NewManager(dir))

	params, _ := json.Marshal(map[string]any{"command": "echo hello"})
	res, err := tool.Execute(toolregistry.ExecContext{}, params)
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if res.IsError {
		t.Fatalf("Execute() = %+v, want success", res)
	}
	var out ExecResult
	if err := json.Unmarshal([]byte(res.Content), &out); err != nil {
		t.Fatalf("unmarshal result: %v", err)
	}
	if !strings.Contains(out.Stdout, "hello") {
		t.Errorf("Stdout = %q, want to contain %q", out.Stdout, "hello")
	}
}

func TestExecToolGatesUnsafeCommand(t *testing.T) {
	dir := t.TempDir()
	tool := NewExecTool(NewManager(dir))

	params, _ := json.Marshal(map[string]any{"command": "echo a; echo b"})
	res, err := tool.Execute(toolregistry.ExecContext{}, params)
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if !toolregistry.IsApprovalRequired(res) {
		t.Fatalf("Execute() = %+v, want approval_required", res)
	}
}

func TestExecToolApprovedBypassesGate(t *testing.T) {
	dir := t.TempDir()
	tool := NewExecTool(NewManager(dir))

	params, _ := json.Marshal(map[string]any{"command": "echo a; echo b"})
	res, err := tool.Execute(toolregistry.ExecContext{Approved: true}, params)
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if res.IsError {
		t.Fatalf("Execute() (approved) = %+v, want success", res)
	}
}

func TestProcessToolListEmpty(t *testing.T) {
	tool := NewProcessTool(NewManager(t.TempDir()))
	params, _ := json.Marshal(map[string]any{"action": "list"})
	res, err := tool.Execute(toolregistry.ExecContext{}, params)
	if err != nil || res.IsError {
		t.Fatalf("Execute() = %+v, %v", res, err)
	}
}
