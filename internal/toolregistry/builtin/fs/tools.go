package fs

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/relaygrid/orchestrator/internal/toolregistry"
)

// Config scopes the filesystem tools to a workspace root and read size cap.
type Config struct {
	Workspace    string
	MaxReadBytes int
}

const defaultMaxReadBytes = 200_000

// ReadTool reads a file from the workspace, optionally from a byte offset.
type ReadTool struct {
	resolver   Resolver
	maxReadLen int
}

// NewReadTool returns a read_file tool scoped to cfg.Workspace.
func NewReadTool(cfg Config) *ReadTool {
	maxLen := cfg.MaxReadBytes
	if maxLen <= 0 {
		maxLen = defaultMaxReadBytes
	}
	return &ReadTool{resolver: Resolver{Root: cfg.Workspace}, maxReadLen: maxLen}
}

func (t *ReadTool) Name() string        { return "read_file" }
func (t *ReadTool) Description() string { return "Read a file from the workspace." }
func (t *ReadTool) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"path":   map[string]any{"type": "string", "description": "Path relative to the workspace root."},
			"offset": map[string]any{"type": "integer", "description": "Byte offset to start reading from."},
		},
		"required":             []any{"path"},
		"additionalProperties": false,
	}
}

func (t *ReadTool) Validate(params json.RawMessage) error {
	var in struct {
		Path   string `json:"path"`
		Offset int    `json:"offset"`
	}
	if err := json.Unmarshal(params, &in); err != nil {
		return err
	}
	if strings.TrimSpace(in.Path) == "" {
		return fmt.Errorf("path is required")
	}
	return nil
}

func (t *ReadTool) Execute(ec toolregistry.ExecContext, params json.RawMessage) (toolregistry.Result, error) {
	var in struct {
		Path   string `json:"path"`
		Offset int    `json:"offset"`
	}
	if err := json.Unmarshal(params, &in); err != nil {
		return toolregistry.ErrorResult(err.Error()), nil
	}

	resolved, err := t.resolver.Resolve(in.Path)
	if err != nil {
		return toolregistry.ErrorResult(err.Error()), nil
	}

	data, err := os.ReadFile(resolved)
	if err != nil {
		return toolregistry.ErrorResult(fmt.Sprintf("read file: %v", err)), nil
	}
	if in.Offset > 0 && in.Offset < len(data) {
		data = data[in.Offset:]
	}
	if len(data) > t.maxReadLen {
		data = data[:t.maxReadLen]
	}
	return toolregistry.Result{Content: string(data)}, nil
}

// WriteTool creates or overwrites a file in the workspace. The tool itself
// does not ask for approval; any gate comes from the registry's ApprovalGate.
type WriteTool struct {
	resolver Resolver
}

// NewWriteTool returns a write_file tool scoped to cfg.Workspace.
func NewWriteTool(cfg Config) *WriteTool {
	return &WriteTool{resolver: Resolver{Root: cfg.Workspace}}
}

func (t *WriteTool) Name() string        { return "write_file" }
func (t *WriteTool) Description() string { return "Create or overwrite a file in the workspace." }
func (t *WriteTool) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"path":    map[string]any{"type": "string"},
			"content": map[string]any{"type": "string"},
		},
		"required":             []any{"path", "content"},
		"additionalProperties": false,
	}
}

func (t *WriteTool) Validate(params json.RawMessage) error {
	var in struct{ Path, Content string }
	if err := json.Unmarshal(params, &in); err != nil {
		return err
	}
	if strings.TrimSpace(in.Path) == "" {
		return fmt.Errorf("path is required")
	}
	return nil
}

func (t *WriteTool) Execute(ec toolregistry.ExecContext, params json.RawMessage) (toolregistry.Result, error) {
	var in struct {
		Path    string `json:"path"`
		Content string `json:"content"`
	}
	if err := json.Unmarshal(params, &in); err != nil {
		return toolregistry.ErrorResult(err.Error()), nil
	}

	resolved, err := t.resolver.Resolve(in.Path)
	if err != nil {
		return toolregistry.ErrorResult(err.Error()), nil
	}
	if err := os.WriteFile(resolved, []byte(in.Content), 0o644); err != nil {
		return toolregistry.ErrorResult(fmt.Sprintf("write file: %v", err)), nil
	}
	return toolregistry.Result{Content: fmt.Sprintf("wrote %d bytes to %s", len(in.Content), in.Path)}, nil
}

// EditTool applies find/replace edits to a file already in the workspace.
type EditTool struct {
	resolver Resolver
}

// NewEditTool returns an edit_file tool scoped to cfg.Workspace.
func NewEditTool(cfg Config) *EditTool {
	return &EditTool{resolver: Resolver{Root: cfg.Workspace}}
}

func (t *EditTool) Name() string { return "edit_file" }
func (t *EditTool) Description() string {
	return "Apply one or more find/replace edits to a file in the workspace."
}
func (t *EditTool) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"path": map[string]any{"type": "string"},
			"edits": map[string]any{
				"type": "array",
				"items": map[string]any{
					"type": "object",
					"properties": map[string]any{
						"old_text":    map[string]any{"type": "string"},
						"new_text":    map[string]any{"type": "string"},
						"replace_all": map[string]any{"type": "boolean"},
					},
					"required": []any{"old_text", "new_text"},
				},
			},
		},
		"required":             []any{"path", "edits"},
		"additionalProperties": false,
	}
}

func (t *EditTool) Validate(params json.RawMessage) error {
	var in struct {
		Path  string `json:"path"`
		Edits []any  `json:"edits"`
	}
	if err := json.Unmarshal(params, &in); err != nil {
		return err
	}
	if strings.TrimSpace(in.Path) == "" {
		return fmt.Errorf("path is required")
	}
	if len(in.Edits) == 0 {
		return fmt.Errorf("edits are required")
	}
	return nil
}

// Execute applies each edit in sequence. When an edit's ReplaceAll is
// false, old_text must occur exactly once in the file at that point — an
// edit matching zero or multiple times is ambiguous and rejected rather
// than silently picking the first occurrence.
func (t *EditTool) Execute(ec toolregistry.ExecContext, params json.RawMessage) (toolregistry.Result, error) {
	var in struct {
		Path  string `json:"path"`
		Edits []struct {
			OldText    string `json:"old_text"`
			NewText    string `json:"new_text"`
			ReplaceAll bool   `json:"replace_all"`
		} `json:"edits"`
	}
	if err := json.Unmarshal(params, &in); err != nil {
		return toolregistry.ErrorResult(err.Error()), nil
	}

	resolved, err := t.resolver.Resolve(in.Path)
	if err != nil {
		return toolregistry.ErrorResult(err.Error()), nil
	}

	data, err := os.ReadFile(resolved)
	if err != nil {
		return toolregistry.ErrorResult(fmt.Sprintf("read file: %v", err)), nil
	}

	content := string(data)
	replacements := 0
	for _, edit := range in.Edits {
		if edit.OldText == "" {
			return toolregistry.ErrorResult("old_text is required"), nil
		}
		count := strings.Count(content, edit.OldText)
		if count == 0 {
			return toolregistry.ErrorResult("old_text not found"), nil
		}
		if edit.ReplaceAll {
			content = strings.ReplaceAll(content, edit.OldText, edit.NewText)
			replacements += count
		} else {
			if count > 1 {
				return toolregistry.ErrorResult(fmt.Sprintf("old_text matches %d times; pass replace_all or make old_text unique", count)), nil
			}
			content = strings.Replace(content, edit.OldText, edit.NewText, 1)
			replacements++
		}
	}

	if err := os.WriteFile(resolved, []byte(content), 0o644); err != nil {
		return toolregistry.ErrorResult(fmt.Sprintf("write file: %v", err)), nil
	}
	return toolregistry.Result{Content: fmt.Sprintf("applied %d replacement(s) to %s", replacements, in.Path)}, nil
}
