package admin

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/relaygrid/orchestrator/internal/toolregistry"
)

// Skill is an upsertable named prompt/persona fragment the router can splice
// into a provider request. RuntimeAdmin is the only writer; the router only
// reads.
type Skill struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Content     string `json:"content"`
}

// DynamicToolSpec describes an installable shell tool: name, description,
// parameter schema, a command template with `{{param}}` placeholders, an
// optional working directory, and whether invocation requires approval.
type DynamicToolSpec struct {
	Name             string         `json:"name"`
	Description      string         `json:"description"`
	Schema           map[string]any `json:"schema"`
	CommandTemplate  string         `json:"command_template"`
	WorkingDir       string         `json:"working_dir,omitempty"`
	RequiresApproval bool           `json:"requires_approval"`
}

// MCPServerEntry is one entry in the `.mcp.json` server table.
type MCPServerEntry struct {
	Command string            `json:"command,omitempty"`
	Args    []string          `json:"args,omitempty"`
	URL     string            `json:"url,omitempty"`
	Env     map[string]string `json:"env,omitempty"`
}

type mcpFile struct {
	MCPServers      map[string]MCPServerEntry `json:"mcpServers,omitempty"`
	MCPServersSnake map[string]MCPServerEntry `json:"mcp_servers,omitempty"`
}

// RuntimeStore persists skills, dynamic shell tools, and MCP server entries.
// Dynamic tools are stored under storeDir/tools.json; MCP entries under
// mcpPath (`.mcp.json`, reading both the mcpServers and mcp_servers keys).
type RuntimeStore struct {
	mu sync.Mutex

	storeDir string
	mcpPath  string

	skills map[string]Skill
	tools  map[string]DynamicToolSpec
	mcp    map[string]MCPServerEntry
}

// NewRuntimeStore returns a store persisting dynamic tools under
// storeDir/tools.json and MCP entries under mcpPath. Either path may be
// empty to disable that half's persistence (in-memory only).
func NewRuntimeStore(storeDir, mcpPath string) (*RuntimeStore, error) {
	s := &RuntimeStore{
		storeDir: storeDir,
		mcpPath:  mcpPath,
		skills:   make(map[string]Skill),
		tools:    make(map[string]DynamicToolSpec),
		mcp:      make(map[string]MCPServerEntry),
	}
	if storeDir != "" {
		if err := os.MkdirAll(storeDir, 0o755); err != nil {
			return nil, fmt.Errorf("runtimeadmin: create store dir: %w", err)
		}
		if err := s.loadTools(); err != nil {
			return nil, err
		}
	}
	if mcpPath != "" {
		if err := s.loadMCP(); err != nil {
			return nil, err
		}
	}
	return s, nil
}

func (s *RuntimeStore) toolsPath() string { return filepath.Join(s.storeDir, "tools.json") }

func (s *RuntimeStore) loadTools() error {
	data, err := os.ReadFile(s.toolsPath())
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("runtimeadmin: read tools store: %w", err)
	}
	var tools map[string]DynamicToolSpec
	if err := json.Unmarshal(data, &tools); err != nil {
		return fmt.Errorf("runtimeadmin: parse tools store: %w", err)
	}
	s.tools = tools
	return nil
}

func (s *RuntimeStore) saveTools() error {
	if s.storeDir == "" {
		return nil
	}
	data, err := json.MarshalIndent(s.tools, "", "  ")
	if err != nil {
		return fmt.Errorf("runtimeadmin: marshal tools store: %w", err)
	}
	return atomicWrite(s.toolsPath(), data)
}

func (s *RuntimeStore) loadMCP() error {
	data, err := os.ReadFile(s.mcpPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("runtimeadmin: read mcp store: %w", err)
	}
	var f mcpFile
	if err := json.Unmarshal(data, &f); err != nil {
		return fmt.Errorf("runtimeadmin: parse mcp store: %w", err)
	}
	merged := make(map[string]MCPServerEntry, len(f.MCPServers)+len(f.MCPServersSnake))
	for k, v := range f.MCPServersSnake {
		merged[k] = v
	}
	for k, v := range f.MCPServers {
		merged[k] = v
	}
	s.mcp = merged
	return nil
}

func (s *RuntimeStore) saveMCP() error {
	if s.mcpPath == "" {
		return nil
	}
	data, err := json.MarshalIndent(mcpFile{MCPServers: s.mcp}, "", "  ")
	if err != nil {
		return fmt.Errorf("runtimeadmin: marshal mcp store: %w", err)
	}
	return atomicWrite(s.mcpPath, data)
}

// UpsertSkill installs or replaces a skill.
func (s *RuntimeStore) UpsertSkill(skill Skill) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.skills[skill.Name] = skill
}

// Skills returns all skills sorted by name.
func (s *RuntimeStore) Skills() []Skill {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Skill, 0, len(s.skills))
	for _, sk := range s.skills {
		out = append(out, sk)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// InstallTool persists spec keyed by name, replacing any prior tool of the
// same name.
func (s *RuntimeStore) InstallTool(spec DynamicToolSpec) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	prev, existed := s.tools[spec.Name]
	s.tools[spec.Name] = spec
	if err := s.saveTools(); err != nil {
		if existed {
			s.tools[spec.Name] = prev
		} else {
			delete(s.tools, spec.Name)
		}
		return err
	}
	return nil
}

// UninstallTool removes the named dynamic tool, reporting whether it existed.
func (s *RuntimeStore) UninstallTool(name string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	prev, existed := s.tools[name]
	if !existed {
		return false, nil
	}
	delete(s.tools, name)
	if err := s.saveTools(); err != nil {
		s.tools[name] = prev
		return false, err
	}
	return true, nil
}

// Tools returns the current dynamic tool set — the atomic snapshot
// set_dynamic_tools(list) replaces built-ins never see.
func (s *RuntimeStore) Tools() []DynamicToolSpec {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]DynamicToolSpec, 0, len(s.tools))
	for _, t := range s.tools {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// SetMCPServer upserts an MCP server entry.
func (s *RuntimeStore) SetMCPServer(id string, entry MCPServerEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	prev, existed := s.mcp[id]
	s.mcp[id] = entry
	if err := s.saveMCP(); err != nil {
		if existed {
			s.mcp[id] = prev
		} else {
			delete(s.mcp, id)
		}
		return err
	}
	return nil
}

// RemoveMCPServer removes the named MCP server entry.
func (s *RuntimeStore) RemoveMCPServer(id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	prev, existed := s.mcp[id]
	if !existed {
		return false, nil
	}
	delete(s.mcp, id)
	if err := s.saveMCP(); err != nil {
		s.mcp[id] = prev
		return false, err
	}
	return true, nil
}

// MCPServers returns the current MCP server table.
func (s *RuntimeStore) MCPServers() map[string]MCPServerEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]MCPServerEntry, len(s.mcp))
	for k, v := range s.mcp {
		out[k] = v
	}
	return out
}

func atomicWrite(path string, data []byte) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".runtimeadmin-*.tmp")
	if err != nil {
		return fmt.Errorf("atomic write: create temp: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("atomic write: write: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("atomic write: close: %w", err)
	}
	if err := os.Chmod(tmpPath, 0o600); err != nil {
		return fmt.Errorf("atomic write: chmod: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("atomic write: rename: %w", err)
	}
	return nil
}

// RuntimeAdminTool exposes skill/dynamic-tool/MCP-server management.
type RuntimeAdminTool struct {
	store *RuntimeStore
}

// NewRuntimeAdminTool returns a runtime_admin tool backed by store.
func NewRuntimeAdminTool(store *RuntimeStore) *RuntimeAdminTool {
	return &RuntimeAdminTool{store: store}
}

func (t *RuntimeAdminTool) Name() string { return "runtime_admin" }
func (t *RuntimeAdminTool) Description() string {
	return "Manage skills, installable shell tools, and MCP server entries " +
		"(upsert_skill/list_skills/install_tool/uninstall_tool/list_tools/set_mcp_server/remove_mcp_server/list_mcp_servers)."
}
func (t *RuntimeAdminTool) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"action":            map[string]any{"type": "string"},
			"name":              map[string]any{"type": "string"},
			"description":       map[string]any{"type": "string"},
			"content":           map[string]any{"type": "string"},
			"schema":            map[string]any{"type": "object"},
			"command_template":  map[string]any{"type": "string"},
			"working_dir":       map[string]any{"type": "string"},
			"requires_approval": map[string]any{"type": "boolean"},
			"server_id":         map[string]any{"type": "string"},
			"command":           map[string]any{"type": "string"},
			"args":              map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
			"url":               map[string]any{"type": "string"},
			"env":               map[string]any{"type": "object"},
		},
		"required":             []any{"action"},
		"additionalProperties": false,
	}
}

type runtimeAdminParams struct {
	Action           string            `json:"action"`
	Name             string            `json:"name"`
	Description      string            `json:"description"`
	Content          string            `json:"content"`
	Schema           map[string]any    `json:"schema"`
	CommandTemplate  string            `json:"command_template"`
	WorkingDir       string            `json:"working_dir"`
	RequiresApproval bool              `json:"requires_approval"`
	ServerID         string            `json:"server_id"`
	Command          string            `json:"command"`
	Args             []string          `json:"args"`
	URL              string            `json:"url"`
	Env              map[string]string `json:"env"`
}

func (t *RuntimeAdminTool) Validate(params json.RawMessage) error {
	var in runtimeAdminParams
	if err := json.Unmarshal(params, &in); err != nil {
		return err
	}
	if strings.TrimSpace(in.Action) == "" {
		return fmt.Errorf("action is required")
	}
	return nil
}

func (t *RuntimeAdminTool) Execute(ec toolregistry.ExecContext, params json.RawMessage) (toolregistry.Result, error) {
	if t.store == nil {
		return toolregistry.ErrorResult("runtime admin store unavailable"), nil
	}
	var in runtimeAdminParams
	if err := json.Unmarshal(params, &in); err != nil {
		return toolregistry.ErrorResult(err.Error()), nil
	}

	switch strings.ToLower(strings.TrimSpace(in.Action)) {
	case "upsert_skill":
		name := strings.TrimSpace(in.Name)
		if name == "" {
			return toolregistry.ErrorResult("name is required"), nil
		}
		t.store.UpsertSkill(Skill{Name: name, Description: in.Description, Content: in.Content})
		return jsonResult(map[string]any{"status": "upserted", "name": name})

	case "list_skills":
		return jsonResult(map[string]any{"skills": t.store.Skills()})

	case "install_tool":
		name := strings.TrimSpace(in.Name)
		if name == "" {
			return toolregistry.ErrorResult("name is required"), nil
		}
		if strings.TrimSpace(in.CommandTemplate) == "" {
			return toolregistry.ErrorResult("command_template is required"), nil
		}
		if !ec.Approved {
			return toolregistry.ApprovalRequired(fmt.Sprintf("installing shell tool %q requires approval", name)), nil
		}
		spec := DynamicToolSpec{
			Name:             name,
			Description:      in.Description,
			Schema:           in.Schema,
			CommandTemplate:  in.CommandTemplate,
			WorkingDir:       in.WorkingDir,
			RequiresApproval: in.RequiresApproval,
		}
		if err := t.store.InstallTool(spec); err != nil {
			return toolregistry.ErrorResult(fmt.Sprintf("install tool: %v", err)), nil
		}
		return jsonResult(map[string]any{"status": "installed", "tool": spec})

	case "uninstall_tool":
		name := strings.TrimSpace(in.Name)
		if name == "" {
			return toolregistry.ErrorResult("name is required"), nil
		}
		existed, err := t.store.UninstallTool(name)
		if err != nil {
			return toolregistry.ErrorResult(fmt.Sprintf("uninstall tool: %v", err)), nil
		}
		return jsonResult(map[string]any{"status": "uninstalled", "name": name, "existed": existed})

	case "list_tools":
		return jsonResult(map[string]any{"tools": t.store.Tools()})

	case "set_mcp_server":
		id := strings.TrimSpace(in.ServerID)
		if id == "" {
			return toolregistry.ErrorResult("server_id is required"), nil
		}
		if !ec.Approved {
			return toolregistry.ApprovalRequired(fmt.Sprintf("registering MCP server %q requires approval", id)), nil
		}
		entry := MCPServerEntry{Command: in.Command, Args: in.Args, URL: in.URL, Env: in.Env}
		if err := t.store.SetMCPServer(id, entry); err != nil {
			return toolregistry.ErrorResult(fmt.Sprintf("set mcp server: %v", err)), nil
		}
		return jsonResult(map[string]any{"status": "set", "server_id": id})

	case "remove_mcp_server":
		id := strings.TrimSpace(in.ServerID)
		if id == "" {
			return toolregistry.ErrorResult("server_id is required"), nil
		}
		existed, err := t.store.RemoveMCPServer(id)
		if err != nil {
			return toolregistry.ErrorResult(fmt.Sprintf("remove mcp server: %v", err)), nil
		}
		return jsonResult(map[string]any{"status": "removed", "server_id": id, "existed": existed})

	case "list_mcp_servers":
		return jsonResult(map[string]any{"servers": t.store.MCPServers()})

	default:
		return toolregistry.ErrorResult("unsupported action"), nil
	}
}
