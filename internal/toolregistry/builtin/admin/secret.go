package admin

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/relaygrid/orchestrator/internal/secretvault"
	"github.com/relaygrid/orchestrator/internal/toolregistry"
)

// SecretTool wraps internal/secretvault.Vault: set/get/list/delete named
// secrets. get/delete are high-privilege and always trip the approval gate
// unless the call is already a re-execution with __approved — a secret
// value must never reach the model or a channel without an explicit nod.
type SecretTool struct {
	vault *secretvault.Vault
}

// NewSecretTool returns a secret tool backed by vault.
func NewSecretTool(vault *secretvault.Vault) *SecretTool {
	return &SecretTool{vault: vault}
}

func (t *SecretTool) Name() string { return "secret" }
func (t *SecretTool) Description() string {
	return "Manage named secrets in the vault (set/get/list/delete). get and delete require approval."
}
func (t *SecretTool) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"action": map[string]any{"type": "string", "enum": []any{"set", "get", "list", "delete"}},
			"name":   map[string]any{"type": "string"},
			"value":  map[string]any{"type": "string"},
		},
		"required":             []any{"action"},
		"additionalProperties": false,
	}
}

type secretParams struct {
	Action string `json:"action"`
	Name   string `json:"name"`
	Value  string `json:"value"`
}

func (t *SecretTool) Validate(params json.RawMessage) error {
	var in secretParams
	if err := json.Unmarshal(params, &in); err != nil {
		return err
	}
	if strings.TrimSpace(in.Action) == "" {
		return fmt.Errorf("action is required")
	}
	return nil
}

func (t *SecretTool) Execute(ec toolregistry.ExecContext, params json.RawMessage) (toolregistry.Result, error) {
	if t.vault == nil {
		return toolregistry.ErrorResult("secret vault unavailable"), nil
	}
	var in secretParams
	if err := json.Unmarshal(params, &in); err != nil {
		return toolregistry.ErrorResult(err.Error()), nil
	}

	switch strings.ToLower(strings.TrimSpace(in.Action)) {
	case "set":
		name := strings.TrimSpace(in.Name)
		if name == "" {
			return toolregistry.ErrorResult("name is required"), nil
		}
		if err := t.vault.Put(name, in.Value); err != nil {
			return toolregistry.ErrorResult(fmt.Sprintf("set secret: %v", err)), nil
		}
		return jsonResult(map[string]any{"status": "set", "name": name})

	case "get":
		name := strings.TrimSpace(in.Name)
		if name == "" {
			return toolregistry.ErrorResult("name is required"), nil
		}
		if !ec.Approved {
			return toolregistry.ApprovalRequired(fmt.Sprintf("reading secret %q requires approval", name)), nil
		}
		value, err := t.vault.Reveal(name)
		if err != nil {
			return toolregistry.ErrorResult(fmt.Sprintf("get secret: %v", err)), nil
		}
		return jsonResult(map[string]any{"name": name, "value": value})

	case "list":
		return jsonResult(map[string]any{"names": t.vault.ListNames()})

	case "delete":
		name := strings.TrimSpace(in.Name)
		if name == "" {
			return toolregistry.ErrorResult("name is required"), nil
		}
		if !ec.Approved {
			return toolregistry.ApprovalRequired(fmt.Sprintf("deleting secret %q requires approval", name)), nil
		}
		if err := t.vault.Remove(name); err != nil {
			return toolregistry.ErrorResult(fmt.Sprintf("delete secret: %v", err)), nil
		}
		return jsonResult(map[string]any{"status": "deleted", "name": name})

	default:
		return toolregistry.ErrorResult("unsupported action"), nil
	}
}
