package router

import (
	"context"
	"encoding/json"

	"github.com/relaygrid/orchestrator/internal/agent"
	"github.com/relaygrid/orchestrator/internal/toolregistry"
)

// llmToolAdapter presents a toolregistry.Tool as an agent.Tool so it can be
// listed in a CompletionRequest's Tools. The router never calls its Execute:
// tool calls surfaced by a provider are dispatched back through
// toolregistry.Registry.Execute (which carries session/channel/approval
// context agent.Tool's bare context.Context cannot express), so Execute
// here only exists to satisfy the interface.
type llmToolAdapter struct {
	tool toolregistry.Tool
}

func (a llmToolAdapter) Name() string        { return a.tool.Name() }
func (a llmToolAdapter) Description() string { return a.tool.Description() }

func (a llmToolAdapter) Schema() json.RawMessage {
	raw, err := json.Marshal(a.tool.Schema())
	if err != nil {
		return json.RawMessage(`{}`)
	}
	return raw
}

func (a llmToolAdapter) Execute(ctx context.Context, params json.RawMessage) (*agent.ToolResult, error) {
	return &agent.ToolResult{
		Content: "Error: this tool must be dispatched through the orchestration router, not called directly by the provider",
		IsError: true,
	}, nil
}

// asLLMTools adapts a registry's tools into the shape CompletionRequest.Tools
// expects.
func asLLMTools(tools []toolregistry.Tool) []agent.Tool {
	out := make([]agent.Tool, len(tools))
	for i, t := range tools {
		out[i] = llmToolAdapter{tool: t}
	}
	return out
}
