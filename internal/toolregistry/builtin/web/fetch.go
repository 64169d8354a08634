package web

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/relaygrid/orchestrator/internal/streambuf"
	"github.com/relaygrid/orchestrator/internal/toolregistry"
)

// FetchConfig controls web_fetch defaults.
type FetchConfig struct {
	MaxChars int
}

// FetchTool implements web_fetch: a lightweight fetch + readability
// extraction without full browser automation.
type FetchTool struct {
	config    FetchConfig
	extractor *ContentExtractor
}

// FetchOption customizes FetchTool construction.
type FetchOption func(*FetchTool)

// WithFetchExtractor overrides the default SSRF-guarded extractor, for tests
// that need to target a local httptest server.
func WithFetchExtractor(extractor *ContentExtractor) FetchOption {
	return func(t *FetchTool) {
		if extractor != nil {
			t.extractor = extractor
		}
	}
}

// NewFetchTool returns a web_fetch tool applying cfg's defaults.
func NewFetchTool(cfg FetchConfig, opts ...FetchOption) *FetchTool {
	if cfg.MaxChars <= 0 {
		cfg.MaxChars = 10000
	}
	tool := &FetchTool{config: cfg, extractor: NewContentExtractor()}
	for _, opt := range opts {
		opt(tool)
	}
	return tool
}

func (t *FetchTool) Name() string { return "web_fetch" }
func (t *FetchTool) Description() string {
	return "Fetch and extract readable content from a URL without full browser automation."
}
func (t *FetchTool) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"url":          map[string]any{"type": "string"},
			"extract_mode": map[string]any{"type": "string", "enum": []any{"markdown", "text"}},
			"max_chars":    map[string]any{"type": "integer", "minimum": 0},
		},
		"required":             []any{"url"},
		"additionalProperties": false,
	}
}

type fetchParams struct {
	URL         string `json:"url"`
	ExtractMode string `json:"extract_mode"`
	MaxChars    int    `json:"max_chars"`
}

func (t *FetchTool) Validate(params json.RawMessage) error {
	var in fetchParams
	if err := json.Unmarshal(params, &in); err != nil {
		return err
	}
	if strings.TrimSpace(in.URL) == "" {
		return fmt.Errorf("url is required")
	}
	return nil
}

func (t *FetchTool) Execute(ec toolregistry.ExecContext, params json.RawMessage) (toolregistry.Result, error) {
	var in fetchParams
	if err := json.Unmarshal(params, &in); err != nil {
		return toolregistry.ErrorResult(err.Error()), nil
	}
	target := strings.TrimSpace(in.URL)
	if target == "" {
		return toolregistry.ErrorResult("url is required"), nil
	}

	mode := strings.ToLower(strings.TrimSpace(in.ExtractMode))
	if mode != "text" {
		mode = "markdown"
	}
	limit := t.config.MaxChars
	if in.MaxChars > 0 && (limit == 0 || in.MaxChars < limit) {
		limit = in.MaxChars
	}

	ctx := ec.Context
	if ctx == nil {
		ctx = context.Background()
	}

	content, err := t.extractor.Extract(ctx, target)
	if err != nil {
		return toolregistry.ErrorResult(fmt.Sprintf("fetch failed: %v", err)), nil
	}

	content, stripped := streambuf.SanitizeInjections(content)

	truncated := false
	if limit > 0 && len(content) > limit {
		content = streambuf.Truncate(content, limit)
		truncated = true
	}

	result := map[string]any{"url": target, "extract_mode": mode, "content": content}
	if truncated {
		result["truncated"] = true
	}
	if stripped > 0 {
		result["sanitized_lines"] = stripped
	}
	payload, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return toolregistry.ErrorResult(fmt.Sprintf("format response: %v", err)), nil
	}
	return toolregistry.Result{Content: string(payload)}, nil
}
