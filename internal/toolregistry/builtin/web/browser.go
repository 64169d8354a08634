package web

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"

	"github.com/playwright-community/playwright-go"

	"github.com/relaygrid/orchestrator/internal/toolregistry"
)

// BrowserTool automates a pooled headless browser: navigate, click, type,
// screenshot, extract, wait, and execute_js actions.
type BrowserTool struct {
	pool *BrowserPool
}

// NewBrowserTool returns a web_browser tool backed by pool.
func NewBrowserTool(pool *BrowserPool) *BrowserTool {
	return &BrowserTool{pool: pool}
}

func (b *BrowserTool) Name() string { return "web_browser" }
func (b *BrowserTool) Description() string {
	return "Automate web browser interactions: navigation, clicking, form filling, screenshots, content extraction, and JavaScript execution."
}
func (b *BrowserTool) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"action": map[string]any{
				"type": "string",
				"enum": []any{
					"navigate", "click", "type", "screenshot", "extract_text",
					"extract_html", "wait_for_element", "wait_for_navigation", "execute_js",
				},
			},
			"url":       map[string]any{"type": "string"},
			"selector":  map[string]any{"type": "string"},
			"text":      map[string]any{"type": "string"},
			"script":    map[string]any{"type": "string"},
			"timeout":   map[string]any{"type": "integer"},
			"full_page": map[string]any{"type": "boolean"},
		},
		"required":             []any{"action"},
		"additionalProperties": false,
	}
}

func (b *BrowserTool) Validate(params json.RawMessage) error {
	var in struct {
		Action string `json:"action"`
	}
	if err := json.Unmarshal(params, &in); err != nil {
		return err
	}
	if in.Action == "" {
		return fmt.Errorf("action is required")
	}
	return nil
}

func (b *BrowserTool) Execute(ec toolregistry.ExecContext, params json.RawMessage) (toolregistry.Result, error) {
	if b.pool == nil {
		return toolregistry.ErrorResult("browser pool unavailable"), nil
	}
	var base struct {
		Action string `json:"action"`
	}
	if err := json.Unmarshal(params, &base); err != nil {
		return toolregistry.ErrorResult(err.Error()), nil
	}

	ctx := ec.Context
	if ctx == nil {
		ctx = context.Background()
	}

	instance, err := b.pool.Acquire(ctx)
	if err != nil {
		return toolregistry.ErrorResult(fmt.Sprintf("acquire browser instance: %v", err)), nil
	}
	defer b.pool.Release(instance)

	switch base.Action {
	case "navigate":
		return navigate(instance, params)
	case "click":
		return click(instance, params)
	case "type":
		return typeText(instance, params)
	case "screenshot":
		return screenshot(instance, params)
	case "extract_text":
		return extractText(instance, params)
	case "extract_html":
		return extractHTML(instance, params)
	case "wait_for_element":
		return waitForElement(instance, params)
	case "wait_for_navigation":
		return waitForNavigation(instance, params)
	case "execute_js":
		return executeJS(instance, params)
	default:
		return toolregistry.ErrorResult(fmt.Sprintf("unknown action: %s", base.Action)), nil
	}
}

func navigate(instance *BrowserInstance, params json.RawMessage) (toolregistry.Result, error) {
	var p struct {
		URL string `json:"url"`
	}
	if err := json.Unmarshal(params, &p); err != nil {
		return toolregistry.ErrorResult(err.Error()), nil
	}
	if p.URL == "" {
		return toolregistry.ErrorResult("url is required for navigate"), nil
	}
	if _, err := instance.Page.Goto(p.URL, playwright.PageGotoOptions{WaitUntil: playwright.WaitUntilStateDomcontentloaded}); err != nil {
		return toolregistry.ErrorResult(fmt.Sprintf("navigation failed: %v", err)), nil
	}
	return toolregistry.Result{Content: fmt.Sprintf("navigated to %s", p.URL)}, nil
}

func click(instance *BrowserInstance, params json.RawMessage) (toolregistry.Result, error) {
	var p struct {
		Selector string `json:"selector"`
	}
	if err := json.Unmarshal(params, &p); err != nil {
		return toolregistry.ErrorResult(err.Error()), nil
	}
	if p.Selector == "" {
		return toolregistry.ErrorResult("selector is required for click"), nil
	}
	if err := instance.Page.Click(p.Selector); err != nil {
		return toolregistry.ErrorResult(fmt.Sprintf("click failed: %v", err)), nil
	}
	return toolregistry.Result{Content: fmt.Sprintf("clicked %s", p.Selector)}, nil
}

func typeText(instance *BrowserInstance, params json.RawMessage) (toolregistry.Result, error) {
	var p struct {
		Selector string `json:"selector"`
		Text     string `json:"text"`
	}
	if err := json.Unmarshal(params, &p); err != nil {
		return toolregistry.ErrorResult(err.Error()), nil
	}
	if p.Selector == "" {
		return toolregistry.ErrorResult("selector is required for type"), nil
	}
	if err := instance.Page.Fill(p.Selector, p.Text); err != nil {
		return toolregistry.ErrorResult(fmt.Sprintf("type failed: %v", err)), nil
	}
	return toolregistry.Result{Content: fmt.Sprintf("typed text into %s", p.Selector)}, nil
}

func screenshot(instance *BrowserInstance, params json.RawMessage) (toolregistry.Result, error) {
	var p struct {
		FullPage bool `json:"full_page"`
	}
	if err := json.Unmarshal(params, &p); err != nil {
		return toolregistry.ErrorResult(err.Error()), nil
	}
	data, err := instance.Page.Screenshot(playwright.PageScreenshotOptions{
		FullPage: playwright.Bool(p.FullPage),
		Type:     playwright.ScreenshotTypePng,
	})
	if err != nil {
		return toolregistry.ErrorResult(fmt.Sprintf("screenshot failed: %v", err)), nil
	}
	encoded := base64.StdEncoding.EncodeToString(data)
	if len(encoded) > 100 {
		encoded = encoded[:100] + "..."
	}
	return toolregistry.Result{Content: fmt.Sprintf("screenshot captured (base64, truncated): %s", encoded)}, nil
}

func extractText(instance *BrowserInstance, params json.RawMessage) (toolregistry.Result, error) {
	var p struct {
		Selector string `json:"selector"`
	}
	if err := json.Unmarshal(params, &p); err != nil {
		return toolregistry.ErrorResult(err.Error()), nil
	}
	selector := p.Selector
	if selector == "" {
		selector = "body"
	}
	text, err := instance.Page.TextContent(selector)
	if err != nil {
		return toolregistry.ErrorResult(fmt.Sprintf("text extraction failed: %v", err)), nil
	}
	return toolregistry.Result{Content: text}, nil
}

func extractHTML(instance *BrowserInstance, params json.RawMessage) (toolregistry.Result, error) {
	var p struct {
		Selector string `json:"selector"`
	}
	if err := json.Unmarshal(params, &p); err != nil {
		return toolregistry.ErrorResult(err.Error()), nil
	}
	if p.Selector == "" {
		html, err := instance.Page.Content()
		if err != nil {
			return toolregistry.ErrorResult(fmt.Sprintf("HTML extraction failed: %v", err)), nil
		}
		return toolregistry.Result{Content: html}, nil
	}
	result, err := instance.Page.Evaluate(fmt.Sprintf("document.querySelector('%s').innerHTML", p.Selector))
	if err != nil {
		return toolregistry.ErrorResult(fmt.Sprintf("HTML extraction failed: %v", err)), nil
	}
	return toolregistry.Result{Content: fmt.Sprintf("%v", result)}, nil
}

func waitForElement(instance *BrowserInstance, params json.RawMessage) (toolregistry.Result, error) {
	var p struct {
		Selector string  `json:"selector"`
		Timeout  float64 `json:"timeout"`
	}
	if err := json.Unmarshal(params, &p); err != nil {
		return toolregistry.ErrorResult(err.Error()), nil
	}
	if p.Selector == "" {
		return toolregistry.ErrorResult("selector is required for wait_for_element"), nil
	}
	timeout := p.Timeout
	if timeout == 0 {
		timeout = 30000
	}
	if _, err := instance.Page.WaitForSelector(p.Selector, playwright.PageWaitForSelectorOptions{Timeout: playwright.Float(timeout)}); err != nil {
		return toolregistry.ErrorResult(fmt.Sprintf("wait for element failed: %v", err)), nil
	}
	return toolregistry.Result{Content: fmt.Sprintf("element appeared: %s", p.Selector)}, nil
}

func waitForNavigation(instance *BrowserInstance, params json.RawMessage) (toolregistry.Result, error) {
	var p struct {
		Timeout float64 `json:"timeout"`
	}
	if err := json.Unmarshal(params, &p); err != nil {
		return toolregistry.ErrorResult(err.Error()), nil
	}
	timeout := p.Timeout
	if timeout == 0 {
		timeout = 30000
	}
	if err := instance.Page.WaitForLoadState(playwright.PageWaitForLoadStateOptions{Timeout: playwright.Float(timeout)}); err != nil {
		return toolregistry.ErrorResult(fmt.Sprintf("wait for navigation failed: %v", err)), nil
	}
	return toolregistry.Result{Content: "navigation completed"}, nil
}

func executeJS(instance *BrowserInstance, params json.RawMessage) (toolregistry.Result, error) {
	var p struct {
		Script string `json:"script"`
	}
	if err := json.Unmarshal(params, &p); err != nil {
		return toolregistry.ErrorResult(err.Error()), nil
	}
	if p.Script == "" {
		return toolregistry.ErrorResult("script is required for execute_js"), nil
	}
	result, err := instance.Page.Evaluate(p.Script)
	if err != nil {
		return toolregistry.ErrorResult(fmt.Sprintf("JavaScript execution failed: %v", err)), nil
	}
	return toolregistry.Result{Content: fmt.Sprintf("%v", result)}, nil
}
