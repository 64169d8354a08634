package web

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/relaygrid/orchestrator/internal/toolregistry"
)

// SearchBackend selects which upstream search provider to query.
type SearchBackend string

const (
	BackendSearXNG    SearchBackend = "searxng"
	BackendDuckDuckGo SearchBackend = "duckduckgo"

	maxCacheSize = 1000
)

// SearchType selects the category of results to return.
type SearchType string

const (
	SearchTypeWeb  SearchType = "web"
	SearchTypeNews SearchType = "news"
)

// SearchConfig configures the web_search tool's default backend and cache.
type SearchConfig struct {
	SearXNGURL         string
	DefaultBackend     SearchBackend
	DefaultResultCount int
	ExtractContent     bool
	CacheTTL           time.Duration
}

// SearchResult is a single search hit.
type SearchResult struct {
	Title       string `json:"title"`
	URL         string `json:"url"`
	Snippet     string `json:"snippet"`
	Content     string `json:"content,omitempty"`
	PublishedAt string `json:"published_at,omitempty"`
}

// SearchResponse is the full web_search tool output.
type SearchResponse struct {
	Query       string         `json:"query"`
	Type        SearchType     `json:"type"`
	Results     []SearchResult `json:"results"`
	ResultCount int            `json:"result_count"`
	Backend     SearchBackend  `json:"backend"`
}

type cacheEntry struct {
	response  *SearchResponse
	expiresAt time.Time
}

// SearchTool implements web_search against SearXNG (self-hosted, preferred
// when configured) with a DuckDuckGo Instant Answer fallback, caching
// responses to avoid hammering either backend.
type SearchTool struct {
	config     SearchConfig
	httpClient *http.Client
	extractor  *ContentExtractor

	cacheMu sync.RWMutex
	cache   map[string]*cacheEntry
}

// NewSearchTool returns a web_search tool applying cfg's defaults.
func NewSearchTool(cfg SearchConfig) *SearchTool {
	if cfg.DefaultResultCount == 0 {
		cfg.DefaultResultCount = 5
	}
	if cfg.CacheTTL == 0 {
		cfg.CacheTTL = 5 * time.Minute
	}
	if cfg.DefaultBackend == "" {
		if cfg.SearXNGURL != "" {
			cfg.DefaultBackend = BackendSearXNG
		} else {
			cfg.DefaultBackend = BackendDuckDuckGo
		}
	}
	return &SearchTool{
		config:     cfg,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		extractor:  NewContentExtractor(),
		cache:      make(map[string]*cacheEntry),
	}
}

func (t *SearchTool) Name() string        { return "web_search" }
func (t *SearchTool) Description() string { return "Search the web for information." }
func (t *SearchTool) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"query":           map[string]any{"type": "string"},
			"type":            map[string]any{"type": "string", "enum": []any{"web", "news"}},
			"result_count":    map[string]any{"type": "integer", "minimum": 1, "maximum": 20},
			"extract_content": map[string]any{"type": "boolean"},
			"backend":         map[string]any{"type": "string", "enum": []any{"searxng", "duckduckgo"}},
		},
		"required":             []any{"query"},
		"additionalProperties": false,
	}
}

type searchParams struct {
	Query          string        `json:"query"`
	Type           SearchType    `json:"type"`
	ResultCount    int           `json:"result_count"`
	ExtractContent bool          `json:"extract_content"`
	Backend        SearchBackend `json:"backend"`
}

func (t *SearchTool) Validate(params json.RawMessage) error {
	var in searchParams
	if err := json.Unmarshal(params, &in); err != nil {
		return err
	}
	if strings.TrimSpace(in.Query) == "" {
		return fmt.Errorf("query is required")
	}
	return nil
}

func (t *SearchTool) Execute(ec toolregistry.ExecContext, params json.RawMessage) (toolregistry.Result, error) {
	var in searchParams
	if err := json.Unmarshal(params, &in); err != nil {
		return toolregistry.ErrorResult(err.Error()), nil
	}
	if strings.TrimSpace(in.Query) == "" {
		return toolregistry.ErrorResult("query is required"), nil
	}
	if in.Type == "" {
		in.Type = SearchTypeWeb
	}
	if in.ResultCount == 0 {
		in.ResultCount = t.config.DefaultResultCount
	} else if in.ResultCount > 20 {
		in.ResultCount = 20
	}
	if in.Backend == "" {
		in.Backend = t.config.DefaultBackend
	}
	if !in.ExtractContent {
		in.ExtractContent = t.config.ExtractContent
	}

	ctx := ec.Context
	if ctx == nil {
		ctx = context.Background()
	}

	cacheKey := fmt.Sprintf("%s:%s:%d:%v:%s", in.Backend, in.Type, in.ResultCount, in.ExtractContent, in.Query)
	if cached := t.fromCache(cacheKey); cached != nil {
		return t.formatResponse(cached), nil
	}

	var response *SearchResponse
	var err error
	switch in.Backend {
	case BackendSearXNG:
		response, err = t.searchSearXNG(ctx, in)
	case BackendDuckDuckGo:
		response, err = t.searchDuckDuckGo(ctx, in)
	default:
		return toolregistry.ErrorResult(fmt.Sprintf("unknown backend: %s", in.Backend)), nil
	}
	if err != nil {
		if in.Backend != BackendDuckDuckGo {
			response, err = t.searchDuckDuckGo(ctx, in)
			if err != nil {
				return toolregistry.ErrorResult(fmt.Sprintf("search failed: %v", err)), nil
			}
			response.Backend = BackendDuckDuckGo
		} else {
			return toolregistry.ErrorResult(fmt.Sprintf("search failed: %v", err)), nil
		}
	}

	if in.ExtractContent && in.Type == SearchTypeWeb {
		t.extractContentForResults(ctx, response)
	}
	t.putInCache(cacheKey, response)
	return t.formatResponse(response), nil
}

func (t *SearchTool) formatResponse(response *SearchResponse) toolregistry.Result {
	payload, err := json.MarshalIndent(response, "", "  ")
	if err != nil {
		return toolregistry.ErrorResult(fmt.Sprintf("format response: %v", err))
	}
	return toolregistry.Result{Content: string(payload)}
}

func (t *SearchTool) fromCache(key string) *SearchResponse {
	t.cacheMu.RLock()
	defer t.cacheMu.RUnlock()
	entry, ok := t.cache[key]
	if !ok || time.Now().After(entry.expiresAt) {
		return nil
	}
	return entry.response
}

func (t *SearchTool) putInCache(key string, response *SearchResponse) {
	t.cacheMu.Lock()
	defer t.cacheMu.Unlock()
	now := time.Now()
	for k, v := range t.cache {
		if now.After(v.expiresAt) {
			delete(t.cache, k)
		}
	}
	for len(t.cache) >= maxCacheSize {
		var oldestKey string
		var oldestTime time.Time
		for k, v := range t.cache {
			if oldestKey == "" || v.expiresAt.Before(oldestTime) {
				oldestKey, oldestTime = k, v.expiresAt
			}
		}
		if oldestKey == "" {
			break
		}
		delete(t.cache, oldestKey)
	}
	t.cache[key] = &cacheEntry{response: response, expiresAt: now.Add(t.config.CacheTTL)}
}

func (t *SearchTool) extractContentForResults(ctx context.Context, response *SearchResponse) {
	var wg sync.WaitGroup
	for i := range response.Results {
		wg.Add(1)
		go func(result *SearchResult) {
			defer wg.Done()
			if content, err := t.extractor.Extract(ctx, result.URL); err == nil && content != "" {
				result.Content = content
			}
		}(&response.Results[i])
	}
	wg.Wait()
}

func (t *SearchTool) searchSearXNG(ctx context.Context, params searchParams) (*SearchResponse, error) {
	if t.config.SearXNGURL == "" {
		return nil, fmt.Errorf("SearXNG URL not configured")
	}
	searchURL, err := url.Parse(t.config.SearXNGURL)
	if err != nil {
		return nil, fmt.Errorf("invalid SearXNG URL: %w", err)
	}
	query := url.Values{}
	query.Set("q", params.Query)
	query.Set("format", "json")
	query.Set("pageno", "1")
	if params.Type == SearchTypeNews {
		query.Set("categories", "news")
	} else {
		query.Set("categories", "general")
	}
	searchURL.Path = "/search"
	searchURL.RawQuery = query.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, searchURL.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	resp, err := t.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("SearXNG returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	var searxngResp struct {
		Results []struct {
			Title         string `json:"title"`
			URL           string `json:"url"`
			Content       string `json:"content"`
			PublishedDate string `json:"publishedDate,omitempty"`
		} `json:"results"`
	}
	if err := json.Unmarshal(body, &searxngResp); err != nil {
		return nil, fmt.Errorf("parse response: %w", err)
	}

	results := make([]SearchResult, 0, params.ResultCount)
	for i := 0; i < len(searxngResp.Results) && i < params.ResultCount; i++ {
		r := searxngResp.Results[i]
		results = append(results, SearchResult{Title: r.Title, URL: r.URL, Snippet: r.Content, PublishedAt: r.PublishedDate})
	}
	return &SearchResponse{Query: params.Query, Type: params.Type, Results: results, ResultCount: len(results), Backend: BackendSearXNG}, nil
}

func (t *SearchTool) searchDuckDuckGo(ctx context.Context, params searchParams) (*SearchResponse, error) {
	instantURL := fmt.Sprintf("https://api.duckduckgo.com/?q=%s&format=json&no_html=1", url.QueryEscape(params.Query))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, instantURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", "Mozilla/5.0 (compatible; OrchestratorBot/1.0)")

	resp, err := t.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("DuckDuckGo returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	var ddgResp struct {
		AbstractText  string `json:"AbstractText"`
		AbstractURL   string `json:"AbstractURL"`
		Heading       string `json:"Heading"`
		RelatedTopics []struct {
			FirstURL string `json:"FirstURL"`
			Text     string `json:"Text"`
		} `json:"RelatedTopics"`
	}
	if err := json.Unmarshal(body, &ddgResp); err != nil {
		return nil, fmt.Errorf("parse response: %w", err)
	}

	results := make([]SearchResult, 0)
	if ddgResp.AbstractText != "" && ddgResp.AbstractURL != "" {
		results = append(results, SearchResult{Title: ddgResp.Heading, URL: ddgResp.AbstractURL, Snippet: ddgResp.AbstractText})
	}
	for i := 0; i < len(ddgResp.RelatedTopics) && len(results) < params.ResultCount; i++ {
		topic := ddgResp.RelatedTopics[i]
		if topic.FirstURL != "" && topic.Text != "" {
			results = append(results, SearchResult{Title: topic.Text, URL: topic.FirstURL, Snippet: topic.Text})
		}
	}
	return &SearchResponse{Query: params.Query, Type: params.Type, Results: results, ResultCount: len(results), Backend: BackendDuckDuckGo}, nil
}
