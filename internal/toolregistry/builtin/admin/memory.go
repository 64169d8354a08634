// Package admin implements the Memory, Decision, Promise, Secret, and
// RuntimeAdmin tools. Each is a thin action-dispatched wrapper over its
// backing service; none holds state of its own beyond that service.
package admin

import (
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strings"
	"sync"

	"github.com/relaygrid/orchestrator/internal/toolregistry"
)

// MemoryStore holds named notes in process memory, searchable by TF-IDF
// cosine similarity.
type MemoryStore struct {
	mu    sync.RWMutex
	notes map[string]string // key -> value, insertion order lost (map), fine for recall-by-key
}

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{notes: make(map[string]string)}
}

// Remember upserts a note under key.
func (s *MemoryStore) Remember(key, value string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.notes[key] = value
}

// Recall returns the note stored under key.
func (s *MemoryStore) Recall(key string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.notes[key]
	return v, ok
}

// Forget removes the note stored under key, reporting whether it existed.
func (s *MemoryStore) Forget(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.notes[key]
	delete(s.notes, key)
	return ok
}

// MemoryMatch is one search hit.
type MemoryMatch struct {
	Key     string  `json:"key"`
	Snippet string  `json:"snippet"`
	Score   float64 `json:"score"`
}

// Search ranks all notes against query using TF-IDF cosine similarity over
// lowercase alphanumeric tokens of two or more characters. There is no
// substring fallback: notes sharing no such token with query are not
// returned, however small the corpus.
func (s *MemoryStore) Search(query string, limit int) []MemoryMatch {
	s.mu.RLock()
	keys := make([]string, 0, len(s.notes))
	values := make([]string, 0, len(s.notes))
	for k, v := range s.notes {
		keys = append(keys, k)
		values = append(values, v)
	}
	s.mu.RUnlock()

	if len(keys) == 0 {
		return nil
	}

	tokenSets := make([][]string, len(values))
	for i, v := range values {
		tokenSets[i] = tokenize(v + " " + keys[i])
	}
	df := map[string]int{}
	for _, tokens := range tokenSets {
		seen := map[string]struct{}{}
		for _, t := range tokens {
			if _, ok := seen[t]; ok {
				continue
			}
			seen[t] = struct{}{}
			df[t]++
		}
	}
	queryVec := vectorize(tokenize(query), df, len(keys))

	matches := make([]MemoryMatch, 0, len(keys))
	for i := range keys {
		docVec := vectorize(tokenSets[i], df, len(keys))
		score := cosine(queryVec, docVec)
		if score <= 0 {
			continue
		}
		matches = append(matches, MemoryMatch{Key: keys[i], Snippet: clamp(values[i], 200), Score: score})
	}
	sort.Slice(matches, func(i, j int) bool {
		if matches[i].Score == matches[j].Score {
			return matches[i].Key < matches[j].Key
		}
		return matches[i].Score > matches[j].Score
	})
	if limit > 0 && len(matches) > limit {
		matches = matches[:limit]
	}
	return matches
}

func tokenize(text string) []string {
	text = strings.ToLower(text)
	fields := strings.FieldsFunc(text, func(r rune) bool {
		return !(r >= 'a' && r <= 'z' || r >= '0' && r <= '9')
	})
	out := make([]string, 0, len(fields))
	for _, f := range fields {
		if len(f) >= 2 {
			out = append(out, f)
		}
	}
	return out
}

func vectorize(tokens []string, df map[string]int, total int) map[string]float64 {
	tf := map[string]int{}
	for _, t := range tokens {
		tf[t]++
	}
	vec := make(map[string]float64, len(tf))
	for t, count := range tf {
		d := df[t]
		if d == 0 || total == 0 {
			continue
		}
		idf := 1.0 + math.Log(float64(total)/float64(d))
		vec[t] = float64(count) * idf
	}
	return vec
}

func cosine(a, b map[string]float64) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for k, v := range a {
		normA += v * v
		if bv, ok := b[k]; ok {
			dot += v * bv
		}
	}
	for _, v := range b {
		normB += v * v
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

func clamp(text string, maxLen int) string {
	text = strings.TrimSpace(text)
	runes := []rune(text)
	if len(runes) <= maxLen {
		return text
	}
	return string(runes[:maxLen]) + "..."
}

// MemoryTool exposes remember/recall/search/forget over a MemoryStore.
type MemoryTool struct {
	store *MemoryStore
}

// NewMemoryTool returns a memory tool backed by store.
func NewMemoryTool(store *MemoryStore) *MemoryTool {
	return &MemoryTool{store: store}
}

func (t *MemoryTool) Name() string { return "memory" }
func (t *MemoryTool) Description() string {
	return "Remember, recall, search, and forget short notes across turns (remember/recall/search/forget)."
}
func (t *MemoryTool) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"action":      map[string]any{"type": "string", "enum": []any{"remember", "recall", "search", "forget"}},
			"key":         map[string]any{"type": "string"},
			"value":       map[string]any{"type": "string"},
			"query":       map[string]any{"type": "string"},
			"max_results": map[string]any{"type": "integer"},
		},
		"required":             []any{"action"},
		"additionalProperties": false,
	}
}

type memoryParams struct {
	Action     string `json:"action"`
	Key        string `json:"key"`
	Value      string `json:"value"`
	Query      string `json:"query"`
	MaxResults int    `json:"max_results"`
}

func (t *MemoryTool) Validate(params json.RawMessage) error {
	var in memoryParams
	if err := json.Unmarshal(params, &in); err != nil {
		return err
	}
	if strings.TrimSpace(in.Action) == "" {
		return fmt.Errorf("action is required")
	}
	return nil
}

func (t *MemoryTool) Execute(ec toolregistry.ExecContext, params json.RawMessage) (toolregistry.Result, error) {
	if t.store == nil {
		return toolregistry.ErrorResult("memory store unavailable"), nil
	}
	var in memoryParams
	if err := json.Unmarshal(params, &in); err != nil {
		return toolregistry.ErrorResult(err.Error()), nil
	}

	switch strings.ToLower(strings.TrimSpace(in.Action)) {
	case "remember":
		key := strings.TrimSpace(in.Key)
		if key == "" {
			return toolregistry.ErrorResult("key is required"), nil
		}
		t.store.Remember(key, in.Value)
		return jsonResult(map[string]any{"status": "remembered", "key": key})

	case "recall":
		key := strings.TrimSpace(in.Key)
		if key == "" {
			return toolregistry.ErrorResult("key is required"), nil
		}
		value, ok := t.store.Recall(key)
		if !ok {
			return toolregistry.ErrorResult(fmt.Sprintf("no memory stored under %q", key)), nil
		}
		return jsonResult(map[string]any{"key": key, "value": value})

	case "search":
		query := strings.TrimSpace(in.Query)
		if query == "" {
			return toolregistry.ErrorResult("query is required"), nil
		}
		limit := in.MaxResults
		if limit <= 0 {
			limit = 5
		}
		return jsonResult(map[string]any{"query": query, "results": t.store.Search(query, limit)})

	case "forget":
		key := strings.TrimSpace(in.Key)
		if key == "" {
			return toolregistry.ErrorResult("key is required"), nil
		}
		existed := t.store.Forget(key)
		return jsonResult(map[string]any{"status": "forgotten", "key": key, "existed": existed})

	default:
		return toolregistry.ErrorResult("unsupported action"), nil
	}
}

func jsonResult(payload any) (toolregistry.Result, error) {
	encoded, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return toolregistry.ErrorResult(fmt.Sprintf("encode result: %v", err)), nil
	}
	return toolregistry.Result{Content: string(encoded)}, nil
}
