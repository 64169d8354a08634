package admin

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/relaygrid/orchestrator/internal/toolregistry"
)

// Decision is a single recorded decision: what was decided, and why.
type Decision struct {
	ID        string    `json:"id"`
	TaskID    string    `json:"task_id,omitempty"`
	Summary   string    `json:"summary"`
	Rationale string    `json:"rationale,omitempty"`
	RecordedAt time.Time `json:"recorded_at"`
}

// DecisionLog is an append-only, in-memory journal of Decisions.
type DecisionLog struct {
	mu      sync.Mutex
	nextID  int
	entries []Decision
}

// NewDecisionLog returns an empty log.
func NewDecisionLog() *DecisionLog {
	return &DecisionLog{}
}

// Record appends a new decision and returns its assigned ID.
func (l *DecisionLog) Record(taskID, summary, rationale string, now time.Time) Decision {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.nextID++
	d := Decision{
		ID:         fmt.Sprintf("dec-%d", l.nextID),
		TaskID:     taskID,
		Summary:    summary,
		Rationale:  rationale,
		RecordedAt: now,
	}
	l.entries = append(l.entries, d)
	return d
}

// List returns decisions, optionally filtered by taskID (empty = all),
// most recent first.
func (l *DecisionLog) List(taskID string, limit int) []Decision {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]Decision, 0, len(l.entries))
	for i := len(l.entries) - 1; i >= 0; i-- {
		d := l.entries[i]
		if taskID != "" && d.TaskID != taskID {
			continue
		}
		out = append(out, d)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out
}

// DecisionTool exposes record/list over a DecisionLog.
type DecisionTool struct {
	log *DecisionLog
	now func() time.Time
}

// NewDecisionTool returns a decision tool backed by log.
func NewDecisionTool(log *DecisionLog) *DecisionTool {
	return &DecisionTool{log: log, now: time.Now}
}

func (t *DecisionTool) Name() string { return "decision" }
func (t *DecisionTool) Description() string {
	return "Record and list decisions made during a workflow, with rationale (record/list)."
}
func (t *DecisionTool) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"action":    map[string]any{"type": "string", "enum": []any{"record", "list"}},
			"task_id":   map[string]any{"type": "string"},
			"summary":   map[string]any{"type": "string"},
			"rationale": map[string]any{"type": "string"},
			"limit":     map[string]any{"type": "integer"},
		},
		"required":             []any{"action"},
		"additionalProperties": false,
	}
}

type decisionParams struct {
	Action    string `json:"action"`
	TaskID    string `json:"task_id"`
	Summary   string `json:"summary"`
	Rationale string `json:"rationale"`
	Limit     int    `json:"limit"`
}

func (t *DecisionTool) Validate(params json.RawMessage) error {
	var in decisionParams
	if err := json.Unmarshal(params, &in); err != nil {
		return err
	}
	if strings.TrimSpace(in.Action) == "" {
		return fmt.Errorf("action is required")
	}
	return nil
}

func (t *DecisionTool) Execute(ec toolregistry.ExecContext, params json.RawMessage) (toolregistry.Result, error) {
	if t.log == nil {
		return toolregistry.ErrorResult("decision log unavailable"), nil
	}
	var in decisionParams
	if err := json.Unmarshal(params, &in); err != nil {
		return toolregistry.ErrorResult(err.Error()), nil
	}

	switch strings.ToLower(strings.TrimSpace(in.Action)) {
	case "record":
		summary := strings.TrimSpace(in.Summary)
		if summary == "" {
			return toolregistry.ErrorResult("summary is required"), nil
		}
		d := t.log.Record(in.TaskID, summary, in.Rationale, t.now())
		return jsonResult(map[string]any{"status": "recorded", "decision": d})

	case "list":
		return jsonResult(map[string]any{"decisions": t.log.List(in.TaskID, in.Limit)})

	default:
		return toolregistry.ErrorResult("unsupported action"), nil
	}
}
