package admin

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/relaygrid/orchestrator/internal/cronsched"
	"github.com/relaygrid/orchestrator/internal/toolregistry"
)

// Promise is a one-shot future action: "remind me in 5 minutes" or "follow
// up on this at 3pm". A promise is backed by a one-shot cronsched job whose
// handler fires once and is never rescheduled.
type Promise struct {
	ID        string    `json:"id"`
	Message   string    `json:"message"`
	Title     string    `json:"title,omitempty"`
	TriggerAt time.Time `json:"trigger_at"`
	Status    string    `json:"status"` // active, fired, cancelled
}

const (
	PromiseActive    = "active"
	PromiseFired     = "fired"
	PromiseCancelled = "cancelled"
)

// PromiseStore tracks Promise metadata alongside the cronsched.Job that
// fires it — cronsched.Job carries no generic payload field, so bookkeeping
// (title, message, status) lives here instead.
type PromiseStore struct {
	mu       sync.Mutex
	promises map[string]*Promise
}

// NewPromiseStore returns an empty store.
func NewPromiseStore() *PromiseStore {
	return &PromiseStore{promises: make(map[string]*Promise)}
}

func (s *PromiseStore) put(p *Promise) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.promises[p.ID] = p
}

func (s *PromiseStore) get(id string) (*Promise, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.promises[id]
	return p, ok
}

func (s *PromiseStore) setStatus(id, status string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p, ok := s.promises[id]; ok {
		p.Status = status
	}
}

func (s *PromiseStore) list(includeInactive bool, limit int) []*Promise {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*Promise, 0, len(s.promises))
	for _, p := range s.promises {
		if !includeInactive && p.Status != PromiseActive {
			continue
		}
		out = append(out, p)
	}
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

// OnFulfill is invoked when a promise's trigger time arrives — typically
// wired by the orchestration router to send the message back out on the
// originating channel.
type OnFulfill func(ec toolregistry.ExecContext, promise *Promise) error

// PromiseTool exposes set/list/cancel over a PromiseStore + cronsched.Scheduler.
type PromiseTool struct {
	scheduler *cronsched.Scheduler
	store     *PromiseStore
	onFulfill OnFulfill
}

// NewPromiseTool returns a promise tool backed by scheduler and store.
// Promises fire through onFulfill.
func NewPromiseTool(scheduler *cronsched.Scheduler, store *PromiseStore, onFulfill OnFulfill) *PromiseTool {
	return &PromiseTool{scheduler: scheduler, store: store, onFulfill: onFulfill}
}

func (t *PromiseTool) Name() string { return "promise" }
func (t *PromiseTool) Description() string {
	return "Set, list, and cancel one-shot future reminders ('in 5 minutes', 'at 3pm') (set/list/cancel)."
}
func (t *PromiseTool) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"action":            map[string]any{"type": "string", "enum": []any{"set", "list", "cancel"}},
			"message":           map[string]any{"type": "string"},
			"title":             map[string]any{"type": "string"},
			"when":              map[string]any{"type": "string"},
			"id":                map[string]any{"type": "string"},
			"include_completed": map[string]any{"type": "boolean"},
			"limit":             map[string]any{"type": "integer"},
		},
		"required":             []any{"action"},
		"additionalProperties": false,
	}
}

type promiseParams struct {
	Action           string `json:"action"`
	Message          string `json:"message"`
	Title            string `json:"title"`
	When             string `json:"when"`
	ID               string `json:"id"`
	IncludeCompleted bool   `json:"include_completed"`
	Limit            int    `json:"limit"`
}

func (t *PromiseTool) Validate(params json.RawMessage) error {
	var in promiseParams
	if err := json.Unmarshal(params, &in); err != nil {
		return err
	}
	if strings.TrimSpace(in.Action) == "" {
		return fmt.Errorf("action is required")
	}
	return nil
}

func (t *PromiseTool) Execute(ec toolregistry.ExecContext, params json.RawMessage) (toolregistry.Result, error) {
	if t.scheduler == nil || t.store == nil {
		return toolregistry.ErrorResult("promise service unavailable"), nil
	}
	var in promiseParams
	if err := json.Unmarshal(params, &in); err != nil {
		return toolregistry.ErrorResult(err.Error()), nil
	}

	switch strings.ToLower(strings.TrimSpace(in.Action)) {
	case "set":
		message := strings.TrimSpace(in.Message)
		if message == "" {
			return toolregistry.ErrorResult("message is required"), nil
		}
		when := strings.TrimSpace(in.When)
		if when == "" {
			return toolregistry.ErrorResult("when is required"), nil
		}
		triggerAt, err := parseWhen(when)
		if err != nil {
			return toolregistry.ErrorResult(fmt.Sprintf("invalid time: %v", err)), nil
		}
		if triggerAt.Before(time.Now()) {
			return toolregistry.ErrorResult("cannot set a promise in the past"), nil
		}

		id := uuid.NewString()
		promise := &Promise{ID: id, Message: message, Title: strings.TrimSpace(in.Title), TriggerAt: triggerAt, Status: PromiseActive}
		t.store.put(promise)

		handler := cronsched.HandlerFunc(func(ctx context.Context, job *cronsched.Job) error {
			p, ok := t.store.get(id)
			if !ok {
				return nil
			}
			var err error
			if t.onFulfill != nil {
				firedCtx := ec
				firedCtx.Context = ctx
				err = t.onFulfill(firedCtx, p)
			}
			t.store.setStatus(id, PromiseFired)
			return err
		})
		job := cronsched.NewJob(id, formatPromiseName(promise.Title, promise.Message), cronsched.NewAtSchedule(triggerAt), handler)
		job.Retry.MaxRetries = 0
		if err := t.scheduler.RegisterJob(job); err != nil {
			return toolregistry.ErrorResult(fmt.Sprintf("register promise: %v", err)), nil
		}
		return jsonResult(map[string]any{"status": "set", "promise": promise})

	case "list":
		return jsonResult(map[string]any{"promises": t.store.list(in.IncludeCompleted, in.Limit)})

	case "cancel":
		id := strings.TrimSpace(in.ID)
		if id == "" {
			return toolregistry.ErrorResult("id is required"), nil
		}
		promise, ok := t.store.get(id)
		if !ok {
			return toolregistry.ErrorResult("promise not found"), nil
		}
		if promise.Status != PromiseActive {
			return jsonResult(map[string]any{"status": "already_inactive", "promise": promise})
		}
		t.scheduler.UnregisterJob(id)
		t.store.setStatus(id, PromiseCancelled)
		return jsonResult(map[string]any{"status": "cancelled", "id": id})

	default:
		return toolregistry.ErrorResult("unsupported action"), nil
	}
}

func formatPromiseName(title, message string) string {
	if title != "" {
		return "promise: " + title
	}
	if len(message) > 50 {
		return "promise: " + message[:47] + "..."
	}
	return "promise: " + message
}

// parseWhen parses "in N <unit>" or an absolute RFC3339/common timestamp
// into a time.
func parseWhen(when string) (time.Time, error) {
	when = strings.TrimSpace(when)
	if lower := strings.ToLower(when); strings.HasPrefix(lower, "in ") {
		return parseRelativeTime(strings.TrimPrefix(lower, "in "))
	}

	formats := []string{
		time.RFC3339,
		"2006-01-02T15:04:05",
		"2006-01-02 15:04:05",
		"2006-01-02 15:04",
		"Jan 2 15:04",
		"Jan 2 3:04 PM",
		"3:04 PM",
		"15:04",
	}
	for _, format := range formats {
		if t, err := time.Parse(format, when); err == nil {
			if t.Year() == 0 {
				now := time.Now()
				t = time.Date(now.Year(), now.Month(), now.Day(), t.Hour(), t.Minute(), t.Second(), 0, time.Local)
				if t.Before(now) {
					t = t.Add(24 * time.Hour)
				}
			}
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("could not parse time: %s", when)
}

var relativeTimePattern = regexp.MustCompile(`^(\d+(?:\.\d+)?)\s*(seconds?|minutes?|mins?|hours?|hrs?|days?|weeks?)$`)

func parseRelativeTime(s string) (time.Time, error) {
	s = strings.TrimSpace(strings.ToLower(s))
	matches := relativeTimePattern.FindStringSubmatch(s)
	if matches == nil {
		return time.Time{}, fmt.Errorf("invalid relative time: %s", s)
	}
	amount, err := strconv.ParseFloat(matches[1], 64)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid number: %s", matches[1])
	}
	unit := matches[2]
	var duration time.Duration
	switch {
	case strings.HasPrefix(unit, "second"):
		duration = time.Duration(amount * float64(time.Second))
	case strings.HasPrefix(unit, "min"):
		duration = time.Duration(amount * float64(time.Minute))
	case strings.HasPrefix(unit, "hour"), strings.HasPrefix(unit, "hr"):
		duration = time.Duration(amount * float64(time.Hour))
	case strings.HasPrefix(unit, "day"):
		duration = time.Duration(amount * float64(24*time.Hour))
	case strings.HasPrefix(unit, "week"):
		duration = time.Duration(amount * float64(7*24*time.Hour))
	default:
		return time.Time{}, fmt.Errorf("unknown unit: %s", unit)
	}
	return time.Now().Add(duration), nil
}
