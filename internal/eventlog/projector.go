package eventlog

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"
)

const maxTitleRunes = 120

// Projector folds a task's event stream into its current TaskState,
// keeping the projection in memory rather than re-deriving it from the full
// event history on every read.
type Projector struct {
	mu     sync.RWMutex
	states map[string]*TaskState
}

// NewProjector returns an empty Projector.
func NewProjector() *Projector {
	return &Projector{states: make(map[string]*TaskState)}
}

// Apply folds e into the task's running state, per the projection contract
//: derive status from phase, bump currentTurn by 1, replace
// currentStep, merge event provenance into memory.workflow, and seed title
// on first sighting. Call this once per successfully appended event — a
// deduped re-append (Store.Append returning appended=false) must not be
// re-applied, or the projection would not match what a cold rebuild from
// ListEvents produces.
func (p *Projector) Apply(e Event) TaskState {
	p.mu.Lock()
	defer p.mu.Unlock()

	st, ok := p.states[e.TaskID]
	if !ok {
		st = &TaskState{TaskID: e.TaskID, Title: taskTitle(e)}
		p.states[e.TaskID] = st
	}

	status := e.ProjectedStatus()
	st.Status = status
	st.LastPhase = e.Phase
	st.LastEventID = e.EventID
	st.UpdatedAt = e.CreatedAt
	st.CurrentTurn++
	st.EventCount = st.CurrentTurn
	st.CurrentStep = e.detailText()
	if st.MaxTurns == 0 && e.MaxTurns > 0 {
		st.MaxTurns = e.MaxTurns
	}
	if status == StatusFailed {
		st.ExitReason = e.detailText()
	}
	mergeWorkflowProvenance(st, e)

	out := *st
	return out
}

// taskTitle implements the title-seeding rule: Summary trimmed to
// 120 runes, or "Workflow:<task_id>" when no summary was given.
func taskTitle(e Event) string {
	s := strings.TrimSpace(e.Summary)
	if s == "" {
		return "Workflow:" + e.TaskID
	}
	r := []rune(s)
	if len(r) > maxTitleRunes {
		r = r[:maxTitleRunes]
	}
	return string(r)
}

// mergeWorkflowProvenance appends e's transport/agent provenance into
// st.Memory["workflow"], so a task resumed from its projection still knows
// where each step came from.
func mergeWorkflowProvenance(st *TaskState, e Event) {
	if st.Memory == nil {
		st.Memory = make(map[string]any)
	}
	entries, _ := st.Memory["workflow"].([]map[string]string)
	entries = append(entries, map[string]string{
		"event_id":  e.EventID,
		"run_id":    e.RunID,
		"agent_id":  e.AgentID,
		"phase":     string(e.Phase),
		"provider":  e.Provider,
		"channel":   e.Channel,
		"chat_id":   e.ChatID,
		"thread_id": e.ThreadID,
		"source":    string(e.Source),
	})
	st.Memory["workflow"] = entries
}

// State returns the current projected state for a task, and whether any
// events have been applied for it yet.
func (p *Projector) State(taskID string) (TaskState, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	st, ok := p.states[taskID]
	if !ok {
		return TaskState{}, false
	}
	return *st, true
}

// States returns a snapshot of every task's current projected state, for
// callers that need to scan all known tasks (e.g. a watchdog looking for
// resumable work) rather than look one up by id.
func (p *Projector) States() map[string]TaskState {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make(map[string]TaskState, len(p.states))
	for id, st := range p.states {
		out[id] = *st
	}
	return out
}

// Rebuild replays every event for a task from store into the projector,
// discarding whatever state it held in memory for that task. Used on
// startup (cold rebuild) and after detecting a gap in a live event stream.
func Rebuild(ctx context.Context, store Store, p *Projector, taskID string) (TaskState, error) {
	events, err := store.ListEvents(ctx, taskID)
	if err != nil {
		return TaskState{}, fmt.Errorf("eventlog: rebuild %q: %w", taskID, err)
	}

	p.mu.Lock()
	delete(p.states, taskID)
	p.mu.Unlock()

	var last TaskState
	for _, e := range events {
		last = p.Apply(e)
	}
	return last, nil
}

// Log couples a Store with a Projector so callers get dedup, ordering, and
// the materialized view behind one append call.
type Log struct {
	Store     Store
	Projector *Projector
}

// NewLog wires a Store to a fresh Projector.
func NewLog(store Store) *Log {
	return &Log{Store: store, Projector: NewProjector()}
}

// Append persists e (deduping by EventID) and, only for newly-appended
// events, folds it into the projection.
func (l *Log) Append(ctx context.Context, e Event) (TaskState, error) {
	appended, stored, err := l.Store.Append(ctx, e)
	if err != nil {
		return TaskState{}, err
	}
	if !appended {
		if st, ok := l.Projector.State(stored.TaskID); ok {
			return st, nil
		}
		return Rebuild(ctx, l.Store, l.Projector, stored.TaskID)
	}
	return l.Projector.Apply(stored), nil
}

// State returns the task's current projected state, rebuilding from the
// store if the projector hasn't seen this task yet (e.g. after a restart).
func (l *Log) State(ctx context.Context, taskID string) (TaskState, error) {
	if st, ok := l.Projector.State(taskID); ok {
		return st, nil
	}
	return Rebuild(ctx, l.Store, l.Projector, taskID)
}

// List returns events matching f.
func (l *Log) List(ctx context.Context, f Filter) ([]Event, error) {
	return l.Store.List(ctx, f)
}

// ReadTaskDetail concatenates every event recorded for taskID into detail
// blocks, each prefixed with its timestamp, phase, run and agent.
func (l *Log) ReadTaskDetail(ctx context.Context, taskID string) (string, error) {
	events, err := l.Store.ListEvents(ctx, taskID)
	if err != nil {
		return "", fmt.Errorf("eventlog: read task detail %q: %w", taskID, err)
	}

	var b strings.Builder
	for _, e := range events {
		fmt.Fprintf(&b, "[%s] phase=%s run=%s agent=%s\n",
			e.CreatedAt.Format(time.RFC3339), e.Phase, e.RunID, e.AgentID)
		if body := e.detailText(); body != "" {
			b.WriteString(body)
			b.WriteString("\n")
		}
		if e.DetailFile != "" {
			fmt.Fprintf(&b, "(detail: %s)\n", e.DetailFile)
		}
		b.WriteString("\n")
	}
	return strings.TrimRight(b.String(), "\n"), nil
}
