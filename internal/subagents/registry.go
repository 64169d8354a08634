// Package subagents implements the controller/executor subagent run loop:
// a short-lived, isolated agent that solves one assigned task, spun up with
// its own cancellation controller and cascade-cancelled along with its
// children. Refs persist as a JSON map written atomically when a run starts
// and when it reaches a terminal state, so a restart finds whatever was
// running and marks it failed.
package subagents

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Status is the subagent's terminal-state-monotonic lifecycle tag.
type Status string

const (
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

func (s Status) terminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusCancelled:
		return true
	}
	return false
}

// Ref is a snapshot of one subagent run's state.
type Ref struct {
	ID           string    `json:"id"`
	ParentID     string    `json:"parent_id,omitempty"`
	SessionID    string    `json:"session_id"`
	Name         string    `json:"name"`
	Task         string    `json:"task"`
	Status       Status    `json:"status"`
	CreatedAt    time.Time `json:"created_at"`
	CompletedAt  time.Time `json:"completed_at,omitempty"`
	Result       string    `json:"result,omitempty"`
	Error        string    `json:"error,omitempty"`
	AllowedTools []string  `json:"allowed_tools,omitempty"`
	DeniedTools  []string  `json:"denied_tools,omitempty"`
	Iterations   int       `json:"iterations"`
}

type run struct {
	ref    Ref
	cancel context.CancelFunc
}

// Registry tracks every spawned subagent: status, parent/child links for
// cascade cancellation, and an atomically-persisted snapshot. Persistence
// writes a temp file and renames it into place.
type Registry struct {
	mu            sync.Mutex
	runs          map[string]*run
	persistPath   string
	maxActive     int
	maxIterations int
	active        int

	deps Deps
}

// Deps bundles the callbacks a Registry needs from the rest of the system.
// Every field may be nil; a nil Announce/Handoff/ToolExec simply disables
// that behavior rather than panicking, matching the injected-callback
// pattern used by the cron and promise tools.
type Deps struct {
	// Controller runs the planning half of the loop (see controller.go).
	Controller Controller
	// Executor runs a single-turn completion (see executor.go).
	Executor Executor
	// ToolExec invokes a named tool by the orchestration router's tool
	// registry, returning its raw textual result.
	ToolExec func(ctx context.Context, ref Ref, name string, args json.RawMessage) (string, error)
	// StreamChunk forwards executor output chunks to the stream buffer (E);
	// the subagent loop does no dedup/flush-timing of its own.
	StreamChunk func(ref Ref, delta string)
	// Handoff is called once per deduplicated handoff a controller turn
	// emits, before the next executor call.
	Handoff func(ctx context.Context, ref Ref, h Handoff)
	// Announce is called when a run reaches a terminal state, publishing a
	// result (or cancellation) notice back onto the bus so the outer
	// orchestrator can react.
	Announce func(ctx context.Context, ref Ref)
}

// Options configures a Registry.
type Options struct {
	MaxActive     int
	MaxIterations int
	PersistPath   string
}

// NewRegistry returns a registry using deps for controller/executor/tool
// dispatch. If opts.PersistPath is non-empty, run snapshots are persisted
// there and restored on startup (best-effort; a corrupt or missing file
// simply starts empty).
func NewRegistry(deps Deps, opts Options) *Registry {
	if opts.MaxActive <= 0 {
		opts.MaxActive = 5
	}
	if opts.MaxIterations <= 0 {
		opts.MaxIterations = 15
	}
	r := &Registry{
		runs:          make(map[string]*run),
		persistPath:   opts.PersistPath,
		maxActive:     opts.MaxActive,
		maxIterations: opts.MaxIterations,
		deps:          deps,
	}
	r.restore()
	return r
}

// SpawnParams is the input to Spawn.
type SpawnParams struct {
	ParentID     string
	Name         string
	Task         string
	AllowedTools []string
	DeniedTools  []string
}

// Spawn allocates a short id, inserts a running ref, starts the run loop on
// a fresh cancellation controller in the background, and returns the ref
// immediately.
func (r *Registry) Spawn(ctx context.Context, params SpawnParams) (*Ref, error) {
	r.mu.Lock()
	if r.active >= r.maxActive {
		r.mu.Unlock()
		return nil, fmt.Errorf("subagents: max active runs reached (%d)", r.maxActive)
	}
	id := uuid.NewString()[:12]
	runCtx, cancel := context.WithCancel(context.Background())
	ref := Ref{
		ID:           id,
		ParentID:     params.ParentID,
		SessionID:    id,
		Name:         params.Name,
		Task:         params.Task,
		Status:       StatusRunning,
		CreatedAt:    time.Now(),
		AllowedTools: params.AllowedTools,
		DeniedTools:  params.DeniedTools,
	}
	r.runs[id] = &run{ref: ref, cancel: cancel}
	r.active++
	r.mu.Unlock()
	r.persist()

	go r.execute(runCtx, id)

	out := ref
	return &out, nil
}

// Get returns a snapshot of one run.
func (r *Registry) Get(id string) (Ref, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	run, ok := r.runs[id]
	if !ok {
		return Ref{}, false
	}
	return run.ref, true
}

// List returns every run whose ParentID equals parentID, sorted by
// CreatedAt. An empty parentID lists every run.
func (r *Registry) List(parentID string) []Ref {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Ref, 0, len(r.runs))
	for _, run := range r.runs {
		if parentID != "" && run.ref.ParentID != parentID {
			continue
		}
		out = append(out, run.ref)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

// children returns the IDs of every run whose ParentID equals id.
func (r *Registry) children(id string) []string {
	var out []string
	for rid, run := range r.runs {
		if run.ref.ParentID == id {
			out = append(out, rid)
		}
	}
	return out
}

// Cancel aborts a running subagent's controller. When cascade is true, it
// also cancels every descendant (depth-first, parent before children).
func (r *Registry) Cancel(ctx context.Context, id string, cascade bool) error {
	r.mu.Lock()
	run, ok := r.runs[id]
	if !ok {
		r.mu.Unlock()
		return fmt.Errorf("subagents: run not found: %s", id)
	}
	var childIDs []string
	if cascade {
		childIDs = r.children(id)
	}
	r.mu.Unlock()

	r.cancelOne(ctx, run, id)
	for _, cid := range childIDs {
		_ = r.Cancel(ctx, cid, true)
	}
	return nil
}

func (r *Registry) cancelOne(ctx context.Context, run *run, id string) {
	r.mu.Lock()
	if run.ref.Status.terminal() {
		r.mu.Unlock()
		return
	}
	run.ref.Status = StatusCancelled
	run.ref.Error = "cancelled"
	run.ref.CompletedAt = time.Now()
	r.active--
	announce := r.deps.Announce
	refCopy := run.ref
	r.mu.Unlock()

	run.cancel()
	r.persist()
	if announce != nil {
		announce(ctx, refCopy)
	}
}

func (r *Registry) complete(ctx context.Context, id string, status Status, result, errMsg string) {
	r.mu.Lock()
	run, ok := r.runs[id]
	if !ok || run.ref.Status.terminal() {
		r.mu.Unlock()
		return
	}
	run.ref.Status = status
	run.ref.Result = result
	run.ref.Error = errMsg
	run.ref.CompletedAt = time.Now()
	r.active--
	announce := r.deps.Announce
	refCopy := run.ref
	r.mu.Unlock()

	r.persist()
	if announce != nil {
		announce(ctx, refCopy)
	}
}

// ActiveCount returns the number of runs not yet in a terminal state.
func (r *Registry) ActiveCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.active
}

type persistedRun struct {
	Ref Ref `json:"ref"`
}

func (r *Registry) persist() {
	if r.persistPath == "" {
		return
	}
	r.mu.Lock()
	snapshot := make(map[string]persistedRun, len(r.runs))
	for id, run := range r.runs {
		snapshot[id] = persistedRun{Ref: run.ref}
	}
	r.mu.Unlock()

	data, err := json.MarshalIndent(snapshot, "", "  ")
	if err != nil {
		return
	}
	dir := filepath.Dir(r.persistPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return
	}
	tmp := r.persistPath + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return
	}
	_ = os.Rename(tmp, r.persistPath)
}

func (r *Registry) restore() {
	if r.persistPath == "" {
		return
	}
	data, err := os.ReadFile(r.persistPath)
	if err != nil {
		return
	}
	var snapshot map[string]persistedRun
	if err := json.Unmarshal(data, &snapshot); err != nil {
		return
	}
	for id, pr := range snapshot {
		ref := pr.Ref
		if !ref.Status.terminal() {
			// The process restarted mid-run; these can never resume since
			// their goroutine is gone, so mark them failed rather than
			// leaving a phantom "running" entry.
			ref.Status = StatusFailed
			ref.Error = "interrupted by restart"
			ref.CompletedAt = time.Now()
		}
		r.runs[id] = &run{ref: ref, cancel: func() {}}
	}
}
