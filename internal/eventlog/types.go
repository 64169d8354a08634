// Package eventlog implements an append-only, per-task workflow event log.
// Every state transition an orchestration task goes through — assignment,
// progress, blocking on approval, completion — is appended as an immutable
// event. A Projector folds the event stream for a task into its current
// TaskState, the same way a ledger's running balance is derived from its
// entries rather than stored independently.
package eventlog

import (
	"encoding/json"
	"regexp"
	"time"
)

// Phase identifies the kind of transition an Event records.
type Phase string

const (
	PhaseAssign   Phase = "assign"
	PhaseProgress Phase = "progress"
	PhaseBlocked  Phase = "blocked"
	PhaseApproval Phase = "approval"
	PhaseDone     Phase = "done"
)

// Source identifies what originated an Event.
type Source string

const (
	SourceOutbound Source = "outbound"
	SourceInbound  Source = "inbound"
	SourceSystem   Source = "system"
)

// Status is the task-level state a Phase projects onto.
type Status string

const (
	StatusRunning         Status = "running"
	StatusCompleted       Status = "completed"
	StatusWaitingApproval Status = "waiting_approval"
	StatusFailed          Status = "failed"
)

// FailureNote, when set as an event's Note on a PhaseDone event, marks the
// task as failed rather than completed.
const FailureNote = "failed"

// approvalLanguage matches a blocked event's Summary that names an approval
// wait rather than a hard stop/§4.B's blocked→waiting_approval
// carve-out.
var approvalLanguage = regexp.MustCompile(`(?i)approve|approval|승인|허용|대기`)

// Event is a single immutable entry in a task's workflow log.
type Event struct {
	// EventID is a caller-supplied idempotency key. Appending an event whose
	// EventID already exists for the task is a no-op, not an error: callers
	// that retry a publish after a timeout must not double-record it.
	EventID string `json:"event_id"`

	TaskID string `json:"task_id"`
	Phase  Phase  `json:"phase"`

	// RunID groups every event a single task execution (one pass through
	// the router's task loop) produced, distinct from TaskID which survives
	// across resumes.
	RunID string `json:"run_id,omitempty"`

	// AgentID names the agent/alias that produced this event.
	AgentID string `json:"agent_id,omitempty"`

	// Summary is a short, human-readable description of this step. It seeds
	// TaskState.Title on first sighting and drives the blocked→waiting_approval
	// carve-out.
	Summary string `json:"summary,omitempty"`

	Payload json.RawMessage `json:"payload,omitempty"`
	Note    string          `json:"note,omitempty"`

	// Provider/Channel/ChatID/ThreadID carry the originating transport
	// coordinates, mirroring router.Request, so a task can be resumed
	// without consulting any other store.
	Provider string `json:"provider,omitempty"`
	Channel  string `json:"channel,omitempty"`
	ChatID   string `json:"chat_id,omitempty"`
	ThreadID string `json:"thread_id,omitempty"`

	// Source classifies who produced the event.
	Source Source `json:"source,omitempty"`

	// DetailFile optionally references an out-of-band blob (a transcript
	// excerpt, a tool result dump) too large to carry inline in Summary.
	// ReadTaskDetail surfaces it alongside the event's inline detail text.
	DetailFile string `json:"detail_file,omitempty"`

	// MaxTurns, when set on an event (typically the assign event), seeds
	// TaskState.MaxTurns. It has no effect once the task's MaxTurns is
	// already non-zero.
	MaxTurns int `json:"max_turns,omitempty"`

	CreatedAt time.Time `json:"created_at"`

	// SeqNum is assigned by the store on append and defines total order
	// within a task's event stream.
	SeqNum int64 `json:"seq_num"`
}

// ProjectedStatus derives the task status an event's Phase would leave the
// task in. A PhaseDone event whose Note is FailureNote projects to
// StatusFailed instead of StatusCompleted. A PhaseBlocked event projects to
// StatusWaitingApproval only when its Summary uses approval language;
// otherwise blocked is treated as a hard failure.
func (e Event) ProjectedStatus() Status {
	switch e.Phase {
	case PhaseDone:
		if e.Note == FailureNote {
			return StatusFailed
		}
		return StatusCompleted
	case PhaseApproval:
		return StatusWaitingApproval
	case PhaseBlocked:
		if approvalLanguage.MatchString(e.Summary) {
			return StatusWaitingApproval
		}
		return StatusFailed
	default:
		return StatusRunning
	}
}

// detailText returns the event's inline detail body, preferring Summary
// over Note so callers that only set one of the two still read sensibly.
func (e Event) detailText() string {
	if e.Summary != "" {
		return e.Summary
	}
	return e.Note
}

// TaskState is the materialized view of a task as of its most recent event.
type TaskState struct {
	TaskID string `json:"task_id"`

	// Title is set once, on the task's first event, to Summary (trimmed to
	// 120 runes) or "Workflow:<task_id>" if no summary was given.
	Title string `json:"title"`

	// CurrentTurn counts applied events for this task and strictly
	// increases by 1 per append (testable property #5).
	CurrentTurn int `json:"current_turn"`

	// MaxTurns is seeded from the first event that carries a non-zero
	// Event.MaxTurns and held thereafter.
	MaxTurns int `json:"max_turns,omitempty"`

	Status Status `json:"status"`

	// CurrentStep holds the most recent event's detail text, overwritten on
	// every append.
	CurrentStep string `json:"current_step,omitempty"`

	// Memory carries provenance merged in from each event under the
	// "workflow" key.
	Memory map[string]any `json:"memory,omitempty"`

	// ExitReason is set once the task reaches StatusFailed, taken from the
	// terminal event's Note or Summary.
	ExitReason string `json:"exit_reason,omitempty"`

	LastPhase   Phase     `json:"last_phase"`
	LastEventID string    `json:"last_event_id"`
	UpdatedAt   time.Time `json:"updated_at"`

	// EventCount is retained as a synonym for CurrentTurn for callers that
	// only care about total events applied.
	EventCount int `json:"event_count"`
}

// Filter narrows a List call. Zero-valued fields are
// unconstrained. Limit <= 0 means unbounded; Offset < 0 is treated as 0.
type Filter struct {
	Phase  Phase
	TaskID string
	RunID  string
	AgentID string
	ChatID string
	Source Source
	Limit  int
	Offset int
}

// Matches reports whether e satisfies every constrained field of f.
func (f Filter) Matches(e Event) bool {
	if f.Phase != "" && e.Phase != f.Phase {
		return false
	}
	if f.TaskID != "" && e.TaskID != f.TaskID {
		return false
	}
	if f.RunID != "" && e.RunID != f.RunID {
		return false
	}
	if f.AgentID != "" && e.AgentID != f.AgentID {
		return false
	}
	if f.ChatID != "" && e.ChatID != f.ChatID {
		return false
	}
	if f.Source != "" && e.Source != f.Source {
		return false
	}
	return true
}
