package eventlog

import (
	"context"
	"strings"
	"testing"
)

func TestAppendDedupByEventID(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	e := Event{TaskID: "t1", EventID: "ev1", Phase: PhaseAssign}
	appended, first, err := store.Append(ctx, e)
	if err != nil {
		t.Fatalf("Append() error = %v", err)
	}
	if !appended {
		t.Fatal("expected first Append to report appended=true")
	}

	appended2, second, err := store.Append(ctx, e)
	if err != nil {
		t.Fatalf("Append() (retry) error = %v", err)
	}
	if appended2 {
		t.Error("expected retried Append with same EventID to report appended=false")
	}
	if second.SeqNum != first.SeqNum {
		t.Errorf("retried Append returned SeqNum %d, want %d", second.SeqNum, first.SeqNum)
	}

	events, err := store.ListEvents(ctx, "t1")
	if err != nil {
		t.Fatalf("ListEvents() error = %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("ListEvents() returned %d events, want 1 (dedup failed)", len(events))
	}
}

func TestProjectorPhaseToStatus(t *testing.T) {
	cases := []struct {
		name    string
		phase   Phase
		note    string
		summary string
		want    Status
	}{
		{"assign", PhaseAssign, "", "", StatusRunning},
		{"progress", PhaseProgress, "", "", StatusRunning},
		{"blocked without approval language", PhaseBlocked, "", "waiting on filesystem lock", StatusFailed},
		{"blocked with approval language", PhaseBlocked, "", "blocked pending approval from on-call", StatusWaitingApproval},
		{"blocked with korean approval language", PhaseBlocked, "", "승인 대기 중", StatusWaitingApproval},
		{"approval", PhaseApproval, "", "", StatusWaitingApproval},
		{"done", PhaseDone, "", "", StatusCompleted},
		{"done failed", PhaseDone, FailureNote, "", StatusFailed},
	}
	for _, tc := range cases {
		p := NewProjector()
		st := p.Apply(Event{TaskID: "t", EventID: "e", Phase: tc.phase, Note: tc.note, Summary: tc.summary})
		if st.Status != tc.want {
			t.Errorf("%s: phase=%s note=%q summary=%q: status = %s, want %s",
				tc.name, tc.phase, tc.note, tc.summary, st.Status, tc.want)
		}
	}
}

func TestLogAppendIsIdempotentForProjection(t *testing.T) {
	log := NewLog(NewMemoryStore())
	ctx := context.Background()

	if _, err := log.Append(ctx, Event{TaskID: "t1", EventID: "e1", Phase: PhaseAssign}); err != nil {
		t.Fatalf("Append() error = %v", err)
	}
	st, err := log.Append(ctx, Event{TaskID: "t1", EventID: "e2", Phase: PhaseDone})
	if err != nil {
		t.Fatalf("Append() error = %v", err)
	}
	if st.Status != StatusCompleted || st.CurrentTurn != 2 {
		t.Fatalf("got %+v, want status=completed currentTurn=2", st)
	}

	// Re-append e2 (simulating a retried publish): must not double-count.
	st2, err := log.Append(ctx, Event{TaskID: "t1", EventID: "e2", Phase: PhaseDone})
	if err != nil {
		t.Fatalf("Append() (retry) error = %v", err)
	}
	if st2.CurrentTurn != 2 {
		t.Errorf("CurrentTurn after duplicate append = %d, want 2", st2.CurrentTurn)
	}
}

func TestRebuildFromStore(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	if _, _, err := store.Append(ctx, Event{TaskID: "t1", EventID: "e1", Phase: PhaseAssign}); err != nil {
		t.Fatalf("Append() error = %v", err)
	}
	if _, _, err := store.Append(ctx, Event{TaskID: "t1", EventID: "e2", Phase: PhaseProgress}); err != nil {
		t.Fatalf("Append() error = %v", err)
	}

	p := NewProjector()
	st, err := Rebuild(ctx, store, p, "t1")
	if err != nil {
		t.Fatalf("Rebuild() error = %v", err)
	}
	if st.CurrentTurn != 2 || st.Status != StatusRunning {
		t.Fatalf("Rebuild() = %+v, want currentTurn=2 status=running", st)
	}
}

// TestAssignProgressDoneProjection walks three events on one task
// (assign, progress, done) leave currentTurn=3 and status=completed.
func TestAssignProgressDoneProjection(t *testing.T) {
	log := NewLog(NewMemoryStore())
	ctx := context.Background()

	events := []Event{
		{TaskID: "t1", EventID: "e1", RunID: "r1", Phase: PhaseAssign, Summary: "starting import"},
		{TaskID: "t1", EventID: "e2", RunID: "r1", Phase: PhaseProgress, Summary: "halfway through"},
		{TaskID: "t1", EventID: "e3", RunID: "r1", Phase: PhaseDone, Summary: "import complete"},
	}
	var st TaskState
	var err error
	for _, e := range events {
		st, err = log.Append(ctx, e)
		if err != nil {
			t.Fatalf("Append(%s) error = %v", e.EventID, err)
		}
	}
	if st.Status != StatusCompleted {
		t.Errorf("status = %s, want completed", st.Status)
	}
	if st.CurrentTurn != 3 {
		t.Errorf("currentTurn = %d, want 3", st.CurrentTurn)
	}
	if st.Title != "starting import" {
		t.Errorf("title = %q, want %q (seeded from first event's summary)", st.Title, "starting import")
	}
}

func TestListFilter(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	store.Append(ctx, Event{TaskID: "t1", EventID: "e1", RunID: "r1", AgentID: "a1", ChatID: "c1", Phase: PhaseAssign})
	store.Append(ctx, Event{TaskID: "t2", EventID: "e2", RunID: "r2", AgentID: "a2", ChatID: "c2", Phase: PhaseAssign})
	store.Append(ctx, Event{TaskID: "t1", EventID: "e3", RunID: "r1", AgentID: "a1", ChatID: "c1", Phase: PhaseDone})

	byRun, err := store.List(ctx, Filter{RunID: "r1"})
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(byRun) != 2 {
		t.Fatalf("List(run_id=r1) returned %d events, want 2", len(byRun))
	}

	byPhase, err := store.List(ctx, Filter{Phase: PhaseDone})
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(byPhase) != 1 || byPhase[0].EventID != "e3" {
		t.Fatalf("List(phase=done) = %+v, want just e3", byPhase)
	}

	limited, err := store.List(ctx, Filter{Limit: 1})
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(limited) != 1 {
		t.Fatalf("List(limit=1) returned %d events, want 1", len(limited))
	}
}

func TestReadTaskDetail(t *testing.T) {
	log := NewLog(NewMemoryStore())
	ctx := context.Background()
	log.Append(ctx, Event{TaskID: "t1", EventID: "e1", RunID: "r1", AgentID: "a1", Phase: PhaseAssign, Summary: "starting"})
	log.Append(ctx, Event{TaskID: "t1", EventID: "e2", RunID: "r1", AgentID: "a1", Phase: PhaseDone, Summary: "done"})

	detail, err := log.ReadTaskDetail(ctx, "t1")
	if err != nil {
		t.Fatalf("ReadTaskDetail() error = %v", err)
	}
	if detail == "" {
		t.Fatal("ReadTaskDetail() returned empty string")
	}
	for _, want := range []string{"phase=assign", "run=r1", "agent=a1", "starting", "phase=done", "done"} {
		if !strings.Contains(detail, want) {
			t.Errorf("ReadTaskDetail() missing %q in:\n%s", want, detail)
		}
	}
}
