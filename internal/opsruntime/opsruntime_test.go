package opsruntime

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/relaygrid/orchestrator/internal/cronsched"
	"github.com/relaygrid/orchestrator/internal/eventlog"
)

func newTestRuntime(t *testing.T) *Runtime {
	t.Helper()
	sched, err := cronsched.NewScheduler(t.TempDir())
	if err != nil {
		t.Fatalf("new scheduler: %v", err)
	}
	log := eventlog.NewLog(eventlog.NewMemoryStore())
	return New(sched, log, prometheus.NewRegistry())
}

func TestRegisterJobsInstallsAllFourTicks(t *testing.T) {
	rt := newTestRuntime(t)
	if err := rt.RegisterJobs(); err != nil {
		t.Fatalf("RegisterJobs: %v", err)
	}

	ids := map[string]bool{}
	for _, job := range rt.Scheduler.Jobs() {
		ids[job.ID] = true
	}
	for _, want := range []string{JobHealth, JobWatchdog, JobBridgePump, JobDecisionDedupe} {
		if !ids[want] {
			t.Fatalf("expected job %q registered, got %v", want, ids)
		}
	}
}

type fakeHealth struct{ err error }

func (f fakeHealth) CheckHealth(ctx context.Context) error { return f.err }

func TestHealthTickLogsOnlyOnChange(t *testing.T) {
	rt := newTestRuntime(t)
	rt.Health = fakeHealth{}

	if err := rt.runHealthTick(context.Background(), nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rt.lastHealthy == nil || !*rt.lastHealthy {
		t.Fatal("expected healthy state recorded")
	}

	rt.Health = fakeHealth{err: errors.New("boom")}
	if err := rt.runHealthTick(context.Background(), nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rt.lastHealthy == nil || *rt.lastHealthy {
		t.Fatal("expected unhealthy state recorded")
	}
}

type fakeResumer struct{ resumed []string }

func (f *fakeResumer) Resume(ctx context.Context, taskID string) error {
	f.resumed = append(f.resumed, taskID)
	return nil
}

func TestWatchdogResumesStaleTasksOnly(t *testing.T) {
	rt := newTestRuntime(t)
	resumer := &fakeResumer{}
	rt.Resume = resumer
	rt.TaskRecoveryRetry = time.Minute

	ctx := context.Background()
	old := time.Now().Add(-time.Hour)
	fresh := time.Now()

	mustAppend := func(taskID string, createdAt time.Time) {
		if _, err := rt.EventLog.Store.Append(ctx, eventlog.Event{
			EventID:   taskID + ":assign",
			TaskID:    taskID,
			Phase:     eventlog.PhaseAssign,
			CreatedAt: createdAt,
		}); err != nil {
			t.Fatalf("append: %v", err)
		}
		if _, err := rt.EventLog.State(ctx, taskID); err != nil {
			t.Fatalf("state: %v", err)
		}
	}
	mustAppend("task:telegram:chat-1:default", old)
	mustAppend("task:telegram:chat-2:default", fresh)

	if err := rt.runWatchdogTick(ctx, nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(resumer.resumed) != 1 || resumer.resumed[0] != "task:telegram:chat-1:default" {
		t.Fatalf("expected only the stale task resumed, got %v", resumer.resumed)
	}
}

func TestWatchdogRespectsBatchCap(t *testing.T) {
	rt := newTestRuntime(t)
	resumer := &fakeResumer{}
	rt.Resume = resumer
	rt.TaskRecoveryRetry = time.Minute
	rt.TaskRecoveryBatch = 1

	ctx := context.Background()
	old := time.Now().Add(-time.Hour)
	for _, id := range []string{"task:a:1:x", "task:a:2:x", "task:a:3:x"} {
		if _, err := rt.EventLog.Store.Append(ctx, eventlog.Event{
			EventID: id, TaskID: id, Phase: eventlog.PhaseAssign, CreatedAt: old,
		}); err != nil {
			t.Fatalf("append: %v", err)
		}
		if _, err := rt.EventLog.State(ctx, id); err != nil {
			t.Fatalf("state: %v", err)
		}
	}

	if err := rt.runWatchdogTick(ctx, nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(resumer.resumed) != 1 {
		t.Fatalf("expected batch cap of 1, resumed %d", len(resumer.resumed))
	}
}

func TestDecisionDedupeTickEvictsStaleEntries(t *testing.T) {
	rt := newTestRuntime(t)
	store := NewMemoryDedupeStore()
	rt.Dedupe = store

	store.Mark("k1")
	store.seen["k1"] = time.Now().Add(-time.Hour)

	if err := rt.runDecisionDedupeTick(context.Background(), nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, ok := store.seen["k1"]; ok {
		t.Fatal("expected stale entry to be evicted")
	}
}

func TestBridgePumpNoopWhenDisabled(t *testing.T) {
	rt := newTestRuntime(t)
	called := false
	rt.Bridge = bridgeFunc(func(ctx context.Context) error { called = true; return nil })
	rt.BridgeEnabled = false

	if err := rt.runBridgePumpTick(context.Background(), nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if called {
		t.Fatal("expected bridge not to be pumped while disabled")
	}

	rt.BridgeEnabled = true
	if err := rt.runBridgePumpTick(context.Background(), nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !called {
		t.Fatal("expected bridge to be pumped once enabled")
	}
}

type bridgeFunc func(ctx context.Context) error

func (f bridgeFunc) Pump(ctx context.Context) error { return f(ctx) }
