package cronsched

import (
	"context"
	"fmt"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"
)

func TestScheduleNextAt(t *testing.T) {
	fire := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	sched := NewAtSchedule(fire)

	next, ok, err := sched.Next(fire.Add(-time.Minute))
	if err != nil {
		t.Fatalf("Next() error = %v", err)
	}
	if !ok || !next.Equal(fire) {
		t.Fatalf("Next() = %v, %v, want %v, true", next, ok, fire)
	}

	_, ok, err = sched.Next(fire.Add(time.Minute))
	if err != nil {
		t.Fatalf("Next() error = %v", err)
	}
	if ok {
		t.Error("expected Next() to report no further occurrences after the at-time has passed")
	}
}

func TestScheduleNextEvery(t *testing.T) {
	sched, err := NewEverySchedule(10 * time.Minute)
	if err != nil {
		t.Fatalf("NewEverySchedule() error = %v", err)
	}
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	next, ok, err := sched.Next(now)
	if err != nil || !ok {
		t.Fatalf("Next() = %v, %v, %v", next, ok, err)
	}
	if !next.Equal(now.Add(10 * time.Minute)) {
		t.Errorf("Next() = %v, want %v", next, now.Add(10*time.Minute))
	}
}

func TestScheduleNextCronInvalid(t *testing.T) {
	if _, err := NewCronSchedule("not a cron expression !!", ""); err == nil {
		t.Error("expected NewCronSchedule to reject a malformed expression")
	}
}

func TestRetryPolicyBackoff(t *testing.T) {
	p := RetryPolicy{MaxRetries: 5, BaseDelay: time.Second, MaxDelay: 10 * time.Second}
	got := []time.Duration{
		p.delayForAttempt(1),
		p.delayForAttempt(2),
		p.delayForAttempt(3),
		p.delayForAttempt(4),
		p.delayForAttempt(5),
	}
	want := []time.Duration{
		time.Second, 2 * time.Second, 4 * time.Second, 8 * time.Second, 10 * time.Second,
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("delayForAttempt(%d) = %v, want %v", i+1, got[i], want[i])
		}
	}
}

func TestLeaseAcquireExcludesConcurrentHolder(t *testing.T) {
	dir := t.TempDir()
	lease, err := NewLease(dir, time.Minute)
	if err != nil {
		t.Fatalf("NewLease() error = %v", err)
	}

	ok1, release1, err := lease.Acquire("job-a")
	if err != nil || !ok1 {
		t.Fatalf("first Acquire() = %v, %v", ok1, err)
	}
	ok2, _, err := lease.Acquire("job-a")
	if err != nil {
		t.Fatalf("second Acquire() error = %v", err)
	}
	if ok2 {
		t.Error("expected second Acquire() to fail while first holder's lease is live")
	}
	release1()

	ok3, release3, err := lease.Acquire("job-a")
	if err != nil || !ok3 {
		t.Fatalf("Acquire() after release = %v, %v", ok3, err)
	}
	release3()
}

func TestLeaseReclaimsStaleLock(t *testing.T) {
	dir := t.TempDir()
	lease, err := NewLease(dir, 10*time.Millisecond)
	if err != nil {
		t.Fatalf("NewLease() error = %v", err)
	}

	ok1, _, err := lease.Acquire("job-a")
	if err != nil || !ok1 {
		t.Fatalf("first Acquire() = %v, %v", ok1, err)
	}

	time.Sleep(50 * time.Millisecond)

	ok2, release2, err := lease.Acquire("job-a")
	if err != nil {
		t.Fatalf("Acquire() after staleness error = %v", err)
	}
	if !ok2 {
		t.Fatal("expected Acquire() to reclaim a stale lease")
	}
	release2()
}

func TestSchedulerRunsDueJobExactlyOnce(t *testing.T) {
	dir := t.TempDir()
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	clock := now
	s, err := NewScheduler(filepath.Join(dir, "leases"), WithNow(func() time.Time { return clock }))
	if err != nil {
		t.Fatalf("NewScheduler() error = %v", err)
	}

	var calls int32
	sched, err := NewEverySchedule(time.Minute)
	if err != nil {
		t.Fatalf("NewEverySchedule() error = %v", err)
	}
	job := NewJob("j1", "test job", sched, HandlerFunc(func(ctx context.Context, job *Job) error {
		atomic.AddInt32(&calls, 1)
		return nil
	}))
	if err := s.RegisterJob(job); err != nil {
		t.Fatalf("RegisterJob() error = %v", err)
	}

	// The first run of an every schedule is one interval after registration.
	clock = clock.Add(time.Minute)
	s.RunOnce(context.Background())
	s.RunOnce(context.Background())

	if got := atomic.LoadInt32(&calls); got != 1 {
		t.Fatalf("handler called %d times in two RunOnce calls within one interval, want 1", got)
	}

	clock = clock.Add(2 * time.Minute)
	s.RunOnce(context.Background())
	if got := atomic.LoadInt32(&calls); got != 2 {
		t.Fatalf("handler called %d times after advancing past the interval, want 2", got)
	}
}

func TestSchedulerRetriesFailedJob(t *testing.T) {
	dir := t.TempDir()
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	clock := now
	s, err := NewScheduler(filepath.Join(dir, "leases"), WithNow(func() time.Time { return clock }))
	if err != nil {
		t.Fatalf("NewScheduler() error = %v", err)
	}

	sched, err := NewEverySchedule(time.Hour)
	if err != nil {
		t.Fatalf("NewEverySchedule() error = %v", err)
	}
	job := NewJob("j1", "flaky job", sched, HandlerFunc(func(ctx context.Context, job *Job) error {
		return fmt.Errorf("boom")
	}))
	job.Retry = RetryPolicy{MaxRetries: 3, BaseDelay: time.Minute, MaxDelay: time.Hour}
	if err := s.RegisterJob(job); err != nil {
		t.Fatalf("RegisterJob() error = %v", err)
	}

	// The first run of an every schedule is one interval after registration.
	clock = clock.Add(time.Hour)
	s.RunOnce(context.Background())

	if job.retryCount != 1 {
		t.Fatalf("retryCount after one failure = %d, want 1", job.retryCount)
	}
	if !job.nextRun.Equal(clock.Add(time.Minute)) {
		t.Fatalf("nextRun after failure = %v, want %v (backoff, earlier than the 1h natural schedule)", job.nextRun, clock.Add(time.Minute))
	}

	execs, err := s.Executions(context.Background(), "j1", 0, 0)
	if err != nil {
		t.Fatalf("Executions() error = %v", err)
	}
	if len(execs) != 1 || execs[0].Status != ExecutionFailed {
		t.Fatalf("Executions() = %+v, want one failed execution", execs)
	}
}
