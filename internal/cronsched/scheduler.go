package cronsched

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

const defaultTickInterval = 5 * time.Second

// Scheduler runs registered Jobs on their schedules, coordinating against
// concurrent instances via a filesystem Lease and recording history in an
// ExecutionStore.
type Scheduler struct {
	mu      sync.Mutex
	jobs    map[string]*Job
	lease   *Lease
	history ExecutionStore
	logger  *slog.Logger
	now     func() time.Time

	tickInterval time.Duration
	started      bool
	stop         chan struct{}
	wg           sync.WaitGroup
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithLogger sets the scheduler's logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Scheduler) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithExecutionStore sets the execution history store.
func WithExecutionStore(store ExecutionStore) Option {
	return func(s *Scheduler) {
		if store != nil {
			s.history = store
		}
	}
}

// WithNow overrides the scheduler's clock, for tests.
func WithNow(now func() time.Time) Option {
	return func(s *Scheduler) {
		if now != nil {
			s.now = now
		}
	}
}

// WithTickInterval overrides how often the scheduler checks for due jobs.
func WithTickInterval(d time.Duration) Option {
	return func(s *Scheduler) {
		if d > 0 {
			s.tickInterval = d
		}
	}
}

// NewScheduler constructs a Scheduler whose lock files live under leaseDir.
func NewScheduler(leaseDir string, opts ...Option) (*Scheduler, error) {
	lease, err := NewLease(leaseDir, DefaultLeaseDuration)
	if err != nil {
		return nil, err
	}
	s := &Scheduler{
		jobs:         make(map[string]*Job),
		lease:        lease,
		history:      NewMemoryExecutionStore(),
		logger:       slog.Default().With("component", "cronsched"),
		now:          time.Now,
		tickInterval: defaultTickInterval,
		stop:         make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// RegisterJob adds or replaces a job, computing its first NextRun.
func (s *Scheduler) RegisterJob(job *Job) error {
	if job == nil || job.ID == "" {
		return fmt.Errorf("cronsched: job requires a non-empty ID")
	}
	next, ok, err := job.Schedule.Next(s.now())
	if err != nil {
		return fmt.Errorf("cronsched: register %q: %w", job.ID, err)
	}
	job.nextRun = next
	if !ok {
		job.nextRun = time.Time{}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs[job.ID] = job
	return nil
}

// UnregisterJob removes a job by ID.
func (s *Scheduler) UnregisterJob(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.jobs, id)
}

// Jobs returns a snapshot of all registered jobs.
func (s *Scheduler) Jobs() []*Job {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*Job, 0, len(s.jobs))
	for _, j := range s.jobs {
		out = append(out, j)
	}
	return out
}

// Start begins the tick loop in a background goroutine.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return
	}
	s.started = true
	s.mu.Unlock()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(s.tickInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-s.stop:
				return
			case <-ticker.C:
				s.runDue(ctx)
			}
		}
	}()
}

// Stop halts the tick loop and waits for any in-flight tick to finish.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return
	}
	s.started = false
	s.mu.Unlock()

	close(s.stop)
	s.wg.Wait()
}

// RunOnce runs whatever jobs are currently due. Exposed directly for tests
// and for a CLI "run due jobs now" entry point.
func (s *Scheduler) RunOnce(ctx context.Context) {
	s.runDue(ctx)
}

// RunJob forces an immediate run of the named job regardless of its
// schedule, for the croncall tool's "run" action. Returns an error if no
// job with that ID is registered.
func (s *Scheduler) RunJob(ctx context.Context, id string) error {
	s.mu.Lock()
	job, ok := s.jobs[id]
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("cronsched: job %q not found", id)
	}
	s.runJob(ctx, job)
	return nil
}

func (s *Scheduler) runDue(ctx context.Context) {
	now := s.now()
	var due []*Job

	s.mu.Lock()
	for _, job := range s.jobs {
		if !job.Enabled {
			continue
		}
		if job.nextRun.IsZero() || job.nextRun.After(now) {
			continue
		}
		due = append(due, job)
	}
	s.mu.Unlock()

	for _, job := range due {
		s.runJob(ctx, job)
	}
}

func (s *Scheduler) runJob(ctx context.Context, job *Job) {
	acquired, release, err := s.lease.Acquire(job.ID)
	if err != nil {
		s.logger.Error("lease acquire failed", "job_id", job.ID, "error", err)
		return
	}
	if !acquired {
		// Another scheduler instance holds the lease for this tick; it owns
		// advancing nextRun too, so we leave this job's schedule untouched.
		return
	}
	defer release()

	s.advanceNextRun(job)

	execCtx := ctx
	var cancel context.CancelFunc
	if job.Timeout > 0 {
		execCtx, cancel = context.WithTimeout(ctx, job.Timeout)
		defer cancel()
	}

	exec := &Execution{
		ID:        uuid.NewString(),
		JobID:     job.ID,
		Status:    ExecutionRunning,
		StartedAt: s.now(),
		Attempt:   job.retryCount + 1,
	}
	if err := s.history.Create(ctx, exec); err != nil {
		s.logger.Warn("failed to record execution start", "job_id", job.ID, "error", err)
	}

	runErr := job.Handler.Run(execCtx, job)

	exec.CompletedAt = s.now()
	exec.Duration = exec.CompletedAt.Sub(exec.StartedAt)
	if runErr != nil {
		exec.Status = ExecutionFailed
		exec.Error = runErr.Error()
		s.scheduleRetry(job)
		s.logger.Warn("job execution failed", "job_id", job.ID, "error", runErr, "attempt", exec.Attempt)
	} else {
		exec.Status = ExecutionSucceeded
		job.retryCount = 0
		s.logger.Info("job execution succeeded", "job_id", job.ID, "duration", exec.Duration)
	}
	if err := s.history.Update(ctx, exec); err != nil {
		s.logger.Warn("failed to record execution result", "job_id", job.ID, "error", err)
	}
}

// advanceNextRun computes the job's next natural fire time. It runs before
// the handler so a long or hanging execution never delays scheduling of
// the job's subsequent fires.
func (s *Scheduler) advanceNextRun(job *Job) {
	next, ok, err := job.Schedule.Next(s.now())
	s.mu.Lock()
	defer s.mu.Unlock()
	if err != nil || !ok {
		job.nextRun = time.Time{}
		return
	}
	job.nextRun = next
}

// scheduleRetry overrides a failed job's nextRun with a backoff delay if
// its RetryPolicy allows another attempt, otherwise leaves the natural
// schedule (already computed by advanceNextRun) in place.
func (s *Scheduler) scheduleRetry(job *Job) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if job.retryCount >= job.Retry.MaxRetries {
		job.retryCount = 0
		return
	}
	job.retryCount++
	delay := job.Retry.delayForAttempt(job.retryCount)
	retryAt := s.now().Add(delay)
	if job.nextRun.IsZero() || retryAt.Before(job.nextRun) {
		job.nextRun = retryAt
	}
}

// Executions returns recorded history for jobID (or all jobs if empty).
func (s *Scheduler) Executions(ctx context.Context, jobID string, limit, offset int) ([]*Execution, error) {
	return s.history.List(ctx, jobID, limit, offset)
}

// PruneExecutions removes execution history older than olderThan.
func (s *Scheduler) PruneExecutions(ctx context.Context, olderThan time.Duration) (int64, error) {
	return s.history.Prune(ctx, olderThan)
}
