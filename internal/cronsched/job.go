package cronsched

import (
	"context"
	"time"
)

// Handler executes a job's body when its schedule fires. Returning a
// non-nil error marks the execution failed and is eligible for retry per
// the job's RetryPolicy.
type Handler interface {
	Run(ctx context.Context, job *Job) error
}

// HandlerFunc adapts a plain function to Handler.
type HandlerFunc func(ctx context.Context, job *Job) error

// Run implements Handler.
func (f HandlerFunc) Run(ctx context.Context, job *Job) error { return f(ctx, job) }

// RetryPolicy controls retry-with-backoff behavior after a failed
// execution.
type RetryPolicy struct {
	MaxRetries int
	BaseDelay  time.Duration
	MaxDelay   time.Duration
}

// DefaultRetryPolicy disables retries: a failed job simply waits for its
// next natural schedule fire.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxRetries: 0, BaseDelay: 30 * time.Second, MaxDelay: 10 * time.Minute}
}

// delayForAttempt returns an exponential backoff delay for the given
// 1-based retry attempt, capped at MaxDelay.
func (p RetryPolicy) delayForAttempt(attempt int) time.Duration {
	if attempt <= 0 {
		return 0
	}
	delay := p.BaseDelay
	for i := 1; i < attempt; i++ {
		delay *= 2
		if p.MaxDelay > 0 && delay > p.MaxDelay {
			return p.MaxDelay
		}
	}
	if p.MaxDelay > 0 && delay > p.MaxDelay {
		delay = p.MaxDelay
	}
	return delay
}

// Job is a registered, schedulable unit of work.
type Job struct {
	ID          string
	Name        string
	Schedule    Schedule
	Handler     Handler
	Enabled     bool
	Timeout     time.Duration
	Retry       RetryPolicy
	AllowOverlap bool

	nextRun    time.Time
	retryCount int
}

// NewJob constructs a Job with default timeout and retry policy.
func NewJob(id, name string, sched Schedule, handler Handler) *Job {
	return &Job{
		ID:       id,
		Name:     name,
		Schedule: sched,
		Handler:  handler,
		Enabled:  true,
		Timeout:  5 * time.Minute,
		Retry:    DefaultRetryPolicy(),
	}
}

// NextRun returns the job's next scheduled fire time.
func (j *Job) NextRun() time.Time { return j.nextRun }
