// Package opsruntime implements the ops runtime: the small set of
// background ticks every deployment needs regardless of which channels or
// modes are active — a health probe, a watchdog that resumes interrupted
// tasks, a disabled-by-default bridge pump, and a decision-dedupe sweep.
// Every tick is a cronsched job rather than a hand-rolled ticker, so the
// scheduler's lease and lifecycle guarantees apply to the runtime's own
// housekeeping too.
package opsruntime

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/relaygrid/orchestrator/internal/cronsched"
	"github.com/relaygrid/orchestrator/internal/eventlog"
)

// Default tick intervals and recovery thresholds.
const (
	HealthInterval         = 20 * time.Second
	WatchdogInterval       = 45 * time.Second
	BridgePumpInterval     = 5 * time.Second
	DecisionDedupeInterval = 5 * time.Minute

	DefaultTaskRecoveryRetry = 2 * time.Minute
	DefaultTaskRecoveryBatch = 5
)

// Job IDs registered against the scheduler, namespaced so they don't
// collide with a deployment's own cron jobs.
const (
	JobHealth         = "opsruntime:health"
	JobWatchdog       = "opsruntime:watchdog"
	JobBridgePump     = "opsruntime:bridge-pump"
	JobDecisionDedupe = "opsruntime:decision-dedupe"
)

// HealthChecker reports whether the deployment's dependencies (provider
// reachability, vault availability, etc.) are currently healthy.
type HealthChecker interface {
	CheckHealth(ctx context.Context) error
}

// Resumer resumes one stale task, synthesizing whatever "[workflow
// resume]" message the task loop needs to pick back up where it left off.
// Implemented by a router.Router-backed adapter in production; a test
// double in tests.
type Resumer interface {
	Resume(ctx context.Context, taskID string) error
}

// ResumerFunc adapts a function to Resumer.
type ResumerFunc func(ctx context.Context, taskID string) error

// Resume implements Resumer.
func (f ResumerFunc) Resume(ctx context.Context, taskID string) error { return f(ctx, taskID) }

// DecisionDedupeStore is the narrow surface the dedupe tick needs: a sweep
// that evicts entries older than ttl, returning how many were evicted.
type DecisionDedupeStore interface {
	EvictOlderThan(ttl time.Duration) int
}

// Runtime owns the four named background ticks and registers them against
// a cronsched.Scheduler. Runtime itself holds no goroutines — the
// scheduler's own Start/Stop lifecycle drives everything, matching
// the concurrency note.
type Runtime struct {
	Scheduler *cronsched.Scheduler
	EventLog  *eventlog.Log
	Health    HealthChecker
	Resume    Resumer
	Dedupe    DecisionDedupeStore
	Metrics   *Metrics
	Logger    *slog.Logger

	// Bridge is pumped by the bridge-pump tick when BridgeEnabled is true.
	Bridge BridgePump

	// BridgeEnabled toggles the bridge-pump tick's body; it is
	// disabled by default and the tick still registers (so enabling it is a
	// config flip, not a redeploy) but no-ops when false.
	BridgeEnabled bool

	// TaskRecoveryRetry is how long a running task's last event must be
	// stale before the watchdog considers it abandoned and resumable.
	TaskRecoveryRetry time.Duration

	// TaskRecoveryBatch caps how many stale tasks one watchdog tick
	// resumes, so a large backlog doesn't overwhelm the provider on the
	// first tick after an outage.
	TaskRecoveryBatch int

	lastHealthy *bool
}

// New returns a Runtime with spec-default intervals and recovery
// thresholds, ready for RegisterJobs. Pass prometheus.DefaultRegisterer in
// production, or a dedicated prometheus.NewRegistry() in tests.
func New(scheduler *cronsched.Scheduler, eventLog *eventlog.Log, reg prometheus.Registerer) *Runtime {
	return &Runtime{
		Scheduler:         scheduler,
		EventLog:          eventLog,
		Metrics:           NewMetrics(reg),
		Logger:            slog.Default().With("component", "opsruntime"),
		TaskRecoveryRetry: DefaultTaskRecoveryRetry,
		TaskRecoveryBatch: DefaultTaskRecoveryBatch,
	}
}

// RegisterJobs installs all four ticks on r.Scheduler. Call once during
// startup, before Scheduler.Start.
func (r *Runtime) RegisterJobs() error {
	if r.Scheduler == nil {
		return fmt.Errorf("opsruntime: no scheduler configured")
	}

	every := func(id, name string, interval time.Duration, handler cronsched.HandlerFunc) error {
		sched, err := cronsched.NewEverySchedule(interval)
		if err != nil {
			return fmt.Errorf("opsruntime: %s schedule: %w", name, err)
		}
		job := cronsched.NewJob(id, name, sched, handler)
		job.AllowOverlap = false
		return r.Scheduler.RegisterJob(job)
	}

	if err := every(JobHealth, "ops health check", HealthInterval, cronsched.HandlerFunc(r.runHealthTick)); err != nil {
		return err
	}
	if err := every(JobWatchdog, "ops task watchdog", WatchdogInterval, cronsched.HandlerFunc(r.runWatchdogTick)); err != nil {
		return err
	}
	if err := every(JobBridgePump, "ops bridge pump", BridgePumpInterval, cronsched.HandlerFunc(r.runBridgePumpTick)); err != nil {
		return err
	}
	if err := every(JobDecisionDedupe, "ops decision dedupe", DecisionDedupeInterval, cronsched.HandlerFunc(r.runDecisionDedupeTick)); err != nil {
		return err
	}
	return nil
}
