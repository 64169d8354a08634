// Package croncall exposes the cron scheduler to the agent as a tool:
// list/status/run/register/unregister/executions/prune actions.
package croncall

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/relaygrid/orchestrator/internal/cronsched"
	"github.com/relaygrid/orchestrator/internal/toolregistry"
)

// OnFire is invoked when a tool-registered job's schedule fires. The
// scheduler itself has no notion of "what a job does" beyond this callback —
// it's how the orchestration router learns to resume a workflow or re-run a
// prompt on a schedule.
type OnFire func(ctx toolregistry.ExecContext, jobID string, payload json.RawMessage) error

// Tool exposes cron scheduler actions to the agent.
type Tool struct {
	scheduler *cronsched.Scheduler
	onFire    OnFire
}

// NewTool returns a cron tool backed by scheduler. Jobs registered through
// this tool invoke onFire when they run.
func NewTool(scheduler *cronsched.Scheduler, onFire OnFire) *Tool {
	return &Tool{scheduler: scheduler, onFire: onFire}
}

func (t *Tool) Name() string { return "cron" }
func (t *Tool) Description() string {
	return "Inspect and manage cron jobs (list/status/run/register/unregister/executions/prune)."
}
func (t *Tool) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"action":     map[string]any{"type": "string"},
			"id":         map[string]any{"type": "string"},
			"job":        map[string]any{"type": "object"},
			"job_id":     map[string]any{"type": "string"},
			"limit":      map[string]any{"type": "integer"},
			"offset":     map[string]any{"type": "integer"},
			"older_than": map[string]any{"type": "string"},
		},
		"required":             []any{"action"},
		"additionalProperties": false,
	}
}

// jobConfig is the wire shape for the "register" action's job object.
type jobConfig struct {
	ID             string          `json:"id"`
	Name           string          `json:"name"`
	ScheduleKind   string          `json:"schedule_kind"`
	At             time.Time       `json:"at,omitempty"`
	Every          string          `json:"every,omitempty"`
	CronExpr       string          `json:"cron_expr,omitempty"`
	Timezone       string          `json:"timezone,omitempty"`
	TimeoutSeconds int             `json:"timeout_seconds,omitempty"`
	MaxRetries     int             `json:"max_retries,omitempty"`
	Payload        json.RawMessage `json:"payload,omitempty"`
}

// jobInfo is the wire shape jobs are reported back as — cronsched.Job's
// Handler field can't be marshaled directly, so list/register responses
// project onto this instead.
type jobInfo struct {
	ID      string    `json:"id"`
	Name    string    `json:"name"`
	Enabled bool      `json:"enabled"`
	NextRun time.Time `json:"next_run"`
}

type toolParams struct {
	Action    string    `json:"action"`
	ID        string    `json:"id"`
	JobID     string    `json:"job_id"`
	Job       jobConfig `json:"job"`
	Limit     int       `json:"limit"`
	Offset    int       `json:"offset"`
	OlderThan string    `json:"older_than"`
}

func (t *Tool) Validate(params json.RawMessage) error {
	var in toolParams
	if err := json.Unmarshal(params, &in); err != nil {
		return err
	}
	if strings.TrimSpace(in.Action) == "" {
		return fmt.Errorf("action is required")
	}
	return nil
}

func (t *Tool) Execute(ec toolregistry.ExecContext, params json.RawMessage) (toolregistry.Result, error) {
	if t.scheduler == nil {
		return toolregistry.ErrorResult("cron scheduler unavailable"), nil
	}
	var in toolParams
	if err := json.Unmarshal(params, &in); err != nil {
		return toolregistry.ErrorResult(err.Error()), nil
	}
	action := strings.ToLower(strings.TrimSpace(in.Action))

	switch action {
	case "list", "status":
		jobs := t.scheduler.Jobs()
		infos := make([]jobInfo, 0, len(jobs))
		for _, j := range jobs {
			infos = append(infos, jobInfo{ID: j.ID, Name: j.Name, Enabled: j.Enabled, NextRun: j.NextRun()})
		}
		return jsonResult(map[string]any{"jobs": infos})

	case "run":
		id := strings.TrimSpace(in.ID)
		if id == "" {
			return toolregistry.ErrorResult("id is required"), nil
		}
		if err := t.scheduler.RunJob(ec.Context, id); err != nil {
			return toolregistry.ErrorResult(fmt.Sprintf("run job: %v", err)), nil
		}
		return jsonResult(map[string]any{"status": "ran", "id": id})

	case "register":
		if strings.TrimSpace(in.Job.ID) == "" {
			return toolregistry.ErrorResult("job.id is required"), nil
		}
		job, err := t.buildJob(ec, in.Job)
		if err != nil {
			return toolregistry.ErrorResult(fmt.Sprintf("register job: %v", err)), nil
		}
		if err := t.scheduler.RegisterJob(job); err != nil {
			return toolregistry.ErrorResult(fmt.Sprintf("register job: %v", err)), nil
		}
		return jsonResult(map[string]any{
			"status": "registered",
			"job":    jobInfo{ID: job.ID, Name: job.Name, Enabled: job.Enabled, NextRun: job.NextRun()},
		})

	case "unregister":
		id := strings.TrimSpace(in.ID)
		if id == "" {
			return toolregistry.ErrorResult("id is required"), nil
		}
		t.scheduler.UnregisterJob(id)
		return jsonResult(map[string]any{"status": "removed", "id": id})

	case "executions":
		jobID := strings.TrimSpace(in.JobID)
		execs, err := t.scheduler.Executions(ec.Context, jobID, in.Limit, in.Offset)
		if err != nil {
			return toolregistry.ErrorResult(fmt.Sprintf("list executions: %v", err)), nil
		}
		return jsonResult(map[string]any{"job_id": jobID, "executions": execs})

	case "prune":
		olderThan := strings.TrimSpace(in.OlderThan)
		if olderThan == "" {
			return toolregistry.ErrorResult("older_than is required"), nil
		}
		duration, err := time.ParseDuration(olderThan)
		if err != nil {
			return toolregistry.ErrorResult(fmt.Sprintf("invalid older_than: %v", err)), nil
		}
		count, err := t.scheduler.PruneExecutions(ec.Context, duration)
		if err != nil {
			return toolregistry.ErrorResult(fmt.Sprintf("prune executions: %v", err)), nil
		}
		return jsonResult(map[string]any{"status": "pruned", "count": count})

	default:
		return toolregistry.ErrorResult("unsupported action"), nil
	}
}

func (t *Tool) buildJob(ec toolregistry.ExecContext, cfg jobConfig) (*cronsched.Job, error) {
	var (
		sched cronsched.Schedule
		err   error
	)
	switch strings.ToLower(strings.TrimSpace(cfg.ScheduleKind)) {
	case "at":
		sched = cronsched.NewAtSchedule(cfg.At)
	case "every":
		d, parseErr := time.ParseDuration(cfg.Every)
		if parseErr != nil {
			return nil, fmt.Errorf("invalid every duration: %w", parseErr)
		}
		sched, err = cronsched.NewEverySchedule(d)
	case "cron":
		sched, err = cronsched.NewCronSchedule(cfg.CronExpr, cfg.Timezone)
	default:
		return nil, fmt.Errorf("unknown schedule_kind %q", cfg.ScheduleKind)
	}
	if err != nil {
		return nil, err
	}

	payload := cfg.Payload
	jobID := cfg.ID
	handler := cronsched.HandlerFunc(func(ctx context.Context, job *cronsched.Job) error {
		if t.onFire == nil {
			return nil
		}
		firedCtx := ec
		firedCtx.Context = ctx
		return t.onFire(firedCtx, jobID, payload)
	})

	job := cronsched.NewJob(cfg.ID, cfg.Name, sched, handler)
	if cfg.TimeoutSeconds > 0 {
		job.Timeout = time.Duration(cfg.TimeoutSeconds) * time.Second
	}
	if cfg.MaxRetries > 0 {
		job.Retry.MaxRetries = cfg.MaxRetries
	}
	return job, nil
}

func jsonResult(payload any) (toolregistry.Result, error) {
	encoded, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return toolregistry.ErrorResult(fmt.Sprintf("encode result: %v", err)), nil
	}
	return toolregistry.Result{Content: string(encoded)}, nil
}
