package opsruntime

import (
	"context"
	"sort"
	"time"

	"github.com/relaygrid/orchestrator/internal/cronsched"
	"github.com/relaygrid/orchestrator/internal/eventlog"
)

// nowFunc is overridable for tests.
var nowFunc = time.Now

// runWatchdogTick scans every known task for ones stuck in StatusRunning
// whose last event is older than TaskRecoveryRetry, and resumes up to
// TaskRecoveryBatch of them (oldest first). A task id
// follows the "task:<provider>:<chat_id>:<alias>" convention from §4.B, so
// Resume can reconstruct enough context to synthesize a resume message.
func (r *Runtime) runWatchdogTick(ctx context.Context, job *cronsched.Job) error {
	if r.EventLog == nil || r.Resume == nil {
		return nil
	}

	states := r.EventLog.Projector.States()
	now := nowFunc()

	var stale []eventlog.TaskState
	for _, st := range states {
		if st.Status != eventlog.StatusRunning {
			continue
		}
		if now.Sub(st.UpdatedAt) < r.TaskRecoveryRetry {
			continue
		}
		stale = append(stale, st)
	}

	sort.Slice(stale, func(i, j int) bool { return stale[i].UpdatedAt.Before(stale[j].UpdatedAt) })

	if r.Metrics != nil {
		r.Metrics.TasksStale.Set(float64(len(stale)))
	}

	batch := stale
	if r.TaskRecoveryBatch > 0 && len(batch) > r.TaskRecoveryBatch {
		batch = batch[:r.TaskRecoveryBatch]
	}

	for _, st := range batch {
		if err := r.Resume.Resume(ctx, st.TaskID); err != nil {
			r.Logger.Warn("task resume failed", "task_id", st.TaskID, "error", err)
			continue
		}
		if r.Metrics != nil {
			r.Metrics.TasksResumed.Inc()
		}
		r.Logger.Info("resumed stale task", "task_id", st.TaskID, "title", st.Title,
			"last_phase", st.LastPhase, "current_turn", st.CurrentTurn)
	}

	return nil
}
