package opsruntime

import (
	"context"

	"github.com/relaygrid/orchestrator/internal/cronsched"
)

// runHealthTick probes r.Health (if configured) and logs only when the
// result changes from the previous tick — a healthy
// deployment should not spam logs every 20 seconds, but a flap must be
// visible immediately.
func (r *Runtime) runHealthTick(ctx context.Context, job *cronsched.Job) error {
	if r.Health == nil {
		return nil
	}

	err := r.Health.CheckHealth(ctx)
	healthy := err == nil

	if healthy {
		r.Metrics.Healthy.Set(1)
	} else {
		r.Metrics.Healthy.Set(0)
	}

	if r.lastHealthy == nil || *r.lastHealthy != healthy {
		if healthy {
			r.Logger.Info("health check recovered")
		} else {
			r.Logger.Error("health check failing", "error", err)
		}
		h := healthy
		r.lastHealthy = &h
	}

	return nil
}
