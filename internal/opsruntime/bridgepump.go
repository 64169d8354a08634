package opsruntime

import (
	"context"

	"github.com/relaygrid/orchestrator/internal/cronsched"
)

// BridgePump drains one batch of work from an external bridge (e.g. a
// message queue federating this deployment with another system). The
// ops runtime only knows how to call it on a schedule; what a "batch"
// means is the bridge implementation's concern.
type BridgePump interface {
	Pump(ctx context.Context) error
}

// Bridge, if set, is pumped by runBridgePumpTick when BridgeEnabled is
// true. Left nil (and BridgeEnabled false) in deployments that don't
// federate with an external bridge. Disabled by default.
func (r *Runtime) runBridgePumpTick(ctx context.Context, job *cronsched.Job) error {
	if !r.BridgeEnabled || r.Bridge == nil {
		return nil
	}
	if err := r.Bridge.Pump(ctx); err != nil {
		r.Logger.Warn("bridge pump failed", "error", err)
		return err
	}
	return nil
}
