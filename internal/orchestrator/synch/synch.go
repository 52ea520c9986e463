package synch

import (
	"context"
	"log/slog"
	"time"

	"github.com/chiquitav2/infraweave/internal/shared/errors"
	"github.com/chiquitav2/infraweave/internal/shared/models"
)

// WaitForNode blocks until the node's readiness strategy reports ready, the
// timeout elapses, or ctx is cancelled. It polls every pollDelay; a probe
// error never aborts the loop. On timeout it fails with a node creation
// timeout so the owning command can trigger compensation; on cancellation it
// returns ctx.Err() untouched for the same reason.
func WaitForNode(ctx context.Context, deps Deps, instance *models.InstanceData, pollDelay, timeout time.Duration) error {
	cfg := instance.Resolved.SynchStrategy
	tag := instance.Resolved.SynchProtocol()
	if tag == "" {
		tag = DefaultProtocol
	}

	strat, err := New(tag, deps, instance, cfg)
	if err != nil {
		return err
	}

	log := deps.Logger.WithNode(string(instance.InfraID), instance.NodeID)
	log.Debug("waiting for node readiness",
		slog.String("protocol", tag),
		slog.Duration("poll_delay", pollDelay),
		slog.Duration("timeout", timeout))

	deadline := time.NewTimer(timeout)
	defer deadline.Stop()
	ticker := time.NewTicker(pollDelay)
	defer ticker.Stop()

	for attempt := 1; ; attempt++ {
		ready, err := strat.IsReady(ctx)
		if err != nil {
			// Probe failures count as not ready; only the deadline
			// ends the loop.
			log.Debug("readiness probe failed",
				slog.Int("attempt", attempt),
				slog.String("error", err.Error()))
		}
		if ready {
			log.Debug("node is ready", slog.Int("attempt", attempt))
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-deadline.C:
			log.Warn("node readiness timed out",
				slog.Int("attempts", attempt),
				slog.Duration("timeout", timeout))
			return &errors.NodeCreationTimeoutError{Instance: instance, Timeout: timeout}
		case <-ticker.C:
		}
	}
}
