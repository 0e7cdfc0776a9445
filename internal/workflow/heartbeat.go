package workflow

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"bookloom/internal/logging"
	"bookloom/internal/queue"
)

// Heartbeat renews the lease of a running job.
type Heartbeat struct {
	repo     queue.Repository
	logger   *slog.Logger
	interval time.Duration
	clock    Clock
}

// NewHeartbeat creates a heartbeat that renews every interval.
func NewHeartbeat(repo queue.Repository, logger *slog.Logger, interval time.Duration) *Heartbeat {
	return &Heartbeat{
		repo:     repo,
		logger:   logger,
		interval: interval,
		clock:    systemClock{},
	}
}

// Run renews the lease until ctx ends. When the lease is gone it calls
// cancel with queue.ErrLeaseLost and returns. Other renewal errors are logged
// and retried on the next beat.
func (h *Heartbeat) Run(ctx context.Context, wg *sync.WaitGroup, jobID, owner string, cancel context.CancelCauseFunc) {
	defer wg.Done()
	if h.interval <= 0 {
		return
	}
	logger := logging.WithContext(ctx, logging.NewComponentLogger(h.logger, "workflow-heartbeat"))

	for {
		select {
		case <-ctx.Done():
			return
		case <-h.clock.After(h.interval):
		}
		err := h.repo.Renew(ctx, jobID, owner)
		switch {
		case err == nil:
		case errors.Is(err, queue.ErrLeaseLost), errors.Is(err, queue.ErrNotFound):
			logging.WarnWithContext(logger, "lease renewal rejected; stopping job", "lease_lost",
				logging.Error(err),
				logging.String(logging.FieldImpact, "the run stops without writing further state"),
			)
			cancel(queue.ErrLeaseLost)
			return
		case ctx.Err() != nil:
			return
		default:
			logger.Warn("heartbeat update failed",
				logging.Error(err),
				logging.String(logging.FieldEventType, "heartbeat_failed"),
			)
		}
	}
}
