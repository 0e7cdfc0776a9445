package workflow

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"bookloom/internal/logging"
	"bookloom/internal/notifications"
	"bookloom/internal/pipeline"
	"bookloom/internal/queue"
	"bookloom/internal/services"
)

// runJob executes a claimed job while the heartbeat renews its lease. A lost
// lease cancels the run with queue.ErrLeaseLost as the cause.
func (m *Manager) runJob(ctx context.Context, ln *lane, job *queue.Job) {
	ctx = services.WithRequestID(ctx, uuid.NewString())
	ctx = services.WithJobID(ctx, job.ID)
	ctx = services.WithSubjectID(ctx, job.SubjectID)
	laneLogger := logging.WithContext(ctx, ln.logger)
	jobLogger, closeLog := m.jobLogger(ctx, ln, job)
	defer closeLog()

	m.setActive(ln.pipeline, job.ID)
	defer m.setActive(ln.pipeline, "")

	laneLogger.Info("job claimed",
		logging.String(logging.FieldEventType, "job_claimed"),
		logging.String(logging.FieldStatus, string(job.Status)),
		logging.Int("attempt", job.Attempts),
	)

	runCtx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)
	var hbWG sync.WaitGroup
	hbWG.Add(1)
	go m.heartbeat.Run(runCtx, &hbWG, job.ID, m.owner, cancel)

	start := m.clock.Now()
	exec := pipeline.NewExecutor(m.repo, ln.def, jobLogger, m.execOpts...)
	outcome, err := exec.Execute(runCtx, job, m.owner)
	cancel(nil)
	hbWG.Wait()

	m.setLastJob(job)
	if err != nil {
		m.setLastError(err)
		logging.ErrorWithContext(laneLogger, "job outcome not recorded", "job_finalize_failed",
			logging.Error(err),
			logging.String("outcome", string(outcome)),
			logging.String(logging.FieldErrorHint, "the lock expires after the lease and another worker resumes the job"),
		)
		return
	}
	laneLogger.Info("job finished",
		logging.String(logging.FieldEventType, "job_finished"),
		logging.String("outcome", string(outcome)),
		logging.String(logging.FieldStatus, string(job.Status)),
		logging.Duration("elapsed", m.clock.Now().Sub(start).Round(time.Millisecond)),
	)
	m.notify(ctx, laneLogger, job, outcome)
}

// notify publishes complete and failed outcomes. Delivery failures are logged
// and never affect the job.
func (m *Manager) notify(ctx context.Context, logger *slog.Logger, job *queue.Job, outcome pipeline.Outcome) {
	if m.notifier == nil {
		return
	}
	if outcome != pipeline.OutcomeComplete && outcome != pipeline.OutcomeFailed {
		return
	}
	if fresh, err := m.repo.Get(ctx, job.ID); err == nil {
		job = fresh
	}
	event := notifications.JobEvent{
		JobID:    job.ID,
		BookID:   job.SubjectID,
		Pipeline: job.Pipeline,
		Status:   job.Status,
		Error:    job.Error,
		Cost:     job.Cost,
	}
	if err := m.notifier.NotifyJobFinished(ctx, event); err != nil {
		logging.WarnWithContext(logger, "job notification failed", "notification_failed",
			logging.Error(err),
			logging.String(logging.FieldImpact, "job outcome was recorded; only the notification was lost"),
		)
	}
}
