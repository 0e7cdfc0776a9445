package workflow

import (
	"context"
	"log/slog"

	"bookloom/internal/logging"
	"bookloom/internal/queue"
)

func (m *Manager) laneLogger(ln *lane) *slog.Logger {
	logger := logging.ForPipeline(m.logger, m.cfg, string(ln.pipeline))
	return logger.With(logging.String("lane", string(ln.pipeline)))
}

// jobLogger returns the logger a job's executor writes to. With job logs
// enabled, job output goes to the job's file and only warnings and errors
// reach the lane logger.
func (m *Manager) jobLogger(ctx context.Context, ln *lane, job *queue.Job) (*slog.Logger, func()) {
	base := ln.logger
	noop := func() {}
	if m.jobLogs == nil {
		return base, noop
	}
	logger, closer, err := m.jobLogs.Open(job)
	if err != nil {
		logging.WarnWithContext(logging.WithContext(ctx, base), "job log unavailable", "job_log_unavailable",
			logging.Error(err),
			logging.String(logging.FieldImpact, "job output is written to the daemon log instead"),
		)
		return base, noop
	}
	// The executor tags job, book, and pipeline from its context.
	logger = logging.TeeLogger(logger, logging.AtLeast(base.Handler(), slog.LevelWarn))
	return logger, func() { _ = closer.Close() }
}
