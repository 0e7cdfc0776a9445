package workflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"bookloom/internal/logging"
	"bookloom/internal/queue"
)

// Start launches one goroutine per configured lane.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	if m.running {
		m.mu.Unlock()
		return errors.New("workflow already running")
	}
	lanes := make([]*lane, 0, len(m.laneOrder))
	for _, p := range m.laneOrder {
		if ln := m.lanes[p]; ln != nil {
			lanes = append(lanes, ln)
		}
	}
	if len(lanes) == 0 {
		m.mu.Unlock()
		return errors.New("no pipeline lanes configured")
	}

	runCtx, cancel := context.WithCancel(ctx)
	m.cancel = cancel
	m.running = true

	for _, ln := range lanes {
		ln.logger = m.laneLogger(ln)
	}
	m.wg.Add(len(lanes))
	m.mu.Unlock()

	for _, ln := range lanes {
		go m.runLane(runCtx, ln)
	}
	m.logger.Info("workflow started",
		logging.String(logging.FieldEventType, "workflow_start"),
		logging.String(logging.FieldWorker, m.owner),
		logging.Int("lanes", len(lanes)),
	)
	return nil
}

// Stop cancels the lanes and waits for in-flight jobs to reach a stopping
// point. Interrupted jobs release their locks.
func (m *Manager) Stop() {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	cancel := m.cancel
	m.running = false
	m.cancel = nil
	m.mu.Unlock()

	cancel()
	m.wg.Wait()
}

// Tick claims at most one job of pipeline p and runs it. It reports whether a
// job was claimed.
func (m *Manager) Tick(ctx context.Context, p queue.Pipeline) (bool, error) {
	m.mu.Lock()
	ln := m.lanes[p]
	if ln != nil && ln.logger == nil {
		ln.logger = m.laneLogger(ln)
	}
	m.mu.Unlock()
	if ln == nil {
		return false, fmt.Errorf("no lane configured for pipeline %q", p)
	}
	return m.tick(ctx, ln)
}

func (m *Manager) tick(ctx context.Context, ln *lane) (bool, error) {
	job, err := m.repo.ClaimNext(ctx, ln.pipeline, nil, m.lease, m.owner)
	if err != nil {
		return false, fmt.Errorf("claim %s job: %w", ln.pipeline, err)
	}
	if job == nil {
		return false, nil
	}
	m.runJob(ctx, ln, job)
	return true, nil
}

func (m *Manager) runLane(ctx context.Context, ln *lane) {
	defer m.wg.Done()
	logger := ln.logger

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		claimed, err := m.tick(ctx, ln)
		switch {
		case err != nil:
			if ctx.Err() != nil {
				return
			}
			m.handleClaimError(ctx, logger, err)
		case !claimed:
			m.wait(ctx, m.pollInterval)
		}
	}
}

func (m *Manager) handleClaimError(ctx context.Context, logger *slog.Logger, err error) {
	m.setLastError(err)
	logger.Error("failed to claim next job",
		logging.Error(err),
		logging.String(logging.FieldEventType, "job_claim_failed"),
		logging.String(logging.FieldErrorHint, "check job store access"),
		logging.Duration("retry_in", m.errorRetry),
	)
	m.wait(ctx, m.errorRetry)
}

func (m *Manager) wait(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	select {
	case <-ctx.Done():
	case <-m.clock.After(d):
	}
}
