package queue

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"bookloom/internal/database"
)

// Requeue returns a job to the claimable set. Progress and cost are kept.
// force restarts at pending with empty progress and asks the executor to
// regenerate existing outputs; a plain requeue of an unfinished forced job
// keeps it forced.
func (s *Store) Requeue(ctx context.Context, id string, force bool, lease time.Duration) (*Job, error) {
	err := s.db.Tx(ctx, func(tx *sql.Tx) error {
		job, err := s.lockedRead(ctx, tx, id)
		if err != nil {
			return err
		}
		if job.LockFresh(s.now(), lease) {
			return ErrJobLocked
		}
		var planned int
		if err := tx.QueryRowContext(ctx,
			`SELECT COUNT(1) FROM job_milestones WHERE job_id = ? AND milestone = ?`,
			id, job.Pipeline.PlanMilestone(),
		).Scan(&planned); err != nil {
			return fmt.Errorf("read plan milestone: %w", err)
		}
		progress := Progress{}
		if planned > 0 {
			progress.Milestones = []string{job.Pipeline.PlanMilestone()}
		}
		target, err := requeueTarget(job, progress, force)
		if err != nil {
			return fmt.Errorf("%w: %s job requires force", err, job.Status)
		}
		if force {
			for _, stmt := range []string{
				`DELETE FROM job_unit_steps WHERE job_id = ?`,
				`DELETE FROM job_milestones WHERE job_id = ?`,
			} {
				if _, err := tx.ExecContext(ctx, stmt, id); err != nil {
					return fmt.Errorf("reset progress: %w", err)
				}
			}
		}
		stamp := s.stamp()
		_, err = tx.ExecContext(ctx,
			`UPDATE jobs
             SET status = ?, error = NULL, locked_at = NULL, locked_by = NULL,
                 cancel_requested = 0, pause_requested = 0, force_regenerate = ?,
                 completed_at = NULL, queued_at = ?, updated_at = ?
             WHERE id = ?`,
			string(target), database.BoolToInt(force || job.ForceRegenerate), stamp, stamp, id,
		)
		if err != nil {
			return fmt.Errorf("requeue job: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return s.Get(ctx, id)
}

// RequestCancel marks a running job for cancellation, or cancels an idle
// job directly.
func (s *Store) RequestCancel(ctx context.Context, id string, lease time.Duration) (*Job, error) {
	return s.requestControl(ctx, id, lease, checkCancellable, "cancel_requested", StatusCancelled)
}

// RequestPause marks a running job for pausing, or pauses an idle job
// directly.
func (s *Store) RequestPause(ctx context.Context, id string, lease time.Duration) (*Job, error) {
	return s.requestControl(ctx, id, lease, checkPausable, "pause_requested", StatusPaused)
}

func (s *Store) requestControl(ctx context.Context, id string, lease time.Duration, check func(*Job) error, marker string, direct Status) (*Job, error) {
	err := s.db.Tx(ctx, func(tx *sql.Tx) error {
		job, err := s.lockedRead(ctx, tx, id)
		if err != nil {
			return err
		}
		if err := check(job); err != nil {
			return fmt.Errorf("%w: %s job cannot become %s", err, job.Status, direct)
		}
		stamp := s.stamp()
		if job.LockFresh(s.now(), lease) {
			_, err = tx.ExecContext(ctx,
				`UPDATE jobs SET `+marker+` = 1, updated_at = ? WHERE id = ?`, stamp, id)
		} else {
			_, err = tx.ExecContext(ctx,
				`UPDATE jobs SET status = ?, locked_at = NULL, locked_by = NULL,
                     cancel_requested = 0, pause_requested = 0, updated_at = ?
                 WHERE id = ?`, string(direct), stamp, id)
		}
		if err != nil {
			return fmt.Errorf("request %s: %w", direct, err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return s.Get(ctx, id)
}

func (s *Store) lockedRead(ctx context.Context, tx *sql.Tx, id string) (*Job, error) {
	job, err := scanJob(tx.QueryRowContext(ctx, `SELECT `+jobColumns+` FROM jobs WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("read job: %w", err)
	}
	return job, nil
}

// DeleteSubject removes every job and progress row for a subject.
func (s *Store) DeleteSubject(ctx context.Context, subjectID string) error {
	return s.db.Tx(ctx, func(tx *sql.Tx) error {
		for _, stmt := range []string{
			`DELETE FROM job_unit_steps WHERE job_id IN (SELECT id FROM jobs WHERE subject_id = ?)`,
			`DELETE FROM job_milestones WHERE job_id IN (SELECT id FROM jobs WHERE subject_id = ?)`,
			`DELETE FROM jobs WHERE subject_id = ?`,
		} {
			if _, err := tx.ExecContext(ctx, stmt, subjectID); err != nil {
				return fmt.Errorf("delete subject jobs: %w", err)
			}
		}
		return nil
	})
}

// Stats counts jobs grouped by pipeline and status.
func (s *Store) Stats(ctx context.Context) (Stats, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT pipeline, status, COUNT(1) FROM jobs GROUP BY pipeline, status`)
	if err != nil {
		return nil, fmt.Errorf("job stats: %w", err)
	}
	defer rows.Close()
	stats := make(Stats)
	for rows.Next() {
		var (
			pipeline string
			status   string
			count    int
		)
		if err := rows.Scan(&pipeline, &status, &count); err != nil {
			return nil, fmt.Errorf("scan stats: %w", err)
		}
		stats.add(Pipeline(pipeline), Status(status), count)
	}
	return stats, rows.Err()
}

// CheckHealth reports database diagnostics.
func (s *Store) CheckHealth(ctx context.Context) (database.Health, error) {
	return s.db.CheckHealth(ctx)
}
