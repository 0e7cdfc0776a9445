package queue

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"bookloom/internal/database"
)

// ClaimNext locks the oldest claimable job in one statement. The subquery
// picks a candidate and the outer predicate re-checks the lease, so two
// workers racing for the same row cannot both succeed.
func (s *Store) ClaimNext(ctx context.Context, pipeline Pipeline, statuses []Status, lease time.Duration, owner string) (*Job, error) {
	if owner == "" {
		return nil, errors.New("claim: owner required")
	}
	if len(statuses) == 0 {
		statuses = ClaimableStatuses()
	}
	now := s.now()
	stamp := database.FormatTime(now)
	cutoff := database.FormatTime(now.Add(-lease))

	args := []any{stamp, owner, stamp, stamp, string(pipeline)}
	for _, status := range statuses {
		args = append(args, string(status))
	}
	args = append(args, cutoff, cutoff)

	query := `UPDATE jobs
        SET locked_at = ?, locked_by = ?, attempts = attempts + 1,
            started_at = COALESCE(started_at, ?), updated_at = ?
        WHERE id = (
            SELECT id FROM jobs
            WHERE pipeline = ? AND status IN (` + placeholders(len(statuses)) + `)
              AND (locked_at IS NULL OR locked_at < ?)
            ORDER BY queued_at, id
            LIMIT 1
        )
        AND (locked_at IS NULL OR locked_at < ?)
        RETURNING ` + jobColumns

	var job *Job
	err := database.RetryOnBusy(ctx, func() error {
		var scanErr error
		job, scanErr = scanJob(s.db.QueryRowContext(ctx, query, args...))
		return scanErr
	})
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("claim job: %w", err)
	}
	if job.Progress, err = s.Progress(ctx, job.ID); err != nil {
		return nil, err
	}
	return job, nil
}

// Renew refreshes the lock timestamp for a job the caller owns.
func (s *Store) Renew(ctx context.Context, id, owner string) error {
	stamp := s.stamp()
	affected, err := s.db.ExecAffected(ctx,
		`UPDATE jobs SET locked_at = ?, updated_at = ? WHERE id = ? AND locked_by = ? AND locked_at IS NOT NULL`,
		stamp, stamp, id, owner,
	)
	if err != nil {
		return fmt.Errorf("renew lease: %w", err)
	}
	if affected == 0 {
		return s.guardFailure(ctx, id, owner, "")
	}
	return nil
}

// Release clears the lock without changing the status.
func (s *Store) Release(ctx context.Context, id, owner string) error {
	affected, err := s.db.ExecAffected(ctx,
		`UPDATE jobs SET locked_at = NULL, locked_by = NULL, updated_at = ? WHERE id = ? AND locked_by = ?`,
		s.stamp(), id, owner,
	)
	if err != nil {
		return fmt.Errorf("release lease: %w", err)
	}
	if affected == 0 {
		return s.guardFailure(ctx, id, owner, "")
	}
	return nil
}

// guardFailure explains why a guarded write touched no rows. When the caller
// still owns the lock and want is set, the status predicate was the reason.
func (s *Store) guardFailure(ctx context.Context, id, owner string, want Status) error {
	var (
		lockedBy sql.NullString
		lockedAt sql.NullString
		status   string
	)
	err := s.db.QueryRowContext(ctx, `SELECT locked_by, locked_at, status FROM jobs WHERE id = ?`, id).Scan(&lockedBy, &lockedAt, &status)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("inspect lock: %w", err)
	}
	if !lockedAt.Valid || lockedBy.String != owner {
		return ErrLeaseLost
	}
	if want != "" {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, status, want)
	}
	return nil
}

func (s *Store) owns(ctx context.Context, id, owner string) error {
	return s.guardFailure(ctx, id, owner, "")
}
