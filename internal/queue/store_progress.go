package queue

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"bookloom/internal/database"
)

const ownedPredicate = `id = ? AND locked_by = ? AND locked_at IS NOT NULL`

// SetStatus moves an owned job to status when the transition is allowed.
func (s *Store) SetStatus(ctx context.Context, id, owner string, status Status) error {
	from := predecessors(status)
	if len(from) == 0 {
		return fmt.Errorf("%w: nothing transitions to %s", ErrInvalidTransition, status)
	}
	args := []any{string(status), s.stamp(), id, owner}
	for _, st := range from {
		args = append(args, string(st))
	}
	affected, err := s.db.ExecAffected(ctx,
		`UPDATE jobs SET status = ?, updated_at = ? WHERE `+ownedPredicate+` AND status IN (`+placeholders(len(from))+`)`,
		args...,
	)
	if err != nil {
		return fmt.Errorf("set status: %w", err)
	}
	if affected == 0 {
		return s.guardFailure(ctx, id, owner, status)
	}
	return nil
}

// MarkMilestone records a completed macro stage. Recording twice is a no-op.
func (s *Store) MarkMilestone(ctx context.Context, id, owner, milestone string) error {
	affected, err := s.db.ExecAffected(ctx,
		`INSERT OR IGNORE INTO job_milestones (job_id, milestone, recorded_at)
         SELECT ?, ?, ? WHERE EXISTS (SELECT 1 FROM jobs WHERE `+ownedPredicate+`)`,
		id, milestone, s.stamp(), id, owner,
	)
	if err != nil {
		return fmt.Errorf("mark milestone: %w", err)
	}
	if affected == 0 {
		return s.owns(ctx, id, owner)
	}
	return nil
}

// MarkUnitStep records a completed unit sub-step. Recording twice is a no-op.
func (s *Store) MarkUnitStep(ctx context.Context, id, owner string, unit int, step Step) error {
	affected, err := s.db.ExecAffected(ctx,
		`INSERT OR IGNORE INTO job_unit_steps (job_id, unit_index, step, recorded_at)
         SELECT ?, ?, ?, ? WHERE EXISTS (SELECT 1 FROM jobs WHERE `+ownedPredicate+`)`,
		id, unit, string(step), s.stamp(), id, owner,
	)
	if err != nil {
		return fmt.Errorf("mark unit step: %w", err)
	}
	if affected == 0 {
		return s.owns(ctx, id, owner)
	}
	return nil
}

// Finish writes a terminal status and releases the lock in one statement.
func (s *Store) Finish(ctx context.Context, id, owner string, status Status, message string) error {
	if !status.IsTerminal() {
		return fmt.Errorf("%w: %s is not terminal", ErrInvalidTransition, status)
	}
	stamp := s.stamp()
	var completedAt any
	if status == StatusComplete {
		completedAt = stamp
	}
	affected, err := s.db.ExecAffected(ctx,
		`UPDATE jobs
         SET status = ?, error = ?, locked_at = NULL, locked_by = NULL,
             cancel_requested = 0, pause_requested = 0,
             completed_at = COALESCE(?, completed_at),
             force_regenerate = CASE WHEN ? THEN 0 ELSE force_regenerate END,
             updated_at = ?
         WHERE `+ownedPredicate,
		string(status), database.NullableString(message), completedAt, database.BoolToInt(status == StatusComplete), stamp, id, owner,
	)
	if err != nil {
		return fmt.Errorf("finish job: %w", err)
	}
	if affected == 0 {
		return s.owns(ctx, id, owner)
	}
	return nil
}

// AddCost increments the running cost by amount.
func (s *Store) AddCost(ctx context.Context, id string, amount int64) error {
	if amount == 0 {
		return nil
	}
	affected, err := s.db.ExecAffected(ctx,
		`UPDATE jobs SET cost = cost + ?, updated_at = ? WHERE id = ?`,
		amount, s.stamp(), id,
	)
	if err != nil {
		return fmt.Errorf("add cost: %w", err)
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

// Controls reads the administrative markers for a job.
func (s *Store) Controls(ctx context.Context, id string) (Controls, error) {
	var cancelReq, pauseReq int
	err := s.db.QueryRowContext(ctx,
		`SELECT cancel_requested, pause_requested FROM jobs WHERE id = ?`, id,
	).Scan(&cancelReq, &pauseReq)
	if errors.Is(err, sql.ErrNoRows) {
		return Controls{}, ErrNotFound
	}
	if err != nil {
		return Controls{}, fmt.Errorf("read controls: %w", err)
	}
	return Controls{CancelRequested: cancelReq != 0, PauseRequested: pauseReq != 0}, nil
}
