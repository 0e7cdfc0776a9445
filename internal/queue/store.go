package queue

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"bookloom/internal/database"
)

// Store is the SQLite Repository.
type Store struct {
	db    *database.DB
	now   func() time.Time
	newID func() string
}

var _ Repository = (*Store)(nil)

// NewStore wraps an open SQLite database.
func NewStore(db *database.DB, opts ...Option) *Store {
	o := buildOptions(opts)
	return &Store{db: db, now: o.now, newID: o.newID}
}

const jobColumns = "id, subject_id, pipeline, status, error, cost, attempts, locked_at, locked_by, cancel_requested, pause_requested, force_regenerate, queued_at, started_at, completed_at, updated_at"

type rowScanner interface {
	Scan(dest ...any) error
}

func scanJob(scanner rowScanner) (*Job, error) {
	var (
		job         Job
		pipeline    string
		status      string
		errorMsg    sql.NullString
		lockedAt    sql.NullString
		lockedBy    sql.NullString
		cancelReq   int
		pauseReq    int
		force       int
		queuedRaw   string
		startedAt   sql.NullString
		completedAt sql.NullString
		updatedRaw  string
	)
	if err := scanner.Scan(
		&job.ID,
		&job.SubjectID,
		&pipeline,
		&status,
		&errorMsg,
		&job.Cost,
		&job.Attempts,
		&lockedAt,
		&lockedBy,
		&cancelReq,
		&pauseReq,
		&force,
		&queuedRaw,
		&startedAt,
		&completedAt,
		&updatedRaw,
	); err != nil {
		return nil, err
	}
	job.Pipeline = Pipeline(pipeline)
	job.Status = Status(status)
	job.Error = errorMsg.String
	job.LockedAt = database.ScanTime(lockedAt)
	job.LockedBy = lockedBy.String
	job.CancelRequested = cancelReq != 0
	job.PauseRequested = pauseReq != 0
	job.ForceRegenerate = force != 0
	job.StartedAt = database.ScanTime(startedAt)
	job.CompletedAt = database.ScanTime(completedAt)
	if queued, err := database.ParseTime(queuedRaw); err == nil {
		job.QueuedAt = queued
	}
	if updated, err := database.ParseTime(updatedRaw); err == nil {
		job.UpdatedAt = updated
	}
	return &job, nil
}

func (s *Store) stamp() string {
	return database.FormatTime(s.now())
}

// Enqueue creates the job for (subjectID, pipeline) unless one exists.
func (s *Store) Enqueue(ctx context.Context, subjectID string, pipeline Pipeline) (*Job, bool, error) {
	subjectID = strings.TrimSpace(subjectID)
	if subjectID == "" {
		return nil, false, errors.New("enqueue: subject id required")
	}
	if !pipeline.IsValid() {
		return nil, false, fmt.Errorf("enqueue: unknown pipeline %q", pipeline)
	}
	now := s.stamp()
	affected, err := s.db.ExecAffected(ctx,
		`INSERT INTO jobs (id, subject_id, pipeline, status, queued_at, updated_at)
         VALUES (?, ?, ?, ?, ?, ?)
         ON CONFLICT (subject_id, pipeline) DO NOTHING`,
		s.newID(), subjectID, string(pipeline), string(StatusPending), now, now,
	)
	if err != nil {
		return nil, false, fmt.Errorf("enqueue job: %w", err)
	}
	job, err := s.FindBySubject(ctx, subjectID, pipeline)
	if err != nil {
		return nil, false, err
	}
	return job, affected > 0, nil
}

// Get fetches a job with its progress.
func (s *Store) Get(ctx context.Context, id string) (*Job, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+jobColumns+` FROM jobs WHERE id = ?`, id)
	job, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get job: %w", err)
	}
	if job.Progress, err = s.Progress(ctx, job.ID); err != nil {
		return nil, err
	}
	return job, nil
}

// FindBySubject fetches the job for a subject and pipeline.
func (s *Store) FindBySubject(ctx context.Context, subjectID string, pipeline Pipeline) (*Job, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+jobColumns+` FROM jobs WHERE subject_id = ? AND pipeline = ?`,
		subjectID, string(pipeline),
	)
	job, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find job: %w", err)
	}
	if job.Progress, err = s.Progress(ctx, job.ID); err != nil {
		return nil, err
	}
	return job, nil
}

// List returns jobs ordered by queue position. Progress is not loaded.
func (s *Store) List(ctx context.Context, filter Filter) ([]*Job, error) {
	var (
		clauses []string
		args    []any
	)
	if filter.Pipeline != "" {
		clauses = append(clauses, "pipeline = ?")
		args = append(args, string(filter.Pipeline))
	}
	if filter.SubjectID != "" {
		clauses = append(clauses, "subject_id = ?")
		args = append(args, filter.SubjectID)
	}
	if len(filter.Statuses) > 0 {
		clauses = append(clauses, "status IN ("+placeholders(len(filter.Statuses))+")")
		for _, status := range filter.Statuses {
			args = append(args, string(status))
		}
	}
	query := `SELECT ` + jobColumns + ` FROM jobs`
	if len(clauses) > 0 {
		query += " WHERE " + strings.Join(clauses, " AND ")
	}
	query += " ORDER BY queued_at, id"
	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	defer rows.Close()

	var jobs []*Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("scan job: %w", err)
		}
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}

// Progress loads milestones and unit steps for a job.
func (s *Store) Progress(ctx context.Context, id string) (Progress, error) {
	var progress Progress

	rows, err := s.db.QueryContext(ctx,
		`SELECT milestone FROM job_milestones WHERE job_id = ? ORDER BY recorded_at, milestone`, id)
	if err != nil {
		return progress, fmt.Errorf("load milestones: %w", err)
	}
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			rows.Close()
			return progress, fmt.Errorf("scan milestone: %w", err)
		}
		progress.Milestones = append(progress.Milestones, name)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return progress, err
	}

	stepRows, err := s.db.QueryContext(ctx,
		`SELECT unit_index, step FROM job_unit_steps WHERE job_id = ? ORDER BY unit_index, recorded_at, step`, id)
	if err != nil {
		return progress, fmt.Errorf("load unit steps: %w", err)
	}
	defer stepRows.Close()
	for stepRows.Next() {
		var (
			index int
			step  string
		)
		if err := stepRows.Scan(&index, &step); err != nil {
			return progress, fmt.Errorf("scan unit step: %w", err)
		}
		progress.Units = appendUnitStep(progress.Units, index, Step(step))
	}
	return progress, stepRows.Err()
}

// appendUnitStep expects rows ordered by unit index.
func appendUnitStep(units []UnitState, index int, step Step) []UnitState {
	if n := len(units); n > 0 && units[n-1].Index == index {
		units[n-1].Steps = append(units[n-1].Steps, step)
		return units
	}
	return append(units, UnitState{Index: index, Steps: []Step{step}})
}

func placeholders(count int) string {
	if count <= 0 {
		return ""
	}
	return strings.TrimSuffix(strings.Repeat("?,", count), ",")
}
