package queue

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"bookloom/internal/database"
)

type jobRow struct {
	ID              string `gorm:"primaryKey"`
	SubjectID       string `gorm:"not null;uniqueIndex:idx_jobs_subject_pipeline"`
	Pipeline        string `gorm:"not null;uniqueIndex:idx_jobs_subject_pipeline;index:idx_jobs_claim,priority:1"`
	Status          string `gorm:"not null;index:idx_jobs_claim,priority:2"`
	Error           *string
	Cost            int64 `gorm:"not null;default:0"`
	Attempts        int   `gorm:"not null;default:0"`
	LockedAt        *time.Time
	LockedBy        *string
	CancelRequested bool      `gorm:"not null;default:false"`
	PauseRequested  bool      `gorm:"not null;default:false"`
	ForceRegenerate bool      `gorm:"not null;default:false"`
	QueuedAt        time.Time `gorm:"not null;index:idx_jobs_claim,priority:3"`
	StartedAt       *time.Time
	CompletedAt     *time.Time
	UpdatedAt       time.Time `gorm:"not null;autoUpdateTime:false"`
}

func (jobRow) TableName() string { return "jobs" }

type milestoneRow struct {
	JobID      string    `gorm:"primaryKey"`
	Milestone  string    `gorm:"primaryKey"`
	RecordedAt time.Time `gorm:"not null"`
}

func (milestoneRow) TableName() string { return "job_milestones" }

type unitStepRow struct {
	JobID      string    `gorm:"primaryKey"`
	UnitIndex  int       `gorm:"primaryKey"`
	Step       string    `gorm:"primaryKey"`
	RecordedAt time.Time `gorm:"not null"`
}

func (unitStepRow) TableName() string { return "job_unit_steps" }

func (r jobRow) toJob() *Job {
	job := &Job{
		ID:              r.ID,
		SubjectID:       r.SubjectID,
		Pipeline:        Pipeline(r.Pipeline),
		Status:          Status(r.Status),
		Cost:            r.Cost,
		Attempts:        r.Attempts,
		CancelRequested: r.CancelRequested,
		PauseRequested:  r.PauseRequested,
		ForceRegenerate: r.ForceRegenerate,
		QueuedAt:        r.QueuedAt.UTC(),
		UpdatedAt:       r.UpdatedAt.UTC(),
		LockedAt:        utcPtr(r.LockedAt),
		StartedAt:       utcPtr(r.StartedAt),
		CompletedAt:     utcPtr(r.CompletedAt),
	}
	if r.Error != nil {
		job.Error = *r.Error
	}
	if r.LockedBy != nil {
		job.LockedBy = *r.LockedBy
	}
	return job
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := t.UTC()
	return &v
}

// GormStore is the Postgres Repository.
type GormStore struct {
	db    *gorm.DB
	now   func() time.Time
	newID func() string
}

var _ Repository = (*GormStore)(nil)

// NewGormStore migrates the job tables and returns a store.
func NewGormStore(ctx context.Context, db *gorm.DB, opts ...Option) (*GormStore, error) {
	if err := db.WithContext(ctx).AutoMigrate(&jobRow{}, &milestoneRow{}, &unitStepRow{}); err != nil {
		return nil, fmt.Errorf("migrate job tables: %w", err)
	}
	o := buildOptions(opts)
	return &GormStore{db: db, now: o.now, newID: o.newID}, nil
}

func (s *GormStore) Enqueue(ctx context.Context, subjectID string, pipeline Pipeline) (*Job, bool, error) {
	subjectID = strings.TrimSpace(subjectID)
	if subjectID == "" {
		return nil, false, errors.New("enqueue: subject id required")
	}
	if !pipeline.IsValid() {
		return nil, false, fmt.Errorf("enqueue: unknown pipeline %q", pipeline)
	}
	now := s.now()
	row := jobRow{
		ID:        s.newID(),
		SubjectID: subjectID,
		Pipeline:  string(pipeline),
		Status:    string(StatusPending),
		QueuedAt:  now,
		UpdatedAt: now,
	}
	res := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "subject_id"}, {Name: "pipeline"}}, DoNothing: true}).
		Create(&row)
	if res.Error != nil {
		return nil, false, fmt.Errorf("enqueue job: %w", res.Error)
	}
	job, err := s.FindBySubject(ctx, subjectID, pipeline)
	if err != nil {
		return nil, false, err
	}
	return job, res.RowsAffected > 0, nil
}

func (s *GormStore) Get(ctx context.Context, id string) (*Job, error) {
	return s.first(ctx, s.db.WithContext(ctx).Where("id = ?", id))
}

func (s *GormStore) FindBySubject(ctx context.Context, subjectID string, pipeline Pipeline) (*Job, error) {
	return s.first(ctx, s.db.WithContext(ctx).Where("subject_id = ? AND pipeline = ?", subjectID, string(pipeline)))
}

func (s *GormStore) first(ctx context.Context, q *gorm.DB) (*Job, error) {
	var row jobRow
	if err := q.Take(&row).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get job: %w", err)
	}
	job := row.toJob()
	progress, err := s.Progress(ctx, job.ID)
	if err != nil {
		return nil, err
	}
	job.Progress = progress
	return job, nil
}

func (s *GormStore) List(ctx context.Context, filter Filter) ([]*Job, error) {
	q := s.db.WithContext(ctx).Model(&jobRow{})
	if filter.Pipeline != "" {
		q = q.Where("pipeline = ?", string(filter.Pipeline))
	}
	if filter.SubjectID != "" {
		q = q.Where("subject_id = ?", filter.SubjectID)
	}
	if len(filter.Statuses) > 0 {
		q = q.Where("status IN ?", statusStrings(filter.Statuses))
	}
	if filter.Limit > 0 {
		q = q.Limit(filter.Limit)
	}
	var rows []jobRow
	if err := q.Order("queued_at, id").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	jobs := make([]*Job, 0, len(rows))
	for _, row := range rows {
		jobs = append(jobs, row.toJob())
	}
	return jobs, nil
}

func (s *GormStore) Progress(ctx context.Context, id string) (Progress, error) {
	var progress Progress
	var milestones []milestoneRow
	if err := s.db.WithContext(ctx).Where("job_id = ?", id).Order("recorded_at, milestone").Find(&milestones).Error; err != nil {
		return progress, fmt.Errorf("load milestones: %w", err)
	}
	for _, m := range milestones {
		progress.Milestones = append(progress.Milestones, m.Milestone)
	}
	var steps []unitStepRow
	if err := s.db.WithContext(ctx).Where("job_id = ?", id).Order("unit_index, recorded_at, step").Find(&steps).Error; err != nil {
		return progress, fmt.Errorf("load unit steps: %w", err)
	}
	for _, st := range steps {
		progress.Units = appendUnitStep(progress.Units, st.UnitIndex, Step(st.Step))
	}
	return progress, nil
}

// ClaimNext locks one row with FOR UPDATE SKIP LOCKED so concurrent workers
// never see the same candidate.
func (s *GormStore) ClaimNext(ctx context.Context, pipeline Pipeline, statuses []Status, lease time.Duration, owner string) (*Job, error) {
	if owner == "" {
		return nil, errors.New("claim: owner required")
	}
	if len(statuses) == 0 {
		statuses = ClaimableStatuses()
	}
	now := s.now()
	cutoff := now.Add(-lease)

	var rows []jobRow
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return tx.Raw(`
with cte as (
  select id
  from jobs
  where pipeline = ? and status in ? and (locked_at is null or locked_at < ?)
  order by queued_at, id
  for update skip locked
  limit 1
)
update jobs
set locked_at = ?, locked_by = ?, attempts = attempts + 1,
    started_at = coalesce(started_at, ?), updated_at = ?
where id in (select id from cte)
returning *;
`, string(pipeline), statusStrings(statuses), cutoff, now, owner, now, now).Scan(&rows).Error
	})
	if err != nil {
		return nil, fmt.Errorf("claim job: %w", err)
	}
	if len(rows) == 0 {
		return nil, nil
	}
	job := rows[0].toJob()
	if job.Progress, err = s.Progress(ctx, job.ID); err != nil {
		return nil, err
	}
	return job, nil
}

func (s *GormStore) owned(ctx context.Context, id, owner string) *gorm.DB {
	return s.db.WithContext(ctx).Model(&jobRow{}).
		Where("id = ? AND locked_by = ? AND locked_at IS NOT NULL", id, owner)
}

func (s *GormStore) guardFailure(ctx context.Context, id, owner string, want Status) error {
	var row jobRow
	if err := s.db.WithContext(ctx).Select("locked_at", "locked_by", "status").Where("id = ?", id).Take(&row).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrNotFound
		}
		return fmt.Errorf("inspect lock: %w", err)
	}
	if row.LockedAt == nil || row.LockedBy == nil || *row.LockedBy != owner {
		return ErrLeaseLost
	}
	if want != "" {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, row.Status, want)
	}
	return nil
}

func (s *GormStore) Renew(ctx context.Context, id, owner string) error {
	now := s.now()
	res := s.owned(ctx, id, owner).Updates(map[string]any{"locked_at": now, "updated_at": now})
	if res.Error != nil {
		return fmt.Errorf("renew lease: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return s.guardFailure(ctx, id, owner, "")
	}
	return nil
}

func (s *GormStore) Release(ctx context.Context, id, owner string) error {
	res := s.db.WithContext(ctx).Model(&jobRow{}).
		Where("id = ? AND locked_by = ?", id, owner).
		Updates(map[string]any{"locked_at": nil, "locked_by": nil, "updated_at": s.now()})
	if res.Error != nil {
		return fmt.Errorf("release lease: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return s.guardFailure(ctx, id, owner, "")
	}
	return nil
}

func (s *GormStore) SetStatus(ctx context.Context, id, owner string, status Status) error {
	from := predecessors(status)
	if len(from) == 0 {
		return fmt.Errorf("%w: nothing transitions to %s", ErrInvalidTransition, status)
	}
	res := s.owned(ctx, id, owner).
		Where("status IN ?", statusStrings(from)).
		Updates(map[string]any{"status": string(status), "updated_at": s.now()})
	if res.Error != nil {
		return fmt.Errorf("set status: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return s.guardFailure(ctx, id, owner, status)
	}
	return nil
}

// insertOwned creates row only while owner holds the job lock.
func (s *GormStore) insertOwned(ctx context.Context, id, owner string, row any) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var held jobRow
		err := tx.Select("id").
			Clauses(clause.Locking{Strength: "SHARE"}).
			Where("id = ? AND locked_by = ? AND locked_at IS NOT NULL", id, owner).
			Take(&held).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return s.guardFailure(ctx, id, owner, "")
		}
		if err != nil {
			return err
		}
		return tx.Clauses(clause.OnConflict{DoNothing: true}).Create(row).Error
	})
}

func (s *GormStore) MarkMilestone(ctx context.Context, id, owner, milestone string) error {
	row := &milestoneRow{JobID: id, Milestone: milestone, RecordedAt: s.now()}
	if err := s.insertOwned(ctx, id, owner, row); err != nil {
		return fmt.Errorf("mark milestone: %w", err)
	}
	return nil
}

func (s *GormStore) MarkUnitStep(ctx context.Context, id, owner string, unit int, step Step) error {
	row := &unitStepRow{JobID: id, UnitIndex: unit, Step: string(step), RecordedAt: s.now()}
	if err := s.insertOwned(ctx, id, owner, row); err != nil {
		return fmt.Errorf("mark unit step: %w", err)
	}
	return nil
}

func (s *GormStore) Finish(ctx context.Context, id, owner string, status Status, message string) error {
	if !status.IsTerminal() {
		return fmt.Errorf("%w: %s is not terminal", ErrInvalidTransition, status)
	}
	now := s.now()
	updates := map[string]any{
		"status":           string(status),
		"error":            database.NullableString(message),
		"locked_at":        nil,
		"locked_by":        nil,
		"cancel_requested": false,
		"pause_requested":  false,
		"updated_at":       now,
	}
	if status == StatusComplete {
		updates["completed_at"] = now
		updates["force_regenerate"] = false
	}
	res := s.owned(ctx, id, owner).Updates(updates)
	if res.Error != nil {
		return fmt.Errorf("finish job: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return s.guardFailure(ctx, id, owner, "")
	}
	return nil
}

func (s *GormStore) AddCost(ctx context.Context, id string, amount int64) error {
	if amount == 0 {
		return nil
	}
	res := s.db.WithContext(ctx).Model(&jobRow{}).Where("id = ?", id).
		Updates(map[string]any{"cost": gorm.Expr("cost + ?", amount), "updated_at": s.now()})
	if res.Error != nil {
		return fmt.Errorf("add cost: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *GormStore) Controls(ctx context.Context, id string) (Controls, error) {
	var row jobRow
	err := s.db.WithContext(ctx).Select("cancel_requested", "pause_requested").Where("id = ?", id).Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Controls{}, ErrNotFound
	}
	if err != nil {
		return Controls{}, fmt.Errorf("read controls: %w", err)
	}
	return Controls{CancelRequested: row.CancelRequested, PauseRequested: row.PauseRequested}, nil
}

func (s *GormStore) lockRow(tx *gorm.DB, id string) (*Job, error) {
	var row jobRow
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).Where("id = ?", id).Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("read job: %w", err)
	}
	return row.toJob(), nil
}

func (s *GormStore) Requeue(ctx context.Context, id string, force bool, lease time.Duration) (*Job, error) {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		job, err := s.lockRow(tx, id)
		if err != nil {
			return err
		}
		if job.LockFresh(s.now(), lease) {
			return ErrJobLocked
		}
		var planned int64
		if err := tx.Model(&milestoneRow{}).
			Where("job_id = ? AND milestone = ?", id, job.Pipeline.PlanMilestone()).
			Count(&planned).Error; err != nil {
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
			if err := tx.Where("job_id = ?", id).Delete(&unitStepRow{}).Error; err != nil {
				return fmt.Errorf("reset progress: %w", err)
			}
			if err := tx.Where("job_id = ?", id).Delete(&milestoneRow{}).Error; err != nil {
				return fmt.Errorf("reset progress: %w", err)
			}
		}
		now := s.now()
		return tx.Model(&jobRow{}).Where("id = ?", id).Updates(map[string]any{
			"status":           string(target),
			"error":            nil,
			"locked_at":        nil,
			"locked_by":        nil,
			"cancel_requested": false,
			"pause_requested":  false,
			"force_regenerate": force || job.ForceRegenerate,
			"completed_at":     nil,
			"queued_at":        now,
			"updated_at":       now,
		}).Error
	})
	if err != nil {
		return nil, err
	}
	return s.Get(ctx, id)
}

func (s *GormStore) RequestCancel(ctx context.Context, id string, lease time.Duration) (*Job, error) {
	return s.requestControl(ctx, id, lease, checkCancellable, "cancel_requested", StatusCancelled)
}

func (s *GormStore) RequestPause(ctx context.Context, id string, lease time.Duration) (*Job, error) {
	return s.requestControl(ctx, id, lease, checkPausable, "pause_requested", StatusPaused)
}

func (s *GormStore) requestControl(ctx context.Context, id string, lease time.Duration, check func(*Job) error, marker string, direct Status) (*Job, error) {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		job, err := s.lockRow(tx, id)
		if err != nil {
			return err
		}
		if err := check(job); err != nil {
			return fmt.Errorf("%w: %s job cannot become %s", err, job.Status, direct)
		}
		now := s.now()
		updates := map[string]any{marker: true, "updated_at": now}
		if !job.LockFresh(now, lease) {
			updates = map[string]any{
				"status":           string(direct),
				"locked_at":        nil,
				"locked_by":        nil,
				"cancel_requested": false,
				"pause_requested":  false,
				"updated_at":       now,
			}
		}
		return tx.Model(&jobRow{}).Where("id = ?", id).Updates(updates).Error
	})
	if err != nil {
		return nil, err
	}
	return s.Get(ctx, id)
}

func (s *GormStore) DeleteSubject(ctx context.Context, subjectID string) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		ids := tx.Model(&jobRow{}).Select("id").Where("subject_id = ?", subjectID)
		if err := tx.Where("job_id IN (?)", ids).Delete(&unitStepRow{}).Error; err != nil {
			return fmt.Errorf("delete unit steps: %w", err)
		}
		if err := tx.Where("job_id IN (?)", ids).Delete(&milestoneRow{}).Error; err != nil {
			return fmt.Errorf("delete milestones: %w", err)
		}
		if err := tx.Where("subject_id = ?", subjectID).Delete(&jobRow{}).Error; err != nil {
			return fmt.Errorf("delete jobs: %w", err)
		}
		return nil
	})
}

func (s *GormStore) Stats(ctx context.Context) (Stats, error) {
	var rows []struct {
		Pipeline string
		Status   string
		Count    int
	}
	if err := s.db.WithContext(ctx).Model(&jobRow{}).
		Select("pipeline, status, count(*) as count").
		Group("pipeline, status").
		Scan(&rows).Error; err != nil {
		return nil, fmt.Errorf("job stats: %w", err)
	}
	stats := make(Stats)
	for _, r := range rows {
		stats.add(Pipeline(r.Pipeline), Status(r.Status), r.Count)
	}
	return stats, nil
}

func (s *GormStore) CheckHealth(ctx context.Context) (database.Health, error) {
	return database.CheckPostgresHealth(ctx, s.db)
}

func statusStrings(statuses []Status) []string {
	out := make([]string, len(statuses))
	for i, st := range statuses {
		out[i] = string(st)
	}
	return out
}
