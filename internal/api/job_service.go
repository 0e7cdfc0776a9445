package api

import (
	"context"
	"errors"

	"bookloom/internal/queue"
)

// JobReader abstracts the job store reads needed for API queries.
type JobReader interface {
	List(ctx context.Context, filter queue.Filter) ([]*queue.Job, error)
	Get(ctx context.Context, id string) (*queue.Job, error)
	Stats(ctx context.Context) (queue.Stats, error)
}

// JobService exposes read-only job operations returning API DTOs.
type JobService struct {
	store JobReader
}

// NewJobService constructs a JobService around the provided reader.
func NewJobService(store JobReader) *JobService {
	if store == nil {
		return nil
	}
	return &JobService{store: store}
}

// List returns jobs matching filter, newest first.
func (s *JobService) List(ctx context.Context, filter queue.Filter) ([]JobItem, error) {
	if s == nil || s.store == nil {
		return nil, nil
	}
	jobs, err := s.store.List(ctx, filter)
	if err != nil {
		return nil, err
	}
	return SortJobsNewestFirst(FromJobs(jobs)), nil
}

// Stats returns job counts keyed by pipeline and status.
func (s *JobService) Stats(ctx context.Context) (map[string]map[string]int, error) {
	if s == nil || s.store == nil {
		return nil, nil
	}
	stats, err := s.store.Stats(ctx)
	if err != nil {
		return nil, err
	}
	return MergeJobStats(stats), nil
}

// Describe fetches a single job. A missing job yields nil, nil.
func (s *JobService) Describe(ctx context.Context, id string) (*JobItem, error) {
	if s == nil || s.store == nil {
		return nil, nil
	}
	job, err := s.store.Get(ctx, id)
	if errors.Is(err, queue.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	dto := FromJob(job)
	return &dto, nil
}
