package admin

import (
	"context"
	"errors"
	"fmt"

	"bookloom/internal/library"
	"bookloom/internal/queue"
)

// BookDetail gathers everything recorded for one book.
type BookDetail struct {
	Book     *library.Book
	Outline  *library.Outline
	Chapters []*library.Chapter
	Segments []*library.AudioSegment
	TextJob  *queue.Job
	AudioJob *queue.Job
}

// Describe loads a book with its outputs and jobs. Missing outline or jobs
// are left nil.
func (s *Service) Describe(ctx context.Context, bookID string) (*BookDetail, error) {
	book, err := s.library.GetBook(ctx, bookID)
	if err != nil {
		return nil, fmt.Errorf("load book %s: %w", bookID, err)
	}
	detail := &BookDetail{Book: book}

	outline, err := s.library.GetOutline(ctx, bookID)
	if err != nil && !errors.Is(err, library.ErrNotFound) {
		return nil, fmt.Errorf("load outline: %w", err)
	}
	detail.Outline = outline
	if detail.Chapters, err = s.library.ListChapters(ctx, bookID); err != nil {
		return nil, fmt.Errorf("list chapters: %w", err)
	}
	if detail.Segments, err = s.library.ListAudioSegments(ctx, bookID); err != nil {
		return nil, fmt.Errorf("list audio segments: %w", err)
	}
	if detail.TextJob, err = s.findJob(ctx, bookID, queue.PipelineText); err != nil {
		return nil, err
	}
	if detail.AudioJob, err = s.findJob(ctx, bookID, queue.PipelineAudio); err != nil {
		return nil, err
	}
	return detail, nil
}

// Books lists every book.
func (s *Service) Books(ctx context.Context) ([]*library.Book, error) {
	return s.library.ListBooks(ctx)
}

// Jobs lists jobs matching filter.
func (s *Service) Jobs(ctx context.Context, filter queue.Filter) ([]*queue.Job, error) {
	return s.jobs.List(ctx, filter)
}

// Job loads one job.
func (s *Service) Job(ctx context.Context, id string) (*queue.Job, error) {
	return s.jobs.Get(ctx, id)
}

func (s *Service) findJob(ctx context.Context, bookID string, p queue.Pipeline) (*queue.Job, error) {
	job, err := s.jobs.FindBySubject(ctx, bookID, p)
	if errors.Is(err, queue.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load %s job: %w", p, err)
	}
	return job, nil
}
