package admin

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"bookloom/internal/artifacts"
	"bookloom/internal/library"
	"bookloom/internal/logging"
	"bookloom/internal/queue"
	"bookloom/internal/services"
)

// MaxChapters bounds the chapter count accepted for a new book.
const MaxChapters = 60

// Service applies administrative actions to the job and library stores.
type Service struct {
	jobs    queue.Repository
	library library.Store
	layout  artifacts.Layout
	lease   time.Duration
	logger  *slog.Logger
	now     func() time.Time
}

// Option configures a Service.
type Option func(*Service)

// WithLogger attaches a logger for action audit lines.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logging.NewComponentLogger(logger, "admin")
		}
	}
}

// WithClock overrides the time source used for lock freshness checks.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// New constructs a Service. lease must match the workers' lease so fresh
// locks are recognised.
func New(jobs queue.Repository, lib library.Store, layout artifacts.Layout, lease time.Duration, opts ...Option) *Service {
	s := &Service{
		jobs:    jobs,
		library: lib,
		layout:  layout,
		lease:   lease,
		logger:  logging.NewNop(),
		now:     func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// BookRequest describes a book to generate.
type BookRequest struct {
	Title    string
	Premise  string
	Audience string
	Chapters int
}

func (r BookRequest) validate() error {
	if strings.TrimSpace(r.Title) == "" {
		return services.Wrap(services.ErrValidation, "admin", "enqueue book", "title is required", nil)
	}
	if strings.TrimSpace(r.Premise) == "" {
		return services.Wrap(services.ErrValidation, "admin", "enqueue book", "premise is required", nil)
	}
	if r.Chapters < 1 || r.Chapters > MaxChapters {
		return services.Wrap(services.ErrValidation, "admin", "enqueue book",
			fmt.Sprintf("chapter count %d outside 1..%d", r.Chapters, MaxChapters), nil)
	}
	return nil
}

// EnqueueBook creates a book and its text job.
func (s *Service) EnqueueBook(ctx context.Context, req BookRequest) (*library.Book, *queue.Job, error) {
	if err := req.validate(); err != nil {
		return nil, nil, err
	}
	book, err := s.library.CreateBook(ctx, library.Book{
		Title:        strings.TrimSpace(req.Title),
		Premise:      strings.TrimSpace(req.Premise),
		Audience:     strings.TrimSpace(req.Audience),
		ChapterCount: req.Chapters,
		Status:       library.BookQueued,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("create book: %w", err)
	}
	job, _, err := s.jobs.Enqueue(ctx, book.ID, queue.PipelineText)
	if err != nil {
		return book, nil, fmt.Errorf("enqueue text job: %w", err)
	}
	if err := s.library.SetBookStatus(ctx, book.ID, library.BookQueued); err != nil {
		return book, job, fmt.Errorf("mirror book status: %w", err)
	}
	book.Status = library.BookQueued
	s.logger.Info("book enqueued",
		logging.String(logging.FieldEventType, "book_enqueued"),
		logging.String(logging.FieldSubjectID, book.ID),
		logging.String(logging.FieldJobID, job.ID),
		logging.Int("chapters", book.ChapterCount),
	)
	return book, job, nil
}

// EnqueueNarration creates the audio job for a book whose text job is
// complete. An existing audio job is returned unchanged with created false.
func (s *Service) EnqueueNarration(ctx context.Context, bookID string) (*queue.Job, bool, error) {
	if _, err := s.library.GetBook(ctx, bookID); err != nil {
		return nil, false, fmt.Errorf("load book %s: %w", bookID, err)
	}
	text, err := s.jobs.FindBySubject(ctx, bookID, queue.PipelineText)
	switch {
	case errors.Is(err, queue.ErrNotFound):
		return nil, false, services.Wrap(services.ErrValidation, "admin", "enqueue narration", "book has no text job", nil)
	case err != nil:
		return nil, false, fmt.Errorf("load text job: %w", err)
	case text.Status != queue.StatusComplete:
		return nil, false, services.Wrap(services.ErrValidation, "admin", "enqueue narration",
			fmt.Sprintf("text job is %s, want complete", text.Status), nil)
	}

	job, created, err := s.jobs.Enqueue(ctx, bookID, queue.PipelineAudio)
	if err != nil {
		return nil, false, fmt.Errorf("enqueue audio job: %w", err)
	}
	if created {
		if err := s.library.SetAudioStatus(ctx, bookID, library.BookQueued); err != nil {
			return job, created, fmt.Errorf("mirror audio status: %w", err)
		}
		s.logger.Info("narration enqueued",
			logging.String(logging.FieldEventType, "narration_enqueued"),
			logging.String(logging.FieldSubjectID, bookID),
			logging.String(logging.FieldJobID, job.ID),
		)
	}
	return job, created, nil
}

// Requeue makes a stopped job claimable again. It fails with
// queue.ErrJobLocked while a worker holds a fresh lock, and complete jobs
// need force.
func (s *Service) Requeue(ctx context.Context, jobID string, force bool) (*queue.Job, error) {
	job, err := s.jobs.Requeue(ctx, jobID, force, s.lease)
	if err != nil {
		return nil, fmt.Errorf("requeue %s: %w", jobID, err)
	}
	s.logger.Info("job requeued",
		logging.String(logging.FieldEventType, "job_requeued"),
		logging.String(logging.FieldJobID, job.ID),
		logging.String(logging.FieldStatus, string(job.Status)),
		logging.Bool("force", force),
	)
	return job, s.mirror(ctx, job)
}

// Cancel asks a job to stop for good. An idle job is cancelled at once; a
// running one stops at its next checkpoint.
func (s *Service) Cancel(ctx context.Context, jobID string) (*queue.Job, error) {
	job, err := s.jobs.RequestCancel(ctx, jobID, s.lease)
	if err != nil {
		return nil, fmt.Errorf("cancel %s: %w", jobID, err)
	}
	return job, s.afterControl(ctx, job, "cancel")
}

// Pause asks a text job to stop resumably.
func (s *Service) Pause(ctx context.Context, jobID string) (*queue.Job, error) {
	job, err := s.jobs.RequestPause(ctx, jobID, s.lease)
	if err != nil {
		return nil, fmt.Errorf("pause %s: %w", jobID, err)
	}
	return job, s.afterControl(ctx, job, "pause")
}

func (s *Service) afterControl(ctx context.Context, job *queue.Job, action string) error {
	applied := job.Status.IsTerminal()
	s.logger.Info("job control requested",
		logging.String(logging.FieldEventType, "job_"+action+"_requested"),
		logging.String(logging.FieldJobID, job.ID),
		logging.String(logging.FieldStatus, string(job.Status)),
		logging.Bool("applied", applied),
	)
	if !applied {
		return nil
	}
	return s.mirror(ctx, job)
}

// DeleteBook removes a book, its jobs, and its artifacts. It refuses while
// either pipeline holds a fresh lock on the book.
func (s *Service) DeleteBook(ctx context.Context, bookID string) error {
	if _, err := s.library.GetBook(ctx, bookID); err != nil {
		return fmt.Errorf("load book %s: %w", bookID, err)
	}
	for _, p := range queue.Pipelines() {
		job, err := s.jobs.FindBySubject(ctx, bookID, p)
		if errors.Is(err, queue.ErrNotFound) {
			continue
		}
		if err != nil {
			return fmt.Errorf("load %s job: %w", p, err)
		}
		if job.LockFresh(s.now(), s.lease) {
			return fmt.Errorf("delete book %s: %s job: %w", bookID, p, queue.ErrJobLocked)
		}
	}
	if err := s.jobs.DeleteSubject(ctx, bookID); err != nil {
		return fmt.Errorf("delete jobs: %w", err)
	}
	if err := s.library.DeleteBook(ctx, bookID); err != nil {
		return fmt.Errorf("delete book records: %w", err)
	}
	if err := s.layout.RemoveBook(bookID); err != nil {
		logging.WarnWithContext(s.logger, "book artifacts not removed", "artifact_cleanup_failed",
			logging.String(logging.FieldSubjectID, bookID),
			logging.Error(err),
		)
	}
	s.logger.Info("book deleted",
		logging.String(logging.FieldEventType, "book_deleted"),
		logging.String(logging.FieldSubjectID, bookID),
	)
	return nil
}

func (s *Service) mirror(ctx context.Context, job *queue.Job) error {
	status := library.StatusForJob(job.Status)
	var err error
	if job.Pipeline == queue.PipelineAudio {
		err = s.library.SetAudioStatus(ctx, job.SubjectID, status)
	} else {
		err = s.library.SetBookStatus(ctx, job.SubjectID, status)
	}
	if err != nil {
		return fmt.Errorf("mirror %s status: %w", job.Pipeline, err)
	}
	return nil
}
