package queue

import (
	"context"
	"time"

	"bookloom/internal/database"
)

// Repository is the persistence contract shared by the poller, the executor,
// and administrative commands.
type Repository interface {
	// Enqueue creates the job for (subjectID, pipeline) if it does not exist.
	// The boolean reports whether a new job was created.
	Enqueue(ctx context.Context, subjectID string, pipeline Pipeline) (*Job, bool, error)
	Get(ctx context.Context, id string) (*Job, error)
	FindBySubject(ctx context.Context, subjectID string, pipeline Pipeline) (*Job, error)
	List(ctx context.Context, filter Filter) ([]*Job, error)
	Progress(ctx context.Context, id string) (Progress, error)

	// ClaimNext atomically locks the oldest claimable job of pipeline whose
	// status is in statuses and whose lock is absent or older than lease.
	// It returns nil, nil when nothing is claimable.
	ClaimNext(ctx context.Context, pipeline Pipeline, statuses []Status, lease time.Duration, owner string) (*Job, error)
	Renew(ctx context.Context, id, owner string) error
	Release(ctx context.Context, id, owner string) error

	// Guarded writes: each fails with ErrLeaseLost when owner no longer holds the lock.
	SetStatus(ctx context.Context, id, owner string, status Status) error
	MarkMilestone(ctx context.Context, id, owner, milestone string) error
	MarkUnitStep(ctx context.Context, id, owner string, unit int, step Step) error
	Finish(ctx context.Context, id, owner string, status Status, message string) error

	// AddCost increments the running cost. It is not lock-guarded: billed work
	// is recorded even when the lease was lost mid-call.
	AddCost(ctx context.Context, id string, amount int64) error
	Controls(ctx context.Context, id string) (Controls, error)

	Requeue(ctx context.Context, id string, force bool, lease time.Duration) (*Job, error)
	RequestCancel(ctx context.Context, id string, lease time.Duration) (*Job, error)
	RequestPause(ctx context.Context, id string, lease time.Duration) (*Job, error)
	DeleteSubject(ctx context.Context, subjectID string) error

	Stats(ctx context.Context) (Stats, error)
	CheckHealth(ctx context.Context) (database.Health, error)
}

// Option configures a store.
type Option func(*options)

type options struct {
	now   func() time.Time
	newID func() string
}

// WithClock overrides the time source used for locks and timestamps.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		if now != nil {
			o.now = now
		}
	}
}

// WithIDGenerator overrides job id generation.
func WithIDGenerator(newID func() string) Option {
	return func(o *options) {
		if newID != nil {
			o.newID = newID
		}
	}
}

func buildOptions(opts []Option) options {
	o := options{
		now:   func() time.Time { return time.Now().UTC() },
		newID: newJobID,
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// requeueTarget picks where a requeued job resumes.
func requeueTarget(job *Job, progress Progress, force bool) (Status, error) {
	if job.Status == StatusComplete && !force {
		return "", ErrInvalidTransition
	}
	if !force && progress.HasMilestone(job.Pipeline.PlanMilestone()) {
		return StatusGenerating, nil
	}
	return StatusPending, nil
}

// checkCancellable rejects cancelling finished jobs. Failed and paused jobs may
// be cancelled so they stop showing up as resumable.
func checkCancellable(job *Job) error {
	switch job.Status {
	case StatusComplete, StatusCancelled:
		return ErrInvalidTransition
	}
	return nil
}

func checkPausable(job *Job) error {
	if !job.Pipeline.SupportsPause() {
		return ErrInvalidTransition
	}
	if job.Status.IsTerminal() {
		return ErrInvalidTransition
	}
	return nil
}
