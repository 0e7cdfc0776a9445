package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"slices"

	"bookloom/internal/queue"
	"bookloom/internal/services/genai"
)

// Run is the executor's view of one claimed job. Definitions use it to record
// cost, poll for cancellation, and log with job context.
type Run struct {
	Job    *queue.Job
	Owner  string
	Logger *slog.Logger

	repo     queue.Repository
	progress queue.Progress
	billed   int64
}

func newRun(repo queue.Repository, job *queue.Job, owner string, logger *slog.Logger) *Run {
	return &Run{
		Job:      job,
		Owner:    owner,
		Logger:   logger,
		repo:     repo,
		progress: cloneProgress(job.Progress),
	}
}

// Force reports whether outputs must be regenerated even when they exist.
func (r *Run) Force() bool {
	return r.Job.ForceRegenerate
}

// SubjectID is the book the job works on.
func (r *Run) SubjectID() string {
	return r.Job.SubjectID
}

// Progress returns the progress recorded so far in this run.
func (r *Run) Progress() queue.Progress {
	return cloneProgress(r.progress)
}

// Billed is the cost this run has added.
func (r *Run) Billed() int64 {
	return r.billed
}

// Charge adds usage to the job's running cost. Call it as soon as a provider
// call returns, before looking at its error: billed work is never dropped.
func (r *Run) Charge(ctx context.Context, usage genai.Usage) error {
	amount := usage.Billed()
	if amount <= 0 {
		return nil
	}
	// Record cost even when the run context is being torn down.
	if err := r.repo.AddCost(context.WithoutCancel(ctx), r.Job.ID, amount); err != nil {
		return err
	}
	r.billed += amount
	return nil
}

// Generate calls the provider and charges the reported usage before the
// call's error is looked at.
func (r *Run) Generate(ctx context.Context, gen genai.Generator, req genai.Request) (genai.Result, error) {
	res, err := gen.Generate(ctx, req)
	if chargeErr := r.Charge(ctx, res.Usage); chargeErr != nil {
		if err != nil {
			return res, errors.Join(err, chargeErr)
		}
		return res, chargeErr
	}
	return res, err
}

// Checkpoint is a safe stopping point. It returns the context error when the
// run is shutting down and ErrCancelRequested or ErrPauseRequested when an
// operator asked the job to stop.
func (r *Run) Checkpoint(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	controls, err := r.repo.Controls(ctx, r.Job.ID)
	if err != nil {
		return err
	}
	switch {
	case controls.CancelRequested:
		return ErrCancelRequested
	case controls.PauseRequested && r.Job.Pipeline.SupportsPause():
		return ErrPauseRequested
	}
	return nil
}

func (r *Run) setStatus(ctx context.Context, status queue.Status) error {
	if r.Job.Status == status {
		return nil
	}
	if err := r.repo.SetStatus(ctx, r.Job.ID, r.Owner, status); err != nil {
		return err
	}
	r.Job.Status = status
	return nil
}

func (r *Run) markMilestone(ctx context.Context, name string) error {
	if err := r.repo.MarkMilestone(ctx, r.Job.ID, r.Owner, name); err != nil {
		return err
	}
	if !r.progress.HasMilestone(name) {
		r.progress.Milestones = append(r.progress.Milestones, name)
	}
	return nil
}

func (r *Run) markStep(ctx context.Context, unit int, step queue.Step) error {
	if err := r.repo.MarkUnitStep(ctx, r.Job.ID, r.Owner, unit, step); err != nil {
		return err
	}
	r.progress.Units = addStep(r.progress.Units, unit, step)
	return nil
}

func addStep(units []queue.UnitState, index int, step queue.Step) []queue.UnitState {
	i, found := slices.BinarySearchFunc(units, index, func(u queue.UnitState, target int) int {
		return u.Index - target
	})
	if !found {
		return slices.Insert(units, i, queue.UnitState{Index: index, Steps: []queue.Step{step}})
	}
	if !units[i].Has(step) {
		units[i].Steps = append(units[i].Steps, step)
	}
	return units
}

func cloneProgress(p queue.Progress) queue.Progress {
	out := queue.Progress{Milestones: slices.Clone(p.Milestones)}
	for _, u := range p.Units {
		out.Units = append(out.Units, queue.UnitState{Index: u.Index, Steps: slices.Clone(u.Steps)})
	}
	return out
}
