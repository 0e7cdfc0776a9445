package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"bookloom/internal/logging"
	"bookloom/internal/queue"
	"bookloom/internal/services"
)

// Outcome is how a run ended.
type Outcome string

const (
	OutcomeComplete    Outcome = "complete"
	OutcomeFailed      Outcome = "failed"
	OutcomeCancelled   Outcome = "cancelled"
	OutcomePaused      Outcome = "paused"
	OutcomeLeaseLost   Outcome = "lease_lost"
	OutcomeInterrupted Outcome = "interrupted"
)

const finalizeTimeout = 10 * time.Second

// Executor drives claimed jobs of one pipeline.
type Executor struct {
	repo       queue.Repository
	def        Definition
	reconciler Reconciler
	logger     *slog.Logger
}

// ExecutorOption customizes an Executor.
type ExecutorOption func(*Executor)

// WithReconciler replaces the output-probing reconciler.
func WithReconciler(r Reconciler) ExecutorOption {
	return func(e *Executor) {
		if r != nil {
			e.reconciler = r
		}
	}
}

// NewExecutor builds an executor for def.
func NewExecutor(repo queue.Repository, def Definition, logger *slog.Logger, opts ...ExecutorOption) *Executor {
	e := &Executor{
		repo:       repo,
		def:        def,
		reconciler: NewReconciler(def),
		logger:     logging.NewComponentLogger(logger, "executor"),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Pipeline returns the pipeline this executor serves.
func (e *Executor) Pipeline() queue.Pipeline {
	return e.def.Pipeline()
}

// Execute runs job to a stopping point. owner must hold the job's lock. The
// returned error is non-nil only when the final state could not be written.
// Cancel ctx with cause queue.ErrLeaseLost when the lease is lost
// mid-run; plain cancellation is treated as shutdown and releases the lock.
func (e *Executor) Execute(ctx context.Context, job *queue.Job, owner string) (Outcome, error) {
	if job == nil {
		return "", errors.New("execute: job is required")
	}
	ctx = services.WithJobID(ctx, job.ID)
	ctx = services.WithSubjectID(ctx, job.SubjectID)
	ctx = services.WithPipeline(ctx, string(job.Pipeline))
	logger := logging.WithContext(ctx, e.logger).With(logging.String(logging.FieldWorker, owner))

	run := newRun(e.repo, job, owner, logger)
	logger.Info("job started",
		logging.String(logging.FieldEventType, "job_start"),
		logging.String(logging.FieldStatus, string(job.Status)),
		logging.Int("attempt", job.Attempts),
		logging.Bool("force", job.ForceRegenerate),
	)
	start := time.Now()
	err := e.drive(ctx, run)
	outcome, finishErr := e.finalize(ctx, run, err)
	logger.Info("job stopped",
		logging.String(logging.FieldEventType, "job_stop"),
		logging.String("outcome", string(outcome)),
		logging.Int64("billed", run.Billed()),
		logging.Duration("elapsed", time.Since(start)),
	)
	return outcome, finishErr
}

func (e *Executor) drive(ctx context.Context, run *Run) error {
	if err := run.Checkpoint(ctx); err != nil {
		return err
	}
	e.mirror(ctx, run, queue.StatusGenerating)

	preUnits := run.Job.Status != queue.StatusGenerating
	needsPlan, err := e.reconciler.NeedsPlan(ctx, run)
	if err != nil {
		return err
	}
	if needsPlan {
		if err := e.plan(ctx, run); err != nil {
			return err
		}
		preUnits = true
	}
	if preUnits {
		if run.Job.Status != queue.StatusPlanned {
			if err := run.setStatus(ctx, queue.StatusPlanned); err != nil {
				return err
			}
		}
		runExtensions(ctx, run, e.def.Extensions())
		if err := run.Checkpoint(ctx); err != nil {
			return err
		}
	}
	if err := run.setStatus(ctx, queue.StatusGenerating); err != nil {
		return err
	}

	units, err := e.def.Units(ctx, run)
	if err != nil {
		return err
	}
	steps := e.def.Steps()
	for _, unit := range units {
		if err := e.runUnit(ctx, run, unit, steps); err != nil {
			return err
		}
	}
	return nil
}

func (e *Executor) plan(ctx context.Context, run *Run) error {
	if err := run.setStatus(ctx, queue.StatusPlanning); err != nil {
		return err
	}
	run.Logger.Info("macro stage started",
		logging.String(logging.FieldEventType, "plan_start"),
		logging.String("label", run.Job.Pipeline.StatusLabel(queue.StatusPlanning)),
	)
	if err := e.def.Plan(ctx, run); err != nil {
		return err
	}
	if err := run.markMilestone(ctx, run.Job.Pipeline.PlanMilestone()); err != nil {
		return err
	}
	return run.setStatus(ctx, queue.StatusPlanned)
}

func (e *Executor) runUnit(ctx context.Context, run *Run, unit Unit, steps []queue.Step) error {
	unitCtx := services.WithUnit(ctx, unit.Index)
	for _, step := range steps {
		if err := run.Checkpoint(unitCtx); err != nil {
			return err
		}
		needed, err := e.reconciler.NeedsWork(unitCtx, run, unit, step)
		if err != nil {
			return err
		}
		if !needed {
			continue
		}
		run.Logger.Info("unit step started",
			logging.String(logging.FieldEventType, "unit_step_start"),
			logging.Int(logging.FieldUnit, unit.Index),
			logging.String(logging.FieldStep, string(step)),
			logging.String("label", unit.Label),
		)
		if err := e.def.Execute(unitCtx, run, unit, step); err != nil {
			return fmt.Errorf("unit %d %s: %w", unit.Index, step, err)
		}
		if err := run.markStep(unitCtx, unit.Index, step); err != nil {
			return err
		}
	}
	return nil
}

func (e *Executor) finalize(ctx context.Context, run *Run, runErr error) (Outcome, error) {
	logger := run.Logger
	if leaseLost(ctx, runErr) {
		logging.WarnWithContext(logger, "lease lost; abandoning run", "lease_lost",
			logging.String(logging.FieldErrorHint, "another worker reclaimed the job after its lease expired"),
			logging.String(logging.FieldImpact, "this worker stops; the new owner resumes from recorded progress"),
		)
		return OutcomeLeaseLost, nil
	}

	// Final writes must land even while the caller is shutting down.
	writeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), finalizeTimeout)
	defer cancel()

	var (
		outcome Outcome
		status  queue.Status
		message string
	)
	switch {
	case runErr == nil:
		outcome, status = OutcomeComplete, queue.StatusComplete
	case errors.Is(runErr, ErrCancelRequested):
		outcome, status = OutcomeCancelled, queue.StatusCancelled
	case errors.Is(runErr, ErrPauseRequested):
		outcome, status = OutcomePaused, queue.StatusPaused
	case ctx.Err() != nil:
		if err := e.repo.Release(writeCtx, run.Job.ID, run.Owner); err != nil && !errors.Is(err, queue.ErrLeaseLost) {
			return OutcomeInterrupted, fmt.Errorf("release job on shutdown: %w", err)
		}
		logger.Info("run interrupted by shutdown; lock released",
			logging.String(logging.FieldEventType, "job_interrupted"),
		)
		return OutcomeInterrupted, nil
	default:
		outcome, status = OutcomeFailed, queue.StatusFailed
		message = failureMessage(runErr)
		logging.ErrorWithContext(logger, "job failed", "job_failed",
			logging.Error(runErr),
			logging.String(logging.FieldErrorKind, services.Kind(runErr)),
			logging.String(logging.FieldErrorHint, services.Hint(runErr)),
			logging.Bool("retryable", services.Retryable(runErr)),
		)
	}

	if err := e.repo.Finish(writeCtx, run.Job.ID, run.Owner, status, message); err != nil {
		if errors.Is(err, queue.ErrLeaseLost) {
			logging.WarnWithContext(logger, "lease lost before final status was written", "lease_lost",
				logging.String("intended_status", string(status)),
			)
			return OutcomeLeaseLost, nil
		}
		return outcome, fmt.Errorf("finish job as %s: %w", status, err)
	}
	run.Job.Status = status
	e.mirror(writeCtx, run, status)

	if outcome == OutcomeComplete {
		if hook, ok := e.def.(CompletionHook); ok {
			if err := hook.OnComplete(writeCtx, run); err != nil {
				logging.WarnWithContext(logger, "completion hook failed", "completion_hook_failed",
					logging.Error(err),
				)
			}
		}
	}
	return outcome, nil
}

func (e *Executor) mirror(ctx context.Context, run *Run, status queue.Status) {
	if err := e.def.Mirror(ctx, run, status); err != nil {
		logging.WarnWithContext(run.Logger, "subject status mirror failed", "mirror_failed",
			logging.String(logging.FieldStatus, string(status)),
			logging.Error(err),
			logging.String(logging.FieldImpact, "book status may lag the job status"),
		)
	}
}

func leaseLost(ctx context.Context, err error) bool {
	if errors.Is(err, queue.ErrLeaseLost) {
		return true
	}
	return ctx.Err() != nil && errors.Is(context.Cause(ctx), queue.ErrLeaseLost)
}

func failureMessage(err error) string {
	message := strings.TrimSpace(err.Error())
	if message == "" {
		message = "job failed without error detail"
	}
	const maxLen = 1000
	if len(message) > maxLen {
		message = message[:maxLen] + "..."
	}
	return message
}
