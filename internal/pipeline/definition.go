package pipeline

import (
	"context"

	"bookloom/internal/queue"
)

// Unit is one independently resumable piece of work.
type Unit struct {
	Index int
	Label string
}

// Definition describes a pipeline to the executor.
type Definition interface {
	Pipeline() queue.Pipeline

	// PlanExists probes for the macro-stage output.
	PlanExists(ctx context.Context, run *Run) (bool, error)
	// Plan generates and persists the macro-stage output.
	Plan(ctx context.Context, run *Run) error

	// Units lists the work units in ascending index order. It is called once
	// the plan output exists.
	Units(ctx context.Context, run *Run) ([]Unit, error)
	// Steps lists the ordered sub-steps every unit goes through.
	Steps() []queue.Step
	// OutputExists probes the persisted output of one unit sub-step.
	OutputExists(ctx context.Context, run *Run, unit Unit, step queue.Step) (bool, error)
	// Execute generates and persists one unit sub-step. The output must be
	// durable before it returns nil.
	Execute(ctx context.Context, run *Run, unit Unit, step queue.Step) error

	// Extensions run after the macro stage. Their failures never fail the job.
	Extensions() []Extension

	// Mirror copies the job status onto the subject so consumers can poll a
	// coarse status without reading jobs.
	Mirror(ctx context.Context, run *Run, status queue.Status) error
}

// CompletionHook is implemented by definitions that act after a job
// completes (for example, queueing narration for a finished book). Errors
// are logged.
type CompletionHook interface {
	OnComplete(ctx context.Context, run *Run) error
}
