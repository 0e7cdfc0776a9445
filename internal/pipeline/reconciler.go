package pipeline

import (
	"context"
	"fmt"

	"bookloom/internal/logging"
	"bookloom/internal/queue"
)

// Reconciler decides whether work is still needed. Outputs are authoritative;
// progress flags only cache them.
type Reconciler interface {
	NeedsPlan(ctx context.Context, run *Run) (bool, error)
	NeedsWork(ctx context.Context, run *Run, unit Unit, step queue.Step) (bool, error)
}

// OutputReconciler checks the progress flag, then probes the definition's
// output. When the output exists without its flag (a crash between persisting
// and flagging) it repairs the flag and reports no work. Forced runs skip the
// probe; their flags only record work redone since the forced requeue.
type OutputReconciler struct {
	def Definition
}

// NewReconciler builds the output-probing reconciler for def.
func NewReconciler(def Definition) *OutputReconciler {
	return &OutputReconciler{def: def}
}

func (r *OutputReconciler) NeedsPlan(ctx context.Context, run *Run) (bool, error) {
	milestone := run.Job.Pipeline.PlanMilestone()
	if run.progress.HasMilestone(milestone) {
		return false, nil
	}
	if run.Force() {
		return true, nil
	}
	exists, err := r.def.PlanExists(ctx, run)
	if err != nil {
		return false, fmt.Errorf("probe %s: %w", milestone, err)
	}
	if !exists {
		return true, nil
	}
	if err := run.markMilestone(ctx, milestone); err != nil {
		return false, err
	}
	run.Logger.Info("plan output found without flag; flag repaired",
		logging.String(logging.FieldEventType, "flag_repaired"),
		logging.String("milestone", milestone),
	)
	return false, nil
}

func (r *OutputReconciler) NeedsWork(ctx context.Context, run *Run, unit Unit, step queue.Step) (bool, error) {
	if run.progress.StepDone(unit.Index, step) {
		return false, nil
	}
	if run.Force() {
		return true, nil
	}
	exists, err := r.def.OutputExists(ctx, run, unit, step)
	if err != nil {
		return false, fmt.Errorf("probe unit %d %s: %w", unit.Index, step, err)
	}
	if !exists {
		return true, nil
	}
	if err := run.markStep(ctx, unit.Index, step); err != nil {
		return false, err
	}
	run.Logger.Info("unit output found without flag; flag repaired",
		logging.String(logging.FieldEventType, "flag_repaired"),
		logging.Int(logging.FieldUnit, unit.Index),
		logging.String(logging.FieldStep, string(step)),
	)
	return false, nil
}
