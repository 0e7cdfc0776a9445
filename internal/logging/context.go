package logging

import (
	"context"
	"log/slog"

	"bookloom/internal/services"
)

const (
	// FieldComponent is the structured logging key for component names.
	FieldComponent = "component"
	// FieldJobID is the structured logging key for job identifiers.
	FieldJobID = "job_id"
	// FieldSubjectID is the structured logging key for the book a job belongs to.
	FieldSubjectID = "subject_id"
	// FieldPipeline is the structured logging key for pipeline names (text, audio).
	FieldPipeline = "pipeline"
	// FieldStatus is the structured logging key for job statuses.
	FieldStatus = "status"
	// FieldUnit is the structured logging key for unit indexes.
	FieldUnit = "unit"
	// FieldStep is the structured logging key for unit sub-steps.
	FieldStep = "step"
	// FieldWorker is the structured logging key for the lock owner.
	FieldWorker = "worker"
	// FieldCorrelationID is the structured logging key for request correlation identifiers.
	FieldCorrelationID = "correlation_id"
	// FieldEventType classifies a log line for filtering.
	FieldEventType = "event_type"
	// FieldErrorHint carries an operator-facing next step.
	FieldErrorHint = "error_hint"
	// FieldErrorKind carries the services error marker name.
	FieldErrorKind = "error_kind"
	// FieldImpact is the user-facing consequence of a warning.
	FieldImpact = "impact"
)

// ContextFields extracts standardized slog attributes from the provided context.
func ContextFields(ctx context.Context) []slog.Attr {
	if ctx == nil {
		return nil
	}
	fields := make([]slog.Attr, 0, 5)
	if id, ok := services.JobIDFromContext(ctx); ok {
		fields = append(fields, slog.String(FieldJobID, id))
	}
	if id, ok := services.SubjectIDFromContext(ctx); ok {
		fields = append(fields, slog.String(FieldSubjectID, id))
	}
	if pipeline, ok := services.PipelineFromContext(ctx); ok {
		fields = append(fields, slog.String(FieldPipeline, pipeline))
	}
	if unit, ok := services.UnitFromContext(ctx); ok {
		fields = append(fields, slog.Int(FieldUnit, unit))
	}
	if rid, ok := services.RequestIDFromContext(ctx); ok {
		fields = append(fields, slog.String(FieldCorrelationID, rid))
	}
	return fields
}

// WithContext returns a logger augmented with structured fields derived from the supplied context.
func WithContext(ctx context.Context, logger *slog.Logger) *slog.Logger {
	if logger == nil {
		logger = NewNop()
	}
	fields := ContextFields(ctx)
	if len(fields) == 0 {
		return logger
	}
	return logger.With(toArgs(fields)...)
}
