package services

import "context"

type contextKey string

const (
	jobIDKey     contextKey = "job_id"
	subjectIDKey contextKey = "subject_id"
	pipelineKey  contextKey = "pipeline"
	unitKey      contextKey = "unit"
	requestIDKey contextKey = "request_id"
)

// WithJobID annotates context with the job identifier.
func WithJobID(ctx context.Context, id string) context.Context {
	if id == "" {
		return ctx
	}
	return context.WithValue(ctx, jobIDKey, id)
}

// JobIDFromContext extracts the job identifier if present.
func JobIDFromContext(ctx context.Context) (string, bool) {
	if v, ok := ctx.Value(jobIDKey).(string); ok && v != "" {
		return v, true
	}
	return "", false
}

// WithSubjectID annotates context with the book the job works on.
func WithSubjectID(ctx context.Context, id string) context.Context {
	if id == "" {
		return ctx
	}
	return context.WithValue(ctx, subjectIDKey, id)
}

// SubjectIDFromContext returns the subject identifier if present.
func SubjectIDFromContext(ctx context.Context) (string, bool) {
	if v, ok := ctx.Value(subjectIDKey).(string); ok && v != "" {
		return v, true
	}
	return "", false
}

// WithPipeline annotates context with the pipeline name (text/audio).
func WithPipeline(ctx context.Context, pipeline string) context.Context {
	if pipeline == "" {
		return ctx
	}
	return context.WithValue(ctx, pipelineKey, pipeline)
}

// PipelineFromContext returns the pipeline name if present.
func PipelineFromContext(ctx context.Context) (string, bool) {
	if v, ok := ctx.Value(pipelineKey).(string); ok && v != "" {
		return v, true
	}
	return "", false
}

// WithUnit annotates context with the unit index being processed.
func WithUnit(ctx context.Context, index int) context.Context {
	return context.WithValue(ctx, unitKey, index)
}

// UnitFromContext returns the unit index if present.
func UnitFromContext(ctx context.Context) (int, bool) {
	v, ok := ctx.Value(unitKey).(int)
	return v, ok
}

// WithRequestID annotates context with a correlation identifier.
func WithRequestID(ctx context.Context, id string) context.Context {
	if id == "" {
		return ctx
	}
	return context.WithValue(ctx, requestIDKey, id)
}

// RequestIDFromContext extracts the correlation identifier if present.
func RequestIDFromContext(ctx context.Context) (string, bool) {
	if v, ok := ctx.Value(requestIDKey).(string); ok && v != "" {
		return v, true
	}
	return "", false
}
