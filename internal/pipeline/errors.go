package pipeline

import "errors"

var (
	// ErrCancelRequested stops a run at the next safe boundary. It is an
	// outcome, not a failure.
	ErrCancelRequested = errors.New("cancel requested")
	// ErrPauseRequested stops a run at the next safe boundary and parks the job.
	ErrPauseRequested = errors.New("pause requested")
)
