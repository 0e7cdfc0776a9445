package queue

import "errors"

var (
	// ErrNotFound is returned when a job does not exist.
	ErrNotFound = errors.New("job not found")
	// ErrLeaseLost means the caller no longer owns the job lock.
	ErrLeaseLost = errors.New("job lease lost")
	// ErrJobLocked rejects administrative changes while a worker holds a fresh lock.
	ErrJobLocked = errors.New("job is locked by an active worker")
	// ErrInvalidTransition rejects a status change the state machine does not allow.
	ErrInvalidTransition = errors.New("invalid status transition")
)
