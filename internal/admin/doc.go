// Package admin implements the operator actions behind the CLI: creating
// books, enqueueing pipelines, and requeue/cancel/pause/delete on jobs.
//
// Every action that changes a job also mirrors the coarse status onto the
// book so readers of the library see the same state the queue does. Lock
// ownership is never taken here; actions on a freshly locked job either set
// a marker the running worker observes at its next checkpoint or fail with
// queue.ErrJobLocked.
package admin
