// Package api defines wire-format types and converters for the status API
// and the CLI's JSON output. It translates queue jobs, library books, and
// workflow summaries into transport-friendly DTOs so readers never couple to
// internal types.
//
// # Key Types
//
// JobItem: transport representation of a job with its progress flags, cost,
// lock holder, and admin markers.
//
// BookItem: a book with its mirrored text and narration statuses.
//
// WorkflowStatus: worker running state, job counts per pipeline, lane
// readiness, and the last processed job.
//
// # Converters
//
// FromJob/FromJobs: queue.Job -> JobItem.
//
// FromBook/FromBooks: library.Book -> BookItem.
//
// FromStatusSummary: workflow.StatusSummary -> WorkflowStatus.
//
// # Design Notes
//
// DTOs use camelCase JSON tags. Internal enums (queue.Status, queue.Pipeline,
// queue.Step) are exposed as lowercase strings. Timestamps use RFC3339 with
// milliseconds.
package api
