// Command bookloom runs the book generation worker and administers its
// books and jobs.
//
// The daemon subcommand starts a worker: one poller lane per enabled
// pipeline plus the optional status API. Every other subcommand opens the
// configured store directly, so it works whether or not a worker is running.
// Job actions respect worker leases: requeue refuses a job a live worker
// holds, and cancel or pause on a running job only sets a marker the worker
// honours at its next unit boundary.
package main
