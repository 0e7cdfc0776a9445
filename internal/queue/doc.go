// Package queue persists background jobs and exposes the lease-based lock
// manager that keeps two workers from running the same job.
//
// A job belongs to one subject (a book) and one pipeline (text or audio). Its
// row carries the lifecycle status, the lock (locked_at plus locked_by), the
// running cost, and administrative markers. Progress lives in two insert-only
// tables: job_milestones for macro stages and job_unit_steps for per-unit
// sub-steps. Rows there are never updated or deleted except with the job, so
// progress can only move forward.
//
// Every write the executor makes is guarded by ownership of the lock. When a
// guarded write affects no rows, the store reports ErrLeaseLost and the caller
// must stop without touching the job again.
//
// Two Repository implementations exist: Store (SQLite, the default) and
// GormStore (Postgres, claims with FOR UPDATE SKIP LOCKED).
package queue
