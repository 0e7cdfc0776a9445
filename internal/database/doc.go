// Package database opens the persistence backends shared by the job queue and
// the library of generated outputs.
//
// SQLite (modernc, pure Go) is the default: Open applies WAL and busy-timeout
// pragmas on every pooled connection, creates the embedded schema on first use,
// and refuses databases with a different schema version. Postgres is reached
// through gorm; each store migrates its own models there.
//
// Timestamps are stored as fixed-width UTC strings (see FormatTime) so that
// lexicographic comparison in SQL matches chronological order, which the lease
// predicate in the claim statement depends on.
package database
