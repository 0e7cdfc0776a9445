// Package logging assembles the slog loggers used across bookloom.
//
// The daemon logs to stdout in console or JSON form and, with a log
// directory configured, as JSON to bookloom.log. Per-pipeline levels follow
// the pipeline attribute a logger is tagged with. Job loggers tee warnings
// back into the daemon log. Context helpers tag lines with job, book,
// pipeline, unit, and correlation ids.
package logging
