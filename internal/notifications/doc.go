// Package notifications publishes job outcomes to ntfy.
//
// NewService returns a noop implementation when no topic is configured, so
// the workflow manager can call it unconditionally. Completed books,
// completed narrations, and failed jobs each map to a fixed title, tag set,
// and priority.
package notifications
