// Package daemon coordinates the long-running bookloom worker process.
//
// It wires configuration, the job store, and the workflow manager into a
// single lifecycle with flock-based locking so one worker name runs at most
// once per data directory. When enabled it also serves the read-only status
// API (chi router) next to the workflow lanes; both run under one errgroup so
// either failing stops the other.
//
// Keep orchestration logic here: pipeline stages live in bookgen and
// narration, and claiming lives in workflow.
package daemon
