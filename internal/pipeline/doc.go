// Package pipeline drives one claimed job through its stages.
//
// A Definition supplies what a pipeline does: the macro stage (Plan), the
// ordered units and their sub-steps, output probes, and best-effort
// extensions. The Executor supplies how: it walks the state machine, asks the
// Reconciler whether each piece of work is still needed, polls cancel and
// pause markers at unit, sub-step, and chunk boundaries, and is the only
// writer of terminal statuses.
//
// Every progress write is guarded by lock ownership. When the store reports
// queue.ErrLeaseLost, or the run context is cancelled with that cause, the
// executor stops and writes nothing further; whoever reclaimed the job owns
// it now.
package pipeline
