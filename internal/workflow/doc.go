// Package workflow polls the job store and drives claimed jobs through their
// pipeline.
//
// The Manager runs one lane per enabled pipeline (text and audio). Each lane
// holds at most one job in flight: a Tick performs a single claim, runs the
// claimed job to a stopping point while a heartbeat renews its lease, and the
// lane ticks again immediately. When nothing is claimable the lane sleeps for
// the configured poll interval on an injectable Clock.
//
// Several processes may run lanes for the same pipeline; the lease-based
// claim in the queue package keeps them from running the same job.
package workflow
