// Package services defines shared utilities consumed by the pipeline
// executors and the generation client.
//
// Key responsibilities:
//   - Context helpers that stamp job IDs, pipelines, unit indexes, and
//     correlation identifiers for logging.
//   - Structured error markers plus the Wrap helper so failures can be
//     classified (transient, content, validation) when a job is marked failed.
package services
