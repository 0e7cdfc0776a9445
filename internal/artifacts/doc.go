// Package artifacts owns the on-disk outputs of the pipelines: chapter
// illustrations and narration audio. Paths are derived from the book id and
// unit index only, so the reconciler can probe for an output without any
// other state.
package artifacts
