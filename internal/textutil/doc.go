// Package textutil holds the text helpers shared by the pipelines: splitting
// narration text into provider-sized chunks, building filesystem slugs,
// normalizing titles, and a term-frequency similarity used to reject chapters
// that repeat their predecessor.
package textutil
