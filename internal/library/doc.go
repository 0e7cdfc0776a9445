// Package library stores the output records the pipelines produce: books,
// outlines, chapters, best-effort extras, narration plans, and the audio
// segment catalog. These rows are authoritative for "does the output exist";
// job progress flags only cache them.
package library
