// Package bookgen defines the text pipeline: an outline as the macro stage,
// then one unit per chapter with a text step and an optional illustration
// step. A cover prompt and bookends (foreword and afterword) are generated
// as optional extras once the outline exists.
package bookgen
