// Package narration defines the audio pipeline. The narration plan lists an
// optional foreword unit (index 0), one unit per chapter, and an optional
// afterword unit after the last chapter. Each unit is narrated as a bounded
// sequence of speech chunks that are stored as part files, so an interrupted
// unit resumes from its last finished chunk.
package narration
