// Package genai is a stateless client for an OpenAI-compatible generation
// API. It issues chat completions (outline, chapter, extension text), image
// generations (chapter illustrations), and speech synthesis (narration
// chunks), reporting billed usage alongside every result, including failed
// calls that the provider still charged for.
package genai
