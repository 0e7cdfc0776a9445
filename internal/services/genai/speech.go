package genai

import (
	"context"
	"strings"
	"unicode/utf8"
)

type speechRequest struct {
	Model          string `json:"model"`
	Input          string `json:"input"`
	Voice          string `json:"voice"`
	ResponseFormat string `json:"response_format,omitempty"`
	Instructions   string `json:"instructions,omitempty"`
}

var speechMIMETypes = map[string]string{
	"mp3":  "audio/mpeg",
	"wav":  "audio/wav",
	"opus": "audio/ogg",
	"aac":  "audio/aac",
	"flac": "audio/flac",
}

// speech bills by input characters and only on success.
func (c *Client) speech(ctx context.Context, req Request, op string) (Result, error) {
	input := strings.TrimSpace(req.Prompt)
	format := firstNonEmpty(req.Format, "mp3")
	payload := speechRequest{
		Model:          c.cfg.SpeechModel,
		Input:          input,
		Voice:          firstNonEmpty(req.Voice, c.cfg.Voice, "alloy"),
		ResponseFormat: format,
		Instructions:   strings.TrimSpace(req.System),
	}
	var audio []byte
	_, err := c.withRetry(ctx, op, func() (string, error) {
		body, err := c.postRaw(ctx, c.endpoint("audio/speech"), payload)
		if err != nil {
			return "", err
		}
		if len(body) == 0 {
			return "", &emptyContentError{Op: op, Snippet: "<empty audio>"}
		}
		audio = body
		return "", nil
	})
	if err != nil {
		return Result{}, classify(op, err)
	}
	mime := speechMIMETypes[format]
	if mime == "" {
		mime = "application/octet-stream"
	}
	return Result{
		Data:     audio,
		MIMEType: mime,
		Usage:    Usage{Characters: int64(utf8.RuneCountInString(input))},
	}, nil
}
