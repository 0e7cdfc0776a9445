package genai

import (
	"context"
	"fmt"
	"strings"
)

type chatCompletionRequest struct {
	Model          string            `json:"model"`
	Messages       []chatMessage     `json:"messages"`
	Temperature    float64           `json:"temperature"`
	ResponseFormat map[string]string `json:"response_format,omitempty"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatCompletionResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
			Refusal string `json:"refusal"`
		} `json:"message"`
		// Some providers return the streaming schema even when stream=false.
		Delta struct {
			Content string `json:"content"`
		} `json:"delta"`
		Text         string `json:"text"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Usage *struct {
		TotalTokens int64 `json:"total_tokens"`
	} `json:"usage"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

type emptyContentError struct {
	Op           string
	FinishReason string
	Refusal      string
	Snippet      string
}

func (e *emptyContentError) Error() string {
	return fmt.Sprintf(
		"%s: empty content (finish_reason=%q, refusal=%q, response_snippet=%s)",
		e.Op,
		e.FinishReason,
		e.Refusal,
		e.Snippet,
	)
}

func (c *Client) complete(ctx context.Context, req Request, op string) (Result, error) {
	messages := make([]chatMessage, 0, 2)
	if system := strings.TrimSpace(req.System); system != "" {
		messages = append(messages, chatMessage{Role: "system", Content: system})
	}
	messages = append(messages, chatMessage{Role: "user", Content: strings.TrimSpace(req.Prompt)})
	payload := chatCompletionRequest{
		Model:       c.cfg.TextModel,
		Messages:    messages,
		Temperature: 0.8,
	}
	if req.JSON {
		payload.Temperature = 0.4
		payload.ResponseFormat = map[string]string{"type": "json_object"}
	}

	var usage Usage
	content, err := c.withRetry(ctx, op, func() (string, error) {
		var completion chatCompletionResponse
		body, err := c.postJSON(ctx, c.endpoint("chat/completions"), payload, &completion)
		if completion.Usage != nil {
			usage.Tokens += completion.Usage.TotalTokens
		}
		if err != nil {
			return "", err
		}
		if completion.Error != nil {
			return "", fmt.Errorf("api error: %s", strings.TrimSpace(completion.Error.Message))
		}
		text, finish, refusal := extractCompletion(completion)
		if text == "" {
			return "", &emptyContentError{Op: op, FinishReason: finish, Refusal: refusal, Snippet: summarizePayloadSnippet(string(body))}
		}
		return text, nil
	})
	if err != nil {
		return Result{Usage: usage}, classify(op, err)
	}
	return Result{Content: content, MIMEType: "text/plain", Usage: usage}, nil
}

func extractCompletion(completion chatCompletionResponse) (string, string, string) {
	var finishReason, refusal string
	for _, choice := range completion.Choices {
		if finishReason == "" {
			finishReason = strings.TrimSpace(choice.FinishReason)
		}
		if refusal == "" {
			refusal = strings.TrimSpace(choice.Message.Refusal)
		}
		if content := firstNonEmpty(choice.Message.Content, choice.Delta.Content, choice.Text); content != "" {
			return content, finishReason, refusal
		}
	}
	return "", finishReason, refusal
}
