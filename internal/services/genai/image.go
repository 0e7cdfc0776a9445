package genai

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
)

type imageRequest struct {
	Model          string `json:"model"`
	Prompt         string `json:"prompt"`
	N              int    `json:"n"`
	Size           string `json:"size,omitempty"`
	ResponseFormat string `json:"response_format,omitempty"`
}

type imageResponse struct {
	Data []struct {
		B64JSON string `json:"b64_json"`
		URL     string `json:"url"`
	} `json:"data"`
	Usage *struct {
		TotalTokens int64 `json:"total_tokens"`
	} `json:"usage"`
}

func (c *Client) image(ctx context.Context, req Request, op string) (Result, error) {
	payload := imageRequest{
		Model:  c.cfg.ImageModel,
		Prompt: strings.TrimSpace(req.Prompt),
		N:      1,
		Size:   firstNonEmpty(req.Size, c.cfg.ImageSize),
	}
	var usage Usage
	var data []byte
	_, err := c.withRetry(ctx, op, func() (string, error) {
		var resp imageResponse
		if _, err := c.postJSON(ctx, c.endpoint("images/generations"), payload, &resp); err != nil {
			return "", err
		}
		if resp.Usage != nil {
			usage.Tokens += resp.Usage.TotalTokens
		}
		if len(resp.Data) == 0 {
			return "", &emptyContentError{Op: op, Snippet: "no image data"}
		}
		first := resp.Data[0]
		switch {
		case first.B64JSON != "":
			decoded, err := base64.StdEncoding.DecodeString(first.B64JSON)
			if err != nil {
				return "", fmt.Errorf("%w: decode image: %v", errMalformed, err)
			}
			data = decoded
		case first.URL != "":
			fetched, err := c.fetch(ctx, first.URL)
			if err != nil {
				return "", err
			}
			data = fetched
		default:
			return "", &emptyContentError{Op: op, Snippet: "image entry without payload"}
		}
		return "", nil
	})
	if err != nil {
		return Result{Usage: usage}, classify(op, err)
	}
	return Result{Data: data, MIMEType: http.DetectContentType(data), Usage: usage}, nil
}

func (c *Client) fetch(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("fetch image: %w", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch image: %w", err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("fetch image: read body: %w", err)
	}
	if resp.StatusCode >= http.StatusMultipleChoices {
		return nil, &httpStatusError{StatusCode: resp.StatusCode, Body: summarizePayloadSnippet(string(body))}
	}
	if len(body) == 0 {
		return nil, errors.New("fetch image: empty body")
	}
	return body, nil
}
