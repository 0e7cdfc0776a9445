package genai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"bookloom/internal/services"
)

var errMalformed = errors.New("malformed response")

type httpStatusError struct {
	StatusCode int
	Body       string
	RetryAfter time.Duration
}

func (e *httpStatusError) Error() string {
	return fmt.Sprintf("http %d: %s", e.StatusCode, strings.TrimSpace(e.Body))
}

// postJSON sends payload and decodes a JSON response into out. The raw body is
// returned so callers can report snippets; out is populated even for error
// statuses when the body parses, which keeps usage reports intact.
func (c *Client) postJSON(ctx context.Context, endpoint string, payload, out any) ([]byte, error) {
	body, status, header, err := c.send(ctx, endpoint, payload)
	if err != nil {
		return nil, err
	}
	if len(body) > 0 {
		if decodeErr := json.Unmarshal(body, out); decodeErr != nil && status < http.StatusMultipleChoices {
			return body, fmt.Errorf("%w: decode response: %v", errMalformed, decodeErr)
		}
	}
	if status >= http.StatusMultipleChoices {
		return body, statusError(status, header, body)
	}
	return body, nil
}

func (c *Client) postRaw(ctx context.Context, endpoint string, payload any) ([]byte, error) {
	body, status, header, err := c.send(ctx, endpoint, payload)
	if err != nil {
		return nil, err
	}
	if status >= http.StatusMultipleChoices {
		return body, statusError(status, header, body)
	}
	return body, nil
}

func (c *Client) send(ctx context.Context, endpoint string, payload any) ([]byte, int, http.Header, error) {
	encoded, err := json.Marshal(payload)
	if err != nil {
		return nil, 0, nil, fmt.Errorf("encode body: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(encoded))
	if err != nil {
		return nil, 0, nil, fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, 0, nil, fmt.Errorf("http error (timeout=%s): %w", c.timeoutDuration(), err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, 0, nil, fmt.Errorf("read body (timeout=%s): %w", c.timeoutDuration(), err)
	}
	return body, resp.StatusCode, resp.Header, nil
}

func statusError(status int, header http.Header, body []byte) error {
	retryAfter, _ := parseRetryAfter(header.Get("Retry-After"))
	return &httpStatusError{
		StatusCode: status,
		Body:       summarizePayloadSnippet(string(body)),
		RetryAfter: retryAfter,
	}
}

// classify tags provider failures with a services marker so the executor can
// record what kind of failure ended the job.
func classify(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return services.Wrap(services.ErrTimeout, op, "request", "context finished", err)
	}
	var statusErr *httpStatusError
	if errors.As(err, &statusErr) {
		switch {
		case retryableStatus(statusErr.StatusCode):
			return services.Wrap(services.ErrTransient, op, "request", "provider unavailable", err)
		case statusErr.StatusCode == http.StatusUnauthorized, statusErr.StatusCode == http.StatusForbidden:
			return services.Wrap(services.ErrConfiguration, op, "request", "provider rejected credentials", err)
		default:
			return services.Wrap(services.ErrExternalTool, op, "request", "provider rejected request", err)
		}
	}
	var emptyErr *emptyContentError
	if errors.As(err, &emptyErr) || errors.Is(err, errMalformed) {
		return services.Wrap(services.ErrContent, op, "response", "unusable output", err)
	}
	return services.Wrap(services.ErrTransient, op, "request", "transport failure", err)
}

func wrapConfiguration(op string, err error) error {
	return services.Wrap(services.ErrConfiguration, op, "setup", "", err)
}

func wrapValidation(op string, err error) error {
	return services.Wrap(services.ErrValidation, op, "setup", "", err)
}

func retryableStatus(code int) bool {
	return code == http.StatusRequestTimeout || code == http.StatusTooManyRequests || code >= http.StatusInternalServerError
}

func (c *Client) withRetry(ctx context.Context, op string, attempt func() (string, error)) (string, error) {
	attempts := c.retryAttempts()
	var lastErr error

	for n := 1; n <= attempts; n++ {
		content, err := attempt()
		if err == nil {
			return content, nil
		}
		lastErr = err
		delay, retry := c.retryDelay(ctx, err, n, attempts)
		if !retry {
			break
		}
		if err := c.sleep(ctx, delay); err != nil {
			return "", err
		}
	}
	if attempts > 1 {
		return "", fmt.Errorf("%s: failed after %d attempts: %w", op, attempts, lastErr)
	}
	return "", lastErr
}

func (c *Client) timeoutDuration() time.Duration {
	if c == nil || c.httpClient == nil || c.httpClient.Timeout <= 0 {
		return defaultHTTPTimeout
	}
	return c.httpClient.Timeout
}

func (c *Client) retryAttempts() int {
	if c == nil || c.retryMaxAttempts <= 0 {
		return 1
	}
	return c.retryMaxAttempts
}

func (c *Client) retryDelay(ctx context.Context, err error, attempt, maxAttempts int) (time.Duration, bool) {
	if attempt >= maxAttempts || err == nil || ctx == nil || ctx.Err() != nil {
		return 0, false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return 0, false
	}

	var emptyErr *emptyContentError
	if errors.As(err, &emptyErr) {
		return c.backoffDelay(attempt), true
	}

	var statusErr *httpStatusError
	if errors.As(err, &statusErr) {
		if !retryableStatus(statusErr.StatusCode) {
			return 0, false
		}
		if statusErr.RetryAfter > 0 {
			return c.capDelay(statusErr.RetryAfter), true
		}
		return c.backoffDelay(attempt), true
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return c.backoffDelay(attempt), true
	}

	var urlErr *url.Error
	if errors.As(err, &urlErr) && urlErr.Timeout() {
		return c.backoffDelay(attempt), true
	}

	return 0, false
}

func (c *Client) backoffDelay(attempt int) time.Duration {
	base := c.retryBaseDelay
	if base <= 0 {
		return 0
	}
	maxDelay := c.retryMaxDelay
	if maxDelay <= 0 {
		maxDelay = defaultRetryMaxDelay
	}
	if attempt <= 0 {
		attempt = 1
	}
	// attempt 1 -> base, attempt 2 -> base*2, attempt 3 -> base*4, ...
	delay := base
	for i := 1; i < attempt; i++ {
		if delay > maxDelay/2 {
			delay = maxDelay
			break
		}
		delay *= 2
	}
	return c.capDelay(delay)
}

func (c *Client) capDelay(delay time.Duration) time.Duration {
	if delay < 0 {
		return 0
	}
	maxDelay := defaultRetryMaxDelay
	if c.retryMaxDelay > 0 {
		maxDelay = c.retryMaxDelay
	}
	if delay > maxDelay {
		return maxDelay
	}
	return delay
}

func (c *Client) sleep(ctx context.Context, delay time.Duration) error {
	if delay <= 0 {
		return nil
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if c.sleeper != nil {
		c.sleeper(delay)
		return ctx.Err()
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func parseRetryAfter(value string) (time.Duration, bool) {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0, false
	}
	if seconds, err := strconv.Atoi(value); err == nil {
		if seconds < 0 {
			return 0, false
		}
		return time.Duration(seconds) * time.Second, true
	}
	if when, err := http.ParseTime(value); err == nil {
		delay := time.Until(when)
		if delay < 0 {
			return 0, false
		}
		return delay, true
	}
	return 0, false
}
