package notifications

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"bookloom/internal/config"
	"bookloom/internal/queue"
)

const userAgent = "bookloom/0.1"

// JobEvent describes a finished job.
type JobEvent struct {
	JobID    string
	BookID   string
	Title    string
	Pipeline queue.Pipeline
	Status   queue.Status
	Error    string
	Cost     int64
}

// Service defines the notification surface exposed to workflow components.
type Service interface {
	NotifyJobFinished(ctx context.Context, event JobEvent) error
	TestNotification(ctx context.Context) error
}

// TitleLookup resolves a book id to its display title.
type TitleLookup func(ctx context.Context, bookID string) string

// Option configures the ntfy service.
type Option func(*ntfyService)

// WithTitleLookup fills JobEvent.Title when the caller left it empty.
func WithTitleLookup(fn TitleLookup) Option {
	return func(n *ntfyService) {
		n.titles = fn
	}
}

// WithHTTPClient replaces the default client.
func WithHTTPClient(client *http.Client) Option {
	return func(n *ntfyService) {
		if client != nil {
			n.client = client
		}
	}
}

// NewService builds a notification service backed by ntfy when configured.
// When no ntfy topic is configured, a noop implementation is returned.
func NewService(cfg *config.Config, opts ...Option) Service {
	topic := strings.TrimSpace(cfg.Notify.NtfyTopic)
	if topic == "" {
		return noopService{}
	}

	timeout := time.Duration(cfg.Notify.RequestTimeout) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	n := &ntfyService{
		endpoint: topic,
		client:   &http.Client{Timeout: timeout},
		complete: cfg.Notify.NotifyComplete,
		failure:  cfg.Notify.NotifyFailure,
	}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

type payload struct {
	title    string
	message  string
	tags     []string
	priority string
}

type ntfyService struct {
	endpoint string
	client   *http.Client
	titles   TitleLookup
	complete bool
	failure  bool
}

func (n *ntfyService) NotifyJobFinished(ctx context.Context, event JobEvent) error {
	switch event.Status {
	case queue.StatusComplete:
		if !n.complete {
			return nil
		}
	case queue.StatusFailed:
		if !n.failure {
			return nil
		}
	default:
		return nil
	}
	if strings.TrimSpace(event.Title) == "" && n.titles != nil {
		event.Title = n.titles(ctx, event.BookID)
	}
	return n.send(ctx, formatJobEvent(event))
}

func formatJobEvent(event JobEvent) payload {
	name := strings.TrimSpace(event.Title)
	if name == "" {
		name = event.BookID
	}
	pipelineTag := string(event.Pipeline)

	if event.Status == queue.StatusFailed {
		reason := strings.TrimSpace(event.Error)
		if reason == "" {
			reason = "unknown error"
		}
		return payload{
			title:    "bookloom - Job Failed",
			message:  fmt.Sprintf("%s job failed for %s: %s\nRequeue with: bookloom job requeue %s", event.Pipeline, name, reason, event.JobID),
			tags:     []string{"bookloom", pipelineTag, "failed"},
			priority: "high",
		}
	}

	if event.Pipeline == queue.PipelineAudio {
		return payload{
			title:   "bookloom - Narration Ready",
			message: fmt.Sprintf("Narration ready: %s (cost %d)", name, event.Cost),
			tags:    []string{"bookloom", pipelineTag, "completed"},
		}
	}
	return payload{
		title:   "bookloom - Book Ready",
		message: fmt.Sprintf("Book ready: %s (cost %d)", name, event.Cost),
		tags:    []string{"bookloom", pipelineTag, "completed"},
	}
}

func (n *ntfyService) TestNotification(ctx context.Context) error {
	data := payload{
		title:    "bookloom - Test",
		message:  "Notification system test",
		tags:     []string{"bookloom", "test"},
		priority: "low",
	}
	return n.send(ctx, data)
}

func (n *ntfyService) send(ctx context.Context, data payload) error {
	if n == nil || n.client == nil {
		return nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.endpoint, strings.NewReader(data.message))
	if err != nil {
		return fmt.Errorf("build ntfy request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Content-Type", "text/plain; charset=utf-8")
	if data.title != "" {
		req.Header.Set("Title", data.title)
	}
	if len(data.tags) > 0 {
		req.Header.Set("Tags", strings.Join(data.tags, ","))
	}
	if data.priority != "" && data.priority != "default" {
		req.Header.Set("Priority", data.priority)
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("send ntfy notification: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("ntfy returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

type noopService struct{}

func (noopService) NotifyJobFinished(context.Context, JobEvent) error { return nil }
func (noopService) TestNotification(context.Context) error            { return nil }
