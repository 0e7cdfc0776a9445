package notifications_test

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"bookloom/internal/config"
	"bookloom/internal/notifications"
	"bookloom/internal/queue"
)

type capturedRequest struct {
	title    string
	tags     string
	priority string
	body     string
}

func newNtfyServer(t *testing.T) (*httptest.Server, func() []capturedRequest) {
	t.Helper()
	var (
		mu       sync.Mutex
		captured []capturedRequest
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		mu.Lock()
		captured = append(captured, capturedRequest{
			title:    r.Header.Get("Title"),
			tags:     r.Header.Get("Tags"),
			priority: r.Header.Get("Priority"),
			body:     string(body),
		})
		mu.Unlock()
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(srv.Close)
	return srv, func() []capturedRequest {
		mu.Lock()
		defer mu.Unlock()
		return append([]capturedRequest(nil), captured...)
	}
}

func testConfig(topic string) *config.Config {
	cfg := config.Default()
	cfg.Notify.NtfyTopic = topic
	return &cfg
}

func TestNewServiceReturnsNoopWhenTopicMissing(t *testing.T) {
	svc := notifications.NewService(testConfig(""))
	err := svc.NotifyJobFinished(context.Background(), notifications.JobEvent{
		Pipeline: queue.PipelineText,
		Status:   queue.StatusComplete,
	})
	if err != nil {
		t.Fatalf("expected noop notifier to return nil, got %v", err)
	}
	if err := svc.TestNotification(context.Background()); err != nil {
		t.Fatalf("noop test notification: %v", err)
	}
}

func TestNtfyServiceFormatsPayloads(t *testing.T) {
	tests := []struct {
		name           string
		event          notifications.JobEvent
		expectTitle    string
		expectMessage  string
		expectTags     string
		expectPriority string
	}{
		{
			name: "book complete",
			event: notifications.JobEvent{
				JobID: "j1", BookID: "b1", Title: "The Quiet Storm",
				Pipeline: queue.PipelineText, Status: queue.StatusComplete, Cost: 1200,
			},
			expectTitle:   "bookloom - Book Ready",
			expectMessage: "Book ready: The Quiet Storm (cost 1200)",
			expectTags:    "bookloom,text,completed",
		},
		{
			name: "narration complete",
			event: notifications.JobEvent{
				JobID: "j2", BookID: "b1", Title: "The Quiet Storm",
				Pipeline: queue.PipelineAudio, Status: queue.StatusComplete, Cost: 40,
			},
			expectTitle:   "bookloom - Narration Ready",
			expectMessage: "Narration ready: The Quiet Storm (cost 40)",
			expectTags:    "bookloom,audio,completed",
		},
		{
			name: "job failed",
			event: notifications.JobEvent{
				JobID: "j3", BookID: "b2",
				Pipeline: queue.PipelineText, Status: queue.StatusFailed, Error: "provider rejected request",
			},
			expectTitle:    "bookloom - Job Failed",
			expectMessage:  "text job failed for b2: provider rejected request\nRequeue with: bookloom job requeue j3",
			expectTags:     "bookloom,text,failed",
			expectPriority: "high",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			srv, requests := newNtfyServer(t)
			svc := notifications.NewService(testConfig(srv.URL))
			if err := svc.NotifyJobFinished(context.Background(), tc.event); err != nil {
				t.Fatalf("notify: %v", err)
			}
			got := requests()
			if len(got) != 1 {
				t.Fatalf("expected 1 request, got %d", len(got))
			}
			req := got[0]
			if req.title != tc.expectTitle {
				t.Fatalf("title = %q, want %q", req.title, tc.expectTitle)
			}
			if req.body != tc.expectMessage {
				t.Fatalf("message = %q, want %q", req.body, tc.expectMessage)
			}
			if req.tags != tc.expectTags {
				t.Fatalf("tags = %q, want %q", req.tags, tc.expectTags)
			}
			if req.priority != tc.expectPriority {
				t.Fatalf("priority = %q, want %q", req.priority, tc.expectPriority)
			}
		})
	}
}

func TestNtfyServiceSkipsDisabledAndNonFinalOutcomes(t *testing.T) {
	srv, requests := newNtfyServer(t)
	cfg := testConfig(srv.URL)
	cfg.Notify.NotifyComplete = false
	svc := notifications.NewService(cfg)

	events := []notifications.JobEvent{
		{Pipeline: queue.PipelineText, Status: queue.StatusComplete},
		{Pipeline: queue.PipelineText, Status: queue.StatusPaused},
		{Pipeline: queue.PipelineAudio, Status: queue.StatusCancelled},
	}
	for _, ev := range events {
		if err := svc.NotifyJobFinished(context.Background(), ev); err != nil {
			t.Fatalf("notify %s: %v", ev.Status, err)
		}
	}
	if got := requests(); len(got) != 0 {
		t.Fatalf("expected no requests, got %d", len(got))
	}
}

func TestNtfyServiceResolvesTitle(t *testing.T) {
	srv, requests := newNtfyServer(t)
	svc := notifications.NewService(testConfig(srv.URL), notifications.WithTitleLookup(func(_ context.Context, bookID string) string {
		if bookID == "b9" {
			return "Looked Up"
		}
		return ""
	}))
	err := svc.NotifyJobFinished(context.Background(), notifications.JobEvent{
		BookID: "b9", Pipeline: queue.PipelineText, Status: queue.StatusComplete,
	})
	if err != nil {
		t.Fatalf("notify: %v", err)
	}
	got := requests()
	if len(got) != 1 || !strings.Contains(got[0].body, "Looked Up") {
		t.Fatalf("expected resolved title, got %+v", got)
	}
}

func TestNtfyServiceReportsHTTPErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "topic forbidden", http.StatusForbidden)
	}))
	t.Cleanup(srv.Close)

	svc := notifications.NewService(testConfig(srv.URL))
	err := svc.TestNotification(context.Background())
	if err == nil || !strings.Contains(err.Error(), "403") {
		t.Fatalf("expected 403 error, got %v", err)
	}
}
