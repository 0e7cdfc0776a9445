package main

import (
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
)

func TestTestNotifyDisabled(t *testing.T) {
	env := setupCLITestEnv(t)
	t.Setenv("BOOKLOOM_NTFY_TOPIC", "")

	out, _, err := runCLI(t, []string{"test-notify"}, env.configPath)
	if err != nil {
		t.Fatalf("test-notify: %v", err)
	}
	requireContains(t, out, "disabled")
}

func TestTestNotifySendsToTopic(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(srv.Close)

	env := setupCLITestEnv(t)
	t.Setenv("BOOKLOOM_NTFY_TOPIC", srv.URL)

	out, _, err := runCLI(t, []string{"test-notify"}, env.configPath)
	if err != nil {
		t.Fatalf("test-notify: %v", err)
	}
	requireContains(t, out, "Test notification sent")
	if hits.Load() != 1 {
		t.Fatalf("expected 1 ntfy request, got %d", hits.Load())
	}
}
