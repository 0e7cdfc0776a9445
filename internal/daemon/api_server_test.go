package daemon

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"bookloom/internal/api"
	"bookloom/internal/config"
	"bookloom/internal/database"
	"bookloom/internal/queue"
)

type jobStoreStub struct {
	jobs      []*queue.Job
	filter    queue.Filter
	health    database.Health
	healthErr error
}

func (s *jobStoreStub) List(_ context.Context, filter queue.Filter) ([]*queue.Job, error) {
	s.filter = filter
	return s.jobs, nil
}

func (s *jobStoreStub) Get(_ context.Context, id string) (*queue.Job, error) {
	for _, job := range s.jobs {
		if job.ID == id {
			return job, nil
		}
	}
	return nil, queue.ErrNotFound
}

func (s *jobStoreStub) Stats(context.Context) (queue.Stats, error) {
	return queue.Stats{queue.PipelineText: {queue.StatusPending: len(s.jobs)}}, nil
}

func (s *jobStoreStub) CheckHealth(context.Context) (database.Health, error) {
	return s.health, s.healthErr
}

func newTestServer(store *jobStoreStub, token string) *apiServer {
	status := func(context.Context) api.WorkerStatus {
		return api.WorkerStatus{Running: true, StoreDriver: "sqlite"}
	}
	return newAPIServer(config.StatusAPI{Enabled: true, Bind: "127.0.0.1:0", Token: token}, store, status, nil)
}

func serve(srv *apiServer, req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	srv.router.ServeHTTP(w, req)
	return w
}

func TestAPIServerListsJobs(t *testing.T) {
	store := &jobStoreStub{jobs: []*queue.Job{{
		ID:        "job-1",
		SubjectID: "book-1",
		Pipeline:  queue.PipelineText,
		Status:    queue.StatusFailed,
		Error:     "provider down",
		QueuedAt:  time.Now(),
	}}}
	srv := newTestServer(store, "")

	w := serve(srv, httptest.NewRequest(http.MethodGet, "/api/jobs?pipeline=text&status=failed&limit=5", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200 OK, got %d: %s", w.Code, w.Body.String())
	}
	var resp api.JobListResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if len(resp.Items) != 1 || resp.Items[0].Error != "provider down" {
		t.Fatalf("unexpected items: %+v", resp.Items)
	}
	if store.filter.Pipeline != queue.PipelineText || store.filter.Limit != 5 {
		t.Fatalf("unexpected filter: %+v", store.filter)
	}
	if len(store.filter.Statuses) != 1 || store.filter.Statuses[0] != queue.StatusFailed {
		t.Fatalf("unexpected statuses: %v", store.filter.Statuses)
	}
}

func TestAPIServerRejectsBadFilters(t *testing.T) {
	srv := newTestServer(&jobStoreStub{}, "")
	for _, target := range []string{
		"/api/jobs?pipeline=video",
		"/api/jobs?status=sleeping",
		"/api/jobs?limit=-1",
	} {
		if w := serve(srv, httptest.NewRequest(http.MethodGet, target, nil)); w.Code != http.StatusBadRequest {
			t.Fatalf("%s: expected 400, got %d", target, w.Code)
		}
	}
}

func TestAPIServerJobLookup(t *testing.T) {
	store := &jobStoreStub{jobs: []*queue.Job{{ID: "job-7", Pipeline: queue.PipelineAudio, Status: queue.StatusGenerating}}}
	srv := newTestServer(store, "")

	w := serve(srv, httptest.NewRequest(http.MethodGet, "/api/jobs/job-7", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200 OK, got %d", w.Code)
	}
	var resp api.JobResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Item.StatusLabel != "narrating" {
		t.Fatalf("unexpected label %q", resp.Item.StatusLabel)
	}

	if w := serve(srv, httptest.NewRequest(http.MethodGet, "/api/jobs/missing", nil)); w.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", w.Code)
	}
}

func TestAPIServerHealth(t *testing.T) {
	store := &jobStoreStub{health: database.Health{Readable: true, IntegrityCheck: true}}
	srv := newTestServer(store, "secret")

	if w := serve(srv, httptest.NewRequest(http.MethodGet, "/healthz", nil)); w.Code != http.StatusOK {
		t.Fatalf("expected healthy store to return 200, got %d", w.Code)
	}

	store.healthErr = errors.New("database is locked")
	w := serve(srv, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", w.Code)
	}
	var resp api.HealthResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Detail != "database is locked" {
		t.Fatalf("unexpected detail %q", resp.Detail)
	}
}

func TestAPIServerRequiresToken(t *testing.T) {
	srv := newTestServer(&jobStoreStub{}, "secret")

	if w := serve(srv, httptest.NewRequest(http.MethodGet, "/api/status", nil)); w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", w.Code)
	}
	req := httptest.NewRequest(http.MethodGet, "/api/status", nil)
	req.Header.Set("Authorization", "Bearer wrong")
	if w := serve(srv, req); w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 with wrong token, got %d", w.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/api/status", nil)
	req.Header.Set("Authorization", "Bearer secret")
	w := serve(srv, req)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200 with token, got %d", w.Code)
	}
	var status api.WorkerStatus
	if err := json.Unmarshal(w.Body.Bytes(), &status); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !status.Running || status.StoreDriver != "sqlite" {
		t.Fatalf("unexpected status %+v", status)
	}
}
