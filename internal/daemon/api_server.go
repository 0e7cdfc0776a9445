package daemon

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"bookloom/internal/api"
	"bookloom/internal/config"
	"bookloom/internal/database"
	"bookloom/internal/logging"
	"bookloom/internal/queue"
)

const maxJobListLimit = 500

// jobSource is what the status API reads from the job store.
type jobSource interface {
	api.JobReader
	CheckHealth(ctx context.Context) (database.Health, error)
}

type apiServer struct {
	bind   string
	logger *slog.Logger
	jobs   jobSource
	jobSvc *api.JobService
	status func(context.Context) api.WorkerStatus

	router   chi.Router
	server   *http.Server
	mu       sync.Mutex
	listener net.Listener
}

func newAPIServer(cfg config.StatusAPI, jobs jobSource, status func(context.Context) api.WorkerStatus, logger *slog.Logger) *apiServer {
	if logger == nil {
		logger = logging.NewNop()
	}
	srv := &apiServer{
		bind:   cfg.Bind,
		logger: logging.NewComponentLogger(logger, "status-api"),
		jobs:   jobs,
		jobSvc: api.NewJobService(jobs),
		status: status,
	}

	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)

	r.Get("/healthz", srv.handleHealth)
	r.Group(func(r chi.Router) {
		r.Use(bearerAuth(cfg.Token))
		r.Get("/api/status", srv.handleStatus)
		r.Route("/api/jobs", func(r chi.Router) {
			r.Get("/", srv.handleJobs)
			r.Get("/{id}", srv.handleJob)
		})
	})
	srv.router = r

	srv.server = &http.Server{
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return srv
}

func (s *apiServer) listen() error {
	listener, err := net.Listen("tcp", s.bind)
	if err != nil {
		return fmt.Errorf("status api listen: %w", err)
	}
	s.mu.Lock()
	s.listener = listener
	s.mu.Unlock()
	s.logger.Info("status api listening", logging.String("address", listener.Addr().String()))
	return nil
}

func (s *apiServer) serve() error {
	s.mu.Lock()
	listener := s.listener
	s.mu.Unlock()
	if err := s.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("status api: %w", err)
	}
	return nil
}

func (s *apiServer) shutdown() error {
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("status api shutdown: %w", err)
	}
	return nil
}

func (s *apiServer) address() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

func (s *apiServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	health, err := s.jobs.CheckHealth(r.Context())
	switch {
	case err != nil:
		s.writeJSON(w, http.StatusServiceUnavailable, api.HealthResponse{Status: "unavailable", Detail: err.Error()})
	case !health.Ready():
		s.writeJSON(w, http.StatusServiceUnavailable, api.HealthResponse{Status: "degraded", Detail: health.Detail()})
	default:
		s.writeJSON(w, http.StatusOK, api.HealthResponse{Status: "ok"})
	}
}

func (s *apiServer) handleStatus(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.status(r.Context()))
}

func (s *apiServer) handleJobs(w http.ResponseWriter, r *http.Request) {
	filter, err := parseJobFilter(r)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	items, err := s.jobSvc.List(r.Context(), filter)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if items == nil {
		items = []api.JobItem{}
	}
	s.writeJSON(w, http.StatusOK, api.JobListResponse{Items: items})
}

func (s *apiServer) handleJob(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimSpace(chi.URLParam(r, "id"))
	item, err := s.jobSvc.Describe(r.Context(), id)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if item == nil {
		s.writeError(w, http.StatusNotFound, "job not found")
		return
	}
	s.writeJSON(w, http.StatusOK, api.JobResponse{Item: *item})
}

func parseJobFilter(r *http.Request) (queue.Filter, error) {
	query := r.URL.Query()
	filter := queue.Filter{
		SubjectID: strings.TrimSpace(query.Get("book")),
		Limit:     100,
	}
	if value := strings.TrimSpace(query.Get("pipeline")); value != "" {
		p := queue.Pipeline(strings.ToLower(value))
		if !p.IsValid() {
			return filter, fmt.Errorf("unknown pipeline %q", value)
		}
		filter.Pipeline = p
	}
	for _, value := range query["status"] {
		trimmed := strings.ToLower(strings.TrimSpace(value))
		if trimmed == "" {
			continue
		}
		status := queue.Status(trimmed)
		if !status.IsValid() {
			return filter, fmt.Errorf("unknown status %q", value)
		}
		filter.Statuses = append(filter.Statuses, status)
	}
	if value := strings.TrimSpace(query.Get("limit")); value != "" {
		limit, err := strconv.Atoi(value)
		if err != nil || limit <= 0 {
			return filter, fmt.Errorf("invalid limit %q", value)
		}
		filter.Limit = min(limit, maxJobListLimit)
	}
	return filter, nil
}

func (s *apiServer) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Error("failed to encode response", logging.Error(err))
	}
}

func (s *apiServer) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, api.ErrorResponse{Error: message})
}
