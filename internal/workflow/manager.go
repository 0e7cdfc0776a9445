package workflow

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"bookloom/internal/config"
	"bookloom/internal/logging"
	"bookloom/internal/notifications"
	"bookloom/internal/pipeline"
	"bookloom/internal/queue"
)

// Manager coordinates the pipeline lanes.
type Manager struct {
	cfg    *config.Config
	repo   queue.Repository
	logger *slog.Logger
	clock  Clock
	owner  string

	pollInterval time.Duration
	errorRetry   time.Duration
	lease        time.Duration

	heartbeat *Heartbeat
	jobLogs   *JobLogs
	execOpts  []pipeline.ExecutorOption
	notifier  notifications.Service

	lanes     map[queue.Pipeline]*lane
	laneOrder []queue.Pipeline

	mu      sync.RWMutex
	running bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	lastErr error
	lastJob *queue.Job
	active  map[queue.Pipeline]string
}

// ManagerOption configures optional Manager behavior.
type ManagerOption func(*Manager)

// WithClock replaces the system clock.
func WithClock(clock Clock) ManagerOption {
	return func(m *Manager) {
		if clock != nil {
			m.clock = clock
		}
	}
}

// WithOwner fixes the lock owner id. By default it is the worker name plus a
// random suffix, unique per process.
func WithOwner(owner string) ManagerOption {
	return func(m *Manager) {
		if owner != "" {
			m.owner = owner
		}
	}
}

// WithHeartbeatInterval overrides the configured lease renewal interval.
func WithHeartbeatInterval(d time.Duration) ManagerOption {
	return func(m *Manager) {
		m.heartbeat.interval = d
	}
}

// WithExecutorOptions passes options to every executor the manager builds.
func WithExecutorOptions(opts ...pipeline.ExecutorOption) ManagerOption {
	return func(m *Manager) {
		m.execOpts = append(m.execOpts, opts...)
	}
}

// WithNotifier publishes completed and failed jobs through n.
func WithNotifier(n notifications.Service) ManagerOption {
	return func(m *Manager) {
		if n != nil {
			m.notifier = n
		}
	}
}

// WithoutJobLogs sends job logs to the lane logger instead of per-job files.
func WithoutJobLogs() ManagerOption {
	return func(m *Manager) {
		m.jobLogs = nil
	}
}

// NewManager constructs a workflow manager. Register lanes with
// ConfigureLanes before Start.
func NewManager(cfg *config.Config, repo queue.Repository, logger *slog.Logger, opts ...ManagerOption) *Manager {
	if logger == nil {
		logger = logging.NewNop()
	}
	m := &Manager{
		cfg:          cfg,
		repo:         repo,
		logger:       logging.NewComponentLogger(logger, "workflow"),
		clock:        systemClock{},
		owner:        fmt.Sprintf("%s-%s", cfg.Workflow.WorkerName, uuid.NewString()[:8]),
		pollInterval: cfg.PollInterval(),
		errorRetry:   cfg.ErrorRetryInterval(),
		lease:        cfg.Lease(),
		jobLogs:      NewJobLogs(cfg),
		lanes:        make(map[queue.Pipeline]*lane),
		active:       make(map[queue.Pipeline]string),
	}
	m.heartbeat = NewHeartbeat(repo, m.logger, cfg.HeartbeatInterval())
	for _, opt := range opts {
		opt(m)
	}
	m.heartbeat.clock = m.clock
	return m
}

// Owner returns the lock owner id this manager claims jobs with.
func (m *Manager) Owner() string {
	return m.owner
}
