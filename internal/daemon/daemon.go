package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"sync/atomic"

	"github.com/gofrs/flock"
	"golang.org/x/sync/errgroup"

	"bookloom/internal/api"
	"bookloom/internal/config"
	"bookloom/internal/logging"
	"bookloom/internal/queue"
	"bookloom/internal/workflow"
)

// Daemon coordinates the background processing services and enforces single-instance execution.
type Daemon struct {
	cfg      *config.Config
	logger   *slog.Logger
	jobs     queue.Repository
	workflow *workflow.Manager
	api      *apiServer

	lockPath string
	pidPath  string
	lock     *flock.Flock

	running atomic.Bool
}

// Status represents daemon runtime information.
type Status struct {
	Running      bool
	PID          int
	StoreDriver  string
	LockFilePath string
	Workflow     workflow.StatusSummary
}

// New constructs a daemon with initialized dependencies.
func New(cfg *config.Config, jobs queue.Repository, logger *slog.Logger, wf *workflow.Manager) (*Daemon, error) {
	if cfg == nil || jobs == nil || logger == nil || wf == nil {
		return nil, errors.New("daemon requires config, job store, logger, and workflow manager")
	}
	lockPath := cfg.LockPath()
	d := &Daemon{
		cfg:      cfg,
		logger:   logging.NewComponentLogger(logger, "daemon"),
		jobs:     jobs,
		workflow: wf,
		lockPath: lockPath,
		pidPath:  cfg.PIDPath(),
		lock:     flock.New(lockPath),
	}
	if cfg.StatusAPI.Enabled {
		d.api = newAPIServer(cfg.StatusAPI, jobs, d.apiStatus, logger)
	}
	return d, nil
}

// Start acquires the instance lock and launches the workflow lanes.
func (d *Daemon) Start(ctx context.Context) error {
	if d.running.Load() {
		return errors.New("daemon already running")
	}

	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return fmt.Errorf("another bookloom worker named %q is already running", d.cfg.Workflow.WorkerName)
	}

	if err := os.WriteFile(d.pidPath, []byte(strconv.Itoa(os.Getpid())+"\n"), 0o644); err != nil {
		_ = d.lock.Unlock()
		return fmt.Errorf("write pid file: %w", err)
	}

	if err := d.workflow.Start(ctx); err != nil {
		_ = os.Remove(d.pidPath)
		_ = d.lock.Unlock()
		return fmt.Errorf("start workflow: %w", err)
	}

	d.running.Store(true)
	d.logger.Info("bookloom worker started",
		logging.String(logging.FieldEventType, "daemon_start"),
		logging.String(logging.FieldWorker, d.workflow.Owner()),
		logging.String("lock", d.lockPath),
	)
	return nil
}

// Stop stops background processing and releases the instance lock. Running
// jobs are released so another worker can resume them.
func (d *Daemon) Stop() {
	if !d.running.Load() {
		return
	}
	d.workflow.Stop()
	if err := os.Remove(d.pidPath); err != nil && !errors.Is(err, os.ErrNotExist) {
		d.logger.Warn("failed to remove pid file", logging.Error(err))
	}
	if err := d.lock.Unlock(); err != nil {
		d.logger.Warn("failed to release worker lock", logging.Error(err))
	}
	d.running.Store(false)
	d.logger.Info("bookloom worker stopped",
		logging.String(logging.FieldEventType, "daemon_stop"),
	)
}

// Run starts the daemon and blocks until ctx ends or the status API fails.
func (d *Daemon) Run(ctx context.Context) error {
	if err := d.Start(ctx); err != nil {
		return err
	}
	defer d.Stop()

	g, gCtx := errgroup.WithContext(ctx)
	if d.api != nil {
		if err := d.api.listen(); err != nil {
			return err
		}
		g.Go(d.api.serve)
		g.Go(func() error {
			<-gCtx.Done()
			return d.api.shutdown()
		})
	}
	g.Go(func() error {
		<-gCtx.Done()
		return nil
	})
	return g.Wait()
}

// APIAddress returns the status API listen address once Run has bound it.
func (d *Daemon) APIAddress() string {
	if d.api == nil {
		return ""
	}
	return d.api.address()
}

// Status returns the current daemon status.
func (d *Daemon) Status(ctx context.Context) Status {
	return Status{
		Running:      d.running.Load(),
		PID:          os.Getpid(),
		StoreDriver:  d.cfg.Store.Driver,
		LockFilePath: d.lockPath,
		Workflow:     d.workflow.Status(ctx),
	}
}

func (d *Daemon) apiStatus(ctx context.Context) api.WorkerStatus {
	status := d.Status(ctx)
	return api.WorkerStatus{
		Running:      status.Running,
		PID:          status.PID,
		StoreDriver:  status.StoreDriver,
		LockFilePath: status.LockFilePath,
		Workflow:     api.FromStatusSummary(status.Workflow),
	}
}
