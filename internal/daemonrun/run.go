package daemonrun

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"os/signal"
	"syscall"

	"bookloom/internal/config"
	"bookloom/internal/daemon"
	"bookloom/internal/logging"
	"bookloom/internal/preflight"
)

// Options configures daemon process runtime behavior.
type Options struct {
	LogLevel string
}

// Run starts the bookloom worker and blocks until SIGINT/SIGTERM.
func Run(cmdCtx context.Context, cfg *config.Config, opts Options) error {
	if cfg == nil {
		return fmt.Errorf("config is required")
	}
	if err := cfg.RequireProvider(); err != nil {
		return err
	}

	signalCtx, cancel := signal.NotifyContext(cmdCtx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if opts.LogLevel != "" {
		cfg.Logging.Level = opts.LogLevel
	}
	logger, err := logging.NewFromConfig(cfg)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}

	stores, err := OpenStores(signalCtx, cfg)
	if err != nil {
		logger.Error("open stores", logging.Error(err))
		return err
	}
	defer func() {
		if err := stores.Close(); err != nil {
			logger.Warn("close stores", logging.Error(err))
		}
	}()

	if err := checkReadiness(signalCtx, cfg, stores, logger); err != nil {
		return err
	}

	mgr := NewManager(cfg, stores, NewGenerator(cfg), logger)
	d, err := daemon.New(cfg, stores.Jobs, logger, mgr)
	if err != nil {
		return fmt.Errorf("create daemon: %w", err)
	}

	logger.Info("bookloom worker starting",
		logging.String(logging.FieldEventType, "worker_starting"),
		logging.String("store", stores.Driver),
		logging.String("worker_name", cfg.Workflow.WorkerName),
		logging.Int("pid", os.Getpid()),
	)
	if err := d.Run(signalCtx); err != nil {
		logger.Error("worker stopped with error", logging.Error(err))
		return err
	}
	return nil
}

// Preflight runs the readiness checks for stores opened from cfg.
func Preflight(ctx context.Context, cfg *config.Config, stores *Stores, provider bool) []preflight.Result {
	return preflight.RunAll(ctx, cfg, preflight.Options{
		Stores: []preflight.NamedStore{
			{Name: "Job store", Store: stores.Jobs},
			{Name: "Library store", Store: stores.Library},
		},
		Provider: provider,
	})
}

func checkReadiness(ctx context.Context, cfg *config.Config, stores *Stores, logger *slog.Logger) error {
	failed := preflight.Failed(Preflight(ctx, cfg, stores, false))
	if len(failed) == 0 {
		return nil
	}
	names := make([]string, 0, len(failed))
	for _, r := range failed {
		logging.ErrorWithContext(logger, "preflight check failed", "preflight_failed",
			logging.String("check", r.Name),
			logging.String("detail", r.Detail),
		)
		names = append(names, r.Name)
	}
	return fmt.Errorf("preflight failed: %s", strings.Join(names, ", "))
}
