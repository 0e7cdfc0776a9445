package workflow

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"bookloom/internal/config"
	"bookloom/internal/logging"
	"bookloom/internal/queue"
)

// JobLogs manages one append-only log file per job under <log_dir>/jobs.
// Every attempt of a job writes to the same file.
type JobLogs struct {
	baseDir string
	cfg     *config.Config
}

// NewJobLogs returns nil when no log directory is configured.
func NewJobLogs(cfg *config.Config) *JobLogs {
	if cfg == nil || strings.TrimSpace(cfg.Paths.LogDir) == "" {
		return nil
	}
	return &JobLogs{baseDir: filepath.Join(cfg.Paths.LogDir, "jobs"), cfg: cfg}
}

// Path returns the log file for job.
func (j *JobLogs) Path(job *queue.Job) string {
	return filepath.Join(j.baseDir, fmt.Sprintf("%s-%s.log", job.Pipeline, job.ID))
}

// Open returns a JSON logger writing to the job's file. The caller closes the
// returned closer when the run ends.
func (j *JobLogs) Open(job *queue.Job) (*slog.Logger, io.Closer, error) {
	if job == nil {
		return nil, nil, fmt.Errorf("job is nil")
	}
	path := j.Path(job)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, nil, fmt.Errorf("ensure job log directory: %w", err)
	}
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o664)
	if err != nil {
		return nil, nil, fmt.Errorf("open job log: %w", err)
	}
	opts := logging.Options{Level: "info", Format: "json"}
	if j.cfg != nil {
		if strings.TrimSpace(j.cfg.Logging.Level) != "" {
			opts.Level = j.cfg.Logging.Level
		}
		opts.PipelineLevels = j.cfg.Logging.PipelineOverrides
	}
	logger, err := logging.New(file, opts)
	if err != nil {
		_ = file.Close()
		return nil, nil, err
	}
	return logger, file, nil
}
