package daemonctl

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/gofrs/flock"

	"bookloom/internal/config"
)

// ErrDaemonNotRunning indicates no worker holds the instance lock.
var ErrDaemonNotRunning = errors.New("daemon not running")

const pollInterval = 200 * time.Millisecond

// LaunchOptions controls daemon process launch behavior.
type LaunchOptions struct {
	ConfigPath string
	LogLevel   string
}

type StartState string

const (
	StartStateStarted        StartState = "started"
	StartStateAlreadyRunning StartState = "already_running"
)

// StartResult captures daemon start orchestration state.
type StartResult struct {
	State StartState
	PID   int
}

// StopResult captures daemon stop/termination outcome.
type StopResult struct {
	PID        int
	ForcedKill bool
}

// ProcessState is what the lock and pid files say about a worker.
type ProcessState struct {
	Running bool
	PID     int
}

// Probe reports whether a worker for cfg's worker name holds the lock.
func Probe(cfg *config.Config) (ProcessState, error) {
	lock := flock.New(cfg.LockPath())
	locked, err := lock.TryLock()
	if err != nil {
		return ProcessState{}, fmt.Errorf("probe worker lock: %w", err)
	}
	if locked {
		_ = lock.Unlock()
		return ProcessState{}, nil
	}
	pid, err := readPID(cfg.PIDPath())
	if err != nil {
		return ProcessState{Running: true}, err
	}
	return ProcessState{Running: true, PID: pid}, nil
}

// Launch starts a detached worker process running "daemon" in the foreground
// mode of executablePath. Its output goes to cfg.DaemonOutputPath.
func Launch(executablePath string, cfg *config.Config, opts LaunchOptions) error {
	if strings.TrimSpace(executablePath) == "" {
		return fmt.Errorf("resolve executable: executable path is empty")
	}

	args := []string{"daemon"}
	if path := strings.TrimSpace(opts.ConfigPath); path != "" {
		args = append(args, "--config", path)
	}
	if level := strings.TrimSpace(opts.LogLevel); level != "" {
		args = append(args, "--log-level", level)
	}

	output, err := os.OpenFile(cfg.DaemonOutputPath(), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open daemon output: %w", err)
	}
	defer output.Close()

	proc := exec.Command(executablePath, args...)
	proc.Stdout = output
	proc.Stderr = output
	proc.SysProcAttr = &syscall.SysProcAttr{Setsid: true}
	if err := proc.Start(); err != nil {
		return fmt.Errorf("launch daemon: %w", err)
	}
	return proc.Process.Release()
}

// EnsureStarted launches a worker unless one is already running and waits
// until it holds the lock.
func EnsureStarted(cfg *config.Config, executablePath string, opts LaunchOptions, waitTimeout time.Duration) (StartResult, error) {
	state, err := Probe(cfg)
	if err != nil && !state.Running {
		return StartResult{}, err
	}
	if state.Running {
		return StartResult{State: StartStateAlreadyRunning, PID: state.PID}, nil
	}

	if err := Launch(executablePath, cfg, opts); err != nil {
		return StartResult{}, err
	}

	deadline := time.Now().Add(waitTimeout)
	for time.Now().Before(deadline) {
		state, _ := Probe(cfg)
		if state.Running && state.PID > 0 {
			return StartResult{State: StartStateStarted, PID: state.PID}, nil
		}
		time.Sleep(pollInterval)
	}
	return StartResult{}, fmt.Errorf("daemon failed to start within %s; see %s", waitTimeout, cfg.DaemonOutputPath())
}

// WaitForShutdown waits until no worker holds the lock.
func WaitForShutdown(cfg *config.Config, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	for {
		state, err := Probe(cfg)
		if err == nil && !state.Running {
			return nil
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("daemon did not stop within %s", timeout)
		}
		time.Sleep(pollInterval)
	}
}

// StopAndTerminate sends SIGTERM to the worker and SIGKILL if it still holds
// the lock after gracePeriod. Jobs a killed worker held are reclaimed once
// their lease expires.
func StopAndTerminate(cfg *config.Config, gracePeriod time.Duration) (StopResult, error) {
	state, err := Probe(cfg)
	if !state.Running {
		if err != nil {
			return StopResult{}, err
		}
		return StopResult{}, ErrDaemonNotRunning
	}
	if state.PID <= 0 {
		return StopResult{}, fmt.Errorf("unable to determine daemon pid (pid file: %s)", cfg.PIDPath())
	}
	if err := signalProcess(state.PID, syscall.SIGTERM); err != nil {
		return StopResult{}, err
	}

	result := StopResult{PID: state.PID}
	if WaitForShutdown(cfg, gracePeriod) == nil {
		return result, nil
	}
	if err := signalProcess(state.PID, syscall.SIGKILL); err != nil {
		return result, fmt.Errorf("failed to stop daemon process: %w", err)
	}
	if err := os.Remove(cfg.PIDPath()); err != nil && !errors.Is(err, os.ErrNotExist) {
		return result, fmt.Errorf("remove pid file: %w", err)
	}
	result.ForcedKill = true
	return result, nil
}

func signalProcess(pid int, sig syscall.Signal) error {
	if pid == os.Getpid() {
		return fmt.Errorf("refusing to signal current process (pid %d)", pid)
	}
	proc, err := os.FindProcess(pid)
	if err != nil {
		return fmt.Errorf("locate daemon process %d: %w", pid, err)
	}
	if err := proc.Signal(sig); err != nil {
		return fmt.Errorf("signal daemon process %d: %w", pid, err)
	}
	return nil
}

func readPID(path string) (int, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("read daemon pid file %q: %w", path, err)
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil || pid <= 0 {
		return 0, fmt.Errorf("daemon pid file %q is malformed", path)
	}
	return pid, nil
}
