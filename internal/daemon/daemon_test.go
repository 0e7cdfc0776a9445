package daemon_test

import (
	"context"
	"encoding/json"
	"net/http"
	"os"
	"strconv"
	"strings"
	"testing"
	"time"

	"bookloom/internal/api"
	"bookloom/internal/artifacts"
	"bookloom/internal/bookgen"
	"bookloom/internal/config"
	"bookloom/internal/daemon"
	"bookloom/internal/logging"
	"bookloom/internal/testsupport"
	"bookloom/internal/workflow"
)

func newDaemon(t *testing.T, cfg *config.Config) *daemon.Daemon {
	t.Helper()
	stores := testsupport.MustOpenStores(t, cfg, nil)
	layout := artifacts.NewLayout(cfg.Paths.ArtifactDir)
	mgr := workflow.NewManager(cfg, stores.Queue, logging.NewNop(), workflow.WithoutJobLogs())
	mgr.ConfigureLanes(bookgen.New(stores.Library, testsupport.NewFakeGenerator(), layout))
	d, err := daemon.New(cfg, stores.Queue, logging.NewNop(), mgr)
	if err != nil {
		t.Fatalf("daemon.New: %v", err)
	}
	return d
}

func TestDaemonStartStop(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithConfig(func(c *config.Config) {
		c.StatusAPI.Enabled = false
		c.Workflow.AudioEnabled = false
	}))
	d := newDaemon(t, cfg)
	ctx := context.Background()

	if err := d.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	status := d.Status(ctx)
	if !status.Running || !status.Workflow.Running {
		t.Fatal("expected daemon to report running")
	}
	pid, err := os.ReadFile(cfg.PIDPath())
	if err != nil {
		t.Fatalf("read pid file: %v", err)
	}
	if strings.TrimSpace(string(pid)) != strconv.Itoa(os.Getpid()) {
		t.Fatalf("pid file = %q, want %d", pid, os.Getpid())
	}

	// Second start should fail
	if err := d.Start(ctx); err == nil {
		t.Fatal("expected second start to fail")
	}

	d.Stop()
	if d.Status(ctx).Running {
		t.Fatal("expected daemon to be stopped")
	}
	if _, err := os.Stat(cfg.PIDPath()); !os.IsNotExist(err) {
		t.Fatalf("expected pid file removed, got %v", err)
	}
}

func TestDaemonSingleInstancePerWorkerName(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithConfig(func(c *config.Config) {
		c.StatusAPI.Enabled = false
	}))
	first := newDaemon(t, cfg)
	second := newDaemon(t, cfg)
	ctx := context.Background()

	if err := first.Start(ctx); err != nil {
		t.Fatalf("first Start: %v", err)
	}
	defer first.Stop()

	err := second.Start(ctx)
	if err == nil || !strings.Contains(err.Error(), "already running") {
		t.Fatalf("expected lock conflict, got %v", err)
	}
}

func TestDaemonRunServesStatusAPI(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	d := newDaemon(t, cfg)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- d.Run(ctx) }()

	var addr string
	deadline := time.Now().Add(5 * time.Second)
	for addr == "" && time.Now().Before(deadline) {
		addr = d.APIAddress()
		time.Sleep(10 * time.Millisecond)
	}
	if addr == "" {
		cancel()
		t.Fatal("status api never bound")
	}

	resp, err := http.Get("http://" + addr + "/api/status")
	if err != nil {
		cancel()
		t.Fatalf("GET /api/status: %v", err)
	}
	var status api.WorkerStatus
	decodeErr := json.NewDecoder(resp.Body).Decode(&status)
	_ = resp.Body.Close()
	if decodeErr != nil {
		cancel()
		t.Fatalf("decode: %v", decodeErr)
	}
	if !status.Running || len(status.Workflow.LaneHealth) != 1 {
		cancel()
		t.Fatalf("unexpected status %+v", status)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run returned %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
	if d.Status(context.Background()).Running {
		t.Fatal("expected daemon to be stopped after Run")
	}
}
