package main

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"bookloom/internal/queue"
	"bookloom/internal/workflow"
)

func TestJobListFilters(t *testing.T) {
	env := setupCLITestEnv(t)
	first := addBook(t, env, "First")
	addBook(t, env, "Second")

	out, _, err := runCLI(t, []string{"job", "list", "--json"}, env.configPath)
	if err != nil {
		t.Fatalf("job list: %v", err)
	}
	var all []struct {
		ID     string `json:"id"`
		BookID string `json:"bookId"`
	}
	decodeJSON(t, out, &all)
	if len(all) != 2 {
		t.Fatalf("expected 2 jobs, got %d", len(all))
	}

	out, _, err = runCLI(t, []string{"job", "list", "--book", first.Book.ID, "--json"}, env.configPath)
	if err != nil {
		t.Fatalf("job list --book: %v", err)
	}
	var filtered []struct {
		ID string `json:"id"`
	}
	decodeJSON(t, out, &filtered)
	if len(filtered) != 1 || filtered[0].ID != first.Job.ID {
		t.Fatalf("unexpected filtered jobs %+v", filtered)
	}

	out, _, err = runCLI(t, []string{"job", "list", "--pipeline", "audio"}, env.configPath)
	if err != nil {
		t.Fatalf("job list --pipeline audio: %v", err)
	}
	requireContains(t, out, "No jobs")

	out, _, err = runCLI(t, []string{"job", "list"}, env.configPath)
	if err != nil {
		t.Fatalf("job list: %v", err)
	}
	requireContains(t, out, first.Job.ID)
	requireContains(t, out, "pending")
}

func TestJobListRejectsUnknownValues(t *testing.T) {
	env := setupCLITestEnv(t)

	if _, _, err := runCLI(t, []string{"job", "list", "--status", "bogus"}, env.configPath); err == nil || !strings.Contains(err.Error(), "unknown status") {
		t.Fatalf("expected unknown status error, got %v", err)
	}
	if _, _, err := runCLI(t, []string{"job", "list", "--pipeline", "video"}, env.configPath); err == nil || !strings.Contains(err.Error(), "unknown pipeline") {
		t.Fatalf("expected unknown pipeline error, got %v", err)
	}
}

func TestJobControlCommands(t *testing.T) {
	env := setupCLITestEnv(t)
	added := addBook(t, env, "Controlled")

	out, _, err := runCLI(t, []string{"job", "pause", added.Job.ID}, env.configPath)
	if err != nil {
		t.Fatalf("job pause: %v", err)
	}
	requireContains(t, out, "paused")

	out, _, err = runCLI(t, []string{"job", "requeue", added.Job.ID}, env.configPath)
	if err != nil {
		t.Fatalf("job requeue: %v", err)
	}
	requireContains(t, out, "requeued (pending)")

	out, _, err = runCLI(t, []string{"job", "cancel", added.Job.ID}, env.configPath)
	if err != nil {
		t.Fatalf("job cancel: %v", err)
	}
	requireContains(t, out, "cancelled")

	out, _, err = runCLI(t, []string{"job", "show", added.Job.ID, "--json"}, env.configPath)
	if err != nil {
		t.Fatalf("job show: %v", err)
	}
	var item struct {
		Status string `json:"status"`
	}
	decodeJSON(t, out, &item)
	if item.Status != string(queue.StatusCancelled) {
		t.Fatalf("status = %q, want cancelled", item.Status)
	}

	out, _, err = runCLI(t, []string{"job", "show", added.Job.ID}, env.configPath)
	if err != nil {
		t.Fatalf("job show: %v", err)
	}
	requireContains(t, out, "Job "+added.Job.ID)
	requireContains(t, out, "cancelled")
}

func TestJobShowMissing(t *testing.T) {
	env := setupCLITestEnv(t)
	if _, _, err := runCLI(t, []string{"job", "show", "missing"}, env.configPath); err == nil {
		t.Fatal("expected error for missing job")
	}
}

func TestBuildJobFilter(t *testing.T) {
	filter, err := buildJobFilter(" Text ", []string{"pending", " GENERATING"}, " b1 ", 10)
	if err != nil {
		t.Fatalf("buildJobFilter: %v", err)
	}
	if filter.Pipeline != queue.PipelineText || filter.SubjectID != "b1" || filter.Limit != 10 {
		t.Fatalf("unexpected filter %+v", filter)
	}
	if len(filter.Statuses) != 2 || filter.Statuses[1] != queue.StatusGenerating {
		t.Fatalf("unexpected statuses %v", filter.Statuses)
	}
	if _, err := buildJobFilter("", nil, "", -1); err == nil {
		t.Fatal("expected negative limit to fail")
	}
}

func TestJobLogsShowsFormattedEntries(t *testing.T) {
	env := setupCLITestEnv(t)
	added := addBook(t, env, "Logged")

	out, _, err := runCLI(t, []string{"job", "logs", added.Job.ID}, env.configPath)
	if err != nil {
		t.Fatalf("job logs: %v", err)
	}
	requireContains(t, out, "No log entries")

	path := workflow.NewJobLogs(env.cfg).Path(&queue.Job{ID: added.Job.ID, Pipeline: queue.PipelineText})
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	record := `{"time":"2026-05-01T08:00:00Z","level":"INFO","msg":"job claimed","event_type":"job_claimed"}` + "\n"
	if err := os.WriteFile(path, []byte(record), 0o644); err != nil {
		t.Fatalf("write log: %v", err)
	}

	out, _, err = runCLI(t, []string{"job", "logs", added.Job.ID}, env.configPath)
	if err != nil {
		t.Fatalf("job logs: %v", err)
	}
	requireContains(t, out, "job claimed event_type=job_claimed")

	out, _, err = runCLI(t, []string{"job", "logs", added.Job.ID, "--raw"}, env.configPath)
	if err != nil {
		t.Fatalf("job logs --raw: %v", err)
	}
	requireContains(t, out, `"msg":"job claimed"`)
}
