package api

import (
	"testing"
	"time"

	"bookloom/internal/library"
	"bookloom/internal/queue"
	"bookloom/internal/workflow"
)

func TestFromJobCarriesProgressAndLock(t *testing.T) {
	queued := time.Date(2026, 3, 1, 12, 0, 0, 0, time.FixedZone("CET", 3600))
	locked := queued.Add(time.Minute)
	job := &queue.Job{
		ID:        "job-1",
		SubjectID: "book-1",
		Pipeline:  queue.PipelineText,
		Status:    queue.StatusGenerating,
		Cost:      120,
		Attempts:  2,
		LockedAt:  &locked,
		LockedBy:  "worker-a",
		QueuedAt:  queued,
		Progress: queue.Progress{
			Milestones: []string{"outline"},
			Units: []queue.UnitState{
				{Index: 0, Steps: []queue.Step{queue.StepText, queue.StepImage}},
				{Index: 1, Steps: []queue.Step{queue.StepText}},
			},
		},
	}

	dto := FromJob(job)
	if dto.BookID != "book-1" || dto.Pipeline != "text" || dto.Status != "generating" {
		t.Fatalf("unexpected identity fields: %+v", dto)
	}
	if dto.StatusLabel != "generating chapters" {
		t.Fatalf("status label = %q", dto.StatusLabel)
	}
	if dto.QueuedAt != "2026-03-01T11:00:00.000Z" {
		t.Fatalf("queuedAt = %q, want UTC millis", dto.QueuedAt)
	}
	if dto.LockedAt != "2026-03-01T11:01:00.000Z" || dto.LockedBy != "worker-a" {
		t.Fatalf("lock = %q by %q", dto.LockedAt, dto.LockedBy)
	}
	if dto.StartedAt != "" || dto.CompletedAt != "" {
		t.Fatalf("expected empty optional timestamps, got %q %q", dto.StartedAt, dto.CompletedAt)
	}
	if len(dto.Progress.Units) != 2 || len(dto.Progress.Units[0].Steps) != 2 || dto.Progress.Units[0].Steps[1] != "image" {
		t.Fatalf("progress = %+v", dto.Progress)
	}
}

func TestFromJobNilAndEmptyProgress(t *testing.T) {
	if got := FromJob(nil); got.ID != "" {
		t.Fatalf("expected zero value, got %+v", got)
	}
	dto := FromJob(&queue.Job{ID: "x", Pipeline: queue.PipelineAudio, Status: queue.StatusPending})
	if dto.Progress.Milestones == nil || dto.Progress.Units == nil {
		t.Fatal("expected empty slices so JSON renders [] instead of null")
	}
}

func TestFromBook(t *testing.T) {
	book := &library.Book{ID: "b", Title: "Tides", ChapterCount: 4, Status: library.BookComplete, AudioStatus: library.BookQueued}
	dto := FromBook(book)
	if dto.Status != "complete" || dto.AudioStatus != "queued" || dto.ChapterCount != 4 {
		t.Fatalf("unexpected book dto: %+v", dto)
	}
	if FromBooks(nil) != nil {
		t.Fatal("expected nil slice for no books")
	}
}

func TestFromStatusSummary(t *testing.T) {
	summary := workflow.StatusSummary{
		Running:    true,
		Owner:      "worker-a",
		LastError:  "boom",
		LastJob:    &queue.Job{ID: "job-9", Pipeline: queue.PipelineAudio, Status: queue.StatusComplete},
		ActiveJobs: map[queue.Pipeline]string{queue.PipelineText: "job-3"},
		QueueStats: queue.Stats{queue.PipelineText: {queue.StatusPending: 2}},
		Lanes: []workflow.LaneHealth{
			workflow.UnhealthyLane("text", "store unavailable"),
			workflow.HealthyLane("audio"),
		},
	}
	wf := FromStatusSummary(summary)
	if !wf.Running || wf.Owner != "worker-a" || wf.LastError != "boom" {
		t.Fatalf("unexpected status: %+v", wf)
	}
	if wf.LastJob == nil || wf.LastJob.ID != "job-9" {
		t.Fatalf("last job = %+v", wf.LastJob)
	}
	if wf.ActiveJobs["text"] != "job-3" {
		t.Fatalf("active jobs = %v", wf.ActiveJobs)
	}
	if wf.JobStats["text"]["pending"] != 2 {
		t.Fatalf("text pending = %d", wf.JobStats["text"]["pending"])
	}
	if count, ok := wf.JobStats["audio"]["complete"]; !ok || count != 0 {
		t.Fatalf("expected zero-filled audio stats, got %v", wf.JobStats["audio"])
	}
	if len(wf.LaneHealth) != 2 || wf.LaneHealth[0].Name != "audio" || wf.LaneHealth[1].Detail != "store unavailable" {
		t.Fatalf("lane health = %+v", wf.LaneHealth)
	}
}
