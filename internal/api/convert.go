package api

import (
	"slices"
	"time"

	"bookloom/internal/library"
	"bookloom/internal/queue"
	"bookloom/internal/workflow"
)

// FromJob converts a queue job to its API representation.
func FromJob(job *queue.Job) JobItem {
	if job == nil {
		return JobItem{}
	}
	dto := JobItem{
		ID:              job.ID,
		BookID:          job.SubjectID,
		Pipeline:        string(job.Pipeline),
		Status:          string(job.Status),
		StatusLabel:     job.Pipeline.StatusLabel(job.Status),
		Error:           job.Error,
		Cost:            job.Cost,
		Attempts:        job.Attempts,
		LockedBy:        job.LockedBy,
		CancelRequested: job.CancelRequested,
		PauseRequested:  job.PauseRequested,
		ForceRegenerate: job.ForceRegenerate,
		Progress:        fromProgress(job.Progress),
		QueuedAt:        FormatTime(job.QueuedAt),
		UpdatedAt:       FormatTime(job.UpdatedAt),
		LockedAt:        formatOptional(job.LockedAt),
		StartedAt:       formatOptional(job.StartedAt),
		CompletedAt:     formatOptional(job.CompletedAt),
	}
	return dto
}

// FromJobs converts a slice of jobs into API DTOs.
func FromJobs(jobs []*queue.Job) []JobItem {
	if len(jobs) == 0 {
		return nil
	}
	out := make([]JobItem, 0, len(jobs))
	for _, job := range jobs {
		out = append(out, FromJob(job))
	}
	return out
}

func fromProgress(p queue.Progress) JobProgress {
	out := JobProgress{
		Milestones: slices.Clone(p.Milestones),
		Units:      make([]UnitProgress, 0, len(p.Units)),
	}
	if out.Milestones == nil {
		out.Milestones = []string{}
	}
	for _, unit := range p.Units {
		steps := make([]string, 0, len(unit.Steps))
		for _, step := range unit.Steps {
			steps = append(steps, string(step))
		}
		out.Units = append(out.Units, UnitProgress{Index: unit.Index, Steps: steps})
	}
	return out
}

// FromBook converts a library book.
func FromBook(book *library.Book) BookItem {
	if book == nil {
		return BookItem{}
	}
	return BookItem{
		ID:           book.ID,
		Title:        book.Title,
		Premise:      book.Premise,
		Audience:     book.Audience,
		ChapterCount: book.ChapterCount,
		Status:       string(book.Status),
		AudioStatus:  string(book.AudioStatus),
		CreatedAt:    FormatTime(book.CreatedAt),
		UpdatedAt:    FormatTime(book.UpdatedAt),
	}
}

// FromBooks converts a slice of books.
func FromBooks(books []*library.Book) []BookItem {
	if len(books) == 0 {
		return nil
	}
	out := make([]BookItem, 0, len(books))
	for _, book := range books {
		out = append(out, FromBook(book))
	}
	return out
}

// FromStatusSummary converts a workflow status summary to API payload.
func FromStatusSummary(summary workflow.StatusSummary) WorkflowStatus {
	health := make([]LaneHealth, 0, len(summary.Lanes))
	for _, lane := range summary.Lanes {
		health = append(health, LaneHealth{Name: lane.Name, Ready: lane.Ready, Detail: lane.Detail})
	}
	slices.SortFunc(health, func(a, b LaneHealth) int {
		switch {
		case a.Name < b.Name:
			return -1
		case a.Name > b.Name:
			return 1
		}
		return 0
	})

	active := make(map[string]string, len(summary.ActiveJobs))
	for p, id := range summary.ActiveJobs {
		active[string(p)] = id
	}

	wf := WorkflowStatus{
		Running:    summary.Running,
		Owner:      summary.Owner,
		JobStats:   MergeJobStats(summary.QueueStats),
		ActiveJobs: active,
		LaneHealth: health,
		LastError:  summary.LastError,
	}
	if summary.LastJob != nil {
		last := FromJob(summary.LastJob)
		wf.LastJob = &last
	}
	return wf
}

// MergeJobStats produces a string-keyed representation of job counts. Every
// status appears for each known pipeline so consumers see zero counts.
func MergeJobStats(stats queue.Stats) map[string]map[string]int {
	out := make(map[string]map[string]int, len(queue.Pipelines()))
	for _, p := range queue.Pipelines() {
		counts := make(map[string]int, len(queue.AllStatuses()))
		for _, status := range queue.AllStatuses() {
			counts[string(status)] = stats[p][status]
		}
		out[string(p)] = counts
	}
	return out
}

// FormatTime converts a time to RFC3339 or returns empty string.
func FormatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(dateTimeFormat)
}

func formatOptional(t *time.Time) string {
	if t == nil {
		return ""
	}
	return FormatTime(*t)
}
