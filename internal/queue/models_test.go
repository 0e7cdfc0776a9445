package queue

import (
	"testing"
	"time"
)

func TestCanTransition(t *testing.T) {
	cases := []struct {
		from, to Status
		want     bool
	}{
		{StatusPending, StatusPlanning, true},
		{StatusPending, StatusGenerating, true},
		{StatusPlanning, StatusPlanned, true},
		{StatusPlanned, StatusGenerating, true},
		{StatusGenerating, StatusComplete, true},
		{StatusGenerating, StatusGenerating, true},
		{StatusGenerating, StatusPlanning, false},
		{StatusPending, StatusComplete, false},
		{StatusComplete, StatusComplete, false},
		{StatusFailed, StatusPending, false},
		{StatusCancelled, StatusGenerating, false},
	}
	for _, tc := range cases {
		if got := CanTransition(tc.from, tc.to); got != tc.want {
			t.Errorf("CanTransition(%s, %s) = %v, want %v", tc.from, tc.to, got, tc.want)
		}
	}
}

func TestPredecessorsOfComplete(t *testing.T) {
	got := predecessors(StatusComplete)
	if len(got) != 1 || got[0] != StatusGenerating {
		t.Fatalf("expected only generating to reach complete, got %v", got)
	}
}

func TestRequeueTarget(t *testing.T) {
	planned := Progress{Milestones: []string{"outline"}}
	job := &Job{Pipeline: PipelineText, Status: StatusFailed}

	if got, err := requeueTarget(job, planned, false); err != nil || got != StatusGenerating {
		t.Fatalf("expected generating, got %s (%v)", got, err)
	}
	if got, err := requeueTarget(job, Progress{}, false); err != nil || got != StatusPending {
		t.Fatalf("expected pending without plan, got %s (%v)", got, err)
	}
	if got, err := requeueTarget(job, planned, true); err != nil || got != StatusPending {
		t.Fatalf("expected pending on force, got %s (%v)", got, err)
	}

	audio := &Job{Pipeline: PipelineAudio, Status: StatusFailed}
	if got, _ := requeueTarget(audio, planned, false); got != StatusPending {
		t.Fatalf("audio job should ignore the text milestone, got %s", got)
	}

	done := &Job{Pipeline: PipelineText, Status: StatusComplete}
	if _, err := requeueTarget(done, planned, false); err != ErrInvalidTransition {
		t.Fatalf("expected ErrInvalidTransition, got %v", err)
	}
}

func TestLockFresh(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 10, 0, 0, time.UTC)
	locked := now.Add(-4 * time.Minute)
	job := &Job{LockedAt: &locked}
	if !job.LockFresh(now, 5*time.Minute) {
		t.Fatal("expected lock to be fresh")
	}
	if job.LockFresh(now.Add(2*time.Minute), 5*time.Minute) {
		t.Fatal("expected lock to be stale")
	}
	if (&Job{}).LockFresh(now, time.Minute) {
		t.Fatal("unlocked job reported fresh lock")
	}
}

func TestProgressUnitLookup(t *testing.T) {
	p := Progress{Units: []UnitState{
		{Index: 0, Steps: []Step{StepAudio}},
		{Index: 3, Steps: []Step{StepText, StepImage}},
	}}
	if !p.StepDone(3, StepImage) {
		t.Fatal("expected unit 3 image done")
	}
	if p.StepDone(1, StepText) {
		t.Fatal("unit 1 has no record")
	}
	if got := p.CompletedUnits([]Step{StepText, StepImage}); got != 1 {
		t.Fatalf("expected 1 complete unit, got %d", got)
	}
	if label := PipelineAudio.StatusLabel(StatusGenerating); label != "narrating" {
		t.Fatalf("unexpected label %q", label)
	}
}
