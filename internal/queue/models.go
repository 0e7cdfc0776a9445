package queue

import (
	"slices"
	"time"
)

// Status represents the lifecycle of a job.
type Status string

const (
	StatusPending    Status = "pending"
	StatusPlanning   Status = "planning"
	StatusPlanned    Status = "planned"
	StatusGenerating Status = "generating"
	StatusComplete   Status = "complete"
	StatusFailed     Status = "failed"
	StatusPaused     Status = "paused"
	StatusCancelled  Status = "cancelled"
)

var allStatuses = []Status{
	StatusPending,
	StatusPlanning,
	StatusPlanned,
	StatusGenerating,
	StatusComplete,
	StatusFailed,
	StatusPaused,
	StatusCancelled,
}

// AllStatuses returns every status in lifecycle order.
func AllStatuses() []Status {
	return slices.Clone(allStatuses)
}

// ClaimableStatuses are the statuses a poller may pick up. Jobs in the middle
// of a stage are included so abandoned work is resumed once its lease expires.
func ClaimableStatuses() []Status {
	return []Status{StatusPending, StatusPlanning, StatusPlanned, StatusGenerating}
}

// IsTerminal reports whether no worker will pick the job up without an
// administrative requeue.
func (s Status) IsTerminal() bool {
	switch s {
	case StatusComplete, StatusFailed, StatusPaused, StatusCancelled:
		return true
	}
	return false
}

// IsValid reports whether s is a known status.
func (s Status) IsValid() bool {
	return slices.Contains(allStatuses, s)
}

// transitions lists forward moves the executor may make. Requeue and
// cancellation are administrative and handled separately.
var transitions = map[Status][]Status{
	StatusPending:    {StatusPlanning, StatusPlanned, StatusGenerating, StatusFailed, StatusPaused, StatusCancelled},
	StatusPlanning:   {StatusPlanned, StatusFailed, StatusPaused, StatusCancelled},
	StatusPlanned:    {StatusGenerating, StatusFailed, StatusPaused, StatusCancelled},
	StatusGenerating: {StatusComplete, StatusFailed, StatusPaused, StatusCancelled},
}

// CanTransition reports whether the executor may move a job from one status
// to another. Staying in the same non-terminal status is allowed.
func CanTransition(from, to Status) bool {
	if from == to {
		return !from.IsTerminal()
	}
	return slices.Contains(transitions[from], to)
}

// predecessors returns the statuses from which to is reachable.
func predecessors(to Status) []Status {
	var out []Status
	for _, from := range allStatuses {
		if CanTransition(from, to) {
			out = append(out, from)
		}
	}
	return out
}

// Pipeline identifies which job family a job belongs to.
type Pipeline string

const (
	PipelineText  Pipeline = "text"
	PipelineAudio Pipeline = "audio"
)

// Pipelines returns every pipeline in poller order.
func Pipelines() []Pipeline {
	return []Pipeline{PipelineText, PipelineAudio}
}

// IsValid reports whether p is a known pipeline.
func (p Pipeline) IsValid() bool {
	return p == PipelineText || p == PipelineAudio
}

// PlanMilestone is the milestone recorded when the pipeline's macro stage is done.
func (p Pipeline) PlanMilestone() string {
	if p == PipelineAudio {
		return "narration_plan"
	}
	return "outline"
}

// SupportsPause reports whether the pipeline has a paused side branch.
func (p Pipeline) SupportsPause() bool {
	return p == PipelineText
}

// StatusLabel returns the human-facing label for a status in this pipeline.
func (p Pipeline) StatusLabel(s Status) string {
	switch {
	case p == PipelineText && s == StatusPlanning:
		return "generating outline"
	case p == PipelineText && s == StatusGenerating:
		return "generating chapters"
	case p == PipelineAudio && s == StatusPlanning:
		return "planning narration"
	case p == PipelineAudio && s == StatusGenerating:
		return "narrating"
	}
	return string(s)
}

// Step names an ordered sub-step of a unit.
type Step string

const (
	StepText  Step = "text"
	StepImage Step = "image"
	StepAudio Step = "audio"
)

// UnitState is the set of completed sub-steps for one unit.
type UnitState struct {
	Index int
	Steps []Step
}

// Has reports whether step has been recorded for this unit.
func (u UnitState) Has(step Step) bool {
	return slices.Contains(u.Steps, step)
}

// Progress is the monotonic record of completed work. Units are sorted by
// index.
type Progress struct {
	Milestones []string
	Units      []UnitState
}

// HasMilestone reports whether the named macro stage is recorded.
func (p Progress) HasMilestone(name string) bool {
	return slices.Contains(p.Milestones, name)
}

// Unit returns the recorded state for a unit index.
func (p Progress) Unit(index int) (UnitState, bool) {
	i, found := slices.BinarySearchFunc(p.Units, index, func(u UnitState, target int) int {
		return u.Index - target
	})
	if !found {
		return UnitState{Index: index}, false
	}
	return p.Units[i], true
}

// StepDone reports whether step is recorded for unit index.
func (p Progress) StepDone(index int, step Step) bool {
	unit, ok := p.Unit(index)
	return ok && unit.Has(step)
}

// CompletedUnits counts units that have every one of steps recorded.
func (p Progress) CompletedUnits(steps []Step) int {
	count := 0
	for _, unit := range p.Units {
		done := true
		for _, step := range steps {
			if !unit.Has(step) {
				done = false
				break
			}
		}
		if done {
			count++
		}
	}
	return count
}

// Job is a persisted unit of background work for one subject and pipeline.
type Job struct {
	ID              string
	SubjectID       string
	Pipeline        Pipeline
	Status          Status
	Error           string
	Cost            int64
	Attempts        int
	LockedAt        *time.Time
	LockedBy        string
	CancelRequested bool
	PauseRequested  bool
	ForceRegenerate bool
	QueuedAt        time.Time
	StartedAt       *time.Time
	CompletedAt     *time.Time
	UpdatedAt       time.Time
	Progress        Progress
}

// LockFresh reports whether the job is locked and the lock is younger than lease.
func (j *Job) LockFresh(now time.Time, lease time.Duration) bool {
	if j == nil || j.LockedAt == nil {
		return false
	}
	return !j.LockedAt.Before(now.Add(-lease))
}

// Controls carries administrative markers polled by a running executor.
type Controls struct {
	CancelRequested bool
	PauseRequested  bool
}

// Filter narrows List results. Zero values match everything.
type Filter struct {
	Pipeline  Pipeline
	Statuses  []Status
	SubjectID string
	Limit     int
}

// Stats counts jobs per pipeline and status.
type Stats map[Pipeline]map[Status]int

// Total sums all counts.
func (s Stats) Total() int {
	total := 0
	for _, byStatus := range s {
		for _, n := range byStatus {
			total += n
		}
	}
	return total
}

func (s Stats) add(pipeline Pipeline, status Status, n int) {
	if s[pipeline] == nil {
		s[pipeline] = make(map[Status]int)
	}
	s[pipeline][status] += n
}
