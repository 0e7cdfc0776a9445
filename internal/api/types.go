package api

// dateTimeFormat is used for RFC3339 timestamps in API payloads.
const dateTimeFormat = "2006-01-02T15:04:05.000Z07:00"

// JobItem describes a job in a transport-friendly format.
type JobItem struct {
	ID              string      `json:"id"`
	BookID          string      `json:"bookId"`
	Pipeline        string      `json:"pipeline"`
	Status          string      `json:"status"`
	StatusLabel     string      `json:"statusLabel"`
	Error           string      `json:"error,omitempty"`
	Cost            int64       `json:"cost"`
	Attempts        int         `json:"attempts"`
	LockedBy        string      `json:"lockedBy,omitempty"`
	LockedAt        string      `json:"lockedAt,omitempty"`
	CancelRequested bool        `json:"cancelRequested"`
	PauseRequested  bool        `json:"pauseRequested"`
	ForceRegenerate bool        `json:"forceRegenerate"`
	Progress        JobProgress `json:"progress"`
	QueuedAt        string      `json:"queuedAt,omitempty"`
	StartedAt       string      `json:"startedAt,omitempty"`
	CompletedAt     string      `json:"completedAt,omitempty"`
	UpdatedAt       string      `json:"updatedAt,omitempty"`
}

// JobProgress lists the progress flags recorded for a job.
type JobProgress struct {
	Milestones []string       `json:"milestones"`
	Units      []UnitProgress `json:"units"`
}

// UnitProgress lists the completed steps of one unit.
type UnitProgress struct {
	Index int      `json:"index"`
	Steps []string `json:"steps"`
}

// BookItem describes a book and its mirrored pipeline statuses.
type BookItem struct {
	ID           string `json:"id"`
	Title        string `json:"title"`
	Premise      string `json:"premise,omitempty"`
	Audience     string `json:"audience,omitempty"`
	ChapterCount int    `json:"chapterCount"`
	Status       string `json:"status"`
	AudioStatus  string `json:"audioStatus,omitempty"`
	CreatedAt    string `json:"createdAt,omitempty"`
	UpdatedAt    string `json:"updatedAt,omitempty"`
}

// WorkflowStatus summarizes workflow execution state.
type WorkflowStatus struct {
	Running    bool                      `json:"running"`
	Owner      string                    `json:"owner"`
	JobStats   map[string]map[string]int `json:"jobStats"`
	ActiveJobs map[string]string         `json:"activeJobs"`
	LastError  string                    `json:"lastError,omitempty"`
	LastJob    *JobItem                  `json:"lastJob,omitempty"`
	LaneHealth []LaneHealth              `json:"laneHealth"`
}

// LaneHealth mirrors readiness reporting for pipeline lanes.
type LaneHealth struct {
	Name   string `json:"name"`
	Ready  bool   `json:"ready"`
	Detail string `json:"detail,omitempty"`
}

// HealthResponse is the liveness payload.
type HealthResponse struct {
	Status string `json:"status"`
	Detail string `json:"detail,omitempty"`
}

// JobListResponse wraps a collection of jobs for API responses.
type JobListResponse struct {
	Items []JobItem `json:"items"`
}

// JobResponse wraps a single job.
type JobResponse struct {
	Item JobItem `json:"item"`
}

// ErrorResponse carries a request failure.
type ErrorResponse struct {
	Error string `json:"error"`
}

// WorkerStatus aggregates daemon runtime information for API consumers.
type WorkerStatus struct {
	Running      bool           `json:"running"`
	PID          int            `json:"pid"`
	StoreDriver  string         `json:"storeDriver"`
	LockFilePath string         `json:"lockFilePath"`
	Workflow     WorkflowStatus `json:"workflow"`
}
