package workflow

import (
	"context"

	"bookloom/internal/logging"
	"bookloom/internal/queue"
)

// StatusSummary represents lightweight workflow diagnostics.
type StatusSummary struct {
	Running    bool
	Owner      string
	LastError  string
	LastJob    *queue.Job
	ActiveJobs map[queue.Pipeline]string
	QueueStats queue.Stats
	Lanes      []LaneHealth
}

// Status returns the latest workflow information.
func (m *Manager) Status(ctx context.Context) StatusSummary {
	m.mu.RLock()
	summary := StatusSummary{
		Running:    m.running,
		Owner:      m.owner,
		ActiveJobs: make(map[queue.Pipeline]string, len(m.active)),
	}
	if m.lastErr != nil {
		summary.LastError = m.lastErr.Error()
	}
	if m.lastJob != nil {
		job := *m.lastJob
		summary.LastJob = &job
	}
	for p, id := range m.active {
		summary.ActiveJobs[p] = id
	}
	order := append([]queue.Pipeline(nil), m.laneOrder...)
	m.mu.RUnlock()

	stats, err := m.repo.Stats(ctx)
	if err != nil {
		m.logger.Warn("failed to read job stats", logging.Error(err))
	}
	summary.QueueStats = stats

	storeDetail := ""
	if health, err := m.repo.CheckHealth(ctx); err != nil {
		storeDetail = err.Error()
	} else if !health.Ready() {
		storeDetail = health.Detail()
	}
	for _, p := range order {
		switch {
		case storeDetail != "":
			summary.Lanes = append(summary.Lanes, UnhealthyLane(string(p), storeDetail))
		case !summary.Running:
			summary.Lanes = append(summary.Lanes, UnhealthyLane(string(p), "workflow not running"))
		default:
			summary.Lanes = append(summary.Lanes, HealthyLane(string(p)))
		}
	}
	return summary
}

func (m *Manager) setLastError(err error) {
	m.mu.Lock()
	m.lastErr = err
	m.mu.Unlock()
}

func (m *Manager) setLastJob(job *queue.Job) {
	m.mu.Lock()
	if job != nil {
		copy := *job
		m.lastJob = &copy
	} else {
		m.lastJob = nil
	}
	m.mu.Unlock()
}

func (m *Manager) setActive(p queue.Pipeline, jobID string) {
	m.mu.Lock()
	if jobID == "" {
		delete(m.active, p)
	} else {
		m.active[p] = jobID
	}
	m.mu.Unlock()
}
