package monitoring

import (
	"sort"
	"strings"
	"sync"
	"time"
)

// JobStatus summarises the recent runs of one scheduled job.
type JobStatus struct {
	Job                 string        `json:"job"`
	TotalRuns           uint64        `json:"total_runs"`
	Failures            uint64        `json:"failures"`
	ConsecutiveFailures int           `json:"consecutive_failures"`
	LastRunAt           time.Time     `json:"last_run_at,omitempty"`
	LastDuration        time.Duration `json:"last_duration"`
	LastError           string        `json:"last_error,omitempty"`
}

// JobTracker records the outcome of background jobs for health probes.
type JobTracker struct {
	mu   sync.RWMutex
	jobs map[string]*JobStatus
}

// NewJobTracker constructs an empty tracker.
func NewJobTracker() *JobTracker {
	return &JobTracker{jobs: make(map[string]*JobStatus)}
}

// Register makes a job visible before its first run.
func (t *JobTracker) Register(job string) {
	if t == nil || strings.TrimSpace(job) == "" {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.entry(job)
}

// Record stores the outcome of a run that started at startedAt.
func (t *JobTracker) Record(job string, startedAt time.Time, duration time.Duration, err error) {
	if t == nil || strings.TrimSpace(job) == "" {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	status := t.entry(job)
	status.TotalRuns++
	status.LastRunAt = startedAt
	status.LastDuration = duration
	if err != nil {
		status.Failures++
		status.ConsecutiveFailures++
		status.LastError = err.Error()
		return
	}
	status.ConsecutiveFailures = 0
	status.LastError = ""
}

// Snapshot returns a copy of every job status ordered by name.
func (t *JobTracker) Snapshot() []JobStatus {
	if t == nil {
		return nil
	}
	t.mu.RLock()
	defer t.mu.RUnlock()

	out := make([]JobStatus, 0, len(t.jobs))
	for _, status := range t.jobs {
		out = append(out, *status)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Job < out[j].Job })
	return out
}

func (t *JobTracker) entry(job string) *JobStatus {
	status, ok := t.jobs[job]
	if !ok {
		status = &JobStatus{Job: job}
		t.jobs[job] = status
	}
	return status
}
