package checks

import (
	"context"
	"strings"
	"time"

	"github.com/charlesng35/engageflow/internal/monitoring"
)

const defaultSchedulerMaxAge = 6 * time.Hour

// JobSource exposes the recorded background job runs.
type JobSource interface {
	Snapshot() []monitoring.JobStatus
}

// Scheduler reports down when a job keeps failing and degraded when a job
// has not run within maxAge.
func Scheduler(source JobSource, maxAge time.Duration) monitoring.Check {
	if maxAge <= 0 {
		maxAge = defaultSchedulerMaxAge
	}

	return monitoring.NewCheck("scheduler", func(ctx context.Context) monitoring.ProbeResult {
		start := time.Now()
		if source == nil {
			return monitoring.ProbeResult{
				Status:   monitoring.StatusDegraded,
				Details:  "scheduler not running",
				Duration: time.Since(start),
			}
		}

		jobs := source.Snapshot()
		if len(jobs) == 0 {
			return monitoring.ProbeResult{
				Status:   monitoring.StatusUp,
				Details:  "no jobs registered",
				Duration: time.Since(start),
			}
		}

		now := time.Now()
		status := monitoring.StatusUp
		var notes []string
		for _, job := range jobs {
			switch {
			case job.TotalRuns == 0:
				notes = append(notes, job.Job+": pending first run")
			case job.ConsecutiveFailures > 0:
				status = monitoring.Worse(status, monitoring.StatusDown)
				notes = append(notes, job.Job+": "+job.LastError)
			case now.Sub(job.LastRunAt) > maxAge:
				status = monitoring.Worse(status, monitoring.StatusDegraded)
				notes = append(notes, job.Job+": stale run "+job.LastRunAt.UTC().Format(time.RFC3339))
			}
		}

		return monitoring.ProbeResult{
			Status:   status,
			Details:  strings.Join(notes, "; "),
			Duration: time.Since(start),
		}
	})
}
