package monitoring_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/charlesng35/engageflow/internal/database/testutil"
	"github.com/charlesng35/engageflow/internal/monitoring"
	"github.com/charlesng35/engageflow/internal/monitoring/checks"
)

func TestHealthManagerEvaluate(t *testing.T) {
	t.Parallel()

	manager := monitoring.NewHealthManager()
	manager.RegisterLiveness(monitoring.NewCheck("process", func(ctx context.Context) monitoring.ProbeResult {
		return monitoring.ProbeResult{Status: monitoring.StatusUp}
	}))
	manager.RegisterReadiness(monitoring.NewCheck("gateway", func(ctx context.Context) monitoring.ProbeResult {
		return monitoring.ProbeResult{Status: monitoring.StatusDown, Details: "connection refused"}
	}))

	live := manager.EvaluateLiveness(context.Background())
	require.True(t, live.Success)
	require.Len(t, live.Checks, 1)

	ready := manager.EvaluateReadiness(context.Background())
	require.False(t, ready.Success)
	require.Equal(t, monitoring.StatusDown, ready.Status)

	all := manager.Evaluate(context.Background())
	require.Equal(t, monitoring.StatusDown, all.Status)
	require.Len(t, all.Checks, 2)
	require.Equal(t, "process", all.Checks[0].Component)
}

func TestHealthManagerRecoversPanickingCheck(t *testing.T) {
	t.Parallel()

	manager := monitoring.NewHealthManager()
	manager.RegisterReadiness(monitoring.NewCheck("boom", func(ctx context.Context) monitoring.ProbeResult {
		panic("probe exploded")
	}))

	report := manager.EvaluateReadiness(context.Background())
	require.False(t, report.Success)
	require.Equal(t, "probe exploded", report.Checks[0].Details)
	require.Equal(t, "boom", report.Checks[0].Component)
}

func TestSchedulerCheck(t *testing.T) {
	t.Parallel()

	tracker := monitoring.NewJobTracker()
	tracker.Register("email_outbox")

	result := checks.Scheduler(tracker, 0).Run(context.Background())
	require.Equal(t, monitoring.StatusUp, result.Status)
	require.Contains(t, result.Details, "pending first run")

	tracker.Record("inactivity_sweep", time.Now(), time.Millisecond, nil)
	tracker.Record("email_outbox", time.Now(), time.Millisecond, errors.New("smtp timeout"))

	result = checks.Scheduler(tracker, 0).Run(context.Background())
	require.Equal(t, monitoring.StatusDown, result.Status)
	require.Contains(t, result.Details, "smtp timeout")

	tracker.Record("email_outbox", time.Now(), time.Millisecond, nil)
	jobs := tracker.Snapshot()
	require.Len(t, jobs, 2)
	require.Equal(t, "email_outbox", jobs[0].Job)
	require.Equal(t, uint64(2), jobs[0].TotalRuns)
	require.Equal(t, uint64(1), jobs[0].Failures)
	require.Zero(t, jobs[0].ConsecutiveFailures)
}

func TestSchedulerCheckStaleJob(t *testing.T) {
	t.Parallel()

	tracker := monitoring.NewJobTracker()
	tracker.Record("retention", time.Now().Add(-2*time.Hour), time.Second, nil)

	result := checks.Scheduler(tracker, time.Hour).Run(context.Background())
	require.Equal(t, monitoring.StatusDegraded, result.Status)
	require.Contains(t, result.Details, "stale run")
}

func TestDatabaseCheck(t *testing.T) {
	t.Parallel()

	db := testutil.MustOpenTestDB(t)
	result := checks.Database(db, time.Second).Run(context.Background())
	require.Equal(t, monitoring.StatusUp, result.Status)
	require.Contains(t, result.Details, "sqlite:")

	result = checks.Database(nil, time.Second).Run(context.Background())
	require.Equal(t, monitoring.StatusDown, result.Status)
}

func TestHealthManagerDegradesSlowProbes(t *testing.T) {
	t.Parallel()

	manager := monitoring.NewHealthManager(monitoring.WithProbeTimeout(20 * time.Millisecond))
	manager.RegisterReadiness(monitoring.NewCheck("gateway", func(ctx context.Context) monitoring.ProbeResult {
		<-ctx.Done()
		return monitoring.ProbeResult{Status: monitoring.StatusUp}
	}))
	manager.RegisterReadiness(monitoring.NewCheck("database", func(ctx context.Context) monitoring.ProbeResult {
		return monitoring.ProbeResult{Status: monitoring.StatusUp}
	}))

	report := manager.EvaluateReadiness(context.Background())
	require.False(t, report.Success)
	require.Equal(t, monitoring.StatusDegraded, report.Status)
	require.Equal(t, "gateway", report.Checks[0].Component)
	require.Contains(t, report.Checks[0].Details, "probe exceeded")
	require.Equal(t, monitoring.StatusUp, report.Checks[1].Status)
}

func TestWorse(t *testing.T) {
	require.Equal(t, monitoring.StatusDown, monitoring.Worse(monitoring.StatusDegraded, monitoring.StatusDown))
	require.Equal(t, monitoring.StatusDegraded, monitoring.Worse(monitoring.StatusUp, monitoring.StatusDegraded))
	require.Equal(t, monitoring.StatusUp, monitoring.Worse(monitoring.StatusUp, monitoring.StatusUp))
}
