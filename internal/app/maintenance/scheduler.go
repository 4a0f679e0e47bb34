package maintenance

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/charlesng35/engageflow/internal/cache"
	"github.com/charlesng35/engageflow/internal/flow"
	"github.com/charlesng35/engageflow/internal/models"
	"github.com/charlesng35/engageflow/internal/monitoring"
	"github.com/charlesng35/engageflow/internal/services"
	"github.com/charlesng35/engageflow/pkg/logger"
	"github.com/charlesng35/engageflow/pkg/metrics"
)

// Job names as reported to monitoring.
const (
	JobInactivitySweep = "inactivity_sweep"
	JobResumeDue       = "resume_due"
	JobEmailOutbox     = "email_outbox"
	JobRetention       = "retention"
)

const (
	defaultSweepSpec     = "@every 30s"
	defaultResumeSpec    = "@every 15s"
	defaultEmailSpec     = "@every 1m"
	defaultRetentionSpec = "@daily"
	defaultRetentionDays = 30
	defaultEmailBatch    = 50
)

// Engine is the part of the flow engine driven by the scheduler.
type Engine interface {
	SweepInactive(ctx context.Context, now time.Time) (flow.SweepResult, error)
	ResumeDue(ctx context.Context, now time.Time) (int, error)
}

// Outbox delivers queued emails.
type Outbox interface {
	DispatchPending(ctx context.Context, now time.Time, limit int) (services.DispatchResult, error)
}

// Scheduler runs the engine's background work on cron schedules: the
// inactivity sweep, delayed resumes, the email outbox and log retention.
type Scheduler struct {
	db      *gorm.DB
	engine  Engine
	outbox  Outbox
	purger  cache.Purger
	tracker *monitoring.JobTracker
	cron    *cron.Cron
	now     func() time.Time
	log     *zap.Logger

	retentionDays int
	emailBatch    int

	sweepSchedule     string
	resumeSchedule    string
	emailSchedule     string
	retentionSchedule string
}

// Option customises the Scheduler.
type Option func(*Scheduler)

// WithCron injects a preconfigured cron instance, primarily for testing.
func WithCron(c *cron.Cron) Option {
	return func(s *Scheduler) {
		if c != nil {
			s.cron = c
		}
	}
}

// WithNow overrides the clock handed to every job.
func WithNow(now func() time.Time) Option {
	return func(s *Scheduler) {
		if now != nil {
			s.now = now
		}
	}
}

// WithOutbox enables the email outbox job.
func WithOutbox(outbox Outbox, batch int) Option {
	return func(s *Scheduler) {
		s.outbox = outbox
		if batch > 0 {
			s.emailBatch = batch
		}
	}
}

// WithCachePurger purges expired cache entries during retention.
func WithCachePurger(p cache.Purger) Option {
	return func(s *Scheduler) {
		s.purger = p
	}
}

// WithTracker records job outcomes for the scheduler health probe.
func WithTracker(t *monitoring.JobTracker) Option {
	return func(s *Scheduler) {
		if t != nil {
			s.tracker = t
		}
	}
}

// WithRetentionDays sets how long logs of finished executions are kept.
func WithRetentionDays(days int) Option {
	return func(s *Scheduler) {
		if days > 0 {
			s.retentionDays = days
		}
	}
}

// Schedules overrides the cron specifications. Empty values keep the default.
type Schedules struct {
	Sweep     string
	Resume    string
	Email     string
	Retention string
}

// WithSchedules overrides the cron specifications.
func WithSchedules(specs Schedules) Option {
	return func(s *Scheduler) {
		if specs.Sweep != "" {
			s.sweepSchedule = specs.Sweep
		}
		if specs.Resume != "" {
			s.resumeSchedule = specs.Resume
		}
		if specs.Email != "" {
			s.emailSchedule = specs.Email
		}
		if specs.Retention != "" {
			s.retentionSchedule = specs.Retention
		}
	}
}

// NewScheduler constructs a Scheduler. The engine jobs are skipped when engine
// is nil and retention is skipped when db is nil.
func NewScheduler(db *gorm.DB, engine Engine, opts ...Option) *Scheduler {
	s := &Scheduler{
		db:                db,
		engine:            engine,
		tracker:           monitoring.NewJobTracker(),
		now:               time.Now,
		log:               logger.WithModule("maintenance"),
		retentionDays:     defaultRetentionDays,
		emailBatch:        defaultEmailBatch,
		sweepSchedule:     defaultSweepSpec,
		resumeSchedule:    defaultResumeSpec,
		emailSchedule:     defaultEmailSpec,
		retentionSchedule: defaultRetentionSpec,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.cron == nil {
		s.cron = cron.New(cron.WithLogger(cron.DiscardLogger), cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)))
	}
	return s
}

// Tracker exposes the job outcomes for health checks.
func (s *Scheduler) Tracker() *monitoring.JobTracker {
	return s.tracker
}

type job struct {
	name string
	spec string
	run  func(ctx context.Context, now time.Time) error
}

func (s *Scheduler) jobs() []job {
	var jobs []job
	if s.engine != nil {
		jobs = append(jobs,
			job{JobInactivitySweep, s.sweepSchedule, s.sweep},
			job{JobResumeDue, s.resumeSchedule, s.resume},
		)
	}
	if s.outbox != nil {
		jobs = append(jobs, job{JobEmailOutbox, s.emailSchedule, s.dispatchEmails})
	}
	if s.db != nil || s.purger != nil {
		jobs = append(jobs, job{JobRetention, s.retentionSchedule, s.retention})
	}
	return jobs
}

// Start registers the jobs with cron and launches it.
func (s *Scheduler) Start() error {
	jobs := s.jobs()
	if len(jobs) == 0 {
		return nil
	}
	for _, j := range jobs {
		j := j
		s.tracker.Register(j.name)
		if _, err := s.cron.AddFunc(j.spec, func() {
			if err := s.execute(context.Background(), j); err != nil {
				s.log.Warn("maintenance job failed", zap.String("job", j.name), zap.Error(err))
			}
		}); err != nil {
			return fmt.Errorf("maintenance: schedule %s %q: %w", j.name, j.spec, err)
		}
	}
	s.cron.Start()
	return nil
}

// Stop halts the scheduler. The returned context is done once running jobs finish.
func (s *Scheduler) Stop() context.Context {
	if s.cron == nil {
		return context.Background()
	}
	return s.cron.Stop()
}

// RunOnce executes every enabled job once, sequentially.
func (s *Scheduler) RunOnce(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	var errs error
	for _, j := range s.jobs() {
		errs = multierr.Append(errs, s.execute(ctx, j))
	}
	return errs
}

func (s *Scheduler) execute(ctx context.Context, j job) error {
	start := s.now()
	err := j.run(ctx, start)
	s.tracker.Record(j.name, start, time.Since(start), err)

	result := "success"
	if err != nil {
		result = "failure"
	}
	metrics.MaintenanceRuns.WithLabelValues(j.name, result).Inc()
	return err
}

func (s *Scheduler) sweep(ctx context.Context, now time.Time) error {
	result, err := s.engine.SweepInactive(ctx, now)
	if result.Warned > 0 || result.Ended > 0 {
		s.log.Info("inactivity sweep", zap.Int("warned", result.Warned), zap.Int("ended", result.Ended))
	}
	return err
}

func (s *Scheduler) resume(ctx context.Context, now time.Time) error {
	resumed, err := s.engine.ResumeDue(ctx, now)
	if resumed > 0 {
		s.log.Info("resumed delayed executions", zap.Int("count", resumed))
	}
	return err
}

func (s *Scheduler) dispatchEmails(ctx context.Context, now time.Time) error {
	result, err := s.outbox.DispatchPending(ctx, now, s.emailBatch)
	if result.Sent > 0 || result.Retried > 0 || result.Failed > 0 {
		s.log.Info("email outbox dispatched",
			zap.Int("sent", result.Sent),
			zap.Int("retried", result.Retried),
			zap.Int("failed", result.Failed))
	}
	return err
}

func (s *Scheduler) retention(ctx context.Context, now time.Time) error {
	var errs error
	if s.db != nil {
		if _, err := PruneExecutionLogs(ctx, s.db, now.AddDate(0, 0, -s.retentionDays)); err != nil {
			errs = multierr.Append(errs, err)
		}
	}
	if s.purger != nil {
		if _, err := s.purger.PurgeExpired(ctx); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("maintenance: purge cache: %w", err))
		}
	}
	return errs
}

// PruneExecutionLogs deletes node run logs of executions that finished before cutoff.
func PruneExecutionLogs(ctx context.Context, db *gorm.DB, cutoff time.Time) (int64, error) {
	if db == nil {
		return 0, errors.New("prune execution logs: db is required")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	finished := db.Model(&models.FlowBuilderExecution{}).
		Select("id").
		Where("finished_at IS NOT NULL AND finished_at < ?", cutoff.UTC())

	result := db.WithContext(ctx).
		Where("execution_id IN (?)", finished).
		Delete(&models.ExecutionLog{})
	if result.Error != nil {
		return 0, fmt.Errorf("prune execution logs: %w", result.Error)
	}
	return result.RowsAffected, nil
}
