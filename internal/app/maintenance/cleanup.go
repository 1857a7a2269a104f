package maintenance

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/charlesng35/lockgate/pkg/logger"
)

const (
	defaultPinSweepSpec       = "@every 1m"
	defaultChallengeSpec      = "@hourly"
	defaultSessionSpec        = "@hourly"
	defaultCacheSpec          = "@every 10m"
	defaultAccessLogSpec      = "@daily"
)

// PinSweeper deactivates temporary pins whose window has closed.
type PinSweeper interface {
	DeactivateExpired(ctx context.Context) (int64, error)
}

// ChallengePurger removes expired or consumed login challenges.
type ChallengePurger interface {
	PurgeChallenges(ctx context.Context) (int64, error)
}

// SessionCleaner removes expired and revoked sessions.
type SessionCleaner interface {
	CleanupExpired(ctx context.Context) (int64, error)
}

// CachePurger removes elapsed rate limit counters.
type CachePurger interface {
	PurgeExpired(ctx context.Context) (int64, error)
}

// AccessLogPruner deletes access logs older than a retention window.
type AccessLogPruner interface {
	CleanupOlderThan(ctx context.Context, retentionDays int) (int64, error)
}

type job struct {
	name string
	spec string
	run  func(ctx context.Context) (int64, error)
}

// JobStatus is the recorded outcome of a job's runs.
type JobStatus struct {
	Name          string    `json:"name"`
	Schedule      string    `json:"schedule"`
	Runs          int       `json:"runs"`
	LastRunAt     time.Time `json:"last_run_at"`
	LastSuccessAt time.Time `json:"last_success_at"`
	LastError     string    `json:"last_error,omitempty"`
}

// Cleaner runs periodic housekeeping on a cron schedule. Each job is optional.
type Cleaner struct {
	cron *cron.Cron
	log  *zap.Logger
	jobs []job
	now  func() time.Time

	mu     sync.Mutex
	status map[string]*JobStatus
}

// Option customises the Cleaner.
type Option func(*Cleaner)

// WithCron injects a preconfigured cron instance, primarily for testing.
func WithCron(c *cron.Cron) Option {
	return func(cleaner *Cleaner) {
		if c != nil {
			cleaner.cron = c
		}
	}
}

// WithPinSweep schedules deactivation of expired temporary pins.
func WithPinSweep(pins PinSweeper, spec string) Option {
	return func(c *Cleaner) {
		if pins != nil {
			c.add("pin_sweep", spec, defaultPinSweepSpec, pins.DeactivateExpired)
		}
	}
}

// WithChallengePurge schedules removal of stale two-factor challenges.
func WithChallengePurge(challenges ChallengePurger, spec string) Option {
	return func(c *Cleaner) {
		if challenges != nil {
			c.add("challenge_purge", spec, defaultChallengeSpec, challenges.PurgeChallenges)
		}
	}
}

// WithSessionCleanup schedules removal of expired sessions.
func WithSessionCleanup(sessions SessionCleaner, spec string) Option {
	return func(c *Cleaner) {
		if sessions != nil {
			c.add("session_cleanup", spec, defaultSessionSpec, sessions.CleanupExpired)
		}
	}
}

// WithCachePurge schedules removal of elapsed cache entries.
func WithCachePurge(store CachePurger, spec string) Option {
	return func(c *Cleaner) {
		if store != nil {
			c.add("cache_purge", spec, defaultCacheSpec, store.PurgeExpired)
		}
	}
}

// WithAccessLogRetention schedules pruning of access logs older than days.
// Retention is off unless days is positive.
func WithAccessLogRetention(logs AccessLogPruner, days int, spec string) Option {
	return func(c *Cleaner) {
		if logs == nil || days <= 0 {
			return
		}
		c.add("access_log_retention", spec, defaultAccessLogSpec, func(ctx context.Context) (int64, error) {
			return logs.CleanupOlderThan(ctx, days)
		})
	}
}

// NewCleaner constructs a Cleaner with the supplied jobs.
func NewCleaner(opts ...Option) *Cleaner {
	cleaner := &Cleaner{
		log:    logger.WithModule("maintenance"),
		now:    time.Now,
		status: make(map[string]*JobStatus),
	}

	for _, opt := range opts {
		opt(cleaner)
	}

	if cleaner.cron == nil {
		cleaner.cron = cron.New(cron.WithLogger(cron.DiscardLogger))
	}
	return cleaner
}

func (c *Cleaner) add(name, spec, fallback string, run func(context.Context) (int64, error)) {
	if spec == "" {
		spec = fallback
	}
	c.jobs = append(c.jobs, job{name: name, spec: spec, run: run})
	c.status[name] = &JobStatus{Name: name, Schedule: spec}
}

// Status returns a snapshot of every job's last outcome in registration order.
func (c *Cleaner) Status() []JobStatus {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]JobStatus, 0, len(c.jobs))
	for _, j := range c.jobs {
		out = append(out, *c.status[j.name])
	}
	return out
}

// Jobs returns the names of the registered jobs in registration order.
func (c *Cleaner) Jobs() []string {
	names := make([]string, len(c.jobs))
	for i, j := range c.jobs {
		names[i] = j.name
	}
	return names
}

// Start registers the jobs with the cron scheduler and launches it.
// No scheduler is started when there is nothing to run.
func (c *Cleaner) Start() error {
	if len(c.jobs) == 0 {
		return nil
	}

	for _, j := range c.jobs {
		j := j
		if _, err := c.cron.AddFunc(j.spec, func() {
			c.execute(context.Background(), j)
		}); err != nil {
			return fmt.Errorf("maintenance: schedule %s: %w", j.name, err)
		}
	}

	c.cron.Start()
	return nil
}

// Stop halts the underlying scheduler, waiting for any running jobs to complete.
func (c *Cleaner) Stop() context.Context {
	if c.cron == nil {
		return context.Background()
	}
	return c.cron.Stop()
}

// RunOnce executes every job sequentially and combines their errors.
func (c *Cleaner) RunOnce(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	var errs error
	for _, j := range c.jobs {
		if err := c.execute(ctx, j); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("%s: %w", j.name, err))
		}
	}
	return errs
}

func (c *Cleaner) execute(ctx context.Context, j job) error {
	removed, err := j.run(ctx)
	c.record(j.name, err)
	if err != nil {
		c.log.Warn("maintenance job failed", zap.String("job", j.name), zap.Error(err))
		return err
	}
	if removed > 0 {
		c.log.Info("maintenance job completed", zap.String("job", j.name), zap.Int64("affected", removed))
	}
	return nil
}

func (c *Cleaner) record(name string, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	st := c.status[name]
	now := c.now()
	st.Runs++
	st.LastRunAt = now
	if err != nil {
		st.LastError = err.Error()
		return
	}
	st.LastError = ""
	st.LastSuccessAt = now
}
