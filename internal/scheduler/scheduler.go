package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

// Job represents a scheduled task
type Job func(ctx context.Context) error

// Scheduler manages periodic tasks
type Scheduler struct {
	cron     *cron.Cron
	jobs     map[string]cron.EntryID
	timezone *time.Location
	timeout  time.Duration
	logger   zerolog.Logger
}

// New creates a scheduler in timezone. Each run gets a context cancelled
// after timeout; a run still going when the next tick fires makes that tick
// a no-op.
func New(timezone string, timeout time.Duration, logger zerolog.Logger) (*Scheduler, error) {
	if timezone == "" {
		timezone = "Local"
	}
	loc, err := time.LoadLocation(timezone)
	if err != nil {
		return nil, fmt.Errorf("invalid timezone %s: %w", timezone, err)
	}

	logger = logger.With().Str("component", "scheduler").Logger()
	c := cron.New(
		cron.WithLocation(loc),
		cron.WithChain(cron.Recover(cronLogger{logger}), cron.SkipIfStillRunning(cronLogger{logger})),
	)

	return &Scheduler{
		cron:     c,
		jobs:     make(map[string]cron.EntryID),
		timezone: loc,
		timeout:  timeout,
		logger:   logger,
	}, nil
}

// AddJob adds a job with a cron schedule
// schedule format: "0 */6 * * *" (every six hours)
func (s *Scheduler) AddJob(name, schedule string, job Job) error {
	entryID, err := s.cron.AddFunc(schedule, func() {
		s.run(context.Background(), name, job)
	})
	if err != nil {
		return fmt.Errorf("failed to schedule job %s: %w", name, err)
	}

	s.jobs[name] = entryID
	s.logger.Info().Str("job", name).Str("schedule", schedule).Msg("job added")

	return nil
}

func (s *Scheduler) run(ctx context.Context, name string, job Job) error {
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	log := s.logger.With().Str("job", name).Logger()
	log.Info().Msg("job started")
	start := time.Now()

	err := job(ctx)
	if err != nil {
		log.Error().Err(err).Dur("elapsed", time.Since(start)).Msg("job failed")
	} else {
		log.Info().Dur("elapsed", time.Since(start)).Msg("job completed")
	}
	return err
}

// RemoveJob removes a scheduled job
func (s *Scheduler) RemoveJob(name string) {
	if entryID, ok := s.jobs[name]; ok {
		s.cron.Remove(entryID)
		delete(s.jobs, name)
		s.logger.Info().Str("job", name).Msg("job removed")
	}
}

// Start begins running scheduled jobs
func (s *Scheduler) Start() {
	s.logger.Info().Int("jobs", len(s.jobs)).Msg("starting scheduler")
	s.cron.Start()
}

// Stop halts the scheduler. The returned context is done once running jobs
// have finished.
func (s *Scheduler) Stop() context.Context {
	s.logger.Info().Msg("stopping scheduler")
	return s.cron.Stop()
}

// RunNow executes job immediately with the scheduler's timeout.
func (s *Scheduler) RunNow(ctx context.Context, name string, job Job) error {
	return s.run(ctx, name, job)
}

// ListJobs returns info about scheduled jobs
func (s *Scheduler) ListJobs() []JobInfo {
	entries := s.cron.Entries()
	infos := make([]JobInfo, 0, len(entries))

	for name, entryID := range s.jobs {
		for _, entry := range entries {
			if entry.ID == entryID {
				infos = append(infos, JobInfo{
					Name:    name,
					NextRun: entry.Next,
					LastRun: entry.Prev,
				})
				break
			}
		}
	}

	return infos
}

// JobInfo contains information about a scheduled job
type JobInfo struct {
	Name    string
	NextRun time.Time
	LastRun time.Time
}

// cronLogger adapts zerolog to cron.Logger.
type cronLogger struct {
	logger zerolog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.logger.Debug().Fields(keysAndValues).Msg(msg)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.logger.Error().Err(err).Fields(keysAndValues).Msg(msg)
}
