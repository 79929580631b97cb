// Package scheduler runs background maintenance jobs on cron schedules.
package scheduler

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"github.com/aristath/stocktrader/internal/metrics"
)

// Job represents a scheduled job
type Job interface {
	Run() error
	Name() string
}

// Scheduler manages background jobs
type Scheduler struct {
	cron    *cron.Cron
	metrics *metrics.Registry
	log     zerolog.Logger

	mu      sync.Mutex
	running map[string]bool
}

// New creates a new scheduler. Schedules use the standard five-field cron
// syntax plus descriptors such as "@hourly" and "@every 30s".
func New(m *metrics.Registry, log zerolog.Logger) *Scheduler {
	return &Scheduler{
		cron:    cron.New(),
		metrics: m,
		log:     log.With().Str("component", "scheduler").Logger(),
		running: make(map[string]bool),
	}
}

// Start starts the scheduler
func (s *Scheduler) Start() {
	s.cron.Start()
	s.log.Info().Int("jobs", len(s.cron.Entries())).Msg("Scheduler started")
}

// Stop stops the scheduler and waits for running jobs to finish
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	s.log.Info().Msg("Scheduler stopped")
}

// AddJob registers a new job with cron schedule
// Schedule examples:
//   - "0 3 * * *"          - 3 AM daily
//   - "*/15 * * * *"       - Every 15 minutes
//   - "@hourly"            - Every hour
//   - "@every 30s"         - Every 30 seconds
func (s *Scheduler) AddJob(schedule string, job Job) error {
	if _, err := s.cron.AddFunc(schedule, func() { _ = s.execute(job) }); err != nil {
		return err
	}

	s.log.Info().
		Str("schedule", schedule).
		Str("job", job.Name()).
		Msg("Job registered")

	return nil
}

// RunNow executes a job immediately (outside schedule)
func (s *Scheduler) RunNow(job Job) error {
	s.log.Info().Str("job", job.Name()).Msg("Running job immediately")
	return s.execute(job)
}

// execute runs job unless a previous run of the same job is still in progress.
func (s *Scheduler) execute(job Job) error {
	name := job.Name()

	s.mu.Lock()
	if s.running[name] {
		s.mu.Unlock()
		s.log.Warn().Str("job", name).Msg("Previous run still in progress, skipping")
		return nil
	}
	s.running[name] = true
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		delete(s.running, name)
		s.mu.Unlock()
	}()

	log := s.log.With().Str("job", name).Str("run_id", uuid.NewString()).Logger()
	log.Debug().Msg("Running job")

	start := time.Now()
	err := job.Run()
	s.metrics.ObserveMaintenance(name, err)

	if err != nil {
		log.Error().Err(err).Dur("duration", time.Since(start)).Msg("Job failed")
		return err
	}
	log.Debug().Dur("duration", time.Since(start)).Msg("Job completed")
	return nil
}
