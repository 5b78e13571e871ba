package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"elverra-membership/internal/infra/logging"
	"elverra-membership/internal/infra/metrics"
)

// Job is a background task run on a cron schedule.
type Job interface {
	Name() string
	RunOnce(ctx context.Context) error
}

// Scheduler runs jobs on cron specs. Overlapping runs of the same job are
// skipped and panics are recovered.
type Scheduler struct {
	cron    *cron.Cron
	timeout time.Duration
	log     *zerolog.Logger

	ctx    context.Context
	cancel context.CancelFunc
}

// NewScheduler builds a stopped scheduler; timeout bounds each run (default 5m).
func NewScheduler(timeout time.Duration, logger *zerolog.Logger) *Scheduler {
	if timeout <= 0 {
		timeout = 5 * time.Minute
	}
	l := logger.With().Str("component", "Scheduler").Logger()
	cronLog := cron.PrintfLogger(&l)
	return &Scheduler{
		cron:    cron.New(cron.WithChain(cron.Recover(cronLog), cron.SkipIfStillRunning(cronLog))),
		timeout: timeout,
		log:     &l,
	}
}

// Register adds job under spec ("@every 2m", "@hourly", "0 3 * * *").
func (s *Scheduler) Register(spec string, job Job) error {
	if _, err := s.cron.AddFunc(spec, func() { s.run(job) }); err != nil {
		return fmt.Errorf("schedule %s (%q): %w", job.Name(), spec, err)
	}
	s.log.Info().Str("job", job.Name()).Str("schedule", spec).Msg("job scheduled")
	return nil
}

func (s *Scheduler) run(job Job) {
	parent := s.ctx
	if parent == nil {
		parent = context.Background()
	}
	ctx, cancel := context.WithTimeout(logging.WithTraceID(parent, uuid.NewString()), s.timeout)
	defer cancel()

	start := time.Now()
	err := job.RunOnce(ctx)
	metrics.IncJobRun(job.Name(), err)
	if err != nil {
		s.log.Error().Err(err).Str("job", job.Name()).Msg("job failed")
		return
	}
	s.log.Debug().Str("job", job.Name()).Dur("took", time.Since(start)).Msg("job done")
}

// RunNow runs a job synchronously outside the schedule.
func (s *Scheduler) RunNow(job Job) { s.run(job) }

func (s *Scheduler) Start(parent context.Context) {
	s.ctx, s.cancel = context.WithCancel(parent)
	s.cron.Start()
}

// Stop stops scheduling and waits for running jobs, at most until ctx ends.
func (s *Scheduler) Stop(ctx context.Context) {
	done := s.cron.Stop()
	if s.cancel != nil {
		defer s.cancel()
	}
	select {
	case <-done.Done():
	case <-ctx.Done():
		s.log.Warn().Msg("jobs still running at shutdown")
	}
}
