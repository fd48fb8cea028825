// Package scheduler runs live tracking on a cron schedule.
package scheduler

import (
	"context"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/kurihiro0119/commit-streaks/internal/domain"
	apperrors "github.com/kurihiro0119/commit-streaks/internal/errors"
)

// DefaultRunTimeout bounds one scheduled run
const DefaultRunTimeout = 10 * time.Minute

// Job is the unit of work executed on every tick
type Job interface {
	TrackToday(ctx context.Context) (*domain.TrackResult, error)
}

// Scheduler periodically tracks the current day
type Scheduler struct {
	job     Job
	cron    *cron.Cron
	spec    string
	timeout time.Duration
	logger  *slog.Logger
}

// New creates a Scheduler for a standard cron spec or descriptor such as "@hourly"
func New(job Job, spec string, timeout time.Duration, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	if timeout <= 0 {
		timeout = DefaultRunTimeout
	}
	return &Scheduler{
		job:     job,
		cron:    cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger))),
		spec:    spec,
		timeout: timeout,
		logger:  logger.With("component", "scheduler"),
	}
}

// Start registers the job and starts the cron loop
func (s *Scheduler) Start() error {
	if _, err := s.cron.AddFunc(s.spec, s.RunOnce); err != nil {
		return apperrors.NewValidationError("invalid track schedule %q: %v", s.spec, err)
	}

	s.cron.Start()
	s.logger.Info("scheduled tracking started", "schedule", s.spec)
	return nil
}

// Stop stops the scheduler and waits for a running job to finish
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	s.logger.Info("scheduled tracking stopped")
}

// RunOnce tracks today within the run timeout
func (s *Scheduler) RunOnce() {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	result, err := s.job.TrackToday(ctx)
	if err != nil {
		s.logger.Error("scheduled tracking failed", "error", err)
		return
	}
	s.logger.Info("scheduled tracking completed",
		"date", domain.FormatDay(result.Date),
		"commits", result.TotalCommits,
		"new_achievements", len(result.NewAchievements),
	)
}
