package collector

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/kurihiro0119/commit-streaks/internal/domain"
	apperrors "github.com/kurihiro0119/commit-streaks/internal/errors"
	"github.com/kurihiro0119/commit-streaks/internal/metrics"
)

// RetryOptions bounds every source call
type RetryOptions struct {
	// Timeout applies to each attempt
	Timeout time.Duration
	// MaxTries includes the first attempt
	MaxTries uint
	// InitialInterval is the first backoff delay
	InitialInterval time.Duration
	// MaxElapsed caps the total time spent on one call
	MaxElapsed time.Duration
}

// DefaultRetryOptions returns the bounds used when nothing is configured
func DefaultRetryOptions() RetryOptions {
	return RetryOptions{
		Timeout:         30 * time.Second,
		MaxTries:        3,
		InitialInterval: 500 * time.Millisecond,
		MaxElapsed:      2 * time.Minute,
	}
}

// retryingCollector wraps a Collector with per-attempt timeouts and exponential backoff
type retryingCollector struct {
	next    Collector
	opts    RetryOptions
	metrics *metrics.Metrics
	logger  *slog.Logger
}

// WithRetry decorates c so no call blocks indefinitely. Failures that survive
// the retry budget are reported as SOURCE_UNAVAILABLE.
func WithRetry(c Collector, opts RetryOptions, m *metrics.Metrics, logger *slog.Logger) Collector {
	def := DefaultRetryOptions()
	if opts.Timeout <= 0 {
		opts.Timeout = def.Timeout
	}
	if opts.MaxTries == 0 {
		opts.MaxTries = def.MaxTries
	}
	if opts.InitialInterval <= 0 {
		opts.InitialInterval = def.InitialInterval
	}
	if opts.MaxElapsed <= 0 {
		opts.MaxElapsed = def.MaxElapsed
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &retryingCollector{next: c, opts: opts, metrics: m, logger: logger.With("component", "collector")}
}

func (r *retryingCollector) ListRepositories(ctx context.Context, scope []string) ([]*domain.Repository, error) {
	repos, err := retry(ctx, r, "list repositories", func(ctx context.Context) ([]*domain.Repository, error) {
		return r.next.ListRepositories(ctx, scope)
	})
	if err != nil {
		return nil, r.wrap("failed to list repositories", err)
	}
	return repos, nil
}

func (r *retryingCollector) ListActivity(ctx context.Context, repo *domain.Repository, date time.Time) (*domain.CommitFact, error) {
	fact, err := retry(ctx, r, "list activity", func(ctx context.Context) (*domain.CommitFact, error) {
		return r.next.ListActivity(ctx, repo, date)
	})
	if err != nil {
		if errors.Is(err, apperrors.ErrNoActivity) {
			return nil, err
		}
		return nil, r.wrap("failed to fetch "+repo.Key()+" "+domain.FormatDay(date), err)
	}
	return fact, nil
}

func (r *retryingCollector) wrap(message string, err error) error {
	r.metrics.SourceError()
	if apperrors.IsSourceUnavailable(err) || apperrors.IsValidation(err) {
		return err
	}
	return apperrors.NewSourceUnavailableError(message, err)
}

// retry runs op until it succeeds, fails permanently or exhausts the budget
func retry[T any](ctx context.Context, r *retryingCollector, what string, op func(context.Context) (T, error)) (T, error) {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = r.opts.InitialInterval

	attempt := 0
	return backoff.Retry(ctx, func() (T, error) {
		attempt++
		callCtx, cancel := context.WithTimeout(ctx, r.opts.Timeout)
		defer cancel()

		v, err := op(callCtx)
		if err == nil {
			return v, nil
		}
		if errors.Is(err, apperrors.ErrNoActivity) || apperrors.IsValidation(err) {
			return v, backoff.Permanent(err)
		}
		r.logger.Debug("source call failed", "operation", what, "attempt", attempt, "error", err)
		return v, err
	},
		backoff.WithBackOff(b),
		backoff.WithMaxTries(r.opts.MaxTries),
		backoff.WithMaxElapsedTime(r.opts.MaxElapsed),
	)
}
