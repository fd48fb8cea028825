// Package backfill replays historical source activity into the ledger.
package backfill

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/panjf2000/ants/v2"

	"github.com/kurihiro0119/commit-streaks/internal/collector"
	"github.com/kurihiro0119/commit-streaks/internal/domain"
	apperrors "github.com/kurihiro0119/commit-streaks/internal/errors"
	"github.com/kurihiro0119/commit-streaks/internal/metrics"
	"github.com/kurihiro0119/commit-streaks/internal/storage"
)

const (
	DefaultMaxDays   = 365
	DefaultBatchSize = 10
)

// Options configures one backfill run
type Options struct {
	Days        int
	SearchScope []string
	DryRun      bool
	Force       bool
	// BatchSize is the number of repositories fetched concurrently
	BatchSize int
	// MaxDays caps Days; zero means DefaultMaxDays
	MaxDays int
	// Today overrides the last day of the range; zero means the current local day
	Today time.Time
}

// Validate rejects options before any I/O happens
func (o Options) Validate() error {
	maxDays := o.MaxDays
	if maxDays <= 0 {
		maxDays = DefaultMaxDays
	}
	if o.Days < 1 || o.Days > maxDays {
		return apperrors.NewValidationError("days must be between 1 and %d, got %d", maxDays, o.Days)
	}
	if o.BatchSize < 1 {
		return apperrors.NewValidationError("batch size must be at least 1, got %d", o.BatchSize)
	}
	return nil
}

// Range returns the inclusive day range [today - days + 1, today]
func (o Options) Range(now time.Time) (time.Time, time.Time) {
	today := o.Today
	if today.IsZero() {
		today = now
	}
	end := domain.Day(today)
	return end.AddDate(0, 0, -(o.Days - 1)), end
}

// Reconciler fetches facts from a collector and applies the ledger's upsert-or-skip rule
type Reconciler struct {
	collector collector.Collector
	ledger    storage.Ledger
	metrics   *metrics.Metrics
	logger    *slog.Logger
	now       func() time.Time

	// writeMu serializes the exists check and the upsert
	writeMu sync.Mutex
}

// NewReconciler creates a Reconciler
func NewReconciler(c collector.Collector, ledger storage.Ledger, m *metrics.Metrics, logger *slog.Logger) *Reconciler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Reconciler{
		collector: c,
		ledger:    ledger,
		metrics:   m,
		logger:    logger.With("component", "backfill"),
		now:       time.Now,
	}
}

// run accumulates the report while workers finish items
type run struct {
	mu     sync.Mutex
	report *domain.BackfillReport
	active map[string]bool
}

func (r *run) record(fn func(*domain.BackfillReport)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	fn(r.report)
}

func (r *run) fail(repo string, date time.Time, kind domain.ItemErrorKind, err error) {
	r.record(func(rep *domain.BackfillReport) {
		if kind == domain.ItemStorage {
			rep.FailedWrites++
		}
		rep.Errors = append(rep.Errors, domain.BackfillItemError{
			Repo:    repo,
			Date:    date,
			Kind:    kind,
			Message: err.Error(),
		})
	})
}

// Backfill walks every discovered repository over the requested range.
// Per-item failures land in the report; only validation, discovery and
// cancellation end the run with an error.
func (r *Reconciler) Backfill(ctx context.Context, opts Options) (*domain.BackfillReport, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}

	started := time.Now()
	start, end := opts.Range(r.now())
	days := domain.DayRange(start, end)

	repos, err := r.collector.ListRepositories(ctx, opts.SearchScope)
	if err != nil {
		return nil, err
	}

	state := &run{
		report: &domain.BackfillReport{
			RunID:         uuid.New().String(),
			StartDate:     start,
			EndDate:       end,
			DryRun:        opts.DryRun,
			Force:         opts.Force,
			ProcessedDays: len(days),
			Repositories:  len(repos),
			Errors:        []domain.BackfillItemError{},
		},
		active: make(map[string]bool),
	}
	logger := r.logger.With("run_id", state.report.RunID)
	logger.Info("backfill started",
		"start", domain.FormatDay(start),
		"end", domain.FormatDay(end),
		"repositories", len(repos),
		"dry_run", opts.DryRun,
		"force", opts.Force,
	)

	pool, err := ants.NewPool(opts.BatchSize)
	if err != nil {
		return nil, apperrors.NewInternalError("failed to create worker pool", err)
	}
	defer pool.Release()

	finish := func() *domain.BackfillReport {
		state.report.ReposWithActivity = len(state.active)
		state.report.Duration = time.Since(started)
		return state.report
	}

	for batchStart := 0; batchStart < len(repos); batchStart += opts.BatchSize {
		if err := ctx.Err(); err != nil {
			logger.Warn("backfill interrupted", "processed_repositories", batchStart)
			return finish(), err
		}

		batch := repos[batchStart:min(batchStart+opts.BatchSize, len(repos))]
		var wg sync.WaitGroup
		for _, repo := range batch {
			wg.Add(1)
			submitErr := pool.Submit(func() {
				defer wg.Done()
				r.processRepository(ctx, logger, state, repo, days, opts)
			})
			if submitErr != nil {
				wg.Done()
				state.fail(repo.Key(), time.Time{}, domain.ItemSourceUnavailable, submitErr)
			}
		}
		wg.Wait()
	}

	report := finish()
	if err := ctx.Err(); err != nil {
		return report, err
	}

	logger.Info("backfill finished",
		"created", report.Created,
		"replaced", report.Replaced,
		"skipped", report.Skipped,
		"errors", len(report.Errors),
		"duration", report.Duration.Round(time.Millisecond),
	)
	return report, nil
}

// processRepository handles one repository, oldest date first
func (r *Reconciler) processRepository(ctx context.Context, logger *slog.Logger, state *run, repo *domain.Repository, days []time.Time, opts Options) {
	key := repo.Key()
	for _, day := range days {
		if ctx.Err() != nil {
			return
		}

		fact, err := r.collector.ListActivity(ctx, repo, day)
		if errors.Is(err, apperrors.ErrNoActivity) {
			// idle days are stored as zero so the streak replay sees them
			r.metrics.BackfillItem("no_activity")
			fact, err = &domain.CommitFact{}, nil
		}
		if err != nil {
			logger.Warn("source unavailable", "repo", key, "date", domain.FormatDay(day), "error", err)
			r.metrics.BackfillItem("failed")
			state.fail(key, day, domain.ItemSourceUnavailable, err)
			continue
		}

		fact.Repo = key
		fact.Date = day
		if fact.Commits > 0 {
			state.record(func(*domain.BackfillReport) { state.active[key] = true })
		}

		outcome, err := r.reconcile(ctx, fact, opts)
		if err != nil {
			kind := domain.ItemStorage
			if apperrors.IsValidation(err) {
				kind = domain.ItemInvalid
			}
			logger.Warn("ledger write failed", "repo", key, "date", domain.FormatDay(day), "kind", kind, "error", err)
			r.metrics.BackfillItem("failed")
			state.fail(key, day, kind, err)
			continue
		}

		r.metrics.BackfillItem(outcome)
		state.record(func(rep *domain.BackfillReport) {
			switch outcome {
			case "created":
				rep.Created++
			case "replaced":
				rep.Replaced++
			case "skipped":
				rep.Skipped++
			}
		})
	}
}

// reconcile applies upsert-or-skip for one fact and returns the outcome.
// A dry run reports the outcome a real run would have without writing.
func (r *Reconciler) reconcile(ctx context.Context, fact *domain.CommitFact, opts Options) (string, error) {
	// validate up front so a dry run rejects what the ledger would
	if err := storage.ValidateFact(fact); err != nil {
		return "", err
	}

	r.writeMu.Lock()
	defer r.writeMu.Unlock()

	exists, err := r.ledger.Exists(ctx, fact.Repo, fact.Date)
	if err != nil {
		return "", asStorageError(err)
	}
	if exists && !opts.Force {
		return "skipped", nil
	}

	if opts.DryRun {
		if exists {
			return "replaced", nil
		}
		return "created", nil
	}

	if fact.CollectedAt.IsZero() {
		fact.CollectedAt = time.Now().UTC()
	}
	result, err := r.ledger.Upsert(ctx, fact)
	if err != nil {
		return "", asStorageError(err)
	}
	r.metrics.LedgerWrite(result.String())
	if result == domain.Replaced {
		return "replaced", nil
	}
	return "created", nil
}

func asStorageError(err error) error {
	var appErr *apperrors.AppError
	if errors.As(err, &appErr) {
		return err
	}
	return apperrors.NewStorageError("ledger write failed", err)
}
