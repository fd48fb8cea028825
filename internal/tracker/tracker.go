// Package tracker records one day of activity from every repository and
// refreshes derived streak state.
package tracker

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"time"

	"github.com/kurihiro0119/commit-streaks/internal/collector"
	"github.com/kurihiro0119/commit-streaks/internal/domain"
	apperrors "github.com/kurihiro0119/commit-streaks/internal/errors"
	"github.com/kurihiro0119/commit-streaks/internal/metrics"
	"github.com/kurihiro0119/commit-streaks/internal/storage"
	"github.com/kurihiro0119/commit-streaks/internal/streak"
)

// Tracker performs live tracking
type Tracker struct {
	collector collector.Collector
	ledger    storage.Ledger
	engine    *streak.Engine
	scope     []string
	metrics   *metrics.Metrics
	logger    *slog.Logger
	now       func() time.Time
}

// NewTracker creates a Tracker. scope is passed to repository discovery.
func NewTracker(c collector.Collector, ledger storage.Ledger, engine *streak.Engine, scope []string, m *metrics.Metrics, logger *slog.Logger) *Tracker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Tracker{
		collector: c,
		ledger:    ledger,
		engine:    engine,
		scope:     scope,
		metrics:   m,
		logger:    logger.With("component", "tracker"),
		now:       time.Now,
	}
}

// TrackToday tracks the current local day
func (t *Tracker) TrackToday(ctx context.Context) (*domain.TrackResult, error) {
	return t.TrackDate(ctx, t.now())
}

// TrackDate collects the day's fact from every repository and replaces what
// the ledger holds for it. Repositories that fail are reported, not fatal.
func (t *Tracker) TrackDate(ctx context.Context, date time.Time) (*domain.TrackResult, error) {
	day := domain.Day(date)
	if day.After(domain.Day(t.now())) {
		return nil, apperrors.NewValidationError("cannot track future date %s", domain.FormatDay(day))
	}

	repos, err := t.collector.ListRepositories(ctx, t.scope)
	if err != nil {
		t.metrics.TrackRun("failed")
		return nil, err
	}

	result := &domain.TrackResult{
		Date:            day,
		Repositories:    []domain.RepoActivity{},
		Errors:          []domain.BackfillItemError{},
		NewAchievements: []domain.AchievementEvent{},
	}

	for _, repo := range repos {
		if err := ctx.Err(); err != nil {
			t.metrics.TrackRun("failed")
			return nil, err
		}

		key := repo.Key()
		fact, err := t.collector.ListActivity(ctx, repo, day)
		if errors.Is(err, apperrors.ErrNoActivity) {
			// an idle day is still a tracked day
			fact, err = &domain.CommitFact{}, nil
		}
		if err != nil {
			t.logger.Warn("failed to collect activity", "repo", key, "date", domain.FormatDay(day), "error", err)
			result.Errors = append(result.Errors, domain.BackfillItemError{
				Repo:    key,
				Date:    day,
				Kind:    domain.ItemSourceUnavailable,
				Message: err.Error(),
			})
			continue
		}

		fact.Repo = key
		fact.Date = day
		if fact.CollectedAt.IsZero() {
			fact.CollectedAt = time.Now().UTC()
		}
		res, err := t.ledger.Upsert(ctx, fact)
		if err != nil {
			t.logger.Warn("failed to store activity", "repo", key, "date", domain.FormatDay(day), "error", err)
			kind := domain.ItemStorage
			if apperrors.IsValidation(err) {
				kind = domain.ItemInvalid
			}
			result.Errors = append(result.Errors, domain.BackfillItemError{
				Repo:    key,
				Date:    day,
				Kind:    kind,
				Message: err.Error(),
			})
			continue
		}
		t.metrics.LedgerWrite(res.String())
		if fact.Commits == 0 {
			continue
		}

		result.TotalCommits += fact.Commits
		result.Repositories = append(result.Repositories, domain.RepoActivity{
			Repo:         key,
			Commits:      fact.Commits,
			LinesAdded:   fact.LinesAdded,
			LinesDeleted: fact.LinesDeleted,
			Result:       res,
		})
	}

	sort.SliceStable(result.Repositories, func(i, j int) bool {
		return result.Repositories[i].Commits > result.Repositories[j].Commits
	})

	refreshed, err := t.engine.Refresh(ctx)
	if err != nil {
		t.metrics.TrackRun("failed")
		return nil, err
	}
	result.NewAchievements = append(result.NewAchievements, refreshed.NewAchievements...)

	status := "ok"
	if len(result.Errors) > 0 {
		status = "partial"
	}
	t.metrics.TrackRun(status)
	t.logger.Info("day tracked",
		"date", domain.FormatDay(day),
		"commits", result.TotalCommits,
		"repositories", len(result.Repositories),
		"errors", len(result.Errors),
		"current_streak", refreshed.Summary.Current,
	)

	return result, nil
}
