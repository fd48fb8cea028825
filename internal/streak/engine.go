package streak

import (
	"context"
	"log/slog"
	"time"

	"github.com/kurihiro0119/commit-streaks/internal/achievement"
	"github.com/kurihiro0119/commit-streaks/internal/domain"
	"github.com/kurihiro0119/commit-streaks/internal/metrics"
	"github.com/kurihiro0119/commit-streaks/internal/storage"
)

// Store is the persistence the engine needs
type Store interface {
	storage.Ledger
	storage.StreakStore
	storage.AchievementStore
}

// Result is the outcome of a refresh
type Result struct {
	Summary         domain.StreakSummary      `json:"summary"`
	Daily           []domain.StreakRecord     `json:"daily"`
	Weekly          []domain.StreakRecord     `json:"weekly"`
	NewAchievements []domain.AchievementEvent `json:"new_achievements"`
}

// Engine re-derives streak state and achievements from the ledger.
// Every refresh replays the full history, so running it twice changes nothing.
type Engine struct {
	store      Store
	opts       Options
	thresholds achievement.Thresholds
	metrics    *metrics.Metrics
	logger     *slog.Logger
	now        func() time.Time
}

// NewEngine creates a streak engine
func NewEngine(store Store, opts Options, thresholds achievement.Thresholds, m *metrics.Metrics, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		store:      store,
		opts:       opts,
		thresholds: thresholds,
		metrics:    m,
		logger:     logger.With("component", "streak"),
		now:        time.Now,
	}
}

// Refresh replays daily totals from the first to the last tracked day,
// persists the derived records and logs any newly reached achievements.
// An inconsistent replay halts before anything is written.
func (e *Engine) Refresh(ctx context.Context) (*Result, error) {
	first, last, ok, err := e.store.TrackedRange(ctx)
	if err != nil {
		return nil, err
	}

	result := &Result{}
	var candidates []domain.AchievementEvent
	if ok {
		totals, err := e.store.DailyTotals(ctx, first, last)
		if err != nil {
			return nil, err
		}
		if candidates, err = e.replay(totals, result); err != nil {
			e.logger.Error("streak replay failed", "error", err)
			return nil, err
		}
	}

	sets := map[domain.StreakKind][]domain.StreakRecord{
		domain.StreakDaily:  result.Daily,
		domain.StreakWeekly: result.Weekly,
	}
	for kind, records := range sets {
		if err := storage.ValidateStreaks(kind, records); err != nil {
			e.logger.Error("streak replay produced inconsistent state", "kind", kind, "error", err)
			return nil, err
		}
	}
	if err := e.store.ReplaceStreaks(ctx, sets); err != nil {
		return nil, err
	}

	result.NewAchievements, err = achievement.Record(ctx, e.store, candidates)
	if err != nil {
		return nil, err
	}

	result.Summary = Summarize(result.Daily, result.Weekly, e.now())
	e.metrics.SetCurrentStreak(result.Summary.Current)

	for _, ev := range result.NewAchievements {
		e.logger.Info("achievement unlocked", "type", ev.Type, "milestone", ev.Milestone, "date", domain.FormatDay(ev.TriggerDate))
	}
	e.logger.Debug("streaks refreshed", "current", result.Summary.Current, "longest", result.Summary.Longest)

	return result, nil
}

// replay runs both machines and the evaluator over totals
func (e *Engine) replay(totals []domain.DailyTotal, result *Result) ([]domain.AchievementEvent, error) {
	threshold := e.opts.Threshold
	if threshold < 1 {
		threshold = 1
	}

	machine := NewMachine(domain.StreakDaily, threshold)
	evaluator := achievement.NewEvaluator(e.thresholds)

	var candidates []domain.AchievementEvent
	for _, d := range totals {
		tr, err := machine.Observe(d.Date, d.Commits)
		if err != nil {
			return nil, err
		}
		candidates = append(candidates, evaluator.Observe(achievement.Day{
			Date:         d.Date,
			Commits:      d.Commits,
			Qualifying:   d.Commits >= threshold,
			StreakLength: machine.Current(),
			StreakClosed: tr == Closed || tr == ClosedAndStarted,
		})...)
	}
	result.Daily = machine.Records()

	weekly, err := ReplayWeekly(totals, e.opts)
	if err != nil {
		return nil, err
	}
	result.Weekly = weekly

	return candidates, nil
}

// Summary reads the persisted records without replaying
func (e *Engine) Summary(ctx context.Context) (*domain.StreakSummary, error) {
	daily, err := e.store.ListStreaks(ctx, domain.StreakDaily)
	if err != nil {
		return nil, err
	}
	weekly, err := e.store.ListStreaks(ctx, domain.StreakWeekly)
	if err != nil {
		return nil, err
	}
	s := Summarize(daily, weekly, e.now())
	return &s, nil
}
