package storage

import (
	"context"
	"iter"
	"time"

	"github.com/kurihiro0119/commit-streaks/internal/domain"
)

// Ledger is the authoritative store of per-repository, per-day commit facts.
// Every successful write bumps the epoch.
type Ledger interface {
	// Upsert inserts or replaces the fact for (repo, date)
	Upsert(ctx context.Context, fact *domain.CommitFact) (domain.UpsertResult, error)

	// Exists reports whether a fact is stored for (repo, date)
	Exists(ctx context.Context, repo string, date time.Time) (bool, error)

	// QueryRange streams facts in [start, end] ordered by date then repository.
	// Each range over the returned sequence re-runs the query.
	QueryRange(ctx context.Context, start, end time.Time) iter.Seq2[*domain.CommitFact, error]

	// DailyTotals returns one entry per day in [start, end], zero for untracked days
	DailyTotals(ctx context.Context, start, end time.Time) ([]domain.DailyTotal, error)

	// TrackedRange returns the first and last day with a stored fact; ok is false when empty
	TrackedRange(ctx context.Context) (first, last time.Time, ok bool, err error)

	// DaysWithData counts distinct days having at least one fact
	DaysWithData(ctx context.Context) (int, error)

	// Repositories lists every repository with at least one fact
	Repositories(ctx context.Context) ([]string, error)

	// Epoch returns the current write epoch
	Epoch() uint64
}

// StreakStore persists streak records derived from the ledger
type StreakStore interface {
	ListStreaks(ctx context.Context, kind domain.StreakKind) ([]domain.StreakRecord, error)

	// ReplaceStreaks swaps all records of every kind in sets within one transaction.
	// Kinds missing from sets are left untouched.
	ReplaceStreaks(ctx context.Context, sets map[domain.StreakKind][]domain.StreakRecord) error
}

// AchievementStore is the write-once achievement log
type AchievementStore interface {
	// RecordAchievement stores the event unless (type, milestone) is already present.
	// It returns true when the event was stored.
	RecordAchievement(ctx context.Context, event *domain.AchievementEvent) (bool, error)

	ListAchievements(ctx context.Context, since time.Time) ([]*domain.AchievementEvent, error)

	AchievementStats(ctx context.Context, now time.Time) (*domain.AchievementStats, error)
}

// Storage is the abstract interface for the persistence layer
type Storage interface {
	Ledger
	StreakStore
	AchievementStore

	// Migration
	Migrate(ctx context.Context) error

	// Connection management
	Close() error
}
