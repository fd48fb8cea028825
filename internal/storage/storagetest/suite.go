// Package storagetest holds behavior checks shared by every storage adapter.
package storagetest

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kurihiro0119/commit-streaks/internal/domain"
	apperrors "github.com/kurihiro0119/commit-streaks/internal/errors"
	"github.com/kurihiro0119/commit-streaks/internal/storage"
)

// Factory returns a fresh, migrated, empty store
type Factory func(t *testing.T) storage.Storage

// Day parses a YYYY-MM-DD literal or fails the test
func Day(t *testing.T, s string) time.Time {
	t.Helper()
	d, err := domain.ParseDay(s)
	require.NoError(t, err)
	return d
}

// Run executes the shared storage behavior checks
func Run(t *testing.T, newStore Factory) {
	t.Run("UpsertIsIdempotent", func(t *testing.T) { testUpsertIsIdempotent(t, newStore(t)) })
	t.Run("UpsertRejectsNegativeCounts", func(t *testing.T) { testUpsertRejectsNegative(t, newStore(t)) })
	t.Run("QueryRangeOrdering", func(t *testing.T) { testQueryRangeOrdering(t, newStore(t)) })
	t.Run("QueryRangeIsRestartable", func(t *testing.T) { testQueryRangeRestartable(t, newStore(t)) })
	t.Run("DailyTotalsZeroFill", func(t *testing.T) { testDailyTotalsZeroFill(t, newStore(t)) })
	t.Run("DailyTotalsRejectsInvertedRange", func(t *testing.T) { testInvertedRange(t, newStore(t)) })
	t.Run("TrackedRange", func(t *testing.T) { testTrackedRange(t, newStore(t)) })
	t.Run("EpochAdvancesOnWrite", func(t *testing.T) { testEpoch(t, newStore(t)) })
	t.Run("ConcurrentUpsertsSerialize", func(t *testing.T) { testConcurrentUpserts(t, newStore(t)) })
	t.Run("ReplaceStreaks", func(t *testing.T) { testReplaceStreaks(t, newStore(t)) })
	t.Run("ReplaceStreaksRejectsTwoActive", func(t *testing.T) { testTwoActiveRejected(t, newStore(t)) })
	t.Run("ReplaceStreaksIsAllOrNothing", func(t *testing.T) { testReplaceStreaksIsAllOrNothing(t, newStore(t)) })
	t.Run("AchievementsAreWriteOnce", func(t *testing.T) { testAchievementsWriteOnce(t, newStore(t)) })
	t.Run("AchievementStats", func(t *testing.T) { testAchievementStats(t, newStore(t)) })
}

func fact(t *testing.T, repo, date string, commits int) *domain.CommitFact {
	return &domain.CommitFact{Repo: repo, Date: Day(t, date), Commits: commits}
}

func testUpsertIsIdempotent(t *testing.T, s storage.Storage) {
	ctx := context.Background()

	res, err := s.Upsert(ctx, fact(t, "api", "2025-01-01", 3))
	require.NoError(t, err)
	assert.Equal(t, domain.Inserted, res)

	res, err = s.Upsert(ctx, fact(t, "api", "2025-01-01", 5))
	require.NoError(t, err)
	assert.Equal(t, domain.Replaced, res)

	var got []*domain.CommitFact
	for f, err := range s.QueryRange(ctx, Day(t, "2025-01-01"), Day(t, "2025-01-01")) {
		require.NoError(t, err)
		got = append(got, f)
	}
	require.Len(t, got, 1)
	assert.Equal(t, 5, got[0].Commits)

	exists, err := s.Exists(ctx, "api", Day(t, "2025-01-01"))
	require.NoError(t, err)
	assert.True(t, exists)

	exists, err = s.Exists(ctx, "api", Day(t, "2025-01-02"))
	require.NoError(t, err)
	assert.False(t, exists)
}

func testUpsertRejectsNegative(t *testing.T, s storage.Storage) {
	before := s.Epoch()
	_, err := s.Upsert(context.Background(), fact(t, "api", "2025-01-01", -1))
	assert.True(t, apperrors.IsValidation(err))
	assert.Equal(t, before, s.Epoch())
}

func testQueryRangeOrdering(t *testing.T, s storage.Storage) {
	ctx := context.Background()
	for _, f := range []*domain.CommitFact{
		fact(t, "web", "2025-01-02", 1),
		fact(t, "api", "2025-01-02", 2),
		fact(t, "web", "2025-01-01", 3),
		fact(t, "cli", "2025-01-03", 4),
		fact(t, "api", "2025-01-04", 9),
	} {
		_, err := s.Upsert(ctx, f)
		require.NoError(t, err)
	}

	var keys []string
	for f, err := range s.QueryRange(ctx, Day(t, "2025-01-01"), Day(t, "2025-01-03")) {
		require.NoError(t, err)
		keys = append(keys, domain.FormatDay(f.Date)+"/"+f.Repo)
	}
	assert.Equal(t, []string{"2025-01-01/web", "2025-01-02/api", "2025-01-02/web", "2025-01-03/cli"}, keys)

	repos, err := s.Repositories(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"api", "cli", "web"}, repos)

	days, err := s.DaysWithData(ctx)
	require.NoError(t, err)
	assert.Equal(t, 4, days)
}

func testQueryRangeRestartable(t *testing.T, s storage.Storage) {
	ctx := context.Background()
	_, err := s.Upsert(ctx, fact(t, "api", "2025-01-01", 1))
	require.NoError(t, err)
	_, err = s.Upsert(ctx, fact(t, "api", "2025-01-02", 1))
	require.NoError(t, err)

	seq := s.QueryRange(ctx, Day(t, "2025-01-01"), Day(t, "2025-01-31"))
	count := func() int {
		n := 0
		for _, err := range seq {
			require.NoError(t, err)
			n++
		}
		return n
	}
	assert.Equal(t, 2, count())
	assert.Equal(t, 2, count())

	// breaking early must release the cursor
	for range seq {
		break
	}
	assert.Equal(t, 2, count())
}

func testDailyTotalsZeroFill(t *testing.T, s storage.Storage) {
	ctx := context.Background()
	_, err := s.Upsert(ctx, fact(t, "api", "2025-01-02", 2))
	require.NoError(t, err)
	_, err = s.Upsert(ctx, fact(t, "web", "2025-01-02", 3))
	require.NoError(t, err)
	_, err = s.Upsert(ctx, fact(t, "web", "2025-01-04", 1))
	require.NoError(t, err)

	totals, err := s.DailyTotals(ctx, Day(t, "2025-01-01"), Day(t, "2025-01-05"))
	require.NoError(t, err)
	require.Len(t, totals, 5)

	values := make([]int64, len(totals))
	for i, d := range totals {
		values[i] = d.Commits
	}
	assert.Equal(t, []int64{0, 5, 0, 1, 0}, values)
	assert.Equal(t, Day(t, "2025-01-01"), totals[0].Date)
	assert.Equal(t, Day(t, "2025-01-05"), totals[4].Date)
}

func testInvertedRange(t *testing.T, s storage.Storage) {
	_, err := s.DailyTotals(context.Background(), Day(t, "2025-01-05"), Day(t, "2025-01-01"))
	assert.True(t, apperrors.IsValidation(err))
}

func testTrackedRange(t *testing.T, s storage.Storage) {
	ctx := context.Background()
	_, _, ok, err := s.TrackedRange(ctx)
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = s.Upsert(ctx, fact(t, "api", "2025-02-10", 1))
	require.NoError(t, err)
	_, err = s.Upsert(ctx, fact(t, "api", "2025-01-15", 0))
	require.NoError(t, err)

	first, last, ok, err := s.TrackedRange(ctx)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, Day(t, "2025-01-15"), first)
	assert.Equal(t, Day(t, "2025-02-10"), last)
}

func testEpoch(t *testing.T, s storage.Storage) {
	ctx := context.Background()
	e0 := s.Epoch()
	_, err := s.Upsert(ctx, fact(t, "api", "2025-01-01", 1))
	require.NoError(t, err)
	e1 := s.Epoch()
	assert.Greater(t, e1, e0)

	_, err = s.Upsert(ctx, fact(t, "api", "2025-01-01", 1))
	require.NoError(t, err)
	assert.Greater(t, s.Epoch(), e1)
}

func testConcurrentUpserts(t *testing.T, s storage.Storage) {
	ctx := context.Background()
	var wg sync.WaitGroup
	results := make([]domain.UpsertResult, 8)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			res, err := s.Upsert(ctx, fact(t, "api", "2025-01-01", i))
			assert.NoError(t, err)
			results[i] = res
		}(i)
	}
	wg.Wait()

	inserted := 0
	for _, r := range results {
		if r == domain.Inserted {
			inserted++
		}
	}
	assert.Equal(t, 1, inserted)

	days, err := s.DaysWithData(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, days)
}

func testReplaceStreaks(t *testing.T, s storage.Storage) {
	ctx := context.Background()
	end := Day(t, "2025-01-03")
	records := []domain.StreakRecord{
		{Kind: domain.StreakDaily, StartDate: Day(t, "2025-01-01"), EndDate: &end, LastDate: end, Length: 3},
		{Kind: domain.StreakDaily, StartDate: Day(t, "2025-01-05"), LastDate: Day(t, "2025-01-06"), Length: 2, Active: true},
	}
	require.NoError(t, s.ReplaceStreaks(ctx, map[domain.StreakKind][]domain.StreakRecord{domain.StreakDaily: records}))

	got, err := s.ListStreaks(ctx, domain.StreakDaily)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, 3, got[0].Length)
	require.NotNil(t, got[0].EndDate)
	assert.Equal(t, end, *got[0].EndDate)
	assert.True(t, got[1].Active)
	assert.Nil(t, got[1].EndDate)

	// replacing is total, not additive
	require.NoError(t, s.ReplaceStreaks(ctx, map[domain.StreakKind][]domain.StreakRecord{domain.StreakDaily: records[1:]}))
	got, err = s.ListStreaks(ctx, domain.StreakDaily)
	require.NoError(t, err)
	assert.Len(t, got, 1)

	weekly, err := s.ListStreaks(ctx, domain.StreakWeekly)
	require.NoError(t, err)
	assert.Empty(t, weekly)
}

func testTwoActiveRejected(t *testing.T, s storage.Storage) {
	records := []domain.StreakRecord{
		{Kind: domain.StreakDaily, StartDate: Day(t, "2025-01-01"), LastDate: Day(t, "2025-01-01"), Length: 1, Active: true},
		{Kind: domain.StreakDaily, StartDate: Day(t, "2025-01-03"), LastDate: Day(t, "2025-01-03"), Length: 1, Active: true},
	}
	err := s.ReplaceStreaks(context.Background(), map[domain.StreakKind][]domain.StreakRecord{domain.StreakDaily: records})
	assert.True(t, apperrors.IsConsistencyViolation(err))
}

func testReplaceStreaksIsAllOrNothing(t *testing.T, s storage.Storage) {
	ctx := context.Background()
	daily := []domain.StreakRecord{
		{Kind: domain.StreakDaily, StartDate: Day(t, "2025-01-01"), LastDate: Day(t, "2025-01-02"), Length: 2, Active: true},
	}
	weekly := []domain.StreakRecord{
		{Kind: domain.StreakWeekly, StartDate: Day(t, "2024-12-30"), LastDate: Day(t, "2024-12-30"), Length: 1, Active: true},
	}
	require.NoError(t, s.ReplaceStreaks(ctx, map[domain.StreakKind][]domain.StreakRecord{
		domain.StreakDaily:  daily,
		domain.StreakWeekly: weekly,
	}))

	// an invalid weekly set must leave the daily records untouched too
	badWeekly := []domain.StreakRecord{weekly[0], weekly[0]}
	err := s.ReplaceStreaks(ctx, map[domain.StreakKind][]domain.StreakRecord{
		domain.StreakDaily:  nil,
		domain.StreakWeekly: badWeekly,
	})
	assert.True(t, apperrors.IsConsistencyViolation(err))

	got, err := s.ListStreaks(ctx, domain.StreakDaily)
	require.NoError(t, err)
	assert.Len(t, got, 1)
	got, err = s.ListStreaks(ctx, domain.StreakWeekly)
	require.NoError(t, err)
	assert.Len(t, got, 1)

	// a cancelled write rolls back every kind
	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	assert.Error(t, s.ReplaceStreaks(cancelled, map[domain.StreakKind][]domain.StreakRecord{
		domain.StreakDaily:  nil,
		domain.StreakWeekly: nil,
	}))
	got, err = s.ListStreaks(ctx, domain.StreakDaily)
	require.NoError(t, err)
	assert.Len(t, got, 1)
}

func testAchievementsWriteOnce(t *testing.T, s storage.Storage) {
	ctx := context.Background()
	ev := &domain.AchievementEvent{
		Type:        domain.AchievementStreak,
		Milestone:   3,
		Message:     "3-day streak",
		TriggerDate: Day(t, "2025-01-03"),
		Snapshot:    domain.MetricSnapshot{StreakLength: 3},
	}
	stored, err := s.RecordAchievement(ctx, ev)
	require.NoError(t, err)
	assert.True(t, stored)
	assert.NotEmpty(t, ev.ID)

	again := *ev
	again.ID = ""
	again.TriggerDate = Day(t, "2025-02-01")
	stored, err = s.RecordAchievement(ctx, &again)
	require.NoError(t, err)
	assert.False(t, stored)

	events, err := s.ListAchievements(ctx, time.Time{})
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, Day(t, "2025-01-03"), events[0].TriggerDate)
	assert.Equal(t, 3, events[0].Snapshot.StreakLength)
}

func testAchievementStats(t *testing.T, s storage.Storage) {
	ctx := context.Background()
	for _, ev := range []*domain.AchievementEvent{
		{Type: domain.AchievementStreak, Milestone: 3, Message: "a", TriggerDate: Day(t, "2024-11-01")},
		{Type: domain.AchievementStreak, Milestone: 7, Message: "b", TriggerDate: Day(t, "2025-01-10")},
		{Type: domain.AchievementVolume, Milestone: 5, Message: "c", TriggerDate: Day(t, "2025-01-12")},
	} {
		_, err := s.RecordAchievement(ctx, ev)
		require.NoError(t, err)
	}

	stats, err := s.AchievementStats(ctx, Day(t, "2025-01-15"))
	require.NoError(t, err)
	assert.Equal(t, 3, stats.Total)
	assert.Equal(t, 2, stats.ByType[domain.AchievementStreak])
	assert.Equal(t, 1, stats.ByType[domain.AchievementVolume])
	assert.Equal(t, 2, stats.Recent)

	since, err := s.ListAchievements(ctx, Day(t, "2025-01-11"))
	require.NoError(t, err)
	require.Len(t, since, 1)
	assert.Equal(t, domain.AchievementVolume, since[0].Type)
}
