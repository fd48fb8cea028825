package tracker

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kurihiro0119/commit-streaks/internal/achievement"
	"github.com/kurihiro0119/commit-streaks/internal/domain"
	apperrors "github.com/kurihiro0119/commit-streaks/internal/errors"
	"github.com/kurihiro0119/commit-streaks/internal/metrics"
	"github.com/kurihiro0119/commit-streaks/internal/storage"
	"github.com/kurihiro0119/commit-streaks/internal/storage/sqlite"
	"github.com/kurihiro0119/commit-streaks/internal/streak"
)

type stubCollector struct {
	repos    []*domain.Repository
	commits  map[string]int
	failing  map[string]bool
	negative map[string]bool
	listErr  error
}

func (s *stubCollector) ListRepositories(ctx context.Context, scope []string) ([]*domain.Repository, error) {
	return s.repos, s.listErr
}

func (s *stubCollector) ListActivity(ctx context.Context, repo *domain.Repository, date time.Time) (*domain.CommitFact, error) {
	if s.failing[repo.Key()] {
		return nil, apperrors.NewSourceUnavailableError("timeout", errors.New("deadline exceeded"))
	}
	if s.negative[repo.Key()] {
		return &domain.CommitFact{Repo: repo.Key(), Date: date, Commits: 1, LinesDeleted: -4}, nil
	}
	n := s.commits[repo.Key()]
	if n == 0 {
		return nil, apperrors.ErrNoActivity
	}
	return &domain.CommitFact{Repo: repo.Key(), Date: date, Commits: n, LinesAdded: n * 10}, nil
}

func setup(t *testing.T, c *stubCollector) (*Tracker, storage.Storage, *metrics.Metrics) {
	t.Helper()
	store, err := sqlite.NewSQLiteStorage(filepath.Join(t.TempDir(), "commits.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	m := metrics.New()
	engine := streak.NewEngine(store, streak.Options{Threshold: 1}, achievement.DefaultThresholds(), m, nil)
	return NewTracker(c, store, engine, nil, m, nil), store, m
}

func repos(names ...string) []*domain.Repository {
	out := make([]*domain.Repository, 0, len(names))
	for _, n := range names {
		out = append(out, &domain.Repository{Name: n})
	}
	return out
}

func TestTrackDateStoresFacts(t *testing.T) {
	ctx := context.Background()
	c := &stubCollector{
		repos:   repos("api", "web", "docs"),
		commits: map[string]int{"api": 2, "web": 4},
	}
	tr, store, m := setup(t, c)
	date := time.Date(2025, 1, 3, 15, 0, 0, 0, time.UTC)

	result, err := tr.TrackDate(ctx, date)
	require.NoError(t, err)

	assert.Equal(t, domain.Day(date), result.Date)
	assert.Equal(t, 6, result.TotalCommits)
	require.Len(t, result.Repositories, 2)
	assert.Equal(t, "web", result.Repositories[0].Repo)
	assert.Equal(t, domain.Inserted, result.Repositories[0].Result)
	assert.Empty(t, result.Errors)

	totals, err := store.DailyTotals(ctx, domain.Day(date), domain.Day(date))
	require.NoError(t, err)
	assert.Equal(t, int64(6), totals[0].Commits)

	daily, err := store.ListStreaks(ctx, domain.StreakDaily)
	require.NoError(t, err)
	require.Len(t, daily, 1)
	assert.Equal(t, 1, daily[0].Length)

	count, err := testutil.GatherAndCount(m.Registry(), "commit_streaks_track_runs_total")
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestTrackDateReplacesOnRetrack(t *testing.T) {
	ctx := context.Background()
	c := &stubCollector{repos: repos("api"), commits: map[string]int{"api": 1}}
	tr, store, _ := setup(t, c)
	date := time.Date(2025, 1, 3, 0, 0, 0, 0, time.UTC)

	_, err := tr.TrackDate(ctx, date)
	require.NoError(t, err)

	c.commits["api"] = 5
	result, err := tr.TrackDate(ctx, date)
	require.NoError(t, err)
	assert.Equal(t, domain.Replaced, result.Repositories[0].Result)

	totals, err := store.DailyTotals(ctx, date, date)
	require.NoError(t, err)
	assert.Equal(t, int64(5), totals[0].Commits)

	// the volume milestone for 5 commits was reached by the retrack
	require.Len(t, result.NewAchievements, 1)
	assert.Equal(t, domain.AchievementVolume, result.NewAchievements[0].Type)
}

func TestTrackDateReportsFailingRepositories(t *testing.T) {
	c := &stubCollector{
		repos:   repos("api", "private"),
		commits: map[string]int{"api": 1},
		failing: map[string]bool{"private": true},
	}
	tr, _, _ := setup(t, c)

	result, err := tr.TrackDate(context.Background(), time.Date(2025, 1, 3, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Len(t, result.Repositories, 1)
	require.Len(t, result.Errors, 1)
	assert.Equal(t, "private", result.Errors[0].Repo)
	assert.Equal(t, domain.ItemSourceUnavailable, result.Errors[0].Kind)
}

func TestTrackDateDiscoveryFailure(t *testing.T) {
	c := &stubCollector{listErr: apperrors.NewSourceUnavailableError("no search path accessible", nil)}
	tr, _, _ := setup(t, c)

	_, err := tr.TrackDate(context.Background(), time.Date(2025, 1, 3, 0, 0, 0, 0, time.UTC))
	assert.True(t, apperrors.IsSourceUnavailable(err))
}

func TestTrackDateRejectsFuture(t *testing.T) {
	tr, _, _ := setup(t, &stubCollector{})

	_, err := tr.TrackDate(context.Background(), time.Now().AddDate(0, 0, 2))
	assert.True(t, apperrors.IsValidation(err))
}

func TestIdleDayClosesStreak(t *testing.T) {
	ctx := context.Background()
	c := &stubCollector{repos: repos("api", "web"), commits: map[string]int{"api": 1}}
	tr, store, _ := setup(t, c)
	first := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

	for i := 0; i < 5; i++ {
		_, err := tr.TrackDate(ctx, first.AddDate(0, 0, i))
		require.NoError(t, err)
	}

	// neither repository has commits on the sixth day
	c.commits = map[string]int{}
	result, err := tr.TrackDate(ctx, first.AddDate(0, 0, 5))
	require.NoError(t, err)
	assert.Zero(t, result.TotalCommits)
	assert.Empty(t, result.Repositories)
	assert.Empty(t, result.Errors)

	_, last, ok, err := store.TrackedRange(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, first.AddDate(0, 0, 5), last)

	daily, err := store.ListStreaks(ctx, domain.StreakDaily)
	require.NoError(t, err)
	require.Len(t, daily, 1)
	assert.False(t, daily[0].Active)
	assert.Equal(t, 5, daily[0].Length)
	require.NotNil(t, daily[0].EndDate)
	assert.Equal(t, first.AddDate(0, 0, 4), *daily[0].EndDate)

	summary, err := tr.engine.Summary(ctx)
	require.NoError(t, err)
	assert.Zero(t, summary.Current)
	assert.Equal(t, 5, summary.Longest)

	// the next qualifying day starts a fresh streak
	c.commits = map[string]int{"web": 3}
	_, err = tr.TrackDate(ctx, first.AddDate(0, 0, 6))
	require.NoError(t, err)

	daily, err = store.ListStreaks(ctx, domain.StreakDaily)
	require.NoError(t, err)
	require.Len(t, daily, 2)
	assert.True(t, daily[1].Active)
	assert.Equal(t, 1, daily[1].Length)
	assert.Equal(t, first.AddDate(0, 0, 6), daily[1].StartDate)
}

func TestRetrackingIdleDayClearsStaleCommits(t *testing.T) {
	ctx := context.Background()
	c := &stubCollector{repos: repos("api"), commits: map[string]int{"api": 2}}
	tr, store, _ := setup(t, c)
	date := time.Date(2025, 1, 3, 0, 0, 0, 0, time.UTC)

	_, err := tr.TrackDate(ctx, date)
	require.NoError(t, err)

	c.commits = map[string]int{}
	_, err = tr.TrackDate(ctx, date)
	require.NoError(t, err)

	totals, err := store.DailyTotals(ctx, date, date)
	require.NoError(t, err)
	assert.Zero(t, totals[0].Commits)

	daily, err := store.ListStreaks(ctx, domain.StreakDaily)
	require.NoError(t, err)
	assert.Empty(t, daily)
}

func TestTrackDateReportsRejectedFacts(t *testing.T) {
	c := &stubCollector{
		repos:    repos("api", "broken"),
		commits:  map[string]int{"api": 1},
		negative: map[string]bool{"broken": true},
	}
	tr, _, _ := setup(t, c)

	result, err := tr.TrackDate(context.Background(), time.Date(2025, 1, 3, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Len(t, result.Repositories, 1)
	require.Len(t, result.Errors, 1)
	assert.Equal(t, "broken", result.Errors[0].Repo)
	assert.Equal(t, domain.ItemInvalid, result.Errors[0].Kind)
}
