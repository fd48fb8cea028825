package aggregator

import (
	"context"
	"iter"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kurihiro0119/commit-streaks/internal/domain"
	apperrors "github.com/kurihiro0119/commit-streaks/internal/errors"
	"github.com/kurihiro0119/commit-streaks/internal/storage"
	"github.com/kurihiro0119/commit-streaks/internal/storage/sqlite"
)

// countingLedger counts range scans so cache hits can be observed
type countingLedger struct {
	storage.Ledger
	scans atomic.Int32
}

func (c *countingLedger) QueryRange(ctx context.Context, start, end time.Time) iter.Seq2[*domain.CommitFact, error] {
	c.scans.Add(1)
	return c.Ledger.QueryRange(ctx, start, end)
}

func day(t *testing.T, s string) time.Time {
	t.Helper()
	d, err := domain.ParseDay(s)
	require.NoError(t, err)
	return d
}

func newLedger(t *testing.T) storage.Storage {
	t.Helper()
	s, err := sqlite.NewSQLiteStorage(filepath.Join(t.TempDir(), "ledger.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func put(t *testing.T, s storage.Ledger, repo, date string, commits, added, deleted int) {
	t.Helper()
	_, err := s.Upsert(context.Background(), &domain.CommitFact{
		Repo: repo, Date: day(t, date), Commits: commits, LinesAdded: added, LinesDeleted: deleted,
	})
	require.NoError(t, err)
}

func TestBucketMatchesDailyTotals(t *testing.T) {
	ctx := context.Background()
	s := newLedger(t)
	for i := 1; i <= 20; i++ {
		d := day(t, "2025-01-01").AddDate(0, 0, i-1)
		put(t, s, "api", domain.FormatDay(d), i%4, i*10, i)
		if i%3 == 0 {
			put(t, s, "web", domain.FormatDay(d), 2, 5, 5)
		}
	}
	agg := NewAggregator(s, nil, nil)

	for _, tc := range []struct {
		g          domain.Granularity
		start, end string
	}{
		{domain.GranularityDay, "2025-01-06", "2025-01-06"},
		{domain.GranularityWeek, "2025-01-09", "2025-01-15"},
		{domain.GranularityMonth, "2025-01-01", "2025-01-31"},
	} {
		b, err := agg.GetBucket(ctx, tc.g, day(t, tc.start), day(t, tc.end))
		require.NoError(t, err)

		totals, err := s.DailyTotals(ctx, day(t, tc.start), day(t, tc.end))
		require.NoError(t, err)
		var sum int64
		for _, d := range totals {
			sum += d.Commits
		}
		assert.Equal(t, sum, b.TotalCommits, "granularity %s", tc.g)
	}

	b, err := agg.GetBucket(ctx, domain.GranularityWeek, day(t, "2025-01-01"), day(t, "2025-01-07"))
	require.NoError(t, err)
	assert.Equal(t, 2, b.ReposActive)
	assert.Equal(t, int64(10+20+30+40+50+60+70+10), b.TotalLinesAdded)
}

func TestGetBucketValidation(t *testing.T) {
	agg := NewAggregator(newLedger(t), nil, nil)
	_, err := agg.GetBucket(context.Background(), "year", day(t, "2025-01-01"), day(t, "2025-01-02"))
	assert.True(t, apperrors.IsValidation(err))

	_, err = agg.GetBucket(context.Background(), domain.GranularityDay, day(t, "2025-01-02"), day(t, "2025-01-01"))
	assert.True(t, apperrors.IsValidation(err))
}

func TestCacheIsInvalidatedByEpoch(t *testing.T) {
	ctx := context.Background()
	s := newLedger(t)
	put(t, s, "api", "2025-01-01", 2, 0, 0)
	ledger := &countingLedger{Ledger: s}
	agg := NewAggregator(ledger, nil, nil)

	b, err := agg.GetBucket(ctx, domain.GranularityDay, day(t, "2025-01-01"), day(t, "2025-01-01"))
	require.NoError(t, err)
	assert.Equal(t, int64(2), b.TotalCommits)

	_, err = agg.GetBucket(ctx, domain.GranularityDay, day(t, "2025-01-01"), day(t, "2025-01-01"))
	require.NoError(t, err)
	assert.Equal(t, int32(1), ledger.scans.Load())

	// a write anywhere bumps the epoch
	put(t, s, "api", "2025-01-01", 7, 0, 0)

	b, err = agg.GetBucket(ctx, domain.GranularityDay, day(t, "2025-01-01"), day(t, "2025-01-01"))
	require.NoError(t, err)
	assert.Equal(t, int64(7), b.TotalCommits)
	assert.Equal(t, int32(2), ledger.scans.Load())
}

func TestGetSeriesRollingWeeks(t *testing.T) {
	ctx := context.Background()
	s := newLedger(t)
	put(t, s, "api", "2025-01-07", 3, 0, 0)
	put(t, s, "api", "2025-01-08", 4, 0, 0)
	put(t, s, "api", "2025-01-21", 5, 0, 0)
	agg := NewAggregator(s, nil, nil)

	series, err := agg.GetSeries(ctx, domain.GranularityWeek, 3, SeriesOptions{Reference: day(t, "2025-01-21")})
	require.NoError(t, err)
	require.Len(t, series, 3)

	assert.Equal(t, day(t, "2025-01-01"), series[0].PeriodStart)
	assert.Equal(t, day(t, "2025-01-07"), series[0].PeriodEnd)
	assert.Equal(t, day(t, "2025-01-15"), series[2].PeriodStart)
	assert.Equal(t, day(t, "2025-01-21"), series[2].PeriodEnd)
	assert.Equal(t, []int64{3, 4, 5}, []int64{series[0].TotalCommits, series[1].TotalCommits, series[2].TotalCommits})
	assert.Equal(t, "Jan 15", series[2].Label)
}

func TestGetSeriesCalendarWeeksAndMonths(t *testing.T) {
	ctx := context.Background()
	s := newLedger(t)
	put(t, s, "api", "2025-01-13", 1, 0, 0)
	put(t, s, "api", "2025-01-31", 2, 0, 0)
	put(t, s, "api", "2025-02-10", 4, 0, 0)
	put(t, s, "api", "2025-02-11", 8, 0, 0)
	agg := NewAggregator(s, nil, nil)

	weeks, err := agg.GetSeries(ctx, domain.GranularityWeek, 1, SeriesOptions{Reference: day(t, "2025-01-15"), CalendarWeeks: true})
	require.NoError(t, err)
	require.Len(t, weeks, 1)
	assert.Equal(t, "2025-W03", weeks[0].Label)
	assert.Equal(t, day(t, "2025-01-13"), weeks[0].PeriodStart)
	assert.Equal(t, day(t, "2025-01-15"), weeks[0].PeriodEnd)

	months, err := agg.GetSeries(ctx, domain.GranularityMonth, 2, SeriesOptions{Reference: day(t, "2025-02-10")})
	require.NoError(t, err)
	require.Len(t, months, 2)
	assert.Equal(t, "Jan 2025", months[0].Label)
	assert.Equal(t, day(t, "2025-01-31"), months[0].PeriodEnd)
	assert.Equal(t, int64(3), months[0].TotalCommits)
	assert.Equal(t, "Feb 2025", months[1].Label)
	assert.Equal(t, day(t, "2025-02-10"), months[1].PeriodEnd)
	assert.Equal(t, int64(4), months[1].TotalCommits)
}

func TestGetSeriesRejectsTooManyPeriods(t *testing.T) {
	agg := NewAggregator(newLedger(t), nil, nil)
	_, err := agg.GetSeries(context.Background(), domain.GranularityDay, MaxPeriods+1, SeriesOptions{})
	assert.True(t, apperrors.IsValidation(err))
}

func TestHistoryDeltasAndAverage(t *testing.T) {
	ctx := context.Background()
	s := newLedger(t)
	put(t, s, "api", "2025-01-10", 2, 0, 0)
	put(t, s, "api", "2025-01-11", 4, 0, 0)
	put(t, s, "api", "2025-01-12", 0, 0, 0)
	agg := NewAggregator(s, nil, nil)

	h, err := agg.History(ctx, domain.GranularityDay, 5, SeriesOptions{Reference: day(t, "2025-01-12")})
	require.NoError(t, err)
	require.Len(t, h.Points, 5)

	assert.Equal(t, "Jan 08", h.Points[0].Label)
	deltas := make([]float64, len(h.Points))
	for i, p := range h.Points {
		deltas[i] = p.DeltaPercent
	}
	assert.Equal(t, []float64{0, 0, 100, 100, -100}, deltas)

	assert.Equal(t, int64(6), h.Summary.Total)
	assert.Equal(t, int64(4), h.Summary.Peak)
	// only Jan 10-12 are on or after the tracking start
	assert.InDelta(t, 2.0, h.Summary.Average, 1e-9)
	assert.Equal(t, domain.TrendUp, h.Summary.Direction)
	assert.Equal(t, "Jan 08 - Jan 12, 2025", h.Summary.RangeLabel)
}

func TestHistoryDefaultsPeriods(t *testing.T) {
	agg := NewAggregator(newLedger(t), nil, nil)
	h, err := agg.History(context.Background(), domain.GranularityWeek, 0, SeriesOptions{Reference: day(t, "2025-06-01")})
	require.NoError(t, err)
	assert.Len(t, h.Points, DefaultWeeklyPeriods)
	assert.Zero(t, h.Summary.Average)
}

func TestTrendEdgeCases(t *testing.T) {
	assert.Equal(t, 100.0, Trend(0, 5))
	assert.Equal(t, 0.0, Trend(0, 0))
	assert.Equal(t, -50.0, Trend(10, 5))
	assert.Equal(t, 50.0, Trend(10, 15))

	assert.Equal(t, domain.TrendUp, Direction(10.5))
	assert.Equal(t, domain.TrendStable, Direction(10))
	assert.Equal(t, domain.TrendStable, Direction(-10))
	assert.Equal(t, domain.TrendDown, Direction(-10.5))

	assert.Equal(t, 0.0, SeriesTrend([]int64{7}))
	assert.Equal(t, 100.0, SeriesTrend([]int64{2, 2, 4, 4}))
}

func TestRenderSeries(t *testing.T) {
	bars, err := RenderSeries([]int64{0, 5, 10, 3}, []string{"a", "b", "c", "d"}, 8)
	require.NoError(t, err)
	heights := []int{bars[0].Height, bars[1].Height, bars[2].Height, bars[3].Height}
	assert.Equal(t, []int{0, 4, 8, 2}, heights)
	assert.Equal(t, "c", bars[2].Label)

	bars, err = RenderSeries([]int64{0, 0}, []string{"a", "b"}, 8)
	require.NoError(t, err)
	assert.Equal(t, 0, bars[0].Height)
	assert.Equal(t, 0, bars[1].Height)

	_, err = RenderSeries([]int64{1}, nil, 8)
	assert.True(t, apperrors.IsValidation(err))
}

func TestRecommendGranularity(t *testing.T) {
	assert.Equal(t, domain.GranularityDay, RecommendGranularity(0))
	assert.Equal(t, domain.GranularityDay, RecommendGranularity(13))
	assert.Equal(t, domain.GranularityWeek, RecommendGranularity(14))
	assert.Equal(t, domain.GranularityWeek, RecommendGranularity(59))
	assert.Equal(t, domain.GranularityMonth, RecommendGranularity(60))
}

func TestMomentum(t *testing.T) {
	ctx := context.Background()
	s := newLedger(t)
	for i := 0; i < 7; i++ {
		put(t, s, "api", domain.FormatDay(day(t, "2025-01-08").AddDate(0, 0, i)), 8, 0, 0)
	}
	agg := NewAggregator(s, nil, nil)

	m, err := agg.Momentum(ctx, day(t, "2025-01-14"))
	require.NoError(t, err)
	assert.Equal(t, int64(56), m.ThisWeek)
	assert.Equal(t, int64(0), m.LastWeek)
	assert.Equal(t, 100.0, m.WeekOverWeek)
	assert.Equal(t, 7, m.ConsistencyScore)
	assert.InDelta(t, 8.0, m.AverageDaily, 1e-9)
	assert.Equal(t, domain.PerformanceLegendary, m.Level)
	assert.Len(t, m.DailyTrend, 7)

	m, err = agg.Momentum(ctx, day(t, "2025-01-21"))
	require.NoError(t, err)
	assert.Equal(t, int64(0), m.ThisWeek)
	assert.Equal(t, -100.0, m.WeekOverWeek)
	assert.Equal(t, domain.PerformanceStarting, m.Level)
}

func TestHallOfFame(t *testing.T) {
	ctx := context.Background()
	s := newLedger(t)
	agg := NewAggregator(s, nil, nil)

	hof, err := agg.HallOfFame(ctx)
	require.NoError(t, err)
	assert.Zero(t, hof.BestDayCommits.Value)

	put(t, s, "api", "2025-01-01", 3, 100, 20)
	put(t, s, "web", "2025-01-01", 2, 10, 0)
	put(t, s, "api", "2025-01-05", 6, 5, 5)
	put(t, s, "api", "2025-01-20", 6, 500, 0)

	hof, err = agg.HallOfFame(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(6), hof.BestDayCommits.Value)
	assert.Equal(t, day(t, "2025-01-05"), hof.BestDayCommits.Date)
	assert.Equal(t, int64(500), hof.BestDayLines.Value)
	assert.Equal(t, day(t, "2025-01-20"), hof.BestDayLines.Date)
	assert.Equal(t, int64(11), hof.BestWeek.Value)
	assert.Equal(t, day(t, "2025-01-05"), hof.BestWeek.Date)
}

func TestHeatmap(t *testing.T) {
	s := newLedger(t)
	put(t, s, "api", "2025-01-03", 1, 0, 0)
	agg := NewAggregator(s, nil, nil)

	cells, err := agg.Heatmap(context.Background(), day(t, "2025-01-05"), 5)
	require.NoError(t, err)
	require.Len(t, cells, 5)
	assert.Equal(t, int64(1), cells[2].Commits)

	_, err = agg.Heatmap(context.Background(), day(t, "2025-01-05"), 0)
	assert.True(t, apperrors.IsValidation(err))
}
