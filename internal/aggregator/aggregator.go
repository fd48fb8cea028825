package aggregator

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/kurihiro0119/commit-streaks/internal/domain"
	apperrors "github.com/kurihiro0119/commit-streaks/internal/errors"
	"github.com/kurihiro0119/commit-streaks/internal/metrics"
	"github.com/kurihiro0119/commit-streaks/internal/storage"
)

// maxCacheEntries caps the bucket cache; the whole cache is dropped when exceeded
const maxCacheEntries = 4096

// Aggregator defines the interface for rolling ledger facts into periods
type Aggregator interface {
	// GetBucket sums every fact in [start, end]
	GetBucket(ctx context.Context, g domain.Granularity, start, end time.Time) (*domain.Bucket, error)

	// GetSeries returns n consecutive periods ending at the reference day, most recent last
	GetSeries(ctx context.Context, g domain.Granularity, n int, opts SeriesOptions) ([]*domain.Bucket, error)

	// History returns a chart-ready series with per-point deltas and summary statistics
	History(ctx context.Context, g domain.Granularity, n int, opts SeriesOptions) (*domain.History, error)

	// Momentum compares the 7 days ending at ref with the 7 days before
	Momentum(ctx context.Context, ref time.Time) (*domain.Momentum, error)

	// HallOfFame returns personal records over the whole tracked range
	HallOfFame(ctx context.Context) (*domain.HallOfFame, error)

	// Heatmap returns zero-filled daily totals for the last days ending at ref
	Heatmap(ctx context.Context, ref time.Time, days int) ([]domain.DailyTotal, error)

	// Recommend picks a granularity from the number of days with data
	Recommend(ctx context.Context) (domain.Granularity, int, error)
}

// SeriesOptions tunes how periods are laid out
type SeriesOptions struct {
	// Reference is the last day of the series; zero means today
	Reference time.Time
	// CalendarWeeks aligns weeks to Monday instead of ending them on Reference
	CalendarWeeks bool
}

type bucketKey struct {
	granularity domain.Granularity
	start, end  string
}

type cacheEntry struct {
	epoch  uint64
	bucket domain.Bucket
}

// aggregator implements the Aggregator interface.
// Cached buckets are valid only while their epoch matches the ledger's.
type aggregator struct {
	ledger  storage.Ledger
	metrics *metrics.Metrics
	logger  *slog.Logger
	now     func() time.Time

	mu    sync.Mutex
	cache map[bucketKey]cacheEntry
}

// NewAggregator creates a new aggregator
func NewAggregator(ledger storage.Ledger, m *metrics.Metrics, logger *slog.Logger) Aggregator {
	if logger == nil {
		logger = slog.Default()
	}
	return &aggregator{
		ledger:  ledger,
		metrics: m,
		logger:  logger.With("component", "aggregator"),
		now:     time.Now,
		cache:   make(map[bucketKey]cacheEntry),
	}
}

func (a *aggregator) reference(opts SeriesOptions) time.Time {
	if opts.Reference.IsZero() {
		return domain.Day(a.now())
	}
	return domain.Day(opts.Reference)
}

// GetBucket sums every fact in [start, end]
func (a *aggregator) GetBucket(ctx context.Context, g domain.Granularity, start, end time.Time) (*domain.Bucket, error) {
	if !g.Valid() {
		return nil, apperrors.NewValidationError("unknown granularity %q", g)
	}
	if err := storage.ValidateRange(start, end); err != nil {
		return nil, err
	}
	start, end = domain.Day(start), domain.Day(end)
	key := bucketKey{granularity: g, start: domain.FormatDay(start), end: domain.FormatDay(end)}

	// read the epoch before computing so a concurrent write leaves the entry stale
	epoch := a.ledger.Epoch()

	a.mu.Lock()
	entry, ok := a.cache[key]
	a.mu.Unlock()
	if ok && entry.epoch == epoch {
		a.metrics.CacheHit()
		b := entry.bucket
		return &b, nil
	}
	a.metrics.CacheMiss()

	bucket, err := a.computeBucket(ctx, g, start, end)
	if err != nil {
		return nil, err
	}

	a.mu.Lock()
	if len(a.cache) >= maxCacheEntries {
		a.cache = make(map[bucketKey]cacheEntry)
	}
	a.cache[key] = cacheEntry{epoch: epoch, bucket: *bucket}
	a.mu.Unlock()

	return bucket, nil
}

func (a *aggregator) computeBucket(ctx context.Context, g domain.Granularity, start, end time.Time) (*domain.Bucket, error) {
	bucket := &domain.Bucket{
		Granularity: g,
		PeriodStart: start,
		PeriodEnd:   end,
		Label:       periodLabel(g, start, false),
	}

	active := make(map[string]struct{})
	for fact, err := range a.ledger.QueryRange(ctx, start, end) {
		if err != nil {
			return nil, err
		}
		bucket.TotalCommits += int64(fact.Commits)
		bucket.TotalLinesAdded += int64(fact.LinesAdded)
		bucket.TotalLinesDeleted += int64(fact.LinesDeleted)
		if fact.Commits > 0 {
			active[fact.Repo] = struct{}{}
		}
	}
	bucket.ReposActive = len(active)

	return bucket, nil
}

// GetSeries returns n consecutive periods ending at the reference day, most recent last
func (a *aggregator) GetSeries(ctx context.Context, g domain.Granularity, n int, opts SeriesOptions) ([]*domain.Bucket, error) {
	if n <= 0 {
		n = defaultPeriods(g)
	}
	if n > MaxPeriods {
		return nil, apperrors.NewValidationError("at most %d periods can be requested", MaxPeriods)
	}
	return a.series(ctx, g, n, opts)
}

func (a *aggregator) series(ctx context.Context, g domain.Granularity, n int, opts SeriesOptions) ([]*domain.Bucket, error) {
	if !g.Valid() {
		return nil, apperrors.NewValidationError("unknown granularity %q", g)
	}
	ref := a.reference(opts)

	buckets := make([]*domain.Bucket, 0, n)
	for back := n - 1; back >= 0; back-- {
		start, end := periodBounds(g, ref, back, opts.CalendarWeeks)
		b, err := a.GetBucket(ctx, g, start, end)
		if err != nil {
			return nil, err
		}
		b.Label = periodLabel(g, start, opts.CalendarWeeks)
		buckets = append(buckets, b)
	}
	return buckets, nil
}

// History returns a chart-ready series with per-point deltas and summary statistics.
// One extra leading period is fetched so the oldest point also has a delta.
func (a *aggregator) History(ctx context.Context, g domain.Granularity, n int, opts SeriesOptions) (*domain.History, error) {
	if n <= 0 {
		n = defaultPeriods(g)
	}
	if n > MaxPeriods {
		return nil, apperrors.NewValidationError("at most %d periods can be requested", MaxPeriods)
	}

	buckets, err := a.series(ctx, g, n+1, opts)
	if err != nil {
		return nil, err
	}

	first, _, tracked, err := a.ledger.TrackedRange(ctx)
	if err != nil {
		return nil, err
	}

	points := make([]domain.SeriesPoint, 0, n)
	for i := 1; i < len(buckets); i++ {
		prev, cur := buckets[i-1], buckets[i]
		points = append(points, domain.SeriesPoint{
			Label:        cur.Label,
			PeriodStart:  cur.PeriodStart,
			PeriodEnd:    cur.PeriodEnd,
			Total:        cur.TotalCommits,
			DeltaPercent: Trend(prev.TotalCommits, cur.TotalCommits),
		})
	}

	return &domain.History{
		Points:  points,
		Summary: Summarize(g, buckets[1:], first, tracked),
	}, nil
}

// Summarize computes total, peak, average and trend for a series.
// The average only counts periods that end on or after the tracking start.
func Summarize(g domain.Granularity, buckets []*domain.Bucket, trackingStart time.Time, tracked bool) domain.SeriesSummary {
	summary := domain.SeriesSummary{Granularity: g, Direction: domain.TrendStable}
	if len(buckets) == 0 {
		return summary
	}

	values := make([]int64, len(buckets))
	var eligibleTotal int64
	eligible := 0
	for i, b := range buckets {
		values[i] = b.TotalCommits
		summary.Total += b.TotalCommits
		if b.TotalCommits > summary.Peak {
			summary.Peak = b.TotalCommits
		}
		if tracked && !b.PeriodEnd.Before(domain.Day(trackingStart)) {
			eligibleTotal += b.TotalCommits
			eligible++
		}
	}
	if eligible > 0 {
		summary.Average = float64(eligibleTotal) / float64(eligible)
	}

	summary.TrendPercent = SeriesTrend(values)
	summary.Direction = Direction(summary.TrendPercent)
	summary.RangeLabel = rangeLabel(buckets[0].PeriodStart, buckets[len(buckets)-1].PeriodEnd)
	return summary
}

// Recommend picks a granularity from the number of days with data
func (a *aggregator) Recommend(ctx context.Context) (domain.Granularity, int, error) {
	days, err := a.ledger.DaysWithData(ctx)
	if err != nil {
		return "", 0, err
	}
	return RecommendGranularity(days), days, nil
}
