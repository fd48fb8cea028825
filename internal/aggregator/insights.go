package aggregator

import (
	"context"
	"time"

	"github.com/kurihiro0119/commit-streaks/internal/domain"
	apperrors "github.com/kurihiro0119/commit-streaks/internal/errors"
)

const momentumDays = 7

// performance thresholds: weekly commits, active days out of 7, daily average
var performanceLevels = []struct {
	level       domain.PerformanceLevel
	weekCommits int64
	activeDays  int
	dailyAvg    float64
}{
	{domain.PerformanceLegendary, 50, 6, 7},
	{domain.PerformanceCrushing, 25, 5, 4},
	{domain.PerformanceBuilding, 10, 3, 2},
}

// Momentum compares the 7 days ending at ref with the 7 days before
func (a *aggregator) Momentum(ctx context.Context, ref time.Time) (*domain.Momentum, error) {
	if ref.IsZero() {
		ref = a.now()
	}
	ref = domain.Day(ref)

	totals, err := a.ledger.DailyTotals(ctx, ref.AddDate(0, 0, -2*momentumDays+1), ref)
	if err != nil {
		return nil, err
	}

	m := &domain.Momentum{DailyTrend: make([]int64, 0, momentumDays)}
	for i, d := range totals {
		if i < momentumDays {
			m.LastWeek += d.Commits
			continue
		}
		m.ThisWeek += d.Commits
		m.DailyTrend = append(m.DailyTrend, d.Commits)
		if d.Commits > 0 {
			m.ConsistencyScore++
		}
	}
	m.WeekOverWeek = Trend(m.LastWeek, m.ThisWeek)
	m.AverageDaily = float64(m.ThisWeek) / momentumDays
	m.Level = categorize(m.ThisWeek, m.ConsistencyScore, m.AverageDaily)

	return m, nil
}

func categorize(week int64, activeDays int, dailyAvg float64) domain.PerformanceLevel {
	for _, p := range performanceLevels {
		if week >= p.weekCommits && activeDays >= p.activeDays && dailyAvg >= p.dailyAvg {
			return p.level
		}
	}
	return domain.PerformanceStarting
}

// HallOfFame returns personal records over the whole tracked range.
// Ties keep the earliest day.
func (a *aggregator) HallOfFame(ctx context.Context) (*domain.HallOfFame, error) {
	hof := &domain.HallOfFame{}

	first, last, ok, err := a.ledger.TrackedRange(ctx)
	if err != nil {
		return nil, err
	}
	if !ok {
		return hof, nil
	}

	n := domain.DaysBetween(first, last) + 1
	commits := make([]int64, n)
	lines := make([]int64, n)
	for fact, err := range a.ledger.QueryRange(ctx, first, last) {
		if err != nil {
			return nil, err
		}
		i := domain.DaysBetween(first, fact.Date)
		commits[i] += int64(fact.Commits)
		lines[i] += int64(fact.LinesAdded + fact.LinesDeleted)
	}

	var window int64
	for i := 0; i < n; i++ {
		day := first.AddDate(0, 0, i)
		if commits[i] > hof.BestDayCommits.Value {
			hof.BestDayCommits = domain.PersonalRecord{Value: commits[i], Date: day}
		}
		if lines[i] > hof.BestDayLines.Value {
			hof.BestDayLines = domain.PersonalRecord{Value: lines[i], Date: day}
		}

		window += commits[i]
		if i >= momentumDays {
			window -= commits[i-momentumDays]
		}
		if window > hof.BestWeek.Value {
			hof.BestWeek = domain.PersonalRecord{Value: window, Date: day}
		}
	}

	return hof, nil
}

// Heatmap returns zero-filled daily totals for the last days ending at ref
func (a *aggregator) Heatmap(ctx context.Context, ref time.Time, days int) ([]domain.DailyTotal, error) {
	if days <= 0 || days > MaxPeriods {
		return nil, apperrors.NewValidationError("heatmap days must be between 1 and %d", MaxPeriods)
	}
	if ref.IsZero() {
		ref = a.now()
	}
	ref = domain.Day(ref)
	return a.ledger.DailyTotals(ctx, ref.AddDate(0, 0, -days+1), ref)
}
