package aggregator

import (
	"github.com/kurihiro0119/commit-streaks/internal/domain"
	apperrors "github.com/kurihiro0119/commit-streaks/internal/errors"
)

// trendThreshold is the percentage beyond which a trend stops being stable
const trendThreshold = 10.0

// Trend returns the percentage change from previous to current.
// A zero previous total yields +100 when current is non-zero and 0 otherwise.
func Trend(previous, current int64) float64 {
	return trendOf(float64(previous), float64(current))
}

func trendOf(previous, current float64) float64 {
	if previous == 0 {
		if current > 0 {
			return 100
		}
		return 0
	}
	return (current - previous) / previous * 100
}

// Direction classifies a trend percentage
func Direction(percent float64) domain.TrendDirection {
	switch {
	case percent > trendThreshold:
		return domain.TrendUp
	case percent < -trendThreshold:
		return domain.TrendDown
	default:
		return domain.TrendStable
	}
}

// SeriesTrend compares the mean of the second half of values with the mean of the first half
func SeriesTrend(values []int64) float64 {
	if len(values) < 2 {
		return 0
	}
	mid := len(values) / 2
	return trendOf(mean(values[:mid]), mean(values[mid:]))
}

func mean(values []int64) float64 {
	if len(values) == 0 {
		return 0
	}
	var sum int64
	for _, v := range values {
		sum += v
	}
	return float64(sum) / float64(len(values))
}

// RenderSeries scales values into bar heights of at most maxHeight
func RenderSeries(values []int64, labels []string, maxHeight int) ([]domain.Bar, error) {
	if len(values) != len(labels) {
		return nil, apperrors.NewValidationError("got %d values but %d labels", len(values), len(labels))
	}
	if maxHeight < 0 {
		return nil, apperrors.NewValidationError("max height must be non-negative")
	}

	var peak int64 = 1
	for _, v := range values {
		if v > peak {
			peak = v
		}
	}

	bars := make([]domain.Bar, len(values))
	for i, v := range values {
		height := 0
		if v > 0 {
			height = int(v * int64(maxHeight) / peak)
		}
		bars[i] = domain.Bar{Label: labels[i], Value: v, Height: height}
	}
	return bars, nil
}

// RecommendGranularity picks a chart granularity from the number of days with data
func RecommendGranularity(daysWithData int) domain.Granularity {
	switch {
	case daysWithData < 14:
		return domain.GranularityDay
	case daysWithData < 60:
		return domain.GranularityWeek
	default:
		return domain.GranularityMonth
	}
}
