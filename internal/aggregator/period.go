package aggregator

import (
	"fmt"
	"time"

	"github.com/kurihiro0119/commit-streaks/internal/domain"
)

// Default series lengths when the caller passes zero
const (
	DefaultDailyPeriods   = 90
	DefaultWeeklyPeriods  = 13
	DefaultMonthlyPeriods = 3

	// MaxPeriods bounds a single series request
	MaxPeriods = 730
)

// defaultPeriods returns the default series length for a granularity
func defaultPeriods(g domain.Granularity) int {
	switch g {
	case domain.GranularityWeek:
		return DefaultWeeklyPeriods
	case domain.GranularityMonth:
		return DefaultMonthlyPeriods
	default:
		return DefaultDailyPeriods
	}
}

// truncateTime returns the start of the calendar period containing t.
// Weeks start on Monday.
func truncateTime(t time.Time, g domain.Granularity) time.Time {
	t = domain.Day(t)
	switch g {
	case domain.GranularityWeek:
		weekday := int(t.Weekday())
		if weekday == 0 {
			weekday = 7
		}
		return t.AddDate(0, 0, -weekday+1)
	case domain.GranularityMonth:
		return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
	default:
		return t
	}
}

// getNextPeriod returns the start of the calendar period after the one starting at t
func getNextPeriod(t time.Time, g domain.Granularity) time.Time {
	switch g {
	case domain.GranularityWeek:
		return t.AddDate(0, 0, 7)
	case domain.GranularityMonth:
		return t.AddDate(0, 1, 0)
	default:
		return t.AddDate(0, 0, 1)
	}
}

// periodBounds returns the inclusive window that lies `back` periods before the
// one containing ref. Rolling weeks end on ref; calendar weeks and months are
// clipped to ref so the current period never reaches into the future.
func periodBounds(g domain.Granularity, ref time.Time, back int, calendarWeeks bool) (time.Time, time.Time) {
	ref = domain.Day(ref)
	switch g {
	case domain.GranularityWeek:
		if !calendarWeeks {
			end := ref.AddDate(0, 0, -7*back)
			return end.AddDate(0, 0, -6), end
		}
		start := truncateTime(ref, g).AddDate(0, 0, -7*back)
		return start, clip(getNextPeriod(start, g).AddDate(0, 0, -1), ref)
	case domain.GranularityMonth:
		start := truncateTime(ref, g).AddDate(0, -back, 0)
		return start, clip(getNextPeriod(start, g).AddDate(0, 0, -1), ref)
	default:
		d := ref.AddDate(0, 0, -back)
		return d, d
	}
}

func clip(end, ref time.Time) time.Time {
	if end.After(ref) {
		return ref
	}
	return end
}

// periodLabel renders the chart label of a period
func periodLabel(g domain.Granularity, start time.Time, calendarWeeks bool) string {
	switch g {
	case domain.GranularityWeek:
		if calendarWeeks {
			year, week := start.ISOWeek()
			return fmt.Sprintf("%d-W%02d", year, week)
		}
		return start.Format("Jan 02")
	case domain.GranularityMonth:
		return start.Format("Jan 2006")
	default:
		return start.Format("Jan 02")
	}
}

// rangeLabel renders the span covered by a series
func rangeLabel(start, end time.Time) string {
	if start.Year() == end.Year() {
		return fmt.Sprintf("%s - %s", start.Format("Jan 02"), end.Format("Jan 02, 2006"))
	}
	return fmt.Sprintf("%s - %s", start.Format("Jan 02, 2006"), end.Format("Jan 02, 2006"))
}
