package domain

import "time"

// DateLayout is the canonical calendar-day representation used in storage and APIs
const DateLayout = "2006-01-02"

// CommitFact is the activity of one repository on one calendar day.
// (Repo, Date) is the natural key.
type CommitFact struct {
	Repo         string    `json:"repo"`
	Date         time.Time `json:"date"`
	Commits      int       `json:"commits"`
	LinesAdded   int       `json:"lines_added"`
	LinesDeleted int       `json:"lines_deleted"`
	CollectedAt  time.Time `json:"collected_at"`
}

// DailyTotal is the summed commit count for one day across all repositories
type DailyTotal struct {
	Date    time.Time `json:"date"`
	Commits int64     `json:"commits"`
}

// UpsertResult tells whether an upsert created a new fact or replaced an existing one
type UpsertResult int

const (
	Inserted UpsertResult = iota + 1
	Replaced
)

func (r UpsertResult) String() string {
	switch r {
	case Inserted:
		return "inserted"
	case Replaced:
		return "replaced"
	default:
		return "unknown"
	}
}

// Day truncates t to midnight UTC of its calendar day
func Day(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// ParseDay parses a YYYY-MM-DD string into a UTC day
func ParseDay(s string) (time.Time, error) {
	return time.ParseInLocation(DateLayout, s, time.UTC)
}

// FormatDay formats a day as YYYY-MM-DD
func FormatDay(t time.Time) string {
	return t.Format(DateLayout)
}

// DaysBetween returns the number of calendar days from start to end (end - start)
func DaysBetween(start, end time.Time) int {
	return int(Day(end).Sub(Day(start)).Hours() / 24)
}

// DayRange returns every day in [start, end], oldest first
func DayRange(start, end time.Time) []time.Time {
	start, end = Day(start), Day(end)
	if end.Before(start) {
		return nil
	}
	days := make([]time.Time, 0, DaysBetween(start, end)+1)
	for d := start; !d.After(end); d = d.AddDate(0, 0, 1) {
		days = append(days, d)
	}
	return days
}
