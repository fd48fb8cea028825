package storage

import (
	"sync/atomic"
	"time"

	"github.com/kurihiro0119/commit-streaks/internal/domain"
	apperrors "github.com/kurihiro0119/commit-streaks/internal/errors"
)

// EpochCounter is a monotonically increasing write counter
type EpochCounter struct {
	v atomic.Uint64
}

// Current returns the current epoch
func (e *EpochCounter) Current() uint64 {
	return e.v.Load()
}

// Bump advances the epoch and returns the new value
func (e *EpochCounter) Bump() uint64 {
	return e.v.Add(1)
}

// ValidateFact checks the fact before it reaches the write path
func ValidateFact(fact *domain.CommitFact) error {
	if fact == nil {
		return apperrors.NewValidationError("fact is nil")
	}
	if fact.Repo == "" {
		return apperrors.NewValidationError("fact repository is empty")
	}
	if fact.Date.IsZero() {
		return apperrors.NewValidationError("fact date is empty")
	}
	if fact.Commits < 0 || fact.LinesAdded < 0 || fact.LinesDeleted < 0 {
		return apperrors.NewValidationError("fact counts must be non-negative (%s %s)", fact.Repo, domain.FormatDay(fact.Date))
	}
	return nil
}

// ValidateRange rejects ranges whose end is before start
func ValidateRange(start, end time.Time) error {
	if domain.Day(end).Before(domain.Day(start)) {
		return apperrors.NewValidationError("range end %s is before start %s", domain.FormatDay(end), domain.FormatDay(start))
	}
	return nil
}

// FillDailyTotals expands sparse per-day sums into one entry per day in [start, end]
func FillDailyTotals(start, end time.Time, sums map[string]int64) []domain.DailyTotal {
	days := domain.DayRange(start, end)
	totals := make([]domain.DailyTotal, 0, len(days))
	for _, d := range days {
		totals = append(totals, domain.DailyTotal{Date: d, Commits: sums[domain.FormatDay(d)]})
	}
	return totals
}

// ValidateStreaks enforces the single-active-record invariant for one kind
func ValidateStreaks(kind domain.StreakKind, records []domain.StreakRecord) error {
	active := 0
	for _, r := range records {
		if r.Kind != kind {
			return apperrors.NewConsistencyViolation("streak of kind %s stored under %s", r.Kind, kind)
		}
		if r.Active {
			active++
			if r.EndDate != nil {
				return apperrors.NewConsistencyViolation("active %s streak starting %s has an end date", kind, domain.FormatDay(r.StartDate))
			}
		} else if r.EndDate == nil {
			return apperrors.NewConsistencyViolation("closed %s streak starting %s has no end date", kind, domain.FormatDay(r.StartDate))
		}
	}
	if active > 1 {
		return apperrors.NewConsistencyViolation("%d active %s streaks found", active, kind)
	}
	return nil
}

// RecentAchievementDays is the window counted as recent in achievement stats
const RecentAchievementDays = 30
