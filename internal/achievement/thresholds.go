package achievement

import (
	"slices"

	apperrors "github.com/kurihiro0119/commit-streaks/internal/errors"
)

// Thresholds is the milestone table checked after every observed day
type Thresholds struct {
	// StreakDays are daily streak lengths
	StreakDays []int `yaml:"streak_days" json:"streak_days"`
	// DailyCommits are single-day commit totals
	DailyCommits []int `yaml:"daily_commits" json:"daily_commits"`
	// WeeklyConsistency are percentages of active days over the trailing 7 days
	WeeklyConsistency []int `yaml:"weekly_consistency" json:"weekly_consistency"`
	// MonthlyConsistency are percentages of active days over the trailing 30 days
	MonthlyConsistency []int `yaml:"monthly_consistency" json:"monthly_consistency"`
	// ComebackGapDays is the minimum gap after a closed streak that counts as a comeback
	ComebackGapDays int `yaml:"comeback_gap_days" json:"comeback_gap_days"`
}

// DefaultThresholds returns the built-in table
func DefaultThresholds() Thresholds {
	return Thresholds{
		StreakDays:         []int{3, 7, 14, 30, 60, 100},
		DailyCommits:       []int{5, 10, 20, 50},
		WeeklyConsistency:  []int{70, 100},
		MonthlyConsistency: []int{50, 80, 100},
		ComebackGapDays:    3,
	}
}

// Validate rejects non-positive or unordered milestones and impossible percentages
func (t Thresholds) Validate() error {
	for _, list := range []struct {
		name   string
		values []int
		max    int
	}{
		{"streak_days", t.StreakDays, 0},
		{"daily_commits", t.DailyCommits, 0},
		{"weekly_consistency", t.WeeklyConsistency, 100},
		{"monthly_consistency", t.MonthlyConsistency, 100},
	} {
		for i, v := range list.values {
			if v <= 0 {
				return apperrors.NewValidationError("%s milestones must be positive, got %d", list.name, v)
			}
			if list.max > 0 && v > list.max {
				return apperrors.NewValidationError("%s milestones must not exceed %d, got %d", list.name, list.max, v)
			}
			if i > 0 && v <= list.values[i-1] {
				return apperrors.NewValidationError("%s milestones must be strictly ascending", list.name)
			}
		}
	}
	if t.ComebackGapDays < 1 {
		return apperrors.NewValidationError("comeback_gap_days must be at least 1")
	}
	return nil
}

// Merge overlays the non-empty fields of o on t
func (t Thresholds) Merge(o Thresholds) Thresholds {
	if len(o.StreakDays) > 0 {
		t.StreakDays = slices.Clone(o.StreakDays)
	}
	if len(o.DailyCommits) > 0 {
		t.DailyCommits = slices.Clone(o.DailyCommits)
	}
	if len(o.WeeklyConsistency) > 0 {
		t.WeeklyConsistency = slices.Clone(o.WeeklyConsistency)
	}
	if len(o.MonthlyConsistency) > 0 {
		t.MonthlyConsistency = slices.Clone(o.MonthlyConsistency)
	}
	if o.ComebackGapDays > 0 {
		t.ComebackGapDays = o.ComebackGapDays
	}
	return t
}
