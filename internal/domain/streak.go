package domain

import "time"

// StreakKind is the cadence a streak is measured in
type StreakKind string

const (
	StreakDaily  StreakKind = "daily"
	StreakWeekly StreakKind = "weekly"
)

// StreakRecord is one run of consecutive qualifying periods.
// An active record has a nil EndDate; at most one record per kind is active.
type StreakRecord struct {
	Kind      StreakKind `json:"kind"`
	StartDate time.Time  `json:"start_date"`
	EndDate   *time.Time `json:"end_date,omitempty"`
	// LastDate is the last qualifying day, kept for active records too
	LastDate time.Time `json:"last_date"`
	Length   int       `json:"length"`
	Active   bool      `json:"active"`
}

// StreakSummary is the presentation view of streak state
type StreakSummary struct {
	Current         int  `json:"current"`
	Longest         int  `json:"longest"`
	CurrentWeekly   int  `json:"current_weekly"`
	NextMilestone   int  `json:"next_milestone"`
	DaysToMilestone int  `json:"days_to_milestone"`
	ActiveToday     bool `json:"active_today"`
}
