package domain

import "time"

// AchievementType is the closed taxonomy of achievements
type AchievementType string

const (
	AchievementStreak      AchievementType = "streak_milestone"
	AchievementVolume      AchievementType = "volume_milestone"
	AchievementConsistency AchievementType = "consistency_milestone"
	AchievementComeback    AchievementType = "comeback"
)

// AchievementTypes lists every type in display order
var AchievementTypes = []AchievementType{
	AchievementStreak,
	AchievementVolume,
	AchievementConsistency,
	AchievementComeback,
}

// Valid reports whether t belongs to the taxonomy
func (t AchievementType) Valid() bool {
	switch t {
	case AchievementStreak, AchievementVolume, AchievementConsistency, AchievementComeback:
		return true
	}
	return false
}

// MetricSnapshot captures the metrics that triggered an achievement
type MetricSnapshot struct {
	StreakLength       int   `json:"streak_length,omitempty"`
	DailyCommits       int64 `json:"daily_commits,omitempty"`
	WeeklyConsistency  int   `json:"weekly_consistency,omitempty"`
	MonthlyConsistency int   `json:"monthly_consistency,omitempty"`
	GapDays            int   `json:"gap_days,omitempty"`
}

// AchievementEvent is a write-once log entry, unique by (Type, Milestone)
type AchievementEvent struct {
	ID          string          `json:"id"`
	Type        AchievementType `json:"type"`
	Milestone   int             `json:"milestone"`
	Message     string          `json:"message"`
	TriggerDate time.Time       `json:"trigger_date"`
	Snapshot    MetricSnapshot  `json:"snapshot"`
	CreatedAt   time.Time       `json:"created_at"`
}

// AchievementStats summarizes the achievement log
type AchievementStats struct {
	Total  int                     `json:"total"`
	ByType map[AchievementType]int `json:"by_type"`
	Recent int                     `json:"recent"`
}
