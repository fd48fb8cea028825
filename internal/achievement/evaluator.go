package achievement

import (
	"fmt"
	"strconv"
	"time"

	"github.com/kurihiro0119/commit-streaks/internal/domain"
)

const (
	weekWindow  = 7
	monthWindow = 30
)

// Day is one observation fed to the evaluator
type Day struct {
	Date       time.Time
	Commits    int64
	Qualifying bool
	// StreakLength is the active daily streak after this day was applied
	StreakLength int
	// StreakClosed is set when this day closed a streak
	StreakClosed bool
}

// Evaluator turns a chronological stream of days into achievement candidates.
// It is deterministic; deduplication by (type, milestone) is left to the store.
type Evaluator struct {
	thresholds Thresholds

	history   []bool // qualifying flags, newest last, capped at monthWindow
	hadStreak bool
	gap       int
}

// NewEvaluator creates an evaluator for the given table
func NewEvaluator(t Thresholds) *Evaluator {
	return &Evaluator{thresholds: t}
}

// Observe applies one day and returns the milestones it reaches
func (e *Evaluator) Observe(d Day) []domain.AchievementEvent {
	var events []domain.AchievementEvent
	date := domain.Day(d.Date)

	if d.StreakClosed {
		e.hadStreak = true
		e.gap = 0
	}

	if d.Qualifying && e.hadStreak && e.gap >= e.thresholds.ComebackGapDays {
		events = append(events, domain.AchievementEvent{
			Type:        domain.AchievementComeback,
			Milestone:   comebackMilestone(date),
			Message:     fmt.Sprintf("Back at it after %d days away", e.gap),
			TriggerDate: date,
			Snapshot:    domain.MetricSnapshot{GapDays: e.gap, DailyCommits: d.Commits},
		})
	}
	if d.Qualifying {
		e.gap = 0
	} else if e.hadStreak {
		e.gap++
	}

	for _, m := range e.thresholds.StreakDays {
		if d.StreakLength >= m {
			events = append(events, domain.AchievementEvent{
				Type:        domain.AchievementStreak,
				Milestone:   m,
				Message:     fmt.Sprintf("%d-day commit streak", m),
				TriggerDate: date,
				Snapshot:    domain.MetricSnapshot{StreakLength: d.StreakLength},
			})
		}
	}

	for _, m := range e.thresholds.DailyCommits {
		if d.Commits >= int64(m) {
			events = append(events, domain.AchievementEvent{
				Type:        domain.AchievementVolume,
				Milestone:   m,
				Message:     fmt.Sprintf("%d commits in a single day", m),
				TriggerDate: date,
				Snapshot:    domain.MetricSnapshot{DailyCommits: d.Commits},
			})
		}
	}

	e.history = append(e.history, d.Qualifying)
	if len(e.history) > monthWindow {
		e.history = e.history[len(e.history)-monthWindow:]
	}
	events = append(events, e.consistency(date, weekWindow, e.thresholds.WeeklyConsistency)...)
	events = append(events, e.consistency(date, monthWindow, e.thresholds.MonthlyConsistency)...)

	return events
}

// consistency checks the trailing window once it is fully observed.
// Weekly milestones use the value as is; monthly ones are offset by 1000 so both share the type.
func (e *Evaluator) consistency(date time.Time, window int, milestones []int) []domain.AchievementEvent {
	if len(e.history) < window || len(milestones) == 0 {
		return nil
	}
	active := 0
	for _, q := range e.history[len(e.history)-window:] {
		if q {
			active++
		}
	}
	percent := active * 100 / window

	var events []domain.AchievementEvent
	for _, m := range milestones {
		if percent < m {
			continue
		}
		snapshot := domain.MetricSnapshot{}
		milestone := m
		if window == weekWindow {
			snapshot.WeeklyConsistency = percent
		} else {
			snapshot.MonthlyConsistency = percent
			milestone += monthlyOffset
		}
		events = append(events, domain.AchievementEvent{
			Type:        domain.AchievementConsistency,
			Milestone:   milestone,
			Message:     fmt.Sprintf("Active on %d%% of the last %d days", m, window),
			TriggerDate: date,
			Snapshot:    snapshot,
		})
	}
	return events
}

// monthlyOffset separates monthly consistency milestones from weekly ones
const monthlyOffset = 1000

// comebackMilestone keys a comeback by its day so each one is recorded once
func comebackMilestone(d time.Time) int {
	v, _ := strconv.Atoi(d.Format("20060102"))
	return v
}
