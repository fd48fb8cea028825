package streak

import (
	"time"

	"github.com/kurihiro0119/commit-streaks/internal/domain"
)

// Options configures streak derivation
type Options struct {
	// Threshold is the minimum daily total for a qualifying day; 0 means 1
	Threshold int64
}

// Replay derives daily streak records from a chronological daily-totals sequence
func Replay(totals []domain.DailyTotal, opts Options) ([]domain.StreakRecord, error) {
	m := NewMachine(domain.StreakDaily, opts.Threshold)
	for _, d := range totals {
		if _, err := m.Observe(d.Date, d.Commits); err != nil {
			return nil, err
		}
	}
	return m.Records(), nil
}

// ReplayWeekly derives weekly streak records. A week qualifies when it has at
// least one qualifying day; the week holding the last total only counts once
// it qualifies or is complete, so an unfinished week never closes a streak.
func ReplayWeekly(totals []domain.DailyTotal, opts Options) ([]domain.StreakRecord, error) {
	threshold := opts.Threshold
	if threshold < 1 {
		threshold = 1
	}

	type week struct {
		start      time.Time
		qualifying bool
	}
	var weeks []week
	for _, d := range totals {
		start := weekStart(d.Date)
		if len(weeks) == 0 || !weeks[len(weeks)-1].start.Equal(start) {
			weeks = append(weeks, week{start: start})
		}
		if d.Commits >= threshold {
			weeks[len(weeks)-1].qualifying = true
		}
	}

	if n := len(weeks); n > 0 {
		lastDay := domain.Day(totals[len(totals)-1].Date)
		w := weeks[n-1]
		if !w.qualifying && lastDay.Before(w.start.AddDate(0, 0, 6)) {
			weeks = weeks[:n-1]
		}
	}

	m := NewMachine(domain.StreakWeekly, 1)
	for _, w := range weeks {
		var total int64
		if w.qualifying {
			total = 1
		}
		if _, err := m.Observe(w.start, total); err != nil {
			return nil, err
		}
	}
	return m.Records(), nil
}

// weekStart returns the Monday of the week containing t
func weekStart(t time.Time) time.Time {
	t = domain.Day(t)
	weekday := int(t.Weekday())
	if weekday == 0 {
		weekday = 7
	}
	return t.AddDate(0, 0, -weekday+1)
}

// milestones are the targets shown as the next streak goal
var milestones = []int{7, 14, 21, 30, 50, 75, 100, 200, 365}

// beyondMilestones is the goal once every milestone is passed
const beyondMilestones = 1000

// NextMilestone returns the first milestone above current and the days left to reach it
func NextMilestone(current int) (int, int) {
	for _, m := range milestones {
		if m > current {
			return m, m - current
		}
	}
	return beyondMilestones, beyondMilestones - current
}

// Summarize builds the presentation view from daily and weekly records.
// ActiveToday is set when the active daily streak already includes today.
func Summarize(daily, weekly []domain.StreakRecord, today time.Time) domain.StreakSummary {
	var s domain.StreakSummary
	for _, r := range daily {
		if r.Length > s.Longest {
			s.Longest = r.Length
		}
		if r.Active {
			s.Current = r.Length
			s.ActiveToday = r.LastDate.Equal(domain.Day(today))
		}
	}
	for _, r := range weekly {
		if r.Active {
			s.CurrentWeekly = r.Length
		}
	}
	s.NextMilestone, s.DaysToMilestone = NextMilestone(s.Current)
	return s
}
