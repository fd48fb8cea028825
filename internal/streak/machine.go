package streak

import (
	"time"

	"github.com/kurihiro0119/commit-streaks/internal/domain"
	apperrors "github.com/kurihiro0119/commit-streaks/internal/errors"
)

// Transition is what a single observation did to the state machine
type Transition int

const (
	None Transition = iota
	Started
	Extended
	Closed
	// ClosedAndStarted happens when a qualifying period follows a hole in the input
	ClosedAndStarted
)

// Machine tracks one streak kind over a chronological stream of periods.
// Periods are days for daily streaks and Monday-start weeks for weekly ones.
type Machine struct {
	kind      domain.StreakKind
	step      int // days between consecutive periods
	threshold int64

	records  []domain.StreakRecord
	active   int // index into records, -1 when no streak
	last     time.Time
	observed bool
}

// NewMachine creates a machine for kind. Periods with a total of at least
// threshold qualify; a threshold below 1 is treated as 1.
func NewMachine(kind domain.StreakKind, threshold int64) *Machine {
	if threshold < 1 {
		threshold = 1
	}
	step := 1
	if kind == domain.StreakWeekly {
		step = 7
	}
	return &Machine{kind: kind, step: step, threshold: threshold, active: -1}
}

// Observe applies the total for the period starting at date.
// Dates must be strictly increasing; a skipped period counts as a gap.
func (m *Machine) Observe(date time.Time, total int64) (Transition, error) {
	date = domain.Day(date)
	if m.observed && !date.After(m.last) {
		return None, apperrors.NewConsistencyViolation("%s streak input out of order: %s after %s",
			m.kind, domain.FormatDay(date), domain.FormatDay(m.last))
	}
	consecutive := m.observed && date.Equal(m.last.AddDate(0, 0, m.step))
	m.last, m.observed = date, true

	qualifying := total >= m.threshold
	closed := false
	if m.active >= 0 && (!qualifying || !consecutive) {
		m.close()
		closed = true
	}

	switch {
	case !qualifying && closed:
		return Closed, nil
	case !qualifying:
		return None, nil
	case m.active >= 0:
		r := &m.records[m.active]
		r.Length++
		r.LastDate = date
		return Extended, nil
	default:
		m.records = append(m.records, domain.StreakRecord{
			Kind:      m.kind,
			StartDate: date,
			LastDate:  date,
			Length:    1,
			Active:    true,
		})
		m.active = len(m.records) - 1
		if closed {
			return ClosedAndStarted, nil
		}
		return Started, nil
	}
}

func (m *Machine) close() {
	r := &m.records[m.active]
	end := r.LastDate
	r.EndDate = &end
	r.Active = false
	m.active = -1
}

// Current returns the active streak length, zero when there is none
func (m *Machine) Current() int {
	if m.active < 0 {
		return 0
	}
	return m.records[m.active].Length
}

// Records returns a copy of every record, oldest first
func (m *Machine) Records() []domain.StreakRecord {
	out := make([]domain.StreakRecord, len(m.records))
	copy(out, m.records)
	return out
}
