package storage_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kurihiro0119/commit-streaks/internal/domain"
	apperrors "github.com/kurihiro0119/commit-streaks/internal/errors"
	"github.com/kurihiro0119/commit-streaks/internal/storage"
)

func day(s string) time.Time {
	d, err := domain.ParseDay(s)
	if err != nil {
		panic(err)
	}
	return d
}

func TestFillDailyTotalsIsExplicit(t *testing.T) {
	totals := storage.FillDailyTotals(day("2025-01-01"), day("2025-01-05"), map[string]int64{
		"2025-01-02": 3,
		"2025-01-05": 1,
	})

	require.Len(t, totals, 5)
	assert.Equal(t, []int64{0, 3, 0, 0, 1}, []int64{
		totals[0].Commits, totals[1].Commits, totals[2].Commits, totals[3].Commits, totals[4].Commits,
	})
	assert.Equal(t, day("2025-01-03"), totals[2].Date)
}

func TestEpochCounterIsMonotonic(t *testing.T) {
	var e storage.EpochCounter
	assert.Equal(t, uint64(0), e.Current())
	assert.Equal(t, uint64(1), e.Bump())
	assert.Equal(t, uint64(2), e.Bump())
	assert.Equal(t, uint64(2), e.Current())
}

func TestValidateFact(t *testing.T) {
	assert.True(t, apperrors.IsValidation(storage.ValidateFact(nil)))
	assert.True(t, apperrors.IsValidation(storage.ValidateFact(&domain.CommitFact{Date: day("2025-01-01")})))
	assert.True(t, apperrors.IsValidation(storage.ValidateFact(&domain.CommitFact{Repo: "r", Date: day("2025-01-01"), Commits: -1})))
	assert.NoError(t, storage.ValidateFact(&domain.CommitFact{Repo: "r", Date: day("2025-01-01")}))
}

func TestValidateStreaksRejectsTwoActive(t *testing.T) {
	records := []domain.StreakRecord{
		{Kind: domain.StreakDaily, StartDate: day("2025-01-01"), Length: 1, Active: true},
		{Kind: domain.StreakDaily, StartDate: day("2025-01-03"), Length: 1, Active: true},
	}
	err := storage.ValidateStreaks(domain.StreakDaily, records)
	assert.True(t, apperrors.IsConsistencyViolation(err))
}

func TestValidateStreaksRejectsClosedWithoutEnd(t *testing.T) {
	records := []domain.StreakRecord{
		{Kind: domain.StreakDaily, StartDate: day("2025-01-01"), Length: 1},
	}
	assert.True(t, apperrors.IsConsistencyViolation(storage.ValidateStreaks(domain.StreakDaily, records)))
}
