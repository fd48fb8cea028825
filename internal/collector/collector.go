package collector

import (
	"context"
	"time"

	"github.com/kurihiro0119/commit-streaks/internal/domain"
)

// Collector defines the interface for reading commit activity from a source.
// Callers must not depend on whether the source is remote or local.
type Collector interface {
	// ListRepositories discovers the repositories within scope
	ListRepositories(ctx context.Context, scope []string) ([]*domain.Repository, error)

	// ListActivity returns the repository's fact for one day, or errors.ErrNoActivity
	ListActivity(ctx context.Context, repo *domain.Repository, date time.Time) (*domain.CommitFact, error)
}

// dayWindow returns the first and last instant of the UTC day
func dayWindow(date time.Time) (time.Time, time.Time) {
	start := domain.Day(date)
	return start, start.Add(24*time.Hour - time.Second)
}
