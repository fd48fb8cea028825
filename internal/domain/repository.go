package domain

import "time"

// Repository is a source-provided repository discovered by a collector.
// Local checkouts sharing a base name are merged into one Repository.
type Repository struct {
	Name     string `json:"name"`
	FullName string `json:"full_name"`

	// Locations are local checkout paths; empty for remote repositories
	Locations []string `json:"locations,omitempty"`
}

// Key is the repository identifier stored in the ledger
func (r *Repository) Key() string {
	if r.FullName != "" {
		return r.FullName
	}
	return r.Name
}

// RepoActivity is one repository's contribution to a tracked day
type RepoActivity struct {
	Repo         string       `json:"repo"`
	Commits      int          `json:"commits"`
	LinesAdded   int          `json:"lines_added"`
	LinesDeleted int          `json:"lines_deleted"`
	Result       UpsertResult `json:"-"`
}

// TrackResult is the outcome of live tracking for one day
type TrackResult struct {
	Date            time.Time           `json:"date"`
	TotalCommits    int                 `json:"total_commits"`
	Repositories    []RepoActivity      `json:"repositories"`
	Errors          []BackfillItemError `json:"errors"`
	NewAchievements []AchievementEvent  `json:"new_achievements"`
}
