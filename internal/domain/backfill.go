package domain

import "time"

// ItemErrorKind classifies a per-item backfill failure
type ItemErrorKind string

const (
	ItemSourceUnavailable ItemErrorKind = "source_unavailable"
	ItemStorage           ItemErrorKind = "storage"

	// ItemInvalid is a fact the ledger rejected, such as negative counts
	ItemInvalid ItemErrorKind = "invalid"
)

// BackfillItemError is a failure for one (repository, date) that did not abort the run.
// Date is zero when the whole repository failed.
type BackfillItemError struct {
	Repo    string        `json:"repo"`
	Date    time.Time     `json:"date,omitempty"`
	Kind    ItemErrorKind `json:"kind"`
	Message string        `json:"message"`
}

// BackfillReport summarizes a backfill run
type BackfillReport struct {
	RunID             string              `json:"run_id"`
	StartDate         time.Time           `json:"start_date"`
	EndDate           time.Time           `json:"end_date"`
	DryRun            bool                `json:"dry_run"`
	Force             bool                `json:"force"`
	ProcessedDays     int                 `json:"processed_days"`
	Repositories      int                 `json:"repositories"`
	ReposWithActivity int                 `json:"repos_with_activity"`
	Created           int                 `json:"created"`
	Replaced          int                 `json:"replaced"`
	Skipped           int                 `json:"skipped"`
	FailedWrites      int                 `json:"failed_writes"`
	Errors            []BackfillItemError `json:"errors"`
	Duration          time.Duration       `json:"duration"`
}

// Partial reports whether some items failed while the run itself completed
func (r *BackfillReport) Partial() bool {
	return len(r.Errors) > 0
}
