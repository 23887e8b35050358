package model

import "time"

// Run status constants.
const (
	RunStatusRunning   = "running"
	RunStatusSucceeded = "succeeded"
	RunStatusFailed    = "failed"
)

// Entry outcomes. Recorded and Duplicate come from the mail phase, Created
// and Skipped from the calendar phase.
const (
	OutcomeRecorded  = "recorded"
	OutcomeDuplicate = "duplicate"
	OutcomeCreated   = "created"
	OutcomeSkipped   = "skipped"
)

// RunCounts tallies what a pipeline run did.
type RunCounts struct {
	Fetched    int `json:"fetched" db:"fetched"`
	Recorded   int `json:"recorded" db:"recorded"`
	Duplicates int `json:"duplicates" db:"duplicates"`
	Misses     int `json:"misses" db:"misses"`
	Created    int `json:"created" db:"created"`
	Skipped    int `json:"skipped" db:"skipped"`
}

// Run is one invocation of the pipeline as kept in the history database.
type Run struct {
	ID         string     `json:"id" db:"id"`
	Status     string     `json:"status" db:"status"`
	DryRun     bool       `json:"dry_run" db:"dry_run"`
	Error      string     `json:"error,omitempty" db:"error"`
	StartedAt  time.Time  `json:"started_at" db:"started_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty" db:"finished_at"`

	RunCounts
}

// RunEntry is a single record a run touched and what happened to it.
type RunEntry struct {
	ID          int64     `json:"id" db:"id"`
	RunID       string    `json:"run_id" db:"run_id"`
	Description string    `json:"description" db:"description"`
	Date        string    `json:"date" db:"date"`
	Outcome     string    `json:"outcome" db:"outcome"`
	CreatedAt   time.Time `json:"created_at" db:"created_at"`
}
