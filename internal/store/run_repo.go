package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// ErrNotFound signals that the requested record does not exist.
var ErrNotFound = errors.New("run record not found")

// RunStatus mirrors the scrape_runs status column.
type RunStatus string

// Run statuses persisted in scrape_runs.status.
const (
	RunRunning RunStatus = "running"
	RunSuccess RunStatus = "success"
	RunError   RunStatus = "error"
)

// TaskStatus mirrors the scrape_tasks status column.
type TaskStatus string

// Task statuses persisted in scrape_tasks.status.
const (
	TaskRunning        TaskStatus = "running"
	TaskRetrying       TaskStatus = "up_for_retry"
	TaskSuccess        TaskStatus = "success"
	TaskFailed         TaskStatus = "failed"
	TaskUpstreamFailed TaskStatus = "upstream_failed"
)

// Run models the scrape_runs table for API responses.
type Run struct {
	ID uuid.UUID
	// StartedAt captures when the run was first marked running.
	StartedAt time.Time
	// FinishedAt is nil until the run is marked success/error.
	FinishedAt *time.Time
	Status     RunStatus
	// ErrorMessage optionally stores the final failure reason.
	ErrorMessage *string
}

// TaskStats is the latest state of one task within a run.
type TaskStats struct {
	RunID uuid.UUID
	// Task is "bootstrap" or "scrape_<subreddit>".
	Task       string
	Subreddit  string
	Status     TaskStatus
	Attempts   int
	Seen       int
	Saved      int
	Failed     int
	LastUpdate time.Time
	// ErrorMessage holds the last attempt's failure, if any.
	ErrorMessage *string
}

// RunRepository persists scrape run history.
type RunRepository interface {
	// UpsertRunStart inserts (or idempotently updates) the started_at timestamp.
	UpsertRunStart(ctx context.Context, runID uuid.UUID, startedAt time.Time) error
	// CompleteRun marks the run finished with the provided status and error.
	CompleteRun(ctx context.Context, runID uuid.UUID, finishedAt time.Time, status RunStatus, errMsg *string) error
	// UpsertTask replaces the stored state of (run, task).
	UpsertTask(ctx context.Context, stats TaskStats) error

	// GetRun loads a single run or returns ErrNotFound.
	GetRun(ctx context.Context, runID uuid.UUID) (Run, error)
	// ListRuns returns runs filtered by optional status plus limit/offset, newest first.
	ListRuns(ctx context.Context, status *RunStatus, limit, offset int) ([]Run, error)
	// ListRunTasks returns the tasks of one run.
	ListRunTasks(ctx context.Context, runID uuid.UUID, limit, offset int) ([]TaskStats, error)
}
