package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/JakeFAU/reddit-newsbot/internal/store"
)

// RunStore implements the store.RunRepository interface using Postgres.
type RunStore struct {
	pool pgxPool
}

// NewRunStore wraps an existing pool; it is usually shared with the PostStore.
func NewRunStore(pool pgxPool) (*RunStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	return &RunStore{pool: pool}, nil
}

// UpsertRunStart inserts or updates a run's start time.
func (s *RunStore) UpsertRunStart(ctx context.Context, runID uuid.UUID, startedAt time.Time) error {
	query := `
		INSERT INTO scrape_runs (id, started_at, status)
		VALUES ($1, $2, $3)
		ON CONFLICT (id) DO UPDATE
		SET started_at = EXCLUDED.started_at, status = EXCLUDED.status;
	`
	if _, err := s.pool.Exec(ctx, query, runID, startedAt, string(store.RunRunning)); err != nil {
		return fmt.Errorf("failed to upsert run start: %w", err)
	}
	return nil
}

// CompleteRun marks a run as completed with a status and optional error message.
func (s *RunStore) CompleteRun(
	ctx context.Context,
	runID uuid.UUID,
	finishedAt time.Time,
	status store.RunStatus,
	errMsg *string,
) error {
	query := `
		UPDATE scrape_runs
		SET finished_at = $1, status = $2, error_message = $3
		WHERE id = $4;
	`
	res, err := s.pool.Exec(ctx, query, finishedAt, string(status), errMsg, runID)
	if err != nil {
		return fmt.Errorf("failed to complete run: %w", err)
	}
	if res.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}

// UpsertTask replaces the stored state of one task.
func (s *RunStore) UpsertTask(ctx context.Context, stats store.TaskStats) error {
	query := `
		INSERT INTO scrape_tasks (run_id, task, subreddit, status, attempts, seen, saved, failed, last_update, error_message)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (run_id, task) DO UPDATE SET
			status = EXCLUDED.status,
			attempts = EXCLUDED.attempts,
			seen = EXCLUDED.seen,
			saved = EXCLUDED.saved,
			failed = EXCLUDED.failed,
			last_update = EXCLUDED.last_update,
			error_message = EXCLUDED.error_message;
	`
	_, err := s.pool.Exec(ctx, query,
		stats.RunID,
		stats.Task,
		stats.Subreddit,
		string(stats.Status),
		stats.Attempts,
		stats.Seen,
		stats.Saved,
		stats.Failed,
		stats.LastUpdate,
		stats.ErrorMessage,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert task %s: %w", stats.Task, err)
	}
	return nil
}

// GetRun retrieves a single run by its ID.
func (s *RunStore) GetRun(ctx context.Context, runID uuid.UUID) (store.Run, error) {
	query := `
		SELECT id, started_at, finished_at, status, error_message
		FROM scrape_runs
		WHERE id = $1;
	`
	var (
		run    store.Run
		status string
	)
	err := s.pool.QueryRow(ctx, query, runID).Scan(
		&run.ID,
		&run.StartedAt,
		&run.FinishedAt,
		&status,
		&run.ErrorMessage,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return store.Run{}, store.ErrNotFound
		}
		return store.Run{}, fmt.Errorf("failed to get run: %w", err)
	}
	run.Status = store.RunStatus(status)
	return run, nil
}

// ListRuns retrieves runs, newest first, with optional status filtering.
func (s *RunStore) ListRuns(
	ctx context.Context,
	status *store.RunStatus,
	limit,
	offset int,
) ([]store.Run, error) {
	query := `
		SELECT id, started_at, finished_at, status, error_message
		FROM scrape_runs
		WHERE ($1::text IS NULL OR status = $1)
		ORDER BY started_at DESC
		LIMIT $2 OFFSET $3;
	`
	var statusArg *string
	if status != nil {
		v := string(*status)
		statusArg = &v
	}
	rows, err := s.pool.Query(ctx, query, statusArg, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	runs := []store.Run{}
	for rows.Next() {
		var (
			run       store.Run
			runStatus string
		)
		if err := rows.Scan(
			&run.ID,
			&run.StartedAt,
			&run.FinishedAt,
			&runStatus,
			&run.ErrorMessage,
		); err != nil {
			return nil, fmt.Errorf("failed to scan run row: %w", err)
		}
		run.Status = store.RunStatus(runStatus)
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate runs: %w", err)
	}
	return runs, nil
}

// ListRunTasks retrieves the task states of one run.
func (s *RunStore) ListRunTasks(
	ctx context.Context,
	runID uuid.UUID,
	limit,
	offset int,
) ([]store.TaskStats, error) {
	query := `
		SELECT run_id, task, subreddit, status, attempts, seen, saved, failed, last_update, error_message
		FROM scrape_tasks
		WHERE run_id = $1
		ORDER BY task
		LIMIT $2 OFFSET $3;
	`
	rows, err := s.pool.Query(ctx, query, runID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list run tasks: %w", err)
	}
	defer rows.Close()

	tasks := []store.TaskStats{}
	for rows.Next() {
		var (
			stat   store.TaskStats
			status string
		)
		if err := rows.Scan(
			&stat.RunID,
			&stat.Task,
			&stat.Subreddit,
			&status,
			&stat.Attempts,
			&stat.Seen,
			&stat.Saved,
			&stat.Failed,
			&stat.LastUpdate,
			&stat.ErrorMessage,
		); err != nil {
			return nil, fmt.Errorf("failed to scan task row: %w", err)
		}
		stat.Status = store.TaskStatus(status)
		tasks = append(tasks, stat)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate run tasks: %w", err)
	}
	return tasks, nil
}
