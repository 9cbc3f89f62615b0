package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/JakeFAU/reddit-newsbot/internal/store"
)

type taskKey struct {
	run  uuid.UUID
	task string
}

// RunStore provides an in-memory store.RunRepository for development/testing.
type RunStore struct {
	mu    sync.RWMutex
	runs  map[uuid.UUID]store.Run
	tasks map[taskKey]store.TaskStats
}

// NewRunStore constructs a RunStore.
func NewRunStore() *RunStore {
	return &RunStore{
		runs:  make(map[uuid.UUID]store.Run),
		tasks: make(map[taskKey]store.TaskStats),
	}
}

// UpsertRunStart records a run as running.
func (s *RunStore) UpsertRunStart(_ context.Context, runID uuid.UUID, startedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	run := s.runs[runID]
	run.ID = runID
	run.StartedAt = startedAt
	run.Status = store.RunRunning
	s.runs[runID] = run
	return nil
}

// CompleteRun sets the terminal status of a run.
func (s *RunStore) CompleteRun(
	_ context.Context,
	runID uuid.UUID,
	finishedAt time.Time,
	status store.RunStatus,
	errMsg *string,
) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	run, ok := s.runs[runID]
	if !ok {
		return store.ErrNotFound
	}
	run.FinishedAt = pointerTime(finishedAt)
	run.Status = status
	run.ErrorMessage = errMsg
	s.runs[runID] = run
	return nil
}

// UpsertTask replaces the state of one task.
func (s *RunStore) UpsertTask(_ context.Context, stats store.TaskStats) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tasks[taskKey{run: stats.RunID, task: stats.Task}] = stats
	return nil
}

// GetRun fetches a run by ID.
func (s *RunStore) GetRun(_ context.Context, runID uuid.UUID) (store.Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	run, ok := s.runs[runID]
	if !ok {
		return store.Run{}, store.ErrNotFound
	}
	return run, nil
}

// ListRuns returns runs newest first.
func (s *RunStore) ListRuns(_ context.Context, status *store.RunStatus, limit, offset int) ([]store.Run, error) {
	s.mu.RLock()
	out := make([]store.Run, 0, len(s.runs))
	for _, run := range s.runs {
		if status != nil && run.Status != *status {
			continue
		}
		out = append(out, run)
	}
	s.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].StartedAt.After(out[j].StartedAt) })
	return page(out, limit, offset), nil
}

// ListRunTasks returns the tasks of one run ordered by task name.
func (s *RunStore) ListRunTasks(_ context.Context, runID uuid.UUID, limit, offset int) ([]store.TaskStats, error) {
	s.mu.RLock()
	out := make([]store.TaskStats, 0)
	for key, stats := range s.tasks {
		if key.run == runID {
			out = append(out, stats)
		}
	}
	s.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Task < out[j].Task })
	return page(out, limit, offset), nil
}

func page[T any](items []T, limit, offset int) []T {
	if offset >= len(items) {
		return []T{}
	}
	items = items[offset:]
	if limit > 0 && len(items) > limit {
		items = items[:limit]
	}
	return items
}

func pointerTime(t time.Time) *time.Time {
	ts := t
	return &ts
}
