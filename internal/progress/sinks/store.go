package sinks

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/JakeFAU/reddit-newsbot/internal/progress"
	"github.com/JakeFAU/reddit-newsbot/internal/store"
)

// StoreSink persists run history via a store.RunRepository. Task events are
// collapsed to the latest state per (run, task) before writing.
type StoreSink struct {
	repo   store.RunRepository
	logger *zap.Logger
}

// NewStoreSink constructs a StoreSink for the provided repository.
func NewStoreSink(repo store.RunRepository, logger *zap.Logger) *StoreSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StoreSink{repo: repo, logger: logger}
}

type taskKey struct {
	run  uuid.UUID
	task string
}

// Consume writes run transitions in order, then the latest state of each task.
func (s *StoreSink) Consume(ctx context.Context, batch []progress.Event) error {
	if s == nil || s.repo == nil {
		return nil
	}
	latest := make(map[taskKey]store.TaskStats)
	order := make([]taskKey, 0)

	for _, evt := range batch {
		runID := evt.RunUUID()
		if !evt.Stage.IsTask() {
			if err := s.handleRunEvent(ctx, runID, evt); err != nil {
				return err
			}
			continue
		}
		key := taskKey{run: runID, task: evt.Task}
		if _, seen := latest[key]; !seen {
			order = append(order, key)
		}
		latest[key] = taskStats(runID, evt)
	}

	for _, key := range order {
		if err := s.repo.UpsertTask(ctx, latest[key]); err != nil {
			return fmt.Errorf("upsert task %s: %w", key.task, err)
		}
	}
	return nil
}

func (s *StoreSink) handleRunEvent(ctx context.Context, runID uuid.UUID, evt progress.Event) error {
	switch evt.Stage {
	case progress.StageRunStart:
		if err := s.repo.UpsertRunStart(ctx, runID, evt.TS); err != nil {
			return fmt.Errorf("upsert run start: %w", err)
		}
	case progress.StageRunDone:
		if err := s.repo.CompleteRun(ctx, runID, evt.TS, store.RunSuccess, nil); err != nil {
			return fmt.Errorf("complete run: %w", err)
		}
	case progress.StageRunError:
		if err := s.repo.CompleteRun(ctx, runID, evt.TS, store.RunError, note(evt)); err != nil {
			return fmt.Errorf("complete run: %w", err)
		}
	}
	return nil
}

func taskStats(runID uuid.UUID, evt progress.Event) store.TaskStats {
	return store.TaskStats{
		RunID:        runID,
		Task:         evt.Task,
		Subreddit:    evt.Subreddit,
		Status:       taskStatus(evt.Stage),
		Attempts:     evt.Attempt,
		Seen:         evt.Seen,
		Saved:        evt.Saved,
		Failed:       evt.Failed,
		LastUpdate:   evt.TS,
		ErrorMessage: note(evt),
	}
}

func taskStatus(stage progress.Stage) store.TaskStatus {
	switch stage {
	case progress.StageTaskRetry:
		return store.TaskRetrying
	case progress.StageTaskDone:
		return store.TaskSuccess
	case progress.StageTaskError:
		return store.TaskFailed
	case progress.StageTaskSkipped:
		return store.TaskUpstreamFailed
	default:
		return store.TaskRunning
	}
}

func note(evt progress.Event) *string {
	if evt.Note == "" {
		return nil
	}
	n := evt.Note
	return &n
}

// Close implements the Sink interface; it performs no action.
func (s *StoreSink) Close(context.Context) error {
	return nil
}
