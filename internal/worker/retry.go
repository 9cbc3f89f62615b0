package worker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/JakeFAU/reddit-newsbot/internal/progress"
	"github.com/JakeFAU/reddit-newsbot/internal/scraper"
)

// Sleeper waits between attempts; system.Clock satisfies it.
type Sleeper interface {
	Sleep(ctx context.Context, d time.Duration) error
}

// RetryPolicy is a fixed count of extra attempts with a constant delay.
type RetryPolicy struct {
	Retries int
	Delay   time.Duration
	// Timeout bounds each attempt when > 0.
	Timeout time.Duration
}

// Attempts is the total number of tries, never less than one.
func (p RetryPolicy) Attempts() int {
	if p.Retries < 0 {
		return 1
	}
	return p.Retries + 1
}

// Task identifies one task of a run.
type Task struct {
	RunID     string
	Name      string
	Subreddit string
}

// Body is the work of one attempt.
type Body func(ctx context.Context) (scraper.ChannelResult, error)

// Executor runs task bodies under a RetryPolicy and reports every transition.
type Executor struct {
	Policy  RetryPolicy
	Emitter progress.Emitter
	Clock   scraper.Clock
	Sleeper Sleeper
	Logger  *zap.Logger
}

// Execute runs body until it succeeds or the attempts are exhausted.
func (e Executor) Execute(ctx context.Context, task Task, body Body) scraper.TaskResult {
	logger := e.logger().With(
		zap.String("run_id", task.RunID),
		zap.String("task", task.Name),
		zap.String("subreddit", task.Subreddit),
	)
	result := scraper.TaskResult{RunID: task.RunID, Task: task.Name}
	attempts := e.Policy.Attempts()

	for attempt := 1; attempt <= attempts; attempt++ {
		result.Attempts = attempt
		e.emit(task, progress.StageTaskStart, attempt, scraper.ChannelResult{}, 0, nil)

		start := e.now()
		res, err := e.attempt(ctx, body)
		dur := e.now().Sub(start)
		result.Result = res
		result.Err = err

		if err == nil {
			result.Status = scraper.TaskSuccess
			e.emit(task, progress.StageTaskDone, attempt, res, dur, nil)
			logger.Info("task succeeded", zap.Int("attempt", attempt), zap.Duration("dur", dur))
			return result
		}

		last := attempt == attempts || ctx.Err() != nil
		if last {
			break
		}
		e.emit(task, progress.StageTaskRetry, attempt, res, dur, err)
		logger.Warn("task attempt failed, retrying",
			zap.Int("attempt", attempt),
			zap.Duration("retry_delay", e.Policy.Delay),
			zap.Error(err),
		)
		if sleepErr := e.sleep(ctx); sleepErr != nil {
			result.Err = errors.Join(err, sleepErr)
			break
		}
	}

	result.Status = scraper.TaskFailed
	e.emit(task, progress.StageTaskError, result.Attempts, result.Result, 0, result.Err)
	logger.Error("task failed", zap.Int("attempts", result.Attempts), zap.Error(result.Err))
	return result
}

// Skip records a task that will not run because an upstream task failed.
func (e Executor) Skip(task Task, cause error) scraper.TaskResult {
	e.emit(task, progress.StageTaskSkipped, 0, scraper.ChannelResult{}, 0, cause)
	return scraper.TaskResult{
		RunID:  task.RunID,
		Task:   task.Name,
		Status: scraper.TaskUpstreamFailed,
		Result: scraper.ChannelResult{Subreddit: task.Subreddit},
		Err:    cause,
	}
}

func (e Executor) attempt(ctx context.Context, body Body) (res scraper.ChannelResult, err error) {
	if e.Policy.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.Policy.Timeout)
		defer cancel()
	}
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("task panicked: %v", r)
		}
	}()
	return body(ctx)
}

func (e Executor) emit(task Task, stage progress.Stage, attempt int, res scraper.ChannelResult, dur time.Duration, err error) {
	if e.Emitter == nil {
		return
	}
	id, parseErr := uuid.Parse(task.RunID)
	if parseErr != nil {
		e.logger().Debug("skipping progress event for non-uuid run", zap.String("run_id", task.RunID))
		return
	}
	evt := progress.Event{
		RunID:     progress.UUIDToBytes(id),
		TS:        e.now(),
		Stage:     stage,
		Task:      task.Name,
		Subreddit: task.Subreddit,
		Attempt:   attempt,
		Seen:      res.Seen,
		Saved:     res.Saved,
		Failed:    res.Failed,
		Dur:       dur,
	}
	if err != nil {
		evt.Note = err.Error()
	}
	e.Emitter.Emit(evt)
}

func (e Executor) sleep(ctx context.Context) error {
	if e.Sleeper != nil {
		return e.Sleeper.Sleep(ctx, e.Policy.Delay)
	}
	if e.Policy.Delay <= 0 {
		return nil
	}
	t := time.NewTimer(e.Policy.Delay)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func (e Executor) now() time.Time {
	if e.Clock != nil {
		return e.Clock.Now()
	}
	return time.Now().UTC()
}

func (e Executor) logger() *zap.Logger {
	if e.Logger != nil {
		return e.Logger
	}
	return zap.NewNop()
}
