package worker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/reddit-newsbot/internal/progress"
	"github.com/JakeFAU/reddit-newsbot/internal/queue/memory"
	"github.com/JakeFAU/reddit-newsbot/internal/scraper"
)

type recordingEmitter struct {
	mu     sync.Mutex
	events []progress.Event
}

func (r *recordingEmitter) Emit(evt progress.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, evt)
}

func (r *recordingEmitter) stages() []progress.Stage {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]progress.Stage, 0, len(r.events))
	for _, evt := range r.events {
		out = append(out, evt.Stage)
	}
	return out
}

type recordingSleeper struct {
	mu    sync.Mutex
	slept []time.Duration
}

func (s *recordingSleeper) Sleep(_ context.Context, d time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.slept = append(s.slept, d)
	return nil
}

type flakyScraper struct {
	mu       sync.Mutex
	calls    int
	failures int
	limits   []int
}

func (f *flakyScraper) ScrapeChannel(_ context.Context, _ string, subreddit string, limit int) (scraper.ChannelResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.limits = append(f.limits, limit)
	if f.calls <= f.failures {
		return scraper.ChannelResult{Subreddit: subreddit, Seen: limit, Failed: limit}, scraper.ErrNoPostsSaved
	}
	return scraper.ChannelResult{Subreddit: subreddit, Seen: limit, Saved: limit}, nil
}

func newExecutor(retries int, emitter progress.Emitter, sleeper Sleeper) Executor {
	return Executor{
		Policy:  RetryPolicy{Retries: retries, Delay: 5 * time.Minute},
		Emitter: emitter,
		Sleeper: sleeper,
	}
}

func TestProcessRetriesWithFixedDelay(t *testing.T) {
	t.Parallel()

	emitter := &recordingEmitter{}
	sleeper := &recordingSleeper{}
	channels := &flakyScraper{failures: 1}
	w := New(1, memory.NewQueue(1), channels, newExecutor(1, emitter, sleeper), zap.NewNop())

	done := make(chan scraper.TaskResult, 1)
	item := scraper.QueueItem{
		RunID: uuid.NewString(), Task: scraper.TaskName("datasets"), Subreddit: "datasets", Limit: 20, Done: done,
	}
	result := w.Process(context.Background(), item)

	require.Equal(t, scraper.TaskSuccess, result.Status)
	require.Equal(t, 2, result.Attempts)
	require.Equal(t, 20, result.Result.Saved)
	require.NoError(t, result.Err)
	require.Equal(t, []time.Duration{5 * time.Minute}, sleeper.slept)
	require.Equal(t, []int{20, 20}, channels.limits)
	require.Equal(t, []progress.Stage{
		progress.StageTaskStart, progress.StageTaskRetry, progress.StageTaskStart, progress.StageTaskDone,
	}, emitter.stages())
	require.Equal(t, result, <-done)
}

func TestProcessFailsAfterRetriesExhausted(t *testing.T) {
	t.Parallel()

	emitter := &recordingEmitter{}
	sleeper := &recordingSleeper{}
	w := New(1, memory.NewQueue(1), &flakyScraper{failures: 5}, newExecutor(1, emitter, sleeper), nil)

	result := w.Process(context.Background(), scraper.QueueItem{
		RunID: uuid.NewString(), Task: "scrape_datasets", Subreddit: "datasets", Limit: 3,
	})

	require.Equal(t, scraper.TaskFailed, result.Status)
	require.Equal(t, 2, result.Attempts)
	require.ErrorIs(t, result.Err, scraper.ErrNoPostsSaved)
	require.Len(t, sleeper.slept, 1)
	stages := emitter.stages()
	require.Equal(t, progress.StageTaskError, stages[len(stages)-1])
	require.Equal(t, "no posts saved", emitter.events[len(emitter.events)-1].Note)
}

func TestExecuteStopsOnCanceledContext(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	exec := Executor{Policy: RetryPolicy{Retries: 3, Delay: time.Hour}}
	result := exec.Execute(ctx, Task{RunID: uuid.NewString(), Name: "bootstrap"}, func(context.Context) (scraper.ChannelResult, error) {
		calls++
		cancel()
		return scraper.ChannelResult{}, errors.New("db unavailable")
	})

	require.Equal(t, 1, calls)
	require.Equal(t, scraper.TaskFailed, result.Status)
	require.Equal(t, 1, result.Attempts)
}

func TestExecuteRecoversPanicsAndHonorsTimeout(t *testing.T) {
	t.Parallel()

	exec := Executor{Policy: RetryPolicy{Timeout: 10 * time.Millisecond}}
	result := exec.Execute(context.Background(), Task{RunID: "not-a-uuid", Name: "bootstrap"}, func(context.Context) (scraper.ChannelResult, error) {
		panic("boom")
	})
	require.Equal(t, scraper.TaskFailed, result.Status)
	require.ErrorContains(t, result.Err, "task panicked")

	result = exec.Execute(context.Background(), Task{Name: "bootstrap"}, func(ctx context.Context) (scraper.ChannelResult, error) {
		<-ctx.Done()
		return scraper.ChannelResult{}, ctx.Err()
	})
	require.ErrorIs(t, result.Err, context.DeadlineExceeded)
}

func TestSkipMarksUpstreamFailed(t *testing.T) {
	t.Parallel()

	emitter := &recordingEmitter{}
	exec := Executor{Emitter: emitter}
	cause := errors.New("bootstrap failed")
	result := exec.Skip(Task{RunID: uuid.NewString(), Name: "scrape_datasets", Subreddit: "datasets"}, cause)

	require.Equal(t, scraper.TaskUpstreamFailed, result.Status)
	require.Zero(t, result.Attempts)
	require.Equal(t, "datasets", result.Result.Subreddit)
	require.Equal(t, []progress.Stage{progress.StageTaskSkipped}, emitter.stages())
}

func TestRunDrainsQueueUntilClosed(t *testing.T) {
	t.Parallel()

	q := memory.NewQueue(4)
	channels := &flakyScraper{}
	w := New(1, q, channels, Executor{}, zap.NewNop())

	done := make(chan scraper.TaskResult, 2)
	for _, sub := range []string{"datasets", "learnpython"} {
		require.NoError(t, q.Enqueue(context.Background(), scraper.QueueItem{
			RunID: uuid.NewString(), Task: scraper.TaskName(sub), Subreddit: sub, Limit: 20, Done: done,
		}))
	}
	q.Close()

	finished := make(chan struct{})
	go func() {
		w.Run(context.Background())
		close(finished)
	}()

	select {
	case <-finished:
	case <-time.After(time.Second):
		t.Fatal("worker did not exit after queue close")
	}
	require.Len(t, done, 2)
}

func TestRetryPolicyAttempts(t *testing.T) {
	t.Parallel()

	require.Equal(t, 1, RetryPolicy{}.Attempts())
	require.Equal(t, 1, RetryPolicy{Retries: -2}.Attempts())
	require.Equal(t, 3, RetryPolicy{Retries: 2}.Attempts())
}
