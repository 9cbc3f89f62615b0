package dispatcher

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/reddit-newsbot/internal/queue/memory"
	"github.com/JakeFAU/reddit-newsbot/internal/scraper"
	"github.com/JakeFAU/reddit-newsbot/internal/worker"
)

type stubScraper struct{}

func (stubScraper) ScrapeChannel(_ context.Context, _ string, subreddit string, limit int) (scraper.ChannelResult, error) {
	return scraper.ChannelResult{Subreddit: subreddit, Seen: limit, Saved: limit}, nil
}

func TestDispatcherRunsEnqueuedTasks(t *testing.T) {
	t.Parallel()

	q := memory.NewQueue(8)
	workers := []*worker.Worker{
		worker.New(1, q, stubScraper{}, worker.Executor{}, zap.NewNop()),
		worker.New(2, q, stubScraper{}, worker.Executor{}, zap.NewNop()),
	}
	dispatch := New(q, workers)

	ctx, cancel := context.WithCancel(context.Background())
	stopped := make(chan struct{})
	go func() {
		dispatch.Run(ctx)
		close(stopped)
	}()

	done := make(chan scraper.TaskResult, 3)
	for _, sub := range []string{"datasets", "learnpython", "visualization"} {
		require.NoError(t, dispatch.Enqueue(ctx, scraper.QueueItem{
			RunID: "r1", Task: scraper.TaskName(sub), Subreddit: sub, Limit: 20, Done: done,
		}))
	}
	for i := 0; i < 3; i++ {
		select {
		case res := <-done:
			require.Equal(t, scraper.TaskSuccess, res.Status)
			require.Equal(t, 20, res.Result.Saved)
		case <-time.After(time.Second):
			t.Fatal("task did not complete")
		}
	}

	cancel()
	select {
	case <-stopped:
	case <-time.After(time.Second):
		t.Fatal("dispatcher did not stop after context cancel")
	}
}

func TestDispatcherEnqueueForwardsErrors(t *testing.T) {
	t.Parallel()

	q := memory.NewQueue(1)
	dispatch := New(q, nil)
	require.NoError(t, dispatch.Enqueue(context.Background(), scraper.QueueItem{Task: "primed"}))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := dispatch.Enqueue(ctx, scraper.QueueItem{Task: "blocked"})
	require.ErrorContains(t, err, "queue enqueue")
	require.True(t, errors.Is(err, context.Canceled))
}
