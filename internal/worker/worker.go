// Package worker executes channel scrape tasks pulled from the queue.
package worker

import (
	"context"

	"go.uber.org/zap"

	"github.com/JakeFAU/reddit-newsbot/internal/metrics"
	"github.com/JakeFAU/reddit-newsbot/internal/scraper"
)

// ChannelScraper is the part of scraper.Scraper a worker drives.
type ChannelScraper interface {
	ScrapeChannel(ctx context.Context, runID, subreddit string, limit int) (scraper.ChannelResult, error)
}

// Worker consumes queue items and runs each under the executor's retry policy.
type Worker struct {
	id       int
	queue    scraper.Queue
	scraper  ChannelScraper
	executor Executor
	logger   *zap.Logger
}

// New constructs a Worker.
func New(id int, queue scraper.Queue, channels ChannelScraper, executor Executor, logger *zap.Logger) *Worker {
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.Named("worker").With(zap.Int("worker_id", id))
	executor.Logger = logger
	return &Worker{
		id:       id,
		queue:    queue,
		scraper:  channels,
		executor: executor,
		logger:   logger,
	}
}

// Run blocks, consuming queue items until the context finishes or the queue closes.
func (w *Worker) Run(ctx context.Context) {
	for {
		item, err := w.queue.Dequeue(ctx)
		if err != nil {
			if ctx.Err() == nil {
				w.logger.Info("queue closed, worker exiting", zap.Error(err))
			}
			return
		}
		w.logger.Debug("dequeued task", zap.String("run_id", item.RunID), zap.String("task", item.Task))
		w.Process(ctx, item)
	}
}

// Process runs one item and delivers its result on item.Done, if set.
func (w *Worker) Process(ctx context.Context, item scraper.QueueItem) scraper.TaskResult {
	metrics.IncActiveWorkers()
	defer metrics.DecActiveWorkers()

	task := Task{RunID: item.RunID, Name: item.Task, Subreddit: item.Subreddit}
	result := w.executor.Execute(ctx, task, func(ctx context.Context) (scraper.ChannelResult, error) {
		return w.scraper.ScrapeChannel(ctx, item.RunID, item.Subreddit, item.Limit)
	})
	if result.Result.Subreddit == "" {
		result.Result.Subreddit = item.Subreddit
	}
	if item.Done != nil {
		item.Done <- result
	}
	return result
}
