// Package scheduler runs the scrape task graph: bootstrap first, then one
// channel task per subreddit through the worker pool, on a cron cadence.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/JakeFAU/reddit-newsbot/internal/progress"
	"github.com/JakeFAU/reddit-newsbot/internal/scraper"
	"github.com/JakeFAU/reddit-newsbot/internal/worker"
)

var (
	// ErrRunInProgress is returned when a run is requested while one is active.
	ErrRunInProgress = errors.New("a scrape run is already in progress")
	// ErrRunFailed wraps the outcome of a run where any task did not succeed.
	ErrRunFailed = errors.New("scrape run failed")
)

// Bootstrapper prepares storage before any channel task runs.
type Bootstrapper interface {
	Bootstrap(ctx context.Context) error
}

// Enqueuer accepts channel tasks; dispatcher.Dispatcher satisfies it.
type Enqueuer interface {
	Enqueue(ctx context.Context, item scraper.QueueItem) error
}

// Config describes the task graph of one run.
type Config struct {
	Subreddits []string
	Limit      int
	// Bootstrap applies to the bootstrap task; channel tasks use the workers' policy.
	Bootstrap worker.RetryPolicy
	// BaseContext is the parent of runs started with Start.
	BaseContext context.Context
}

// Options wires a Pipeline.
type Options struct {
	Bootstrapper Bootstrapper
	Queue        Enqueuer
	Emitter      progress.Emitter
	IDs          scraper.IDGenerator
	Clock        scraper.Clock
	Sleeper      worker.Sleeper
	Logger       *zap.Logger
}

// RunSummary is the outcome of one run.
type RunSummary struct {
	RunID      string
	StartedAt  time.Time
	FinishedAt time.Time
	Bootstrap  scraper.TaskResult
	// Tasks holds channel task results in configured subreddit order.
	Tasks []scraper.TaskResult
	Err   error
}

// Saved totals posts saved across channel tasks.
func (s RunSummary) Saved() int {
	total := 0
	for _, t := range s.Tasks {
		total += t.Result.Saved
	}
	return total
}

// FailedTasks lists the tasks that did not succeed.
func (s RunSummary) FailedTasks() []string {
	var out []string
	if s.Bootstrap.Status != "" && s.Bootstrap.Status != scraper.TaskSuccess {
		out = append(out, s.Bootstrap.Task)
	}
	for _, t := range s.Tasks {
		if t.Status != scraper.TaskSuccess {
			out = append(out, t.Task)
		}
	}
	return out
}

// Pipeline executes runs. At most one run is active at a time.
type Pipeline struct {
	cfg      Config
	opts     Options
	executor worker.Executor
	logger   *zap.Logger
	running  atomic.Bool
	wg       sync.WaitGroup
}

// NewPipeline validates cfg and opts.
func NewPipeline(cfg Config, opts Options) (*Pipeline, error) {
	if len(cfg.Subreddits) == 0 {
		return nil, errors.New("scheduler: at least one subreddit is required")
	}
	seen := make(map[string]bool, len(cfg.Subreddits))
	for _, sub := range cfg.Subreddits {
		key := strings.ToLower(strings.TrimSpace(sub))
		if key == "" {
			return nil, errors.New("scheduler: subreddit names must not be blank")
		}
		if seen[key] {
			return nil, fmt.Errorf("scheduler: subreddit %q listed more than once", sub)
		}
		seen[key] = true
	}
	if cfg.Limit <= 0 {
		return nil, errors.New("scheduler: limit must be > 0")
	}
	if opts.Bootstrapper == nil || opts.Queue == nil || opts.IDs == nil {
		return nil, errors.New("scheduler: bootstrapper, queue and id generator are required")
	}
	if cfg.BaseContext == nil {
		cfg.BaseContext = context.Background()
	}
	if opts.Emitter == nil {
		opts.Emitter = progress.Discard
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.Named("scheduler")
	return &Pipeline{
		cfg:  cfg,
		opts: opts,
		executor: worker.Executor{
			Policy:  cfg.Bootstrap,
			Emitter: opts.Emitter,
			Clock:   opts.Clock,
			Sleeper: opts.Sleeper,
			Logger:  logger,
		},
		logger: logger,
	}, nil
}

// Subreddits returns the configured channels.
func (p *Pipeline) Subreddits() []string {
	return append([]string(nil), p.cfg.Subreddits...)
}

// RunOnce executes a full run and blocks until every task has finished.
// The returned error wraps ErrRunFailed when any task did not succeed.
func (p *Pipeline) RunOnce(ctx context.Context) (RunSummary, error) {
	if !p.running.CompareAndSwap(false, true) {
		return RunSummary{}, ErrRunInProgress
	}
	defer p.running.Store(false)
	runID, err := p.opts.IDs.NewID()
	if err != nil {
		return RunSummary{}, fmt.Errorf("generate run id: %w", err)
	}
	summary := p.run(ctx, runID)
	return summary, summary.Err
}

// Start begins a run in the background under the pipeline's base context and
// returns its ID. The channel receives the summary once and is then closed.
func (p *Pipeline) Start(ctx context.Context) (string, <-chan RunSummary, error) {
	if err := ctx.Err(); err != nil {
		return "", nil, err
	}
	if !p.running.CompareAndSwap(false, true) {
		return "", nil, ErrRunInProgress
	}
	runID, err := p.opts.IDs.NewID()
	if err != nil {
		p.running.Store(false)
		return "", nil, fmt.Errorf("generate run id: %w", err)
	}
	out := make(chan RunSummary, 1)
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		defer close(out)
		defer p.running.Store(false)
		out <- p.run(p.cfg.BaseContext, runID)
	}()
	return runID, out, nil
}

// Running reports whether a run is active.
func (p *Pipeline) Running() bool {
	return p.running.Load()
}

// Wait blocks until runs started with Start have returned.
func (p *Pipeline) Wait() {
	p.wg.Wait()
}

func (p *Pipeline) run(ctx context.Context, runID string) RunSummary {
	logger := p.logger.With(zap.String("run_id", runID))
	summary := RunSummary{RunID: runID, StartedAt: p.now()}
	p.emitRun(runID, progress.StageRunStart, 0, nil)
	logger.Info("run started", zap.Int("channels", len(p.cfg.Subreddits)))

	summary.Bootstrap = p.executor.Execute(ctx, worker.Task{RunID: runID, Name: scraper.BootstrapTask},
		func(ctx context.Context) (scraper.ChannelResult, error) {
			return scraper.ChannelResult{}, p.opts.Bootstrapper.Bootstrap(ctx)
		})

	if summary.Bootstrap.Status != scraper.TaskSuccess {
		cause := fmt.Errorf("upstream task %s failed: %w", scraper.BootstrapTask, summary.Bootstrap.Err)
		for _, sub := range p.cfg.Subreddits {
			summary.Tasks = append(summary.Tasks, p.executor.Skip(
				worker.Task{RunID: runID, Name: scraper.TaskName(sub), Subreddit: sub}, cause))
		}
		return p.finish(logger, summary, cause)
	}

	summary.Tasks = p.fanOut(ctx, runID)
	if failed := summary.FailedTasks(); len(failed) > 0 {
		return p.finish(logger, summary, fmt.Errorf("%d of %d channel tasks failed: %v", len(failed), len(summary.Tasks), failed))
	}
	return p.finish(logger, summary, nil)
}

// fanOut enqueues every channel task and collects results in subreddit order.
func (p *Pipeline) fanOut(ctx context.Context, runID string) []scraper.TaskResult {
	subs := p.cfg.Subreddits
	results := make([]scraper.TaskResult, len(subs))
	index := make(map[string]int, len(subs))
	done := make(chan scraper.TaskResult, len(subs))
	pending := 0

	for i, sub := range subs {
		name := scraper.TaskName(sub)
		index[name] = i
		err := p.opts.Queue.Enqueue(ctx, scraper.QueueItem{
			RunID:     runID,
			Task:      name,
			Subreddit: sub,
			Limit:     p.cfg.Limit,
			Submitted: p.now().UnixNano(),
			Done:      done,
		})
		if err != nil {
			results[i] = scraper.TaskResult{
				RunID: runID, Task: name, Status: scraper.TaskFailed,
				Result: scraper.ChannelResult{Subreddit: sub}, Err: fmt.Errorf("enqueue: %w", err),
			}
			continue
		}
		pending++
	}

	for ; pending > 0; pending-- {
		select {
		case res := <-done:
			results[index[res.Task]] = res
		case <-ctx.Done():
			for i, sub := range subs {
				if results[i].Status == "" {
					results[i] = scraper.TaskResult{
						RunID: runID, Task: scraper.TaskName(sub), Status: scraper.TaskFailed,
						Result: scraper.ChannelResult{Subreddit: sub}, Err: ctx.Err(),
					}
				}
			}
			return results
		}
	}
	return results
}

func (p *Pipeline) finish(logger *zap.Logger, summary RunSummary, cause error) RunSummary {
	summary.FinishedAt = p.now()
	dur := summary.FinishedAt.Sub(summary.StartedAt)
	if cause != nil {
		summary.Err = fmt.Errorf("%w: %w", ErrRunFailed, cause)
		p.emitRun(summary.RunID, progress.StageRunError, dur, cause)
		logger.Error("run failed", zap.Duration("dur", dur), zap.Int("saved", summary.Saved()), zap.Error(cause))
		return summary
	}
	p.emitRun(summary.RunID, progress.StageRunDone, dur, nil)
	logger.Info("run finished", zap.Duration("dur", dur), zap.Int("saved", summary.Saved()))
	return summary
}

func (p *Pipeline) emitRun(runID string, stage progress.Stage, dur time.Duration, err error) {
	id, parseErr := uuid.Parse(runID)
	if parseErr != nil {
		return
	}
	evt := progress.Event{RunID: progress.UUIDToBytes(id), TS: p.now(), Stage: stage, Dur: dur}
	if err != nil {
		evt.Note = err.Error()
	}
	p.opts.Emitter.Emit(evt)
}

func (p *Pipeline) now() time.Time {
	if p.opts.Clock != nil {
		return p.opts.Clock.Now()
	}
	return time.Now().UTC()
}
