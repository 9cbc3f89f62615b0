package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// Runner is the part of Pipeline the cron scheduler triggers.
type Runner interface {
	RunOnce(ctx context.Context) (RunSummary, error)
}

// Scheduler triggers runs on a cron cadence. Runs that would overlap a
// running one are skipped and missed ticks are not caught up.
type Scheduler struct {
	cron       *cron.Cron
	runner     Runner
	runOnStart bool
	logger     *zap.Logger

	mu  sync.Mutex
	ctx context.Context
	wg  sync.WaitGroup
}

// New parses spec ("@daily", "0 6 * * *", ...) and registers the run job.
func New(runner Runner, spec string, runOnStart bool, logger *zap.Logger) (*Scheduler, error) {
	if runner == nil {
		return nil, errors.New("scheduler: runner is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.Named("scheduler")
	cl := cronLogger{logger: logger.Sugar()}
	s := &Scheduler{
		cron: cron.New(
			cron.WithLocation(time.UTC),
			cron.WithLogger(cl),
			cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
		),
		runner:     runner,
		runOnStart: runOnStart,
		logger:     logger,
		ctx:        context.Background(),
	}
	if _, err := s.cron.AddFunc(spec, s.tick); err != nil {
		return nil, fmt.Errorf("parse schedule %q: %w", spec, err)
	}
	return s, nil
}

// Start begins the cadence; runs use ctx and the cadence stops when ctx ends.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	s.ctx = ctx
	s.mu.Unlock()

	if s.runOnStart {
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.tick()
		}()
	}
	s.cron.Start()
	s.logger.Info("schedule started", zap.Time("next_run", s.Next()))

	go func() {
		<-ctx.Done()
		s.Stop()
	}()
}

// Stop halts the cadence and waits for an in-flight run to return.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
	s.wg.Wait()
}

// Next returns the next scheduled run time, or zero if none.
func (s *Scheduler) Next() time.Time {
	entries := s.cron.Entries()
	if len(entries) == 0 {
		return time.Time{}
	}
	return entries[0].Next
}

func (s *Scheduler) tick() {
	s.mu.Lock()
	ctx := s.ctx
	s.mu.Unlock()
	if ctx.Err() != nil {
		return
	}
	summary, err := s.runner.RunOnce(ctx)
	switch {
	case errors.Is(err, ErrRunInProgress):
		s.logger.Warn("skipping scheduled run, previous run still active")
	case err != nil:
		s.logger.Error("scheduled run failed",
			zap.String("run_id", summary.RunID),
			zap.Strings("failed_tasks", summary.FailedTasks()),
			zap.Error(err),
		)
	default:
		s.logger.Info("scheduled run finished", zap.String("run_id", summary.RunID), zap.Int("saved", summary.Saved()))
	}
}

// cronLogger adapts zap to cron.Logger.
type cronLogger struct {
	logger *zap.SugaredLogger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.logger.Debugw(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.logger.Errorw(msg, append(keysAndValues, "error", err)...)
}
