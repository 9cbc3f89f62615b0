package sinks

import (
	"context"
	"fmt"
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/JakeFAU/reddit-newsbot/internal/progress"
)

// PrometheusSink exports run and task progress. It owns its collectors so
// tests can register it against a private registry.
type PrometheusSink struct {
	runsStarted   prometheus.Counter
	runsCompleted *prometheus.CounterVec
	runsRunning   prometheus.Gauge
	runDuration   *prometheus.HistogramVec

	taskAttempts *prometheus.CounterVec
	taskResults  *prometheus.CounterVec
	taskDuration *prometheus.HistogramVec
	postsSaved   *prometheus.CounterVec

	tracker *runTracker
}

// NewPrometheusSink registers the collectors against reg (default registerer if nil).
func NewPrometheusSink(reg prometheus.Registerer) (*PrometheusSink, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	s := &PrometheusSink{
		runsStarted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "newsbot_runs_started_total",
			Help: "Total scrape runs started.",
		}),
		runsCompleted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "newsbot_runs_completed_total",
			Help: "Total scrape runs completed partitioned by result.",
		}, []string{"result"}),
		runsRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "newsbot_runs_running",
			Help: "Current number of running scrape runs.",
		}),
		runDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "newsbot_run_duration_seconds",
			Help:    "Wall time per completed run.",
			Buckets: []float64{1, 5, 15, 30, 60, 300, 600, 1800, 3600},
		}, []string{"result"}),
		taskAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "newsbot_task_attempts_total",
			Help: "Task attempts started, including retries.",
		}, []string{"subreddit"}),
		taskResults: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "newsbot_task_results_total",
			Help: "Terminal task states partitioned by subreddit and status.",
		}, []string{"subreddit", "status"}),
		taskDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "newsbot_task_duration_seconds",
			Help:    "Duration of the final task attempt.",
			Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
		}, []string{"subreddit"}),
		postsSaved: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "newsbot_task_posts_saved_total",
			Help: "Posts saved by successful tasks.",
		}, []string{"subreddit"}),
		tracker: newRunTracker(),
	}
	for _, collector := range []prometheus.Collector{
		s.runsStarted,
		s.runsCompleted,
		s.runsRunning,
		s.runDuration,
		s.taskAttempts,
		s.taskResults,
		s.taskDuration,
		s.postsSaved,
	} {
		if err := reg.Register(collector); err != nil {
			return nil, fmt.Errorf("register progress collector: %w", err)
		}
	}
	return s, nil
}

// Consume updates the collectors from the batch.
func (s *PrometheusSink) Consume(_ context.Context, batch []progress.Event) error {
	for _, evt := range batch {
		switch evt.Stage {
		case progress.StageRunStart:
			s.runsStarted.Inc()
			if s.tracker.start(evt.RunID) {
				s.runsRunning.Inc()
			}
		case progress.StageRunDone:
			s.completeRun(evt, "success")
		case progress.StageRunError:
			s.completeRun(evt, "error")
		case progress.StageTaskStart:
			s.taskAttempts.WithLabelValues(label(evt)).Inc()
		case progress.StageTaskDone:
			s.taskResults.WithLabelValues(label(evt), "success").Inc()
			s.postsSaved.WithLabelValues(label(evt)).Add(float64(evt.Saved))
			s.observeTask(evt)
		case progress.StageTaskError:
			s.taskResults.WithLabelValues(label(evt), "failed").Inc()
			s.observeTask(evt)
		case progress.StageTaskSkipped:
			s.taskResults.WithLabelValues(label(evt), "upstream_failed").Inc()
		}
	}
	return nil
}

func (s *PrometheusSink) completeRun(evt progress.Event, result string) {
	s.runsCompleted.WithLabelValues(result).Inc()
	if evt.Dur > 0 {
		s.runDuration.WithLabelValues(result).Observe(evt.Dur.Seconds())
	}
	if s.tracker.complete(evt.RunID) {
		s.runsRunning.Dec()
	}
}

func (s *PrometheusSink) observeTask(evt progress.Event) {
	if evt.Dur > 0 {
		s.taskDuration.WithLabelValues(label(evt)).Observe(evt.Dur.Seconds())
	}
}

// label keeps the bootstrap task out of the subreddit label space.
func label(evt progress.Event) string {
	if evt.Subreddit == "" {
		return evt.Task
	}
	return evt.Subreddit
}

// Close implements the Sink interface; it performs no action.
func (s *PrometheusSink) Close(context.Context) error {
	return nil
}

type runTracker struct {
	mu      sync.Mutex
	running map[[16]byte]struct{}
}

func newRunTracker() *runTracker {
	return &runTracker{running: make(map[[16]byte]struct{})}
}

func (t *runTracker) start(id [16]byte) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.running[id]; ok {
		return false
	}
	t.running[id] = struct{}{}
	return true
}

func (t *runTracker) complete(id [16]byte) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.running[id]; !ok {
		return false
	}
	delete(t.running, id)
	return true
}
