// Package server builds the application graph from configuration and owns
// its lifecycle: stores, source, worker pool, pipeline, schedule and HTTP API.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/JakeFAU/reddit-newsbot/internal/api"
	"github.com/JakeFAU/reddit-newsbot/internal/clock/system"
	"github.com/JakeFAU/reddit-newsbot/internal/config"
	"github.com/JakeFAU/reddit-newsbot/internal/dispatcher"
	"github.com/JakeFAU/reddit-newsbot/internal/explain"
	collyfetcher "github.com/JakeFAU/reddit-newsbot/internal/fetcher/colly"
	"github.com/JakeFAU/reddit-newsbot/internal/hash/sha256"
	"github.com/JakeFAU/reddit-newsbot/internal/id/uuid"
	"github.com/JakeFAU/reddit-newsbot/internal/progress"
	progresssinks "github.com/JakeFAU/reddit-newsbot/internal/progress/sinks"
	memorypublisher "github.com/JakeFAU/reddit-newsbot/internal/publisher/memory"
	gcppublisher "github.com/JakeFAU/reddit-newsbot/internal/publisher/pubsub"
	queueMemory "github.com/JakeFAU/reddit-newsbot/internal/queue/memory"
	"github.com/JakeFAU/reddit-newsbot/internal/scheduler"
	"github.com/JakeFAU/reddit-newsbot/internal/scraper"
	"github.com/JakeFAU/reddit-newsbot/internal/source/reddit"
	"github.com/JakeFAU/reddit-newsbot/internal/source/rss"
	gcsstorage "github.com/JakeFAU/reddit-newsbot/internal/storage/gcs"
	localstorage "github.com/JakeFAU/reddit-newsbot/internal/storage/local"
	memoryStorage "github.com/JakeFAU/reddit-newsbot/internal/storage/memory"
	pgstore "github.com/JakeFAU/reddit-newsbot/internal/storage/postgres"
	s3storage "github.com/JakeFAU/reddit-newsbot/internal/storage/s3"
	sqlitestore "github.com/JakeFAU/reddit-newsbot/internal/storage/sqlite"
	"github.com/JakeFAU/reddit-newsbot/internal/store"
	"github.com/JakeFAU/reddit-newsbot/internal/telemetry"
	"github.com/JakeFAU/reddit-newsbot/internal/worker"
)

// Options override process-wide collaborators, mainly for tests.
type Options struct {
	// Registerer receives the progress collectors; nil uses the default registry.
	Registerer prometheus.Registerer
	// Sleeper replaces the wall-clock wait between task attempts.
	Sleeper worker.Sleeper
}

type closer struct {
	name string
	fn   func(ctx context.Context) error
}

// App contains the application's dependencies.
type App struct {
	cfg    config.Config
	logger *zap.Logger

	posts     scraper.PostStore
	runs      store.RunRepository
	explainer *explain.Explainer
	pipeline  *scheduler.Pipeline
	queue     *queueMemory.Queue
	dispatch  *dispatcher.Dispatcher
	hub       *progress.Hub

	runCtx       context.Context
	cancelRuns   context.CancelFunc
	dispatchDone chan struct{}
	started      bool

	// closers run in reverse order of registration.
	closers []closer
}

// Build wires every component named in cfg. The worker pool is not running
// until Start is called.
func Build(ctx context.Context, cfg config.Config, logger *zap.Logger, opts Options) (app *App, err error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	app = &App{
		cfg:        cfg,
		logger:     logger,
		runCtx:     runCtx,
		cancelRuns: cancel,
	}
	built := app
	defer func() {
		if err != nil {
			_ = built.Close(context.Background())
		}
	}()

	logger.Info("building application",
		zap.Int("server_port", cfg.Server.Port),
		zap.String("source", cfg.Source.Kind),
		zap.String("database", cfg.Database.Driver),
		zap.String("archive", cfg.Archive.Backend),
		zap.Strings("subreddits", cfg.Scrape.Subreddits),
	)

	if cfg.Telemetry.TracingEnabled {
		tp, tErr := telemetry.InitTracerProvider(ctx, cfg.Telemetry.ServiceName)
		if tErr != nil {
			return nil, fmt.Errorf("tracer init failed: %w", tErr)
		}
		app.onClose("tracer", tp.Shutdown)
	}

	if err = app.setupStores(ctx); err != nil {
		return nil, err
	}
	blobs, err := app.setupArchive(ctx)
	if err != nil {
		return nil, err
	}
	publisher, err := app.setupPublisher(ctx)
	if err != nil {
		return nil, err
	}
	source, err := app.setupSource()
	if err != nil {
		return nil, err
	}
	emitter, err := app.setupProgress(opts.Registerer)
	if err != nil {
		return nil, err
	}

	clock := system.New()
	scrape, err := scraper.New(scraper.Options{
		Source:        source,
		Posts:         app.posts,
		Blobs:         blobs,
		Publisher:     publisher,
		Hasher:        sha256.New(),
		Clock:         clock,
		Topic:         cfg.PubSub.TopicName,
		ArchivePrefix: cfg.Archive.Prefix,
		Logger:        logger,
	})
	if err != nil {
		return nil, fmt.Errorf("scraper init failed: %w", err)
	}

	var sleeper worker.Sleeper = clock
	if opts.Sleeper != nil {
		sleeper = opts.Sleeper
	}
	policy := worker.RetryPolicy{
		Retries: cfg.Schedule.Retries,
		Delay:   cfg.RetryDelay(),
		Timeout: cfg.TaskTimeout(),
	}
	app.setupDispatcher(scrape, worker.Executor{Policy: policy, Emitter: emitter, Clock: clock, Sleeper: sleeper})

	app.pipeline, err = scheduler.NewPipeline(scheduler.Config{
		Subreddits:  cfg.Scrape.Subreddits,
		Limit:       cfg.Scrape.Limit,
		Bootstrap:   policy,
		BaseContext: runCtx,
	}, scheduler.Options{
		Bootstrapper: scrape,
		Queue:        app.dispatch,
		Emitter:      emitter,
		IDs:          uuid.New(),
		Clock:        clock,
		Sleeper:      sleeper,
		Logger:       logger,
	})
	if err != nil {
		return nil, fmt.Errorf("pipeline init failed: %w", err)
	}

	app.explainer = NewExplainer(cfg, logger)
	return app, nil
}

// NewExplainer builds the keyword explainer from the gemini settings.
func NewExplainer(cfg config.Config, logger *zap.Logger) *explain.Explainer {
	client := explain.NewClient(explain.Config{
		APIKey:  cfg.Gemini.APIKey,
		Model:   cfg.Gemini.Model,
		BaseURL: cfg.Gemini.BaseURL,
		Timeout: time.Duration(cfg.Gemini.TimeoutSeconds) * time.Second,
	})
	return explain.NewExplainer(client, cfg.Gemini.PromptTemplate, logger)
}

// OpenPostStore opens the configured post store without the rest of the graph.
func OpenPostStore(ctx context.Context, cfg config.Config) (scraper.PostStore, error) {
	switch cfg.Database.Driver {
	case "postgres":
		posts, _, err := openPostgres(ctx, cfg)
		if err != nil {
			return nil, err
		}
		return posts, nil
	case "sqlite":
		posts, err := sqlitestore.Open(cfg.Database.SQLitePath)
		if err != nil {
			return nil, err
		}
		return posts, nil
	case "memory":
		return memoryStorage.NewPostStore(), nil
	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.Database.Driver)
	}
}

// openPostgres returns the post and run stores sharing one pool.
func openPostgres(ctx context.Context, cfg config.Config) (*pgstore.PostStore, *pgstore.RunStore, error) {
	pool, err := pgstore.NewPool(ctx, pgstore.Config{
		DSN:             cfg.Database.DSN,
		MaxConns:        cfg.Database.MaxConns,
		MinConns:        cfg.Database.MinConns,
		MaxConnLifetime: time.Duration(cfg.Database.MaxConnLifetimeSec) * time.Second,
	})
	if err != nil {
		return nil, nil, err
	}
	posts, err := pgstore.NewPostStore(pool, cfg.Database.DSN)
	if err != nil {
		pool.Close()
		return nil, nil, err
	}
	runs, err := pgstore.NewRunStore(pool)
	if err != nil {
		pool.Close()
		return nil, nil, err
	}
	return posts, runs, nil
}

// Posts is the configured post store.
func (a *App) Posts() scraper.PostStore { return a.posts }

// Runs is the run history repository.
func (a *App) Runs() store.RunRepository { return a.runs }

// Pipeline runs the scrape task graph.
func (a *App) Pipeline() *scheduler.Pipeline { return a.pipeline }

// Explainer renders keyword explanations.
func (a *App) Explainer() *explain.Explainer { return a.explainer }

// Start launches the worker pool. It is idempotent.
func (a *App) Start() {
	if a.started {
		return
	}
	a.started = true
	a.dispatchDone = make(chan struct{})
	go func() {
		defer close(a.dispatchDone)
		a.dispatch.Run(a.runCtx)
	}()
	a.logger.Info("dispatcher started", zap.Int("workers", a.cfg.Scrape.Concurrency))
}

// RunOnce starts the pool if needed and executes one full run.
func (a *App) RunOnce(ctx context.Context) (scheduler.RunSummary, error) {
	a.Start()
	return a.pipeline.RunOnce(ctx)
}

// Serve runs the HTTP API and, when enabled, the cron schedule until ctx ends.
func (a *App) Serve(ctx context.Context) error {
	a.Start()
	ctx, stop := context.WithCancel(ctx)
	defer stop()

	if a.cfg.Schedule.Enabled {
		sched, err := scheduler.New(a.pipeline, a.cfg.Schedule.Cron, a.cfg.Schedule.RunOnStart, a.logger)
		if err != nil {
			return err
		}
		sched.Start(ctx)
		defer sched.Stop()
	}

	apiServer := api.NewServer(a.cfg, api.Deps{
		Posts:     a.posts,
		Runs:      a.runs,
		Explainer: a.explainer,
		Pipeline:  a.pipeline,
		Logger:    a.logger,
	})
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", a.cfg.Server.Port),
		Handler:           apiServer.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		a.logger.Info("http server started", zap.Int("port", a.cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
			stop()
		}
	}()

	<-ctx.Done()
	a.logger.Info("shutdown initiated")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		a.logger.Error("server shutdown error", zap.Error(err))
	}
	select {
	case err := <-serveErr:
		return fmt.Errorf("http server: %w", err)
	default:
		return nil
	}
}

// Close cancels in-flight runs, drains the pool, flushes progress and
// releases every client.
func (a *App) Close(ctx context.Context) error {
	a.cancelRuns()
	if a.pipeline != nil {
		a.pipeline.Wait()
	}
	if a.dispatchDone != nil {
		<-a.dispatchDone
	}
	if a.queue != nil {
		a.queue.Close()
	}

	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		c := a.closers[i]
		if err := c.fn(ctx); err != nil {
			a.logger.Warn("close failed", zap.String("component", c.name), zap.Error(err))
			errs = append(errs, fmt.Errorf("close %s: %w", c.name, err))
		}
	}
	a.closers = nil
	a.logger.Info("shutdown complete")
	return errors.Join(errs...)
}

func (a *App) onClose(name string, fn func(ctx context.Context) error) {
	a.closers = append(a.closers, closer{name: name, fn: fn})
}

func (a *App) setupStores(ctx context.Context) error {
	if a.cfg.Database.Driver == "postgres" {
		posts, runs, err := openPostgres(ctx, a.cfg)
		if err != nil {
			return fmt.Errorf("post store init failed: %w", err)
		}
		a.posts, a.runs = posts, runs
	} else {
		posts, err := OpenPostStore(ctx, a.cfg)
		if err != nil {
			return fmt.Errorf("post store init failed: %w", err)
		}
		// run history is only durable on postgres
		a.posts, a.runs = posts, memoryStorage.NewRunStore()
	}
	posts := a.posts
	a.onClose("post store", func(context.Context) error { return posts.Close() })
	a.logger.Info("stores initialized", zap.String("driver", a.cfg.Database.Driver))
	return nil
}

func (a *App) setupArchive(ctx context.Context) (scraper.BlobStore, error) {
	switch a.cfg.Archive.Backend {
	case "gcs":
		blobs, err := gcsstorage.Open(ctx, gcsstorage.Config{Bucket: a.cfg.Archive.GCSBucket}, nil)
		if err != nil {
			return nil, fmt.Errorf("gcs blob store init failed: %w", err)
		}
		a.onClose("gcs", func(context.Context) error { return blobs.Close() })
		a.logger.Info("archiving listings to GCS", zap.String("bucket", a.cfg.Archive.GCSBucket))
		return blobs, nil
	case "s3":
		s3cfg := a.cfg.Archive.S3
		blobs, err := s3storage.New(ctx, s3storage.Config{
			Endpoint:        s3cfg.Endpoint,
			AccessKeyID:     s3cfg.AccessKeyID,
			SecretAccessKey: s3cfg.SecretAccessKey,
			Bucket:          s3cfg.Bucket,
			UseSSL:          s3cfg.UseSSL,
		})
		if err != nil {
			return nil, fmt.Errorf("s3 blob store init failed: %w", err)
		}
		a.logger.Info("archiving listings to S3", zap.String("endpoint", s3cfg.Endpoint), zap.String("bucket", s3cfg.Bucket))
		return blobs, nil
	case "local":
		blobs, err := localstorage.New(localstorage.Config{BaseDir: a.cfg.Archive.LocalDir})
		if err != nil {
			return nil, fmt.Errorf("local blob store init failed: %w", err)
		}
		a.logger.Info("archiving listings locally", zap.String("path", a.cfg.Archive.LocalDir))
		return blobs, nil
	case "memory":
		return memoryStorage.NewBlobStore(), nil
	default:
		a.logger.Info("listing archive disabled")
		return nil, nil
	}
}

func (a *App) setupPublisher(ctx context.Context) (scraper.Publisher, error) {
	if a.cfg.PubSub.TopicName == "" {
		return nil, nil
	}
	if a.cfg.PubSub.ProjectID == "" {
		a.logger.Warn("no Pub/Sub project configured, using in-memory publisher")
		return memorypublisher.New(), nil
	}
	pub, err := gcppublisher.Open(ctx, a.cfg.PubSub.ProjectID, a.cfg.PubSub.TopicName)
	if err != nil {
		return nil, fmt.Errorf("pubsub publisher init failed: %w", err)
	}
	a.onClose("pubsub", func(context.Context) error { return pub.Close() })
	a.logger.Info("Pub/Sub publisher initialized",
		zap.String("project", a.cfg.PubSub.ProjectID),
		zap.String("topic", a.cfg.PubSub.TopicName),
	)
	return pub, nil
}

func (a *App) setupSource() (scraper.Source, error) {
	timeout := time.Duration(a.cfg.Reddit.TimeoutSeconds) * time.Second
	fetcher := collyfetcher.New(collyfetcher.Config{
		UserAgent: a.cfg.Reddit.UserAgent,
		Timeout:   timeout,
		Wrap:      telemetry.Transport,
	})
	if a.cfg.Source.Kind == "rss" {
		a.logger.Info("using public feed source", zap.String("base_url", a.cfg.Source.RSSBaseURL))
		source, err := rss.New(a.cfg.Source.RSSBaseURL, fetcher)
		if err != nil {
			return nil, err
		}
		return source, nil
	}
	if err := a.cfg.ValidateRedditCredentials(); err != nil {
		return nil, err
	}
	source, err := reddit.New(reddit.Config{
		ClientID:     a.cfg.Reddit.ClientID,
		ClientSecret: a.cfg.Reddit.ClientSecret,
		Username:     a.cfg.Reddit.Username,
		Password:     a.cfg.Reddit.Password,
		UserAgent:    a.cfg.Reddit.UserAgent,
		TokenURL:     a.cfg.Reddit.TokenURL,
		APIBaseURL:   a.cfg.Reddit.APIBaseURL,
		HTTPClient:   telemetry.HTTPClient(nil, timeout),
	}, fetcher, a.logger)
	if err != nil {
		return nil, err
	}
	return source, nil
}

func (a *App) setupProgress(reg prometheus.Registerer) (progress.Emitter, error) {
	if !a.cfg.Progress.Enabled {
		a.logger.Info("progress tracking disabled")
		return progress.Discard, nil
	}
	promSink, err := progresssinks.NewPrometheusSink(reg)
	if err != nil {
		return nil, fmt.Errorf("progress metrics init failed: %w", err)
	}
	sinkList := []progress.Sink{
		progresssinks.NewStoreSink(a.runs, a.logger.Named("progress_store")),
		promSink,
	}
	if a.cfg.Progress.LogEnabled {
		sinkList = append(sinkList, progresssinks.NewLogSink(a.logger.Named("progress_log")))
	}
	hubCfg := progress.Config{
		BufferSize:     a.cfg.Progress.BufferSize,
		MaxBatchEvents: a.cfg.Progress.MaxBatch,
		MaxBatchWait:   time.Duration(a.cfg.Progress.MaxBatchWait) * time.Millisecond,
		SinkTimeout:    time.Duration(a.cfg.Progress.SinkTimeoutMs) * time.Millisecond,
		BaseContext:    context.WithoutCancel(a.runCtx),
		Logger:         a.logger.Named("progress_hub"),
	}
	a.hub = progress.NewHub(hubCfg, sinkList...)
	a.onClose("progress hub", a.hub.Close)
	a.logger.Info("progress hub initialized",
		zap.Int("buffer_size", hubCfg.BufferSize),
		zap.Int("max_batch_events", hubCfg.MaxBatchEvents),
		zap.Duration("max_batch_wait", hubCfg.MaxBatchWait),
	)
	return a.hub, nil
}

func (a *App) setupDispatcher(channels worker.ChannelScraper, exec worker.Executor) {
	depth := max(a.cfg.Scrape.QueueDepth, len(a.cfg.Scrape.Subreddits))
	a.queue = queueMemory.NewQueue(depth)
	workers := make([]*worker.Worker, 0, a.cfg.Scrape.Concurrency)
	for i := 0; i < a.cfg.Scrape.Concurrency; i++ {
		workers = append(workers, worker.New(i, a.queue, channels, exec, a.logger))
	}
	a.dispatch = dispatcher.New(a.queue, workers)
}
