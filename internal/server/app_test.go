package server

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	guuid "github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/reddit-newsbot/internal/config"
	"github.com/JakeFAU/reddit-newsbot/internal/scheduler"
	"github.com/JakeFAU/reddit-newsbot/internal/scraper"
	"github.com/JakeFAU/reddit-newsbot/internal/store"
)

type noSleep struct{}

func (noSleep) Sleep(context.Context, time.Duration) error { return nil }

func feedFor(sub string, n int) string {
	var b strings.Builder
	b.WriteString(`<?xml version="1.0" encoding="UTF-8"?><feed xmlns="http://www.w3.org/2005/Atom">`)
	for i := 0; i < n; i++ {
		fmt.Fprintf(&b, `<entry><id>t3_%s%d</id><link href="https://www.reddit.com/r/%s/comments/%s%d/x/"/>`+
			`<published>2024-03-01T0%d:00:00+00:00</published><title>%s post %d</title></entry>`,
			sub, i, sub, sub, i, i, sub, i)
	}
	b.WriteString(`</feed>`)
	return b.String()
}

func newFeedServer(t *testing.T, failing map[string]bool) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		parts := strings.Split(strings.Trim(r.URL.Path, "/"), "/")
		if len(parts) < 2 || parts[0] != "r" {
			http.NotFound(w, r)
			return
		}
		if failing[parts[1]] {
			http.Error(w, "unavailable", http.StatusServiceUnavailable)
			return
		}
		w.Header().Set("Content-Type", "application/atom+xml")
		_, _ = w.Write([]byte(feedFor(parts[1], 3)))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func testConfig(baseURL string) config.Config {
	return config.Config{
		Server:   config.ServerConfig{Port: 0, RequestTimeoutSec: 5},
		Source:   config.SourceConfig{Kind: "rss", RSSBaseURL: baseURL},
		Reddit:   config.RedditConfig{UserAgent: "newsbot-test", TimeoutSeconds: 5},
		Scrape:   config.ScrapeConfig{Subreddits: []string{"golang", "rust"}, Limit: 20, Concurrency: 2, QueueDepth: 4},
		Schedule: config.ScheduleConfig{Cron: "@daily", Retries: 1},
		Database: config.DatabaseConfig{Driver: "memory"},
		Archive:  config.ArchiveConfig{Backend: "memory", Prefix: "listings"},
		Progress: config.ProgressConfig{Enabled: true, LogEnabled: true, MaxBatchWait: 10},
		Gemini:   config.GeminiConfig{TimeoutSeconds: 1},
	}
}

func build(t *testing.T, cfg config.Config) *App {
	t.Helper()
	app, err := Build(context.Background(), cfg, zap.NewNop(), Options{
		Registerer: prometheus.NewRegistry(),
		Sleeper:    noSleep{},
	})
	require.NoError(t, err)
	return app
}

func TestRunOnceScrapesAndRecordsHistory(t *testing.T) {
	t.Parallel()

	srv := newFeedServer(t, nil)
	app := build(t, testConfig(srv.URL))
	ctx := context.Background()

	summary, err := app.RunOnce(ctx)
	require.NoError(t, err)
	require.Equal(t, 6, summary.Saved())

	posts, err := app.Posts().ListPosts(ctx, scraper.PostQuery{Subreddit: "rust", Limit: 10})
	require.NoError(t, err)
	require.Len(t, posts, 3)
	require.Equal(t, "rust2", posts[0].ID)
	require.Equal(t, "rust post 2", posts[0].FullText)

	require.NoError(t, app.Close(ctx))

	run, err := app.Runs().GetRun(ctx, guuid.MustParse(summary.RunID))
	require.NoError(t, err)
	require.Equal(t, store.RunSuccess, run.Status)
	tasks, err := app.Runs().ListRunTasks(ctx, run.ID, 10, 0)
	require.NoError(t, err)
	require.Len(t, tasks, 3)
}

func TestRunOnceReportsFailedChannel(t *testing.T) {
	t.Parallel()

	srv := newFeedServer(t, map[string]bool{"rust": true})
	app := build(t, testConfig(srv.URL))
	ctx := context.Background()
	defer func() { _ = app.Close(ctx) }()

	summary, err := app.RunOnce(ctx)
	require.ErrorIs(t, err, scheduler.ErrRunFailed)
	require.Equal(t, []string{"scrape_rust"}, summary.FailedTasks())
	require.Equal(t, 2, summary.Tasks[1].Attempts)
	require.Equal(t, 3, summary.Saved())

	_, err = app.RunOnce(ctx)
	require.ErrorIs(t, err, scheduler.ErrRunFailed)
}

func TestBuildRejectsUnknownDriver(t *testing.T) {
	t.Parallel()

	cfg := testConfig("http://127.0.0.1:1")
	cfg.Database.Driver = "mysql"
	_, err := Build(context.Background(), cfg, nil, Options{Registerer: prometheus.NewRegistry()})
	require.ErrorContains(t, err, "unsupported database driver")
}

func TestBuildRequiresRedditCredentials(t *testing.T) {
	t.Parallel()

	cfg := testConfig("http://127.0.0.1:1")
	cfg.Source.Kind = "api"
	_, err := Build(context.Background(), cfg, nil, Options{Registerer: prometheus.NewRegistry()})
	require.ErrorContains(t, err, "missing reddit credentials")
}

func TestOpenPostStoreSQLite(t *testing.T) {
	t.Parallel()

	cfg := testConfig("")
	cfg.Database = config.DatabaseConfig{Driver: "sqlite", SQLitePath: t.TempDir() + "/posts.db"}
	posts, err := OpenPostStore(context.Background(), cfg)
	require.NoError(t, err)
	defer func() { _ = posts.Close() }()
	require.NoError(t, posts.Bootstrap(context.Background()))
	require.NoError(t, posts.Ping(context.Background()))
}

func TestNewExplainerFallsBack(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	cfg := testConfig("")
	cfg.Gemini.BaseURL = srv.URL
	got := NewExplainer(cfg, nil).Explain(context.Background(), "GPU")
	require.Equal(t, "Error: model returned 500", got)
}
