package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/reddit-newsbot/internal/config"
	"github.com/JakeFAU/reddit-newsbot/internal/scheduler"
	"github.com/JakeFAU/reddit-newsbot/internal/scraper"
	"github.com/JakeFAU/reddit-newsbot/internal/storage/memory"
	"github.com/JakeFAU/reddit-newsbot/internal/store"
)

type fakePipeline struct {
	mu     sync.Mutex
	runID  string
	err    error
	starts int
}

func (f *fakePipeline) Start(context.Context) (string, <-chan scheduler.RunSummary, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return "", nil, f.err
	}
	f.starts++
	done := make(chan scheduler.RunSummary, 1)
	done <- scheduler.RunSummary{RunID: f.runID}
	close(done)
	return f.runID, done, nil
}

func (f *fakePipeline) Subreddits() []string {
	return []string{"golang", "rust"}
}

type stubExplainer struct{}

func (stubExplainer) Explain(_ context.Context, keyword string) string {
	if keyword == "boom" {
		return "Error: model returned 500"
	}
	return "simple words about " + keyword
}

type failingPosts struct{}

func (failingPosts) ListPosts(context.Context, scraper.PostQuery) ([]scraper.Post, error) {
	return nil, errors.New("connection refused")
}

func (failingPosts) Ping(context.Context) error {
	return errors.New("connection refused")
}

func testConfig() config.Config {
	return config.Config{Server: config.ServerConfig{Port: 8080, RequestTimeoutSec: 5}}
}

func seededPosts(t *testing.T) *memory.PostStore {
	t.Helper()
	posts := memory.NewPostStore()
	base := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 60; i++ {
		sub := "golang"
		if i%3 == 0 {
			sub = "rust"
		}
		require.NoError(t, posts.Upsert(context.Background(), scraper.Post{
			ID:          fmt.Sprintf("id%02d", i),
			Title:       fmt.Sprintf("title %d", i),
			Subreddit:   sub,
			PublishedAt: base.Add(time.Duration(i) * time.Hour),
		}))
	}
	return posts
}

func newTestServer(t *testing.T, deps Deps) *Server {
	t.Helper()
	return NewServer(testConfig(), deps)
}

func do(t *testing.T, s *Server, method, target string, body []byte) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body == nil {
		reader = bytes.NewReader(nil)
	} else {
		reader = bytes.NewReader(body)
	}
	req := httptest.NewRequest(method, target, reader)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func decodePosts(t *testing.T, rec *httptest.ResponseRecorder) []scraper.Post {
	t.Helper()
	var body struct {
		Posts []scraper.Post `json:"posts"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body.Posts
}

func TestServer_Health(t *testing.T) {
	t.Parallel()

	s := newTestServer(t, Deps{Posts: memory.NewPostStore()})
	rec := do(t, s, http.MethodGet, "/healthz", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NotEmpty(t, rec.Header().Get("X-Request-Id"))

	rec = do(t, s, http.MethodGet, "/readyz", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = do(t, newTestServer(t, Deps{Posts: failingPosts{}}), http.MethodGet, "/readyz", nil)
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)

	rec = do(t, newTestServer(t, Deps{}), http.MethodGet, "/readyz", nil)
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestServer_Metrics(t *testing.T) {
	t.Parallel()

	s := newTestServer(t, Deps{Posts: memory.NewPostStore()})
	do(t, s, http.MethodGet, "/healthz", nil)
	rec := do(t, s, http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "# HELP")
}

func TestServer_ListPostsDefaultsAndClamp(t *testing.T) {
	t.Parallel()

	s := newTestServer(t, Deps{Posts: seededPosts(t)})

	rec := do(t, s, http.MethodGet, "/v1/posts", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	posts := decodePosts(t, rec)
	require.Len(t, posts, DefaultPostLimit)
	require.Equal(t, "id59", posts[0].ID)
	for i := 1; i < len(posts); i++ {
		require.False(t, posts[i].PublishedAt.After(posts[i-1].PublishedAt))
	}

	require.Len(t, decodePosts(t, do(t, s, http.MethodGet, "/v1/posts?limit=500", nil)), MaxPostLimit)
	require.Len(t, decodePosts(t, do(t, s, http.MethodGet, "/v1/posts?limit=0", nil)), 1)
	require.Len(t, decodePosts(t, do(t, s, http.MethodGet, "/v1/posts?subreddit=All&limit=7", nil)), 7)

	rec = do(t, s, http.MethodGet, "/v1/posts?limit=abc", nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestServer_ListPostsFilter(t *testing.T) {
	t.Parallel()

	s := newTestServer(t, Deps{Posts: seededPosts(t)})
	posts := decodePosts(t, do(t, s, http.MethodGet, "/v1/posts?subreddit=rust&limit=50", nil))
	require.Len(t, posts, 20)
	for _, p := range posts {
		require.Equal(t, "rust", p.Subreddit)
	}

	rec := do(t, s, http.MethodGet, "/v1/posts?subreddit=nope", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `{"posts":[]}`, rec.Body.String())
}

func TestServer_ListPostsStoreError(t *testing.T) {
	t.Parallel()

	rec := do(t, newTestServer(t, Deps{Posts: failingPosts{}}), http.MethodGet, "/v1/posts", nil)
	require.Equal(t, http.StatusInternalServerError, rec.Code)
	require.JSONEq(t, `{"error":"failed to list posts"}`, rec.Body.String())
}

func TestServer_Subreddits(t *testing.T) {
	t.Parallel()

	rec := do(t, newTestServer(t, Deps{Pipeline: &fakePipeline{}}), http.MethodGet, "/v1/subreddits", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `{"subreddits":["golang","rust"]}`, rec.Body.String())

	rec = do(t, newTestServer(t, Deps{}), http.MethodGet, "/v1/subreddits", nil)
	require.JSONEq(t, `{"subreddits":[]}`, rec.Body.String())
}

func TestServer_Explain(t *testing.T) {
	t.Parallel()

	s := newTestServer(t, Deps{Explainer: stubExplainer{}})

	rec := do(t, s, http.MethodPost, "/v1/explain", []byte(`{"keyword":"  transformer "}`))
	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `{"keyword":"transformer","explanation":"simple words about transformer"}`, rec.Body.String())

	rec = do(t, s, http.MethodPost, "/v1/explain", []byte(`{"keyword":"boom"}`))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "Error: model returned 500")

	rec = do(t, s, http.MethodPost, "/v1/explain", []byte(`{"keyword":"  "}`))
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, s, http.MethodPost, "/v1/explain", []byte(`{invalid`))
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, newTestServer(t, Deps{}), http.MethodPost, "/v1/explain", []byte(`{"keyword":"x"}`))
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestServer_StartRun(t *testing.T) {
	t.Parallel()

	runID := uuid.NewString()
	pipeline := &fakePipeline{runID: runID}
	s := newTestServer(t, Deps{Pipeline: pipeline})

	rec := do(t, s, http.MethodPost, "/v1/runs", nil)
	require.Equal(t, http.StatusAccepted, rec.Code)
	require.JSONEq(t, fmt.Sprintf(`{"run_id":%q}`, runID), rec.Body.String())

	pipeline.mu.Lock()
	pipeline.err = scheduler.ErrRunInProgress
	pipeline.mu.Unlock()
	rec = do(t, s, http.MethodPost, "/v1/runs", nil)
	require.Equal(t, http.StatusConflict, rec.Code)

	pipeline.mu.Lock()
	pipeline.err = errors.New("id generator broken")
	pipeline.mu.Unlock()
	rec = do(t, s, http.MethodPost, "/v1/runs", nil)
	require.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestServer_RunHistory(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	runs := memory.NewRunStore()
	runID := uuid.New()
	started := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, runs.UpsertRunStart(ctx, runID, started))
	require.NoError(t, runs.CompleteRun(ctx, runID, started.Add(time.Minute), store.RunSuccess, nil))
	require.NoError(t, runs.UpsertTask(ctx, store.TaskStats{
		RunID: runID, Task: "scrape_golang", Subreddit: "golang",
		Status: store.TaskSuccess, Attempts: 1, Seen: 20, Saved: 19, LastUpdate: started,
	}))
	s := newTestServer(t, Deps{Runs: runs})

	rec := do(t, s, http.MethodGet, "/v1/runs?status=success", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), runID.String())

	rec = do(t, s, http.MethodGet, "/v1/runs?status=bogus", nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, s, http.MethodGet, "/v1/runs?limit=-1", nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, s, http.MethodGet, "/v1/runs/"+runID.String(), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var got struct {
		Run runDTO `json:"run"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	require.Equal(t, "success", got.Run.Status)
	require.NotNil(t, got.Run.FinishedAt)

	rec = do(t, s, http.MethodGet, "/v1/runs/"+uuid.NewString(), nil)
	require.Equal(t, http.StatusNotFound, rec.Code)

	rec = do(t, s, http.MethodGet, "/v1/runs/not-a-uuid", nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, s, http.MethodGet, "/v1/runs/"+runID.String()+"/tasks", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var tasks struct {
		Tasks []taskDTO `json:"tasks"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &tasks))
	require.Len(t, tasks.Tasks, 1)
	require.Equal(t, 19, tasks.Tasks[0].Saved)
	require.Equal(t, "success", tasks.Tasks[0].Status)

	rec = do(t, newTestServer(t, Deps{}), http.MethodGet, "/v1/runs", nil)
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestServer_APIKey(t *testing.T) {
	t.Parallel()

	cfg := testConfig()
	cfg.Auth = config.AuthConfig{Enabled: true, APIKey: "secret"}
	s := NewServer(cfg, Deps{Posts: memory.NewPostStore(), Pipeline: &fakePipeline{}})

	rec := do(t, s, http.MethodGet, "/v1/subreddits", nil)
	require.Equal(t, http.StatusForbidden, rec.Code)

	req := httptest.NewRequest(http.MethodGet, "/v1/subreddits", nil)
	req.Header.Set("X-API-Key", "secret")
	rec = httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = do(t, s, http.MethodGet, "/v1/subreddits?api_key=secret", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = do(t, s, http.MethodGet, "/healthz", nil)
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestServer_RecoversPanics(t *testing.T) {
	t.Parallel()

	s := newTestServer(t, Deps{Posts: panickingPosts{}})
	rec := do(t, s, http.MethodGet, "/v1/posts", nil)
	require.Equal(t, http.StatusInternalServerError, rec.Code)
	require.Contains(t, rec.Body.String(), "internal server error")
}

type panickingPosts struct{}

func (panickingPosts) ListPosts(context.Context, scraper.PostQuery) ([]scraper.Post, error) {
	panic("boom")
}

func (panickingPosts) Ping(context.Context) error { return nil }

func TestServer_CORSPreflight(t *testing.T) {
	t.Parallel()

	s := newTestServer(t, Deps{Posts: memory.NewPostStore()})
	req := httptest.NewRequest(http.MethodOptions, "/v1/posts", nil)
	req.Header.Set("Origin", "https://example.com")
	req.Header.Set("Access-Control-Request-Method", http.MethodGet)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	require.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}
