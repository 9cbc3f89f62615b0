// Package api exposes the HTTP interface for the newsbot service.
package api

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/JakeFAU/reddit-newsbot/internal/config"
	"github.com/JakeFAU/reddit-newsbot/internal/metrics"
	"github.com/JakeFAU/reddit-newsbot/internal/scheduler"
	"github.com/JakeFAU/reddit-newsbot/internal/scraper"
	"github.com/JakeFAU/reddit-newsbot/internal/store"
	"github.com/JakeFAU/reddit-newsbot/internal/telemetry"
)

// Post list bounds for GET /v1/posts.
const (
	DefaultPostLimit = 10
	MaxPostLimit     = 50
	readyTimeout     = 2 * time.Second
	maxExplainBody   = 4 << 10
)

// PostSource serves the read view and the readiness probe.
type PostSource interface {
	ListPosts(ctx context.Context, query scraper.PostQuery) ([]scraper.Post, error)
	Ping(ctx context.Context) error
}

// Explainer renders keyword explanations; explain.Explainer satisfies it.
type Explainer interface {
	Explain(ctx context.Context, keyword string) string
}

// RunStarter triggers background runs; scheduler.Pipeline satisfies it.
type RunStarter interface {
	Start(ctx context.Context) (string, <-chan scheduler.RunSummary, error)
	Subreddits() []string
}

// Deps are the collaborators behind the routes. Runs, Explainer and Pipeline
// are optional; their routes answer 503 when nil.
type Deps struct {
	Posts     PostSource
	Runs      store.RunRepository
	Explainer Explainer
	Pipeline  RunStarter
	Logger    *zap.Logger
}

// Server wires HTTP handlers to the stores and the pipeline.
type Server struct {
	router chi.Router
	deps   Deps
	runs   *RunHandler
	logger *zap.Logger
}

// NewServer constructs a Server with middleware and routes.
func NewServer(cfg config.Config, deps Deps) *Server {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.Named("api")
	s := &Server{
		deps:   deps,
		runs:   NewRunHandler(deps.Runs, logger),
		logger: logger,
	}

	timeout := time.Duration(cfg.Server.RequestTimeoutSec) * time.Second
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	origins := cfg.Server.CORSAllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoverMiddleware)
	r.Use(metrics.Middleware)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type", "X-API-Key", "X-Request-ID"},
		ExposedHeaders: []string{"X-Request-ID"},
		MaxAge:         300,
	}))
	r.Use(timeoutMiddleware(timeout))

	r.Get("/healthz", s.healthz)
	r.Get("/readyz", s.readyz)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	r.Route("/v1", func(r chi.Router) {
		if cfg.Auth.Enabled {
			r.Use(apiKeyMiddleware(cfg.Auth.APIKey))
		}
		r.Get("/subreddits", s.listSubreddits)
		r.Get("/posts", s.listPosts)
		r.Post("/explain", s.explain)
		r.Route("/runs", func(r chi.Router) {
			r.Post("/", s.startRun)
			r.Get("/", s.runs.ListRuns)
			r.Get("/{run_id}", s.runs.GetRun)
			r.Get("/{run_id}/tasks", s.runs.ListRunTasks)
		})
	})

	s.router = r
	return s
}

// Handler returns the traced router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return telemetry.Handler(s.router, "newsbot-api")
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) readyz(w http.ResponseWriter, r *http.Request) {
	if s.deps.Posts == nil {
		writeError(w, http.StatusServiceUnavailable, "post store unavailable")
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), readyTimeout)
	defer cancel()
	if err := s.deps.Posts.Ping(ctx); err != nil {
		s.logger.Warn("readiness check failed", zap.Error(err))
		writeError(w, http.StatusServiceUnavailable, "post store not ready")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func (s *Server) listSubreddits(w http.ResponseWriter, _ *http.Request) {
	var subs []string
	if s.deps.Pipeline != nil {
		subs = s.deps.Pipeline.Subreddits()
	}
	if subs == nil {
		subs = []string{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"subreddits": subs})
}

// listPosts handles GET /v1/posts?subreddit=&limit=. "All" or an empty
// subreddit means no filter; limit defaults to 10 and is clamped to [1,50].
func (s *Server) listPosts(w http.ResponseWriter, r *http.Request) {
	if s.deps.Posts == nil {
		writeError(w, http.StatusServiceUnavailable, "post store unavailable")
		return
	}
	q := r.URL.Query()
	limit := DefaultPostLimit
	if raw := q.Get("limit"); raw != "" {
		val, err := strconv.Atoi(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = max(1, min(val, MaxPostLimit))
	}
	query := scraper.PostQuery{Subreddit: strings.TrimSpace(q.Get("subreddit")), Limit: limit}

	posts, err := s.deps.Posts.ListPosts(r.Context(), query)
	if err != nil {
		s.logger.Error("list posts failed", zap.String("subreddit", query.Subreddit), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to list posts")
		return
	}
	if posts == nil {
		posts = []scraper.Post{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"posts": posts})
}

type explainRequest struct {
	Keyword string `json:"keyword"`
}

type explainResponse struct {
	Keyword     string `json:"keyword"`
	Explanation string `json:"explanation"`
}

// explain always answers 200 once the keyword is valid; upstream failures
// arrive as "Error: ..." explanations.
func (s *Server) explain(w http.ResponseWriter, r *http.Request) {
	if s.deps.Explainer == nil {
		writeError(w, http.StatusServiceUnavailable, "explainer unavailable")
		return
	}
	var req explainRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxExplainBody)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	keyword := strings.TrimSpace(req.Keyword)
	if keyword == "" {
		writeError(w, http.StatusBadRequest, "keyword required")
		return
	}
	writeJSON(w, http.StatusOK, explainResponse{
		Keyword:     keyword,
		Explanation: s.deps.Explainer.Explain(r.Context(), keyword),
	})
}

func (s *Server) startRun(w http.ResponseWriter, r *http.Request) {
	if s.deps.Pipeline == nil {
		writeError(w, http.StatusServiceUnavailable, "pipeline unavailable")
		return
	}
	runID, done, err := s.deps.Pipeline.Start(r.Context())
	switch {
	case errors.Is(err, scheduler.ErrRunInProgress):
		writeError(w, http.StatusConflict, err.Error())
		return
	case err != nil:
		s.logger.Error("start run failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to start run")
		return
	}
	go func() {
		summary := <-done
		if summary.Err != nil {
			s.logger.Warn("api-triggered run failed", zap.String("run_id", runID), zap.Error(summary.Err))
		}
	}()
	writeJSON(w, http.StatusAccepted, map[string]string{"run_id": runID})
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		w.Header().Set("X-Request-ID", middleware.GetReqID(r.Context()))
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		s.logger.Info("request completed",
			zap.String("request_id", middleware.GetReqID(r.Context())),
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", status),
			zap.Int("bytes", ww.BytesWritten()),
			zap.Duration("dur", time.Since(start)),
		)
	})
}

func (s *Server) recoverMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				if rec == http.ErrAbortHandler {
					panic(rec)
				}
				s.logger.Error("panic recovered",
					zap.String("request_id", middleware.GetReqID(r.Context())),
					zap.Any("panic", rec),
					zap.Stack("stack"),
				)
				writeError(w, http.StatusInternalServerError, "internal server error")
			}
		}()
		next.ServeHTTP(w, r)
	})
}

func timeoutMiddleware(d time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.TimeoutHandler(next, d, `{"error":"request timed out"}`)
	}
}

func apiKeyMiddleware(expected string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := r.Header.Get("X-API-Key")
			if key == "" {
				key = r.URL.Query().Get("api_key")
			}
			if subtle.ConstantTimeCompare([]byte(key), []byte(expected)) != 1 {
				writeError(w, http.StatusForbidden, "unauthorized")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		zap.L().Error("write JSON failed", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
