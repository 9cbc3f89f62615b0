// Package api hosts the HTTP server, middleware, and REST handlers. Notable routes:
//   - GET /healthz and /readyz for probes; readyz pings the post store.
//   - GET /metrics for Prometheus scraping.
//   - GET /v1/subreddits and /v1/posts for the filtered, bounded read view.
//   - POST /v1/explain for keyword explanations.
//   - POST /v1/runs to trigger a scrape run, GET /v1/runs and
//     /v1/runs/{run_id}/tasks for run history via the RunRepository.
package api
