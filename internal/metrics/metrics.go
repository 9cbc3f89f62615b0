// Package metrics exposes Prometheus collectors for the newsbot service.
package metrics

import (
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	postsUpsertedTotal         *prometheus.CounterVec
	sourceRequestsTotal        *prometheus.CounterVec
	sourceRequestSeconds       *prometheus.HistogramVec
	explainRequestsTotal       *prometheus.CounterVec
	httpRequestsTotal          *prometheus.CounterVec
	httpRequestDurationSeconds *prometheus.HistogramVec
	activeWorkers              prometheus.Gauge

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		postsUpsertedTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "newsbot_posts_upserted_total",
				Help: "Post upserts, labeled by subreddit and result.",
			},
			[]string{"subreddit", "result"},
		)

		sourceRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "newsbot_source_requests_total",
				Help: "Listing source requests, labeled by endpoint and status class.",
			},
			[]string{"endpoint", "status"},
		)

		sourceRequestSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "newsbot_source_request_duration_seconds",
				Help:    "Histogram of listing source latencies, labeled by endpoint.",
				Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5, 10},
			},
			[]string{"endpoint"},
		)

		explainRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "newsbot_explain_requests_total",
				Help: "Keyword explanation calls, labeled by result.",
			},
			[]string{"result"},
		)

		httpRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests, labeled by method and code.",
			},
			[]string{"method", "code"},
		)

		httpRequestDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "Histogram of HTTP request latencies, labeled by method and route.",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5},
			},
			[]string{"method", "route"},
		)

		activeWorkers = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "newsbot_active_workers",
				Help: "Number of workers currently running a channel task.",
			},
		)
	})
}

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// StatusClass buckets an HTTP status into 2xx/3xx/4xx/5xx, or "error" when
// no response was received.
func StatusClass(code int) string {
	if code < 100 || code > 599 {
		return "error"
	}
	return strconv.Itoa(code/100) + "xx"
}

// ObservePostUpsert counts one upsert attempt.
func ObservePostUpsert(subreddit string, ok bool) {
	Init()
	result := "saved"
	if !ok {
		result = "failed"
	}
	postsUpsertedTotal.WithLabelValues(strings.ToLower(subreddit), result).Inc()
}

// ObserveSourceRequest records a call to the listing source.
func ObserveSourceRequest(endpoint string, code int, duration time.Duration) {
	Init()
	sourceRequestsTotal.WithLabelValues(endpoint, StatusClass(code)).Inc()
	sourceRequestSeconds.WithLabelValues(endpoint).Observe(duration.Seconds())
}

// ObserveExplain counts an explanation call by result ("ok" or "error").
func ObserveExplain(result string) {
	Init()
	explainRequestsTotal.WithLabelValues(result).Inc()
}

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	Init()
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}

// IncActiveWorkers increments the active workers gauge.
func IncActiveWorkers() {
	Init()
	activeWorkers.Inc()
}

// DecActiveWorkers decrements the active workers gauge.
func DecActiveWorkers() {
	Init()
	activeWorkers.Dec()
}
