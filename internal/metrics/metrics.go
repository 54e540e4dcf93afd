// Package metrics exposes Prometheus collectors for the ingestion service.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	crawlerPagesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "crawler_pages_total",
			Help: "Total search pages fetched, labeled by keyword and outcome.",
		},
		[]string{"keyword", "status"},
	)

	crawlerVideosIngestedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "crawler_videos_ingested_total",
			Help: "Total video records committed, labeled by phase and subject.",
		},
		[]string{"phase", "subject"},
	)

	crawlerClassifyTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "crawler_classify_total",
			Help: "Total classification decisions, labeled by the tier that fired.",
		},
		[]string{"tier"},
	)

	crawlerFetchRetriesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "crawler_fetch_retries_total",
			Help: "Total transport-level retry attempts against the search API.",
		},
	)

	crawlerUpsertFailuresTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "crawler_upsert_failures_total",
			Help: "Total batch upserts that rolled back.",
		},
	)

	crawlerRateLimitSleepSeconds = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "crawler_rate_limit_sleep_seconds",
			Help:    "Histogram of courtesy sleep durations between page fetches.",
			Buckets: []float64{0.5, 1, 2, 3, 4, 5, 10},
		},
	)

	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total ops HTTP requests, labeled by method and code.",
		},
		[]string{"method", "code"},
	)

	httpRequestDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Histogram of ops HTTP request latencies, labeled by method and route.",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5},
		},
		[]string{"method", "route"},
	)
)

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObservePage increments the page counter for the given keyword and outcome.
func ObservePage(keyword, status string) {
	crawlerPagesTotal.WithLabelValues(keyword, status).Inc()
}

// ObserveIngested adds committed records to the ingest counter.
func ObserveIngested(phase, subject string, count int) {
	if count > 0 {
		crawlerVideosIngestedTotal.WithLabelValues(phase, subject).Add(float64(count))
	}
}

// ObserveClassify increments the per-tier classification counter.
func ObserveClassify(tier string) {
	crawlerClassifyTotal.WithLabelValues(tier).Inc()
}

// ObserveFetchRetry increments the transport retry counter.
func ObserveFetchRetry() {
	crawlerFetchRetriesTotal.Inc()
}

// ObserveUpsertFailure increments the rolled-back batch counter.
func ObserveUpsertFailure() {
	crawlerUpsertFailuresTotal.Inc()
}

// ObserveRateLimitSleep records one courtesy sleep duration.
func ObserveRateLimitSleep(d time.Duration) {
	crawlerRateLimitSleepSeconds.Observe(d.Seconds())
}

// ObserveHTTPRequest increments the ops HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}
