// Package metrics provides the Prometheus registry and the HTTP-facing
// metrics of the lottery proxy. Component metrics are defined in their
// respective packages (client, cache, ratelimit) to keep them modular and
// avoid circular dependencies.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry is the default Prometheus registry used by the proxy.
// All metrics are automatically registered via promauto in their respective packages.
var Registry = prometheus.DefaultRegisterer

// Gatherer is the gatherer served by Handler.
var Gatherer = prometheus.DefaultGatherer

var (
	// HTTPRequests counts served API requests by route template.
	HTTPRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lottery_http_requests_total",
			Help: "Total number of HTTP requests served by method, route and status",
		},
		[]string{"method", "route", "status"},
	)

	// HTTPDuration tracks handler latency by route template.
	HTTPDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "lottery_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds by method and route",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)

	// HTTPInFlight is the number of requests currently being served.
	HTTPInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "lottery_http_requests_in_flight",
			Help: "Number of HTTP requests currently being served",
		},
	)
)

// ObserveHTTP records one served request.
func ObserveHTTP(method, route string, status int, elapsed time.Duration) {
	HTTPRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	HTTPDuration.WithLabelValues(method, route).Observe(elapsed.Seconds())
}

// Handler returns the exposition handler for GET /metrics.
func Handler() http.Handler {
	return promhttp.HandlerFor(Gatherer, promhttp.HandlerOpts{})
}

// Metrics Documentation
//
// HTTP Metrics (pkg/metrics):
//   - lottery_http_requests_total{method, route, status} (Counter): Served requests
//   - lottery_http_request_duration_seconds{method, route} (Histogram): Handler latency
//   - lottery_http_requests_in_flight (Gauge): Requests currently being served
//
// Rate Limit Metrics (pkg/ratelimit):
//   - lottery_rate_limit_checks_total{backend} (Counter): Admission checks by backend
//   - lottery_rate_limit_rejections_total{backend} (Counter): Requests rejected with 429
//   - lottery_rate_limit_errors_total{backend} (Counter): Backend failures (requests fail open)
//
// Cache Metrics (pkg/cache):
//   - lottery_cache_hits_total{resource} (Counter): Result cache hits
//   - lottery_cache_misses_total{resource} (Counter): Misses, including expired entries
//   - lottery_cache_entries (Gauge): Entries currently held
//   - lottery_cache_clears_total (Counter): Explicit cache clears
//   - lottery_cache_evictions_total (Counter): Expired entries removed
//
// Upstream Metrics (pkg/client):
//   - lottery_upstream_requests_total{operation, status} (Counter): Upstream calls by HTTP status
//   - lottery_upstream_request_duration_seconds{operation} (Histogram): Upstream latency
//   - lottery_upstream_errors_total{class} (Counter): Errors by class (client, server, network, payload)
//
// Retry Metrics (pkg/client):
//   - lottery_upstream_retries_total{error_class} (Counter): Retry attempts by error class
//   - lottery_upstream_retry_backoff_seconds{error_class} (Histogram): Backoff duration
//   - lottery_upstream_retry_exhausted_total{error_class} (Counter): Calls that exhausted retries
//
// Example Prometheus Queries:
//
//   # Cache Hit Rate
//   sum(rate(lottery_cache_hits_total[5m])) /
//   (sum(rate(lottery_cache_hits_total[5m])) + sum(rate(lottery_cache_misses_total[5m])))
//
//   # Upstream Error Rate
//   rate(lottery_upstream_errors_total[5m])
//
//   # P95 API Latency
//   histogram_quantile(0.95, rate(lottery_http_request_duration_seconds_bucket[5m]))
//
//   # Share of rejected requests
//   rate(lottery_rate_limit_rejections_total[5m]) / rate(lottery_rate_limit_checks_total[5m])
