// Package metrics exposes Prometheus collectors for the proxy service.
package metrics

import (
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
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

	pipelineTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ogproxy_pipeline_total",
			Help: "Pipeline invocations, labeled by pipeline and outcome.",
		},
		[]string{"pipeline", "outcome"},
	)

	upstreamBytesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ogproxy_upstream_bytes_total",
			Help: "Total number of bytes fetched from upstream, labeled by site.",
		},
		[]string{"site"},
	)

	cacheLookupsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ogproxy_cache_lookups_total",
			Help: "Response cache lookups, labeled by result (hit, miss, error).",
		},
		[]string{"result"},
	)

	cacheStoresTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ogproxy_cache_stores_total",
			Help: "Response cache writes, labeled by result (ok, error).",
		},
		[]string{"result"},
	)

	encodeDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "ogproxy_encode_duration_seconds",
			Help:    "Histogram of image re-encode latencies, labeled by source MIME type.",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		},
		[]string{"source"},
	)

	rateLimitDelaysSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "ogproxy_rate_limit_delays_seconds",
			Help:    "Histogram of upstream rate limit wait durations.",
			Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30},
		},
		[]string{"domain"},
	)
)

// SanitizeSite sanitizes a URL to extract a lowercase hostname.
// It returns "unknown" if the URL is invalid.
func SanitizeSite(rawURL string) string {
	if !strings.HasPrefix(rawURL, "http") {
		rawURL = "http://" + rawURL
	}
	u, err := url.Parse(rawURL)
	if err != nil || u.Hostname() == "" {
		return "unknown"
	}
	return strings.ToLower(u.Hostname())
}

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}

// ObservePipeline counts one pipeline run.
func ObservePipeline(pipeline, outcome string) {
	pipelineTotal.WithLabelValues(pipeline, outcome).Inc()
}

// ObserveUpstream records bytes fetched from site.
func ObserveUpstream(site string, bytesFetched int) {
	if bytesFetched <= 0 {
		return
	}
	upstreamBytesTotal.WithLabelValues(SanitizeSite(site)).Add(float64(bytesFetched))
}

// ObserveCacheLookup records a cache lookup result.
func ObserveCacheLookup(result string) {
	cacheLookupsTotal.WithLabelValues(result).Inc()
}

// ObserveCacheStore records a cache write result.
func ObserveCacheStore(result string) {
	cacheStoresTotal.WithLabelValues(result).Inc()
}

// ObserveEncode records how long a re-encode of a source type took.
func ObserveEncode(source string, duration time.Duration) {
	encodeDurationSeconds.WithLabelValues(source).Observe(duration.Seconds())
}

// ObserveRateLimitDelay records the duration of a rate limit wait.
func ObserveRateLimitDelay(domain string, duration time.Duration) {
	rateLimitDelaysSeconds.WithLabelValues(domain).Observe(duration.Seconds())
}
