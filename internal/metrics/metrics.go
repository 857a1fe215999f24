// Package metrics exposes Prometheus collectors for the relay service.
package metrics

import (
	"net/http"
	"net/url"
	"path"
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
			Name: "relay_http_requests_total",
			Help: "Total number of relay HTTP requests, labeled by method, route and code.",
		},
		[]string{"method", "route", "code"},
	)

	httpRequestDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "relay_http_request_duration_seconds",
			Help:    "Histogram of relay HTTP request latencies, labeled by method and route.",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
		},
		[]string{"method", "route"},
	)

	upstreamAttemptsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "relay_upstream_attempts_total",
			Help: "Total upstream GET attempts, labeled by resource and outcome.",
		},
		[]string{"resource", "outcome"},
	)

	upstreamThrottleWaitSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "relay_upstream_throttle_wait_seconds",
			Help:    "Histogram of Retry-After waits honored after upstream 429 responses.",
			Buckets: []float64{0.5, 1, 2, 5, 10, 30, 60},
		},
		[]string{"resource"},
	)

	registrationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "relay_registrations_total",
			Help: "Total bot registration attempts that reached the upstream, labeled by outcome.",
		},
		[]string{"outcome"},
	)
)

// Upstream attempt outcomes.
const (
	OutcomeOK        = "ok"
	OutcomeThrottled = "throttled"
	OutcomeFailed    = "failed"
	OutcomeTransport = "transport_error"
)

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Resource reduces an upstream URL to its last path segment ("bots",
// "categories") to keep label cardinality bounded.
// It returns "unknown" if the URL is invalid.
func Resource(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "unknown"
	}
	base := path.Base(strings.TrimSuffix(u.Path, "/"))
	if base == "." || base == "/" || base == "" {
		return "root"
	}
	return strings.ToLower(base)
}

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	httpRequestsTotal.WithLabelValues(method, route, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}

// ObserveUpstreamAttempt counts one upstream attempt.
func ObserveUpstreamAttempt(resource, outcome string) {
	upstreamAttemptsTotal.WithLabelValues(resource, outcome).Inc()
}

// ObserveThrottleWait records a Retry-After suspension.
func ObserveThrottleWait(resource string, wait time.Duration) {
	upstreamThrottleWaitSeconds.WithLabelValues(resource).Observe(wait.Seconds())
}

// ObserveRegistration counts a registration outcome.
func ObserveRegistration(outcome string) {
	registrationsTotal.WithLabelValues(outcome).Inc()
}
