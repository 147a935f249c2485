package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for practicedesk
type Metrics struct {
	// Gateway metrics
	Requests       *prometheus.CounterVec
	RequestLatency *prometheus.HistogramVec
	Retries        *prometheus.CounterVec
	RateLimited    *prometheus.CounterVec

	// Refresh coordination metrics
	Refreshes       *prometheus.CounterVec
	RefreshDuration prometheus.Histogram
	QueuedWaiters   prometheus.Histogram

	// Session lifecycle metrics
	LogoutBroadcasts   prometheus.Counter
	SessionTransitions *prometheus.CounterVec

	// Error metrics (by error code from structured errors)
	Errors *prometheus.CounterVec
}

// NewMetrics creates a new Metrics instance with all metrics registered
func NewMetrics(registry prometheus.Registerer) *Metrics {
	factory := promauto.With(registry)

	return &Metrics{
		Requests: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "practicedesk_requests_total",
				Help: "Total number of gateway requests by method and status class",
			},
			[]string{"method", "status_class"},
		),
		RequestLatency: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "practicedesk_request_duration_seconds",
				Help:    "Gateway request latency in seconds, including any refresh and retry",
				Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0},
			},
			[]string{"method"},
		),
		Retries: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "practicedesk_request_retries_total",
				Help: "Total number of requests re-issued after a token refresh",
			},
			[]string{"outcome"},
		),
		RateLimited: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "practicedesk_rate_limited_total",
				Help: "Total number of rate-limited responses",
			},
			[]string{"method"},
		),

		Refreshes: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "practicedesk_refreshes_total",
				Help: "Total number of refresh-token exchanges by outcome",
			},
			[]string{"outcome"},
		),
		RefreshDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "practicedesk_refresh_duration_seconds",
				Help:    "Refresh-token exchange duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
		),
		QueuedWaiters: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "practicedesk_refresh_queued_waiters",
				Help:    "Number of callers that joined an in-flight refresh",
				Buckets: []float64{0, 1, 2, 5, 10, 25, 50, 100},
			},
		),

		LogoutBroadcasts: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "practicedesk_logout_broadcasts_total",
				Help: "Total number of session-ended broadcasts",
			},
		),
		SessionTransitions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "practicedesk_session_transitions_total",
				Help: "Total number of session state transitions by target phase",
			},
			[]string{"phase"},
		),

		Errors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "practicedesk_errors_total",
				Help: "Total number of errors by error code",
			},
			[]string{"error_code", "component"},
		),
	}
}

// StatusClass buckets an HTTP status into "2xx", "4xx" and so on.
// A zero status is reported as "error" (no response received).
func StatusClass(status int) string {
	switch {
	case status == 0:
		return "error"
	case status < 200:
		return "1xx"
	case status < 300:
		return "2xx"
	case status < 400:
		return "3xx"
	case status < 500:
		return "4xx"
	default:
		return "5xx"
	}
}
