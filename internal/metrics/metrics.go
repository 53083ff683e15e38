// Package metrics exposes Prometheus metrics for the session service.
package metrics

import (
	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// HTTPRequestsTotal counts total HTTP requests by method, path, and status
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "stylopay",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests by method, path, and status code",
		},
		[]string{"method", "path", "status"},
	)

	// HTTPRequestDuration measures HTTP request duration in seconds
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "stylopay",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"method", "path"},
	)

	// HTTPRequestsInFlight tracks current in-flight requests
	HTTPRequestsInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "stylopay",
			Subsystem: "http",
			Name:      "requests_in_flight",
			Help:      "Current number of HTTP requests being processed",
		},
	)
)

var (
	// LoginsTotal counts login attempts by outcome
	LoginsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "stylopay",
			Subsystem: "auth",
			Name:      "logins_total",
			Help:      "Total login attempts by outcome (success, invalid_credentials, locked, suspended, closed)",
		},
		[]string{"outcome"},
	)

	// LockoutsTotal counts account lockouts triggered by repeated failures
	LockoutsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "stylopay",
			Subsystem: "auth",
			Name:      "lockouts_total",
			Help:      "Total account lockouts triggered",
		},
	)

	// RefreshesTotal counts session refresh outcomes
	RefreshesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "stylopay",
			Subsystem: "auth",
			Name:      "refreshes_total",
			Help:      "Total session refresh requests by outcome (refreshed, noop, rejected)",
		},
		[]string{"outcome"},
	)

	// BrokerRequestsTotal counts external credential broker calls
	BrokerRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "stylopay",
			Subsystem: "broker",
			Name:      "requests_total",
			Help:      "External credential broker calls by outcome (success, unavailable, rate_limited, malformed, expired, auth_failed)",
		},
		[]string{"outcome"},
	)

	// BrokerRequestDuration measures broker call duration
	BrokerRequestDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "stylopay",
			Subsystem: "broker",
			Name:      "request_duration_seconds",
			Help:      "External credential broker call duration in seconds",
			Buckets:   []float64{.01, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
	)
)

// RegisterRoutes mounts the /metrics endpoint on the router
func RegisterRoutes(r chi.Router) {
	r.Handle("/metrics", promhttp.Handler())
}
