// Package metrics holds the process-wide Prometheus collectors.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	httpRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "HTTP requests by method, route and status.",
	}, []string{"method", "route", "status"})

	httpDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "HTTP request latency by method and route.",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "route"})

	completionRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "completion_requests_total",
		Help: "Completion gateway calls by provider and outcome.",
	}, []string{"provider", "outcome"})

	completionDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "completion_duration_seconds",
		Help:    "Completion gateway latency including retries.",
		Buckets: []float64{0.25, 0.5, 1, 2, 5, 10, 20, 40, 60, 120},
	}, []string{"provider"})

	turnEvents = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "chat_turn_events_total",
		Help: "Turn events consumed by the worker, by status.",
	}, []string{"status"})
)

func ObserveHTTP(method, route string, status int, elapsed time.Duration) {
	httpRequests.WithLabelValues(method, route, statusLabel(status)).Inc()
	httpDuration.WithLabelValues(method, route).Observe(elapsed.Seconds())
}

// ObserveCompletion records one gateway call; outcome is "ok" or "error".
func ObserveCompletion(provider, outcome string, elapsed time.Duration) {
	completionRequests.WithLabelValues(provider, outcome).Inc()
	completionDuration.WithLabelValues(provider).Observe(elapsed.Seconds())
}

func ObserveTurnEvent(status string) {
	turnEvents.WithLabelValues(status).Inc()
}

func statusLabel(status int) string {
	switch {
	case status >= 500:
		return "5xx"
	case status >= 400:
		return "4xx"
	case status >= 300:
		return "3xx"
	default:
		return "2xx"
	}
}
