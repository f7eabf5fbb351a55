package rdstation

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// eventsSent tracks events accepted by the API
	eventsSent = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rdstation_events_sent_total",
			Help: "Total events accepted by RD Station by category",
		},
		[]string{"category"},
	)

	// eventsFailed tracks events that were rejected or could not be sent
	eventsFailed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rdstation_events_failed_total",
			Help: "Total events that failed by category and error type",
		},
		[]string{"category", "error_type"},
	)

	// requestDuration tracks round-trip time of event requests
	requestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "rdstation_request_duration_seconds",
			Help:    "Duration of RD Station API requests by category",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"category"},
	)
)

// recordSent increments the sent counter and observes the request duration
func recordSent(category Category, d time.Duration) {
	eventsSent.WithLabelValues(string(category)).Inc()
	requestDuration.WithLabelValues(string(category)).Observe(d.Seconds())
}

// recordFailed increments the failure counter
func recordFailed(category Category, errorType string) {
	eventsFailed.WithLabelValues(string(category), errorType).Inc()
}
