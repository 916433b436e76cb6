// Package metrics exposes Prometheus collectors for the booking engine.
// This is part of the platform layer and contains no business logic.
package metrics

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	providerErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "provider_errors_total",
			Help: "Total number of failed calls to calendar, voice and messaging providers",
		},
		[]string{"provider", "operation"},
	)

	leadTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "outreach_transitions_total",
			Help: "Total number of outreach state machine transitions",
		},
		[]string{"state"},
	)

	bookingOutcomes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "booking_commits_total",
			Help: "Total number of booking commit attempts by outcome",
		},
		[]string{"outcome"},
	)

	optOutLookupFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "optout_lookup_failures_total",
			Help: "Opt-out lookups that failed before a send",
		},
	)

	complianceBlocks = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "compliance_blocked_sends_total",
			Help: "Sends refused because the recipient opted out",
		},
		[]string{"channel"},
	)

	retryEntries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "retry_entries_total",
			Help: "Retry queue entry executions by reason and result",
		},
		[]string{"reason", "result"},
	)

	sweepClaimed = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "retry_sweep_claimed",
			Help:    "Entries claimed per sweep",
			Buckets: []float64{0, 1, 5, 10, 25, 50, 100, 250},
		},
	)

	fanoutDropped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "fanout_events_dropped_total",
			Help: "Fan-out events overwritten in the ring before they were flushed",
		},
	)

	fanoutChannels = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "fanout_channels",
			Help: "Live fan-out channels across all tenants",
		},
	)
)

// Middleware records request counts and latency per route.
func Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		status := strconv.Itoa(c.Writer.Status())
		httpRequestsTotal.WithLabelValues(c.Request.Method, path, status).Inc()
		httpRequestDuration.WithLabelValues(c.Request.Method, path).Observe(time.Since(start).Seconds())
	}
}

// Handler serves the default registry.
func Handler() gin.HandlerFunc {
	return gin.WrapH(promhttp.Handler())
}

func RecordProviderError(provider, operation string) {
	providerErrors.WithLabelValues(provider, operation).Inc()
}

func RecordTransition(state string) {
	leadTransitions.WithLabelValues(state).Inc()
}

func RecordBooking(outcome string) {
	bookingOutcomes.WithLabelValues(outcome).Inc()
}

func RecordOptOutLookupFailure() {
	optOutLookupFailures.Inc()
}

func RecordComplianceBlock(channel string) {
	complianceBlocks.WithLabelValues(channel).Inc()
}

func RecordRetryEntry(reason, result string) {
	retryEntries.WithLabelValues(reason, result).Inc()
}

func RecordSweep(claimed int) {
	sweepClaimed.Observe(float64(claimed))
}

func RecordFanoutDropped(n uint64) {
	fanoutDropped.Add(float64(n))
}

func SetFanoutChannels(n int) {
	fanoutChannels.Set(float64(n))
}
