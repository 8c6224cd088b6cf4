// Package metrics holds the process-wide Prometheus collectors. They are
// served on GET /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	gobreaker "github.com/sony/gobreaker/v2"
)

var (
	// VisitorEvents counts beacons by event type and outcome
	// ("recorded", "bot", "invalid", "error").
	VisitorEvents = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "visitor_events_total",
			Help: "Visitor beacons processed, by type and outcome",
		},
		[]string{"type", "result"},
	)

	VisitorWriteDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "visitor_write_duration_seconds",
			Help:    "Latency of the visitor upsert statement",
			Buckets: prometheus.DefBuckets,
		},
	)

	OnlineVisitors = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "visitors_online",
			Help: "Visitors seen within the online window at the last aggregation",
		},
		[]string{"device_type"},
	)

	// GeoLookups counts resolutions by the tier that answered
	// ("private", "cache", "redis", "remote", "failure").
	GeoLookups = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "geo_lookups_total",
			Help: "IP geolocation lookups by answering tier",
		},
		[]string{"tier"},
	)

	GeoCacheEntries = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "geo_cache_entries",
			Help: "Entries currently held in the in-process geo cache",
		},
	)

	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"name"},
	)

	CircuitBreakerTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "circuit_breaker_transitions_total",
			Help: "Circuit breaker state transitions",
		},
		[]string{"name", "from", "to"},
	)

	// HTTPRequestDuration is labelled by route pattern, not raw path.
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latency by method, route and status",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route", "status"},
	)

	SideEffectErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "visitor_side_effect_errors_total",
			Help: "Failed best-effort publishes after a recorded beacon",
		},
		[]string{"sink"},
	)
)

// BreakerStateValue maps a breaker state to the gauge encoding above.
func BreakerStateValue(s gobreaker.State) float64 {
	switch s {
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return 0
	}
}
