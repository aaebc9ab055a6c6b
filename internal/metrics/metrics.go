// Package metrics declares the broker's Prometheus instrumentation.
//
// Naming convention: namespace_subsystem_name
//   - namespace: air_jam
//   - subsystem: ws, room, authstore, rate_limit
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ActiveConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "air_jam",
		Subsystem: "ws",
		Name:      "connections_active",
		Help:      "Current number of active WebSocket connections",
	})

	ActiveRooms = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "air_jam",
		Subsystem: "room",
		Name:      "rooms_active",
		Help:      "Current number of live rooms",
	})

	RoomControllers = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "air_jam",
		Subsystem: "room",
		Name:      "controllers_count",
		Help:      "Number of controllers currently joined to each room",
	}, []string{"room_code"})

	EventsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "air_jam",
		Subsystem: "ws",
		Name:      "events_total",
		Help:      "Total events processed by the router",
	}, []string{"event", "status"})

	EventProcessingDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "air_jam",
		Subsystem: "ws",
		Name:      "event_processing_seconds",
		Help:      "Time spent decoding and handling a single inbound event",
		Buckets:   []float64{.0005, .001, .005, .01, .025, .05, .1, .25, .5},
	}, []string{"event"})

	AuthStoreCircuitState = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "air_jam",
		Subsystem: "authstore",
		Name:      "circuit_state",
		Help:      "Current state of the API-key store circuit breaker (0: Closed, 1: Half-Open, 2: Open)",
	})

	AuthStoreFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "air_jam",
		Subsystem: "authstore",
		Name:      "failures_total",
		Help:      "Total API-key store lookups rejected by the circuit breaker or failed outright",
	}, []string{"reason"})

	RateLimitExceeded = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "air_jam",
		Subsystem: "rate_limit",
		Name:      "exceeded_total",
		Help:      "Total requests that exceeded a rate limit",
	}, []string{"scope"})
)

// NewEventTimer starts a timer that records into EventProcessingDuration for
// the given event when ObserveDuration is called.
func NewEventTimer(event string) *prometheus.Timer {
	return prometheus.NewTimer(EventProcessingDuration.WithLabelValues(event))
}

func IncConnection() {
	ActiveConnections.Inc()
}

func DecConnection() {
	ActiveConnections.Dec()
}
