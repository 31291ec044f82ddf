// Package metrics exposes prometheus collectors for the protocol engine and
// its collaborators. Components update the package-level collectors directly;
// exposition (an HTTP /metrics endpoint) is a deployment concern and lives
// outside the engine — see Handler for the standard wiring.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry is the shared registry all FeedMesh collectors register on.
var Registry = prometheus.NewRegistry()

func init() {
	Registry.MustRegister(
		ActiveSessions,
		SessionTransitions,
		MessagesTotal,
		NegotiationsTotal,
		ValidationFailures,
		BusPublishDuration,
	)
}

// ActiveSessions tracks session handlers currently in a non-terminal state.
var ActiveSessions = prometheus.NewGauge(prometheus.GaugeOpts{
	Name: "feedmesh_active_sessions",
	Help: "Session handlers currently in a non-terminal lifecycle state.",
})

// SessionTransitions counts lifecycle state transitions by target state.
var SessionTransitions = prometheus.NewCounterVec(prometheus.CounterOpts{
	Name: "feedmesh_session_transitions_total",
	Help: "Lifecycle state transitions by target state.",
}, []string{"to"})

// MessagesTotal counts protocol messages by direction and message type.
var MessagesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
	Name: "feedmesh_messages_total",
	Help: "Protocol messages processed, by direction and type.",
}, []string{"direction", "type"})

// NegotiationsTotal counts capability negotiations by outcome
// (accepted, rejected, invalid_agent).
var NegotiationsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
	Name: "feedmesh_negotiations_total",
	Help: "Capability negotiations by outcome.",
}, []string{"outcome"})

// ValidationFailures counts inbound messages rejected by schema validation.
var ValidationFailures = prometheus.NewCounter(prometheus.CounterOpts{
	Name: "feedmesh_validation_failures_total",
	Help: "Inbound messages rejected by schema validation.",
})

// BusPublishDuration observes full fan-out latency per topic, including all
// synchronously awaited subscribers.
var BusPublishDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
	Name:    "feedmesh_bus_publish_duration_seconds",
	Help:    "Event bus fan-out latency by topic.",
	Buckets: prometheus.DefBuckets,
}, []string{"topic"})

// Handler returns an http.Handler serving the registry in the prometheus
// text exposition format.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}
