// Package metrics holds the Prometheus collectors of the dashboard gateway.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/sevenitynet/reliefboard/guard"
	"github.com/sevenitynet/reliefboard/session"
)

// Metrics holds all Prometheus metrics for reliefboard.
type Metrics struct {
	// HTTP metrics
	Requests        *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec

	// Navigation metrics
	GuardDecisions *prometheus.CounterVec

	// Session metrics
	SessionOperations *prometheus.CounterVec

	// Chat metrics
	ChatMessages *prometheus.CounterVec

	registry prometheus.Registerer
}

// New creates a Metrics instance with all collectors registered on registry.
func New(registry prometheus.Registerer) *Metrics {
	factory := promauto.With(registry)

	return &Metrics{
		Requests: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "reliefboard_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "route", "code"},
		),
		RequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "reliefboard_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		),
		GuardDecisions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "reliefboard_guard_decisions_total",
				Help: "Total number of route guard decisions",
			},
			[]string{"outcome"},
		),
		SessionOperations: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "reliefboard_session_operations_total",
				Help: "Total number of session operations",
			},
			[]string{"operation", "status"},
		),
		ChatMessages: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "reliefboard_chat_messages_total",
				Help: "Total number of chat messages",
			},
			[]string{"direction"},
		),
		registry: registry,
	}
}

// ObserveDecision counts a guard decision.
func (m *Metrics) ObserveDecision(d guard.Decision) {
	m.GuardDecisions.WithLabelValues(d.Outcome.String()).Inc()
}

// ObserveSession counts a session operation. It satisfies session.Observer.
func (m *Metrics) ObserveSession(op session.Operation, status session.Status) {
	m.SessionOperations.WithLabelValues(string(op), string(status)).Inc()
}

// ObserveChat counts a chat message, direction being "in" or "out".
func (m *Metrics) ObserveChat(direction string) {
	m.ChatMessages.WithLabelValues(direction).Inc()
}

// TrackStores exposes the number of in-memory session stores as a gauge.
func (m *Metrics) TrackStores(count func() int) {
	promauto.With(m.registry).NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: "reliefboard_session_stores",
			Help: "Number of client session stores held in memory",
		},
		func() float64 { return float64(count()) },
	)
}
