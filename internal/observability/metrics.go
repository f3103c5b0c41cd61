package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the Prometheus collectors for the rule plane. It
// satisfies both the enforcement metrics and the event dispatcher
// metrics interfaces.
type Metrics struct {
	registry *prometheus.Registry

	transitionsTotal *prometheus.CounterVec
	transitionsLost  *prometheus.CounterVec
	sweepDuration    prometheus.Histogram
	sweepReverted    prometheus.Counter
	eventsPublished  *prometheus.CounterVec
	eventsDropped    *prometheus.CounterVec
	notifyFailures   *prometheus.CounterVec
}

// NewMetrics creates the collectors on a fresh registry
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()
	factory := promauto.With(registry)

	return &Metrics{
		registry: registry,
		transitionsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "ruleplane_transitions_total",
			Help: "State transitions applied, by entity type and outcome.",
		}, []string{"entity_type", "outcome"}),
		transitionsLost: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "ruleplane_transitions_lost_total",
			Help: "Compare-and-set transitions that found the row already settled.",
		}, []string{"entity_type"}),
		sweepDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "ruleplane_sweep_duration_seconds",
			Help:    "Duration of enforcement sweep passes.",
			Buckets: prometheus.DefBuckets,
		}),
		sweepReverted: factory.NewCounter(prometheus.CounterOpts{
			Name: "ruleplane_sweep_reverted_total",
			Help: "Change requests auto-reverted by the sweeper.",
		}),
		eventsPublished: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "ruleplane_events_published_total",
			Help: "Events accepted by the dispatcher, by type.",
		}, []string{"type"}),
		eventsDropped: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "ruleplane_events_dropped_total",
			Help: "Events dropped because the dispatch buffer was full.",
		}, []string{"type"}),
		notifyFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "ruleplane_notify_failures_total",
			Help: "Notifier delivery failures, by notifier and event type.",
		}, []string{"notifier", "type"}),
	}
}

// Handler returns the /metrics HTTP handler
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// TransitionApplied implements the enforcement metrics interface
func (m *Metrics) TransitionApplied(entityType, outcome string) {
	m.transitionsTotal.WithLabelValues(entityType, outcome).Inc()
}

// TransitionLost implements the enforcement metrics interface
func (m *Metrics) TransitionLost(entityType string) {
	m.transitionsLost.WithLabelValues(entityType).Inc()
}

// SweepCompleted implements the enforcement metrics interface
func (m *Metrics) SweepCompleted(duration time.Duration, reverted int) {
	m.sweepDuration.Observe(duration.Seconds())
	m.sweepReverted.Add(float64(reverted))
}

// EventPublished implements the dispatcher metrics interface
func (m *Metrics) EventPublished(eventType string) {
	m.eventsPublished.WithLabelValues(eventType).Inc()
}

// EventDropped implements the dispatcher metrics interface
func (m *Metrics) EventDropped(eventType string) {
	m.eventsDropped.WithLabelValues(eventType).Inc()
}

// NotifyFailed implements the dispatcher metrics interface
func (m *Metrics) NotifyFailed(notifier string, eventType string) {
	m.notifyFailures.WithLabelValues(notifier, eventType).Inc()
}
