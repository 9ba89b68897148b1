// Package metrics exposes Prometheus counters for the proposal
// lifecycle engine.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the engine's instrumentation. All counters are safe for
// concurrent use.
type Metrics struct {
	registry *prometheus.Registry

	// Transitions counts lifecycle transitions by target status and
	// outcome ("ok", "invalid_state", "unresolved_comments",
	// "validation_failed", "validator_unavailable", "conflict", "error").
	Transitions *prometheus.CounterVec

	// ValidatorRetries counts transient validator faults that were
	// retried.
	ValidatorRetries prometheus.Counter

	// MaterializationFailures counts durable materializations that had
	// to be rolled back.
	MaterializationFailures prometheus.Counter

	// ContentWrites counts versioned content writes by result
	// ("ok", "rejected").
	ContentWrites *prometheus.CounterVec
}

func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())

	factory := promauto.With(reg)
	return &Metrics{
		registry: reg,
		Transitions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "specflow",
			Name:      "lifecycle_transitions_total",
			Help:      "Proposal lifecycle transitions by target status and outcome.",
		}, []string{"target", "outcome"}),
		ValidatorRetries: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "specflow",
			Name:      "validator_retries_total",
			Help:      "Transient validator faults that triggered a retry.",
		}),
		MaterializationFailures: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "specflow",
			Name:      "materialization_failures_total",
			Help:      "Durable materializations rolled back after a write failure.",
		}),
		ContentWrites: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "specflow",
			Name:      "content_writes_total",
			Help:      "Versioned content writes by result.",
		}, []string{"result"}),
	}
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
