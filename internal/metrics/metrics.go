// Package metrics exposes the prometheus collectors recorded by the generation pipeline.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Attempt outcomes used as the "outcome" label.
const (
	OutcomeSuccess   = "success"
	OutcomeClient    = "client_error"
	OutcomeTransient = "transient_error"
	OutcomeCanceled  = "canceled"
)

var (
	// UpstreamAttempts counts every chat-completions attempt by outcome.
	UpstreamAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "designgen_upstream_attempts_total",
			Help: "Total number of upstream chat-completions attempts",
		},
		[]string{"outcome"},
	)

	// Recoveries counts recovered documents by the strategy that produced them.
	Recoveries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "designgen_recovery_total",
			Help: "Total number of recovered documents by strategy",
		},
		[]string{"strategy"},
	)

	// GenerationDuration tracks end-to-end generation latency.
	GenerationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "designgen_generation_seconds",
			Help:    "Generation latency in seconds",
			Buckets: []float64{0.5, 1, 2, 5, 10, 20, 30, 60, 120},
		},
		[]string{"result"},
	)
)

// RecordAttempt increments the attempt counter for outcome.
func RecordAttempt(outcome string) {
	UpstreamAttempts.WithLabelValues(outcome).Inc()
}

// RecordRecovery increments the recovery counter for strategy.
func RecordRecovery(strategy string) {
	Recoveries.WithLabelValues(strategy).Inc()
}

// ObserveGeneration records the latency of one Generate call. result is
// "ok" or the failure kind.
func ObserveGeneration(result string, seconds float64) {
	GenerationDuration.WithLabelValues(result).Observe(seconds)
}

// Handler serves the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
