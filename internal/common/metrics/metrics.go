// internal/common/metrics/metrics.go
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	EnvelopesProcessed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pipeline_envelopes_processed_total",
			Help: "Total number of envelopes processed per stage and outcome",
		},
		[]string{"stage", "result"},
	)

	EnvelopesDeadLettered = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pipeline_envelopes_deadlettered_total",
			Help: "Total number of envelopes routed to the dead-letter topic",
		},
		[]string{"stage", "kind"},
	)

	ProcessingDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: "pipeline_processing_duration_seconds",
			Help: "Duration of envelope processing in seconds",
		},
		[]string{"stage"},
	)

	PublishAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pipeline_publish_attempts_total",
			Help: "Total publish attempts per topic and outcome",
		},
		[]string{"topic", "outcome"},
	)

	BreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "pipeline_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"name"},
	)
)
