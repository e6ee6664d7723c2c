package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "infra_monitor"

const (
	// OutcomeSuccess labels runs that completed and delivered their report.
	OutcomeSuccess = "success"
	// OutcomeDeliveryFailed labels runs whose report could not be delivered.
	OutcomeDeliveryFailed = "delivery_failed"
	// OutcomeError labels runs aborted by an internal failure.
	OutcomeError = "error"
)

var (
	runsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_total",
			Help:      "Pipeline runs, partitioned by outcome.",
		},
		[]string{"outcome"},
	)

	runDurationSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "run_duration_seconds",
			Help:      "Wall time of one pipeline run.",
			Buckets:   []float64{1, 2, 5, 10, 20, 30, 60, 120, 300},
		},
	)

	observationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "observations_total",
			Help:      "Observations after dampening, by collector and severity.",
		},
		[]string{"collector", "severity"},
	)

	dampenedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dampened_total",
			Help:      "Red observations downgraded on their first breach of the day.",
		},
	)

	collectorFailuresTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "collector_failures_total",
			Help:      "Collectors that failed or timed out as a whole.",
		},
		[]string{"collector"},
	)

	llmTokensTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "llm_tokens_total",
			Help:      "Tokens consumed by issue analysis.",
		},
	)

	deliveryFailuresTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "delivery_failures_total",
			Help:      "Reports that no sink accepted.",
		},
	)
)

// Register attaches the agent collectors to reg.
func Register(reg prometheus.Registerer) error {
	collectors := []prometheus.Collector{
		runsTotal,
		runDurationSeconds,
		observationsTotal,
		dampenedTotal,
		collectorFailuresTotal,
		llmTokensTotal,
		deliveryFailuresTotal,
	}
	for _, c := range collectors {
		if err := reg.Register(c); err != nil {
			if _, ok := err.(prometheus.AlreadyRegisteredError); ok {
				continue
			}
			return err
		}
	}
	return nil
}

// ObserveRun records one finished run. Unknown outcomes count as errors.
func ObserveRun(duration time.Duration, outcome string) {
	switch outcome {
	case OutcomeSuccess, OutcomeDeliveryFailed:
	default:
		outcome = OutcomeError
	}
	runsTotal.WithLabelValues(outcome).Inc()
	if duration < 0 {
		duration = 0
	}
	runDurationSeconds.Observe(duration.Seconds())
}

// ObserveSeverity counts one final observation.
func ObserveSeverity(collector, severity string) {
	observationsTotal.WithLabelValues(collector, severity).Inc()
}

// AddDampened counts downgraded observations.
func AddDampened(n int) {
	if n > 0 {
		dampenedTotal.Add(float64(n))
	}
}

// CollectorFailed counts a collector-level failure.
func CollectorFailed(collector string) {
	collectorFailuresTotal.WithLabelValues(collector).Inc()
}

// AddTokens counts analysis token usage.
func AddTokens(n int) {
	if n > 0 {
		llmTokensTotal.Add(float64(n))
	}
}

// DeliveryFailed counts an undelivered report.
func DeliveryFailed() {
	deliveryFailuresTotal.Inc()
}
