package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	// OutcomeSuccess labels batches that produced reports (or clean skips).
	OutcomeSuccess = "success"
	// OutcomeError labels batches that failed before producing reports.
	OutcomeError = "error"
)

var (
	analysesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "faultline",
			Name:      "analyses_total",
			Help:      "Total number of batch analyses, partitioned by outcome.",
		},
		[]string{"outcome"},
	)

	analysisDurationSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "faultline",
			Name:      "analysis_seconds",
			Help:      "Batch analysis latency in seconds.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 3, 5, 8, 13},
		},
	)

	groupsSkippedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "faultline",
			Name:      "groups_skipped_total",
			Help:      "Correlation groups skipped for lack of critical events.",
		},
	)

	generatorFallbacksTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "faultline",
			Name:      "generator_fallbacks_total",
			Help:      "Hypothesis generations that fell back to the deterministic hypothesis.",
		},
	)

	eventsIngestedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "faultline",
			Name:      "events_ingested_total",
			Help:      "Events accepted through the webhook API.",
		},
	)
)

// Register attaches faultline collectors to the supplied Prometheus registerer.
func Register(reg prometheus.Registerer) error {
	collectors := []prometheus.Collector{
		analysesTotal,
		analysisDurationSeconds,
		groupsSkippedTotal,
		generatorFallbacksTotal,
		eventsIngestedTotal,
	}

	for _, collector := range collectors {
		if err := reg.Register(collector); err != nil {
			if _, ok := err.(prometheus.AlreadyRegisteredError); ok {
				continue
			}
			return err
		}
	}
	return nil
}

// ObserveAnalysis records a batch analysis duration and outcome label.
func ObserveAnalysis(duration time.Duration, outcome string) {
	label := outcome
	if label != OutcomeError {
		label = OutcomeSuccess
	}
	analysesTotal.WithLabelValues(label).Inc()
	if duration < 0 {
		duration = 0
	}
	analysisDurationSeconds.Observe(duration.Seconds())
}

// ObserveGroupSkipped counts a correlation group dropped by the critical filter.
func ObserveGroupSkipped() {
	groupsSkippedTotal.Inc()
}

// ObserveFallback counts a generation that used the fallback hypothesis.
func ObserveFallback() {
	generatorFallbacksTotal.Inc()
}

// ObserveIngested counts events accepted by the webhook handler.
func ObserveIngested(count int) {
	if count <= 0 {
		return
	}
	eventsIngestedTotal.Add(float64(count))
}
