package metrics

import "github.com/prometheus/client_golang/prometheus"

// Matching engine Prometheus metrics.
var (
	ItemEventsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "matchengine",
			Name:      "item_events_total",
			Help:      "Item lifecycle events processed by the pipeline",
		},
		[]string{"topic", "status"},
	)

	MatchesCreatedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "matchengine",
			Name:      "matches_created_total",
			Help:      "Pending matches created by the pipeline",
		},
	)

	MatchTransitionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "matchengine",
			Name:      "match_transitions_total",
			Help:      "Match state transitions",
		},
		[]string{"to", "verifier"}, // verifier: "user" / "system"
	)

	ScoringDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "matchengine",
			Name:      "scoring_duration_seconds",
			Help:      "Time spent scoring one candidate batch",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1},
		},
	)

	CandidateBatchSize = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "matchengine",
			Name:      "candidate_batch_size",
			Help:      "Candidates produced per triggering item",
			Buckets:   []float64{0, 1, 5, 10, 25, 50, 100, 200},
		},
	)

	DegradedScoringsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "matchengine",
			Name:      "degraded_scorings_total",
			Help:      "Scorings that fell back to lexical location comparison",
		},
	)
)

var engineMetricsRegistered bool

// RegisterEngineMetrics registers Prometheus engine metrics. Must be called once from main.
func RegisterEngineMetrics() {
	if engineMetricsRegistered {
		return
	}
	prometheus.MustRegister(ItemEventsTotal)
	prometheus.MustRegister(MatchesCreatedTotal)
	prometheus.MustRegister(MatchTransitionsTotal)
	prometheus.MustRegister(ScoringDuration)
	prometheus.MustRegister(CandidateBatchSize)
	prometheus.MustRegister(DegradedScoringsTotal)
	engineMetricsRegistered = true
}
