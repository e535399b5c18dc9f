package core

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// =============================================================================
// LLM METRICS
// =============================================================================

var (
	llmCallsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vbook_llm_calls_total",
			Help: "Total number of generative service calls",
		},
		[]string{"operation", "status"}, // status: success, error, malformed
	)

	llmDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "vbook_llm_duration_seconds",
			Help:    "Generative service call duration in seconds",
			Buckets: []float64{0.5, 1, 2, 5, 10, 30, 60, 120, 300},
		},
		[]string{"operation"},
	)
)

// =============================================================================
// CONVERGENCE METRICS
// =============================================================================

var (
	verdictScore = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "vbook_verdict_score",
			Help:    "Overall critique scores",
			Buckets: prometheus.LinearBuckets(1, 1, 10),
		},
		[]string{"level"},
	)

	convergenceOutcomesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vbook_convergence_outcomes_total",
			Help: "Terminal convergence outcomes",
		},
		[]string{"level", "outcome"}, // outcome: approved, needs_human_review
	)

	refineCyclesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vbook_refine_cycles_total",
			Help: "Refinement cycles consumed",
		},
		[]string{"level"},
	)
)

// =============================================================================
// ARTIFACT METRICS
// =============================================================================

var artifactStagesTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "vbook_artifact_stage_results_total",
		Help: "Artifact pipeline stage results per item",
	},
	[]string{"stage", "result"}, // result: produced, skipped, failed
)

// =============================================================================
// PUBLIC API
// =============================================================================

// RecordLLMCall records one generative service round trip.
func RecordLLMCall(operation, status string, durationMS int64) {
	llmCallsTotal.WithLabelValues(operation, status).Inc()
	llmDurationSeconds.WithLabelValues(operation).Observe(float64(durationMS) / 1000.0)
}

// RecordVerdict records the overall score of a parsed verdict.
func RecordVerdict(level string, score int) {
	verdictScore.WithLabelValues(level).Observe(float64(score))
}

// RecordOutcome records a terminal convergence outcome.
func RecordOutcome(level, outcome string) {
	convergenceOutcomesTotal.WithLabelValues(level, outcome).Inc()
}

// RecordRefineCycle counts one consumed refinement cycle.
func RecordRefineCycle(level string) {
	refineCyclesTotal.WithLabelValues(level).Inc()
}

// RecordArtifactStage records what a pipeline stage did for one item.
func RecordArtifactStage(stage, result string) {
	artifactStagesTotal.WithLabelValues(stage, result).Inc()
}

// WriteMetrics dumps the default registry in text exposition format.
func WriteMetrics(path string) error {
	return prometheus.WriteToTextfile(path, prometheus.DefaultGatherer)
}
