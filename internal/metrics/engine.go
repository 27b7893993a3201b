package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// Ranking and background job metrics.
var (
	RankingDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: Namespace,
			Name:      "ranking_duration_seconds",
			Help:      "Ranking pass duration in seconds",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		},
		[]string{"kind", "sort"},
	)

	RankingCandidates = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: Namespace,
			Name:      "ranking_candidates",
			Help:      "Number of eligible candidates per ranking pass",
			Buckets:   prometheus.ExponentialBuckets(1, 4, 8),
		},
		[]string{"kind"},
	)

	RankingDegradedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "ranking_degraded_total",
			Help:      "Ranking passes that fell back to creation-date ordering",
		},
		[]string{"kind", "reason"},
	)

	QueueEnqueuedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "queue_enqueued_total",
			Help:      "Background jobs accepted by the queue",
		},
		[]string{"topic"},
	)

	QueueDroppedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "queue_dropped_total",
			Help:      "Background jobs dropped before processing",
		},
		[]string{"topic", "reason"},
	)

	JobsProcessedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "jobs_processed_total",
			Help:      "Background jobs processed by workers",
		},
		[]string{"topic", "status"},
	)

	JobTokensTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "job_embedding_tokens_total",
			Help:      "Embedding tokens consumed by background jobs",
		},
		[]string{"topic"},
	)

	WeightsReloadsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "scoring_weights_reloads_total",
			Help:      "Scoring weight reload attempts",
		},
		[]string{"source", "status"},
	)
)

var engineOnce sync.Once

// RegisterEngineMetrics registers ranking, queue and weights metrics. Safe to call more than once.
func RegisterEngineMetrics() {
	engineOnce.Do(func() {
		prometheus.MustRegister(
			RankingDuration,
			RankingCandidates,
			RankingDegradedTotal,
			QueueEnqueuedTotal,
			QueueDroppedTotal,
			JobsProcessedTotal,
			JobTokensTotal,
			WeightsReloadsTotal,
		)
	})
}
