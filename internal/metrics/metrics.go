// Package metrics holds the engine's Prometheus collectors. Label sets are
// small, closed enumerations so cardinality stays bounded.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// ReviewsProcessed counts reviews leaving the worker by outcome
	// (reviewed, error).
	ReviewsProcessed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "qa_reviews_processed_total",
			Help: "Reviews that reached a terminal status, by outcome.",
		},
		[]string{"outcome"},
	)

	// ReviewAdmissions counts create and retry requests by result
	// (accepted, quota_exceeded, rejected).
	ReviewAdmissions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "qa_review_admissions_total",
			Help: "Review create and retry requests, by result.",
		},
		[]string{"operation", "result"},
	)

	ReviewQueueDepth = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "qa_review_queue_depth",
			Help: "Reviews waiting for a processing worker.",
		},
	)

	ScoringDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "qa_scoring_duration_seconds",
			Help:    "Latency of calls to the scoring model.",
			Buckets: []float64{0.25, 0.5, 1, 2.5, 5, 10, 20, 40, 80},
		},
	)

	// AggregationRecomputes counts per-kind bucket recomputations.
	AggregationRecomputes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "qa_aggregation_recomputes_total",
			Help: "Day bucket recomputations, by metric kind and result.",
		},
		[]string{"kind", "result"},
	)

	SnapshotRefreshDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "qa_snapshot_refresh_duration_seconds",
			Help:    "Duration of a full dashboard snapshot pass.",
			Buckets: prometheus.DefBuckets,
		},
	)

	SnapshotTenants = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "qa_snapshot_tenants_total",
			Help: "Tenants visited by the snapshot job, by result.",
		},
		[]string{"result"},
	)

	// SeriesRequests counts series reads by kind and cache result.
	SeriesRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "qa_series_requests_total",
			Help: "Time series reads, by series kind and cache result.",
		},
		[]string{"kind", "cache"},
	)
)

func init() {
	prometheus.MustRegister(
		ReviewsProcessed,
		ReviewAdmissions,
		ReviewQueueDepth,
		ScoringDuration,
		AggregationRecomputes,
		SnapshotRefreshDuration,
		SnapshotTenants,
		SeriesRequests,
	)
}

// Handler serves the default registry in the Prometheus text format.
func Handler() http.Handler {
	return promhttp.Handler()
}
