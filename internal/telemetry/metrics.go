// Package telemetry defines the Prometheus metrics exported by the server
package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	ns = "trials"

	// LabelResult distinguishes successful runs from failed ones
	LabelResult = "result"

	// ResultSuccess marks a run that completed
	ResultSuccess = "success"

	// ResultFailure marks a run that errored
	ResultFailure = "failure"
)

// Metrics holds the instruments for the sync walker and the aggregator
type Metrics struct {
	SyncIterations      *prometheus.CounterVec
	SyncRecordsFetched  prometheus.Counter
	SyncRecordsInserted prometheus.Counter
	SyncDurationSeconds prometheus.Histogram

	AggregationRuns            *prometheus.CounterVec
	AggregationDurationSeconds prometheus.Histogram
}

// NewMetrics registers the server's metrics with the given registerer
func NewMetrics(reg prometheus.Registerer) *Metrics {
	return &Metrics{
		SyncIterations: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "iterations_total", Namespace: ns, Subsystem: "sync",
			Help: "The number of sync walker iterations, by result.",
		}, []string{LabelResult}),
		SyncRecordsFetched: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "records_fetched_total", Namespace: ns, Subsystem: "sync",
			Help: "The number of study records fetched from the upstream registry.",
		}),
		SyncRecordsInserted: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "records_inserted_total", Namespace: ns, Subsystem: "sync",
			Help: "The number of new study records written to the studies database.",
		}),
		SyncDurationSeconds: promauto.With(reg).NewHistogram(prometheus.HistogramOpts{
			Name: "iteration_duration_seconds", Namespace: ns, Subsystem: "sync",
			Buckets: []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
			Help:    "The time taken by one sync walker iteration.",
		}),

		AggregationRuns: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "runs_total", Namespace: ns, Subsystem: "aggregation",
			Help: "The number of statistics recompute runs, by result.",
		}, []string{LabelResult}),
		AggregationDurationSeconds: promauto.With(reg).NewHistogram(prometheus.HistogramOpts{
			Name: "run_duration_seconds", Namespace: ns, Subsystem: "aggregation",
			Buckets: []float64{0.05, 0.1, 0.5, 1, 2.5, 5, 10, 30},
			Help:    "The time taken by one statistics recompute run.",
		}),
	}
}
