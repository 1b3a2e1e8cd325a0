package service

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	reindexRunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "search_index_reindex_runs_total",
			Help: "Total number of reindex runs by kind and outcome",
		},
		[]string{"kind", "status"},
	)

	reindexBatchesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "search_index_batches_total",
			Help: "Total number of index batches saved",
		},
	)

	reindexDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "search_index_reindex_duration_seconds",
			Help:    "Duration of reindex runs in seconds",
			Buckets: []float64{0.1, 0.5, 1, 5, 15, 60, 300, 900},
		},
		[]string{"kind"},
	)

	searchQueriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "search_queries_total",
			Help: "Total number of search queries by result source",
		},
		[]string{"source"},
	)

	searchQueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "search_query_duration_seconds",
			Help:    "Search query duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"grouped"},
	)
)
