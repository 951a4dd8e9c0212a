// internal/common/metrics/metrics.go
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	DocumentsIndexed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "indexer_documents_indexed_total",
			Help: "Total number of documents written to the search index",
		},
		[]string{"document_type"},
	)

	DocumentsFailed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "indexer_documents_failed_total",
			Help: "Total number of documents that failed to index",
		},
		[]string{"document_type", "error_code"},
	)

	ReindexDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: "indexer_reindex_duration_seconds",
			Help: "Duration of full re-index runs in seconds",
		},
		[]string{"status"},
	)

	IncrementalTasks = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "indexer_incremental_tasks_total",
			Help: "Incremental indexing tasks by kind and outcome",
		},
		[]string{"kind", "status"},
	)

	QueueDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "indexer_queue_depth",
			Help: "Number of incremental tasks waiting in the queue",
		},
	)
)
