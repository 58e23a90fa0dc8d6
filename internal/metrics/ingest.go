package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// Catalog ingest Prometheus metrics.
var (
	IngestRowsProcessed = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "vecshop",
			Name:      "ingest_rows_processed_total",
			Help:      "Catalog rows stored by ingest",
		},
	)

	IngestRowsFailed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "vecshop",
			Name:      "ingest_rows_failed_total",
			Help:      "Catalog rows skipped by ingest",
		},
		[]string{"reason"},
	)

	IngestBatchDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "vecshop",
			Name:      "ingest_batch_duration_seconds",
			Help:      "Catalog upsert batch duration",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
	)
)

var registerIngestOnce sync.Once

// RegisterIngestMetrics registers Prometheus ingest metrics. Safe to call more than once.
func RegisterIngestMetrics() {
	registerIngestOnce.Do(func() {
		prometheus.MustRegister(IngestRowsProcessed)
		prometheus.MustRegister(IngestRowsFailed)
		prometheus.MustRegister(IngestBatchDuration)
	})
}
