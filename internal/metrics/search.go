package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// Search stages.
const (
	StageEmbed = "embed"
	StageRank  = "rank"
	StageTotal = "total"
)

// Search pipeline Prometheus metrics.
var (
	SearchStageDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "vecshop",
			Name:      "search_stage_duration_seconds",
			Help:      "Search pipeline stage duration in seconds",
			Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		},
		[]string{"modality", "stage"},
	)

	SearchEventsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "vecshop",
			Name:      "search_events_total",
			Help:      "Search events by type",
		},
		[]string{"event", "modality"},
	)
)

var registerSearchOnce sync.Once

// RegisterSearchMetrics registers Prometheus search metrics. Safe to call more than once.
func RegisterSearchMetrics() {
	registerSearchOnce.Do(func() {
		prometheus.MustRegister(SearchStageDuration)
		prometheus.MustRegister(SearchEventsTotal)
	})
}
