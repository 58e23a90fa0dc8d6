package events

import (
	"context"

	"github.com/kailas-cloud/vecshop/internal/domain"
	"github.com/kailas-cloud/vecshop/internal/metrics"
)

// MetricsEmitter counts events and records stage durations.
type MetricsEmitter struct{}

// NewMetricsEmitter registers search metrics and returns the emitter.
func NewMetricsEmitter() *MetricsEmitter {
	metrics.RegisterSearchMetrics()
	return &MetricsEmitter{}
}

// Emit implements domain.EventEmitter.
func (*MetricsEmitter) Emit(_ context.Context, e domain.Event) {
	modality := string(e.Modality)
	metrics.SearchEventsTotal.WithLabelValues(string(e.Type), modality).Inc()

	// Durations are observed once per search, on its terminal event.
	switch e.Type {
	case domain.EventSearchCompleted, domain.EventSearchSlow:
		metrics.SearchStageDuration.WithLabelValues(modality, metrics.StageEmbed).Observe(e.EmbedDuration.Seconds())
		metrics.SearchStageDuration.WithLabelValues(modality, metrics.StageRank).Observe(e.RankDuration.Seconds())
		metrics.SearchStageDuration.WithLabelValues(modality, metrics.StageTotal).Observe(e.TotalDuration.Seconds())
	}
}
