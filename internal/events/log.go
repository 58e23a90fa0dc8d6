// Package events implements domain.EventEmitter sinks for search observations.
package events

import (
	"context"

	"go.uber.org/zap"

	"github.com/kailas-cloud/vecshop/internal/domain"
)

// LogEmitter writes one structured log line per event.
type LogEmitter struct {
	logger *zap.Logger
}

// NewLogEmitter creates a LogEmitter. A nil logger discards events.
func NewLogEmitter(logger *zap.Logger) *LogEmitter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogEmitter{logger: logger}
}

// Emit implements domain.EventEmitter.
func (l *LogEmitter) Emit(_ context.Context, e domain.Event) {
	fields := []zap.Field{
		zap.String("event", string(e.Type)),
		zap.String("search_id", e.SearchID),
		zap.String("modality", string(e.Modality)),
		zap.Int("top_n", e.TopN),
		zap.Int("results", e.ResultCount),
		zap.Int("dimensions", e.Dimensions),
		zap.Int64("embed_ms", e.EmbedDuration.Milliseconds()),
		zap.Int64("rank_ms", e.RankDuration.Milliseconds()),
		zap.Int64("total_ms", e.TotalDuration.Milliseconds()),
	}

	switch e.Type {
	case domain.EventSearchCompleted:
		l.logger.Info("search completed", fields...)
	case domain.EventSearchSlow:
		l.logger.Warn("slow search detected", fields...)
	case domain.EventImageNoMatch:
		l.logger.Warn("image search returned no rows, verify products.image_embedding is populated", fields...)
	case domain.EventSearchFailed:
		l.logger.Error("search failed", append(fields, zap.Error(e.Err))...)
	default:
		l.logger.Info("search event", fields...)
	}
}
