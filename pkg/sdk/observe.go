package vecshop

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/kailas-cloud/vecshop/internal/domain"
)

// sdkMetrics holds prometheus metrics registered for the SDK.
type sdkMetrics struct {
	operations *prometheus.CounterVec
	duration   *prometheus.HistogramVec
	events     *prometheus.CounterVec
}

func newSDKMetrics(reg prometheus.Registerer) (*sdkMetrics, error) {
	m := &sdkMetrics{
		operations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "vecshop",
			Subsystem: "sdk",
			Name:      "operations_total",
			Help:      "Total SDK operations by type and status.",
		}, []string{"operation", "status"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "vecshop",
			Subsystem: "sdk",
			Name:      "operation_duration_seconds",
			Help:      "SDK operation duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"operation"}),
		events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "vecshop",
			Subsystem: "sdk",
			Name:      "search_events_total",
			Help:      "Search pipeline events by type and modality.",
		}, []string{"event", "modality"}),
	}
	if err := registerOrReuse(reg, &m.operations); err != nil {
		return nil, err
	}
	if err := registerOrReuse(reg, &m.duration); err != nil {
		return nil, err
	}
	if err := registerOrReuse(reg, &m.events); err != nil {
		return nil, err
	}
	return m, nil
}

// registerOrReuse registers a collector or reuses an existing one.
func registerOrReuse[T prometheus.Collector](reg prometheus.Registerer, c *T) error {
	if err := reg.Register(*c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			existing, ok := are.ExistingCollector.(T)
			if !ok {
				return fmt.Errorf("vecshop: metric already registered with incompatible type: %T", are.ExistingCollector)
			}
			*c = existing
			return nil
		}
		return fmt.Errorf("vecshop: register metric: %w", err)
	}
	return nil
}

// observer provides logging and metrics for SDK operations.
// It also receives search events from the pipeline.
type observer struct {
	logger  *slog.Logger
	metrics *sdkMetrics
}

var _ domain.EventEmitter = (*observer)(nil)

func newObserver(logger *slog.Logger, reg prometheus.Registerer) (*observer, error) {
	var m *sdkMetrics
	if reg != nil {
		var err error
		m, err = newSDKMetrics(reg)
		if err != nil {
			return nil, err
		}
	}
	return &observer{logger: logger, metrics: m}, nil
}

func (o *observer) observe(op string, start time.Time, err error) {
	if o == nil {
		return
	}
	dur := time.Since(start)

	if o.metrics != nil {
		status := "ok"
		if err != nil {
			status = "error"
		}
		o.metrics.operations.WithLabelValues(op, status).Inc()
		o.metrics.duration.WithLabelValues(op).Observe(dur.Seconds())
	}

	if o.logger != nil {
		if err != nil {
			o.logger.Warn("operation failed",
				"op", op,
				"duration", dur,
				"error", err,
			)
		} else {
			o.logger.Debug("operation completed",
				"op", op,
				"duration", dur,
			)
		}
	}
}

// Emit implements domain.EventEmitter.
func (o *observer) Emit(ctx context.Context, e domain.Event) {
	if o == nil {
		return
	}
	if o.metrics != nil {
		o.metrics.events.WithLabelValues(string(e.Type), string(e.Modality)).Inc()
	}
	if o.logger == nil {
		return
	}

	attrs := []slog.Attr{
		slog.String("search_id", e.SearchID),
		slog.String("modality", string(e.Modality)),
		slog.Int("top_n", e.TopN),
		slog.Int("results", e.ResultCount),
		slog.Duration("embed", e.EmbedDuration),
		slog.Duration("rank", e.RankDuration),
		slog.Duration("total", e.TotalDuration),
	}
	level, msg := slog.LevelDebug, "search completed"
	switch e.Type {
	case domain.EventSearchSlow:
		level, msg = slog.LevelWarn, "slow search detected"
	case domain.EventImageNoMatch:
		level, msg = slog.LevelWarn, "image search returned no products with an image embedding"
	case domain.EventSearchFailed:
		level, msg = slog.LevelWarn, "search failed"
		attrs = append(attrs, slog.Any("error", e.Err))
	}
	o.logger.LogAttrs(ctx, level, msg, attrs...)
}
