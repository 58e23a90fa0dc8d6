package embedding

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/vecshop/internal/domain"
	"github.com/kailas-cloud/vecshop/internal/metrics"
)

// Config wires the embedders behind an InstrumentedEmbedder.
type Config struct {
	Text          domain.TextEmbedder
	TextProvider  string
	Image         domain.ImageEmbedder
	ImageProvider string
	Logger        *zap.Logger
}

// InstrumentedEmbedder wraps text and image embedders with logging and error metrics.
// Transport metrics (requests, duration) are recorded by the transports themselves.
type InstrumentedEmbedder struct {
	text          domain.TextEmbedder
	textProvider  string
	image         domain.ImageEmbedder
	imageProvider string
	logger        *zap.Logger
}

var (
	_ domain.TextEmbedder  = (*InstrumentedEmbedder)(nil)
	_ domain.ImageEmbedder = (*InstrumentedEmbedder)(nil)
	_ domain.HealthChecker = (*InstrumentedEmbedder)(nil)
)

// ErrModalityUnsupported signals that no embedder is configured for a modality.
var ErrModalityUnsupported = fmt.Errorf("modality not supported by configured providers: %w", domain.ErrProviderUnavailable)

// NewInstrumentedEmbedder wraps the configured embedders with observability.
func NewInstrumentedEmbedder(cfg Config) *InstrumentedEmbedder {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &InstrumentedEmbedder{
		text:          cfg.Text,
		textProvider:  cfg.TextProvider,
		image:         cfg.Image,
		imageProvider: cfg.ImageProvider,
		logger:        logger,
	}
}

// EmbedText delegates to the text embedder.
func (p *InstrumentedEmbedder) EmbedText(ctx context.Context, text string) (domain.Vector, error) {
	if p.text == nil {
		return nil, ErrModalityUnsupported
	}

	start := time.Now()
	vec, err := p.text.EmbedText(ctx, text)
	duration := time.Since(start)

	if err != nil {
		p.failed(p.textProvider, domain.ModalityText, duration, err)
		return nil, fmt.Errorf("embed text: %w", err)
	}
	p.completed(p.textProvider, domain.ModalityText, duration, vec)
	return vec, nil
}

// EmbedImage delegates to the image embedder.
func (p *InstrumentedEmbedder) EmbedImage(ctx context.Context, data []byte, contentType string) (domain.Vector, error) {
	if p.image == nil {
		return nil, ErrModalityUnsupported
	}

	start := time.Now()
	vec, err := p.image.EmbedImage(ctx, data, contentType)
	duration := time.Since(start)

	if err != nil {
		p.failed(p.imageProvider, domain.ModalityImage, duration, err)
		return nil, fmt.Errorf("embed image: %w", err)
	}
	p.completed(p.imageProvider, domain.ModalityImage, duration, vec)
	return vec, nil
}

// HealthCheck probes every distinct configured embedder that supports it.
func (p *InstrumentedEmbedder) HealthCheck(ctx context.Context) error {
	var checked []domain.HealthChecker
	for _, e := range []any{p.text, p.image} {
		hc, ok := e.(domain.HealthChecker)
		if !ok || containsChecker(checked, hc) {
			continue
		}
		checked = append(checked, hc)
		if err := hc.HealthCheck(ctx); err != nil {
			return fmt.Errorf("embedding health: %w", err)
		}
	}
	return nil
}

func containsChecker(list []domain.HealthChecker, hc domain.HealthChecker) bool {
	for _, c := range list {
		if c == hc {
			return true
		}
	}
	return false
}

func (p *InstrumentedEmbedder) completed(provider string, m domain.Modality, d time.Duration, vec domain.Vector) {
	p.logger.Debug("Embedding request completed",
		zap.String("provider", provider),
		zap.String("modality", string(m)),
		zap.Duration("duration", d),
		zap.Int("dimensions", vec.Dimensions()),
	)
}

func (p *InstrumentedEmbedder) failed(provider string, m domain.Modality, d time.Duration, err error) {
	errType := classify(err)
	metrics.EmbeddingErrorsTotal.WithLabelValues(provider, string(m), errType).Inc()
	p.logger.Error("Embedding request failed",
		zap.String("provider", provider),
		zap.String("modality", string(m)),
		zap.String("error_type", errType),
		zap.Duration("duration", d),
		zap.Error(err),
	)
}

// classify returns the error_type metric label for an embedding failure.
func classify(err error) string {
	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "canceled"
	case errors.Is(err, domain.ErrEmbeddingDimensionMismatch):
		return "dimension_mismatch"
	case errors.Is(err, domain.ErrEmptyInput):
		return "empty_input"
	case errors.Is(err, domain.ErrProviderError):
		return "provider_error"
	case errors.Is(err, domain.ErrProviderUnavailable):
		return "unavailable"
	case errors.Is(err, domain.ErrMalformedResponse):
		return "malformed_response"
	case errors.Is(err, domain.ErrInvalidEmbeddingPayload):
		return "invalid_payload"
	default:
		return "other"
	}
}
