package openai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/kailas-cloud/vecshop/internal/domain"
	"github.com/kailas-cloud/vecshop/internal/metrics"
)

const modality = string(domain.ModalityText)

// Embedder embeds text queries through an OpenAI-compatible API (e.g. Nebius).
type Embedder struct {
	client     *openai.Client
	model      openai.EmbeddingModel
	dimensions int
	user       string
	provider   string
	logger     *zap.Logger
}

// Config holds the embedding provider settings.
type Config struct {
	APIKey     string
	BaseURL    string
	Model      string
	Dimensions int
	User       string
	Provider   string
	Logger     *zap.Logger
}

var (
	_ domain.TextEmbedder  = (*Embedder)(nil)
	_ domain.HealthChecker = (*Embedder)(nil)
)

// NewEmbedder creates an OpenAI-compatible text embedder.
func NewEmbedder(cfg *Config) *Embedder {
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}

	provider := cfg.Provider
	if provider == "" {
		provider = "openai"
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Embedder{
		client:     openai.NewClientWithConfig(clientCfg),
		model:      openai.EmbeddingModel(cfg.Model),
		dimensions: cfg.Dimensions,
		user:       cfg.User,
		provider:   provider,
		logger:     logger,
	}
}

// EmbedText implements domain.TextEmbedder with transport-level metrics.
func (e *Embedder) EmbedText(ctx context.Context, text string) (domain.Vector, error) {
	req := openai.EmbeddingRequest{
		Input:          []string{text},
		Model:          e.model,
		EncodingFormat: openai.EmbeddingEncodingFormatFloat,
		User:           e.user,
	}
	if e.dimensions > 0 {
		req.Dimensions = e.dimensions
	}

	start := time.Now()
	resp, err := e.client.CreateEmbeddings(ctx, req)
	if err == nil && len(resp.Data) == 0 {
		err = fmt.Errorf("%w: empty data", domain.ErrMalformedResponse)
	} else if err != nil {
		err = parseAPIError(err)
	}
	metrics.ObserveEmbedding(e.provider, modality, time.Since(start).Seconds(), err)
	if err != nil {
		e.logger.Debug("openai embedding failed", zap.String("model", string(e.model)), zap.Error(err))
		return nil, err
	}

	vec := domain.Vector(resp.Data[0].Embedding)
	if !vec.Finite() {
		return nil, fmt.Errorf("%w: non-finite values", domain.ErrInvalidEmbeddingPayload)
	}
	return vec, nil
}

// HealthCheck verifies API availability via ListModels (free endpoint).
func (e *Embedder) HealthCheck(ctx context.Context) error {
	if _, err := e.client.ListModels(ctx); err != nil {
		return fmt.Errorf("list models: %w", parseAPIError(err))
	}
	return nil
}

// parseAPIError maps go-openai errors onto the embedding error taxonomy:
// HTTP-level failures become *domain.ProviderError, the rest are transport failures.
func parseAPIError(err error) error {
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		body := extractDetail(reqErr.Body)
		if body == "" {
			body = string(reqErr.Body)
		}
		return &domain.ProviderError{Status: reqErr.HTTPStatusCode, Body: body}
	}

	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return &domain.ProviderError{Status: apiErr.HTTPStatusCode, Body: apiErr.Message}
	}

	return fmt.Errorf("%w: %w", domain.ErrProviderUnavailable, err)
}

// extractDetail extracts the "detail" field from a JSON error body (Nebius error format).
func extractDetail(body []byte) string {
	var parsed struct {
		Detail string `json:"detail"`
	}
	if json.Unmarshal(body, &parsed) == nil && parsed.Detail != "" {
		return parsed.Detail
	}
	return ""
}
