package embcache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/kailas-cloud/vecshop/internal/db"
	"github.com/kailas-cloud/vecshop/internal/domain"
)

const vectorField = "vector"

// store is the consumer interface for the embedding cache (ISP).
type store interface {
	HGetAll(ctx context.Context, key string) (map[string]string, error)
	HSet(ctx context.Context, key string, fields map[string]string) error
}

// CachedEmbedder caches text embeddings as store hashes keyed by a text digest.
// Every hit decodes a fresh vector, so callers never share a slice.
type CachedEmbedder struct {
	inner      domain.TextEmbedder
	store      store
	keyPrefix  string
	cacheTotal *prometheus.CounterVec
	logger     *zap.Logger
}

var _ domain.TextEmbedder = (*CachedEmbedder)(nil)

// New creates a caching decorator writing under storagePrefix + "emb_cache:" + namespace.
// namespace separates providers and models that would return different vectors.
// cacheTotal is a counter vec with label "result" ("hit"/"miss"), passed explicitly.
func New(
	inner domain.TextEmbedder,
	s store,
	storagePrefix, namespace string,
	cacheTotal *prometheus.CounterVec,
	logger *zap.Logger,
) *CachedEmbedder {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CachedEmbedder{
		inner:      inner,
		store:      s,
		keyPrefix:  storagePrefix + "emb_cache:" + namespace + ":",
		cacheTotal: cacheTotal,
		logger:     logger,
	}
}

// EmbedText returns a cached embedding or calls the inner embedder.
// Cache failures degrade to a provider call; only provider errors are returned.
func (c *CachedEmbedder) EmbedText(ctx context.Context, text string) (domain.Vector, error) {
	key := c.cacheKey(text)

	if vec, ok := c.getFromCache(ctx, key); ok {
		c.incCache("hit")
		return vec, nil
	}

	c.incCache("miss")

	vec, err := c.inner.EmbedText(ctx, text)
	if err != nil {
		return nil, err
	}

	c.putToCache(ctx, key, vec)
	return vec, nil
}

// HealthCheck delegates to the inner embedder when it supports health checks.
func (c *CachedEmbedder) HealthCheck(ctx context.Context) error {
	if hc, ok := c.inner.(domain.HealthChecker); ok {
		return hc.HealthCheck(ctx)
	}
	return nil
}

func (c *CachedEmbedder) incCache(result string) {
	if c.cacheTotal != nil {
		c.cacheTotal.WithLabelValues(result).Inc()
	}
}

func (c *CachedEmbedder) cacheKey(text string) string {
	h := sha256.Sum256([]byte(text))
	return c.keyPrefix + hex.EncodeToString(h[:])
}

func (c *CachedEmbedder) getFromCache(ctx context.Context, key string) (domain.Vector, bool) {
	fields, err := c.store.HGetAll(ctx, key)
	if err != nil {
		if !errors.Is(err, db.ErrKeyNotFound) {
			c.logger.Warn("Failed to get cached embedding", zap.String("key", key), zap.Error(err))
		}
		return nil, false
	}
	raw := fields[vectorField]
	if raw == "" {
		return nil, false
	}

	vec, err := db.DecodeVector(raw)
	if err != nil {
		c.logger.Warn("Failed to parse cached embedding", zap.String("key", key), zap.Error(err))
		return nil, false
	}
	if len(vec) == 0 || !domain.Vector(vec).Finite() {
		c.logger.Warn("Discarding invalid cached embedding", zap.String("key", key))
		return nil, false
	}

	return vec, true
}

func (c *CachedEmbedder) putToCache(ctx context.Context, key string, vec domain.Vector) {
	if len(vec) == 0 {
		return
	}
	if err := c.store.HSet(ctx, key, map[string]string{vectorField: db.EncodeVector(vec)}); err != nil {
		c.logger.Warn("Failed to cache embedding", zap.String("key", key), zap.Error(fmt.Errorf("hset: %w", err)))
	}
}
