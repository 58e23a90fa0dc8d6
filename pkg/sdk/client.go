package vecshop

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/kailas-cloud/vecshop/internal/db"
	dbRedis "github.com/kailas-cloud/vecshop/internal/db/redis"
	dbSQLite "github.com/kailas-cloud/vecshop/internal/db/sqlite"
	"github.com/kailas-cloud/vecshop/internal/domain"
	"github.com/kailas-cloud/vecshop/internal/domain/search/match"
	catalogrepo "github.com/kailas-cloud/vecshop/internal/repository/catalog"
	productrepo "github.com/kailas-cloud/vecshop/internal/repository/product"
	"github.com/kailas-cloud/vecshop/internal/transport/embedsvc"
	embeddinguc "github.com/kailas-cloud/vecshop/internal/usecase/embedding"
	healthuc "github.com/kailas-cloud/vecshop/internal/usecase/health"
	ingestuc "github.com/kailas-cloud/vecshop/internal/usecase/ingest"
	searchuc "github.com/kailas-cloud/vecshop/internal/usecase/search"
)

// Defaults applied by New.
const (
	defaultReadinessTimeout = 10 * time.Second
	defaultEmbeddingTimeout = 30 * time.Second
	defaultKeyPrefix        = "vecshop:"
	defaultTextDimensions   = 384
	defaultHNSWM            = 16
	defaultHNSWEFConstruct  = 200
	defaultMaxTopN          = 500
)

// Internal interfaces, swapped for mocks in tests.
type searchUseCase interface {
	SearchByText(ctx context.Context, text string, topN int) ([]match.Match, error)
	SearchByImage(ctx context.Context, data []byte, contentType string, topN int) ([]match.Match, error)
}

// Client is the vecshop SDK entry point. It is safe for concurrent use.
type Client struct {
	store     db.Store
	searchSvc searchUseCase
	healthSvc healthUseCase
	embedder  ingestuc.Embedder
	catalog   ingestuc.Catalog
	obs       *observer
}

// New creates a Client and connects to the store.
// The provided context is used for the initial readiness check.
func New(ctx context.Context, opts ...Option) (*Client, error) {
	cfg := &clientConfig{}
	for _, o := range opts {
		o.apply(cfg)
	}
	applyDefaults(cfg)

	if cfg.driver == "" {
		return nil, errors.New("vecshop: store required (use WithValkey, WithRedis or WithSQLite)")
	}

	obs, err := newObserver(cfg.logger, cfg.metricsReg)
	if err != nil {
		return nil, err
	}

	store, err := createStore(cfg)
	if err != nil {
		return nil, err
	}

	if err := store.WaitForReady(ctx, defaultReadinessTimeout); err != nil {
		store.Close()
		return nil, fmt.Errorf("vecshop: store not ready: %w", err)
	}

	return wireClient(store, cfg, obs), nil
}

func applyDefaults(cfg *clientConfig) {
	if cfg.keyPrefix == "" {
		cfg.keyPrefix = defaultKeyPrefix
	}
	if cfg.embeddingTimeout <= 0 {
		cfg.embeddingTimeout = defaultEmbeddingTimeout
	}
	if cfg.textDimensions <= 0 {
		cfg.textDimensions = defaultTextDimensions
	}
	if cfg.imageDimensions <= 0 {
		cfg.imageDimensions = domain.ImageDimensions
	}
	if cfg.hnswM <= 0 {
		cfg.hnswM = defaultHNSWM
	}
	if cfg.hnswEFConstruct <= 0 {
		cfg.hnswEFConstruct = defaultHNSWEFConstruct
	}
	if cfg.maxTopN <= 0 {
		cfg.maxTopN = defaultMaxTopN
	}
}

func createStore(cfg *clientConfig) (db.Store, error) {
	switch cfg.driver {
	case "valkey", "redis":
		s, err := dbRedis.NewStore(dbRedis.Config{
			Addrs:      cfg.addrs,
			Password:   cfg.password,
			Standalone: cfg.standalone,
		})
		if err != nil {
			return nil, fmt.Errorf("vecshop: create %s store: %w", cfg.driver, err)
		}
		return s, nil
	case "sqlite":
		s, err := dbSQLite.New(cfg.sqlitePath)
		if err != nil {
			return nil, fmt.Errorf("vecshop: create sqlite store: %w", err)
		}
		return s, nil
	default:
		return nil, fmt.Errorf("vecshop: unknown driver %q", cfg.driver)
	}
}

func wireClient(store db.Store, cfg *clientConfig, obs *observer) *Client {
	emb := buildEmbedder(cfg)

	catalog := catalogrepo.New(store, cfg.keyPrefix, catalogrepo.IndexConfig{
		TextDimensions:  cfg.textDimensions,
		ImageDimensions: cfg.imageDimensions,
		M:               cfg.hnswM,
		EFConstruct:     cfg.hnswEFConstruct,
	})
	searchSvc := searchuc.New(emb, productrepo.New(store, cfg.keyPrefix), searchuc.Config{
		SlowThreshold: cfg.slowThreshold,
		MaxTopN:       cfg.maxTopN,
		Emitter:       obs,
	})

	return &Client{
		store:     store,
		searchSvc: searchSvc,
		healthSvc: healthuc.New(store, emb).WithIndexes(catalog),
		embedder:  emb,
		catalog:   catalog,
		obs:       obs,
	}
}

// buildEmbedder prefers explicit embedders over the embedding service.
// A modality with no provider fails with ErrProviderUnavailable.
func buildEmbedder(cfg *clientConfig) *embeddinguc.InstrumentedEmbedder {
	var (
		text  domain.TextEmbedder
		image domain.ImageEmbedder
	)
	textProvider, imageProvider := "custom", "custom"

	if cfg.embeddingURL != "" {
		svc := embedsvc.NewClient(embedsvc.Config{
			BaseURL:         cfg.embeddingURL,
			ImageDimensions: cfg.imageDimensions,
			HTTPClient:      &http.Client{Timeout: cfg.embeddingTimeout},
		})
		text, image = svc, svc
		textProvider, imageProvider = "embedding_service", "embedding_service"
	}
	if cfg.textEmbedder != nil {
		text, textProvider = &textAdapter{inner: cfg.textEmbedder}, "custom"
	}
	if cfg.imageEmbedder != nil {
		image, imageProvider = &imageAdapter{inner: cfg.imageEmbedder}, "custom"
	}

	return embeddinguc.NewInstrumentedEmbedder(embeddinguc.Config{
		Text:          text,
		TextProvider:  textProvider,
		Image:         image,
		ImageProvider: imageProvider,
	})
}

// Close releases all resources.
func (c *Client) Close() {
	if c.store != nil {
		c.store.Close()
	}
}

// Ping checks store connectivity.
func (c *Client) Ping(ctx context.Context) (err error) {
	start := time.Now()
	defer func() { c.obs.observe("ping", start, err) }()

	if err = c.store.Ping(ctx); err != nil {
		return fmt.Errorf("ping: %w", err)
	}
	return nil
}

// Search returns up to topN products most similar to a text query.
func (c *Client) Search(ctx context.Context, query string, topN int) (_ []Product, err error) {
	start := time.Now()
	defer func() { c.obs.observe("search", start, err) }()

	matches, err := c.searchSvc.SearchByText(ctx, query, topN)
	if err != nil {
		return nil, err
	}
	return productsFromMatches(matches), nil
}

// SearchImage returns up to topN products most similar to an encoded image.
// An empty contentType is sent as application/octet-stream.
func (c *Client) SearchImage(ctx context.Context, data []byte, contentType string, topN int) (_ []Product, err error) {
	start := time.Now()
	defer func() { c.obs.observe("search_image", start, err) }()

	matches, err := c.searchSvc.SearchByImage(ctx, data, contentType, topN)
	if err != nil {
		return nil, err
	}
	return productsFromMatches(matches), nil
}

// Ingest reads a product catalog CSV, embeds it and stores the products.
// Row failures are counted in the result rather than returned.
func (c *Client) Ingest(ctx context.Context, csv io.Reader, opts IngestOptions) (_ IngestResult, err error) {
	start := time.Now()
	defer func() { c.obs.observe("ingest", start, err) }()

	res, err := ingestuc.New(c.embedder, c.catalog, ingestConfig(opts)).Run(ctx, csv)
	return ingestResult(&res), err
}
