// Package commands implements the vecshop CLI.
package commands

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/vecshop/internal/config"
	"github.com/kailas-cloud/vecshop/internal/db"
	dbRedis "github.com/kailas-cloud/vecshop/internal/db/redis"
	dbSQLite "github.com/kailas-cloud/vecshop/internal/db/sqlite"
	"github.com/kailas-cloud/vecshop/internal/domain"
	"github.com/kailas-cloud/vecshop/internal/events"
	logpkg "github.com/kailas-cloud/vecshop/internal/logger"
	"github.com/kailas-cloud/vecshop/internal/metrics"
	catalogrepo "github.com/kailas-cloud/vecshop/internal/repository/catalog"
	"github.com/kailas-cloud/vecshop/internal/repository/embcache"
	productrepo "github.com/kailas-cloud/vecshop/internal/repository/product"
	"github.com/kailas-cloud/vecshop/internal/transport/embedsvc"
	openaiEmb "github.com/kailas-cloud/vecshop/internal/transport/openai"
	embeddinguc "github.com/kailas-cloud/vecshop/internal/usecase/embedding"
	healthuc "github.com/kailas-cloud/vecshop/internal/usecase/health"
	searchuc "github.com/kailas-cloud/vecshop/internal/usecase/search"
	"github.com/kailas-cloud/vecshop/internal/version"
)

// Options are the persistent root flags shared by every command.
type Options struct {
	Env string
}

// app is the composition root shared by all commands.
type app struct {
	cfg    config.Config
	logger *zap.Logger
	store  db.Store

	// docEmbedder embeds catalog text, queryEmbedder embeds search queries.
	docEmbedder   *embeddinguc.InstrumentedEmbedder
	queryEmbedder *embeddinguc.InstrumentedEmbedder

	catalog *catalogrepo.Repo
	search  *searchuc.Service
	health  *healthuc.Service
}

// newApp loads config, connects the store and builds the services.
func newApp(ctx context.Context, opts *Options) (*app, error) {
	cfg, err := config.Load(opts.Env)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	logger, err := logpkg.NewLogger(opts.Env, cfg.Logging.Level)
	if err != nil {
		return nil, fmt.Errorf("create logger: %w", err)
	}

	logger.Info("Starting vecshop",
		zap.String("version", version.Version),
		zap.String("commit", version.Commit),
		zap.String("env", opts.Env),
		zap.String("db_driver", cfg.Database.Driver),
	)

	store, err := openStore(&cfg.Database)
	if err != nil {
		_ = logger.Sync()
		return nil, fmt.Errorf("create database store: %w", err)
	}
	readiness := time.Duration(cfg.Database.ReadinessTimeout) * time.Second
	if err := store.WaitForReady(ctx, readiness); err != nil {
		store.Close()
		_ = logger.Sync()
		return nil, fmt.Errorf("database not ready: %w", err)
	}
	logger.Info("Connected to database")

	// Registered explicitly, no init().
	metrics.RegisterEmbeddingMetrics()
	metrics.RegisterSearchMetrics()
	metrics.RegisterIngestMetrics()

	a := &app{cfg: cfg, logger: logger, store: store}
	a.docEmbedder, a.queryEmbedder = buildEmbedders(&cfg, store, logger)

	a.catalog = catalogrepo.New(store, cfg.Storage.KeyPrefix, catalogrepo.IndexConfig{
		TextDimensions:  cfg.Index.TextDimensions,
		ImageDimensions: cfg.Index.ImageDimensions,
		M:               cfg.Index.HNSWM,
		EFConstruct:     cfg.Index.HNSWEFConstruct,
	})
	a.search = searchuc.New(a.queryEmbedder, productrepo.New(store, cfg.Storage.KeyPrefix), searchuc.Config{
		SlowThreshold: time.Duration(cfg.Search.SlowThresholdMs) * time.Millisecond,
		MaxTopN:       cfg.Search.MaxTopN,
		Emitter:       events.Multi{events.NewLogEmitter(logger), events.NewMetricsEmitter()},
	})
	a.health = healthuc.New(store, a.queryEmbedder).WithIndexes(a.catalog)

	return a, nil
}

// Context returns ctx carrying the app logger.
func (a *app) Context(ctx context.Context) context.Context {
	return logpkg.ContextWithLogger(ctx, a.logger)
}

// Close releases the store and flushes the logger.
func (a *app) Close() {
	a.store.Close()
	_ = a.logger.Sync()
}

func openStore(cfg *config.DatabaseConfig) (db.Store, error) {
	// Return a nil interface on failure, not a typed nil pointer.
	switch cfg.Driver {
	case config.DriverValkey, config.DriverRedis:
		s, err := dbRedis.NewStore(dbRedis.Config{
			Addrs:      cfg.Addrs,
			Password:   cfg.Password,
			Standalone: cfg.Standalone,
		})
		if err != nil {
			return nil, err
		}
		return s, nil
	case config.DriverSQLite:
		s, err := dbSQLite.New(cfg.Path)
		if err != nil {
			return nil, err
		}
		return s, nil
	default:
		return nil, fmt.Errorf("unknown database driver %q", cfg.Driver)
	}
}

// buildEmbedders assembles the decorator chains: provider -> Cache -> Instruction -> Instrumented.
// Only query text is cached. The image path always goes through the embedding service.
func buildEmbedders(
	cfg *config.Config, store db.HashStore, logger *zap.Logger,
) (doc, query *embeddinguc.InstrumentedEmbedder) {
	svc := embedsvc.NewClient(embedsvc.Config{
		BaseURL:         cfg.Embedding.BaseURL,
		TextPath:        cfg.Embedding.TextPath,
		ImagePath:       cfg.Embedding.ImagePath,
		HealthPath:      cfg.Embedding.HealthPath,
		ImageDimensions: cfg.Index.ImageDimensions,
		HTTPClient:      &http.Client{Timeout: time.Duration(cfg.Embedding.TimeoutSec) * time.Second},
		Logger:          logger,
	})

	var text domain.TextEmbedder = svc
	textProvider := "embedding_service"
	if cfg.Embedding.TextProvider == config.TextProviderOpenAI {
		text = openaiEmb.NewEmbedder(&openaiEmb.Config{
			APIKey:     cfg.Embedding.OpenAI.APIKey,
			BaseURL:    cfg.Embedding.OpenAI.BaseURL,
			Model:      cfg.Embedding.OpenAI.Model,
			Dimensions: cfg.Embedding.OpenAI.Dimensions,
			Logger:     logger,
		})
		textProvider = config.TextProviderOpenAI
	}

	build := func(instruction string, cached bool) *embeddinguc.InstrumentedEmbedder {
		t := text
		if cached {
			t = embcache.New(t, store, cfg.Storage.KeyPrefix, cacheNamespace(cfg, textProvider),
				metrics.EmbeddingCacheTotal, logger)
		}
		if instruction != "" {
			t = domain.NewInstructionEmbedder(t, instruction)
		}
		return embeddinguc.NewInstrumentedEmbedder(embeddinguc.Config{
			Text:          t,
			TextProvider:  textProvider,
			Image:         svc,
			ImageProvider: "embedding_service",
			Logger:        logger,
		})
	}

	logger.Info("Embedders created",
		zap.String("text_provider", textProvider),
		zap.String("base_url", cfg.Embedding.BaseURL),
		zap.Int("text_dimensions", cfg.Index.TextDimensions),
		zap.Int("image_dimensions", cfg.Index.ImageDimensions),
		zap.Bool("cache_queries", cfg.Embedding.CacheQueries),
	)
	return build(cfg.Embedding.DocumentInstruction, false),
		build(cfg.Embedding.QueryInstruction, cfg.Embedding.CacheQueries)
}

// cacheNamespace keeps vectors from different models apart.
func cacheNamespace(cfg *config.Config, provider string) string {
	if provider == config.TextProviderOpenAI {
		return fmt.Sprintf("%s:%s:%d", provider, cfg.Embedding.OpenAI.Model, cfg.Index.TextDimensions)
	}
	return fmt.Sprintf("%s:%d", provider, cfg.Index.TextDimensions)
}
