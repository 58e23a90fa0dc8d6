package vecshop

import (
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Option configures the Client.
type Option interface {
	apply(*clientConfig)
}

// optionFunc adapts a function to the Option interface.
type optionFunc func(*clientConfig)

func (f optionFunc) apply(c *clientConfig) { f(c) }

type clientConfig struct {
	driver     string // "valkey", "redis" or "sqlite"
	addrs      []string
	password   string
	standalone bool
	sqlitePath string
	keyPrefix  string

	embeddingURL     string
	embeddingTimeout time.Duration
	textEmbedder     TextEmbedder
	imageEmbedder    ImageEmbedder

	textDimensions  int
	imageDimensions int
	hnswM           int
	hnswEFConstruct int

	slowThreshold time.Duration
	maxTopN       int

	logger     *slog.Logger
	metricsReg prometheus.Registerer
}

// WithValkey connects to a Valkey instance with the valkey-search module.
func WithValkey(addr, password string) Option {
	return optionFunc(func(c *clientConfig) {
		c.driver = "valkey"
		c.addrs = []string{addr}
		c.password = password
	})
}

// WithRedis connects to a Redis 8+ instance.
func WithRedis(addr, password string) Option {
	return optionFunc(func(c *clientConfig) {
		c.driver = "redis"
		c.addrs = []string{addr}
		c.password = password
	})
}

// WithSQLite stores products in a local SQLite file with sqlite-vec.
func WithSQLite(path string) Option {
	return optionFunc(func(c *clientConfig) {
		c.driver = "sqlite"
		c.sqlitePath = path
	})
}

// WithStandalone disables cluster topology discovery for Valkey/Redis.
func WithStandalone() Option {
	return optionFunc(func(c *clientConfig) {
		c.standalone = true
	})
}

// WithKeyPrefix sets the key namespace for product hashes. Default: "vecshop:".
func WithKeyPrefix(prefix string) Option {
	return optionFunc(func(c *clientConfig) {
		c.keyPrefix = prefix
	})
}

// WithEmbeddingService uses the HTTP embedding service (POST /embed/text,
// POST /embed/image) for both modalities unless overridden.
func WithEmbeddingService(baseURL string) Option {
	return optionFunc(func(c *clientConfig) {
		c.embeddingURL = baseURL
	})
}

// WithEmbeddingTimeout bounds each embedding service call. Default: 30s.
func WithEmbeddingTimeout(d time.Duration) Option {
	return optionFunc(func(c *clientConfig) {
		c.embeddingTimeout = d
	})
}

// WithTextEmbedder overrides the text embedding provider.
func WithTextEmbedder(e TextEmbedder) Option {
	return optionFunc(func(c *clientConfig) {
		c.textEmbedder = e
	})
}

// WithImageEmbedder overrides the image embedding provider.
func WithImageEmbedder(e ImageEmbedder) Option {
	return optionFunc(func(c *clientConfig) {
		c.imageEmbedder = e
	})
}

// WithTextDimensions sets the text vector length. Default: 384.
func WithTextDimensions(dim int) Option {
	return optionFunc(func(c *clientConfig) {
		c.textDimensions = dim
	})
}

// WithHNSW configures HNSW index parameters (M and EF construction).
func WithHNSW(m, efConstruct int) Option {
	return optionFunc(func(c *clientConfig) {
		c.hnswM = m
		c.hnswEFConstruct = efConstruct
	})
}

// WithSlowThreshold marks searches slower than d. Default: 500ms.
func WithSlowThreshold(d time.Duration) Option {
	return optionFunc(func(c *clientConfig) {
		c.slowThreshold = d
	})
}

// WithMaxTopN rejects searches asking for more than n results. Default: 500.
func WithMaxTopN(n int) Option {
	return optionFunc(func(c *clientConfig) {
		c.maxTopN = n
	})
}

// WithLogger enables structured logging for SDK operations and search events.
// Pass nil to disable (default).
func WithLogger(l *slog.Logger) Option {
	return optionFunc(func(c *clientConfig) {
		c.logger = l
	})
}

// WithPrometheus registers SDK metrics (operation counts and durations)
// on the given registerer. Pass nil to disable (default).
func WithPrometheus(reg prometheus.Registerer) Option {
	return optionFunc(func(c *clientConfig) {
		c.metricsReg = reg
	})
}
