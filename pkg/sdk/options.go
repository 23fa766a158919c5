package hubcontext

import (
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Backend drivers.
const (
	driverValkey   = "valkey"
	driverRedis    = "redis"
	driverPostgres = "postgres"
)

// Option configures the Client.
type Option interface {
	apply(*clientConfig)
}

// optionFunc adapts a function to the Option interface.
type optionFunc func(*clientConfig)

func (f optionFunc) apply(c *clientConfig) { f(c) }

type clientConfig struct {
	driver   string
	addrs    []string
	password string
	dsn      string

	embedder Embedder
	retry    RetryPolicy

	vectorDimensions int
	keyPrefix        string
	indexName        string
	cacheTTL         time.Duration
	hubBoost         float64
	hubPrefilter     bool
	streamMaxLen     int64

	logger     *slog.Logger
	metricsReg prometheus.Registerer
}

// WithValkey connects the client to a Valkey instance with valkey-search.
func WithValkey(addr, password string) Option {
	return optionFunc(func(c *clientConfig) {
		c.driver = driverValkey
		c.addrs = []string{addr}
		c.password = password
	})
}

// WithRedis connects the client to a Redis 8+ instance (or Redis Stack).
func WithRedis(addr, password string) Option {
	return optionFunc(func(c *clientConfig) {
		c.driver = driverRedis
		c.addrs = []string{addr}
		c.password = password
	})
}

// WithPostgres connects the client to PostgreSQL with the pgvector extension.
// The document_chunks, documents, context_cache and performance_metrics tables must exist.
func WithPostgres(dsn string) Option {
	return optionFunc(func(c *clientConfig) {
		c.driver = driverPostgres
		c.dsn = dsn
	})
}

// WithEmbedder sets the query embedding provider.
// Without one, only fresh cached results can be served.
func WithEmbedder(e Embedder) Option {
	return optionFunc(func(c *clientConfig) {
		c.embedder = e
	})
}

// RetryPolicy bounds retries of transient embedding failures (429, 5xx, network).
// Zero fields take the defaults: 3 attempts, 1s initial delay doubling up to 10s, ±10% jitter.
// MaxAttempts 1 disables retries.
type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	Jitter      float64
}

// WithRetryPolicy overrides the embedding retry policy.
func WithRetryPolicy(p RetryPolicy) Option {
	return optionFunc(func(c *clientConfig) {
		c.retry = p
	})
}

// WithVectorDimensions sets the chunk vector dimension used by EnsureIndex.
func WithVectorDimensions(dim int) Option {
	return optionFunc(func(c *clientConfig) {
		c.vectorDimensions = dim
	})
}

// WithKeyPrefix namespaces all Redis/Valkey keys. Defaults to "hubcontext:".
func WithKeyPrefix(prefix string) Option {
	return optionFunc(func(c *clientConfig) {
		c.keyPrefix = prefix
	})
}

// WithIndexName overrides the chunk FT index name.
func WithIndexName(name string) Option {
	return optionFunc(func(c *clientConfig) {
		c.indexName = name
	})
}

// WithCacheTTL sets how long a cached result set stays fresh. Default: 1h.
func WithCacheTTL(ttl time.Duration) Option {
	return optionFunc(func(c *clientConfig) {
		c.cacheTTL = ttl
	})
}

// WithHubBoost sets the similarity multiplier for chunks in the requested hub area. Default: 1.2.
func WithHubBoost(boost float64) Option {
	return optionFunc(func(c *clientConfig) {
		c.hubBoost = boost
	})
}

// WithHubPrefilter restricts vector search to chunks tagged with the requested hub area.
func WithHubPrefilter() Option {
	return optionFunc(func(c *clientConfig) {
		c.hubPrefilter = true
	})
}

// WithPerformanceStream persists a record per retrieval to a capped Redis stream
// (approximate max length). Ignored for postgres, which always appends to its table.
func WithPerformanceStream(maxLen int64) Option {
	return optionFunc(func(c *clientConfig) {
		c.streamMaxLen = maxLen
	})
}

// WithLogger enables structured logging for SDK operations.
// Pass nil to disable (default). Uses standard library slog.
func WithLogger(l *slog.Logger) Option {
	return optionFunc(func(c *clientConfig) {
		c.logger = l
	})
}

// WithMetricsRegisterer registers SDK metrics (operation counts, durations,
// result sources) on the given registerer. Pass nil to disable (default).
func WithMetricsRegisterer(reg prometheus.Registerer) Option {
	return optionFunc(func(c *clientConfig) {
		c.metricsReg = reg
	})
}
