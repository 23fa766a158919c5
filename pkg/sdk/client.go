package hubcontext

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/hubcontext/internal/db"
	dbPostgres "github.com/kailas-cloud/hubcontext/internal/db/postgres"
	dbRedis "github.com/kailas-cloud/hubcontext/internal/db/redis"
	"github.com/kailas-cloud/hubcontext/internal/domain"
	"github.com/kailas-cloud/hubcontext/internal/domain/hub"
	"github.com/kailas-cloud/hubcontext/internal/domain/query"
	chunkrepo "github.com/kailas-cloud/hubcontext/internal/repository/chunk"
	"github.com/kailas-cloud/hubcontext/internal/repository/ctxcache"
	"github.com/kailas-cloud/hubcontext/internal/repository/metricsink"
	pgrepo "github.com/kailas-cloud/hubcontext/internal/repository/postgres"
	"github.com/kailas-cloud/hubcontext/internal/retry"
	embeddinguc "github.com/kailas-cloud/hubcontext/internal/usecase/embedding"
	healthuc "github.com/kailas-cloud/hubcontext/internal/usecase/health"
	retrievaluc "github.com/kailas-cloud/hubcontext/internal/usecase/retrieval"
)

const (
	defaultReadinessTimeout = 10 * time.Second

	// customProvider labels retry metrics for caller-supplied embedders.
	customProvider = "custom"
)

// ErrNoIndex is returned by EnsureIndex on backends whose schema is managed externally.
var ErrNoIndex = errors.New("hubcontext: backend has no managed vector index")

// Internal interfaces for substitution in tests.
type retrievalUseCase interface {
	Retrieve(ctx context.Context, q query.Query) (retrievaluc.Response, error)
	Evict(ctx context.Context, text string, area hub.Area) error
}

type indexer interface {
	EnsureIndex(ctx context.Context) (bool, error)
}

// Client is the hubcontext SDK entry point.
type Client struct {
	pinger       db.Pinger
	closeFn      func()
	retrievalSvc retrievalUseCase
	healthSvc    healthUseCase
	indexer      indexer
	obs          *observer
}

// backend is what the chosen driver contributes to the pipeline.
type backend struct {
	pinger    db.Pinger
	retriever retrievaluc.Retriever
	cache     retrievaluc.Cache
	sink      retrievaluc.MetricsSink
	indexer   indexer
	closeFn   func()
}

// New creates a Client and connects to the backend.
// The provided context bounds the initial readiness check.
func New(ctx context.Context, opts ...Option) (*Client, error) {
	cfg := &clientConfig{}
	for _, o := range opts {
		o.apply(cfg)
	}

	if cfg.driver == "" {
		return nil, errors.New("hubcontext: backend required (use WithValkey, WithRedis or WithPostgres)")
	}

	obs, err := newObserver(cfg.logger, cfg.metricsReg)
	if err != nil {
		return nil, err
	}

	be, err := openBackend(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return wireClient(be, cfg, obs), nil
}

func openBackend(ctx context.Context, cfg *clientConfig) (*backend, error) {
	switch cfg.driver {
	case driverValkey, driverRedis:
		if len(cfg.addrs) == 0 || cfg.addrs[0] == "" {
			return nil, errors.New("hubcontext: database address required")
		}
		s, err := dbRedis.NewStore(dbRedis.Config{Addrs: cfg.addrs, Password: cfg.password})
		if err != nil {
			return nil, fmt.Errorf("hubcontext: create %s store: %w", cfg.driver, err)
		}
		if err := s.WaitForReady(ctx, defaultReadinessTimeout); err != nil {
			s.Close()
			return nil, fmt.Errorf("hubcontext: database not ready: %w", err)
		}
		return redisBackend(s, cfg), nil

	case driverPostgres:
		if cfg.dsn == "" {
			return nil, errors.New("hubcontext: postgres dsn required")
		}
		pool, err := dbPostgres.NewPool(ctx, dbPostgres.Config{
			DSN:              cfg.dsn,
			ReadinessTimeout: defaultReadinessTimeout,
		})
		if err != nil {
			return nil, fmt.Errorf("hubcontext: connect postgres: %w", err)
		}
		return &backend{
			pinger:    pool,
			retriever: pgrepo.NewChunkRepo(pool, cfg.hubPrefilter),
			cache:     pgrepo.NewCacheRepo(pool),
			sink:      pgrepo.NewMetricsRepo(pool),
			closeFn:   pool.Close,
		}, nil

	default:
		return nil, fmt.Errorf("hubcontext: unknown driver %q", cfg.driver)
	}
}

// redisStore is the subset of db.Store the Redis backend needs.
type redisStore interface {
	db.Pinger
	db.HashStore
	db.IndexManager
	db.Searcher
	db.StreamStore
	Close()
}

func redisBackend(s redisStore, cfg *clientConfig) *backend {
	chunks := chunkrepo.New(s, chunkrepo.Options{
		IndexName:    cfg.indexName,
		KeyPrefix:    cfg.keyPrefix,
		Dimensions:   cfg.vectorDimensions,
		HubPrefilter: cfg.hubPrefilter,
	})
	be := &backend{
		pinger:    s,
		retriever: chunks,
		cache:     ctxcache.New(s, cfg.keyPrefix),
		indexer:   chunks,
		closeFn:   s.Close,
	}
	if cfg.streamMaxLen > 0 {
		be.sink = metricsink.New(s, cfg.keyPrefix, cfg.streamMaxLen)
	}
	return be
}

func wireClient(be *backend, cfg *clientConfig, obs *observer) *Client {
	var emb domain.Embedder = noopEmbedder{}
	if cfg.embedder != nil {
		emb = embeddinguc.NewRetryingEmbedder(
			&embedderAdapter{inner: cfg.embedder}, cfg.retry.policy(),
			customProvider, "", zap.NewNop(),
		)
	}

	svc := retrievaluc.New(emb, be.retriever, be.cache, be.sink, retrievaluc.Options{
		CacheTTL: cfg.cacheTTL,
		HubBoost: cfg.hubBoost,
	}, zap.NewNop())

	return &Client{
		pinger:       be.pinger,
		closeFn:      be.closeFn,
		retrievalSvc: svc,
		healthSvc:    healthuc.New(be.pinger, &embedderHealth{emb: emb}),
		indexer:      be.indexer,
		obs:          obs,
	}
}

// Close releases all resources.
func (c *Client) Close() {
	if c.closeFn != nil {
		c.closeFn()
	}
}

// Ping checks backend connectivity.
func (c *Client) Ping(ctx context.Context) (err error) {
	start := time.Now()
	defer func() { c.obs.observe("ping", start, err) }()

	if err = c.pinger.Ping(ctx); err != nil {
		return fmt.Errorf("ping: %w", err)
	}
	return nil
}

// Retrieve returns the ranked chunks for q, from the cache when allowed and fresh.
// Invalid queries fail with ErrInvalidInput.
func (c *Client) Retrieve(ctx context.Context, q Query) (res Result, err error) {
	start := time.Now()
	defer func() {
		c.obs.observe("retrieve", start, err, "hub_area", q.HubArea, "source", string(res.Source))
	}()

	dq, err := query.New(query.Params{
		Text:       q.Text,
		HubArea:    q.HubArea,
		Threshold:  q.SimilarityThreshold,
		MatchCount: q.MatchCount,
		UseCached:  q.UseCached,
	}, query.DefaultLimits())
	if err != nil {
		return Result{}, fmt.Errorf("%w: %w", ErrInvalidInput, err)
	}

	ctx, usage := domain.NewContextWithUsage(ctx)
	resp, err := c.retrievalSvc.Retrieve(ctx, dq)
	if err != nil {
		return Result{}, fmt.Errorf("retrieve: %w", err)
	}
	c.obs.retrieved(string(resp.Source))

	return Result{
		Items:    itemsFromDomain(resp.Results),
		Source:   Source(resp.Source),
		CacheHit: resp.CacheHit,
		Duration: resp.Duration,
		Quality: Quality{
			AverageRelevance: resp.Quality.AverageRelevance,
			TopRelevance:     resp.Quality.TopRelevance,
			HubMatchCount:    resp.Quality.HubMatchCount,
		},
		EmbeddingTokens: usage.TotalTokens,
	}, nil
}

// Evict drops the cached result set for (text, hubArea). A missing entry is not an error.
func (c *Client) Evict(ctx context.Context, text, hubArea string) (err error) {
	start := time.Now()
	defer func() { c.obs.observe("evict", start, err, "hub_area", hubArea) }()

	if strings.TrimSpace(text) == "" {
		return fmt.Errorf("%w: query text is required", ErrInvalidInput)
	}
	area, err := hub.Parse(hubArea)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidInput, err)
	}
	return c.retrievalSvc.Evict(ctx, text, area)
}

// EnsureIndex creates the chunk vector index if it is missing and reports whether it did.
// Only Redis and Valkey backends have a managed index.
func (c *Client) EnsureIndex(ctx context.Context) (created bool, err error) {
	start := time.Now()
	defer func() { c.obs.observe("ensure_index", start, err) }()

	if c.indexer == nil {
		return false, ErrNoIndex
	}
	return c.indexer.EnsureIndex(ctx)
}

func (p RetryPolicy) policy() retry.Policy {
	rp := retry.DefaultPolicy(domain.IsTransient)
	if p.MaxAttempts > 0 {
		rp.MaxAttempts = p.MaxAttempts
	}
	if p.BaseDelay > 0 {
		rp.BaseDelay = p.BaseDelay
	}
	if p.MaxDelay > 0 {
		rp.MaxDelay = p.MaxDelay
	}
	if p.Jitter > 0 {
		rp.Jitter = p.Jitter
	}
	return rp
}

type embedderHealth struct {
	emb domain.Embedder
}

func (h *embedderHealth) HealthCheck(ctx context.Context) error {
	return domain.CheckEmbedderHealth(ctx, h.emb)
}
