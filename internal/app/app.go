// Package app wires configuration into the retrieval pipeline.
// It is the composition root shared by the hubcontext server and hubcontextctl.
package app

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/hubcontext/internal/config"
	"github.com/kailas-cloud/hubcontext/internal/db"
	dbPostgres "github.com/kailas-cloud/hubcontext/internal/db/postgres"
	dbRedis "github.com/kailas-cloud/hubcontext/internal/db/redis"
	"github.com/kailas-cloud/hubcontext/internal/domain"
	"github.com/kailas-cloud/hubcontext/internal/domain/query"
	"github.com/kailas-cloud/hubcontext/internal/metrics"
	budgetrepo "github.com/kailas-cloud/hubcontext/internal/repository/budget"
	chunkrepo "github.com/kailas-cloud/hubcontext/internal/repository/chunk"
	"github.com/kailas-cloud/hubcontext/internal/repository/ctxcache"
	"github.com/kailas-cloud/hubcontext/internal/repository/embcache"
	"github.com/kailas-cloud/hubcontext/internal/repository/metricsink"
	pgrepo "github.com/kailas-cloud/hubcontext/internal/repository/postgres"
	"github.com/kailas-cloud/hubcontext/internal/retry"
	openaiEmb "github.com/kailas-cloud/hubcontext/internal/transport/openai"
	embeddinguc "github.com/kailas-cloud/hubcontext/internal/usecase/embedding"
	healthuc "github.com/kailas-cloud/hubcontext/internal/usecase/health"
	retrievaluc "github.com/kailas-cloud/hubcontext/internal/usecase/retrieval"
	usageuc "github.com/kailas-cloud/hubcontext/internal/usecase/usage"
)

// Indexer bootstraps the vector index. Only the Redis/Valkey backend has one.
type Indexer interface {
	EnsureIndex(ctx context.Context) (bool, error)
}

// App holds the wired services.
type App struct {
	Retrieval *retrievaluc.Service
	Usage     *usageuc.Service
	Health    *healthuc.Service
	// Indexer is nil for postgres, whose schema is managed by migrations.
	Indexer Indexer
	Limits  query.Limits

	close func()
}

// backend is what the chosen database driver contributes to the pipeline.
type backend struct {
	pinger    db.Pinger
	retriever retrievaluc.Retriever
	cache     retrievaluc.Cache
	sink      retrievaluc.MetricsSink
	indexer   Indexer
	// kv backs the embedding cache and budget counters. nil disables both persistences.
	kv    db.KVStore
	close func()
}

// Build connects to the configured backend and assembles the services.
// Metrics must already be registered.
func Build(ctx context.Context, cfg config.Config, logger *zap.Logger) (*App, error) {
	be, err := openBackend(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}

	budget := NewBudget(ctx, cfg, be.kv, logger)

	// Pass nil interface (not typed nil pointer!) if budget is not configured.
	var budgetChecker embeddinguc.BudgetChecker
	var budgetReader usageuc.BudgetReader
	if budget != nil {
		budgetChecker = budget
		budgetReader = budget
	}

	embedder := NewEmbedder(cfg, be.kv, budgetChecker, logger)
	logger.Info("Embedder created",
		zap.String("provider", openaiEmb.DefaultProvider),
		zap.String("model", cfg.Embedding.Model),
		zap.Int("dimensions", cfg.Embedding.Dimensions),
	)

	retrieval := retrievaluc.New(embedder, be.retriever, be.cache, be.sink, retrievaluc.Options{
		CacheTTL:            cfg.Retrieval.CacheTTL(),
		CandidateMultiplier: cfg.Retrieval.CandidateMultiplier,
		HubBoost:            cfg.Retrieval.HubBoost,
	}, logger)

	return &App{
		Retrieval: retrieval,
		Usage:     usageuc.New(budgetReader),
		Health:    healthuc.New(be.pinger, embeddingHealth{embedder}),
		Indexer:   be.indexer,
		Limits:    Limits(cfg.Retrieval),
		close:     be.close,
	}, nil
}

// Close releases the backend connections.
func (a *App) Close() {
	if a.close != nil {
		a.close()
	}
}

// Limits maps retrieval config onto query defaults.
func Limits(rc config.RetrievalConfig) query.Limits {
	return query.Limits{
		Threshold:     rc.DefaultThreshold,
		MatchCount:    rc.DefaultMatchCount,
		MaxMatchCount: rc.MaxMatchCount,
	}
}

func openBackend(ctx context.Context, cfg config.Config, logger *zap.Logger) (*backend, error) {
	dbc := cfg.Database
	rc := cfg.Retrieval
	readiness := time.Duration(dbc.ReadinessTimeout) * time.Second

	switch dbc.Driver {
	case config.DriverValkey, config.DriverRedis:
		store, err := dbRedis.NewStore(dbRedis.Config{
			Addrs:      dbc.Addrs,
			Password:   dbc.Password,
			ClientName: "hubcontext",
		})
		if err != nil {
			return nil, fmt.Errorf("create %s store: %w", dbc.Driver, err)
		}
		if err := store.WaitForReady(ctx, readiness); err != nil {
			store.Close()
			return nil, fmt.Errorf("database not ready: %w", err)
		}
		logger.Info("Connected to database", zap.String("driver", dbc.Driver), zap.Strings("addrs", dbc.Addrs))

		chunks := chunkrepo.New(store, chunkrepo.Options{
			IndexName:  rc.IndexName,
			KeyPrefix:  rc.KeyPrefix,
			Dimensions: cfg.Embedding.Dimensions,
			HNSW: db.HNSW{
				M:           rc.HNSWM,
				EFConstruct: rc.HNSWEFConstruct,
			},
			HubPrefilter: rc.HubPrefilter,
		})
		return &backend{
			pinger:    store,
			retriever: chunks,
			cache:     ctxcache.New(store, rc.KeyPrefix),
			sink:      metricsink.New(store, rc.KeyPrefix, rc.MetricsStreamMaxLen),
			indexer:   chunks,
			kv:        store,
			close:     store.Close,
		}, nil

	case config.DriverPostgres:
		pool, err := dbPostgres.NewPool(ctx, dbPostgres.Config{
			DSN:              dbc.DSN,
			MaxConns:         dbc.MaxConns,
			MinConns:         dbc.MinConns,
			ReadinessTimeout: readiness,
		})
		if err != nil {
			return nil, fmt.Errorf("create postgres pool: %w", err)
		}
		logger.Info("Connected to database", zap.String("driver", dbc.Driver))
		logger.Warn("Embedding cache is disabled and budget counters stay in process memory: both need a key-value store")

		return &backend{
			pinger:    pool,
			retriever: pgrepo.NewChunkRepo(pool, rc.HubPrefilter),
			cache:     pgrepo.NewCacheRepo(pool),
			sink:      pgrepo.NewMetricsRepo(pool),
			close:     pool.Close,
		}, nil

	default:
		return nil, fmt.Errorf("unknown database driver %q", dbc.Driver)
	}
}

// NewBudget returns the shared token budget tracker, or nil when no limit is configured.
// Counters are loaded from and persisted to kv when it is non-nil.
func NewBudget(ctx context.Context, cfg config.Config, kv db.KVStore, logger *zap.Logger) *embeddinguc.BudgetTracker {
	bc := cfg.Embedding.Budget
	if bc.DailyTokenLimit <= 0 && bc.MonthlyTokenLimit <= 0 {
		return nil
	}
	action := embeddinguc.BudgetActionWarn
	if bc.Action == string(embeddinguc.BudgetActionReject) {
		action = embeddinguc.BudgetActionReject
	}
	budget := embeddinguc.NewBudgetTracker(
		openaiEmb.DefaultProvider, bc.DailyTokenLimit, bc.MonthlyTokenLimit, action, logger,
		embeddinguc.WithBudgetKeyPrefix(cfg.Retrieval.KeyPrefix),
	)
	if kv != nil {
		budget.WithStore(ctx, budgetrepo.New(kv, 0, 0))
	}
	return budget
}

// NewEmbedder assembles the decorator chain:
// OpenAI -> RateLimited -> Retrying -> Cached -> Instrumented -> Instruction.
// Retries sit inside the cache so a hit never waits on backoff; the instruction
// prefix is outermost so the cache key includes it.
func NewEmbedder(
	cfg config.Config, kv db.KVStore, budget embeddinguc.BudgetChecker, logger *zap.Logger,
) domain.Embedder {
	ec := cfg.Embedding
	provider := openaiEmb.DefaultProvider

	var embedder domain.Embedder = openaiEmb.NewEmbedder(&openaiEmb.Config{
		APIKey:     ec.APIKey,
		BaseURL:    ec.BaseURL,
		Model:      ec.Model,
		Dimensions: ec.Dimensions,
		Provider:   provider,
		Logger:     logger,
	})

	if ec.RateLimitRPS > 0 {
		embedder = embeddinguc.NewRateLimitedEmbedder(embedder, ec.RateLimitRPS, ec.Burst)
	}

	embedder = embeddinguc.NewRetryingEmbedder(embedder, RetryPolicy(ec.Retry), provider, ec.Model, logger)

	if ec.Cache.Enabled && kv != nil {
		embedder = embcache.New(embedder, kv, embcache.Options{
			KeyPrefix:  cfg.Retrieval.KeyPrefix,
			TTL:        time.Duration(ec.Cache.TTLSec) * time.Second,
			Dimensions: ec.Dimensions,
		}, metrics.EmbeddingCacheTotal, logger)
	}

	embedder = embeddinguc.NewInstrumentedEmbedder(embedder, provider, ec.Model, budget, logger)

	if ec.Instruction != "" {
		return domain.NewInstructionEmbedder(embedder, ec.Instruction)
	}
	return embedder
}

// RetryPolicy maps retry config onto a policy retrying only transient upstream failures.
func RetryPolicy(rc config.RetryConfig) retry.Policy {
	p := retry.DefaultPolicy(domain.IsTransient)
	if rc.MaxAttempts > 0 {
		p.MaxAttempts = rc.MaxAttempts
	}
	if rc.BaseDelayMs > 0 {
		p.BaseDelay = rc.BaseDelay()
	}
	if rc.MaxDelayMs > 0 {
		p.MaxDelay = rc.MaxDelay()
	}
	if rc.Jitter > 0 {
		p.Jitter = rc.Jitter
	}
	return p
}

type embeddingHealth struct {
	embedder domain.Embedder
}

func (h embeddingHealth) HealthCheck(ctx context.Context) error {
	return domain.CheckEmbedderHealth(ctx, h.embedder)
}
