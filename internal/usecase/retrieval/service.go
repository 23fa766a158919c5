package retrieval

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/kailas-cloud/hubcontext/internal/domain"
	"github.com/kailas-cloud/hubcontext/internal/domain/cache"
	"github.com/kailas-cloud/hubcontext/internal/domain/hub"
	"github.com/kailas-cloud/hubcontext/internal/domain/perf"
	"github.com/kailas-cloud/hubcontext/internal/domain/query"
	"github.com/kailas-cloud/hubcontext/internal/domain/result"
	"github.com/kailas-cloud/hubcontext/internal/metrics"
)

const tracerName = "github.com/kailas-cloud/hubcontext/internal/usecase/retrieval"

// Cache lookup outcomes, used as the retrieval_cache_total label.
const (
	cacheHit    = "hit"
	cacheMiss   = "miss"
	cacheStale  = "stale"
	cacheError  = "error"
	cacheBypass = "bypass"
)

// Options tune the pipeline. Zero values take the defaults.
type Options struct {
	CacheTTL            time.Duration
	CandidateMultiplier int
	HubBoost            float64
	// Now replaces time.Now for cache timestamps.
	Now func() time.Time
}

// Response is a ranked result set and how it was produced.
type Response struct {
	Results  []result.Item
	Source   result.Source
	CacheHit bool
	Duration time.Duration
	Quality  result.QualityMetrics
}

// Service runs the cache → embed → search → rank pipeline.
type Service struct {
	embed     Embedder
	retriever Retriever
	cache     Cache
	sink      MetricsSink
	ranker    Ranker
	ttl       time.Duration
	mult      int
	now       func() time.Time
	tracer    trace.Tracer
	logger    *zap.Logger
}

// New creates a retrieval service. cache and sink can be nil.
func New(
	embed Embedder, retriever Retriever, c Cache, sink MetricsSink,
	opts Options, logger *zap.Logger,
) *Service {
	if opts.CacheTTL <= 0 {
		opts.CacheTTL = cache.DefaultTTL
	}
	if opts.CandidateMultiplier <= 0 {
		opts.CandidateMultiplier = 2
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Service{
		embed:     embed,
		retriever: retriever,
		cache:     c,
		sink:      sink,
		ranker:    NewRanker(opts.HubBoost),
		ttl:       opts.CacheTTL,
		mult:      opts.CandidateMultiplier,
		now:       opts.Now,
		tracer:    otel.Tracer(tracerName),
		logger:    logger,
	}
}

// Retrieve answers q from the cache when allowed and fresh, otherwise runs the live pipeline
// and writes the ranked set through to the cache.
func (s *Service) Retrieve(ctx context.Context, q query.Query) (Response, error) {
	start := time.Now()
	ctx, span := s.tracer.Start(ctx, "retrieval.retrieve", trace.WithAttributes(
		attribute.String("hub_area", q.HubArea().KeyPart()),
		attribute.Int("match_count", q.MatchCount()),
		attribute.Bool("use_cached", q.UseCached()),
	))

	key := cache.Key(q.Text(), q.HubArea())

	if items, ok := s.lookup(ctx, q, key); ok {
		resp := s.respond(items, result.SourceCache, q.HubArea(), start)
		s.touch(ctx, key)
		s.finish(ctx, span, q, resp, nil)
		return resp, nil
	}

	items, err := s.live(ctx, q)
	if err != nil {
		s.finish(ctx, span, q, Response{Source: result.SourceLive, Duration: time.Since(start)}, err)
		return Response{}, err
	}

	if q.UseCached() {
		s.store(ctx, key, items)
	}

	resp := s.respond(items, result.SourceLive, q.HubArea(), start)
	s.finish(ctx, span, q, resp, nil)
	return resp, nil
}

// Evict drops the cached result set for (text, area). A missing entry is not an error.
func (s *Service) Evict(ctx context.Context, text string, area hub.Area) error {
	if s.cache == nil {
		return nil
	}
	if err := s.cache.Evict(ctx, cache.Key(text, area)); err != nil {
		return fmt.Errorf("evict cache entry: %w", err)
	}
	return nil
}

func (s *Service) live(ctx context.Context, q query.Query) ([]result.Item, error) {
	embCtx, span := s.tracer.Start(ctx, "retrieval.embed")
	emb, err := s.embed.Embed(embCtx, q.Text())
	endSpan(span, err)
	if err != nil {
		return nil, fmt.Errorf("vectorize query: %w", err)
	}
	domain.UsageFromContext(ctx).AddTokens(emb.TotalTokens)

	searchCtx, span := s.tracer.Start(ctx, "retrieval.search")
	candidates, err := s.retriever.Search(searchCtx, query.Candidates{
		Vector:    emb.Embedding,
		Threshold: q.Threshold(),
		Limit:     query.CandidateLimit(q.MatchCount(), s.mult),
		HubArea:   q.HubArea(),
	})
	span.SetAttributes(attribute.Int("candidates", len(candidates)))
	endSpan(span, err)
	if err != nil {
		return nil, fmt.Errorf("search candidates: %w", err)
	}
	metrics.RetrievalCandidates.Observe(float64(len(candidates)))

	_, span = s.tracer.Start(ctx, "retrieval.rank")
	ranked := s.ranker.Rank(candidates, q.HubArea(), q.MatchCount())
	span.SetAttributes(attribute.Int("results", len(ranked)))
	span.End()

	return result.Items(ranked), nil
}

// lookup returns the cached items for key. Any failure reads as a miss.
func (s *Service) lookup(ctx context.Context, q query.Query, key string) ([]result.Item, bool) {
	if !q.UseCached() || s.cache == nil {
		metrics.RetrievalCacheTotal.WithLabelValues(cacheBypass).Inc()
		return nil, false
	}

	ctx, span := s.tracer.Start(ctx, "retrieval.cache_get")
	defer span.End()

	entry, found, err := s.cache.Get(ctx, key)
	switch {
	case err != nil:
		metrics.RetrievalCacheTotal.WithLabelValues(cacheError).Inc()
		s.logger.Warn("Cache read failed, running live query", zap.Error(err))
		span.RecordError(err)
		return nil, false
	case !found:
		metrics.RetrievalCacheTotal.WithLabelValues(cacheMiss).Inc()
		return nil, false
	case !entry.IsFresh(s.now()):
		metrics.RetrievalCacheTotal.WithLabelValues(cacheStale).Inc()
		return nil, false
	}

	var items []result.Item
	if err := json.Unmarshal(entry.Payload(), &items); err != nil {
		metrics.RetrievalCacheTotal.WithLabelValues(cacheError).Inc()
		s.logger.Warn("Cached payload is corrupt, running live query", zap.Error(err))
		return nil, false
	}
	if items == nil {
		items = []result.Item{}
	}

	metrics.RetrievalCacheTotal.WithLabelValues(cacheHit).Inc()
	span.SetAttributes(attribute.Int64("hit_count", entry.HitCount()))
	return items, true
}

func (s *Service) touch(ctx context.Context, key string) {
	if err := s.cache.Touch(ctx, key, s.now()); err != nil {
		s.sideEffectFailed("cache_touch", err)
	}
}

func (s *Service) store(ctx context.Context, key string, items []result.Item) {
	if s.cache == nil {
		return
	}
	ctx, span := s.tracer.Start(ctx, "retrieval.cache_put")
	defer span.End()

	payload, err := json.Marshal(items)
	if err != nil {
		s.sideEffectFailed("cache_put", err)
		return
	}
	if err := s.cache.Put(ctx, cache.New(key, payload, s.now(), s.ttl)); err != nil {
		span.RecordError(err)
		s.sideEffectFailed("cache_put", err)
	}
}

func (s *Service) respond(items []result.Item, src result.Source, area hub.Area, start time.Time) Response {
	return Response{
		Results:  items,
		Source:   src,
		CacheHit: src == result.SourceCache,
		Duration: time.Since(start),
		Quality:  result.Summarize(items, area),
	}
}

// finish ends the root span, records metrics and the persisted performance record.
// It never fails the request.
func (s *Service) finish(ctx context.Context, span trace.Span, q query.Query, resp Response, err error) {
	status := perf.StatusSuccess
	if err != nil {
		status = perf.StatusError
	}
	span.SetAttributes(attribute.String("source", string(resp.Source)))
	endSpan(span, err)

	metrics.RetrievalRequestsTotal.WithLabelValues(string(resp.Source), string(status)).Inc()
	metrics.RetrievalDuration.WithLabelValues(string(resp.Source)).Observe(resp.Duration.Seconds())
	if err == nil {
		metrics.RetrievalResults.Observe(float64(len(resp.Results)))
	}

	if s.sink == nil {
		return
	}
	rec := perf.Record{
		Operation:   perf.OperationContextRetrieval,
		HubArea:     q.HubArea(),
		Duration:    resp.Duration,
		CacheHit:    resp.CacheHit,
		ResultCount: len(resp.Results),
		Status:      status,
		RecordedAt:  s.now(),
	}
	if err != nil {
		rec.ErrorMessage = err.Error()
	}
	if sinkErr := s.sink.Record(ctx, rec); sinkErr != nil {
		s.sideEffectFailed("metrics_record", sinkErr)
	}
}

func (s *Service) sideEffectFailed(op string, err error) {
	metrics.RetrievalSideEffectErrorsTotal.WithLabelValues(op).Inc()
	s.logger.Warn("Retrieval side effect failed", zap.String("operation", op), zap.Error(err))
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
