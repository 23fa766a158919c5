package retrieval

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"go.uber.org/zap"

	"github.com/kailas-cloud/hubcontext/internal/domain"
	"github.com/kailas-cloud/hubcontext/internal/domain/cache"
	"github.com/kailas-cloud/hubcontext/internal/domain/chunk"
	"github.com/kailas-cloud/hubcontext/internal/domain/hub"
	"github.com/kailas-cloud/hubcontext/internal/domain/perf"
	"github.com/kailas-cloud/hubcontext/internal/domain/query"
	"github.com/kailas-cloud/hubcontext/internal/domain/result"
	"github.com/kailas-cloud/hubcontext/internal/metrics"
)

func TestMain(m *testing.M) {
	metrics.RegisterRetrievalMetrics()
	os.Exit(m.Run())
}

type mockEmbedder struct {
	embedFn func(ctx context.Context, text string) (domain.EmbeddingResult, error)
	calls   int
}

func (m *mockEmbedder) Embed(ctx context.Context, text string) (domain.EmbeddingResult, error) {
	m.calls++
	if m.embedFn != nil {
		return m.embedFn(ctx, text)
	}
	return domain.EmbeddingResult{Embedding: []float32{0.1, 0.2}, TotalTokens: 7}, nil
}

type mockRetriever struct {
	searchFn func(ctx context.Context, q query.Candidates) ([]chunk.Chunk, error)
	last     query.Candidates
	calls    int
}

func (m *mockRetriever) Search(ctx context.Context, q query.Candidates) ([]chunk.Chunk, error) {
	m.calls++
	m.last = q
	if m.searchFn != nil {
		return m.searchFn(ctx, q)
	}
	return nil, nil
}

// memCache is an in-memory Cache with call counters and injectable failures.
type memCache struct {
	entries  map[string]cache.Entry
	getErr   error
	putErr   error
	touchErr error
	gets     int
	puts     int
	touches  int
	evicted  []string
}

func newMemCache() *memCache { return &memCache{entries: map[string]cache.Entry{}} }

func (m *memCache) Get(_ context.Context, key string) (cache.Entry, bool, error) {
	m.gets++
	if m.getErr != nil {
		return cache.Entry{}, false, m.getErr
	}
	e, ok := m.entries[key]
	return e, ok, nil
}

func (m *memCache) Put(_ context.Context, e cache.Entry) error {
	m.puts++
	if m.putErr != nil {
		return m.putErr
	}
	m.entries[e.Key()] = e
	return nil
}

func (m *memCache) Touch(_ context.Context, key string, now time.Time) error {
	m.touches++
	if m.touchErr != nil {
		return m.touchErr
	}
	e, ok := m.entries[key]
	if !ok {
		return nil
	}
	m.entries[key] = cache.Reconstruct(e.Key(), e.Payload(), e.HitCount()+1, e.CreatedAt(), now, e.ExpiresAt())
	return nil
}

func (m *memCache) Evict(_ context.Context, key string) error {
	m.evicted = append(m.evicted, key)
	delete(m.entries, key)
	return nil
}

type mockSink struct {
	records []perf.Record
	err     error
}

func (m *mockSink) Record(_ context.Context, rec perf.Record) error {
	m.records = append(m.records, rec)
	return m.err
}

type fixture struct {
	svc       *Service
	embedder  *mockEmbedder
	retriever *mockRetriever
	cache     *memCache
	sink      *mockSink
	now       time.Time
}

func newFixture(t *testing.T, candidates ...chunk.Chunk) *fixture {
	t.Helper()
	f := &fixture{
		embedder: &mockEmbedder{},
		retriever: &mockRetriever{searchFn: func(context.Context, query.Candidates) ([]chunk.Chunk, error) {
			return candidates, nil
		}},
		cache: newMemCache(),
		sink:  &mockSink{},
		now:   time.Date(2026, 4, 1, 12, 0, 0, 0, time.UTC),
	}
	f.svc = New(f.embedder, f.retriever, f.cache, f.sink, Options{
		CacheTTL: time.Hour,
		Now:      func() time.Time { return f.now },
	}, zap.NewNop())
	return f
}

func newQuery(t *testing.T, text, area string, useCached bool) query.Query {
	t.Helper()
	q, err := query.New(query.Params{Text: text, HubArea: area, UseCached: &useCached}, query.DefaultLimits())
	if err != nil {
		t.Fatalf("build query: %v", err)
	}
	return q
}

func marketingCandidates() []chunk.Chunk {
	return []chunk.Chunk{
		candidate("a", 0.9, "", hub.Marketing),
		candidate("b", 0.75, "", hub.Sales),
		candidate("c", 0.72, "", hub.Marketing),
	}
}

func TestRetrieve_LiveQueryWritesThrough(t *testing.T) {
	f := newFixture(t, marketingCandidates()...)
	ctx, usage := domain.NewContextWithUsage(context.Background())

	resp, err := f.svc.Retrieve(ctx, newQuery(t, "  Marketing Tips ", "marketing", true))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if resp.Source != result.SourceLive || resp.CacheHit {
		t.Errorf("source = %s, cacheHit = %v", resp.Source, resp.CacheHit)
	}
	if len(resp.Results) != 3 || resp.Results[0].ChunkID != "a" || resp.Results[1].ChunkID != "c" {
		t.Errorf("unexpected order: %+v", resp.Results)
	}
	if resp.Quality.HubMatchCount != 2 {
		t.Errorf("HubMatchCount = %d", resp.Quality.HubMatchCount)
	}

	if f.retriever.last.Limit != 2*query.DefaultMatchCount {
		t.Errorf("candidate limit = %d, want %d", f.retriever.last.Limit, 2*query.DefaultMatchCount)
	}
	if f.retriever.last.Threshold != query.DefaultThreshold || f.retriever.last.HubArea != hub.Marketing {
		t.Errorf("candidate query = %+v", f.retriever.last)
	}
	if !usage.Used || usage.TotalTokens != 7 {
		t.Errorf("usage = %+v", usage)
	}

	e, ok := f.cache.entries["marketing tips|marketing"]
	if !ok {
		t.Fatalf("expected write-through under normalized key, have %v", f.cache.entries)
	}
	if e.HitCount() != 0 || !e.ExpiresAt().Equal(f.now.Add(time.Hour)) {
		t.Errorf("entry hit=%d expires=%v", e.HitCount(), e.ExpiresAt())
	}
	var cached []result.Item
	if err := json.Unmarshal(e.Payload(), &cached); err != nil || len(cached) != 3 {
		t.Fatalf("payload = %s, err = %v", e.Payload(), err)
	}

	if len(f.sink.records) != 1 {
		t.Fatalf("records = %d", len(f.sink.records))
	}
	rec := f.sink.records[0]
	if rec.Status != perf.StatusSuccess || rec.CacheHit || rec.ResultCount != 3 || rec.HubArea != hub.Marketing {
		t.Errorf("record = %+v", rec)
	}
}

func TestRetrieve_ServesFreshCacheUnchanged(t *testing.T) {
	f := newFixture(t, marketingCandidates()...)
	q := newQuery(t, "marketing tips", "marketing", true)

	first, err := f.svc.Retrieve(context.Background(), q)
	if err != nil {
		t.Fatalf("first: %v", err)
	}

	f.now = f.now.Add(30 * time.Minute)
	ctx, usage := domain.NewContextWithUsage(context.Background())
	second, err := f.svc.Retrieve(ctx, newQuery(t, "MARKETING TIPS", "Marketing", true))
	if err != nil {
		t.Fatalf("second: %v", err)
	}

	if second.Source != result.SourceCache || !second.CacheHit {
		t.Errorf("source = %s", second.Source)
	}
	if f.embedder.calls != 1 || f.retriever.calls != 1 {
		t.Errorf("cache hit must skip embed/search: embed=%d search=%d", f.embedder.calls, f.retriever.calls)
	}
	if usage.Used {
		t.Error("cache hit must not report embedding usage")
	}
	if len(second.Results) != len(first.Results) {
		t.Fatalf("results differ: %d vs %d", len(second.Results), len(first.Results))
	}
	for i := range first.Results {
		if first.Results[i].ChunkID != second.Results[i].ChunkID ||
			first.Results[i].RelevanceScore != second.Results[i].RelevanceScore {
			t.Errorf("[%d] cached result differs", i)
		}
	}

	e := f.cache.entries["marketing tips|marketing"]
	if e.HitCount() != 1 || !e.LastAccessedAt().Equal(f.now) {
		t.Errorf("touch not applied: hit=%d last=%v", e.HitCount(), e.LastAccessedAt())
	}
	if !f.sink.records[1].CacheHit {
		t.Error("second record should be a cache hit")
	}
}

func TestRetrieve_UseCachedFalseNeverTouchesCache(t *testing.T) {
	f := newFixture(t, marketingCandidates()...)
	f.cache.entries["marketing tips|marketing"] = cache.New(
		"marketing tips|marketing", []byte(`[{"chunk_id":"stale"}]`), f.now, time.Hour)

	resp, err := f.svc.Retrieve(context.Background(), newQuery(t, "marketing tips", "marketing", false))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Source != result.SourceLive {
		t.Errorf("source = %s", resp.Source)
	}
	if f.cache.gets != 0 || f.cache.puts != 0 || f.cache.touches != 0 {
		t.Errorf("cache used: gets=%d puts=%d touches=%d", f.cache.gets, f.cache.puts, f.cache.touches)
	}
	if e := f.cache.entries["marketing tips|marketing"]; string(e.Payload()) != `[{"chunk_id":"stale"}]` {
		t.Error("existing entry must be left alone")
	}
}

func TestRetrieve_StaleEntryIsMiss(t *testing.T) {
	f := newFixture(t, marketingCandidates()...)
	old := f.now.Add(-2 * time.Hour)
	f.cache.entries["q|all"] = cache.Reconstruct("q|all", []byte(`[]`), 9, old, old, old.Add(time.Hour))

	resp, err := f.svc.Retrieve(context.Background(), newQuery(t, "q", "", true))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Source != result.SourceLive || f.embedder.calls != 1 {
		t.Errorf("stale entry must not be served: source=%s embed=%d", resp.Source, f.embedder.calls)
	}
	if e := f.cache.entries["q|all"]; e.HitCount() != 0 || !e.CreatedAt().Equal(f.now) {
		t.Errorf("overwrite should reset: hit=%d created=%v", e.HitCount(), e.CreatedAt())
	}
}

func TestRetrieve_ExpiryBoundary(t *testing.T) {
	f := newFixture(t)
	f.cache.entries["q|all"] = cache.Reconstruct("q|all", []byte(`[]`), 0, f.now, f.now, f.now)

	resp, err := f.svc.Retrieve(context.Background(), newQuery(t, "q", "", true))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Source != result.SourceLive {
		t.Error("entry at exactly now >= expires_at must not be served")
	}
}

func TestRetrieve_CacheFailuresDegrade(t *testing.T) {
	f := newFixture(t, marketingCandidates()...)
	f.cache.getErr = errors.New("conn reset")
	f.cache.putErr = errors.New("conn reset")

	before := testutil.ToFloat64(metrics.RetrievalSideEffectErrorsTotal.WithLabelValues("cache_put"))
	resp, err := f.svc.Retrieve(context.Background(), newQuery(t, "q", "", true))
	if err != nil {
		t.Fatalf("cache errors must not fail the request: %v", err)
	}
	if resp.Source != result.SourceLive || len(resp.Results) != 3 {
		t.Errorf("resp = %+v", resp)
	}
	if after := testutil.ToFloat64(metrics.RetrievalSideEffectErrorsTotal.WithLabelValues("cache_put")); after-before != 1 {
		t.Errorf("cache_put side effect errors delta = %v", after-before)
	}
}

func TestRetrieve_CorruptPayloadIsMiss(t *testing.T) {
	f := newFixture(t)
	f.cache.entries["q|all"] = cache.New("q|all", []byte(`{not json`), f.now, time.Hour)

	resp, err := f.svc.Retrieve(context.Background(), newQuery(t, "q", "", true))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Source != result.SourceLive {
		t.Errorf("source = %s", resp.Source)
	}
}

func TestRetrieve_TouchAndSinkFailuresSwallowed(t *testing.T) {
	f := newFixture(t)
	f.cache.entries["q|all"] = cache.New("q|all", []byte(`[]`), f.now, time.Hour)
	f.cache.touchErr = errors.New("timeout")
	f.sink.err = errors.New("stream full")

	resp, err := f.svc.Retrieve(context.Background(), newQuery(t, "q", "", true))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Source != result.SourceCache || resp.Results == nil || len(resp.Results) != 0 {
		t.Errorf("resp = %+v", resp)
	}
}

func TestRetrieve_EmbedErrorPropagates(t *testing.T) {
	f := newFixture(t)
	f.embedder.embedFn = func(context.Context, string) (domain.EmbeddingResult, error) {
		return domain.EmbeddingResult{}, domain.NewUpstreamError("openai", 401, "invalid key", nil)
	}

	_, err := f.svc.Retrieve(context.Background(), newQuery(t, "q", "", true))
	if !errors.Is(err, domain.ErrUpstreamAuth) {
		t.Fatalf("expected ErrUpstreamAuth, got %v", err)
	}
	if status, _ := domain.UpstreamStatus(err); status != 401 {
		t.Errorf("status = %d", status)
	}
	if f.retriever.calls != 0 || f.cache.puts != 0 {
		t.Errorf("nothing downstream may run: search=%d puts=%d", f.retriever.calls, f.cache.puts)
	}
	if len(f.sink.records) != 1 || f.sink.records[0].Status != perf.StatusError || f.sink.records[0].ErrorMessage == "" {
		t.Errorf("records = %+v", f.sink.records)
	}
}

func TestRetrieve_SearchErrorPropagates(t *testing.T) {
	f := newFixture(t)
	f.retriever.searchFn = func(context.Context, query.Candidates) ([]chunk.Chunk, error) {
		return nil, errors.New("index missing")
	}

	if _, err := f.svc.Retrieve(context.Background(), newQuery(t, "q", "", true)); err == nil {
		t.Fatal("expected error")
	}
	if f.cache.puts != 0 {
		t.Error("failed queries must not be cached")
	}
}

func TestRetrieve_NoCandidates(t *testing.T) {
	f := newFixture(t)

	resp, err := f.svc.Retrieve(context.Background(), newQuery(t, "nothing matches", "legal", true))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Results == nil || len(resp.Results) != 0 {
		t.Errorf("results = %#v, want empty slice", resp.Results)
	}
	if resp.Quality != (result.QualityMetrics{}) {
		t.Errorf("quality = %+v", resp.Quality)
	}
	if f.cache.puts != 1 {
		t.Error("empty result sets are cached too")
	}
}

func TestRetrieve_NilCacheAndSink(t *testing.T) {
	emb := &mockEmbedder{}
	svc := New(emb, &mockRetriever{}, nil, nil, Options{}, zap.NewNop())

	resp, err := svc.Retrieve(context.Background(), newQuery(t, "q", "", true))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Source != result.SourceLive {
		t.Errorf("source = %s", resp.Source)
	}
	if err := svc.Evict(context.Background(), "q", ""); err != nil {
		t.Errorf("evict without cache: %v", err)
	}
}

func TestEvict_DerivesKey(t *testing.T) {
	f := newFixture(t)
	if err := f.svc.Evict(context.Background(), " Budget Plan ", hub.Finance); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(f.cache.evicted) != 1 || f.cache.evicted[0] != "budget plan|finance" {
		t.Errorf("evicted = %v", f.cache.evicted)
	}
}
