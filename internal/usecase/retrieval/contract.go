package retrieval

import (
	"context"
	"time"

	"github.com/kailas-cloud/hubcontext/internal/domain"
	"github.com/kailas-cloud/hubcontext/internal/domain/cache"
	"github.com/kailas-cloud/hubcontext/internal/domain/chunk"
	"github.com/kailas-cloud/hubcontext/internal/domain/perf"
	"github.com/kailas-cloud/hubcontext/internal/domain/query"
)

// Embedder vectorizes the query text.
type Embedder interface {
	Embed(ctx context.Context, text string) (domain.EmbeddingResult, error)
}

// Retriever returns candidate chunks above a similarity floor, most similar first.
type Retriever interface {
	Search(ctx context.Context, q query.Candidates) ([]chunk.Chunk, error)
}

// Cache stores ranked result sets by derived key.
type Cache interface {
	Get(ctx context.Context, key string) (cache.Entry, bool, error)
	Put(ctx context.Context, e cache.Entry) error
	Touch(ctx context.Context, key string, now time.Time) error
	Evict(ctx context.Context, key string) error
}

// MetricsSink persists one performance record per retrieval.
type MetricsSink interface {
	Record(ctx context.Context, rec perf.Record) error
}
