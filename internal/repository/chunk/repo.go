// Package chunk retrieves document chunks by vector similarity from a Redis/Valkey search index.
package chunk

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/kailas-cloud/hubcontext/internal/db"
	"github.com/kailas-cloud/hubcontext/internal/domain"
	domchunk "github.com/kailas-cloud/hubcontext/internal/domain/chunk"
	"github.com/kailas-cloud/hubcontext/internal/domain/query"
)

// store is the consumer interface for chunk retrieval (ISP).
type store interface {
	SearchKNN(ctx context.Context, q *db.KNNQuery) (*db.SearchResult, error)
	HGetAllMulti(ctx context.Context, keys []string) ([]map[string]string, error)
	CreateIndex(ctx context.Context, def *db.IndexDefinition) error
	IndexExists(ctx context.Context, name string) (bool, error)
}

// Options configure key layout and index shape.
type Options struct {
	IndexName  string
	KeyPrefix  string
	Dimensions int
	HNSW       db.HNSW
	// HubPrefilter restricts KNN to chunks tagged with the requested hub area.
	// Off by default so the ranker's boost prefers, rather than excludes, in-hub content.
	HubPrefilter bool
}

// Repo implements usecase/retrieval.Retriever.
type Repo struct {
	store store
	opts  Options
}

// New creates a chunk repository.
func New(s store, opts Options) *Repo {
	if opts.IndexName == "" {
		opts.IndexName = "chunks"
	}
	if opts.KeyPrefix == "" {
		opts.KeyPrefix = domain.KeyPrefix
	}
	if opts.HNSW.M <= 0 {
		opts.HNSW.M = 16
	}
	if opts.HNSW.EFConstruct <= 0 {
		opts.HNSW.EFConstruct = 200
	}
	return &Repo{store: s, opts: opts}
}

func (r *Repo) chunkPrefix() string { return r.opts.KeyPrefix + "chunk:" }

func (r *Repo) docKey(id string) string { return r.opts.KeyPrefix + "doc:" + id }

// Search returns chunks with similarity ≥ q.Threshold, most similar first.
// Document title and hub areas are read from document hashes in one round-trip.
func (r *Repo) Search(ctx context.Context, q query.Candidates) ([]domchunk.Chunk, error) {
	if len(q.Vector) == 0 {
		return nil, fmt.Errorf("%w: query vector is empty", domain.ErrInvalidInput)
	}
	if q.Limit <= 0 {
		return []domchunk.Chunk{}, nil
	}

	knn := &db.KNNQuery{
		IndexName:    r.opts.IndexName,
		Vector:       q.Vector,
		K:            q.Limit,
		ReturnFields: returnFields,
	}
	if r.opts.HubPrefilter && !q.HubArea.IsZero() {
		knn.Filter = &db.TagFilter{Field: fieldHubAreas, Values: []string{string(q.HubArea)}}
	}

	sr, err := r.store.SearchKNN(ctx, knn)
	if err != nil {
		return nil, fmt.Errorf("search knn %s: %w", r.opts.IndexName, err)
	}

	chunks := r.parseEntries(sr, q.Threshold)
	if len(chunks) == 0 {
		return chunks, nil
	}

	if err := r.attachDocuments(ctx, chunks); err != nil {
		return nil, err
	}

	sort.SliceStable(chunks, func(i, j int) bool {
		return chunks[i].Similarity() > chunks[j].Similarity()
	})
	return chunks, nil
}

func (r *Repo) parseEntries(sr *db.SearchResult, threshold float64) []domchunk.Chunk {
	out := make([]domchunk.Chunk, 0)
	if sr == nil {
		return out
	}
	prefix := r.chunkPrefix()
	for _, e := range sr.Entries {
		if e.Score < threshold {
			continue
		}
		c := entryToChunk(strings.TrimPrefix(e.Key, prefix), e)
		if c.DocumentID() == "" {
			continue
		}
		out = append(out, c)
	}
	return out
}

// attachDocuments denormalizes title and hub areas onto each chunk.
// A missing document hash keeps the hub areas stored on the chunk itself.
func (r *Repo) attachDocuments(ctx context.Context, chunks []domchunk.Chunk) error {
	ids := make([]string, 0, len(chunks))
	seen := make(map[string]int, len(chunks))
	for i := range chunks {
		id := chunks[i].DocumentID()
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = len(ids)
		ids = append(ids, id)
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = r.docKey(id)
	}

	hashes, err := r.store.HGetAllMulti(ctx, keys)
	if err != nil {
		return fmt.Errorf("load documents: %w", err)
	}

	for i := range chunks {
		idx := seen[chunks[i].DocumentID()]
		if idx >= len(hashes) {
			continue
		}
		doc, ok := hashToDocument(hashes[idx])
		if !ok {
			continue
		}
		areas := doc.hubAreas
		if len(areas) == 0 {
			areas = chunks[i].HubAreas()
		}
		chunks[i] = chunks[i].WithDocument(doc.title, areas)
	}
	return nil
}
