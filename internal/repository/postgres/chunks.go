package postgres

import (
	"context"
	"fmt"

	"github.com/pgvector/pgvector-go"

	"github.com/kailas-cloud/hubcontext/internal/domain"
	"github.com/kailas-cloud/hubcontext/internal/domain/chunk"
	"github.com/kailas-cloud/hubcontext/internal/domain/hub"
	"github.com/kailas-cloud/hubcontext/internal/domain/query"
)

// cosine similarity = 1 - cosine distance (<=>)
const searchChunksSQL = `
SELECT c.id::text, c.document_id::text, c.content, c.chunk_index, c.metadata,
       1 - (c.embedding <=> $1) AS similarity,
       COALESCE(d.title, ''), COALESCE(d.hub_areas, '{}')
FROM ` + tableChunks + ` c
JOIN ` + tableDocuments + ` d ON d.id = c.document_id
WHERE 1 - (c.embedding <=> $1) >= $2`

const searchOrderSQL = `
ORDER BY c.embedding <=> $1
LIMIT $3`

// ChunkRepo implements usecase/retrieval.Retriever over pgvector.
type ChunkRepo struct {
	db           querier
	hubPrefilter bool
}

// NewChunkRepo creates a chunk retriever. hubPrefilter restricts rows to documents tagged with the hub area.
func NewChunkRepo(q querier, hubPrefilter bool) *ChunkRepo {
	return &ChunkRepo{db: q, hubPrefilter: hubPrefilter}
}

// Search returns chunks with similarity ≥ q.Threshold ordered by similarity descending.
func (r *ChunkRepo) Search(ctx context.Context, q query.Candidates) ([]chunk.Chunk, error) {
	if len(q.Vector) == 0 {
		return nil, fmt.Errorf("%w: query vector is empty", domain.ErrInvalidInput)
	}
	if q.Limit <= 0 {
		return []chunk.Chunk{}, nil
	}

	sql := searchChunksSQL
	args := []any{pgvector.NewVector(q.Vector), q.Threshold, q.Limit}
	if r.hubPrefilter && !q.HubArea.IsZero() {
		sql += "\n  AND $4 = ANY(d.hub_areas)"
		args = append(args, string(q.HubArea))
	}
	sql += searchOrderSQL

	rows, err := r.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("search chunks: %w", err)
	}
	defer rows.Close()

	out := make([]chunk.Chunk, 0, q.Limit)
	for rows.Next() {
		var (
			id, documentID, content, title string
			position                       int
			metadata                       []byte
			similarity                     float64
			areas                          []string
		)
		if err := rows.Scan(&id, &documentID, &content, &position, &metadata, &similarity, &title, &areas); err != nil {
			return nil, fmt.Errorf("scan chunk: %w", err)
		}

		var meta chunk.Metadata
		if len(metadata) > 0 {
			if m, err := chunk.ParseMetadataJSON(metadata); err == nil {
				meta = m
			}
		}

		out = append(out, chunk.Reconstruct(
			id, documentID, content, max(0, position), meta,
			max(0, similarity), title, hub.FromStrings(areas),
		))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate chunks: %w", err)
	}
	return out, nil
}
