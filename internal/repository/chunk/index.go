package chunk

import (
	"context"
	"errors"
	"fmt"

	"github.com/kailas-cloud/hubcontext/internal/db"
)

// buildIndex defines the chunk index: HNSW cosine vector plus TAG fields for pre-filtering.
func (r *Repo) buildIndex() (*db.IndexDefinition, error) {
	def, err := db.NewIndex(r.opts.IndexName).
		Prefix(r.chunkPrefix()).
		Tag(fieldDocumentID).
		TagList(fieldHubAreas, hubAreaSeparator).
		Numeric(fieldPosition).
		Vector(fieldVector, r.opts.Dimensions, db.DistanceCosine, r.opts.HNSW).
		Build()
	if err != nil {
		return nil, fmt.Errorf("build index %s: %w", r.opts.IndexName, err)
	}
	return def, nil
}

// EnsureIndex creates the chunk index when it does not exist.
// Returns true when the index was created by this call.
func (r *Repo) EnsureIndex(ctx context.Context) (bool, error) {
	exists, err := r.store.IndexExists(ctx, r.opts.IndexName)
	if err != nil {
		return false, fmt.Errorf("check index %s: %w", r.opts.IndexName, err)
	}
	if exists {
		return false, nil
	}

	def, err := r.buildIndex()
	if err != nil {
		return false, err
	}

	if err := r.store.CreateIndex(ctx, def); err != nil {
		// Lost a race with another instance.
		if errors.Is(err, db.ErrIndexExists) {
			return false, nil
		}
		return false, fmt.Errorf("create index %s: %w", r.opts.IndexName, err)
	}
	return true, nil
}
