// Package chunk holds the immutable unit of ingested document text returned by vector search.
package chunk

import (
	"fmt"
	"slices"

	"github.com/kailas-cloud/hubcontext/internal/domain/hub"
)

// Chunk is a retrieved document fragment with its owning document denormalized.
type Chunk struct {
	id            string
	documentID    string
	content       string
	position      int
	metadata      Metadata
	similarity    float64
	documentTitle string
	hubAreas      []hub.Area
}

// New validates and creates a Chunk.
func New(
	id, documentID, content string, position int,
	metadata Metadata, similarity float64,
	documentTitle string, hubAreas []hub.Area,
) (Chunk, error) {
	if id == "" {
		return Chunk{}, fmt.Errorf("chunk ID is required")
	}
	if documentID == "" {
		return Chunk{}, fmt.Errorf("document ID is required")
	}
	if position < 0 {
		return Chunk{}, fmt.Errorf("chunk position must be non-negative")
	}
	return Reconstruct(id, documentID, content, position, metadata, similarity,
		documentTitle, slices.Clone(hubAreas)), nil
}

// Reconstruct creates a Chunk without validation (storage hydration).
func Reconstruct(
	id, documentID, content string, position int,
	metadata Metadata, similarity float64,
	documentTitle string, hubAreas []hub.Area,
) Chunk {
	return Chunk{
		id: id, documentID: documentID, content: content, position: position,
		metadata: metadata, similarity: similarity,
		documentTitle: documentTitle, hubAreas: hubAreas,
	}
}

// ID returns the chunk identifier.
func (c *Chunk) ID() string { return c.id }

// DocumentID returns the owning document identifier.
func (c *Chunk) DocumentID() string { return c.documentID }

// Content returns the chunk text.
func (c *Chunk) Content() string { return c.content }

// Position returns the zero-indexed position within the document.
func (c *Chunk) Position() int { return c.position }

// Metadata returns the typed metadata.
func (c *Chunk) Metadata() Metadata { return c.metadata }

// Similarity returns the raw cosine similarity from vector search.
func (c *Chunk) Similarity() float64 { return c.similarity }

// DocumentTitle returns the owning document's title.
func (c *Chunk) DocumentTitle() string { return c.documentTitle }

// HubAreas returns the owning document's hub areas.
func (c *Chunk) HubAreas() []hub.Area { return c.hubAreas }

// WithDocument returns a copy with the owning document's title and hub areas set.
func (c *Chunk) WithDocument(title string, areas []hub.Area) Chunk {
	cp := *c
	cp.documentTitle = title
	cp.hubAreas = areas
	return cp
}
