package chunk

import (
	"strconv"
	"strings"

	"github.com/kailas-cloud/hubcontext/internal/db"
	domchunk "github.com/kailas-cloud/hubcontext/internal/domain/chunk"
	"github.com/kailas-cloud/hubcontext/internal/domain/hub"
)

// Hash field names shared with the ingestion side.
const (
	fieldDocumentID = "document_id"
	fieldContent    = "content"
	fieldPosition   = "position"
	fieldMetadata   = "metadata"
	fieldHubAreas   = "hub_areas"
	fieldVector     = db.DefaultVectorField

	fieldTitle = "title"
)

// hubAreaSeparator is the TAG separator used for hub_areas on chunk and document hashes.
const hubAreaSeparator = ","

var returnFields = []string{fieldDocumentID, fieldContent, fieldPosition, fieldMetadata, fieldHubAreas}

// entryToChunk hydrates a chunk from a KNN hit. Malformed metadata is dropped, not fatal.
func entryToChunk(id string, e db.SearchEntry) domchunk.Chunk {
	position, _ := strconv.Atoi(e.Fields[fieldPosition])

	var meta domchunk.Metadata
	if raw := e.Fields[fieldMetadata]; raw != "" {
		if m, err := domchunk.ParseMetadataJSON([]byte(raw)); err == nil {
			meta = m
		}
	}

	return domchunk.Reconstruct(
		id,
		e.Fields[fieldDocumentID],
		e.Fields[fieldContent],
		max(0, position),
		meta,
		e.Score,
		"",
		hub.Split(e.Fields[fieldHubAreas], hubAreaSeparator),
	)
}

// document is the denormalized view of a document hash.
type document struct {
	title    string
	hubAreas []hub.Area
}

func hashToDocument(h map[string]string) (document, bool) {
	if len(h) == 0 {
		return document{}, false
	}
	return document{
		title:    strings.TrimSpace(h[fieldTitle]),
		hubAreas: hub.Split(h[fieldHubAreas], hubAreaSeparator),
	}, true
}
