// Package result holds ranked retrieval results and their serialized form.
package result

import (
	"github.com/kailas-cloud/hubcontext/internal/domain/chunk"
	"github.com/kailas-cloud/hubcontext/internal/domain/hub"
)

// Source reports where a result set came from.
type Source string

// Result source constants.
const (
	SourceCache Source = "cache"
	SourceLive  Source = "live_query"
)

// Ranked is a candidate chunk after hub weighting and quality scoring.
type Ranked struct {
	chunk                 chunk.Chunk
	hubWeightedSimilarity float64
	qualityScore          float64
	citationContext       string
}

// NewRanked creates a ranked result.
func NewRanked(c chunk.Chunk, weighted, quality float64, citation string) Ranked {
	return Ranked{
		chunk:                 c,
		hubWeightedSimilarity: weighted,
		qualityScore:          quality,
		citationContext:       citation,
	}
}

// Chunk returns the underlying candidate.
func (r *Ranked) Chunk() chunk.Chunk { return r.chunk }

// HubWeightedSimilarity returns the similarity after the hub boost.
func (r *Ranked) HubWeightedSimilarity() float64 { return r.hubWeightedSimilarity }

// QualityScore returns the final ranking score.
func (r *Ranked) QualityScore() float64 { return r.qualityScore }

// CitationContext returns the display excerpt.
func (r *Ranked) CitationContext() string { return r.citationContext }

// Item is the serialized result shape shared by the cache payload and the API.
type Item struct {
	ChunkID         string   `json:"chunk_id"`
	DocumentID      string   `json:"document_id"`
	DocumentTitle   string   `json:"document_title"`
	Content         string   `json:"content"`
	CitationContext string   `json:"citation_context"`
	RelevanceScore  float64  `json:"relevance_score"`
	HubAreas        []string `json:"hub_areas"`
	Position        int      `json:"position"`
	Similarity      float64  `json:"similarity"`
}

// ToItem renders a ranked result in its serialized shape.
func (r *Ranked) ToItem() Item {
	c := r.chunk
	areas := hub.Strings(c.HubAreas())
	return Item{
		ChunkID:         c.ID(),
		DocumentID:      c.DocumentID(),
		DocumentTitle:   c.DocumentTitle(),
		Content:         c.Content(),
		CitationContext: r.citationContext,
		RelevanceScore:  r.qualityScore,
		HubAreas:        areas,
		Position:        c.Position(),
		Similarity:      c.Similarity(),
	}
}

// Items renders a ranked list. Never returns nil so an empty set encodes as [].
func Items(ranked []Ranked) []Item {
	out := make([]Item, len(ranked))
	for i := range ranked {
		out[i] = ranked[i].ToItem()
	}
	return out
}

// QualityMetrics summarises a result set.
type QualityMetrics struct {
	AverageRelevance float64 `json:"averageRelevance"`
	TopRelevance     float64 `json:"topRelevance"`
	HubMatchCount    int     `json:"hubMatchCount"`
}

// Summarize computes quality metrics over items for the requested hub area.
func Summarize(items []Item, area hub.Area) QualityMetrics {
	if len(items) == 0 {
		return QualityMetrics{}
	}
	var m QualityMetrics
	var sum float64
	for i, it := range items {
		sum += it.RelevanceScore
		if i == 0 || it.RelevanceScore > m.TopRelevance {
			m.TopRelevance = it.RelevanceScore
		}
		if hub.Contains(hub.FromStrings(it.HubAreas), area) {
			m.HubMatchCount++
		}
	}
	m.AverageRelevance = sum / float64(len(items))
	return m
}
