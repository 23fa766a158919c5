package hubcontext

import (
	"time"

	"github.com/kailas-cloud/hubcontext/internal/domain/result"
)

// HubArea values accepted in Query.HubArea. Matching is case-insensitive.
const (
	HubMarketing       = "marketing"
	HubSales           = "sales"
	HubOperations      = "operations"
	HubFinance         = "finance"
	HubHR              = "hr"
	HubLegal           = "legal"
	HubProduct         = "product"
	HubStrategy        = "strategy"
	HubCustomerService = "customer_service"
	HubTechnology      = "technology"
)

// Query is a retrieval request. Nil pointers take the defaults:
// threshold 0.7, 5 matches, cache enabled.
type Query struct {
	Text                string
	HubArea             string // empty means all hub areas
	SimilarityThreshold *float64
	MatchCount          *int
	UseCached           *bool
}

// Source says where a result set came from.
type Source string

// Source constants.
const (
	SourceCache Source = Source(result.SourceCache)
	SourceLive  Source = Source(result.SourceLive)
)

// Item is one ranked chunk.
type Item struct {
	ChunkID         string
	DocumentID      string
	DocumentTitle   string
	Content         string
	CitationContext string
	RelevanceScore  float64
	HubAreas        []string
	Position        int
	Similarity      float64
}

// Quality summarises a result set.
type Quality struct {
	AverageRelevance float64
	TopRelevance     float64
	HubMatchCount    int
}

// Result is a ranked result set.
type Result struct {
	Items    []Item
	Source   Source
	CacheHit bool
	Duration time.Duration
	Quality  Quality
	// EmbeddingTokens is zero when the embedder was not called.
	EmbeddingTokens int
}

func itemsFromDomain(in []result.Item) []Item {
	out := make([]Item, len(in))
	for i, it := range in {
		out[i] = Item{
			ChunkID:         it.ChunkID,
			DocumentID:      it.DocumentID,
			DocumentTitle:   it.DocumentTitle,
			Content:         it.Content,
			CitationContext: it.CitationContext,
			RelevanceScore:  it.RelevanceScore,
			HubAreas:        it.HubAreas,
			Position:        it.Position,
			Similarity:      it.Similarity,
		}
	}
	return out
}
