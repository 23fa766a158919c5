package query

import "github.com/kailas-cloud/hubcontext/internal/domain/hub"

// Candidates is the nearest-neighbour request handed to a chunk retriever.
// Limit is already multiplied by the candidate multiplier.
type Candidates struct {
	Vector    []float32
	Threshold float64
	Limit     int
	HubArea   hub.Area
}

// CandidateLimit returns the number of candidates fetched for a query:
// multiplier × matchCount, with multiplier floored at 1.
func CandidateLimit(matchCount, multiplier int) int {
	return max(1, multiplier) * matchCount
}
