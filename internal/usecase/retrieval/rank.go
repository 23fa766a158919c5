package retrieval

import (
	"sort"
	"unicode/utf8"

	"github.com/kailas-cloud/hubcontext/internal/domain/chunk"
	"github.com/kailas-cloud/hubcontext/internal/domain/hub"
	"github.com/kailas-cloud/hubcontext/internal/domain/result"
)

// Ranking constants.
const (
	DefaultHubBoost = 1.2

	positionLabelBonus = 0.05
	importanceWeight   = 0.1
	titleBonusCap      = 0.05
	titleBonusRunes    = 200
	citationRunes      = 200
	citationEllipsis   = "..."
)

// Ranker orders candidates by hub-weighted similarity plus structural quality signals.
type Ranker struct {
	hubBoost float64
}

// NewRanker creates a ranker. A boost below 1 falls back to DefaultHubBoost.
func NewRanker(hubBoost float64) Ranker {
	if hubBoost < 1 {
		hubBoost = DefaultHubBoost
	}
	return Ranker{hubBoost: hubBoost}
}

// Rank ranks candidates with the default hub boost.
func Rank(candidates []chunk.Chunk, area hub.Area, matchCount int) []result.Ranked {
	return NewRanker(DefaultHubBoost).Rank(candidates, area, matchCount)
}

// Rank scores every candidate, sorts by quality descending and keeps the first matchCount.
// Equal scores keep retrieval order. Candidates are not modified.
func (r Ranker) Rank(candidates []chunk.Chunk, area hub.Area, matchCount int) []result.Ranked {
	ranked := make([]result.Ranked, len(candidates))
	for i := range candidates {
		c := candidates[i]
		weighted := r.hubWeighted(&c, area)
		ranked[i] = result.NewRanked(c, weighted, quality(&c, weighted), citation(c.Content()))
	}

	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].QualityScore() > ranked[j].QualityScore()
	})

	if matchCount < 0 {
		matchCount = 0
	}
	return ranked[:min(matchCount, len(ranked))]
}

// hubWeighted boosts similarity for chunks of documents in the requested hub. Uncapped.
func (r Ranker) hubWeighted(c *chunk.Chunk, area hub.Area) float64 {
	if hub.Contains(c.HubAreas(), area) {
		return c.Similarity() * r.hubBoost
	}
	return c.Similarity()
}

func quality(c *chunk.Chunk, weighted float64) float64 {
	score := weighted
	md := c.Metadata()
	if md.HasPositionLabel() {
		score += positionLabelBonus
	}
	score += importanceWeight * md.ClampedImportance()

	titleLen := float64(utf8.RuneCountInString(c.DocumentTitle()))
	score += min(titleBonusCap, titleLen/titleBonusRunes*titleBonusCap)
	return score
}

// citation returns the first citationRunes runes of content, with an ellipsis when cut.
func citation(content string) string {
	if utf8.RuneCountInString(content) <= citationRunes {
		return content
	}
	n := 0
	for i := range content {
		if n == citationRunes {
			return content[:i] + citationEllipsis
		}
		n++
	}
	return content
}
