// Package query holds the validated context retrieval request.
package query

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/kailas-cloud/hubcontext/internal/domain/hub"
)

// Parameter defaults and limits.
const (
	DefaultThreshold     = 0.7
	DefaultMatchCount    = 5
	DefaultMaxMatchCount = 50
	// MaxQueryLength is the maximum query length in runes.
	MaxQueryLength = 4096
)

// Limits are the operator-tunable defaults applied when a field is omitted.
type Limits struct {
	Threshold     float64
	MatchCount    int
	MaxMatchCount int
}

// DefaultLimits returns the built-in defaults.
func DefaultLimits() Limits {
	return Limits{
		Threshold:     DefaultThreshold,
		MatchCount:    DefaultMatchCount,
		MaxMatchCount: DefaultMaxMatchCount,
	}
}

// Params are the raw, optional request fields. Nil pointers mean "use the default".
type Params struct {
	Text       string
	HubArea    string
	Threshold  *float64
	MatchCount *int
	UseCached  *bool
}

// Query is a validated retrieval request.
type Query struct {
	text       string
	hubArea    hub.Area
	threshold  float64
	matchCount int
	useCached  bool
}

// New validates params and fills defaults from limits.
// matchCount above the configured maximum is clamped, not rejected.
func New(p Params, limits Limits) (Query, error) {
	limits = limits.withDefaults()

	text := strings.TrimSpace(p.Text)
	if text == "" {
		return Query{}, fmt.Errorf("query is required")
	}
	if utf8.RuneCountInString(text) > MaxQueryLength {
		return Query{}, fmt.Errorf("query too long (max %d chars)", MaxQueryLength)
	}

	area, err := hub.Parse(p.HubArea)
	if err != nil {
		return Query{}, err
	}

	threshold := limits.Threshold
	if p.Threshold != nil {
		threshold = *p.Threshold
	}
	if threshold < 0 || threshold > 1 {
		return Query{}, fmt.Errorf("similarityThreshold must be between 0 and 1")
	}

	matchCount := limits.MatchCount
	if p.MatchCount != nil {
		matchCount = *p.MatchCount
	}
	if matchCount <= 0 {
		return Query{}, fmt.Errorf("matchCount must be a positive integer")
	}
	matchCount = min(matchCount, limits.MaxMatchCount)

	useCached := true
	if p.UseCached != nil {
		useCached = *p.UseCached
	}

	return Query{
		text:       text,
		hubArea:    area,
		threshold:  threshold,
		matchCount: matchCount,
		useCached:  useCached,
	}, nil
}

// Text returns the trimmed query text.
func (q *Query) Text() string { return q.text }

// HubArea returns the requested hub area, zero for all hubs.
func (q *Query) HubArea() hub.Area { return q.hubArea }

// Threshold returns the minimum cosine similarity.
func (q *Query) Threshold() float64 { return q.threshold }

// MatchCount returns the number of results to return.
func (q *Query) MatchCount() int { return q.matchCount }

// UseCached reports whether the result cache may be read and written.
func (q *Query) UseCached() bool { return q.useCached }

func (l Limits) withDefaults() Limits {
	if l.Threshold < 0 || l.Threshold > 1 {
		l.Threshold = DefaultThreshold
	}
	if l.MatchCount <= 0 {
		l.MatchCount = DefaultMatchCount
	}
	if l.MaxMatchCount <= 0 {
		l.MaxMatchCount = DefaultMaxMatchCount
	}
	if l.MatchCount > l.MaxMatchCount {
		l.MatchCount = l.MaxMatchCount
	}
	return l
}
