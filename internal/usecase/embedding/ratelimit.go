package embedding

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/time/rate"

	"github.com/kailas-cloud/hubcontext/internal/domain"
	"github.com/kailas-cloud/hubcontext/internal/metrics"
)

// RateLimitedEmbedder throttles outbound embedding calls with a process-local token bucket.
type RateLimitedEmbedder struct {
	inner   domain.Embedder
	limiter *rate.Limiter
}

// NewRateLimitedEmbedder allows rps calls per second with the given burst.
// burst below 1 is raised to 1.
func NewRateLimitedEmbedder(inner domain.Embedder, rps float64, burst int) *RateLimitedEmbedder {
	return &RateLimitedEmbedder{
		inner:   inner,
		limiter: rate.NewLimiter(rate.Limit(rps), max(1, burst)),
	}
}

// Embed waits for a token and delegates. A wait that cannot finish before the
// context deadline fails with domain.ErrRateLimited without calling upstream.
func (r *RateLimitedEmbedder) Embed(ctx context.Context, text string) (domain.EmbeddingResult, error) {
	start := time.Now()
	err := r.limiter.Wait(ctx)
	metrics.EmbeddingRateLimitWaitSeconds.Observe(time.Since(start).Seconds())
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return domain.EmbeddingResult{}, fmt.Errorf("rate limit wait: %w", err)
		}
		return domain.EmbeddingResult{}, fmt.Errorf("rate limit wait: %w: %w", domain.ErrRateLimited, err)
	}
	return r.inner.Embed(ctx, text)
}

// HealthCheck forwards to the inner embedder without consuming a token.
func (r *RateLimitedEmbedder) HealthCheck(ctx context.Context) error {
	return domain.CheckEmbedderHealth(ctx, r.inner)
}
