package embedding

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/hubcontext/internal/domain"
	"github.com/kailas-cloud/hubcontext/internal/metrics"
	"github.com/kailas-cloud/hubcontext/internal/retry"
)

// RetryingEmbedder re-issues embedding calls that failed transiently
// (429, 5xx, network). Auth and other 4xx failures are returned after one attempt.
type RetryingEmbedder struct {
	inner    domain.Embedder
	policy   retry.Policy
	provider string
	model    string
	logger   *zap.Logger
}

// NewRetryingEmbedder wraps inner with policy. A nil Retryable on policy
// is replaced by domain.IsTransient.
func NewRetryingEmbedder(
	inner domain.Embedder, policy retry.Policy,
	provider, model string, logger *zap.Logger,
) *RetryingEmbedder {
	if policy.Retryable == nil {
		policy.Retryable = domain.IsTransient
	}
	r := &RetryingEmbedder{
		inner:    inner,
		provider: provider,
		model:    model,
		logger:   logger,
	}
	policy.OnRetry = r.onRetry
	r.policy = policy
	return r
}

// Embed runs inner.Embed under the retry policy.
func (r *RetryingEmbedder) Embed(ctx context.Context, text string) (domain.EmbeddingResult, error) {
	res, err := retry.Do(ctx, r.policy, func(ctx context.Context) (domain.EmbeddingResult, error) {
		return r.inner.Embed(ctx, text)
	})
	if err != nil {
		return domain.EmbeddingResult{}, fmt.Errorf("retrying embed: %w", err)
	}
	return res, nil
}

// HealthCheck forwards to the inner embedder without retries.
func (r *RetryingEmbedder) HealthCheck(ctx context.Context) error {
	return domain.CheckEmbedderHealth(ctx, r.inner)
}

func (r *RetryingEmbedder) onRetry(err error, attempt int, delay time.Duration) {
	metrics.EmbeddingRetriesTotal.WithLabelValues(r.provider, r.model).Inc()
	status, _ := domain.UpstreamStatus(err)
	r.logger.Warn("Embedding attempt failed, retrying",
		zap.String("provider", r.provider),
		zap.String("model", r.model),
		zap.Int("attempt", attempt),
		zap.Int("upstream_status", status),
		zap.Duration("backoff", delay),
		zap.Error(err),
	)
}
