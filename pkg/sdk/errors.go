package hubcontext

import "github.com/kailas-cloud/hubcontext/internal/domain"

// Sentinel errors re-exported from the domain layer.
// Use errors.Is() to check.
var (
	ErrInvalidInput           = domain.ErrInvalidInput
	ErrUpstreamAuth           = domain.ErrUpstreamAuth
	ErrUpstreamTransient      = domain.ErrUpstreamTransient
	ErrRateLimited            = domain.ErrRateLimited
	ErrEmbeddingQuotaExceeded = domain.ErrEmbeddingQuotaExceeded
	ErrEmbeddingProviderError = domain.ErrEmbeddingProviderError
	ErrVectorDimMismatch      = domain.ErrVectorDimMismatch
)

// UpstreamStatus returns the HTTP status reported by the embedding provider, if err carries one.
func UpstreamStatus(err error) (int, bool) {
	return domain.UpstreamStatus(err)
}
