package domain

import (
	"errors"
	"fmt"
)

// KeyPrefix namespaces every key hubcontext writes to a shared Redis/Valkey.
const KeyPrefix = "hubcontext:"

var (
	// ErrInvalidInput signals a malformed or incomplete client request.
	ErrInvalidInput = errors.New("invalid input")
	// ErrUpstreamAuth signals a rejected credential at a remote service (401/403).
	ErrUpstreamAuth = errors.New("upstream authentication failed")
	// ErrUpstreamTransient signals a retryable remote failure (429, 5xx, network).
	ErrUpstreamTransient = errors.New("upstream temporarily unavailable")
	// ErrRateLimited signals that the local outbound rate limit could not be satisfied.
	ErrRateLimited = errors.New("rate limited")
	// ErrEmbeddingQuotaExceeded signals an exhausted embedding budget.
	ErrEmbeddingQuotaExceeded = errors.New("embedding quota exceeded")
	// ErrEmbeddingProviderError signals an embedding provider failure.
	ErrEmbeddingProviderError = errors.New("embedding provider error")
	// ErrVectorDimMismatch signals a vector dimension mismatch.
	ErrVectorDimMismatch = errors.New("vector dimension mismatch")
)

// UpstreamError carries the status a remote service answered with.
// StatusCode is 0 when the request never got a response (network failure).
type UpstreamError struct {
	Service    string
	StatusCode int
	Message    string
	Kind       error // ErrUpstreamAuth, ErrUpstreamTransient or ErrEmbeddingProviderError
	Cause      error
}

func (e *UpstreamError) Error() string {
	if e.StatusCode == 0 {
		return fmt.Sprintf("%s: %s: %s", e.Service, e.Kind, e.Message)
	}
	return fmt.Sprintf("%s: %s (status %d): %s", e.Service, e.Kind, e.StatusCode, e.Message)
}

func (e *UpstreamError) Unwrap() []error {
	if e.Cause == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Cause}
}

// NewUpstreamError classifies a remote failure by HTTP status.
// 401/403 -> auth, 429/5xx/0 -> transient, any other status -> provider error.
func NewUpstreamError(service string, status int, message string, cause error) *UpstreamError {
	return &UpstreamError{
		Service:    service,
		StatusCode: status,
		Message:    message,
		Kind:       classifyStatus(status),
		Cause:      cause,
	}
}

func classifyStatus(status int) error {
	switch {
	case status == 401 || status == 403:
		return ErrUpstreamAuth
	case status == 0, status == 429, status >= 500:
		return ErrUpstreamTransient
	default:
		return ErrEmbeddingProviderError
	}
}

// IsTransient reports whether err is worth retrying.
func IsTransient(err error) bool {
	return errors.Is(err, ErrUpstreamTransient)
}

// UpstreamStatus extracts the upstream HTTP status from err, if any.
func UpstreamStatus(err error) (int, bool) {
	var ue *UpstreamError
	if errors.As(err, &ue) {
		return ue.StatusCode, true
	}
	return 0, false
}
