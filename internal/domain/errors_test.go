package domain

import (
	"errors"
	"fmt"
	"testing"
)

func TestNewUpstreamError_Classification(t *testing.T) {
	tests := []struct {
		status int
		want   error
	}{
		{0, ErrUpstreamTransient},
		{401, ErrUpstreamAuth},
		{403, ErrUpstreamAuth},
		{429, ErrUpstreamTransient},
		{500, ErrUpstreamTransient},
		{503, ErrUpstreamTransient},
		{400, ErrEmbeddingProviderError},
		{404, ErrEmbeddingProviderError},
		{422, ErrEmbeddingProviderError},
	}

	for _, tc := range tests {
		t.Run(fmt.Sprintf("status=%d", tc.status), func(t *testing.T) {
			err := NewUpstreamError("embedding", tc.status, "boom", nil)
			if !errors.Is(err, tc.want) {
				t.Errorf("status %d: expected %v, got %v", tc.status, tc.want, err.Kind)
			}
		})
	}
}

func TestUpstreamError_WrappedThroughChain(t *testing.T) {
	cause := errors.New("connection reset")
	err := fmt.Errorf("embed: %w", NewUpstreamError("embedding", 0, "request failed", cause))

	if !IsTransient(err) {
		t.Error("expected network failure to be transient")
	}
	if !errors.Is(err, cause) {
		t.Error("expected cause to be reachable via errors.Is")
	}
	status, ok := UpstreamStatus(err)
	if !ok || status != 0 {
		t.Errorf("UpstreamStatus = (%d, %v), want (0, true)", status, ok)
	}
}

func TestUpstreamError_Message(t *testing.T) {
	err := NewUpstreamError("embedding", 401, "invalid api key", nil)
	want := "embedding: upstream authentication failed (status 401): invalid api key"
	if err.Error() != want {
		t.Errorf("Error() = %q, want %q", err.Error(), want)
	}
}

func TestUpstreamStatus_NotUpstream(t *testing.T) {
	if _, ok := UpstreamStatus(errors.New("plain")); ok {
		t.Error("expected ok=false for non-upstream error")
	}
	if IsTransient(ErrInvalidInput) {
		t.Error("input errors must not be transient")
	}
}
