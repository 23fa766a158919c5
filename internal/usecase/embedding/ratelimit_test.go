package embedding

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/kailas-cloud/hubcontext/internal/domain"
)

func TestRateLimitedEmbedder_AllowsBurst(t *testing.T) {
	inner := &mockEmbedder{result: domain.EmbeddingResult{Embedding: []float32{1}}}
	r := NewRateLimitedEmbedder(inner, 1, 2)

	for i := 0; i < 2; i++ {
		if _, err := r.Embed(context.Background(), "q"); err != nil {
			t.Fatalf("call %d: unexpected error: %v", i, err)
		}
	}
	if inner.calls != 2 {
		t.Errorf("calls = %d, want 2", inner.calls)
	}
}

func TestRateLimitedEmbedder_DeadlineIsRateLimited(t *testing.T) {
	inner := &mockEmbedder{result: domain.EmbeddingResult{Embedding: []float32{1}}}
	r := NewRateLimitedEmbedder(inner, 0.01, 1)

	if _, err := r.Embed(context.Background(), "q"); err != nil {
		t.Fatalf("first call: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err := r.Embed(ctx, "q")
	if !errors.Is(err, domain.ErrRateLimited) {
		t.Fatalf("expected ErrRateLimited, got %v", err)
	}
	if inner.calls != 1 {
		t.Errorf("upstream must not be called when throttled, calls = %d", inner.calls)
	}
}

func TestRateLimitedEmbedder_Canceled(t *testing.T) {
	inner := &mockEmbedder{}
	r := NewRateLimitedEmbedder(inner, 1, 0)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := r.Embed(ctx, "q")
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if errors.Is(err, domain.ErrRateLimited) {
		t.Error("cancellation is not a rate limit")
	}
}
