package domain

import (
	"context"
	"errors"
	"testing"
)

type stubEmbedder struct {
	result EmbeddingResult
	err    error
	got    string
}

func (s *stubEmbedder) Embed(_ context.Context, text string) (EmbeddingResult, error) {
	s.got = text
	return s.result, s.err
}

type stubHealthyEmbedder struct {
	stubEmbedder
	healthErr error
	checked   bool
}

func (s *stubHealthyEmbedder) HealthCheck(_ context.Context) error {
	s.checked = true
	return s.healthErr
}

func TestInstructionEmbedder_PrependsInstruction(t *testing.T) {
	inner := &stubEmbedder{result: EmbeddingResult{Embedding: []float32{0.1, 0.2, 0.3}}}
	emb := NewInstructionEmbedder(inner, "query: ")

	result, err := emb.Embed(context.Background(), "hello world")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if inner.got != "query: hello world" {
		t.Errorf("expected prepended text, got %q", inner.got)
	}
	if len(result.Embedding) != 3 {
		t.Errorf("expected 3-element vector, got %d", len(result.Embedding))
	}
}

func TestInstructionEmbedder_ErrorPropagation(t *testing.T) {
	inner := &stubEmbedder{err: ErrUpstreamTransient}
	emb := NewInstructionEmbedder(inner, "query: ")

	_, err := emb.Embed(context.Background(), "hello")
	if !errors.Is(err, ErrUpstreamTransient) {
		t.Errorf("expected wrapped inner error, got %v", err)
	}
}

func TestCheckEmbedderHealth(t *testing.T) {
	t.Run("not a checker", func(t *testing.T) {
		if err := CheckEmbedderHealth(context.Background(), &stubEmbedder{}); err != nil {
			t.Errorf("expected nil, got %v", err)
		}
	})

	t.Run("checker ok", func(t *testing.T) {
		inner := &stubHealthyEmbedder{}
		emb := NewInstructionEmbedder(inner, "q: ")
		if err := emb.HealthCheck(context.Background()); err != nil {
			t.Errorf("expected nil, got %v", err)
		}
		if !inner.checked {
			t.Error("expected inner HealthCheck to be called")
		}
	})

	t.Run("checker fails", func(t *testing.T) {
		down := errors.New("down")
		inner := &stubHealthyEmbedder{healthErr: down}
		if err := CheckEmbedderHealth(context.Background(), inner); !errors.Is(err, down) {
			t.Errorf("expected wrapped error, got %v", err)
		}
	})
}
