package domain

import (
	"context"
	"errors"
	"testing"
)

type stubEmbedder struct {
	vectors map[string][]float32
	err     error
	calls   int
}

func (s *stubEmbedder) Embed(_ context.Context, text string) (EmbeddingResult, error) {
	s.calls++
	if s.err != nil {
		return EmbeddingResult{}, s.err
	}
	return EmbeddingResult{Embedding: s.vectors[text], PromptTokens: 2, TotalTokens: 3}, nil
}

func TestBatchFallback_PreservesOrderAndSumsUsage(t *testing.T) {
	inner := &stubEmbedder{vectors: map[string][]float32{
		"a": {1, 0},
		"b": {0, 1},
	}}

	res, err := BatchFallback(context.Background(), inner, []string{"b", "a"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if inner.calls != 2 {
		t.Fatalf("expected 2 calls, got %d", inner.calls)
	}
	if res.Embeddings[0][1] != 1 || res.Embeddings[1][0] != 1 {
		t.Errorf("embeddings out of order: %v", res.Embeddings)
	}
	if res.PromptTokens != 4 || res.TotalTokens != 6 {
		t.Errorf("unexpected usage: prompt=%d total=%d", res.PromptTokens, res.TotalTokens)
	}
}

func TestBatchFallback_ErrorPropagation(t *testing.T) {
	innerErr := errors.New("provider down")
	inner := &stubEmbedder{err: innerErr}

	_, err := BatchFallback(context.Background(), inner, []string{"x"})
	if !errors.Is(err, innerErr) {
		t.Fatalf("expected wrapped provider error, got %v", err)
	}
}

func TestValidationError_UnwrapsSentinels(t *testing.T) {
	err := error(&ValidationError{Field: "mentions[3].vector", Reason: "dimension 2, want 3", Err: ErrVectorDimMismatch})

	if !errors.Is(err, ErrValidation) {
		t.Error("expected ErrValidation")
	}
	if !errors.Is(err, ErrVectorDimMismatch) {
		t.Error("expected ErrVectorDimMismatch")
	}
	want := "validation failed: mentions[3].vector: dimension 2, want 3"
	if err.Error() != want {
		t.Errorf("got %q, want %q", err.Error(), want)
	}

	var ve *ValidationError
	if !errors.As(err, &ve) || ve.Field != "mentions[3].vector" {
		t.Errorf("expected field to be recoverable, got %+v", ve)
	}
}

func TestNotFoundError(t *testing.T) {
	err := NewNotFound("batch", "b-1")
	if !errors.Is(err, ErrNotFound) {
		t.Fatal("expected ErrNotFound")
	}
	if err.Error() != `batch "b-1" not found` {
		t.Errorf("unexpected message %q", err.Error())
	}
}
