package embedding

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/tuexperto/taxsearch/internal/domain"
)

// mockEmbedder returns a fixed vector or error.
type mockEmbedder struct {
	vector []float32
	err    error
	calls  int
}

func (m *mockEmbedder) Embed(_ context.Context, _ string) (domain.EmbeddingResult, error) {
	m.calls++
	if m.err != nil {
		return domain.EmbeddingResult{}, m.err
	}
	return domain.EmbeddingResult{Embedding: m.vector, TotalTokens: 3}, nil
}

func TestRegistry_Vector(t *testing.T) {
	reg := NewRegistry(0)
	reg.Register("e5", &mockEmbedder{vector: []float32{0.1, 0.2, 0.3}}, 3)

	vec, err := reg.Vector(context.Background(), "e5", "modelo 303")
	if err != nil {
		t.Fatalf("Vector failed: %v", err)
	}
	if len(vec) != 3 {
		t.Errorf("expected 3 dims, got %d", len(vec))
	}
}

func TestRegistry_UnknownSpace(t *testing.T) {
	reg := NewRegistry(0)

	_, err := reg.Vector(context.Background(), "missing", "query")
	if !errors.Is(err, domain.ErrUnknownEmbeddingSpace) {
		t.Errorf("expected ErrUnknownEmbeddingSpace, got %v", err)
	}
}

func TestRegistry_DimensionMismatch(t *testing.T) {
	reg := NewRegistry(0)
	reg.Register("e5", &mockEmbedder{vector: []float32{0.1, 0.2}}, 384)

	_, err := reg.Vector(context.Background(), "e5", "query")
	if !errors.Is(err, domain.ErrVectorDimMismatch) {
		t.Errorf("expected ErrVectorDimMismatch, got %v", err)
	}
}

func TestRegistry_ProviderErrorPropagates(t *testing.T) {
	reg := NewRegistry(0)
	reg.Register("openai", &mockEmbedder{err: domain.ErrEmbeddingProviderError}, 1536)

	_, err := reg.Vector(context.Background(), "openai", "query")
	if !errors.Is(err, domain.ErrEmbeddingProviderError) {
		t.Errorf("expected ErrEmbeddingProviderError, got %v", err)
	}
}

// hangingEmbedder blocks until its context expires.
type hangingEmbedder struct{}

func (hangingEmbedder) Embed(ctx context.Context, _ string) (domain.EmbeddingResult, error) {
	<-ctx.Done()
	return domain.EmbeddingResult{}, ctx.Err()
}

func TestRegistry_HangingProviderHitsTimeout(t *testing.T) {
	reg := NewRegistry(30 * time.Millisecond)
	reg.Register("e5", hangingEmbedder{}, 384)

	start := time.Now()
	_, err := reg.Vector(context.Background(), "e5", "query")
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("Vector returned after %v, provider timeout not applied", elapsed)
	}
}

func TestInstrumentedEmbedder_Embed(t *testing.T) {
	inner := &mockEmbedder{vector: []float32{0.5}}
	emb := NewInstrumentedEmbedder(inner, "test", "test-model", zap.NewNop())

	result, err := emb.Embed(context.Background(), "hola")
	if err != nil {
		t.Fatalf("Embed failed: %v", err)
	}
	if inner.calls != 1 {
		t.Errorf("expected 1 inner call, got %d", inner.calls)
	}
	if len(result.Embedding) != 1 {
		t.Errorf("expected 1 dim, got %d", len(result.Embedding))
	}
}

func TestInstrumentedEmbedder_Error(t *testing.T) {
	inner := &mockEmbedder{err: errors.New("boom")}
	emb := NewInstrumentedEmbedder(inner, "test", "test-model", zap.NewNop())

	if _, err := emb.Embed(context.Background(), "hola"); err == nil {
		t.Fatal("expected error")
	}
}
