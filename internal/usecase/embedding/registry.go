// Package embedding maps named embedding spaces onto their providers.
// Vectors from different spaces are dimensionally and semantically
// incompatible; the registry is the only place allowed to pick a provider
// for a space.
package embedding

import (
	"context"
	"fmt"
	"time"

	"github.com/tuexperto/taxsearch/internal/domain"
)

const defaultEmbedTimeout = 10 * time.Second

// space binds one embedder to its declared dimensionality.
type space struct {
	embedder   domain.Embedder
	dimensions int
}

// Registry resolves space names to embedders and guards vector dimensions.
type Registry struct {
	spaces  map[string]space
	timeout time.Duration
}

// NewRegistry creates an empty registry. timeout bounds every provider call;
// zero or negative falls back to the default.
func NewRegistry(timeout time.Duration) *Registry {
	if timeout <= 0 {
		timeout = defaultEmbedTimeout
	}
	return &Registry{spaces: make(map[string]space), timeout: timeout}
}

// Register binds a space name to an embedder. Later registrations of the same
// name replace earlier ones.
func (r *Registry) Register(name string, embedder domain.Embedder, dimensions int) {
	r.spaces[name] = space{embedder: embedder, dimensions: dimensions}
}

// Vector embeds text in the named space. The returned vector's length is
// checked against the space's declared dimensionality; a mismatch means the
// provider is misconfigured and the vector must not reach the search backend.
func (r *Registry) Vector(ctx context.Context, spaceName, text string) ([]float32, error) {
	s, ok := r.spaces[spaceName]
	if !ok {
		return nil, fmt.Errorf("%w: %q", domain.ErrUnknownEmbeddingSpace, spaceName)
	}

	// A hanging provider must resolve as an error so callers can degrade to
	// lexical-only instead of burning their whole deadline.
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	result, err := s.embedder.Embed(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("embed in space %q: %w", spaceName, err)
	}

	if s.dimensions > 0 && len(result.Embedding) != s.dimensions {
		return nil, fmt.Errorf("%w: space %q expects %d dims, provider returned %d",
			domain.ErrVectorDimMismatch, spaceName, s.dimensions, len(result.Embedding))
	}

	return result.Embedding, nil
}

// Spaces returns the registered space names.
func (r *Registry) Spaces() []string {
	names := make([]string, 0, len(r.spaces))
	for name := range r.spaces {
		names = append(names, name)
	}
	return names
}

// Embedder returns the raw embedder behind a space, for health checks.
func (r *Registry) Embedder(spaceName string) (domain.Embedder, bool) {
	s, ok := r.spaces[spaceName]
	if !ok {
		return nil, false
	}
	return s.embedder, true
}
