// Package embedding provides text embedding via remote provider APIs,
// with response adapters per provider family, request batching, and caching.
package embedding

import (
	"context"
	"errors"
)

// Embedding error kinds. Callers match with errors.Is.
var (
	// ErrAuth means the provider rejected the API key.
	ErrAuth = errors.New("embedding auth failed")
	// ErrRateLimited means the provider throttled the request; the caller
	// decides whether and when to retry (no retry policy lives here).
	ErrRateLimited = errors.New("embedding rate limited")
	// ErrDimensionMismatch means a returned vector's length disagrees with
	// the configured dimension. It must be raised before any similarity
	// computation can see the vector.
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")
	// ErrNetwork means the request never produced a provider response.
	ErrNetwork = errors.New("embedding network error")
)

// Embedder produces fixed-length vector embeddings for text.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	Dimensions() int
	Close() error
}
