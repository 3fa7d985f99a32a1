// Package embeddings turns text into fixed-length dense vectors.
//
// Providers are thin remote wrappers with no retry logic; callers own retry
// policy. Every implementation guarantees that a returned vector has exactly
// Dimensions() elements, so mismatched vectors can never reach the store.
package embeddings

import (
	"context"
	"errors"
)

var (
	// ErrEmptyInput is returned when CreateEmbedding is called with empty input.
	ErrEmptyInput = errors.New("embeddings: input text is empty")
	// ErrInvalidDims is returned when dimensions is not positive.
	ErrInvalidDims = errors.New("embeddings: dimensions must be positive")
	// ErrNoEmbeddingInResponse is returned when the API response contains no embedding data.
	ErrNoEmbeddingInResponse = errors.New("embeddings: no embedding in response")
	// ErrDimensionMismatch is returned when the response embedding length does not match configured dimensions.
	ErrDimensionMismatch = errors.New("embeddings: embedding dimension mismatch")
)

// DefaultDimension matches text-embedding-3-small and the default vector column size.
const DefaultDimension = 1536

// Client defines the interface for generating text embeddings.
type Client interface {
	// CreateEmbedding generates an embedding vector for the given text.
	// The returned slice length always equals Dimensions().
	CreateEmbedding(ctx context.Context, text string) ([]float32, error)

	// Dimensions reports the fixed output size of this client.
	Dimensions() int
}
