package service

import "context"

// EmbeddingClient provides the embedding operation the services need.
// Satisfied by the clients in internal/embeddings.
type EmbeddingClient interface {
	CreateEmbedding(ctx context.Context, text string) ([]float32, error)
}
