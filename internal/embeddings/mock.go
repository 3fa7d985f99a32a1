package embeddings

import (
	"context"
	"crypto/sha256"
	"strings"

	embkit "github.com/zoomrelay/relay/pkg/embeddings"
)

// MockClient implements the Client interface for testing purposes. It builds
// deterministic embeddings by summing per-token hash vectors, so texts that
// share tokens produce correlated vectors and identical texts produce
// identical vectors.
type MockClient struct {
	dimensions int
}

// Ensure MockClient implements Client.
var _ Client = (*MockClient)(nil)

// NewMockClient creates a mock embedding client with the default dimensions.
func NewMockClient() *MockClient {
	return &MockClient{dimensions: DefaultDimension}
}

// NewMockClientWithDimensions creates a mock client with custom dimensions.
func NewMockClientWithDimensions(dimensions int) *MockClient {
	return &MockClient{dimensions: dimensions}
}

// CreateEmbedding generates a deterministic unit-length embedding from the text.
func (c *MockClient) CreateEmbedding(_ context.Context, text string) ([]float32, error) {
	if strings.TrimSpace(text) == "" {
		return nil, ErrEmptyInput
	}

	embedding := make([]float32, c.dimensions)

	for _, token := range strings.Fields(text) {
		hash := sha256.Sum256([]byte(strings.ToLower(token)))
		for i := 0; i < c.dimensions; i++ {
			// Use hash bytes cyclically, mapped to [-1, 1].
			b := hash[i%len(hash)]
			embedding[i] += (float32(b) / 127.5) - 1.0
		}
	}

	embkit.NormalizeL2(embedding)

	return embedding, nil
}

// Dimensions reports the configured output size.
func (c *MockClient) Dimensions() int { return c.dimensions }
