package service

import (
	"context"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/zoomrelay/relay/internal/models"
)

type mockEmbedder struct {
	createEmbeddingFunc func(ctx context.Context, text string) ([]float32, error)
	calls               []string
}

func (m *mockEmbedder) CreateEmbedding(ctx context.Context, text string) ([]float32, error) {
	m.calls = append(m.calls, text)

	return m.createEmbeddingFunc(ctx, text)
}

type mockSearcher struct {
	nearestFunc func(ctx context.Context, queryEmbedding []float32, limit int) ([]models.EntryWithSimilarity, error)
	limits      []int
}

func (m *mockSearcher) NearestByEmbedding(
	ctx context.Context, queryEmbedding []float32, limit int,
) ([]models.EntryWithSimilarity, error) {
	m.limits = append(m.limits, limit)

	return m.nearestFunc(ctx, queryEmbedding, limit)
}

type mockUpserter struct {
	upsertFunc func(ctx context.Context, entry models.MemoryEntry) error
	entries    []models.MemoryEntry
}

func (m *mockUpserter) Upsert(ctx context.Context, entry models.MemoryEntry) error {
	m.entries = append(m.entries, entry)

	if m.upsertFunc != nil {
		return m.upsertFunc(ctx, entry)
	}

	return nil
}

type mockCreator struct {
	newFunc func(ctx context.Context, params anthropic.MessageNewParams) (*anthropic.Message, error)
	params  []anthropic.MessageNewParams
}

func (m *mockCreator) New(
	ctx context.Context, params anthropic.MessageNewParams, _ ...option.RequestOption,
) (*anthropic.Message, error) {
	m.params = append(m.params, params)

	return m.newFunc(ctx, params)
}

// textMessage builds a minimal response with a single text block.
func textMessage(text string) *anthropic.Message {
	return &anthropic.Message{
		Content: []anthropic.ContentBlockUnion{
			{Type: "text", Text: text},
		},
		Usage: anthropic.Usage{InputTokens: 100, OutputTokens: 50},
	}
}
