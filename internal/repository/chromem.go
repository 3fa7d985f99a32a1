package repository

import (
	"context"
	"fmt"
	"sort"
	"time"

	chromem "github.com/philippgille/chromem-go"

	"github.com/zoomrelay/relay/internal/models"
	"github.com/zoomrelay/relay/internal/relayerrors"
	embkit "github.com/zoomrelay/relay/pkg/embeddings"
)

const chromemCollection = "translation_pairs"

// Metadata keys for chromem documents.
const (
	metaTranslation  = "translation_text"
	metaReferenceURL = "reference_url"
	metaCreatedAt    = "created_at"
)

// ChromemStore keeps translation pairs in chromem-go, an embedded pure-Go
// vector database. It backs local runs and tests that don't want Postgres.
// Same contract as PostgresStore: upsert by ID preserves created_at, nearest
// queries order deterministically.
type ChromemStore struct {
	col        *chromem.Collection
	dimensions int
}

// NewChromemStore creates an embedded store. When path is empty the store is
// purely in-memory; otherwise documents persist under that directory.
func NewChromemStore(path string, dimensions int) (*ChromemStore, error) {
	var (
		db  *chromem.DB
		err error
	)

	if path == "" {
		db = chromem.NewDB()
	} else {
		db, err = chromem.NewPersistentDB(path, false)
		if err != nil {
			return nil, fmt.Errorf("open chromem db: %w", err)
		}
	}

	// Embeddings are always supplied by the caller, so no embedding func.
	col, err := db.GetOrCreateCollection(chromemCollection, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("chromem collection: %w", err)
	}

	return &ChromemStore{col: col, dimensions: dimensions}, nil
}

// Upsert inserts or replaces the pair with entry.ID, preserving the original
// created_at when the document already exists.
func (s *ChromemStore) Upsert(ctx context.Context, entry models.MemoryEntry) error {
	if len(entry.Embedding) != s.dimensions {
		return relayerrors.NewStoreError("upsert",
			fmt.Sprintf("embedding has %d dimensions, store expects %d", len(entry.Embedding), s.dimensions), nil)
	}

	createdAt := entry.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	// First-write wins on the timestamp.
	if existing, err := s.col.GetByID(ctx, entry.ID); err == nil {
		if prev, parseErr := time.Parse(time.RFC3339Nano, existing.Metadata[metaCreatedAt]); parseErr == nil {
			createdAt = prev
		}
	}

	// chromem compares raw dot products, so store unit-length vectors.
	embedding := make([]float32, len(entry.Embedding))
	copy(embedding, entry.Embedding)
	embkit.NormalizeL2(embedding)

	doc := chromem.Document{
		ID:        entry.ID,
		Content:   entry.SourceText,
		Embedding: embedding,
		Metadata: map[string]string{
			metaTranslation:  entry.TranslationText,
			metaReferenceURL: entry.ReferenceURL,
			metaCreatedAt:    createdAt.Format(time.RFC3339Nano),
		},
	}

	if err := s.col.AddDocument(ctx, doc); err != nil {
		return relayerrors.NewStoreError("upsert", "translation pair "+entry.ID, err)
	}

	return nil
}

// NearestByEmbedding returns up to limit entries by descending cosine
// similarity. chromem orders by similarity only, so ties are re-broken here
// (created_at descending, then ID) for deterministic results.
func (s *ChromemStore) NearestByEmbedding(
	ctx context.Context, queryEmbedding []float32, limit int,
) ([]models.EntryWithSimilarity, error) {
	if len(queryEmbedding) != s.dimensions {
		return nil, relayerrors.NewStoreError("search",
			fmt.Sprintf("query has %d dimensions, store expects %d", len(queryEmbedding), s.dimensions), nil)
	}

	count := s.col.Count()
	if count == 0 {
		return nil, nil
	}

	if limit > count {
		limit = count
	}

	query := make([]float32, len(queryEmbedding))
	copy(query, queryEmbedding)
	embkit.NormalizeL2(query)

	raw, err := s.col.QueryEmbedding(ctx, query, limit, nil, nil)
	if err != nil {
		return nil, relayerrors.NewStoreError("search", "nearest translation pairs", err)
	}

	results := make([]models.EntryWithSimilarity, 0, len(raw))

	for _, res := range raw {
		createdAt, parseErr := time.Parse(time.RFC3339Nano, res.Metadata[metaCreatedAt])
		if parseErr != nil {
			return nil, relayerrors.NewStoreError("search", "corrupt created_at for "+res.ID, parseErr)
		}

		similarity := float64(res.Similarity)
		if similarity < 0 {
			similarity = 0
		}

		results = append(results, models.EntryWithSimilarity{
			Entry: models.MemoryEntry{
				ID:              res.ID,
				SourceText:      res.Content,
				TranslationText: res.Metadata[metaTranslation],
				ReferenceURL:    res.Metadata[metaReferenceURL],
				Embedding:       res.Embedding,
				CreatedAt:       createdAt,
			},
			Similarity: similarity,
		})
	}

	sort.SliceStable(results, func(i, j int) bool {
		if results[i].Similarity != results[j].Similarity {
			return results[i].Similarity > results[j].Similarity
		}
		if !results[i].Entry.CreatedAt.Equal(results[j].Entry.CreatedAt) {
			return results[i].Entry.CreatedAt.After(results[j].Entry.CreatedAt)
		}
		return results[i].Entry.ID < results[j].Entry.ID
	})

	return results, nil
}

// Count returns the number of stored pairs.
func (s *ChromemStore) Count(_ context.Context) (int64, error) {
	return int64(s.col.Count()), nil
}
