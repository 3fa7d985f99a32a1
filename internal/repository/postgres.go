// Package repository provides translation memory storage backends.
package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"

	"github.com/zoomrelay/relay/internal/models"
	"github.com/zoomrelay/relay/internal/relayerrors"
)

// PostgresStore keeps translation pairs in a pgvector table.
//
// Rows are only ever inserted or upserted by ID; nothing updates or deletes
// them in normal operation. The single-writer access pattern plus Postgres
// read-after-write consistency gives each pipeline run visibility of the
// previous run's commit.
type PostgresStore struct {
	db         *pgxpool.Pool
	dimensions int
}

// NewPostgresStore creates a store for embeddings of the given fixed dimensionality.
func NewPostgresStore(db *pgxpool.Pool, dimensions int) *PostgresStore {
	return &PostgresStore{db: db, dimensions: dimensions}
}

// EnsureSchema creates the translation_pairs table and its cosine index if missing.
// The vector column is sized to the store's dimensionality, so a row with a
// mismatched embedding can never be inserted.
func (r *PostgresStore) EnsureSchema(ctx context.Context) error {
	stmts := []string{
		`CREATE EXTENSION IF NOT EXISTS vector`,
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS translation_pairs (
			id text PRIMARY KEY,
			source_text text NOT NULL,
			translation_text text NOT NULL,
			embedding vector(%d) NOT NULL,
			reference_url text,
			created_at timestamptz NOT NULL DEFAULT now()
		)`, r.dimensions),
		`CREATE INDEX IF NOT EXISTS translation_pairs_embedding_idx
			ON translation_pairs USING hnsw (embedding vector_cosine_ops)`,
	}

	for _, stmt := range stmts {
		if _, err := r.db.Exec(ctx, stmt); err != nil {
			return relayerrors.NewStoreError("schema", "ensure schema", err)
		}
	}

	return nil
}

// Upsert inserts or replaces the pair with entry.ID. On conflict the
// translation, embedding, and reference URL are replaced; created_at keeps the
// first-written value. A zero CreatedAt on insert defaults to now; a non-zero
// value (backfill of historical pairs) is stored as given.
func (r *PostgresStore) Upsert(ctx context.Context, entry models.MemoryEntry) error {
	if len(entry.Embedding) != r.dimensions {
		return relayerrors.NewStoreError("upsert",
			fmt.Sprintf("embedding has %d dimensions, store expects %d", len(entry.Embedding), r.dimensions), nil)
	}

	createdAt := entry.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	var referenceURL *string
	if entry.ReferenceURL != "" {
		referenceURL = &entry.ReferenceURL
	}

	_, err := r.db.Exec(ctx, `
		INSERT INTO translation_pairs (id, source_text, translation_text, embedding, reference_url, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id)
		DO UPDATE SET
			translation_text = EXCLUDED.translation_text,
			embedding = EXCLUDED.embedding,
			reference_url = EXCLUDED.reference_url`,
		entry.ID, entry.SourceText, entry.TranslationText,
		pgvector.NewVector(entry.Embedding), referenceURL, createdAt,
	)
	if err != nil {
		return relayerrors.NewStoreError("upsert", "translation pair "+entry.ID, err)
	}

	return nil
}

// NearestByEmbedding returns up to limit entries ordered by ascending cosine
// distance to queryEmbedding. Equal distances are broken by created_at
// descending then id, so identical queries over an unchanged table always
// return the same ordering.
func (r *PostgresStore) NearestByEmbedding(
	ctx context.Context, queryEmbedding []float32, limit int,
) ([]models.EntryWithSimilarity, error) {
	if len(queryEmbedding) != r.dimensions {
		return nil, relayerrors.NewStoreError("search",
			fmt.Sprintf("query has %d dimensions, store expects %d", len(queryEmbedding), r.dimensions), nil)
	}

	queryVec := pgvector.NewVector(queryEmbedding)

	rows, err := r.db.Query(ctx, `
		SELECT id, source_text, translation_text, reference_url, created_at,
			(1 - (embedding <=> $1)) AS similarity
		FROM translation_pairs
		ORDER BY embedding <=> $1, created_at DESC, id
		LIMIT $2`, queryVec, limit)
	if err != nil {
		return nil, relayerrors.NewStoreError("search", "nearest translation pairs", err)
	}
	defer rows.Close()

	var results []models.EntryWithSimilarity

	for rows.Next() {
		var (
			row          models.EntryWithSimilarity
			referenceURL *string
		)

		if err := rows.Scan(
			&row.Entry.ID, &row.Entry.SourceText, &row.Entry.TranslationText,
			&referenceURL, &row.Entry.CreatedAt, &row.Similarity,
		); err != nil {
			return nil, relayerrors.NewStoreError("search", "scan translation pair", err)
		}

		if referenceURL != nil {
			row.Entry.ReferenceURL = *referenceURL
		}

		// Cosine distance spans [0, 2]; clamp so similarity stays in [0, 1].
		if row.Similarity < 0 {
			row.Similarity = 0
		}

		results = append(results, row)
	}

	if err := rows.Err(); err != nil {
		return nil, relayerrors.NewStoreError("search", "iterating nearest", err)
	}

	return results, nil
}

// Count returns the number of stored pairs.
func (r *PostgresStore) Count(ctx context.Context) (int64, error) {
	var count int64

	err := r.db.QueryRow(ctx, `SELECT count(*) FROM translation_pairs`).Scan(&count)
	if err != nil {
		return 0, relayerrors.NewStoreError("search", "count translation pairs", err)
	}

	return count, nil
}
