package repository

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/zoomrelay/relay/internal/relayerrors"
	"github.com/zoomrelay/relay/pkg/database"
)

// startPostgresStore spins up a disposable pgvector-enabled Postgres and
// returns a schema-initialized store. Skips when Docker is unavailable.
func startPostgresStore(t *testing.T) *PostgresStore {
	t.Helper()

	if testing.Short() {
		t.Skip("skipping container test in short mode")
	}

	ctx := context.Background()

	container, err := tcpostgres.Run(ctx, "pgvector/pgvector:pg16",
		tcpostgres.WithDatabase("relay_test"),
		tcpostgres.WithUsername("relay"),
		tcpostgres.WithPassword("relay"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second)),
	)
	if err != nil {
		t.Skipf("could not start postgres container: %v", err)
	}

	t.Cleanup(func() {
		_ = container.Terminate(context.Background())
	})

	connStr, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	pool, err := database.NewPgvectorPool(ctx, connStr,
		func(ctx context.Context, boot *pgxpool.Pool) error {
			return NewPostgresStore(boot, testDims).EnsureSchema(ctx)
		})
	require.NoError(t, err)

	t.Cleanup(pool.Close)

	return NewPostgresStore(pool, testDims)
}

func TestPostgresStore_Integration(t *testing.T) {
	store := startPostgresStore(t)
	ctx := context.Background()

	base := time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC)

	t.Run("upsert and search", func(t *testing.T) {
		require.NoError(t, store.Upsert(ctx, entryAt("10", []float32{1, 0, 0}, base)))
		require.NoError(t, store.Upsert(ctx, entryAt("11", []float32{0, 1, 0}, base)))

		results, err := store.NearestByEmbedding(ctx, []float32{1, 0, 0}, 10)
		require.NoError(t, err)
		require.Len(t, results, 2)

		assert.Equal(t, "10", results[0].Entry.ID)
		assert.InDelta(t, 1.0, results[0].Similarity, 1e-4)
		assert.Equal(t, "source 10", results[0].Entry.SourceText)
		assert.Equal(t, "translation 10", results[0].Entry.TranslationText)
		assert.Equal(t, "https://t.me/chan/10", results[0].Entry.ReferenceURL)
		assert.Less(t, results[1].Similarity, results[0].Similarity)
	})

	t.Run("recommit keeps created_at", func(t *testing.T) {
		entry := entryAt("20", []float32{0, 0, 1}, base)
		require.NoError(t, store.Upsert(ctx, entry))

		entry.TranslationText = "revised translation"
		entry.CreatedAt = base.Add(48 * time.Hour)
		require.NoError(t, store.Upsert(ctx, entry))

		results, err := store.NearestByEmbedding(ctx, []float32{0, 0, 1}, 1)
		require.NoError(t, err)
		require.Len(t, results, 1)

		assert.Equal(t, "revised translation", results[0].Entry.TranslationText)
		assert.True(t, results[0].Entry.CreatedAt.Equal(base),
			"recommit must keep the original creation time, got %v", results[0].Entry.CreatedAt)
	})

	t.Run("count", func(t *testing.T) {
		count, err := store.Count(ctx)
		require.NoError(t, err)
		assert.Equal(t, int64(3), count)
	})

	t.Run("dimension mismatch rejected", func(t *testing.T) {
		err := store.Upsert(ctx, entryAt("30", []float32{1, 0, 0, 0}, base))
		require.Error(t, err)
		assert.ErrorIs(t, err, relayerrors.ErrStore)
	})

	t.Run("tie break deterministic", func(t *testing.T) {
		tie := []float32{0.5, 0.5, 0}
		require.NoError(t, store.Upsert(ctx, entryAt("b", tie, base)))
		require.NoError(t, store.Upsert(ctx, entryAt("a", tie, base)))
		require.NoError(t, store.Upsert(ctx, entryAt("c", tie, base.Add(time.Hour))))

		for range 3 {
			results, err := store.NearestByEmbedding(ctx, tie, 3)
			require.NoError(t, err)
			require.Len(t, results, 3)

			assert.Equal(t, "c", results[0].Entry.ID)
			assert.Equal(t, "a", results[1].Entry.ID)
			assert.Equal(t, "b", results[2].Entry.ID)
		}
	})

	t.Run("zero created_at defaults to now", func(t *testing.T) {
		entry := entryAt("40", []float32{0.2, 0.3, 0.9}, time.Time{})
		require.NoError(t, store.Upsert(ctx, entry))

		results, err := store.NearestByEmbedding(ctx, []float32{0.2, 0.3, 0.9}, 1)
		require.NoError(t, err)
		require.Len(t, results, 1)
		assert.WithinDuration(t, time.Now(), results[0].Entry.CreatedAt, time.Minute)
	})
}
