// Command backfill seeds the memory store from an export of already
// published translation pairs, read as JSON lines on stdin:
//
//	{"id":"41","source_text":"...","translation_text":"...","reference_url":"https://t.me/chan/41","created_at":"2024-03-01T09:30:00Z"}
//
// id is optional; pairs without one get a random id. created_at is kept as
// given so recency ranking reflects original publication times. Lines that
// fail are logged and skipped; the exit code is non-zero if any failed.
package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/zoomrelay/relay/internal/config"
	"github.com/zoomrelay/relay/internal/embeddings"
	"github.com/zoomrelay/relay/internal/observability"
	"github.com/zoomrelay/relay/internal/repository"
	"github.com/zoomrelay/relay/internal/service"
	"github.com/zoomrelay/relay/pkg/database"
)

const maxLineBytes = 1 << 20

type exportedPair struct {
	ID              string    `json:"id"`
	SourceText      string    `json:"source_text"`
	TranslationText string    `json:"translation_text"`
	ReferenceURL    string    `json:"reference_url"`
	CreatedAt       time.Time `json:"created_at"`
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.LoadBackfill()
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	setupLogging(cfg.LogLevel)

	writer, cleanup, err := setupWriter(ctx, cfg)
	if err != nil {
		slog.Error("Failed to build writer", "error", err)
		os.Exit(1)
	}
	defer cleanup()

	loaded, failed, err := load(ctx, writer, os.Stdin)
	if err != nil {
		slog.Error("backfill aborted", "error", err, "loaded", loaded, "failed", failed)
		os.Exit(1)
	}

	slog.Info("backfill complete", "loaded", loaded, "failed", failed)

	if failed > 0 {
		os.Exit(1)
	}
}

// load commits each exported pair, returning counts of loaded and failed lines.
func load(ctx context.Context, writer *service.MemoryWriter, in io.Reader) (loaded, failed int, err error) {
	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineBytes)

	lineNo := 0

	for scanner.Scan() {
		lineNo++

		if err := ctx.Err(); err != nil {
			return loaded, failed, err
		}

		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		var pair exportedPair
		if err := json.Unmarshal([]byte(line), &pair); err != nil {
			slog.Error("skipping malformed line", "line", lineNo, "error", err)

			failed++

			continue
		}

		if pair.ID == "" {
			pair.ID = uuid.NewString()
		}

		err := writer.CommitAt(ctx,
			pair.ID, pair.SourceText, pair.TranslationText, pair.ReferenceURL, pair.CreatedAt)
		if err != nil {
			slog.Error("skipping pair", "line", lineNo, "entry_id", pair.ID, "error", err)

			failed++

			continue
		}

		loaded++

		if loaded%100 == 0 {
			slog.Info("backfill progress", "loaded", loaded, "failed", failed)
		}
	}

	if err := scanner.Err(); err != nil {
		return loaded, failed, fmt.Errorf("read input: %w", err)
	}

	return loaded, failed, nil
}

// setupWriter wires an embedder and a store into a MemoryWriter. The returned
// cleanup releases the store.
func setupWriter(ctx context.Context, cfg *config.Config) (*service.MemoryWriter, func(), error) {
	cleanup := func() {}

	var store service.MemoryUpserter

	switch cfg.MemoryStore {
	case config.StorePostgres:
		db, err := database.NewPgvectorPool(ctx, cfg.DatabaseURL,
			func(ctx context.Context, pool *pgxpool.Pool) error {
				return repository.NewPostgresStore(pool, cfg.EmbeddingDimensions).EnsureSchema(ctx)
			})
		if err != nil {
			return nil, cleanup, fmt.Errorf("connect to postgres: %w", err)
		}

		cleanup = db.Close
		store = repository.NewPostgresStore(db, cfg.EmbeddingDimensions)

	case config.StoreChromem:
		chromemStore, err := repository.NewChromemStore(cfg.ChromemPath, cfg.EmbeddingDimensions)
		if err != nil {
			return nil, cleanup, err
		}

		store = chromemStore

	default:
		return nil, cleanup, fmt.Errorf("unsupported memory store: %s", cfg.MemoryStore)
	}

	var embedder embeddings.Client

	switch cfg.EmbeddingProvider {
	case config.EmbeddingProviderOpenAI:
		opts := []embeddings.OpenAIOption{
			embeddings.WithOpenAIDimensions(cfg.EmbeddingDimensions),
		}
		if cfg.EmbeddingModel != "" {
			opts = append(opts, embeddings.WithOpenAIModel(cfg.EmbeddingModel))
		}

		embedder = embeddings.NewOpenAIClient(cfg.OpenAIAPIKey, opts...)

	case config.EmbeddingProviderGoogle:
		opts := []embeddings.GoogleOption{
			embeddings.WithGoogleDimensions(cfg.EmbeddingDimensions),
		}
		if cfg.EmbeddingModel != "" {
			opts = append(opts, embeddings.WithGoogleModel(cfg.EmbeddingModel))
		}

		googleClient, err := embeddings.NewGoogleClient(ctx, cfg.GoogleAPIKey, opts...)
		if err != nil {
			return nil, cleanup, err
		}

		embedder = googleClient

	default:
		return nil, cleanup, fmt.Errorf("unsupported embedding provider: %s", cfg.EmbeddingProvider)
	}

	writer := service.NewMemoryWriter(service.MemoryWriterParams{
		EmbeddingClient: embedder,
		Store:           store,
	})

	return writer, cleanup, nil
}

// setupLogging configures slog with the specified log level.
func setupLogging(level string) {
	var logLevel slog.Level
	switch strings.ToLower(level) {
	case "debug":
		logLevel = slog.LevelDebug
	case "info":
		logLevel = slog.LevelInfo
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}

	handler := observability.NewTraceContextHandler(
		slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel}))
	slog.SetDefault(slog.New(handler))
}
