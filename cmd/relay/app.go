package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.opentelemetry.io/otel"
	"golang.org/x/time/rate"

	"github.com/zoomrelay/relay/internal/config"
	"github.com/zoomrelay/relay/internal/embeddings"
	"github.com/zoomrelay/relay/internal/models"
	"github.com/zoomrelay/relay/internal/observability"
	"github.com/zoomrelay/relay/internal/repository"
	"github.com/zoomrelay/relay/internal/service"
	"github.com/zoomrelay/relay/pkg/cache"
	"github.com/zoomrelay/relay/pkg/database"
)

var errUnsupportedStore = errors.New("unsupported memory store")

var errUnsupportedEmbeddingProvider = errors.New("unsupported embedding provider")

// App holds the wired pipeline and its lifecycle hooks.
type App struct {
	cfg      *config.Config
	db       *pgxpool.Pool
	pipeline *service.Pipeline
	// Per-message processing deadline, covering all stages.
	messageTimeout time.Duration
}

// memoryStore is the read+write surface the pipeline needs from a backend.
type memoryStore interface {
	service.MemorySearcher
	service.MemoryUpserter
}

// NewApp builds and wires all components. Call Run to process messages.
func NewApp(ctx context.Context, cfg *config.Config) (*App, error) {
	app := &App{
		cfg:            cfg,
		messageTimeout: cfg.EmbeddingTimeout + cfg.GenerationTimeout + cfg.StoreTimeout,
	}

	store, err := app.setupStore(ctx)
	if err != nil {
		return nil, err
	}

	embedder, err := setupEmbedder(ctx, cfg)
	if err != nil {
		app.Close()

		return nil, err
	}

	queryCache, err := cache.New[[]float32](cfg.QueryEmbeddingCacheSize)
	if err != nil {
		app.Close()

		return nil, fmt.Errorf("create query embedding cache: %w", err)
	}

	// The global meter is a no-op unless the host process installs an SDK
	// meter provider.
	metrics, err := observability.NewPipelineMetrics(otel.Meter("relay"))
	if err != nil {
		app.Close()

		return nil, fmt.Errorf("create metrics: %w", err)
	}

	timedEmbedder := &timeoutEmbedder{inner: embedder, timeout: cfg.EmbeddingTimeout}
	timedStore := &timeoutStore{inner: store, timeout: cfg.StoreTimeout}

	recall := service.NewRecallService(service.RecallServiceParams{
		EmbeddingClient: timedEmbedder,
		Store:           timedStore,
		OverfetchFactor: cfg.RecallOverfetchFactor,
		RecencyHalfLife: cfg.RecencyHalfLife,
		RecencyWeight:   cfg.RecencyWeight,
		QueryCache:      queryCache,
		Metrics:         metrics,
	})

	anthropicClient := anthropic.NewClient(option.WithAPIKey(cfg.AnthropicAPIKey))
	creator := &anthropicClient.Messages

	reviewer := service.NewEditorialReviewer(service.EditorialReviewerParams{
		Creator:     creator,
		Model:       cfg.GenerationModel,
		MaxTokens:   cfg.GenerationMaxTokens,
		Temperature: cfg.GenerationTemperature,
		Iterations:  cfg.EditorialIterations,
	})

	generationParams := service.GenerationServiceParams{
		Creator:        creator,
		Model:          cfg.GenerationModel,
		MaxTokens:      cfg.GenerationMaxTokens,
		Temperature:    cfg.GenerationTemperature,
		OutputMaxChars: cfg.OutputMaxChars,
		MaxAttempts:    cfg.GenerationMaxAttempts,
		InitialBackoff: cfg.GenerationInitialBackoff,
		MaxBackoff:     cfg.GenerationMaxBackoff,
		Limiter:        rate.NewLimiter(rate.Limit(cfg.GenerationRateLimit), 1),
		Metrics:        metrics,
	}
	if reviewer != nil {
		generationParams.Reviewer = reviewer
	}

	generation := service.NewGenerationService(generationParams)

	writer := service.NewMemoryWriter(service.MemoryWriterParams{
		EmbeddingClient: timedEmbedder,
		Store:           timedStore,
		Metrics:         metrics,
	})

	app.pipeline = service.NewPipeline(service.PipelineParams{
		Recall:          recall,
		Generation:      generation,
		Writer:          writer,
		RecallK:         cfg.RecallK,
		PreviewMaxChars: cfg.MemoryPreviewMaxChars,
	})

	return app, nil
}

// Process runs one message through the pipeline under the app's deadline.
func (a *App) Process(ctx context.Context, msg models.InboundMessage) (models.PublishResult, error) {
	ctx, cancel := context.WithTimeout(ctx, a.messageTimeout)
	defer cancel()

	return a.pipeline.Process(ctx, msg)
}

// Close releases held resources. Safe to call on a partially built app.
func (a *App) Close() {
	if a.db != nil {
		a.db.Close()
	}
}

func (a *App) setupStore(ctx context.Context) (memoryStore, error) {
	switch a.cfg.MemoryStore {
	case config.StorePostgres:
		db, err := database.NewPgvectorPool(ctx, a.cfg.DatabaseURL,
			func(ctx context.Context, pool *pgxpool.Pool) error {
				return repository.NewPostgresStore(pool, a.cfg.EmbeddingDimensions).EnsureSchema(ctx)
			})
		if err != nil {
			return nil, fmt.Errorf("connect to postgres: %w", err)
		}

		a.db = db

		slog.Info("memory store ready", "backend", config.StorePostgres)

		return repository.NewPostgresStore(db, a.cfg.EmbeddingDimensions), nil

	case config.StoreChromem:
		store, err := repository.NewChromemStore(a.cfg.ChromemPath, a.cfg.EmbeddingDimensions)
		if err != nil {
			return nil, err
		}

		slog.Info("memory store ready",
			"backend", config.StoreChromem,
			"persistent", a.cfg.ChromemPath != "")

		return store, nil

	default:
		return nil, fmt.Errorf("%w: %s", errUnsupportedStore, a.cfg.MemoryStore)
	}
}

func setupEmbedder(ctx context.Context, cfg *config.Config) (embeddings.Client, error) {
	switch cfg.EmbeddingProvider {
	case config.EmbeddingProviderOpenAI:
		opts := []embeddings.OpenAIOption{
			embeddings.WithOpenAIDimensions(cfg.EmbeddingDimensions),
		}
		if cfg.EmbeddingModel != "" {
			opts = append(opts, embeddings.WithOpenAIModel(cfg.EmbeddingModel))
		}

		return embeddings.NewOpenAIClient(cfg.OpenAIAPIKey, opts...), nil

	case config.EmbeddingProviderGoogle:
		opts := []embeddings.GoogleOption{
			embeddings.WithGoogleDimensions(cfg.EmbeddingDimensions),
		}
		if cfg.EmbeddingModel != "" {
			opts = append(opts, embeddings.WithGoogleModel(cfg.EmbeddingModel))
		}

		return embeddings.NewGoogleClient(ctx, cfg.GoogleAPIKey, opts...)

	default:
		return nil, fmt.Errorf("%w: %s", errUnsupportedEmbeddingProvider, cfg.EmbeddingProvider)
	}
}

// timeoutEmbedder bounds every embedding call with its own deadline.
type timeoutEmbedder struct {
	inner   embeddings.Client
	timeout time.Duration
}

func (t *timeoutEmbedder) CreateEmbedding(ctx context.Context, text string) ([]float32, error) {
	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()

	return t.inner.CreateEmbedding(ctx, text)
}

// timeoutStore bounds every store call with its own deadline.
type timeoutStore struct {
	inner   memoryStore
	timeout time.Duration
}

func (t *timeoutStore) NearestByEmbedding(
	ctx context.Context, queryEmbedding []float32, limit int,
) ([]models.EntryWithSimilarity, error) {
	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()

	return t.inner.NearestByEmbedding(ctx, queryEmbedding, limit)
}

func (t *timeoutStore) Upsert(ctx context.Context, entry models.MemoryEntry) error {
	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()

	return t.inner.Upsert(ctx, entry)
}
