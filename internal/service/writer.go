package service

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/zoomrelay/relay/internal/models"
	"github.com/zoomrelay/relay/internal/observability"
	"github.com/zoomrelay/relay/internal/relayerrors"
)

// Commit outcome labels for metrics.
const (
	commitStatusSucceeded = "succeeded"
	commitStatusFailed    = "failed"
)

// MemoryUpserter is the write side of the memory store.
type MemoryUpserter interface {
	Upsert(ctx context.Context, entry models.MemoryEntry) error
}

// MemoryWriter persists a finished translation pair into the memory store.
//
// The stored embedding covers the source text and the translation joined by
// a blank line, so a later query against either side of the pair can find
// it. Queries embed the raw message alone; the asymmetry is intentional.
type MemoryWriter struct {
	embedder EmbeddingClient
	store    MemoryUpserter
	metrics  observability.PipelineMetrics
	logger   *slog.Logger
}

// MemoryWriterParams configures MemoryWriter. Metrics may be nil.
type MemoryWriterParams struct {
	EmbeddingClient EmbeddingClient
	Store           MemoryUpserter
	Metrics         observability.PipelineMetrics
	Logger          *slog.Logger
}

// NewMemoryWriter creates a MemoryWriter.
func NewMemoryWriter(p MemoryWriterParams) *MemoryWriter {
	logger := p.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &MemoryWriter{
		embedder: p.EmbeddingClient,
		store:    p.Store,
		metrics:  p.Metrics,
		logger:   logger,
	}
}

// Commit stores a translation pair under id, stamping it with the current
// time. Re-committing the same id replaces the pair's text and embedding but
// keeps the original creation time.
func (w *MemoryWriter) Commit(ctx context.Context, id, sourceText, translationText, referenceURL string) error {
	return w.CommitAt(ctx, id, sourceText, translationText, referenceURL, time.Time{})
}

// CommitAt is Commit with an explicit creation time, used when loading
// historical pairs. A zero createdAt defers to the store's clock.
func (w *MemoryWriter) CommitAt(
	ctx context.Context, id, sourceText, translationText, referenceURL string, createdAt time.Time,
) error {
	if strings.TrimSpace(id) == "" {
		return relayerrors.NewWriteError("entry id is empty", nil)
	}

	if strings.TrimSpace(sourceText) == "" || strings.TrimSpace(translationText) == "" {
		return relayerrors.NewWriteError("source and translation must both be non-empty", nil)
	}

	combined := sourceText + "\n\n" + translationText

	embedding, err := w.embedder.CreateEmbedding(ctx, combined)
	if err != nil {
		w.recordCommit(ctx, commitStatusFailed)

		return relayerrors.NewWriteError("embed translation pair", err)
	}

	entry := models.MemoryEntry{
		ID:              id,
		SourceText:      sourceText,
		TranslationText: translationText,
		Embedding:       embedding,
		ReferenceURL:    referenceURL,
		CreatedAt:       createdAt,
	}

	if err := w.store.Upsert(ctx, entry); err != nil {
		w.recordCommit(ctx, commitStatusFailed)

		return relayerrors.NewWriteError("persist translation pair", err)
	}

	w.recordCommit(ctx, commitStatusSucceeded)
	w.logger.DebugContext(ctx, "translation pair committed", "entry_id", id)

	return nil
}

func (w *MemoryWriter) recordCommit(ctx context.Context, status string) {
	if w.metrics != nil {
		w.metrics.RecordCommitOutcome(ctx, status)
	}
}
