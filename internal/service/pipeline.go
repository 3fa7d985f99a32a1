package service

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/zoomrelay/relay/internal/models"
	"github.com/zoomrelay/relay/internal/observability"
)

var (
	// ErrEmptyMessage is returned when an inbound message has no text.
	ErrEmptyMessage = errors.New("message text is empty")
	// ErrMissingMessageID is returned when an inbound message has no id.
	ErrMissingMessageID = errors.New("message id is empty")
)

// Pipeline chains recall, generation, and the memory write for one inbound
// message. A failure at any stage aborts the run: nothing is published and
// nothing is written back to memory.
type Pipeline struct {
	recall          *RecallService
	generation      *GenerationService
	writer          *MemoryWriter
	recallK         int
	previewMaxChars int
	logger          *slog.Logger
}

// PipelineParams configures Pipeline.
type PipelineParams struct {
	Recall          *RecallService
	Generation      *GenerationService
	Writer          *MemoryWriter
	RecallK         int
	PreviewMaxChars int
	Logger          *slog.Logger
}

// NewPipeline creates a Pipeline.
func NewPipeline(p PipelineParams) *Pipeline {
	logger := p.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Pipeline{
		recall:          p.Recall,
		generation:      p.Generation,
		writer:          p.Writer,
		recallK:         p.RecallK,
		previewMaxChars: p.PreviewMaxChars,
		logger:          logger,
	}
}

// Process runs the full pipeline for msg and returns the published text with
// the links it used.
func (p *Pipeline) Process(ctx context.Context, msg models.InboundMessage) (models.PublishResult, error) {
	if strings.TrimSpace(msg.MessageID) == "" {
		return models.PublishResult{}, ErrMissingMessageID
	}

	if strings.TrimSpace(msg.Text) == "" {
		return models.PublishResult{}, ErrEmptyMessage
	}

	ctx = observability.WithMessageID(ctx, msg.MessageID)

	candidates, err := p.recall.Recall(ctx, msg.Text, p.recallK)
	if err != nil {
		return models.PublishResult{}, err
	}

	contextBlock := AssembleContext(candidates, p.previewMaxChars)
	allowedURLs := append(ExtractURLs(msg.Text), msg.CandidateURLs...)
	allowedURLs = append(allowedURLs, ContextURLs(candidates)...)

	result, err := p.generation.Generate(ctx, msg.Text, contextBlock, msg.Enrichment, allowedURLs)
	if err != nil {
		return models.PublishResult{}, err
	}

	if err := p.writer.Commit(ctx, msg.MessageID, msg.Text, result.Text, msg.ReferenceURL); err != nil {
		return models.PublishResult{}, err
	}

	p.logger.InfoContext(ctx, "message processed",
		"memories_recalled", len(candidates),
		"generation_attempts", result.Attempts,
		"output_chars", len([]rune(result.Text)),
	)

	return models.PublishResult{
		FinalText: result.Text,
		UsedLinks: ExtractURLs(result.Text),
	}, nil
}
