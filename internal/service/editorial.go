package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/packages/param"
)

// EditorialReviewer polishes a draft translation through bounded
// critique-then-revise rounds with the same model family that produced the
// draft. Each round asks for a critique of the current draft against the
// source and the channel's recent posts, then for a revision addressing the
// critique. A round whose revision comes back empty keeps the previous draft.
type EditorialReviewer struct {
	creator     MessageCreator
	model       string
	maxTokens   int64
	temperature float64
	iterations  int
	logger      *slog.Logger
}

// EditorialReviewerParams configures EditorialReviewer.
type EditorialReviewerParams struct {
	Creator     MessageCreator
	Model       string
	MaxTokens   int
	Temperature float64
	Iterations  int
	Logger      *slog.Logger
}

// NewEditorialReviewer creates an EditorialReviewer. Returns nil when
// Iterations is zero or negative so callers can wire it unconditionally.
func NewEditorialReviewer(p EditorialReviewerParams) *EditorialReviewer {
	if p.Iterations <= 0 {
		return nil
	}

	logger := p.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &EditorialReviewer{
		creator:     p.Creator,
		model:       p.Model,
		maxTokens:   int64(p.MaxTokens),
		temperature: p.Temperature,
		iterations:  p.Iterations,
		logger:      logger,
	}
}

// Refine runs the configured number of critique-and-revise rounds over draft
// and returns the final revision.
func (r *EditorialReviewer) Refine(ctx context.Context, sourceText, draft, contextBlock string) (string, error) {
	current := draft

	for round := 1; round <= r.iterations; round++ {
		critique, err := r.call(ctx, critiqueSystemPrompt, critiquePrompt(sourceText, current, contextBlock))
		if err != nil {
			return "", fmt.Errorf("critique round %d: %w", round, err)
		}

		if strings.TrimSpace(critique) == "" {
			r.logger.DebugContext(ctx, "empty critique, keeping draft", "round", round)

			break
		}

		revision, err := r.call(ctx, reviseSystemPrompt, revisePrompt(sourceText, current, critique))
		if err != nil {
			return "", fmt.Errorf("revision round %d: %w", round, err)
		}

		if strings.TrimSpace(revision) == "" {
			r.logger.DebugContext(ctx, "empty revision, keeping draft", "round", round)

			break
		}

		current = strings.TrimSpace(revision)
	}

	return current, nil
}

func (r *EditorialReviewer) call(ctx context.Context, system, prompt string) (string, error) {
	resp, err := r.creator.New(ctx, anthropic.MessageNewParams{
		Model:       anthropic.Model(r.model),
		MaxTokens:   r.maxTokens,
		Temperature: param.NewOpt(r.temperature),
		System: []anthropic.TextBlockParam{
			{Text: system},
		},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
	})
	if err != nil {
		return "", fmt.Errorf("model call: %w", err)
	}

	return responseText(resp), nil
}

const critiqueSystemPrompt = "You are an editor for a Telegram news channel. " +
	"Critique the draft translation below: flag factual drift from the source, " +
	"phrasing repeated from the channel's recent posts, and anything that breaks " +
	"the channel's voice. Be specific and brief. If the draft needs no changes, " +
	"reply with an empty message."

const reviseSystemPrompt = "You are an editor for a Telegram news channel. " +
	"Rewrite the draft applying the critique. Keep everything the critique does " +
	"not mention. Output only the revised post text, no commentary."

func critiquePrompt(sourceText, draft, contextBlock string) string {
	return fmt.Sprintf("Source post:\n%s\n\nRecent channel posts:\n%s\n\nDraft translation:\n%s",
		sourceText, contextBlock, draft)
}

func revisePrompt(sourceText, draft, critique string) string {
	return fmt.Sprintf("Source post:\n%s\n\nDraft translation:\n%s\n\nCritique:\n%s",
		sourceText, draft, critique)
}
