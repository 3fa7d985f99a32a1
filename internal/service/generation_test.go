package service

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zoomrelay/relay/internal/relayerrors"
)

func newTestGenerationService(creator MessageCreator) *GenerationService {
	return NewGenerationService(GenerationServiceParams{
		Creator:        creator,
		Model:          "claude-sonnet-4-20250514",
		MaxTokens:      1024,
		Temperature:    0.7,
		OutputMaxChars: 4096,
		MaxAttempts:    3,
		InitialBackoff: time.Millisecond,
		MaxBackoff:     2 * time.Millisecond,
	})
}

func TestGenerate_Success(t *testing.T) {
	creator := &mockCreator{
		newFunc: func(_ context.Context, _ anthropic.MessageNewParams) (*anthropic.Message, error) {
			return textMessage("Рынки упали."), nil
		},
	}

	svc := newTestGenerationService(creator)

	result, err := svc.Generate(context.Background(), "Markets fell.", NoMemoryPlaceholder, "", nil)
	require.NoError(t, err)

	assert.Equal(t, "Рынки упали.", result.Text)
	assert.Equal(t, 1, result.Attempts)
	assert.Equal(t, int64(100), result.InputTokens)
	assert.Equal(t, int64(50), result.OutputTokens)
}

func TestGenerate_PromptCarriesContextAndCeiling(t *testing.T) {
	creator := &mockCreator{
		newFunc: func(_ context.Context, _ anthropic.MessageNewParams) (*anthropic.Message, error) {
			return textMessage("ok"), nil
		},
	}

	svc := newTestGenerationService(creator)

	contextBlock := "1. Markets fell → https://t.me/chan/10"

	_, err := svc.Generate(context.Background(), "Markets rebounded.", contextBlock, "", nil)
	require.NoError(t, err)

	require.Len(t, creator.params, 1)
	require.Len(t, creator.params[0].System, 1)

	system := creator.params[0].System[0].Text
	assert.Contains(t, system, contextBlock)
	assert.Contains(t, system, "4096")
}

func TestGenerate_EnrichmentAppended(t *testing.T) {
	creator := &mockCreator{
		newFunc: func(_ context.Context, _ anthropic.MessageNewParams) (*anthropic.Message, error) {
			return textMessage("ok"), nil
		},
	}

	svc := newTestGenerationService(creator)

	_, err := svc.Generate(context.Background(), "Headline", NoMemoryPlaceholder, "full article body", nil)
	require.NoError(t, err)

	require.Len(t, creator.params, 1)
	require.Len(t, creator.params[0].Messages, 1)
	blocks := creator.params[0].Messages[0].Content
	require.Len(t, blocks, 1)
	assert.Contains(t, blocks[0].OfText.Text, "full article body")
}

func TestGenerate_RetriesTransportFailure(t *testing.T) {
	calls := 0
	creator := &mockCreator{
		newFunc: func(_ context.Context, _ anthropic.MessageNewParams) (*anthropic.Message, error) {
			calls++
			if calls < 3 {
				return nil, errors.New("overloaded")
			}

			return textMessage("done"), nil
		},
	}

	svc := newTestGenerationService(creator)

	result, err := svc.Generate(context.Background(), "input", NoMemoryPlaceholder, "", nil)
	require.NoError(t, err)
	assert.Equal(t, 3, result.Attempts)
	assert.Equal(t, "done", result.Text)
}

func TestGenerate_TransportExhaustion(t *testing.T) {
	calls := 0
	creator := &mockCreator{
		newFunc: func(_ context.Context, _ anthropic.MessageNewParams) (*anthropic.Message, error) {
			calls++

			return nil, errors.New("overloaded")
		},
	}

	svc := newTestGenerationService(creator)

	_, err := svc.Generate(context.Background(), "input", NoMemoryPlaceholder, "", nil)
	require.Error(t, err)
	assert.Equal(t, 3, calls)
	assert.ErrorIs(t, err, relayerrors.ErrGeneration)
	assert.ErrorIs(t, err, &relayerrors.GenerationError{Kind: relayerrors.GenerationFailureTransport})

	var genErr *relayerrors.GenerationError
	require.ErrorAs(t, err, &genErr)
	assert.Equal(t, 3, genErr.Attempts)
}

func TestGenerate_EmptyOutputNotRetried(t *testing.T) {
	calls := 0
	creator := &mockCreator{
		newFunc: func(_ context.Context, _ anthropic.MessageNewParams) (*anthropic.Message, error) {
			calls++

			return textMessage("   \n"), nil
		},
	}

	svc := newTestGenerationService(creator)

	_, err := svc.Generate(context.Background(), "input", NoMemoryPlaceholder, "", nil)
	require.Error(t, err)
	assert.Equal(t, 1, calls)
	assert.ErrorIs(t, err, &relayerrors.GenerationError{Kind: relayerrors.GenerationFailureValidation})
}

func TestGenerate_NonTextBlocksIgnored(t *testing.T) {
	creator := &mockCreator{
		newFunc: func(_ context.Context, _ anthropic.MessageNewParams) (*anthropic.Message, error) {
			return &anthropic.Message{
				Content: []anthropic.ContentBlockUnion{
					{Type: "thinking", Thinking: "working it out"},
					{Type: "text", Text: "final answer"},
				},
			}, nil
		},
	}

	svc := newTestGenerationService(creator)

	result, err := svc.Generate(context.Background(), "input", NoMemoryPlaceholder, "", nil)
	require.NoError(t, err)
	assert.Equal(t, "final answer", result.Text)
}

func TestGenerate_OverLengthOutputRejected(t *testing.T) {
	creator := &mockCreator{
		newFunc: func(_ context.Context, _ anthropic.MessageNewParams) (*anthropic.Message, error) {
			return textMessage(strings.Repeat("я", 5000)), nil
		},
	}

	svc := newTestGenerationService(creator)

	_, err := svc.Generate(context.Background(), "input", NoMemoryPlaceholder, "", nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, &relayerrors.GenerationError{Kind: relayerrors.GenerationFailureValidation})
	assert.Contains(t, err.Error(), "5000")
}

func TestGenerate_MultibyteLengthCountsRunes(t *testing.T) {
	// 4096 Cyrillic characters are 8192 bytes but exactly at the ceiling.
	creator := &mockCreator{
		newFunc: func(_ context.Context, _ anthropic.MessageNewParams) (*anthropic.Message, error) {
			return textMessage(strings.Repeat("ж", 4096)), nil
		},
	}

	svc := newTestGenerationService(creator)

	_, err := svc.Generate(context.Background(), "input", NoMemoryPlaceholder, "", nil)
	assert.NoError(t, err)
}

func TestGenerate_HallucinatedLinkRejected(t *testing.T) {
	creator := &mockCreator{
		newFunc: func(_ context.Context, _ anthropic.MessageNewParams) (*anthropic.Message, error) {
			return textMessage("continues https://fabricated.example.com/story"), nil
		},
	}

	svc := newTestGenerationService(creator)

	_, err := svc.Generate(context.Background(), "input", NoMemoryPlaceholder, "",
		[]string{"https://t.me/chan/10"})
	require.Error(t, err)
	assert.ErrorIs(t, err, &relayerrors.GenerationError{Kind: relayerrors.GenerationFailureValidation})
	assert.Contains(t, err.Error(), "https://fabricated.example.com/story")
}

func TestGenerate_AllowedLinkAccepted(t *testing.T) {
	creator := &mockCreator{
		newFunc: func(_ context.Context, _ anthropic.MessageNewParams) (*anthropic.Message, error) {
			return textMessage("continues https://t.me/chan/10"), nil
		},
	}

	svc := newTestGenerationService(creator)

	result, err := svc.Generate(context.Background(), "input", NoMemoryPlaceholder, "",
		[]string{"https://t.me/chan/10"})
	require.NoError(t, err)
	assert.Contains(t, result.Text, "https://t.me/chan/10")
}

type stubRefiner struct {
	refineFunc func(ctx context.Context, sourceText, draft, contextBlock string) (string, error)
}

func (s *stubRefiner) Refine(ctx context.Context, sourceText, draft, contextBlock string) (string, error) {
	return s.refineFunc(ctx, sourceText, draft, contextBlock)
}

func TestGenerate_ReviewerRefinesDraft(t *testing.T) {
	creator := &mockCreator{
		newFunc: func(_ context.Context, _ anthropic.MessageNewParams) (*anthropic.Message, error) {
			return textMessage("rough draft"), nil
		},
	}

	svc := newTestGenerationService(creator)
	svc.reviewer = &stubRefiner{
		refineFunc: func(_ context.Context, _, draft, _ string) (string, error) {
			assert.Equal(t, "rough draft", draft)

			return "polished draft", nil
		},
	}

	result, err := svc.Generate(context.Background(), "input", NoMemoryPlaceholder, "", nil)
	require.NoError(t, err)
	assert.Equal(t, "polished draft", result.Text)
}

func TestGenerate_ReviewerFailureKeepsDraft(t *testing.T) {
	creator := &mockCreator{
		newFunc: func(_ context.Context, _ anthropic.MessageNewParams) (*anthropic.Message, error) {
			return textMessage("the draft"), nil
		},
	}

	svc := newTestGenerationService(creator)
	svc.reviewer = &stubRefiner{
		refineFunc: func(_ context.Context, _, _, _ string) (string, error) {
			return "", errors.New("reviewer down")
		},
	}

	result, err := svc.Generate(context.Background(), "input", NoMemoryPlaceholder, "", nil)
	require.NoError(t, err)
	assert.Equal(t, "the draft", result.Text)
}

func TestGenerate_RefinedOutputStillValidated(t *testing.T) {
	creator := &mockCreator{
		newFunc: func(_ context.Context, _ anthropic.MessageNewParams) (*anthropic.Message, error) {
			return textMessage("fine draft"), nil
		},
	}

	svc := newTestGenerationService(creator)
	svc.reviewer = &stubRefiner{
		refineFunc: func(_ context.Context, _, _, _ string) (string, error) {
			return "revised with https://sneaky.example.com", nil
		},
	}

	_, err := svc.Generate(context.Background(), "input", NoMemoryPlaceholder, "", nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, &relayerrors.GenerationError{Kind: relayerrors.GenerationFailureValidation})
}

func TestGenerate_ContextCancelledDuringBackoff(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	creator := &mockCreator{
		newFunc: func(_ context.Context, _ anthropic.MessageNewParams) (*anthropic.Message, error) {
			cancel()

			return nil, errors.New("overloaded")
		},
	}

	svc := NewGenerationService(GenerationServiceParams{
		Creator:        creator,
		Model:          "claude-sonnet-4-20250514",
		MaxTokens:      1024,
		OutputMaxChars: 4096,
		MaxAttempts:    3,
		InitialBackoff: time.Hour,
		MaxBackoff:     time.Hour,
	})

	_, err := svc.Generate(ctx, "input", NoMemoryPlaceholder, "", nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Len(t, creator.params, 1)
}
