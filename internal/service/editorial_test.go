package service

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewEditorialReviewer_DisabledForZeroIterations(t *testing.T) {
	assert.Nil(t, NewEditorialReviewer(EditorialReviewerParams{Iterations: 0}))
	assert.Nil(t, NewEditorialReviewer(EditorialReviewerParams{Iterations: -1}))
}

func TestRefine_SingleRound(t *testing.T) {
	creator := &mockCreator{
		newFunc: func(_ context.Context, params anthropic.MessageNewParams) (*anthropic.Message, error) {
			system := params.System[0].Text
			if strings.Contains(system, "Critique") {
				return textMessage("too literal, loses the channel's tone"), nil
			}

			return textMessage("revised post"), nil
		},
	}

	reviewer := NewEditorialReviewer(EditorialReviewerParams{
		Creator:    creator,
		Model:      "claude-sonnet-4-20250514",
		MaxTokens:  1024,
		Iterations: 1,
	})
	require.NotNil(t, reviewer)

	out, err := reviewer.Refine(context.Background(), "source", "draft", NoMemoryPlaceholder)
	require.NoError(t, err)
	assert.Equal(t, "revised post", out)
	assert.Len(t, creator.params, 2)
}

func TestRefine_EmptyCritiqueKeepsDraft(t *testing.T) {
	creator := &mockCreator{
		newFunc: func(_ context.Context, _ anthropic.MessageNewParams) (*anthropic.Message, error) {
			return textMessage("  "), nil
		},
	}

	reviewer := NewEditorialReviewer(EditorialReviewerParams{
		Creator:    creator,
		Model:      "claude-sonnet-4-20250514",
		MaxTokens:  1024,
		Iterations: 3,
	})

	out, err := reviewer.Refine(context.Background(), "source", "draft", NoMemoryPlaceholder)
	require.NoError(t, err)
	assert.Equal(t, "draft", out)

	// An empty critique ends the loop before any revision call.
	assert.Len(t, creator.params, 1)
}

func TestRefine_MultipleRounds(t *testing.T) {
	round := 0
	creator := &mockCreator{
		newFunc: func(_ context.Context, params anthropic.MessageNewParams) (*anthropic.Message, error) {
			if strings.Contains(params.System[0].Text, "Critique") {
				return textMessage("still too stiff"), nil
			}

			round++

			return textMessage("revision " + string(rune('0'+round))), nil
		},
	}

	reviewer := NewEditorialReviewer(EditorialReviewerParams{
		Creator:    creator,
		Model:      "claude-sonnet-4-20250514",
		MaxTokens:  1024,
		Iterations: 2,
	})

	out, err := reviewer.Refine(context.Background(), "source", "draft", NoMemoryPlaceholder)
	require.NoError(t, err)
	assert.Equal(t, "revision 2", out)
	assert.Len(t, creator.params, 4)
}

func TestRefine_CritiqueSeesCurrentDraft(t *testing.T) {
	var critiqued []string

	creator := &mockCreator{
		newFunc: func(_ context.Context, params anthropic.MessageNewParams) (*anthropic.Message, error) {
			prompt := params.Messages[0].Content[0].OfText.Text
			if strings.Contains(params.System[0].Text, "Critique") {
				critiqued = append(critiqued, prompt)

				return textMessage("fix it"), nil
			}

			return textMessage("better draft"), nil
		},
	}

	reviewer := NewEditorialReviewer(EditorialReviewerParams{
		Creator:    creator,
		Model:      "claude-sonnet-4-20250514",
		MaxTokens:  1024,
		Iterations: 2,
	})

	_, err := reviewer.Refine(context.Background(), "source", "first draft", NoMemoryPlaceholder)
	require.NoError(t, err)

	require.Len(t, critiqued, 2)
	assert.Contains(t, critiqued[0], "first draft")
	assert.Contains(t, critiqued[1], "better draft")
}

func TestRefine_CallFailureSurfaces(t *testing.T) {
	creator := &mockCreator{
		newFunc: func(_ context.Context, _ anthropic.MessageNewParams) (*anthropic.Message, error) {
			return nil, errors.New("overloaded")
		},
	}

	reviewer := NewEditorialReviewer(EditorialReviewerParams{
		Creator:    creator,
		Model:      "claude-sonnet-4-20250514",
		MaxTokens:  1024,
		Iterations: 1,
	})

	_, err := reviewer.Refine(context.Background(), "source", "draft", NoMemoryPlaceholder)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "critique round 1")
}
