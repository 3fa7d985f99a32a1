package service

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/zoomrelay/relay/internal/models"
)

func candidate(id, translation, url string) models.RankedCandidate {
	return models.RankedCandidate{
		Entry: models.MemoryEntry{ID: id, TranslationText: translation, ReferenceURL: url},
	}
}

func TestAssembleContext_Empty(t *testing.T) {
	assert.Equal(t, NoMemoryPlaceholder, AssembleContext(nil, 120))
	assert.Equal(t, NoMemoryPlaceholder, AssembleContext([]models.RankedCandidate{}, 120))
}

func TestAssembleContext_EnumeratedLines(t *testing.T) {
	candidates := []models.RankedCandidate{
		candidate("1", "Markets fell sharply today. More detail follows.", "https://t.me/chan/10"),
		candidate("2", ". leading dot means empty preview", "https://t.me/chan/11"),
		candidate("3", "No url for this one. Second sentence.", ""),
	}

	block := AssembleContext(candidates, 120)
	lines := strings.Split(block, "\n")

	assert.Len(t, lines, 3)
	assert.Equal(t, "1. Markets fell sharply today → https://t.me/chan/10", lines[0])
	assert.Equal(t, "2.  → https://t.me/chan/11", lines[1])
	assert.Equal(t, "3. No url for this one", lines[2])
}

func TestAssembleContext_PreviewCapsRunes(t *testing.T) {
	long := strings.Repeat("д", 200)
	block := AssembleContext([]models.RankedCandidate{candidate("1", long, "")}, 120)

	preview := strings.TrimPrefix(block, "1. ")
	assert.Len(t, []rune(preview), 120)
}

func TestAssembleContext_FirstSentenceOnly(t *testing.T) {
	block := AssembleContext([]models.RankedCandidate{
		candidate("1", "First sentence. Second sentence. Third.", ""),
	}, 120)

	assert.Equal(t, "1. First sentence", block)
}

func TestContextURLs(t *testing.T) {
	candidates := []models.RankedCandidate{
		candidate("1", "a.", "https://t.me/chan/1"),
		candidate("2", "b.", ""),
		candidate("3", "c.", "https://t.me/chan/3"),
	}

	assert.Equal(t,
		[]string{"https://t.me/chan/1", "https://t.me/chan/3"},
		ContextURLs(candidates))
}
