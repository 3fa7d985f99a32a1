package service

import (
	"fmt"
	"strings"

	"github.com/zoomrelay/relay/internal/models"
)

// NoMemoryPlaceholder is rendered when there are no recalled candidates, so
// the prompt keeps a stable shape whether or not memory has content.
const NoMemoryPlaceholder = "No previous posts."

// AssembleContext formats ranked candidates into the compact memory block
// injected into the generation prompt. Each candidate becomes one enumerated
// line with a short preview of its translation and, when known, the URL it
// was published at:
//
//	3. Iran says it will raise enrichment to 90% → https://t.me/chan/123
//
// Previews are deliberately short: the model needs the gist of what was
// already posted (to avoid repeating itself and to propose links), not the
// full text to copy from. AssembleContext is a pure function and never fails.
func AssembleContext(candidates []models.RankedCandidate, previewMaxChars int) string {
	if len(candidates) == 0 {
		return NoMemoryPlaceholder
	}

	lines := make([]string, 0, len(candidates))

	for i, c := range candidates {
		preview := previewOf(c.Entry.TranslationText, previewMaxChars)
		if c.Entry.ReferenceURL != "" {
			lines = append(lines, fmt.Sprintf("%d. %s → %s", i+1, preview, c.Entry.ReferenceURL))
		} else {
			lines = append(lines, fmt.Sprintf("%d. %s", i+1, preview))
		}
	}

	return strings.Join(lines, "\n")
}

// ContextURLs returns the reference URLs of the candidates, in order,
// skipping absent ones. Together with the message's own URLs these form the
// closed set of links a generated post may contain.
func ContextURLs(candidates []models.RankedCandidate) []string {
	urls := make([]string, 0, len(candidates))

	for _, c := range candidates {
		if c.Entry.ReferenceURL != "" {
			urls = append(urls, c.Entry.ReferenceURL)
		}
	}

	return urls
}

// previewOf returns the first sentence of text, capped at maxChars runes.
func previewOf(text string, maxChars int) string {
	if idx := strings.IndexByte(text, '.'); idx >= 0 {
		text = text[:idx]
	}

	runes := []rune(text)
	if len(runes) > maxChars {
		runes = runes[:maxChars]
	}

	return strings.TrimSpace(string(runes))
}
