// Package models holds the data structures shared across the relay pipeline.
package models

import (
	"time"
)

// MemoryEntry is one persisted source/translation pair in translation memory.
// Entries are immutable once written: an upsert for an existing ID replaces
// the translation, embedding, and reference URL, but never the creation time.
type MemoryEntry struct {
	ID              string    `json:"id"`
	SourceText      string    `json:"source_text"`
	TranslationText string    `json:"translation_text"`
	Embedding       []float32 `json:"embedding,omitempty"`
	ReferenceURL    string    `json:"reference_url,omitempty"` // published location; empty when unknown
	CreatedAt       time.Time `json:"created_at"`
}

// EntryWithSimilarity is a store search result: an entry plus its cosine
// similarity to the query vector, in [0, 1].
type EntryWithSimilarity struct {
	Entry      MemoryEntry `json:"entry"`
	Similarity float64     `json:"similarity"`
}

// RankedCandidate is a recall result after similarity/recency re-ranking.
// It lives only for the duration of one pipeline run.
type RankedCandidate struct {
	Entry      MemoryEntry `json:"entry"`
	Similarity float64     `json:"similarity"`
	Recency    float64     `json:"recency"`
	Combined   float64     `json:"combined"`
}

// InboundMessage is what the ingestion layer hands the pipeline: the raw
// message text, its stable identifier, optional pre-extracted article body,
// and the URLs already present in the message formatting.
type InboundMessage struct {
	MessageID     string   `json:"message_id"`
	Text          string   `json:"text"`
	Enrichment    string   `json:"enrichment,omitempty"`
	CandidateURLs []string `json:"candidate_urls,omitempty"`
	ReferenceURL  string   `json:"reference_url,omitempty"` // where the result will be published, if known up front
}

// PublishResult is what the pipeline returns to the publishing layer.
type PublishResult struct {
	FinalText string   `json:"final_text"`
	UsedLinks []string `json:"used_links"`
}

// GenerationRequest holds one assembled model request. Not persisted.
type GenerationRequest struct {
	System      string
	Prompt      string
	Model       string
	MaxTokens   int64
	Temperature float64
}

// GenerationResult holds the raw model output for one successful call.
// Not persisted; on success the text seeds a new MemoryEntry.
type GenerationResult struct {
	Text         string
	Attempts     int
	InputTokens  int64
	OutputTokens int64
}
