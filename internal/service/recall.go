// Package service implements the translation memory pipeline: recall,
// context assembly, generation, and commit.
package service

import (
	"context"
	"errors"
	"log/slog"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/zoomrelay/relay/internal/models"
	"github.com/zoomrelay/relay/internal/observability"
	"github.com/zoomrelay/relay/internal/relayerrors"
	"github.com/zoomrelay/relay/pkg/cache"
)

const queryEmbeddingCacheName = "recall_query_embedding"

// ErrEmptyQuery is returned when recall is asked about an empty message.
var ErrEmptyQuery = errors.New("query text is required and must be non-empty")

// MemorySearcher provides the nearest-neighbor read operation recall needs.
type MemorySearcher interface {
	NearestByEmbedding(ctx context.Context, queryEmbedding []float32, limit int) ([]models.EntryWithSimilarity, error)
}

// RecallService retrieves past translation pairs relevant to a new message
// and re-ranks them by a blend of similarity and recency.
//
// The query is embedded on its own, while stored entries were embedded from
// source and translation combined. The asymmetry is deliberate: a stored pair
// can match either on the news item's topic or on the rendering's style.
type RecallService struct {
	embeddingClient EmbeddingClient
	store           MemorySearcher
	overfetchFactor int
	recencyHalfLife time.Duration
	recencyWeight   float64
	queryCache      *cache.LoaderCache[[]float32]
	metrics         observability.PipelineMetrics
	logger          *slog.Logger
	now             func() time.Time
}

// RecallServiceParams configures RecallService. QueryCache and Metrics may be
// nil (no caching, no metrics). Now is a test seam; nil uses time.Now.
type RecallServiceParams struct {
	EmbeddingClient EmbeddingClient
	Store           MemorySearcher
	OverfetchFactor int
	RecencyHalfLife time.Duration
	RecencyWeight   float64
	QueryCache      *cache.LoaderCache[[]float32]
	Metrics         observability.PipelineMetrics
	Logger          *slog.Logger
	Now             func() time.Time
}

// NewRecallService creates a RecallService.
func NewRecallService(p RecallServiceParams) *RecallService {
	logger := p.Logger
	if logger == nil {
		logger = slog.Default()
	}

	now := p.Now
	if now == nil {
		now = time.Now
	}

	if p.OverfetchFactor <= 0 {
		p.OverfetchFactor = 4
	}

	if p.RecencyHalfLife <= 0 {
		p.RecencyHalfLife = 24 * time.Hour
	}

	return &RecallService{
		embeddingClient: p.EmbeddingClient,
		store:           p.Store,
		overfetchFactor: p.OverfetchFactor,
		recencyHalfLife: p.RecencyHalfLife,
		recencyWeight:   p.RecencyWeight,
		queryCache:      p.QueryCache,
		metrics:         p.Metrics,
		logger:          logger,
		now:             now,
	}
}

// Recall returns up to k candidates for queryText, best first. The store is
// asked for overfetchFactor*k neighbors so the recency re-ranker has raw
// material to reorder without a second query. Embedding or store failures
// surface as RecallError; there is no silent empty-context fallback.
func (s *RecallService) Recall(ctx context.Context, queryText string, k int) ([]models.RankedCandidate, error) {
	start := s.now()

	queryText = strings.TrimSpace(queryText)
	if queryText == "" {
		return nil, relayerrors.NewRecallError("empty query", ErrEmptyQuery)
	}

	if k <= 0 {
		return nil, nil
	}

	embedding, err := s.queryEmbedding(ctx, queryText)
	if err != nil {
		s.logger.ErrorContext(ctx, "recall: embed query failed", "error", err, "k", k)

		if s.metrics != nil {
			s.metrics.RecordRecallError(ctx)
		}

		return nil, relayerrors.NewRecallError("embed query", relayerrors.NewEmbeddingError("query text", err))
	}

	raw, err := s.store.NearestByEmbedding(ctx, embedding, s.overfetchFactor*k)
	if err != nil {
		s.logger.ErrorContext(ctx, "recall: nearest query failed", "error", err, "k", k)

		if s.metrics != nil {
			s.metrics.RecordRecallError(ctx)
		}

		return nil, relayerrors.NewRecallError("nearest neighbors", err)
	}

	candidates := s.rank(raw)
	if len(candidates) > k {
		candidates = candidates[:k]
	}

	if s.metrics != nil {
		s.metrics.RecordRecall(ctx, len(candidates), s.now().Sub(start))
	}

	s.logger.DebugContext(ctx, "recall complete",
		"fetched", len(raw), "returned", len(candidates), "k", k)

	return candidates, nil
}

// rank blends similarity with an exponentially decaying recency score and
// sorts by the combined value, descending. The sort is stable and the input
// arrives ordered by similarity, so equal combined scores keep similarity
// rank, so repeated queries over an unchanged store return identical output.
func (s *RecallService) rank(raw []models.EntryWithSimilarity) []models.RankedCandidate {
	now := s.now()
	candidates := make([]models.RankedCandidate, 0, len(raw))

	for _, r := range raw {
		age := now.Sub(r.Entry.CreatedAt)
		if age < 0 {
			age = 0
		}

		// Halves every recencyHalfLife; approaches but never reaches zero.
		recency := math.Pow(0.5, age.Hours()/s.recencyHalfLife.Hours())
		combined := (1-s.recencyWeight)*r.Similarity + s.recencyWeight*recency

		candidates = append(candidates, models.RankedCandidate{
			Entry:      r.Entry,
			Similarity: r.Similarity,
			Recency:    recency,
			Combined:   combined,
		})
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].Combined > candidates[j].Combined
	})

	return candidates
}

func (s *RecallService) queryEmbedding(ctx context.Context, queryText string) ([]float32, error) {
	if s.queryCache == nil {
		return s.embeddingClient.CreateEmbedding(ctx, queryText)
	}

	vec, hit, err := s.queryCache.GetWithStats(ctx, queryText, func(ctx context.Context, text string) ([]float32, error) {
		return s.embeddingClient.CreateEmbedding(ctx, text)
	})
	if err != nil {
		return nil, err
	}

	if s.metrics != nil {
		if hit {
			s.metrics.RecordCacheHit(ctx, queryEmbeddingCacheName)
		} else {
			s.metrics.RecordCacheMiss(ctx, queryEmbeddingCacheName)
		}
	}

	return vec, nil
}
