package observability

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metric names. Kept in one place so dashboards have a single source of truth.
const (
	MetricNameRecallResults      = "relay_recall_results_total"
	MetricNameRecallErrors       = "relay_recall_errors_total"
	MetricNameRecallDuration     = "relay_recall_duration_seconds"
	MetricNameGenerationAttempts = "relay_generation_attempts_total"
	MetricNameGenerationRetries  = "relay_generation_retries_total"
	MetricNameGenerationOutcomes = "relay_generation_outcomes_total"
	MetricNameGenerationDuration = "relay_generation_duration_seconds"
	MetricNameCommitOutcomes     = "relay_commit_outcomes_total"
	MetricNameCacheHits          = "relay_cache_hits_total"
	MetricNameCacheMisses        = "relay_cache_misses_total"
)

// Attribute keys.
const (
	AttrStatus = "status"
	AttrCache  = "cache"
)

// PipelineMetrics records relay pipeline metrics. A nil PipelineMetrics is
// valid everywhere and disables recording.
type PipelineMetrics interface {
	RecordRecall(ctx context.Context, results int, duration time.Duration)
	RecordRecallError(ctx context.Context)
	RecordGenerationAttempt(ctx context.Context)
	RecordGenerationRetry(ctx context.Context)
	RecordGenerationOutcome(ctx context.Context, status string, duration time.Duration)
	RecordCommitOutcome(ctx context.Context, status string)
	RecordCacheHit(ctx context.Context, cacheName string)
	RecordCacheMiss(ctx context.Context, cacheName string)
}

// pipelineMetrics implements PipelineMetrics on the otel metric API.
type pipelineMetrics struct {
	recallResults      metric.Int64Counter
	recallErrors       metric.Int64Counter
	recallDuration     metric.Float64Histogram
	generationAttempts metric.Int64Counter
	generationRetries  metric.Int64Counter
	generationOutcomes metric.Int64Counter
	generationDuration metric.Float64Histogram
	commitOutcomes     metric.Int64Counter
	cacheHits          metric.Int64Counter
	cacheMisses        metric.Int64Counter
}

// NewPipelineMetrics creates PipelineMetrics. Returns (nil, nil) when meter is
// nil, so hosts without a meter provider run with metrics disabled.
func NewPipelineMetrics(meter metric.Meter) (PipelineMetrics, error) {
	if meter == nil {
		//nolint:nilnil // intentional: callers use "if metrics != nil" when metrics disabled
		return nil, nil
	}

	recallResults, err := meter.Int64Counter(
		MetricNameRecallResults,
		metric.WithDescription("Total memory candidates returned by recall"),
	)
	if err != nil {
		return nil, fmt.Errorf("create recall results counter: %w", err)
	}

	recallErrors, err := meter.Int64Counter(
		MetricNameRecallErrors,
		metric.WithDescription("Total recall failures (embedding or store)"),
	)
	if err != nil {
		return nil, fmt.Errorf("create recall errors counter: %w", err)
	}

	recallDuration, err := meter.Float64Histogram(
		MetricNameRecallDuration,
		metric.WithDescription("Recall duration (seconds)"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, fmt.Errorf("create recall duration histogram: %w", err)
	}

	generationAttempts, err := meter.Int64Counter(
		MetricNameGenerationAttempts,
		metric.WithDescription("Total generation attempts including retries"),
	)
	if err != nil {
		return nil, fmt.Errorf("create generation attempts counter: %w", err)
	}

	generationRetries, err := meter.Int64Counter(
		MetricNameGenerationRetries,
		metric.WithDescription("Total generation retries after transport errors"),
	)
	if err != nil {
		return nil, fmt.Errorf("create generation retries counter: %w", err)
	}

	generationOutcomes, err := meter.Int64Counter(
		MetricNameGenerationOutcomes,
		metric.WithDescription("Total generation outcomes by status"),
	)
	if err != nil {
		return nil, fmt.Errorf("create generation outcomes counter: %w", err)
	}

	generationDuration, err := meter.Float64Histogram(
		MetricNameGenerationDuration,
		metric.WithDescription("Generation duration including retries (seconds)"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, fmt.Errorf("create generation duration histogram: %w", err)
	}

	commitOutcomes, err := meter.Int64Counter(
		MetricNameCommitOutcomes,
		metric.WithDescription("Total memory commit outcomes by status"),
	)
	if err != nil {
		return nil, fmt.Errorf("create commit outcomes counter: %w", err)
	}

	cacheHits, err := meter.Int64Counter(
		MetricNameCacheHits,
		metric.WithDescription("Total cache hits by cache name"),
	)
	if err != nil {
		return nil, fmt.Errorf("create cache hits counter: %w", err)
	}

	cacheMisses, err := meter.Int64Counter(
		MetricNameCacheMisses,
		metric.WithDescription("Total cache misses by cache name"),
	)
	if err != nil {
		return nil, fmt.Errorf("create cache misses counter: %w", err)
	}

	return &pipelineMetrics{
		recallResults:      recallResults,
		recallErrors:       recallErrors,
		recallDuration:     recallDuration,
		generationAttempts: generationAttempts,
		generationRetries:  generationRetries,
		generationOutcomes: generationOutcomes,
		generationDuration: generationDuration,
		commitOutcomes:     commitOutcomes,
		cacheHits:          cacheHits,
		cacheMisses:        cacheMisses,
	}, nil
}

func (m *pipelineMetrics) RecordRecall(ctx context.Context, results int, duration time.Duration) {
	m.recallResults.Add(ctx, int64(results))
	m.recallDuration.Record(ctx, duration.Seconds())
}

func (m *pipelineMetrics) RecordRecallError(ctx context.Context) {
	m.recallErrors.Add(ctx, 1)
}

func (m *pipelineMetrics) RecordGenerationAttempt(ctx context.Context) {
	m.generationAttempts.Add(ctx, 1)
}

func (m *pipelineMetrics) RecordGenerationRetry(ctx context.Context) {
	m.generationRetries.Add(ctx, 1)
}

func (m *pipelineMetrics) RecordGenerationOutcome(ctx context.Context, status string, duration time.Duration) {
	attrs := metric.WithAttributes(attribute.String(AttrStatus, status))
	m.generationOutcomes.Add(ctx, 1, attrs)
	m.generationDuration.Record(ctx, duration.Seconds(), attrs)
}

func (m *pipelineMetrics) RecordCommitOutcome(ctx context.Context, status string) {
	m.commitOutcomes.Add(ctx, 1, metric.WithAttributes(attribute.String(AttrStatus, status)))
}

func (m *pipelineMetrics) RecordCacheHit(ctx context.Context, cacheName string) {
	m.cacheHits.Add(ctx, 1, metric.WithAttributes(attribute.String(AttrCache, cacheName)))
}

func (m *pipelineMetrics) RecordCacheMiss(ctx context.Context, cacheName string) {
	m.cacheMisses.Add(ctx, 1, metric.WithAttributes(attribute.String(AttrCache, cacheName)))
}
