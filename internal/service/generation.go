package service

import (
	"context"
	"crypto/rand"
	"encoding/binary"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/anthropics/anthropic-sdk-go/packages/param"
	"golang.org/x/time/rate"

	"github.com/zoomrelay/relay/internal/models"
	"github.com/zoomrelay/relay/internal/observability"
	"github.com/zoomrelay/relay/internal/relayerrors"
)

const (
	defaultInitialBackoffWhenZero = 500 * time.Millisecond
	backoffMultiplier             = 2
)

// Generation outcome labels for metrics.
const (
	generationStatusSucceeded        = "succeeded"
	generationStatusTransportFailed  = "transport_failed"
	generationStatusValidationFailed = "validation_failed"
)

// MessageCreator is the slice of the Anthropic SDK the generation client
// needs. Satisfied by &anthropic.Client.Messages.
type MessageCreator interface {
	New(ctx context.Context, params anthropic.MessageNewParams, opts ...option.RequestOption) (*anthropic.Message, error)
}

// DraftRefiner runs an optional editorial pass over a draft before validation.
type DraftRefiner interface {
	Refine(ctx context.Context, sourceText, draft, contextBlock string) (string, error)
}

// GenerationService produces the stylized translation for one message.
//
// Each call walks an explicit state machine: issue the request; on transport
// error retry with exponential backoff and jitter up to a fixed attempt
// ceiling; on exhaustion fail with a transport GenerationError. A response
// that arrives but contains no usable text, exceeds the character ceiling, or
// links outside the allowed URL set fails validation and is never retried;
// a broken translation is worse than a missing one.
type GenerationService struct {
	creator        MessageCreator
	reviewer       DraftRefiner
	model          string
	maxTokens      int64
	temperature    float64
	outputMaxChars int
	maxAttempts    int
	initialBackoff time.Duration
	maxBackoff     time.Duration
	limiter        *rate.Limiter
	metrics        observability.PipelineMetrics
	logger         *slog.Logger
}

// GenerationServiceParams configures GenerationService. Reviewer, Limiter,
// and Metrics may be nil.
type GenerationServiceParams struct {
	Creator        MessageCreator
	Reviewer       DraftRefiner
	Model          string
	MaxTokens      int
	Temperature    float64
	OutputMaxChars int
	MaxAttempts    int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	Limiter        *rate.Limiter
	Metrics        observability.PipelineMetrics
	Logger         *slog.Logger
}

// NewGenerationService creates a GenerationService.
func NewGenerationService(p GenerationServiceParams) *GenerationService {
	logger := p.Logger
	if logger == nil {
		logger = slog.Default()
	}

	if p.MaxAttempts <= 0 {
		p.MaxAttempts = 1
	}

	if p.InitialBackoff <= 0 {
		p.InitialBackoff = defaultInitialBackoffWhenZero
	}

	if p.MaxBackoff < p.InitialBackoff {
		p.MaxBackoff = p.InitialBackoff
	}

	return &GenerationService{
		creator:        p.Creator,
		reviewer:       p.Reviewer,
		model:          p.Model,
		maxTokens:      int64(p.MaxTokens),
		temperature:    p.Temperature,
		outputMaxChars: p.OutputMaxChars,
		maxAttempts:    p.MaxAttempts,
		initialBackoff: p.InitialBackoff,
		maxBackoff:     p.MaxBackoff,
		limiter:        p.Limiter,
		metrics:        p.Metrics,
		logger:         logger,
	}
}

// Generate translates inputText using the assembled memory contextBlock.
// enrichment, when present, is appended to the input as extracted article
// body. allowedURLs is the closed set of links the output may contain; any
// URL outside it fails validation.
func (s *GenerationService) Generate(
	ctx context.Context, inputText, contextBlock, enrichment string, allowedURLs []string,
) (models.GenerationResult, error) {
	start := time.Now()

	req := s.buildRequest(inputText, contextBlock, enrichment)

	resp, attempts, err := s.callWithRetry(ctx, req)
	if err != nil {
		s.recordOutcome(ctx, generationStatusTransportFailed, start)

		return models.GenerationResult{}, relayerrors.NewGenerationTransportError(
			"model call failed", attempts, err)
	}

	text := responseText(resp)
	if strings.TrimSpace(text) == "" {
		// The model produced only internal reasoning with no final answer.
		s.recordOutcome(ctx, generationStatusValidationFailed, start)

		return models.GenerationResult{}, relayerrors.NewGenerationValidationError("response contains no usable output text")
	}

	if s.reviewer != nil {
		refined, refineErr := s.reviewer.Refine(ctx, inputText, text, contextBlock)
		if refineErr != nil {
			// The draft already satisfied the transport contract; refinement
			// is best-effort polish, so keep the draft on reviewer failure.
			s.logger.WarnContext(ctx, "editorial pass failed, keeping draft", "error", refineErr)
		} else {
			text = refined
		}
	}

	if err := s.validate(text, allowedURLs); err != nil {
		s.recordOutcome(ctx, generationStatusValidationFailed, start)

		return models.GenerationResult{}, err
	}

	s.recordOutcome(ctx, generationStatusSucceeded, start)

	return models.GenerationResult{
		Text:         text,
		Attempts:     attempts,
		InputTokens:  resp.Usage.InputTokens,
		OutputTokens: resp.Usage.OutputTokens,
	}, nil
}

// buildRequest combines the fixed system instructions with the variable
// memory context and the user's input.
func (s *GenerationService) buildRequest(inputText, contextBlock, enrichment string) models.GenerationRequest {
	prompt := inputText
	if enrichment != "" {
		prompt = inputText + "\n\nFull article text:\n" + enrichment
	}

	return models.GenerationRequest{
		System:      s.systemPrompt(contextBlock),
		Prompt:      prompt,
		Model:       s.model,
		MaxTokens:   s.maxTokens,
		Temperature: s.temperature,
	}
}

// systemPrompt states the style constraints, the anti-repetition mandate
// against the memory block, and the link rules the validator later enforces.
func (s *GenerationService) systemPrompt(contextBlock string) string {
	var b strings.Builder

	b.WriteString("You translate news posts for a Telegram channel, keeping the channel's established voice.\n\n")
	b.WriteString("Recent posts already published on the channel:\n")
	b.WriteString(contextBlock)
	b.WriteString("\n\nRules:\n")
	fmt.Fprintf(&b, "- Keep the translation under %d characters.\n", s.outputMaxChars)
	b.WriteString("- Stay factually accurate to the source; add nothing the source does not say.\n")
	b.WriteString("- Do not repeat the phrasing or jokes of the recent posts listed above.\n")
	b.WriteString("- When the story continues one of the recent posts, reference it by its URL from the list.\n")
	b.WriteString("- Only use URLs that appear in the list above or in the message itself. Never invent a URL.\n")
	b.WriteString("- Output only the finished post text, no commentary.\n")

	return b.String()
}

// callWithRetry issues the request, retrying transport errors with
// exponential backoff and jitter. Returns the attempts consumed.
func (s *GenerationService) callWithRetry(
	ctx context.Context, req models.GenerationRequest,
) (*anthropic.Message, int, error) {
	var lastErr error

	backoff := s.initialBackoff

	for attempt := 1; attempt <= s.maxAttempts; attempt++ {
		if s.metrics != nil {
			s.metrics.RecordGenerationAttempt(ctx)
		}

		if s.limiter != nil {
			if err := s.limiter.Wait(ctx); err != nil {
				return nil, attempt, fmt.Errorf("rate limiter: %w", err)
			}
		}

		resp, err := s.creator.New(ctx, anthropic.MessageNewParams{
			Model:       anthropic.Model(req.Model),
			MaxTokens:   req.MaxTokens,
			Temperature: param.NewOpt(req.Temperature),
			System: []anthropic.TextBlockParam{
				{Text: req.System},
			},
			Messages: []anthropic.MessageParam{
				anthropic.NewUserMessage(anthropic.NewTextBlock(req.Prompt)),
			},
		})
		if err == nil {
			return resp, attempt, nil
		}

		lastErr = err

		if attempt == s.maxAttempts {
			break
		}

		if s.metrics != nil {
			s.metrics.RecordGenerationRetry(ctx)
		}

		sleep := jitter(backoff)
		s.logger.WarnContext(ctx, "generation call failed, retrying after backoff",
			"attempt", attempt,
			"max_attempts", s.maxAttempts,
			"backoff", sleep,
			"error", err,
		)

		if err := sleepCtx(ctx, sleep); err != nil {
			return nil, attempt, err
		}

		backoff = min(backoff*backoffMultiplier, s.maxBackoff)
	}

	return nil, s.maxAttempts, lastErr
}

// validate enforces the output post-conditions: non-empty text (checked
// earlier), the character ceiling, and link closure.
func (s *GenerationService) validate(text string, allowedURLs []string) error {
	if n := utf8.RuneCountInString(text); n > s.outputMaxChars {
		return relayerrors.NewGenerationValidationError(
			fmt.Sprintf("output has %d characters, ceiling is %d", n, s.outputMaxChars))
	}

	if offending := DisallowedURLs(text, allowedURLs); len(offending) > 0 {
		return relayerrors.NewGenerationValidationError(
			"output links to URLs outside the allowed set: " + strings.Join(offending, ", "))
	}

	return nil
}

func (s *GenerationService) recordOutcome(ctx context.Context, status string, start time.Time) {
	if s.metrics != nil {
		s.metrics.RecordGenerationOutcome(ctx, status, time.Since(start))
	}
}

// responseText concatenates the text blocks of a response, skipping
// non-text blocks such as thinking traces.
func responseText(resp *anthropic.Message) string {
	var b strings.Builder

	for _, block := range resp.Content {
		if block.Type == "text" {
			b.WriteString(block.Text)
		}
	}

	return b.String()
}

// jitter returns a duration between 50% and 100% of duration to avoid
// synchronized retries.
func jitter(duration time.Duration) time.Duration {
	half := duration / 2
	if half <= 0 {
		return duration
	}

	var buf [8]byte

	if _, err := rand.Read(buf[:]); err != nil {
		return half
	}

	randVal := binary.BigEndian.Uint64(buf[:])
	halfNanos := half.Nanoseconds()

	//nolint:gosec // G115: modulo result is in [0, halfNanos), safe to convert to int64
	jitterNanos := int64(randVal % uint64(halfNanos))

	return half + time.Duration(jitterNanos)
}

// sleepCtx blocks for d or until ctx is cancelled; returns ctx.Err() if cancelled.
func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return fmt.Errorf("backoff interrupted: %w", ctx.Err())
	case <-timer.C:
		return nil
	}
}
