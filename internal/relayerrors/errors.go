// Package relayerrors provides sentinel and custom error types for the relay pipeline.
package relayerrors

// ErrEmbedding is the sentinel for embedding failures (empty input or remote call error).
// The embedding layer never retries; callers decide.
var ErrEmbedding = &EmbeddingError{}

// EmbeddingError reports a failed embedding call.
type EmbeddingError struct {
	Message string
	Err     error
}

// NewEmbeddingError creates an EmbeddingError wrapping err.
func NewEmbeddingError(message string, err error) *EmbeddingError {
	return &EmbeddingError{Message: message, Err: err}
}

// Error implements the error interface.
func (e *EmbeddingError) Error() string {
	if e.Message != "" {
		return "embedding: " + e.Message
	}

	return "embedding failed"
}

// Unwrap returns the underlying error.
func (e *EmbeddingError) Unwrap() error { return e.Err }

// Is implements the error interface for error comparison.
func (e *EmbeddingError) Is(target error) bool {
	_, ok := target.(*EmbeddingError)

	return ok
}

// ErrStore is the sentinel for storage-layer failures (search or upsert).
// Search failures propagate uncaught; upsert may be retried by the caller
// since upserts are idempotent by ID.
var ErrStore = &StoreError{}

// StoreError reports a failed memory store operation.
type StoreError struct {
	Op      string // "search" or "upsert"
	Message string
	Err     error
}

// NewStoreError creates a StoreError for the given operation.
func NewStoreError(op, message string, err error) *StoreError {
	return &StoreError{Op: op, Message: message, Err: err}
}

// Error implements the error interface.
func (e *StoreError) Error() string {
	if e.Message != "" {
		return "store " + e.Op + ": " + e.Message
	}

	return "store operation failed"
}

// Unwrap returns the underlying error.
func (e *StoreError) Unwrap() error { return e.Err }

// Is implements the error interface for error comparison.
func (e *StoreError) Is(target error) bool {
	_, ok := target.(*StoreError)

	return ok
}

// ErrRecall is the sentinel for recall failures. It always wraps an
// EmbeddingError or StoreError and always propagates; recall never falls
// back to an empty context.
var ErrRecall = &RecallError{}

// RecallError wraps a failure encountered while recalling memory.
type RecallError struct {
	Message string
	Err     error
}

// NewRecallError creates a RecallError wrapping err.
func NewRecallError(message string, err error) *RecallError {
	return &RecallError{Message: message, Err: err}
}

// Error implements the error interface.
func (e *RecallError) Error() string {
	if e.Message != "" {
		return "recall: " + e.Message
	}

	return "recall failed"
}

// Unwrap returns the underlying error.
func (e *RecallError) Unwrap() error { return e.Err }

// Is implements the error interface for error comparison.
func (e *RecallError) Is(target error) bool {
	_, ok := target.(*RecallError)

	return ok
}

// GenerationFailureKind distinguishes transport exhaustion from output validation.
// Validation failures are never retried; a malformed response will not get
// better on a second attempt with the same input.
type GenerationFailureKind string

// Generation failure kinds.
const (
	GenerationFailureTransport  GenerationFailureKind = "transport"
	GenerationFailureValidation GenerationFailureKind = "validation"
)

// ErrGeneration is the sentinel for generation failures: transport errors
// after the bounded retry budget is exhausted, or output validation failures
// (empty output, over-length output, unverifiable links).
var ErrGeneration = &GenerationError{}

// GenerationError reports a failed generation call. Always fatal for the
// current message.
type GenerationError struct {
	Kind     GenerationFailureKind
	Message  string
	Attempts int
	Err      error
}

// NewGenerationTransportError creates a GenerationError for transport exhaustion.
func NewGenerationTransportError(message string, attempts int, err error) *GenerationError {
	return &GenerationError{Kind: GenerationFailureTransport, Message: message, Attempts: attempts, Err: err}
}

// NewGenerationValidationError creates a GenerationError for an invalid response.
func NewGenerationValidationError(message string) *GenerationError {
	return &GenerationError{Kind: GenerationFailureValidation, Message: message}
}

// Error implements the error interface.
func (e *GenerationError) Error() string {
	if e.Message != "" {
		return "generation " + string(e.Kind) + ": " + e.Message
	}

	return "generation failed"
}

// Unwrap returns the underlying error.
func (e *GenerationError) Unwrap() error { return e.Err }

// Is implements the error interface for error comparison.
func (e *GenerationError) Is(target error) bool {
	other, ok := target.(*GenerationError)
	if !ok {
		return false
	}

	// The zero sentinel matches any generation error; a kinded target
	// matches only errors of the same kind.
	return other.Kind == "" || other.Kind == e.Kind
}

// ErrWrite is the sentinel for commit failures (embedding or store failure
// while persisting a new pair). Safe to retry: commits are idempotent by ID.
var ErrWrite = &WriteError{}

// WriteError reports a failed memory commit.
type WriteError struct {
	Message string
	Err     error
}

// NewWriteError creates a WriteError wrapping err.
func NewWriteError(message string, err error) *WriteError {
	return &WriteError{Message: message, Err: err}
}

// Error implements the error interface.
func (e *WriteError) Error() string {
	if e.Message != "" {
		return "commit: " + e.Message
	}

	return "commit failed"
}

// Unwrap returns the underlying error.
func (e *WriteError) Unwrap() error { return e.Err }

// Is implements the error interface for error comparison.
func (e *WriteError) Is(target error) bool {
	_, ok := target.(*WriteError)

	return ok
}
