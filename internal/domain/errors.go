package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound signals a missing resource.
	ErrNotFound = errors.New("not found")
	// ErrItemNotFound signals a missing catalog item.
	ErrItemNotFound = errors.New("item not found")
	// ErrMemberNotFound signals a missing member record.
	ErrMemberNotFound = errors.New("member not found")
	// ErrEmbeddingNotFound signals that no vector is stored for an origin.
	ErrEmbeddingNotFound = errors.New("embedding not found")
	// ErrEmbeddingDimensionMismatch signals a comparison of vectors with different lengths.
	ErrEmbeddingDimensionMismatch = errors.New("embedding dimension mismatch")
	// ErrInvalidRequest signals a malformed ranking or interaction request.
	ErrInvalidRequest = errors.New("invalid request")
	// ErrInvalidWeights signals a scoring weights snapshot that failed validation.
	ErrInvalidWeights = errors.New("invalid scoring weights")

	// ErrAICallFailed signals a transport failure or timeout against an AI backend.
	ErrAICallFailed = errors.New("ai call failed")
	// ErrAIResponseParseFailed signals a malformed AI backend response.
	ErrAIResponseParseFailed = errors.New("ai response parse failed")
	// ErrAIAuthFailed signals rejected AI backend credentials.
	ErrAIAuthFailed = errors.New("ai auth failed")
	// ErrEmbeddingQuotaExceeded signals an exhausted token budget.
	ErrEmbeddingQuotaExceeded = errors.New("embedding quota exceeded")
	// ErrRateLimited signals a local outbound rate limit hit.
	ErrRateLimited = errors.New("rate limited")
)

// AIError carries the failing backend name next to the sentinel cause.
type AIError struct {
	Provider string
	Err      error
}

func (e *AIError) Error() string {
	return fmt.Sprintf("%s: %s", e.Provider, e.Err.Error())
}

func (e *AIError) Unwrap() error { return e.Err }

// NewAIError wraps err with the backend name.
func NewAIError(provider string, err error) error {
	return &AIError{Provider: provider, Err: err}
}
