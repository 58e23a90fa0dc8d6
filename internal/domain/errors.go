package domain

import (
	"errors"
	"fmt"
)

// Parent conditions. Every embedding-stage failure except a dimension mismatch
// matches ErrEmbeddingFailed; every ranking failure matches ErrSearchBackendFailed.
var (
	// ErrEmbeddingFailed signals that no usable embedding could be obtained.
	ErrEmbeddingFailed = errors.New("embedding failed")
	// ErrSearchBackendFailed signals that the vector store could not rank.
	ErrSearchBackendFailed = errors.New("search backend failed")
)

var (
	// ErrInvalidArgument signals a caller error such as topN <= 0 or a blank query.
	ErrInvalidArgument = errors.New("invalid argument")
	// ErrEmptyInput signals an image upload with zero bytes.
	ErrEmptyInput = errors.New("empty input")

	// ErrProviderUnavailable signals a transport failure reaching the embedding provider.
	ErrProviderUnavailable = fmt.Errorf("embedding provider unavailable: %w", ErrEmbeddingFailed)
	// ErrProviderError signals a non-success status from the embedding provider.
	ErrProviderError = fmt.Errorf("embedding provider error: %w", ErrEmbeddingFailed)
	// ErrMalformedResponse signals a provider response without a usable "embedding" field.
	ErrMalformedResponse = fmt.Errorf("malformed embedding response: %w", ErrEmbeddingFailed)
	// ErrInvalidEmbeddingPayload signals an embedding payload with non-numeric or non-list content.
	ErrInvalidEmbeddingPayload = fmt.Errorf("invalid embedding payload: %w", ErrEmbeddingFailed)

	// ErrEmbeddingDimensionMismatch signals a vector of the wrong length for its collection.
	ErrEmbeddingDimensionMismatch = errors.New("embedding dimension mismatch")

	// ErrStoreQueryFailed signals a failed nearest-neighbor query.
	ErrStoreQueryFailed = fmt.Errorf("vector store query failed: %w", ErrSearchBackendFailed)
)

// ProviderError carries the status and body of a failed provider call.
type ProviderError struct {
	Status int
	Body   string
}

func (e *ProviderError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("%s: status %d", ErrProviderError.Error(), e.Status)
	}
	return fmt.Sprintf("%s: status %d: %s", ErrProviderError.Error(), e.Status, e.Body)
}

func (e *ProviderError) Unwrap() error { return ErrProviderError }

// DimensionMismatchError reports the expected and actual vector lengths.
type DimensionMismatchError struct {
	Expected int
	Actual   int
}

func (e *DimensionMismatchError) Error() string {
	return fmt.Sprintf("%s: expected %d, got %d", ErrEmbeddingDimensionMismatch.Error(), e.Expected, e.Actual)
}

func (e *DimensionMismatchError) Unwrap() error { return ErrEmbeddingDimensionMismatch }
