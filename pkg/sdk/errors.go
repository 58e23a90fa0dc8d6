package vecshop

import "github.com/kailas-cloud/vecshop/internal/domain"

// Sentinel errors re-exported from the domain layer.
// Use errors.Is() to check. Every embedding failure except a dimension
// mismatch matches ErrEmbeddingFailed; every ranking failure matches
// ErrSearchBackendFailed.
var (
	ErrInvalidArgument            = domain.ErrInvalidArgument
	ErrEmptyInput                 = domain.ErrEmptyInput
	ErrEmbeddingFailed            = domain.ErrEmbeddingFailed
	ErrProviderUnavailable        = domain.ErrProviderUnavailable
	ErrProviderError              = domain.ErrProviderError
	ErrMalformedResponse          = domain.ErrMalformedResponse
	ErrInvalidEmbeddingPayload    = domain.ErrInvalidEmbeddingPayload
	ErrEmbeddingDimensionMismatch = domain.ErrEmbeddingDimensionMismatch
	ErrSearchBackendFailed        = domain.ErrSearchBackendFailed
	ErrStoreQueryFailed           = domain.ErrStoreQueryFailed
)

// ProviderError carries the status and body of a failed embedding provider call.
type ProviderError = domain.ProviderError

// DimensionMismatchError reports the expected and actual vector length.
type DimensionMismatchError = domain.DimensionMismatchError
