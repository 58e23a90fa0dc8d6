package chi

// ErrorResponseCode is a machine readable error code.
type ErrorResponseCode string

// Error codes returned in ErrorResponse.Code.
const (
	ErrorResponseCodeBadRequest                 ErrorResponseCode = "bad_request"
	ErrorResponseCodeUnauthorized               ErrorResponseCode = "unauthorized"
	ErrorResponseCodeInvalidArgument            ErrorResponseCode = "invalid_argument"
	ErrorResponseCodeEmptyInput                 ErrorResponseCode = "empty_input"
	ErrorResponseCodeNotFound                   ErrorResponseCode = "not_found"
	ErrorResponseCodePayloadTooLarge            ErrorResponseCode = "payload_too_large"
	ErrorResponseCodeEmbeddingDimensionMismatch ErrorResponseCode = "embedding_dimension_mismatch"
	ErrorResponseCodeEmbeddingFailed            ErrorResponseCode = "embedding_failed"
	ErrorResponseCodeSearchBackendFailed        ErrorResponseCode = "search_backend_failed"
	ErrorResponseCodeInternalError              ErrorResponseCode = "internal_error"
)

// ErrorResponse is the body of every non-2xx API response.
type ErrorResponse struct {
	Code    ErrorResponseCode `json:"code"`
	Message string            `json:"message"`
}

// SearchRequest is the body of POST /api/v1/search.
type SearchRequest struct {
	Query string `json:"query"`
	TopN  *int   `json:"topN,omitempty"`
}

// Product is a ranked product in a search response.
type Product struct {
	ID                 string  `json:"id"`
	ProductDisplayName string  `json:"productDisplayName"`
	MasterCategory     string  `json:"masterCategory"`
	SubCategory        string  `json:"subCategory"`
	BaseColour         string  `json:"baseColour"`
	Similarity         float64 `json:"similarity"`
}

// SearchResponse lists products by descending similarity.
type SearchResponse struct {
	Results []Product `json:"results"`
}

// HealthResponse reports service health.
type HealthResponse struct {
	Status   string            `json:"status"`
	Checks   map[string]string `json:"checks"`
	Products map[string]int    `json:"products,omitempty"`
}
