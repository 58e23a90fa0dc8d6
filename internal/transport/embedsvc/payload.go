package embedsvc

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"

	"github.com/kailas-cloud/vecshop/internal/domain"
)

// embeddingResponse is the provider reply. Embedding stays undecoded until
// Flatten so any nesting depth is accepted.
type embeddingResponse struct {
	Embedding json.RawMessage `json:"embedding"`
}

// decodeEmbedding extracts and flattens the "embedding" field of body.
// An empty sequence is a valid zero-length vector; length checks belong to callers.
func decodeEmbedding(body []byte) (domain.Vector, error) {
	var resp embeddingResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrMalformedResponse, err)
	}
	if len(resp.Embedding) == 0 || bytes.Equal(resp.Embedding, []byte("null")) {
		return nil, fmt.Errorf("%w: missing embedding field", domain.ErrMalformedResponse)
	}

	dec := json.NewDecoder(bytes.NewReader(resp.Embedding))
	dec.UseNumber()
	var payload any
	if err := dec.Decode(&payload); err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrMalformedResponse, err)
	}

	return Flatten(payload)
}

// Flatten collects the numeric leaves of a decoded JSON sequence depth-first,
// left to right. The top level must be a sequence and every leaf a number.
func Flatten(payload any) (domain.Vector, error) {
	top, ok := payload.([]any)
	if !ok {
		return nil, fmt.Errorf("%w: expected a sequence, got %T", domain.ErrInvalidEmbeddingPayload, payload)
	}
	out := make(domain.Vector, 0, len(top))
	return flattenInto(out, top)
}

func flattenInto(out domain.Vector, seq []any) (domain.Vector, error) {
	for _, item := range seq {
		var f float64
		switch v := item.(type) {
		case []any:
			var err error
			if out, err = flattenInto(out, v); err != nil {
				return nil, err
			}
			continue
		case json.Number:
			n, err := v.Float64()
			if err != nil {
				return nil, fmt.Errorf("%w: %q: %w", domain.ErrInvalidEmbeddingPayload, v.String(), err)
			}
			f = n
		case float64:
			f = v
		default:
			return nil, fmt.Errorf("%w: non-numeric leaf %T", domain.ErrInvalidEmbeddingPayload, item)
		}
		if math.IsInf(float64(float32(f)), 0) || math.IsNaN(f) {
			return nil, fmt.Errorf("%w: %v is not a finite float32", domain.ErrInvalidEmbeddingPayload, f)
		}
		out = append(out, float32(f))
	}
	return out, nil
}
