package domain

import (
	"fmt"
	"math"
)

// ImageDimensions is the fixed length of image embeddings.
const ImageDimensions = 512

// DefaultContentType is sent for image uploads without a declared type.
const DefaultContentType = "application/octet-stream"

// Vector is a dense embedding. Each search owns its vector.
type Vector []float32

// Dimensions returns the vector length.
func (v Vector) Dimensions() int { return len(v) }

// Finite reports whether every component is a finite number.
func (v Vector) Finite() bool {
	for _, f := range v {
		if math.IsNaN(float64(f)) || math.IsInf(float64(f), 0) {
			return false
		}
	}
	return true
}

// CheckDimensions returns a *DimensionMismatchError when len(v) != want.
func (v Vector) CheckDimensions(want int) error {
	if len(v) != want {
		return &DimensionMismatchError{Expected: want, Actual: len(v)}
	}
	return nil
}

// Modality selects the embedding space and the product collection ranked against it.
type Modality string

const (
	// ModalityText ranks against product text embeddings.
	ModalityText Modality = "text"
	// ModalityImage ranks against product image embeddings.
	ModalityImage Modality = "image"
)

// VectorField returns the stored field holding this modality's embeddings.
func (m Modality) VectorField() string {
	switch m {
	case ModalityText:
		return "text_embedding"
	case ModalityImage:
		return "image_embedding"
	default:
		return ""
	}
}

// Validate rejects unknown modalities.
func (m Modality) Validate() error {
	switch m {
	case ModalityText, ModalityImage:
		return nil
	default:
		return fmt.Errorf("%w: unknown modality %q", ErrInvalidArgument, string(m))
	}
}
