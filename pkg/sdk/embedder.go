package vecshop

import (
	"context"

	"github.com/kailas-cloud/vecshop/internal/domain"
)

// TextEmbedder converts text to a vector.
type TextEmbedder interface {
	EmbedText(ctx context.Context, text string) ([]float32, error)
}

// ImageEmbedder converts encoded image bytes to a vector.
// Image vectors must have 512 dimensions.
type ImageEmbedder interface {
	EmbedImage(ctx context.Context, data []byte, contentType string) ([]float32, error)
}

// textAdapter wraps a public TextEmbedder to satisfy domain.TextEmbedder.
type textAdapter struct {
	inner TextEmbedder
}

func (a *textAdapter) EmbedText(ctx context.Context, text string) (domain.Vector, error) {
	v, err := a.inner.EmbedText(ctx, text)
	if err != nil {
		return nil, err
	}
	return domain.Vector(v), nil
}

// imageAdapter wraps a public ImageEmbedder and enforces the image vector length.
type imageAdapter struct {
	inner ImageEmbedder
}

func (a *imageAdapter) EmbedImage(ctx context.Context, data []byte, contentType string) (domain.Vector, error) {
	v, err := a.inner.EmbedImage(ctx, data, contentType)
	if err != nil {
		return nil, err
	}
	vec := domain.Vector(v)
	if err := vec.CheckDimensions(domain.ImageDimensions); err != nil {
		return nil, err
	}
	return vec, nil
}
