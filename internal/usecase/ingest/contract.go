package ingest

import (
	"context"

	"github.com/kailas-cloud/vecshop/internal/domain"
	"github.com/kailas-cloud/vecshop/internal/domain/product"
)

// Catalog stores products and manages their vector indexes.
type Catalog interface {
	EnsureIndexes(ctx context.Context) error
	DropIndexes(ctx context.Context) error
	Upsert(ctx context.Context, products []product.Product) error
}

// Embedder vectorizes catalog text and images.
type Embedder interface {
	domain.TextEmbedder
	domain.ImageEmbedder
}

// ImageSource loads a product image by id.
// A missing image is reported as an error wrapping os.ErrNotExist.
type ImageSource interface {
	Image(ctx context.Context, id string) (data []byte, contentType string, err error)
}
