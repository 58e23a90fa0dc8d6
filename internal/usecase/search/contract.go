package search

import (
	"context"

	"github.com/kailas-cloud/vecshop/internal/domain"
	"github.com/kailas-cloud/vecshop/internal/domain/search/match"
)

// Ranker ranks stored products against a query vector.
type Ranker interface {
	Rank(ctx context.Context, vector domain.Vector, topN int, modality domain.Modality) ([]match.Match, error)
}

// Embedder vectorizes text and image queries.
type Embedder interface {
	domain.TextEmbedder
	domain.ImageEmbedder
}
