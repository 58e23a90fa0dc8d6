package health

import (
	"context"

	"github.com/kailas-cloud/vecshop/internal/domain"
)

// DBPinger checks vector store availability.
type DBPinger interface {
	Ping(ctx context.Context) error
}

// EmbeddingChecker checks embedding provider availability.
type EmbeddingChecker interface {
	HealthCheck(ctx context.Context) error
}

// IndexCounter reports how many products a modality's index covers.
type IndexCounter interface {
	Count(ctx context.Context, m domain.Modality) (int, error)
}
