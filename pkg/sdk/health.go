package vecshop

import (
	"context"

	healthuc "github.com/kailas-cloud/vecshop/internal/usecase/health"
)

// HealthStatus represents the aggregated system health.
type HealthStatus struct {
	Status   string            // "ok", "degraded", "error"
	Checks   map[string]string // component -> "ok"/"error"
	Products map[string]int    // modality -> indexed products
}

// Health checks the store, the embedding providers and both product indexes.
func (c *Client) Health(ctx context.Context) HealthStatus {
	report := c.healthSvc.Check(ctx)
	checks := make(map[string]string, len(report.Checks))
	for k, v := range report.Checks {
		checks[k] = string(v)
	}
	products := make(map[string]int, len(report.Products))
	for m, n := range report.Products {
		products[string(m)] = n
	}
	return HealthStatus{
		Status:   string(report.Status),
		Checks:   checks,
		Products: products,
	}
}

// healthUseCase is the internal interface for health checks.
type healthUseCase interface {
	Check(ctx context.Context) healthuc.Report
}
