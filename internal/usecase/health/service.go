package health

import (
	"context"
	"sync"
	"time"

	"github.com/kailas-cloud/vecshop/internal/domain"
)

// Status represents the aggregated health status.
type Status string

const (
	// Healthy indicates all components are operational.
	Healthy Status = "ok"
	// Degraded indicates a dependency other than the store is failing.
	Degraded Status = "degraded"
	// Unhealthy indicates the vector store is unreachable.
	Unhealthy Status = "error"
)

// CheckResult represents an individual component health check outcome.
type CheckResult string

const (
	// CheckOK indicates a passing health check.
	CheckOK CheckResult = "ok"
	// CheckError indicates a failing health check.
	CheckError CheckResult = "error"
)

// Check names.
const (
	CheckDatabase   = "database"
	CheckEmbedding  = "embedding"
	CheckTextIndex  = "text_index"
	CheckImageIndex = "image_index"
)

// DefaultTimeout bounds each individual probe.
const DefaultTimeout = 2 * time.Second

// Report aggregates health check results.
type Report struct {
	Status Status
	Checks map[string]CheckResult
	// Products holds per-modality indexed product counts when an IndexCounter is set.
	Products map[domain.Modality]int
}

// Service coordinates health checks.
type Service struct {
	db        DBPinger
	embedding EmbeddingChecker
	indexes   IndexCounter
	timeout   time.Duration
}

// New creates a Service. embedding can be nil.
func New(db DBPinger, embedding EmbeddingChecker) *Service {
	return &Service{db: db, embedding: embedding, timeout: DefaultTimeout}
}

// WithIndexes adds index checks reporting product counts per modality.
func (s *Service) WithIndexes(c IndexCounter) *Service {
	s.indexes = c
	return s
}

// WithTimeout overrides the per-probe timeout.
func (s *Service) WithTimeout(d time.Duration) *Service {
	if d > 0 {
		s.timeout = d
	}
	return s
}

// Check runs all probes concurrently against their dependencies.
func (s *Service) Check(ctx context.Context) Report {
	var (
		mu       sync.Mutex
		wg       sync.WaitGroup
		checks   = make(map[string]CheckResult)
		products = make(map[domain.Modality]int)
	)

	probe := func(name string, fn func(ctx context.Context) error) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			pctx, cancel := context.WithTimeout(ctx, s.timeout)
			defer cancel()

			res := CheckOK
			if err := fn(pctx); err != nil {
				res = CheckError
			}
			mu.Lock()
			checks[name] = res
			mu.Unlock()
		}()
	}

	probe(CheckDatabase, s.db.Ping)
	if s.embedding != nil {
		probe(CheckEmbedding, s.embedding.HealthCheck)
	}
	if s.indexes != nil {
		for name, m := range map[string]domain.Modality{
			CheckTextIndex:  domain.ModalityText,
			CheckImageIndex: domain.ModalityImage,
		} {
			probe(name, func(ctx context.Context) error {
				n, err := s.indexes.Count(ctx, m)
				if err != nil {
					return err
				}
				mu.Lock()
				products[m] = n
				mu.Unlock()
				return nil
			})
		}
	}
	wg.Wait()

	report := Report{Status: Healthy, Checks: checks}
	if s.indexes != nil {
		report.Products = products
	}
	for name, v := range checks {
		if v != CheckError {
			continue
		}
		if name == CheckDatabase {
			report.Status = Unhealthy
			break
		}
		report.Status = Degraded
	}
	return report
}
