// Package catalog writes products and bootstraps their vector indexes.
package catalog

import (
	"context"
	"errors"
	"fmt"

	"github.com/kailas-cloud/vecshop/internal/db"
	"github.com/kailas-cloud/vecshop/internal/domain"
	domproduct "github.com/kailas-cloud/vecshop/internal/domain/product"
)

// DefaultBatchSize is the number of products written per round-trip.
const DefaultBatchSize = 100

// store is the consumer interface for catalog writes (ISP).
type store interface {
	HSetMulti(ctx context.Context, items []db.HashSetItem) error
	CreateIndex(ctx context.Context, def *db.IndexDefinition) error
	DropIndex(ctx context.Context, name string) error
	SearchCount(ctx context.Context, index string) (int, error)
}

// IndexConfig holds the vector index parameters.
type IndexConfig struct {
	TextDimensions  int
	ImageDimensions int
	M               int
	EFConstruct     int
}

// Repo implements usecase/ingest.Catalog.
type Repo struct {
	store     store
	prefix    string
	index     IndexConfig
	batchSize int
}

// New creates a catalog repository writing under prefix.
func New(s store, prefix string, index IndexConfig) *Repo {
	if index.ImageDimensions <= 0 {
		index.ImageDimensions = domain.ImageDimensions
	}
	return &Repo{store: s, prefix: prefix, index: index, batchSize: DefaultBatchSize}
}

// WithBatchSize overrides the write batch size.
func (r *Repo) WithBatchSize(n int) *Repo {
	if n > 0 {
		r.batchSize = n
	}
	return r
}

// EnsureIndexes creates the text and image indexes when missing.
func (r *Repo) EnsureIndexes(ctx context.Context) error {
	for _, m := range []domain.Modality{domain.ModalityText, domain.ModalityImage} {
		def, err := r.indexDefinition(m)
		if err != nil {
			return err
		}
		if err := r.store.CreateIndex(ctx, def); err != nil && !errors.Is(err, db.ErrIndexExists) {
			return fmt.Errorf("create %s index: %w", m, err)
		}
	}
	return nil
}

// DropIndexes removes both indexes. Stored products are kept.
func (r *Repo) DropIndexes(ctx context.Context) error {
	for _, m := range []domain.Modality{domain.ModalityText, domain.ModalityImage} {
		err := r.store.DropIndex(ctx, domproduct.IndexName(r.prefix, m))
		if err != nil && !errors.Is(err, db.ErrIndexNotFound) {
			return fmt.Errorf("drop %s index: %w", m, err)
		}
	}
	return nil
}

// indexDefinition holds only the modality's vector field, so a product lacking
// that embedding never counts as indexed.
func (r *Repo) indexDefinition(m domain.Modality) (*db.IndexDefinition, error) {
	dim := r.index.TextDimensions
	if m == domain.ModalityImage {
		dim = r.index.ImageDimensions
	}
	def, err := db.NewIndex(domproduct.IndexName(r.prefix, m)).
		Prefix(domproduct.KeyPrefix(r.prefix)).
		VectorHNSW(m.VectorField(), dim, db.DistanceL2, r.index.M, r.index.EFConstruct).
		Build()
	if err != nil {
		return nil, fmt.Errorf("build %s index: %w", m, err)
	}
	return def, nil
}

// Upsert stores products in batches. An absent embedding clears the stored
// vector field, so a re-ingested product leaves that modality's index.
func (r *Repo) Upsert(ctx context.Context, products []domproduct.Product) error {
	for start := 0; start < len(products); start += r.batchSize {
		end := min(start+r.batchSize, len(products))

		items := make([]db.HashSetItem, 0, end-start)
		for i := start; i < end; i++ {
			items = append(items, r.toHash(&products[i]))
		}
		if err := r.store.HSetMulti(ctx, items); err != nil {
			return fmt.Errorf("upsert products %d-%d: %w", start, end-1, err)
		}
	}
	return nil
}

func (r *Repo) toHash(p *domproduct.Product) db.HashSetItem {
	fields := map[string]string{
		domproduct.FieldID:             p.ID(),
		domproduct.FieldDisplayName:    p.DisplayName(),
		domproduct.FieldMasterCategory: p.MasterCategory(),
		domproduct.FieldSubCategory:    p.SubCategory(),
		domproduct.FieldBaseColour:     p.BaseColour(),
	}
	item := db.HashSetItem{Key: domproduct.Key(r.prefix, p.ID()), Fields: fields}
	for _, m := range []domain.Modality{domain.ModalityText, domain.ModalityImage} {
		if v := p.Embedding(m); len(v) > 0 {
			fields[m.VectorField()] = db.EncodeVector(v)
		} else {
			item.Clear = append(item.Clear, m.VectorField())
		}
	}
	return item
}

// Count returns the number of products holding the modality's embedding.
func (r *Repo) Count(ctx context.Context, m domain.Modality) (int, error) {
	n, err := r.store.SearchCount(ctx, domproduct.IndexName(r.prefix, m))
	if err != nil {
		return 0, fmt.Errorf("count %s: %w", m, err)
	}
	return n, nil
}
