// Package product ranks stored products against a query vector.
package product

import (
	"context"
	"fmt"
	"strings"

	"github.com/kailas-cloud/vecshop/internal/db"
	"github.com/kailas-cloud/vecshop/internal/domain"
	domproduct "github.com/kailas-cloud/vecshop/internal/domain/product"
	"github.com/kailas-cloud/vecshop/internal/domain/search/match"
)

// store is the consumer interface for ranking (ISP).
type store interface {
	SearchKNN(ctx context.Context, q *db.KNNQuery) (*db.SearchResult, error)
}

// Repo implements usecase/search.Ranker.
type Repo struct {
	store  store
	prefix string
}

// New creates a ranking repository over products stored under prefix.
func New(s store, prefix string) *Repo {
	return &Repo{store: s, prefix: prefix}
}

// Rank returns up to topN products nearest to vector in the modality's
// collection, most similar first. topN is validated by the caller.
func (r *Repo) Rank(
	ctx context.Context, vector domain.Vector, topN int, modality domain.Modality,
) ([]match.Match, error) {
	if err := modality.Validate(); err != nil {
		return nil, err
	}

	q := &db.KNNQuery{
		IndexName:    domproduct.IndexName(r.prefix, modality),
		VectorField:  modality.VectorField(),
		Vector:       vector,
		K:            topN,
		ReturnFields: domproduct.MetadataFields,
		Metric:       db.DistanceL2,
	}

	sr, err := r.store.SearchKNN(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("rank %s: %w: %w", modality, domain.ErrStoreQueryFailed, err)
	}

	return r.toMatches(sr), nil
}

// toMatches converts store entries to matches, keeping store order. Entries
// without a distance and repeated product ids are dropped.
func (r *Repo) toMatches(sr *db.SearchResult) []match.Match {
	if sr == nil || len(sr.Entries) == 0 {
		return []match.Match{}
	}

	keyPrefix := domproduct.KeyPrefix(r.prefix)
	seen := make(map[string]bool, len(sr.Entries))
	out := make([]match.Match, 0, len(sr.Entries))

	for _, e := range sr.Entries {
		if e.Distance == nil {
			continue
		}
		id := e.Fields[domproduct.FieldID]
		if id == "" {
			id = strings.TrimPrefix(e.Key, keyPrefix)
		}
		if seen[id] {
			continue
		}
		seen[id] = true

		out = append(out, match.FromDistance(
			id,
			e.Fields[domproduct.FieldDisplayName],
			e.Fields[domproduct.FieldMasterCategory],
			e.Fields[domproduct.FieldSubCategory],
			e.Fields[domproduct.FieldBaseColour],
			*e.Distance,
		))
	}
	return out
}
