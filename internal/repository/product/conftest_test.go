package product

import (
	"context"
	"testing"

	"github.com/kailas-cloud/vecshop/internal/db"
)

// mockStore implements the consumer interface for tests.
type mockStore struct {
	searchKNNFn func(ctx context.Context, q *db.KNNQuery) (*db.SearchResult, error)
	calls       int
}

func (m *mockStore) SearchKNN(ctx context.Context, q *db.KNNQuery) (*db.SearchResult, error) {
	m.calls++
	if m.searchKNNFn != nil {
		return m.searchKNNFn(ctx, q)
	}
	return &db.SearchResult{}, nil
}

func newTestRepo(t *testing.T) (*Repo, *mockStore) {
	t.Helper()
	ms := &mockStore{}
	return New(ms, "vecshop:"), ms
}

func dist(d float64) *float64 { return &d }

func entry(id string, d *float64) db.SearchEntry {
	return db.SearchEntry{
		Key:      "vecshop:product:" + id,
		Distance: d,
		Fields: map[string]string{
			"id":              id,
			"display_name":    "Product " + id,
			"master_category": "Footwear",
			"sub_category":    "Shoes",
			"base_colour":     "Red",
		},
	}
}
