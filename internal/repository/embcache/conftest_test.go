package embcache

import (
	"context"
	"testing"

	"github.com/kailas-cloud/vecshop/internal/db"
	"github.com/kailas-cloud/vecshop/internal/domain"
)

type mockEmbedder struct {
	vec   domain.Vector
	err   error
	calls int
}

func (m *mockEmbedder) EmbedText(_ context.Context, _ string) (domain.Vector, error) {
	m.calls++
	return m.vec, m.err
}

// mockHashStore implements the consumer interface for tests.
type mockHashStore struct {
	getFn func(ctx context.Context, key string) (map[string]string, error)
	setFn func(ctx context.Context, key string, fields map[string]string) error
}

func (m *mockHashStore) HGetAll(ctx context.Context, key string) (map[string]string, error) {
	if m.getFn != nil {
		return m.getFn(ctx, key)
	}
	return nil, db.ErrKeyNotFound
}

func (m *mockHashStore) HSet(ctx context.Context, key string, fields map[string]string) error {
	if m.setFn != nil {
		return m.setFn(ctx, key, fields)
	}
	return nil
}

func newTestCachedEmbedder(t *testing.T, inner *mockEmbedder) (*CachedEmbedder, *mockHashStore) {
	t.Helper()
	ms := &mockHashStore{}
	return New(inner, ms, "vecshop:", "service", nil, nil), ms
}
