package catalog

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/kailas-cloud/vecshop/internal/db"
	"github.com/kailas-cloud/vecshop/internal/domain"
	domproduct "github.com/kailas-cloud/vecshop/internal/domain/product"
)

// mockStore implements the consumer interface for tests.
type mockStore struct {
	hsetMultiFn   func(ctx context.Context, items []db.HashSetItem) error
	createIndexFn func(ctx context.Context, def *db.IndexDefinition) error
	dropIndexFn   func(ctx context.Context, name string) error
	searchCountFn func(ctx context.Context, index string) (int, error)

	batches [][]db.HashSetItem
	created []*db.IndexDefinition
}

func (m *mockStore) HSetMulti(ctx context.Context, items []db.HashSetItem) error {
	m.batches = append(m.batches, items)
	if m.hsetMultiFn != nil {
		return m.hsetMultiFn(ctx, items)
	}
	return nil
}

func (m *mockStore) CreateIndex(ctx context.Context, def *db.IndexDefinition) error {
	m.created = append(m.created, def)
	if m.createIndexFn != nil {
		return m.createIndexFn(ctx, def)
	}
	return nil
}

func (m *mockStore) DropIndex(ctx context.Context, name string) error {
	if m.dropIndexFn != nil {
		return m.dropIndexFn(ctx, name)
	}
	return nil
}

func (m *mockStore) SearchCount(ctx context.Context, index string) (int, error) {
	if m.searchCountFn != nil {
		return m.searchCountFn(ctx, index)
	}
	return 0, nil
}

func newTestRepo() (*Repo, *mockStore) {
	ms := &mockStore{}
	return New(ms, "vecshop:", IndexConfig{TextDimensions: 384, ImageDimensions: 512, M: 16, EFConstruct: 200}), ms
}

func mustProduct(t *testing.T, id string) domproduct.Product {
	t.Helper()
	p, err := domproduct.New(id, "Product "+id, "Apparel", "Topwear", "Blue")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return p
}

func TestEnsureIndexes(t *testing.T) {
	repo, ms := newTestRepo()

	if err := repo.EnsureIndexes(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(ms.created) != 2 {
		t.Fatalf("expected 2 indexes, got %d", len(ms.created))
	}

	text, image := ms.created[0], ms.created[1]
	if text.Name != "vecshop:products:text:idx" || image.Name != "vecshop:products:image:idx" {
		t.Errorf("unexpected names: %s, %s", text.Name, image.Name)
	}
	if text.Prefixes[0] != "vecshop:product:" {
		t.Errorf("unexpected prefix: %v", text.Prefixes)
	}
	tv, iv := text.VectorFields()[0], image.VectorFields()[0]
	if tv.Name != "text_embedding" || tv.VectorDim != 384 || tv.VectorDistance != db.DistanceL2 {
		t.Errorf("unexpected text vector field: %+v", tv)
	}
	if iv.Name != "image_embedding" || iv.VectorDim != 512 || iv.VectorAlgo != db.VectorHNSW {
		t.Errorf("unexpected image vector field: %+v", iv)
	}
	if len(text.Fields) != 1 || len(image.Fields) != 1 {
		t.Errorf("indexes must hold only their vector field: %d, %d", len(text.Fields), len(image.Fields))
	}
}

func TestEnsureIndexes_ExistingIsOK(t *testing.T) {
	repo, ms := newTestRepo()
	ms.createIndexFn = func(context.Context, *db.IndexDefinition) error { return db.ErrIndexExists }

	if err := repo.EnsureIndexes(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestEnsureIndexes_Error(t *testing.T) {
	repo, ms := newTestRepo()
	ms.createIndexFn = func(context.Context, *db.IndexDefinition) error { return errors.New("boom") }

	if err := repo.EnsureIndexes(context.Background()); err == nil {
		t.Fatal("expected error")
	}
}

func TestDropIndexes_MissingIsOK(t *testing.T) {
	repo, ms := newTestRepo()
	var dropped []string
	ms.dropIndexFn = func(_ context.Context, name string) error {
		dropped = append(dropped, name)
		return db.ErrIndexNotFound
	}

	if err := repo.DropIndexes(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(dropped) != 2 {
		t.Errorf("expected 2 drops, got %v", dropped)
	}
}

func TestUpsert_Batches(t *testing.T) {
	repo, ms := newTestRepo()

	products := make([]domproduct.Product, 250)
	for i := range products {
		products[i] = mustProduct(t, fmt.Sprintf("p%d", i))
	}

	if err := repo.Upsert(context.Background(), products); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(ms.batches) != 3 {
		t.Fatalf("expected 3 batches, got %d", len(ms.batches))
	}
	if len(ms.batches[0]) != 100 || len(ms.batches[2]) != 50 {
		t.Errorf("unexpected batch sizes: %d, %d", len(ms.batches[0]), len(ms.batches[2]))
	}
}

func TestUpsert_FieldsAndNullVectors(t *testing.T) {
	repo, ms := newTestRepo()

	withBoth := mustProduct(t, "1").
		WithTextEmbedding(domain.Vector{0.1, 0.2}).
		WithImageEmbedding(domain.Vector{0.3})
	textOnly := mustProduct(t, "2").WithTextEmbedding(domain.Vector{0.5})

	if err := repo.Upsert(context.Background(), []domproduct.Product{withBoth, textOnly}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	items := ms.batches[0]
	if items[0].Key != "vecshop:product:1" {
		t.Errorf("unexpected key: %s", items[0].Key)
	}
	if items[0].Fields["text_embedding"] != db.EncodeVector([]float32{0.1, 0.2}) {
		t.Error("text embedding not encoded")
	}
	if _, ok := items[0].Fields["image_embedding"]; !ok {
		t.Error("expected image embedding")
	}
	if _, ok := items[1].Fields["image_embedding"]; ok {
		t.Error("product without image must not carry an image field")
	}
	if items[1].Fields["display_name"] != "Product 2" {
		t.Errorf("unexpected display name: %q", items[1].Fields["display_name"])
	}
}

func TestUpsert_ClearsAbsentEmbeddings(t *testing.T) {
	repo, ms := newTestRepo()

	withBoth := mustProduct(t, "1").
		WithTextEmbedding(domain.Vector{0.1}).
		WithImageEmbedding(domain.Vector{0.3})
	textOnly := mustProduct(t, "2").WithTextEmbedding(domain.Vector{0.5})
	bare := mustProduct(t, "3")

	if err := repo.Upsert(context.Background(), []domproduct.Product{withBoth, textOnly, bare}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	items := ms.batches[0]
	if len(items[0].Clear) != 0 {
		t.Errorf("nothing to clear for a full product, got %v", items[0].Clear)
	}
	if len(items[1].Clear) != 1 || items[1].Clear[0] != "image_embedding" {
		t.Errorf("expected image_embedding cleared, got %v", items[1].Clear)
	}
	if len(items[2].Clear) != 2 {
		t.Errorf("expected both vector fields cleared, got %v", items[2].Clear)
	}
}

func TestUpsert_Error(t *testing.T) {
	repo, ms := newTestRepo()
	ms.hsetMultiFn = func(context.Context, []db.HashSetItem) error { return errors.New("OOM") }

	if err := repo.Upsert(context.Background(), []domproduct.Product{mustProduct(t, "1")}); err == nil {
		t.Fatal("expected error")
	}
}

func TestCount(t *testing.T) {
	repo, ms := newTestRepo()
	ms.searchCountFn = func(_ context.Context, index string) (int, error) {
		if index != "vecshop:products:image:idx" {
			t.Errorf("unexpected index: %s", index)
		}
		return 42, nil
	}

	n, err := repo.Count(context.Background(), domain.ModalityImage)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n != 42 {
		t.Errorf("expected 42, got %d", n)
	}
}
