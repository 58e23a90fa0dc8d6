package sqlite

import (
	"context"
	"math"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kailas-cloud/vecshop/internal/db"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(filepath.Join(t.TempDir(), "vecshop.db"))
	require.NoError(t, err)
	t.Cleanup(s.Close)
	return s
}

func productIndex() *db.IndexDefinition {
	return db.NewIndex("vecshop:products:text:idx").
		Prefix("vecshop:product:").
		VectorFlat("text_embedding", 2, db.DistanceL2).
		MustBuild()
}

func putProduct(t *testing.T, s *Store, id, name string, vec []float32) {
	t.Helper()
	err := s.HSet(context.Background(), "vecshop:product:"+id, map[string]string{
		"id":             id,
		"display_name":   name,
		"text_embedding": db.EncodeVector(vec),
	})
	require.NoError(t, err)
}

func TestHashRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.HSet(ctx, "k", map[string]string{"a": "1", "b": "2"}))
	require.NoError(t, s.HSet(ctx, "k", map[string]string{"b": "3"}))

	fields, err := s.HGetAll(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"a": "1", "b": "3"}, fields)

	exists, err := s.Exists(ctx, "k")
	require.NoError(t, err)
	assert.True(t, exists)

	require.NoError(t, s.Del(ctx, "k"))
	exists, err = s.Exists(ctx, "k")
	require.NoError(t, err)
	assert.False(t, exists)

	_, err = s.HGetAll(ctx, "k")
	assert.ErrorIs(t, err, db.ErrKeyNotFound)
}

func TestIndexLifecycle(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	ok, err := s.IndexExists(ctx, "vecshop:products:text:idx")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.CreateIndex(ctx, productIndex()))
	assert.ErrorIs(t, s.CreateIndex(ctx, productIndex()), db.ErrIndexExists)

	ok, err = s.IndexExists(ctx, "vecshop:products:text:idx")
	require.NoError(t, err)
	assert.True(t, ok)

	require.NoError(t, s.DropIndex(ctx, "vecshop:products:text:idx"))
	assert.ErrorIs(t, s.DropIndex(ctx, "vecshop:products:text:idx"), db.ErrIndexNotFound)
}

func TestIndexSurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vecshop.db")
	s, err := New(path)
	require.NoError(t, err)
	require.NoError(t, s.CreateIndex(context.Background(), productIndex()))
	putProduct(t, s, "1", "Red Shoes", []float32{0, 0})
	s.Close()

	s, err = New(path)
	require.NoError(t, err)
	defer s.Close()

	res, err := s.SearchKNN(context.Background(), &db.KNNQuery{
		IndexName: "vecshop:products:text:idx", VectorField: "text_embedding",
		Vector: []float32{0, 0}, K: 1,
	})
	require.NoError(t, err)
	require.Len(t, res.Entries, 1)
	assert.Equal(t, "vecshop:product:1", res.Entries[0].Key)
}

func TestSearchKNN_OrderAndDistance(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.CreateIndex(ctx, productIndex()))

	putProduct(t, s, "far", "Far", []float32{3, 4})
	putProduct(t, s, "near", "Near", []float32{0.3, 0.4})
	putProduct(t, s, "mid", "Mid", []float32{0.6, 0.8})

	res, err := s.SearchKNN(ctx, &db.KNNQuery{
		IndexName:    "vecshop:products:text:idx",
		VectorField:  "text_embedding",
		Vector:       []float32{0, 0},
		K:            2,
		ReturnFields: []string{"id", "display_name"},
		Metric:       db.DistanceL2,
	})
	require.NoError(t, err)
	require.Len(t, res.Entries, 2)

	assert.Equal(t, "vecshop:product:near", res.Entries[0].Key)
	assert.InDelta(t, 0.5, *res.Entries[0].Distance, 1e-5)
	assert.Equal(t, "vecshop:product:mid", res.Entries[1].Key)
	assert.InDelta(t, 1.0, *res.Entries[1].Distance, 1e-5)

	assert.Equal(t, map[string]string{"id": "near", "display_name": "Near"}, res.Entries[0].Fields)
}

func TestSearchKNN_BackfillsExistingDocuments(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	putProduct(t, s, "1", "Early", []float32{1, 0})
	require.NoError(t, s.HSet(ctx, "other:1", map[string]string{
		"text_embedding": db.EncodeVector([]float32{1, 0}),
	}))
	require.NoError(t, s.CreateIndex(ctx, productIndex()))

	res, err := s.SearchKNN(ctx, &db.KNNQuery{
		IndexName: "vecshop:products:text:idx", VectorField: "text_embedding",
		Vector: []float32{1, 0}, K: 10,
	})
	require.NoError(t, err)
	require.Len(t, res.Entries, 1)
	assert.Equal(t, "vecshop:product:1", res.Entries[0].Key)
}

func TestSearchKNN_SkipsWrongDimension(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.CreateIndex(ctx, productIndex()))

	putProduct(t, s, "ok", "Ok", []float32{1, 1})
	putProduct(t, s, "bad", "Bad", []float32{1, 1, 1})

	res, err := s.SearchKNN(ctx, &db.KNNQuery{
		IndexName: "vecshop:products:text:idx", VectorField: "text_embedding",
		Vector: []float32{1, 1}, K: 10,
	})
	require.NoError(t, err)
	require.Len(t, res.Entries, 1)
	assert.Equal(t, "vecshop:product:ok", res.Entries[0].Key)

	count, err := s.SearchCount(ctx, "vecshop:products:text:idx")
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestSearchKNN_DeletedDocumentDisappears(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.CreateIndex(ctx, productIndex()))

	putProduct(t, s, "1", "One", []float32{1, 1})
	require.NoError(t, s.Del(ctx, "vecshop:product:1"))

	res, err := s.SearchKNN(ctx, &db.KNNQuery{
		IndexName: "vecshop:products:text:idx", VectorField: "text_embedding",
		Vector: []float32{1, 1}, K: 10,
	})
	require.NoError(t, err)
	assert.Empty(t, res.Entries)
}

func TestSearchKNN_Cosine(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	def := db.NewIndex("cos").
		Prefix("c:").
		VectorFlat("v", 2, db.DistanceCosine).
		MustBuild()
	require.NoError(t, s.CreateIndex(ctx, def))
	require.NoError(t, s.HSet(ctx, "c:1", map[string]string{"v": db.EncodeVector([]float32{10, 0})}))

	res, err := s.SearchKNN(ctx, &db.KNNQuery{
		IndexName: "cos", VectorField: "v", Vector: []float32{1, 0}, K: 1, Metric: db.DistanceCosine,
	})
	require.NoError(t, err)
	require.Len(t, res.Entries, 1)
	assert.Less(t, math.Abs(*res.Entries[0].Distance), 1e-5)
}

func TestSearchKNN_Errors(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.SearchKNN(ctx, &db.KNNQuery{IndexName: "missing", VectorField: "v", Vector: []float32{1}, K: 1})
	assert.ErrorIs(t, err, db.ErrIndexNotFound)

	_, err = s.SearchKNN(ctx, &db.KNNQuery{IndexName: "missing", VectorField: "v", Vector: []float32{1}})
	assert.Error(t, err)

	require.NoError(t, s.CreateIndex(ctx, productIndex()))
	_, err = s.SearchKNN(ctx, &db.KNNQuery{
		IndexName: "vecshop:products:text:idx", VectorField: "image_embedding", Vector: []float32{1, 1}, K: 1,
	})
	var dbErr *db.Error
	assert.ErrorAs(t, err, &dbErr)
}

func TestSearchCount_MissingIndex(t *testing.T) {
	s := newTestStore(t)
	_, err := s.SearchCount(context.Background(), "missing")
	assert.ErrorIs(t, err, db.ErrIndexNotFound)
}

func TestHSetMulti(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.CreateIndex(ctx, productIndex()))

	err := s.HSetMulti(ctx, []db.HashSetItem{
		{Key: "vecshop:product:1", Fields: map[string]string{"text_embedding": db.EncodeVector([]float32{1, 0})}},
		{Key: "vecshop:product:2", Fields: map[string]string{"text_embedding": db.EncodeVector([]float32{0, 1})}},
	})
	require.NoError(t, err)

	count, err := s.SearchCount(ctx, "vecshop:products:text:idx")
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

func TestSearchCount_DocumentsWithoutVectorAreNotCounted(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.CreateIndex(ctx, productIndex()))

	putProduct(t, s, "1", "One", []float32{1, 0})
	require.NoError(t, s.HSet(ctx, "vecshop:product:2", map[string]string{"id": "2", "display_name": "Two"}))

	count, err := s.SearchCount(ctx, "vecshop:products:text:idx")
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestHSetMulti_ClearRemovesVector(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.CreateIndex(ctx, productIndex()))
	putProduct(t, s, "1", "One", []float32{1, 0})

	err := s.HSetMulti(ctx, []db.HashSetItem{{
		Key:    "vecshop:product:1",
		Fields: map[string]string{"display_name": "One v2"},
		Clear:  []string{"text_embedding"},
	}})
	require.NoError(t, err)

	fields, err := s.HGetAll(ctx, "vecshop:product:1")
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"id": "1", "display_name": "One v2"}, fields)

	res, err := s.SearchKNN(ctx, &db.KNNQuery{
		IndexName: "vecshop:products:text:idx", VectorField: "text_embedding",
		Vector: []float32{1, 0}, K: 10,
	})
	require.NoError(t, err)
	assert.Empty(t, res.Entries)

	count, err := s.SearchCount(ctx, "vecshop:products:text:idx")
	require.NoError(t, err)
	assert.Equal(t, 0, count)
}

func TestHSetMulti_SetWinsOverClear(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.CreateIndex(ctx, productIndex()))

	vec := db.EncodeVector([]float32{0, 1})
	err := s.HSetMulti(ctx, []db.HashSetItem{{
		Key:    "vecshop:product:1",
		Fields: map[string]string{"text_embedding": vec},
		Clear:  []string{"text_embedding"},
	}})
	require.NoError(t, err)

	count, err := s.SearchCount(ctx, "vecshop:products:text:idx")
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestPingAndWaitForReady(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.Ping(context.Background()))
	require.NoError(t, s.WaitForReady(context.Background(), time.Second))
}
