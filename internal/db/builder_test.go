package db

import (
	"strings"
	"testing"
)

func TestIndexBuilder_ProductIndex(t *testing.T) {
	idx := NewIndex("vecshop:products:text:idx").
		Prefix("vecshop:product:").
		Tag("master_category").
		VectorHNSW("text_embedding", 384, DistanceL2, 16, 200).
		MustBuild()

	if idx.StorageType != StorageHash {
		t.Errorf("storage = %q, want HASH", idx.StorageType)
	}
	if len(idx.Fields) != 2 {
		t.Fatalf("fields count = %d, want 2", len(idx.Fields))
	}
	vf := idx.VectorFields()
	if len(vf) != 1 {
		t.Fatalf("vector fields = %d, want 1", len(vf))
	}
	f := vf[0]
	if f.Name != "text_embedding" || f.VectorDim != 384 || f.VectorDistance != DistanceL2 {
		t.Errorf("unexpected vector field %+v", f)
	}
	if f.VectorM != 16 || f.VectorEFConstruct != 200 {
		t.Errorf("hnsw params = %d/%d, want 16/200", f.VectorM, f.VectorEFConstruct)
	}
}

func TestIndexBuilder_VectorFlat(t *testing.T) {
	idx := NewIndex("img").VectorFlat("image_embedding", 512, DistanceL2).MustBuild()

	if idx.Fields[0].VectorAlgo != VectorFlat {
		t.Errorf("algo = %q, want FLAT", idx.Fields[0].VectorAlgo)
	}
}

func TestIndexBuilder_Errors(t *testing.T) {
	tests := []struct {
		name    string
		builder *IndexBuilder
		wantErr string
	}{
		{"empty name", NewIndex("").Tag("a"), "index name is required"},
		{"bad name", NewIndex("has space").Tag("a"), "invalid characters"},
		{"no fields", NewIndex("idx"), "at least one field"},
		{"duplicate", NewIndex("idx").Tag("a").Tag("a"), "duplicate field name"},
		{"zero dim", NewIndex("idx").VectorHNSW("v", 0, DistanceL2, 0, 0), "positive DIM"},
		{"bad field", NewIndex("idx").Tag("a b"), "invalid characters"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := tc.builder.Build()
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tc.wantErr) {
				t.Errorf("error %q does not contain %q", err, tc.wantErr)
			}
		})
	}
}

func TestIndexBuilder_MustBuildPanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic")
		}
	}()
	NewIndex("").MustBuild()
}

func TestIndexDefinition_String(t *testing.T) {
	idx := NewIndex("idx").Prefix("p:").Tag("c").VectorHNSW("v", 4, DistanceL2, 0, 0).MustBuild()
	want := "FT.CREATE idx ON HASH PREFIX 1 p: SCHEMA c TAG v VECTOR HNSW DIM 4"
	if got := idx.String(); got != want {
		t.Errorf("String() = %q, want %q", got, want)
	}
}

func TestIsValidIdentifier(t *testing.T) {
	for _, s := range []string{"abc", "a:b-c_1"} {
		if !IsValidIdentifier(s) {
			t.Errorf("%q should be valid", s)
		}
	}
	for _, s := range []string{"", "a b", "a.b", "ключ"} {
		if IsValidIdentifier(s) {
			t.Errorf("%q should be invalid", s)
		}
	}
}

func TestVectorRoundTrip(t *testing.T) {
	in := []float32{0.5, -1.25, 3}
	out, err := DecodeVector(EncodeVector(in))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for i := range in {
		if in[i] != out[i] {
			t.Fatalf("component %d: %v != %v", i, out[i], in[i])
		}
	}
	if _, err := DecodeVector("abc"); err == nil {
		t.Fatal("expected error for truncated blob")
	}
}
