package vector

import (
	"context"
	"os"
	"path/filepath"
	"testing"
)

func TestMemoryIndex_AddSearch(t *testing.T) {
	idx, err := NewMemoryIndex(3, MetricCosine)
	if err != nil {
		t.Fatal(err)
	}
	defer idx.Close()
	ctx := context.Background()

	vecs := [][]float32{
		{1, 0, 0},
		{0.9, 0.1, 0},
		{0, 1, 0},
	}
	ids := []string{"a", "b", "c"}
	if err := idx.Add(ctx, ids, vecs); err != nil {
		t.Fatal(err)
	}
	if idx.Size() != 3 {
		t.Errorf("Size=%d", idx.Size())
	}

	results, err := idx.Search(ctx, []float32{1, 0, 0}, 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}
	if results[0].ID != "a" {
		t.Errorf("top result should be a, got %s", results[0].ID)
	}
}

func TestMemoryIndex_MetricSelectsScoring(t *testing.T) {
	ctx := context.Background()
	// Unnormalized vector: cosine rescales by the norms, inner product does not.
	vecs := [][]float32{{0.5, 0, 0}}
	query := []float32{1, 0, 0}

	cos, _ := NewMemoryIndex(3, MetricCosine)
	if err := cos.Add(ctx, []string{"a"}, vecs); err != nil {
		t.Fatal(err)
	}
	cosResults, err := cos.Search(ctx, query, 1)
	if err != nil {
		t.Fatal(err)
	}
	if got := cosResults[0].Score; got < 0.999 || got > 1.001 {
		t.Errorf("cosine score = %f, want 1.0", got)
	}

	ip, _ := NewMemoryIndex(3, MetricInnerProduct)
	if err := ip.Add(ctx, []string{"a"}, vecs); err != nil {
		t.Fatal(err)
	}
	ipResults, err := ip.Search(ctx, query, 1)
	if err != nil {
		t.Fatal(err)
	}
	if got := ipResults[0].Score; got < 0.499 || got > 0.501 {
		t.Errorf("inner product score = %f, want 0.5", got)
	}
}

func TestMemoryIndex_IdempotentAdd(t *testing.T) {
	idx, _ := NewMemoryIndex(2, MetricCosine)
	ctx := context.Background()
	if err := idx.Add(ctx, []string{"x"}, [][]float32{{1, 0}}); err != nil {
		t.Fatal(err)
	}
	// Same id, same vector: no duplicate stored.
	if err := idx.Add(ctx, []string{"x"}, [][]float32{{1, 0}}); err != nil {
		t.Fatal(err)
	}
	if idx.Size() != 1 {
		t.Errorf("Size=%d, want 1", idx.Size())
	}
	// Same id, different vector: stored vectors are immutable.
	if err := idx.Add(ctx, []string{"x"}, [][]float32{{0, 1}}); err == nil {
		t.Error("expected error for conflicting vector")
	}
	if !idx.Has("x") {
		t.Error("Has(x) should be true")
	}
	if idx.Has("y") {
		t.Error("Has(y) should be false")
	}
}

func TestMemoryIndex_DimensionMismatch(t *testing.T) {
	idx, _ := NewMemoryIndex(3, MetricCosine)
	ctx := context.Background()
	if err := idx.Add(ctx, []string{"a"}, [][]float32{{1, 0}}); err == nil {
		t.Error("expected dimension mismatch error on Add")
	}
	if _, err := idx.Search(ctx, []float32{1, 0}, 1); err == nil {
		t.Error("expected dimension mismatch error on Search")
	}
}

func TestMemoryIndex_SaveLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vectors.bin")
	idx, _ := NewMemoryIndex(2, MetricCosine)
	ctx := context.Background()
	_ = idx.Add(ctx, []string{"a", "b"}, [][]float32{{1, 0}, {0, 1}})
	if err := idx.Save(path); err != nil {
		t.Fatal(err)
	}

	loaded, _ := NewMemoryIndex(2, MetricCosine)
	if err := loaded.Load(path); err != nil {
		t.Fatal(err)
	}
	if loaded.Size() != 2 {
		t.Fatalf("loaded Size=%d, want 2", loaded.Size())
	}
	results, err := loaded.Search(ctx, []float32{1, 0}, 1)
	if err != nil {
		t.Fatal(err)
	}
	if results[0].ID != "a" {
		t.Errorf("top result=%s, want a", results[0].ID)
	}

	// Mismatched dimensionality is a configuration error.
	wrong, _ := NewMemoryIndex(3, MetricCosine)
	if err := wrong.Load(path); err == nil {
		t.Error("expected dimension mismatch on load")
	}
}

func TestMemoryIndex_LoadTruncatedSnapshot(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "vectors.bin")

	idx, _ := NewMemoryIndex(2, MetricCosine)
	if err := idx.Add(ctx, []string{"unit-with-a-long-id"}, [][]float32{{1, 0}}); err != nil {
		t.Fatal(err)
	}
	if err := idx.Save(path); err != nil {
		t.Fatal(err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, data[:len(data)-3], 0644); err != nil {
		t.Fatal(err)
	}

	fresh, _ := NewMemoryIndex(2, MetricCosine)
	if err := fresh.Load(path); err == nil {
		t.Error("expected error for truncated snapshot")
	}
}

func TestMemoryIndex_LoadMissingFile(t *testing.T) {
	idx, _ := NewMemoryIndex(2, MetricCosine)
	if err := idx.Load(filepath.Join(t.TempDir(), "absent.bin")); err != nil {
		t.Errorf("missing snapshot should not error: %v", err)
	}
}

func TestParseMetric(t *testing.T) {
	if _, err := ParseMetric("cosine"); err != nil {
		t.Error(err)
	}
	if _, err := ParseMetric("inner_product"); err != nil {
		t.Error(err)
	}
	if _, err := ParseMetric("euclidean"); err == nil {
		t.Error("expected error for unknown metric")
	}
}
