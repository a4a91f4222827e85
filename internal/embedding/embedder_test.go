package embedding

import (
	"context"
	"math"
	"testing"
)

func TestMockEmbedderDeterministic(t *testing.T) {
	e := NewMockEmbedder(128)
	ctx := context.Background()

	v1, err := e.Embed(ctx, "quarterly revenue")
	if err != nil {
		t.Fatalf("Embed failed: %v", err)
	}
	v2, err := e.Embed(ctx, "quarterly revenue")
	if err != nil {
		t.Fatalf("Embed failed: %v", err)
	}
	if len(v1) != 128 {
		t.Fatalf("expected 128 dimensions, got %d", len(v1))
	}
	for i := range v1 {
		if v1[i] != v2[i] {
			t.Fatalf("embeddings differ at %d: %v vs %v", i, v1[i], v2[i])
		}
	}

	v3, _ := e.Embed(ctx, "headcount by region")
	same := true
	for i := range v1 {
		if v1[i] != v3[i] {
			same = false
			break
		}
	}
	if same {
		t.Error("different texts produced identical embeddings")
	}
}

func TestMockEmbedderNormalized(t *testing.T) {
	e := NewMockEmbedder(64)
	v, err := e.Embed(context.Background(), "some text")
	if err != nil {
		t.Fatalf("Embed failed: %v", err)
	}
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	if math.Abs(math.Sqrt(sum)-1.0) > 1e-5 {
		t.Errorf("embedding norm = %f, want 1.0", math.Sqrt(sum))
	}
}

func TestEmbeddingCache(t *testing.T) {
	c := NewEmbeddingCache(2)

	c.Set("a", []float32{1})
	c.Set("b", []float32{2})

	if v, ok := c.Get("a"); !ok || v[0] != 1 {
		t.Error("expected cache hit for a")
	}

	// a was touched, so adding c should evict b.
	c.Set("c", []float32{3})
	if _, ok := c.Get("b"); ok {
		t.Error("expected b to be evicted")
	}
	if _, ok := c.Get("a"); !ok {
		t.Error("expected a to survive eviction")
	}
	if _, ok := c.Get("c"); !ok {
		t.Error("expected c to be present")
	}
	if c.Len() != 2 {
		t.Errorf("cache len = %d, want 2", c.Len())
	}
}

func TestSimpleTokenizer(t *testing.T) {
	tok := &SimpleTokenizer{}
	ids, mask, types := tok.Tokenize("revenue grew twelve percent", 16)

	if len(ids) != 16 || len(mask) != 16 || len(types) != 16 {
		t.Fatalf("expected 16-length outputs, got %d/%d/%d", len(ids), len(mask), len(types))
	}
	if ids[0] != 101 {
		t.Errorf("expected CLS token at position 0, got %d", ids[0])
	}
	if ids[5] != 102 {
		t.Errorf("expected SEP token after 4 words, got %d", ids[5])
	}
	var attended int
	for _, m := range mask {
		if m == 1 {
			attended++
		}
	}
	if attended != 6 {
		t.Errorf("expected 6 attended positions, got %d", attended)
	}
}
