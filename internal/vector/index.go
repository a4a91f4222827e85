// Package vector provides vector index and similarity search.
package vector

import (
	"context"
	"fmt"
)

// Metric selects the similarity function for search.
type Metric string

const (
	// MetricCosine scores by cosine similarity (dot product of unit vectors).
	MetricCosine Metric = "cosine"
	// MetricInnerProduct scores by raw inner product.
	MetricInnerProduct Metric = "inner_product"
)

// ParseMetric validates a metric name from configuration.
func ParseMetric(s string) (Metric, error) {
	switch Metric(s) {
	case MetricCosine, MetricInnerProduct:
		return Metric(s), nil
	default:
		return "", fmt.Errorf("unknown similarity metric %q", s)
	}
}

// Index defines vector storage and k-nearest-neighbor search. Writes are
// append-only and per-unit atomic; an existing (id, vector) pair is never
// mutated in place.
type Index interface {
	Add(ctx context.Context, ids []string, vectors [][]float32) error
	Search(ctx context.Context, query []float32, k int) ([]*Result, error)
	Has(id string) bool
	Save(path string) error
	Load(path string) error
	Size() int
	Close() error
}

// Result is a single vector search hit (ID is a content unit ID).
type Result struct {
	ID    string
	Score float64
}
