// Package embedding provides text embedding and payload canonicalization.
package embedding

import "context"

// Embedder produces vector embeddings for text. Implementations must return
// L2-normalized vectors of a fixed dimensionality, and the same text must
// always map to the same vector (the index's idempotence depends on it).
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	Dimensions() int
	Close() error
}
