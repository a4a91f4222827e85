package models

import "errors"

// Failure taxonomy. Per-document failures (format, corruption) surface to the
// caller; per-unit failures (vision, embedding) degrade and are absorbed by
// the pipeline; ErrIndexUnavailable is fatal to the query that hits it.
var (
	// ErrUnsupportedFormat means the uploaded bytes are not a recognized deck format.
	ErrUnsupportedFormat = errors.New("unsupported document format")
	// ErrCorruptDocument means structural parsing of the container failed.
	ErrCorruptDocument = errors.New("corrupt document")
	// ErrVisionService means the vision describer failed after retry exhaustion.
	ErrVisionService = errors.New("vision service error")
	// ErrEmbeddingService means the embedding call failed after retry exhaustion.
	ErrEmbeddingService = errors.New("embedding service error")
	// ErrIndexUnavailable means the vector index itself cannot be read.
	ErrIndexUnavailable = errors.New("vector index unavailable")
)
