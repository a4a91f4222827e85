//go:build !cgo

package embedding

import (
	"context"
	"errors"
)

// ONNXEmbedder is unavailable without cgo.
type ONNXEmbedder struct{}

type ONNXConfig struct {
	ModelPath   string
	LibraryPath string
	Dimensions  int
	CacheSize   int
}

var errNoCgo = errors.New("local onnx embedding requires a cgo-enabled build")

func NewONNXEmbedder(cfg ONNXConfig) (*ONNXEmbedder, error) { return nil, errNoCgo }

func (e *ONNXEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	return nil, errNoCgo
}

func (e *ONNXEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	return nil, errNoCgo
}

func (e *ONNXEmbedder) Dimensions() int { return 0 }

func (e *ONNXEmbedder) Close() error { return nil }
