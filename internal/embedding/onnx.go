//go:build cgo

package embedding

import (
	"context"
	"fmt"
	"sync"

	ort "github.com/yalue/onnxruntime_go"

	"github.com/deckardhq/deckard/pkg/utils"
)

const onnxMaxTokens = 256

// ONNXEmbedder runs a local sentence-transformer ONNX model. It is safe for
// concurrent use; session runs are serialized by an internal mutex because the
// tensors are pre-allocated.
type ONNXEmbedder struct {
	session       *ort.AdvancedSession
	inputIDs      *ort.Tensor[int64]
	attentionMask *ort.Tensor[int64]
	tokenTypeIDs  *ort.Tensor[int64]
	output        *ort.Tensor[float32]
	tokenizer     Tokenizer
	dims          int
	cache         *EmbeddingCache
	mu            sync.Mutex
}

// ONNXConfig configures a local ONNX embedder.
type ONNXConfig struct {
	ModelPath   string
	LibraryPath string
	Dimensions  int
	CacheSize   int
}

// NewONNXEmbedder initializes the runtime and loads the model.
func NewONNXEmbedder(cfg ONNXConfig) (*ONNXEmbedder, error) {
	if cfg.LibraryPath != "" {
		ort.SetSharedLibraryPath(cfg.LibraryPath)
	}
	if !ort.IsInitialized() {
		if err := ort.InitializeEnvironment(); err != nil {
			return nil, fmt.Errorf("initializing onnx runtime: %w", err)
		}
	}
	dims := cfg.Dimensions
	if dims <= 0 {
		dims = 384
	}
	cacheSize := cfg.CacheSize
	if cacheSize <= 0 {
		cacheSize = 512
	}

	inputShape := ort.NewShape(1, onnxMaxTokens)
	inputIDs, err := ort.NewEmptyTensor[int64](inputShape)
	if err != nil {
		return nil, fmt.Errorf("creating input_ids tensor: %w", err)
	}
	attentionMask, err := ort.NewEmptyTensor[int64](inputShape)
	if err != nil {
		inputIDs.Destroy()
		return nil, fmt.Errorf("creating attention_mask tensor: %w", err)
	}
	tokenTypeIDs, err := ort.NewEmptyTensor[int64](inputShape)
	if err != nil {
		inputIDs.Destroy()
		attentionMask.Destroy()
		return nil, fmt.Errorf("creating token_type_ids tensor: %w", err)
	}
	output, err := ort.NewEmptyTensor[float32](ort.NewShape(1, onnxMaxTokens, int64(dims)))
	if err != nil {
		inputIDs.Destroy()
		attentionMask.Destroy()
		tokenTypeIDs.Destroy()
		return nil, fmt.Errorf("creating output tensor: %w", err)
	}

	session, err := ort.NewAdvancedSession(cfg.ModelPath,
		[]string{"input_ids", "attention_mask", "token_type_ids"},
		[]string{"last_hidden_state"},
		[]ort.ArbitraryTensor{inputIDs, attentionMask, tokenTypeIDs},
		[]ort.ArbitraryTensor{output},
		nil)
	if err != nil {
		inputIDs.Destroy()
		attentionMask.Destroy()
		tokenTypeIDs.Destroy()
		output.Destroy()
		return nil, fmt.Errorf("creating onnx session: %w", err)
	}

	return &ONNXEmbedder{
		session:       session,
		inputIDs:      inputIDs,
		attentionMask: attentionMask,
		tokenTypeIDs:  tokenTypeIDs,
		output:        output,
		tokenizer:     &SimpleTokenizer{},
		dims:          dims,
		cache:         NewEmbeddingCache(cacheSize),
	}, nil
}

func (e *ONNXEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if cached, ok := e.cache.Get(text); ok {
		return cached, nil
	}
	vec, err := e.embedOne(ctx, text)
	if err != nil {
		return nil, err
	}
	e.cache.Set(text, vec)
	return vec, nil
}

func (e *ONNXEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, text := range texts {
		vec, err := e.Embed(ctx, text)
		if err != nil {
			return nil, fmt.Errorf("embedding item %d: %w", i, err)
		}
		out[i] = vec
	}
	return out, nil
}

func (e *ONNXEmbedder) embedOne(ctx context.Context, text string) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	inputIDs, attentionMask, tokenTypeIDs := e.tokenizer.Tokenize(text, onnxMaxTokens)

	e.mu.Lock()
	defer e.mu.Unlock()

	copy(e.inputIDs.GetData(), inputIDs)
	copy(e.attentionMask.GetData(), attentionMask)
	copy(e.tokenTypeIDs.GetData(), tokenTypeIDs)

	if err := e.session.Run(); err != nil {
		return nil, fmt.Errorf("running onnx session: %w", err)
	}

	// Mean pooling over attended token positions.
	hidden := e.output.GetData()
	vec := make([]float32, e.dims)
	var count float32
	for pos := 0; pos < onnxMaxTokens; pos++ {
		if attentionMask[pos] == 0 {
			continue
		}
		base := pos * e.dims
		for d := 0; d < e.dims; d++ {
			vec[d] += hidden[base+d]
		}
		count++
	}
	if count > 0 {
		for d := range vec {
			vec[d] /= count
		}
	}
	utils.NormalizeL2(vec)
	return vec, nil
}

func (e *ONNXEmbedder) Dimensions() int { return e.dims }

func (e *ONNXEmbedder) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.session != nil {
		e.session.Destroy()
		e.session = nil
	}
	for _, t := range []*ort.Tensor[int64]{e.inputIDs, e.attentionMask, e.tokenTypeIDs} {
		if t != nil {
			t.Destroy()
		}
	}
	if e.output != nil {
		e.output.Destroy()
	}
	e.inputIDs, e.attentionMask, e.tokenTypeIDs, e.output = nil, nil, nil, nil
	return nil
}
