// Package ingest runs the document ingestion pipeline: extract, describe,
// normalize, persist, and index.
package ingest

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/deckardhq/deckard/internal/extract"
	"github.com/deckardhq/deckard/internal/keyword"
	"github.com/deckardhq/deckard/internal/models"
	"github.com/deckardhq/deckard/internal/normalize"
	"github.com/deckardhq/deckard/internal/storage"
	"github.com/deckardhq/deckard/internal/vector"
	"github.com/deckardhq/deckard/internal/vision"
)

// Embedder is the slice of the embedding API the pipeline needs.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

// Pipeline ingests documents end to end. Per-document failures (unsupported
// format, corrupt container) abort the ingestion; per-slide and per-unit
// failures degrade: failed slides become gaps, units that cannot be embedded
// are recorded as skipped and excluded from retrieval until a re-index pass.
type Pipeline struct {
	extractor  *extract.Extractor
	describer  vision.Describer
	normalizer *normalize.Normalizer
	embedder   Embedder
	index      vector.Index
	keywords   *keyword.BleveIndex
	store      storage.Storage
	logger     *zap.Logger
}

// Config wires the pipeline's collaborators.
type Config struct {
	Describer  vision.Describer
	Normalizer *normalize.Normalizer
	Embedder   Embedder
	Index      vector.Index
	Keywords   *keyword.BleveIndex
	Store      storage.Storage
	Logger     *zap.Logger
}

// New creates an ingestion pipeline.
func New(cfg Config) *Pipeline {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	normalizer := cfg.Normalizer
	if normalizer == nil {
		normalizer = normalize.New(normalize.DefaultOverlapThreshold)
	}
	return &Pipeline{
		extractor:  extract.NewExtractor(),
		describer:  cfg.Describer,
		normalizer: normalizer,
		embedder:   cfg.Embedder,
		index:      cfg.Index,
		keywords:   cfg.Keywords,
		store:      cfg.Store,
		logger:     logger,
	}
}

// Ingest processes one document's bytes. Each call mints a fresh document ID,
// so re-uploading the same file creates a new document rather than updating
// the old one.
func (p *Pipeline) Ingest(ctx context.Context, content []byte, ext, name string) (*models.IngestReport, error) {
	docID := uuid.New().String()

	deck, err := p.extractor.ExtractBytes(content, ext, name)
	if err != nil {
		return nil, err
	}

	report := &models.IngestReport{DocumentID: docID, Slides: len(deck.Slides)}
	for _, slide := range deck.Slides {
		if slide.Err != nil {
			p.logger.Warn("slide extraction failed",
				zap.String("document_id", docID),
				zap.Int("slide", slide.Index),
				zap.Error(slide.Err))
			report.Gaps = append(report.Gaps, slide.Index)
		}
	}

	descriptions := p.describeAll(ctx, deck.Slides)
	units := p.normalizer.Document(docID, deck.Slides, descriptions)

	doc := &models.Document{
		ID:         docID,
		Title:      deck.Title,
		Format:     deck.Format,
		SlideCount: len(deck.Slides),
	}
	if err := p.store.CreateDocument(ctx, doc); err != nil {
		return nil, fmt.Errorf("persist document: %w", err)
	}
	slideRows := make([]*models.Slide, 0, len(deck.Slides))
	for _, slide := range deck.Slides {
		if slide.Err != nil {
			continue
		}
		slideRows = append(slideRows, &models.Slide{DocumentID: docID, Index: slide.Index})
	}
	if err := p.store.CreateSlides(ctx, slideRows); err != nil {
		return nil, fmt.Errorf("persist slides: %w", err)
	}
	if err := p.store.CreateUnits(ctx, units); err != nil {
		return nil, fmt.Errorf("persist units: %w", err)
	}

	indexed, skipped := p.indexUnits(ctx, units)
	report.Indexed = indexed
	report.Skipped = skipped

	p.logger.Info("document ingested",
		zap.String("document_id", docID),
		zap.String("title", deck.Title),
		zap.Int("slides", report.Slides),
		zap.Int("indexed", indexed),
		zap.Int("skipped", skipped),
		zap.Ints("gaps", report.Gaps))
	return report, nil
}

// IngestFile reads and ingests a file from disk.
func (p *Pipeline) IngestFile(ctx context.Context, path string) (*models.IngestReport, error) {
	deckBytes, ext, name, err := extract.ReadDeckFile(path)
	if err != nil {
		return nil, err
	}
	return p.Ingest(ctx, deckBytes, ext, name)
}

// describeAll fans out vision calls for every image draft. Concurrency is
// bounded by the describer's admission gate. A failed description degrades to
// the placeholder payload; it never fails the ingestion.
func (p *Pipeline) describeAll(ctx context.Context, slides []extract.SlideDraft) map[int][]*models.ChartPayload {
	type slot struct {
		slide int
		pos   int
		image *extract.ImageRef
	}
	var slots []slot
	out := make(map[int][]*models.ChartPayload)
	for _, slide := range slides {
		if slide.Err != nil {
			continue
		}
		pos := 0
		for _, draft := range slide.Units {
			if draft.Kind != models.KindChart || draft.Image == nil {
				continue
			}
			slots = append(slots, slot{slide: slide.Index, pos: pos, image: draft.Image})
			pos++
		}
		if pos > 0 {
			out[slide.Index] = make([]*models.ChartPayload, pos)
		}
	}
	if len(slots) == 0 || p.describer == nil {
		return out
	}

	var wg sync.WaitGroup
	for _, s := range slots {
		wg.Add(1)
		go func(s slot) {
			defer wg.Done()
			payload, err := p.describer.Describe(ctx, s.image.Data, s.image.MediaType)
			if err != nil {
				p.logger.Warn("vision description failed",
					zap.Int("slide", s.slide),
					zap.Int("position", s.pos),
					zap.Error(err))
				payload = vision.Placeholder(nil)
			}
			out[s.slide][s.pos] = payload
		}(s)
	}
	wg.Wait()
	return out
}

// indexUnits embeds and stores each unit's vector. The vector index write is
// the commit point: only units whose vectors land are marked indexed. One
// unit's embedding failure skips that unit and continues.
func (p *Pipeline) indexUnits(ctx context.Context, units []*models.ContentUnit) (indexed, skipped int) {
	if len(units) == 0 {
		return 0, 0
	}

	texts := make([]string, len(units))
	for i, u := range units {
		texts[i] = u.CanonicalText
	}

	vectors, err := p.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		// Batch failed; retry one by one so a single bad unit cannot sink
		// the whole document.
		p.logger.Warn("batch embedding failed, falling back to per-unit calls", zap.Error(err))
		vectors = make([][]float32, len(units))
		for i, text := range texts {
			vec, embErr := p.embedder.Embed(ctx, text)
			if embErr != nil {
				p.logger.Warn("unit embedding failed",
					zap.String("unit_id", units[i].ID),
					zap.Error(embErr))
				continue
			}
			vectors[i] = vec
		}
	}

	var committed []string
	for i, u := range units {
		if vectors[i] == nil {
			skipped++
			continue
		}
		if err := p.index.Add(ctx, []string{u.ID}, [][]float32{vectors[i]}); err != nil {
			p.logger.Warn("vector index add failed", zap.String("unit_id", u.ID), zap.Error(err))
			skipped++
			continue
		}
		if p.keywords != nil {
			if err := p.keywords.Index(ctx, u); err != nil {
				// Keyword hits only boost ranking; the unit is still retrievable.
				p.logger.Warn("keyword index add failed", zap.String("unit_id", u.ID), zap.Error(err))
			}
		}
		u.Indexed = true
		committed = append(committed, u.ID)
		indexed++
	}

	if err := p.store.MarkIndexed(ctx, committed); err != nil {
		p.logger.Error("failed to mark units indexed", zap.Error(err))
	}
	return indexed, skipped
}

// ReindexPending retries indexing for units whose embedding previously failed.
// Returns the number of units brought into the index.
func (p *Pipeline) ReindexPending(ctx context.Context) (int, error) {
	pending, err := p.store.ListUnindexed(ctx)
	if err != nil {
		return 0, fmt.Errorf("list unindexed: %w", err)
	}
	if len(pending) == 0 {
		return 0, nil
	}
	indexed, _ := p.indexUnits(ctx, pending)
	return indexed, nil
}
