// Package keyword provides a Bleve index over content units. The planner
// uses keyword hits as a lexical boost signal on top of vector retrieval.
package keyword

import (
	"context"
	"fmt"
	"os"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/standard"

	"github.com/deckardhq/deckard/internal/models"
)

// Hit is a keyword match for a content unit.
type Hit struct {
	ID    string
	Score float64
}

// BleveIndex indexes unit canonical text for keyword lookup.
type BleveIndex struct {
	index bleve.Index
}

// unitDoc is the shape indexed into Bleve.
type unitDoc struct {
	Text string `json:"text"`
	Kind string `json:"kind"`
}

// NewBleveIndex creates or opens a Bleve index at path. An empty path gives
// an in-memory index.
func NewBleveIndex(path string) (*BleveIndex, error) {
	im := bleve.NewIndexMapping()

	docMapping := bleve.NewDocumentMapping()
	textFieldMapping := bleve.NewTextFieldMapping()
	// Standard analyzer (lowercase + tokenize, no stemming) so numeric and
	// short tokens like "Q2" or "12%" survive as typed.
	textFieldMapping.Analyzer = standard.Name
	docMapping.AddFieldMappingsAt("text", textFieldMapping)
	kindFieldMapping := bleve.NewKeywordFieldMapping()
	docMapping.AddFieldMappingsAt("kind", kindFieldMapping)
	im.DefaultMapping = docMapping

	if path == "" {
		index, err := bleve.NewMemOnly(im)
		if err != nil {
			return nil, fmt.Errorf("creating in-memory keyword index: %w", err)
		}
		return &BleveIndex{index: index}, nil
	}

	if _, err := os.Stat(path); err == nil {
		index, openErr := bleve.Open(path)
		if openErr != nil {
			return nil, fmt.Errorf("opening keyword index: %w", openErr)
		}
		return &BleveIndex{index: index}, nil
	}

	index, err := bleve.New(path, im)
	if err != nil {
		return nil, fmt.Errorf("creating keyword index: %w", err)
	}
	return &BleveIndex{index: index}, nil
}

// Index adds a content unit's canonical text under its unit ID.
func (b *BleveIndex) Index(ctx context.Context, unit *models.ContentUnit) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return b.index.Index(unit.ID, unitDoc{
		Text: unit.CanonicalText,
		Kind: string(unit.Kind),
	})
}

// Search runs a match query over unit text and returns up to limit hits.
func (b *BleveIndex) Search(ctx context.Context, query string, limit int) ([]Hit, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	q := bleve.NewMatchQuery(query)
	q.SetField("text")
	req := bleve.NewSearchRequest(q)
	req.Size = limit
	results, err := b.index.Search(req)
	if err != nil {
		return nil, fmt.Errorf("keyword search: %w", err)
	}
	hits := make([]Hit, len(results.Hits))
	for i, hit := range results.Hits {
		hits[i] = Hit{ID: hit.ID, Score: hit.Score}
	}
	return hits, nil
}

// Delete removes a unit from the keyword index.
func (b *BleveIndex) Delete(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return b.index.Delete(id)
}

// Count returns the number of indexed units.
func (b *BleveIndex) Count() (uint64, error) {
	return b.index.DocCount()
}

// Close releases the underlying index.
func (b *BleveIndex) Close() error {
	return b.index.Close()
}
