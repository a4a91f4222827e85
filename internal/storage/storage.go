// Package storage persists documents and content units.
package storage

import (
	"context"

	"github.com/deckardhq/deckard/internal/models"
)

// Storage is the persistence layer for ingested decks. Units are write-once:
// ingestion inserts them, the indexer flips the indexed flag, nothing mutates
// payloads afterwards.
type Storage interface {
	CreateDocument(ctx context.Context, doc *models.Document) error
	GetDocument(ctx context.Context, id string) (*models.Document, error)
	ListDocuments(ctx context.Context) ([]*models.Document, error)

	CreateSlides(ctx context.Context, slides []*models.Slide) error
	ListSlidesByDocument(ctx context.Context, docID string) ([]*models.Slide, error)

	CreateUnits(ctx context.Context, units []*models.ContentUnit) error
	GetUnit(ctx context.Context, id string) (*models.ContentUnit, error)
	ListUnitsByDocument(ctx context.Context, docID string) ([]*models.ContentUnit, error)
	ListUnindexed(ctx context.Context) ([]*models.ContentUnit, error)
	MarkIndexed(ctx context.Context, ids []string) error

	CountDocuments(ctx context.Context) (int, error)
	CountUnits(ctx context.Context) (indexed, pending int, err error)

	Close() error
}
