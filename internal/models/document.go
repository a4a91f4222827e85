// Package models defines core data structures for documents, content units, and queries.
package models

import "time"

// Document represents one ingested slide deck. A Document is immutable once
// ingestion completes; re-uploading the same file creates a new Document.
type Document struct {
	ID         string    `json:"id" db:"id"`
	Title      string    `json:"title" db:"title"`
	Format     string    `json:"format" db:"format"`
	SlideCount int       `json:"slide_count" db:"slide_count"`
	CreatedAt  time.Time `json:"created_at" db:"created_at"`
}

// Slide is one position within a Document. Its unit list is append-only during
// ingestion and frozen afterwards.
type Slide struct {
	DocumentID string   `json:"document_id" db:"document_id"`
	Index      int      `json:"index" db:"slide_index"`
	UnitIDs    []string `json:"unit_ids" db:"-"`
}
