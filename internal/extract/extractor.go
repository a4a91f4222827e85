// Package extract parses slide decks into structured slide drafts: text
// blocks, tables, and chart or picture regions pending visual description.
package extract

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/deckardhq/deckard/internal/models"
)

// ImageRef carries the raw bytes of a picture region for the vision service.
type ImageRef struct {
	Data      []byte
	MediaType string
}

// DraftUnit is a unit candidate before normalization. Exactly one of Text,
// Table, or Image/Series is populated, matching Kind. Chart drafts carry the
// image (when the deck embeds one) and any series values recovered from an
// embedded workbook.
type DraftUnit struct {
	Kind   models.UnitKind
	Text   string
	Table  *models.TablePayload
	Image  *ImageRef
	Series []models.SeriesPoint
	Title  string
	Region *models.Region
}

// SlideDraft holds the extraction result for one slide position. Err is set
// when this slide failed to parse; other slides are unaffected.
type SlideDraft struct {
	Index int
	Units []DraftUnit
	Notes string
	Err   error
}

// Deck is the structured extraction result for a whole document.
type Deck struct {
	Title  string
	Format string
	Slides []SlideDraft
}

// Extractor parses deck files into slide drafts.
type Extractor struct{}

// NewExtractor returns a new Extractor.
func NewExtractor() *Extractor {
	return &Extractor{}
}

// Extract reads the file at path and parses it by extension.
func (e *Extractor) Extract(path string) (*Deck, error) {
	content, ext, name, err := ReadDeckFile(path)
	if err != nil {
		return nil, err
	}
	return e.ExtractBytes(content, ext, name)
}

// ExtractBytes parses content as the format named by ext (with leading dot).
// name is the fallback title when the document carries none. Unrecognized
// extensions return ErrUnsupportedFormat; structurally broken containers
// return ErrCorruptDocument.
func (e *Extractor) ExtractBytes(content []byte, ext, name string) (*Deck, error) {
	switch ext {
	case ".pptx":
		return extractPPTX(content, name)
	case ".pdf":
		return extractPDF(content, name)
	default:
		return nil, fmt.Errorf("%w: %q", models.ErrUnsupportedFormat, ext)
	}
}

// ReadDeckFile reads a deck file and returns its bytes, lowercased extension,
// and title-fallback name.
func ReadDeckFile(path string) (content []byte, ext, name string, err error) {
	content, err = os.ReadFile(path)
	if err != nil {
		return nil, "", "", fmt.Errorf("read file: %w", err)
	}
	ext = strings.ToLower(filepath.Ext(path))
	name = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	return content, ext, name, nil
}

// corrupt wraps err in the corrupt-document sentinel unless it already is one.
func corrupt(err error) error {
	if errors.Is(err, models.ErrCorruptDocument) {
		return err
	}
	return fmt.Errorf("%w: %v", models.ErrCorruptDocument, err)
}
