package extract

import (
	"bytes"
	"fmt"

	"github.com/ledongthuc/pdf"

	"github.com/deckardhq/deckard/internal/models"
	"github.com/deckardhq/deckard/pkg/utils"
)

// extractPDF treats each page as one slide with a single text unit. PDF decks
// carry no shape structure, so tables and charts are not recovered; the page
// text still makes the deck searchable.
func extractPDF(content []byte, name string) (*Deck, error) {
	r, err := pdf.NewReader(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		return nil, corrupt(fmt.Errorf("open pdf: %v", err))
	}

	numPages := r.NumPage()
	if numPages == 0 {
		return nil, corrupt(fmt.Errorf("pdf has no pages"))
	}

	deck := &Deck{Title: name, Format: "pdf", Slides: make([]SlideDraft, numPages)}
	for i := 0; i < numPages; i++ {
		draft := SlideDraft{Index: i}
		page := r.Page(i + 1)
		if page.V.IsNull() {
			deck.Slides[i] = draft
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			draft.Err = fmt.Errorf("page %d: %w", i+1, err)
			deck.Slides[i] = draft
			continue
		}
		if t := utils.CollapseWhitespace(text); t != "" {
			draft.Units = []DraftUnit{{Kind: models.KindText, Text: t}}
		}
		deck.Slides[i] = draft
	}
	return deck, nil
}
