// Package normalize merges extraction drafts and vision descriptions into the
// finalized content-unit stream. Final identifiers are assigned here and only
// here; they are never reused across documents or re-ingestions.
package normalize

import (
	"fmt"

	"github.com/deckardhq/deckard/internal/embedding"
	"github.com/deckardhq/deckard/internal/extract"
	"github.com/deckardhq/deckard/internal/models"
	"github.com/deckardhq/deckard/internal/vision"
	"github.com/deckardhq/deckard/pkg/utils"
)

// DefaultOverlapThreshold is the area-overlap ratio above which two chart
// regions are considered the same region (nested chart/legend sub-regions).
const DefaultOverlapThreshold = 0.8

// Normalizer finalizes draft units.
type Normalizer struct {
	overlapThreshold float64
}

// New returns a Normalizer. A non-positive threshold falls back to the default.
func New(overlapThreshold float64) *Normalizer {
	if overlapThreshold <= 0 {
		overlapThreshold = DefaultOverlapThreshold
	}
	return &Normalizer{overlapThreshold: overlapThreshold}
}

// Document normalizes one document's slides. descriptions maps a slide index
// to the vision payloads for that slide's image drafts, in draft order (the
// pairing is positional, 1:1, no reordering). Slides with extraction errors
// yield no units; the ingest pipeline records them as gaps.
func (n *Normalizer) Document(docID string, slides []extract.SlideDraft, descriptions map[int][]*models.ChartPayload) []*models.ContentUnit {
	var out []*models.ContentUnit
	ordinal := 0
	for _, slide := range slides {
		if slide.Err != nil {
			continue
		}
		units := n.slideUnits(docID, slide, descriptions[slide.Index])
		for _, u := range units {
			u.Ordinal = ordinal
			ordinal++
			out = append(out, u)
		}
	}
	return out
}

func (n *Normalizer) slideUnits(docID string, slide extract.SlideDraft, descs []*models.ChartPayload) []*models.ContentUnit {
	units := make([]*models.ContentUnit, 0, len(slide.Units))
	imageIdx := 0
	for _, draft := range slide.Units {
		unit := &models.ContentUnit{
			DocumentID: docID,
			SlideIndex: slide.Index,
			Kind:       draft.Kind,
			Region:     draft.Region,
		}
		switch draft.Kind {
		case models.KindText:
			unit.Text = utils.CollapseWhitespace(draft.Text)
		case models.KindTable:
			unit.Table = draft.Table
		case models.KindChart:
			var desc *models.ChartPayload
			if draft.Image != nil {
				if imageIdx < len(descs) {
					desc = descs[imageIdx]
				}
				imageIdx++
			}
			unit.Chart = chartPayload(draft, desc)
		default:
			continue
		}
		unit.CanonicalText = embedding.Canonical(unit)
		if unit.CanonicalText == "" {
			continue
		}
		units = append(units, unit)
	}

	// Speaker notes become a trailing text unit so they are searchable like
	// any on-slide prose.
	if notes := utils.CollapseWhitespace(slide.Notes); notes != "" {
		unit := &models.ContentUnit{
			DocumentID: docID,
			SlideIndex: slide.Index,
			Kind:       models.KindText,
			Text:       notes,
		}
		unit.CanonicalText = embedding.Canonical(unit)
		units = append(units, unit)
	}

	units = n.dedupRegions(units)

	for i, u := range units {
		u.ID = fmt.Sprintf("%s:s%d:u%d", docID, slide.Index, i)
	}
	return units
}

// chartPayload merges a chart draft with its vision description. Series
// recovered from the document itself win over vision readings; they are exact.
func chartPayload(draft extract.DraftUnit, desc *models.ChartPayload) *models.ChartPayload {
	if desc == nil {
		if draft.Title != "" && len(draft.Series) > 0 {
			return &models.ChartPayload{Description: draft.Title, Series: draft.Series, Confidence: 1}
		}
		if draft.Title != "" {
			return &models.ChartPayload{Description: draft.Title, Confidence: 1}
		}
		return vision.Placeholder(draft.Series)
	}
	merged := *desc
	if len(draft.Series) > 0 {
		merged.Series = draft.Series
	}
	return &merged
}

// dedupRegions drops chart units whose region overlaps an earlier or larger
// chart region above the threshold, keeping the larger of the pair.
func (n *Normalizer) dedupRegions(units []*models.ContentUnit) []*models.ContentUnit {
	dropped := make(map[int]bool)
	for i := 0; i < len(units); i++ {
		if dropped[i] || units[i].Kind != models.KindChart || units[i].Region == nil {
			continue
		}
		for j := i + 1; j < len(units); j++ {
			if dropped[j] || units[j].Kind != models.KindChart || units[j].Region == nil {
				continue
			}
			if units[i].Region.OverlapRatio(*units[j].Region) < n.overlapThreshold {
				continue
			}
			// Keep the larger region; on a tie, the earlier one.
			if units[j].Region.Area() > units[i].Region.Area() {
				dropped[i] = true
				break
			}
			dropped[j] = true
		}
	}
	out := units[:0]
	for i, u := range units {
		if !dropped[i] {
			out = append(out, u)
		}
	}
	return out
}
