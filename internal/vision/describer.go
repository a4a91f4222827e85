// Package vision turns chart and picture regions into textual descriptions
// with optional extracted series values.
package vision

import (
	"context"

	"github.com/deckardhq/deckard/internal/models"
)

// PlaceholderDescription is stored when the vision service cannot describe a
// region. Confidence is 0 so the planner and composer can discount it.
const PlaceholderDescription = "description unavailable"

// Describer produces a structured description of one image.
type Describer interface {
	Describe(ctx context.Context, image []byte, mediaType string) (*models.ChartPayload, error)
	Close() error
}

// Placeholder returns the fail-closed payload used when description fails.
// Any series values recovered from the document itself are preserved.
func Placeholder(series []models.SeriesPoint) *models.ChartPayload {
	return &models.ChartPayload{
		Description: PlaceholderDescription,
		Series:      series,
		Confidence:  0,
	}
}

// StaticDescriber returns a fixed payload for every image. Used in tests and
// when no vision credentials are configured.
type StaticDescriber struct {
	Payload *models.ChartPayload
	Err     error
	Calls   int
}

func (s *StaticDescriber) Describe(ctx context.Context, image []byte, mediaType string) (*models.ChartPayload, error) {
	s.Calls++
	if s.Err != nil {
		return nil, s.Err
	}
	if s.Payload == nil {
		return Placeholder(nil), nil
	}
	p := *s.Payload
	return &p, nil
}

func (s *StaticDescriber) Close() error { return nil }
