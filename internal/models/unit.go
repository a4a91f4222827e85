package models

// UnitKind identifies which payload a ContentUnit carries.
type UnitKind string

const (
	// KindText is a contiguous prose block from a slide.
	KindText UnitKind = "text"
	// KindTable is a rectangular grid of cell strings.
	KindTable UnitKind = "table"
	// KindChart is a chart or picture region with a vision-derived description.
	KindChart UnitKind = "chart"
)

// Region is a bounding box within a slide, in EMU (English Metric Units, the
// native pptx coordinate space). Used only for UI highlighting and overlap
// deduplication, never for retrieval scoring.
type Region struct {
	X int64 `json:"x"`
	Y int64 `json:"y"`
	W int64 `json:"w"`
	H int64 `json:"h"`
}

// Area returns the region's area. Zero-size regions have area 0.
func (r Region) Area() int64 {
	if r.W <= 0 || r.H <= 0 {
		return 0
	}
	return r.W * r.H
}

// OverlapRatio returns the intersection area of r and other divided by the
// smaller of the two areas. Returns 0 when either region is empty.
func (r Region) OverlapRatio(other Region) float64 {
	smaller := r.Area()
	if a := other.Area(); a < smaller {
		smaller = a
	}
	if smaller == 0 {
		return 0
	}
	x1 := max64(r.X, other.X)
	y1 := max64(r.Y, other.Y)
	x2 := min64(r.X+r.W, other.X+other.W)
	y2 := min64(r.Y+r.H, other.Y+other.H)
	if x2 <= x1 || y2 <= y1 {
		return 0
	}
	return float64((x2-x1)*(y2-y1)) / float64(smaller)
}

func max64(a, b int64) int64 {
	if a > b {
		return a
	}
	return b
}

func min64(a, b int64) int64 {
	if a < b {
		return a
	}
	return b
}

// TablePayload is a rectangular grid of cell strings. Header is nil unless the
// source document marks the first row as a header.
type TablePayload struct {
	Header []string   `json:"header,omitempty"`
	Rows   [][]string `json:"rows"`
}

// SeriesPoint is one extracted (label, value) pair from a chart.
type SeriesPoint struct {
	Label string  `json:"label"`
	Value float64 `json:"value"`
}

// ChartPayload is the structured result of describing a chart or picture
// region. Confidence is 0 when the description could not be obtained.
type ChartPayload struct {
	Description string        `json:"description"`
	Series      []SeriesPoint `json:"series,omitempty"`
	Confidence  float64       `json:"confidence"`
}

// ContentUnit is the atomic retrievable item. Exactly one of Text, Table, or
// Chart is set, matching Kind. A unit's embedding is assigned once at index
// time and never mutated; re-embedding requires a new unit version.
type ContentUnit struct {
	ID         string `json:"id"`
	DocumentID string `json:"document_id"`
	SlideIndex int    `json:"slide_index"`
	// Ordinal is the unit's position in source document order within the
	// whole document; it is the tie-break at query time.
	Ordinal int      `json:"ordinal"`
	Kind    UnitKind `json:"kind"`

	Text  string        `json:"text,omitempty"`
	Table *TablePayload `json:"table,omitempty"`
	Chart *ChartPayload `json:"chart,omitempty"`

	Region *Region `json:"region,omitempty"`

	// CanonicalText is the deterministic textual projection of the payload
	// that the embedder sees. Same payload always yields the same text.
	CanonicalText string `json:"canonical_text"`
	Indexed       bool   `json:"indexed"`
}
