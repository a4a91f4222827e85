package models

import "fmt"

// Ask is a natural-language question against the index.
type Ask struct {
	Question string `json:"question"`
	// Context is opaque prior-turn text supplied by the chat UI. It is
	// appended to the embedding input as-is and never parsed.
	Context string `json:"context,omitempty"`
	K       int    `json:"k,omitempty"`
}

// Validate ensures the ask has a question and normalizes K.
func (a *Ask) Validate() error {
	if a.Question == "" {
		return fmt.Errorf("question cannot be empty")
	}
	if a.K <= 0 {
		a.K = 8
	}
	if a.K > 50 {
		a.K = 50
	}
	return nil
}

// Evidence is a ranked retrieval hit. It lives for a single query.
type Evidence struct {
	UnitID string  `json:"unit_id"`
	Score  float64 `json:"score"`
	Rank   int     `json:"rank"`
}

// Answer is a composed response with the evidence that grounds it.
// When NoMatch is true, Text is a fixed no-match message and Citations is empty.
type Answer struct {
	Text       string     `json:"text"`
	Citations  []string   `json:"citations"`
	Evidence   []Evidence `json:"evidence"`
	Confidence float64    `json:"confidence"`
	NoMatch    bool       `json:"no_match"`
}

// IngestReport summarizes one document ingestion. Skipped counts units that
// could not be embedded and are excluded from retrieval until re-indexed;
// Gaps lists slide indices dropped due to extraction failures.
type IngestReport struct {
	DocumentID string `json:"document_id"`
	Slides     int    `json:"slides"`
	Indexed    int    `json:"indexed"`
	Skipped    int    `json:"skipped"`
	Gaps       []int  `json:"gaps,omitempty"`
}
