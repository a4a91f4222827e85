// Package compose turns ranked evidence into a grounded, cited answer.
package compose

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"go.uber.org/zap"

	"github.com/deckardhq/deckard/internal/llm"
	"github.com/deckardhq/deckard/internal/models"
	"github.com/deckardhq/deckard/internal/storage"
	"github.com/deckardhq/deckard/pkg/utils"
)

// NoMatchText is the fixed response when retrieval produced no evidence. The
// language model is never called in that case.
const NoMatchText = "No relevant content was found in the ingested documents for this question."

const systemPrompt = `You answer questions about slide decks using only the evidence blocks provided. Every claim must cite the unit ID of the evidence it came from, in square brackets, e.g. [doc1:s2:u0]. If the evidence does not answer the question, say so. Do not use outside knowledge.`

// citationPattern matches [docID:sN:uM] style citations in model output.
var citationPattern = regexp.MustCompile(`\[([^\[\]\s]+:s\d+:u\d+)\]`)

// Composer builds answers from evidence.
type Composer struct {
	client llm.Client
	store  storage.Storage
	logger *zap.Logger
	// maxEvidence caps how many evidence payloads go into the prompt.
	maxEvidence int
}

// Config wires the composer.
type Config struct {
	// Client is the completion backend. Nil means extractive answers only.
	Client      llm.Client
	Store       storage.Storage
	Logger      *zap.Logger
	MaxEvidence int
}

// New creates a Composer.
func New(cfg Config) *Composer {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	maxEvidence := cfg.MaxEvidence
	if maxEvidence <= 0 {
		maxEvidence = 6
	}
	return &Composer{
		client:      cfg.Client,
		store:       cfg.Store,
		logger:      logger,
		maxEvidence: maxEvidence,
	}
}

// Compose answers the question from the evidence. Empty evidence returns the
// fixed no-match answer without any model call. Citations naming units outside
// the supplied evidence are discarded. When no completion backend is available
// the answer degrades to an extractive summary of the top evidence.
func (c *Composer) Compose(ctx context.Context, question string, evidence []models.Evidence) (*models.Answer, error) {
	if len(evidence) == 0 {
		return &models.Answer{Text: NoMatchText, NoMatch: true}, nil
	}

	supplied := evidence
	if len(supplied) > c.maxEvidence {
		supplied = supplied[:c.maxEvidence]
	}

	units := make([]*models.ContentUnit, 0, len(supplied))
	for _, ev := range supplied {
		unit, err := c.store.GetUnit(ctx, ev.UnitID)
		if err != nil {
			c.logger.Warn("evidence unit missing from storage", zap.String("unit_id", ev.UnitID), zap.Error(err))
			continue
		}
		units = append(units, unit)
	}
	if len(units) == 0 {
		return &models.Answer{Text: NoMatchText, NoMatch: true}, nil
	}

	if c.client == nil {
		return c.extractive(units, evidence), nil
	}

	text, err := c.client.Complete(ctx, systemPrompt, buildPrompt(question, units))
	if err != nil {
		c.logger.Warn("completion failed, falling back to extractive answer", zap.Error(err))
		return c.extractive(units, evidence), nil
	}

	citations := filterCitations(text, units)
	return &models.Answer{
		Text:       strings.TrimSpace(text),
		Citations:  citations,
		Evidence:   evidence,
		Confidence: confidence(evidence, len(citations)),
	}, nil
}

// buildPrompt renders one evidence block per unit in rank order.
func buildPrompt(question string, units []*models.ContentUnit) string {
	var b strings.Builder
	b.WriteString("Evidence:\n")
	for _, u := range units {
		fmt.Fprintf(&b, "[%s] (slide %d, %s)\n%s\n\n", u.ID, u.SlideIndex+1, u.Kind, u.CanonicalText)
	}
	fmt.Fprintf(&b, "Question: %s", question)
	return b.String()
}

// filterCitations keeps only citations that name a supplied evidence unit.
// Fabricated references are dropped, deduplicated in first-seen order.
func filterCitations(text string, units []*models.ContentUnit) []string {
	allowed := make(map[string]bool, len(units))
	for _, u := range units {
		allowed[u.ID] = true
	}
	var citations []string
	seen := make(map[string]bool)
	for _, m := range citationPattern.FindAllStringSubmatch(text, -1) {
		id := m[1]
		if !allowed[id] || seen[id] {
			continue
		}
		seen[id] = true
		citations = append(citations, id)
	}
	return citations
}

// extractive builds an answer straight from the top evidence payloads. Used
// when no completion backend is configured or the call failed.
func (c *Composer) extractive(units []*models.ContentUnit, evidence []models.Evidence) *models.Answer {
	var b strings.Builder
	citations := make([]string, 0, len(units))
	for i, u := range units {
		if i >= 3 {
			break
		}
		fmt.Fprintf(&b, "Slide %d: %s [%s]\n", u.SlideIndex+1, utils.Truncate(u.CanonicalText, 300), u.ID)
		citations = append(citations, u.ID)
	}
	return &models.Answer{
		Text:       strings.TrimSpace(b.String()),
		Citations:  citations,
		Evidence:   evidence,
		Confidence: confidence(evidence, len(citations)),
	}
}

// confidence blends the top evidence score with citation coverage. It is a
// rough signal for the UI, not a calibrated probability.
func confidence(evidence []models.Evidence, citations int) float64 {
	if len(evidence) == 0 || citations == 0 {
		return 0
	}
	top := evidence[0].Score
	if top > 1 {
		top = 1
	}
	if top < 0 {
		top = 0
	}
	coverage := float64(citations) / float64(len(evidence))
	if coverage > 1 {
		coverage = 1
	}
	return top * (0.5 + 0.5*coverage)
}
