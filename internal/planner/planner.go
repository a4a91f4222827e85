// Package planner converts a natural-language question into ranked evidence.
package planner

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/deckardhq/deckard/internal/embedding"
	"github.com/deckardhq/deckard/internal/keyword"
	"github.com/deckardhq/deckard/internal/llm"
	"github.com/deckardhq/deckard/internal/models"
	"github.com/deckardhq/deckard/internal/storage"
	"github.com/deckardhq/deckard/internal/vector"
)

// Default scoring knobs.
const (
	DefaultMinSimilarity = 0.15
	DefaultNumericBoost  = 1.25
	DefaultKeywordBoost  = 1.15
)

// Embedder is the slice of the embedding API the planner needs.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Config holds the planner's scoring configuration and collaborators.
type Config struct {
	Embedder Embedder
	Index    vector.Index
	Keywords *keyword.BleveIndex
	Store    storage.Storage
	// Rewriter expands the question for better recall. Optional; a failed
	// rewrite falls back to the original question.
	Rewriter llm.Client
	Logger   *zap.Logger

	// MinSimilarity drops hits scoring below it. Empty evidence is a valid
	// outcome, not an error.
	MinSimilarity float64
	// NumericBoost multiplies table and chart scores when the question uses
	// numeric or comparison vocabulary.
	NumericBoost float64
	// KeywordBoost multiplies scores of units that also match lexically.
	KeywordBoost float64
}

// Planner ranks content units against a question.
type Planner struct {
	embedder Embedder
	index    vector.Index
	keywords *keyword.BleveIndex
	store    storage.Storage
	rewriter llm.Client
	logger   *zap.Logger

	minSimilarity float64
	numericBoost  float64
	keywordBoost  float64
}

// New creates a Planner. Zero-valued knobs take the defaults.
func New(cfg Config) *Planner {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.MinSimilarity == 0 {
		cfg.MinSimilarity = DefaultMinSimilarity
	}
	if cfg.NumericBoost == 0 {
		cfg.NumericBoost = DefaultNumericBoost
	}
	if cfg.KeywordBoost == 0 {
		cfg.KeywordBoost = DefaultKeywordBoost
	}
	return &Planner{
		embedder:      cfg.Embedder,
		index:         cfg.Index,
		keywords:      cfg.Keywords,
		store:         cfg.Store,
		rewriter:      cfg.Rewriter,
		logger:        logger,
		minSimilarity: cfg.MinSimilarity,
		numericBoost:  cfg.NumericBoost,
		keywordBoost:  cfg.KeywordBoost,
	}
}

const rewritePrompt = `Rewrite this question about a slide deck to improve semantic search recall. Add synonyms for domain terms and expand abbreviations. Return ONLY the rewritten question.

Question: %s`

// Plan embeds the question, searches the vector index, applies kind-aware and
// keyword boosts, and returns the top ask.K evidence records. An empty result
// is a valid outcome. A failing index read returns ErrIndexUnavailable.
func (p *Planner) Plan(ctx context.Context, ask *models.Ask) ([]models.Evidence, error) {
	if err := ask.Validate(); err != nil {
		return nil, err
	}

	question := p.rewrite(ctx, ask.Question)
	queryText := embedding.CanonicalQuery(question, ask.Context)

	queryVec, err := p.embedder.Embed(ctx, queryText)
	if err != nil {
		return nil, fmt.Errorf("embed question: %w", err)
	}

	// Over-fetch so boosts can promote hits from below the cut line.
	fetchK := ask.K * 3
	results, err := p.index.Search(ctx, queryVec, fetchK)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrIndexUnavailable, err)
	}
	if len(results) == 0 {
		return nil, nil
	}

	keywordHits := p.keywordHits(ctx, ask.Question, fetchK)
	numeric := wantsNumeric(ask.Question)

	type scored struct {
		unit  *models.ContentUnit
		score float64
	}
	var candidates []scored
	for _, r := range results {
		if r.Score < p.minSimilarity {
			continue
		}
		unit, err := p.store.GetUnit(ctx, r.ID)
		if err != nil {
			p.logger.Warn("indexed unit missing from storage", zap.String("unit_id", r.ID), zap.Error(err))
			continue
		}
		score := r.Score
		if numeric && (unit.Kind == models.KindTable || unit.Kind == models.KindChart) {
			score *= p.numericBoost
		}
		if keywordHits[r.ID] {
			score *= p.keywordBoost
		}
		candidates = append(candidates, scored{unit: unit, score: score})
	}

	// Ties break by original document order.
	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].score != candidates[j].score {
			return candidates[i].score > candidates[j].score
		}
		if candidates[i].unit.SlideIndex != candidates[j].unit.SlideIndex {
			return candidates[i].unit.SlideIndex < candidates[j].unit.SlideIndex
		}
		return candidates[i].unit.Ordinal < candidates[j].unit.Ordinal
	})

	if len(candidates) > ask.K {
		candidates = candidates[:ask.K]
	}
	evidence := make([]models.Evidence, len(candidates))
	for i, c := range candidates {
		evidence[i] = models.Evidence{UnitID: c.unit.ID, Score: c.score, Rank: i + 1}
	}
	return evidence, nil
}

// rewrite expands the question via the configured rewriter. Any failure or an
// unusable reply falls back to the original question.
func (p *Planner) rewrite(ctx context.Context, question string) string {
	if p.rewriter == nil {
		return question
	}
	out, err := p.rewriter.Complete(ctx, "", fmt.Sprintf(rewritePrompt, question))
	if err != nil {
		p.logger.Warn("query rewrite failed", zap.Error(err))
		return question
	}
	out = strings.TrimSpace(out)
	if out == "" || strings.Count(out, "\n") > 2 {
		return question
	}
	return out
}

// keywordHits returns the set of unit IDs matching the question lexically.
// Keyword search is a boost signal only; a failure disables the boost.
func (p *Planner) keywordHits(ctx context.Context, question string, limit int) map[string]bool {
	if p.keywords == nil {
		return nil
	}
	hits, err := p.keywords.Search(ctx, question, limit)
	if err != nil {
		p.logger.Warn("keyword search failed", zap.Error(err))
		return nil
	}
	out := make(map[string]bool, len(hits))
	for _, h := range hits {
		out[h.ID] = true
	}
	return out
}
