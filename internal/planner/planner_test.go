package planner

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/deckardhq/deckard/internal/keyword"
	"github.com/deckardhq/deckard/internal/models"
	"github.com/deckardhq/deckard/internal/storage"
	"github.com/deckardhq/deckard/internal/vector"
)

// stubEmbedder returns a fixed vector regardless of input.
type stubEmbedder struct {
	vec []float32
	err error
}

func (s *stubEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.vec, nil
}

type fixture struct {
	planner *Planner
	store   *storage.SQLiteStorage
	index   *vector.MemoryIndex
	kw      *keyword.BleveIndex
}

func newFixture(t *testing.T, queryVec []float32) *fixture {
	t.Helper()
	store, err := storage.NewSQLiteStorage(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("storage: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	// Inner product keeps the fixture vectors' raw magnitudes as scores.
	index, err := vector.NewMemoryIndex(4, vector.MetricInnerProduct)
	if err != nil {
		t.Fatalf("index: %v", err)
	}
	kw, err := keyword.NewBleveIndex("")
	if err != nil {
		t.Fatalf("keyword: %v", err)
	}
	t.Cleanup(func() { kw.Close() })

	p := New(Config{
		Embedder: &stubEmbedder{vec: queryVec},
		Index:    index,
		Keywords: kw,
		Store:    store,
	})
	return &fixture{planner: p, store: store, index: index, kw: kw}
}

// addUnit stores a unit and its vector.
func (f *fixture) addUnit(t *testing.T, u *models.ContentUnit, vec []float32) {
	t.Helper()
	ctx := context.Background()
	if err := f.store.CreateUnits(ctx, []*models.ContentUnit{u}); err != nil {
		t.Fatalf("CreateUnits: %v", err)
	}
	if err := f.index.Add(ctx, []string{u.ID}, [][]float32{vec}); err != nil {
		t.Fatalf("index.Add: %v", err)
	}
	if err := f.kw.Index(ctx, u); err != nil {
		t.Fatalf("kw.Index: %v", err)
	}
}

func textUnit(id string, slide, ordinal int, text string) *models.ContentUnit {
	return &models.ContentUnit{
		ID: id, DocumentID: "d1", SlideIndex: slide, Ordinal: ordinal,
		Kind: models.KindText, Text: text, CanonicalText: text,
	}
}

func tableUnit(id string, slide, ordinal int, canonical string) *models.ContentUnit {
	return &models.ContentUnit{
		ID: id, DocumentID: "d1", SlideIndex: slide, Ordinal: ordinal,
		Kind:          models.KindTable,
		Table:         &models.TablePayload{Rows: [][]string{{"x"}}},
		CanonicalText: canonical,
	}
}

func setupDocs(t *testing.T, f *fixture) {
	if err := f.store.CreateDocument(context.Background(), &models.Document{ID: "d1", Title: "deck", Format: "pptx"}); err != nil {
		t.Fatalf("CreateDocument: %v", err)
	}
}

func TestPlanRanksBySimilarity(t *testing.T) {
	f := newFixture(t, []float32{1, 0, 0, 0})
	setupDocs(t, f)
	f.addUnit(t, textUnit("d1:s0:u0", 0, 0, "introductions and agenda"), []float32{0.9, 0.1, 0, 0})
	f.addUnit(t, textUnit("d1:s1:u0", 1, 1, "closing remarks"), []float32{0.4, 0.9, 0, 0})

	evidence, err := f.planner.Plan(context.Background(), &models.Ask{Question: "what was the agenda?"})
	if err != nil {
		t.Fatalf("Plan failed: %v", err)
	}
	if len(evidence) != 2 {
		t.Fatalf("expected 2 evidence records, got %d", len(evidence))
	}
	if evidence[0].UnitID != "d1:s0:u0" {
		t.Errorf("top hit = %s", evidence[0].UnitID)
	}
	if evidence[0].Rank != 1 || evidence[1].Rank != 2 {
		t.Errorf("ranks = %d, %d", evidence[0].Rank, evidence[1].Rank)
	}
	if evidence[0].Score <= evidence[1].Score {
		t.Errorf("scores not descending: %f, %f", evidence[0].Score, evidence[1].Score)
	}
}

func TestPlanEmptyIndexYieldsEmptyEvidence(t *testing.T) {
	f := newFixture(t, []float32{1, 0, 0, 0})

	evidence, err := f.planner.Plan(context.Background(), &models.Ask{Question: "anything at all?"})
	if err != nil {
		t.Fatalf("Plan failed: %v", err)
	}
	if len(evidence) != 0 {
		t.Errorf("expected empty evidence, got %d", len(evidence))
	}
}

func TestPlanMinSimilarityFilters(t *testing.T) {
	f := newFixture(t, []float32{1, 0, 0, 0})
	setupDocs(t, f)
	f.addUnit(t, textUnit("d1:s0:u0", 0, 0, "relevant"), []float32{0.9, 0, 0, 0})
	f.addUnit(t, textUnit("d1:s1:u0", 1, 1, "barely related"), []float32{0.05, 0.99, 0, 0})

	evidence, err := f.planner.Plan(context.Background(), &models.Ask{Question: "something"})
	if err != nil {
		t.Fatalf("Plan failed: %v", err)
	}
	if len(evidence) != 1 || evidence[0].UnitID != "d1:s0:u0" {
		t.Errorf("evidence = %+v", evidence)
	}
}

func TestPlanNumericBoostPromotesTable(t *testing.T) {
	f := newFixture(t, []float32{1, 0, 0, 0})
	setupDocs(t, f)
	// Text scores 0.9; table scores 0.85 but boosts to ~1.06 on a numeric question.
	f.addUnit(t, textUnit("d1:s0:u0", 0, 0, "we discussed results"), []float32{0.9, 0, 0, 0})
	f.addUnit(t, tableUnit("d1:s1:u0", 1, 1, "Table: metric | reading"), []float32{0.85, 0, 0, 0})

	evidence, err := f.planner.Plan(context.Background(), &models.Ask{Question: "what was the average growth?"})
	if err != nil {
		t.Fatalf("Plan failed: %v", err)
	}
	if evidence[0].UnitID != "d1:s1:u0" {
		t.Errorf("numeric question should promote the table, got %s on top", evidence[0].UnitID)
	}

	// Without numeric vocabulary the text unit stays on top.
	evidence, err = f.planner.Plan(context.Background(), &models.Ask{Question: "what did we discuss?"})
	if err != nil {
		t.Fatalf("Plan failed: %v", err)
	}
	if evidence[0].UnitID != "d1:s0:u0" {
		t.Errorf("plain question should keep text on top, got %s", evidence[0].UnitID)
	}
}

func TestPlanKeywordBoost(t *testing.T) {
	f := newFixture(t, []float32{1, 0, 0, 0})
	setupDocs(t, f)
	f.addUnit(t, textUnit("d1:s0:u0", 0, 0, "general discussion"), []float32{0.9, 0, 0, 0})
	f.addUnit(t, textUnit("d1:s1:u0", 1, 1, "churn analysis deep dive"), []float32{0.85, 0, 0, 0})

	evidence, err := f.planner.Plan(context.Background(), &models.Ask{Question: "tell me about churn"})
	if err != nil {
		t.Fatalf("Plan failed: %v", err)
	}
	// 0.85 * 1.15 ≈ 0.98 > 0.9: the lexical match wins.
	if evidence[0].UnitID != "d1:s1:u0" {
		t.Errorf("keyword match should be promoted, got %s on top", evidence[0].UnitID)
	}
}

func TestPlanTieBreaksByDocumentOrder(t *testing.T) {
	f := newFixture(t, []float32{1, 0, 0, 0})
	setupDocs(t, f)
	vec := []float32{0.9, 0, 0, 0}
	f.addUnit(t, textUnit("d1:s2:u0", 2, 2, "same thing later"), vec)
	f.addUnit(t, textUnit("d1:s0:u1", 0, 1, "same thing early"), vec)
	f.addUnit(t, textUnit("d1:s0:u0", 0, 0, "same thing first"), vec)

	evidence, err := f.planner.Plan(context.Background(), &models.Ask{Question: "unrelated words entirely"})
	if err != nil {
		t.Fatalf("Plan failed: %v", err)
	}
	want := []string{"d1:s0:u0", "d1:s0:u1", "d1:s2:u0"}
	for i, id := range want {
		if evidence[i].UnitID != id {
			t.Errorf("position %d = %s, want %s", i, evidence[i].UnitID, id)
		}
	}
}

func TestPlanRespectsK(t *testing.T) {
	f := newFixture(t, []float32{1, 0, 0, 0})
	setupDocs(t, f)
	for i := 0; i < 5; i++ {
		f.addUnit(t, textUnit(fmt.Sprintf("d1:s%d:u0", i), i, i, fmt.Sprintf("topic %d", i)),
			[]float32{0.9 - float32(i)*0.01, 0, 0, 0})
	}

	evidence, err := f.planner.Plan(context.Background(), &models.Ask{Question: "topics?", K: 2})
	if err != nil {
		t.Fatalf("Plan failed: %v", err)
	}
	if len(evidence) != 2 {
		t.Errorf("expected 2 evidence records, got %d", len(evidence))
	}
}

func TestPlanEmptyQuestionRejected(t *testing.T) {
	f := newFixture(t, []float32{1, 0, 0, 0})
	if _, err := f.planner.Plan(context.Background(), &models.Ask{}); err == nil {
		t.Error("expected validation error for empty question")
	}
}

// failingIndex simulates an unreadable vector index.
type failingIndex struct {
	vector.Index
}

func (f *failingIndex) Search(ctx context.Context, query []float32, k int) ([]*vector.Result, error) {
	return nil, fmt.Errorf("disk gone")
}

func TestPlanIndexFailureReturnsIndexUnavailable(t *testing.T) {
	f := newFixture(t, []float32{1, 0, 0, 0})
	f.planner.index = &failingIndex{}

	_, err := f.planner.Plan(context.Background(), &models.Ask{Question: "anything"})
	if !errors.Is(err, models.ErrIndexUnavailable) {
		t.Errorf("expected ErrIndexUnavailable, got %v", err)
	}
}

func TestWantsNumeric(t *testing.T) {
	cases := []struct {
		question string
		want     bool
	}{
		{"what was the average growth?", true},
		{"how many regions grew?", true},
		{"compare Q1 and Q2", true},
		{"revenue in 2025", true},
		{"what percent churned?", true},
		{"who presented the roadmap?", false},
		{"what is the hiring plan?", false},
	}
	for _, c := range cases {
		if got := wantsNumeric(c.question); got != c.want {
			t.Errorf("wantsNumeric(%q) = %v, want %v", c.question, got, c.want)
		}
	}
}
