package compose

import (
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/deckardhq/deckard/internal/llm"
	"github.com/deckardhq/deckard/internal/models"
	"github.com/deckardhq/deckard/internal/storage"
)

func newStore(t *testing.T, units ...*models.ContentUnit) *storage.SQLiteStorage {
	t.Helper()
	store, err := storage.NewSQLiteStorage(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("storage: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	if len(units) > 0 {
		if err := store.CreateUnits(context.Background(), units); err != nil {
			t.Fatalf("CreateUnits: %v", err)
		}
	}
	return store
}

func unit(id string, slide int, text string) *models.ContentUnit {
	return &models.ContentUnit{
		ID: id, DocumentID: "d1", SlideIndex: slide,
		Kind: models.KindText, Text: text, CanonicalText: text,
	}
}

func TestComposeEmptyEvidenceSkipsModel(t *testing.T) {
	client := &llm.ScriptedClient{Replies: []string{"should never be used"}}
	c := New(Config{Client: client, Store: newStore(t)})

	answer, err := c.Compose(context.Background(), "anything?", nil)
	if err != nil {
		t.Fatalf("Compose failed: %v", err)
	}
	if !answer.NoMatch {
		t.Error("expected NoMatch")
	}
	if answer.Text != NoMatchText {
		t.Errorf("text = %q", answer.Text)
	}
	if len(answer.Citations) != 0 {
		t.Errorf("citations = %v", answer.Citations)
	}
	if client.Calls != 0 {
		t.Errorf("model called %d times on empty evidence", client.Calls)
	}
}

func TestComposeCitesSuppliedEvidence(t *testing.T) {
	store := newStore(t,
		unit("d1:s0:u0", 0, "Revenue grew 12% in EMEA"),
		unit("d1:s1:u0", 1, "Headcount stayed flat"),
	)
	client := &llm.ScriptedClient{Replies: []string{
		"Revenue grew 12% in EMEA [d1:s0:u0] while headcount stayed flat [d1:s1:u0].",
	}}
	c := New(Config{Client: client, Store: store})

	evidence := []models.Evidence{
		{UnitID: "d1:s0:u0", Score: 0.9, Rank: 1},
		{UnitID: "d1:s1:u0", Score: 0.7, Rank: 2},
	}
	answer, err := c.Compose(context.Background(), "how did revenue do?", evidence)
	if err != nil {
		t.Fatalf("Compose failed: %v", err)
	}
	if answer.NoMatch {
		t.Error("unexpected NoMatch")
	}
	if len(answer.Citations) != 2 || answer.Citations[0] != "d1:s0:u0" || answer.Citations[1] != "d1:s1:u0" {
		t.Errorf("citations = %v", answer.Citations)
	}
	if answer.Confidence <= 0 {
		t.Errorf("confidence = %f", answer.Confidence)
	}
	if len(answer.Evidence) != 2 {
		t.Errorf("evidence should be carried through, got %d", len(answer.Evidence))
	}
}

func TestComposeDropsFabricatedCitations(t *testing.T) {
	store := newStore(t, unit("d1:s0:u0", 0, "Revenue grew"))
	client := &llm.ScriptedClient{Replies: []string{
		"Revenue grew [d1:s0:u0], and margins improved [d9:s4:u2].",
	}}
	c := New(Config{Client: client, Store: store})

	answer, err := c.Compose(context.Background(), "q", []models.Evidence{{UnitID: "d1:s0:u0", Score: 0.8, Rank: 1}})
	if err != nil {
		t.Fatalf("Compose failed: %v", err)
	}
	if len(answer.Citations) != 1 || answer.Citations[0] != "d1:s0:u0" {
		t.Errorf("fabricated citation should be dropped, got %v", answer.Citations)
	}
}

func TestComposeDeduplicatesCitations(t *testing.T) {
	store := newStore(t, unit("d1:s0:u0", 0, "Revenue grew"))
	client := &llm.ScriptedClient{Replies: []string{
		"Revenue grew [d1:s0:u0]. It really did [d1:s0:u0].",
	}}
	c := New(Config{Client: client, Store: store})

	answer, err := c.Compose(context.Background(), "q", []models.Evidence{{UnitID: "d1:s0:u0", Score: 0.8, Rank: 1}})
	if err != nil {
		t.Fatalf("Compose failed: %v", err)
	}
	if len(answer.Citations) != 1 {
		t.Errorf("citations = %v", answer.Citations)
	}
}

func TestComposeExtractiveFallbackWithoutClient(t *testing.T) {
	store := newStore(t, unit("d1:s2:u0", 2, "Churn dropped to 3%"))
	c := New(Config{Store: store})

	answer, err := c.Compose(context.Background(), "churn?", []models.Evidence{{UnitID: "d1:s2:u0", Score: 0.8, Rank: 1}})
	if err != nil {
		t.Fatalf("Compose failed: %v", err)
	}
	if !strings.Contains(answer.Text, "Churn dropped to 3%") {
		t.Errorf("extractive text = %q", answer.Text)
	}
	if !strings.Contains(answer.Text, "Slide 3") {
		t.Errorf("extractive text should name the slide, got %q", answer.Text)
	}
	if len(answer.Citations) != 1 || answer.Citations[0] != "d1:s2:u0" {
		t.Errorf("citations = %v", answer.Citations)
	}
}

func TestComposeExtractiveFallbackOnModelFailure(t *testing.T) {
	store := newStore(t, unit("d1:s0:u0", 0, "Key result"))
	client := &llm.ScriptedClient{Err: context.DeadlineExceeded}
	c := New(Config{Client: client, Store: store})

	answer, err := c.Compose(context.Background(), "q", []models.Evidence{{UnitID: "d1:s0:u0", Score: 0.8, Rank: 1}})
	if err != nil {
		t.Fatalf("Compose failed: %v", err)
	}
	if !strings.Contains(answer.Text, "Key result") {
		t.Errorf("fallback text = %q", answer.Text)
	}
}

func TestComposeCapsPromptEvidence(t *testing.T) {
	units := []*models.ContentUnit{
		unit("d1:s0:u0", 0, "one"), unit("d1:s1:u0", 1, "two"), unit("d1:s2:u0", 2, "three"),
	}
	store := newStore(t, units...)
	client := &llm.ScriptedClient{Replies: []string{"answer [d1:s0:u0]"}}
	c := New(Config{Client: client, Store: store, MaxEvidence: 2})

	evidence := []models.Evidence{
		{UnitID: "d1:s0:u0", Score: 0.9, Rank: 1},
		{UnitID: "d1:s1:u0", Score: 0.8, Rank: 2},
		{UnitID: "d1:s2:u0", Score: 0.7, Rank: 3},
	}
	answer, err := c.Compose(context.Background(), "q", evidence)
	if err != nil {
		t.Fatalf("Compose failed: %v", err)
	}
	// The full evidence list is still reported even though the prompt was capped.
	if len(answer.Evidence) != 3 {
		t.Errorf("evidence = %d", len(answer.Evidence))
	}
}
