package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/deckardhq/deckard/internal/models"
)

// SQLiteStorage implements Storage using SQLite.
type SQLiteStorage struct {
	db *sql.DB
}

// NewSQLiteStorage opens or creates a SQLite database at dbPath and initializes
// the schema. Parent directories are created if they do not exist.
func NewSQLiteStorage(dbPath string) (*SQLiteStorage, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable WAL: %w", err)
	}

	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return &SQLiteStorage{db: db}, nil
}

func initSchema(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS documents (
		id TEXT PRIMARY KEY,
		title TEXT NOT NULL,
		format TEXT NOT NULL,
		slide_count INTEGER NOT NULL,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_documents_created_at ON documents(created_at);

	CREATE TABLE IF NOT EXISTS slides (
		document_id TEXT NOT NULL,
		slide_index INTEGER NOT NULL,
		PRIMARY KEY (document_id, slide_index),
		FOREIGN KEY (document_id) REFERENCES documents(id) ON DELETE CASCADE
	);

	CREATE TABLE IF NOT EXISTS content_units (
		id TEXT PRIMARY KEY,
		document_id TEXT NOT NULL,
		slide_index INTEGER NOT NULL,
		ordinal INTEGER NOT NULL,
		kind TEXT NOT NULL,
		payload TEXT NOT NULL,
		region TEXT,
		canonical_text TEXT NOT NULL,
		indexed INTEGER NOT NULL DEFAULT 0,
		FOREIGN KEY (document_id) REFERENCES documents(id) ON DELETE CASCADE
	);

	CREATE INDEX IF NOT EXISTS idx_units_document ON content_units(document_id, slide_index, ordinal);
	CREATE INDEX IF NOT EXISTS idx_units_indexed ON content_units(indexed);
	`
	_, err := db.Exec(schema)
	return err
}

// unitPayload is the JSON shape stored in the payload column. Exactly one
// field is set, matching the unit's kind.
type unitPayload struct {
	Text  string               `json:"text,omitempty"`
	Table *models.TablePayload `json:"table,omitempty"`
	Chart *models.ChartPayload `json:"chart,omitempty"`
}

// CreateDocument inserts a document.
func (s *SQLiteStorage) CreateDocument(ctx context.Context, doc *models.Document) error {
	if doc.CreatedAt.IsZero() {
		doc.CreatedAt = time.Now()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO documents (id, title, format, slide_count, created_at)
		 VALUES (?, ?, ?, ?, ?)`,
		doc.ID, doc.Title, doc.Format, doc.SlideCount, doc.CreatedAt,
	)
	return err
}

// GetDocument returns a document by ID.
func (s *SQLiteStorage) GetDocument(ctx context.Context, id string) (*models.Document, error) {
	var doc models.Document
	err := s.db.QueryRowContext(ctx,
		`SELECT id, title, format, slide_count, created_at FROM documents WHERE id = ?`, id,
	).Scan(&doc.ID, &doc.Title, &doc.Format, &doc.SlideCount, &doc.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("document not found: %s", id)
	}
	if err != nil {
		return nil, err
	}
	return &doc, nil
}

// ListDocuments returns all documents, newest first.
func (s *SQLiteStorage) ListDocuments(ctx context.Context) ([]*models.Document, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, title, format, slide_count, created_at FROM documents ORDER BY created_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var docs []*models.Document
	for rows.Next() {
		var doc models.Document
		if err := rows.Scan(&doc.ID, &doc.Title, &doc.Format, &doc.SlideCount, &doc.CreatedAt); err != nil {
			return nil, err
		}
		docs = append(docs, &doc)
	}
	return docs, rows.Err()
}

// CreateSlides inserts a document's slide positions in one transaction.
func (s *SQLiteStorage) CreateSlides(ctx context.Context, slides []*models.Slide) error {
	if len(slides) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO slides (document_id, slide_index) VALUES (?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, sl := range slides {
		if _, err := stmt.ExecContext(ctx, sl.DocumentID, sl.Index); err != nil {
			return fmt.Errorf("failed to insert slide %d of %s: %w", sl.Index, sl.DocumentID, err)
		}
	}
	return tx.Commit()
}

// ListSlidesByDocument returns a document's slides in order, each with the
// IDs of its units in intra-slide order.
func (s *SQLiteStorage) ListSlidesByDocument(ctx context.Context, docID string) ([]*models.Slide, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT slide_index FROM slides WHERE document_id = ? ORDER BY slide_index`, docID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var slides []*models.Slide
	byIndex := make(map[int]*models.Slide)
	for rows.Next() {
		sl := &models.Slide{DocumentID: docID}
		if err := rows.Scan(&sl.Index); err != nil {
			return nil, err
		}
		slides = append(slides, sl)
		byIndex[sl.Index] = sl
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	unitRows, err := s.db.QueryContext(ctx,
		`SELECT id, slide_index FROM content_units WHERE document_id = ? ORDER BY slide_index, ordinal`, docID)
	if err != nil {
		return nil, err
	}
	defer unitRows.Close()
	for unitRows.Next() {
		var unitID string
		var idx int
		if err := unitRows.Scan(&unitID, &idx); err != nil {
			return nil, err
		}
		if sl, ok := byIndex[idx]; ok {
			sl.UnitIDs = append(sl.UnitIDs, unitID)
		}
	}
	return slides, unitRows.Err()
}

// CreateUnits inserts units in one transaction.
func (s *SQLiteStorage) CreateUnits(ctx context.Context, units []*models.ContentUnit) error {
	if len(units) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO content_units (id, document_id, slide_index, ordinal, kind, payload, region, canonical_text, indexed)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, u := range units {
		payloadJSON, err := json.Marshal(unitPayload{Text: u.Text, Table: u.Table, Chart: u.Chart})
		if err != nil {
			return fmt.Errorf("failed to marshal payload for %s: %w", u.ID, err)
		}
		var regionJSON sql.NullString
		if u.Region != nil {
			b, err := json.Marshal(u.Region)
			if err != nil {
				return fmt.Errorf("failed to marshal region for %s: %w", u.ID, err)
			}
			regionJSON = sql.NullString{String: string(b), Valid: true}
		}
		if _, err := stmt.ExecContext(ctx,
			u.ID, u.DocumentID, u.SlideIndex, u.Ordinal, string(u.Kind),
			string(payloadJSON), regionJSON, u.CanonicalText, boolToInt(u.Indexed),
		); err != nil {
			return fmt.Errorf("failed to insert unit %s: %w", u.ID, err)
		}
	}
	return tx.Commit()
}

// GetUnit returns a unit by ID.
func (s *SQLiteStorage) GetUnit(ctx context.Context, id string) (*models.ContentUnit, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, document_id, slide_index, ordinal, kind, payload, region, canonical_text, indexed
		 FROM content_units WHERE id = ?`, id)
	unit, err := scanUnit(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("unit not found: %s", id)
	}
	return unit, err
}

// ListUnitsByDocument returns a document's units in document order.
func (s *SQLiteStorage) ListUnitsByDocument(ctx context.Context, docID string) ([]*models.ContentUnit, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, document_id, slide_index, ordinal, kind, payload, region, canonical_text, indexed
		 FROM content_units WHERE document_id = ? ORDER BY slide_index, ordinal`, docID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanUnits(rows)
}

// ListUnindexed returns units whose embeddings have not been stored yet.
func (s *SQLiteStorage) ListUnindexed(ctx context.Context) ([]*models.ContentUnit, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, document_id, slide_index, ordinal, kind, payload, region, canonical_text, indexed
		 FROM content_units WHERE indexed = 0 ORDER BY document_id, slide_index, ordinal`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanUnits(rows)
}

// MarkIndexed flips the indexed flag for the given unit IDs.
func (s *SQLiteStorage) MarkIndexed(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `UPDATE content_units SET indexed = 1 WHERE id = ?`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, id := range ids {
		if _, err := stmt.ExecContext(ctx, id); err != nil {
			return fmt.Errorf("failed to mark %s indexed: %w", id, err)
		}
	}
	return tx.Commit()
}

// CountDocuments returns the number of documents.
func (s *SQLiteStorage) CountDocuments(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM documents`).Scan(&n)
	return n, err
}

// CountUnits returns the indexed and pending unit counts.
func (s *SQLiteStorage) CountUnits(ctx context.Context) (int, int, error) {
	var indexed, pending int
	err := s.db.QueryRowContext(ctx,
		`SELECT
			COALESCE(SUM(CASE WHEN indexed = 1 THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN indexed = 0 THEN 1 ELSE 0 END), 0)
		 FROM content_units`).Scan(&indexed, &pending)
	return indexed, pending, err
}

// Close closes the database.
func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUnit(row rowScanner) (*models.ContentUnit, error) {
	var u models.ContentUnit
	var kind, payloadJSON string
	var regionJSON sql.NullString
	var indexed int
	if err := row.Scan(&u.ID, &u.DocumentID, &u.SlideIndex, &u.Ordinal, &kind,
		&payloadJSON, &regionJSON, &u.CanonicalText, &indexed); err != nil {
		return nil, err
	}
	u.Kind = models.UnitKind(kind)
	u.Indexed = indexed != 0

	var payload unitPayload
	if err := json.Unmarshal([]byte(payloadJSON), &payload); err != nil {
		return nil, fmt.Errorf("failed to unmarshal payload for %s: %w", u.ID, err)
	}
	u.Text = payload.Text
	u.Table = payload.Table
	u.Chart = payload.Chart

	if regionJSON.Valid {
		var region models.Region
		if err := json.Unmarshal([]byte(regionJSON.String), &region); err != nil {
			return nil, fmt.Errorf("failed to unmarshal region for %s: %w", u.ID, err)
		}
		u.Region = &region
	}
	return &u, nil
}

func scanUnits(rows *sql.Rows) ([]*models.ContentUnit, error) {
	var units []*models.ContentUnit
	for rows.Next() {
		u, err := scanUnit(rows)
		if err != nil {
			return nil, err
		}
		units = append(units, u)
	}
	return units, rows.Err()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
