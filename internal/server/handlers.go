package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/deckardhq/deckard/internal/models"
)

// maxUploadBytes caps deck uploads at 100 MiB.
const maxUploadBytes = 100 << 20

// handleUpload ingests a deck from a multipart form (field "file") or a raw
// body with the filename in the X-Filename header.
func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)

	content, filename, err := readUpload(r)
	if err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	ext := strings.ToLower(filepath.Ext(filename))
	name := strings.TrimSuffix(filepath.Base(filename), filepath.Ext(filename))
	s.logger.Debug("upload request", zap.String("filename", filename), zap.Int("bytes", len(content)))

	report, err := s.pipeline.Ingest(r.Context(), content, ext, name)
	switch {
	case errors.Is(err, models.ErrUnsupportedFormat):
		s.respondError(w, http.StatusUnsupportedMediaType, err.Error())
		return
	case errors.Is(err, models.ErrCorruptDocument):
		s.respondError(w, http.StatusUnprocessableEntity, err.Error())
		return
	case err != nil:
		s.logger.Error("ingestion failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.respondJSON(w, http.StatusCreated, report)
}

func readUpload(r *http.Request) ([]byte, string, error) {
	contentType := r.Header.Get("Content-Type")
	if strings.HasPrefix(contentType, "multipart/form-data") {
		file, header, err := r.FormFile("file")
		if err != nil {
			return nil, "", errors.New("missing multipart field \"file\"")
		}
		defer file.Close()
		content, err := io.ReadAll(file)
		if err != nil {
			return nil, "", err
		}
		return content, header.Filename, nil
	}

	filename := r.Header.Get("X-Filename")
	if filename == "" {
		return nil, "", errors.New("X-Filename header required for raw uploads")
	}
	content, err := io.ReadAll(r.Body)
	if err != nil {
		return nil, "", err
	}
	if len(content) == 0 {
		return nil, "", errors.New("empty request body")
	}
	return content, filename, nil
}

func (s *Server) handleListDocuments(w http.ResponseWriter, r *http.Request) {
	docs, err := s.storage.ListDocuments(r.Context())
	if err != nil {
		s.logger.Error("list documents failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if docs == nil {
		docs = []*models.Document{}
	}
	s.respondJSON(w, http.StatusOK, docs)
}

func (s *Server) handleGetDocument(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	doc, err := s.storage.GetDocument(r.Context(), id)
	if err != nil {
		s.respondError(w, http.StatusNotFound, "document not found")
		return
	}
	slides, err := s.storage.ListSlidesByDocument(r.Context(), id)
	if err != nil {
		s.logger.Error("list slides failed", zap.String("document_id", id), zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	units, err := s.storage.ListUnitsByDocument(r.Context(), id)
	if err != nil {
		s.logger.Error("list units failed", zap.String("document_id", id), zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]any{"document": doc, "slides": slides, "units": units})
}

func (s *Server) handleAsk(w http.ResponseWriter, r *http.Request) {
	var ask models.Ask
	if err := json.NewDecoder(r.Body).Decode(&ask); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := ask.Validate(); err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	s.logger.Debug("ask request", zap.String("question", ask.Question), zap.Int("k", ask.K))

	evidence, err := s.planner.Plan(r.Context(), &ask)
	if err != nil {
		if errors.Is(err, models.ErrIndexUnavailable) {
			s.respondError(w, http.StatusServiceUnavailable, err.Error())
			return
		}
		s.logger.Error("planning failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	answer, err := s.composer.Compose(r.Context(), ask.Question, evidence)
	if err != nil {
		s.logger.Error("composition failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, answer)
}

// handleUnitChart returns a chart unit's structured payload so the UI can
// regenerate an interactive chart. Read-only access to already-indexed data.
func (s *Server) handleUnitChart(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	unit, err := s.storage.GetUnit(r.Context(), id)
	if err != nil {
		s.respondError(w, http.StatusNotFound, "unit not found")
		return
	}
	if unit.Kind != models.KindChart || unit.Chart == nil {
		s.respondError(w, http.StatusBadRequest, "unit is not a chart")
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]any{
		"unit_id":     unit.ID,
		"document_id": unit.DocumentID,
		"slide_index": unit.SlideIndex,
		"region":      unit.Region,
		"chart":       unit.Chart,
	})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	docCount, err := s.storage.CountDocuments(ctx)
	if err != nil {
		s.logger.Error("status: count documents failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	indexed, pending, err := s.storage.CountUnits(ctx)
	if err != nil {
		s.logger.Error("status: count units failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]any{
		"documents":         docCount,
		"units_indexed":     indexed,
		"units_pending":     pending,
		"vector_index_size": s.index.Size(),
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func (s *Server) respondError(w http.ResponseWriter, status int, message string) {
	s.respondJSON(w, status, map[string]string{"error": message})
}
