package web

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/docmine/server/internal/docparse"
	"github.com/docmine/server/internal/store"
	"github.com/docmine/server/internal/web/middleware"
)

// parseTimeout bounds background document parsing.
const parseTimeout = 2 * time.Minute

// handleUploadDocument stores an uploaded pdf or txt file and kicks off
// text extraction in the background. The response carries the document in
// its initial "uploaded" state; parsing progress is visible by refetching.
func (s *Server) handleUploadDocument(w http.ResponseWriter, r *http.Request) {
	if err := s.limiter.Acquire(r.Context()); err != nil {
		respondError(w, r, err)
		return
	}
	defer s.limiter.Release()

	path, header, err := s.saveUpload(r, "file", s.cfg.Upload.MaxDocumentBytes, "")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	ext := strings.TrimPrefix(filepath.Ext(path), ".")
	if !docparse.SupportedType(ext) {
		os.Remove(path)
		writeError(w, http.StatusBadRequest, "only pdf and txt documents are supported")
		return
	}

	title := strings.TrimSpace(r.FormValue("title"))
	if title == "" {
		title = header.Filename
	}

	owner := middleware.UserID(r.Context())
	doc := &store.Document{
		OwnerID:      owner,
		Title:        title,
		Filename:     filepath.Base(path),
		OriginalName: header.Filename,
		FilePath:     path,
		FileType:     ext,
		FileSize:     header.Size,
		Status:       store.DocumentUploaded,
		Tags:         splitTags(r.FormValue("tags")),
	}
	if err := s.documents.Create(r.Context(), doc); err != nil {
		os.Remove(path)
		respondError(w, r, err)
		return
	}

	s.events.Dispatch(r.Context(), owner, store.EventDocumentUploaded, doc)

	// Parsing happens off the request path; the upload response does not
	// wait for text extraction.
	go s.parseDocument(doc.ID, path, ext)

	writeJSON(w, http.StatusCreated, doc)
}

// parseDocument extracts text from the stored file and mines it for
// structured data, then records the outcome on the document row.
func (s *Server) parseDocument(id uuid.UUID, path, fileType string) {
	ctx, cancel := context.WithTimeout(context.Background(), parseTimeout)
	defer cancel()

	log := s.log.With("document_id", id)
	if err := s.documents.MarkParsing(ctx, id); err != nil {
		log.Error("could not mark document parsing", "error", err)
	}

	content, err := docparse.ExtractText(path, fileType)
	if err != nil {
		log.Error("document text extraction failed", "error", err)
		if serr := s.documents.SetFailed(ctx, id); serr != nil {
			log.Error("could not mark document failed", "error", serr)
		}
		return
	}

	analysis, err := docparse.Analyze(content, fileType)
	if err != nil {
		log.Error("document analysis failed", "error", err)
		if serr := s.documents.SetFailed(ctx, id); serr != nil {
			log.Error("could not mark document failed", "error", serr)
		}
		return
	}

	extracted, _ := json.Marshal(analysis.ExtractedData)
	metadata, _ := json.Marshal(analysis.Metadata)
	if err := s.documents.SetParsed(ctx, id, content, extracted, metadata); err != nil {
		log.Error("could not store parse results", "error", err)
		return
	}
	log.Info("document parsed",
		"words", analysis.ExtractedData.WordCount,
		"keywords", len(analysis.ExtractedData.Keywords),
	)
}

func (s *Server) handleListDocuments(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit := queryInt(q.Get("limit"), 50)
	if limit < 1 || limit > 500 {
		limit = 50
	}
	docs, total, err := s.documents.List(r.Context(), middleware.UserID(r.Context()),
		q.Get("search"), limit, queryInt(q.Get("offset"), 0))
	if err != nil {
		respondError(w, r, err)
		return
	}
	if docs == nil {
		docs = []store.Document{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"documents": docs,
		"total":     total,
	})
}

func (s *Server) handleGetDocument(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid document id")
		return
	}
	doc, err := s.documents.GetByID(r.Context(), middleware.UserID(r.Context()), id)
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

// handleDownloadDocument streams the stored file back under its original
// upload name.
func (s *Server) handleDownloadDocument(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid document id")
		return
	}
	doc, err := s.documents.GetByID(r.Context(), middleware.UserID(r.Context()), id)
	if err != nil {
		respondError(w, r, err)
		return
	}
	if _, err := os.Stat(doc.FilePath); err != nil {
		writeError(w, http.StatusNotFound, "file not found on server")
		return
	}

	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", doc.OriginalName))
	http.ServeFile(w, r, doc.FilePath)
}

func (s *Server) handleUpdateDocument(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid document id")
		return
	}
	var req struct {
		Title string   `json:"title"`
		Tags  []string `json:"tags"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	req.Title = strings.TrimSpace(req.Title)
	if req.Title == "" {
		writeError(w, http.StatusBadRequest, "title is required")
		return
	}
	if req.Tags == nil {
		req.Tags = []string{}
	}

	doc, err := s.documents.Update(r.Context(), middleware.UserID(r.Context()), id, req.Title, req.Tags)
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

func (s *Server) handleDeleteDocument(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid document id")
		return
	}

	doc, err := s.documents.Delete(r.Context(), middleware.UserID(r.Context()), id)
	if err != nil {
		respondError(w, r, err)
		return
	}
	if doc.FilePath != "" {
		if rmErr := os.Remove(doc.FilePath); rmErr != nil && !os.IsNotExist(rmErr) {
			s.log.Warn("could not remove document file", "path", doc.FilePath, "error", rmErr)
		}
	}
	writeJSON(w, http.StatusOK, map[string]bool{"deleted": true})
}

func splitTags(raw string) []string {
	tags := []string{}
	for _, t := range strings.Split(raw, ",") {
		if t = strings.TrimSpace(t); t != "" {
			tags = append(tags, t)
		}
	}
	return tags
}
