package web

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/docmine/server/internal/store"
	"github.com/docmine/server/internal/web/middleware"
)

// relayInterval is how often the progress stream polls job status.
var relayInterval = time.Second

// handleImportCSV accepts a multipart CSV upload and submits it to the
// import queue. Broker-backed submissions answer 202 with a job ID to
// poll; inline submissions answer 200 with the finished result.
func (s *Server) handleImportCSV(w http.ResponseWriter, r *http.Request) {
	if err := s.limiter.Acquire(r.Context()); err != nil {
		respondError(w, r, err)
		return
	}
	defer s.limiter.Release()

	path, _, err := s.saveUpload(r, "file", s.cfg.Upload.MaxCSVBytes, ".csv")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	owner := middleware.UserID(r.Context())
	handle, err := s.queue.Submit(r.Context(), path, owner)
	if err != nil {
		os.Remove(path)
		respondError(w, r, err)
		return
	}

	if handle.Synchronous() {
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"jobId":  handle.ID,
			"status": "completed",
			"result": handle.Result,
		})
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]interface{}{
		"jobId":  handle.ID,
		"status": "queued",
	})
}

func (s *Server) handleImportStatus(w http.ResponseWriter, r *http.Request) {
	status, err := s.queue.GetStatus(r.Context(), chi.URLParam(r, "jobID"))
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, status)
}

// handleImportProgress streams job status over Server-Sent Events. Every
// second it polls the queue and pushes one snapshot; the stream ends
// with exactly one terminal or error event, or silently when the client
// goes away.
func (s *Server) handleImportProgress(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "jobID")
	if jobID == "" {
		writeError(w, http.StatusBadRequest, "missing job ID")
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	ticker := time.NewTicker(relayInterval)
	defer ticker.Stop()

	for {
		status, err := s.queue.GetStatus(r.Context(), jobID)
		switch {
		case errors.Is(err, store.ErrNotFound):
			pushEvent(w, flusher, map[string]string{"error": "Job not found"})
			return
		case err != nil:
			pushEvent(w, flusher, map[string]string{"error": err.Error()})
			return
		default:
			pushEvent(w, flusher, status)
			if status.Terminal() {
				return
			}
		}

		select {
		case <-ticker.C:
		case <-r.Context().Done():
			return
		}
	}
}

// pushEvent writes one SSE data frame.
func pushEvent(w io.Writer, flusher http.Flusher, v interface{}) {
	data, err := json.Marshal(v)
	if err != nil {
		return
	}
	fmt.Fprintf(w, "data: %s\n\n", data)
	flusher.Flush()
}

// saveUpload streams one multipart file into the upload directory under
// a random name and returns its path plus the client-supplied header.
func (s *Server) saveUpload(r *http.Request, field string, maxBytes int64, wantExt string) (string, *multipart.FileHeader, error) {
	r.Body = http.MaxBytesReader(nil, r.Body, maxBytes)

	file, header, err := r.FormFile(field)
	if err != nil {
		return "", nil, fmt.Errorf("read upload: %w", err)
	}
	defer file.Close()

	ext := strings.ToLower(filepath.Ext(header.Filename))
	if wantExt != "" && ext != wantExt {
		return "", nil, fmt.Errorf("unexpected file type %q, want %s", ext, wantExt)
	}

	if err := os.MkdirAll(s.cfg.Upload.Dir, 0o755); err != nil {
		return "", nil, fmt.Errorf("create upload dir: %w", err)
	}
	path := filepath.Join(s.cfg.Upload.Dir, uuid.NewString()+ext)

	dst, err := os.Create(path)
	if err != nil {
		return "", nil, fmt.Errorf("create upload file: %w", err)
	}
	if _, err := io.Copy(dst, file); err != nil {
		dst.Close()
		os.Remove(path)
		return "", nil, fmt.Errorf("write upload file: %w", err)
	}
	if err := dst.Close(); err != nil {
		os.Remove(path)
		return "", nil, fmt.Errorf("write upload file: %w", err)
	}
	return path, header, nil
}
