package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"path/filepath"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/yuchen-w/papyra/internal/config"
	"github.com/yuchen-w/papyra/internal/services"
)

type DocumentHandler struct {
	docs *services.DocumentService
	cfg  *config.Config
}

func NewDocumentHandler(docs *services.DocumentService, cfg *config.Config) *DocumentHandler {
	return &DocumentHandler{docs: docs, cfg: cfg}
}

// UploadDocument accepts a multipart PDF upload and submits it to the
// fingerprint gate. A duplicate of an already-known document returns
// the existing record with 200 instead of creating a new one.
func (h *DocumentHandler) UploadDocument(w http.ResponseWriter, r *http.Request) {
	maxBytes := int64(h.cfg.MaxUploadMB) << 20
	r.Body = http.MaxBytesReader(w, r.Body, maxBytes+1<<20)

	if err := r.ParseMultipartForm(maxBytes); err != nil {
		http.Error(w, "invalid multipart body", http.StatusBadRequest)
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		http.Error(w, "missing file field", http.StatusBadRequest)
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		http.Error(w, "could not read upload", http.StatusBadRequest)
		return
	}

	// Strip any path components a client might smuggle in.
	filename := filepath.Base(header.Filename)

	doc, created, err := h.docs.Submit(r.Context(), filename, data)
	if err != nil {
		switch {
		case errors.Is(err, services.ErrEmptyFile), errors.Is(err, services.ErrNotPDF):
			http.Error(w, err.Error(), http.StatusBadRequest)
		case errors.Is(err, services.ErrFileTooLarge):
			http.Error(w, err.Error(), http.StatusRequestEntityTooLarge)
		default:
			log.Printf("api: upload %s failed: %v", filename, err)
			http.Error(w, "upload failed", http.StatusInternalServerError)
		}
		return
	}

	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	writeJSON(w, status, doc)
}

// GetDocument returns one document's metadata and processing state.
func (h *DocumentHandler) GetDocument(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	doc, err := h.docs.Get(r.Context(), id)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if doc == nil {
		http.Error(w, "document not found", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

// ListDocuments returns a page of documents plus the total count.
func (h *DocumentHandler) ListDocuments(w http.ResponseWriter, r *http.Request) {
	offset := queryInt(r, "offset", 0)
	limit := queryInt(r, "limit", 50)
	if limit > 200 {
		limit = 200
	}

	docs, total, err := h.docs.List(r.Context(), offset, limit)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"documents": docs,
		"total":     total,
		"offset":    offset,
		"limit":     limit,
	})
}

// RetryDocument re-queues a failed document against its stored bytes.
func (h *DocumentHandler) RetryDocument(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	doc, err := h.docs.Retry(r.Context(), id)
	if err != nil {
		if errors.Is(err, services.ErrNotFailed) {
			http.Error(w, err.Error(), http.StatusConflict)
			return
		}
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if doc == nil {
		http.Error(w, "document not found", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("api: encode response: %v", err)
	}
}

func queryInt(r *http.Request, key string, def int) int {
	v := r.URL.Query().Get(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return def
	}
	return n
}
