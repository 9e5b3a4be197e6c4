package handlers

import (
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/recychain/recychain/internal/evidence"
)

// EvidenceHandler stores and serves sanitization evidence blobs. Upload
// returns the content-addressed reference the sanitize endpoint expects.
type EvidenceHandler struct {
	Store evidence.Store
}

// Upload accepts an evidence document and returns its reference. The body
// may be a multipart form with a "file" part or the raw document itself.
func (h *EvidenceHandler) Upload(w http.ResponseWriter, r *http.Request) {
	var body io.Reader = r.Body

	if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/") {
		file, _, err := r.FormFile("file")
		if err != nil {
			JSONError(w, "multipart form must carry a 'file' part", http.StatusBadRequest)
			return
		}
		defer file.Close()
		body = file
	}

	ref, err := h.Store.Put(r.Context(), body)
	if err != nil {
		slog.Error("evidence upload failed", "error", err)
		JSONError(w, "failed to store evidence", http.StatusBadGateway)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]string{"evidence_ref": ref})
}

// Fetch streams a previously uploaded evidence document back to the caller.
func (h *EvidenceHandler) Fetch(w http.ResponseWriter, r *http.Request) {
	ref := chi.URLParam(r, "ref")
	if ref == "" {
		JSONError(w, "missing evidence reference", http.StatusBadRequest)
		return
	}

	data, err := h.Store.Get(r.Context(), ref)
	if err != nil {
		if errors.Is(err, evidence.ErrNotFound) {
			JSONError(w, "evidence not found", http.StatusNotFound)
			return
		}
		slog.Error("evidence fetch failed", "ref", ref, "error", err)
		JSONError(w, "failed to fetch evidence", http.StatusBadGateway)
		return
	}

	w.Header().Set("Content-Type", "application/octet-stream")
	w.Write(data)
}
