package handlers

import (
	"errors"
	"io"
	"log"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/kozaktomas/face-gallery/internal/embedder"
	"github.com/kozaktomas/face-gallery/internal/gallery"
	"github.com/kozaktomas/face-gallery/internal/match"
)

// GalleryHandler handles the image collection endpoints: listing, raw
// serving, upload, delete and reload.
type GalleryHandler struct {
	store     *gallery.Store
	index     *match.Index
	maxUpload int64
}

// NewGalleryHandler creates a new gallery handler.
func NewGalleryHandler(store *gallery.Store, index *match.Index, maxUpload int64) *GalleryHandler {
	return &GalleryHandler{
		store:     store,
		index:     index,
		maxUpload: maxUpload,
	}
}

// List returns every image in the gallery with its face count.
func (h *GalleryHandler) List(w http.ResponseWriter, r *http.Request) {
	images, err := h.store.ListKnown()
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"images": images})
}

// Serve streams the raw image bytes. Disallowed names read as absent so
// nothing outside the gallery directory is ever reachable.
func (h *GalleryHandler) Serve(w http.ResponseWriter, r *http.Request) {
	filename := chi.URLParam(r, "filename")
	path, err := h.store.ImagePath(filename)
	if err != nil {
		respondError(w, http.StatusNotFound, "image not found")
		return
	}
	http.ServeFile(w, r, path)
}

// Upload accepts a multipart image under field "file" and adds it to the
// gallery under a collision-free name.
func (h *GalleryHandler) Upload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxUpload)
	if err := r.ParseMultipartForm(h.maxUpload); err != nil {
		respondError(w, http.StatusBadRequest, "failed to parse multipart form")
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		respondError(w, http.StatusBadRequest, "missing file field")
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		respondError(w, http.StatusBadRequest, "failed to read uploaded file")
		return
	}

	result, err := h.store.Upsert(r.Context(), header.Filename, data)
	if err != nil {
		respondGalleryError(w, err)
		return
	}
	h.index.Rebuild(h.store.Snapshot())

	log.Printf("Uploaded %s (%d faces)", sanitizeForLog(result.Filename), result.Faces)
	resp := map[string]any{
		"filename": result.Filename,
		"saved":    true,
		"faces":    result.Faces,
	}
	if result.DuplicateOf != "" {
		resp["duplicate_of"] = result.DuplicateOf
	}
	respondJSON(w, http.StatusCreated, resp)
}

// Delete removes the image and rebuilds the gallery from the remaining
// files. Deletion still succeeds when the embedding server is down; the
// rebuild then reports zero loaded faces.
func (h *GalleryHandler) Delete(w http.ResponseWriter, r *http.Request) {
	filename := chi.URLParam(r, "filename")

	loaded, err := h.store.Remove(r.Context(), filename)
	if err != nil && !errors.Is(err, embedder.ErrUnavailable) {
		if errors.Is(err, gallery.ErrNotFound) || errors.Is(err, gallery.ErrNotAllowed) {
			respondError(w, http.StatusNotFound, "image not found")
			return
		}
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	h.index.Rebuild(h.store.Snapshot())

	log.Printf("Deleted %s", sanitizeForLog(filename))
	respondJSON(w, http.StatusOK, map[string]any{
		"deleted":  true,
		"reloaded": map[string]int{"loaded": loaded},
	})
}

// Reload forces a full rebuild of the encodings cache from disk.
func (h *GalleryHandler) Reload(w http.ResponseWriter, r *http.Request) {
	loaded, err := h.store.RebuildFromDisk(r.Context(), nil)
	if err != nil {
		respondGalleryError(w, err)
		return
	}
	h.index.Rebuild(h.store.Snapshot())

	respondJSON(w, http.StatusOK, map[string]int{"loaded": loaded})
}

// Similar lists the approximate nearest neighbors of a gallery image.
func (h *GalleryHandler) Similar(w http.ResponseWriter, r *http.Request) {
	filename := chi.URLParam(r, "filename")

	entry, ok := h.store.Entry(filename)
	if !ok {
		respondError(w, http.StatusNotFound, "image not found")
		return
	}
	if entry.Encoding == nil {
		respondError(w, http.StatusBadRequest, "image has no face encoding")
		return
	}

	k := 5
	if v := r.URL.Query().Get("k"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			respondError(w, http.StatusBadRequest, "invalid k parameter")
			return
		}
		k = n
	}

	neighbors, err := h.index.Similar(entry.Encoding, filename, k)
	if err != nil {
		if errors.Is(err, match.ErrIndexEmpty) {
			respondJSON(w, http.StatusOK, map[string]any{"similar": []match.Neighbor{}})
			return
		}
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"similar": neighbors})
}
