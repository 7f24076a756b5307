package handlers

import (
	"context"
	"encoding/json"
	"io"
	"log"
	"math"
	"net/http"
	"os"
	"path/filepath"
	"strconv"

	"github.com/google/uuid"

	"github.com/kozaktomas/face-gallery/internal/embedder"
	"github.com/kozaktomas/face-gallery/internal/gallery"
	"github.com/kozaktomas/face-gallery/internal/match"
	"github.com/kozaktomas/face-gallery/internal/registry"
)

// FaceDetector is the part of the embedding client recognition needs.
type FaceDetector interface {
	Available() bool
	DetectFaces(ctx context.Context, imageData []byte) (*embedder.FaceResponse, error)
}

// RecognizeHandler handles probe recognition and pairwise comparison.
type RecognizeHandler struct {
	store            *gallery.Store
	registry         *registry.Registry
	detector         FaceDetector
	defaultThreshold float64
	maxUpload        int64
}

// NewRecognizeHandler creates a new recognize handler.
func NewRecognizeHandler(store *gallery.Store, reg *registry.Registry, detector FaceDetector, defaultThreshold float64, maxUpload int64) *RecognizeHandler {
	return &RecognizeHandler{
		store:            store,
		registry:         reg,
		detector:         detector,
		defaultThreshold: defaultThreshold,
		maxUpload:        maxUpload,
	}
}

// faceResult is one recognized face in the probe image.
type faceResult struct {
	Name     string            `json:"name"`
	Distance *float64          `json:"distance"`
	Location embedder.Location `json:"location"`
}

// Recognize matches every face in the probe image against the gallery.
// The probe passes through a scratch file that is removed on every exit
// path. Exactly one registry entry records the first detected face.
func (h *RecognizeHandler) Recognize(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxUpload)
	if err := r.ParseMultipartForm(h.maxUpload); err != nil {
		respondError(w, http.StatusBadRequest, "failed to parse multipart form")
		return
	}

	file, header, err := r.FormFile("image")
	if err != nil {
		respondError(w, http.StatusBadRequest, "missing image field")
		return
	}
	defer file.Close()

	if !gallery.AllowedFilename(header.Filename) {
		respondError(w, http.StatusBadRequest, gallery.ErrNotAllowed.Error())
		return
	}

	data, err := io.ReadAll(file)
	if err != nil {
		respondError(w, http.StatusBadRequest, "failed to read uploaded image")
		return
	}

	threshold := h.defaultThreshold
	if v := r.FormValue("threshold"); v != "" {
		t, err := strconv.ParseFloat(v, 64)
		if err != nil || t < 0 || math.IsNaN(t) {
			respondError(w, http.StatusBadRequest, "invalid threshold")
			return
		}
		threshold = t
	}

	if !h.detector.Available() {
		respondError(w, http.StatusInternalServerError, embedder.ErrUnavailable.Error())
		return
	}

	scratch := filepath.Join(os.TempDir(), "face-gallery-"+uuid.NewString()+filepath.Ext(header.Filename))
	if err := os.WriteFile(scratch, data, 0o600); err != nil {
		respondError(w, http.StatusInternalServerError, "failed to save probe image")
		return
	}
	defer os.Remove(scratch)

	// Snapshot first, then release the lock for the embedder call so a
	// slow detection never blocks concurrent gallery mutations.
	snapshot := h.store.Snapshot()

	resp, err := h.detector.DetectFaces(r.Context(), data)
	if err != nil {
		respondError(w, http.StatusBadRequest, "failed to process image")
		return
	}

	results := make([]faceResult, 0, len(resp.Faces))
	for i := range resp.Faces {
		face := &resp.Faces[i]
		m := match.BestMatch(snapshot, face.Embedding, threshold)
		results = append(results, faceResult{
			Name:     m.Name,
			Distance: m.Distance,
			Location: face.Location(),
		})
	}

	if len(results) > 0 {
		first := results[0]
		var name *string
		if first.Name != match.Unknown {
			name = &first.Name
		}
		h.registry.Append(registry.NewEntry(name, first.Distance))
		log.Printf("Recognized %s", sanitizeForLog(first.Name))
	}

	respondJSON(w, http.StatusOK, map[string]any{"results": results})
}

// compareRequest is the JSON body for pairwise comparison.
type compareRequest struct {
	A         string   `json:"a"`
	B         string   `json:"b"`
	Threshold *float64 `json:"threshold"`
}

// Compare reports the distance between the first faces of two gallery
// images and whether they land within the threshold.
func (h *RecognizeHandler) Compare(w http.ResponseWriter, r *http.Request) {
	var req compareRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, errInvalidRequestBody)
		return
	}
	if req.A == "" || req.B == "" {
		respondError(w, http.StatusBadRequest, "both a and b filenames are required")
		return
	}

	threshold := h.defaultThreshold
	if req.Threshold != nil {
		if *req.Threshold < 0 || math.IsNaN(*req.Threshold) {
			respondError(w, http.StatusBadRequest, "invalid threshold")
			return
		}
		threshold = *req.Threshold
	}

	encA, err := h.store.EncodeFile(r.Context(), req.A)
	if err != nil {
		respondGalleryError(w, err)
		return
	}
	encB, err := h.store.EncodeFile(r.Context(), req.B)
	if err != nil {
		respondGalleryError(w, err)
		return
	}

	distance, matched := match.Compare(encA, encB, threshold)
	respondJSON(w, http.StatusOK, map[string]any{
		"a":        req.A,
		"b":        req.B,
		"distance": distance,
		"match":    matched,
	})
}
