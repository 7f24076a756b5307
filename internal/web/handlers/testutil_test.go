package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/kozaktomas/face-gallery/internal/embedder"
	"github.com/kozaktomas/face-gallery/internal/gallery"
	"github.com/kozaktomas/face-gallery/internal/match"
	"github.com/kozaktomas/face-gallery/internal/registry"
)

// fakeDetector maps image payloads to canned face responses. It stands in
// for the embedding client in both the store and the recognize handler.
type fakeDetector struct {
	available bool
	ready     bool
	responses map[string]*embedder.FaceResponse
	errs      map[string]error
}

func (f *fakeDetector) Available() bool                { return f.available }
func (f *fakeDetector) Ready(ctx context.Context) bool { return f.ready }

func (f *fakeDetector) DetectFaces(ctx context.Context, data []byte) (*embedder.FaceResponse, error) {
	if !f.available {
		return nil, embedder.ErrUnavailable
	}
	key := string(data)
	if err, ok := f.errs[key]; ok {
		return nil, err
	}
	if resp, ok := f.responses[key]; ok {
		return resp, nil
	}
	return &embedder.FaceResponse{}, nil
}

func faceResp(encodings ...[]float32) *embedder.FaceResponse {
	resp := &embedder.FaceResponse{FacesCount: len(encodings)}
	for i, enc := range encodings {
		resp.Faces = append(resp.Faces, embedder.FaceDetection{
			FaceIndex: i,
			Embedding: enc,
			BBox:      []float64{10, 20, 30, 40},
		})
	}
	return resp
}

// testEnv bundles a store, registry and index over a temp directory.
type testEnv struct {
	store    *gallery.Store
	registry *registry.Registry
	index    *match.Index
	detector *fakeDetector
}

func newTestEnv(t *testing.T, detector *fakeDetector) *testEnv {
	t.Helper()
	dir := t.TempDir()
	store, err := gallery.NewStore(filepath.Join(dir, "images"), filepath.Join(dir, "encodings.json"), detector)
	if err != nil {
		t.Fatalf("NewStore() error = %v", err)
	}
	return &testEnv{
		store:    store,
		registry: registry.New(filepath.Join(dir, "registry.json"), store.Locker()),
		index:    match.NewIndex(),
		detector: detector,
	}
}

// upload adds an image to the gallery through the store.
func (env *testEnv) upload(t *testing.T, filename string, data []byte) {
	t.Helper()
	if _, err := env.store.Upsert(context.Background(), filename, data); err != nil {
		t.Fatalf("failed to seed %s: %v", filename, err)
	}
	env.index.Rebuild(env.store.Snapshot())
}

// multipartBody builds a multipart request body with one file field.
func multipartBody(t *testing.T, field, filename string, data []byte, form map[string]string) (io.Reader, string) {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	part, err := w.CreateFormFile(field, filename)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := part.Write(data); err != nil {
		t.Fatal(err)
	}
	for key, value := range form {
		if err := w.WriteField(key, value); err != nil {
			t.Fatal(err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}
	return &buf, w.FormDataContentType()
}

// requestWithChiParams creates a request with chi URL parameters.
func requestWithChiParams(r *http.Request, params map[string]string) *http.Request {
	rctx := chi.NewRouteContext()
	for key, value := range params {
		rctx.URLParams.Add(key, value)
	}
	return r.WithContext(context.WithValue(r.Context(), chi.RouteCtxKey, rctx))
}

// parseJSONResponse parses a JSON response body into the target type.
func parseJSONResponse(t *testing.T, recorder *httptest.ResponseRecorder, target any) {
	t.Helper()
	if err := json.Unmarshal(recorder.Body.Bytes(), target); err != nil {
		t.Fatalf("failed to parse JSON response: %v\nBody: %s", err, recorder.Body.String())
	}
}

// assertStatusCode checks if the response has the expected status code.
func assertStatusCode(t *testing.T, recorder *httptest.ResponseRecorder, expected int) {
	t.Helper()
	if recorder.Code != expected {
		t.Errorf("expected status %d, got %d\nBody: %s", expected, recorder.Code, recorder.Body.String())
	}
}
