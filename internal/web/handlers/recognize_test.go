package handlers

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/kozaktomas/face-gallery/internal/embedder"
	"github.com/kozaktomas/face-gallery/internal/registry"
)

func newRecognizeHandler(env *testEnv) *RecognizeHandler {
	return NewRecognizeHandler(env.store, env.registry, env.detector, 0.6, 8<<20)
}

func seedGallery(t *testing.T, env *testEnv) {
	t.Helper()
	env.detector.responses["alice-bytes"] = faceResp([]float32{1, 0})
	env.detector.responses["bob-bytes"] = faceResp([]float32{0, 1})
	env.upload(t, "alice.jpg", []byte("alice-bytes"))
	env.upload(t, "bob.jpg", []byte("bob-bytes"))
}

func TestRecognize(t *testing.T) {
	env := newTestEnv(t, &fakeDetector{
		available: true,
		responses: map[string]*embedder.FaceResponse{},
	})
	seedGallery(t, env)

	// Probe with two faces: one near alice, one near nobody.
	env.detector.responses["probe-bytes"] = faceResp([]float32{0.99, 0.01}, []float32{10, 10})
	handler := newRecognizeHandler(env)

	body, contentType := multipartBody(t, "image", "probe.jpg", []byte("probe-bytes"), nil)
	req := httptest.NewRequest("POST", "/recognize", body)
	req.Header.Set("Content-Type", contentType)
	recorder := httptest.NewRecorder()
	handler.Recognize(recorder, req)

	assertStatusCode(t, recorder, http.StatusOK)
	var result struct {
		Results []struct {
			Name     string   `json:"name"`
			Distance *float64 `json:"distance"`
			Location struct {
				Top    int `json:"top"`
				Right  int `json:"right"`
				Bottom int `json:"bottom"`
				Left   int `json:"left"`
			} `json:"location"`
		} `json:"results"`
	}
	parseJSONResponse(t, recorder, &result)

	if len(result.Results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(result.Results))
	}
	if result.Results[0].Name != "alice" {
		t.Errorf("first result name = %q, want alice", result.Results[0].Name)
	}
	if result.Results[1].Name != "Unknown" {
		t.Errorf("second result name = %q, want Unknown", result.Results[1].Name)
	}
	if result.Results[0].Distance == nil {
		t.Error("matched result should carry a distance")
	}
	if result.Results[0].Location.Top != 20 || result.Results[0].Location.Left != 10 {
		t.Errorf("location = %+v", result.Results[0].Location)
	}

	// Exactly one registry entry for the first face.
	entries := env.registry.List()
	if len(entries) != 1 {
		t.Fatalf("registry has %d entries, want 1", len(entries))
	}
	if entries[0].Status != registry.StatusOK || entries[0].Name == nil || *entries[0].Name != "alice" {
		t.Errorf("registry entry = %+v", entries[0])
	}
}

func TestRecognizeUnknownLogsFailEntry(t *testing.T) {
	env := newTestEnv(t, &fakeDetector{
		available: true,
		responses: map[string]*embedder.FaceResponse{},
	})
	seedGallery(t, env)

	env.detector.responses["probe-bytes"] = faceResp([]float32{50, 50})
	handler := newRecognizeHandler(env)

	body, contentType := multipartBody(t, "image", "probe.jpg", []byte("probe-bytes"), nil)
	req := httptest.NewRequest("POST", "/recognize", body)
	req.Header.Set("Content-Type", contentType)
	recorder := httptest.NewRecorder()
	handler.Recognize(recorder, req)

	assertStatusCode(t, recorder, http.StatusOK)
	entries := env.registry.List()
	if len(entries) != 1 {
		t.Fatalf("registry has %d entries, want 1", len(entries))
	}
	if entries[0].Status != registry.StatusFail || entries[0].Name != nil {
		t.Errorf("registry entry = %+v", entries[0])
	}
}

func TestRecognizeNoFaces(t *testing.T) {
	env := newTestEnv(t, &fakeDetector{
		available: true,
		responses: map[string]*embedder.FaceResponse{},
	})
	seedGallery(t, env)
	handler := newRecognizeHandler(env)

	body, contentType := multipartBody(t, "image", "scenery.jpg", []byte("scenery-bytes"), nil)
	req := httptest.NewRequest("POST", "/recognize", body)
	req.Header.Set("Content-Type", contentType)
	recorder := httptest.NewRecorder()
	handler.Recognize(recorder, req)

	assertStatusCode(t, recorder, http.StatusOK)
	var result struct {
		Results []any `json:"results"`
	}
	parseJSONResponse(t, recorder, &result)
	if len(result.Results) != 0 {
		t.Errorf("results = %+v, want empty", result.Results)
	}
	if entries := env.registry.List(); len(entries) != 0 {
		t.Errorf("registry = %+v, want no entry when no face detected", entries)
	}
}

func TestRecognizeThresholdOverride(t *testing.T) {
	env := newTestEnv(t, &fakeDetector{
		available: true,
		responses: map[string]*embedder.FaceResponse{},
	})
	seedGallery(t, env)

	// Distance to alice is ~0.7: outside the default 0.6, inside 1.0.
	env.detector.responses["probe-bytes"] = faceResp([]float32{0.5, 0.5})
	handler := newRecognizeHandler(env)

	run := func(form map[string]string) string {
		body, contentType := multipartBody(t, "image", "probe.jpg", []byte("probe-bytes"), form)
		req := httptest.NewRequest("POST", "/recognize", body)
		req.Header.Set("Content-Type", contentType)
		recorder := httptest.NewRecorder()
		handler.Recognize(recorder, req)
		assertStatusCode(t, recorder, http.StatusOK)

		var result struct {
			Results []struct {
				Name string `json:"name"`
			} `json:"results"`
		}
		parseJSONResponse(t, recorder, &result)
		if len(result.Results) != 1 {
			t.Fatalf("expected 1 result, got %d", len(result.Results))
		}
		return result.Results[0].Name
	}

	if name := run(nil); name != "Unknown" {
		t.Errorf("default threshold name = %q, want Unknown", name)
	}
	if name := run(map[string]string{"threshold": "1.0"}); name == "Unknown" {
		t.Error("loose threshold should produce a match")
	}
	// Zero is a valid threshold meaning exact matches only.
	if name := run(map[string]string{"threshold": "0"}); name != "Unknown" {
		t.Errorf("zero threshold name = %q, want Unknown", name)
	}

	env.detector.responses["exact-bytes"] = faceResp([]float32{1, 0})
	body, contentType := multipartBody(t, "image", "exact.jpg", []byte("exact-bytes"), map[string]string{"threshold": "0"})
	req := httptest.NewRequest("POST", "/recognize", body)
	req.Header.Set("Content-Type", contentType)
	recorder := httptest.NewRecorder()
	handler.Recognize(recorder, req)
	assertStatusCode(t, recorder, http.StatusOK)
	var result struct {
		Results []struct {
			Name string `json:"name"`
		} `json:"results"`
	}
	parseJSONResponse(t, recorder, &result)
	if len(result.Results) != 1 || result.Results[0].Name != "alice" {
		t.Errorf("zero-threshold exact probe = %+v, want alice", result.Results)
	}
}

func countScratchFiles(t *testing.T) int {
	t.Helper()
	matches, err := filepath.Glob(filepath.Join(os.TempDir(), "face-gallery-*"))
	if err != nil {
		t.Fatalf("glob failed: %v", err)
	}
	return len(matches)
}

func TestRecognizeRemovesScratchFile(t *testing.T) {
	env := newTestEnv(t, &fakeDetector{
		available: true,
		responses: map[string]*embedder.FaceResponse{},
		errs:      map[string]error{"broken-bytes": errors.New("decode failed")},
	})
	seedGallery(t, env)
	env.detector.responses["probe-bytes"] = faceResp([]float32{1, 0})
	handler := newRecognizeHandler(env)

	before := countScratchFiles(t)

	// Success path.
	body, contentType := multipartBody(t, "image", "probe.jpg", []byte("probe-bytes"), nil)
	req := httptest.NewRequest("POST", "/recognize", body)
	req.Header.Set("Content-Type", contentType)
	recorder := httptest.NewRecorder()
	handler.Recognize(recorder, req)
	assertStatusCode(t, recorder, http.StatusOK)

	// Detection failure path.
	body, contentType = multipartBody(t, "image", "broken.jpg", []byte("broken-bytes"), nil)
	req = httptest.NewRequest("POST", "/recognize", body)
	req.Header.Set("Content-Type", contentType)
	recorder = httptest.NewRecorder()
	handler.Recognize(recorder, req)
	assertStatusCode(t, recorder, http.StatusBadRequest)

	if after := countScratchFiles(t); after != before {
		t.Errorf("scratch files left behind: %d before, %d after", before, after)
	}
}

func TestRecognizeValidation(t *testing.T) {
	env := newTestEnv(t, &fakeDetector{available: true})
	handler := newRecognizeHandler(env)

	// Missing image field.
	body, contentType := multipartBody(t, "file", "probe.jpg", []byte("probe-bytes"), nil)
	req := httptest.NewRequest("POST", "/recognize", body)
	req.Header.Set("Content-Type", contentType)
	recorder := httptest.NewRecorder()
	handler.Recognize(recorder, req)
	assertStatusCode(t, recorder, http.StatusBadRequest)

	// Bad thresholds: unparsable, negative, NaN.
	for _, v := range []string{"zero", "-0.5", "NaN"} {
		body, contentType = multipartBody(t, "image", "probe.jpg", []byte("probe-bytes"), map[string]string{"threshold": v})
		req = httptest.NewRequest("POST", "/recognize", body)
		req.Header.Set("Content-Type", contentType)
		recorder = httptest.NewRecorder()
		handler.Recognize(recorder, req)
		assertStatusCode(t, recorder, http.StatusBadRequest)
	}

	// Probe filename with a disallowed extension.
	body, contentType = multipartBody(t, "image", "probe.txt", []byte("probe-bytes"), nil)
	req = httptest.NewRequest("POST", "/recognize", body)
	req.Header.Set("Content-Type", contentType)
	recorder = httptest.NewRecorder()
	handler.Recognize(recorder, req)
	assertStatusCode(t, recorder, http.StatusBadRequest)
}

func TestRecognizeUnavailable(t *testing.T) {
	env := newTestEnv(t, &fakeDetector{available: false})
	handler := newRecognizeHandler(env)

	body, contentType := multipartBody(t, "image", "probe.jpg", []byte("probe-bytes"), nil)
	req := httptest.NewRequest("POST", "/recognize", body)
	req.Header.Set("Content-Type", contentType)
	recorder := httptest.NewRecorder()
	handler.Recognize(recorder, req)
	assertStatusCode(t, recorder, http.StatusInternalServerError)
}

func TestCompare(t *testing.T) {
	env := newTestEnv(t, &fakeDetector{
		available: true,
		responses: map[string]*embedder.FaceResponse{},
	})
	seedGallery(t, env)
	handler := newRecognizeHandler(env)

	payload, _ := json.Marshal(map[string]any{"a": "alice.jpg", "b": "bob.jpg"})
	req := httptest.NewRequest("POST", "/compare", bytes.NewReader(payload))
	recorder := httptest.NewRecorder()
	handler.Compare(recorder, req)

	assertStatusCode(t, recorder, http.StatusOK)
	var result struct {
		A        string  `json:"a"`
		B        string  `json:"b"`
		Distance float64 `json:"distance"`
		Match    bool    `json:"match"`
	}
	parseJSONResponse(t, recorder, &result)
	if result.A != "alice.jpg" || result.B != "bob.jpg" {
		t.Errorf("echo = %+v", result)
	}
	if result.Match {
		t.Error("orthogonal encodings should not match at the default threshold")
	}

	// Same file on both sides matches at distance zero.
	payload, _ = json.Marshal(map[string]any{"a": "alice.jpg", "b": "alice.jpg"})
	req = httptest.NewRequest("POST", "/compare", bytes.NewReader(payload))
	recorder = httptest.NewRecorder()
	handler.Compare(recorder, req)

	parseJSONResponse(t, recorder, &result)
	if !result.Match || result.Distance != 0 {
		t.Errorf("self compare = %+v", result)
	}

	// Threshold zero is accepted and means exact matches only.
	payload, _ = json.Marshal(map[string]any{"a": "alice.jpg", "b": "alice.jpg", "threshold": 0})
	req = httptest.NewRequest("POST", "/compare", bytes.NewReader(payload))
	recorder = httptest.NewRecorder()
	handler.Compare(recorder, req)

	assertStatusCode(t, recorder, http.StatusOK)
	parseJSONResponse(t, recorder, &result)
	if !result.Match {
		t.Errorf("zero-threshold self compare = %+v, want match", result)
	}
}

func TestCompareErrors(t *testing.T) {
	env := newTestEnv(t, &fakeDetector{
		available: true,
		responses: map[string]*embedder.FaceResponse{},
	})
	seedGallery(t, env)
	handler := newRecognizeHandler(env)

	tests := []struct {
		name   string
		body   string
		status int
	}{
		{"malformed JSON", "{broken", http.StatusBadRequest},
		{"missing filenames", `{"a":"","b":""}`, http.StatusBadRequest},
		{"absent file", `{"a":"alice.jpg","b":"ghost.jpg"}`, http.StatusNotFound},
		{"bad threshold", `{"a":"alice.jpg","b":"bob.jpg","threshold":-1}`, http.StatusBadRequest},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest("POST", "/compare", bytes.NewReader([]byte(tc.body)))
			recorder := httptest.NewRecorder()
			handler.Compare(recorder, req)
			assertStatusCode(t, recorder, tc.status)
		})
	}
}
