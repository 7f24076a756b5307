package match

import (
	"errors"
	"math"
	"testing"

	"github.com/kozaktomas/face-gallery/internal/gallery"
)

func snapshot() []gallery.Entry {
	return []gallery.Entry{
		{Filename: "alice.jpg", Name: "alice", Encoding: []float32{1, 0, 0}},
		{Filename: "bob.jpg", Name: "bob", Encoding: []float32{0, 1, 0}},
		{Filename: "carol.jpg", Name: "carol", Encoding: []float32{0, 0, 1}},
		{Filename: "scenery.jpg", Name: "scenery"}, // no face, must be skipped
	}
}

func TestBestMatch(t *testing.T) {
	tests := []struct {
		name      string
		probe     []float32
		threshold float64
		wantName  string
		wantFile  string
		matched   bool
	}{
		{
			name:      "exact hit",
			probe:     []float32{1, 0, 0},
			threshold: 0.6,
			wantName:  "alice",
			wantFile:  "alice.jpg",
			matched:   true,
		},
		{
			name:      "close to bob",
			probe:     []float32{0.1, 0.95, 0},
			threshold: 0.6,
			wantName:  "bob",
			wantFile:  "bob.jpg",
			matched:   true,
		},
		{
			name:      "nearest is beyond threshold",
			probe:     []float32{10, 10, 10},
			threshold: 0.6,
			wantName:  Unknown,
		},
		{
			name:      "distance equal to threshold still matches",
			probe:     []float32{1, 0.5, 0},
			threshold: 0.5,
			wantName:  "alice",
			wantFile:  "alice.jpg",
			matched:   true,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := BestMatch(snapshot(), tc.probe, tc.threshold)
			if got.Name != tc.wantName || got.Filename != tc.wantFile || got.Matched != tc.matched {
				t.Errorf("BestMatch() = %+v, want name=%q file=%q matched=%v",
					got, tc.wantName, tc.wantFile, tc.matched)
			}
			if got.Distance == nil {
				t.Error("Distance should be reported for a non-empty gallery")
			}
		})
	}
}

func TestBestMatchEmptyGallery(t *testing.T) {
	got := BestMatch(nil, []float32{1, 0}, 0.6)
	if got.Name != Unknown || got.Matched {
		t.Errorf("BestMatch() = %+v, want Unknown", got)
	}
	if got.Distance != nil {
		t.Errorf("Distance = %v, want nil for empty gallery", *got.Distance)
	}
}

func TestBestMatchKeepsDistanceForUnknown(t *testing.T) {
	// A miss still reports how close the nearest entry was.
	got := BestMatch(snapshot(), []float32{1, 0.3, 0}, 0.2)
	if got.Name != Unknown {
		t.Fatalf("Name = %q, want Unknown", got.Name)
	}
	if got.Distance == nil {
		t.Fatal("Distance should be reported even for Unknown")
	}
	if math.Abs(*got.Distance-0.3) > 1e-6 {
		t.Errorf("Distance = %v, want 0.3", *got.Distance)
	}
}

func TestBestMatchThresholdMonotonic(t *testing.T) {
	// If a probe matches at a tight threshold it must also match at any
	// looser one.
	probe := []float32{0.8, 0.2, 0}
	thresholds := []float64{0.1, 0.2, 0.3, 0.5, 0.8, 1.5, 3}

	matchedBefore := false
	for _, threshold := range thresholds {
		got := BestMatch(snapshot(), probe, threshold)
		if matchedBefore && !got.Matched {
			t.Fatalf("matched at a tighter threshold but not at %v", threshold)
		}
		if got.Matched {
			matchedBefore = true
		}
	}
	if !matchedBefore {
		t.Fatal("probe should match at the loosest threshold")
	}
}

func TestBestMatchTieKeepsFirst(t *testing.T) {
	snap := []gallery.Entry{
		{Filename: "a.jpg", Name: "a", Encoding: []float32{1, 0}},
		{Filename: "b.jpg", Name: "b", Encoding: []float32{1, 0}},
	}

	got := BestMatch(snap, []float32{1, 0}, 0.6)
	if got.Filename != "a.jpg" {
		t.Errorf("tie winner = %q, want a.jpg", got.Filename)
	}
}

func TestBestMatchDimensionMismatch(t *testing.T) {
	snap := []gallery.Entry{
		{Filename: "a.jpg", Name: "a", Encoding: []float32{1, 0}},
	}

	got := BestMatch(snap, []float32{1, 0, 0}, 0.6)
	if got.Name != Unknown {
		t.Errorf("Name = %q, want Unknown for mismatched dimensions", got.Name)
	}
	if got.Distance == nil || !math.IsInf(*got.Distance, 1) {
		t.Errorf("Distance = %v, want +Inf", got.Distance)
	}
}

func TestCompare(t *testing.T) {
	d, ok := Compare([]float32{1, 0}, []float32{1, 0}, 0.6)
	if d != 0 || !ok {
		t.Errorf("identical Compare() = %v, %v", d, ok)
	}

	d, ok = Compare([]float32{1, 0}, []float32{0, 1}, 0.6)
	if ok {
		t.Errorf("distant Compare() = %v, %v, want no match", d, ok)
	}
	if math.Abs(d-math.Sqrt2) > 1e-9 {
		t.Errorf("distance = %v, want sqrt(2)", d)
	}
}

func TestIndexSimilar(t *testing.T) {
	ix := NewIndex()
	ix.Rebuild(snapshot())

	if ix.Count() != 3 {
		t.Errorf("Count() = %d, want 3", ix.Count())
	}

	neighbors, err := ix.Similar([]float32{1, 0, 0}, "alice.jpg", 2)
	if err != nil {
		t.Fatalf("Similar() error = %v", err)
	}
	if len(neighbors) != 2 {
		t.Fatalf("Similar() returned %d neighbors, want 2", len(neighbors))
	}
	for _, n := range neighbors {
		if n.Filename == "alice.jpg" {
			t.Error("result contains the query file itself")
		}
		if n.Distance <= 0 {
			t.Errorf("distance for %s = %v, want > 0", n.Filename, n.Distance)
		}
	}
}

func TestIndexEmpty(t *testing.T) {
	ix := NewIndex()
	if _, err := ix.Similar([]float32{1}, "", 3); !errors.Is(err, ErrIndexEmpty) {
		t.Errorf("Similar() error = %v, want ErrIndexEmpty", err)
	}

	// A rebuild over encoding-less entries keeps the index empty.
	ix.Rebuild([]gallery.Entry{{Filename: "scenery.jpg", Name: "scenery"}})
	if _, err := ix.Similar([]float32{1}, "", 3); !errors.Is(err, ErrIndexEmpty) {
		t.Errorf("Similar() after empty rebuild error = %v, want ErrIndexEmpty", err)
	}
}

func TestIndexRebuildReplaces(t *testing.T) {
	ix := NewIndex()
	ix.Rebuild(snapshot())

	ix.Rebuild([]gallery.Entry{
		{Filename: "dave.jpg", Name: "dave", Encoding: []float32{0.5, 0.5, 0}},
	})

	neighbors, err := ix.Similar([]float32{0.5, 0.5, 0}, "", 5)
	if err != nil {
		t.Fatalf("Similar() error = %v", err)
	}
	if len(neighbors) != 1 || neighbors[0].Filename != "dave.jpg" {
		t.Errorf("Similar() = %+v, want only dave.jpg", neighbors)
	}
}
