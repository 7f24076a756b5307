// Package match turns gallery encodings into recognition decisions. The
// matcher is an exact linear scan over a gallery snapshot; the HNSW index
// serves only approximate neighbor listings.
package match

import (
	"github.com/kozaktomas/face-gallery/internal/embedder"
	"github.com/kozaktomas/face-gallery/internal/gallery"
)

// Unknown is the name reported when no gallery entry is within threshold.
const Unknown = "Unknown"

// Result is the outcome of matching one probe encoding.
type Result struct {
	Name     string   // matched name or Unknown
	Filename string   // gallery file that won, empty for Unknown
	Distance *float64 // distance to the nearest entry, nil for an empty gallery
	Matched  bool
}

// BestMatch scans the snapshot for the minimum Euclidean distance to the
// probe. Ties keep the first occurrence in snapshot order. A distance above
// the threshold, or an empty gallery, yields Unknown.
func BestMatch(snapshot []gallery.Entry, probe []float32, threshold float64) Result {
	best := Result{Name: Unknown}

	for i := range snapshot {
		e := &snapshot[i]
		if e.Encoding == nil {
			continue
		}
		d := embedder.Distance(e.Encoding, probe)
		if best.Distance == nil || d < *best.Distance {
			dist := d
			best.Distance = &dist
			best.Filename = e.Filename
			best.Name = e.Name
		}
	}

	if best.Distance == nil || *best.Distance > threshold {
		return Result{Name: Unknown, Distance: best.Distance}
	}
	best.Matched = true
	return best
}

// Compare reports the distance between two encodings and whether it lands
// within the threshold.
func Compare(a, b []float32, threshold float64) (float64, bool) {
	d := embedder.Distance(a, b)
	return d, d <= threshold
}
