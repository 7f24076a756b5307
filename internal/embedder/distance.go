package embedder

import "math"

// Distance computes the Euclidean distance between two face embeddings.
// Lower distance means more similar faces. Mismatched or empty vectors
// yield +Inf so they can never win a best-match comparison.
func Distance(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return math.Inf(1)
	}

	var sum float64
	for i := range a {
		diff := float64(a[i]) - float64(b[i])
		sum += diff * diff
	}
	return math.Sqrt(sum)
}
