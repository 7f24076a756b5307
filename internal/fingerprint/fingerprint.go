// Package fingerprint computes perceptual hashes of gallery images. The
// hashes flag near-duplicate uploads; they play no part in face matching.
package fingerprint

import (
	"bytes"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"math"
	"sort"

	"golang.org/x/image/draw"
)

// DuplicateThreshold is the Hamming distance at or below which two images
// are reported as near-duplicates.
const DuplicateThreshold = 10

// Hash is a 64-bit perceptual hash of an image.
type Hash uint64

// String returns the hash as a 16-digit hex string, the form stored in the
// gallery cache.
func (h Hash) String() string {
	return fmt.Sprintf("%016x", uint64(h))
}

// Parse decodes a hash previously rendered with String. Malformed input
// yields the zero hash and false.
func Parse(s string) (Hash, bool) {
	if len(s) != 16 {
		return 0, false
	}
	var v uint64
	if _, err := fmt.Sscanf(s, "%016x", &v); err != nil {
		return 0, false
	}
	return Hash(v), true
}

// Hashes carries both perceptual hashes of an image. The DCT-based pHash
// survives resizing and recompression, the gradient dHash catches crops and
// brightness shifts; near-duplicate detection accepts a hit on either.
type Hashes struct {
	PHash Hash
	DHash Hash
}

// Compute computes the pHash and dHash of an image.
func Compute(imageData []byte) (*Hashes, error) {
	img, _, err := image.Decode(bytes.NewReader(imageData))
	if err != nil {
		return nil, fmt.Errorf("failed to decode image: %w", err)
	}
	return &Hashes{
		PHash: Hash(computePHash(img)),
		DHash: Hash(computeDHash(img)),
	}, nil
}

// HammingDistance computes the Hamming distance between two hashes.
func HammingDistance(a, b Hash) int {
	xor := uint64(a) ^ uint64(b)
	distance := 0
	for xor != 0 {
		distance++
		xor &= xor - 1 // Clear lowest set bit
	}
	return distance
}

// Similar returns true if two hashes are within the given threshold.
func Similar(a, b Hash, threshold int) bool {
	return HammingDistance(a, b) <= threshold
}

// computePHash computes a 64-bit perceptual hash using DCT.
func computePHash(img image.Image) uint64 {
	resized := resizeImage(img, 32, 32)
	gray := toGrayscale(resized)
	dct := computeDCT(gray)

	// Top-left 8x8 DCT coefficients (low frequencies), DC component excluded.
	lowFreq := make([]float64, 64)
	idx := 0
	for u := range 8 {
		for v := range 8 {
			if u == 0 && v == 0 {
				continue
			}
			if idx < 64 {
				lowFreq[idx] = dct[u][v]
				idx++
			}
		}
	}
	for ; idx < 64; idx++ {
		lowFreq[idx] = dct[idx/8][idx%8]
	}

	median := computeMedian(lowFreq)

	var hash uint64
	for i := range 64 {
		if lowFreq[i] > median {
			hash |= 1 << (63 - i)
		}
	}

	return hash
}

// computeDHash computes a 64-bit difference hash.
func computeDHash(img image.Image) uint64 {
	// 9 columns give 8 horizontal differences per row.
	resized := resizeImage(img, 9, 8)
	gray := toGrayscale(resized)

	var hash uint64
	bit := 63
	for y := range 8 {
		for x := range 8 {
			if gray[x][y] > gray[x+1][y] {
				hash |= 1 << bit
			}
			bit--
		}
	}

	return hash
}

// resizeImage scales an image to the specified dimensions.
func resizeImage(img image.Image, width, height int) *image.RGBA {
	dst := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.BiLinear.Scale(dst, dst.Bounds(), img, img.Bounds(), draw.Over, nil)
	return dst
}

// toGrayscale converts an image to a 2D array of grayscale values (0-255).
func toGrayscale(img *image.RGBA) [][]float64 {
	bounds := img.Bounds()
	width := bounds.Dx()
	height := bounds.Dy()

	gray := make([][]float64, width)
	for x := range width {
		gray[x] = make([]float64, height)
		for y := range height {
			r, g, b, _ := img.At(x, y).RGBA()
			// ITU-R BT.601 luma formula.
			luma := 0.299*float64(r>>8) + 0.587*float64(g>>8) + 0.114*float64(b>>8)
			gray[x][y] = luma
		}
	}

	return gray
}

// computeDCT computes the Discrete Cosine Transform of a grayscale image.
func computeDCT(gray [][]float64) [][]float64 {
	size := len(gray)
	dct := make([][]float64, size)
	for i := range dct {
		dct[i] = make([]float64, size)
	}

	cosTable := make([][]float64, size)
	for i := range cosTable {
		cosTable[i] = make([]float64, size)
		for j := range size {
			cosTable[i][j] = math.Cos(math.Pi * float64(i) * (2*float64(j) + 1) / (2 * float64(size)))
		}
	}

	for u := range size {
		for v := range size {
			var sum float64
			for x := range size {
				for y := range size {
					sum += gray[x][y] * cosTable[u][x] * cosTable[v][y]
				}
			}
			dct[u][v] = sum
		}
	}

	return dct
}

// computeMedian returns the median value from a slice.
func computeMedian(values []float64) float64 {
	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)
	n := len(sorted)
	if n%2 == 0 {
		return (sorted[n/2-1] + sorted[n/2]) / 2
	}
	return sorted[n/2]
}
