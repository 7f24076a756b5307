package match

import (
	"errors"
	"sync"

	"github.com/coder/hnsw"

	"github.com/kozaktomas/face-gallery/internal/embedder"
	"github.com/kozaktomas/face-gallery/internal/gallery"
)

// indexMaxNeighbors is the HNSW M parameter.
const indexMaxNeighbors = 16

// ErrIndexEmpty is returned when a search runs before any build.
var ErrIndexEmpty = errors.New("similarity index is empty")

// Neighbor is one approximate nearest neighbor of a query image.
type Neighbor struct {
	Filename string  `json:"filename"`
	Name     string  `json:"name"`
	Distance float64 `json:"distance"`
}

// Index is an approximate nearest-neighbor index over gallery encodings,
// keyed by filename. It backs the similar-images listing and is rebuilt
// wholesale whenever the gallery changes.
type Index struct {
	mu     sync.RWMutex
	graph  *hnsw.Graph[string]
	byName map[string]string // filename -> display name
}

// NewIndex creates an empty index.
func NewIndex() *Index {
	return &Index{byName: make(map[string]string)}
}

// Rebuild replaces the index contents with the encoded entries of the
// snapshot. Entries without an encoding are skipped.
func (ix *Index) Rebuild(snapshot []gallery.Entry) {
	g := hnsw.NewGraph[string]()
	g.M = indexMaxNeighbors
	g.Ml = 1.0 / float64(indexMaxNeighbors)
	g.Distance = hnsw.EuclideanDistance

	byName := make(map[string]string, len(snapshot))
	count := 0
	for i := range snapshot {
		e := &snapshot[i]
		if e.Encoding == nil {
			continue
		}
		g.Add(hnsw.MakeNode(e.Filename, e.Encoding))
		byName[e.Filename] = e.Name
		count++
	}

	ix.mu.Lock()
	defer ix.mu.Unlock()
	if count == 0 {
		ix.graph = nil
		ix.byName = byName
		return
	}
	ix.graph = g
	ix.byName = byName
}

// Similar returns up to k nearest neighbors of the query encoding,
// excluding the named file itself. Distances are exact Euclidean even
// though the candidate set is approximate.
func (ix *Index) Similar(query []float32, exclude string, k int) ([]Neighbor, error) {
	ix.mu.RLock()
	defer ix.mu.RUnlock()

	if ix.graph == nil {
		return nil, ErrIndexEmpty
	}

	// Ask for one extra node since the query file indexes itself.
	nodes := ix.graph.Search(query, k+1)
	neighbors := make([]Neighbor, 0, k)
	for _, n := range nodes {
		if n.Key == exclude {
			continue
		}
		neighbors = append(neighbors, Neighbor{
			Filename: n.Key,
			Name:     ix.byName[n.Key],
			Distance: embedder.Distance(query, n.Value),
		})
		if len(neighbors) == k {
			break
		}
	}
	return neighbors, nil
}

// Count returns the number of indexed encodings.
func (ix *Index) Count() int {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return len(ix.byName)
}
