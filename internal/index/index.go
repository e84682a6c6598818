// Package index implements an exact nearest-neighbor index over embedding
// vectors with file persistence. Search is brute-force L2 over all stored
// rows, which is O(n) per query and acceptable at the tens-of-thousands scale
// this system targets.
package index

import (
	"fmt"
	"math"
	"sort"
	"sync"

	"github.com/finsight/finsight/internal/chunker"
	"github.com/finsight/finsight/internal/faults"
)

// Match is a search result: a stored chunk with its similarity to the query.
// Similarity is exp(-L2 distance), a bounded, monotonically decreasing
// transform of distance. It is a relative ranking signal, not a calibrated
// probability.
type Match struct {
	Chunk      chunker.Chunk `json:"chunk"`
	Similarity float64       `json:"similarity"`
}

// Index stores parallel (vector, chunk) slices guarded by a reader-writer
// lock: searches run concurrently with each other but are excluded during
// Add, Load and Clear. Insertion order is stable and breaks score ties.
type Index struct {
	mu      sync.RWMutex
	dim     int // fixed by the first successful Add; 0 while empty
	vectors [][]float32
	chunks  []chunker.Chunk
}

// New creates an empty index with unfixed dimensionality.
func New() *Index {
	return &Index{}
}

// Add appends vector/chunk pairs. The first successful Add fixes the index
// dimensionality; any later vector of a different length fails with a
// dimension mismatch before anything is appended, leaving prior state intact.
func (ix *Index) Add(vectors [][]float32, chunks []chunker.Chunk) error {
	if len(vectors) != len(chunks) {
		return fmt.Errorf("%d vectors for %d chunks: %w", len(vectors), len(chunks), faults.ErrCorruptIndex)
	}
	if len(vectors) == 0 {
		return nil
	}

	ix.mu.Lock()
	defer ix.mu.Unlock()

	dim := ix.dim
	if dim == 0 {
		dim = len(vectors[0])
		if dim == 0 {
			return fmt.Errorf("zero-length vector: %w", faults.ErrDimensionMismatch)
		}
	}
	for i, v := range vectors {
		if len(v) != dim {
			return fmt.Errorf("vector %d has dimension %d, index has %d: %w",
				i, len(v), dim, faults.ErrDimensionMismatch)
		}
	}

	ix.dim = dim
	ix.vectors = append(ix.vectors, vectors...)
	ix.chunks = append(ix.chunks, chunks...)
	return nil
}

// Search returns the k stored chunks nearest to query by L2 distance, ranked
// by similarity descending. Ties rank the earlier-inserted chunk first. An
// empty index yields an empty result, not an error.
func (ix *Index) Search(query []float32, k int) ([]Match, error) {
	ix.mu.RLock()
	defer ix.mu.RUnlock()

	if len(ix.vectors) == 0 {
		return nil, nil
	}
	if len(query) != ix.dim {
		return nil, fmt.Errorf("query has dimension %d, index has %d: %w",
			len(query), ix.dim, faults.ErrDimensionMismatch)
	}
	if k <= 0 {
		return nil, nil
	}
	if k > len(ix.vectors) {
		k = len(ix.vectors)
	}

	matches := make([]Match, len(ix.vectors))
	for i, v := range ix.vectors {
		matches[i] = Match{
			Chunk:      ix.chunks[i],
			Similarity: math.Exp(-l2Distance(query, v)),
		}
	}

	// Stable sort keeps insertion order among equal scores.
	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].Similarity > matches[j].Similarity
	})
	return matches[:k], nil
}

// Clear resets the index to empty; dimensionality becomes unfixed again.
func (ix *Index) Clear() {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	ix.dim = 0
	ix.vectors = nil
	ix.chunks = nil
}

// Stats returns the stored chunk count and the fixed dimensionality
// (0 while the index is empty).
func (ix *Index) Stats() (totalChunks, dimensionality int) {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return len(ix.chunks), ix.dim
}

func l2Distance(a, b []float32) float64 {
	var sum float64
	for i := range a {
		d := float64(a[i]) - float64(b[i])
		sum += d * d
	}
	return math.Sqrt(sum)
}
