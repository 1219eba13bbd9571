package facematch

import (
	"cmp"
	"math"
	"slices"

	"github.com/coder/hnsw"
	"github.com/kozaktomas/facecam/internal/constants"
	"github.com/kozaktomas/facecam/internal/embedding"
	"github.com/kozaktomas/facecam/internal/gallery"
)

// Index is an HNSW graph over the flattened gallery references, keyed by
// reference position. It only proposes candidates; final ranking uses exact
// Euclidean distance with the same tie rule as Match.
type Index struct {
	graph      *hnsw.Graph[int]
	gallery    *gallery.Gallery
	candidates int
}

// NewIndex builds an HNSW index over g.
func NewIndex(g *gallery.Gallery, candidates int) *Index {
	if candidates <= 0 {
		candidates = constants.DefaultHNSWCandidates
	}

	graph := hnsw.NewGraph[int]()
	graph.M = constants.HNSWMaxNeighbors
	graph.Ml = 1.0 / float64(constants.HNSWMaxNeighbors) // Standard HNSW formula
	graph.EfSearch = constants.HNSWEfSearch
	graph.Distance = hnsw.EuclideanDistance

	for i := range g.Len() {
		graph.Add(hnsw.MakeNode(i, []float32(g.Reference(i).Embedding)))
	}

	return &Index{graph: graph, gallery: g, candidates: candidates}
}

// Len returns the number of indexed references.
func (x *Index) Len() int {
	return x.graph.Len()
}

// Nearest returns the reference index and exact distance of the closest
// candidate, or -1 and +Inf when the index is empty.
func (x *Index) Nearest(query embedding.Vector) (int, float64) {
	neighbors := x.graph.Search([]float32(query), min(x.candidates, x.gallery.Len()))

	type scored struct {
		ref      int
		distance float64
	}
	ranked := make([]scored, 0, len(neighbors))
	for _, n := range neighbors {
		ranked = append(ranked, scored{ref: n.Key, distance: EuclideanDistance(query, x.gallery.Reference(n.Key).Embedding)})
	}
	if len(ranked) == 0 {
		return -1, math.Inf(1)
	}

	best := slices.MinFunc(ranked, func(a, b scored) int {
		if c := cmp.Compare(a.distance, b.distance); c != 0 {
			return c
		}
		return cmp.Compare(a.ref, b.ref)
	})
	return best.ref, best.distance
}
