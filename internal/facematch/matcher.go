// Package facematch matches face embeddings against a gallery of known identities.
package facematch

import (
	"errors"
	"math"

	"github.com/kozaktomas/facecam/internal/constants"
	"github.com/kozaktomas/facecam/internal/embedding"
	"github.com/kozaktomas/facecam/internal/gallery"
	"github.com/m-mizutani/goerr/v2"
)

var (
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")
	ErrInvalidTolerance  = errors.New("invalid tolerance")
)

// Result is the outcome of matching one query embedding.
type Result struct {
	Label      string  `json:"label"`
	Confidence float64 `json:"confidence"`
	Distance   float64 `json:"distance"`
	Known      bool    `json:"known"`
	Reference  int     `json:"-"` // index into the flattened gallery, -1 when unknown
}

// Unknown is the result for a face with no reference within tolerance.
func Unknown() Result {
	return Result{Label: constants.UnknownLabel, Reference: -1}
}

// EuclideanDistance returns the L2 distance between a and b. Both must have
// the same length.
func EuclideanDistance(a, b []float32) float64 {
	var sum float64
	for i := range a {
		d := float64(a[i]) - float64(b[i])
		sum += d * d
	}
	return math.Sqrt(sum)
}

// Confidence maps a distance to 1 - distance, clamped to [0, 1].
func Confidence(distance float64) float64 {
	return min(1, max(0, 1-distance))
}

func validateTolerance(tolerance float64) error {
	if math.IsNaN(tolerance) || tolerance < 0 {
		return goerr.Wrap(ErrInvalidTolerance, "tolerance must be a non-negative number", goerr.V("tolerance", tolerance))
	}
	return nil
}

// Match compares query against every reference in g. The nearest reference
// within tolerance wins; on an exact distance tie the reference enrolled first
// wins. With no reference within tolerance the result is Unknown.
func Match(query embedding.Vector, g *gallery.Gallery, tolerance float64) (Result, error) {
	if err := validateTolerance(tolerance); err != nil {
		return Result{}, err
	}
	if g.Len() == 0 {
		return Unknown(), nil
	}
	if len(query) != g.Dim() {
		return Result{}, goerr.Wrap(ErrDimensionMismatch, "query does not match gallery",
			goerr.V("query_dim", len(query)), goerr.V("gallery_dim", g.Dim()))
	}

	best := -1
	bestDistance := math.Inf(1)
	for i := range g.Len() {
		d := EuclideanDistance(query, g.Reference(i).Embedding)
		if d < bestDistance {
			best, bestDistance = i, d
		}
	}
	return resultFor(g, best, bestDistance, tolerance), nil
}

func resultFor(g *gallery.Gallery, ref int, distance, tolerance float64) Result {
	if ref < 0 || distance > tolerance {
		return Unknown()
	}
	return Result{
		Label:      g.Reference(ref).Label,
		Confidence: Confidence(distance),
		Distance:   distance,
		Known:      true,
		Reference:  ref,
	}
}

// Matcher binds a gallery and tolerance. It holds no mutable state and is
// safe for concurrent use.
type Matcher struct {
	gallery   *gallery.Gallery
	tolerance float64
	index     *Index
}

// Option configures a Matcher.
type Option func(*Matcher)

// WithHNSW enables an HNSW candidate index for galleries with more than
// threshold references. candidates is how many neighbours are re-ranked
// exactly. A threshold of 0 disables the index.
func WithHNSW(threshold, candidates int) Option {
	return func(m *Matcher) {
		if threshold <= 0 || m.gallery.Len() <= threshold {
			return
		}
		m.index = NewIndex(m.gallery, candidates)
	}
}

// NewMatcher creates a matcher over g.
func NewMatcher(g *gallery.Gallery, tolerance float64, opts ...Option) (*Matcher, error) {
	if err := validateTolerance(tolerance); err != nil {
		return nil, err
	}
	m := &Matcher{gallery: g, tolerance: tolerance}
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

func (m *Matcher) Gallery() *gallery.Gallery { return m.gallery }

func (m *Matcher) Tolerance() float64 { return m.tolerance }

// UsesIndex reports whether lookups go through the HNSW index.
func (m *Matcher) UsesIndex() bool { return m.index != nil }

// Match matches one embedding.
func (m *Matcher) Match(query embedding.Vector) (Result, error) {
	if m.index == nil {
		return Match(query, m.gallery, m.tolerance)
	}
	if len(query) != m.gallery.Dim() {
		return Result{}, goerr.Wrap(ErrDimensionMismatch, "query does not match gallery",
			goerr.V("query_dim", len(query)), goerr.V("gallery_dim", m.gallery.Dim()))
	}
	ref, distance := m.index.Nearest(query)
	return resultFor(m.gallery, ref, distance, m.tolerance), nil
}

// MatchFaces matches every face in order and returns one result per face.
func (m *Matcher) MatchFaces(faces []embedding.Face) ([]Result, error) {
	results := make([]Result, len(faces))
	for i, f := range faces {
		r, err := m.Match(f.Embedding)
		if err != nil {
			return nil, goerr.Wrap(err, "failed to match face", goerr.V("face", i))
		}
		results[i] = r
	}
	return results, nil
}
