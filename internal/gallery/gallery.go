// Package gallery holds the enrolled identities and their reference embeddings.
//
// A Gallery is built once (by enrollment or by loading a file) and is
// read-only afterwards. Retraining produces a new Gallery value.
package gallery

import (
	"errors"
	"slices"
	"time"

	"github.com/google/uuid"
	"github.com/kozaktomas/facecam/internal/embedding"
	"github.com/m-mizutani/goerr/v2"
)

// Strategy selects how per-image embeddings are aggregated per identity.
type Strategy string

const (
	// StrategyMean stores one arithmetic-mean embedding per identity.
	StrategyMean Strategy = "mean"
	// StrategyMulti stores every valid embedding of an identity.
	StrategyMulti Strategy = "multi"
)

var ErrInvalidGallery = errors.New("invalid gallery")

// ParseStrategy accepts "mean"/"single"/"1" and "multi"/"multiple"/"2".
func ParseStrategy(s string) (Strategy, error) {
	switch s {
	case "mean", "single", "1":
		return StrategyMean, nil
	case "multi", "multiple", "2":
		return StrategyMulti, nil
	}
	return "", goerr.New("unknown aggregation strategy", goerr.V("strategy", s))
}

// Identity is a named person with one or more reference embeddings.
type Identity struct {
	Label      string
	Embeddings []embedding.Vector
}

// Reference is one (label, embedding) pair of the flattened gallery.
type Reference struct {
	Label     string
	Embedding embedding.Vector
}

// Gallery is an ordered, immutable set of identities.
type Gallery struct {
	snapshotID string
	createdAt  time.Time
	strategy   Strategy
	dim        int
	identities []Identity
	refs       []Reference
}

// New builds a gallery from identities in the given order. Embeddings are
// copied so later changes to the input do not leak in.
func New(identities []Identity, strategy Strategy) (*Gallery, error) {
	var refs []Reference
	for _, id := range identities {
		if len(id.Embeddings) == 0 {
			return nil, goerr.Wrap(ErrInvalidGallery, "identity has no embeddings", goerr.V("label", id.Label))
		}
		for _, e := range id.Embeddings {
			refs = append(refs, Reference{Label: id.Label, Embedding: e})
		}
	}
	return fromReferences(refs, strategy, uuid.NewString(), time.Now().UTC())
}

// fromReferences validates refs and groups them into identities by first
// appearance of each label. The reference order is kept as given.
func fromReferences(refs []Reference, strategy Strategy, snapshotID string, createdAt time.Time) (*Gallery, error) {
	if len(refs) == 0 {
		return nil, goerr.Wrap(ErrInvalidGallery, "gallery has no encodings")
	}
	g := &Gallery{
		snapshotID: snapshotID,
		createdAt:  createdAt,
		strategy:   strategy,
		refs:       make([]Reference, 0, len(refs)),
	}

	index := make(map[string]int)
	for i, r := range refs {
		if r.Label == "" {
			return nil, goerr.Wrap(ErrInvalidGallery, "empty label", goerr.V("index", i))
		}
		if len(r.Embedding) == 0 {
			return nil, goerr.Wrap(ErrInvalidGallery, "empty embedding", goerr.V("index", i), goerr.V("label", r.Label))
		}
		if g.dim == 0 {
			g.dim = len(r.Embedding)
		} else if len(r.Embedding) != g.dim {
			return nil, goerr.Wrap(ErrInvalidGallery, "inconsistent embedding dimension",
				goerr.V("index", i), goerr.V("label", r.Label),
				goerr.V("want", g.dim), goerr.V("got", len(r.Embedding)))
		}

		vec := slices.Clone(r.Embedding)
		g.refs = append(g.refs, Reference{Label: r.Label, Embedding: vec})

		pos, ok := index[r.Label]
		if !ok {
			pos = len(g.identities)
			index[r.Label] = pos
			g.identities = append(g.identities, Identity{Label: r.Label})
		}
		g.identities[pos].Embeddings = append(g.identities[pos].Embeddings, vec)
	}
	return g, nil
}

// References returns the flattened (label, embedding) pairs in insertion order.
// Callers must not modify the returned vectors.
func (g *Gallery) References() []Reference {
	return slices.Clone(g.refs)
}

// Identities returns the identities in insertion order.
func (g *Gallery) Identities() []Identity {
	return slices.Clone(g.identities)
}

// Labels returns the distinct identity labels in insertion order.
func (g *Gallery) Labels() []string {
	labels := make([]string, len(g.identities))
	for i, id := range g.identities {
		labels[i] = id.Label
	}
	return labels
}

// Len returns the number of reference embeddings.
func (g *Gallery) Len() int { return len(g.refs) }

// Dim returns the embedding dimension, 0 for an empty gallery.
func (g *Gallery) Dim() int { return g.dim }

func (g *Gallery) Strategy() Strategy { return g.strategy }

// SnapshotID identifies one enrollment run.
func (g *Gallery) SnapshotID() string { return g.snapshotID }

func (g *Gallery) CreatedAt() time.Time { return g.createdAt }

// IdentityCount returns the number of distinct labels.
func (g *Gallery) IdentityCount() int { return len(g.identities) }

// Reference returns the i-th flattened reference without copying the slice.
func (g *Gallery) Reference(i int) Reference { return g.refs[i] }

// Summary describes a gallery for logs, the CLI and the preview API.
type Summary struct {
	SnapshotID string    `json:"snapshot_id"`
	Strategy   Strategy  `json:"strategy"`
	Dim        int       `json:"dim"`
	Encodings  int       `json:"encodings"`
	People     int       `json:"people"`
	Labels     []string  `json:"labels"`
	CreatedAt  time.Time `json:"created_at"`
}

func (g *Gallery) Summary() Summary {
	return Summary{
		SnapshotID: g.snapshotID,
		Strategy:   g.strategy,
		Dim:        g.dim,
		Encodings:  len(g.refs),
		People:     len(g.identities),
		Labels:     g.Labels(),
		CreatedAt:  g.createdAt,
	}
}
