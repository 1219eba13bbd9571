// Package enroll builds a gallery from a directory of labeled face images.
package enroll

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"slices"

	"github.com/kozaktomas/facecam/internal/constants"
	"github.com/kozaktomas/facecam/internal/embedding"
	"github.com/kozaktomas/facecam/internal/facematch"
	"github.com/kozaktomas/facecam/internal/gallery"
	"github.com/kozaktomas/facecam/internal/logging"
	"github.com/m-mizutani/goerr/v2"
	"golang.org/x/sync/errgroup"
)

var (
	// ErrNoIdentities means no identity had a single usable image.
	ErrNoIdentities = errors.New("no face encodings were created")
	// ErrNoFace is recorded for images in which the provider found no face.
	ErrNoFace = errors.New("no face detected")
	// ErrDimension is recorded for embeddings whose length differs from the first accepted one.
	ErrDimension = errors.New("embedding dimension differs from the rest of the dataset")
)

// Skip records an image that did not contribute an embedding.
type Skip struct {
	Identity string `json:"identity"`
	Image    string `json:"image"`
	Reason   string `json:"reason"`
	Err      error  `json:"-"`
}

// PersonReport summarises one identity.
type PersonReport struct {
	Label    string `json:"label"`
	Images   int    `json:"images"`
	Embedded int    `json:"embedded"`
}

// Report describes an enrollment run.
type Report struct {
	People     []PersonReport `json:"people"`
	Images     int            `json:"images"`
	Embedded   int            `json:"embedded"`
	Encodings  int            `json:"encodings"`
	Skipped    []Skip         `json:"skipped"`
	Dropped    []string       `json:"dropped"` // identities with no usable image
	Duplicates []Duplicate    `json:"duplicates,omitempty"`
}

// Builder turns a Dataset into a Gallery using a Provider.
type Builder struct {
	provider    embedding.Provider
	strategy    gallery.Strategy
	concurrency int
	logger      *slog.Logger
	onImage     func()
	maxHashDist int
}

// Option configures a Builder.
type Option func(*Builder)

// WithConcurrency sets how many images are sent to the provider at once.
func WithConcurrency(n int) Option {
	return func(b *Builder) {
		if n > 0 {
			b.concurrency = n
		}
	}
}

// WithLogger overrides the logger taken from the context.
func WithLogger(l *slog.Logger) Option {
	return func(b *Builder) { b.logger = l }
}

// WithProgress registers fn to be called once per processed image.
func WithProgress(fn func()) Option {
	return func(b *Builder) { b.onImage = fn }
}

// WithDuplicateDistance sets the Hamming distance under which two images are
// reported as duplicates. A negative value disables the check.
func WithDuplicateDistance(d int) Option {
	return func(b *Builder) { b.maxHashDist = d }
}

// NewBuilder creates a builder for the given aggregation strategy.
func NewBuilder(p embedding.Provider, strategy gallery.Strategy, opts ...Option) *Builder {
	b := &Builder{provider: p, strategy: strategy, concurrency: 1, maxHashDist: constants.DuplicateHashDistance}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

type imageResult struct {
	vec    embedding.Vector
	err    error
	hash   uint64
	hashed bool
}

// BuildDir scans root and builds a gallery from it.
func (b *Builder) BuildDir(ctx context.Context, root string) (*gallery.Gallery, *Report, error) {
	ds, err := Scan(root)
	if err != nil {
		return nil, nil, err
	}
	return b.Build(ctx, ds)
}

// Build embeds every image of ds and aggregates per identity. Per-image
// failures are logged and recorded in the report; only an empty result or a
// cancelled context is an error. The output does not depend on concurrency.
func (b *Builder) Build(ctx context.Context, ds *Dataset) (*gallery.Gallery, *Report, error) {
	logger := b.logger
	if logger == nil {
		logger = logging.From(ctx)
	}

	warnDuplicateLabels(logger, ds)

	// Flatten images so results can be slotted back by position.
	type job struct {
		person int
		path   string
	}
	var jobs []job
	for i, p := range ds.People {
		for _, img := range p.Images {
			jobs = append(jobs, job{person: i, path: img})
		}
	}

	results := make([]imageResult, len(jobs))
	eg, egCtx := errgroup.WithContext(ctx)
	eg.SetLimit(b.concurrency)
	for i, j := range jobs {
		eg.Go(func() error {
			results[i] = b.embedImage(egCtx, j.path)
			if b.onImage != nil {
				b.onImage()
			}
			return nil
		})
	}
	_ = eg.Wait()

	if err := ctx.Err(); err != nil {
		return nil, nil, goerr.Wrap(err, "enrollment cancelled")
	}

	report := &Report{Images: len(jobs)}
	var identities []gallery.Identity
	dim := 0
	pos := 0
	for _, person := range ds.People {
		logger.Info("processing person", "identity", person.Label, "images", len(person.Images))

		var vecs []embedding.Vector
		for _, path := range person.Images {
			res := results[pos]
			pos++

			err := res.err
			if err == nil && dim != 0 && len(res.vec) != dim {
				err = goerr.Wrap(ErrDimension, "skipping embedding",
					goerr.V("want", dim), goerr.V("got", len(res.vec)))
			}
			if err != nil {
				name := filepath.Base(path)
				logger.Warn("skipping image", "identity", person.Label, "image", name, "error", err)
				report.Skipped = append(report.Skipped, Skip{
					Identity: person.Label,
					Image:    name,
					Reason:   skipReason(err),
					Err:      err,
				})
				continue
			}
			if dim == 0 {
				dim = len(res.vec)
			}
			vecs = append(vecs, res.vec)
		}

		report.People = append(report.People, PersonReport{Label: person.Label, Images: len(person.Images), Embedded: len(vecs)})
		report.Embedded += len(vecs)

		if len(vecs) == 0 {
			logger.Warn("no valid face encodings, identity dropped", "identity", person.Label)
			report.Dropped = append(report.Dropped, person.Label)
			continue
		}

		switch b.strategy {
		case gallery.StrategyMean:
			identities = append(identities, gallery.Identity{Label: person.Label, Embeddings: []embedding.Vector{Mean(vecs)}})
			logger.Info("created averaged encoding", "identity", person.Label, "images", len(vecs))
		default:
			identities = append(identities, gallery.Identity{Label: person.Label, Embeddings: vecs})
			logger.Info("created encodings", "identity", person.Label, "count", len(vecs))
		}
	}

	if len(identities) == 0 {
		return nil, report, goerr.Wrap(ErrNoIdentities, "enrollment produced an empty gallery",
			goerr.V("root", ds.Root), goerr.V("images", len(jobs)))
	}

	g, err := gallery.New(identities, b.strategy)
	if err != nil {
		return nil, report, goerr.Wrap(err, "failed to build gallery")
	}
	report.Encodings = g.Len()
	report.Duplicates = b.duplicates(logger, ds, results)
	return g, report, nil
}

// embedImage returns the embedding of the first detected face in the image.
func (b *Builder) embedImage(ctx context.Context, path string) imageResult {
	data, err := os.ReadFile(path)
	if err != nil {
		return imageResult{err: goerr.Wrap(err, "failed to read image", goerr.V("path", path))}
	}
	var res imageResult
	if b.maxHashDist >= 0 {
		// Formats we cannot decode may still be accepted by the provider.
		if h, err := differenceHash(data); err == nil {
			res.hash, res.hashed = h, true
		}
	}

	faces, err := b.provider.DetectAndEncode(ctx, data)
	switch {
	case err != nil:
		res.err = goerr.Wrap(err, "failed to detect faces", goerr.V("path", path))
	case len(faces) == 0:
		res.err = goerr.Wrap(ErrNoFace, "skipping image", goerr.V("path", path))
	case len(faces[0].Embedding) == 0:
		res.err = goerr.Wrap(ErrNoFace, "face without embedding", goerr.V("path", path))
	default:
		res.vec = slices.Clone(faces[0].Embedding)
	}
	return res
}

// duplicates reports near-identical images among those that produced an
// embedding. results is indexed in dataset order.
func (b *Builder) duplicates(logger *slog.Logger, ds *Dataset, results []imageResult) []Duplicate {
	if b.maxHashDist < 0 {
		return nil
	}
	var hashed []hashedImage
	pos := 0
	for _, person := range ds.People {
		for _, path := range person.Images {
			res := results[pos]
			pos++
			if res.hashed && res.err == nil {
				hashed = append(hashed, hashedImage{identity: person.Label, image: filepath.Base(path), hash: res.hash})
			}
		}
	}

	dups := findDuplicates(hashed, b.maxHashDist)
	for _, d := range dups {
		attrs := []any{"identity", d.Identity, "image", d.Image,
			"other_identity", d.OtherIdentity, "other_image", d.OtherImage, "distance", d.Distance}
		if d.CrossIdentity() {
			logger.Warn("same photo enrolled under different identities", attrs...)
		} else {
			logger.Debug("near-duplicate training images", attrs...)
		}
	}
	return dups
}

func skipReason(err error) string {
	switch {
	case errors.Is(err, ErrNoFace):
		return "no face found"
	case errors.Is(err, ErrDimension):
		return "embedding dimension mismatch"
	case errors.Is(err, embedding.ErrProvider):
		return "provider error"
	default:
		return "error"
	}
}

// Mean returns the element-wise arithmetic mean of vecs. The sum is
// accumulated in float64 in input order, so equal inputs give bit-identical
// output. The result is not normalised.
func Mean(vecs []embedding.Vector) embedding.Vector {
	if len(vecs) == 0 {
		return nil
	}
	sum := make([]float64, len(vecs[0]))
	for _, v := range vecs {
		for i, x := range v {
			sum[i] += float64(x)
		}
	}
	out := make(embedding.Vector, len(sum))
	n := float64(len(vecs))
	for i, s := range sum {
		out[i] = float32(s / n)
	}
	return out
}

// warnDuplicateLabels logs identities whose names differ only by case,
// diacritics or separators, e.g. "jan-novak" and "Jan Novák".
func warnDuplicateLabels(logger *slog.Logger, ds *Dataset) {
	seen := make(map[string]string)
	for _, p := range ds.People {
		key := facematch.NormalizePersonName(p.Label)
		if other, ok := seen[key]; ok {
			logger.Warn("identities look like the same person", "identity", p.Label, "other", other)
			continue
		}
		seen[key] = p.Label
	}
}
