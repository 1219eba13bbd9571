package gallery

import (
	"bufio"
	"bytes"
	"encoding/gob"
	"encoding/json"
	"errors"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/klauspost/compress/zstd"
	"github.com/kozaktomas/facecam/internal/embedding"
	"github.com/m-mizutani/goerr/v2"
)

var (
	// ErrGalleryNotFound means the gallery file does not exist; run enrollment first.
	ErrGalleryNotFound = errors.New("gallery file not found")
	// ErrGalleryCorrupt means the file exists but cannot be decoded into a valid gallery.
	ErrGalleryCorrupt = errors.New("gallery file is corrupt")
)

const (
	fileMagic   = "FACECAM1"
	fileVersion = 1
)

// fileGallery is the on-disk layout: parallel encodings and names lists.
type fileGallery struct {
	Version    int
	SnapshotID string
	CreatedAt  time.Time
	Strategy   Strategy
	Dim        int
	Encodings  [][]float32
	Names      []string
}

// Metadata is written next to the gallery as <path>.meta for inspection.
type Metadata struct {
	SnapshotID string    `json:"snapshot_id"`
	Strategy   Strategy  `json:"strategy"`
	Dim        int       `json:"dim"`
	Encodings  int       `json:"encodings"`
	People     []string  `json:"people"`
	CreatedAt  time.Time `json:"created_at"`
	Version    int       `json:"version"`
}

// MetaPath returns the sidecar metadata path for a gallery file.
func MetaPath(path string) string {
	return path + ".meta"
}

// Save writes g to path, replacing any existing file atomically, and writes
// the JSON metadata sidecar.
func Save(path string, g *Gallery) error {
	if g == nil || len(g.refs) == 0 {
		return goerr.Wrap(ErrInvalidGallery, "refusing to save an empty gallery", goerr.V("path", path))
	}
	fg := fileGallery{
		Version:    fileVersion,
		SnapshotID: g.snapshotID,
		CreatedAt:  g.createdAt,
		Strategy:   g.strategy,
		Dim:        g.dim,
		Encodings:  make([][]float32, len(g.refs)),
		Names:      make([]string, len(g.refs)),
	}
	for i, r := range g.refs {
		fg.Encodings[i] = r.Embedding
		fg.Names[i] = r.Label
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return goerr.Wrap(err, "failed to create gallery directory", goerr.V("dir", dir))
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return goerr.Wrap(err, "failed to create temp gallery file", goerr.V("dir", dir))
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName) // no-op after a successful rename

	if err := encode(tmp, &fg); err != nil {
		tmp.Close()
		return goerr.Wrap(err, "failed to encode gallery", goerr.V("path", path))
	}
	if err := tmp.Close(); err != nil {
		return goerr.Wrap(err, "failed to close gallery file", goerr.V("path", tmpName))
	}
	if err := os.Rename(tmpName, path); err != nil {
		return goerr.Wrap(err, "failed to move gallery into place", goerr.V("path", path))
	}

	meta := Metadata{
		SnapshotID: g.snapshotID,
		Strategy:   g.strategy,
		Dim:        g.dim,
		Encodings:  len(g.refs),
		People:     g.Labels(),
		CreatedAt:  g.createdAt,
		Version:    fileVersion,
	}
	metaData, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return goerr.Wrap(err, "failed to marshal gallery metadata")
	}
	if err := os.WriteFile(MetaPath(path), metaData, 0o644); err != nil {
		return goerr.Wrap(err, "failed to write gallery metadata", goerr.V("path", MetaPath(path)))
	}
	return nil
}

func encode(w io.Writer, fg *fileGallery) error {
	bw := bufio.NewWriter(w)
	if _, err := bw.WriteString(fileMagic); err != nil {
		return err
	}
	enc, err := zstd.NewWriter(bw, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return err
	}
	if err := gob.NewEncoder(enc).Encode(fg); err != nil {
		enc.Close()
		return err
	}
	if err := enc.Close(); err != nil {
		return err
	}
	return bw.Flush()
}

// Load reads a gallery written by Save. It returns ErrGalleryNotFound when
// the file is absent and ErrGalleryCorrupt when it cannot be decoded or fails
// validation. No partial gallery is ever returned.
func Load(path string) (*Gallery, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, goerr.Wrap(ErrGalleryNotFound, "run enrollment first", goerr.V("path", path))
		}
		return nil, goerr.Wrap(err, "failed to read gallery file", goerr.V("path", path))
	}
	return Decode(data, path)
}

// Decode parses gallery file contents. name is used only in error values.
func Decode(data []byte, name string) (*Gallery, error) {
	corrupt := func(cause error, msg string) error {
		return goerr.Wrap(errors.Join(ErrGalleryCorrupt, cause), msg, goerr.V("path", name))
	}

	if len(data) < len(fileMagic) || string(data[:len(fileMagic)]) != fileMagic {
		return nil, corrupt(nil, "missing gallery header")
	}

	dec, err := zstd.NewReader(bytes.NewReader(data[len(fileMagic):]))
	if err != nil {
		return nil, corrupt(err, "failed to open compressed stream")
	}
	defer dec.Close()

	var fg fileGallery
	if err := gob.NewDecoder(dec).Decode(&fg); err != nil {
		return nil, corrupt(err, "failed to decode gallery")
	}

	if fg.Version != fileVersion {
		return nil, goerr.Wrap(ErrGalleryCorrupt, "unsupported gallery version",
			goerr.V("path", name), goerr.V("version", fg.Version))
	}
	if len(fg.Encodings) != len(fg.Names) {
		return nil, goerr.Wrap(ErrGalleryCorrupt, "encodings and names differ in length",
			goerr.V("path", name), goerr.V("encodings", len(fg.Encodings)), goerr.V("names", len(fg.Names)))
	}

	if len(fg.Names) == 0 {
		return nil, goerr.Wrap(ErrGalleryCorrupt, "gallery has no encodings, run enrollment again", goerr.V("path", name))
	}

	refs := make([]Reference, len(fg.Names))
	for i := range fg.Names {
		refs[i] = Reference{Label: fg.Names[i], Embedding: embedding.Vector(fg.Encodings[i])}
	}
	g, err := fromReferences(refs, fg.Strategy, fg.SnapshotID, fg.CreatedAt)
	if err != nil {
		return nil, corrupt(err, "invalid gallery contents")
	}
	if fg.Dim != 0 && g.dim != fg.Dim {
		return nil, goerr.Wrap(ErrGalleryCorrupt, "declared dimension does not match embeddings",
			goerr.V("path", name), goerr.V("declared", fg.Dim), goerr.V("actual", g.dim))
	}
	return g, nil
}

// LoadMetadata reads the sidecar written by Save.
func LoadMetadata(path string) (*Metadata, error) {
	data, err := os.ReadFile(MetaPath(path))
	if err != nil {
		return nil, goerr.Wrap(err, "failed to read gallery metadata", goerr.V("path", MetaPath(path)))
	}
	var meta Metadata
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, goerr.Wrap(err, "failed to parse gallery metadata", goerr.V("path", MetaPath(path)))
	}
	return &meta, nil
}
