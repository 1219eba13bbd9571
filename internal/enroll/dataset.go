package enroll

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/m-mizutani/goerr/v2"
)

// ErrDatasetMissing means the dataset root does not exist or is not a directory.
var ErrDatasetMissing = errors.New("dataset directory not found")

// imageExtensions lists the file types considered during enrollment.
var imageExtensions = map[string]bool{
	".jpg":  true,
	".jpeg": true,
	".png":  true,
	".bmp":  true,
	".gif":  true,
}

// IsImageFile reports whether name has a supported image extension (case-insensitive).
func IsImageFile(name string) bool {
	return imageExtensions[strings.ToLower(filepath.Ext(name))]
}

// Person is one identity directory and its candidate images.
type Person struct {
	Label  string
	Images []string // absolute or root-relative paths, sorted by name
}

// Dataset is the scanned <root>/<identity>/<image> tree.
type Dataset struct {
	Root   string
	People []Person
}

// TotalImages returns the number of candidate images across all people.
func (d *Dataset) TotalImages() int {
	n := 0
	for _, p := range d.People {
		n += len(p.Images)
	}
	return n
}

// Scan walks root one level deep. Each sub-directory is an identity named
// after the directory; files directly under root and hidden entries are
// ignored. Directories and images are listed in name order.
func Scan(root string) (*Dataset, error) {
	info, err := os.Stat(root)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, goerr.Wrap(ErrDatasetMissing, "dataset root does not exist", goerr.V("root", root))
		}
		return nil, goerr.Wrap(err, "failed to stat dataset root", goerr.V("root", root))
	}
	if !info.IsDir() {
		return nil, goerr.Wrap(ErrDatasetMissing, "dataset root is not a directory", goerr.V("root", root))
	}

	entries, err := os.ReadDir(root)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to read dataset root", goerr.V("root", root))
	}

	ds := &Dataset{Root: root}
	for _, entry := range entries {
		if !entry.IsDir() || strings.HasPrefix(entry.Name(), ".") {
			continue
		}
		dir := filepath.Join(root, entry.Name())
		files, err := os.ReadDir(dir)
		if err != nil {
			return nil, goerr.Wrap(err, "failed to read identity directory", goerr.V("dir", dir))
		}

		person := Person{Label: entry.Name()}
		for _, f := range files {
			if !f.Type().IsRegular() || strings.HasPrefix(f.Name(), ".") || !IsImageFile(f.Name()) {
				continue
			}
			person.Images = append(person.Images, filepath.Join(dir, f.Name()))
		}
		ds.People = append(ds.People, person)
	}
	return ds, nil
}
