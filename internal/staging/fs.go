// Package staging persists extracted deals as one JSON file per identity,
// decoupling scraping from database loads.
package staging

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/grocery-etl/internal/extract"
	"github.com/sells-group/grocery-etl/internal/identity"
	"github.com/sells-group/grocery-etl/internal/model"
)

// FS is a staging area rooted at a directory. Each bucket is a subdirectory,
// typically one per source.
type FS struct {
	root string
}

// New returns a staging area rooted at dir. The directory is created on
// first Put.
func New(root string) *FS {
	return &FS{root: root}
}

// Root returns the staging root directory.
func (s *FS) Root() string {
	return s.root
}

// BucketDir returns the directory for a bucket.
func (s *FS) BucketDir(bucket string) (string, error) {
	if bucket == "" {
		return s.root, nil
	}
	clean := filepath.Clean(bucket)
	if filepath.IsAbs(clean) || clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) {
		return "", eris.Errorf("staging: invalid bucket %q", bucket)
	}
	return filepath.Join(s.root, clean), nil
}

// Put writes d to <root>/<bucket>/<uuid>.json, overwriting any previous copy
// of the same identity. Prices are quantized to cents; identity and discount
// are derived when absent.
func (s *FS) Put(d model.Deal, bucket string) (string, error) {
	d.Quantize()
	if d.UUID == "" {
		d.UUID = identity.DealID(d.ProductName, d.StoreID, d.ValidFrom, d.ValidTo)
	}
	if d.DiscountPercentage == nil {
		d.DiscountPercentage = extract.Discount(d.RegularPrice, d.SalePrice)
	}
	if err := d.Validate(); err != nil {
		return "", eris.Wrapf(err, "staging: put %s", d.UUID)
	}

	dir, err := s.BucketDir(bucket)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", eris.Wrapf(err, "staging: create bucket %s", dir)
	}

	data, err := Encode(FromDeal(d))
	if err != nil {
		return "", err
	}

	path := filepath.Join(dir, d.UUID+".json")
	if err := writeAtomic(dir, path, data); err != nil {
		return "", err
	}
	return path, nil
}

// writeAtomic writes data to a temp file in dir and renames it over path,
// so readers never see a partial record.
func writeAtomic(dir, path string, data []byte) error {
	tmp, err := os.CreateTemp(dir, ".stage-*.tmp")
	if err != nil {
		return eris.Wrap(err, "staging: create temp file")
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName) //nolint:errcheck

	if _, err := tmp.Write(data); err != nil {
		tmp.Close() //nolint:errcheck
		return eris.Wrapf(err, "staging: write %s", path)
	}
	if err := tmp.Close(); err != nil {
		return eris.Wrapf(err, "staging: close %s", path)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return eris.Wrapf(err, "staging: rename to %s", path)
	}
	return nil
}

// Get reads the staged deal at path. Malformed content yields a
// *DecodeError.
func (s *FS) Get(path string) (model.Deal, error) {
	return Read(path)
}

// Read reads a staged deal file.
func Read(path string) (model.Deal, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return model.Deal{}, eris.Wrapf(err, "staging: read %s", path)
	}
	rec, err := Decode(data)
	if err != nil {
		var de *DecodeError
		if errors.As(err, &de) {
			de.Path = path
		}
		return model.Deal{}, err
	}
	return rec.Deal(), nil
}

// List returns the staged files in a bucket, sorted.
func (s *FS) List(bucket string) ([]string, error) {
	dir, err := s.BucketDir(bucket)
	if err != nil {
		return nil, err
	}
	return ListDir(dir)
}

// ListDir returns every *.json file under dir, recursively, sorted. If the
// recursive walk fails part way it falls back to the files directly in dir.
func ListDir(dir string) ([]string, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, eris.Wrapf(err, "staging: stat %s", dir)
	}
	if !info.IsDir() {
		return nil, eris.Errorf("staging: %s is not a directory", dir)
	}

	var files []string
	walkErr := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() && isRecord(d.Name()) {
			files = append(files, path)
		}
		return nil
	})
	if walkErr != nil {
		zap.L().Warn("staging: recursive listing failed, using flat listing",
			zap.String("dir", dir), zap.Error(walkErr))
		files, err = flatList(dir)
		if err != nil {
			return nil, err
		}
	}

	sort.Strings(files)
	return files, nil
}

func flatList(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, eris.Wrapf(err, "staging: read dir %s", dir)
	}
	var files []string
	for _, e := range entries {
		if !e.IsDir() && isRecord(e.Name()) {
			files = append(files, filepath.Join(dir, e.Name()))
		}
	}
	return files, nil
}

func isRecord(name string) bool {
	return strings.HasSuffix(name, ".json") && !strings.HasPrefix(name, ".")
}
