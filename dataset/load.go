package dataset

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/ulikunitz/xz"
)

const xzSuffix = ".xz"

// LoadDataset reads a manifest (plain or xz-compressed JSON), resolves every
// sample's image against the manifest directory and recomputes SampleCount.
func LoadDataset(path string) (*SampleDataset, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("error opening dataset %s: %w", path, err)
	}
	defer f.Close()

	var r io.Reader = f
	if strings.HasSuffix(path, xzSuffix) {
		r, err = xz.NewReader(f)
		if err != nil {
			return nil, fmt.Errorf("error opening xz stream %s: %w", path, err)
		}
	}

	ds, err := DecodeDataset(r, filepath.Dir(path))
	if err != nil {
		return nil, fmt.Errorf("error parsing dataset %s: %w", path, err)
	}

	return ds, nil
}

// DecodeDataset parses a manifest whose relative image paths are rooted at root.
func DecodeDataset(r io.Reader, root string) (*SampleDataset, error) {
	ds := &SampleDataset{}
	if err := json.NewDecoder(r).Decode(ds); err != nil {
		return nil, err
	}

	// stored value is never trusted
	ds.Info.SampleCount = len(ds.Samples)
	if ds.Info.BoundingPolygon == nil {
		ds.Info.BoundingPolygon = []Coordinates{}
	}
	for idx, sample := range ds.Samples {
		if sample == nil {
			return nil, fmt.Errorf("sample %d is null", idx)
		}
		sample.AbsoluteImagePath = ResolveImagePath(root, sample.ImagePath)
		sample.IsActive = true
	}

	return ds, nil
}

func ResolveImagePath(root, imagePath string) string {
	if filepath.IsAbs(imagePath) {
		return filepath.Clean(imagePath)
	}
	return filepath.Join(root, filepath.FromSlash(imagePath))
}

// SaveDataset writes the manifest with 4-space indentation, xz-compressed when
// the path ends in .xz.
func SaveDataset(path string, ds *SampleDataset) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("error creating dataset folder for %s: %w", path, err)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("error creating dataset %s: %w", path, err)
	}

	var w io.WriteCloser = nopWriteCloser{f}
	if strings.HasSuffix(path, xzSuffix) {
		w, err = xz.NewWriter(f)
		if err != nil {
			_ = f.Close()
			return fmt.Errorf("error creating xz stream %s: %w", path, err)
		}
	}

	err = EncodeDataset(w, ds)
	if closeErr := w.Close(); err == nil {
		err = closeErr
	}
	if closeErr := f.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		return fmt.Errorf("error writing dataset %s: %w", path, err)
	}

	return nil
}

// EncodeDataset writes a missing bounding polygon as [].
func EncodeDataset(w io.Writer, ds *SampleDataset) error {
	if ds.Info.BoundingPolygon == nil {
		normalized := *ds
		normalized.Info.BoundingPolygon = []Coordinates{}
		ds = &normalized
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "    ")
	return enc.Encode(ds)
}

type nopWriteCloser struct {
	io.Writer
}

func (nopWriteCloser) Close() error { return nil }
