// Package samples serves the read-only corpus of plain-text example files
// and verifies their integrity: every sample must be non-empty, valid
// UTF-8 text, and byte-stable across reads.
package samples

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/starford/ansuz/internal/checksum"
	"github.com/starford/ansuz/internal/models"
	"github.com/starford/ansuz/internal/textscan"
)

// Provider is the interface for sample corpus access.
type Provider interface {
	// List returns metadata for every .txt file under the corpus root.
	List() ([]models.SampleMeta, error)
	// Read returns the raw bytes of the sample at path (relative to root).
	Read(path string) ([]byte, error)
}

// FS implements Provider backed by the local file system.
type FS struct {
	root string // absolute path to the corpus directory
}

// NewFS creates a new FS provider rooted at the given directory.
// The directory must already exist.
func NewFS(root string) (*FS, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("samples: resolve root: %w", err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, fmt.Errorf("samples: stat root: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("samples: root is not a directory: %s", abs)
	}
	return &FS{root: abs}, nil
}

// safePath resolves a relative path against the corpus root and rejects
// any result that escapes it (directory traversal).
func (f *FS) safePath(rel string) (string, error) {
	if rel == "" {
		return f.root, nil
	}
	cleaned := filepath.Clean(rel)
	if filepath.IsAbs(cleaned) {
		return "", fmt.Errorf("samples: absolute paths not allowed: %s", rel)
	}
	joined := filepath.Join(f.root, cleaned)
	abs, err := filepath.Abs(joined)
	if err != nil {
		return "", fmt.Errorf("samples: resolve path: %w", err)
	}
	if !strings.HasPrefix(abs, f.root+string(os.PathSeparator)) && abs != f.root {
		return "", fmt.Errorf("samples: path escapes corpus root: %s", rel)
	}
	return abs, nil
}

// List walks the corpus root and returns metadata for every .txt file.
func (f *FS) List() ([]models.SampleMeta, error) {
	var out []models.SampleMeta
	err := filepath.WalkDir(f.root, func(p string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if d.IsDir() || !strings.HasSuffix(d.Name(), ".txt") {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		data, err := os.ReadFile(p)
		if err != nil {
			return err
		}
		rel, _ := filepath.Rel(f.root, p)
		out = append(out, models.SampleMeta{
			Path:      rel,
			Size:      info.Size(),
			Checksum:  checksum.Sum(data),
			UpdatedAt: info.ModTime(),
		})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("samples: list: %w", err)
	}
	return out, nil
}

// Read returns the raw bytes of a sample file.
func (f *FS) Read(path string) ([]byte, error) {
	abs, err := f.safePath(path)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(abs)
	if err != nil {
		return nil, fmt.Errorf("samples: read %s: %w", path, err)
	}
	return data, nil
}

// Detail is the full representation of a sample file.
type Detail struct {
	models.SampleMeta
	Content string           `json:"content"`
	Stats   *textscan.Result `json:"stats"`
}

// Detail reads a sample and derives its descriptive stats.
func (f *FS) Detail(path string) (*Detail, error) {
	abs, err := f.safePath(path)
	if err != nil {
		return nil, err
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, fmt.Errorf("samples: stat %s: %w", path, err)
	}
	data, err := os.ReadFile(abs)
	if err != nil {
		return nil, fmt.Errorf("samples: read %s: %w", path, err)
	}
	return &Detail{
		SampleMeta: models.SampleMeta{
			Path:      path,
			Size:      info.Size(),
			Checksum:  checksum.Sum(data),
			UpdatedAt: info.ModTime(),
		},
		Content: string(data),
		Stats:   textscan.Scan(data),
	}, nil
}

// Verify checks the integrity properties of one sample: the file must be
// non-empty, valid UTF-8 text, and return identical bytes on a repeated
// read.
func (f *FS) Verify(path string) error {
	first, err := f.Read(path)
	if err != nil {
		return err
	}
	if len(first) == 0 {
		return fmt.Errorf("samples: %s is empty", path)
	}
	if !utf8.Valid(first) {
		return fmt.Errorf("samples: %s is not valid UTF-8 text", path)
	}
	second, err := f.Read(path)
	if err != nil {
		return err
	}
	if checksum.Sum(first) != checksum.Sum(second) {
		return fmt.Errorf("samples: %s changed between reads", path)
	}
	return nil
}
