package storage

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/starford/kiln/internal/apperr"
	"github.com/starford/kiln/internal/checksum"
	"github.com/starford/kiln/internal/models"
)

// DefaultExtensions are tracked when NewFS is given none.
var DefaultExtensions = []string{".astro", ".md", ".mdx"}

const (
	tempPattern = ".kiln-tmp-*"
	newFileMode = 0o644
)

// FS is a Provider over a directory on the local disk.
type FS struct {
	root string
	exts map[string]bool
}

// NewFS opens the existing directory root, tracking files whose extension
// is one of exts.
func NewFS(root string, exts ...string) (*FS, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("storage: resolve root: %w", err)
	}
	info, err := os.Stat(abs)
	switch {
	case err != nil:
		return nil, fmt.Errorf("storage: stat root: %w", err)
	case !info.IsDir():
		return nil, fmt.Errorf("storage: root is not a directory: %s", abs)
	}
	if len(exts) == 0 {
		exts = DefaultExtensions
	}
	f := &FS{root: abs, exts: make(map[string]bool, len(exts))}
	for _, e := range exts {
		f.exts[strings.ToLower(e)] = true
	}
	return f, nil
}

// Root returns the absolute site directory.
func (f *FS) Root() string { return f.root }

// Tracked reports whether path has a tracked extension.
func (f *FS) Tracked(path string) bool {
	return f.exts[strings.ToLower(filepath.Ext(path))]
}

// abs maps a site-relative slash path onto the disk. Absolute paths and
// paths leaving the root are rejected as unprocessable.
func (f *FS) abs(rel string) (string, error) {
	if rel == "" || rel == "." {
		return f.root, nil
	}
	local := filepath.FromSlash(rel)
	if !filepath.IsLocal(local) {
		return "", fmt.Errorf("storage: path %q is outside the site: %w", rel, apperr.ErrUnprocessable)
	}
	return filepath.Join(f.root, local), nil
}

// List walks dir and returns metadata for every tracked file. Hidden
// directories and node_modules are skipped.
func (f *FS) List(dir string) ([]models.FileMetadata, error) {
	base, err := f.abs(dir)
	if err != nil {
		return nil, err
	}
	var out []models.FileMetadata
	walk := func(p string, d fs.DirEntry, walkErr error) error {
		switch {
		case walkErr != nil:
			return walkErr
		case d.IsDir():
			if p != base && skipDir(d.Name()) {
				return filepath.SkipDir
			}
			return nil
		case !d.Type().IsRegular() || !f.Tracked(d.Name()):
			return nil
		}
		meta, err := f.metadata(p, d)
		if err != nil {
			return err
		}
		out = append(out, meta)
		return nil
	}
	if err := filepath.WalkDir(base, walk); err != nil {
		return nil, fmt.Errorf("storage: list %q: %w", dir, err)
	}
	return out, nil
}

func (f *FS) metadata(p string, d fs.DirEntry) (models.FileMetadata, error) {
	info, err := d.Info()
	if err != nil {
		return models.FileMetadata{}, err
	}
	data, err := os.ReadFile(p)
	if err != nil {
		return models.FileMetadata{}, err
	}
	rel, err := filepath.Rel(f.root, p)
	if err != nil {
		return models.FileMetadata{}, err
	}
	return models.FileMetadata{
		Path:      filepath.ToSlash(rel),
		Checksum:  checksum.Sum(data),
		UpdatedAt: info.ModTime(),
	}, nil
}

func skipDir(name string) bool {
	return strings.HasPrefix(name, ".") || name == "node_modules"
}

// Read returns the raw bytes of a site file.
func (f *FS) Read(path string) ([]byte, error) {
	p, err := f.abs(path)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(p)
	if err != nil {
		return nil, notFound("read", path, err)
	}
	return data, nil
}

// Exists reports whether a regular file exists at path.
func (f *FS) Exists(path string) bool {
	p, err := f.abs(path)
	if err != nil {
		return false
	}
	info, err := os.Stat(p)
	return err == nil && info.Mode().IsRegular()
}

// Write replaces path through a synced temp file and a rename, so readers
// see either the old or the new content. An existing file keeps its mode.
func (f *FS) Write(path string, content []byte) (err error) {
	p, err := f.abs(path)
	if err != nil {
		return err
	}
	dir := filepath.Dir(p)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("storage: mkdir: %w", err)
	}
	mode := fs.FileMode(newFileMode)
	if info, statErr := os.Stat(p); statErr == nil {
		mode = info.Mode().Perm()
	}

	tmp, err := os.CreateTemp(dir, tempPattern)
	if err != nil {
		return fmt.Errorf("storage: create temp: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tmp.Close()
			_ = os.Remove(tmp.Name())
		}
	}()

	if _, err = tmp.Write(content); err != nil {
		return fmt.Errorf("storage: write temp: %w", err)
	}
	if err = tmp.Chmod(mode); err != nil {
		return fmt.Errorf("storage: chmod temp: %w", err)
	}
	if err = tmp.Sync(); err != nil {
		return fmt.Errorf("storage: fsync: %w", err)
	}
	if err = tmp.Close(); err != nil {
		return fmt.Errorf("storage: close temp: %w", err)
	}
	if err = os.Rename(tmp.Name(), p); err != nil {
		return fmt.Errorf("storage: rename: %w", err)
	}
	return nil
}

// Delete removes a file from the site.
func (f *FS) Delete(path string) error {
	p, err := f.abs(path)
	if err != nil {
		return err
	}
	if err := os.Remove(p); err != nil {
		return notFound("delete", path, err)
	}
	return nil
}

func notFound(op, path string, err error) error {
	if errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("storage: %s %s: %w", op, path, apperr.ErrNotFound)
	}
	return fmt.Errorf("storage: %s %s: %w", op, path, err)
}
