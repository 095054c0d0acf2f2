package opendap

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"
)

// cacheSuffix is appended to the granule file name to form the cache file name.
const cacheSuffix = ".dap.nc4"

// LocalFileCache stores downloaded granule subsets in a flat directory,
// keyed by the base name of the source URL. Entries are never evicted.
type LocalFileCache struct {
	dir string
}

// NewLocalFileCache returns a cache rooted at dir. The directory is created
// on first write.
func NewLocalFileCache(dir string) *LocalFileCache {
	return &LocalFileCache{dir: dir}
}

// Dir returns the cache root.
func (c *LocalFileCache) Dir() string {
	return c.dir
}

// Path returns the destination path for a source URL.
func (c *LocalFileCache) Path(sourceURL string) string {
	base := sourceURL
	if i := strings.IndexAny(base, "?#"); i >= 0 {
		base = base[:i]
	}
	return filepath.Join(c.dir, path.Base(base)+cacheSuffix)
}

// Lookup reports whether a cached file exists for sourceURL.
func (c *LocalFileCache) Lookup(sourceURL string) (string, bool) {
	p := c.Path(sourceURL)
	info, err := os.Stat(p)
	if err != nil || info.IsDir() {
		return "", false
	}
	return p, true
}

// Store writes r to the cache entry for sourceURL. The content is written to
// a temporary file in the same directory and renamed into place, so readers
// never observe a partial file.
func (c *LocalFileCache) Store(sourceURL string, r io.Reader) (string, error) {
	if err := os.MkdirAll(c.dir, 0o755); err != nil {
		return "", fmt.Errorf("create cache dir: %w", err)
	}

	dest := c.Path(sourceURL)
	tmp, err := os.CreateTemp(c.dir, filepath.Base(dest)+".*.part")
	if err != nil {
		return "", fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := io.Copy(tmp, r); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return "", fmt.Errorf("write %s: %w", filepath.Base(dest), err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return "", fmt.Errorf("close %s: %w", filepath.Base(dest), err)
	}
	if err := os.Rename(tmpName, dest); err != nil {
		os.Remove(tmpName)
		return "", fmt.Errorf("rename %s: %w", filepath.Base(dest), err)
	}
	return dest, nil
}

// CheckReadiness verifies that the cache directory exists or can be created
// and is writable.
func (c *LocalFileCache) CheckReadiness(_ context.Context) error {
	if err := os.MkdirAll(c.dir, 0o755); err != nil {
		return fmt.Errorf("cache dir %s: %w", c.dir, err)
	}
	f, err := os.CreateTemp(c.dir, ".readyz-*")
	if err != nil {
		if errors.Is(err, fs.ErrPermission) {
			return fmt.Errorf("cache dir %s is not writable", c.dir)
		}
		return fmt.Errorf("cache dir %s: %w", c.dir, err)
	}
	name := f.Name()
	f.Close()
	return os.Remove(name)
}
