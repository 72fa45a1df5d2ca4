package cache

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"go.uber.org/zap"
)

// DiskCache persists one file per URL, named by HashURL. Files are written whole
// without a rename step, so a crash mid-write can leave a corrupt file; LoadAll
// skips those. There is no eviction.
type DiskCache struct {
	dir    string
	mu     sync.Mutex // serializes file writes
	logger *zap.Logger
}

// NewDiskCache creates dir (and parents) if needed. An existing directory is fine.
func NewDiskCache(dir string, logger *zap.Logger) (*DiskCache, error) {
	if dir == "" {
		return nil, fmt.Errorf("disk cache: directory is required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("disk cache: create %s: %w", dir, err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DiskCache{dir: dir, logger: logger}, nil
}

// Dir returns the cache directory.
func (d *DiskCache) Dir() string {
	return d.dir
}

// Path returns the file that holds url's record.
func (d *DiskCache) Path(url string) string {
	return filepath.Join(d.dir, HashURL(url))
}

// Store implements Backing. Overwrites any record with the same hash, including
// one that belongs to a colliding URL.
func (d *DiskCache) Store(ctx context.Context, url string, entry Entry) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := os.WriteFile(d.Path(url), EncodeRecord(url, entry), 0o644); err != nil {
		return fmt.Errorf("disk cache: write %s: %w", url, err)
	}
	return nil
}

// LoadAll implements Loader. Every regular file that decodes is passed to fn keyed
// by the URL stored inside it; unreadable or malformed files are skipped and counted.
// Only a failure to list the directory is returned as an error.
func (d *DiskCache) LoadAll(fn func(url string, entry Entry)) (loaded, skipped int, err error) {
	entries, err := os.ReadDir(d.dir)
	if err != nil {
		return 0, 0, fmt.Errorf("disk cache: read dir %s: %w", d.dir, err)
	}
	for _, de := range entries {
		if !de.Type().IsRegular() {
			continue
		}
		path := filepath.Join(d.dir, de.Name())
		data, err := os.ReadFile(path)
		if err != nil {
			d.logger.Debug("skip unreadable cache file", zap.String("path", path), zap.Error(err))
			skipped++
			continue
		}
		url, entry, err := DecodeRecord(data)
		if err != nil {
			d.logger.Debug("skip malformed cache file", zap.String("path", path), zap.Error(err))
			skipped++
			continue
		}
		fn(url, entry)
		loaded++
	}
	return loaded, skipped, nil
}
