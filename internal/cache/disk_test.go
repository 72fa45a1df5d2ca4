package cache

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"
)

func loadAll(t *testing.T, d *DiskCache) (map[string]Entry, int) {
	t.Helper()
	got := make(map[string]Entry)
	loaded, skipped, err := d.LoadAll(func(url string, e Entry) { got[url] = e })
	if err != nil {
		t.Fatalf("LoadAll() error = %v", err)
	}
	if loaded != len(got) {
		t.Errorf("LoadAll() loaded = %d, but callback saw %d", loaded, len(got))
	}
	return got, skipped
}

// TestDiskCache_RoundTrip verifies that a stored entry is reconstructed with identical
// fields by a fresh DiskCache over the same directory.
func TestDiskCache_RoundTrip(t *testing.T) {
	dir := t.TempDir()
	d, err := NewDiskCache(dir, zaptest.NewLogger(t))
	if err != nil {
		t.Fatalf("NewDiskCache() error = %v", err)
	}
	if err := d.Store(context.Background(), "http://x/y", NewEntry([]byte("abc"), time.Unix(1700000000, 0))); err != nil {
		t.Fatalf("Store() error = %v", err)
	}

	reopened, err := NewDiskCache(dir, nil)
	if err != nil {
		t.Fatalf("NewDiskCache() reopen error = %v", err)
	}
	got, skipped := loadAll(t, reopened)
	if skipped != 0 {
		t.Errorf("skipped = %d, want 0", skipped)
	}
	e, ok := got["http://x/y"]
	if !ok {
		t.Fatalf("LoadAll() missing http://x/y, got %v", got)
	}
	if string(e.Payload()) != "abc" || e.FetchedAt().Unix() != 1700000000 {
		t.Errorf("entry = (%q, %d), want (abc, 1700000000)", e.Payload(), e.FetchedAt().Unix())
	}
}

// TestDiskCache_SkipsCorruptFiles verifies that malformed files are skipped without
// aborting the load of the good ones.
func TestDiskCache_SkipsCorruptFiles(t *testing.T) {
	dir := t.TempDir()
	d, err := NewDiskCache(dir, zaptest.NewLogger(t))
	if err != nil {
		t.Fatalf("NewDiskCache() error = %v", err)
	}
	ctx := context.Background()
	if err := d.Store(ctx, "https://x/good1", NewEntry([]byte("g1"), time.Unix(100, 0))); err != nil {
		t.Fatal(err)
	}
	if err := d.Store(ctx, "https://x/good2", NewEntry([]byte("g2\nmore"), time.Unix(200, 0))); err != nil {
		t.Fatal(err)
	}
	writeFile(t, dir, "aaaaaaaaaaaaaaaa", "not-a-number\nhttps://x/bad\npayload")
	writeFile(t, dir, "bbbbbbbbbbbbbbbb", "1700000000")
	writeFile(t, dir, "cccccccccccccccc", "")
	if err := os.Mkdir(filepath.Join(dir, "subdir"), 0o755); err != nil {
		t.Fatal(err)
	}

	got, skipped := loadAll(t, d)
	if skipped != 3 {
		t.Errorf("skipped = %d, want 3", skipped)
	}
	if len(got) != 2 {
		t.Fatalf("loaded %d entries, want 2: %v", len(got), got)
	}
	if string(got["https://x/good2"].Payload()) != "g2\nmore" {
		t.Errorf("good2 payload = %q", got["https://x/good2"].Payload())
	}
}

func TestDiskCache_StoreOverwrites(t *testing.T) {
	d, err := NewDiskCache(t.TempDir(), nil)
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()
	_ = d.Store(ctx, "https://x/a", NewEntry([]byte("old payload"), time.Unix(1, 0)))
	_ = d.Store(ctx, "https://x/a", NewEntry([]byte("new"), time.Unix(2, 0)))

	data, err := os.ReadFile(d.Path("https://x/a"))
	if err != nil {
		t.Fatalf("ReadFile() error = %v", err)
	}
	if string(data) != "2\nhttps://x/a\nnew" {
		t.Errorf("file = %q, want overwritten record", data)
	}
}

func TestNewDiskCache_CreatesNestedDir(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "a", "b", "cache")
	if _, err := NewDiskCache(dir, nil); err != nil {
		t.Fatalf("NewDiskCache() error = %v", err)
	}
	if st, err := os.Stat(dir); err != nil || !st.IsDir() {
		t.Fatalf("cache dir not created: %v", err)
	}
	// Existing directory is not an error.
	if _, err := NewDiskCache(dir, nil); err != nil {
		t.Errorf("NewDiskCache() on existing dir error = %v", err)
	}
}

func TestNewDiskCache_Errors(t *testing.T) {
	if _, err := NewDiskCache("", nil); err == nil {
		t.Error("NewDiskCache(\"\") error = nil, want error")
	}
	file := filepath.Join(t.TempDir(), "file")
	writeFile(t, filepath.Dir(file), "file", "x")
	if _, err := NewDiskCache(filepath.Join(file, "cache"), nil); err == nil {
		t.Error("NewDiskCache() under a regular file error = nil, want error")
	}
}

func TestDiskCache_StoreCanceledContext(t *testing.T) {
	d, err := NewDiskCache(t.TempDir(), nil)
	if err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := d.Store(ctx, "https://x/a", NewEntry([]byte("x"), time.Now())); err == nil {
		t.Error("Store() with canceled context error = nil, want error")
	}
}

func writeFile(t *testing.T, dir, name, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
}
