package cache

import (
	"context"
	"sync"
	"time"
)

// Backing is a persistent layer behind the in-memory cache. Store failures are
// reported to the caller but never turn a successful fetch into a failed one.
type Backing interface {
	Store(ctx context.Context, url string, entry Entry) error
}

// Loader is implemented by backings that can enumerate every stored record,
// so the memory layer can be filled eagerly at startup.
type Loader interface {
	LoadAll(fn func(url string, entry Entry)) (loaded, skipped int, err error)
}

// Lookuper is implemented by backings that are consulted on a memory miss.
// Returns (entry, true, nil) on hit, (zero, false, nil) on miss.
type Lookuper interface {
	Lookup(ctx context.Context, url string) (Entry, bool, error)
}

// Entry is one cached response body plus the time it was fetched.
// The zero value is an empty entry; fields are never mutated after construction.
type Entry struct {
	payload   []byte
	fetchedAt time.Time
}

// NewEntry copies payload so later changes by the caller do not leak in.
func NewEntry(payload []byte, fetchedAt time.Time) Entry {
	return Entry{
		payload:   append([]byte(nil), payload...),
		fetchedAt: fetchedAt,
	}
}

// Payload returns a copy of the cached body.
func (e Entry) Payload() []byte {
	return append([]byte(nil), e.payload...)
}

// FetchedAt returns the time the body was fetched.
func (e Entry) FetchedAt() time.Time {
	return e.fetchedAt
}

// Size returns the payload length in bytes.
func (e Entry) Size() int {
	return len(e.payload)
}

// Fresh reports whether the entry is younger than maxAge at now.
// A non-positive maxAge is never fresh.
func (e Entry) Fresh(now time.Time, maxAge time.Duration) bool {
	if maxAge <= 0 {
		return false
	}
	return now.Sub(e.fetchedAt) < maxAge
}

// MemoryCache maps exact URL strings (query included) to entries.
// There is no size bound and no expiry: TTL only decides whether a new fetch is
// triggered, stale entries stay until overwritten. Safe for concurrent use.
type MemoryCache struct {
	mu   sync.RWMutex
	data map[string]Entry
}

// NewMemoryCache creates an empty MemoryCache.
func NewMemoryCache() *MemoryCache {
	return &MemoryCache{
		data: make(map[string]Entry),
	}
}

// Get returns the entry for url, if any.
func (c *MemoryCache) Get(url string) (Entry, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	entry, ok := c.data[url]
	return entry, ok
}

// Set replaces the entry for url. Last writer wins; entries are never merged.
func (c *MemoryCache) Set(url string, entry Entry) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data[url] = entry
}

// SetIfNewer stores entry unless the cached entry for url was fetched later.
// It reports whether entry was stored.
func (c *MemoryCache) SetIfNewer(url string, entry Entry) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if cur, ok := c.data[url]; ok && cur.fetchedAt.After(entry.fetchedAt) {
		return false
	}
	c.data[url] = entry
	return true
}

// Len returns the number of cached URLs.
func (c *MemoryCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.data)
}
