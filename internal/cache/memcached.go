package cache

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bradfitz/gomemcache/memcache"
)

const keyPrefix = "fetch:"

// maxRelativeExp is memcached's limit for relative expirations (30 days).
const maxRelativeExp = 30 * 24 * time.Hour

// MemcachedCache implements Backing and Lookuper on memcached, so several
// instances can share fetched responses. Values use the disk record encoding.
type MemcachedCache struct {
	client     *memcache.Client
	expiration time.Duration
}

// NewMemcachedCache creates a MemcachedCache. addrs is a comma-separated list
// (e.g. "localhost:11211" or "host1:11211,host2:11211"). timeout and maxIdleConns
// use package defaults if zero; expiration defaults to 24h.
func NewMemcachedCache(addrs string, timeout time.Duration, maxIdleConns int, expiration time.Duration) (*MemcachedCache, error) {
	servers := parseAddrs(addrs)
	if len(servers) == 0 {
		return nil, fmt.Errorf("memcached: no server addresses in %q", addrs)
	}
	client := memcache.New(servers...)
	if timeout > 0 {
		client.Timeout = timeout
	}
	if maxIdleConns > 0 {
		client.MaxIdleConns = maxIdleConns
	}
	if expiration <= 0 {
		expiration = 24 * time.Hour
	}
	if expiration > maxRelativeExp {
		expiration = maxRelativeExp
	}
	return &MemcachedCache{client: client, expiration: expiration}, nil
}

func parseAddrs(s string) []string {
	var out []string
	for _, a := range strings.Split(s, ",") {
		a = strings.TrimSpace(a)
		if a != "" {
			out = append(out, a)
		}
	}
	return out
}

func (c *MemcachedCache) key(url string) string {
	return keyPrefix + HashURL(url)
}

// Lookup implements Lookuper. A record stored under the same hash by a different
// URL is treated as a miss.
func (c *MemcachedCache) Lookup(ctx context.Context, url string) (Entry, bool, error) {
	if err := ctx.Err(); err != nil {
		return Entry{}, false, err
	}
	item, err := c.client.Get(c.key(url))
	if err != nil {
		if errors.Is(err, memcache.ErrCacheMiss) {
			return Entry{}, false, nil
		}
		return Entry{}, false, fmt.Errorf("memcached get: %w", err)
	}
	storedURL, entry, err := DecodeRecord(item.Value)
	if err != nil {
		return Entry{}, false, err
	}
	if storedURL != url {
		return Entry{}, false, nil
	}
	return entry, true, nil
}

// Store implements Backing.
func (c *MemcachedCache) Store(ctx context.Context, url string, entry Entry) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	err := c.client.Set(&memcache.Item{
		Key:        c.key(url),
		Value:      EncodeRecord(url, entry),
		Expiration: int32(c.expiration / time.Second),
	})
	if err != nil {
		return fmt.Errorf("memcached set: %w", err)
	}
	return nil
}

// Ping checks if memcached is reachable. Used for health checks.
func (c *MemcachedCache) Ping() error {
	return c.client.Ping()
}

// Close closes the memcached client connections. Call during shutdown.
func (c *MemcachedCache) Close() error {
	return c.client.Close()
}
