//go:build integration
// +build integration

package cache

import (
	"context"
	"testing"
	"time"
)

// TestMemcachedCache_StoreLookup_Integration verifies that MemcachedCache stores and
// restores entries when a memcached server is available.
func TestMemcachedCache_StoreLookup_Integration(t *testing.T) {
	c, err := NewMemcachedCache("localhost:11211", 500*time.Millisecond, 2, time.Minute)
	if err != nil {
		t.Fatalf("NewMemcachedCache() error = %v", err)
	}
	defer c.Close()

	ctx := context.Background()
	url := "https://x/integration?" + time.Now().Format(time.RFC3339Nano)
	if err := c.Store(ctx, url, NewEntry([]byte("abc\ndef"), time.Unix(1700000000, 0))); err != nil {
		t.Skipf("Store failed (memcached may not be running): %v", err)
	}

	got, ok, err := c.Lookup(ctx, url)
	if err != nil {
		t.Fatalf("Lookup() error = %v", err)
	}
	if !ok {
		t.Fatal("Lookup() ok = false, want true")
	}
	if string(got.Payload()) != "abc\ndef" || got.FetchedAt().Unix() != 1700000000 {
		t.Errorf("Lookup() = (%q, %d)", got.Payload(), got.FetchedAt().Unix())
	}
}

// TestMemcachedCache_Lookup_Miss_Integration verifies that an absent key is a miss.
func TestMemcachedCache_Lookup_Miss_Integration(t *testing.T) {
	c, err := NewMemcachedCache("localhost:11211", 500*time.Millisecond, 2, time.Minute)
	if err != nil {
		t.Fatalf("NewMemcachedCache() error = %v", err)
	}
	defer c.Close()

	_, ok, err := c.Lookup(context.Background(), "https://x/never-stored")
	if err != nil {
		t.Skipf("Lookup failed (memcached may not be running): %v", err)
	}
	if ok {
		t.Error("Lookup() ok = true, want false for miss")
	}
}
