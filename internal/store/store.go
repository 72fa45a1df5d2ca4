// Package store holds the latest parsed value of each feed for readers.
//
// Writers replace values whole; readers load an immutable snapshot without
// taking a lock, so a reader never observes a partially written value.
package store

import (
	"sort"
	"sync"
	"sync/atomic"

	"github.com/kjstillabower/spacewx-feed-service/internal/observability"
)

// Cloner is implemented by values that own mutable memory (slices, maps).
// Stores clone such values on the way in and on the way out.
type Cloner[T any] interface {
	Clone() T
}

func clone[T any](v T) T {
	if c, ok := any(v).(Cloner[T]); ok {
		return c.Clone()
	}
	return v
}

// Snapshot holds exactly one value of T.
type Snapshot[T any] struct {
	name string
	ptr  atomic.Pointer[T]
}

// NewSnapshot creates an empty Snapshot. name labels update metrics.
func NewSnapshot[T any](name string) *Snapshot[T] {
	return &Snapshot[T]{name: name}
}

// Update replaces the stored value.
func (s *Snapshot[T]) Update(v T) {
	v = clone(v)
	s.ptr.Store(&v)
	observability.StoreUpdatesTotal.WithLabelValues(s.name).Inc()
}

// Get returns the latest value, or the zero value if nothing was stored.
func (s *Snapshot[T]) Get() T {
	p := s.ptr.Load()
	if p == nil {
		var zero T
		return zero
	}
	return clone(*p)
}

// Named maps series names to values of T. Each name is replaced independently.
type Named[T any] struct {
	name string
	mu   sync.Mutex // serializes writers; readers never lock
	data atomic.Pointer[map[string]T]
}

// NewNamed creates an empty Named store. name labels update metrics.
func NewNamed[T any](name string) *Named[T] {
	n := &Named[T]{name: name}
	m := make(map[string]T)
	n.data.Store(&m)
	return n
}

// Update replaces the value for key. Other keys are untouched.
func (n *Named[T]) Update(key string, v T) {
	v = clone(v)

	n.mu.Lock()
	old := *n.data.Load()
	next := make(map[string]T, len(old)+1)
	for k, existing := range old {
		next[k] = existing
	}
	next[key] = v
	n.data.Store(&next)
	n.mu.Unlock()

	observability.StoreUpdatesTotal.WithLabelValues(n.name).Inc()
}

// Get returns the value for key, or the zero value for an unknown key.
func (n *Named[T]) Get(key string) T {
	v, ok := (*n.data.Load())[key]
	if !ok {
		return v
	}
	return clone(v)
}

// Names returns the stored keys in sorted order.
func (n *Named[T]) Names() []string {
	m := *n.data.Load()
	names := make([]string, 0, len(m))
	for k := range m {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}
