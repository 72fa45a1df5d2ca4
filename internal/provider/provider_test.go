package provider

import (
	"sync"
	"time"
)

type fetchCall struct {
	url    string
	maxAge time.Duration
	force  bool
}

// fakeFetcher answers synchronously from a url -> body map. Unknown URLs get an empty body.
type fakeFetcher struct {
	mu     sync.Mutex
	bodies map[string]string
	calls  []fetchCall
}

func newFakeFetcher(bodies map[string]string) *fakeFetcher {
	return &fakeFetcher{bodies: bodies}
}

func (f *fakeFetcher) FetchAsync(url string, onResult func([]byte), maxAge time.Duration, force bool) {
	f.mu.Lock()
	f.calls = append(f.calls, fetchCall{url, maxAge, force})
	body := f.bodies[url]
	f.mu.Unlock()
	onResult([]byte(body))
}

func (f *fakeFetcher) set(url, body string) {
	f.mu.Lock()
	f.bodies[url] = body
	f.mu.Unlock()
}
