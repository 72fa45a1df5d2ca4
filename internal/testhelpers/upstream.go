package testhelpers

import (
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
)

// Upstream is an httptest server that counts requests per path (query included),
// standing in for the remote feeds in tests.
type Upstream struct {
	*httptest.Server

	mu   sync.Mutex
	hits map[string]int
}

// NewUpstream starts a server running handler. It is closed when the test ends.
func NewUpstream(t testing.TB, handler http.HandlerFunc) *Upstream {
	t.Helper()
	u := &Upstream{hits: make(map[string]int)}
	u.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		u.mu.Lock()
		u.hits[r.URL.RequestURI()]++
		u.mu.Unlock()
		handler(w, r)
	}))
	t.Cleanup(u.Close)
	return u
}

// Hits returns the number of requests seen for requestURI (e.g. "/data?x=1").
func (u *Upstream) Hits(requestURI string) int {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.hits[requestURI]
}

// Total returns the number of requests seen for any path.
func (u *Upstream) Total() int {
	u.mu.Lock()
	defer u.mu.Unlock()
	n := 0
	for _, c := range u.hits {
		n += c
	}
	return n
}

// StaticBody returns a handler that always answers 200 with body.
func StaticBody(body string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(body))
	}
}

// Status returns a handler that always answers with code and a short body.
func Status(code int) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, http.StatusText(code), code)
	}
}
