package fetch

import (
	"sync"
)

// stampedeTracker tracks concurrent cache misses per URL.
// RecordMiss increments and returns the count for the URL; Done decrements.
// When several misses for one URL overlap, the count exceeds 1 and each extra
// miss is a redundant upstream fetch (unless coalescing is enabled).
type stampedeTracker struct {
	mu           sync.Mutex     // protects activeMisses
	activeMisses map[string]int // url -> misses in progress
}

func newStampedeTracker() *stampedeTracker {
	return &stampedeTracker{
		activeMisses: make(map[string]int),
	}
}

// RecordMiss records a miss for url and returns the concurrent miss count after incrementing.
// Caller should defer Done(url) when the upstream fetch completes.
func (st *stampedeTracker) RecordMiss(url string) int {
	st.mu.Lock()
	defer st.mu.Unlock()
	st.activeMisses[url]++
	return st.activeMisses[url]
}

// Done records completion of a miss for url.
func (st *stampedeTracker) Done(url string) {
	st.mu.Lock()
	defer st.mu.Unlock()
	if count, ok := st.activeMisses[url]; ok && count > 0 {
		st.activeMisses[url]--
		if st.activeMisses[url] == 0 {
			delete(st.activeMisses, url)
		}
	}
}
