package traffic

import (
	"sync"
	"time"
)

// defaultRetention bounds memory: outcomes older than this are pruned on write.
const defaultRetention = 10 * time.Minute

// Tracker maintains sliding windows of upstream fetch outcome timestamps.
// It is the source for the degraded health status.
type Tracker struct {
	mu            sync.Mutex
	now           func() time.Time
	retention     time.Duration
	successTimes  []time.Time
	failureTimes  []time.Time
	rejectedTimes []time.Time
}

// NewTracker creates a Tracker keeping outcomes for at least retention.
// A non-positive retention uses 10 minutes; a nil now uses time.Now.
func NewTracker(retention time.Duration, now func() time.Time) *Tracker {
	if retention <= 0 {
		retention = defaultRetention
	}
	if now == nil {
		now = time.Now
	}
	return &Tracker{now: now, retention: retention}
}

// RecordSuccess records an upstream fetch that returned a body.
func (t *Tracker) RecordSuccess() {
	t.recordOutcome(&t.successTimes)
}

// RecordFailure records an upstream fetch that failed (transport, status, breaker).
func (t *Tracker) RecordFailure() {
	t.recordOutcome(&t.failureTimes)
}

// RecordRejected records a fetch the worker pool refused.
func (t *Tracker) RecordRejected() {
	t.recordOutcome(&t.rejectedTimes)
}

func (t *Tracker) recordOutcome(slice *[]time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	now := t.now()
	*slice = append(*slice, now)
	t.pruneLocked(now)
}

// FailureRate returns (failureCount, totalCount) within the window.
// totalCount includes successes and failures only; rejections are reported separately.
func (t *Tracker) FailureRate(window time.Duration) (failures, total int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	cutoff := t.now().Add(-window)
	f := countInWindow(t.failureTimes, cutoff)
	s := countInWindow(t.successTimes, cutoff)
	return f, f + s
}

// RejectedCount returns the number of pool rejections within the window.
func (t *Tracker) RejectedCount(window time.Duration) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return countInWindow(t.rejectedTimes, t.now().Add(-window))
}

// Degraded reports whether failures exceed errorPct percent of at least minSamples
// outcomes in the window.
func (t *Tracker) Degraded(window time.Duration, errorPct float64, minSamples int) bool {
	failures, total := t.FailureRate(window)
	if total == 0 || total < minSamples {
		return false
	}
	return float64(failures)*100/float64(total) > errorPct
}

// Reset clears all recorded outcomes.
func (t *Tracker) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.successTimes = nil
	t.failureTimes = nil
	t.rejectedTimes = nil
}

// countInWindow counts timestamps that are not before the cutoff time.
func countInWindow(times []time.Time, cutoff time.Time) int {
	n := 0
	for _, ts := range times {
		if !ts.Before(cutoff) {
			n++
		}
	}
	return n
}

// pruneLocked drops timestamps older than the retention. Must be called with mutex held.
func (t *Tracker) pruneLocked(now time.Time) {
	cutoff := now.Add(-t.retention)
	prune := func(slice *[]time.Time) {
		times := *slice
		i := 0
		for ; i < len(times) && times[i].Before(cutoff); i++ {
		}
		if i > 0 {
			*slice = append(times[:0], times[i:]...)
		}
	}
	prune(&t.successTimes)
	prune(&t.failureTimes)
	prune(&t.rejectedTimes)
}
