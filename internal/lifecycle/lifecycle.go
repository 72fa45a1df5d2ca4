package lifecycle

import "sync/atomic"

// State is the process lifecycle phase reported by /health.
type State int32

const (
	// Starting: stores may still be empty.
	Starting State = iota
	// Ready: the server is listening and the poller is running.
	Ready
	// Draining: SIGTERM/SIGINT received; the process should not receive new traffic.
	Draining
)

func (s State) String() string {
	switch s {
	case Starting:
		return "starting"
	case Ready:
		return "ready"
	case Draining:
		return "draining"
	default:
		return "unknown"
	}
}

var current atomic.Int32

// Set records the lifecycle phase.
func Set(s State) {
	current.Store(int32(s))
}

// Current returns the lifecycle phase.
func Current() State {
	return State(current.Load())
}

// IsShuttingDown returns true if the process is draining.
// Health handler returns 503 with status shutting-down while true.
func IsShuttingDown() bool {
	return Current() == Draining
}
