package circuitbreaker

import (
	"errors"
	"sync"
	"time"
)

// ErrOpen is returned by Call while the breaker rejects requests.
var ErrOpen = errors.New("circuit breaker open")

// State represents the circuit breaker state.
const (
	StateClosed State = iota
	StateOpen
	StateHalfOpen
)

// State is the circuit breaker state (Closed, Open, HalfOpen).
type State int

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half_open"
	default:
		return "unknown"
	}
}

// Config holds circuit breaker parameters shared by every host in a Set.
type Config struct {
	FailureThreshold int
	SuccessThreshold int
	Timeout          time.Duration
	// OnStateChange is optional, for logs and metrics. Called outside the breaker lock.
	OnStateChange func(host string, from, to State)
	// Now defaults to time.Now.
	Now func() time.Time
}

func (c Config) withDefaults() Config {
	if c.FailureThreshold <= 0 {
		c.FailureThreshold = 5
	}
	if c.SuccessThreshold <= 0 {
		c.SuccessThreshold = 2
	}
	if c.Timeout <= 0 {
		c.Timeout = 30 * time.Second
	}
	if c.Now == nil {
		c.Now = time.Now
	}
	return c
}

// CircuitBreaker protects calls to one upstream host by opening after repeated
// failures and allowing probe requests in half-open state.
type CircuitBreaker struct {
	mu              sync.Mutex
	host            string
	cfg             Config
	state           State
	failureCount    int
	successCount    int
	lastFailureTime time.Time
}

func newBreaker(host string, cfg Config) *CircuitBreaker {
	return &CircuitBreaker{host: host, cfg: cfg, state: StateClosed}
}

// Call runs fn when the circuit allows it. When open, returns ErrOpen unless the
// timeout has elapsed (then transitions to half-open). Records failures and
// successes to open/close the circuit.
func (cb *CircuitBreaker) Call(fn func() error) error {
	cb.mu.Lock()
	if cb.state == StateOpen {
		if cb.cfg.Now().Sub(cb.lastFailureTime) < cb.cfg.Timeout {
			cb.mu.Unlock()
			return ErrOpen
		}
		cb.state = StateHalfOpen
		cb.successCount = 0
		cb.mu.Unlock()
		cb.notify(StateOpen, StateHalfOpen)
	} else {
		cb.mu.Unlock()
	}

	err := fn()

	cb.mu.Lock()
	from := cb.state
	to := from
	if err != nil {
		cb.failureCount++
		cb.lastFailureTime = cb.cfg.Now()
		if cb.state == StateHalfOpen || cb.failureCount >= cb.cfg.FailureThreshold {
			cb.state = StateOpen
			cb.failureCount = 0
			to = StateOpen
		}
	} else {
		cb.successCount++
		cb.failureCount = 0
		if cb.state == StateHalfOpen && cb.successCount >= cb.cfg.SuccessThreshold {
			cb.state = StateClosed
			cb.successCount = 0
			to = StateClosed
		}
	}
	cb.mu.Unlock()

	if to != from {
		cb.notify(from, to)
	}
	return err
}

func (cb *CircuitBreaker) notify(from, to State) {
	if cb.cfg.OnStateChange != nil {
		cb.cfg.OnStateChange(cb.host, from, to)
	}
}

// State returns the current state (for metrics).
func (cb *CircuitBreaker) State() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

// Set keeps one breaker per upstream host, created on first use.
type Set struct {
	cfg      Config
	mu       sync.Mutex
	breakers map[string]*CircuitBreaker
}

// NewSet creates an empty Set. Zero config fields get defaults
// (5 failures, 2 successes, 30s open timeout).
func NewSet(cfg Config) *Set {
	return &Set{
		cfg:      cfg.withDefaults(),
		breakers: make(map[string]*CircuitBreaker),
	}
}

// For returns the breaker for host.
func (s *Set) For(host string) *CircuitBreaker {
	s.mu.Lock()
	defer s.mu.Unlock()
	cb, ok := s.breakers[host]
	if !ok {
		cb = newBreaker(host, s.cfg)
		s.breakers[host] = cb
	}
	return cb
}

// Call runs fn through host's breaker.
func (s *Set) Call(host string, fn func() error) error {
	return s.For(host).Call(fn)
}

// States returns a snapshot of every known host's state.
func (s *Set) States() map[string]State {
	s.mu.Lock()
	breakers := make(map[string]*CircuitBreaker, len(s.breakers))
	for h, cb := range s.breakers {
		breakers[h] = cb
	}
	s.mu.Unlock()

	out := make(map[string]State, len(breakers))
	for h, cb := range breakers {
		out[h] = cb.State()
	}
	return out
}
