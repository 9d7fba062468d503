// Package breaker implements a per-provider circuit breaker. State is
// per process and advisory: an open breaker only changes which provider is
// tried first, it never blocks a request outright.
package breaker

import (
	"sync"
	"time"
)

// State is the breaker state.
type State int

const (
	// Closed lets calls through and counts consecutive failures.
	Closed State = iota
	// Open rejects calls until the cooldown elapses.
	Open
	// HalfOpen lets one trial call through after the cooldown.
	HalfOpen
)

func (s State) String() string {
	switch s {
	case Closed:
		return "closed"
	case Open:
		return "open"
	case HalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

const (
	// DefaultMaxFailures is the consecutive-failure count that opens the
	// breaker.
	DefaultMaxFailures = 3

	// DefaultCooldown is how long the breaker stays open before allowing a
	// trial call.
	DefaultCooldown = 30 * time.Second
)

// Breaker tracks consecutive failures for one provider. All methods are safe
// for concurrent use; the mutex is held only across the state transition,
// never across an I/O call.
type Breaker struct {
	mu            sync.Mutex
	state         State
	failures      int
	maxFailures   int
	cooldown      time.Duration
	cooldownUntil time.Time
	now           func() time.Time
}

// Option configures a Breaker.
type Option func(*Breaker)

// WithMaxFailures sets the consecutive-failure threshold.
func WithMaxFailures(n int) Option {
	return func(b *Breaker) {
		if n > 0 {
			b.maxFailures = n
		}
	}
}

// WithCooldown sets the open-state cooldown window.
func WithCooldown(d time.Duration) Option {
	return func(b *Breaker) {
		if d > 0 {
			b.cooldown = d
		}
	}
}

// withClock overrides the time source in tests.
func withClock(now func() time.Time) Option {
	return func(b *Breaker) { b.now = now }
}

// New creates a closed breaker.
func New(opts ...Option) *Breaker {
	b := &Breaker{
		state:       Closed,
		maxFailures: DefaultMaxFailures,
		cooldown:    DefaultCooldown,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Allow reports whether a call may be attempted now. When the cooldown of an
// open breaker has elapsed, the breaker moves to half-open and admits one
// trial call.
func (b *Breaker) Allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case Closed:
		return true
	case Open:
		if b.now().Before(b.cooldownUntil) {
			return false
		}
		b.state = HalfOpen
		return true
	case HalfOpen:
		// One trial call at a time; further callers wait for its outcome.
		return false
	default:
		return true
	}
}

// RecordSuccess closes the breaker and resets the failure count.
func (b *Breaker) RecordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.state = Closed
	b.failures = 0
}

// RecordFailure counts a failure. Reaching the threshold, or failing the
// half-open trial call, opens the breaker for a full cooldown.
func (b *Breaker) RecordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.failures++
	if b.state == HalfOpen || b.failures >= b.maxFailures {
		b.state = Open
		b.cooldownUntil = b.now().Add(b.cooldown)
	}
}

// State returns the current state, resolving an elapsed cooldown to
// half-open.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state == Open && !b.now().Before(b.cooldownUntil) {
		return HalfOpen
	}
	return b.state
}
