// Package breaker implements the per-service circuit breaker state machine:
// CLOSED -> OPEN -> HALF_OPEN -> CLOSED, gating calls before any network I/O
// happens. One Breaker exists per service name, held in a process-wide
// Registry.
package breaker

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/EKerSun/rpcgo/internal/rpcerr"
)

// State is the breaker's externally observable state.
type State int32

const (
	CLOSED State = iota
	OPEN
	HALF_OPEN
)

func (s State) String() string {
	switch s {
	case CLOSED:
		return "CLOSED"
	case OPEN:
		return "OPEN"
	case HALF_OPEN:
		return "HALF_OPEN"
	default:
		return "UNKNOWN"
	}
}

// Config names the tunables of the Breaker state machine.
type Config struct {
	FailureThreshold    int
	ResetTimeout        time.Duration
	HalfOpenMaxRequests int
	SuccessThreshold    int
}

// DefaultConfig returns the documented default tunables.
func DefaultConfig() Config {
	return Config{
		FailureThreshold:    3,
		ResetTimeout:        5 * time.Second,
		HalfOpenMaxRequests: 5,
		SuccessThreshold:    3,
	}
}

// Breaker is one per-service circuit breaker instance.
type Breaker struct {
	cfg Config

	// state is read lock-free on the CLOSED fast path; every transition
	// away from or into CLOSED also holds mu.
	state int32 // atomic State

	mu                sync.Mutex
	failures          int
	lastFailureAt     time.Time
	halfOpenIssued    int
	halfOpenSuccesses int
}

// New constructs a Breaker in the CLOSED state.
func New(cfg Config) *Breaker {
	return &Breaker{cfg: cfg, state: int32(CLOSED)}
}

// State reports the breaker's current state without blocking.
func (b *Breaker) State() State {
	return State(atomic.LoadInt32(&b.state))
}

// AllowRequest gates a call before any network I/O. CLOSED is a lock-free
// fast path; OPEN/HALF_OPEN decisions take the mutex.
func (b *Breaker) AllowRequest() bool {
	if State(atomic.LoadInt32(&b.state)) == CLOSED {
		return true
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	switch State(atomic.LoadInt32(&b.state)) {
	case OPEN:
		if time.Since(b.lastFailureAt) >= b.cfg.ResetTimeout {
			b.transitionLocked(HALF_OPEN)
			b.halfOpenIssued = 0
			b.halfOpenSuccesses = 0
			return true
		}
		return false
	case HALF_OPEN:
		if b.halfOpenIssued < b.cfg.HalfOpenMaxRequests {
			b.halfOpenIssued++
			return true
		}
		return false
	default:
		return true
	}
}

// RecordSuccess resets the failure counter on the CLOSED path, or advances
// the HALF_OPEN recovery counter, closing the breaker once the success
// threshold is reached.
func (b *Breaker) RecordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if State(atomic.LoadInt32(&b.state)) == HALF_OPEN {
		b.halfOpenSuccesses++
		if b.halfOpenSuccesses >= b.cfg.SuccessThreshold {
			b.transitionLocked(CLOSED)
			b.failures = 0
		}
		return
	}

	b.failures = 0
}

// RecordFailure increments the failure counter and may trip the breaker
// open. Any failure observed while HALF_OPEN immediately reopens it.
func (b *Breaker) RecordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.failures++
	b.lastFailureAt = time.Now()

	if State(atomic.LoadInt32(&b.state)) == HALF_OPEN || b.failures >= b.cfg.FailureThreshold {
		b.transitionLocked(OPEN)
	}
}

// RecordResult feeds the breaker with the outcome of a call, applying the
// breaker-purity rule: only kinds for which Kind.Feeds() is true affect
// breaker state.
func (b *Breaker) RecordResult(kind rpcerr.Kind) {
	if kind == rpcerr.SUCCESS {
		b.RecordSuccess()
		return
	}
	if kind.Feeds() {
		b.RecordFailure()
	}
}

func (b *Breaker) transitionLocked(s State) {
	atomic.StoreInt32(&b.state, int32(s))
}

// Registry is the process-wide map from service name to Breaker. Instances
// are created lazily on first reference and never removed.
type Registry struct {
	cfg Config

	mu       sync.Mutex
	breakers map[string]*Breaker
}

// NewRegistry constructs an empty Registry using cfg for every breaker it
// lazily creates.
func NewRegistry(cfg Config) *Registry {
	return &Registry{cfg: cfg, breakers: make(map[string]*Breaker)}
}

// Get returns the Breaker for service, creating it under the registry lock
// if this is the first reference.
func (r *Registry) Get(service string) *Breaker {
	r.mu.Lock()
	defer r.mu.Unlock()

	b, ok := r.breakers[service]
	if !ok {
		b = New(r.cfg)
		r.breakers[service] = b
	}
	return b
}
