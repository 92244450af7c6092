// Package circuitbreaker implements a consecutive-failure circuit breaker
// with multiplicative cooldown backoff.
//
// The breaker trips OPEN after a run of consecutive failures. While OPEN,
// Allow rejects callers until the cooldown elapses, at which point the
// breaker moves to HALF_OPEN and lets probe calls through. A run of
// consecutive successes in HALF_OPEN closes the breaker; any failure in
// HALF_OPEN re-opens it with a doubled cooldown, capped at a maximum.
//
// The breaker is not safe for concurrent use on its own. Callers that share
// a breaker across goroutines must hold their own lock around its methods.
package circuitbreaker

import (
	"fmt"
	"time"
)

// State is the breaker's position in its lifecycle.
type State int

const (
	StateClosed State = iota
	StateOpen
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "CLOSED"
	case StateOpen:
		return "OPEN"
	case StateHalfOpen:
		return "HALF_OPEN"
	default:
		return "UNKNOWN"
	}
}

// Config tunes the breaker thresholds and cooldown schedule.
type Config struct {
	// FailureThreshold is the run of consecutive failures that trips the
	// breaker from CLOSED to OPEN.
	FailureThreshold int

	// SuccessThreshold is the run of consecutive successes in HALF_OPEN
	// needed to close the breaker.
	SuccessThreshold int

	// BaseTimeout is the cooldown after the first trip. Each subsequent trip
	// without an intervening close doubles it.
	BaseTimeout time.Duration

	// MaxTimeout caps the doubled cooldown.
	MaxTimeout time.Duration

	// OnStateChange, when set, is invoked on every transition.
	OnStateChange func(from, to State)
}

// DefaultConfig matches the production tuning: trip after 5 consecutive
// failures, close after 2 probe successes, cool down 1 minute doubling up to
// 5 minutes.
func DefaultConfig() Config {
	return Config{
		FailureThreshold: 5,
		SuccessThreshold: 2,
		BaseTimeout:      time.Minute,
		MaxTimeout:       5 * time.Minute,
	}
}

// ErrOpen is returned by Allow while the breaker is OPEN and the cooldown has
// not yet elapsed.
type ErrOpen struct {
	// RetryAfter is how long until the breaker will admit a probe call.
	RetryAfter time.Duration
}

func (e *ErrOpen) Error() string {
	return fmt.Sprintf("circuit breaker open, retry in %s", e.RetryAfter.Round(time.Second))
}

// CircuitBreaker tracks consecutive outcomes and gates calls accordingly.
type CircuitBreaker struct {
	cfg Config

	state                State
	consecutiveFailures  int
	consecutiveSuccesses int
	trips                int
	openedAt             time.Time
	currentTimeout       time.Duration

	now func() time.Time
}

// New creates a breaker in the CLOSED state. Zero or negative config fields
// fall back to DefaultConfig values.
func New(cfg Config) *CircuitBreaker {
	def := DefaultConfig()
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = def.FailureThreshold
	}
	if cfg.SuccessThreshold <= 0 {
		cfg.SuccessThreshold = def.SuccessThreshold
	}
	if cfg.BaseTimeout <= 0 {
		cfg.BaseTimeout = def.BaseTimeout
	}
	if cfg.MaxTimeout <= 0 {
		cfg.MaxTimeout = def.MaxTimeout
	}
	return &CircuitBreaker{
		cfg:            cfg,
		state:          StateClosed,
		currentTimeout: cfg.BaseTimeout,
		now:            time.Now,
	}
}

// SetClock overrides the breaker's time source. Test hook.
func (cb *CircuitBreaker) SetClock(now func() time.Time) {
	cb.now = now
}

// State returns the current state, promoting OPEN to HALF_OPEN if the
// cooldown has elapsed.
func (cb *CircuitBreaker) State() State {
	cb.maybeHalfOpen()
	return cb.state
}

// Allow reports whether a call may proceed. While OPEN with an unexpired
// cooldown it returns *ErrOpen carrying the remaining wait.
func (cb *CircuitBreaker) Allow() error {
	cb.maybeHalfOpen()
	if cb.state != StateOpen {
		return nil
	}
	remaining := cb.currentTimeout - cb.now().Sub(cb.openedAt)
	if remaining < 0 {
		remaining = 0
	}
	return &ErrOpen{RetryAfter: remaining}
}

// RemainingCooldown returns how long until an OPEN breaker admits a probe.
// Zero when not OPEN.
func (cb *CircuitBreaker) RemainingCooldown() time.Duration {
	cb.maybeHalfOpen()
	if cb.state != StateOpen {
		return 0
	}
	remaining := cb.currentTimeout - cb.now().Sub(cb.openedAt)
	if remaining < 0 {
		return 0
	}
	return remaining
}

// RecordSuccess records a completed call that succeeded.
func (cb *CircuitBreaker) RecordSuccess() {
	cb.maybeHalfOpen()
	cb.consecutiveFailures = 0
	switch cb.state {
	case StateHalfOpen:
		cb.consecutiveSuccesses++
		if cb.consecutiveSuccesses >= cb.cfg.SuccessThreshold {
			cb.close()
		}
	case StateClosed:
		cb.consecutiveSuccesses++
	}
	// A success while OPEN (forced call) clears the failure run but the
	// breaker stays OPEN until its cooldown elapses.
}

// RecordFailure records a completed call that failed.
func (cb *CircuitBreaker) RecordFailure() {
	cb.maybeHalfOpen()
	cb.consecutiveSuccesses = 0
	switch cb.state {
	case StateClosed:
		cb.consecutiveFailures++
		if cb.consecutiveFailures >= cb.cfg.FailureThreshold {
			cb.trip()
		}
	case StateHalfOpen:
		// A failed probe re-opens immediately with a longer cooldown.
		cb.trip()
	case StateOpen:
		cb.consecutiveFailures++
	}
}

// Reset forces the breaker back to CLOSED, clearing all counters and
// restoring the base cooldown.
func (cb *CircuitBreaker) Reset() {
	from := cb.state
	cb.state = StateClosed
	cb.consecutiveFailures = 0
	cb.consecutiveSuccesses = 0
	cb.trips = 0
	cb.currentTimeout = cb.cfg.BaseTimeout
	if from != StateClosed {
		cb.notify(from, StateClosed)
	}
}

func (cb *CircuitBreaker) trip() {
	from := cb.state
	cb.trips++
	if cb.trips > 1 {
		cb.currentTimeout *= 2
		if cb.currentTimeout > cb.cfg.MaxTimeout {
			cb.currentTimeout = cb.cfg.MaxTimeout
		}
	}
	cb.state = StateOpen
	cb.openedAt = cb.now()
	cb.consecutiveFailures = 0
	cb.consecutiveSuccesses = 0
	cb.notify(from, StateOpen)
}

func (cb *CircuitBreaker) close() {
	from := cb.state
	cb.state = StateClosed
	cb.consecutiveFailures = 0
	cb.consecutiveSuccesses = 0
	cb.trips = 0
	cb.currentTimeout = cb.cfg.BaseTimeout
	cb.notify(from, StateClosed)
}

// maybeHalfOpen promotes an OPEN breaker whose cooldown has elapsed.
func (cb *CircuitBreaker) maybeHalfOpen() {
	if cb.state != StateOpen {
		return
	}
	if cb.now().Sub(cb.openedAt) >= cb.currentTimeout {
		cb.state = StateHalfOpen
		cb.consecutiveSuccesses = 0
		cb.notify(StateOpen, StateHalfOpen)
	}
}

func (cb *CircuitBreaker) notify(from, to State) {
	if cb.cfg.OnStateChange != nil && from != to {
		cb.cfg.OnStateChange(from, to)
	}
}
