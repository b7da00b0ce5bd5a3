// Package resilience provides a circuit breaker and an ordered failover
// group built on it.
//
// Chorale uses them to switch between media resolver strategies: when the
// preferred way of resolving links keeps failing (for example because the
// site started rejecting direct stream URLs), requests go straight to the
// fallback until the breaker's reset timeout allows a probe again.
//
// All types are safe for concurrent use.
package resilience

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"
)

// ErrCircuitOpen is returned by [CircuitBreaker.Execute] while the breaker
// rejects calls.
var ErrCircuitOpen = errors.New("circuit breaker is open")

// State is the operating mode of a [CircuitBreaker].
type State int

const (
	// StateClosed forwards every call.
	StateClosed State = iota

	// StateOpen rejects calls until the reset timeout elapsed.
	StateOpen

	// StateHalfOpen lets a single probe call through. Its outcome closes or
	// re-opens the breaker.
	StateHalfOpen
)

// String returns the human-readable name of the state.
func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// CircuitBreakerConfig holds tuning knobs for a [CircuitBreaker].
type CircuitBreakerConfig struct {
	// Name is a human-readable label used in log messages.
	Name string

	// MaxFailures is the number of consecutive failures that opens the
	// breaker. Default: 3.
	MaxFailures int

	// ResetTimeout is how long the breaker stays open before a probe is
	// allowed. Default: 1 minute.
	ResetTimeout time.Duration

	// OnStateChange is invoked after every transition, outside the lock.
	OnStateChange func(name string, from, to State)

	// IsFailure reports whether err says something about the health of the
	// wrapped call. Errors it rejects leave the failure count untouched.
	// Context cancellation and deadline errors never count. Default: every
	// other non-nil error counts.
	IsFailure func(err error) bool
}

// CircuitBreaker implements the closed → open → half-open pattern.
//
// Failures caused by context cancellation are not counted: a stopped track
// or a shutdown says nothing about the health of the wrapped call.
type CircuitBreaker struct {
	name          string
	maxFailures   int
	resetTimeout  time.Duration
	onStateChange func(name string, from, to State)
	isFailure     func(err error) bool
	now           func() time.Time

	mu              sync.Mutex
	state           State
	consecutiveFail int
	openedAt        time.Time
	probing         bool
}

// NewCircuitBreaker creates a [CircuitBreaker]. Zero-value config fields are
// replaced with defaults.
func NewCircuitBreaker(cfg CircuitBreakerConfig) *CircuitBreaker {
	if cfg.MaxFailures <= 0 {
		cfg.MaxFailures = 3
	}
	if cfg.ResetTimeout <= 0 {
		cfg.ResetTimeout = time.Minute
	}
	return &CircuitBreaker{
		name:          cfg.Name,
		maxFailures:   cfg.MaxFailures,
		resetTimeout:  cfg.ResetTimeout,
		onStateChange: cfg.OnStateChange,
		isFailure:     cfg.IsFailure,
		now:           time.Now,
	}
}

// Execute runs fn unless the breaker rejects the call with [ErrCircuitOpen].
func (cb *CircuitBreaker) Execute(ctx context.Context, fn func(context.Context) error) error {
	probe, err := cb.admit()
	if err != nil {
		return err
	}

	err = fn(ctx)

	from, to := cb.record(probe, err)
	if from != to {
		cb.transitioned(from, to)
	}
	return err
}

// admit decides whether a call may proceed and whether it is the half-open probe.
func (cb *CircuitBreaker) admit() (probe bool, err error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case StateOpen:
		if cb.now().Sub(cb.openedAt) < cb.resetTimeout {
			return false, ErrCircuitOpen
		}
		cb.state = StateHalfOpen
		fallthrough
	case StateHalfOpen:
		if cb.probing {
			return false, ErrCircuitOpen
		}
		cb.probing = true
		return true, nil
	}
	return false, nil
}

// record applies the outcome of a call and returns the transition it caused.
func (cb *CircuitBreaker) record(probe bool, err error) (from, to State) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	from = cb.state
	if probe {
		cb.probing = false
	}

	switch {
	case err == nil:
		cb.consecutiveFail = 0
		cb.state = StateClosed
	case !cb.Counts(err):
		if probe {
			// Nothing learned; the next call gets the trial instead.
			cb.state = StateHalfOpen
		}
	case probe:
		cb.state = StateOpen
		cb.openedAt = cb.now()
	default:
		cb.consecutiveFail++
		if cb.consecutiveFail >= cb.maxFailures {
			cb.state = StateOpen
			cb.openedAt = cb.now()
		}
	}
	return from, cb.state
}

// Counts reports whether a non-nil err would be recorded as a failure.
func (cb *CircuitBreaker) Counts(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	if cb.isFailure != nil {
		return cb.isFailure(err)
	}
	return true
}

func (cb *CircuitBreaker) transitioned(from, to State) {
	slog.Info("circuit breaker state changed",
		"name", cb.name,
		"from", from.String(),
		"to", to.String(),
	)
	if cb.onStateChange != nil {
		cb.onStateChange(cb.name, from, to)
	}
}

// State returns the current [State]. An open breaker whose reset timeout has
// elapsed reports [StateHalfOpen]; the transition itself happens on the
// next [CircuitBreaker.Execute].
func (cb *CircuitBreaker) State() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cb.state == StateOpen && cb.now().Sub(cb.openedAt) >= cb.resetTimeout {
		return StateHalfOpen
	}
	return cb.state
}

// Reset forces the breaker back to [StateClosed].
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	from := cb.state
	cb.state = StateClosed
	cb.consecutiveFail = 0
	cb.probing = false
	cb.mu.Unlock()

	if from != StateClosed {
		cb.transitioned(from, StateClosed)
	}
}
