package circuitbreaker

import (
	"context"
	"errors"
	"sync"
	"time"
)

var ErrOpen = errors.New("circuit breaker is open")

type State int

const (
	StateClosed State = iota
	StateOpen
	StateHalfOpen
)

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

// CircuitBreaker opens after more than maxFailures failures inside window.
// While open every call fails with ErrOpen until timeout has passed since
// the last failure; then a single probe call is let through and its result
// closes or reopens the breaker.
type CircuitBreaker struct {
	maxFailures     int
	window          time.Duration
	timeout         time.Duration
	failures        []time.Time
	lastFailureTime time.Time
	state           State
	probing         bool
	now             func() time.Time
	mu              sync.Mutex
}

func NewCircuitBreaker(maxFailures int, timeout time.Duration) *CircuitBreaker {
	return NewCircuitBreakerWithWindow(maxFailures, timeout, 60*time.Second)
}

func NewCircuitBreakerWithWindow(maxFailures int, timeout time.Duration, window time.Duration) *CircuitBreaker {
	return &CircuitBreaker{
		maxFailures: maxFailures,
		window:      window,
		timeout:     timeout,
		state:       StateClosed,
		failures:    make([]time.Time, 0),
		now:         time.Now,
	}
}

// Execute runs fn unless the breaker is open. Context cancellation is not
// counted as a backend failure.
func (cb *CircuitBreaker) Execute(ctx context.Context, fn func(ctx context.Context) error) error {
	probe, err := cb.before()
	if err != nil {
		return err
	}

	err = fn(ctx)
	cb.after(probe, err)
	return err
}

func (cb *CircuitBreaker) before() (bool, error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case StateOpen:
		if cb.now().Sub(cb.lastFailureTime) < cb.timeout {
			return false, ErrOpen
		}
		cb.state = StateHalfOpen
		cb.failures = cb.failures[:0]
		cb.probing = true
		return true, nil
	case StateHalfOpen:
		if cb.probing {
			return false, ErrOpen
		}
		cb.probing = true
		return true, nil
	}
	return false, nil
}

func (cb *CircuitBreaker) after(probe bool, err error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if probe {
		cb.probing = false
	}
	now := cb.now()

	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		// the probe told us nothing; the next call probes again
		if probe {
			cb.state = StateOpen
		}
		return
	}
	if err != nil {
		cb.lastFailureTime = now
		cb.failures = append(cb.failures, now)
		cb.cleanOldFailures(now)

		if len(cb.failures) > cb.maxFailures || probe {
			cb.state = StateOpen
		}
		return
	}

	cb.cleanOldFailures(now)
	if probe {
		cb.state = StateClosed
		cb.failures = cb.failures[:0]
	}
}

func (cb *CircuitBreaker) cleanOldFailures(now time.Time) {
	cutoff := now.Add(-cb.window)
	i := 0
	for i < len(cb.failures) && !cb.failures[i].After(cutoff) {
		i++
	}
	cb.failures = cb.failures[i:]
}

func (cb *CircuitBreaker) GetState() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}
