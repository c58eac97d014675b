package resilience

import (
	"errors"
	"sync"
	"time"
)

// ErrCircuitOpen is returned by Call while the breaker is open.
var ErrCircuitOpen = errors.New("resilience: circuit breaker is open")

// CircuitState is one of Closed, Open, HalfOpen.
type CircuitState int

const (
	StateClosed CircuitState = iota
	StateOpen
	StateHalfOpen
)

// CircuitBreaker prevents cascading failures by failing fast once a
// dependency has crossed a failure threshold, grounded on
// email-service/app/circuitbreaker/circuit_breaker.go. Wraps
// eventstore/rabbitmq.Bus.Publish (via WithCircuitBreaker) so a sustained
// broker outage doesn't block the save path on a long per-call timeout.
type CircuitBreaker struct {
	maxFailures      int
	resetTimeout     time.Duration
	halfOpenMaxCalls int

	mu            sync.Mutex
	state         CircuitState
	failureCount  int
	lastFailTime  time.Time
	halfOpenCalls int
}

// NewCircuitBreaker configures a breaker that opens after maxFailures
// consecutive failures, waits resetTimeout before probing again, and
// allows halfOpenMaxCalls concurrent probes while half-open.
func NewCircuitBreaker(maxFailures int, resetTimeout time.Duration, halfOpenMaxCalls int) *CircuitBreaker {
	return &CircuitBreaker{maxFailures: maxFailures, resetTimeout: resetTimeout, halfOpenMaxCalls: halfOpenMaxCalls}
}

// Call executes fn if the breaker is closed or probing, else fails fast
// with ErrCircuitOpen.
func (cb *CircuitBreaker) Call(fn func() error) error {
	cb.mu.Lock()
	cb.updateState()

	switch cb.state {
	case StateOpen:
		cb.mu.Unlock()
		return ErrCircuitOpen
	case StateHalfOpen:
		if cb.halfOpenCalls >= cb.halfOpenMaxCalls {
			cb.mu.Unlock()
			return ErrCircuitOpen
		}
		cb.halfOpenCalls++
		cb.mu.Unlock()
	default:
		cb.mu.Unlock()
	}

	err := fn()

	cb.mu.Lock()
	defer cb.mu.Unlock()
	if err != nil {
		cb.recordFailureLocked()
		return err
	}
	cb.recordSuccessLocked()
	return nil
}

func (cb *CircuitBreaker) updateState() {
	now := time.Now()
	switch cb.state {
	case StateClosed:
		if cb.failureCount >= cb.maxFailures {
			cb.state = StateOpen
			cb.lastFailTime = now
		}
	case StateOpen:
		if now.Sub(cb.lastFailTime) >= cb.resetTimeout {
			cb.state = StateHalfOpen
			cb.halfOpenCalls = 0
		}
	}
}

func (cb *CircuitBreaker) recordFailureLocked() {
	cb.failureCount++
	cb.lastFailTime = time.Now()
	if cb.state == StateHalfOpen {
		cb.state = StateOpen
		cb.halfOpenCalls = 0
	} else if cb.failureCount >= cb.maxFailures {
		cb.state = StateOpen
	}
}

func (cb *CircuitBreaker) recordSuccessLocked() {
	cb.failureCount = 0
	if cb.state == StateHalfOpen {
		cb.state = StateClosed
		cb.halfOpenCalls = 0
	}
}

// State returns the breaker's current state.
func (cb *CircuitBreaker) State() CircuitState {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}
