// Package resilience provides fault-tolerance helpers — a circuit
// breaker and bounded-retry with backoff — used to protect calls that
// cross the process boundary: the durable queue, the durable
// projection store, and the pipeline collaborators.
package resilience

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrCircuitOpen is returned by Execute when the breaker is open.
var ErrCircuitOpen = errors.New("circuit breaker open")

// State is the circuit breaker's current state.
type State string

const (
	StateClosed   State = "closed"
	StateOpen     State = "open"
	StateHalfOpen State = "half-open"
)

// CircuitBreaker protects a downstream dependency from cascading
// failure by tripping open after a run of consecutive failures. Once
// the open duration has passed it turns half-open and lets calls
// through (concurrent callers are not limited to one probe): a
// failure re-opens it, a success closes it.
type CircuitBreaker struct {
	mu sync.Mutex

	failureThreshold int
	openDuration     time.Duration

	state          State
	consecutiveErr int
	openedAt       time.Time
}

// NewCircuitBreaker builds a breaker that opens after
// failureThreshold consecutive failures and stays open for
// openDuration before allowing a half-open probe.
func NewCircuitBreaker(failureThreshold int, openDuration time.Duration) *CircuitBreaker {
	if failureThreshold <= 0 {
		failureThreshold = 5
	}
	if openDuration <= 0 {
		openDuration = 30 * time.Second
	}
	return &CircuitBreaker{
		failureThreshold: failureThreshold,
		openDuration:     openDuration,
		state:            StateClosed,
	}
}

// CanExecute reports whether the breaker would currently allow a call.
func (c *CircuitBreaker) CanExecute() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.canExecuteLocked()
}

func (c *CircuitBreaker) canExecuteLocked() bool {
	switch c.state {
	case StateOpen:
		if time.Since(c.openedAt) >= c.openDuration {
			c.state = StateHalfOpen
			return true
		}
		return false
	default:
		return true
	}
}

// Execute runs fn with circuit breaker protection. If the circuit is
// open it returns ErrCircuitOpen without calling fn.
func (c *CircuitBreaker) Execute(ctx context.Context, fn func() error) error {
	c.mu.Lock()
	if !c.canExecuteLocked() {
		c.mu.Unlock()
		return ErrCircuitOpen
	}
	c.mu.Unlock()

	err := fn()

	c.mu.Lock()
	defer c.mu.Unlock()
	if err != nil {
		c.consecutiveErr++
		if c.state == StateHalfOpen || c.consecutiveErr >= c.failureThreshold {
			c.state = StateOpen
			c.openedAt = time.Now()
		}
		return err
	}
	c.consecutiveErr = 0
	c.state = StateClosed
	return nil
}

// GetState returns the current state as a string for metrics/logging.
func (c *CircuitBreaker) GetState() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return string(c.state)
}

// Reset forces the breaker back to closed, clearing failure counts.
func (c *CircuitBreaker) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state = StateClosed
	c.consecutiveErr = 0
}
