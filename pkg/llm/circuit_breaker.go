package llm

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// ErrCircuitOpen is wrapped by the error returned while the breaker rejects calls.
var ErrCircuitOpen = errors.New("circuit breaker open")

// CircuitState represents the current state of the circuit breaker.
type CircuitState int

const (
	// CircuitClosed means the circuit is operational and requests flow through.
	CircuitClosed CircuitState = iota
	// CircuitOpen means the circuit has tripped due to failures and requests are blocked.
	CircuitOpen
	// CircuitHalfOpen means one probe request is in flight.
	CircuitHalfOpen
)

func (s CircuitState) String() string {
	switch s {
	case CircuitClosed:
		return "closed"
	case CircuitOpen:
		return "open"
	case CircuitHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// CircuitBreakerConfig holds configuration for the circuit breaker.
type CircuitBreakerConfig struct {
	// Threshold is the number of consecutive failures before the circuit trips.
	Threshold int
	// ResetAfter is how long the circuit stays open before a probe is allowed.
	ResetAfter time.Duration
}

// DefaultCircuitBreakerConfig trips after 5 consecutive failures and probes after 30s.
func DefaultCircuitBreakerConfig() CircuitBreakerConfig {
	return CircuitBreakerConfig{
		Threshold:  5,
		ResetAfter: 30 * time.Second,
	}
}

// CircuitBreaker stops calling a provider that keeps failing.
type CircuitBreaker struct {
	mu               sync.RWMutex
	consecutiveFails int
	threshold        int
	resetAfter       time.Duration
	lastFailure      time.Time
	state            CircuitState
	now              func() time.Time
}

// NewCircuitBreaker creates a closed circuit breaker. Non-positive values fall back to the defaults.
func NewCircuitBreaker(config CircuitBreakerConfig) *CircuitBreaker {
	defaults := DefaultCircuitBreakerConfig()
	if config.Threshold <= 0 {
		config.Threshold = defaults.Threshold
	}
	if config.ResetAfter <= 0 {
		config.ResetAfter = defaults.ResetAfter
	}
	return &CircuitBreaker{
		threshold:  config.Threshold,
		resetAfter: config.ResetAfter,
		state:      CircuitClosed,
		now:        time.Now,
	}
}

// Allow reports whether a request may proceed. After ResetAfter an open
// circuit lets exactly one probe through.
func (cb *CircuitBreaker) Allow() (bool, error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case CircuitClosed:
		return true, nil
	case CircuitOpen:
		since := cb.now().Sub(cb.lastFailure)
		if since > cb.resetAfter {
			cb.state = CircuitHalfOpen
			return true, nil
		}
		return false, fmt.Errorf("%w: provider failed %d times in a row, last failure %v ago",
			ErrCircuitOpen, cb.consecutiveFails, since.Round(time.Second))
	case CircuitHalfOpen:
		return false, fmt.Errorf("%w: probing whether the provider has recovered", ErrCircuitOpen)
	default:
		return false, fmt.Errorf("circuit breaker in unknown state: %v", cb.state)
	}
}

// RecordSuccess resets the failure count and closes the circuit.
func (cb *CircuitBreaker) RecordSuccess() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.consecutiveFails = 0
	cb.state = CircuitClosed
}

// RecordFailure increments the failure count and trips the circuit at the threshold.
// A failed probe reopens the circuit immediately.
func (cb *CircuitBreaker) RecordFailure() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.consecutiveFails++
	cb.lastFailure = cb.now()

	if cb.state == CircuitHalfOpen || cb.consecutiveFails >= cb.threshold {
		cb.state = CircuitOpen
	}
}

// RecordNeutral ends a call whose outcome says nothing about provider health.
// A half-open probe is released so the next call can probe again.
func (cb *CircuitBreaker) RecordNeutral() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cb.state == CircuitHalfOpen {
		cb.state = CircuitOpen
		cb.lastFailure = cb.now().Add(-cb.resetAfter - time.Nanosecond)
	}
}

func (cb *CircuitBreaker) State() CircuitState {
	cb.mu.RLock()
	defer cb.mu.RUnlock()
	return cb.state
}

func (cb *CircuitBreaker) ConsecutiveFailures() int {
	cb.mu.RLock()
	defer cb.mu.RUnlock()
	return cb.consecutiveFails
}

// Reset manually closes the circuit.
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.consecutiveFails = 0
	cb.state = CircuitClosed
}

// BreakerClient guards a CompletionClient with a CircuitBreaker.
// Only provider-health failures (transient, endpoint, unknown) count toward
// tripping; bad credentials, unknown models and caller cancellation do not.
type BreakerClient struct {
	inner   CompletionClient
	breaker *CircuitBreaker
	logger  *zap.Logger
}

// NewBreakerClient wraps inner with breaker.
func NewBreakerClient(inner CompletionClient, breaker *CircuitBreaker, logger *zap.Logger) *BreakerClient {
	return &BreakerClient{
		inner:   inner,
		breaker: breaker,
		logger:  logger.Named("circuit-breaker"),
	}
}

var _ CompletionClient = (*BreakerClient)(nil)

func (c *BreakerClient) Complete(ctx context.Context, req CompletionRequest) (string, error) {
	if ok, err := c.breaker.Allow(); !ok {
		return "", &Error{
			Type:      ErrorTypeEndpoint,
			Message:   "provider unavailable",
			Retryable: false,
			Cause:     err,
			Model:     req.Model,
		}
	}

	text, err := c.inner.Complete(ctx, req)
	switch {
	case err == nil:
		if c.breaker.State() != CircuitClosed {
			c.logger.Info("Provider recovered, closing circuit")
		}
		c.breaker.RecordSuccess()
	case countsAgainstProvider(ctx, err):
		before := c.breaker.State()
		c.breaker.RecordFailure()
		if before != CircuitOpen && c.breaker.State() == CircuitOpen {
			c.logger.Warn("Circuit opened",
				zap.Int("consecutive_failures", c.breaker.ConsecutiveFailures()),
				zap.Error(err))
		}
	default:
		c.breaker.RecordNeutral()
	}
	return text, err
}

func (c *BreakerClient) DefaultModel() string {
	return c.inner.DefaultModel()
}

func countsAgainstProvider(ctx context.Context, err error) bool {
	if ctx.Err() != nil || errors.Is(err, context.Canceled) {
		return false
	}
	switch ClassifyError(err).Type {
	case ErrorTypeTransient, ErrorTypeEndpoint, ErrorTypeUnknown:
		return true
	default:
		return false
	}
}
