// Package circuitbreaker stops calling an upstream that keeps failing and
// probes it again after a cool-down.
package circuitbreaker

import (
	"errors"
	"sync"
	"time"

	"github.com/wallet-watch/internal/logging"
)

// State represents the circuit breaker state
type State string

const (
	// StateClosed means requests are allowed
	StateClosed State = "closed"
	// StateOpen means requests are rejected without calling upstream
	StateOpen State = "open"
	// StateHalfOpen means a limited number of probe requests are allowed
	StateHalfOpen State = "half_open"
)

// ErrCircuitOpen is returned when the circuit breaker rejects a call
var ErrCircuitOpen = errors.New("circuit breaker is open")

// Config configures a circuit breaker
type Config struct {
	Name string
	// MaxConsecutiveFailures opens the circuit
	MaxConsecutiveFailures int
	// Cooldown is how long the circuit stays open before probing
	Cooldown time.Duration
	// HalfOpenMaxCalls successful probes close the circuit again
	HalfOpenMaxCalls int
	// IsFailure decides which errors count against the upstream. nil counts all.
	IsFailure func(err error) bool
}

// DefaultConfig returns a default circuit breaker configuration
func DefaultConfig(name string) Config {
	return Config{
		Name:                   name,
		MaxConsecutiveFailures: 5,
		Cooldown:               30 * time.Second,
		HalfOpenMaxCalls:       1,
	}
}

// CircuitBreaker implements the circuit breaker pattern
type CircuitBreaker struct {
	cfg Config
	now func() time.Time

	mu               sync.Mutex
	state            State
	consecutiveFails int
	halfOpenInFlight int
	halfOpenOK       int
	lastStateChange  time.Time
	totalRejected    int
}

// New creates a circuit breaker in the closed state
func New(cfg Config) *CircuitBreaker {
	if cfg.MaxConsecutiveFailures < 1 {
		cfg.MaxConsecutiveFailures = 1
	}
	if cfg.HalfOpenMaxCalls < 1 {
		cfg.HalfOpenMaxCalls = 1
	}
	return &CircuitBreaker{
		cfg:             cfg,
		now:             time.Now,
		state:           StateClosed,
		lastStateChange: time.Now(),
	}
}

// Execute runs fn unless the circuit is open
func (cb *CircuitBreaker) Execute(fn func() error) error {
	if err := cb.beforeRequest(); err != nil {
		return err
	}
	err := fn()
	cb.afterRequest(err)
	return err
}

func (cb *CircuitBreaker) beforeRequest() error {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case StateOpen:
		if cb.now().Sub(cb.lastStateChange) < cb.cfg.Cooldown {
			cb.totalRejected++
			return ErrCircuitOpen
		}
		cb.setState(StateHalfOpen)
		fallthrough
	case StateHalfOpen:
		if cb.halfOpenInFlight >= cb.cfg.HalfOpenMaxCalls {
			cb.totalRejected++
			return ErrCircuitOpen
		}
		cb.halfOpenInFlight++
	}
	return nil
}

func (cb *CircuitBreaker) afterRequest(err error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	failed := err != nil && (cb.cfg.IsFailure == nil || cb.cfg.IsFailure(err))

	if cb.state == StateHalfOpen {
		cb.halfOpenInFlight--
		if failed {
			cb.setState(StateOpen)
			return
		}
		cb.halfOpenOK++
		if cb.halfOpenOK >= cb.cfg.HalfOpenMaxCalls {
			cb.setState(StateClosed)
		}
		return
	}

	if !failed {
		cb.consecutiveFails = 0
		return
	}
	cb.consecutiveFails++
	if cb.state == StateClosed && cb.consecutiveFails >= cb.cfg.MaxConsecutiveFailures {
		cb.setState(StateOpen)
	}
}

func (cb *CircuitBreaker) setState(state State) {
	if cb.state == state {
		return
	}
	logging.WithFields(map[string]interface{}{
		"circuitBreaker":   cb.cfg.Name,
		"from":             cb.state,
		"to":               state,
		"consecutiveFails": cb.consecutiveFails,
	}).Warn("Circuit breaker state change")

	cb.state = state
	cb.lastStateChange = cb.now()
	cb.consecutiveFails = 0
	cb.halfOpenInFlight = 0
	cb.halfOpenOK = 0
}

// State returns the current state
func (cb *CircuitBreaker) State() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

// Stats represents circuit breaker statistics
type Stats struct {
	Name             string    `json:"name"`
	State            State     `json:"state"`
	ConsecutiveFails int       `json:"consecutiveFails"`
	Rejected         int       `json:"rejected"`
	LastStateChange  time.Time `json:"lastStateChange"`
}

// Stats returns a snapshot for health reporting
func (cb *CircuitBreaker) Stats() Stats {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return Stats{
		Name:             cb.cfg.Name,
		State:            cb.state,
		ConsecutiveFails: cb.consecutiveFails,
		Rejected:         cb.totalRejected,
		LastStateChange:  cb.lastStateChange,
	}
}
