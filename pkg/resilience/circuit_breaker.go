package resilience

import (
	"context"
	"sync"
	"time"

	"github.com/jbandu/bag-sub001/pkg/errors"
	"github.com/jbandu/bag-sub001/pkg/logging"
)

// CircuitState represents the state of the circuit breaker
type CircuitState int

const (
	// StateClosed - circuit is closed, requests are allowed
	StateClosed CircuitState = iota
	// StateOpen - circuit is open, requests are rejected
	StateOpen
	// StateHalfOpen - circuit is half-open, limited requests are allowed
	StateHalfOpen
)

func (s CircuitState) String() string {
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

// CircuitBreakerConfig holds configuration for the circuit breaker
type CircuitBreakerConfig struct {
	// Name of the protected target, used in errors, logs and metrics
	Name string
	// FailureThreshold is the number of consecutive failures in the closed
	// state that opens the circuit
	FailureThreshold int
	// SuccessThreshold is the number of consecutive successes in the
	// half-open state that closes the circuit
	SuccessThreshold int
	// Cooldown is how long the circuit stays open before the next call
	// attempt is allowed through as a probe
	Cooldown time.Duration
	// OnStateChange is called whenever the state of the circuit breaker changes
	OnStateChange func(name string, from CircuitState, to CircuitState)
}

// CircuitBreakerStats is a snapshot of the breaker's counters
type CircuitBreakerStats struct {
	State                string    `json:"state"`
	Requests             uint64    `json:"requests"`
	Successes            uint64    `json:"successes"`
	Failures             uint64    `json:"failures"`
	Rejections           uint64    `json:"rejections"`
	ConsecutiveFailures  int       `json:"consecutive_failures"`
	ConsecutiveSuccesses int       `json:"consecutive_successes"`
	LastFailureTime      time.Time `json:"last_failure_time,omitempty"`
	LastSuccessTime      time.Time `json:"last_success_time,omitempty"`
	OpenedAt             time.Time `json:"opened_at,omitempty"`
	StateChanges         uint64    `json:"state_changes"`
}

// CircuitBreaker is a state machine that stops issuing requests to a target
// that keeps failing, then probes for recovery after a cool-down.
//
// Transitions happen on demand inside Execute, never from a background timer:
// the first call after the cool-down elapses moves an open circuit to
// half-open and is let through as the probe.
type CircuitBreaker struct {
	name             string
	failureThreshold int
	successThreshold int
	cooldown         time.Duration
	onStateChange    func(name string, from CircuitState, to CircuitState)

	mutex                sync.Mutex
	state                CircuitState
	requests             uint64
	successes            uint64
	failures             uint64
	rejections           uint64
	consecutiveFailures  int
	consecutiveSuccesses int
	lastFailureTime      time.Time
	lastSuccessTime      time.Time
	openedAt             time.Time
	stateChanges         uint64
	halfOpenInFlight     int

	logger *logging.Logger
}

// NewCircuitBreaker creates a new circuit breaker with the given configuration
func NewCircuitBreaker(config CircuitBreakerConfig) *CircuitBreaker {
	if config.FailureThreshold <= 0 {
		config.FailureThreshold = 5
	}
	if config.SuccessThreshold <= 0 {
		config.SuccessThreshold = 2
	}
	if config.Cooldown <= 0 {
		config.Cooldown = 60 * time.Second
	}

	return &CircuitBreaker{
		name:             config.Name,
		failureThreshold: config.FailureThreshold,
		successThreshold: config.SuccessThreshold,
		cooldown:         config.Cooldown,
		onStateChange:    config.OnStateChange,
		state:            StateClosed,
		logger:           logging.GetLogger(),
	}
}

// Execute runs the given request if the circuit breaker accepts it.
// It is the sole mutator of breaker state and the sole point where
// success and failure are recorded.
func (cb *CircuitBreaker) Execute(ctx context.Context, req func(context.Context) (interface{}, error)) (interface{}, error) {
	if err := cb.beforeRequest(); err != nil {
		return nil, err
	}

	defer func() {
		if r := recover(); r != nil {
			cb.afterRequest(false)
			panic(r)
		}
	}()

	result, err := req(ctx)
	cb.afterRequest(err == nil)
	return result, err
}

// Call is a convenience method that wraps Execute for functions that don't need context
func (cb *CircuitBreaker) Call(fn func() (interface{}, error)) (interface{}, error) {
	return cb.Execute(context.Background(), func(ctx context.Context) (interface{}, error) {
		return fn()
	})
}

// State returns the current state of the circuit breaker. Reading the
// state never transitions the breaker; that is left to the next call
// attempt.
func (cb *CircuitBreaker) State() CircuitState {
	cb.mutex.Lock()
	defer cb.mutex.Unlock()

	return cb.observedState(time.Now())
}

// Stats returns a snapshot of the breaker's counters
func (cb *CircuitBreaker) Stats() CircuitBreakerStats {
	cb.mutex.Lock()
	defer cb.mutex.Unlock()

	return CircuitBreakerStats{
		State:                cb.observedState(time.Now()).String(),
		Requests:             cb.requests,
		Successes:            cb.successes,
		Failures:             cb.failures,
		Rejections:           cb.rejections,
		ConsecutiveFailures:  cb.consecutiveFailures,
		ConsecutiveSuccesses: cb.consecutiveSuccesses,
		LastFailureTime:      cb.lastFailureTime,
		LastSuccessTime:      cb.lastSuccessTime,
		OpenedAt:             cb.openedAt,
		StateChanges:         cb.stateChanges,
	}
}

// Name returns the name of the circuit breaker
func (cb *CircuitBreaker) Name() string {
	return cb.name
}

// Reset forces the circuit breaker back to closed regardless of history
func (cb *CircuitBreaker) Reset() {
	cb.mutex.Lock()
	defer cb.mutex.Unlock()

	cb.setState(StateClosed, time.Now())
	cb.consecutiveFailures = 0
	cb.consecutiveSuccesses = 0
	cb.halfOpenInFlight = 0

	cb.logger.Info("Circuit breaker reset",
		"name", cb.name,
	)
}

func (cb *CircuitBreaker) beforeRequest() error {
	cb.mutex.Lock()
	defer cb.mutex.Unlock()

	now := time.Now()
	state := cb.currentState(now)

	if state == StateOpen {
		cb.rejections++
		return errors.NewBreakerOpenError(cb.name)
	}

	if state == StateHalfOpen {
		// Limit probing so a recovering target is not flooded.
		if cb.halfOpenInFlight >= cb.successThreshold {
			cb.rejections++
			return errors.NewBreakerOpenError(cb.name)
		}
		cb.halfOpenInFlight++
	}

	cb.requests++
	return nil
}

func (cb *CircuitBreaker) afterRequest(success bool) {
	cb.mutex.Lock()
	defer cb.mutex.Unlock()

	now := time.Now()
	state := cb.currentState(now)

	if state == StateHalfOpen && cb.halfOpenInFlight > 0 {
		cb.halfOpenInFlight--
	}

	if success {
		cb.onSuccess(state, now)
	} else {
		cb.onFailure(state, now)
	}
}

func (cb *CircuitBreaker) onSuccess(state CircuitState, now time.Time) {
	cb.successes++
	cb.consecutiveSuccesses++
	cb.consecutiveFailures = 0
	cb.lastSuccessTime = now

	if state == StateHalfOpen && cb.consecutiveSuccesses >= cb.successThreshold {
		cb.setState(StateClosed, now)
		cb.consecutiveSuccesses = 0
	}
}

func (cb *CircuitBreaker) onFailure(state CircuitState, now time.Time) {
	cb.failures++
	cb.consecutiveFailures++
	cb.consecutiveSuccesses = 0
	cb.lastFailureTime = now

	switch state {
	case StateClosed:
		if cb.consecutiveFailures >= cb.failureThreshold {
			cb.setState(StateOpen, now)
		}
	case StateHalfOpen:
		// No partial credit: any failure while probing reopens the circuit.
		cb.setState(StateOpen, now)
	}
}

// currentState applies the on-demand open -> half-open transition.
// Only the request path calls it, so observers polling State or Stats
// cannot fire the transition. Callers must hold cb.mutex.
func (cb *CircuitBreaker) currentState(now time.Time) CircuitState {
	if cb.state == StateOpen && now.Sub(cb.openedAt) >= cb.cooldown {
		cb.setState(StateHalfOpen, now)
	}
	return cb.state
}

// observedState reports the state a call arriving now would see, without
// performing the transition. Callers must hold cb.mutex.
func (cb *CircuitBreaker) observedState(now time.Time) CircuitState {
	if cb.state == StateOpen && now.Sub(cb.openedAt) >= cb.cooldown {
		return StateHalfOpen
	}
	return cb.state
}

// setState transitions the breaker. Callers must hold cb.mutex.
func (cb *CircuitBreaker) setState(state CircuitState, now time.Time) {
	if cb.state == state {
		return
	}

	prev := cb.state
	cb.state = state
	cb.stateChanges++

	if state == StateOpen {
		cb.openedAt = now
		cb.consecutiveFailures = 0
		cb.consecutiveSuccesses = 0
	}
	if state == StateHalfOpen {
		cb.halfOpenInFlight = 0
	}

	if cb.onStateChange != nil {
		cb.onStateChange(cb.name, prev, state)
	}

	cb.logger.Info("Circuit breaker state changed",
		"name", cb.name,
		"from", prev.String(),
		"to", state.String(),
	)
}
