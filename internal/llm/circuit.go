package llm

import (
	"sync"
	"time"
)

// CircuitState is the position of a provider's circuit breaker. The numeric
// values are exported as the querysmith_provider_circuit_state gauge.
type CircuitState int

const (
	StateClosed   CircuitState = iota // calls flow
	StateOpen                         // calls refused
	StateHalfOpen                     // one probe call allowed
)

var stateNames = [...]string{StateClosed: "closed", StateOpen: "open", StateHalfOpen: "half_open"}

func (s CircuitState) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return "unknown"
	}
	return stateNames[s]
}

// TransitionFunc observes breaker state changes. It runs after the breaker's
// lock is released, so it may call back into the breaker.
type TransitionFunc func(from, to CircuitState)

type transition struct{ from, to CircuitState }

// CircuitBreaker guards one provider. A streak of failures reaching the
// threshold opens the circuit. Once the probe interval has passed the next
// caller is let through alone, and that call decides whether the circuit
// closes or opens again.
type CircuitBreaker struct {
	mu sync.Mutex

	state    CircuitState
	failures int
	openedAt time.Time
	probing  bool
	pending  []transition

	threshold     int
	probeInterval time.Duration
	onTransition  TransitionFunc
	now           func() time.Time
}

func NewCircuitBreaker(failureThreshold int, recoveryProbeInterval time.Duration) *CircuitBreaker {
	return &CircuitBreaker{
		threshold:     max(failureThreshold, 1),
		probeInterval: recoveryProbeInterval,
		now:           time.Now,
	}
}

// lock and unlock bracket every method; unlock delivers transitions queued
// while the lock was held.
func (cb *CircuitBreaker) lock() { cb.mu.Lock() }

func (cb *CircuitBreaker) unlock() {
	pending, notify := cb.pending, cb.onTransition
	cb.pending = nil
	cb.mu.Unlock()
	if notify == nil {
		return
	}
	for _, t := range pending {
		notify(t.from, t.to)
	}
}

func (cb *CircuitBreaker) setState(to CircuitState) {
	if cb.state == to {
		return
	}
	if cb.onTransition != nil {
		cb.pending = append(cb.pending, transition{cb.state, to})
	}
	cb.state = to
	cb.probing = false
	if to == StateOpen {
		cb.openedAt = cb.now()
	}
}

// settle moves an open circuit to half-open once the probe interval is up.
func (cb *CircuitBreaker) settle() CircuitState {
	if cb.state == StateOpen && cb.now().Sub(cb.openedAt) >= cb.probeInterval {
		cb.setState(StateHalfOpen)
	}
	return cb.state
}

func (cb *CircuitBreaker) State() CircuitState {
	cb.lock()
	defer cb.unlock()
	return cb.settle()
}

// Failures returns the current consecutive failure count.
func (cb *CircuitBreaker) Failures() int {
	cb.lock()
	defer cb.unlock()
	return cb.failures
}

// Allow reports whether a call may go through.
func (cb *CircuitBreaker) Allow() bool {
	cb.lock()
	defer cb.unlock()

	switch cb.settle() {
	case StateClosed:
		return true
	case StateHalfOpen:
		if cb.probing {
			return false
		}
		cb.probing = true
		return true
	}
	return false
}

func (cb *CircuitBreaker) RecordSuccess() {
	cb.lock()
	defer cb.unlock()

	cb.failures = 0
	cb.probing = false
	if cb.state == StateHalfOpen {
		cb.setState(StateClosed)
	}
}

func (cb *CircuitBreaker) RecordFailure() {
	cb.lock()
	defer cb.unlock()

	cb.failures++
	switch cb.settle() {
	case StateClosed:
		if cb.failures >= cb.threshold {
			cb.setState(StateOpen)
		}
	case StateHalfOpen:
		cb.setState(StateOpen)
	}
}

// Reset closes the circuit and clears the failure streak.
func (cb *CircuitBreaker) Reset() {
	cb.lock()
	defer cb.unlock()
	cb.failures = 0
	cb.setState(StateClosed)
}
