package llm

import (
	"slices"
	"strings"
	"sync"
	"time"
)

// ProviderTransitionFunc observes circuit state changes for any provider.
type ProviderTransitionFunc func(provider string, from, to CircuitState)

// HealthTracker owns one circuit breaker per provider, created on first use.
type HealthTracker struct {
	mu       sync.RWMutex
	breakers map[string]*CircuitBreaker
	observer ProviderTransitionFunc

	threshold     int
	probeInterval time.Duration
}

func NewHealthTracker(failureThreshold int, recoveryProbeInterval time.Duration) *HealthTracker {
	return &HealthTracker{
		breakers:      make(map[string]*CircuitBreaker),
		threshold:     failureThreshold,
		probeInterval: recoveryProbeInterval,
	}
}

// OnTransition registers fn for breakers created after the call. Register
// it before the first request.
func (ht *HealthTracker) OnTransition(fn ProviderTransitionFunc) {
	ht.mu.Lock()
	ht.observer = fn
	ht.mu.Unlock()
}

// Breaker returns the provider's breaker, creating it if needed.
func (ht *HealthTracker) Breaker(provider string) *CircuitBreaker {
	ht.mu.RLock()
	cb, ok := ht.breakers[provider]
	ht.mu.RUnlock()
	if ok {
		return cb
	}

	ht.mu.Lock()
	defer ht.mu.Unlock()
	if cb, ok := ht.breakers[provider]; ok {
		return cb
	}
	cb = NewCircuitBreaker(ht.threshold, ht.probeInterval)
	if obs := ht.observer; obs != nil {
		cb.onTransition = func(from, to CircuitState) { obs(provider, from, to) }
	}
	ht.breakers[provider] = cb
	return cb
}

func (ht *HealthTracker) Allow(provider string) bool { return ht.Breaker(provider).Allow() }

func (ht *HealthTracker) RecordSuccess(provider string) { ht.Breaker(provider).RecordSuccess() }

func (ht *HealthTracker) RecordFailure(provider string) { ht.Breaker(provider).RecordFailure() }

// ProviderState is a point-in-time view of one provider's breaker.
type ProviderState struct {
	Provider string `json:"provider"`
	State    string `json:"state"`
	Failures int    `json:"consecutive_failures"`
}

// Snapshot lists every provider seen so far, sorted by name.
func (ht *HealthTracker) Snapshot() []ProviderState {
	ht.mu.RLock()
	out := make([]ProviderState, 0, len(ht.breakers))
	for name, cb := range ht.breakers {
		out = append(out, ProviderState{Provider: name, State: cb.State().String(), Failures: cb.Failures()})
	}
	ht.mu.RUnlock()

	slices.SortFunc(out, func(a, b ProviderState) int { return strings.Compare(a.Provider, b.Provider) })
	return out
}

// AnyOpen reports whether at least one known provider has an open circuit.
func (ht *HealthTracker) AnyOpen() bool {
	return slices.ContainsFunc(ht.Snapshot(), func(s ProviderState) bool {
		return s.State == StateOpen.String()
	})
}
