// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package redundancy

import (
	"sync"
	"time"

	"github.com/AleutianAI/RecordFabric/pkg/faults"
)

// =============================================================================
// Breaker States
// =============================================================================

// BreakerState is the circuit breaker lifecycle state.
type BreakerState string

const (
	// StateClosed admits every call.
	StateClosed BreakerState = "closed"

	// StateOpen refuses every call until the recovery interval elapses.
	StateOpen BreakerState = "open"

	// StateHalfOpen admits a single trial call after the recovery window.
	StateHalfOpen BreakerState = "half_open"
)

// =============================================================================
// Breaker
// =============================================================================

// Breaker is a circuit breaker for one outbound target.
//
// # Description
//
// Tracks consecutive failures against a threshold. Once open, no operation
// executes until the recovery interval has elapsed; the first call after
// that window runs as a single half-open probe. A successful probe closes
// the breaker and resets the failure count; a failed one re-opens it.
//
// The breaker is orthogonal to retry: each retry attempt is one admission.
//
// # Invariants
//
//   - failureCount >= 0
//   - state == open implies lastFailure is set
//   - open -> half_open only when now - lastFailure > recoveryInterval
//   - probing implies state == half_open; at most one trial call in flight
//
// # Thread Safety
//
// Safe for concurrent use; state transitions are confined to Call.
type Breaker struct {
	mu sync.Mutex

	target           string
	state            BreakerState
	probing          bool
	failureCount     int
	lastFailure      time.Time
	failureThreshold int
	recoveryInterval time.Duration
	clock            Clock
}

// NewBreaker creates a closed breaker for the given target key.
func NewBreaker(target string, failureThreshold int, recoveryInterval time.Duration, clock Clock) *Breaker {
	if clock == nil {
		clock = SystemClock()
	}
	return &Breaker{
		target:           target,
		state:            StateClosed,
		failureThreshold: failureThreshold,
		recoveryInterval: recoveryInterval,
		clock:            clock,
	}
}

// State returns the current lifecycle state.
func (b *Breaker) State() BreakerState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// FailureCount returns the consecutive failure count.
func (b *Breaker) FailureCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.failureCount
}

// admit decides whether a call may proceed, transitioning open -> half_open
// when the recovery window has elapsed.
func (b *Breaker) admit() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateOpen:
		if b.clock.Now().Sub(b.lastFailure) > b.recoveryInterval {
			b.state = StateHalfOpen
			b.probing = true
			return nil
		}
		return faults.CircuitOpen(b.target)
	case StateHalfOpen:
		// One trial call at a time; concurrent callers wait out the verdict.
		if b.probing {
			return faults.CircuitOpen(b.target)
		}
		b.probing = true
		return nil
	}
	return nil
}

// onSuccess records a successful call.
func (b *Breaker) onSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state == StateHalfOpen {
		b.state = StateClosed
	}
	b.probing = false
	b.failureCount = 0
}

// onFailure records a failed call, opening the breaker at the threshold.
// A failed half-open probe re-opens immediately.
func (b *Breaker) onFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.failureCount++
	b.lastFailure = b.clock.Now()

	if b.state == StateHalfOpen || b.failureCount >= b.failureThreshold {
		b.state = StateOpen
	}
	b.probing = false
}

// Call executes op under the breaker.
//
// # Description
//
// Refuses immediately with faults.CircuitOpen while open inside the recovery
// window; otherwise runs op and records the outcome. The generic wrapper
// BreakerCall preserves typed results.
func (b *Breaker) Call(op func() error) error {
	if err := b.admit(); err != nil {
		return err
	}
	if err := op(); err != nil {
		b.onFailure()
		return err
	}
	b.onSuccess()
	return nil
}

// BreakerCall runs op under b, preserving the typed result.
func BreakerCall[T any](b *Breaker, op func() (T, error)) (T, error) {
	var result T
	err := b.Call(func() error {
		var opErr error
		result, opErr = op()
		return opErr
	})
	if err != nil {
		var zero T
		return zero, err
	}
	return result, nil
}

// =============================================================================
// Breaker Registry
// =============================================================================

// BreakerRegistry owns one breaker per target key, created lazily on the
// first call to that target.
//
// # Thread Safety
//
// Safe for concurrent use. Breakers are per-process: an open breaker in one
// replica does not bind others.
type BreakerRegistry struct {
	mu       sync.Mutex
	breakers map[string]*Breaker

	failureThreshold int
	recoveryInterval time.Duration
	clock            Clock
}

// NewBreakerRegistry creates a registry whose breakers share the given
// threshold and recovery interval.
func NewBreakerRegistry(failureThreshold int, recoveryInterval time.Duration, clock Clock) *BreakerRegistry {
	if clock == nil {
		clock = SystemClock()
	}
	return &BreakerRegistry{
		breakers:         make(map[string]*Breaker),
		failureThreshold: failureThreshold,
		recoveryInterval: recoveryInterval,
		clock:            clock,
	}
}

// Get returns the breaker for target, creating it closed on first use.
func (r *BreakerRegistry) Get(target string) *Breaker {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.breakers[target]
	if !ok {
		b = NewBreaker(target, r.failureThreshold, r.recoveryInterval, r.clock)
		r.breakers[target] = b
	}
	return b
}

// Targets returns the known target keys, for the metrics surface.
func (r *BreakerRegistry) Targets() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	keys := make([]string, 0, len(r.breakers))
	for k := range r.breakers {
		keys = append(keys, k)
	}
	return keys
}
