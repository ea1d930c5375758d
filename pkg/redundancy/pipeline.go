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
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/AleutianAI/RecordFabric/pkg/faults"
)

// =============================================================================
// Manager
// =============================================================================

// Manager owns the shared resilience state for one process: the TTL cache
// and the per-target breaker registry.
//
// # Description
//
// Managers are explicitly injected into services rather than held as package
// globals, so tests stay deterministic. A Manager carries the process-wide
// defaults (timeout, retry policy); individual operations may override both.
//
// # Thread Safety
//
// Safe for concurrent use.
type Manager struct {
	cache    *Cache
	breakers *BreakerRegistry
	clock    Clock
	jitterFn func() float64

	defaultTimeout time.Duration
	defaultRetry   RetryPolicy
}

// ManagerConfig holds Manager construction options.
//
// Zero values take the fabric defaults: breaker threshold 5, recovery 60s,
// cache TTL 5m, timeout 30s, DefaultRetryPolicy.
type ManagerConfig struct {
	FailureThreshold int
	RecoveryInterval time.Duration
	CacheTTL         time.Duration
	CacheMaxEntries  int
	DefaultTimeout   time.Duration
	DefaultRetry     RetryPolicy

	// Clock and JitterFn are test seams; nil selects production behavior.
	Clock    Clock
	JitterFn func() float64
}

// NewManager creates a Manager with defaults applied.
func NewManager(cfg ManagerConfig) *Manager {
	if cfg.FailureThreshold == 0 {
		cfg.FailureThreshold = 5
	}
	if cfg.RecoveryInterval == 0 {
		cfg.RecoveryInterval = 60 * time.Second
	}
	if cfg.CacheTTL == 0 {
		cfg.CacheTTL = 5 * time.Minute
	}
	if cfg.DefaultTimeout == 0 {
		cfg.DefaultTimeout = 30 * time.Second
	}
	if cfg.DefaultRetry.MaxAttempts == 0 {
		cfg.DefaultRetry = DefaultRetryPolicy()
	}
	if cfg.Clock == nil {
		cfg.Clock = SystemClock()
	}

	cacheOpts := []CacheOption{WithCacheClock(cfg.Clock)}
	if cfg.CacheMaxEntries > 0 {
		cacheOpts = append(cacheOpts, WithMaxEntries(cfg.CacheMaxEntries))
	}

	return &Manager{
		cache:          NewCache(cfg.CacheTTL, cacheOpts...),
		breakers:       NewBreakerRegistry(cfg.FailureThreshold, cfg.RecoveryInterval, cfg.Clock),
		clock:          cfg.Clock,
		jitterFn:       cfg.JitterFn,
		defaultTimeout: cfg.DefaultTimeout,
		defaultRetry:   cfg.DefaultRetry,
	}
}

// Cache exposes the manager's cache for direct reads (metrics, tests).
func (m *Manager) Cache() *Cache { return m.cache }

// Breakers exposes the breaker registry (gateway health checks, metrics).
func (m *Manager) Breakers() *BreakerRegistry { return m.breakers }

// =============================================================================
// Operation
// =============================================================================

// Attempt is one way of producing the operation's result.
type Attempt[T any] func(ctx context.Context) (T, error)

// Op describes one outbound operation to run through the pipeline.
//
// # Fields
//
//   - Target: Breaker key for the primary dependency. Required.
//   - CacheKey: Optional memoization key (request fingerprint). Empty
//     disables stages 1 and the post-success write-back.
//   - Primary: The primary attempt. Required.
//   - Alternates: Ordered alternative sources tried after the primary's
//     retry budget is exhausted; first success wins.
//   - Fallback: Graceful-degradation producer invoked when everything else
//     failed. Its result is returned but never cached.
//   - Timeout / Retry: Per-operation overrides of the manager defaults.
type Op[T any] struct {
	Target     string
	CacheKey   string
	Primary    Attempt[T]
	Alternates []Attempt[T]
	Fallback   Attempt[T]
	Timeout    time.Duration
	Retry      *RetryPolicy
}

// Execute runs op through the six pipeline stages in their fixed order:
//
//  1. cache lookup (hit short-circuits);
//  2. breaker admission for the target key;
//  3. timeout wrapper around the attempt;
//  4. retry loop around (3), honoring the retryable bit;
//  5. alternative sources, each wrapped by (3);
//  6. graceful degradation via the fallback producer.
//
// # Description
//
// The pipeline never returns a partial result: the call either succeeds as
// a whole (and is written to the cache when a key was supplied), returns
// the fallback's value, or fails with the last observed taxonomy fault.
// Degradation is reserved for exhausted-budget failures; a validation or
// auth failure propagates untouched. A cancelled request aborts retries at
// once and never populates the cache.
func Execute[T any](ctx context.Context, m *Manager, op Op[T]) (T, error) {
	var zero T

	// Stage 1: cache lookup.
	if op.CacheKey != "" {
		if cached, ok := m.cache.Get(op.CacheKey); ok {
			if typed, ok := cached.(T); ok {
				return typed, nil
			}
			// A foreign type under this key means the key is being reused
			// across result types; drop it and fall through.
			m.cache.Delete(op.CacheKey)
		}
	}

	timeout := op.Timeout
	if timeout == 0 {
		timeout = m.defaultTimeout
	}
	policy := m.defaultRetry
	if op.Retry != nil {
		policy = *op.Retry
	}

	breaker := m.breakers.Get(op.Target)

	// Stages 2-4: retry(breaker(timeout(primary))). Each retry attempt is
	// one breaker admission.
	result, err := Retry(ctx, m.clock, m.jitterFn, policy, func(ctx context.Context, n int) (T, error) {
		return BreakerCall(breaker, func() (T, error) {
			return WithTimeout(ctx, timeout, op.Primary)
		})
	})

	// Stage 5: alternative sources, each under the timeout wrapper.
	if err != nil && ctx.Err() == nil {
		for i, alt := range op.Alternates {
			altResult, altErr := WithTimeout(ctx, timeout, alt)
			if altErr == nil {
				result, err = altResult, nil
				break
			}
			slog.Warn("alternative source failed",
				"target", op.Target,
				"alternate", i+1,
				"error", altErr.Error(),
			)
			err = altErr
			if ctx.Err() != nil {
				break
			}
		}
	}

	// Stage 6: graceful degradation, only for exhausted-budget failures.
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return zero, contextFault(ctxErr)
		}
		if op.Fallback != nil && degradable(err) {
			slog.Warn("degrading to fallback", "target", op.Target, "error", err.Error())
			fallbackResult, fbErr := op.Fallback(ctx)
			if fbErr != nil {
				return zero, faults.From(err)
			}
			// Never cache a degraded value.
			return fallbackResult, nil
		}
		return zero, faults.From(err)
	}

	if op.CacheKey != "" && ctx.Err() == nil {
		m.cache.Set(op.CacheKey, result)
	}
	return result, nil
}

// contextFault renders a caller-side context failure. A cancelled parent
// (client hung up) is not a server fault, so it must not surface as
// KindInternal.
func contextFault(ctxErr error) *faults.Fault {
	if errors.Is(ctxErr, context.DeadlineExceeded) {
		return faults.DeadlineExceeded("request deadline exceeded")
	}
	return faults.Transient("request cancelled by caller", ctxErr)
}

// degradable reports whether a failure may be absorbed by the fallback
// producer. Validation, auth, and conflict failures never degrade.
func degradable(err error) bool {
	switch faults.KindOf(err) {
	case faults.KindTransient, faults.KindDeadlineExceeded, faults.KindCircuitOpen, faults.KindInternal:
		return true
	default:
		return false
	}
}
