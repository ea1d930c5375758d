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
	"log/slog"
	"math"
	"math/rand"
	"time"

	"github.com/AleutianAI/RecordFabric/pkg/faults"
)

// =============================================================================
// Retry Policy
// =============================================================================

// RetryPolicy bounds the retry engine for one call site. Immutable.
//
// # Fields
//
//   - MaxAttempts: Total attempts including the first; must be >= 1.
//   - BaseDelay: First backoff delay; must be > 0.
//   - MaxDelay: Backoff ceiling; must be >= BaseDelay.
//   - JitterFraction: Uniform jitter in [0,1]; the sleep between attempts is
//     min(BaseDelay * 2^(attempt-1), MaxDelay) * (1 + U[0, JitterFraction]).
type RetryPolicy struct {
	MaxAttempts    int
	BaseDelay      time.Duration
	MaxDelay       time.Duration
	JitterFraction float64
}

// DefaultRetryPolicy matches the fabric-wide defaults: 3 attempts, 100ms
// base, 30s ceiling, 10% jitter.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:    3,
		BaseDelay:      100 * time.Millisecond,
		MaxDelay:       30 * time.Second,
		JitterFraction: 0.1,
	}
}

// backoff returns the sleep before attempt n+1 (n is 1-based).
func (p RetryPolicy) backoff(attempt int, jitter float64) time.Duration {
	d := time.Duration(float64(p.BaseDelay) * math.Pow(2, float64(attempt-1)))
	if d > p.MaxDelay {
		d = p.MaxDelay
	}
	return time.Duration(float64(d) * (1 + jitter*p.JitterFraction))
}

// =============================================================================
// Retry Engine
// =============================================================================

// Retry runs attempt up to policy.MaxAttempts times.
//
// # Description
//
// Only failures whose taxonomy kind is retryable trigger another attempt;
// everything else propagates immediately. A DeadlineExceeded is retried at
// most once regardless of the remaining budget. Between attempts the engine
// sleeps the jittered exponential backoff via clock; a cancelled context
// aborts the loop immediately and returns ctx.Err().
//
// # Inputs
//
//   - ctx: Cancellation/deadline for the whole loop.
//   - clock: Time source; nil uses the system clock.
//   - jitterFn: Uniform [0,1) source; nil uses math/rand.
//   - policy: Attempt budget and backoff shape.
//   - attempt: The operation; receives the 1-based attempt number.
//
// # Outputs
//
//   - T: Result of the first successful attempt.
//   - error: The last observed failure once the budget is exhausted.
func Retry[T any](ctx context.Context, clock Clock, jitterFn func() float64,
	policy RetryPolicy, attempt func(ctx context.Context, n int) (T, error)) (T, error) {

	if clock == nil {
		clock = SystemClock()
	}
	if jitterFn == nil {
		jitterFn = rand.Float64
	}
	if policy.MaxAttempts < 1 {
		policy.MaxAttempts = 1
	}

	var zero T
	var lastErr error
	deadlineRetried := false

	for n := 1; n <= policy.MaxAttempts; n++ {
		if ctx.Err() != nil {
			return zero, ctx.Err()
		}

		result, err := attempt(ctx, n)
		if err == nil {
			return result, nil
		}
		lastErr = err

		if !faults.IsRetryable(err) {
			return zero, err
		}
		if faults.KindOf(err) == faults.KindDeadlineExceeded {
			if deadlineRetried {
				return zero, err
			}
			deadlineRetried = true
		}
		if n == policy.MaxAttempts {
			break
		}

		delay := policy.backoff(n, jitterFn())
		slog.Warn("retry attempt scheduled",
			"attempt", n,
			"max_attempts", policy.MaxAttempts,
			"delay", delay.String(),
			"error", err.Error(),
		)
		if err := clock.Sleep(ctx, delay); err != nil {
			return zero, err
		}
	}

	return zero, lastErr
}
