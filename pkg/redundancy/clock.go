// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package redundancy implements the outbound-call resilience layer: a TTL
// cache, per-target circuit breakers, bounded retries with jittered
// exponential backoff, wall-clock timeouts, and the fixed-order pipeline that
// composes them. Every out-of-process call in the fabric goes through here;
// handlers never retry on their own.
package redundancy

import (
	"context"
	"time"
)

// Clock abstracts time for deterministic tests.
//
// # Description
//
// The breaker, cache, and retry engine never call time.Now or time.Sleep
// directly; they go through a Clock so tests can drive recovery windows and
// backoff schedules without real waiting.
//
// # Thread Safety
//
// Implementations must be safe for concurrent use.
type Clock interface {
	// Now returns the current wall-clock time.
	Now() time.Time

	// Sleep blocks for d or until ctx is cancelled, returning ctx.Err() in
	// the cancelled case.
	Sleep(ctx context.Context, d time.Duration) error
}

// systemClock is the production Clock backed by the time package.
type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

func (systemClock) Sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// SystemClock returns the production clock.
func SystemClock() Clock { return systemClock{} }

var _ Clock = systemClock{}
