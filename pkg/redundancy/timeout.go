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
	"fmt"
	"time"

	"github.com/AleutianAI/RecordFabric/pkg/faults"
)

// WithTimeout enforces a wall-clock deadline on op.
//
// # Description
//
// Runs op with a context that expires after d. If the deadline elapses
// before op returns, the result is faults.DeadlineExceeded and op's context
// is cancelled so a well-behaved operation stops promptly; its eventual
// return value is discarded. If the parent context is cancelled first, the
// raw ctx.Err() propagates so callers can distinguish caller abandonment
// from a blown budget.
//
// Budget enforcement is wall-clock, not CPU.
func WithTimeout[T any](ctx context.Context, d time.Duration, op func(ctx context.Context) (T, error)) (T, error) {
	var zero T

	opCtx, cancel := context.WithTimeout(ctx, d)
	defer cancel()

	type outcome struct {
		result T
		err    error
	}
	done := make(chan outcome, 1)

	go func() {
		result, err := op(opCtx)
		done <- outcome{result, err}
	}()

	select {
	case out := <-done:
		if out.err != nil {
			// An op that surfaced its context deadline maps the same way.
			if opCtx.Err() == context.DeadlineExceeded && ctx.Err() == nil {
				return zero, deadlineFault(d)
			}
			return zero, out.err
		}
		return out.result, nil
	case <-opCtx.Done():
		if ctx.Err() != nil {
			// Parent cancelled: propagate as-is, never as DeadlineExceeded.
			return zero, ctx.Err()
		}
		return zero, deadlineFault(d)
	}
}

func deadlineFault(d time.Duration) error {
	return faults.DeadlineExceeded(fmt.Sprintf("operation timed out after %s", d))
}
