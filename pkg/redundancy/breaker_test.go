// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package redundancy

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/RecordFabric/pkg/faults"
)

func TestBreakerOpensAtThresholdAndRecovers(t *testing.T) {
	clock := newFakeClock()
	b := NewBreaker("records-db", 3, 5*time.Second, clock)
	boom := errors.New("connection refused")

	// Three consecutive failures open the breaker.
	for i := 0; i < 3; i++ {
		err := b.Call(func() error { return boom })
		require.ErrorIs(t, err, boom)
	}
	assert.Equal(t, StateOpen, b.State())

	// Fourth call is refused without invoking the operation.
	invoked := false
	err := b.Call(func() error { invoked = true; return nil })
	require.Error(t, err)
	assert.False(t, invoked)
	assert.Equal(t, faults.KindCircuitOpen, faults.KindOf(err))
	assert.Contains(t, err.Error(), "records-db")

	// After the recovery interval, one probe is admitted; success closes
	// the breaker and resets the failure count.
	clock.Advance(5*time.Second + time.Millisecond)
	err = b.Call(func() error { return nil })
	require.NoError(t, err)
	assert.Equal(t, StateClosed, b.State())
	assert.Equal(t, 0, b.FailureCount())
}

func TestBreakerFailedProbeReopens(t *testing.T) {
	clock := newFakeClock()
	b := NewBreaker("acris", 2, 5*time.Second, clock)
	boom := errors.New("upstream 502")

	for i := 0; i < 2; i++ {
		_ = b.Call(func() error { return boom })
	}
	require.Equal(t, StateOpen, b.State())

	clock.Advance(6 * time.Second)
	err := b.Call(func() error { return boom })
	require.ErrorIs(t, err, boom)
	assert.Equal(t, StateOpen, b.State())

	// Re-opened breaker refuses again inside the new recovery window.
	err = b.Call(func() error { return nil })
	assert.Equal(t, faults.KindCircuitOpen, faults.KindOf(err))
}

func TestBreakerHalfOpenAdmitsOneTrialCall(t *testing.T) {
	clock := newFakeClock()
	b := NewBreaker("scraping", 1, 5*time.Second, clock)

	_ = b.Call(func() error { return errors.New("down") })
	require.Equal(t, StateOpen, b.State())
	clock.Advance(6 * time.Second)

	// First caller after the recovery window holds the trial slot open.
	entered := make(chan struct{})
	release := make(chan struct{})
	done := make(chan error, 1)
	go func() {
		done <- b.Call(func() error {
			close(entered)
			<-release
			return nil
		})
	}()
	<-entered

	// A concurrent caller is refused without invoking its operation.
	invoked := false
	err := b.Call(func() error { invoked = true; return nil })
	assert.False(t, invoked)
	assert.Equal(t, faults.KindCircuitOpen, faults.KindOf(err))

	// The trial's success closes the breaker for everyone.
	close(release)
	require.NoError(t, <-done)
	assert.Equal(t, StateClosed, b.State())
	require.NoError(t, b.Call(func() error { return nil }))
}

func TestBreakerSuccessResetsFailureCount(t *testing.T) {
	clock := newFakeClock()
	b := NewBreaker("gis", 3, time.Second, clock)
	boom := errors.New("timeout")

	_ = b.Call(func() error { return boom })
	_ = b.Call(func() error { return boom })
	require.Equal(t, 2, b.FailureCount())

	require.NoError(t, b.Call(func() error { return nil }))
	assert.Equal(t, 0, b.FailureCount())
	assert.Equal(t, StateClosed, b.State())
}

func TestBreakerCallPreservesTypedResult(t *testing.T) {
	b := NewBreaker("vectors", 3, time.Second, newFakeClock())

	got, err := BreakerCall(b, func() (int, error) { return 42, nil })
	require.NoError(t, err)
	assert.Equal(t, 42, got)

	_, err = BreakerCall(b, func() (int, error) { return 0, errors.New("bad") })
	assert.Error(t, err)
}

func TestBreakerRegistryIsPerTarget(t *testing.T) {
	clock := newFakeClock()
	r := NewBreakerRegistry(1, time.Minute, clock)

	_ = r.Get("a").Call(func() error { return errors.New("down") })
	assert.Equal(t, StateOpen, r.Get("a").State())
	assert.Equal(t, StateClosed, r.Get("b").State())

	assert.Same(t, r.Get("a"), r.Get("a"))
	assert.ElementsMatch(t, []string{"a", "b"}, r.Targets())
}
