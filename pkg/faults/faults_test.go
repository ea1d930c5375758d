// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package faults

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHTTPStatusMapping(t *testing.T) {
	cases := []struct {
		kind   Kind
		status int
	}{
		{KindInvalidArgument, http.StatusUnprocessableEntity},
		{KindNotFound, http.StatusNotFound},
		{KindConfigConflict, http.StatusConflict},
		{KindUnauthenticated, http.StatusUnauthorized},
		{KindForbidden, http.StatusForbidden},
		{KindTransient, http.StatusServiceUnavailable},
		{KindDeadlineExceeded, http.StatusGatewayTimeout},
		{KindCircuitOpen, http.StatusServiceUnavailable},
		{KindInternal, http.StatusInternalServerError},
	}

	for _, tc := range cases {
		f := &Fault{Kind: tc.kind, Message: "x"}
		assert.Equal(t, tc.status, f.HTTPStatus(), "kind %s", tc.kind)
	}
}

func TestRetryability(t *testing.T) {
	assert.True(t, Transient("x", nil).Retryable())
	assert.True(t, DeadlineExceeded("x").Retryable())

	assert.False(t, InvalidArgument("f", "r").Retryable())
	assert.False(t, NotFound("x").Retryable())
	assert.False(t, ConfigConflict("x").Retryable())
	assert.False(t, Unauthenticated("x").Retryable())
	assert.False(t, Forbidden("x").Retryable())
	assert.False(t, CircuitOpen("x").Retryable())
	assert.False(t, Internal("x", nil).Retryable())
}

func TestInvalidArgumentNamesField(t *testing.T) {
	f := InvalidArgument("license_number", "must be 6-8 digits, got 5")
	assert.Contains(t, f.Message, "license_number")
	assert.Contains(t, f.Message, "5")
}

func TestFromPassesFaultsThrough(t *testing.T) {
	orig := NotFound("firm")
	wrapped := fmt.Errorf("lookup failed: %w", orig)

	f := From(wrapped)
	require.NotNil(t, f)
	assert.Equal(t, KindNotFound, f.Kind)
	assert.Same(t, orig, f)
}

func TestFromForeignErrorBecomesInternal(t *testing.T) {
	f := From(errors.New("boom"))
	assert.Equal(t, KindInternal, f.Kind)
	assert.EqualError(t, f.Cause, "boom")
}

func TestFromNil(t *testing.T) {
	assert.Nil(t, From(nil))
	assert.False(t, IsRetryable(nil))
}

func TestBodyOmitsCause(t *testing.T) {
	f := Transient("upstream down", errors.New("connect: refused 10.0.0.7:8006"))
	body := f.Body()

	assert.Equal(t, "Transient", body["kind"])
	assert.Equal(t, "upstream down", body["message"])
	assert.Len(t, body, 2, "cause must never be serialized")
}

func TestUnwrap(t *testing.T) {
	cause := errors.New("read: connection reset")
	f := Transient("scrape failed", cause)
	assert.True(t, errors.Is(f, cause))
}
