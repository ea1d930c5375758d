// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package faults defines the closed error taxonomy shared by every service.
//
// # Description
//
// All failures that cross a service boundary are expressed as a *Fault with
// one of the eight kinds defined here. Each kind carries a fixed HTTP status
// and a default retryability bit; nothing else leaves a process. Internal
// errors are wrapped (and logged with context) before they reach a handler.
//
// # Usage
//
//	if req.License == "" {
//	    return faults.InvalidArgument("license_number", "must not be empty")
//	}
//
//	if errors.Is(err, syscall.ECONNREFUSED) {
//	    return faults.Transient("acris upstream unreachable", err)
//	}
//
// # Thread Safety
//
// Fault values are immutable after construction.
package faults

import (
	"errors"
	"fmt"
	"net/http"
)

// =============================================================================
// Kinds
// =============================================================================

// Kind identifies one of the eight failure categories.
//
// The set is closed: every error that crosses a service boundary maps to
// exactly one Kind. Adding a Kind is an API change for every service.
type Kind string

const (
	// KindInvalidArgument is a validation kit rejection or shape mismatch.
	KindInvalidArgument Kind = "InvalidArgument"

	// KindNotFound means the requested identifier is absent.
	KindNotFound Kind = "NotFound"

	// KindConfigConflict means irreconcilable pre-existing state, such as an
	// existing vector collection with a different dimension.
	KindConfigConflict Kind = "ConfigConflict"

	// KindUnauthenticated means the upstream rejected our credentials.
	KindUnauthenticated Kind = "Unauthenticated"

	// KindForbidden means the upstream recognized but refused us.
	KindForbidden Kind = "Forbidden"

	// KindTransient covers connect/read errors, dependency 5xx responses, and
	// timeouts that never reached the peer. Retryable.
	KindTransient Kind = "Transient"

	// KindDeadlineExceeded means a wall-clock deadline elapsed. Retryable once.
	KindDeadlineExceeded Kind = "DeadlineExceeded"

	// KindCircuitOpen means the local breaker refused the call; the upstream
	// was never contacted. Not retryable (the breaker would refuse again).
	KindCircuitOpen Kind = "CircuitOpen"

	// KindInternal is the catch-all for unexpected failures. Must be logged
	// with stack context at the point of wrapping.
	KindInternal Kind = "Internal"
)

// httpStatus maps each kind to its mandated transport status.
var httpStatus = map[Kind]int{
	KindInvalidArgument:  http.StatusUnprocessableEntity,
	KindNotFound:         http.StatusNotFound,
	KindConfigConflict:   http.StatusConflict,
	KindUnauthenticated:  http.StatusUnauthorized,
	KindForbidden:        http.StatusForbidden,
	KindTransient:        http.StatusServiceUnavailable,
	KindDeadlineExceeded: http.StatusGatewayTimeout,
	KindCircuitOpen:      http.StatusServiceUnavailable,
	KindInternal:         http.StatusInternalServerError,
}

// retryable maps each kind to its default retry policy bit.
var retryable = map[Kind]bool{
	KindTransient:        true,
	KindDeadlineExceeded: true,
}

// =============================================================================
// Fault
// =============================================================================

// Fault is the only error type that crosses a service boundary.
//
// # Fields
//
//   - Kind: One of the eight taxonomy kinds.
//   - Message: Short human-readable reason, safe to return to callers.
//   - Cause: Wrapped underlying error. Logged, never serialized.
type Fault struct {
	Kind    Kind
	Message string
	Cause   error
}

// Error implements the error interface.
func (f *Fault) Error() string {
	if f.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", f.Kind, f.Message, f.Cause)
	}
	return fmt.Sprintf("%s: %s", f.Kind, f.Message)
}

// Unwrap exposes the underlying cause to errors.Is/As.
func (f *Fault) Unwrap() error { return f.Cause }

// HTTPStatus returns the mandated transport status for the fault's kind.
func (f *Fault) HTTPStatus() int {
	if s, ok := httpStatus[f.Kind]; ok {
		return s
	}
	return http.StatusInternalServerError
}

// Retryable reports whether the redundancy layer may retry this fault.
func (f *Fault) Retryable() bool { return retryable[f.Kind] }

// Body returns the JSON-serializable error body returned to callers.
// Stack context stays in the logs; only kind and message are exposed.
func (f *Fault) Body() map[string]any {
	return map[string]any{
		"kind":    string(f.Kind),
		"message": f.Message,
	}
}

// =============================================================================
// Constructors
// =============================================================================

// InvalidArgument builds a validation failure naming the offending field.
func InvalidArgument(field, reason string) *Fault {
	return &Fault{
		Kind:    KindInvalidArgument,
		Message: fmt.Sprintf("%s: %s", field, reason),
	}
}

// NotFound builds a missing-identifier failure.
func NotFound(what string) *Fault {
	return &Fault{Kind: KindNotFound, Message: fmt.Sprintf("%s not found", what)}
}

// ConfigConflict builds an irreconcilable-state failure.
func ConfigConflict(msg string) *Fault {
	return &Fault{Kind: KindConfigConflict, Message: msg}
}

// Unauthenticated builds an external auth failure.
func Unauthenticated(msg string) *Fault {
	return &Fault{Kind: KindUnauthenticated, Message: msg}
}

// Forbidden builds an authorization failure.
func Forbidden(msg string) *Fault {
	return &Fault{Kind: KindForbidden, Message: msg}
}

// Transient builds a retryable dependency failure wrapping its cause.
func Transient(msg string, cause error) *Fault {
	return &Fault{Kind: KindTransient, Message: msg, Cause: cause}
}

// DeadlineExceeded builds a wall-clock deadline failure.
func DeadlineExceeded(msg string) *Fault {
	return &Fault{Kind: KindDeadlineExceeded, Message: msg}
}

// CircuitOpen builds a breaker-refused failure for the given target.
func CircuitOpen(target string) *Fault {
	return &Fault{Kind: KindCircuitOpen, Message: fmt.Sprintf("circuit breaker open for %s", target)}
}

// Internal wraps an unexpected error. Callers must log the cause with
// context before (or at) the point this crosses a boundary.
func Internal(msg string, cause error) *Fault {
	return &Fault{Kind: KindInternal, Message: msg, Cause: cause}
}

// =============================================================================
// Mapping helpers
// =============================================================================

// From normalizes any error to a *Fault.
//
// # Description
//
// If err already is (or wraps) a *Fault it is returned unchanged; anything
// else becomes KindInternal. Use at service boundaries so that no raw error
// ever crosses a process edge.
func From(err error) *Fault {
	if err == nil {
		return nil
	}
	var f *Fault
	if errors.As(err, &f) {
		return f
	}
	return &Fault{Kind: KindInternal, Message: "unexpected error", Cause: err}
}

// KindOf returns the taxonomy kind of err, or KindInternal for foreign errors.
func KindOf(err error) Kind {
	return From(err).Kind
}

// IsRetryable reports the default retry bit for err after normalization.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	return From(err).Retryable()
}

// =============================================================================
// Compile-time checks
// =============================================================================

var _ error = (*Fault)(nil)
