// Package fault classifies failures so each pipeline stage can apply one
// retry/propagation policy instead of inspecting provider-specific errors.
package fault

import (
	"context"
	"errors"
	"fmt"
	"net"
)

type Class string

const (
	// InputRejected marks a malformed or undersized event. Dropped, never
	// surfaced to the client beyond a debug log.
	InputRejected Class = "input_rejected"
	// DuplicateSuppressed marks a near-duplicate fragment. Not an error.
	DuplicateSuppressed Class = "duplicate_suppressed"
	// ExternalTransient covers timeouts, rate limits and network failures.
	// Retried per component policy.
	ExternalTransient Class = "external_transient"
	// ExternalPermanent covers auth and validation failures. Never retried.
	ExternalPermanent Class = "external_permanent"
	// StateConflict marks a deferred trigger, e.g. a second batch job of the
	// same kind while one is in flight. Not an error.
	StateConflict Class = "state_conflict"
)

type Error struct {
	Class Class
	Op    string
	Err   error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Op, e.Class)
	}
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Class, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

func New(class Class, op string, err error) *Error {
	return &Error{Class: class, Op: op, Err: err}
}

func Newf(class Class, op, format string, args ...any) *Error {
	return &Error{Class: class, Op: op, Err: fmt.Errorf(format, args...)}
}

// ClassOf returns the fault class of err, defaulting unclassified errors to
// ExternalTransient so unknown failures stay retryable rather than being
// dropped as permanent.
func ClassOf(err error) Class {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Class
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return ExternalTransient
	}
	var ne net.Error
	if errors.As(err, &ne) {
		return ExternalTransient
	}
	return ExternalTransient
}

func IsRetryable(err error) bool {
	return ClassOf(err) == ExternalTransient
}

// FromHTTPStatus maps an external service status code onto the taxonomy.
func FromHTTPStatus(op string, status int, body string) *Error {
	class := ExternalTransient
	switch {
	case status == 401 || status == 403 || status == 400 || status == 404 || status == 422:
		class = ExternalPermanent
	case status == 408 || status == 429 || status >= 500:
		class = ExternalTransient
	}
	return Newf(class, op, "unexpected status %d: %s", status, truncate(body, 200))
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
