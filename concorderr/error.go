// Copyright 2026 The Concord Authors
// SPDX-License-Identifier: Apache-2.0

package concorderr

import "fmt"

// Error is a Concord error carrying a Kind and an optional message and
// underlying cause.
type Error struct {
	Kind    Kind
	Message string
	Cause   error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Message == "" && e.Cause == nil {
		return e.Kind.String()
	}
	if e.Cause == nil {
		return fmt.Sprintf("%s: %s", e.Kind, e.Message)
	}
	if e.Message == "" {
		return fmt.Sprintf("%s: %v", e.Kind, e.Cause)
	}
	return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
}

// Unwrap returns the underlying cause, supporting errors.Is/As across
// the wrapped chain.
func (e *Error) Unwrap() error { return e.Cause }

// Is reports whether target is a *Error with the same Kind, or the
// bare Kind value itself (so callers can write errors.Is(err,
// concorderr.KindDecryptionFailed) directly).
func (e *Error) Is(target error) bool {
	if k, ok := target.(Kind); ok {
		return e.Kind == k
	}
	other, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == other.Kind
}

// New creates an *Error of the given Kind with a message and no cause.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap creates an *Error of the given Kind wrapping cause, with an
// optional message. If cause is itself a *Error, its Kind is
// preserved in the chain via Unwrap but the outer Kind is what Is/As
// report for this error value.
func Wrap(kind Kind, cause error, message string) *Error {
	return &Error{Kind: kind, Message: message, Cause: cause}
}

// Of extracts the Kind from err's chain via errors.As. Returns
// KindUnknown if err is nil or does not wrap a *Error.
func Of(err error) Kind {
	var concordErr *Error
	if asError(err, &concordErr) {
		return concordErr.Kind
	}
	return KindUnknown
}

// asError is a tiny errors.As wrapper kept local to avoid importing
// "errors" into every call site that just wants Of.
func asError(err error, target **Error) bool {
	for err != nil {
		if e, ok := err.(*Error); ok {
			*target = e
			return true
		}
		unwrapper, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = unwrapper.Unwrap()
	}
	return false
}
