// Package bridgeerr gives every error raised by the engine, reconciler, and
// exchange client a small classification (a kind, not an exception
// hierarchy) so callers can branch on disposition without type-switching
// over concrete error types.
package bridgeerr

import (
	"errors"
	"fmt"
)

// Kind classifies the failure for propagation-policy purposes.
type Kind string

const (
	InputInvalid        Kind = "InputInvalid"
	RiskRejected        Kind = "RiskRejected"
	ExchangeQueryFailed Kind = "ExchangeQueryFailed"
	ExchangeOrderFailed Kind = "ExchangeOrderFailed"
	PersistenceFailed   Kind = "PersistenceFailed"
	StreamTransient     Kind = "StreamTransient"
	StreamUnrecoverable Kind = "StreamUnrecoverable"
	Critical            Kind = "Critical"
)

// Error wraps an underlying error with a Kind.
type Error struct {
	Kind Kind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Msg, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
}

func (e *Error) Unwrap() error { return e.Err }

// New creates a Kind-tagged error with no wrapped cause.
func New(kind Kind, msg string) error {
	return &Error{Kind: kind, Msg: msg}
}

// Wrap tags an existing error with a Kind, following the teacher's
// `fmt.Errorf("...: %w", err)` wrapping convention.
func Wrap(kind Kind, msg string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Msg: msg, Err: err}
}

// KindOf extracts the Kind from err, or "" if err was not raised through
// this package.
func KindOf(err error) Kind {
	var be *Error
	if errors.As(err, &be) {
		return be.Kind
	}
	return ""
}

// Is reports whether err (or anything it wraps) carries the given Kind.
func Is(err error, kind Kind) bool {
	return KindOf(err) == kind
}
