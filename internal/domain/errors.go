package domain

import (
	"errors"
	"fmt"
)

// Kind is the stable tag carried by every error that crosses a component boundary.
type Kind string

const (
	KindInvalidGeometry    Kind = "invalid_geometry"
	KindInvalidEnumValue   Kind = "invalid_enum_value"
	KindValidation         Kind = "validation_error"
	KindBackendUnavailable Kind = "backend_unavailable"
	KindBackendRejected    Kind = "backend_rejected"
	KindNotFound           Kind = "not_found"
	KindDeliveryAborted    Kind = "delivery_aborted"
)

// Error is a classified failure. Drivers map backend-native errors into an
// *Error so that callers never see pgx, smithy or os error types directly.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Errorf builds an *Error of the given kind with a formatted message.
func Errorf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap classifies err under kind, keeping it as the cause.
func Wrap(kind Kind, err error, message string) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

// KindOf returns the kind of the first *Error in err's chain, or "" if there is none.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// IsKind reports whether err carries the given kind.
func IsKind(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// IsRetryable reports whether a caller may retry the operation with backoff.
// Only transient backend conditions (pool exhaustion, connectivity, throttling) qualify.
func IsRetryable(err error) bool {
	return IsKind(err, KindBackendUnavailable)
}

// IsClientError reports whether the kind describes bad input rather than a backend fault.
func (k Kind) IsClientError() bool {
	switch k {
	case KindInvalidGeometry, KindInvalidEnumValue, KindValidation:
		return true
	default:
		return false
	}
}
